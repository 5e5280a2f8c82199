// Copyright 2025 m68kopt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import "testing"

func matchSingle(t *testing.T, r SingleLineRule, ctx *RuleContext, output []Line, input ...string) []Line {
	t.Helper()
	repl, ok := r.Match(ctx, output, linesOf(input...), 0)
	if !ok {
		t.Fatalf("%s: expected a match on %q", r.Name, input[0])
	}
	return repl
}

func TestImmediateMaterialize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"\tmove.l #0,%d0", []string{"\tmoveq #0,%d0"}},
		{"\tmove.l #127,%d3", []string{"\tmoveq #127,%d3"}},
		{"\tmove.l #200,%d1", []string{"\tmoveq #55,%d1", "\tnot.b %d1"}},
		{"\tmove.l #255,%d2", []string{"\tmoveq #0,%d2", "\tnot.b %d2"}},
		{"\tmove.l #131072,%d4", []string{"\tmoveq #2,%d4", "\tswap %d4"}},
	}
	ctx := &RuleContext{Config: DefaultConfig()}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			repl := matchSingle(t, ruleImmediateMaterialize, ctx, nil, c.in)
			if len(repl) != len(c.want) {
				t.Fatalf("got %d lines, want %d", len(repl), len(c.want))
			}
			for i, w := range c.want {
				if repl[i].Text != w {
					t.Errorf("line %d = %q, want %q", i, repl[i].Text, w)
				}
			}
		})
	}
}

func TestImmediateMaterializeLeavesHardConstantsAlone(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	if _, ok := ruleImmediateMaterialize.Match(ctx, nil, linesOf("\tmove.l #305419896,%d0"), 0); ok {
		t.Error("no moveq permutation reconstructs 0x12345678")
	}
}

func TestAddSubImmQuick(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl := matchSingle(t, ruleAddSubImmQuick, ctx, nil, "\tadd.l #4,%d2")
	if repl[0].Text != "\taddq.l #4,%d2" {
		t.Errorf("got %q", repl[0].Text)
	}
	repl = matchSingle(t, ruleAddSubImmQuick, ctx, nil, "\tsubi.l #1,%d5")
	if repl[0].Text != "\tsubq.l #1,%d5" {
		t.Errorf("got %q", repl[0].Text)
	}
	if _, ok := ruleAddSubImmQuick.Match(ctx, nil, linesOf("\tadd.l #9,%d2"), 0); ok {
		t.Error("9 is out of the quick range")
	}
}

func TestAddSubNarrowToWordNeedsDeadHighWord(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl, ok := ruleAddSubImmNarrowToWord.Match(ctx, nil, linesOf(
		"\taddq.l #1,%d0",
		"\tmove.w %d0,%d1",
		"\tmoveq #0,%d0",
	), 0)
	if !ok {
		t.Fatal("expected a match: only the low word of d0 is read before the overwrite")
	}
	if repl[0].Text != "\taddq.w #1,%d0" {
		t.Errorf("got %q", repl[0].Text)
	}

	if _, ok := ruleAddSubImmNarrowToWord.Match(ctx, nil, linesOf(
		"\taddq.l #1,%d0",
		"\tmove.l %d0,%d1",
	), 0); ok {
		t.Error("a long read of d0 must block the narrowing")
	}
	if _, ok := ruleAddSubImmNarrowToWord.Match(ctx, nil, linesOf(
		"\taddq.l #1,%d0",
		"\tmove.w (%a0,%d0.w),%d1",
	), 0); ok {
		t.Error("an addressing-mode use of d0 must block the narrowing")
	}
}

func TestAddqSubqAddrRegNarrow(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl := matchSingle(t, ruleAddqSubqOnAddrReg, ctx, nil, "\tadd.l #2,%a3")
	if repl[0].Text != "\taddq.w #2,%a3" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestCmpZeroToTst(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl := matchSingle(t, ruleCmpZeroToTst, ctx, nil, "\tcmp.l #0,%d4")
	if repl[0].Text != "\ttst.l %d4" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestBitMaskRules(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl := matchSingle(t, ruleBitMaskToBclr, ctx, nil, "\tand.w #65534,%d0")
	if repl[0].Text != "\tbclr #0,%d0" {
		t.Errorf("bclr: got %q", repl[0].Text)
	}
	repl = matchSingle(t, ruleBitMaskToBset, ctx, nil, "\tor.w #8,%d3")
	if repl[0].Text != "\tbset #3,%d3" {
		t.Errorf("bset: got %q", repl[0].Text)
	}
	if _, ok := ruleBitMaskToBclr.Match(ctx, nil, linesOf("\tand.w #65532,%d0"), 0); ok {
		t.Error("a two-bit clear mask must not become a single bclr")
	}
}

func TestShiftLeft16ToSwapClr(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl := matchSingle(t, ruleShiftLeft16ToSwapClr, ctx, nil, "\tlsl.l #16,%d2")
	want := []string{"\tswap %d2", "\tclr.w %d2"}
	for i, w := range want {
		if repl[i].Text != w {
			t.Errorf("line %d = %q, want %q", i, repl[i].Text, w)
		}
	}
}

func TestMulPow2ToShift(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl := matchSingle(t, ruleMulPow2ToShift, ctx, nil, "\tmulu.w #8,%d3")
	if repl[0].Text != "\tlsl.l #3,%d3" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestMulConstShiftAddScenario(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl, ok := ruleMulConstShiftAdd.Match(ctx, nil, linesOf(
		"\tmulu.w #10,%d2",
		"\trts",
	), 0)
	if !ok {
		t.Fatal("expected a match with a borrowed scratch register")
	}
	want := []string{
		"\tmove.w %d2,%d0",
		"\tadd.w %d2,%d2",
		"\tadd.w %d2,%d2",
		"\tadd.w %d0,%d2",
		"\tadd.w %d2,%d2",
	}
	if len(repl) != len(want) {
		t.Fatalf("got %d lines %v, want %d", len(repl), textsOf(repl), len(want))
	}
	for i, w := range want {
		if repl[i].Text != w {
			t.Errorf("line %d = %q, want %q", i, repl[i].Text, w)
		}
	}
}

func TestMulConstExact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OptimizeMulHighWordImportant = true
	cfg.OptimizeMulHighWordNotImportant = false
	ctx := &RuleContext{Config: cfg}

	repl, ok := ruleMulConstExact.Match(ctx, nil, linesOf("\tmulu.w #4,%d2", "\trts"), 0)
	if !ok {
		t.Fatal("expected a match")
	}
	want := []string{"\tand.l #65535,%d2", "\tlsl.l #2,%d2"}
	for i, w := range want {
		if repl[i].Text != w {
			t.Errorf("line %d = %q, want %q", i, repl[i].Text, w)
		}
	}

	repl, ok = ruleMulConstExact.Match(ctx, nil, linesOf("\tmuls.w #3,%d2", "\trts"), 0)
	if !ok {
		t.Fatal("expected a match")
	}
	want = []string{
		"\text.l %d2",
		"\tmove.l %d2,%d0",
		"\tadd.l %d2,%d2",
		"\tadd.l %d0,%d2",
	}
	if len(repl) != len(want) {
		t.Fatalf("got %v", textsOf(repl))
	}
	for i, w := range want {
		if repl[i].Text != w {
			t.Errorf("line %d = %q, want %q", i, repl[i].Text, w)
		}
	}
}

func TestDivPow2ToShift(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl := matchSingle(t, ruleDivPow2ToShift, ctx, nil, "\tdivu.w #8,%d1")
	if repl[0].Text != "\tlsr.l #3,%d1" {
		t.Errorf("got %q", repl[0].Text)
	}
	if _, ok := ruleDivPow2ToShift.Match(ctx, nil, linesOf("\tdivs.w #8,%d1"), 0); ok {
		t.Error("signed division must not become a logical shift")
	}
	if _, ok := ruleDivPow2ToShift.Match(ctx, nil, linesOf("\tdivu.w #10,%d1"), 0); ok {
		t.Error("a non-power-of-two divisor has no shift form")
	}
}

func TestZeroPushToClr(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	repl := matchSingle(t, ruleZeroPushToClr, ctx, nil, "\tmove.l #0,-(%sp)")
	if repl[0].Text != "\tclr.l -(%sp)" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestPinnedLineBlocksPeepholes(t *testing.T) {
	ctx := &RuleContext{Config: DefaultConfig()}
	input := []Line{NewLine("\tmove.l #0,%d0 ;# DO_NOT_OPTIMIZE", 1)}
	if _, ok := ruleImmediateMaterialize.Match(ctx, nil, input, 0); ok {
		t.Error("a pinned line must never be rewritten")
	}
}
