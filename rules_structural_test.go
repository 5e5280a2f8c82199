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

func TestMovemSingleWordLoadDegenerates(t *testing.T) {
	output := linesOf("\tmovem.w 8(%a0),%d4")
	ctx := &RuleContext{Config: DefaultConfig()}
	repl, ok := ruleMovemSingleDegenerate.Match(ctx, output, nil, 0, false)
	if !ok {
		t.Fatal("expected a match")
	}
	want := []string{"\tmove.w 8(%a0),%d4", "\text.l %d4"}
	if len(repl) != len(want) {
		t.Fatalf("got %v", textsOf(repl))
	}
	for i, w := range want {
		if repl[i].Text != w {
			t.Errorf("line %d = %q, want %q", i, repl[i].Text, w)
		}
	}
}

func TestMovemSinglePushDegenerates(t *testing.T) {
	output := linesOf("\tmovem.l %d3,-(%sp)")
	ctx := &RuleContext{Config: DefaultConfig()}
	repl, ok := ruleMovemSingleDegenerate.Match(ctx, output, nil, 0, false)
	if !ok {
		t.Fatal("expected a match")
	}
	if repl[0].Text != "\tmove.l %d3,-(%sp)" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestMovemSingleLongPopToAddrUsesMovea(t *testing.T) {
	output := linesOf("\tmovem.l (%sp)+,%a2")
	ctx := &RuleContext{Config: DefaultConfig()}
	repl, ok := ruleMovemSingleDegenerate.Match(ctx, output, nil, 0, false)
	if !ok {
		t.Fatal("expected a match")
	}
	if repl[0].Text != "\tmovea.l (%sp)+,%a2" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestMovemTwoPopExpands(t *testing.T) {
	output := linesOf("\tmovem.l (%sp)+,%d2/%a3")
	ctx := &RuleContext{Config: DefaultConfig()}
	repl, ok := ruleMovemTwoPopExpand.Match(ctx, output, nil, 0, false)
	if !ok {
		t.Fatal("expected a match")
	}
	want := []string{"\tmove.l (%sp)+,%d2", "\tmovea.l (%sp)+,%a3"}
	for i, w := range want {
		if repl[i].Text != w {
			t.Errorf("line %d = %q, want %q", i, repl[i].Text, w)
		}
	}
}

func TestMovemTwoPopLeavesEpilogueAlone(t *testing.T) {
	output := linesOf(
		"\t.type foo,@function",
		"foo:",
		"\tmovem.l %d2/%d3,-(%sp)",
		"\tmove.l %d0,%d2",
		"\tmovem.l (%sp)+,%d2/%d3",
		"\trts",
		"\t.size foo,.-foo",
	)
	ctx := &RuleContext{Config: DefaultConfig(), FuncStart: 0, FuncEnd: 7, FuncName: "foo"}
	if _, ok := ruleMovemTwoPopExpand.Match(ctx, output, nil, 4, false); ok {
		t.Error("the epilogue pop must keep its movem form for the frame maintainer")
	}
}

func shorteningFixture(filler int) []Line {
	lines := []Line{
		NewLine("\t.type g,@function", 1),
		NewLine("g:", 2),
		NewLine("\tbra .L1", 3),
	}
	for i := 0; i < filler; i++ {
		lines = append(lines, NewLine("\tmove.l %d0,%d1", 4+i))
	}
	lines = append(lines,
		NewLine(".L1:", 100),
		NewLine("\trts", 101),
		NewLine("\t.size g,.-g", 102),
	)
	return lines
}

func TestBranchShorteningForwardInRange(t *testing.T) {
	output := shorteningFixture(20) // 40 bytes of moves
	ctx := &RuleContext{Config: DefaultConfig(), FuncStart: 0, FuncEnd: len(output), FuncName: "g"}
	repl, ok := ruleBranchShortening.Match(ctx, output, nil, 2, true)
	if !ok {
		t.Fatal("expected a match: the target is 40 bytes ahead")
	}
	if repl[0].Text != "\tbra.s .L1" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestBranchShorteningOutOfRange(t *testing.T) {
	output := shorteningFixture(70) // 140 bytes of moves
	ctx := &RuleContext{Config: DefaultConfig(), FuncStart: 0, FuncEnd: len(output), FuncName: "g"}
	if _, ok := ruleBranchShortening.Match(ctx, output, nil, 2, true); ok {
		t.Error("140 bytes is beyond a short branch's reach")
	}
}

func TestBranchShorteningFirstPassIsInert(t *testing.T) {
	output := shorteningFixture(20)
	ctx := &RuleContext{Config: DefaultConfig(), FuncStart: 0, FuncEnd: len(output), FuncName: "g"}
	if _, ok := ruleBranchShortening.Match(ctx, output, nil, 2, false); ok {
		t.Error("shortening must wait for the second pass")
	}
}

func TestBranchShorteningBackward(t *testing.T) {
	lines := []Line{
		NewLine("\t.type g,@function", 1),
		NewLine("g:", 2),
		NewLine(".Ltop:", 3),
		NewLine("\tadd.l %d1,%d0", 4),
		NewLine("\tsubq.l #1,%d2", 5),
		NewLine("\tbne .Ltop", 6),
		NewLine("\trts", 7),
		NewLine("\t.size g,.-g", 8),
	}
	ctx := &RuleContext{Config: DefaultConfig(), FuncStart: 0, FuncEnd: len(lines), FuncName: "g"}
	repl, ok := ruleBranchShortening.Match(ctx, lines, nil, 5, true)
	if !ok {
		t.Fatal("expected a match: the loop top is 6 bytes back")
	}
	if repl[0].Text != "\tbne.s .Ltop" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestBranchShorteningJsrBecomesBsr(t *testing.T) {
	lines := []Line{
		NewLine("\t.type g,@function", 1),
		NewLine("g:", 2),
		NewLine("\tjsr .Lhelper", 3),
		NewLine("\trts", 4),
		NewLine(".Lhelper:", 5),
		NewLine("\trts", 6),
		NewLine("\t.size g,.-g", 7),
	}
	ctx := &RuleContext{Config: DefaultConfig(), FuncStart: 0, FuncEnd: len(lines), FuncName: "g"}
	repl, ok := ruleBranchShortening.Match(ctx, lines, nil, 2, true)
	if !ok {
		t.Fatal("expected a match")
	}
	if repl[0].Text != "\tbsr.s .Lhelper" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestBranchShorteningSkipsDeadIfRegion(t *testing.T) {
	lines := []Line{
		NewLine("\t.set DEBUG,0", 1),
		NewLine("\t.type g,@function", 2),
		NewLine("g:", 3),
		NewLine("\tbra .L1", 4),
		NewLine("\t.if DEBUG", 5),
		NewLine("\t.long 1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20,21,22,23,24,25,26,27,28,29,30,31,32,33", 6),
		NewLine("\t.endif", 7),
		NewLine("\tmove.l %d0,%d1", 8),
		NewLine(".L1:", 9),
		NewLine("\trts", 10),
		NewLine("\t.size g,.-g", 11),
	}
	ctx := &RuleContext{Config: DefaultConfig(), FuncStart: 1, FuncEnd: len(lines), FuncName: "g"}
	repl, ok := ruleBranchShortening.Match(ctx, lines, nil, 3, true)
	if !ok {
		t.Fatal("expected a match: the .if body is dead under DEBUG=0")
	}
	if repl[0].Text != "\tbra.s .L1" {
		t.Errorf("got %q", repl[0].Text)
	}
}

func TestBranchShorteningUnevaluableExprBlocks(t *testing.T) {
	lines := []Line{
		NewLine("\t.type g,@function", 1),
		NewLine("g:", 2),
		NewLine("\tbra .L1", 3),
		NewLine("\t.rept UNKNOWN_COUNT", 4),
		NewLine("\tnop", 5),
		NewLine("\t.endr", 6),
		NewLine(".L1:", 7),
		NewLine("\trts", 8),
		NewLine("\t.size g,.-g", 9),
	}
	ctx := &RuleContext{Config: DefaultConfig(), FuncStart: 0, FuncEnd: len(lines), FuncName: "g"}
	if _, ok := ruleBranchShortening.Match(ctx, lines, nil, 2, true); ok {
		t.Error("an unevaluable region must be treated as out of range")
	}
}
