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

func TestInstructionSize(t *testing.T) {
	cases := []struct {
		line string
		want int
	}{
		{"\tmoveq #5,%d0", 2},
		{"\trts", 2},
		{"\tswap %d0", 2},
		{"\tmove.l %d0,%d1", 2},
		{"\tmove.w 8(%a0),%d1", 4},
		{"\tmove.l #70000,%d0", 6},
		{"\tmove.w #5,%d0", 4},
		{"\tcmp.l #32767,%d1", 6},
		{"\ttst.l %d0", 2},
		{"\tclr.w -(%sp)", 2},
		{"\tadd.w (%a0)+,%d2", 2},
		{"\taddq.l #4,%d0", 2},
		{"\taddq.w #2,8(%a0)", 4},
		{"\tlsl.l #3,%d0", 2},
		{"\tbra .L1", 4},
		{"\tbra.s .L1", 2},
		{"\tbeq.s .L2", 2},
		{"\tdbra %d0,.L3", 4},
		{"\tjmp (%a0)", 2},
		{"\tjsr foo", 6},
		{"\tlea table,%a0", 6},
		{"\tlea 4(%sp),%a0", 4},
		{"\tpea 8(%a6)", 4},
		{"\tmovem.l %d2/%d3,-(%sp)", 4},
		{"\tmovem.l (%sp)+,%d2/%d3", 4},
		{"\tmovem.w 8(%a0),%d4/%d5", 6},
		{"\tbclr #3,%d0", 4},
		{"\tbtst %d1,%d0", 2},
		{"\tlink %a6,#-8", 4},
		{"\tunlk %a6", 2},
		{"\tmove.l sym.w,%d0", 4},
		{"\tmove.l sym,%d0", 6},
	}
	for _, c := range cases {
		t.Run(c.line, func(t *testing.T) {
			if got := instructionSize(NewLine(c.line, 1)); got != c.want {
				t.Errorf("instructionSize(%q) = %d, want %d", c.line, got, c.want)
			}
		})
	}
}

func TestRegionSizeDataDirectives(t *testing.T) {
	lines := linesOf(
		"\t.byte 1,2,3",
		"\t.word 5",
		"\t.long 7,8",
		"\t.ascii \"hi\"",
		"\t.asciz \"hi\"",
	)
	sz := newSizer(lines, 0, nil)
	got, ok := sz.regionSize(lines, 0, len(lines))
	if !ok {
		t.Fatal("regionSize failed")
	}
	// 3 + 2 + 8 + 2 + 3
	if got != 18 {
		t.Errorf("regionSize = %d, want 18", got)
	}
}

func TestRegionSizeReptWithSetVariable(t *testing.T) {
	lines := linesOf(
		"\t.set COUNT,3",
		"\t.rept COUNT+1",
		"\tmove.l %d0,%d1",
		"\t.endr",
	)
	sz := newSizer(lines, 0, nil)
	got, ok := sz.regionSize(lines, 0, len(lines))
	if !ok {
		t.Fatal("regionSize failed")
	}
	if got != 8 {
		t.Errorf("regionSize = %d, want 8 (4 repetitions of a 2-byte move)", got)
	}
}

func TestRegionSizeIfFalseSkipsBody(t *testing.T) {
	lines := linesOf(
		"\t.set DEBUG,0",
		"\t.if DEBUG",
		"\t.long 1,2,3,4",
		"\t.endif",
		"\tmove.l %d0,%d1",
	)
	sz := newSizer(lines, 0, nil)
	got, ok := sz.regionSize(lines, 0, len(lines))
	if !ok {
		t.Fatal("regionSize failed")
	}
	if got != 2 {
		t.Errorf("regionSize = %d, want 2 (the .if body is dead)", got)
	}
}

func TestRegionSizeUndefinedSymbolFails(t *testing.T) {
	lines := linesOf(
		"\t.rept MYSTERY",
		"\tmove.l %d0,%d1",
		"\t.endr",
	)
	sz := newSizer(lines, 0, nil)
	if _, ok := sz.regionSize(lines, 0, len(lines)); ok {
		t.Error("an unevaluable .rept count must fail the sizing, not guess")
	}
}

func TestRegionSizePrimesEarlierSets(t *testing.T) {
	lines := linesOf(
		"\t.set N,2",
		"\t.text",
		"\t.rept N",
		"\t.word 0",
		"\t.endr",
	)
	sz := newSizer(lines, 2, nil)
	got, ok := sz.regionSize(lines, 2, len(lines))
	if !ok {
		t.Fatal("regionSize failed")
	}
	if got != 4 {
		t.Errorf("regionSize = %d, want 4 (N picked up from before the region)", got)
	}
}

func TestEvalExpressions(t *testing.T) {
	s := newSizer(nil, 0, nil)
	s.vars["W"] = 6
	cases := []struct {
		expr string
		want int64
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"W-2", 4},
		{"-4+W", 2},
		{"0x10", 16},
		{"$20", 32},
		{"W/2", 3},
	}
	for _, c := range cases {
		got, err := s.eval(c.expr)
		if err != nil {
			t.Errorf("eval(%q) error: %v", c.expr, err)
			continue
		}
		if got != c.want {
			t.Errorf("eval(%q) = %d, want %d", c.expr, got, c.want)
		}
	}
	if _, err := s.eval("UNDEF+1"); err == nil {
		t.Error("eval with an undefined symbol must error")
	}
}
