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

func runTexts(cfg Config, texts ...string) []string {
	result := Run(cfg, linesOf(texts...), nil)
	return textsOf(result.Lines)
}

func assertContainsSequence(t *testing.T, got []string, want []string) {
	t.Helper()
	for start := 0; start+len(want) <= len(got); start++ {
		match := true
		for i, w := range want {
			if got[start+i] != w {
				match = false
				break
			}
		}
		if match {
			return
		}
	}
	t.Errorf("output %q does not contain the sequence %q", got, want)
}

func TestRunImmediateScenario(t *testing.T) {
	got := runTexts(DefaultConfig(),
		"\t.text",
		"\t.globl main",
		"\t.type main,@function",
		"main:",
		"\tmove.l #0,%d0",
		"\trts",
		"\t.size main,.-main",
	)
	assertContainsSequence(t, got, []string{"\tmoveq #0,%d0"})
}

func TestRunJsrRtsBecomesJmp(t *testing.T) {
	got := runTexts(DefaultConfig(),
		"\t.type f,@function",
		"f:",
		"\tjsr foo",
		"\trts",
		"\t.size f,.-f",
	)
	assertContainsSequence(t, got, []string{"\tjmp foo", "\t.size f,.-f"})
	for _, l := range got {
		if l == "\trts" {
			t.Error("the rts should have been folded into the jmp")
		}
	}
}

func TestRunBranchShortening(t *testing.T) {
	input := []string{
		"\t.type g,@function",
		"g:",
		"\tbra .L1",
	}
	for i := 0; i < 20; i++ {
		input = append(input, "\tmove.l %d0,%d1")
	}
	input = append(input, ".L1:", "\trts", "\t.size g,.-g")
	got := runTexts(DefaultConfig(), input...)
	assertContainsSequence(t, got, []string{"\tbra.s .L1"})
}

func TestRunRangeTestScenario(t *testing.T) {
	got := runTexts(DefaultConfig(),
		"\t.type r,@function",
		"r:",
		"\tcmp.l #-32768,%a3",
		"\tblt .Lout",
		"\tcmp.l #32767,%a3",
		"\tbgt .Lout",
		"\tmoveq #1,%d0",
		".Lout:",
		"\trts",
		"\t.size r,.-r",
	)
	assertContainsSequence(t, got, []string{"\tcmpa.w %a3,%a3", "\tbne.s .Lout"})
}

func TestRunMulScenarioCommitsScratchFrame(t *testing.T) {
	got := runTexts(DefaultConfig(),
		"\t.type f,@function",
		"f:",
		"\tmulu.w #10,%d2",
		"\tmove.w %d0,%d3",
		"\tmove.w %d1,%d4",
		"\trts",
		"\t.size f,.-f",
	)
	assertContainsSequence(t, got, []string{
		"\tmove.l %d3,-(%sp)",
		"\tmove.w %d2,%d3",
		"\tadd.w %d2,%d2",
		"\tadd.w %d2,%d2",
		"\tadd.w %d3,%d2",
		"\tadd.w %d2,%d2",
		"\tmove.w %d0,%d3",
		"\tmove.w %d1,%d4",
		"\tmove.l (%sp)+,%d3",
		"\trts",
	})
}

func TestRunLeavesInlineAsmAlone(t *testing.T) {
	got := runTexts(DefaultConfig(),
		"\t.type f,@function",
		"f:",
		"#APP",
		"\tmove.l #0,%d0",
		"#NO_APP",
		"\trts",
		"\t.size f,.-f",
	)
	assertContainsSequence(t, got, []string{"#APP", "\tmove.l #0,%d0", "#NO_APP"})
}

func TestRunStatsCountMatches(t *testing.T) {
	result := Run(DefaultConfig(), linesOf(
		"\t.type f,@function",
		"f:",
		"\tmove.l #0,%d0",
		"\tmove.l #0,%d1",
		"\trts",
		"\t.size f,.-f",
	), nil)
	if result.Stats["immediate-materialize"] != 2 {
		t.Errorf("immediate-materialize count = %d, want 2", result.Stats["immediate-materialize"])
	}
}

func idempotenceFixture() []string {
	input := []string{
		"\t.text",
		"\t.globl main",
		"\t.type main,@function",
		"main:",
		"\tmove.l #0,%d0",
		"\tmove.l #200,%d1",
		"\tmovem.w 8(%a0),%d4",
		"\tcmp.l #0,%d4",
		"\tjsr helper",
		"\trts",
		"\t.size main,.-main",
		"\t.type helper,@function",
		"helper:",
		"\tbra .L1",
	}
	for i := 0; i < 10; i++ {
		input = append(input, "\tmove.l %d0,%d1")
	}
	input = append(input,
		".L1:",
		"\tmulu.w #10,%d2",
		"\trts",
		"\t.size helper,.-helper",
	)
	return input
}

func TestRunIdempotence(t *testing.T) {
	cfg := DefaultConfig()
	once := Run(cfg, linesOf(idempotenceFixture()...), nil)
	twice := Run(cfg, once.Lines, nil)
	a, b := textsOf(once.Lines), textsOf(twice.Lines)
	if len(a) != len(b) {
		t.Fatalf("line count changed on re-optimization: %d vs %d\nfirst: %q\nsecond: %q", len(a), len(b), a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("line %d changed on re-optimization: %q -> %q", i, a[i], b[i])
		}
	}
	if n := len(twice.Stats); n != 0 {
		t.Errorf("re-optimization applied %d further rule matches: %v", n, twice.Stats)
	}
}
