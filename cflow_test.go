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

func TestBranchTarget(t *testing.T) {
	cases := []struct {
		text   string
		target string
		ok     bool
	}{
		{"\tbra .L1", ".L1", true},
		{"\tjsr foo", "foo", true},
		{"\tjmp (%a0)", "", false},
		{"\tjmp .L1(%pc,%d0.w)", "", false},
		{"\tmove.l %d0,%d1", "", false},
	}
	for _, c := range cases {
		t.Run(c.text, func(t *testing.T) {
			l := NewLine(c.text, 1)
			target, ok := branchTarget(l)
			if ok != c.ok || target != c.target {
				t.Errorf("branchTarget(%q) = %q,%v, want %q,%v", c.text, target, ok, c.target, c.ok)
			}
		})
	}
}

func TestControlFlowMapResolve(t *testing.T) {
	output := linesOf(
		"\t.type foo,@function",
		"foo:",
		"\tbra .L1",
	)
	input := linesOf(
		".L1:",
		"\trts",
		"\t.size foo,.-foo",
	)
	cfm := BuildControlFlowMap(output, input)
	pos, ok := cfm.Resolve(".L1")
	if !ok {
		t.Fatal("expected .L1 to resolve")
	}
	if pos.Side != SideInput || pos.Index != 0 {
		t.Errorf("Resolve(.L1) = %+v, want input index 0", pos)
	}
	if _, ok := cfm.Resolve("nosuch"); ok {
		t.Error("unresolved label must report ok=false")
	}
}

func TestControlFlowMapScopedToEnclosingFunction(t *testing.T) {
	output := linesOf(
		"\t.type foo,@function",
		"foo:",
		"\tmove.l %d0,%d1",
	)
	input := linesOf(
		"\trts",
		"\t.size foo,.-foo",
		"\t.type bar,@function",
		"bar:",
		".L9:",
		"\trts",
		"\t.size bar,.-bar",
	)
	cfm := BuildControlFlowMap(output, input)
	if _, ok := cfm.Resolve(".L9"); ok {
		t.Error(".L9 belongs to a different function and must not resolve")
	}
}
