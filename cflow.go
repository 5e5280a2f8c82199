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

import "regexp"

// Side tags which half of the dual buffer a position belongs to: the
// already-emitted "modified" output, or the not-yet-consumed input.
// This is the tagged union the design notes (§9) call for.
type Side int

const (
	SideOutput Side = iota
	SideInput
)

// Pos is a position in one half of the dual buffer.
type Pos struct {
	Side  Side
	Index int
}

// branchMnemonics enumerates every m68k branch/call form whose single
// operand may be an intra-unit label. jmp/jsr with an indirect or
// PC-indexed operand are excluded by reference classification below,
// not by mnemonic alone, since `jmp (%a0)` and `jmp label` share a
// mnemonic.
var branchMnemonics = map[string]bool{
	"bra": true, "bsr": true,
	"beq": true, "bne": true, "bge": true, "bgt": true, "ble": true, "blt": true,
	"bhi": true, "bls": true, "bcc": true, "bcs": true, "bhs": true, "blo": true,
	"bvc": true, "bvs": true, "bpl": true, "bmi": true,
	"dbra": true, "dbf": true, "dbt": true, "dbeq": true, "dbne": true,
	"dbge": true, "dbgt": true, "dble": true, "dblt": true, "dbhi": true, "dbls": true,
	"dbcc": true, "dbcs": true, "dbvc": true, "dbvs": true, "dbpl": true, "dbmi": true,
	"jmp": true, "jsr": true,
}

var reBareLabelOperand = regexp.MustCompile(`^[A-Za-z_.$][A-Za-z0-9_.$]*$`)

// branchTarget returns the label name a branch/jsr/jmp line refers to,
// and true only when that operand is a bare label reference (not an
// indirect `(aN)` or PC-indexed `disp(%pc,xN.s)` computed target,
// which §4.3 says must be left unresolved).
func branchTarget(l Line) (string, bool) {
	mnem := l.Mnemonic()
	if !branchMnemonics[mnem] {
		return "", false
	}
	ops := l.Operands()
	if len(ops) == 0 {
		return "", false
	}
	target := ops[len(ops)-1]
	if reBareLabelOperand.MatchString(target) {
		return target, true
	}
	return "", false
}

// ControlFlowEntry records where a label is defined and every position
// that branches to it, split across the output/input halves.
type ControlFlowEntry struct {
	DefOutput  int // -1 if not defined on the output side
	DefInput   int // -1 if not defined on the input side
	RefsOutput []int
	RefsInput  []int
}

// ControlFlowMap is `label -> ControlFlowEntry` for the function
// currently being scanned, built fresh per query per §3 ("rebuilt per
// query; cheap by design").
type ControlFlowMap struct {
	Entries map[string]*ControlFlowEntry
	// OutputStart/OutputEnd and InputEnd bound the scan: the enclosing
	// function's declaration position in output, and the function's
	// .size directive position in input.
	OutputStart int
	InputEnd    int
}

func (m *ControlFlowMap) entry(name string) *ControlFlowEntry {
	e, ok := m.Entries[name]
	if !ok {
		e = &ControlFlowEntry{DefOutput: -1, DefInput: -1}
		m.Entries[name] = e
	}
	return e
}

// BuildControlFlowMap walks the already-emitted output backwards from
// its end to the enclosing function declaration, then walks the
// remaining input forwards to the function's `.size` directive,
// recording label definitions and citing branch positions on the
// appropriate side of the map, per §4.3.
func BuildControlFlowMap(output []Line, input []Line) *ControlFlowMap {
	m := &ControlFlowMap{Entries: map[string]*ControlFlowEntry{}}

	declPos, fname, ok := enclosingFunctionStart(output, len(output)-1)
	if !ok {
		declPos = 0
	}
	m.OutputStart = declPos

	for i := declPos; i < len(output); i++ {
		recordLine(m, output[i], i, SideOutput)
	}

	inputEnd := len(input)
	if fname != "" {
		inputEnd = enclosingFunctionEnd(input, 0, fname)
	}
	m.InputEnd = inputEnd
	for i := 0; i < inputEnd; i++ {
		recordLine(m, input[i], i, SideInput)
	}
	return m
}

func recordLine(m *ControlFlowMap, l Line, idx int, side Side) {
	if name, ok := l.LabelName(); ok {
		e := m.entry(name)
		if side == SideOutput {
			e.DefOutput = idx
		} else {
			e.DefInput = idx
		}
	}
	if target, ok := branchTarget(l); ok {
		e := m.entry(target)
		if side == SideOutput {
			e.RefsOutput = append(e.RefsOutput, idx)
		} else {
			e.RefsInput = append(e.RefsInput, idx)
		}
	}
}

// Resolve returns the defining position of name, searching the input
// side first (forward control flow is overwhelmingly into not-yet-
// emitted code) then the output side, and false if the label isn't in
// the map at all (external call, or split across an untracked
// boundary) — the "cannot follow" case callers must treat
// conservatively.
func (m *ControlFlowMap) Resolve(name string) (Pos, bool) {
	e, ok := m.Entries[name]
	if !ok {
		return Pos{}, false
	}
	if e.DefInput >= 0 {
		return Pos{Side: SideInput, Index: e.DefInput}, true
	}
	if e.DefOutput >= 0 {
		return Pos{Side: SideOutput, Index: e.DefOutput}, true
	}
	return Pos{}, false
}

// ReturnFrame is a single saved resume point for a path the forward
// walker deferred when it hit a conditional branch; LIFO, strictly
// local to one analyzer invocation per §3/§5.
type ReturnFrame struct {
	Pos Pos
}

type returnFrameStack struct {
	frames []ReturnFrame
}

func (s *returnFrameStack) push(p Pos) { s.frames = append(s.frames, ReturnFrame{Pos: p}) }

func (s *returnFrameStack) pop() (Pos, bool) {
	if len(s.frames) == 0 {
		return Pos{}, false
	}
	n := len(s.frames) - 1
	p := s.frames[n].Pos
	s.frames = s.frames[:n]
	return p, true
}

func (s *returnFrameStack) empty() bool { return len(s.frames) == 0 }
