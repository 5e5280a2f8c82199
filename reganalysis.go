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

import (
	"strings"

	"github.com/samber/lo"
)

// RegisterSet is a bitmask over d0..d7 (bits 0-6... 0-7) then a0..a6
// (sp/a7 is never a candidate), per the design note in §9.
type RegisterSet uint16

const (
	regBitD0 = 0
	regBitA0 = 8
)

var regOrder = []string{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7", "a0", "a1", "a2", "a3", "a4", "a5", "a6"}

func regBit(name string) (int, bool) {
	for i, n := range regOrder {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// NormalizeRegName strips a leading '%' and maps sp/fp aliases.
func NormalizeRegName(tok string) string {
	tok = strings.TrimPrefix(tok, "%")
	switch tok {
	case "sp":
		return "a7"
	case "fp":
		return "a6"
	default:
		return tok
	}
}

func setBit(s RegisterSet, name string) RegisterSet {
	if b, ok := regBit(name); ok {
		return s | (1 << uint(b))
	}
	return s
}

func hasBit(s RegisterSet, name string) bool {
	b, ok := regBit(name)
	return ok && s&(1<<uint(b)) != 0
}

// AllDataRegs / AllAddrRegs are the full candidate sets per class.
var (
	AllDataRegs RegisterSet = 0x00FF
	AllAddrRegs RegisterSet = 0x7F00 // a0..a6; a7/sp excluded
)

// RegClass selects which register family a query considers.
type RegClass int

const (
	ClassData RegClass = iota
	ClassAddr
)

func classMask(c RegClass) RegisterSet {
	if c == ClassAddr {
		return AllAddrRegs
	}
	return AllDataRegs
}

// Names returns the set's members in d0..d7, a0..a6 order.
func (s RegisterSet) Names() []string {
	var out []string
	for i, n := range regOrder {
		if s&(1<<uint(i)) != 0 {
			out = append(out, n)
		}
	}
	return out
}

func (s RegisterSet) Contains(name string) bool { return hasBit(s, name) }
func (s RegisterSet) Union(o RegisterSet) RegisterSet { return s | o }
func (s RegisterSet) Remove(name string) RegisterSet {
	if b, ok := regBit(name); ok {
		return s &^ (1 << uint(b))
	}
	return s
}
func (s RegisterSet) Add(name string) RegisterSet { return setBit(s, name) }

// RegisterSetFromNames builds a set from register names (without %).
func RegisterSetFromNames(names []string) RegisterSet {
	var s RegisterSet
	for _, n := range names {
		s = setBit(s, n)
	}
	return s
}

// --- per-instruction usage classification -------------------------------

// definiteWriteMnemonics overwrite their destination outright,
// independent of its prior value, per §4.4's "definite write" list.
var definiteWriteMnemonics = map[string]bool{
	"move": true, "movea": true, "moveq": true, "lea": true, "clr": true, "pea": false,
}

// readModifyWriteMnemonics both read and write their sole/last
// register operand.
var readModifyWriteMnemonics = map[string]bool{
	"add": true, "sub": true, "and": true, "or": true, "eor": true,
	"asl": true, "asr": true, "lsl": true, "lsr": true, "rol": true, "ror": true,
	"not": true, "neg": true, "ext": true, "swap": true, "addx": true, "subx": true,
	"addq": true, "subq": true, "addi": true, "subi": true, "andi": true, "ori": true, "eori": true,
	"roxl": true, "roxr": true, "tas": true,
}

// pureReadMnemonics are treated as reads of their register operands:
// compares and tests never write, and the bit operations' partial
// writes can neither free a register nor satisfy a later use, so
// counting them as reads is the safe classification for both queries.
var pureReadMnemonics = map[string]bool{
	"cmp": true, "cmpi": true, "cmpa": true, "cmpm": true, "tst": true,
	"btst": true, "bchg": true, "bclr": true, "bset": true,
}

// usage is the per-line RegisterUsage: reads and writes, plus flow
// metadata the walker needs.
type usage struct {
	reads, writes    RegisterSet
	isCall           bool // bsr/jsr
	isUncondBranch   bool // bra/jmp with a resolvable label target
	isCondBranch     bool // bcc/dbcc form
	isTerminator     bool // rts/rte
	branchName       string
	hasBranchName    bool
	unresolvedBranch bool // jsr/jmp (aN), or a label not found in the cflow map
}

func classifyUsage(l Line) usage {
	var u usage
	mnem := l.Mnemonic()
	if mnem == "" {
		return u
	}
	if mnem == "rts" || mnem == "rte" {
		u.isTerminator = true
		return u
	}
	if branchMnemonics[mnem] {
		target, ok := branchTarget(l)
		if ok {
			u.branchName = target
			u.hasBranchName = true
		} else {
			u.unresolvedBranch = true
		}
		switch mnem {
		case "bra", "jmp":
			u.isUncondBranch = true
		case "bsr", "jsr":
			u.isCall = true
			// External/indirect call target registers (e.g. jsr (%a0))
			// are reads of the addressing-mode registers, handled below
			// via the generic operand scan; by convention a call
			// clobbers the scratch-pad registers.
			u.writes = RegisterSetFromNames([]string{"d0", "d1", "a0", "a1"})
		default:
			u.isCondBranch = true
		}
	}

	ops := l.Operands()
	for i, op := range ops {
		isLast := i == len(ops)-1
		regs := registerTokenRe.FindAllString(op, -1)
		names := lo.Map(regs, func(r string, _ int) string { return NormalizeRegName(r) })

		preDec := strings.HasPrefix(strings.TrimSpace(op), "-(")
		postInc := strings.HasSuffix(strings.TrimSpace(op), ")+")
		bareReg := len(names) == 1 && strings.TrimSpace(op) == "%"+names[0]

		switch {
		case preDec || postInc:
			// Auto pre-decrement/post-increment reads then writes the
			// address register; any other register mentioned (index)
			// is a pure read.
			for j, n := range names {
				if j == 0 {
					u.reads = u.reads.Add(n)
					u.writes = u.writes.Add(n)
				} else {
					u.reads = u.reads.Add(n)
				}
			}
		case bareReg && isLast && definiteWriteMnemonics[mnem]:
			// Definite-write destination register, e.g. move.l #v,dN.
			// A self-move (src == dst) is a no-op, not a write.
			if !(len(ops) == 2 && sameRegisterOperand(ops[0], op)) {
				u.writes = u.writes.Add(names[0])
			}
		case bareReg && isLast && pureReadMnemonics[mnem]:
			u.reads = u.reads.Add(names[0])
		case bareReg && isLast && readModifyWriteMnemonics[mnem]:
			sameOperand := len(ops) >= 2 && sameRegisterOperand(ops[0], op)
			if sameOperand && (mnem == "sub" || mnem == "eor") {
				// "a same-operand sub/eor" is a definite write (clears
				// the register) per §4.4.
				u.writes = u.writes.Add(names[0])
			} else {
				u.reads = u.reads.Add(names[0])
				u.writes = u.writes.Add(names[0])
			}
		default:
			for _, n := range names {
				u.reads = u.reads.Add(n)
			}
		}
	}

	if m := reMovemPop.FindStringSubmatch(l.Code()); m != nil {
		for _, n := range splitMovemList(m[3]) {
			u.writes = u.writes.Add(n)
		}
		u.reads = u.reads.Add(NormalizeRegName(m[2]))
		u.writes = u.writes.Add(NormalizeRegName(m[2]))
	}
	if m := reMovemPush.FindStringSubmatch(l.Code()); m != nil {
		for _, n := range splitMovemList(m[2]) {
			u.reads = u.reads.Add(n)
		}
		u.reads = u.reads.Add(NormalizeRegName(m[3]))
		u.writes = u.writes.Add(NormalizeRegName(m[3]))
	}
	return u
}

func sameRegisterOperand(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// splitMovemList splits a symbolic movem register list into bare
// register names, accepting both the `%`-prefixed form gcc emits and
// unprefixed names (sp/fp aliases normalize like everywhere else).
func splitMovemList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, NormalizeRegName(part))
	}
	return out
}

// --- the shared forward walker ------------------------------------------

// dualBuffer is the (already-emitted output, not-yet-consumed input)
// pair the analyzers scan, per §9's "two slices plus a position".
type dualBuffer struct {
	output, input []Line
}

func (b dualBuffer) at(p Pos) Line {
	if p.Side == SideOutput {
		return b.output[p.Index]
	}
	return b.input[p.Index]
}

func (b dualBuffer) end(p Pos) bool {
	if p.Side == SideOutput {
		return p.Index >= len(b.output)
	}
	return p.Index >= len(b.input)
}

// advance returns the next sequential position after p, crossing from
// the output half into the input half at the boundary.
func (b dualBuffer) advance(p Pos) Pos {
	if p.Side == SideOutput {
		if p.Index+1 < len(b.output) {
			return Pos{Side: SideOutput, Index: p.Index + 1}
		}
		return Pos{Side: SideInput, Index: 0}
	}
	return Pos{Side: SideInput, Index: p.Index + 1}
}

// walkMode selects the conservative-default behavior for ambiguous
// control flow, per §7's error-handling table: find-free treats an
// unresolved branch as "may reach anywhere" (marks live candidates
// used); used-later treats it as a dead end (stops that path, no
// evidence either way).
type walkMode int

const (
	modeFindFree walkMode = iota
	modeUsedLater
)

// forwardWalk explores every reachable path from start, classifying
// each still-undecided candidate register in `pending` as it goes.
// freed accumulates registers that reached an overwrite before any
// read on some explored path; usedFirst accumulates registers that
// were read before any write on some explored path. A visited-label
// set (keyed by position) breaks loops, per §4.4/§9.
func forwardWalk(buf dualBuffer, cfm *ControlFlowMap, start Pos, pending RegisterSet, mode walkMode) (freed, usedFirst RegisterSet) {
	var stack returnFrameStack
	visited := map[Pos]bool{}
	cur := start

	for {
		if pending == 0 {
			if stack.empty() {
				return
			}
			p, _ := stack.pop()
			cur = p
			continue
		}
		if buf.end(cur) {
			// A path that runs off the end of the function without
			// reading a candidate completes with it unread.
			if mode == modeFindFree {
				freed |= pending
			}
			if stack.empty() {
				return
			}
			p, _ := stack.pop()
			cur = p
			continue
		}
		if visited[cur] {
			if stack.empty() {
				return
			}
			p, _ := stack.pop()
			cur = p
			continue
		}
		visited[cur] = true

		line := buf.at(cur)
		if line.IsBlank() || line.IsComment() || line.IsDirective() || line.IsNeutralized() || line.Pinned {
			cur = buf.advance(cur)
			continue
		}
		if _, isLabel := line.LabelName(); isLabel && line.Mnemonic() == "" {
			cur = buf.advance(cur)
			continue
		}

		u := classifyUsage(line)

		// Apply reads first: any pending candidate that is read here
		// and not already resolved as written-first becomes usedFirst.
		readNow := u.reads & pending
		usedFirst |= readNow
		pending &^= readNow

		writeNow := u.writes & pending
		freed |= writeNow
		pending &^= writeNow

		if u.isTerminator {
			// Reaching rts/rte without a read completes the path; the
			// candidate's value was never needed along it. usedFirst
			// still vetoes the candidate if any other path reads it.
			if mode == modeFindFree {
				freed |= pending
			}
			if stack.empty() {
				return
			}
			p, _ := stack.pop()
			cur = p
			continue
		}

		if u.unresolvedBranch {
			if mode == modeFindFree {
				usedFirst |= pending
				pending = 0
				return
			}
			// modeUsedLater: this path dies without evidence.
			if stack.empty() {
				return
			}
			p, _ := stack.pop()
			cur = p
			continue
		}

		if u.hasBranchName {
			target, ok := cfm.Resolve(u.branchName)
			if !ok {
				if mode == modeFindFree {
					usedFirst |= pending
					pending = 0
					return
				}
				if stack.empty() {
					return
				}
				p, _ := stack.pop()
				cur = p
				continue
			}
			if u.isUncondBranch {
				cur = target
				continue
			}
			if u.isCondBranch {
				// Explore the target path now; defer the fall-through.
				stack.push(buf.advance(cur))
				cur = target
				continue
			}
		}

		cur = buf.advance(cur)
	}
}

// FindFreeAfterUse returns, in d0..d7 then a0..a6 order, every
// register of the given class not in excludes that is free for use at
// the query point: overwritten before read on at least one complete
// path. output/input are the dual buffer at the query point.
func FindFreeAfterUse(output, input []Line, cfm *ControlFlowMap, class RegClass, excludes RegisterSet) []string {
	candidates := classMask(class) &^ excludes
	if candidates == 0 {
		return nil
	}
	start := Pos{Side: SideInput, Index: 0}
	if len(input) == 0 {
		start = Pos{Side: SideOutput, Index: len(output)}
	}
	buf := dualBuffer{output: output, input: input}
	freed, usedFirst := forwardWalk(buf, cfm, start, candidates, modeFindFree)
	free := freed &^ usedFirst
	return free.Names()
}

// UsedBeforeOverwrittenAfter reports whether reg is read on some path
// from the query point before any definite write to it.
func UsedBeforeOverwrittenAfter(output, input []Line, cfm *ControlFlowMap, reg string) bool {
	pending := RegisterSetFromNames([]string{reg})
	start := Pos{Side: SideInput, Index: 0}
	if len(input) == 0 {
		start = Pos{Side: SideOutput, Index: len(output)}
	}
	buf := dualBuffer{output: output, input: input}
	_, usedFirst := forwardWalk(buf, cfm, start, pending, modeUsedLater)
	return usedFirst.Contains(reg)
}

// LowWordOnlyAfter reports whether every subsequent access to data
// register reg, up to a full-width overwrite, reads at most its low
// word. Unlike the path-exploring queries this is a straight-line
// scan: any label, branch, call, or line it cannot classify ends the
// scan with the conservative answer false. It backs the immediate-
// narrowing rewrites, which only need to know the high word is dead.
func LowWordOnlyAfter(output, input []Line, reg string) bool {
	buf := dualBuffer{output: output, input: input}
	cur := Pos{Side: SideInput, Index: 0}
	if len(input) == 0 {
		cur = Pos{Side: SideOutput, Index: len(output)}
	}
	for !buf.end(cur) {
		l := buf.at(cur)
		if l.IsBlank() || l.IsComment() || l.IsDirective() || l.IsNeutralized() {
			cur = buf.advance(cur)
			continue
		}
		if _, isLabel := l.LabelName(); isLabel {
			return false
		}
		mnem := l.Mnemonic()
		if mnem == "" || branchMnemonics[mnem] || mnem == "rts" || mnem == "rte" {
			return false
		}
		u := classifyUsage(l)
		target := RegisterSetFromNames([]string{reg})
		fullWidth := l.Size() == SizeLong || mnem == "moveq"
		if u.reads&target != 0 {
			// A read through an addressing mode (base or index) or at
			// long width observes the high word.
			if fullWidth || l.Size() == SizeUnspecified {
				return false
			}
			for _, op := range l.Operands() {
				if strings.Contains(op, "(") && strings.Contains(op, "%"+reg) {
					return false
				}
			}
		}
		if u.writes&target != 0 && u.reads&target == 0 && fullWidth {
			return true
		}
		cur = buf.advance(cur)
	}
	return false
}

// neutralizeTrailing comments out the last n lines of output so a
// query doesn't spuriously count them as reads/writes, and returns a
// restore function. This is the scoped acquisition with guaranteed
// release described in §5: callers must `defer restore()` so the
// buffer is restored on every exit path, including "no candidate
// found".
func neutralizeTrailing(output []Line, n int) (restore func()) {
	if n <= 0 || n > len(output) {
		return func() {}
	}
	start := len(output) - n
	saved := make([]Line, n)
	copy(saved, output[start:])
	for i := start; i < len(output); i++ {
		if !strings.HasPrefix(output[i].Text, "#") {
			output[i].Text = "#" + output[i].Text
		}
	}
	return func() {
		copy(output[start:], saved)
	}
}
