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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// MultiLineRules is the §4.6(a) table, examined for k = N, N-1, ..., 2
// trailing emitted lines per driver pass.
var MultiLineRules = []MultiLineRule{
	ruleRegListPushCoalesce,
	ruleRegListPopCoalesce,
	ruleStrideLoadCoalesce,
	ruleRangeTestByAddressCompare,
	ruleTailRecursionChain4,
	ruleTailRecursionChain3,
	ruleCallReturnToJump,
	rulePeaSubstitution,
	ruleLoadCallToDirect,
	ruleMoveqSwapClrPair,
	ruleArrayIndexCollapse,
	ruleAlternatePushAdjust,
	ruleRedundantClearBeforeMove,
	ruleBsetBeqToTasBpl,
}

var reMovePreDec = regexp.MustCompile(`^move\.([bwl])\s+%(d[0-7]|a[0-6]),\s*-\(%(a[0-6]|sp)\)$`)
var reMovePostInc = regexp.MustCompile(`^move\.([bwl])\s+\(%(a[0-6]|sp)\)\+,\s*%(d[0-7]|a[0-6])$`)

// ruleRegListPushCoalesce: k consecutive `move.s xN,-(aN)` with
// strictly decreasing register order become one `movem.s regs,-(aN)`.
var ruleRegListPushCoalesce = MultiLineRule{
	Name: "reg-list-push-coalesce",
	Min:  2, Max: 6,
	Gate: func(cfg Config) bool { return cfg.UseFabri1983MovemOptimizations },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < window {
			return nil, 0, false
		}
		tail := output[len(output)-window:]
		var size string
		var base string
		var regs []string
		lastRank := -1
		for _, l := range tail {
			m := reMovePreDec.FindStringSubmatch(l.Code())
			if m == nil || l.Pinned || m[1] == "b" {
				return nil, 0, false
			}
			if size == "" {
				size = m[1]
				base = m[3]
			} else if m[1] != size || m[3] != base {
				return nil, 0, false
			}
			rank := regRank(m[2])
			if lastRank >= 0 && rank >= lastRank {
				return nil, 0, false
			}
			lastRank = rank
			regs = append(regs, m[2])
		}
		if len(regs) < 2 {
			return nil, 0, false
		}
		text := fmt.Sprintf("\tmovem.%s %s,-(%%%s)", size, movemListString(regs, true), base)
		return []Line{{Text: text, Origin: tail[0].Origin}}, window, true
	},
}

// ruleRegListPopCoalesce: the dual of the above for `(aN)+,xN`. A
// two-register long pop from (sp)+ is deliberately not coalesced: two
// plain moves execute faster there, and the two-pop-expand structural
// rule emits exactly that form.
var ruleRegListPopCoalesce = MultiLineRule{
	Name: "reg-list-pop-coalesce",
	Min:  2, Max: 6,
	Gate: func(cfg Config) bool { return cfg.UseFabri1983MovemOptimizations },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < window {
			return nil, 0, false
		}
		tail := output[len(output)-window:]
		var size string
		var base string
		var regs []string
		lastRank := -1
		for i, l := range tail {
			m := reMovePostInc.FindStringSubmatch(l.Code())
			if m == nil || l.Pinned || m[1] == "b" {
				return nil, 0, false
			}
			if i == 0 {
				size = m[1]
				base = m[2]
			} else if m[1] != size || m[2] != base {
				return nil, 0, false
			}
			rank := regRank(m[3])
			if lastRank >= 0 && rank <= lastRank {
				return nil, 0, false
			}
			lastRank = rank
			regs = append(regs, m[3])
		}
		if len(regs) < 2 {
			return nil, 0, false
		}
		if len(regs) == 2 && base == "sp" && size == "l" {
			return nil, 0, false
		}
		text := fmt.Sprintf("\tmovem.%s (%%%s)+,%s", size, base, movemListString(regs, false))
		return []Line{{Text: text, Origin: tail[0].Origin}}, window, true
	},
}

var reMoveLoad = regexp.MustCompile(`^move\.([bwl])\s+(-?\d+)\(%(a[0-6])\),\s*%(d[0-7]|a[0-6])$`)

type strideEntry struct {
	disp int
	reg  string
}

// ruleStrideLoadCoalesce: k `move.s d_i(aN),xN_i` with constant stride
// and movem-compatible register order become one
// `movem.s d_1(aN),reglist`. The relaxed variant tolerates up to 3
// stride gaps: each gap slot is filled with a free register whose rank
// orders between its neighbors, obtained from the register analyzer
// and committed through the stack-frame maintainer when callee-saved.
var ruleStrideLoadCoalesce = MultiLineRule{
	Name: "stride-load-coalesce",
	Min:  2, Max: 6,
	Gate: func(cfg Config) bool { return cfg.UseFabri1983MovemOptimizations },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < window {
			return nil, 0, false
		}
		tail := output[len(output)-window:]
		var size string
		var base string
		var entries []strideEntry
		lastRank := -1
		for i, l := range tail {
			m := reMoveLoad.FindStringSubmatch(l.Code())
			if m == nil || l.Pinned || m[1] == "b" {
				return nil, 0, false
			}
			disp, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, 0, false
			}
			if i == 0 {
				size = m[1]
				base = m[3]
			} else if m[1] != size || m[3] != base {
				return nil, 0, false
			}
			rank := regRank(m[4])
			if lastRank >= 0 && rank <= lastRank {
				return nil, 0, false
			}
			lastRank = rank
			entries = append(entries, strideEntry{disp: disp, reg: m[4]})
		}
		if len(entries) < 2 || entries[0].reg == base {
			return nil, 0, false
		}

		strideB := parseSize(size).Bytes()
		totalGaps := 0
		for i := 1; i < len(entries); i++ {
			delta := entries[i].disp - entries[i-1].disp
			if delta <= 0 || delta%strideB != 0 {
				return nil, 0, false
			}
			totalGaps += delta/strideB - 1
		}
		if totalGaps > 3 {
			return nil, 0, false
		}

		regs := []string{entries[0].reg}
		if totalGaps > 0 {
			if !ctx.Config.UseFindFreeAfterUse {
				return nil, 0, false
			}
			fill, ok := fillStrideGaps(ctx, output[:len(output)-window], input, entries, strideB)
			if !ok {
				return nil, 0, false
			}
			regs = fill
		} else {
			for _, e := range entries[1:] {
				regs = append(regs, e.reg)
			}
		}

		text := fmt.Sprintf("\tmovem.%s %d(%%%s),%s", size, entries[0].disp, base, movemListString(regs, false))
		return []Line{{Text: text, Origin: tail[0].Origin}}, window, true
	},
}

// fillStrideGaps assigns a free register to every skipped stride slot,
// keeping the movem list's rank order strictly increasing. Returns the
// complete register list in slot order, or false when some slot has no
// admissible free register.
func fillStrideGaps(ctx *RuleContext, output, input []Line, entries []strideEntry, strideB int) ([]string, bool) {
	cfm := cflowAt(output, input)
	used := RegisterSetFromNames(lo.Map(entries, func(e strideEntry, _ int) string { return e.reg }))
	freeNames := append(
		FindFreeAfterUse(output, input, cfm, ClassData, used),
		FindFreeAfterUse(output, input, cfm, ClassAddr, used)...)
	freeRanks := map[int]string{}
	for _, n := range freeNames {
		if ctx.CanCommitScratch(n) {
			freeRanks[regRank(n)] = n
		}
	}

	regs := []string{entries[0].reg}
	prevRank := regRank(entries[0].reg)
	var borrowed []string
	for i := 1; i < len(entries); i++ {
		gaps := (entries[i].disp-entries[i-1].disp)/strideB - 1
		nextRank := regRank(entries[i].reg)
		for g := 0; g < gaps; g++ {
			picked := ""
			for r := prevRank + 1; r < nextRank; r++ {
				if n, ok := freeRanks[r]; ok {
					picked = n
					prevRank = r
					delete(freeRanks, r)
					break
				}
			}
			if picked == "" {
				return nil, false
			}
			regs = append(regs, picked)
			borrowed = append(borrowed, picked)
		}
		regs = append(regs, entries[i].reg)
		prevRank = nextRank
	}
	for _, r := range borrowed {
		ctx.RequestScratchCommit(r)
	}
	return regs, true
}

var reCmpLowerBound = regexp.MustCompile(`^cmp\.l\s+#-32768,\s*%([ad][0-7])$`)
var reCmpUpperBound = regexp.MustCompile(`^cmp\.l\s+#32767,\s*%([ad][0-7])$`)
var reBlt = regexp.MustCompile(`^blt\s+(\S+)$`)
var reBgt = regexp.MustCompile(`^bgt\s+(\S+)$`)

// ruleRangeTestByAddressCompare implements the word-range test
// collapse: `cmp.l #-32768,xN; blt lbl; cmp.l #32767,xN; bgt lbl`
// becomes `cmpa.w xN,xN; bne lbl` — cmpa.w sign-extends its word
// source, so the comparison is equal iff xN already fits a signed
// word. When xN is an address register this is the literal rewrite;
// for a data register a free scratch address register is borrowed from
// the register analyzer to host the compare.
var ruleRangeTestByAddressCompare = MultiLineRule{
	Name: "range-test-address-compare",
	Min:  4, Max: 4,
	Gate: func(cfg Config) bool { return cfg.UseFabri1983Optimizations },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < 4 {
			return nil, 0, false
		}
		tail := output[len(output)-4:]
		m1 := reCmpLowerBound.FindStringSubmatch(tail[0].Code())
		m2 := reBlt.FindStringSubmatch(tail[1].Code())
		m3 := reCmpUpperBound.FindStringSubmatch(tail[2].Code())
		m4 := reBgt.FindStringSubmatch(tail[3].Code())
		if m1 == nil || m2 == nil || m3 == nil || m4 == nil {
			return nil, 0, false
		}
		if m1[1] != m3[1] || m2[1] != m4[1] || anyPinned(tail) {
			return nil, 0, false
		}
		reg := m1[1]
		lbl := m2[1]
		if isAddrReg(reg) {
			return []Line{
				{Text: fmt.Sprintf("\tcmpa.w %%%s,%%%s", reg, reg), Origin: tail[0].Origin},
				{Text: fmt.Sprintf("\tbne %s", lbl), Origin: tail[1].Origin},
			}, 4, true
		}
		if !ctx.Config.UseFindFreeAfterUse {
			return nil, 0, false
		}
		restore := neutralizeTrailing(output, 4)
		cfm := cflowAt(output, input)
		free := FindFreeAfterUse(output, input, cfm, ClassAddr, 0)
		restore()
		scratch := ""
		for _, f := range free {
			if ctx.CanCommitScratch(f) {
				scratch = f
				break
			}
		}
		if scratch == "" {
			return nil, 0, false
		}
		ctx.RequestScratchCommit(scratch)
		return []Line{
			{Text: fmt.Sprintf("\tmove.l %%%s,%%%s", reg, scratch), Origin: tail[0].Origin},
			{Text: fmt.Sprintf("\tcmpa.w %%%s,%%%s", scratch, scratch), Origin: tail[0].Origin},
			{Text: fmt.Sprintf("\tbne %s", lbl), Origin: tail[1].Origin},
		}, 4, true
	},
}

func anyPinned(ls []Line) bool {
	for _, l := range ls {
		if l.Pinned {
			return true
		}
	}
	return false
}

var reBsr = regexp.MustCompile(`^bsr\s+(\S+)$`)

func tailRecursionMatch(output []Line, calls int) ([]Line, int, bool) {
	window := calls + 1
	if len(output) < window {
		return nil, 0, false
	}
	tail := output[len(output)-window:]
	if tail[calls].Mnemonic() != "rts" || anyPinned(tail) {
		return nil, 0, false
	}
	var targets []string
	for i := 0; i < calls; i++ {
		m := reBsr.FindStringSubmatch(tail[i].Code())
		if m == nil {
			return nil, 0, false
		}
		targets = append(targets, m[1])
	}
	var out []Line
	for i := calls - 1; i >= 1; i-- {
		out = append(out, Line{Text: fmt.Sprintf("\tpea %s", targets[i]), Origin: tail[i].Origin})
	}
	out = append(out, Line{Text: fmt.Sprintf("\tbra %s", targets[0]), Origin: tail[0].Origin})
	return out, window, true
}

// ruleTailRecursionChain4: `bsr f1; bsr f2; bsr f3; rts` becomes
// `pea f3; pea f2; bra f1` — each pea plants the next call's return
// address, so the chain unwinds through plain jumps.
var ruleTailRecursionChain4 = MultiLineRule{
	Name: "tail-recursion-chain-3call",
	Min:  4, Max: 4,
	Gate: func(cfg Config) bool { return cfg.UseFabri1983Optimizations },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		return tailRecursionMatch(output, 3)
	},
}

// ruleTailRecursionChain3: the two-call form, `bsr f1; bsr f2; rts`
// becomes `pea f2; bra f1`.
var ruleTailRecursionChain3 = MultiLineRule{
	Name: "tail-recursion-chain-2call",
	Min:  3, Max: 3,
	Gate: func(cfg Config) bool { return cfg.UseFabri1983Optimizations },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		return tailRecursionMatch(output, 2)
	},
}

var reCallLabel = regexp.MustCompile(`^(jsr|bsr)\s+([A-Za-z_.$][A-Za-z0-9_.$]*)$`)

// ruleCallReturnToJump: a call immediately followed by rts becomes a
// plain jump — the callee's own rts returns straight to our caller.
var ruleCallReturnToJump = MultiLineRule{
	Name: "call-return-to-jump",
	Min:  2, Max: 2,
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < 2 {
			return nil, 0, false
		}
		tail := output[len(output)-2:]
		m := reCallLabel.FindStringSubmatch(tail[0].Code())
		if m == nil || tail[1].Mnemonic() != "rts" || anyPinned(tail) {
			return nil, 0, false
		}
		jump := "jmp"
		if m[1] == "bsr" {
			jump = "bra"
		}
		return []Line{{Text: fmt.Sprintf("\t%s %s", jump, m[2]), Origin: tail[0].Origin}}, 2, true
	},
}

var reMoveLoadAny = regexp.MustCompile(`^move\.l\s+(.+)\(%(a[0-6])\),\s*%(a[0-6])$`)
var reJmpIndirect = regexp.MustCompile(`^jmp\s+\(%(a[0-6])\)$`)

// rulePeaSubstitution: `move.l disp(aN),aM; jmp (aM)` becomes
// `jmp disp(aN)`. When aM was a movem-pushed callee-saved register and
// the used-before-overwritten query (gated on UseFindNotUsed) confirms
// no further read reaches it, it is also retired from the function's
// prologue/epilogue pair — which means the replacement spans back to
// the function start, not just the two-line window that triggered it.
var rulePeaSubstitution = MultiLineRule{
	Name: "load-jump-to-direct-jump",
	Min:  2, Max: 2,
	Gate:       func(cfg Config) bool { return cfg.UseReplaceLoadSubroutineIntoAnByDirectCall },
	Aggressive: true,
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < 2 {
			return nil, 0, false
		}
		tail := output[len(output)-2:]
		m1 := reMoveLoadAny.FindStringSubmatch(tail[0].Code())
		m2 := reJmpIndirect.FindStringSubmatch(tail[1].Code())
		if m1 == nil || m2 == nil || anyPinned(tail) || m1[3] != m2[1] {
			return nil, 0, false
		}
		disp, base, reg := m1[1], m1[2], m1[3]
		folded := append(append([]Line{}, output[:len(output)-2]...), Line{Text: fmt.Sprintf("\tjmp %s(%%%s)", disp, base), Origin: tail[0].Origin})

		if ctx.Config.UseFindNotUsed && !scratchPad[reg] {
			fr := analyzeFrame(folded, ctx.FuncStart, len(folded))
			if lo.Contains(fr.pushRegs, reg) && !popPendingInInput(input, reg) {
				cfm := cflowAt(folded, input)
				if !UsedBeforeOverwrittenAfter(folded, input, cfm, reg) {
					retired := RemoveRegister(folded, ctx.FuncStart, len(folded), reg)
					return retired[ctx.FuncStart:], len(output) - ctx.FuncStart, true
				}
			}
		}
		return folded[len(folded)-1:], 2, true
	},
}

// popPendingInInput reports whether an epilogue pop restoring reg
// still sits in the not-yet-consumed rest of the function. Retiring
// reg from the prologue while such a pop remains would unbalance the
// stack, so the caller must keep the frame intact in that case.
func popPendingInInput(input []Line, reg string) bool {
	for _, l := range input {
		if reSizeDirective.MatchString(l.Text) {
			return false
		}
		if m := reMovemPop.FindStringSubmatch(l.Code()); m != nil && lo.Contains(splitMovemList(m[3]), reg) {
			return true
		}
	}
	return false
}

var reLoadCallTarget = regexp.MustCompile(`^(?:move\.l\s+#|lea\s+)([A-Za-z_.$][A-Za-z0-9_.$]*),\s*%(a[0-6])$`)
var reJsrIndirect = regexp.MustCompile(`^jsr\s+\(%(a[0-6])\)$`)

// ruleLoadCallToDirect: `move.l #f,aN; jsr (aN)` (or the lea form)
// becomes `jsr f`, provided the used-before-overwritten query proves
// no later code relies on aN still holding f. Aggressive: the query is
// a hint, and an alternate reaching definition of aN on an unexplored
// path would disagree.
var ruleLoadCallToDirect = MultiLineRule{
	Name: "load-call-to-direct-call",
	Min:  2, Max: 2,
	Gate:       func(cfg Config) bool { return cfg.UseReplaceLoadSubroutineIntoAnByDirectCall && cfg.UseFindNotUsed },
	Aggressive: true,
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < 2 {
			return nil, 0, false
		}
		tail := output[len(output)-2:]
		m1 := reLoadCallTarget.FindStringSubmatch(tail[0].Code())
		m2 := reJsrIndirect.FindStringSubmatch(tail[1].Code())
		if m1 == nil || m2 == nil || anyPinned(tail) || m1[2] != m2[1] {
			return nil, 0, false
		}
		sym, reg := m1[1], m1[2]
		folded := append(append([]Line{}, output[:len(output)-2]...), Line{Text: fmt.Sprintf("\tjsr %s", sym), Origin: tail[0].Origin})
		cfm := cflowAt(folded, input)
		if UsedBeforeOverwrittenAfter(folded, input, cfm, reg) {
			return nil, 0, false
		}
		return folded[len(folded)-1:], 2, true
	},
}

var reMoveqZero = regexp.MustCompile(`^moveq\s+#0,\s*%(d[0-7])$`)
var reMoveW = regexp.MustCompile(`^move\.w\s+(.+),\s*%(d[0-7])$`)
var reSwap = regexp.MustCompile(`^swap\s+%(d[0-7])$`)
var reClrW = regexp.MustCompile(`^clr\.w\s+%(d[0-7])$`)

// ruleMoveqSwapClrPair: `moveq #0,dN / move.w src1,dN / swap dN /
// clr.w dN / move.w src2,dN` drops the now-redundant zeroing moveq and
// clr.w, keeping `move.w src1,dN; swap dN; move.w src2,dN`.
var ruleMoveqSwapClrPair = MultiLineRule{
	Name: "moveq-swap-clr-pair",
	Min:  5, Max: 5,
	Gate: func(cfg Config) bool { return cfg.UseFabri1983Optimizations },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < 5 {
			return nil, 0, false
		}
		tail := output[len(output)-5:]
		m1 := reMoveqZero.FindStringSubmatch(tail[0].Code())
		m2 := reMoveW.FindStringSubmatch(tail[1].Code())
		m3 := reSwap.FindStringSubmatch(tail[2].Code())
		m4 := reClrW.FindStringSubmatch(tail[3].Code())
		m5 := reMoveW.FindStringSubmatch(tail[4].Code())
		if m1 == nil || m2 == nil || m3 == nil || m4 == nil || m5 == nil || anyPinned(tail) {
			return nil, 0, false
		}
		reg := m1[1]
		if m2[2] != reg || m3[1] != reg || m4[1] != reg || m5[2] != reg {
			return nil, 0, false
		}
		return []Line{tail[1], tail[2], tail[4]}, 5, true
	},
}

var reMoveWCopy = regexp.MustCompile(`^move\.w\s+%(d[0-7]),\s*%(d[0-7])$`)
var reAddWDouble = regexp.MustCompile(`^add\.w\s+%(d[0-7]),\s*%(d[0-7])$`)
var reLeaPC = regexp.MustCompile(`^lea\s+([^,]+),\s*%(a[0-6])$`)
var reMoveIndexed = regexp.MustCompile(`^move\.([bwl])\s+\(%(a[0-6]),\s*%(d[0-7])\.w\),\s*%(d[0-7])$`)

// ruleArrayIndexCollapse collapses the idiom
//
//	move.w dN,dM ; add.w dM,dM ; lea BASE,aN ; move.s (aN,dM.w),dP
//
// (a doubled copy used purely as a scale-by-2 index) onto
// `add.w dN,dN ; lea BASE,aN ; move.s (aN,dN.w),dP`, reusing dN in
// place of the scratch dM, per the "base + dN*scale" idiom family.
// Only fires when dN may be doubled in place, i.e. its pre-doubling
// value has no later reader.
var ruleArrayIndexCollapse = MultiLineRule{
	Name: "array-index-scale2-collapse",
	Min:  4, Max: 4,
	Gate: func(cfg Config) bool { return cfg.UseFabri1983Optimizations && cfg.UseFindNotUsed },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < 4 {
			return nil, 0, false
		}
		tail := output[len(output)-4:]
		m1 := reMoveWCopy.FindStringSubmatch(tail[0].Code())
		m2 := reAddWDouble.FindStringSubmatch(tail[1].Code())
		m3 := reLeaPC.FindStringSubmatch(tail[2].Code())
		m4 := reMoveIndexed.FindStringSubmatch(tail[3].Code())
		if m1 == nil || m2 == nil || m3 == nil || m4 == nil || anyPinned(tail) {
			return nil, 0, false
		}
		dn, dm, base, an := m1[1], m1[2], m3[1], m3[2]
		if dn == dm || m2[1] != dm || m2[2] != dm || m4[2] != an || m4[3] != dm || m4[4] == dn {
			return nil, 0, false
		}
		cfm := cflowAt(output[:len(output)-4], input)
		if UsedBeforeOverwrittenAfter(output[:len(output)-4], input, cfm, dn) {
			return nil, 0, false
		}
		return []Line{
			{Text: fmt.Sprintf("\tadd.w %%%s,%%%s", dn, dn), Origin: tail[1].Origin},
			{Text: fmt.Sprintf("\tlea %s,%%%s", base, an), Origin: tail[2].Origin},
			{Text: fmt.Sprintf("\tmove.%s (%%%s,%%%s.w),%%%s", m4[1], an, dn, m4[4]), Origin: tail[3].Origin},
		}, 4, true
	},
}

var rePushWord = regexp.MustCompile(`^move\.w\s+(.+),\s*-\(%sp\)$`)
var reSubSp = regexp.MustCompile(`^sub(?:q)?\.[wl]\s+#2,\s*%sp$`)

// ruleAlternatePushAdjust compresses repeating
// `move.w vI,-(sp); sub #2,sp` pairs (a word push padded to a long
// slot) into one stack adjustment and `d(sp)` stores at the same
// final offsets. Values that themselves address through sp are left
// alone: their meaning depends on the incremental sp movement.
var ruleAlternatePushAdjust = MultiLineRule{
	Name: "alternate-push-adjust-compaction",
	Min:  4, Max: 6,
	Gate: func(cfg Config) bool { return cfg.UseAggressiveCompactTwoWordsPush },
	Aggressive: true,
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if window%2 != 0 || len(output) < window {
			return nil, 0, false
		}
		tail := output[len(output)-window:]
		pairs := window / 2
		var values []string
		for i := 0; i < pairs; i++ {
			pushLine := tail[2*i]
			adjLine := tail[2*i+1]
			m := rePushWord.FindStringSubmatch(pushLine.Code())
			if m == nil || !reSubSp.MatchString(adjLine.Code()) || pushLine.Pinned || adjLine.Pinned {
				return nil, 0, false
			}
			v := strings.TrimSpace(m[1])
			if strings.Contains(v, "%sp") {
				return nil, 0, false
			}
			values = append(values, v)
		}
		total := pairs * 4
		var out []Line
		if total <= 8 {
			out = append(out, Line{Text: fmt.Sprintf("\tsubq.w #%d,%%sp", total), Origin: tail[0].Origin})
		} else {
			out = append(out, Line{Text: fmt.Sprintf("\tlea -%d(%%sp),%%sp", total), Origin: tail[0].Origin})
		}
		offset := total - 2
		for _, v := range values {
			out = append(out, Line{Text: fmt.Sprintf("\tmove.w %s,%d(%%sp)", v, offset), Origin: tail[0].Origin})
			offset -= 4
		}
		return out, window, true
	},
}

var reBsetSign = regexp.MustCompile(`^bset(?:\.b)?\s+#7,\s*([^#].*)$`)
var reBeq = regexp.MustCompile(`^beq\s+(\S+)$`)

// ruleBsetBeqToTasBpl: `bset.b #7,mem; beq lbl` becomes
// `tas mem; bpl lbl` — tas performs the same set-sign-bit
// read-modify-write indivisibly and reports the old bit in N, so the
// zero test on the old bit becomes a plus test. Gated on
// UseTasOnIOMemory: tas's locked bus cycle is hazardous on
// memory-mapped I/O that doesn't decode it.
var ruleBsetBeqToTasBpl = MultiLineRule{
	Name: "bset-beq-to-tas-bpl",
	Min:  2, Max: 2,
	Gate: func(cfg Config) bool { return cfg.UseTasOnIOMemory },
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < 2 {
			return nil, 0, false
		}
		tail := output[len(output)-2:]
		m1 := reBsetSign.FindStringSubmatch(tail[0].Code())
		m2 := reBeq.FindStringSubmatch(tail[1].Code())
		if m1 == nil || m2 == nil || anyPinned(tail) {
			return nil, 0, false
		}
		mem := strings.TrimSpace(m1[1])
		if IsRegister(mem) {
			return nil, 0, false
		}
		return []Line{
			{Text: fmt.Sprintf("\ttas %s", mem), Origin: tail[0].Origin},
			{Text: fmt.Sprintf("\tbpl %s", m2[1]), Origin: tail[1].Origin},
		}, 2, true
	},
}

var reClrReg = regexp.MustCompile(`^clr\.([bwl])\s+%([ad][0-7])$`)
var reMoveToReg = regexp.MustCompile(`^move\.([bwl])\s+(.+),\s*%([ad][0-7])$`)

// ruleRedundantClearBeforeMove: `clr.sz xN` immediately followed by a
// `move.sz2 val,xN` that fully overwrites xN (sz2 at least as wide as
// sz) makes the clear dead. Aggressive because it's only sound when
// nothing between the two lines (here: nothing, they're adjacent) can
// observe the cleared value — a subtler in-between read would be
// missed by a single-window check.
var ruleRedundantClearBeforeMove = MultiLineRule{
	Name:       "redundant-clear-before-move",
	Min:        2, Max: 2,
	Gate:       func(cfg Config) bool { return cfg.UseAggressiveAvoidClearBeforeMoveWord },
	Aggressive: true,
	Match: func(ctx *RuleContext, output, input []Line, window int) ([]Line, int, bool) {
		if len(output) < 2 {
			return nil, 0, false
		}
		tail := output[len(output)-2:]
		m1 := reClrReg.FindStringSubmatch(tail[0].Code())
		m2 := reMoveToReg.FindStringSubmatch(tail[1].Code())
		if m1 == nil || m2 == nil || anyPinned(tail) || m1[2] != m2[3] {
			return nil, 0, false
		}
		if parseSize(m2[1]).Bytes() < parseSize(m1[1]).Bytes() {
			return nil, 0, false
		}
		return []Line{tail[1]}, 2, true
	},
}
