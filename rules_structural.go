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
)

// StructuralRules is the §4.6(c) table: movem simplification runs on
// every pass; branch shortening only runs on the second, per
// SecondPassOnly.
var StructuralRules = []StructuralRule{
	ruleMovemSingleDegenerate,
	ruleMovemTwoPopExpand,
	ruleBranchShortening,
}

var reMovemPushLine = regexp.MustCompile(`^movem\.([wl])\s+([^,]+),\s*-\(%(a[0-6]|sp)\)$`)
var reMovemPopLine = regexp.MustCompile(`^movem\.([wl])\s+\(%(a[0-6]|sp)\)\+,\s*(.+)$`)
var reMovemLoadLine = regexp.MustCompile(`^movem\.([wl])\s+(-?\d*)\(%(a[0-6]|sp)\),\s*([%a-z0-9/]+)$`)
var reMovemStoreLine = regexp.MustCompile(`^movem\.([wl])\s+([%a-z0-9/]+),\s*(-?\d*)\(%(a[0-6]|sp)\)$`)

// ruleMovemSingleDegenerate collapses a movem with a single register
// in its list to a plain move, per §4.6(c). A word-sized pop needs an
// explicit sign-extension fixup to replicate movem's implicit
// sign-extend-into-register behavior (a plain move.w would leave the
// upper word stale); movea already sign-extends for an address-register
// destination, so no ext is needed there.
var ruleMovemSingleDegenerate = StructuralRule{
	Name: "movem-single-degenerate",
	Gate: func(cfg Config) bool { return cfg.UseFabri1983MovemOptimizations },
	Match: func(ctx *RuleContext, output, input []Line, idx int, secondPass bool) ([]Line, bool) {
		l := output[idx]
		if l.Pinned {
			return nil, false
		}
		if m := reMovemPushLine.FindStringSubmatch(l.Code()); m != nil {
			regs := splitMovemList(m[2])
			if len(regs) != 1 {
				return nil, false
			}
			return []Line{{Text: fmt.Sprintf("\tmove.%s %%%s,-(%%%s)", m[1], regs[0], m[3]), Origin: l.Origin}}, true
		}
		if m := reMovemPopLine.FindStringSubmatch(l.Code()); m != nil {
			regs := splitMovemList(m[3])
			if len(regs) != 1 {
				return nil, false
			}
			return degenerateMovemLoad(m[1], fmt.Sprintf("(%%%s)+", m[2]), regs[0], l.Origin), true
		}
		if m := reMovemLoadLine.FindStringSubmatch(l.Code()); m != nil {
			regs := splitMovemList(m[4])
			if len(regs) != 1 {
				return nil, false
			}
			return degenerateMovemLoad(m[1], fmt.Sprintf("%s(%%%s)", m[2], m[3]), regs[0], l.Origin), true
		}
		if m := reMovemStoreLine.FindStringSubmatch(l.Code()); m != nil {
			regs := splitMovemList(m[2])
			if len(regs) != 1 {
				return nil, false
			}
			return []Line{{Text: fmt.Sprintf("\tmove.%s %%%s,%s(%%%s)", m[1], regs[0], m[3], m[4]), Origin: l.Origin}}, true
		}
		return nil, false
	},
}

// degenerateMovemLoad renders the single-register replacement for a
// memory-to-register movem: movea sign-extends on its own for address
// destinations, a word load into a data register needs the ext.l that
// movem.w performs implicitly.
func degenerateMovemLoad(size, src, reg string, origin int) []Line {
	if size == "l" {
		if isAddrReg(reg) {
			return []Line{{Text: fmt.Sprintf("\tmovea.l %s,%%%s", src, reg), Origin: origin}}
		}
		return []Line{{Text: fmt.Sprintf("\tmove.l %s,%%%s", src, reg), Origin: origin}}
	}
	if isAddrReg(reg) {
		return []Line{{Text: fmt.Sprintf("\tmovea.w %s,%%%s", src, reg), Origin: origin}}
	}
	return []Line{
		{Text: fmt.Sprintf("\tmove.w %s,%%%s", src, reg), Origin: origin},
		{Text: fmt.Sprintf("\text.l %%%s", reg), Origin: origin},
	}
}

// ruleMovemTwoPopExpand expands a two-register `movem.l (%sp)+,rX/rY`
// into two plain pops, which execute faster than movem's setup on the
// 68000. The function's own epilogue pop is left alone so the
// stack-frame maintainer can keep matching it against the prologue
// push; word-sized lists are also left alone, where two moves would
// need extra ext.l fixups that cancel the win.
var ruleMovemTwoPopExpand = StructuralRule{
	Name: "movem-two-pop-expand",
	Gate: func(cfg Config) bool { return cfg.UseFabri1983MovemOptimizations },
	Match: func(ctx *RuleContext, output, input []Line, idx int, secondPass bool) ([]Line, bool) {
		l := output[idx]
		if l.Pinned {
			return nil, false
		}
		m := reMovemPopLine.FindStringSubmatch(l.Code())
		if m == nil || m[1] != "l" || m[2] != "sp" {
			return nil, false
		}
		regs := splitMovemList(m[3])
		if len(regs) != 2 {
			return nil, false
		}
		fr := analyzeFrame(output, ctx.FuncStart, ctx.FuncEnd)
		for _, ep := range fr.epilogues {
			if ep.popLine == idx {
				return nil, false
			}
		}
		var out []Line
		for _, r := range regs {
			mnem := "move"
			if isAddrReg(r) {
				mnem = "movea"
			}
			out = append(out, Line{Text: fmt.Sprintf("\t%s.l (%%sp)+,%%%s", mnem, r), Origin: l.Origin})
		}
		return out, true
	},
}

// reBranchShorten matches a branch mnemonic that has (or can be
// rewritten into one that has) a short 8-bit-displacement encoding:
// bra/bsr and the fourteen bcc conditions directly, jmp and jsr via
// their bra/bsr equivalents. An explicit `.w` suffix and GAS's
// implicit word default both qualify; already-short `.s` lines do not.
// dbcc forms are excluded: DBcc has no short encoding on the 68000.
var reBranchShorten = regexp.MustCompile(`^(bra|bsr|beq|bne|bge|bgt|ble|blt|bhi|bls|bcc|bcs|bhs|blo|bvc|bvs|bpl|bmi|jmp|jsr)(?:\.w)?\s+([A-Za-z_.$][A-Za-z0-9_.$]*)$`)

// shortMnemonic maps a shortenable mnemonic to its `.s` form: jmp and
// jsr become PC-relative bra/bsr, everything else keeps its condition.
func shortMnemonic(mnem string) string {
	switch mnem {
	case "jmp":
		return "bra"
	case "jsr":
		return "bsr"
	default:
		return mnem
	}
}

// ruleBranchShortening rewrites a word-displacement branch to the `.s`
// short form when its target label, resolved within the enclosing
// function, lies within a signed byte displacement of the instruction's
// end. Distances are counted by the directive-aware sizer; any line it
// cannot size (an unevaluable .if/.rept expression) makes the region
// out of range, per §7.
var ruleBranchShortening = StructuralRule{
	Name:           "branch-shortening",
	SecondPassOnly: true,
	Match: func(ctx *RuleContext, output, input []Line, idx int, secondPass bool) ([]Line, bool) {
		if !secondPass {
			return nil, false
		}
		l := output[idx]
		if l.Pinned || l.SizeSuffix() == "s" {
			return nil, false
		}
		m := reBranchShorten.FindStringSubmatch(l.Code())
		if m == nil {
			return nil, false
		}
		mnem, target := m[1], m[2]

		def := -1
		for i := ctx.FuncStart; i < ctx.FuncEnd && i < len(output); i++ {
			if name, ok := output[i].LabelName(); ok && name == target {
				def = i
				break
			}
		}
		if def < 0 || def == idx {
			return nil, false
		}

		sz := newSizer(output, ctx.FuncStart, ctx.Log)
		var off int
		if def > idx {
			fwd, ok := sz.regionSize(output, idx+1, def)
			if !ok {
				return nil, false
			}
			off = fwd
		} else {
			back, ok := sz.regionSize(output, def, idx)
			if !ok {
				return nil, false
			}
			off = -(back + 2)
		}
		if off == 0 || off < -126 || off > 128 {
			return nil, false
		}
		return []Line{{Text: fmt.Sprintf("\t%s.s %s", shortMnemonic(mnem), target), Origin: l.Origin}}, true
	},
}
