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
	"math/bits"
	"regexp"
)

// SingleLineRules is the §4.6(b) peephole table, swept over the whole
// buffer after the multi-line loop on every pass.
var SingleLineRules = []SingleLineRule{
	ruleImmediateMaterialize,
	ruleAddSubImmQuick,
	ruleAddSubImmNarrowToWord,
	ruleAddqSubqOnAddrReg,
	ruleCmpZeroToTst,
	ruleBitMaskToBclr,
	ruleBitMaskToBset,
	ruleShiftLeft16ToSwapClr,
	ruleMulPow2ToShift,
	ruleMulConstShiftAdd,
	ruleMulConstExact,
	ruleDivPow2ToShift,
	ruleZeroPushToClr,
}

var reMoveImmLong = regexp.MustCompile(`^move\.l\s+#(-?(?:0x[0-9A-Fa-f]+|\$[0-9A-Fa-f]+|\d+)),\s*%(d[0-7])$`)

// materializeImmediate picks the cheapest moveq-based construction for
// a 32-bit constant that doesn't itself fit moveq's -128..127 range,
// per the §4.6(b) "moveq/not/neg/swap permutations" family. It returns
// nil when no permutation applies and the plain move.l should stand.
func materializeImmediate(val int64, reg string) []string {
	v := int32(val)
	if v >= -128 && v <= 127 {
		return []string{fmt.Sprintf("\tmoveq #%d,%%%s", v, reg)}
	}
	if v >= 0 && v <= 255 {
		// A value that fits a zero-extended byte (moveq leaves the upper
		// 24 bits at 0 for a positive operand) can be built by
		// complementing just the low byte: moveq leaves bits 8-31 clear,
		// and not.b only touches bits 0-7, so 255-v must itself sit in
		// moveq's range.
		if nv := 255 - v; nv >= 0 && nv <= 127 {
			return []string{
				fmt.Sprintf("\tmoveq #%d,%%%s", nv, reg),
				fmt.Sprintf("\tnot.b %%%s", reg),
			}
		}
	}
	// A long constant whose complement or negation fits moveq always
	// either fits moveq itself or lands in the byte-complement case
	// above, so no separate not.l/neg.l arms are needed here.
	if uint32(v)&0xFFFF == 0 {
		high := int32(uint32(v) >> 16)
		if high >= 0 && high <= 127 {
			return []string{
				fmt.Sprintf("\tmoveq #%d,%%%s", high, reg),
				fmt.Sprintf("\tswap %%%s", reg),
			}
		}
	}
	return nil
}

// ruleImmediateMaterialize rewrites `move.l #N,dN` for a constant N
// outside moveq's range into a moveq plus a cheap fixup instruction,
// when one of the known permutations reconstructs N exactly.
var ruleImmediateMaterialize = SingleLineRule{
	Name: "immediate-materialize",
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reMoveImmLong.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned {
			return nil, false
		}
		val, ok := parseImmediate("#" + m[1])
		if !ok {
			return nil, false
		}
		seq := materializeImmediate(val, m[2])
		if seq == nil {
			return nil, false
		}
		out := make([]Line, len(seq))
		for i, s := range seq {
			out[i] = Line{Text: s, Origin: l.Origin}
		}
		return out, true
	},
}

var reAddSubImmLongData = regexp.MustCompile(`^(add|sub)(?:i)?\.l\s+#([1-8]),\s*%(d[0-7])$`)

// ruleAddSubImmQuick: `add.l #1..8,dN` / `sub.l #1..8,dN` (and the
// addi/subi spellings) take the quick form, dropping the immediate
// extension words.
var ruleAddSubImmQuick = SingleLineRule{
	Name: "add-sub-imm-quick",
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		if l.Pinned {
			return nil, false
		}
		m := reAddSubImmLongData.FindStringSubmatch(l.Code())
		if m == nil {
			return nil, false
		}
		return []Line{{Text: fmt.Sprintf("\t%sq.l #%s,%%%s", m[1], m[2], m[3]), Origin: l.Origin}}, true
	},
}

var reAddqSubqLongData = regexp.MustCompile(`^(add|sub)q\.l\s+#([1-8]),\s*%(d[0-7])$`)

// ruleAddSubImmNarrowToWord shrinks `addq.l`/`subq.l` on a data
// register to the word form when every later access reads at most the
// register's low word — the low-word-only variant of §4.4's dual
// query. Gated with the liveness searches: the query is a hint, and
// the word form carries the low word differently past bit 15.
var ruleAddSubImmNarrowToWord = SingleLineRule{
	Name: "addq-subq-data-narrow",
	Gate: func(cfg Config) bool { return cfg.UseFindNotUsed },
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		if l.Pinned {
			return nil, false
		}
		m := reAddqSubqLongData.FindStringSubmatch(l.Code())
		if m == nil {
			return nil, false
		}
		if !LowWordOnlyAfter(output, input[idx+1:], m[3]) {
			return nil, false
		}
		return []Line{{Text: fmt.Sprintf("\t%sq.w #%s,%%%s", m[1], m[2], m[3]), Origin: l.Origin}}, true
	},
}

var reAddqSubqLong = regexp.MustCompile(`^(add|sub)q?\.l\s+#([1-8]),\s*%(a[0-6])$`)

// ruleAddqSubqOnAddrReg narrows any `add(q).l #1..8,aN` / `sub(q).l
// #1..8,aN` to the word quick form: arithmetic on an address register
// destination is always full 32-bit regardless of the size suffix, so
// the word encoding is interchangeable.
var ruleAddqSubqOnAddrReg = SingleLineRule{
	Name: "addq-subq-addrreg-narrow",
	Gate: func(cfg Config) bool { return cfg.UseReplaceAddqlSubqlByAddqwSubqw },
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		if l.Pinned {
			return nil, false
		}
		m := reAddqSubqLong.FindStringSubmatch(l.Code())
		if m == nil {
			return nil, false
		}
		return []Line{{Text: fmt.Sprintf("\t%sq.w #%s,%%%s", m[1], m[2], m[3]), Origin: l.Origin}}, true
	},
}

var reCmpZero = regexp.MustCompile(`^cmp\.([bwl])\s+#0,\s*%([ad][0-7])$`)

// ruleCmpZeroToTst: `cmp.s #0,xN` sets the same condition codes as
// `tst.s xN`, one operand shorter.
var ruleCmpZeroToTst = SingleLineRule{
	Name: "cmp-zero-to-tst",
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reCmpZero.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned {
			return nil, false
		}
		return []Line{{Text: fmt.Sprintf("\ttst.%s %%%s", m[1], m[2]), Origin: l.Origin}}, true
	},
}

var reAndImm = regexp.MustCompile(`^and\.([bwl])\s+#(0x[0-9A-Fa-f]+|\$[0-9A-Fa-f]+|\d+),\s*%(d[0-7])$`)
var reOrImm = regexp.MustCompile(`^or\.([bwl])\s+#(0x[0-9A-Fa-f]+|\$[0-9A-Fa-f]+|\d+),\s*%(d[0-7])$`)

func singleZeroBit(mask int64, width int) (int, bool) {
	full := int64(1)<<uint(width) - 1
	zeros := (^mask) & full
	if zeros != 0 && zeros&(zeros-1) == 0 {
		return bits.TrailingZeros64(uint64(zeros)), true
	}
	return 0, false
}

func singleOneBit(mask int64, width int) (int, bool) {
	full := int64(1)<<uint(width) - 1
	v := mask & full
	if v != 0 && v&(v-1) == 0 {
		return bits.TrailingZeros64(uint64(v)), true
	}
	return 0, false
}

// ruleBitMaskToBclr: an `and.s #mask,dN` whose mask clears exactly one
// bit becomes `bclr #n,dN`.
var ruleBitMaskToBclr = SingleLineRule{
	Name: "and-mask-to-bclr",
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reAndImm.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned {
			return nil, false
		}
		val, ok := parseImmediate("#" + m[2])
		if !ok {
			return nil, false
		}
		bit, ok := singleZeroBit(val, parseSize(m[1]).Bytes()*8)
		if !ok {
			return nil, false
		}
		return []Line{{Text: fmt.Sprintf("\tbclr #%d,%%%s", bit, m[3]), Origin: l.Origin}}, true
	},
}

// ruleBitMaskToBset: an `or.s #mask,dN` whose mask sets exactly one bit
// becomes `bset #n,dN`.
var ruleBitMaskToBset = SingleLineRule{
	Name: "or-mask-to-bset",
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reOrImm.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned {
			return nil, false
		}
		val, ok := parseImmediate("#" + m[2])
		if !ok {
			return nil, false
		}
		bit, ok := singleOneBit(val, parseSize(m[1]).Bytes()*8)
		if !ok {
			return nil, false
		}
		return []Line{{Text: fmt.Sprintf("\tbset #%d,%%%s", bit, m[3]), Origin: l.Origin}}, true
	},
}

var reLsl16 = regexp.MustCompile(`^lsl\.l\s+#16,\s*%(d[0-7])$`)

// ruleShiftLeft16ToSwapClr: `lsl.l #16,dN` is `swap dN; clr.w dN` —
// the old low word lands in the high half and the low half zeroes —
// which saves the long shift's per-bit cycles.
var ruleShiftLeft16ToSwapClr = SingleLineRule{
	Name: "lsl16-to-swap-clr",
	Gate: func(cfg Config) bool { return cfg.UseFabri1983Optimizations },
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reLsl16.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned {
			return nil, false
		}
		return []Line{
			{Text: fmt.Sprintf("\tswap %%%s", m[1]), Origin: l.Origin},
			{Text: fmt.Sprintf("\tclr.w %%%s", m[1]), Origin: l.Origin},
		}, true
	},
}

var reMuluImm = regexp.MustCompile(`^(mulu|muls)\.w\s+#(0x[0-9A-Fa-f]+|\$[0-9A-Fa-f]+|\d+),\s*%(d[0-7])$`)
var reDivuImm = regexp.MustCompile(`^(divu|divs)\.w\s+#(0x[0-9A-Fa-f]+|\$[0-9A-Fa-f]+|\d+),\s*%(d[0-7])$`)

func log2Exact(v int64) (int, bool) {
	if v <= 0 || v&(v-1) != 0 {
		return 0, false
	}
	return bits.TrailingZeros64(uint64(v)), true
}

// ruleMulPow2ToShift: `mulu.w #N,dN` for a power-of-two N becomes
// `lsl.l #log2(N),dN`, when the caller has declared the high word of
// the 32-bit multiply result isn't needed for correctness (an
// overflowing shift and a wrapping multiply agree on the low bits, but
// diverge above bit 31-n).
var ruleMulPow2ToShift = SingleLineRule{
	Name: "mul-pow2-to-shift",
	Gate: func(cfg Config) bool { return cfg.OptimizeMulHighWordNotImportant && !cfg.OptimizeMulHighWordImportant },
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reMuluImm.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned {
			return nil, false
		}
		val, ok := parseImmediate("#" + m[2])
		if !ok {
			return nil, false
		}
		n, ok := log2Exact(val)
		if !ok || n > 8 {
			return nil, false
		}
		if n == 0 {
			return []Line{}, true
		}
		return []Line{{Text: fmt.Sprintf("\tlsl.l #%d,%%%s", n, m[3]), Origin: l.Origin}}, true
	},
}

// mulConstWordSequence builds the move/add shift-and-add instruction
// text that computes n*reg in the low word of reg, via the standard
// MSB-to-LSB binary (Horner) decomposition of n: starting from a copy
// of the original value, each subsequent bit doubles the accumulator
// and, if the bit is set, adds the original value back in. For
// n=10 (0b1010) this produces exactly the four-instruction sequence
// of doublings and adds the constant-multiply family tabulates.
func mulConstWordSequence(n uint32, size, reg, scratch string) []string {
	if n < 2 || n&(n-1) == 0 {
		return nil // 0/1 and powers of two are handled by the shift rule
	}
	bitLen := bits.Len32(n)
	out := []string{fmt.Sprintf("\tmove.%s %%%s,%%%s", size, reg, scratch)}
	for i := bitLen - 2; i >= 0; i-- {
		out = append(out, fmt.Sprintf("\tadd.%s %%%s,%%%s", size, reg, reg))
		if n&(1<<uint(i)) != 0 {
			out = append(out, fmt.Sprintf("\tadd.%s %%%s,%%%s", size, scratch, reg))
		}
	}
	return out
}

// borrowDataScratch asks the free-register query for a data register
// usable at the current point, excluding `excludes`, and queues the
// §4.5 commit for it. Empty string when none is admissible.
func borrowDataScratch(ctx *RuleContext, output, input []Line, excludes RegisterSet) string {
	cfm := cflowAt(output, input)
	for _, f := range FindFreeAfterUse(output, input, cfm, ClassData, excludes) {
		if ctx.CanCommitScratch(f) {
			ctx.RequestScratchCommit(f)
			return f
		}
	}
	return ""
}

// ruleMulConstShiftAdd lowers `mulu.w/muls.w #N,dN` for a non-power-of-
// two constant N into the shift-and-add family (§4.6b), using a
// scratch data register to hold the original value across the
// doublings. Low-word only; the result's upper word is whatever the
// word adds left behind, so it fires under the high-word-not-important
// gate.
var ruleMulConstShiftAdd = SingleLineRule{
	Name: "mul-const-shift-add",
	Gate: func(cfg Config) bool {
		return cfg.OptimizeMulHighWordNotImportant && !cfg.OptimizeMulHighWordImportant && cfg.UseFindFreeAfterUse
	},
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reMuluImm.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned {
			return nil, false
		}
		val, ok := parseImmediate("#" + m[2])
		if !ok || val <= 0 || val > 0xFFFF {
			return nil, false
		}
		reg := m[3]
		if mulConstWordSequence(uint32(val), "w", reg, "") == nil {
			return nil, false
		}
		scratch := borrowDataScratch(ctx, output, input[idx+1:], RegisterSetFromNames([]string{reg}))
		if scratch == "" {
			return nil, false
		}
		seq := mulConstWordSequence(uint32(val), "w", reg, scratch)
		out := make([]Line, len(seq))
		for i, s := range seq {
			out[i] = Line{Text: s, Origin: l.Origin}
		}
		return out, true
	},
}

// ruleMulConstExact is the high-word-important variant: the operand is
// first widened to 32 bits (zero-extend for mulu, sign-extend for
// muls) and the shift/add or doubling sequence runs at long size, so
// the full 32-bit product matches the hardware multiply exactly.
var ruleMulConstExact = SingleLineRule{
	Name: "mul-const-exact",
	Gate: func(cfg Config) bool {
		return cfg.OptimizeMulHighWordImportant && !cfg.OptimizeMulHighWordNotImportant && cfg.UseFindFreeAfterUse
	},
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reMuluImm.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned {
			return nil, false
		}
		val, ok := parseImmediate("#" + m[2])
		if !ok || val <= 1 || val > 0xFFFF {
			return nil, false
		}
		reg := m[3]
		var widen string
		if m[1] == "mulu" {
			widen = fmt.Sprintf("\tand.l #65535,%%%s", reg)
		} else {
			widen = fmt.Sprintf("\text.l %%%s", reg)
		}

		if n, isPow2 := log2Exact(val); isPow2 {
			out := []Line{{Text: widen, Origin: l.Origin}}
			for rem := n; rem > 0; rem -= 8 {
				step := rem
				if step > 8 {
					step = 8
				}
				out = append(out, Line{Text: fmt.Sprintf("\tlsl.l #%d,%%%s", step, reg), Origin: l.Origin})
			}
			return out, true
		}

		scratch := borrowDataScratch(ctx, output, input[idx+1:], RegisterSetFromNames([]string{reg}))
		if scratch == "" {
			return nil, false
		}
		seq := mulConstWordSequence(uint32(val), "l", reg, scratch)
		out := []Line{{Text: widen, Origin: l.Origin}}
		for _, s := range seq {
			out = append(out, Line{Text: s, Origin: l.Origin})
		}
		return out, true
	},
}

// ruleDivPow2ToShift: `divu.w #N,dN` for a power-of-two N becomes
// `lsr.l #log2(N),dN`, gated the same way as the multiply lowering and
// valid only for the unsigned form (divs rounds toward zero, which a
// plain arithmetic shift does not replicate for negative dividends).
// The hardware's remainder-in-high-word result is not reproduced,
// which is exactly what the high-word-not-important gate waives.
var ruleDivPow2ToShift = SingleLineRule{
	Name: "div-pow2-to-shift",
	Gate: func(cfg Config) bool { return cfg.OptimizeDivisionHighWordNotImportant },
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		m := reDivuImm.FindStringSubmatch(l.Code())
		if m == nil || l.Pinned || m[1] != "divu" {
			return nil, false
		}
		val, ok := parseImmediate("#" + m[2])
		if !ok {
			return nil, false
		}
		n, ok := log2Exact(val)
		if !ok || n > 8 {
			return nil, false
		}
		if n == 0 {
			return []Line{}, true
		}
		return []Line{{Text: fmt.Sprintf("\tlsr.l #%d,%%%s", n, m[3]), Origin: l.Origin}}, true
	},
}

var reZeroPush = regexp.MustCompile(`^move\.l\s+#0,\s*-\(%sp\)$`)

// ruleZeroPushToClr: `move.l #0,-(sp)` becomes `clr.l -(sp)`, which
// encodes shorter since it needs no immediate extension words. Gated
// as aggressive: on the 68000 clr performs a read cycle before the
// write, which matters over memory-mapped I/O — the same reasoning §6
// names UseAggressiveClrSp for.
var ruleZeroPushToClr = SingleLineRule{
	Name: "zero-push-to-clr",
	Gate: func(cfg Config) bool { return cfg.UseAggressiveClrSp },
	Match: func(ctx *RuleContext, output, input []Line, idx int) ([]Line, bool) {
		l := input[idx]
		if l.Pinned || !reZeroPush.MatchString(l.Code()) {
			return nil, false
		}
		return []Line{{Text: "\tclr.l -(%sp)", Origin: l.Origin}}, true
	},
}

