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
)

// Normalize brings GAS idioms into a canonical form so later rewrites
// need only one pattern each, per §4.1. Each per-line operation is
// applied left-to-right and is idempotent; the whole-buffer local
// label renaming runs once after the per-line pass.
func Normalize(cfg Config, lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		if !l.IsAppMarker() {
			l.Text = normalizeLine(cfg, l.Text)
		}
		out[i] = l
	}
	if !cfg.OptimizeInlineAsmBlocks {
		pinAppBlocks(out)
	}
	return renameLocalLabels(out)
}

// pinAppBlocks marks every line between a `#APP`/`#NO_APP` pair as
// Pinned, so no rule touches hand-written inline asm unless the caller
// opted into OptimizeInlineAsmBlocks.
func pinAppBlocks(lines []Line) {
	inApp := false
	for i := range lines {
		if lines[i].IsAppStart() {
			inApp = true
			continue
		}
		if lines[i].IsAppEnd() {
			inApp = false
			continue
		}
		if inApp {
			lines[i].Pinned = true
		}
	}
}

func normalizeLine(cfg Config, text string) string {
	text = rewritePCDisp(text)
	text = reFP.ReplaceAllString(text, "%a6")
	if cfg.RewriteLongIndexToWord || cfg.UseAggressiveReplaceLongIndirectByWord {
		text = reLongIndexed.ReplaceAllString(text, `$1(%$2,%$3.w)`)
	}
	text = normalizeMovemNumeric(text)
	text = stripRedundantParens(text)
	return text
}

var (
	reLongIndexed  = regexp.MustCompile(`(-?\d*)\(%(a[0-6]),\s*%(d[0-7])\.l\)`)
	reMovemNumPush = regexp.MustCompile(`^(\s*movem\.([wl])\s+)(#?(0x[0-9A-Fa-f]+|[0-9]+))(,\s*-\(%(a[0-6]|sp)\))$`)
	reMovemNumPop  = regexp.MustCompile(`^(\s*movem\.([wl])\s+\(%(a[0-6]|sp)\)\+,\s*)(#?(0x[0-9A-Fa-f]+|[0-9]+))(\s*)$`)
	reParenImm     = regexp.MustCompile(`#\(([^()]+)\)`)
	reParenSymbol  = regexp.MustCompile(`\(([A-Za-z_.$][A-Za-z0-9_.$]*)\)`)
)

// rewritePCDisp rewrites `%pc@(disp,%dN:s)` into `disp(%pc,%dN.s)`.
func rewritePCDisp(text string) string {
	return rePCDispOld.ReplaceAllStringFunc(text, func(m string) string {
		sub := rePCDispOld.FindStringSubmatch(m)
		return fmt.Sprintf("%s(%%pc,%%%s.%s)", strings.TrimSpace(sub[1]), sub[2], sub[3])
	})
}

// movemOrder is the standard d0..d7,a0..a7 bit-order list used by the
// numeric movem register-mask encoding.
var movemOrder = []string{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7", "a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"}

func decodeMovemMask(mask uint16, predecrement bool) []string {
	order := movemOrder
	if predecrement {
		order = make([]string, 16)
		for i, r := range movemOrder {
			order[15-i] = r
		}
	}
	var regs []string
	for i := 0; i < 16; i++ {
		if mask&(1<<uint(i)) != 0 {
			regs = append(regs, order[i])
		}
	}
	return regs
}

func parseMaskLiteral(s string) (uint16, bool) {
	s = strings.TrimPrefix(s, "#")
	var v int64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseInt(s[2:], 16, 32)
	} else {
		v, err = strconv.ParseInt(s, 10, 32)
	}
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// normalizeMovemNumeric rewrites the numeric encoding of a movem
// register list into the symbolic `dN/.../aM` form, respecting
// push/pop direction per §4.1.
func normalizeMovemNumeric(text string) string {
	if m := reMovemNumPush.FindStringSubmatch(text); m != nil {
		if mask, ok := parseMaskLiteral(m[3]); ok {
			regs := decodeMovemMask(mask, true)
			return m[1] + movemListString(regs, true) + m[5]
		}
	}
	if m := reMovemNumPop.FindStringSubmatch(text); m != nil {
		if mask, ok := parseMaskLiteral(m[5]); ok {
			regs := decodeMovemMask(mask, false)
			return m[1] + movemListString(regs, false) + m[6]
		}
	}
	return text
}

// stripRedundantParens removes redundant parentheses around bare
// symbol names and immediates at operand positions where a
// dereference is implicit: `#(5)` becomes `#5`, and a parenthesized
// bare symbol that is not a register (so not an addressing mode) loses
// its parens.
func stripRedundantParens(text string) string {
	text = reParenImm.ReplaceAllString(text, "#$1")
	return reParenSymbol.ReplaceAllStringFunc(text, func(m string) string {
		sub := reParenSymbol.FindStringSubmatch(m)
		if IsRegister("%" + sub[1]) {
			return m
		}
		return sub[1]
	})
}

// renameLocalLabels renames compiler-local numeric labels (`0:`..`9:`
// with `0f`/`0b`/`1f`/... references) to globally unique names, by
// scanning forward/backward and rewriting every matching reference.
// Numeric local labels are reusable across a whole GAS file (not
// scoped per function), so this pass runs once over the entire buffer.
func renameLocalLabels(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)

	defPositions := map[byte][]int{}
	for i, l := range out {
		if m := reLocalLabelDef.FindStringSubmatch(l.Text); m != nil {
			d := m[1][0]
			defPositions[d] = append(defPositions[d], i)
		}
	}
	if len(defPositions) == 0 {
		return out
	}

	nameFor := map[int]string{} // line index -> assigned global name
	for d, positions := range defPositions {
		for occ, pos := range positions {
			nameFor[pos] = fmt.Sprintf(".Llocal%c_%d", d, occ)
		}
	}
	for pos, name := range nameFor {
		out[pos].Text = name + ":"
	}

	for i := range out {
		out[i].Text = reLocalLabelRef.ReplaceAllStringFunc(out[i].Text, func(m string) string {
			sub := reLocalLabelRef.FindStringSubmatch(m)
			prefix := sub[1]
			d := sub[2][0]
			dir := sub[3]
			positions := defPositions[d]
			if len(positions) == 0 {
				return m
			}
			var target int = -1
			if dir == "f" {
				for _, p := range positions {
					if p > i {
						target = p
						break
					}
				}
			} else {
				for k := len(positions) - 1; k >= 0; k-- {
					if positions[k] < i {
						target = positions[k]
						break
					}
				}
			}
			if target < 0 {
				return m
			}
			return prefix + nameFor[target]
		})
	}
	return out
}
