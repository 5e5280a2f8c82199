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
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ErrScratchPadOutsideInterrupt is returned when a rule tries to add a
// scratch-pad register to the callee-save set of an ordinary
// (non-interrupt) routine, which §4.5 forbids.
var ErrScratchPadOutsideInterrupt = fmt.Errorf("scratch-pad register may not be callee-saved outside an interrupt handler")

// regRank orders registers for movem list emission: data registers
// ascending, then address registers ascending.
func regRank(r string) int {
	if b, ok := regBit(r); ok {
		return b
	}
	return 99
}

// sortedRegList sorts register names into canonical ascending order
// (data ascending, then address ascending) and dedupes.
func sortedRegList(regs []string) []string {
	set := map[string]bool{}
	for _, r := range regs {
		set[r] = true
	}
	out := lo.Keys(set)
	sort.Slice(out, func(i, j int) bool { return regRank(out[i]) < regRank(out[j]) })
	return out
}

// movemListString renders a register set as the symbolic
// `%dN/.../%aM` list §4.1 calls for, reversed for push lists relative
// to pop lists because the hardware reads high registers first on
// `-(aN)`. Names carry the `%` prefix GNU as requires.
func movemListString(regs []string, forPush bool) string {
	ordered := sortedRegList(regs)
	if forPush {
		reversed := make([]string, len(ordered))
		for i, r := range ordered {
			reversed[len(ordered)-1-i] = r
		}
		ordered = reversed
	}
	prefixed := make([]string, len(ordered))
	for i, r := range ordered {
		prefixed[i] = "%" + r
	}
	return strings.Join(prefixed, "/")
}

// frameRegion locates, within [start,end), the prologue movem push
// (if any) as the function's first real instruction, and every
// epilogue pop/terminator pair.
type frameRegion struct {
	pushLine   int // -1 if none
	pushSize   Size
	pushRegs   []string
	epilogues  []epilogue
	bodyStart  int // first line after the prologue push (or functionStart)
}

type epilogue struct {
	popLine      int // -1 if none
	popSize      Size
	popRegs      []string
	terminator   int
}

func analyzeFrame(lines []Line, start, end int) frameRegion {
	fr := frameRegion{pushLine: -1, bodyStart: start}
	for i := start; i < end; i++ {
		l := lines[i]
		if l.IsBlank() || l.IsComment() || l.IsDirective() {
			continue
		}
		if _, ok := l.LabelName(); ok && l.Mnemonic() == "" {
			continue
		}
		// First real instruction of the function: the prologue push if
		// one exists, otherwise where a synthesized push belongs.
		fr.bodyStart = i
		if m := reMovemPush.FindStringSubmatch(l.Code()); m != nil {
			fr.pushLine = i
			fr.pushSize = parseSize(m[1])
			fr.pushRegs = splitMovemList(m[2])
			fr.bodyStart = i + 1
		}
		break
	}
	for i := fr.bodyStart; i < end; i++ {
		mnem := lines[i].Mnemonic()
		if mnem != "rts" && mnem != "rte" {
			continue
		}
		ep := epilogue{popLine: -1, terminator: i}
		for j := i - 1; j >= fr.bodyStart; j-- {
			if lines[j].IsBlank() || lines[j].IsComment() {
				continue
			}
			if m := reMovemPop.FindStringSubmatch(lines[j].Code()); m != nil {
				ep.popLine = j
				ep.popSize = parseSize(m[1])
				ep.popRegs = splitMovemList(m[3])
			}
			break
		}
		fr.epilogues = append(fr.epilogues, ep)
	}
	return fr
}

func stride(sz Size) int {
	if sz == SizeByte || sz == SizeUnspecified {
		return 2
	}
	return sz.Bytes()
}

// adjustSpDisplacements rewrites every `d(sp)`/`(d,sp)` (indexed or
// not) occurrence in lines[from:to] by delta bytes.
func adjustSpDisplacements(lines []Line, from, to, delta int) {
	if delta == 0 {
		return
	}
	for i := from; i < to; i++ {
		lines[i].Text = rewriteDisp(lines[i].Text, reSpDispIndexed, delta, 1)
		lines[i].Text = rewriteDisp(lines[i].Text, reSpDispPlain, delta, 1)
		lines[i].Text = rewriteDisp(lines[i].Text, reSpDispTuple, delta, 1)
	}
}

func rewriteDisp(text string, re *regexp.Regexp, delta int, dispGroup int) string {
	return re.ReplaceAllStringFunc(text, func(m string) string {
		sub := re.FindStringSubmatch(m)
		d, err := strconv.Atoi(sub[dispGroup])
		if err != nil {
			return m
		}
		newD := d + delta
		return strings.Replace(m, sub[dispGroup], strconv.Itoa(newD), 1)
	})
}

// AddRegisters extends the function's prologue/epilogue set of
// callee-saved registers with `regs`, synthesizing a movem push/pop
// pair if none exists, and re-offsets every sp-relative displacement
// between them by the byte delta, per §4.5.
func AddRegisters(lines []Line, start, end int, regs []string, interrupt bool) ([]Line, error) {
	if !interrupt {
		for _, r := range regs {
			if scratchPad[r] {
				return nil, ErrScratchPadOutsideInterrupt
			}
		}
	}
	out := make([]Line, len(lines))
	copy(out, lines)

	fr := analyzeFrame(out, start, end)
	before := len(sortedRegList(fr.pushRegs))
	union := append(append([]string{}, fr.pushRegs...), regs...)
	after := sortedRegList(union)
	added := len(after) - before
	if added <= 0 {
		return out, nil
	}
	sz := fr.pushSize
	if sz == SizeUnspecified {
		sz = SizeLong
	}
	delta := added * stride(sz)

	if fr.pushLine >= 0 {
		out[fr.pushLine].Text = fmt.Sprintf("\tmovem.%s %s,-(%%sp)", sizeLetter(sz), movemListString(after, true))
	} else {
		newLine := Line{Text: fmt.Sprintf("\tmovem.%s %s,-(%%sp)", sizeLetter(sz), movemListString(after, true))}
		out = insertLine(out, fr.bodyStart, newLine)
		end++
		fr = analyzeFrame(out, start, end)
	}

	// Reverse order: inserting a synthesized pop shifts every later
	// epilogue's index.
	for i := len(fr.epilogues) - 1; i >= 0; i-- {
		ep := fr.epilogues[i]
		if ep.popLine >= 0 {
			out[ep.popLine].Text = fmt.Sprintf("\tmovem.%s (%%sp)+,%s", sizeLetter(sz), movemListString(after, false))
		} else {
			newLine := Line{Text: fmt.Sprintf("\tmovem.%s (%%sp)+,%s", sizeLetter(sz), movemListString(after, false))}
			out = insertLine(out, ep.terminator, newLine)
			end++
		}
	}

	bodyEnd := end
	adjustSpDisplacements(out, fr.bodyStart, bodyEnd, delta)
	return out, nil
}

// RemoveRegister retires a single callee-saved register from the
// function's prologue/epilogue pair, subtracting its stride from every
// sp-relative displacement in between. An emptied movem becomes a
// commented-out line, per §4.5.
func RemoveRegister(lines []Line, start, end int, reg string) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)

	fr := analyzeFrame(out, start, end)
	if !lo.Contains(fr.pushRegs, reg) {
		return out
	}
	sz := fr.pushSize
	remaining := lo.Filter(fr.pushRegs, func(r string, _ int) bool { return r != reg })
	delta := -stride(sz)

	if len(remaining) == 0 {
		out[fr.pushLine].Text = "#" + strings.TrimLeft(out[fr.pushLine].Text, "\t ")
	} else {
		out[fr.pushLine].Text = fmt.Sprintf("\tmovem.%s %s,-(%%sp)", sizeLetter(sz), movemListString(remaining, true))
	}
	for _, ep := range fr.epilogues {
		if ep.popLine < 0 {
			continue
		}
		if len(remaining) == 0 {
			out[ep.popLine].Text = "#" + strings.TrimLeft(out[ep.popLine].Text, "\t ")
		} else {
			out[ep.popLine].Text = fmt.Sprintf("\tmovem.%s (%%sp)+,%s", sizeLetter(sz), movemListString(remaining, false))
		}
	}
	adjustSpDisplacements(out, fr.bodyStart, end, delta)
	return out
}

func sizeLetter(sz Size) string {
	switch sz {
	case SizeByte:
		return "b"
	case SizeLong:
		return "l"
	default:
		return "w"
	}
}

func insertLine(lines []Line, at int, l Line) []Line {
	out := make([]Line, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, l)
	out = append(out, lines[at:]...)
	return out
}
