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
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Size is an M68K operand/mnemonic size suffix.
type Size int

const (
	SizeUnspecified Size = iota
	SizeByte
	SizeWord
	SizeLong
)

// String returns the GAS suffix for a size, including the leading dot.
func (s Size) String() string {
	switch s {
	case SizeByte:
		return ".b"
	case SizeWord:
		return ".w"
	case SizeLong:
		return ".l"
	default:
		return ""
	}
}

// Bytes returns the byte width of the size, defaulting to word width
// when unspecified (GAS's default for most m68k mnemonics).
func (s Size) Bytes() int {
	switch s {
	case SizeByte:
		return 1
	case SizeLong:
		return 4
	default:
		return 2
	}
}

func parseSize(suffix string) Size {
	switch suffix {
	case "b":
		return SizeByte
	case "w":
		return SizeWord
	case "l":
		return SizeLong
	default:
		return SizeUnspecified
	}
}

// Regex library. These mirror the classification style of the
// teacher's attributeLine/nameLine/labelLine/codeLine table, extended
// for the GAS m68k dialect this engine reads and writes.
var (
	reLabelDef      = regexp.MustCompile(`^([A-Za-z_.$][A-Za-z0-9_.$]*)\s*:\s*(.*)$`)
	reLocalLabelDef = regexp.MustCompile(`^([0-9])\s*:\s*$`)
	// A local-label reference is a lone digit plus direction at an
	// operand position; requiring a separator before the digit keeps
	// hex/binary literals like #$3f or 0b01 from false-matching.
	reLocalLabelRef  = regexp.MustCompile(`(^|[\s,(])([0-9])([fb])\b`)
	reDirective      = regexp.MustCompile(`^\s*\.([A-Za-z][A-Za-z0-9_]*)\b\s*(.*)$`)
	reInsnLine       = regexp.MustCompile(`^\s+([A-Za-z][A-Za-z0-9]*)(\.([bswl]))?\s*(.*)$`)
	reTypeFunction   = regexp.MustCompile(`^\s*\.type\s+([A-Za-z_.$][A-Za-z0-9_.$]*)\s*,\s*@function`)
	reGloblDirective = regexp.MustCompile(`^\s*\.globl\s+([A-Za-z_.$][A-Za-z0-9_.$]*)`)
	reSizeDirective  = regexp.MustCompile(`^\s*\.size\s+([A-Za-z_.$][A-Za-z0-9_.$]*)\s*,`)
	reAppStart       = regexp.MustCompile(`^\s*#APP\s*$`)
	reAppEnd         = regexp.MustCompile(`^\s*#NO_APP\s*$`)
	reDoNotOptimize  = regexp.MustCompile(`;\s*#\s*DO_NOT_OPTIMIZE\s*$`)
	reBlank          = regexp.MustCompile(`^\s*$`)
	reComment        = regexp.MustCompile(`^\s*(\|.*|;.*)$`)

	reRegister = regexp.MustCompile(`^%(d[0-7]|a[0-7]|sp|pc|fp)$`)

	reSpDispPlain   = regexp.MustCompile(`(-?\d+)\(%sp\)`)
	reSpDispTuple   = regexp.MustCompile(`\((-?\d+),\s*%sp\)`)
	reSpDispIndexed = regexp.MustCompile(`(-?\d+)\(%sp,\s*%(d[0-7]|a[0-7])(\.[bswl])?\)`)

	reMovemPush = regexp.MustCompile(`^movem\.([wl])\s+([^,]+),\s*-\(%(a[0-6]|sp)\)$`)
	reMovemPop  = regexp.MustCompile(`^movem\.([wl])\s+\(%(a[0-6]|sp)\)\+,\s*(.+)$`)

	rePCDispOld = regexp.MustCompile(`%pc@\(([^,]+),\s*%(d[0-7]):([bswl])\)`)
	reFP        = regexp.MustCompile(`%fp\b`)
)

// Line is one source line, held as trimmed text. All structural fields
// (mnemonic, size, operands, label) are derived on demand rather than
// cached, per the data model's "derived fields on demand" invariant.
type Line struct {
	Text   string
	Origin int // 1-based original source line number, for diagnostics
	Pinned bool
}

// NewLine trims raw source text into a Line, preserving #APP/#NO_APP
// verbatim per the data-model invariant.
func NewLine(raw string, origin int) Line {
	text := raw
	if !reAppStart.MatchString(raw) && !reAppEnd.MatchString(raw) {
		text = strings.TrimRight(raw, " \t")
	}
	return Line{
		Text:   text,
		Origin: origin,
		Pinned: reDoNotOptimize.MatchString(raw),
	}
}

// Code returns the line's text with surrounding indentation stripped,
// the form every instruction-pattern regex matches against.
func (l Line) Code() string { return strings.TrimSpace(l.Text) }

func (l Line) IsBlank() bool       { return reBlank.MatchString(l.Text) }
func (l Line) IsComment() bool     { return reComment.MatchString(l.Text) }
func (l Line) IsAppStart() bool    { return reAppStart.MatchString(l.Text) }
func (l Line) IsAppEnd() bool      { return reAppEnd.MatchString(l.Text) }
func (l Line) IsNeutralized() bool { return strings.HasPrefix(strings.TrimLeft(l.Text, " \t"), "#") && !l.IsAppMarker() }
func (l Line) IsAppMarker() bool   { return l.IsAppStart() || l.IsAppEnd() }

// LabelName returns the defined label name and true, if this line
// defines one (possibly alongside trailing code on the same line).
func (l Line) LabelName() (string, bool) {
	if m := reLabelDef.FindStringSubmatch(l.Text); m != nil {
		return m[1], true
	}
	if m := reLocalLabelDef.FindStringSubmatch(l.Text); m != nil {
		return m[1], true
	}
	return "", false
}

// TrailingAfterLabel returns any code following a "label: code" line.
func (l Line) TrailingAfterLabel() string {
	if m := reLabelDef.FindStringSubmatch(l.Text); m != nil {
		return strings.TrimSpace(m[2])
	}
	return ""
}

// Directive returns the directive name (without the dot) and its
// argument text, if this line is a directive.
func (l Line) Directive() (name string, args string, ok bool) {
	if m := reDirective.FindStringSubmatch(l.Text); m != nil {
		return m[1], strings.TrimSpace(m[2]), true
	}
	return "", "", false
}

// IsInstruction reports whether the line looks like a mnemonic line
// (indented, starting with a letter).
func (l Line) IsInstruction() bool {
	return reInsnLine.MatchString(l.Text) && !l.IsDirective()
}

func (l Line) IsDirective() bool {
	_, _, ok := l.Directive()
	return ok
}

// Mnemonic returns the lower-cased opcode with no size suffix.
func (l Line) Mnemonic() string {
	m := reInsnLine.FindStringSubmatch(l.Text)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Size returns the size suffix attached to the mnemonic, if any.
func (l Line) Size() Size {
	m := reInsnLine.FindStringSubmatch(l.Text)
	if m == nil {
		return SizeUnspecified
	}
	return parseSize(m[3])
}

// SizeSuffix returns the raw suffix letter on the mnemonic ("b", "w",
// "l", "s" for short branches) or "" when none is present.
func (l Line) SizeSuffix() string {
	m := reInsnLine.FindStringSubmatch(l.Text)
	if m == nil {
		return ""
	}
	return m[3]
}

// OperandText returns the raw operand text following the mnemonic.
func (l Line) OperandText() string {
	m := reInsnLine.FindStringSubmatch(l.Text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(stripTrailingComment(m[4]))
}

func stripTrailingComment(s string) string {
	// '|' and ';' both introduce end-of-line comments in GAS m68k
	// output; split on the first unparenthesized occurrence.
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case '|', ';':
			if depth == 0 {
				return s[:i]
			}
		}
	}
	return s
}

// Operands splits the operand text on top-level commas (commas inside
// parens, e.g. disp(aN,xN.s), are not split points).
func (l Line) Operands() []string {
	text := l.OperandText()
	if text == "" {
		return nil
	}
	var out []string
	depth := 0
	start := 0
	for i, r := range text {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(text[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(text[start:]))
	return lo.Map(out, func(s string, _ int) string { return s })
}

// Registers returns every register token (%dN, %aN, %sp, %pc, %fp)
// that textually appears in the line, in order of appearance.
func (l Line) Registers() []string {
	return registerTokenRe.FindAllString(l.Text, -1)
}

var registerTokenRe = regexp.MustCompile(`%(d[0-7]|a[0-7]|sp|pc|fp)\b`)

// IsRegister reports whether tok (with leading %) is a register token.
func IsRegister(tok string) bool { return reRegister.MatchString(tok) }

// parseImmediate parses a GAS immediate operand (#NNN, #0xNN, #0bNN,
// #$NN as hex, #%NN as binary) and returns its value.
func parseImmediate(operand string) (int64, bool) {
	if !strings.HasPrefix(operand, "#") {
		return 0, false
	}
	body := operand[1:]
	neg := false
	if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	}
	var v int64
	var err error
	switch {
	case strings.HasPrefix(body, "0x"), strings.HasPrefix(body, "0X"):
		v, err = strconv.ParseInt(body[2:], 16, 64)
	case strings.HasPrefix(body, "$"):
		v, err = strconv.ParseInt(body[1:], 16, 64)
	case strings.HasPrefix(body, "0b"), strings.HasPrefix(body, "0B"):
		v, err = strconv.ParseInt(body[2:], 2, 64)
	case strings.HasPrefix(body, "%"):
		v, err = strconv.ParseInt(body[1:], 2, 64)
	default:
		v, err = strconv.ParseInt(body, 10, 64)
	}
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// isDataReg / isAddrReg classify a bare register token.
func isDataReg(reg string) bool { return len(reg) == 2 && reg[0] == 'd' && reg[1] >= '0' && reg[1] <= '7' }
func isAddrReg(reg string) bool {
	return (len(reg) == 2 && reg[0] == 'a' && reg[1] >= '0' && reg[1] <= '7') || reg == "sp"
}

// scratchPad is the conventional non-callee-saved register set.
var scratchPad = map[string]bool{"d0": true, "d1": true, "a0": true, "a1": true}
