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
	"strconv"
	"strings"
)

// sizer computes encoded byte sizes for the branch-shortening pass. It
// understands operand addressing modes, the .byte/.word/.long data
// directives, .rept/.endr with substituted .set variables, and
// .if/.endif evaluated against previously set variables, per §4.6(c).
// Alignment directives are counted at their worst case so an
// overestimate can only suppress a shortening, never enable a bad one.
type sizer struct {
	vars map[string]int64
	log  *Logger
}

// newSizer builds a sizer primed with every `.set`/`.equ` assignment
// appearing in lines[:upto], so expressions inside the sized region can
// reference variables defined earlier in the file.
func newSizer(lines []Line, upto int, log *Logger) *sizer {
	s := &sizer{vars: map[string]int64{}, log: log}
	for i := 0; i < upto && i < len(lines); i++ {
		s.recordSet(lines[i])
	}
	return s
}

func (s *sizer) recordSet(l Line) {
	name, args, ok := l.Directive()
	if !ok || (name != "set" && name != "equ") {
		return
	}
	parts := strings.SplitN(args, ",", 2)
	if len(parts) != 2 {
		return
	}
	sym := strings.TrimSpace(parts[0])
	v, err := s.eval(strings.TrimSpace(parts[1]))
	if err != nil {
		// An unevaluable assignment poisons the symbol rather than the
		// whole region; only expressions that actually reference it fail.
		delete(s.vars, sym)
		return
	}
	s.vars[sym] = v
}

// regionSize totals the encoded bytes of lines[from:to]. The second
// return is false when an expression the total depends on cannot be
// evaluated; callers treat the region as out of short-branch range.
func (s *sizer) regionSize(lines []Line, from, to int) (int, bool) {
	total := 0
	i := from
	for i < to && i < len(lines) {
		l := lines[i]
		if name, args, ok := l.Directive(); ok {
			switch name {
			case "set", "equ":
				s.recordSet(l)
				i++
			case "rept":
				count, err := s.eval(args)
				if err != nil {
					s.warnExpr(l, err)
					return 0, false
				}
				endr := matchingEnd(lines, i+1, to, "rept", "endr")
				if endr < 0 {
					return 0, false
				}
				inner, ok := s.regionSize(lines, i+1, endr)
				if !ok {
					return 0, false
				}
				total += int(count) * inner
				i = endr + 1
			case "if":
				cond, err := s.eval(args)
				if err != nil {
					s.warnExpr(l, err)
					return 0, false
				}
				endif := matchingEnd(lines, i+1, to, "if", "endif")
				if endif < 0 {
					return 0, false
				}
				if cond != 0 {
					inner, ok := s.regionSize(lines, i+1, endif)
					if !ok {
						return 0, false
					}
					total += inner
				}
				i = endif + 1
			case "endr", "endif":
				// Unbalanced close; structure the caller handed us is off.
				return 0, false
			default:
				total += directiveSize(name, args)
				i++
			}
			continue
		}
		total += instructionSize(l)
		i++
	}
	return total, true
}

func (s *sizer) warnExpr(l Line, err error) {
	if s.log != nil {
		s.log.Warnf("cannot size line %d (%s): %v", l.Origin, l.Code(), err)
	}
}

// matchingEnd finds the index of the directive closing an open/close
// pair, honoring nesting, or -1 when the region is unbalanced.
func matchingEnd(lines []Line, from, to int, opening, closing string) int {
	depth := 0
	for i := from; i < to && i < len(lines); i++ {
		name, _, ok := lines[i].Directive()
		if !ok {
			continue
		}
		switch name {
		case opening:
			depth++
		case closing:
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

func directiveSize(name, args string) int {
	switch name {
	case "byte":
		return countOperandList(args)
	case "word", "short":
		return 2 * countOperandList(args)
	case "long":
		return 4 * countOperandList(args)
	case "ascii":
		return quotedLength(args)
	case "asciz", "string":
		return quotedLength(args) + 1
	case "even":
		return 1 // worst case
	case "align", "balign":
		if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 1 {
			return n - 1 // worst case
		}
		return 0
	default:
		return 0
	}
}

func countOperandList(args string) int {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0
	}
	return strings.Count(args, ",") + 1
}

func quotedLength(args string) int {
	n := 0
	inString := false
	escaped := false
	for _, r := range args {
		switch {
		case escaped:
			n++
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
			n++
		}
	}
	return n
}

// instructionSize is the per-mnemonic byte model: a 2-byte opcode word
// plus extension words per operand addressing mode. Short branches and
// moveq carry their operand inside the opcode word.
func instructionSize(l Line) int {
	if l.IsBlank() || l.IsComment() || l.IsAppMarker() || l.IsNeutralized() {
		return 0
	}
	if _, isLabel := l.LabelName(); isLabel && l.Mnemonic() == "" {
		return 0
	}
	if !l.IsInstruction() {
		return 0
	}

	mnem := l.Mnemonic()
	sz := l.Size()
	ops := l.Operands()

	switch mnem {
	case "moveq", "rts", "rte", "nop", "swap", "unlk", "trap", "stop", "reset", "trapv", "illegal":
		return 2
	case "ext", "extb":
		return 2
	case "link":
		return 4
	case "dbra", "dbf", "dbt", "dbeq", "dbne", "dbge", "dbgt", "dble", "dblt",
		"dbhi", "dbls", "dbcc", "dbcs", "dbvc", "dbvs", "dbpl", "dbmi":
		return 4
	}

	if branchMnemonics[mnem] && mnem != "jmp" && mnem != "jsr" {
		if l.SizeSuffix() == "s" {
			return 2
		}
		return 4
	}

	size := 2
	if mnem == "movem" {
		// Opcode word plus the register-mask word; the symbolic list
		// operand itself contributes nothing.
		size = 4
		for _, op := range ops {
			if strings.Contains(op, "(") {
				size += eaExtensionBytes(op, sz)
			}
		}
		return size
	}
	if mnem == "addq" || mnem == "subq" {
		// The quick immediate lives in the opcode word; only the
		// destination can add extension words.
		if len(ops) == 2 {
			size += eaExtensionBytes(ops[1], sz)
		}
		return size
	}
	if mnem == "btst" || mnem == "bchg" || mnem == "bclr" || mnem == "bset" {
		if len(ops) == 2 {
			if strings.HasPrefix(ops[0], "#") {
				size += 2
			}
			size += eaExtensionBytes(ops[1], sz)
		}
		return size
	}
	if mnem == "asl" || mnem == "asr" || mnem == "lsl" || mnem == "lsr" ||
		mnem == "rol" || mnem == "ror" || mnem == "roxl" || mnem == "roxr" {
		// Register shifts encode the count in the opcode word; only the
		// memory form takes extension words.
		if len(ops) == 1 {
			size += eaExtensionBytes(ops[0], sz)
		}
		return size
	}

	for _, op := range ops {
		size += eaExtensionBytes(op, sz)
	}
	return size
}

// eaExtensionBytes returns the extension-word bytes one operand adds:
// none for register-direct and plain indirect modes, one word for
// displaced and indexed modes, one or two words for immediates by
// size, and a long absolute word pair for bare symbols and addresses.
func eaExtensionBytes(op string, sz Size) int {
	op = strings.TrimSpace(op)
	switch {
	case op == "":
		return 0
	case IsRegister(op):
		return 0
	case strings.HasPrefix(op, "#"):
		if sz == SizeLong {
			return 4
		}
		return 2
	case strings.HasPrefix(op, "-(") || strings.HasSuffix(op, ")+"):
		return 0
	case strings.HasPrefix(op, "(") && strings.HasSuffix(op, ")") && !strings.Contains(op, ","):
		inner := strings.TrimSuffix(strings.TrimPrefix(op, "("), ")")
		if IsRegister(inner) {
			return 0
		}
		return 2
	case strings.Contains(op, "("):
		return 2
	case strings.HasSuffix(op, ".w"):
		return 2
	default:
		// Absolute long address or a bare symbol reference.
		return 4
	}
}

// eval evaluates a GAS integer constant expression over previously set
// variables: + - * / % ( ), unary minus, decimal, 0x/0b and $ literals.
type exprParser struct {
	s    string
	pos  int
	vars map[string]int64
}

func (s *sizer) eval(expr string) (int64, error) {
	p := &exprParser{s: expr, vars: s.vars}
	v, err := p.parseAddSub()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return 0, fmt.Errorf("trailing text %q in expression %q", p.s[p.pos:], expr)
	}
	return v, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) parseAddSub() (int64, error) {
	v, err := p.parseMulDiv()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			return v, nil
		}
		op := p.s[p.pos]
		if op != '+' && op != '-' {
			return v, nil
		}
		p.pos++
		rhs, err := p.parseMulDiv()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			v += rhs
		} else {
			v -= rhs
		}
	}
}

func (p *exprParser) parseMulDiv() (int64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.s) {
			return v, nil
		}
		op := p.s[p.pos]
		if op != '*' && op != '/' && op != '%' {
			return v, nil
		}
		p.pos++
		rhs, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			v *= rhs
		case '/':
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero in %q", p.s)
			}
			v /= rhs
		case '%':
			if rhs == 0 {
				return 0, fmt.Errorf("modulo by zero in %q", p.s)
			}
			v %= rhs
		}
	}
}

func (p *exprParser) parseUnary() (int64, error) {
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (int64, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0, fmt.Errorf("unexpected end of expression %q", p.s)
	}
	if p.s[p.pos] == '(' {
		p.pos++
		v, err := p.parseAddSub()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.s) || p.s[p.pos] != ')' {
			return 0, fmt.Errorf("missing ')' in expression %q", p.s)
		}
		p.pos++
		return v, nil
	}
	start := p.pos
	if p.s[p.pos] == '$' {
		p.pos++
		for p.pos < len(p.s) && isHexDigit(p.s[p.pos]) {
			p.pos++
		}
		return strconv.ParseInt(p.s[start+1:p.pos], 16, 64)
	}
	if c := p.s[p.pos]; c >= '0' && c <= '9' {
		for p.pos < len(p.s) && (isHexDigit(p.s[p.pos]) || p.s[p.pos] == 'x' || p.s[p.pos] == 'X' || p.s[p.pos] == 'b' || p.s[p.pos] == 'B') {
			p.pos++
		}
		tok := p.s[start:p.pos]
		switch {
		case strings.HasPrefix(tok, "0x"), strings.HasPrefix(tok, "0X"):
			return strconv.ParseInt(tok[2:], 16, 64)
		case strings.HasPrefix(tok, "0b"), strings.HasPrefix(tok, "0B"):
			return strconv.ParseInt(tok[2:], 2, 64)
		default:
			return strconv.ParseInt(tok, 10, 64)
		}
	}
	for p.pos < len(p.s) && isSymbolChar(p.s[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("unexpected character %q in expression %q", p.s[p.pos], p.s)
	}
	sym := p.s[start:p.pos]
	v, ok := p.vars[sym]
	if !ok {
		return 0, fmt.Errorf("undefined symbol %q in expression %q", sym, p.s)
	}
	return v, nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isSymbolChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.' || c == '$'
}
