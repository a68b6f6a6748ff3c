// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"go/token"
	"math"
	"strconv"
	"strings"

	"modernc.org/golex/lex"
	"modernc.org/ir"
	"modernc.org/xc"
)

// Token kinds produced by the expression scanner. Single-character operators
// are their own kind.
const (
	ccEOF = iota + 0xe000
	IDENTIFIER
	INTCONST
	CHARCONST
	STRINGLITERAL
	ANDAND
	OROR
	EQ
	NEQ
	LEQ
	GEQ
	LSH
	RSH
)

// Operand is the value of a #if/#elif controlling expression.
type Operand struct {
	Value ir.Value
}

func (o Operand) isNonZero() bool {
	x, ok := o.Value.(*ir.Int64Value)
	return ok && x.Value != 0
}

// constExpr evaluates the controlling expression of #if/#elif. ok is false
// when the expression is malformed; the caller reports it and treats the
// expression as false.
func (c *cpp) constExpr(s string, pos token.Pos) (op Operand, ok bool) {
	s = c.evalDefined(s)
	s, ok = c.evalHasInclude(s, pos)
	if !ok {
		return Operand{}, false
	}

	s, err := c.expandLine(s, pos)
	if err != nil {
		return Operand{}, false
	}

	p := &exprParser{lx: exprLexer{s: s, base: pos}, c: c}
	v := p.cond()
	if t := p.next(); t.Rune != ccEOF {
		p.bad = true
	}
	if p.bad || p.lx.bad {
		return Operand{}, false
	}

	return Operand{Value: &ir.Int64Value{Value: v}}, true
}

// evalDefined rewrites defined NAME and defined(NAME) to 0 or 1 before any
// macro expansion of the expression text.
func (c *cpp) evalDefined(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		switch {
		case s[i] == '"' || s[i] == '\'':
			j := litEnd(s, i)
			b.WriteString(s[i:j])
			i = j
		case isIdentFirst(s[i]):
			j := identEnd(s, i)
			if dict.SID(s[i:j]) != idDefined {
				b.WriteString(s[i:j])
				i = j
				continue
			}

			k := skipBlank(s, j)
			paren := false
			if k < len(s) && s[k] == '(' {
				paren = true
				k = skipBlank(s, k+1)
			}
			e := identEnd(s, k)
			if e == k {
				// Malformed; keep the keyword and let the
				// parser reject it.
				b.WriteString(s[i:j])
				i = j
				continue
			}

			nm := dict.SID(s[k:e])
			e = skipBlank(s, e)
			if paren {
				if e >= len(s) || s[e] != ')' {
					b.WriteString(s[i:j])
					i = j
					continue
				}

				e++
			}
			if c.macros.isDefined(nm) {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
			i = e
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// evalHasInclude rewrites __has_include(...) and __has_include_next(...) to 0
// or 1. The argument text is macro-expanded first, then parsed as a header
// name; the probe registers neither the file nor a dependency.
func (c *cpp) evalHasInclude(s string, pos token.Pos) (string, bool) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		switch {
		case s[i] == '"' || s[i] == '\'':
			j := litEnd(s, i)
			b.WriteString(s[i:j])
			i = j
		case isIdentFirst(s[i]):
			j := identEnd(s, i)
			nm := dict.SID(s[i:j])
			if nm != idHasInclude && nm != idHasIncludeNext {
				b.WriteString(s[i:j])
				i = j
				continue
			}

			k := skipBlank(s, j)
			if k >= len(s) || s[k] != '(' {
				return s, false
			}

			end, ok := balancedEnd(s, k)
			if !ok {
				return s, false
			}

			found, ok := c.hasInclude(s[k+1:end-1], nm == idHasIncludeNext, pos)
			if !ok {
				return s, false
			}

			if found {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
			i = end
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), true
}

func (c *cpp) hasInclude(arg string, next bool, pos token.Pos) (found, ok bool) {
	arg, err := c.expandLine(arg, pos)
	if err != nil {
		return false, false
	}

	arg = strings.TrimSpace(arg)
	var nm string
	var quoted bool
	switch {
	case len(arg) > 1 && arg[0] == '<' && arg[len(arg)-1] == '>':
		nm = arg[1 : len(arg)-1]
	case len(arg) > 1 && arg[0] == '"' && arg[len(arg)-1] == '"':
		nm = arg[1 : len(arg)-1]
		quoted = true
	default:
		return false, false
	}

	start := 0
	if next {
		start = c.topInclude().foundIdx + 1
	}
	_, _, hit := c.resolver.resolve(nm, quoted, c.curDir(), start)
	return hit, true
}

type ungetBuffer []xc.Token

func (u *ungetBuffer) unget(t xc.Token) { *u = append(*u, t) }

func (u *ungetBuffer) read() (t xc.Token) {
	s := *u
	n := len(s) - 1
	t = s[n]
	*u = s[:n]
	return t
}

type exprLexer struct {
	s    string
	i    int
	base token.Pos
	bad  bool
}

func (l *exprLexer) char(start int, kind rune) lex.Char {
	return lex.NewChar(l.base+token.Pos(start), kind)
}

func (l *exprLexer) scan() (t xc.Token) {
	for l.i < len(l.s) && (l.s[l.i] == ' ' || l.s[l.i] == '\t') {
		l.i++
	}
	if l.i >= len(l.s) {
		return xc.Token{Char: l.char(l.i, ccEOF)}
	}

	start := l.i
	ch := l.s[l.i]
	switch {
	case isIdentFirst(ch):
		l.i = identEnd(l.s, l.i)
		return xc.Token{Char: l.char(start, IDENTIFIER), Val: dict.SID(l.s[start:l.i])}
	case ch >= '0' && ch <= '9' || ch == '.' && l.i+1 < len(l.s) && l.s[l.i+1] >= '0' && l.s[l.i+1] <= '9':
		l.i = ppnumEnd(l.s, l.i)
		return xc.Token{Char: l.char(start, INTCONST), Val: dict.SID(l.s[start:l.i])}
	case ch == '\'':
		l.i = litEnd(l.s, l.i)
		return xc.Token{Char: l.char(start, CHARCONST), Val: dict.SID(l.s[start:l.i])}
	case ch == '"':
		l.i = litEnd(l.s, l.i)
		return xc.Token{Char: l.char(start, STRINGLITERAL), Val: dict.SID(l.s[start:l.i])}
	}

	two := ""
	if l.i+1 < len(l.s) {
		two = l.s[l.i : l.i+2]
	}
	kind := rune(0)
	switch two {
	case "&&":
		kind = ANDAND
	case "||":
		kind = OROR
	case "==":
		kind = EQ
	case "!=":
		kind = NEQ
	case "<=":
		kind = LEQ
	case ">=":
		kind = GEQ
	case "<<":
		kind = LSH
	case ">>":
		kind = RSH
	}
	if kind != 0 {
		l.i += 2
		return xc.Token{Char: l.char(start, kind)}
	}

	switch ch {
	case '+', '-', '*', '/', '%', '&', '|', '^', '~', '!', '<', '>', '?', ':', '(', ')', ',':
		l.i++
		return xc.Token{Char: l.char(start, rune(ch))}
	}

	l.bad = true
	l.i++
	return xc.Token{Char: l.char(start, ccEOF)}
}

// exprParser evaluates the token stream with the standard C operator
// precedence, all arithmetic in signed 64 bits.
type exprParser struct {
	c  *cpp
	lx exprLexer
	ungetBuffer

	bad bool
}

func (p *exprParser) next() xc.Token {
	if len(p.ungetBuffer) != 0 {
		return p.ungetBuffer.read()
	}

	return p.lx.scan()
}

func b2i(b bool) int64 {
	if b {
		return 1
	}

	return 0
}

func (p *exprParser) cond() int64 {
	v := p.lor()
	t := p.next()
	if t.Rune != '?' {
		p.unget(t)
		return v
	}

	a := p.cond()
	if t = p.next(); t.Rune != ':' {
		p.bad = true
		return 0
	}

	b := p.cond()
	if v != 0 {
		return a
	}

	return b
}

func (p *exprParser) lor() int64 {
	v := p.land()
	for {
		t := p.next()
		if t.Rune != OROR {
			p.unget(t)
			return v
		}

		w := p.land()
		v = b2i(v != 0 || w != 0)
	}
}

func (p *exprParser) land() int64 {
	v := p.or()
	for {
		t := p.next()
		if t.Rune != ANDAND {
			p.unget(t)
			return v
		}

		w := p.or()
		v = b2i(v != 0 && w != 0)
	}
}

func (p *exprParser) or() int64 {
	v := p.xor()
	for {
		t := p.next()
		if t.Rune != '|' {
			p.unget(t)
			return v
		}

		v |= p.xor()
	}
}

func (p *exprParser) xor() int64 {
	v := p.and()
	for {
		t := p.next()
		if t.Rune != '^' {
			p.unget(t)
			return v
		}

		v ^= p.and()
	}
}

func (p *exprParser) and() int64 {
	v := p.equality()
	for {
		t := p.next()
		if t.Rune != '&' {
			p.unget(t)
			return v
		}

		v &= p.equality()
	}
}

func (p *exprParser) equality() int64 {
	v := p.relational()
	for {
		switch t := p.next(); t.Rune {
		case EQ:
			v = b2i(v == p.relational())
		case NEQ:
			v = b2i(v != p.relational())
		default:
			p.unget(t)
			return v
		}
	}
}

func (p *exprParser) relational() int64 {
	v := p.shift()
	for {
		switch t := p.next(); t.Rune {
		case '<':
			v = b2i(v < p.shift())
		case '>':
			v = b2i(v > p.shift())
		case LEQ:
			v = b2i(v <= p.shift())
		case GEQ:
			v = b2i(v >= p.shift())
		default:
			p.unget(t)
			return v
		}
	}
}

// shiftCount clamps n to [0, 63].
func shiftCount(n int64) uint {
	if n < 0 {
		return 0
	}

	if n > 63 {
		return 63
	}

	return uint(n)
}

func (p *exprParser) shift() int64 {
	v := p.additive()
	for {
		switch t := p.next(); t.Rune {
		case LSH:
			v <<= shiftCount(p.additive())
		case RSH:
			v >>= shiftCount(p.additive())
		default:
			p.unget(t)
			return v
		}
	}
}

func (p *exprParser) additive() int64 {
	v := p.multiplicative()
	for {
		switch t := p.next(); t.Rune {
		case '+':
			v += p.multiplicative()
		case '-':
			v -= p.multiplicative()
		default:
			p.unget(t)
			return v
		}
	}
}

func (p *exprParser) multiplicative() int64 {
	v := p.unary()
	for {
		switch t := p.next(); t.Rune {
		case '*':
			v *= p.unary()
		case '/':
			// Safe default, not UB.
			if d := p.unary(); d != 0 {
				v /= d
			} else {
				v = 0
			}
		case '%':
			if d := p.unary(); d != 0 {
				v %= d
			} else {
				v = 0
			}
		default:
			p.unget(t)
			return v
		}
	}
}

func (p *exprParser) unary() int64 {
	switch t := p.next(); t.Rune {
	case '!':
		return b2i(p.unary() == 0)
	case '~':
		return ^p.unary()
	case '+':
		return p.unary()
	case '-':
		return -p.unary()
	default:
		p.unget(t)
		return p.primary()
	}
}

func (p *exprParser) primary() int64 {
	switch t := p.next(); t.Rune {
	case '(':
		v := p.cond()
		if t = p.next(); t.Rune != ')' {
			p.bad = true
			return 0
		}

		return v
	case INTCONST:
		return p.intConst(t)
	case CHARCONST:
		return charConst(string(dict.S(t.Val)))
	case IDENTIFIER:
		// Undefined identifiers evaluate to zero.
		return 0
	default:
		p.bad = true
		return 0
	}
}

// intConst parses a decimal, octal or hex literal. Suffixes are ignored;
// out-of-range values clamp rather than error.
func (p *exprParser) intConst(t xc.Token) int64 {
	s := string(dict.S(t.Val))
	s = strings.TrimRight(s, "uUlL")
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return math.MaxInt64
		}

		p.bad = true
		return 0
	}

	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}

// charConst decodes a character literal including its quotes, clamping the
// value to one byte.
func charConst(s string) int64 {
	if len(s) < 3 || s[0] != '\'' {
		return 0
	}

	s = s[1:]
	if s[len(s)-1] == '\'' {
		s = s[:len(s)-1]
	}
	if s == "" {
		return 0
	}

	if s[0] != '\\' {
		return int64(s[0])
	}

	if len(s) < 2 {
		return int64('\\')
	}

	switch s[1] {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case 'a':
		return 7
	case 'b':
		return 8
	case 'f':
		return 12
	case 'v':
		return 11
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n := int64(0)
		for i := 1; i < len(s) && s[i] >= '0' && s[i] <= '7'; i++ {
			n = n*8 + int64(s[i]-'0')
		}
		return n & 0xff
	case 'x':
		n := int64(0)
		for i := 2; i < len(s); i++ {
			d := hexDigit(s[i])
			if d < 0 {
				break
			}

			n = n*16 + int64(d)
		}
		return n & 0xff
	default:
		return int64(s[1])
	}
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
