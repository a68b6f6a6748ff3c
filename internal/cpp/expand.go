// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"go/token"
	"strconv"
	"strings"
)

// expandLine rewrites one text line, expanding macros and builtins. The hide
// set guarding against self-referential recursion is scoped to the line.
func (c *cpp) expandLine(s string, pos token.Pos) (string, error) {
	return c.expand(s, map[int]int{}, 0, pos)
}

// expand is the recursive worker behind expandLine. hs maps name IDs to
// their count on the active expansion path.
func (c *cpp) expand(s string, hs map[int]int, depth int, pos token.Pos) (string, error) {
	if depth > c.tweaks.MaxExpandDepth {
		c.errPos(pos, "macro expansion too deep")
		return "", errAborted
	}

	var b strings.Builder
	i := 0
	for i < len(s) {
		if c.tweaks.MaxExpandBytes > 0 && b.Len() > c.tweaks.MaxExpandBytes {
			c.errPos(pos, "macro expansion exceeds %v bytes", c.tweaks.MaxExpandBytes)
			return "", errAborted
		}

		ch := s[i]
		switch {
		case ch == '"' || ch == '\'':
			j := litEnd(s, i)
			b.WriteString(s[i:j])
			i = j
		case ch >= '0' && ch <= '9':
			j := ppnumEnd(s, i)
			b.WriteString(s[i:j])
			i = j
		case isIdentFirst(ch):
			j := identEnd(s, i)
			nm := dict.SID(s[i:j])
			if nm == idPragmaOp {
				if out, k, ok := pragmaOperator(s, j); ok {
					b.WriteString(out)
					i = k
					continue
				}
			}

			if out, ok := c.builtinMacro(nm, pos); ok {
				b.WriteString(out)
				i = j
				continue
			}

			m := c.macros.lookup(nm)
			if m == nil {
				b.WriteString(s[i:j])
				i = j
				continue
			}

			if hs[nm] != 0 {
				// Re-entry of a macro already being expanded:
				// emit the reference verbatim, argument list
				// included, so the outer context still sees the
				// literal call.
				b.WriteString(s[i:j])
				i = j
				if m.IsFnLike {
					if k := skipBlank(s, j); k < len(s) && s[k] == '(' {
						if end, ok := balancedEnd(s, k); ok {
							b.WriteString(s[j:end])
							i = end
						}
					}
				}
				continue
			}

			if !m.IsFnLike {
				hs[nm]++
				t, err := c.expand(m.Body, hs, depth+1, pos)
				hs[nm]--
				if err != nil {
					return "", err
				}

				b.WriteString(t)
				i = j
				continue
			}

			k := skipBlank(s, j)
			if k >= len(s) || s[k] != '(' {
				b.WriteString(s[i:j])
				i = j
				continue
			}

			args, end, ok := parseArgs(s, k)
			if !ok {
				b.WriteString(s[i:j])
				i = j
				continue
			}

			if len(m.Params) == 0 && len(args) == 1 && args[0] == "" && !m.IsVariadic {
				args = args[:0]
			}
			switch {
			case m.IsVariadic && len(args) < len(m.Params),
				!m.IsVariadic && len(args) != len(m.Params):

				// Wrong arity is not a macro invocation.
				b.WriteString(s[i:j])
				i = j
				continue
			}

			sub := c.substitute(m, args)
			hs[nm]++
			t, err := c.expand(sub, hs, depth+1, pos)
			hs[nm]--
			if err != nil {
				return "", err
			}

			b.WriteString(t)
			i = end
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return b.String(), nil
}

// substitute replaces parameters in the replacement text of m with the raw
// argument texts and applies the # and ## operators. The result is rescanned
// by the caller.
func (c *cpp) substitute(m *Macro, args []string) string {
	vaArgs := ""
	if m.IsVariadic && len(args) > len(m.Params) {
		vaArgs = strings.Join(args[len(m.Params):], ",")
	}
	arg := func(nm int) (string, bool) {
		if nm == idVaArgs {
			if m.IsVariadic {
				return vaArgs, true
			}

			return "", false
		}

		if ix := m.paramIndex(nm); ix >= 0 {
			if ix < len(args) {
				return args[ix], true
			}

			return "", true
		}

		return "", false
	}

	var out []byte
	body := m.Body
	i := 0
	for i < len(body) {
		ch := body[i]
		switch {
		case ch == '"' || ch == '\'':
			j := litEnd(body, i)
			out = append(out, body[i:j]...)
			i = j
		case ch == '#' && i+1 < len(body) && body[i+1] == '#':
			// Paste: drop the operator and the whitespace around
			// it so the operands concatenate directly. A missing
			// operand leaves the other one alone.
			for len(out) != 0 && (out[len(out)-1] == ' ' || out[len(out)-1] == '\t') {
				out = out[:len(out)-1]
			}
			i = skipBlank(body, i+2)
		case ch == '#':
			j := skipBlank(body, i+1)
			if k := identEnd(body, j); k > j {
				if a, ok := arg(dict.SID(body[j:k])); ok {
					out = append(out, stringize(a)...)
					i = k
					continue
				}
			}

			// Not a stringize sequence, keep the lone #.
			out = append(out, '#')
			i++
		case ch >= '0' && ch <= '9':
			j := ppnumEnd(body, i)
			out = append(out, body[i:j]...)
			i = j
		case isIdentFirst(ch):
			j := identEnd(body, i)
			if a, ok := arg(dict.SID(body[i:j])); ok {
				out = append(out, a...)
			} else {
				out = append(out, body[i:j]...)
			}
			i = j
		default:
			out = append(out, ch)
			i++
		}
	}
	return string(out)
}

// stringize converts raw argument text into an escaped string literal.
func stringize(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// builtinMacro returns the expansion of a builtin name, if nm is one.
func (c *cpp) builtinMacro(nm int, pos token.Pos) (string, bool) {
	switch nm {
	case idFile:
		return strconv.Quote(c.file), true
	case idLineMacro:
		return strconv.Itoa(c.line), true
	case idDate:
		return strconv.Quote(c.now.Format("Jan _2 2006")), true
	case idTime:
		return strconv.Quote(c.now.Format("15:04:05")), true
	case idSTDC:
		return "1", true
	case idSTDCVersion:
		return "199901L", true
	case idFunc:
		if c.fn == "" {
			return "", false
		}

		return strconv.Quote(c.fn), true
	case idBaseFile:
		return strconv.Quote(c.baseFile), true
	case idIncludeLevel:
		return strconv.Itoa(len(c.includes) - 1), true
	case idCounter:
		n := c.counter
		c.counter++
		if n == ^uint64(0) {
			c.warnPos(pos, "__COUNTER__ wrapped around")
		}
		return strconv.FormatUint(n, 10), true
	}
	return "", false
}

// pragmaOperator parses _Pragma("...") with j just past the _Pragma keyword
// and re-emits it as a #pragma line. The string is destringized: \" and \\
// revert to their plain forms.
func pragmaOperator(s string, j int) (out string, end int, ok bool) {
	i := skipBlank(s, j)
	if i >= len(s) || s[i] != '(' {
		return "", 0, false
	}

	i = skipBlank(s, i+1)
	if i >= len(s) || s[i] != '"' {
		return "", 0, false
	}

	k := litEnd(s, i)
	lit := s[i:k]
	if len(lit) < 2 || lit[len(lit)-1] != '"' {
		return "", 0, false
	}

	i = skipBlank(s, k)
	if i >= len(s) || s[i] != ')' {
		return "", 0, false
	}

	var b strings.Builder
	for p := 1; p < len(lit)-1; p++ {
		if lit[p] == '\\' && p+1 < len(lit)-1 && (lit[p+1] == '"' || lit[p+1] == '\\') {
			p++
		}
		b.WriteByte(lit[p])
	}
	return "\n#pragma " + b.String() + "\n", i + 1, true
}

// parseArgs splits the balanced argument list opening at s[lp] on top-level
// commas. Commas inside nested parentheses or literals do not split.
func parseArgs(s string, lp int) (args []string, end int, ok bool) {
	lvl := 0
	i := lp
	start := lp + 1
	for i < len(s) {
		switch s[i] {
		case '"', '\'':
			i = litEnd(s, i)
			continue
		case '(':
			lvl++
		case ')':
			lvl--
			if lvl == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				return args, i + 1, true
			}
		case ',':
			if lvl == 1 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
		i++
	}
	return nil, 0, false
}

// balancedEnd returns the index just past the parenthesis group opening at
// s[lp].
func balancedEnd(s string, lp int) (int, bool) {
	lvl := 0
	i := lp
	for i < len(s) {
		switch s[i] {
		case '"', '\'':
			i = litEnd(s, i)
			continue
		case '(':
			lvl++
		case ')':
			lvl--
			if lvl == 0 {
				return i + 1, true
			}
		}
		i++
	}
	return 0, false
}

// ppnumEnd returns the index just past the pp-number starting at s[i], so
// that literal suffixes and hex digits are never scanned as macro names.
func ppnumEnd(s string, i int) int {
	j := i + 1
	for j < len(s) {
		switch {
		case isIdentNext(s[j]) || s[j] == '.':
			j++
		case (s[j] == '+' || s[j] == '-') && (s[j-1] == 'e' || s[j-1] == 'E' || s[j-1] == 'p' || s[j-1] == 'P'):
			j++
		default:
			return j
		}
	}
	return j
}
