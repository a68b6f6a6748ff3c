// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"go/token"
	"strings"
)

// Macro represents a preprocessor macro.
type Macro struct {
	Name   int    // Numeric ID of the macro name.
	Params []int  // Numeric IDs of the parameter identifiers, in order.
	Body   string // Replacement text, verbatim.

	IsFnLike   bool // Whether the macro is function like.
	IsVariadic bool // Whether the macro is variadic.
}

func newMacro(nm int, body string) *Macro { return &Macro{Name: nm, Body: body} }

// paramIndex returns the positional index of nm in m.Params, or -1.
func (m *Macro) paramIndex(nm int) int {
	for i, v := range m.Params {
		if v == nm {
			return i
		}
	}
	return -1
}

// macroTable maps name IDs to their single live definition.
type macroTable struct {
	m map[int]*Macro
}

func newMacroTable() *macroTable { return &macroTable{m: map[int]*Macro{}} }

// define installs m, replacing any existing definition of the same name.
func (t *macroTable) define(m *Macro) { t.m[m.Name] = m }

func (t *macroTable) undef(nm int) { delete(t.m, nm) }

func (t *macroTable) lookup(nm int) *Macro { return t.m[nm] }

// isDefined also recognizes the fixed builtin names as always defined.
func (t *macroTable) isDefined(nm int) bool {
	if alwaysDefined[nm] {
		return true
	}

	_, ok := t.m[nm]
	return ok
}

// parseDefine handles the text after the #define keyword.
func (c *cpp) parseDefine(s string, pos token.Pos) {
	s = strings.TrimRight(s[skipBlank(s, 0):], " \t")
	j := identEnd(s, 0)
	if j == 0 {
		c.errPos(pos, "empty define not allowed")
		return
	}

	nm := dict.SID(s[:j])
	if j < len(s) && s[j] == '(' {
		c.parseFnDefine(nm, s[j+1:], pos)
		return
	}

	c.macros.define(newMacro(nm, s[skipBlank(s, j):]))
}

// parseFnDefine parses a function-like definition; s starts right after the
// opening parenthesis of the parameter list.
func (c *cpp) parseFnDefine(nm int, s string, pos token.Pos) {
	m := &Macro{Name: nm, IsFnLike: true}
	i := 0
	wantIdent := true
	for {
		i = skipBlank(s, i)
		if i >= len(s) {
			c.errPos(pos, "unterminated macro parameter list")
			return
		}

		switch {
		case s[i] == ')':
			if wantIdent && len(m.Params) != 0 {
				c.errPos(pos, "expected parameter name")
				return
			}

			m.Body = s[skipBlank(s, i+1):]
			c.macros.define(m)
			return
		case strings.HasPrefix(s[i:], "..."):
			m.IsVariadic = true
			i = skipBlank(s, i+3)
			if i >= len(s) || s[i] != ')' {
				c.errPos(pos, "expected ) after ...")
				return
			}
			wantIdent = false
		case isIdentFirst(s[i]):
			if !wantIdent {
				c.errPos(pos, "expected , or ) in macro parameter list")
				return
			}

			j := identEnd(s, i)
			p := dict.SID(s[i:j])
			if m.paramIndex(p) >= 0 {
				c.errPos(pos, "duplicate macro parameter %s", s[i:j])
				return
			}

			m.Params = append(m.Params, p)
			wantIdent = false
			i = skipBlank(s, j)
			if i < len(s) && s[i] == ',' {
				wantIdent = true
				i++
			}
		default:
			c.errPos(pos, "invalid macro parameter list")
			return
		}
	}
}

// parseUndef handles the text after the #undef keyword.
func (c *cpp) parseUndef(s string, pos token.Pos) {
	s = strings.TrimRight(s[skipBlank(s, 0):], " \t")
	j := identEnd(s, 0)
	if j == 0 || j != len(s) {
		c.errPos(pos, "expected identifier after #undef")
		return
	}

	c.macros.undef(dict.SID(s))
}
