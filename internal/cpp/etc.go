// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"fmt"
	"go/scanner"
	"io"

	"modernc.org/strutil"
	"modernc.org/xc"
)

var dict = xc.Dict

// Interned spellings the dispatcher and the expansion engine switch on.
var (
	idBaseFile       = dict.SID("__BASE_FILE__")
	idCounter        = dict.SID("__COUNTER__")
	idDate           = dict.SID("__DATE__")
	idDefine         = dict.SID("define")
	idDefined        = dict.SID("defined")
	idElif           = dict.SID("elif")
	idElse           = dict.SID("else")
	idEndif          = dict.SID("endif")
	idError          = dict.SID("error")
	idFile           = dict.SID("__FILE__")
	idFunc           = dict.SID("__func__")
	idHasInclude     = dict.SID("__has_include")
	idHasIncludeNext = dict.SID("__has_include_next")
	idIf             = dict.SID("if")
	idIfdef          = dict.SID("ifdef")
	idIfndef         = dict.SID("ifndef")
	idInclude        = dict.SID("include")
	idIncludeLevel   = dict.SID("__INCLUDE_LEVEL__")
	idIncludeNext    = dict.SID("include_next")
	idLine           = dict.SID("line")
	idLineMacro      = dict.SID("__LINE__")
	idOffsetof       = dict.SID("offsetof")
	idOnce           = dict.SID("once")
	idPragma         = dict.SID("pragma")
	idPragmaOp       = dict.SID("_Pragma")
	idSTDC           = dict.SID("__STDC__")
	idSTDCVersion    = dict.SID("__STDC_VERSION__")
	idTime           = dict.SID("__TIME__")
	idUndef          = dict.SID("undef")
	idVaArgs         = dict.SID("__VA_ARGS__")
	idWarning        = dict.SID("warning")
)

// Names that is_defined reports as defined even without a macro table entry.
var alwaysDefined = map[int]bool{
	idDate:        true,
	idFile:        true,
	idFunc:        true,
	idLineMacro:   true,
	idOffsetof:    true,
	idSTDC:        true,
	idSTDCVersion: true,
	idTime:        true,
}

// PrettyString returns pretty strings for things produced by this package.
func PrettyString(v interface{}) string {
	return strutil.PrettyString(v, "", "", nil)
}

func isIdentFirst(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentNext(c byte) bool {
	return isIdentFirst(c) || c >= '0' && c <= '9'
}

// identEnd returns the index just past the identifier starting at s[i], or i
// when s[i] does not start one.
func identEnd(s string, i int) int {
	if i >= len(s) || !isIdentFirst(s[i]) {
		return i
	}

	j := i + 1
	for j < len(s) && isIdentNext(s[j]) {
		j++
	}
	return j
}

func skipBlank(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

// litEnd returns the index just past the string or character literal starting
// at s[i]. Backslash escapes the delimiter. An unterminated literal runs to
// the end of the line.
func litEnd(s string, i int) int {
	q := s[i]
	j := i + 1
	for j < len(s) {
		switch s[j] {
		case '\\':
			j++
			if j < len(s) {
				j++
			}
			continue
		case q:
			return j + 1
		}
		j++
	}
	return j
}

// PrintError pretty prints err to w, one diagnostic per line.
func PrintError(w io.Writer, pref string, err error) {
	switch x := err.(type) {
	case scanner.ErrorList:
		x.RemoveMultiples()
		for i, v := range x {
			fmt.Fprintf(w, "%s%v\n", pref, v)
			if i == 50 {
				fmt.Fprintln(w, "too many errors")
				break
			}
		}
	default:
		fmt.Fprintf(w, "%s%v\n", pref, err)
	}
}
