// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpp implements the vc preprocessing stage: macro expansion,
// conditional compilation, include resolution and pragma handling, producing
// a single expanded text buffer for the downstream parser.
package cpp

import (
	"bytes"
	"errors"
	"fmt"
	"go/scanner"
	"go/token"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxIncludeLevel = 20
	defaultMaxExpandDepth  = 4096
)

// errAborted unwinds a run after a fatal condition has been recorded in the
// error list.
var errAborted = errors.New("preprocessing aborted")

// Tweaks amend the behavior of the preprocessor.
type Tweaks struct {
	MaxExpandBytes  int // Expansion byte budget per line. 0: unlimited.
	MaxExpandDepth  int // 0: default (4096).
	MaxIncludeLevel int // 0: default (20).

	PackAlign     func(int)    // Called with the active #pragma pack value on every push/pop.
	TrackIncludes func(string) // Called with the path of every included file.
	TrackSearch   func(string) // Called with every path probed during include resolution.
}

// Config carries the driver-supplied search path and definition set for one
// run.
type Config struct {
	IncludePaths    []string // -I, order preserved.
	SysIncludePaths []string // -isystem.
	Defines         []string // NAME or NAME=VALUE.
	Undefs          []string
	Sysroot         string
	VCSysInclude    []string // --vc-sysinclude / VC_SYSINCLUDE extra system tier.
	InternalLibc    string   // Internal libc include dir. "": tier disabled.

	Hosts *HostIncludes // nil: query the toolchain lazily.
}

// Result of a successful run.
type Result struct {
	Text     string            // The fully expanded translation unit.
	Deps     []string          // Canonical paths of every file read, in first-use order.
	Warnings scanner.ErrorList // Non-fatal diagnostics.
}

// Preprocess runs the preprocessor on the file at path.
func Preprocess(fset *token.FileSet, tweaks *Tweaks, cfg *Config, path string) (*Result, error) {
	return run(fset, tweaks, cfg, NewFileSource(path))
}

// PreprocessSource runs the preprocessor on in-memory source text having the
// presumed name.
func PreprocessSource(fset *token.FileSet, tweaks *Tweaks, cfg *Config, name, src string) (*Result, error) {
	return run(fset, tweaks, cfg, NewStringSource(name, src))
}

func run(fset *token.FileSet, tweaks *Tweaks, cfg *Config, src Source) (*Result, error) {
	if fset == nil {
		fset = token.NewFileSet()
	}
	if tweaks == nil {
		tweaks = &Tweaks{}
	}
	if cfg == nil {
		cfg = &Config{}
	}
	ctx := newContext(fset, tweaks)
	c := newCPP(ctx, cfg)
	c.seed(cfg)
	ferr := c.processFile(src, curDirIndex, false)
	if err := ctx.error(); err != nil {
		return nil, err
	}

	if ferr != nil {
		// Fatal paths record a diagnostic first; anything else is an
		// internal error.
		return nil, ferr
	}

	ctx.warnings.Sort()
	return &Result{Text: c.out.String(), Deps: c.deps, Warnings: ctx.warnings}, nil
}

// context owns the diagnostics of one run.
type context struct {
	errors   scanner.ErrorList
	fset     *token.FileSet
	sync.Mutex
	tweaks   *Tweaks
	warnings scanner.ErrorList
}

func newContext(fset *token.FileSet, t *Tweaks) *context {
	if t.MaxIncludeLevel == 0 {
		t.MaxIncludeLevel = defaultMaxIncludeLevel
	}
	if t.MaxExpandDepth == 0 {
		t.MaxExpandDepth = defaultMaxExpandDepth
	}
	return &context{fset: fset, tweaks: t}
}

func (c *context) errPos(pos token.Pos, msg string, args ...interface{}) {
	c.Lock()
	c.errors.Add(c.fset.PositionFor(pos, true), fmt.Sprintf(msg, args...))
	c.Unlock()
}

func (c *context) warnPos(pos token.Pos, msg string, args ...interface{}) {
	c.Lock()
	c.warnings.Add(c.fset.PositionFor(pos, true), fmt.Sprintf(msg, args...))
	c.Unlock()
}

func (c *context) error() error {
	c.Lock()

	defer c.Unlock()

	if len(c.errors) == 0 {
		return nil
	}

	c.errors.Sort()
	return append(scanner.ErrorList(nil), c.errors...)
}

// includeEntry is the bookkeeping for one currently open file.
type includeEntry struct {
	path     string
	foundIdx int  // Search-list index the file was found at, or curDirIndex.
	savedSys bool // Caller's system-header flag, restored on pop.
}

// cpp drives the line-by-line pipeline.
type cpp struct {
	*context

	macros   *macroTable
	resolver *resolver

	includes []includeEntry
	onceSet  map[string]bool
	deps     []string
	depSet   map[string]bool

	out bytes.Buffer

	baseFile  string
	file      string // Logical name, #line aware.
	line      int    // Logical line, #line aware.
	lineDelta int
	fn        string
	counter   uint64
	now       time.Time

	packVal   int
	packStack []int

	hostWarned bool
	inComment  bool
	sysHeader  bool
}

func newCPP(ctx *context, cfg *Config) *cpp {
	r := &cpp{
		context: ctx,
		macros:  newMacroTable(),
		resolver: newResolver(
			cfg.IncludePaths,
			cfg.SysIncludePaths,
			cfg.VCSysInclude,
			cfg.InternalLibc,
			cfg.Sysroot,
			cfg.Hosts,
		),
		onceSet: map[string]bool{},
		depSet:  map[string]bool{},
		now:     time.Now(),
	}
	r.resolver.track = ctx.tweaks.TrackSearch
	return r
}

// seed installs the -D/-U definition set before the root file is read.
func (c *cpp) seed(cfg *Config) {
	for _, d := range cfg.Defines {
		if eq := strings.IndexByte(d, '='); eq >= 0 {
			c.parseDefine(d[:eq]+" "+d[eq+1:], token.NoPos)
		} else {
			c.parseDefine(d+" 1", token.NoPos)
		}
	}
	for _, u := range cfg.Undefs {
		c.macros.undef(dict.SID(u))
	}
}

func (c *cpp) topInclude() includeEntry { return c.includes[len(c.includes)-1] }

func (c *cpp) curDir() string {
	if len(c.includes) == 0 {
		return "."
	}

	return filepath.Dir(c.topInclude().path)
}

func (c *cpp) recordDependency(path string) {
	if !c.depSet[path] {
		c.depSet[path] = true
		c.deps = append(c.deps, path)
	}
}

func (c *cpp) noteHostErr(pos token.Pos) {
	if !c.hostWarned && c.resolver.hosts.Err != nil {
		c.hostWarned = true
		c.warnPos(pos, "%v", c.resolver.hosts.Err)
	}
}

// processFile runs the pipeline over one file under a fresh conditional
// scope.
func (c *cpp) processFile(src Source, foundIdx int, sys bool) error {
	lines, err := c.load(src)
	if err != nil {
		c.errPos(token.NoPos, "%s: %v", src.Name(), err)
		return errAborted
	}

	path := src.Name()
	if _, ok := src.(*FileSource); ok {
		path = canonical(path)
		c.recordDependency(path)
	}
	c.includes = append(c.includes, includeEntry{path: path, foundIdx: foundIdx, savedSys: c.sysHeader})
	c.sysHeader = sys
	if len(c.includes) == 1 {
		c.baseFile = path
	}
	sfile, sline, sdelta := c.file, c.line, c.lineDelta
	c.file, c.lineDelta = path, 0

	defer func() {
		n := len(c.includes) - 1
		c.sysHeader = c.includes[n].savedSys
		c.includes = c.includes[:n]
		c.file, c.line, c.lineDelta = sfile, sline, sdelta
	}()

	cs := conds(nil).push(condZero)
	var lastPos token.Pos
	for _, sl := range lines {
		c.line = sl.line + c.lineDelta
		lastPos = sl.pos
		text := c.stripComments(sl.text)
		trimmed := strings.TrimLeft(text, " \t")
		if strings.HasPrefix(trimmed, "#") {
			if cs, err = c.directive(trimmed[1:], cs, sl); err != nil {
				return err
			}

			continue
		}

		if !cs.on() {
			continue
		}

		t, err := c.expandLine(text, sl.pos)
		if err != nil {
			return err
		}

		c.out.WriteString(t)
		c.out.WriteByte('\n')
	}
	if len(cs) != 1 {
		c.errPos(lastPos, "unterminated conditional at end of %s", path)
	}
	return nil
}

// stripComments removes // and /* */ comments, carrying the in-comment state
// across lines. A closed block comment collapses to a single space.
func (c *cpp) stripComments(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if c.inComment {
			j := strings.Index(s[i:], "*/")
			if j < 0 {
				return b.String()
			}

			c.inComment = false
			b.WriteByte(' ')
			i += j + 2
			continue
		}

		switch s[i] {
		case '"', '\'':
			j := litEnd(s, i)
			b.WriteString(s[i:j])
			i = j
		case '/':
			if i+1 < len(s) {
				switch s[i+1] {
				case '/':
					return b.String()
				case '*':
					c.inComment = true
					i += 2
					continue
				}
			}
			b.WriteByte('/')
			i++
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// directive dispatches the text after the # of a directive line.
func (c *cpp) directive(s string, cs conds, sl sourceLine) (conds, error) {
	pos := sl.pos
	i := skipBlank(s, 0)
	j := identEnd(s, i)
	if j == i {
		// A #-only line is a legal null directive.
		if i < len(s) && cs.on() {
			c.warnPos(pos, "invalid preprocessor directive")
		}
		return cs, nil
	}

	kw := dict.SID(s[i:j])
	rest := s[j:]
	switch kw {
	case idDefine:
		if !cs.on() {
			break
		}

		c.parseDefine(rest, pos)
	case idUndef:
		if !cs.on() {
			break
		}

		c.parseUndef(rest, pos)
	case idIf:
		if !cs.on() {
			return cs.push(condIfSkip), nil
		}

		return cs.push(c.ifCond(rest, pos)), nil
	case idIfdef, idIfndef:
		if !cs.on() {
			return cs.push(condIfSkip), nil
		}

		nm := strings.TrimSpace(rest)
		if k := identEnd(nm, 0); k == 0 || k != len(nm) {
			c.warnPos(pos, "expected identifier after #%s", s[i:j])
			return cs.push(condIfOff), nil
		}

		def := c.macros.isDefined(dict.SID(nm))
		if kw == idIfndef {
			def = !def
		}
		if def {
			return cs.push(condIfOn), nil
		}

		return cs.push(condIfOff), nil
	case idElif:
		switch cs.tos() {
		case condZero:
			c.warnPos(pos, "#elif without #if")
		case condIfOff:
			if c.ifCond(rest, pos) == condIfOn {
				return cs.pop().push(condIfOn), nil
			}
		case condIfOn:
			return cs.pop().push(condIfSkip), nil
		case condIfSkip:
			// nop
		}
	case idElse:
		switch cs.tos() {
		case condZero:
			c.warnPos(pos, "#else without #if")
		case condIfOff:
			return cs.pop().push(condIfOn), nil
		case condIfOn:
			return cs.pop().push(condIfSkip), nil
		case condIfSkip:
			// nop
		}
	case idEndif:
		if cs.tos() == condZero {
			c.warnPos(pos, "#endif without #if")
			break
		}

		return cs.pop(), nil
	case idInclude, idIncludeNext:
		if !cs.on() {
			break
		}

		return cs, c.includeDirective(rest, kw == idIncludeNext, pos)
	case idLine:
		if !cs.on() {
			break
		}

		c.lineDirective(rest, sl)
	case idPragma:
		if !cs.on() {
			break
		}

		c.pragmaDirective(rest, pos)
	case idError:
		if !cs.on() {
			break
		}

		c.errPos(pos, "#error %s", strings.TrimSpace(rest))
		return cs, errAborted
	case idWarning:
		if !cs.on() {
			break
		}

		if !c.sysHeader {
			c.warnPos(pos, "#warning %s", strings.TrimSpace(rest))
		}
	default:
		if cs.on() {
			c.warnPos(pos, "unknown directive #%s", s[i:j])
		}
	}
	return cs, nil
}

// ifCond evaluates a controlling expression to the cond to push.
func (c *cpp) ifCond(s string, pos token.Pos) cond {
	op, ok := c.constExpr(s, pos)
	if !ok {
		c.warnPos(pos, "invalid preprocessor expression")
		return condIfOff
	}

	if op.isNonZero() {
		return condIfOn
	}

	return condIfOff
}

// includeDirective resolves and processes #include/#include_next.
func (c *cpp) includeDirective(s string, next bool, pos token.Pos) error {
	s = strings.TrimSpace(s)
	expanded := false
again:
	var nm string
	var quoted bool
	switch {
	case strings.HasPrefix(s, "<"):
		k := strings.IndexByte(s, '>')
		if k < 2 {
			c.errPos(pos, "invalid include file name specification")
			return errAborted
		}

		nm = s[1:k]
	case strings.HasPrefix(s, `"`):
		k := strings.IndexByte(s[1:], '"')
		if k < 1 {
			c.errPos(pos, "invalid include file name specification")
			return errAborted
		}

		nm = s[1 : 1+k]
		quoted = true
	default:
		if expanded || s == "" {
			c.errPos(pos, "invalid include file name specification")
			return errAborted
		}

		var err error
		if s, err = c.expandLine(s, pos); err != nil {
			return err
		}

		s = strings.TrimSpace(s)
		expanded = true
		goto again
	}

	if len(c.includes) >= c.tweaks.MaxIncludeLevel {
		c.errPos(pos, "include depth exceeded")
		return errAborted
	}

	start := 0
	if next {
		start = c.topInclude().foundIdx + 1
	}
	path, idx, ok := c.resolver.resolve(nm, quoted, c.curDir(), start)
	c.noteHostErr(pos)
	if !ok {
		c.errPos(pos, "include file not found: %s", nm)
		return errAborted
	}

	if c.onceSet[canonical(path)] {
		return nil
	}

	if f := c.tweaks.TrackIncludes; f != nil {
		f(canonical(path))
	}
	sys := c.sysHeader || c.resolver.systemAt(idx, quoted)
	return c.processFile(NewFileSource(path), idx, sys)
}

// lineDirective rewrites the logical file/line for subsequent lines.
func (c *cpp) lineDirective(s string, sl sourceLine) {
	s, err := c.expandLine(strings.TrimSpace(s), sl.pos)
	if err != nil {
		return
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		c.warnPos(sl.pos, "invalid #line directive")
		return
	}

	n, e := strconv.Atoi(fields[0])
	if e != nil || n < 0 {
		c.warnPos(sl.pos, "invalid #line directive")
		return
	}

	c.lineDelta = n - sl.line - 1
	if len(fields) > 1 {
		f := fields[1]
		if len(f) < 2 || f[0] != '"' || f[len(f)-1] != '"' {
			c.warnPos(sl.pos, "invalid #line directive")
			return
		}

		c.file = f[1 : len(f)-1]
	}
}

// pragmaDirective handles #pragma once, #pragma pack and echoes everything
// else into the output.
func (c *cpp) pragmaDirective(s string, pos token.Pos) {
	t := strings.TrimSpace(s)
	switch {
	case t == "once":
		c.onceSet[c.topInclude().path] = true
	case strings.HasPrefix(t, "pack"):
		c.pragmaPack(strings.TrimSpace(t[4:]), pos)
	default:
		c.out.WriteString("#pragma ")
		c.out.WriteString(t)
		c.out.WriteByte('\n')
	}
}

func (c *cpp) pragmaPack(s string, pos token.Pos) {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		c.warnPos(pos, "invalid #pragma pack")
		return
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	switch {
	case inner == "pop":
		if len(c.packStack) == 0 {
			c.warnPos(pos, "#pragma pack(pop) with no matching push")
			return
		}

		n := len(c.packStack) - 1
		c.packVal = c.packStack[n]
		c.packStack = c.packStack[:n]
	case inner == "push":
		c.packStack = append(c.packStack, c.packVal)
	case strings.HasPrefix(inner, "push"):
		rest := strings.TrimSpace(inner[4:])
		if !strings.HasPrefix(rest, ",") {
			c.warnPos(pos, "invalid #pragma pack")
			return
		}

		n, err := strconv.Atoi(strings.TrimSpace(rest[1:]))
		if err != nil || n < 0 || n > math.MaxInt32 {
			c.warnPos(pos, "invalid #pragma pack value")
			return
		}

		c.packStack = append(c.packStack, c.packVal)
		c.packVal = n
	default:
		c.warnPos(pos, "invalid #pragma pack")
		return
	}
	if f := c.tweaks.PackAlign; f != nil {
		f(c.packVal)
	}
}
