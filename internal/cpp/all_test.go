// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testConfig pins the host include tier so tests never shell out to a
// toolchain.
func testConfig() *Config {
	return &Config{Hosts: NewHostIncludes(nil, "")}
}

func expandString(t *testing.T, tweaks *Tweaks, cfg *Config, src string) *Result {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	r, err := PreprocessSource(token.NewFileSet(), tweaks, cfg, "test.c", src)
	if err != nil {
		t.Fatal(err)
	}

	return r
}

func mustWrite(t *testing.T, path, src string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCounterFreshPerRun(t *testing.T) {
	const src = "__COUNTER__ __COUNTER__ __COUNTER__\n"
	for i := 0; i < 2; i++ {
		r := expandString(t, nil, nil, src)
		if g, e := r.Text, "0 1 2\n"; g != e {
			t.Fatalf("run %v: %q %q", i, g, e)
		}
	}
}

func TestLineEndingNormalization(t *testing.T) {
	r := expandString(t, nil, nil, "#define VAL 42\r\nint x = VAL;\r\n")
	if g, e := r.Text, "int x = 42;\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
	if strings.Contains(r.Text, "\r") {
		t.Fatal("output contains \\r")
	}
}

func TestContinuationSplice(t *testing.T) {
	r := expandString(t, nil, nil, "#define SUM(a, b) \\\n\ta + b\nint x = SUM(1, 2);\n")
	if g, e := r.Text, "int x = 1 + 2;\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestConditionalDefineUndef(t *testing.T) {
	const src = `#define X 1
#define Y 1
#if defined(X) && Y
a
#endif
#undef X
#if defined(X) && Y
b
#endif
`
	r := expandString(t, nil, nil, src)
	if g, e := r.Text, "a\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestElifChain(t *testing.T) {
	const src = `#if 0
a
#elif 1
b
#elif 1
c
#else
d
#endif
`
	r := expandString(t, nil, nil, src)
	if g, e := r.Text, "b\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestNestedInactiveGroups(t *testing.T) {
	const src = `#if 0
#if 1
a
#else
b
#endif
#else
c
#endif
`
	r := expandString(t, nil, nil, src)
	if g, e := r.Text, "c\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestIfdefIfndef(t *testing.T) {
	const src = `#define FOO 1
#ifdef FOO
a
#endif
#ifndef FOO
b
#endif
#ifdef BAR
c
#endif
`
	r := expandString(t, nil, nil, src)
	if g, e := r.Text, "a\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestUnterminatedConditional(t *testing.T) {
	_, err := PreprocessSource(token.NewFileSet(), nil, testConfig(), "test.c", "#if 1\nint x;\n")
	if err == nil || !strings.Contains(err.Error(), "unterminated conditional") {
		t.Fatalf("got %v", err)
	}
}

func TestErrorDirective(t *testing.T) {
	r, err := PreprocessSource(token.NewFileSet(), nil, testConfig(), "test.c", "before\n#error boom\nafter\n")
	if err == nil || !strings.Contains(err.Error(), "#error boom") {
		t.Fatalf("got %v", err)
	}
	if r != nil {
		t.Fatal("partial result on fatal path")
	}
}

func TestErrorDirectiveInactive(t *testing.T) {
	r := expandString(t, nil, nil, "#if 0\n#error boom\n#endif\nok\n")
	if g, e := r.Text, "ok\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestWarningDirective(t *testing.T) {
	r := expandString(t, nil, nil, "#warning deprecated header\nint x;\n")
	if g, e := r.Text, "int x;\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0].Msg, "deprecated header") {
		t.Fatalf("warnings: %v", r.Warnings)
	}
}

func TestPragmaPack(t *testing.T) {
	var got []int
	tweaks := &Tweaks{PackAlign: func(n int) { got = append(got, n) }}
	const src = `#pragma pack(push, 2)
#pragma pack(pop)
#pragma pack(push, -1)
`
	r := expandString(t, tweaks, nil, src)
	if diff := cmp.Diff([]int{2, 0}, got); diff != "" {
		t.Fatal(diff)
	}
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0].Msg, "pack") {
		t.Fatalf("warnings: %v", r.Warnings)
	}
}

func TestPragmaEcho(t *testing.T) {
	r := expandString(t, nil, nil, "#pragma GCC poison printf\n")
	if g, e := r.Text, "#pragma GCC poison printf\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestPragmaEchoInactive(t *testing.T) {
	r := expandString(t, nil, nil, "#if 0\n#pragma GCC poison printf\n#endif\n")
	if g, e := r.Text, ""; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestNullDirective(t *testing.T) {
	r := expandString(t, nil, nil, "#\nint x;\n")
	if g, e := r.Text, "int x;\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("warnings: %v", r.Warnings)
	}
}

func TestUnknownDirective(t *testing.T) {
	r := expandString(t, nil, nil, "#frobnicate\n")
	if len(r.Warnings) != 1 {
		t.Fatalf("warnings: %v", r.Warnings)
	}
}

func TestCommentStripping(t *testing.T) {
	const src = `int a; // trailing
int/*mid*/b;
/* spans
two lines */int c;
char *s = "/* not a comment */";
`
	r := expandString(t, nil, nil, src)
	e := "int a; \nint b;\n\n int c;\nchar *s = \"/* not a comment */\";\n"
	if diff := cmp.Diff(e, r.Text); diff != "" {
		t.Fatal(diff)
	}
}

func TestDefinesAndUndefs(t *testing.T) {
	cfg := testConfig()
	cfg.Defines = []string{"A", "B=7", "MAX(x,y)=((x)>(y)?(x):(y))"}
	cfg.Undefs = []string{"A"}
	const src = `#ifdef A
a
#endif
int b = B;
int m = MAX(1,2);
`
	r := expandString(t, nil, cfg, src)
	e := "int b = 7;\nint m = ((1)>(2)?(1):(2));\n"
	if diff := cmp.Diff(e, r.Text); diff != "" {
		t.Fatal(diff)
	}
}

func TestLineDirective(t *testing.T) {
	const src = `#line 100 "virt.c"
__LINE__ __FILE__
`
	r := expandString(t, nil, nil, src)
	if g, e := r.Text, "100 \"virt.c\"\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestPragmaOnce(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "once.h"), "#pragma once\nbody\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include \"once.h\"\n#include \"once.h\"\n")

	r, err := Preprocess(token.NewFileSet(), nil, testConfig(), filepath.Join(dir, "root.c"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := r.Text, "body\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
	if len(r.Deps) != 2 {
		t.Fatalf("deps: %v", r.Deps)
	}
}

func TestIncludeSearchOrder(t *testing.T) {
	dir := t.TempDir()
	d1 := filepath.Join(dir, "d1")
	d2 := filepath.Join(dir, "d2")
	for _, d := range []string{d1, d2} {
		if err := os.Mkdir(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite(t, filepath.Join(d1, "a.h"), "from d1\n")
	mustWrite(t, filepath.Join(d2, "a.h"), "from d2\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include <a.h>\n")

	cfg := testConfig()
	cfg.IncludePaths = []string{d1, d2}
	r, err := Preprocess(token.NewFileSet(), nil, cfg, filepath.Join(dir, "root.c"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := r.Text, "from d1\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestQuotedIncludePrefersCurrentDir(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other")
	if err := os.Mkdir(other, 0755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(dir, "a.h"), "local\n")
	mustWrite(t, filepath.Join(other, "a.h"), "remote\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include \"a.h\"\n")

	cfg := testConfig()
	cfg.IncludePaths = []string{other}
	r, err := Preprocess(token.NewFileSet(), nil, cfg, filepath.Join(dir, "root.c"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := r.Text, "local\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestIncludeNext(t *testing.T) {
	dir := t.TempDir()
	d1 := filepath.Join(dir, "d1")
	d2 := filepath.Join(dir, "d2")
	for _, d := range []string{d1, d2} {
		if err := os.Mkdir(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite(t, filepath.Join(d1, "layer.h"), "one\n#include_next <layer.h>\n")
	mustWrite(t, filepath.Join(d2, "layer.h"), "two\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include <layer.h>\n")

	cfg := testConfig()
	cfg.IncludePaths = []string{d1, d2}
	r, err := Preprocess(token.NewFileSet(), nil, cfg, filepath.Join(dir, "root.c"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := r.Text, "one\ntwo\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestComputedInclude(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.h"), "computed\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#define HDR \"a.h\"\n#include HDR\n")

	r, err := Preprocess(token.NewFileSet(), nil, testConfig(), filepath.Join(dir, "root.c"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := r.Text, "computed\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestIncludeNotFound(t *testing.T) {
	_, err := PreprocessSource(token.NewFileSet(), nil, testConfig(), "test.c", "#include <no/such/header.h>\n")
	if err == nil || !strings.Contains(err.Error(), "include file not found") {
		t.Fatalf("got %v", err)
	}
}

func TestIncludeDepthExceeded(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "self.h"), "#include \"self.h\"\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include \"self.h\"\n")

	tweaks := &Tweaks{MaxIncludeLevel: 5}
	_, err := Preprocess(token.NewFileSet(), tweaks, testConfig(), filepath.Join(dir, "root.c"))
	if err == nil || !strings.Contains(err.Error(), "include depth exceeded") {
		t.Fatalf("got %v", err)
	}
}

func TestHasInclude(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "stdio.h"), "")

	cfg := &Config{Hosts: NewHostIncludes([]string{dir}, "")}
	const src = `#if __has_include(<stdio.h>)
yes
#endif
#if __has_include("no_such_header_at_all.h")
no
#endif
`
	r := expandString(t, nil, cfg, src)
	if g, e := r.Text, "yes\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
	if len(r.Deps) != 0 {
		t.Fatalf("probe registered a dependency: %v", r.Deps)
	}
}

func TestHasIncludeNext(t *testing.T) {
	dir := t.TempDir()
	d1 := filepath.Join(dir, "d1")
	d2 := filepath.Join(dir, "d2")
	for _, d := range []string{d1, d2} {
		if err := os.Mkdir(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite(t, filepath.Join(d1, "probe.h"), "#if __has_include_next(<probe.h>)\nfound\n#endif\n")
	mustWrite(t, filepath.Join(d2, "probe.h"), "never emitted\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include <probe.h>\n")

	cfg := testConfig()
	cfg.IncludePaths = []string{d1, d2}
	r, err := Preprocess(token.NewFileSet(), nil, cfg, filepath.Join(dir, "root.c"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := r.Text, "found\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestDependencyList(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.h"), "#ifndef A_H\n#define A_H\n#include \"b.h\"\n#endif\n")
	mustWrite(t, filepath.Join(dir, "b.h"), "#ifndef B_H\n#define B_H\n#endif\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include \"a.h\"\n#include \"b.h\"\n")

	r, err := Preprocess(token.NewFileSet(), nil, testConfig(), filepath.Join(dir, "root.c"))
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, d := range r.Deps {
		names = append(names, filepath.Base(d))
	}
	if diff := cmp.Diff([]string{"root.c", "a.h", "b.h"}, names); diff != "" {
		t.Fatal(diff)
	}
}

func TestIncludeLevel(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "lvl.h"), "__INCLUDE_LEVEL__\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include \"lvl.h\"\n__INCLUDE_LEVEL__\n")

	r, err := Preprocess(token.NewFileSet(), nil, testConfig(), filepath.Join(dir, "root.c"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := r.Text, "1\n0\n"; g != e {
		t.Fatalf("%q %q", g, e)
	}
}

func TestTrackIncludes(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.h"), "a\n")
	mustWrite(t, filepath.Join(dir, "root.c"), "#include \"a.h\"\n")

	var seen []string
	tweaks := &Tweaks{TrackIncludes: func(p string) { seen = append(seen, filepath.Base(p)) }}
	if _, err := Preprocess(token.NewFileSet(), tweaks, testConfig(), filepath.Join(dir, "root.c")); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"a.h"}, seen); diff != "" {
		t.Fatal(diff)
	}
}

func TestExpandDepthExceeded(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteString("#define M")
		b.WriteByte(byte('0' + i))
		b.WriteString(" M")
		b.WriteByte(byte('1' + i))
		b.WriteString("\n")
	}
	b.WriteString("#define M6 x\nM0\n")

	tweaks := &Tweaks{MaxExpandDepth: 4}
	_, err := PreprocessSource(token.NewFileSet(), tweaks, testConfig(), "test.c", b.String())
	if err == nil || !strings.Contains(err.Error(), "too deep") {
		t.Fatalf("got %v", err)
	}
}

func TestExpandByteBudget(t *testing.T) {
	const src = "#define BIG \"0123456789012345678901234567890\"\nBIG BIG\n"
	tweaks := &Tweaks{MaxExpandBytes: 16}
	_, err := PreprocessSource(token.NewFileSet(), tweaks, testConfig(), "test.c", src)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("got %v", err)
	}
}
