// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"bufio"
	"bytes"
	"go/token"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"modernc.org/mathutil"
)

var (
	_ Source = (*FileSource)(nil)
	_ Source = (*StringSource)(nil)
)

// Source represents the preprocessor's input.
type Source interface {
	Name() string                       // Result will be used in reporting source code positions.
	ReadCloser() (io.ReadCloser, error) // Where to read the source from.
	Size() (int64, error)               // Report the size of the source in bytes.
}

// FileSource is a Source reading from a named file.
type FileSource struct {
	*bufio.Reader
	f    *os.File
	path string
}

// NewFileSource returns a newly created *FileSource reading from name.
func NewFileSource(name string) *FileSource { return &FileSource{path: name} }

// Close implements io.ReadCloser.
func (s *FileSource) Close() error { return s.f.Close() }

// Name implements Source.
func (s *FileSource) Name() string { return s.path }

// ReadCloser implements Source.
func (s *FileSource) ReadCloser() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}

	s.f = f
	s.Reader = bufio.NewReader(f)
	return s, nil
}

// Size implements Source.
func (s *FileSource) Size() (int64, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}

	return fi.Size(), nil
}

// StringSource is a Source reading from a string.
type StringSource struct {
	*strings.Reader
	name string
	src  string
}

// NewStringSource returns a newly created *StringSource reading from src and
// having the presumed name.
func NewStringSource(name, src string) *StringSource { return &StringSource{name: name, src: src} }

// Close implements io.ReadCloser.
func (s *StringSource) Close() error { return nil }

// Name implements Source.
func (s *StringSource) Name() string { return s.name }

// Size implements Source.
func (s *StringSource) Size() (int64, error) { return int64(len(s.src)), nil }

// ReadCloser implements Source.
func (s *StringSource) ReadCloser() (io.ReadCloser, error) {
	s.Reader = strings.NewReader(s.src)
	return s, nil
}

// HostIncludes caches the host toolchain's standard include directories and
// multiarch triple. The zero value queries the toolchain on first use; tests
// inject a pre-filled value instead.
type HostIncludes struct {
	once sync.Once

	Dirs   []string // Standard include directories, in search order.
	Triple string   // Multiarch triple, e.g. x86_64-linux-gnu. May be empty.
	Err    error    // Non-nil when discovery degraded to the fallback dirs.

	filled bool // Set when the caller provided Dirs explicitly.
}

// NewHostIncludes returns a HostIncludes that will never query the toolchain.
func NewHostIncludes(dirs []string, triple string) *HostIncludes {
	return &HostIncludes{Dirs: dirs, Triple: triple, filled: true}
}

func (h *HostIncludes) discover() {
	h.once.Do(func() {
		if h.filled || len(h.Dirs) != 0 {
			return
		}

		h.Triple = queryMultiarch()
		if dirs := querySearchDirs(); len(dirs) != 0 {
			h.Dirs = dirs
			return
		}

		h.Dirs = []string{"/usr/include", "/usr/local/include"}
		if h.Triple != "" {
			h.Dirs = append(h.Dirs, filepath.Join("/usr/include", h.Triple))
		}
		h.Err = errDiscovery
	})
}

var errDiscovery = &discoveryError{}

type discoveryError struct{}

func (*discoveryError) Error() string {
	return "cannot query toolchain for standard include directories, using fallback"
}

// queryMultiarch asks the host compiler for its multiarch triple.
func queryMultiarch() string {
	for _, cc := range []string{"cc", "gcc", "clang"} {
		path, err := exec.LookPath(cc)
		if err != nil {
			continue
		}

		out, err := exec.Command(path, "-print-multiarch").Output()
		if err != nil {
			continue
		}

		if s := strings.TrimSpace(string(out)); s != "" {
			return s
		}
	}
	return ""
}

// querySearchDirs parses the include search list the host compiler prints on
// stderr for -v -E.
func querySearchDirs() []string {
	for _, cc := range []string{"cc", "gcc", "clang"} {
		path, err := exec.LookPath(cc)
		if err != nil {
			continue
		}

		cmd := exec.Command(path, "-v", "-E", "-x", "c", "-")
		cmd.Stdin = strings.NewReader("")
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		_ = cmd.Run()
		if dirs := parseSearchList(stderr.String()); len(dirs) != 0 {
			return dirs
		}
	}
	return nil
}

func parseSearchList(out string) []string {
	var dirs []string
	in := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "search starts here:"):
			in = true
		case strings.Contains(line, "End of search list"):
			in = false
		case in:
			p := strings.TrimSpace(line)
			if strings.HasSuffix(p, "(framework directory)") {
				continue
			}

			if fi, err := os.Stat(p); err == nil && fi.IsDir() {
				dirs = append(dirs, p)
			}
		}
	}
	return dirs
}

// curDirIndex is the found-index sentinel for headers hit in the directory of
// the including file.
const curDirIndex = -1

// resolver turns an include spec into a path on disk. The combined directory
// list is include dirs, then (for quoted includes) the working directory,
// then the extra system tier, then the host standard tier.
type resolver struct {
	searchDirs []string // -I dirs, order preserved.
	sysDirs    []string // --vc-sysinclude/VC_SYSINCLUDE dirs plus the internal libc dir.
	sysroot    string
	hosts      *HostIncludes

	track func(string) // Verbose-includes hook; called with every probed path.
}

func newResolver(searchDirs, isystemDirs, vcDirs []string, internalLibc, sysroot string, hosts *HostIncludes) *resolver {
	r := &resolver{
		searchDirs: append(append([]string(nil), searchDirs...), isystemDirs...),
		sysroot:    sysroot,
		hosts:      hosts,
	}
	r.sysDirs = append(r.sysDirs, vcDirs...)
	if internalLibc != "" {
		r.sysDirs = append(r.sysDirs, internalLibc)
	}
	if r.hosts == nil {
		r.hosts = &HostIncludes{}
	}
	return r
}

// dirs returns the combined search list for one lookup. The quoted form gets
// the bare-filename-in-cwd tier between the caller-supplied dirs and the
// system tiers.
func (r *resolver) dirs(quoted bool) []string {
	d := append([]string(nil), r.searchDirs...)
	if quoted {
		d = append(d, ".")
	}
	d = append(d, r.sysDirs...)
	r.hosts.discover()
	for _, v := range r.hosts.Dirs {
		if r.sysroot != "" {
			v = filepath.Join(r.sysroot, strings.TrimPrefix(v, "/"))
		}
		d = append(d, v)
	}
	return d
}

// systemAt reports whether the given found index lies in a system tier of the
// combined list for the quoted/angled form.
func (r *resolver) systemAt(idx int, quoted bool) bool {
	n := len(r.searchDirs)
	if quoted {
		n++
	}
	return idx >= n
}

// resolve finds nm, starting the directory scan at start. A quoted include
// with start 0 first probes the directory of the including file; such hits
// report curDirIndex.
func (r *resolver) resolve(nm string, quoted bool, curDir string, start int) (path string, idx int, ok bool) {
	if quoted && start == 0 && curDir != "" {
		if p := r.probe(filepath.Join(curDir, nm)); p != "" {
			return p, curDirIndex, true
		}
	}

	dirs := r.dirs(quoted)
	if start < 0 {
		start = 0
	}
	for i := start; i < len(dirs); i++ {
		if p := r.probe(filepath.Join(dirs[i], nm)); p != "" {
			return p, i, true
		}
	}
	return "", 0, false
}

func (r *resolver) probe(p string) string {
	if r.track != nil {
		r.track(p)
	}
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return ""
	}

	return p
}

// canonical returns the path key used by the pragma-once set and the
// dependency list.
func canonical(path string) string {
	if p, err := filepath.Abs(path); err == nil {
		return filepath.Clean(p)
	}

	return filepath.Clean(path)
}

// sourceLine is one logical line after splicing: text with the physical line
// number and position of its first byte.
type sourceLine struct {
	text string
	pos  token.Pos
	line int
}

// load reads src, normalizes line endings, joins backslash-newline
// continuations and splits the result into logical lines.
func (c *context) load(src Source) ([]sourceLine, error) {
	sz, err := src.Size()
	if err != nil {
		return nil, err
	}

	if sz > int64(mathutil.MaxInt) {
		return nil, &sizeError{src.Name(), sz}
	}

	rc, err := src.ReadCloser()
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, int(sz))
	buf := bytes.NewBuffer(b)
	_, err = io.Copy(buf, rc)
	if e := rc.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return nil, err
	}

	content := bytes.ReplaceAll(buf.Bytes(), []byte{'\r'}, nil)
	tf := c.fset.AddFile(src.Name(), -1, len(content))
	tf.SetLinesForContent(content)

	cut := func(off int) (text string, next int) {
		nl := bytes.IndexByte(content[off:], '\n')
		if nl < 0 {
			return string(content[off:]), len(content)
		}

		return string(content[off : off+nl]), off + nl + 1
	}

	var lines []sourceLine
	phys := 1
	for off := 0; off < len(content); {
		sl := sourceLine{pos: tf.Pos(off), line: phys}
		text, next := cut(off)
		phys++
		// Splice continuations.
		for strings.HasSuffix(text, "\\") {
			var more string
			more, next = cut(next)
			text = text[:len(text)-1] + more
			phys++
		}
		sl.text = text
		lines = append(lines, sl)
		off = next
	}
	return lines, nil
}

type sizeError struct {
	name string
	size int64
}

func (e *sizeError) Error() string {
	return e.name + ": file too big"
}
