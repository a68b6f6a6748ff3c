// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vc exposes the vc compiler's preprocessing stage: macro expansion,
// conditional compilation, multi-tier include resolution and pragma handling.
// The result of a run is a single expanded text buffer plus the list of files
// it depends on.
//
// Installation
//
//	$ go get [-u] github.com/splanck/vc-sub002
//
// A command line front end lives in cmd/vcpp.
package vc

import (
	"go/token"
	"io"

	"github.com/splanck/vc-sub002/internal/cpp"
)

// Engine types, see the internal/cpp documentation.
type (
	Config       = cpp.Config
	HostIncludes = cpp.HostIncludes
	Result       = cpp.Result
	Tweaks       = cpp.Tweaks
)

// NewHostIncludes returns a host include cache that will never query the
// toolchain. Tests and hermetic builds use it to pin the standard tier.
func NewHostIncludes(dirs []string, triple string) *HostIncludes {
	return cpp.NewHostIncludes(dirs, triple)
}

// Preprocess expands the translation unit rooted at path using fset to record
// source positions. It returns either the full expansion or an error carrying
// every diagnostic of the run; never a partial buffer.
func Preprocess(fset *token.FileSet, tweaks *Tweaks, cfg *Config, path string) (*Result, error) {
	return cpp.Preprocess(fset, tweaks, cfg, path)
}

// PreprocessSource is Preprocess for in-memory source text with a presumed
// name.
func PreprocessSource(fset *token.FileSet, tweaks *Tweaks, cfg *Config, name, src string) (*Result, error) {
	return cpp.PreprocessSource(fset, tweaks, cfg, name, src)
}

// PrintError pretty prints err to w, one diagnostic per line.
func PrintError(w io.Writer, pref string, err error) { cpp.PrintError(w, pref, err) }
