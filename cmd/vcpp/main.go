// Copyright 2026 The VC Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vcpp is a standalone driver for the vc preprocessing stage.
package main

import (
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"modernc.org/strutil"

	vc "github.com/splanck/vc-sub002"
)

var (
	defines         []string
	includePaths    []string
	isystemPaths    []string
	undefs          []string
	vcSysInclude    []string
	internalLibc    string
	output          string
	sysroot         string
	depsOnly        bool
	verboseIncludes bool
	maxExpandBytes  int
	maxIncludeDepth int
)

var rootCmd = &cobra.Command{
	Use:           "vcpp [flags] file.c",
	Short:         "Run the vc preprocessor over a C source file",
	Long: `vcpp expands macros, resolves conditional compilation and inlines
included files, writing the resulting translation unit to stdout or to the
file given with -o. With -M it prints a make-style dependency rule instead.`,
	Args:          cobra.ExactArgs(1),
	RunE:          preprocess,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.Flags()
	f.StringArrayVarP(&includePaths, "include-dir", "I", nil, "add a directory to the include search path")
	f.StringArrayVar(&isystemPaths, "isystem", nil, "add a system include directory")
	f.StringArrayVarP(&defines, "define", "D", nil, "define a macro, NAME or NAME=VALUE")
	f.StringArrayVarP(&undefs, "undefine", "U", nil, "undefine a macro")
	f.StringArrayVar(&vcSysInclude, "vc-sysinclude", nil, "extra system include directory (also VC_SYSINCLUDE)")
	f.StringVar(&internalLibc, "internal-libc", "", "internal libc include directory")
	f.StringVar(&sysroot, "sysroot", "", "prefix for the standard include directories")
	f.StringVarP(&output, "output", "o", "", "write the expansion to a file instead of stdout")
	f.BoolVarP(&depsOnly, "deps", "M", false, "print a make-style dependency rule and exit")
	f.BoolVar(&verboseIncludes, "verbose-includes", false, "dump every directory searched for each include")
	f.IntVar(&maxIncludeDepth, "max-include-depth", 0, "maximum include nesting (0 = default)")
	f.IntVar(&maxExpandBytes, "max-expand-bytes", 0, "macro expansion byte budget per line (0 = unlimited)")
}

func preprocess(cmd *cobra.Command, args []string) error {
	tweaks := &vc.Tweaks{
		MaxExpandBytes:  maxExpandBytes,
		MaxIncludeLevel: maxIncludeDepth,
	}
	if verboseIncludes {
		ind := strutil.IndentFormatter(os.Stderr, "  ")
		tweaks.TrackIncludes = func(p string) { _, _ = ind.Format("include %s\n", p) }
		tweaks.TrackSearch = func(p string) { _, _ = ind.Format("%i? %s\n%u", p) }
	}

	cfg := &vc.Config{
		IncludePaths:    includePaths,
		SysIncludePaths: isystemPaths,
		Defines:         defines,
		Undefs:          undefs,
		Sysroot:         sysroot,
		VCSysInclude:    append(vcSysInclude, envDirs("VC_SYSINCLUDE")...),
		InternalLibc:    internalLibc,
	}

	r, err := vc.Preprocess(token.NewFileSet(), tweaks, cfg, args[0])
	if err != nil {
		vc.PrintError(os.Stderr, "", err)
		return fmt.Errorf("%s: preprocessing failed", args[0])
	}

	for _, w := range r.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}

	if depsOnly {
		return writeDeps(args[0], r.Deps)
	}

	if output == "" {
		_, err = os.Stdout.WriteString(r.Text)
		return err
	}

	return os.WriteFile(output, []byte(r.Text), 0644)
}

// envDirs splits a PATH-like environment variable into its non-empty entries.
func envDirs(name string) (dirs []string) {
	for _, v := range filepath.SplitList(os.Getenv(name)) {
		if v != "" {
			dirs = append(dirs, v)
		}
	}
	return dirs
}

// writeDeps prints the dependency list as a make rule, one path per line.
func writeDeps(src string, deps []string) error {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	_, err := fmt.Printf("%s.o: %s\n", base, strings.Join(deps, " \\\n  "))
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
