package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/pyaot/cache"
	"github.com/chazu/pyaot/codegen"
	"github.com/chazu/pyaot/manifest"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/server"
)

// project is a loaded pyaot.toml with its dependencies resolved.
type project struct {
	manifest *manifest.Manifest
	deps     []manifest.ResolvedDep
	registry *registry.Registry
}

// loadProject finds pyaot.toml above the working directory. It returns nil
// when there is none.
func loadProject() (*project, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	deps, err := manifest.NewResolver(m).Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving dependencies: %w", err)
	}
	reg, err := loadRegistry(m.RegistryPath())
	if err != nil {
		return nil, err
	}
	return &project{manifest: m, deps: deps, registry: reg}, nil
}

// loadRegistry returns the built-in registry extended by the entries in
// path, if any.
func loadRegistry(path string) (*registry.Registry, error) {
	reg := registry.New()
	if path == "" {
		return reg, nil
	}
	if err := reg.LoadFile(path); err != nil {
		return nil, fmt.Errorf("loading registry %s: %w", path, err)
	}
	return reg, nil
}

func (p *project) options(strict bool) codegen.Options {
	return codegen.Options{
		Registry: p.registry,
		Strict:   strict || p.manifest.Build.Strict,
		Loader:   p.manifest.Loader(p.deps),
		Sink:     manifest.DirSink{Dir: p.manifest.BuildDirPath()},
	}
}

// printDiagnostics writes diags to w and reports whether any is an error.
func printDiagnostics(w io.Writer, diags []codegen.Diagnostic) bool {
	failed := false
	for _, d := range diags {
		fmt.Fprintln(w, d)
		if d.Severity == codegen.Error {
			failed = true
		}
	}
	return failed
}

// handleBuildCommand processes the `pyaot build` subcommand.
// Usage:
//
//	pyaot build           # lower [source] entry and everything it imports
//	pyaot build -strict   # treat unsafe inference fallbacks as errors
func handleBuildCommand(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	strict := fs.Bool("strict", false, "Treat unsafe inference fallbacks as errors")
	fs.Parse(args)

	p, err := loadProject()
	if err != nil {
		fatalf("%v", err)
	}
	if p == nil {
		fatalf("no %s found", manifest.FileName)
	}

	store, err := cache.Open(p.manifest.CachePath())
	if err != nil {
		fatalf("%v", err)
	}
	defer store.Close()

	opts := p.options(*strict)
	opts.Entry = true
	opts.Cache = store

	entry := p.manifest.Source.Entry
	sink := manifest.DirSink{Dir: p.manifest.BuildDirPath()}
	tree, err := p.manifest.Loader(p.deps).Load(entry)
	if err != nil {
		fatalf("%v", err)
	}
	res, err := codegen.Generate(tree, opts)
	if err != nil {
		fatalf("%v", err)
	}
	if err := sink.Write(entry, res.Source); err != nil {
		fatalf("writing %s: %v", sink.Path(entry), err)
	}
	if n, err := store.Sweep(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	} else if n > 0 {
		fmt.Fprintf(os.Stderr, "Removed %d stale cache entries\n", n)
	}

	failed := printDiagnostics(os.Stderr, res.Diagnostics)
	fmt.Printf("Wrote %s (%d imported modules)\n", sink.Path(entry), len(res.Modules))
	if len(res.LinkLibraries) > 0 {
		fmt.Printf("Link libraries: %s\n", strings.Join(res.LinkLibraries, " "))
	}
	if failed {
		os.Exit(1)
	}
}

// treeModuleName derives a module name from a syntax tree file name.
func treeModuleName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), manifest.TreeExt)
	if name == "__init__" {
		name = filepath.Base(filepath.Dir(path))
	}
	return name
}

// handleGenCommand processes the `pyaot gen` subcommand: one tree file,
// no project required. Imports are looked up beside the file.
func handleGenCommand(args []string) {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default stdout)")
	lib := fs.Bool("lib", false, "Lower as an imported module instead of the program entry")
	strict := fs.Bool("strict", false, "Treat unsafe inference fallbacks as errors")
	regFile := fs.String("registry", "", "CUE or YAML file of extra import registry entries")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("gen takes exactly one tree file")
	}
	file := fs.Arg(0)

	data, err := os.ReadFile(file)
	if err != nil {
		fatalf("%v", err)
	}
	tree, err := pyast.Decode(data, treeModuleName(file))
	if err != nil {
		fatalf("%s: %v", file, err)
	}
	reg, err := loadRegistry(*regFile)
	if err != nil {
		fatalf("%v", err)
	}

	opts := codegen.Options{
		Registry: reg,
		Entry:    !*lib,
		Strict:   *strict,
		Loader:   &manifest.Loader{Roots: []string{filepath.Dir(file)}},
	}
	if *out != "" {
		opts.Sink = manifest.DirSink{Dir: filepath.Dir(*out)}
	}
	res, err := codegen.Generate(tree, opts)
	if err != nil {
		fatalf("%v", err)
	}

	if *out == "" {
		fmt.Print(res.Source)
	} else if err := os.WriteFile(*out, []byte(res.Source), 0644); err != nil {
		fatalf("%v", err)
	}
	if printDiagnostics(os.Stderr, res.Diagnostics) {
		os.Exit(1)
	}
}

// handleDepsCommand processes the `pyaot deps` subcommand.
func handleDepsCommand(args []string) {
	p, err := loadProject()
	if err != nil {
		fatalf("%v", err)
	}
	if p == nil {
		fatalf("no %s found", manifest.FileName)
	}
	for _, d := range p.deps {
		fmt.Printf("%s\t%s\t%s\n", d.Name, d.Package, d.LocalPath)
	}
}

// handleLSPCommand processes the `pyaot lsp` subcommand. Inside a project
// the server resolves imports like `pyaot build` does but writes nothing.
func handleLSPCommand(args []string) {
	opts := codegen.Options{}
	p, err := loadProject()
	if err != nil {
		fatalf("%v", err)
	}
	if p != nil {
		opts = p.options(false)
		opts.Sink = nil
	}
	if err := server.NewLSP(opts).Run(); err != nil {
		fatalf("%v", err)
	}
}
