// Package registry classifies importable Python modules and maps library
// calls to Zig emission handlers.
//
// Two tables live here. The import registry records, per module, which
// strategy the generator uses for it (native Zig reimplementation, wrapper
// around a foreign C library, recompiled Python source, or unsupported) and
// how the emitted file refers to it. The dispatch table maps a module name
// and a function name to a Handler that emits a complete Zig expression for
// the call.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Import strategies
// ---------------------------------------------------------------------------

// Strategy is how a Python module is provided to the emitted program.
type Strategy int

const (
	// Native modules are reimplemented in the Zig runtime.
	Native Strategy = iota
	// Foreign modules wrap a C library that must be linked.
	Foreign
	// Source modules are compiled from their Python source like user code.
	Source
	// Unsupported modules are recognized but cannot be provided.
	Unsupported
)

var strategyNames = map[Strategy]string{
	Native:      "native",
	Foreign:     "foreign",
	Source:      "source",
	Unsupported: "unsupported",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ErrUnknownStrategy is returned when a registry file names a strategy that
// does not exist.
var ErrUnknownStrategy = errors.New("unknown import strategy")

// ParseStrategy converts a strategy name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// ---------------------------------------------------------------------------
// ImportInfo
// ---------------------------------------------------------------------------

// FuncMeta describes how to call one module function when no dedicated
// handler exists.
type FuncMeta struct {
	NeedsAllocator bool // pass the allocator as the first argument
	ReturnsError   bool // wrap the call in try
}

// ImportInfo is the registry entry for one Python module.
type ImportInfo struct {
	Module    string
	Strategy  Strategy
	Import    string // Zig expression the module is bound to, e.g. runtime.math
	Link      string // C library to link, foreign modules only
	NeedsInit bool   // call <alias>.init(allocator) at the start of main
	Functions map[string]FuncMeta
}

// Alias returns the Zig identifier the importing file binds the module to:
// the last dotted component ("os.path" binds "path").
func (info ImportInfo) Alias() string {
	if i := strings.LastIndexByte(info.Module, '.'); i >= 0 {
		return info.Module[i+1:]
	}
	return info.Module
}

// Registry maps module names to ImportInfo. It is populated once, before
// generation, and only read afterwards.
type Registry struct {
	entries map[string]ImportInfo
}

// New returns a registry holding the built-in module table.
func New() *Registry {
	r := &Registry{entries: make(map[string]ImportInfo, len(builtinModules))}
	for _, info := range builtinModules {
		r.entries[info.Module] = info
	}
	return r
}

// Empty returns a registry with no entries.
func Empty() *Registry {
	return &Registry{entries: make(map[string]ImportInfo)}
}

// Register adds or replaces an entry.
func (r *Registry) Register(info ImportInfo) error {
	if info.Module == "" {
		return errors.New("registry entry without module name")
	}
	if _, ok := strategyNames[info.Strategy]; !ok {
		return fmt.Errorf("module %s: %w: %d", info.Module, ErrUnknownStrategy, int(info.Strategy))
	}
	if info.Strategy == Foreign && info.Link == "" {
		return fmt.Errorf("module %s: foreign modules need a link library", info.Module)
	}
	if info.Import == "" {
		info.Import = defaultImport(info)
	}
	r.entries[info.Module] = info
	return nil
}

func defaultImport(info ImportInfo) string {
	switch info.Strategy {
	case Native:
		return "runtime." + strings.ReplaceAll(info.Module, ".", "_")
	case Foreign:
		return `@import("c_interop/` + info.Module + `.zig")`
	case Source:
		return `@import("` + info.Module + `.zig")`
	}
	return "struct {}"
}

// Lookup returns the entry for module. A dotted module with no entry of its
// own ("xml.etree") is not resolved through its parent.
func (r *Registry) Lookup(module string) (ImportInfo, bool) {
	info, ok := r.entries[module]
	return info, ok
}

// Modules returns every registered module name, sorted.
func (r *Registry) Modules() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LinkLibraries returns the C libraries needed by the given modules, sorted
// and deduplicated.
func (r *Registry) LinkLibraries(modules []string) []string {
	seen := map[string]bool{}
	var libs []string
	for _, m := range modules {
		info, ok := r.entries[m]
		if !ok || info.Link == "" || seen[info.Link] {
			continue
		}
		seen[info.Link] = true
		libs = append(libs, info.Link)
	}
	sort.Strings(libs)
	return libs
}
