// Package codegen lowers a Python syntax tree to Zig source.
//
// A Generator lowers one module at a time. Expression lowering returns Zig
// expression text; statement lowering appends lines to an indented output
// buffer. Library calls are resolved through a registry.Dispatcher, and types
// come from an infer.Local built over the module. Problems the generator can
// work around become Diagnostics and a marker in the output; only a
// malformed tree aborts generation.
package codegen

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
)

var log = commonlog.GetLogger("pyaot.codegen")

// ErrMalformed is returned (wrapped) when the input tree holds nil nodes or
// node kinds that cannot appear where they were found.
var ErrMalformed = errors.New("malformed syntax tree")

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// Severity classifies a Diagnostic.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Diagnostic is a problem found while generating. Generation continues past
// every diagnostic; an Error only means the output is known not to compile
// or to be wrong.
type Diagnostic struct {
	Severity Severity
	Module   string
	Pos      pyast.Pos
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Module, d.Pos.Line, d.Pos.Column, d.Severity, d.Message)
}

// ---------------------------------------------------------------------------
// Options and Result
// ---------------------------------------------------------------------------

// Options controls generation.
type Options struct {
	// Registry resolves imports. Nil means registry.New().
	Registry *registry.Registry
	// Entry marks the program's main module: __name__ == "__main__" holds
	// and a pub fn main is emitted. Other modules get a pub fn init.
	Entry bool
	// Strict turns inference fallbacks that can miscompile (coroutine frame
	// fields defaulting to i64) into errors.
	Strict bool
	// Loader finds imported user modules. Nil leaves them to be compiled
	// separately; their imports are still emitted.
	Loader ModuleLoader
	// Sink receives the lowered source of every imported user module.
	Sink OutputSink
	// Cache short-circuits lowering of imported modules whose tree and
	// options are unchanged.
	Cache Cache
}

// Result is the output of generating one module.
type Result struct {
	Source        string
	Diagnostics   []Diagnostic
	LinkLibraries []string // foreign libraries the program must link
	Modules       []string // user modules lowered along the way, in dependency order
}

// HasErrors reports whether any diagnostic is an Error.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// Generator holds the state of lowering one module. It is not safe for
// concurrent use; create one per module.
type Generator struct {
	opts     Options
	reg      *registry.Registry
	dispatch *registry.Dispatcher

	module  *pyast.Module
	classes *infer.ClassRegistry
	inf     *infer.Local
	symbols *infer.SymbolTable
	scopes  []map[string]string // rename scopes, parallel to symbols

	out   *writer
	diags []Diagnostic
	at    pyast.Pos // statement being lowered

	labels int

	// Module-level bindings.
	funcs     map[string]*pyast.FunctionDef
	imports   map[string]string    // bound name -> module
	fromNames map[string]fromAlias // bound name -> module attribute
	aliases   map[string]string    // module -> Zig alias in this file
	user      map[string]bool      // modules lowered as user modules
	globals   map[string]infer.Type
	container map[string]bool // names bound at file scope in the output

	lambdas   []string    // relocated helper definitions
	attrInits []classAttr // class attributes assigned at startup
	modules   []string
	links     map[string]bool
	loading   map[string]bool // import cycle detection, shared with nested generators

	fn *funcState // nil at module level
}

type fromAlias struct {
	module string
	name   string
}

// New returns a Generator configured by opts.
func New(opts Options) *Generator {
	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	return &Generator{
		opts:     opts,
		reg:      reg,
		dispatch: registry.NewDispatcher(reg),
		loading:  make(map[string]bool),
	}
}

// Generate lowers m with a fresh Generator.
func Generate(m *pyast.Module, opts Options) (*Result, error) {
	return New(opts).Generate(m)
}

// malformed is the panic value used to abandon generation of a tree that
// cannot be lowered at all.
type malformed struct{ err error }

func (g *Generator) bail(pos pyast.Pos, format string, args ...any) {
	panic(malformed{fmt.Errorf("%s:%d:%d: %w: %s", g.moduleName(), pos.Line, pos.Column,
		ErrMalformed, fmt.Sprintf(format, args...))})
}

// Generate lowers m to Zig.
func (g *Generator) Generate(m *pyast.Module) (res *Result, err error) {
	if m == nil {
		return nil, fmt.Errorf("generate: %w: nil module", ErrMalformed)
	}
	defer func() {
		if r := recover(); r != nil {
			mf, ok := r.(malformed)
			if !ok {
				panic(r)
			}
			res, err = nil, mf.err
		}
	}()
	g.reset(m)
	log.Debugf("lowering module %s", g.moduleName())
	src := g.lowerModule()
	res = &Result{
		Source:        src,
		Diagnostics:   g.diags,
		LinkLibraries: sortedKeys(g.links),
		Modules:       g.modules,
	}
	return res, nil
}

func (g *Generator) reset(m *pyast.Module) {
	g.module = m
	g.classes = infer.NewClassRegistry()
	g.symbols = infer.NewSymbolTable()
	g.scopes = []map[string]string{{}}
	g.out = &writer{}
	g.diags = nil
	g.labels = 0
	g.funcs = make(map[string]*pyast.FunctionDef)
	g.imports = make(map[string]string)
	g.fromNames = make(map[string]fromAlias)
	g.aliases = make(map[string]string)
	g.user = make(map[string]bool)
	g.globals = make(map[string]infer.Type)
	g.container = make(map[string]bool)
	g.lambdas = nil
	g.attrInits = nil
	g.modules = nil
	g.links = make(map[string]bool)
	g.fn = nil
	g.at = pyast.Pos{}
}

func (g *Generator) moduleName() string {
	if g.module == nil || g.module.Name == "" {
		return "main"
	}
	return g.module.Name
}

func (g *Generator) report(sev Severity, pos pyast.Pos, msg string) {
	d := Diagnostic{Severity: sev, Module: g.moduleName(), Pos: pos, Message: msg}
	g.diags = append(g.diags, d)
	if sev == Error {
		log.Errorf("%s", d)
	} else {
		log.Debugf("%s", d)
	}
}

func (g *Generator) errorf(pos pyast.Pos, format string, args ...any) {
	g.report(Error, pos, fmt.Sprintf(format, args...))
}

// nextLabel returns prefix_N with N increasing over the whole module.
func (g *Generator) nextLabel(prefix string) string {
	g.labels++
	return fmt.Sprintf("%s_%d", prefix, g.labels)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
