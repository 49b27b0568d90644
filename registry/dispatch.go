package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Handler context
// ---------------------------------------------------------------------------

// Context is the part of the code generator a Handler may use.
type Context interface {
	// Lower lowers a sub-expression to Zig.
	Lower(e pyast.Expr) string
	// TypeOf returns the inferred type of e, Unknown on failure.
	TypeOf(e pyast.Expr) infer.Type
	// Classes returns the class registry of the module being generated.
	Classes() *infer.ClassRegistry
	// Allocator returns the allocator expression in scope.
	Allocator() string
	// NextLabel returns a fresh block label with the given prefix.
	NextLabel(prefix string) string
	// Warnf records a warning diagnostic.
	Warnf(pos pyast.Pos, format string, args ...any)
	// ModuleAlias returns the Zig identifier the module is bound to in the
	// file being generated.
	ModuleAlias(module string) string
	// Stringify lowers e to an expression of type []const u8 holding str(e).
	Stringify(e pyast.Expr) string
	// RunCoroutine lowers a synchronous drive of the coroutine call e to
	// completion, as asyncio.run does.
	RunCoroutine(e pyast.Expr) string
}

// Handler emits a complete Zig expression for one library call. Handlers
// validate their own arity and never fail: unsupported forms produce a
// CompileError marker.
type Handler func(ctx Context, call *pyast.Call) string

// ---------------------------------------------------------------------------
// Dispatcher: module -> function -> Handler
// ---------------------------------------------------------------------------

// Pseudo-module names for calls that are not module functions.
const (
	Builtins    = "builtins"
	StrMethods  = "str"
	ListMethods = "list"
	DictMethods = "dict"
	SetMethods  = "set"
	CounterType = "Counter"
)

// Route says which path Dispatch takes for a module/function pair.
type Route int

const (
	RouteNotFound Route = iota
	RouteSpecial
	RouteTable
	RouteMetadata
	RouteUnsupported
)

// Dispatcher resolves library calls to Handlers. Tables are filled by
// NewDispatcher and only read afterwards.
type Dispatcher struct {
	reg     *Registry
	special map[string]map[string]Handler
	table   map[string]map[string]Handler
	attrs   map[string]map[string]string
}

// NewDispatcher builds the dispatch tables over reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	d := &Dispatcher{
		reg:     reg,
		special: make(map[string]map[string]Handler),
		table:   make(map[string]map[string]Handler),
		attrs:   make(map[string]map[string]string),
	}
	registerBuiltins(d)
	registerMethods(d)
	registerStdlib(d)
	d.special["importlib"] = map[string]Handler{"import_module": d.importModule}
	d.special["pickle"] = map[string]Handler{"dumps": pickleDumps, "dump": pickleDump}
	return d
}

// Registry returns the import registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// Handle installs h for module.fn, replacing any earlier handler.
func (d *Dispatcher) Handle(module, fn string, h Handler) {
	m := d.table[module]
	if m == nil {
		m = make(map[string]Handler)
		d.table[module] = m
	}
	m[fn] = h
}

// Constant installs the Zig expression for module.name.
func (d *Dispatcher) Constant(module, name, expr string) {
	m := d.attrs[module]
	if m == nil {
		m = make(map[string]string)
		d.attrs[module] = m
	}
	m[name] = expr
}

// Has reports whether module.fn has a special or table handler.
func (d *Dispatcher) Has(module, fn string) bool {
	r := d.Resolve(module, fn)
	return r == RouteSpecial || r == RouteTable
}

// Resolve returns the route Dispatch would take.
func (d *Dispatcher) Resolve(module, fn string) Route {
	if _, ok := d.special[module][fn]; ok {
		return RouteSpecial
	}
	if _, ok := d.table[module][fn]; ok {
		return RouteTable
	}
	info, ok := d.reg.Lookup(module)
	if !ok {
		return RouteNotFound
	}
	if info.Strategy == Unsupported {
		return RouteUnsupported
	}
	if _, ok := info.Functions[fn]; ok {
		return RouteMetadata
	}
	return RouteNotFound
}

// Dispatch emits the call module.fn(...). It reports false when the pair is
// unknown, in which case the caller falls back to a plain call against the
// module's import.
func (d *Dispatcher) Dispatch(ctx Context, module, fn string, call *pyast.Call) (string, bool) {
	switch d.Resolve(module, fn) {
	case RouteSpecial:
		return d.special[module][fn](ctx, call), true
	case RouteTable:
		return d.table[module][fn](ctx, call), true
	case RouteMetadata:
		info, _ := d.reg.Lookup(module)
		return metadataCall(ctx, module, fn, info.Functions[fn], call), true
	case RouteUnsupported:
		return CompileError(ctx, call.Pos(), "module "+module+" is not supported"), true
	}
	return "", false
}

// Attr returns the Zig expression for a module-level constant such as
// math.pi.
func (d *Dispatcher) Attr(module, name string) (string, bool) {
	expr, ok := d.attrs[module][name]
	return expr, ok
}

// Pair is one dispatchable module/function combination.
type Pair struct {
	Module, Func string
}

// Pairs lists every pair with a special or table handler, sorted.
func (d *Dispatcher) Pairs() []Pair {
	var pairs []Pair
	for _, tbl := range []map[string]map[string]Handler{d.special, d.table} {
		for mod, fns := range tbl {
			for fn := range fns {
				pairs = append(pairs, Pair{mod, fn})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Module != pairs[j].Module {
			return pairs[i].Module < pairs[j].Module
		}
		return pairs[i].Func < pairs[j].Func
	})
	return pairs
}

// metadataCall emits [try ]<alias>.<fn>([allocator, ]args...).
func metadataCall(ctx Context, module, fn string, meta FuncMeta, call *pyast.Call) string {
	args := make([]string, 0, len(call.Args)+1)
	if meta.NeedsAllocator {
		args = append(args, ctx.Allocator())
	}
	for _, a := range call.Args {
		args = append(args, ctx.Lower(a))
	}
	expr := ctx.ModuleAlias(module) + "." + fn + "(" + strings.Join(args, ", ") + ")"
	if meta.ReturnsError {
		expr = "try " + expr
	}
	return expr
}

// ---------------------------------------------------------------------------
// Special cases
// ---------------------------------------------------------------------------

// importModule resolves importlib.import_module("name") statically.
func (d *Dispatcher) importModule(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "importlib.import_module", 1, 2); msg != "" {
		return msg
	}
	name, ok := stringLiteral(call.Args[0])
	if !ok {
		return CompileError(ctx, call.Pos(), "importlib.import_module needs a literal module name")
	}
	if info, ok := d.reg.Lookup(name); ok {
		if info.Strategy == Unsupported {
			return CompileError(ctx, call.Pos(), "module "+name+" is not supported")
		}
		return info.Import
	}
	return `@import("` + strings.ReplaceAll(name, ".", "/") + `.zig")`
}

// pickleProtocol returns the Zig function and protocol argument selected by
// the protocol keyword (or second positional argument) of a pickle call.
func pickleProtocol(ctx Context, call *pyast.Call, pos int) (fn, proto string) {
	p := call.KeywordArg("protocol")
	if p == nil && len(call.Args) > pos {
		p = call.Args[pos]
	}
	if p == nil {
		return "dumpsBinary", "runtime.pickle.default_protocol"
	}
	if v, ok := infer.IntLiteral(p); ok {
		if v == 0 {
			return "dumpsText", ""
		}
		return "dumpsBinary", fmt.Sprint(v)
	}
	return "dumps", ctx.Lower(p)
}

func pickleDumps(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "pickle.dumps", 1, 2); msg != "" {
		return msg
	}
	fn, proto := pickleProtocol(ctx, call, 1)
	args := []string{ctx.Allocator(), ctx.Lower(call.Args[0])}
	if proto != "" {
		args = append(args, proto)
	}
	return "try runtime.pickle." + fn + "(" + strings.Join(args, ", ") + ")"
}

func pickleDump(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "pickle.dump", 2, 3); msg != "" {
		return msg
	}
	fn, proto := pickleProtocol(ctx, call, 2)
	fn = strings.Replace(fn, "dumps", "dump", 1)
	args := []string{ctx.Allocator(), ctx.Lower(call.Args[0]), ctx.Lower(call.Args[1])}
	if proto != "" {
		args = append(args, proto)
	}
	return "try runtime.pickle." + fn + "(" + strings.Join(args, ", ") + ")"
}

// ---------------------------------------------------------------------------
// Helpers shared by handlers
// ---------------------------------------------------------------------------

// CompileError returns a marker that fails Zig compilation with msg and
// records a warning.
func CompileError(ctx Context, pos pyast.Pos, msg string) string {
	ctx.Warnf(pos, "%s", msg)
	return "@compileError(" + zig.Quote(msg) + ")"
}

// Receiver returns the object a method call is made on, or nil.
func Receiver(call *pyast.Call) pyast.Expr {
	if a, ok := call.Func.(*pyast.Attribute); ok {
		return a.Value
	}
	return nil
}

// checkArity returns a CompileError marker when call does not have between
// min and max positional arguments (max < 0: unbounded), or "".
func checkArity(ctx Context, call *pyast.Call, name string, min, max int) string {
	n := len(call.Args)
	if n >= min && (max < 0 || n <= max) {
		return ""
	}
	var want string
	switch {
	case min == max:
		want = fmt.Sprint(min)
	case max < 0:
		want = fmt.Sprintf("at least %d", min)
	default:
		want = fmt.Sprintf("%d to %d", min, max)
	}
	return CompileError(ctx, call.Pos(), fmt.Sprintf("%s takes %s arguments, got %d", name, want, n))
}

// methodArity is checkArity for method calls, which also need a receiver.
func methodArity(ctx Context, call *pyast.Call, name string, min, max int) string {
	if Receiver(call) == nil {
		return CompileError(ctx, call.Pos(), name+" needs a receiver")
	}
	return checkArity(ctx, call, name, min, max)
}

func stringLiteral(e pyast.Expr) (string, bool) {
	if c, ok := e.(*pyast.Constant); ok && c.Kind == pyast.ConstString {
		return c.Str, true
	}
	return "", false
}

func boolLiteral(e pyast.Expr) (bool, bool) {
	if c, ok := e.(*pyast.Constant); ok && c.Kind == pyast.ConstBool {
		return c.Bool, true
	}
	return false, false
}

func lowerAll(ctx Context, args []pyast.Expr) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = ctx.Lower(a)
	}
	return out
}

// Items lowers e to a Zig slice of its elements: .items for lists, the value
// itself for strings and fixed arrays.
func Items(ctx Context, e pyast.Expr) string {
	v := ctx.Lower(e)
	switch ctx.TypeOf(e).Kind {
	case infer.ListKind:
		return zig.Paren(v) + ".items"
	case infer.StringKind:
		return v
	case infer.DictKind, infer.SetKind, infer.CounterKind:
		return "(try runtime.keysOf(" + ctx.Allocator() + ", " + v + ")).items"
	}
	return "runtime.itemsOf(" + v + ")"
}

// AsFloat lowers e to an f64 expression, converting ints.
func AsFloat(ctx Context, e pyast.Expr) string {
	switch ctx.TypeOf(e).Kind {
	case infer.IntKind:
		if v, ok := infer.IntLiteral(e); ok {
			return fmt.Sprintf("%d.0", v)
		}
		return "@as(f64, @floatFromInt(" + ctx.Lower(e) + "))"
	case infer.BoolKind:
		return "@as(f64, @floatFromInt(@intFromBool(" + ctx.Lower(e) + ")))"
	case infer.FloatKind:
		return ctx.Lower(e)
	}
	return "runtime.toFloat(" + ctx.Lower(e) + ")"
}

// elemZig returns the Zig element type of a container expression.
func elemZig(ctx Context, e pyast.Expr) string {
	return ctx.TypeOf(e).IterElem().Zig()
}

func castLen(expr string) string {
	return "@as(i64, @intCast(" + expr + "))"
}
