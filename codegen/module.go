package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/pyast/hash"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// ModuleLoader finds the syntax tree of an imported user module.
type ModuleLoader interface {
	Load(module string) (*pyast.Module, error)
}

// OutputSink receives the lowered source of imported user modules.
type OutputSink interface {
	Write(module, source string) error
}

// Cache stores results of lowering imported modules under a content key.
// Get returns an error wrapping ErrCacheMiss when nothing is stored.
type Cache interface {
	Get(key string) (*Result, error)
	Put(key string, res *Result) error
}

// ErrCacheMiss is wrapped by Cache implementations on a lookup miss.
var ErrCacheMiss = errors.New("cache miss")

// typeOnlyModules are imported for annotations only and emit nothing.
var typeOnlyModules = map[string]bool{
	"__future__": true, "typing": true, "typing_extensions": true,
	"abc": true, "collections.abc": true,
}

// ---------------------------------------------------------------------------
// Orchestration
// ---------------------------------------------------------------------------

// capabilities are runtime services the module needs set up in main.
type capabilities struct {
	async bool
}

func analyzeCapabilities(m *pyast.Module) capabilities {
	var c capabilities
	for _, s := range m.Body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.FunctionDef:
				c.async = c.async || x.IsAsync
			case *pyast.Await:
				c.async = true
			case *pyast.Import:
				for _, a := range x.Names {
					c.async = c.async || a.Name == "asyncio"
				}
			case *pyast.ImportFrom:
				c.async = c.async || x.Module == "asyncio"
			}
			return !c.async
		})
	}
	return c
}

// lowerModule runs the phases of lowering g.module and returns the Zig
// source of the file.
func (g *Generator) lowerModule() string {
	m := g.module
	g.loading[g.moduleName()] = true
	defer delete(g.loading, g.moduleName())
	caps := analyzeCapabilities(m)

	// Imports, with user modules lowered first.
	imports := g.collectImports(m)

	// Classes and inference.
	var classDefs []*pyast.ClassDef
	var funcDefs []*pyast.FunctionDef
	var mainBody []pyast.Stmt
	lambdaConsts := map[string]*pyast.Lambda{}
	for _, s := range m.Body {
		switch x := s.(type) {
		case *pyast.ClassDef:
			classDefs = append(classDefs, x)
		case *pyast.FunctionDef:
			if prev, dup := g.funcs[x.Name]; dup {
				g.Warnf(x.Pos(), "%s redefines the function at line %d; the last definition wins", x.Name, prev.Pos().Line)
			}
			g.funcs[x.Name] = x
			funcDefs = append(funcDefs, x)
		case *pyast.Assign:
			if n, lam := lambdaTarget(x); lam != nil && countStores(m.Body, n) == 1 {
				lambdaConsts[n] = lam
				continue
			}
			mainBody = append(mainBody, s)
		case *pyast.Import, *pyast.ImportFrom:
		case *pyast.ExprStmt:
			if _, doc := x.Value.(*pyast.Constant); !doc {
				mainBody = append(mainBody, s)
			}
		default:
			mainBody = append(mainBody, s)
		}
	}
	g.classes.RegisterAll(classDefs)
	g.inf = infer.NewLocal(m, g.classes)
	g.inf.AttachSymbols(g.symbols)

	for _, name := range []string{"std", "runtime", "allocator", "main", "init"} {
		g.container[name] = true
	}
	for name := range g.funcs {
		g.container[zig.Ident(name)] = true
	}
	for _, c := range classDefs {
		g.container[zig.Ident(c.Name)] = true
	}
	for name := range lambdaConsts {
		g.container[zig.Ident(name)] = true
	}
	var globals []string
	for _, name := range pyast.AssignedNames(m.Body) {
		if _, isLambda := lambdaConsts[name]; isLambda || g.funcs[name] != nil {
			continue
		}
		if _, isClass := g.classes.Lookup(name); isClass {
			continue
		}
		g.globals[name] = g.globalType(name, m.Body)
		g.container[zig.Ident(name)] = true
		globals = append(globals, name)
	}

	// Preamble.
	g.out.line("// Code generated by pyaot from %s. DO NOT EDIT.", g.moduleName())
	g.out.blank()
	g.out.line(`const std = @import("std");`)
	g.out.line(`const runtime = @import("runtime");`)
	for _, imp := range imports {
		g.out.line("%s", imp)
	}
	g.out.blank()
	g.out.line("pub var allocator: std.mem.Allocator = undefined;")
	if !g.opts.Entry {
		g.out.line("var initialized: bool = false;")
	}
	for _, name := range globals {
		t := g.globals[name]
		g.out.line("pub var %s: %s = %s;", zig.Ident(name), zigType(t), globalDefault(t))
	}
	for _, name := range sortedLambdas(lambdaConsts) {
		g.out.line("pub const %s = %s;", zig.Ident(name), g.lambda(lambdaConsts[name], nil))
	}

	// Definitions.
	for _, c := range classDefs {
		g.out.blank()
		g.at = c.Pos()
		g.classDef(c)
	}
	for _, def := range funcDefs {
		if g.funcs[def.Name] != def {
			continue
		}
		g.out.blank()
		g.at = def.Pos()
		if def.IsAsync {
			g.coroutine(def, zig.Ident(def.Name), "")
			continue
		}
		g.function(def, funcDecl{name: zig.Ident(def.Name), pub: true})
	}

	// Entry point.
	g.out.blank()
	g.entry(funcDefs, mainBody, caps)
	return relocateLambdas(g.out.String(), g.lambdas)
}

// lambdaTarget matches name = lambda ... at module level.
func lambdaTarget(x *pyast.Assign) (string, *pyast.Lambda) {
	if len(x.Targets) != 1 {
		return "", nil
	}
	n, ok := x.Targets[0].(*pyast.Name)
	lam, isLambda := x.Value.(*pyast.Lambda)
	if !ok || !isLambda {
		return "", nil
	}
	return n.ID, lam
}

// countStores counts the bindings of name in body outside nested scopes.
func countStores(body []pyast.Stmt, name string) int {
	n := 0
	count := func(targets ...pyast.Expr) {
		for _, t := range targets {
			for _, tn := range pyast.TargetNames(t) {
				if tn == name {
					n++
				}
			}
		}
	}
	for _, s := range body {
		pyast.Inspect(s, func(node pyast.Node) bool {
			switch x := node.(type) {
			case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
				return false
			case *pyast.Assign:
				count(x.Targets...)
			case *pyast.AugAssign:
				count(x.Target)
			case *pyast.AnnAssign:
				count(x.Target)
			case *pyast.For:
				count(x.Target)
			case *pyast.NamedExpr:
				count(x.Target)
			case *pyast.With:
				for _, item := range x.Items {
					if item.Var != nil {
						count(item.Var)
					}
				}
			}
			return true
		})
	}
	return n
}

func sortedLambdas(m map[string]*pyast.Lambda) []string {
	names := make(map[string]bool, len(m))
	for n := range m {
		names[n] = true
	}
	return sortedKeys(names)
}

// globalType types a module-level variable.
func (g *Generator) globalType(name string, body []pyast.Stmt) infer.Type {
	if t, ok := g.inf.VarType(name); ok && !t.IsUnknown() {
		return t
	}
	if v := firstAssigned(name, body); v != nil {
		if t := g.typeOf(v); !t.IsUnknown() {
			return t
		}
	}
	g.Warnf(g.at, "type of global %s is unknown; using i64", name)
	return infer.Int
}

// globalDefault is the comptime initializer of a container variable of
// type t. Values needing the allocator are assigned in main.
func globalDefault(t infer.Type) string {
	if t.Kind == infer.NoneKind {
		return "null"
	}
	return fieldDefault(t)
}

// entry emits pub fn main for the program module and pub fn init for
// imported ones. Both set the allocator, initialize imported modules and
// run the remaining top-level statements.
func (g *Generator) entry(funcDefs []*pyast.FunctionDef, body []pyast.Stmt, caps capabilities) {
	saved := g.enterFunc(nil, "", infer.None, body)
	defer g.leaveFunc(saved)
	g.fn.taken["arena"] = true

	if g.opts.Entry {
		g.out.open("pub fn main() !void {")
		g.out.line("var arena = std.heap.ArenaAllocator.init(std.heap.page_allocator);")
		g.out.line("defer arena.deinit();")
		g.out.line("allocator = arena.allocator();")
	} else {
		g.out.open("pub fn init(init_allocator: std.mem.Allocator) anyerror!void {")
		g.out.line("if (initialized) return;")
		g.out.line("initialized = true;")
		g.out.line("allocator = init_allocator;")
	}
	if caps.async {
		g.out.line("try runtime.poller.init(allocator);")
		if g.opts.Entry {
			g.out.line("defer runtime.poller.deinit();")
		}
	}
	for _, module := range sortedKeys(g.needsInit()) {
		g.out.line("try %s.init(allocator);", g.ModuleAlias(module))
	}
	for _, a := range g.attrInits {
		g.at = a.value.Pos()
		g.out.line("%s.%s = %s;", zig.Ident(a.class), zig.Ident(a.name), g.exprAs(a.value, a.t))
	}
	for _, def := range funcDefs {
		if g.funcs[def.Name] != def {
			continue
		}
		for _, call := range g.decoratorCalls(def) {
			g.out.line("%s", call)
		}
	}
	g.stmts(body)
	g.out.close("}")
}

// needsInit returns the imported modules whose init must run first.
func (g *Generator) needsInit() map[string]bool {
	out := map[string]bool{}
	for module := range g.aliases {
		if g.user[module] {
			out[module] = true
			continue
		}
		if info, ok := g.reg.Lookup(module); ok && info.NeedsInit {
			out[module] = true
		}
	}
	return out
}

// relocateLambdas inserts the lambda definitions ahead of the entry point.
func relocateLambdas(src string, lambdas []string) string {
	if len(lambdas) == 0 {
		return src
	}
	defs := strings.Join(lambdas, "\n") + "\n"
	for _, marker := range []string{"\npub fn main(", "\npub fn init(init_allocator: "} {
		if i := strings.Index(src, marker); i >= 0 {
			return src[:i+1] + defs + "\n" + src[i+1:]
		}
	}
	return src + "\n" + defs
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

// collectImports binds every import in m, anywhere in the tree, lowers
// imported user modules through the loader, and returns the container
// declarations for the bound modules and from-imported names.
func (g *Generator) collectImports(m *pyast.Module) []string {
	var decls []string
	declared := map[string]bool{}
	bind := func(alias, expr string) {
		if declared[alias] {
			return
		}
		declared[alias] = true
		g.container[alias] = true
		decls = append(decls, "const "+alias+" = "+expr+";")
	}
	for _, s := range m.Body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.Import:
				for _, a := range x.Names {
					if typeOnlyModules[a.Name] {
						continue
					}
					expr, ok := g.importModule(a.Name, x.Pos())
					if !ok {
						continue
					}
					bound := a.Bound()
					if a.AsName == "" {
						bound, _, _ = strings.Cut(a.Name, ".")
					}
					g.imports[bound] = a.Name
					if a.AsName == "" && bound != a.Name {
						// import a.b binds a; a.b is reached through its own alias
						g.imports[bound] = bound
						alias := zig.Ident(strings.ReplaceAll(a.Name, ".", "_"))
						g.aliases[a.Name] = alias
						bind(alias, expr)
						continue
					}
					alias := zig.Ident(bound)
					g.aliases[a.Name] = alias
					bind(alias, expr)
				}
			case *pyast.ImportFrom:
				if typeOnlyModules[x.Module] {
					return true
				}
				if x.Level > 0 {
					if x.Module == "" {
						g.Warnf(x.Pos(), "relative import of a package is not supported")
						return true
					}
					g.Warnf(x.Pos(), "relative import from %s is resolved from the source root", x.Module)
				}
				expr, ok := g.importModule(x.Module, x.Pos())
				if !ok {
					return true
				}
				alias := "__mod_" + strings.ReplaceAll(x.Module, ".", "_")
				if _, seen := g.aliases[x.Module]; !seen {
					g.aliases[x.Module] = alias
				}
				bind(g.aliases[x.Module], expr)
				for _, a := range x.Names {
					if a.Name == "*" {
						g.Warnf(x.Pos(), "from %s import * binds nothing", x.Module)
						continue
					}
					bound := a.Bound()
					g.fromNames[bound] = fromAlias{module: x.Module, name: a.Name}
					bind(zig.Ident(bound), g.aliases[x.Module]+"."+zig.Ident(a.Name))
				}
			}
			return true
		})
	}
	return decls
}

// importModule resolves one imported module to the Zig expression it is
// bound to. Unregistered modules are user modules, lowered now when a
// loader is configured.
func (g *Generator) importModule(module string, pos pyast.Pos) (string, bool) {
	if info, ok := g.reg.Lookup(module); ok {
		switch info.Strategy {
		case registry.Unsupported:
			g.Warnf(pos, "module %s is not supported; its uses will not compile", module)
			return "struct {}", true
		case registry.Foreign:
			if info.Link != "" {
				g.links[info.Link] = true
			}
		case registry.Source:
			if g.opts.Loader != nil {
				g.compileUser(module, pos)
			}
		}
		return info.Import, true
	}
	g.user[module] = true
	if g.opts.Loader != nil {
		g.compileUser(module, pos)
	}
	return `@import("` + strings.ReplaceAll(module, ".", "/") + `.zig")`, true
}

// compileUser lowers an imported user module with a nested generator that
// shares the import stack, and hands its source to the sink.
func (g *Generator) compileUser(module string, pos pyast.Pos) {
	if g.loading[module] {
		g.errorf(pos, "import cycle through module %s", module)
		return
	}
	for _, done := range g.modules {
		if done == module {
			return
		}
	}
	tree, err := g.opts.Loader.Load(module)
	if err != nil {
		g.Warnf(pos, "cannot load module %s: %v; assuming it is compiled separately", module, err)
		return
	}
	if tree.Name == "" {
		tree.Name = module
	}
	res, err := g.lowerUser(tree)
	if err != nil {
		g.errorf(pos, "module %s: %v", module, err)
		return
	}
	g.diags = append(g.diags, res.Diagnostics...)
	for _, l := range res.LinkLibraries {
		g.links[l] = true
	}
	for _, dep := range res.Modules {
		g.addModule(dep)
	}
	g.addModule(module)
	if g.opts.Sink != nil {
		if err := g.opts.Sink.Write(module, res.Source); err != nil {
			g.errorf(pos, "writing module %s: %v", module, err)
		}
	}
}

func (g *Generator) addModule(module string) {
	for _, m := range g.modules {
		if m == module {
			return
		}
	}
	g.modules = append(g.modules, module)
}

// lowerUser generates a user module, consulting the cache by content hash.
func (g *Generator) lowerUser(tree *pyast.Module) (*Result, error) {
	key := cacheKey(tree, g.opts)
	if g.opts.Cache != nil {
		res, err := g.opts.Cache.Get(key)
		switch {
		case err == nil:
			log.Debugf("cache hit for module %s", tree.Name)
			return res, nil
		case !errors.Is(err, ErrCacheMiss):
			log.Warningf("cache lookup for module %s: %s", tree.Name, err)
		}
	}
	child := New(Options{
		Registry: g.reg,
		Strict:   g.opts.Strict,
		Loader:   g.opts.Loader,
		Sink:     g.opts.Sink,
		Cache:    g.opts.Cache,
	})
	child.loading = g.loading
	res, err := child.Generate(tree)
	if err != nil {
		return nil, err
	}
	if g.opts.Cache != nil && !res.HasErrors() {
		if err := g.opts.Cache.Put(key, res); err != nil {
			log.Warningf("cache store for module %s: %s", tree.Name, err)
		}
	}
	return res, nil
}

// cacheKey identifies a lowered module by the content of its tree and the
// options that change the output.
func cacheKey(tree *pyast.Module, opts Options) string {
	return fmt.Sprintf("%s:%s:strict=%t", tree.Name, hash.Hex(hash.HashModule(tree)), opts.Strict)
}
