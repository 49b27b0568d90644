package codegen

import (
	"fmt"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// registry.Context
// ---------------------------------------------------------------------------

var _ registry.Context = (*Generator)(nil)

func (g *Generator) Lower(e pyast.Expr) string { return g.expr(e) }

func (g *Generator) TypeOf(e pyast.Expr) infer.Type { return g.typeOf(e) }

func (g *Generator) Classes() *infer.ClassRegistry { return g.classes }

func (g *Generator) Allocator() string { return "allocator" }

func (g *Generator) NextLabel(prefix string) string { return g.nextLabel(prefix) }

func (g *Generator) Warnf(pos pyast.Pos, format string, args ...any) {
	g.report(Warning, pos, fmt.Sprintf(format, args...))
}

// ModuleAlias returns the identifier an imported module is bound to. A
// registered module that was never imported is referred to through its
// import expression directly.
func (g *Generator) ModuleAlias(module string) string {
	if alias, ok := g.aliases[module]; ok {
		return alias
	}
	if info, ok := g.reg.Lookup(module); ok {
		return info.Import
	}
	return zig.Ident(registry.ImportInfo{Module: module}.Alias())
}

// Stringify lowers str(e).
func (g *Generator) Stringify(e pyast.Expr) string {
	t := g.typeOf(e)
	switch t.Kind {
	case infer.StringKind:
		return g.expr(e)
	case infer.NoneKind:
		return `"None"`
	case infer.BoolKind:
		return "runtime.boolStr(" + g.expr(e) + ")"
	case infer.IntKind:
		return `try std.fmt.allocPrint(allocator, "{d}", .{` + g.expr(e) + `})`
	case infer.FloatKind:
		return "try runtime.floatStr(allocator, " + g.expr(e) + ")"
	case infer.ClassKind:
		for _, m := range []string{"__str__", "__repr__"} {
			if g.classes.Defines(t.Name, m) {
				return "try " + zig.Paren(g.expr(e)) + "." + m + "()"
			}
		}
	}
	return "try runtime.str(allocator, " + g.expr(e) + ")"
}

// RunCoroutine drives a coroutine call to completion on the current thread.
func (g *Generator) RunCoroutine(e pyast.Expr) string {
	call, ok := e.(*pyast.Call)
	if !ok {
		return registry.CompileError(g, e.Pos(), "asyncio.run needs a coroutine call")
	}
	spawn, prefix, ok := g.coroutineCall(call)
	if !ok {
		return registry.CompileError(g, e.Pos(), "asyncio.run argument is not a coroutine defined in this module")
	}
	label := g.nextLabel("run")
	frame, result := g.fresh("frame"), g.fresh("result")
	return fmt.Sprintf("%s: { const %s = %s; while (true) { if (try %s_poll(%s)) |%s| { allocator.destroy(%s); break :%s %s; } runtime.poller.wait(); } }",
		label, frame, spawn, prefix, frame, result, frame, label, result)
}

// pos returns the position of the statement being lowered.
func (g *Generator) pos() pyast.Pos { return g.at }
