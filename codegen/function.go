package codegen

import (
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// funcDecl describes how a def is emitted.
type funcDecl struct {
	name  string // Zig function name
	pub   bool
	class string // class defining the method, "" for free functions
	owner string // struct the method is emitted into
}

// retZig renders the result type of a function returning t.
func retZig(t infer.Type) string {
	if t.Kind == infer.NoneKind {
		return "void"
	}
	return zigType(t)
}

// function emits def as a Zig function.
func (g *Generator) function(def *pyast.FunctionDef, d funcDecl) {
	ret := g.inf.ReturnType(def)
	if ret.IsUnknown() {
		g.Warnf(def.Pos(), "return type of %s is unknown; using i64", def.Name)
	}
	saved := g.enterFunc(def, d.class, ret, def.Body)
	defer g.leaveFunc(saved)
	g.fn.owner = d.owner

	params, prologue := g.params(def, d)
	pub := ""
	if d.pub {
		pub = "pub "
	}
	g.out.open("%sfn %s(%s) anyerror!%s {", pub, d.name, strings.Join(params, ", "), retZig(ret))
	for _, line := range prologue {
		g.out.line("%s", line)
	}
	g.stmts(def.Body)
	g.out.close("}")
}

// params declares def's parameters in the function scope and returns the
// Zig parameter list and the statements that must open the body.
func (g *Generator) params(def *pyast.FunctionDef, d funcDecl) (params, prologue []string) {
	if def.Args == nil {
		return nil, nil
	}
	for i, a := range def.Args.Args {
		li := g.local(a.Name)
		if i == 0 && d.owner != "" && !isStatic(def) {
			if isClassMethod(def) {
				g.fn.cls = a.Name
				continue
			}
			zn := g.declare(a.Name, infer.ClassOf(d.owner), false)
			params = append(params, zn+": *Self")
			if li.reads == 0 {
				prologue = append(prologue, "_ = "+zn+";")
			}
			continue
		}
		t := g.inf.ParamType(def, i)
		zt := "anytype"
		if !t.IsUnknown() {
			zt = zigType(t)
		}
		reassigned := li.stores > 0 || li.mutated
		zn := g.declare(a.Name, t, reassigned)
		switch {
		case reassigned:
			params = append(params, zn+"_in: "+zt)
			prologue = append(prologue, "var "+zn+" = "+zn+"_in;", "_ = &"+zn+";")
		case li.reads == 0:
			params = append(params, zn+": "+zt)
			prologue = append(prologue, "_ = "+zn+";")
		default:
			params = append(params, zn+": "+zt)
		}
	}
	if v := def.Args.Vararg; v != nil {
		elem := g.varargElem(def)
		zn := g.declare(v.Name, infer.ListOf(elem), true)
		params = append(params, zn+"_in: []const "+elem.Zig())
		prologue = append(prologue,
			"var "+zn+" = std.ArrayList("+elem.Zig()+").init(allocator);",
			"try "+zn+".appendSlice("+zn+"_in);",
			"_ = &"+zn+";")
	}
	if k := def.Args.Kwarg; k != nil {
		g.Warnf(def.Pos(), "**%s parameter of %s is ignored", k.Name, def.Name)
	}
	return params, prologue
}

// isProcedure reports whether a call of def yields no value.
func (g *Generator) isProcedure(def *pyast.FunctionDef) bool {
	return !def.IsAsync && g.inf.ReturnType(def).Kind == infer.NoneKind
}

// decoratorCalls lowers the decorators of a module-level function to
// statements applied once at startup. Only their side effects are kept.
func (g *Generator) decoratorCalls(def *pyast.FunctionDef) []string {
	var out []string
	for _, d := range def.Decorators {
		switch infer.DottedName(d) {
		case "staticmethod", "classmethod", "property", "dataclass", "dataclasses.dataclass":
			continue
		}
		target := zig.Ident(def.Name)
		if def.IsAsync {
			target += "_spawn"
		}
		out = append(out, "_ = try "+zig.Paren(g.expr(d))+"("+target+");")
	}
	return out
}
