package codegen

import (
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Comprehensions
// ---------------------------------------------------------------------------

// comprehension lowers the loops and filters of gens around inner, which
// emits the per-element statement, and returns them as one line. results
// are the expressions evaluated per element, consulted to drop unused loop
// bindings.
func (g *Generator) comprehension(gens []*pyast.Comprehension, results []pyast.Expr, inner func()) string {
	text := g.capture(0, func() {
		g.pushScope()
		defer g.popScope()
		g.compLevel(gens, 0, results, inner)
	})
	return joinLines(text)
}

func (g *Generator) compLevel(gens []*pyast.Comprehension, i int, results []pyast.Expr, inner func()) {
	if i == len(gens) {
		inner()
		return
	}
	c := gens[i]
	if c.IsAsync {
		g.out.line("%s;", registry.CompileError(g, c.Iter.Pos(), "async comprehensions are not supported"))
		return
	}
	var later []pyast.Expr
	later = append(later, c.Ifs...)
	for _, next := range gens[i+1:] {
		later = append(later, next.Iter)
		later = append(later, next.Ifs...)
	}
	later = append(later, results...)
	used := func(name string) bool {
		for _, e := range later {
			if exprReads(e, name) {
				return true
			}
		}
		return false
	}
	g.forLoop(c.Target, c.Iter, true, used, func() {
		for _, cond := range c.Ifs {
			g.out.open("if (%s) {", g.cond(cond))
		}
		g.compLevel(gens, i+1, results, inner)
		for range c.Ifs {
			g.out.close("}")
		}
	}, nil)
}

// joinLines folds captured statements into a single line.
func joinLines(text string) string {
	var parts []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}

// listComp lowers [elt for ...] and (elt for ...) to an owned list built in
// a labeled block. A coroutine-call element spawns one frame per element.
func (g *Generator) listComp(elt pyast.Expr, gens []*pyast.Comprehension, t infer.Type) string {
	elem := t.ElemType()
	if t.Kind != infer.ListKind {
		elem = infer.Unknown
	}
	label := g.nextLabel("comp")
	out := g.fresh("out")
	body := g.comprehension(gens, []pyast.Expr{elt}, func() {
		g.out.line("try %s.append(%s);", out, g.exprAs(elt, elem))
	})
	return label + ": { var " + out + " = std.ArrayList(" + elem.Zig() + ").init(allocator); " +
		body + " break :" + label + " " + out + "; }"
}

func (g *Generator) setComp(x *pyast.SetComp) string {
	t := g.typeOf(x)
	if t.Kind != infer.SetKind {
		t = infer.SetOf(infer.Unknown)
	}
	label := g.nextLabel("comp")
	out := g.fresh("out")
	body := g.comprehension(x.Generators, []pyast.Expr{x.Elt}, func() {
		g.out.line("try %s.put(%s, {});", out, g.exprAs(x.Elt, t.ElemType()))
	})
	return label + ": { var " + out + " = " + t.Zig() + ".init(allocator); " +
		body + " break :" + label + " " + out + "; }"
}

func (g *Generator) dictComp(x *pyast.DictComp) string {
	t := g.typeOf(x)
	if t.Kind != infer.DictKind {
		t = infer.DictOf(infer.Unknown, infer.Unknown)
	}
	label := g.nextLabel("comp")
	out := g.fresh("out")
	body := g.comprehension(x.Generators, []pyast.Expr{x.Key, x.Value}, func() {
		g.out.line("try %s.put(%s, %s);", out, g.exprAs(x.Key, t.KeyType()), g.exprAs(x.Value, t.ElemType()))
	})
	return label + ": { var " + out + " = " + t.Zig() + ".init(allocator); " +
		body + " break :" + label + " " + out + "; }"
}

// ---------------------------------------------------------------------------
// f-strings
// ---------------------------------------------------------------------------

func (g *Generator) fstring(x *pyast.JoinedStr) string {
	var f registry.Format
	for _, v := range x.Values {
		switch p := v.(type) {
		case *pyast.Constant:
			f.Literal(p.Str)
		case *pyast.FormattedValue:
			spec, ok := staticSpec(p.FormatSpec)
			if !ok {
				g.Warnf(p.Pos(), "computed format spec is ignored")
			}
			val := p.Value
			if p.Conversion == 'r' || p.Conversion == 'a' {
				call := pyast.CallName("repr", val)
				call.PosVal = p.PosVal
				val = call
			}
			f.ValueSpec(g, val, spec)
		default:
			g.bail(v.Pos(), "unexpected f-string part %T", v)
		}
	}
	if s, ok := f.Static(); ok {
		return zig.Quote(s)
	}
	return "try std.fmt.allocPrint(allocator, " + f.String() + ", " + f.Args() + ")"
}

// staticSpec returns the text of a format spec without replacement fields.
func staticSpec(spec *pyast.JoinedStr) (string, bool) {
	if spec == nil {
		return "", true
	}
	var b strings.Builder
	for _, v := range spec.Values {
		c, ok := v.(*pyast.Constant)
		if !ok {
			return "", false
		}
		b.WriteString(c.Str)
	}
	return b.String(), true
}

// ---------------------------------------------------------------------------
// Lambdas
// ---------------------------------------------------------------------------

// lambda emits x as a top-level function, relocated ahead of main, and
// returns its name. hints type the parameters where the caller knows them;
// other parameters are anytype.
func (g *Generator) lambda(x *pyast.Lambda, hints []infer.Type) string {
	args := x.Args
	if args == nil {
		args = &pyast.Arguments{}
	}
	body := []pyast.Stmt{&pyast.Return{PosVal: x.PosVal, Value: x.Body}}
	if captured := g.capturedLocals(args.Names(), body); len(captured) > 0 {
		return registry.CompileError(g, x.Pos(), "lambda captures "+strings.Join(captured, ", "))
	}
	if len(args.Defaults) > 0 {
		g.Warnf(x.Pos(), "lambda default values are ignored")
	}
	name := g.nextLabel("__lambda")
	def := &pyast.FunctionDef{PosVal: x.PosVal, Name: name, Args: args, Body: body}
	text := g.capture(0, func() {
		saved := g.enterFunc(def, "", infer.Unknown, body)
		defer g.leaveFunc(saved)
		var params []string
		firstAny := ""
		for i, a := range args.Args {
			t := infer.Unknown
			if i < len(hints) {
				t = hints[i]
			}
			zn := g.declare(a.Name, t, false)
			zt := "anytype"
			if !t.IsUnknown() {
				zt = zigType(t)
			} else if firstAny == "" {
				firstAny = zn
			}
			params = append(params, zn+": "+zt)
		}
		ret := g.typeOf(x.Body)
		g.fn.ret = ret
		rt := retZig(ret)
		if ret.IsUnknown() && firstAny != "" {
			rt = "@TypeOf(" + firstAny + ")"
		}
		g.out.open("fn %s(%s) anyerror!%s {", name, strings.Join(params, ", "), rt)
		for _, a := range args.Args {
			if !exprReads(x.Body, a.Name) {
				g.out.line("_ = %s;", g.ident(a.Name))
			}
		}
		g.stmts(body)
		g.out.close("}")
	})
	g.lambdas = append(g.lambdas, text)
	return name
}
