package codegen

import (
	"fmt"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Hoisting
// ---------------------------------------------------------------------------

// hoist declares, above compound statement s, every name assigned anywhere
// inside it that is not bound yet, so that assignments in one branch remain
// visible after the statement. Loop targets that live only inside their loop
// and names of classes defined inside s are left alone.
func (g *Generator) hoist(s pyast.Stmt, constant bool) {
	if g.fn == nil {
		return
	}
	skip := map[string]bool{}
	pyast.Inspect(s, func(n pyast.Node) bool {
		switch x := n.(type) {
		case *pyast.FunctionDef, *pyast.Lambda:
			return false
		case *pyast.ClassDef:
			skip[x.Name] = true
			return false
		case *pyast.For:
			if name, ok := x.Target.(*pyast.Name); ok && g.loopLocal(x, name.ID) {
				skip[name.ID] = true
			}
		}
		return true
	})
	for _, name := range pyast.AssignedNames([]pyast.Stmt{s}) {
		if skip[name] || g.isBound(name) {
			continue
		}
		t, decl := g.hoistType(name, s)
		zn := g.declare(name, t, true)
		g.out.line("var %s: %s = %s;", zn, decl, zigDefaultDecl(t, decl))
		if constant || g.local(name).reads == 0 {
			g.out.line("_ = &%s;", zn)
		}
	}
}

func zigDefaultDecl(t infer.Type, decl string) string {
	if strings.HasPrefix(decl, "@TypeOf(") {
		return "undefined"
	}
	return zigDefault(t)
}

// hoistType types a hoisted name from inference, then from the first value
// assigned to it inside s. A value whose type is not known statically is
// typed with @TypeOf; failing all of that the numeric default is used.
func (g *Generator) hoistType(name string, s pyast.Stmt) (infer.Type, string) {
	if t, ok := g.inf.VarType(name); ok && !t.IsUnknown() {
		return t, zigType(t)
	}
	var first pyast.Expr
	pyast.Inspect(s, func(n pyast.Node) bool {
		if first != nil {
			return false
		}
		switch x := n.(type) {
		case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
			return false
		case *pyast.Assign:
			for _, t := range x.Targets {
				if tn, ok := t.(*pyast.Name); ok && tn.ID == name {
					first = x.Value
				}
			}
		case *pyast.With:
			for _, item := range x.Items {
				if tn, ok := item.Var.(*pyast.Name); ok && tn.ID == name {
					first = item.Context
				}
			}
		}
		return true
	})
	if first != nil {
		if t := g.typeOf(first); !t.IsUnknown() {
			return t, zigType(t)
		}
		if _, isCall := first.(*pyast.Call); isCall {
			return infer.Unknown, "@TypeOf(" + g.typeExpr(first) + ")"
		}
	}
	g.Warnf(s.Pos(), "type of %s is unknown; declaring it as i64", name)
	return infer.Int, "i64"
}

// typeExpr lowers e for use inside @TypeOf only: diagnostics and relocated
// lambdas produced along the way are dropped.
func (g *Generator) typeExpr(e pyast.Expr) string {
	nd, nl := len(g.diags), len(g.lambdas)
	s := g.expr(e)
	g.diags, g.lambdas = g.diags[:nd], g.lambdas[:nl]
	return s
}

// loopLocal reports whether the target of f can be bound as the loop's own
// capture: it is assigned nowhere else and never read outside the loop body.
func (g *Generator) loopLocal(f *pyast.For, name string) bool {
	if g.fn == nil || g.fn.def == nil || g.fn.globals[name] || g.fn.frame != nil {
		return false
	}
	li := g.local(name)
	if li.stores != 1 || li.mutated {
		return false
	}
	inner, ok := g.analyzeLocals(f.Body)[name]
	return !ok || inner.reads == li.reads
}

// ---------------------------------------------------------------------------
// Comptime conditions
// ---------------------------------------------------------------------------

// constCond evaluates a condition that is decidable while generating.
func (g *Generator) constCond(e pyast.Expr) (bool, bool) {
	switch x := e.(type) {
	case *pyast.Constant:
		switch x.Kind {
		case pyast.ConstNone:
			return false, true
		case pyast.ConstBool:
			return x.Bool, true
		case pyast.ConstInt:
			return x.Int != 0, true
		case pyast.ConstFloat:
			return x.Float != 0, true
		}
		return x.Str != "", true
	case *pyast.Name:
		switch x.ID {
		case "True":
			return true, true
		case "False", "None":
			return false, true
		}
	case *pyast.UnaryOp:
		if x.Op == pyast.Not {
			v, ok := g.constCond(x.Operand)
			return !v, ok
		}
	case *pyast.BoolOp:
		result := x.Op == pyast.And
		for _, v := range x.Values {
			b, ok := g.constCond(v)
			if !ok {
				return false, false
			}
			if x.Op == pyast.And {
				result = result && b
			} else {
				result = result || b
			}
		}
		return result, true
	case *pyast.Call:
		if n, ok := x.Func.(*pyast.Name); ok && n.ID == "isinstance" && !g.isLocal("isinstance") {
			return g.staticIsinstance(x)
		}
	case *pyast.Compare:
		if len(x.Ops) != 1 || (x.Ops[0] != pyast.Eq && x.Ops[0] != pyast.NotEq) {
			return false, false
		}
		l, lok := g.constString(x.Left)
		r, rok := g.constString(x.Comparators[0])
		if !lok || !rok {
			return false, false
		}
		return (l == r) == (x.Ops[0] == pyast.Eq), true
	}
	return false, false
}

// constString returns the value of a string literal or of __name__.
func (g *Generator) constString(e pyast.Expr) (string, bool) {
	switch x := e.(type) {
	case *pyast.Constant:
		if x.Kind == pyast.ConstString {
			return x.Str, true
		}
	case *pyast.Name:
		if x.ID == "__name__" && !g.isLocal("__name__") {
			if g.opts.Entry {
				return "__main__", true
			}
			return g.moduleName(), true
		}
	}
	return "", false
}

// discardEffects emits, once each, the calls inside an eliminated condition
// and a use of every local it mentions.
func (g *Generator) discardEffects(e pyast.Expr) {
	seen := map[string]bool{}
	var walk func(pyast.Expr)
	walk = func(e pyast.Expr) {
		pyast.Inspect(e, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.Lambda:
				return false
			case *pyast.Call:
				if fn, ok := x.Func.(*pyast.Name); ok && fn.ID == "isinstance" {
					for _, a := range x.Args {
						walk(a)
					}
					return false
				}
				g.out.line("_ = %s;", g.expr(x))
				return false
			case *pyast.Name:
				if g.isLocal(x.ID) && !seen[x.ID] {
					seen[x.ID] = true
					g.out.line("_ = &%s;", g.ident(x.ID))
				}
			}
			return true
		})
	}
	walk(e)
}

// ---------------------------------------------------------------------------
// if / while
// ---------------------------------------------------------------------------

func (g *Generator) ifStmt(x *pyast.If) {
	_, constant := g.constCond(x.Test)
	g.hoist(x, constant)
	g.predeclareWalrus(x.Test)
	if v, ok := g.constCond(x.Test); ok {
		g.discardEffects(x.Test)
		g.block(pick(v, x.Body, x.OrElse))
		return
	}
	g.out.open("if (%s) {", g.cond(x.Test))
	g.stmts(x.Body)
	g.elseChain(x.OrElse)
}

func pick(v bool, then, otherwise []pyast.Stmt) []pyast.Stmt {
	if v {
		return then
	}
	return otherwise
}

// elseChain closes an open if body, continuing with elif branches.
func (g *Generator) elseChain(orelse []pyast.Stmt) {
	for {
		if len(orelse) == 0 {
			g.out.close("}")
			return
		}
		elif, ok := orelse[0].(*pyast.If)
		if !ok || len(orelse) != 1 {
			g.reopen("} else {")
			g.stmts(orelse)
			g.out.close("}")
			return
		}
		g.at = elif.Pos()
		if v, ok := g.constCond(elif.Test); ok {
			g.reopen("} else {")
			g.discardEffects(elif.Test)
			g.stmts(pick(v, elif.Body, elif.OrElse))
			g.out.close("}")
			return
		}
		g.predeclareWalrus(elif.Test)
		g.reopen("} else if (%s) {", g.cond(elif.Test))
		g.stmts(elif.Body)
		orelse = elif.OrElse
	}
}

// reopen writes a line that closes one block and opens the next.
func (g *Generator) reopen(format string, args ...any) {
	g.out.indent--
	g.out.open(format, args...)
}

// block emits stmts in their own Zig block.
func (g *Generator) block(stmts []pyast.Stmt) {
	if len(stmts) == 0 {
		return
	}
	g.out.open("{")
	g.pushScope()
	g.stmts(stmts)
	g.popScope()
	g.out.close("}")
}

func (g *Generator) whileStmt(x *pyast.While) {
	g.hoist(x, false)
	g.predeclareWalrus(x.Test)
	test := "true"
	if v, ok := g.constCond(x.Test); ok {
		if !v {
			g.discardEffects(x.Test)
			g.stmts(x.OrElse)
			return
		}
	} else {
		test = g.cond(x.Test)
	}
	g.out.open("while (%s) {", test)
	g.loopBody(x.Body)
	g.loopElse(x.OrElse)
}

func (g *Generator) loopBody(body []pyast.Stmt) {
	g.pushScope()
	if g.fn != nil {
		g.fn.loops++
	}
	g.stmts(body)
	if g.fn != nil {
		g.fn.loops--
	}
	g.popScope()
}

func (g *Generator) loopElse(orelse []pyast.Stmt) {
	if len(orelse) == 0 {
		g.out.close("}")
		return
	}
	g.reopen("} else {")
	g.stmts(orelse)
	g.out.close("}")
}

// ---------------------------------------------------------------------------
// for
// ---------------------------------------------------------------------------

func (g *Generator) forStmt(x *pyast.For) {
	g.hoist(x, false)
	g.predeclareWalrus(x.Iter)
	fresh := false
	if name, ok := x.Target.(*pyast.Name); ok {
		fresh = g.loopLocal(x, name.ID)
	}
	used := func(name string) bool { return g.reads(x.Body, name) }
	g.forLoop(x.Target, x.Iter, fresh, used, func() { g.loopBody(x.Body) }, x.OrElse)
}

// builtinCall returns e as a call of the builtin name when name is not
// rebound in this module.
func (g *Generator) builtinCall(e pyast.Expr, name string) (*pyast.Call, bool) {
	c, ok := e.(*pyast.Call)
	if !ok {
		return nil, false
	}
	n, ok := c.Func.(*pyast.Name)
	if !ok || n.ID != name || g.isLocal(name) || g.funcs[name] != nil {
		return nil, false
	}
	if _, ok := g.fromNames[name]; ok {
		return nil, false
	}
	return c, true
}

// forLoop emits a loop binding target to each element of iter. fresh
// targets are declared inside the loop; other targets are stored into their
// existing bindings. used reports whether the body reads a name. body emits
// the loop body and orelse is the loop's else clause.
func (g *Generator) forLoop(target, iter pyast.Expr, fresh bool, used func(string) bool, body func(), orelse []pyast.Stmt) {
	g.pushScope()
	defer g.popScope()
	if call, ok := g.builtinCall(iter, "range"); ok && len(call.Args) >= 1 && len(call.Args) <= 3 {
		if name, ok := target.(*pyast.Name); ok {
			g.rangeLoop(name.ID, call, fresh, body, orelse)
			return
		}
	}
	t := g.typeOf(iter)
	elem := t.IterElem()
	bind := !fresh || anyUsed(target, used)
	capture := func(name string) string {
		if !bind {
			g.declareTargets(target, elem)
			return "_"
		}
		return name
	}
	switch t.Kind {
	case infer.StringKind:
		src, ci := g.fresh("chars"), g.fresh("ci")
		g.out.line("const %s = %s;", src, g.expr(iter))
		g.out.open("for (0..%s.len) |%s| {", src, capture(ci))
		if bind {
			g.bindLoopTarget(target, src+"["+ci+".."+ci+" + 1]", infer.String, fresh, used)
		}
	case infer.DictKind, infer.SetKind, infer.CounterKind:
		keys, k := g.fresh("keys"), g.fresh("key")
		g.out.line("var %s = %s.keyIterator();", keys, zig.Paren(g.expr(iter)))
		g.out.open("while (%s.next()) |%s| {", keys, capture(k))
		if bind {
			g.bindLoopTarget(target, k+".*", elem, fresh, used)
		}
	default:
		kw := "for"
		if t.Kind == infer.TupleKind {
			kw = "inline for"
		}
		items := registry.Items(g, iter)
		if name, ok := target.(*pyast.Name); ok && fresh && bind {
			g.out.open("%s (%s) |%s| {", kw, items, g.declare(name.ID, elem, false))
			break
		}
		it := g.fresh("it")
		g.out.open("%s (%s) |%s| {", kw, items, capture(it))
		if bind {
			g.bindLoopTarget(target, it, elem, fresh, used)
		}
	}
	body()
	g.loopElse(orelse)
}

func (g *Generator) rangeLoop(name string, call *pyast.Call, fresh bool, body func(), orelse []pyast.Stmt) {
	start, stop, step := registry.RangeArgs(g, call)
	if len(call.Args) >= 2 && !isSimpleOperand(call.Args[1]) {
		tmp := g.fresh("stop")
		g.out.line("const %s: i64 = %s;", tmp, stop)
		stop = tmp
	} else if len(call.Args) == 1 && !isSimpleOperand(call.Args[0]) {
		tmp := g.fresh("stop")
		g.out.line("const %s: i64 = %s;", tmp, stop)
		stop = tmp
	}
	var i string
	closeBlock := false
	if fresh || !g.isBound(name) {
		g.out.open("{")
		closeBlock = true
		i = g.declare(name, infer.Int, true)
		g.out.line("var %s: i64 = %s;", i, start)
	} else {
		i = g.ident(name)
		g.out.line("%s = %s;", i, start)
	}
	test := i + " < " + stop
	if len(call.Args) == 3 {
		if v, ok := infer.IntLiteral(call.Args[2]); ok {
			if v < 0 {
				test = i + " > " + stop
			}
		} else {
			tmp := g.fresh("step")
			g.out.line("const %s: i64 = %s;", tmp, step)
			step = tmp
			test = "if (" + step + " > 0) " + i + " < " + stop + " else " + i + " > " + stop
		}
	}
	g.out.open("while (%s) : (%s += %s) {", test, i, step)
	body()
	g.loopElse(orelse)
	if closeBlock {
		g.out.close("}")
	}
}

func isSimpleOperand(e pyast.Expr) bool {
	switch x := e.(type) {
	case *pyast.Constant, *pyast.Name:
		return true
	case *pyast.UnaryOp:
		return isSimpleOperand(x.Operand)
	}
	return false
}

// anyUsed reports whether a fresh binding of target would be read.
func anyUsed(target pyast.Expr, used func(string) bool) bool {
	for _, n := range pyast.TargetNames(target) {
		if used(n) {
			return true
		}
	}
	return false
}

// bindLoopTarget binds one element value to a loop or comprehension target.
func (g *Generator) bindLoopTarget(target pyast.Expr, value string, t infer.Type, fresh bool, used func(string) bool) {
	switch tg := target.(type) {
	case *pyast.Name:
		if fresh {
			zn := g.declare(tg.ID, t, false)
			if used(tg.ID) {
				g.out.line("const %s = %s;", zn, value)
			}
			return
		}
		g.out.line("%s = %s;", g.ident(tg.ID), value)
	case *pyast.Tuple:
		g.bindElems(tg.Elts, value, t, fresh, used)
	case *pyast.List:
		g.bindElems(tg.Elts, value, t, fresh, used)
	default:
		g.storeValue(target, value, t)
	}
}

func (g *Generator) bindElems(elts []pyast.Expr, value string, t infer.Type, fresh bool, used func(string) bool) {
	if fresh && !anyUsed(&pyast.Tuple{Elts: elts}, used) {
		g.declareTargets(&pyast.Tuple{Elts: elts}, t)
		return
	}
	tmp := g.fresh("elem")
	g.out.line("const %s = %s;", tmp, value)
	for i, e := range elts {
		et, access := elemAccess(t, tmp, i)
		g.bindLoopTarget(e, access, et, fresh, used)
	}
}

// declareTargets binds the names of a target that is never read.
func (g *Generator) declareTargets(target pyast.Expr, t infer.Type) {
	if n, ok := target.(*pyast.Name); ok {
		g.declare(n.ID, t, false)
		return
	}
	for _, n := range pyast.TargetNames(target) {
		g.declare(n, infer.Unknown, false)
	}
}

// elemAccess returns the type of and the Zig expression for element i of
// a tuple or list value held in tmp.
func elemAccess(t infer.Type, tmp string, i int) (infer.Type, string) {
	idx := fmt.Sprintf("[%d]", i)
	switch t.Kind {
	case infer.TupleKind:
		if i < len(t.Elems) {
			return t.Elems[i], tmp + idx
		}
	case infer.ListKind:
		return t.ElemType(), tmp + ".items" + idx
	}
	return infer.Unknown, tmp + idx
}

// ---------------------------------------------------------------------------
// with
// ---------------------------------------------------------------------------

func (g *Generator) with(x *pyast.With) {
	g.hoist(x, false)
	g.out.open("{")
	g.pushScope()
	for _, item := range x.Items {
		ctx := g.expr(item.Context)
		var handle string
		switch v := item.Var.(type) {
		case nil:
			handle = g.fresh("ctx")
			g.out.line("const %s = %s;", handle, ctx)
		case *pyast.Name:
			handle = g.ident(v.ID)
			g.out.line("%s = %s;", handle, ctx)
		default:
			g.out.line("%s;", registry.CompileError(g, x.Pos(), "with target must be a name"))
			continue
		}
		g.out.line("defer runtime.closeContext(%s);", handle)
	}
	g.stmts(x.Body)
	g.popScope()
	g.out.close("}")
}

// ---------------------------------------------------------------------------
// match
// ---------------------------------------------------------------------------

func (g *Generator) match(x *pyast.Match) {
	g.hoist(x, false)
	t := g.typeOf(x.Subject)
	subj := g.fresh("subject")
	g.out.line("const %s = %s;", subj, g.expr(x.Subject))
	// The subject is visible to pattern lowering as a synthetic name.
	pyName := "$" + subj
	g.symbols.Declare(pyName, t, false)
	g.rename(pyName, subj)
	ref := &pyast.Name{PosVal: x.Subject.Pos(), ID: pyName}

	g.out.line("_ = &%s;", subj)
	opened := false
	for _, c := range x.Cases {
		g.pushScope()
		cond, irrefutable := g.pattern(c.Pattern, ref, subj)
		if c.Guard != nil {
			guard := g.cond(c.Guard)
			if irrefutable {
				cond = guard
			} else {
				cond = zig.Paren(cond) + " and " + zig.Paren(guard)
			}
			irrefutable = false
		}
		switch {
		case irrefutable && !opened:
			g.out.open("{")
		case irrefutable:
			g.reopen("} else {")
		case !opened:
			g.out.open("if (%s) {", cond)
		default:
			g.reopen("} else if (%s) {", cond)
		}
		opened = true
		g.bindCaptures(c)
		g.stmts(c.Body)
		g.popScope()
		if irrefutable {
			break
		}
	}
	if opened {
		g.out.close("}")
	}
}

// pattern returns the condition matching the subject against p, and whether
// p always matches. Capture names are renamed to the subject temporary for
// the guard and body.
func (g *Generator) pattern(p pyast.Pattern, ref *pyast.Name, subj string) (string, bool) {
	switch x := p.(type) {
	case nil:
		return "true", true
	case *pyast.MatchValue:
		return g.equal(ref, x.Value, g.typeOf(ref), g.typeOf(x.Value)), false
	case *pyast.MatchSingleton:
		if x.Value == nil || x.Value.Kind == pyast.ConstNone {
			return subj + " == null", false
		}
		return subj + " == " + constant(x.Value), false
	case *pyast.MatchAs:
		cond, irrefutable := "true", true
		if x.Pattern != nil {
			cond, irrefutable = g.pattern(x.Pattern, ref, subj)
		}
		if x.Name != "" {
			g.symbols.Declare(x.Name, g.typeOf(ref), false)
			g.rename(x.Name, subj)
		}
		return cond, irrefutable
	case *pyast.MatchOr:
		var parts []string
		for _, alt := range x.Patterns {
			c, irrefutable := g.pattern(alt, ref, subj)
			if irrefutable {
				return "true", true
			}
			parts = append(parts, zig.Paren(c))
		}
		return strings.Join(parts, " or "), false
	}
	g.bail(p.Pos(), "unexpected pattern %T", p)
	return "", false
}

// bindCaptures gives a capture assigned inside its case body its own
// mutable copy of the subject.
func (g *Generator) bindCaptures(c *pyast.MatchCase) {
	as, ok := c.Pattern.(*pyast.MatchAs)
	if !ok || as.Name == "" {
		return
	}
	li, ok := g.analyzeLocals(c.Body)[as.Name]
	if !ok || li.stores == 0 {
		return
	}
	subj := g.ident(as.Name)
	t := g.typeOf(&pyast.Name{ID: as.Name})
	zn := g.declare(as.Name, t, true)
	g.out.line("var %s = %s;", zn, subj)
	g.out.line("_ = &%s;", zn)
}
