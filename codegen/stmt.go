package codegen

import (
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Statement lowering
// ---------------------------------------------------------------------------

// stmts lowers list, dropping statements after one that always leaves the
// block. Zig rejects unreachable code.
func (g *Generator) stmts(list []pyast.Stmt) {
	for _, s := range list {
		g.stmt(s)
		if leaves(s) {
			return
		}
	}
}

func leaves(s pyast.Stmt) bool {
	switch s.(type) {
	case *pyast.Break, *pyast.Continue:
		return true
	}
	return terminates([]pyast.Stmt{s})
}

// stmt lowers one statement, appending to the output buffer.
func (g *Generator) stmt(s pyast.Stmt) {
	if s == nil {
		g.bail(g.at, "missing statement")
	}
	g.at = s.Pos()
	switch x := s.(type) {
	case *pyast.ExprStmt:
		g.exprStmt(x)
	case *pyast.Assign:
		g.assign(x)
	case *pyast.AugAssign:
		g.augAssign(x)
	case *pyast.AnnAssign:
		g.annAssign(x)
	case *pyast.Return:
		if x.Value != nil {
			g.predeclareWalrus(x.Value)
		}
		g.emitReturnValue(x.Value)
	case *pyast.If:
		g.ifStmt(x)
	case *pyast.While:
		g.whileStmt(x)
	case *pyast.For:
		g.forStmt(x)
	case *pyast.Try:
		g.tryStmt(x)
	case *pyast.Raise:
		g.raise(x)
	case *pyast.Assert:
		g.assert(x)
	case *pyast.With:
		g.with(x)
	case *pyast.Match:
		g.match(x)
	case *pyast.Break:
		g.loopJump("break", "BreakRequested")
	case *pyast.Continue:
		g.loopJump("continue", "ContinueRequested")
	case *pyast.FunctionDef:
		g.nestedDef(x)
	case *pyast.ClassDef:
		g.out.line("%s;", registry.CompileError(g, x.Pos(), "class "+x.Name+" must be defined at module level"))
	case *pyast.Pass, *pyast.Import, *pyast.ImportFrom, *pyast.Global:
	default:
		g.bail(s.Pos(), "unexpected statement %T", s)
	}
}

// terminates reports whether control never falls off the end of stmts.
func terminates(stmts []pyast.Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	switch x := stmts[len(stmts)-1].(type) {
	case *pyast.Return, *pyast.Raise:
		return true
	case *pyast.If:
		return len(x.OrElse) > 0 && terminates(x.Body) && terminates(x.OrElse)
	}
	return false
}

func (g *Generator) exprStmt(x *pyast.ExprStmt) {
	if _, ok := x.Value.(*pyast.Constant); ok {
		return // docstring
	}
	g.predeclareWalrus(x.Value)
	v := g.expr(x.Value)
	if v == "" || v == "{}" {
		return
	}
	if g.typeOf(x.Value).Kind == infer.NoneKind {
		g.out.line("%s;", v)
		return
	}
	g.out.line("_ = %s;", v)
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

func (g *Generator) assign(x *pyast.Assign) {
	g.predeclareWalrus(x.Value)
	if len(x.Targets) == 1 {
		g.assignTo(x.Targets[0], x.Value)
		return
	}
	t := g.typeOf(x.Value)
	tmp := g.fresh("chain")
	g.out.line("const %s = %s;", tmp, g.expr(x.Value))
	for _, target := range x.Targets {
		g.storeValue(target, tmp, t)
	}
}

// assignTo lowers target = value.
func (g *Generator) assignTo(target, value pyast.Expr) {
	switch tg := target.(type) {
	case *pyast.Name:
		if lam, ok := value.(*pyast.Lambda); ok && !g.isBound(tg.ID) {
			zn := g.declare(tg.ID, infer.Unknown, false)
			g.out.line("const %s = %s;", zn, g.lambda(lam, nil))
			if g.local(tg.ID).reads == 0 {
				g.out.line("_ = &%s;", zn)
			}
			return
		}
		if g.isBound(tg.ID) {
			g.out.line("%s = %s;", g.ident(tg.ID), g.exprAs(value, g.boundType(tg.ID)))
			return
		}
		t := g.localType(tg.ID, value)
		g.declareLocal(tg.ID, t, g.exprAs(value, t))
	case *pyast.Attribute:
		g.storeAttr(tg, g.exprAs(value, g.attrType(tg)))
	case *pyast.Subscript:
		ct := g.typeOf(tg.Value)
		want := infer.Unknown
		switch ct.Kind {
		case infer.ListKind, infer.DictKind:
			want = ct.ElemType()
		}
		g.storeSubscript(tg, g.exprAs(value, want))
	case *pyast.Tuple:
		g.unpack(tg.Elts, value)
	case *pyast.List:
		g.unpack(tg.Elts, value)
	case *pyast.Starred:
		g.out.line("%s;", registry.CompileError(g, tg.Pos(), "starred assignment target is not supported"))
	default:
		g.bail(target.Pos(), "cannot assign to %T", target)
	}
}

// boundType is the declared type of an existing binding.
func (g *Generator) boundType(name string) infer.Type {
	if sym, ok := g.symbols.Lookup(name); ok {
		return sym.Type
	}
	if t, ok := g.globals[name]; ok {
		return t
	}
	return infer.Unknown
}

// localType types a new local from its first value, widened by every other
// assignment to the same name.
func (g *Generator) localType(name string, value pyast.Expr) infer.Type {
	t := g.typeOf(value)
	if vt, ok := g.inf.VarType(name); ok {
		if j := infer.Join(t, vt); !j.IsUnknown() {
			return j
		}
	}
	return t
}

// declareLocal declares a new local initialized with value, already
// lowered.
func (g *Generator) declareLocal(name string, t infer.Type, value string) {
	li := g.local(name)
	zn := g.declare(name, t, li.mutable())
	kw := "const"
	if li.mutable() {
		kw = "var"
	}
	if t.IsUnknown() || t.Kind == infer.CoroutineKind {
		g.out.line("%s %s = %s;", kw, zn, value)
	} else {
		g.out.line("%s %s: %s = %s;", kw, zn, zigType(t), value)
	}
	if li.reads == 0 {
		g.out.line("_ = &%s;", zn)
	}
}

// unpack lowers a, b = value through one temporary, so that swaps read
// every element before any store.
func (g *Generator) unpack(elts []pyast.Expr, value pyast.Expr) {
	for _, e := range elts {
		if _, ok := e.(*pyast.Starred); ok {
			g.out.line("%s;", registry.CompileError(g, e.Pos(), "starred unpacking is not supported"))
			return
		}
	}
	t := g.typeOf(value)
	if t.Kind == infer.TupleKind && len(t.Elems) != len(elts) {
		g.out.line("%s;", registry.CompileError(g, value.Pos(), "tuple unpacking arity mismatch"))
		return
	}
	tmp := g.fresh("unpack")
	g.out.line("const %s = %s;", tmp, g.expr(value))
	for i, e := range elts {
		et, access := elemAccess(t, tmp, i)
		g.storeValue(e, access, et)
	}
}

// storeValue stores an already lowered value of type t into target.
func (g *Generator) storeValue(target pyast.Expr, value string, t infer.Type) {
	switch tg := target.(type) {
	case *pyast.Name:
		if g.isBound(tg.ID) {
			g.out.line("%s = %s;", g.ident(tg.ID), value)
			return
		}
		g.declareLocal(tg.ID, t, value)
	case *pyast.Attribute:
		g.storeAttr(tg, value)
	case *pyast.Subscript:
		g.storeSubscript(tg, value)
	case *pyast.Tuple, *pyast.List:
		var elts []pyast.Expr
		if tu, ok := tg.(*pyast.Tuple); ok {
			elts = tu.Elts
		} else {
			elts = tg.(*pyast.List).Elts
		}
		tmp := g.fresh("unpack")
		g.out.line("const %s = %s;", tmp, value)
		for i, e := range elts {
			et, access := elemAccess(t, tmp, i)
			g.storeValue(e, access, et)
		}
	case *pyast.Starred:
		g.out.line("%s;", registry.CompileError(g, tg.Pos(), "starred assignment target is not supported"))
	default:
		g.bail(target.Pos(), "cannot assign to %T", target)
	}
}

// attrType is the declared type of the attribute x refers to.
func (g *Generator) attrType(x *pyast.Attribute) infer.Type {
	vt := g.typeOf(x.Value)
	if vt.Kind == infer.ClassKind {
		if t, ok := g.classes.FieldType(vt.Name, x.Attr); ok {
			return t
		}
	}
	return g.typeOf(x)
}

func (g *Generator) storeAttr(x *pyast.Attribute, value string) {
	if mod := g.moduleOf(x.Value); mod != "" {
		g.out.line("%s.%s = %s;", g.ModuleAlias(mod), zig.Ident(x.Attr), value)
		return
	}
	if cls := g.className(x.Value); cls != "" {
		g.out.line("%s.%s = %s;", zig.Ident(cls), zig.Ident(x.Attr), value)
		return
	}
	g.out.line("%s = %s;", g.attribute(x), value)
}

// ---------------------------------------------------------------------------
// Augmented and annotated assignment
// ---------------------------------------------------------------------------

func (g *Generator) augAssign(x *pyast.AugAssign) {
	g.predeclareWalrus(x.Value)
	tt, vt := g.typeOf(x.Target), g.typeOf(x.Value)
	if tt.Kind == infer.ClassKind {
		if m := infer.MagicMethod(x.Op); m != "" {
			inplace := "__i" + strings.TrimPrefix(m, "__")
			if g.classes.Defines(tt.Name, inplace) {
				g.out.line("_ = try %s.%s(%s);", zig.Paren(g.expr(x.Target)), inplace, g.expr(x.Value))
				return
			}
		}
	}
	if tt.Kind == infer.ListKind && x.Op == pyast.Add {
		g.out.line("try %s.appendSlice(%s);", zig.Paren(g.expr(x.Target)), registry.Items(g, x.Value))
		return
	}
	if name, ok := x.Target.(*pyast.Name); ok && g.isBound(name.ID) {
		id := g.ident(name.ID)
		op := map[pyast.Operator]string{pyast.Add: "+=", pyast.Sub: "-=", pyast.Mult: "*="}[x.Op]
		switch {
		case op != "" && tt.Kind == infer.IntKind && (vt.Kind == infer.IntKind || vt.Kind == infer.BoolKind):
			g.out.line("%s %s %s;", id, op, g.intOperand(x.Value))
			return
		case tt.Kind == infer.FloatKind && vt.IsNumeric() && (op != "" || x.Op == pyast.Div):
			if x.Op == pyast.Div {
				op = "/="
			}
			g.out.line("%s %s %s;", id, op, registry.AsFloat(g, x.Value))
			return
		}
	}
	bin := &pyast.BinOp{PosVal: x.PosVal, Left: x.Target, Op: x.Op, Right: x.Value}
	switch tg := x.Target.(type) {
	case *pyast.Name:
		if !g.isBound(tg.ID) {
			g.out.line("%s;", registry.CompileError(g, x.Pos(), "augmented assignment to unbound name "+tg.ID))
			return
		}
		g.out.line("%s = %s;", g.ident(tg.ID), g.exprAs(bin, g.boundType(tg.ID)))
	case *pyast.Attribute:
		g.storeAttr(tg, g.exprAs(bin, g.attrType(tg)))
	case *pyast.Subscript:
		g.storeSubscript(tg, g.expr(bin))
	default:
		g.bail(x.Pos(), "cannot augment %T", x.Target)
	}
}

func (g *Generator) annAssign(x *pyast.AnnAssign) {
	t := infer.FromAnnotation(x.Annotation, g.classes)
	if t.IsUnknown() && x.Value != nil {
		t = g.typeOf(x.Value)
	}
	name, ok := x.Target.(*pyast.Name)
	if !ok {
		if x.Value != nil {
			g.assignTo(x.Target, x.Value)
		}
		return
	}
	if x.Value != nil {
		g.predeclareWalrus(x.Value)
	}
	switch {
	case g.isBound(name.ID) && x.Value != nil:
		g.out.line("%s = %s;", g.ident(name.ID), g.exprAs(x.Value, t))
	case g.isBound(name.ID):
	case x.Value != nil:
		g.declareLocal(name.ID, t, g.exprAs(x.Value, t))
	default:
		li := g.local(name.ID)
		zn := g.declare(name.ID, t, true)
		g.out.line("var %s: %s = %s;", zn, zigType(t), zigDefault(t))
		if li.reads == 0 || li.stores <= 1 {
			g.out.line("_ = &%s;", zn)
		}
	}
}

// ---------------------------------------------------------------------------
// return / raise / assert / break / continue
// ---------------------------------------------------------------------------

// emitReturnValue lowers return v for the function being lowered.
func (g *Generator) emitReturnValue(v pyast.Expr) {
	fn := g.fn
	switch {
	case fn == nil:
		g.out.line("%s;", registry.CompileError(g, g.at, "return outside a function"))
	case v == nil || isNone(v):
		g.emitReturn("")
	case fn.ret.Kind == infer.NoneKind:
		if s := g.expr(v); s != "" && s != "{}" {
			g.out.line("_ = %s;", s)
		}
		g.emitReturn("")
	default:
		g.emitReturn(g.exprAs(v, fn.ret))
	}
}

// emitReturn returns an already lowered value, "" meaning None, from the
// Python function being lowered, whatever Zig function it is emitted into.
func (g *Generator) emitReturn(value string) {
	fn := g.fn
	if value == "" && fn.ret.Kind != infer.NoneKind {
		value = "@as(" + zigType(fn.ret) + ", null)"
	}
	switch {
	case fn.helper != nil && value == "":
		g.out.line("return {};")
	case fn.helper != nil:
		g.out.line("return %s;", value)
	case fn.frame != nil:
		g.frameReturn(value)
	case value == "":
		g.out.line("return;")
	default:
		g.out.line("return %s;", value)
	}
}

func (g *Generator) raise(x *pyast.Raise) {
	if x.Exc == nil {
		if g.fn != nil && g.fn.caught != "" {
			g.out.line("return %s;", g.fn.caught)
			return
		}
		g.out.line("return error.Exception;")
		return
	}
	var name string
	var msg pyast.Expr
	switch e := x.Exc.(type) {
	case *pyast.Call:
		name = infer.DottedName(e.Func)
		if len(e.Args) > 0 {
			msg = e.Args[0]
		}
	case *pyast.Name:
		if g.isLocal(e.ID) && g.fn.caught != "" {
			g.out.line("return %s;", g.fn.caught)
			return
		}
		name = e.ID
	case *pyast.Attribute:
		name = infer.DottedName(e)
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		g.out.line("%s;", registry.CompileError(g, x.Pos(), "raise needs an exception class"))
		return
	}
	if msg != nil {
		g.out.line("runtime.setErrorMessage(%s);", g.Stringify(msg))
	}
	g.out.line("return error.%s;", zig.Ident(name))
}

func (g *Generator) assert(x *pyast.Assert) {
	g.predeclareWalrus(x.Test)
	cond := g.cond(x.Test)
	if x.Msg == nil {
		g.out.line("if (!(%s)) return error.AssertionError;", cond)
		return
	}
	g.out.open("if (!(%s)) {", cond)
	g.out.line("runtime.setErrorMessage(%s);", g.Stringify(x.Msg))
	g.out.line("return error.AssertionError;")
	g.out.close("}")
}

// loopJump lowers break and continue. Inside a try helper outside any of
// its own loops they become errors the call site turns back into jumps.
func (g *Generator) loopJump(keyword, errName string) {
	if g.fn != nil && g.fn.helper != nil && g.fn.loops == 0 {
		g.out.line("return error.%s;", errName)
		return
	}
	g.out.line("%s;", keyword)
}

// ---------------------------------------------------------------------------
// Nested functions
// ---------------------------------------------------------------------------

// capturedLocals returns the locals of the enclosing function that body
// reads without binding them itself.
func (g *Generator) capturedLocals(params []string, body []pyast.Stmt) []string {
	own := map[string]bool{}
	for _, p := range params {
		own[p] = true
	}
	for _, n := range pyast.AssignedNames(body) {
		own[n] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, s := range body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			if x, ok := n.(*pyast.Name); ok && !own[x.ID] && !seen[x.ID] && g.isLocal(x.ID) {
				seen[x.ID] = true
				out = append(out, x.ID)
			}
			return true
		})
	}
	return out
}

// nestedDef lowers a def inside a function to a function-valued constant.
// Closures over the enclosing function's locals are not supported.
func (g *Generator) nestedDef(def *pyast.FunctionDef) {
	if def.IsAsync {
		g.out.line("%s;", registry.CompileError(g, def.Pos(), "nested async def "+def.Name+" is not supported"))
		return
	}
	if captured := g.capturedLocals(def.Args.Names(), def.Body); len(captured) > 0 {
		g.out.line("%s;", registry.CompileError(g, def.Pos(),
			"nested function "+def.Name+" captures "+strings.Join(captured, ", ")))
		return
	}
	if len(def.Decorators) > 0 {
		g.Warnf(def.Pos(), "decorators on nested function %s are ignored", def.Name)
	}
	zn := g.declare(def.Name, infer.Unknown, false)
	g.out.open("const %s = struct {", zn)
	g.function(def, funcDecl{name: "call"})
	g.out.close("}.call;")
	if g.local(def.Name).reads == 0 {
		g.out.line("_ = &%s;", zn)
	}
}
