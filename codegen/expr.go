package codegen

import (
	"math"
	"strconv"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Expression lowering
// ---------------------------------------------------------------------------

// expr lowers e to a Zig expression.
func (g *Generator) expr(e pyast.Expr) string {
	switch x := e.(type) {
	case nil:
		g.bail(g.pos(), "missing expression")
	case *pyast.Constant:
		return constant(x)
	case *pyast.Name:
		return g.name(x)
	case *pyast.BinOp:
		return g.binOp(x)
	case *pyast.UnaryOp:
		return g.unaryOp(x)
	case *pyast.BoolOp:
		return g.boolOp(x)
	case *pyast.Compare:
		return g.compare(x)
	case *pyast.IfExp:
		return "if (" + g.cond(x.Test) + ") " + g.expr(x.Body) + " else " + g.expr(x.OrElse)
	case *pyast.Call:
		return g.call(x)
	case *pyast.Attribute:
		return g.attribute(x)
	case *pyast.Subscript:
		return g.subscript(x)
	case *pyast.List:
		return g.listDisplay(x, infer.Unknown)
	case *pyast.Tuple:
		return g.tupleDisplay(x)
	case *pyast.Set:
		return g.setDisplay(x, infer.Unknown)
	case *pyast.Dict:
		return g.dictDisplay(x, infer.Unknown)
	case *pyast.ListComp:
		return g.listComp(x.Elt, x.Generators, g.typeOf(x))
	case *pyast.GeneratorExp:
		return g.listComp(x.Elt, x.Generators, g.typeOf(x))
	case *pyast.SetComp:
		return g.setComp(x)
	case *pyast.DictComp:
		return g.dictComp(x)
	case *pyast.JoinedStr:
		return g.fstring(x)
	case *pyast.Lambda:
		return g.lambda(x, nil)
	case *pyast.Await:
		return g.awaitExpr(x)
	case *pyast.NamedExpr:
		return g.walrus(x)
	case *pyast.Starred:
		return registry.CompileError(g, x.Pos(), "starred expression is only supported in calls and displays")
	case *pyast.Slice, *pyast.FormattedValue:
		g.bail(x.Pos(), "%T outside its parent expression", x)
	default:
		g.bail(e.Pos(), "unexpected expression %T", e)
	}
	return ""
}

// exprAs lowers e where a value of type want is expected, converting ints
// to floats and typing empty displays.
func (g *Generator) exprAs(e pyast.Expr, want infer.Type) string {
	got := g.typeOf(e)
	switch x := e.(type) {
	case *pyast.List:
		return g.listDisplay(x, want)
	case *pyast.Set:
		return g.setDisplay(x, want)
	case *pyast.Dict:
		return g.dictDisplay(x, want)
	}
	if want.Kind == infer.FloatKind && (got.Kind == infer.IntKind || got.Kind == infer.BoolKind) {
		return registry.AsFloat(g, e)
	}
	if want.Kind == infer.OptionalKind && want.ElemType().Kind == infer.FloatKind && got.Kind == infer.IntKind {
		return registry.AsFloat(g, e)
	}
	return g.expr(e)
}

// typeOf returns the inferred type of e, Unknown on failure.
func (g *Generator) typeOf(e pyast.Expr) infer.Type {
	t, _ := g.inf.InferExpr(e)
	return t
}

func constant(c *pyast.Constant) string {
	switch c.Kind {
	case pyast.ConstNone:
		return "null"
	case pyast.ConstBool:
		if c.Bool {
			return "true"
		}
		return "false"
	case pyast.ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case pyast.ConstFloat:
		return floatLiteral(c.Float)
	}
	return zig.Quote(c.Str)
}

func floatLiteral(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "std.math.inf(f64)"
	case math.IsInf(f, -1):
		return "-std.math.inf(f64)"
	case math.IsNaN(f):
		return "std.math.nan(f64)"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func (g *Generator) name(x *pyast.Name) string {
	switch x.ID {
	case "__name__":
		if g.opts.Entry {
			return `"__main__"`
		}
		return zig.Quote(g.moduleName())
	case "True":
		return "true"
	case "False":
		return "false"
	case "None":
		return "null"
	}
	return g.ident(x.ID)
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (g *Generator) binOp(x *pyast.BinOp) string {
	lt, rt := g.typeOf(x.Left), g.typeOf(x.Right)
	if lt.Kind == infer.ClassKind {
		if m := infer.MagicMethod(x.Op); g.classes.Defines(lt.Name, m) {
			return "try " + zig.Paren(g.expr(x.Left)) + "." + m + "(" + g.expr(x.Right) + ")"
		}
	}
	float := lt.Kind == infer.FloatKind || rt.Kind == infer.FloatKind
	switch x.Op {
	case pyast.Add:
		switch {
		case lt.Kind == infer.StringKind || rt.Kind == infer.StringKind:
			return "try std.mem.concat(allocator, u8, &.{ " + g.Stringify(x.Left) + ", " + g.Stringify(x.Right) + " })"
		case lt.Kind == infer.ListKind:
			return "try runtime.concatLists(" + lt.ElemType().Zig() + ", allocator, " + g.expr(x.Left) + ", " + g.expr(x.Right) + ")"
		}
	case pyast.Mult:
		switch {
		case lt.Kind == infer.StringKind:
			return "try runtime.repeatStr(allocator, " + g.expr(x.Left) + ", " + g.expr(x.Right) + ")"
		case rt.Kind == infer.StringKind:
			return "try runtime.repeatStr(allocator, " + g.expr(x.Right) + ", " + g.expr(x.Left) + ")"
		case lt.Kind == infer.ListKind:
			return "try runtime.repeatList(" + lt.ElemType().Zig() + ", allocator, " + g.expr(x.Left) + ", " + g.expr(x.Right) + ")"
		case rt.Kind == infer.ListKind:
			return "try runtime.repeatList(" + rt.ElemType().Zig() + ", allocator, " + g.expr(x.Right) + ", " + g.expr(x.Left) + ")"
		}
	case pyast.Div:
		return zig.Paren(registry.AsFloat(g, x.Left)) + " / " + zig.Paren(registry.AsFloat(g, x.Right))
	case pyast.FloorDiv:
		if float {
			return "@floor(" + zig.Paren(registry.AsFloat(g, x.Left)) + " / " + zig.Paren(registry.AsFloat(g, x.Right)) + ")"
		}
		return "@divFloor(" + g.intOperand(x.Left) + ", " + g.intOperand(x.Right) + ")"
	case pyast.Mod:
		if lt.Kind == infer.StringKind {
			return "try runtime.percentFormat(allocator, " + g.expr(x.Left) + ", " + g.expr(x.Right) + ")"
		}
		if float {
			return "@mod(" + registry.AsFloat(g, x.Left) + ", " + registry.AsFloat(g, x.Right) + ")"
		}
		return "@mod(" + g.intOperand(x.Left) + ", " + g.intOperand(x.Right) + ")"
	case pyast.Pow:
		if float || isNegativeLiteral(x.Right) {
			return "std.math.pow(f64, " + registry.AsFloat(g, x.Left) + ", " + registry.AsFloat(g, x.Right) + ")"
		}
		return "std.math.pow(i64, " + g.intOperand(x.Left) + ", " + g.intOperand(x.Right) + ")"
	case pyast.LShift:
		return "std.math.shl(i64, " + g.intOperand(x.Left) + ", " + g.intOperand(x.Right) + ")"
	case pyast.RShift:
		return "std.math.shr(i64, " + g.intOperand(x.Left) + ", " + g.intOperand(x.Right) + ")"
	case pyast.BitOr, pyast.BitAnd, pyast.BitXor:
		if lt.Kind == infer.SetKind {
			fn := map[pyast.Operator]string{pyast.BitOr: "setUnion", pyast.BitAnd: "setIntersection", pyast.BitXor: "setSymmetricDifference"}[x.Op]
			return "try runtime." + fn + "(allocator, " + g.expr(x.Left) + ", " + g.expr(x.Right) + ")"
		}
		op := map[pyast.Operator]string{pyast.BitOr: " | ", pyast.BitAnd: " & ", pyast.BitXor: " ^ "}[x.Op]
		return zig.Paren(g.intOperand(x.Left)) + op + zig.Paren(g.intOperand(x.Right))
	case pyast.MatMult:
		return "try runtime.matmul(allocator, " + g.expr(x.Left) + ", " + g.expr(x.Right) + ")"
	}
	if lt.Kind == infer.SetKind && x.Op == pyast.Sub {
		return "try runtime.setDifference(allocator, " + g.expr(x.Left) + ", " + g.expr(x.Right) + ")"
	}
	op := map[pyast.Operator]string{pyast.Add: " + ", pyast.Sub: " - ", pyast.Mult: " * "}[x.Op]
	if float {
		return zig.Paren(registry.AsFloat(g, x.Left)) + op + zig.Paren(registry.AsFloat(g, x.Right))
	}
	return zig.Paren(g.intOperand(x.Left)) + op + zig.Paren(g.intOperand(x.Right))
}

// intOperand lowers an integer operand, widening bools.
func (g *Generator) intOperand(e pyast.Expr) string {
	if g.typeOf(e).Kind == infer.BoolKind {
		return "@as(i64, @intFromBool(" + g.expr(e) + "))"
	}
	return g.expr(e)
}

func isNegativeLiteral(e pyast.Expr) bool {
	v, ok := infer.IntLiteral(e)
	return ok && v < 0
}

func (g *Generator) unaryOp(x *pyast.UnaryOp) string {
	switch x.Op {
	case pyast.Not:
		return "!" + zig.Paren(g.cond(x.Operand))
	case pyast.UAdd:
		return g.expr(x.Operand)
	case pyast.Invert:
		return "~" + zig.Paren(g.intOperand(x.Operand))
	}
	t := g.typeOf(x.Operand)
	if t.Kind == infer.ClassKind && g.classes.Defines(t.Name, "__neg__") {
		return "try " + zig.Paren(g.expr(x.Operand)) + ".__neg__()"
	}
	if c, ok := x.Operand.(*pyast.Constant); ok && (c.Kind == pyast.ConstInt || c.Kind == pyast.ConstFloat) {
		return "-" + constant(c)
	}
	return "-" + zig.Paren(g.intOperand(x.Operand))
}

// ---------------------------------------------------------------------------
// Truthiness and boolean operators
// ---------------------------------------------------------------------------

// cond lowers e in a condition position to a Zig bool.
func (g *Generator) cond(e pyast.Expr) string {
	switch x := e.(type) {
	case *pyast.BoolOp:
		op := " and "
		if x.Op == pyast.Or {
			op = " or "
		}
		parts := make([]string, len(x.Values))
		for i, v := range x.Values {
			parts[i] = zig.Paren(g.cond(v))
		}
		return strings.Join(parts, op)
	case *pyast.UnaryOp:
		if x.Op == pyast.Not {
			return "!" + zig.Paren(g.cond(x.Operand))
		}
	}
	return g.truthy(e)
}

// truthy converts the value of e to a bool the way Python's bool() does.
// Non-bool values go through runtime.toBool.
func (g *Generator) truthy(e pyast.Expr) string {
	t := g.typeOf(e)
	switch t.Kind {
	case infer.BoolKind:
		return g.expr(e)
	case infer.ClassKind:
		v := zig.Paren(g.expr(e))
		if g.classes.Defines(t.Name, "__bool__") {
			return "try " + v + ".__bool__()"
		}
		if g.classes.Defines(t.Name, "__len__") {
			return "(try " + v + ".__len__()) != 0"
		}
		return "true"
	}
	return "runtime.toBool(" + g.expr(e) + ")"
}

// boolOp lowers and/or in a value position: the result is the deciding
// operand, not a bool.
func (g *Generator) boolOp(x *pyast.BoolOp) string {
	allBool := true
	for _, v := range x.Values {
		if g.typeOf(v).Kind != infer.BoolKind {
			allBool = false
		}
	}
	if allBool {
		return g.cond(x)
	}
	first := g.typeOf(x.Values[0])
	if x.Op == pyast.Or && first.Kind == infer.OptionalKind && len(x.Values) == 2 {
		return zig.Paren(g.expr(x.Values[0])) + " orelse " + zig.Paren(g.expr(x.Values[1]))
	}
	return g.boolChain(x.Op, x.Values)
}

func (g *Generator) boolChain(op pyast.BoolOperator, values []pyast.Expr) string {
	if len(values) == 1 {
		return g.expr(values[0])
	}
	label := g.nextLabel("bool")
	tmp := g.fresh("operand")
	test := "runtime.toBool(" + tmp + ")"
	if op == pyast.And {
		test = "!" + test
	}
	return label + ": { const " + tmp + " = " + g.expr(values[0]) + "; if (" + test + ") break :" + label + " " + tmp +
		"; break :" + label + " " + g.boolChain(op, values[1:]) + "; }"
}

// ---------------------------------------------------------------------------
// Comparisons
// ---------------------------------------------------------------------------

func (g *Generator) compare(x *pyast.Compare) string {
	if len(x.Ops) != len(x.Comparators) || len(x.Ops) == 0 {
		g.bail(x.Pos(), "comparison with %d operators and %d operands", len(x.Ops), len(x.Comparators))
	}
	parts := make([]string, len(x.Ops))
	left := x.Left
	for i, op := range x.Ops {
		parts[i] = g.compareOne(op, left, x.Comparators[i])
		left = x.Comparators[i]
	}
	if len(parts) == 1 {
		return parts[0]
	}
	for i := range parts {
		parts[i] = zig.Paren(parts[i])
	}
	return strings.Join(parts, " and ")
}

func isNone(e pyast.Expr) bool {
	c, ok := e.(*pyast.Constant)
	return ok && c.Kind == pyast.ConstNone
}

func (g *Generator) compareOne(op pyast.CmpOp, l, r pyast.Expr) string {
	lt, rt := g.typeOf(l), g.typeOf(r)
	switch op {
	case pyast.Is, pyast.IsNot:
		eq := " == "
		if op == pyast.IsNot {
			eq = " != "
		}
		switch {
		case isNone(r):
			return zig.Paren(g.expr(l)) + eq + "null"
		case isNone(l):
			return zig.Paren(g.expr(r)) + eq + "null"
		}
		return zig.Paren(g.expr(l)) + eq + zig.Paren(g.expr(r))
	case pyast.In, pyast.NotIn:
		in := g.contains(r, l)
		if op == pyast.NotIn {
			return "!" + zig.Paren(in)
		}
		return in
	case pyast.Eq, pyast.NotEq:
		eq := g.equal(l, r, lt, rt)
		if op == pyast.NotEq {
			if lt.Kind == infer.ClassKind && g.classes.Defines(lt.Name, "__ne__") {
				return "try " + zig.Paren(g.expr(l)) + ".__ne__(" + g.expr(r) + ")"
			}
			return "!" + zig.Paren(eq)
		}
		return eq
	}
	return g.order(op, l, r, lt, rt)
}

func (g *Generator) equal(l, r pyast.Expr, lt, rt infer.Type) string {
	switch {
	case lt.Kind == infer.ClassKind && g.classes.Defines(lt.Name, "__eq__"):
		return "try " + zig.Paren(g.expr(l)) + ".__eq__(" + g.expr(r) + ")"
	case isNone(r):
		return zig.Paren(g.expr(l)) + " == null"
	case isNone(l):
		return zig.Paren(g.expr(r)) + " == null"
	case lt.Kind == infer.StringKind || rt.Kind == infer.StringKind:
		return "std.mem.eql(u8, " + g.expr(l) + ", " + g.expr(r) + ")"
	case lt.Kind == infer.ListKind || lt.Kind == infer.DictKind || lt.Kind == infer.SetKind:
		return "runtime.eql(" + g.expr(l) + ", " + g.expr(r) + ")"
	case lt.Kind == infer.TupleKind:
		return "std.meta.eql(" + g.expr(l) + ", " + g.expr(r) + ")"
	case lt.Kind == infer.FloatKind || rt.Kind == infer.FloatKind:
		return zig.Paren(registry.AsFloat(g, l)) + " == " + zig.Paren(registry.AsFloat(g, r))
	case lt.IsUnknown() || rt.IsUnknown():
		return "runtime.eql(" + g.expr(l) + ", " + g.expr(r) + ")"
	}
	return zig.Paren(g.expr(l)) + " == " + zig.Paren(g.expr(r))
}

var orderOps = map[pyast.CmpOp]struct{ zig, magic, mirror, order string }{
	pyast.Lt:  {" < ", "__lt__", "__gt__", "== .lt"},
	pyast.LtE: {" <= ", "__le__", "__ge__", "!= .gt"},
	pyast.Gt:  {" > ", "__gt__", "__lt__", "== .gt"},
	pyast.GtE: {" >= ", "__ge__", "__le__", "!= .lt"},
}

func (g *Generator) order(op pyast.CmpOp, l, r pyast.Expr, lt, rt infer.Type) string {
	o, ok := orderOps[op]
	if !ok {
		g.bail(l.Pos(), "unknown comparison operator %q", op)
	}
	switch {
	case lt.Kind == infer.ClassKind && g.classes.Defines(lt.Name, o.magic):
		return "try " + zig.Paren(g.expr(l)) + "." + o.magic + "(" + g.expr(r) + ")"
	case rt.Kind == infer.ClassKind && g.classes.Defines(rt.Name, o.mirror):
		return "try " + zig.Paren(g.expr(r)) + "." + o.mirror + "(" + g.expr(l) + ")"
	case lt.Kind == infer.StringKind || rt.Kind == infer.StringKind:
		return "std.mem.order(u8, " + g.expr(l) + ", " + g.expr(r) + ") " + o.order
	case lt.Kind == infer.FloatKind || rt.Kind == infer.FloatKind:
		return zig.Paren(registry.AsFloat(g, l)) + o.zig + zig.Paren(registry.AsFloat(g, r))
	}
	return zig.Paren(g.intOperand(l)) + o.zig + zig.Paren(g.intOperand(r))
}

// contains lowers "item in container".
func (g *Generator) contains(container, item pyast.Expr) string {
	var elts []pyast.Expr
	switch c := container.(type) {
	case *pyast.Tuple:
		elts = c.Elts
	case *pyast.List:
		elts = c.Elts
	case *pyast.Set:
		elts = c.Elts
	}
	if elts != nil {
		if len(elts) == 0 {
			return "false"
		}
		it := g.typeOf(item)
		parts := make([]string, len(elts))
		for i, e := range elts {
			parts[i] = zig.Paren(g.equal(item, e, it, g.typeOf(e)))
		}
		return strings.Join(parts, " or ")
	}
	ct := g.typeOf(container)
	switch ct.Kind {
	case infer.StringKind:
		return "std.mem.indexOf(u8, " + g.expr(container) + ", " + g.expr(item) + ") != null"
	case infer.DictKind, infer.SetKind, infer.CounterKind:
		return zig.Paren(g.expr(container)) + ".contains(" + g.expr(item) + ")"
	case infer.ClassKind:
		if g.classes.Defines(ct.Name, "__contains__") {
			return "try " + zig.Paren(g.expr(container)) + ".__contains__(" + g.expr(item) + ")"
		}
	}
	return "runtime.contains(" + registry.Items(g, container) + ", " + g.expr(item) + ")"
}

// ---------------------------------------------------------------------------
// Displays
// ---------------------------------------------------------------------------

// elemOr returns t's element type, falling back to the hint's and then to
// the numeric default.
func elemOr(t, hint infer.Type) infer.Type {
	if e := t.ElemType(); !e.IsUnknown() {
		return e
	}
	if e := hint.ElemType(); !e.IsUnknown() {
		return e
	}
	return infer.Int
}

func (g *Generator) listDisplay(x *pyast.List, hint infer.Type) string {
	elem := elemOr(g.typeOf(x), hint)
	typ := infer.ListOf(elem).Zig()
	if len(x.Elts) == 0 {
		return typ + ".init(allocator)"
	}
	label := g.nextLabel("list")
	tmp := g.fresh("items")
	var b strings.Builder
	b.WriteString(label + ": { var " + tmp + " = " + typ + ".init(allocator); ")
	var run []string
	flush := func() {
		if len(run) > 0 {
			b.WriteString("try " + tmp + ".appendSlice(&[_]" + elem.Zig() + "{ " + strings.Join(run, ", ") + " }); ")
			run = nil
		}
	}
	for _, e := range x.Elts {
		if s, ok := e.(*pyast.Starred); ok {
			flush()
			b.WriteString("try " + tmp + ".appendSlice(" + registry.Items(g, s.Value) + "); ")
			continue
		}
		run = append(run, g.exprAs(e, elem))
	}
	flush()
	b.WriteString("break :" + label + " " + tmp + "; }")
	return b.String()
}

func (g *Generator) tupleDisplay(x *pyast.Tuple) string {
	if len(x.Elts) == 0 {
		return ".{}"
	}
	parts := make([]string, len(x.Elts))
	for i, e := range x.Elts {
		parts[i] = g.expr(e)
	}
	return ".{ " + strings.Join(parts, ", ") + " }"
}

func (g *Generator) setDisplay(x *pyast.Set, hint infer.Type) string {
	elem := elemOr(g.typeOf(x), hint)
	typ := infer.SetOf(elem).Zig()
	if len(x.Elts) == 0 {
		return typ + ".init(allocator)"
	}
	label := g.nextLabel("set")
	tmp := g.fresh("members")
	var b strings.Builder
	b.WriteString(label + ": { var " + tmp + " = " + typ + ".init(allocator); ")
	for _, e := range x.Elts {
		b.WriteString("try " + tmp + ".put(" + g.exprAs(e, elem) + ", {}); ")
	}
	b.WriteString("break :" + label + " " + tmp + "; }")
	return b.String()
}

func (g *Generator) dictDisplay(x *pyast.Dict, hint infer.Type) string {
	if len(x.Keys) != len(x.Values) {
		g.bail(x.Pos(), "dict display with %d keys and %d values", len(x.Keys), len(x.Values))
	}
	t := g.typeOf(x)
	key, val := t.KeyType(), t.ElemType()
	if key.IsUnknown() {
		key = hint.KeyType()
	}
	if val.IsUnknown() {
		val = hint.ElemType()
	}
	if key.IsUnknown() {
		key = infer.String
	}
	if val.IsUnknown() {
		val = infer.Int
	}
	typ := infer.DictOf(key, val).Zig()
	if len(x.Keys) == 0 {
		return typ + ".init(allocator)"
	}
	label := g.nextLabel("dict")
	tmp := g.fresh("entries")
	var b strings.Builder
	b.WriteString(label + ": { var " + tmp + " = " + typ + ".init(allocator); ")
	for i, k := range x.Keys {
		if k == nil {
			it, e := g.fresh("it"), g.fresh("entry")
			b.WriteString("var " + it + " = " + zig.Paren(g.expr(x.Values[i])) + ".iterator(); while (" + it +
				".next()) |" + e + "| try " + tmp + ".put(" + e + ".key_ptr.*, " + e + ".value_ptr.*); ")
			continue
		}
		b.WriteString("try " + tmp + ".put(" + g.exprAs(k, key) + ", " + g.exprAs(x.Values[i], val) + "); ")
	}
	b.WriteString("break :" + label + " " + tmp + "; }")
	return b.String()
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// moduleOf returns the module e denotes ("os.path" for os.path), or "".
func (g *Generator) moduleOf(e pyast.Expr) string {
	switch x := e.(type) {
	case *pyast.Name:
		if g.isLocal(x.ID) {
			return ""
		}
		return g.imports[x.ID]
	case *pyast.Attribute:
		base := g.moduleOf(x.Value)
		if base == "" {
			return ""
		}
		sub := base + "." + x.Attr
		if _, ok := g.reg.Lookup(sub); ok || g.user[sub] {
			return sub
		}
	}
	return ""
}

// className returns the class e names directly (not an instance), or "".
func (g *Generator) className(e pyast.Expr) string {
	n, ok := e.(*pyast.Name)
	if !ok {
		return ""
	}
	if g.fn != nil && g.fn.cls != "" && n.ID == g.fn.cls {
		return g.fn.owner
	}
	if g.isLocal(n.ID) {
		return ""
	}
	if _, ok := g.classes.Lookup(n.ID); ok {
		return n.ID
	}
	return ""
}

func (g *Generator) attribute(x *pyast.Attribute) string {
	if mod := g.moduleOf(x.Value); mod != "" {
		if expr, ok := g.dispatch.Attr(mod, x.Attr); ok {
			return expr
		}
		return g.ModuleAlias(mod) + "." + zig.Ident(x.Attr)
	}
	if cls := g.className(x.Value); cls != "" {
		return zig.Ident(cls) + "." + zig.Ident(x.Attr)
	}
	vt := g.typeOf(x.Value)
	if vt.Kind == infer.ClassKind {
		if _, isField := g.classes.FieldType(vt.Name, x.Attr); !isField {
			if owner := g.classAttrOwner(vt.Name, x.Attr); owner != "" {
				return zig.Ident(owner) + "." + zig.Ident(x.Attr)
			}
		}
	}
	return zig.Paren(g.expr(x.Value)) + "." + zig.Ident(x.Attr)
}

// ---------------------------------------------------------------------------
// Walrus
// ---------------------------------------------------------------------------

// walrus lowers (n := v) to a block that stores into the pre-declared n.
func (g *Generator) walrus(x *pyast.NamedExpr) string {
	if !g.isBound(x.Target.ID) {
		return registry.CompileError(g, x.Pos(), "assignment expression target "+x.Target.ID+" was not pre-declared")
	}
	label := g.nextLabel("walrus")
	target := g.ident(x.Target.ID)
	return label + ": { " + target + " = " + g.exprAs(x.Value, g.typeOf(x.Target)) + "; break :" + label + " " + target + "; }"
}

// predeclareWalrus declares, above the statement being lowered, every
// unbound walrus target in exprs.
func (g *Generator) predeclareWalrus(exprs ...pyast.Expr) {
	for _, e := range exprs {
		if e == nil {
			continue
		}
		pyast.Inspect(e, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.Lambda:
				return false
			case *pyast.NamedExpr:
				if !g.isBound(x.Target.ID) {
					t := g.typeOf(x.Value)
					zn := g.declare(x.Target.ID, t, true)
					g.out.line("var %s: %s = %s;", zn, zigType(t), zigDefault(t))
				}
			}
			return true
		})
	}
}

// zigDefault renders the initial value of a hoisted declaration of type t.
func zigDefault(t infer.Type) string {
	if t.Kind == infer.NoneKind {
		return "null"
	}
	return t.ZigDefault("allocator")
}

// zigType renders t for a declaration. Coroutine-typed values are frame
// pointers.
func zigType(t infer.Type) string {
	if t.Kind == infer.NoneKind {
		return "?i64"
	}
	return t.Zig()
}
