package codegen

import (
	"fmt"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

// getItemCall returns the __getitem__ call for x when the receiver's class
// defines it. A bare name of unknown type is treated as an instance of some
// class defining __getitem__ when any registered class does.
func (g *Generator) getItemCall(x *pyast.Subscript, vt infer.Type) (string, bool) {
	switch {
	case vt.Kind == infer.ClassKind && g.classes.Defines(vt.Name, "__getitem__"):
	case vt.IsUnknown() && isName(x.Value) && g.classes.AnyDefines("__getitem__"):
		g.Warnf(x.Pos(), "%s has unknown type; assuming a class with __getitem__", x.Value.(*pyast.Name).ID)
	default:
		return "", false
	}
	return "try " + zig.Paren(g.expr(x.Value)) + ".__getitem__(" + g.expr(x.Slice) + ")", true
}

func isName(e pyast.Expr) bool {
	_, ok := e.(*pyast.Name)
	return ok
}

func (g *Generator) subscript(x *pyast.Subscript) string {
	if sl, ok := x.Slice.(*pyast.Slice); ok {
		return g.slice(x.Value, sl)
	}
	vt := g.typeOf(x.Value)
	if call, ok := g.getItemCall(x, vt); ok {
		return call
	}
	switch vt.Kind {
	case infer.DictKind:
		return "(" + zig.Paren(g.expr(x.Value)) + ".get(" + g.exprAs(x.Slice, vt.KeyType()) + ") orelse return error.KeyError)"
	case infer.CounterKind:
		return zig.Paren(g.expr(x.Value)) + ".get(" + g.expr(x.Slice) + ")"
	case infer.TupleKind:
		return g.tupleIndex(x, vt)
	case infer.StringKind:
		return g.stringIndex(x)
	case infer.ListKind:
		return g.listIndex(x)
	case infer.ClassKind:
		return registry.CompileError(g, x.Pos(), "class "+vt.Name+" does not define __getitem__")
	}
	return g.unknownIndex(x)
}

func (g *Generator) tupleIndex(x *pyast.Subscript, vt infer.Type) string {
	i, ok := infer.IntLiteral(x.Slice)
	if !ok {
		return registry.CompileError(g, x.Pos(), "tuple index must be an integer literal")
	}
	n := int64(len(vt.Elems))
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return registry.CompileError(g, x.Pos(), "tuple index out of range")
	}
	return zig.Paren(g.expr(x.Value)) + fmt.Sprintf("[%d]", i)
}

// listIndex lowers xs[i] for a growable list. Non-negative literals index
// directly, negative literals count back from the length with saturating
// subtraction, and dynamic indices wrap once and are bounds checked.
func (g *Generator) listIndex(x *pyast.Subscript) string {
	v := g.expr(x.Value)
	if i, ok := infer.IntLiteral(x.Slice); ok {
		if i >= 0 {
			return zig.Paren(v) + fmt.Sprintf(".items[%d]", i)
		}
		if zig.Paren(v) == v {
			return fmt.Sprintf("%s.items[%s.items.len -| %d]", v, v, -i)
		}
		label := g.nextLabel("index")
		t := g.fresh("seq")
		return fmt.Sprintf("%s: { const %s = %s; break :%s %s.items[%s.items.len -| %d]; }", label, t, v, label, t, t, -i)
	}
	label := g.nextLabel("index")
	t := g.fresh("seq")
	j := g.fresh("at")
	return fmt.Sprintf("%s: { const %s = %s; const %s = try runtime.wrapIndex(%s, %s.items.len); break :%s %s.items[%s]; }",
		label, t, v, j, g.expr(x.Slice), t, label, t, j)
}

// stringIndex lowers s[i] to a one-character string.
func (g *Generator) stringIndex(x *pyast.Subscript) string {
	v := g.expr(x.Value)
	if i, ok := infer.IntLiteral(x.Slice); ok && i >= 0 {
		return fmt.Sprintf("%s[%d..%d]", zig.Paren(v), i, i+1)
	}
	label := g.nextLabel("char")
	t := g.fresh("str")
	j := g.fresh("at")
	var at string
	if i, ok := infer.IntLiteral(x.Slice); ok {
		at = fmt.Sprintf("%s.len -| %d", t, -i)
	} else {
		at = fmt.Sprintf("try runtime.wrapIndex(%s, %s.len)", g.expr(x.Slice), t)
	}
	return fmt.Sprintf("%s: { const %s = %s; const %s = %s; break :%s %s[%s .. %s + 1]; }",
		label, t, v, j, at, label, t, j, j)
}

// unknownIndex decides between list and slice indexing when the Zig type
// is instantiated, through runtime.hasItems.
func (g *Generator) unknownIndex(x *pyast.Subscript) string {
	label := g.nextLabel("index")
	t := g.fresh("seq")
	j := g.fresh("at")
	return fmt.Sprintf("%s: { const %s = %s; const %s = try runtime.wrapIndex(%s, runtime.lenOf(%s)); "+
		"break :%s if (comptime runtime.hasItems(@TypeOf(%s))) %s.items[%s] else %s[%s]; }",
		label, t, g.expr(x.Value), j, g.expr(x.Slice), t, label, t, t, j, t, j)
}

// ---------------------------------------------------------------------------
// Slicing
// ---------------------------------------------------------------------------

// bound lowers one slice bound against length n (a usize). Bounds never
// fault: they clamp to [0, n].
func (g *Generator) bound(e pyast.Expr, n, absent string) string {
	if e == nil || isNone(e) {
		return absent
	}
	if k, ok := infer.IntLiteral(e); ok {
		if k >= 0 {
			return fmt.Sprintf("@min(%d, %s)", k, n)
		}
		return fmt.Sprintf("%s -| %d", n, -k)
	}
	return "runtime.clampIndex(" + g.expr(e) + ", " + n + ")"
}

// stepBound lowers a bound of a negative-step slice as an i64 in [-1, n-1].
func (g *Generator) stepBound(e pyast.Expr, n, absent string) string {
	if e == nil || isNone(e) {
		return absent
	}
	if k, ok := infer.IntLiteral(e); ok {
		if k >= 0 {
			return fmt.Sprintf("@min(%d, %s - 1)", k, n)
		}
		return fmt.Sprintf("@max(%s - %d, -1)", n, -k)
	}
	return "runtime.clampStepIndex(" + g.expr(e) + ", " + n + ")"
}

// slice lowers v[lower:upper:step]. Strings produce a view, lists an owned
// copy. A step other than 1 always copies.
func (g *Generator) slice(value pyast.Expr, sl *pyast.Slice) string {
	vt := g.typeOf(value)
	if vt.Kind == infer.TupleKind || vt.Kind == infer.DictKind || vt.Kind == infer.SetKind {
		return registry.CompileError(g, sl.Pos(), "cannot slice a "+vt.Kind.String())
	}
	label := g.nextLabel("slice")
	t := g.fresh("seq")
	src := g.fresh("src")
	head := fmt.Sprintf("%s: { const %s = %s; ", label, t, g.expr(value))
	switch vt.Kind {
	case infer.ListKind:
		head += fmt.Sprintf("const %s = %s.items; ", src, t)
	case infer.StringKind:
		head += fmt.Sprintf("const %s = %s; ", src, t)
	default:
		head += fmt.Sprintf("const %s = if (comptime runtime.hasItems(@TypeOf(%s))) %s.items else %s; ", src, t, t, t)
	}
	elem := "u8"
	if vt.Kind == infer.ListKind {
		elem = vt.ElemType().Zig()
	}

	step, literalStep := int64(1), true
	if sl.Step != nil && !isNone(sl.Step) {
		step, literalStep = infer.IntLiteral(sl.Step)
	}
	switch {
	case !literalStep:
		bounds := []string{"null", "null"}
		for i, b := range []pyast.Expr{sl.Lower, sl.Upper} {
			if b != nil && !isNone(b) {
				bounds[i] = g.expr(b)
			}
		}
		return head + fmt.Sprintf("break :%s try runtime.sliceStep(%s, allocator, %s, %s, %s, %s); }",
			label, elem, src, bounds[0], bounds[1], g.expr(sl.Step))
	case step == 0:
		return registry.CompileError(g, sl.Pos(), "slice step cannot be zero")
	case step == 1:
		n, lo, hi := g.fresh("len"), g.fresh("lo"), g.fresh("hi")
		head += fmt.Sprintf("const %s = %s.len; const %s = %s; const %s = %s; ",
			n, src, lo, g.bound(sl.Lower, n, "0"), hi, g.bound(sl.Upper, n, n))
		view := fmt.Sprintf("%s[%s..@max(%s, %s)]", src, lo, lo, hi)
		if vt.Kind != infer.ListKind {
			return head + fmt.Sprintf("break :%s %s; }", label, view)
		}
		out := g.fresh("out")
		return head + fmt.Sprintf("var %s = std.ArrayList(%s).init(allocator); try %s.appendSlice(%s); break :%s %s; }",
			out, elem, out, view, label, out)
	}

	out, i := g.fresh("out"), g.fresh("i")
	head += fmt.Sprintf("var %s = std.ArrayList(%s).init(allocator); ", out, elem)
	if step > 0 {
		n, lo, hi := g.fresh("len"), g.fresh("lo"), g.fresh("hi")
		head += fmt.Sprintf("const %s = %s.len; const %s = %s; const %s = %s; var %s = %s; while (%s < %s) : (%s += %d) try %s.append(%s[%s]); ",
			n, src, lo, g.bound(sl.Lower, n, "0"), hi, g.bound(sl.Upper, n, n),
			i, lo, i, hi, i, step, out, src, i)
	} else {
		n, stop := g.fresh("len"), g.fresh("stop")
		head += fmt.Sprintf("const %s: i64 = @intCast(%s.len); var %s: i64 = %s; const %s: i64 = %s; while (%s > %s) : (%s -= %d) try %s.append(%s[@intCast(%s)]); ",
			n, src, i, g.stepBound(sl.Lower, n, n+" - 1"), stop, g.stepBound(sl.Upper, n, "-1"),
			i, stop, i, -step, out, src, i)
	}
	if vt.Kind == infer.ListKind {
		return head + fmt.Sprintf("break :%s %s; }", label, out)
	}
	return head + fmt.Sprintf("break :%s try %s.toOwnedSlice(); }", label, out)
}

// ---------------------------------------------------------------------------
// Subscript stores
// ---------------------------------------------------------------------------

// storeSubscript emits target[index] = value.
func (g *Generator) storeSubscript(x *pyast.Subscript, value string) {
	if _, ok := x.Slice.(*pyast.Slice); ok {
		g.out.line("%s;", registry.CompileError(g, x.Pos(), "slice assignment is not supported"))
		return
	}
	vt := g.typeOf(x.Value)
	recv := zig.Paren(g.expr(x.Value))
	switch {
	case vt.Kind == infer.ClassKind && g.classes.Defines(vt.Name, "__setitem__"):
		g.out.line("try %s.__setitem__(%s, %s);", recv, g.expr(x.Slice), value)
	case vt.Kind == infer.DictKind || vt.Kind == infer.CounterKind:
		g.out.line("try %s.put(%s, %s);", recv, g.exprAs(x.Slice, vt.KeyType()), value)
	case vt.Kind == infer.ListKind:
		if i, ok := infer.IntLiteral(x.Slice); ok {
			if i >= 0 {
				g.out.line("%s.items[%d] = %s;", recv, i, value)
			} else {
				g.out.line("%s.items[%s.items.len -| %d] = %s;", recv, recv, -i, value)
			}
			return
		}
		g.out.line("%s.items[try runtime.wrapIndex(%s, %s.items.len)] = %s;", recv, g.expr(x.Slice), recv, value)
	default:
		g.out.line("try runtime.setItem(&%s, %s, %s);", g.expr(x.Value), g.expr(x.Slice), value)
	}
}
