package codegen

import (
	"strconv"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/registry"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (g *Generator) call(x *pyast.Call) string {
	switch f := x.Func.(type) {
	case *pyast.Name:
		return g.nameCall(f.ID, x)
	case *pyast.Attribute:
		return g.attrCall(f, x)
	}
	return "try " + zig.Paren(g.expr(x.Func)) + "(" + g.plainArgs(x) + ")"
}

// builtinExceptions are the exception names raise and except understand
// without a class definition.
var builtinExceptions = map[string]bool{
	"Exception": true, "BaseException": true, "ValueError": true, "TypeError": true,
	"KeyError": true, "IndexError": true, "ZeroDivisionError": true, "RuntimeError": true,
	"AttributeError": true, "NotImplementedError": true, "StopIteration": true,
	"AssertionError": true, "OSError": true, "IOError": true, "FileNotFoundError": true,
	"OverflowError": true, "ArithmeticError": true, "LookupError": true, "NameError": true,
	"TimeoutError": true, "PermissionError": true, "KeyboardInterrupt": true,
}

func isExceptionName(name string) bool {
	return builtinExceptions[name] || strings.HasSuffix(name, "Error") || strings.HasSuffix(name, "Exception")
}

func (g *Generator) nameCall(name string, x *pyast.Call) string {
	if g.fn != nil && g.fn.cls != "" && name == g.fn.cls {
		return g.construct(g.fn.owner, x)
	}
	if g.isLocal(name) {
		return "try " + g.ident(name) + "(" + g.plainArgs(x) + ")"
	}
	switch name {
	case "isinstance":
		return g.isinstance(x)
	case "super":
		return registry.CompileError(g, x.Pos(), "super() is only supported as super().method(...)")
	}
	if fn, ok := g.funcs[name]; ok {
		args := g.callArgs(fn, 0, x)
		if fn.IsAsync {
			return "try " + zig.Ident(name) + "_spawn(" + args + ")"
		}
		return "try " + g.ident(name) + "(" + args + ")"
	}
	if _, ok := g.classes.Lookup(name); ok {
		return g.construct(name, x)
	}
	if fa, ok := g.fromNames[name]; ok {
		return g.moduleCall(fa.module, fa.name, x, g.ident(name))
	}
	if out, ok := g.dispatch.Dispatch(g, registry.Builtins, name, x); ok {
		return out
	}
	if isExceptionName(name) {
		return "error." + zig.Ident(name)
	}
	if _, global := g.globals[name]; !global && !g.container[name] {
		g.Warnf(x.Pos(), "call to unknown function %s", name)
	}
	return "try " + g.ident(name) + "(" + g.plainArgs(x) + ")"
}

// moduleCall lowers module.fn(...). qualified is the Zig expression naming
// the function when no handler takes the call.
func (g *Generator) moduleCall(module, fn string, x *pyast.Call, qualified string) string {
	if out, ok := g.dispatch.Dispatch(g, module, fn, x); ok {
		return out
	}
	if g.user[module] {
		return "try " + qualified + "(" + g.plainArgs(x) + ")"
	}
	if _, ok := g.reg.Lookup(module); ok {
		g.Warnf(x.Pos(), "%s.%s has no registered lowering", module, fn)
		return qualified + "(" + g.plainArgs(x) + ")"
	}
	return "try " + qualified + "(" + g.plainArgs(x) + ")"
}

func isSuper(e pyast.Expr) bool {
	c, ok := e.(*pyast.Call)
	if !ok {
		return false
	}
	n, ok := c.Func.(*pyast.Name)
	return ok && n.ID == "super"
}

func (g *Generator) attrCall(f *pyast.Attribute, x *pyast.Call) string {
	if isSuper(f.Value) {
		return g.superCall(f.Attr, x)
	}
	if mod := g.moduleOf(f.Value); mod != "" {
		return g.moduleCall(mod, f.Attr, x, g.ModuleAlias(mod)+"."+zig.Ident(f.Attr))
	}
	if cls := g.className(f.Value); cls != "" {
		m, _, ok := g.classes.FindMethod(cls, f.Attr)
		if !ok {
			return registry.CompileError(g, x.Pos(), "class "+cls+" has no method "+f.Attr)
		}
		if !isStatic(m) && !isClassMethod(m) {
			// Class.method(instance, ...)
			return "try " + zig.Ident(cls) + "." + zig.Ident(f.Attr) + "(" + g.callArgs(m, 0, x) + ")"
		}
		return "try " + zig.Ident(cls) + "." + zig.Ident(f.Attr) + "(" + g.callArgs(m, methodSkip(m), x) + ")"
	}
	vt := g.typeOf(f.Value)
	switch {
	case vt.Kind == infer.ClassKind:
		return g.methodCall(f, x, vt)
	case registry.MethodModule(vt) != "":
		mm := registry.MethodModule(vt)
		if out, ok := g.dispatch.Dispatch(g, mm, f.Attr, x); ok {
			return out
		}
		return registry.CompileError(g, x.Pos(), mm+"."+f.Attr+" is not supported")
	case vt.IsUnknown() && g.classes.AnyDefines(f.Attr):
		return "try " + zig.Paren(g.expr(f.Value)) + "." + zig.Ident(f.Attr) + "(" + g.plainArgs(x) + ")"
	case vt.IsUnknown():
		// Untyped receivers are most often strings.
		if out, ok := g.dispatch.Dispatch(g, registry.StrMethods, f.Attr, x); ok {
			g.Warnf(x.Pos(), "receiver of .%s has unknown type; assuming str", f.Attr)
			return out
		}
	}
	g.Warnf(x.Pos(), "method %s on a value of type %s is not known", f.Attr, vt)
	return zig.Paren(g.expr(f.Value)) + "." + zig.Ident(f.Attr) + "(" + g.plainArgs(x) + ")"
}

func (g *Generator) methodCall(f *pyast.Attribute, x *pyast.Call, vt infer.Type) string {
	recv := zig.Paren(g.expr(f.Value))
	m, owner, ok := g.classes.FindMethod(vt.Name, f.Attr)
	if !ok {
		if _, isField := g.classes.FieldType(vt.Name, f.Attr); isField {
			return "try " + recv + "." + zig.Ident(f.Attr) + "(" + g.plainArgs(x) + ")"
		}
		return registry.CompileError(g, x.Pos(), "class "+vt.Name+" has no method "+f.Attr)
	}
	args := g.callArgs(m, methodSkip(m), x)
	switch {
	case isStatic(m) || isClassMethod(m):
		return "try " + zig.Ident(vt.Name) + "." + zig.Ident(f.Attr) + "(" + args + ")"
	case m.IsAsync:
		return "try " + owner + "_" + m.Name + "_spawn(" + joinArgs(recv, args) + ")"
	}
	return "try " + recv + "." + zig.Ident(f.Attr) + "(" + args + ")"
}

// superCall lowers super().method(...) to the copy of the parent's method
// flattened into the current class under a reserved name.
func (g *Generator) superCall(method string, x *pyast.Call) string {
	if g.fn == nil || g.fn.class == "" || g.fn.def == nil {
		return registry.CompileError(g, x.Pos(), "super() outside a method")
	}
	owner, m, ok := g.superTarget(g.fn.class, method)
	if !ok {
		if method == "__init__" {
			return "{}"
		}
		return registry.CompileError(g, x.Pos(), "no parent of "+g.fn.class+" defines "+method)
	}
	self := g.ident(g.fn.def.Args.Args[0].Name)
	return "try " + self + "." + superName(owner, method) + "(" + g.callArgs(m, 1, x) + ")"
}

// superTarget resolves super().method inside a method defined by definer.
func (g *Generator) superTarget(definer, method string) (string, *pyast.FunctionDef, bool) {
	info, ok := g.classes.Lookup(definer)
	if !ok || info.Parent == "" {
		return "", nil, false
	}
	m, owner, ok := g.classes.FindMethod(info.Parent, method)
	return owner, m, ok
}

func superName(owner, method string) string {
	return "__super_" + owner + "_" + method
}

// construct lowers Class(...) to the generated init.
func (g *Generator) construct(class string, x *pyast.Call) string {
	if init, _, ok := g.classes.FindMethod(class, "__init__"); ok {
		return "try " + zig.Ident(class) + ".init(" + g.callArgs(init, 1, x) + ")"
	}
	fields := g.dataclassFields(class)
	if fields == nil {
		return "try " + zig.Ident(class) + ".init()"
	}
	vals := make([]string, len(fields))
	set := make([]bool, len(fields))
	for i, a := range x.Args {
		if i >= len(fields) {
			return registry.CompileError(g, x.Pos(), "too many arguments to "+class)
		}
		vals[i], set[i] = g.exprAs(a, fields[i].typ), true
	}
	for _, kw := range x.Keywords {
		i := fieldIndex(fields, kw.Arg)
		if i < 0 {
			return registry.CompileError(g, x.Pos(), class+" has no field "+kw.Arg)
		}
		vals[i], set[i] = g.exprAs(kw.Value, fields[i].typ), true
	}
	for i, fd := range fields {
		if set[i] {
			continue
		}
		if fd.def == nil {
			vals[i] = registry.CompileError(g, x.Pos(), "missing field "+fd.name+" in call to "+class)
			continue
		}
		vals[i] = g.exprAs(fd.def, fd.typ)
	}
	return "try " + zig.Ident(class) + ".init(" + strings.Join(vals, ", ") + ")"
}

// ---------------------------------------------------------------------------
// Arguments
// ---------------------------------------------------------------------------

func joinArgs(first, rest string) string {
	if rest == "" {
		return first
	}
	return first + ", " + rest
}

// plainArgs lowers arguments positionally, for callees whose signature is
// not known.
func (g *Generator) plainArgs(x *pyast.Call) string {
	var out []string
	for _, a := range x.Args {
		if st, ok := a.(*pyast.Starred); ok {
			out = append(out, registry.Items(g, st.Value))
			continue
		}
		out = append(out, g.expr(a))
	}
	for _, kw := range x.Keywords {
		out = append(out, g.expr(kw.Value))
	}
	return strings.Join(out, ", ")
}

func isDecorated(fn *pyast.FunctionDef, name string) bool {
	for _, d := range fn.Decorators {
		if infer.DottedName(d) == name {
			return true
		}
	}
	return false
}

func isStatic(fn *pyast.FunctionDef) bool      { return isDecorated(fn, "staticmethod") }
func isClassMethod(fn *pyast.FunctionDef) bool { return isDecorated(fn, "classmethod") }

// methodSkip is the number of leading parameters a call site does not
// supply: self or cls.
func methodSkip(m *pyast.FunctionDef) int {
	if isStatic(m) {
		return 0
	}
	return 1
}

// varargElem is the element type of fn's *args parameter.
func (g *Generator) varargElem(fn *pyast.FunctionDef) infer.Type {
	if t := infer.FromAnnotation(fn.Args.Vararg.Annotation, g.classes); !t.IsUnknown() {
		return t
	}
	return infer.Int
}

// callArgs matches a call's positional and keyword arguments against fn's
// parameters after the first skip, filling defaults. The result is the
// lowered argument list.
func (g *Generator) callArgs(fn *pyast.FunctionDef, skip int, x *pyast.Call) string {
	if fn.Args == nil {
		return g.plainArgs(x)
	}
	var params []*pyast.Arg
	if skip <= len(fn.Args.Args) {
		params = fn.Args.Args[skip:]
	}
	vals := make([]string, len(params))
	set := make([]bool, len(params))
	var extra []pyast.Expr
	var spread *pyast.Starred
	for i, a := range x.Args {
		if st, ok := a.(*pyast.Starred); ok {
			if fn.Args.Vararg != nil && i >= len(params) {
				spread = st
				continue
			}
			return registry.CompileError(g, x.Pos(), "argument unpacking into "+fn.Name+" is not supported")
		}
		if i < len(params) {
			vals[i], set[i] = g.exprAs(a, g.inf.ParamType(fn, i+skip)), true
			continue
		}
		extra = append(extra, a)
	}
	for _, kw := range x.Keywords {
		if kw.Arg == "" {
			g.Warnf(x.Pos(), "**mapping arguments to %s are ignored", fn.Name)
			continue
		}
		i := paramIndex(params, kw.Arg)
		if i < 0 {
			if fn.Args.Kwarg != nil {
				g.Warnf(x.Pos(), "keyword argument %s to %s is ignored", kw.Arg, fn.Name)
				continue
			}
			return registry.CompileError(g, x.Pos(), fn.Name+" has no parameter "+kw.Arg)
		}
		vals[i], set[i] = g.exprAs(kw.Value, g.inf.ParamType(fn, i+skip)), true
	}
	firstDefault := len(fn.Args.Args) - len(fn.Args.Defaults)
	for i, p := range params {
		if set[i] {
			continue
		}
		if d := i + skip - firstDefault; d >= 0 {
			vals[i] = g.exprAs(fn.Args.Defaults[d], g.inf.ParamType(fn, i+skip))
			continue
		}
		vals[i] = registry.CompileError(g, x.Pos(), "missing argument "+p.Name+" in call to "+fn.Name)
	}
	switch {
	case fn.Args.Vararg != nil:
		elem := g.varargElem(fn)
		if spread != nil {
			vals = append(vals, registry.Items(g, spread.Value))
			break
		}
		parts := make([]string, len(extra))
		for i, e := range extra {
			parts[i] = g.exprAs(e, elem)
		}
		vals = append(vals, "&[_]"+elem.Zig()+"{ "+strings.Join(parts, ", ")+" }")
	case len(extra) > 0:
		return registry.CompileError(g, x.Pos(), "too many arguments in call to "+fn.Name)
	}
	return strings.Join(vals, ", ")
}

func paramIndex(params []*pyast.Arg, name string) int {
	for i, p := range params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// isinstance
// ---------------------------------------------------------------------------

// isinstanceTargets returns the type names of isinstance's second argument.
func isinstanceTargets(e pyast.Expr) []string {
	if t, ok := e.(*pyast.Tuple); ok {
		var names []string
		for _, el := range t.Elts {
			names = append(names, isinstanceTargets(el)...)
		}
		return names
	}
	return []string{infer.DottedName(e)}
}

// matchesType reports whether a value of static type t is an instance of
// the Python type named name.
func (g *Generator) matchesType(t infer.Type, name string) bool {
	switch name {
	case "object":
		return true
	case "int":
		return t.Kind == infer.IntKind || t.Kind == infer.BoolKind
	case "float":
		return t.Kind == infer.FloatKind
	case "bool":
		return t.Kind == infer.BoolKind
	case "str":
		return t.Kind == infer.StringKind
	case "list":
		return t.Kind == infer.ListKind
	case "dict":
		return t.Kind == infer.DictKind || t.Kind == infer.CounterKind
	case "set", "frozenset":
		return t.Kind == infer.SetKind
	case "tuple":
		return t.Kind == infer.TupleKind
	}
	return t.Kind == infer.ClassKind && g.classes.IsSubclass(t.Name, name)
}

// staticIsinstance decides isinstance(x, T) from the static type of x. It
// reports false as its second result when the type is not known well
// enough.
func (g *Generator) staticIsinstance(x *pyast.Call) (bool, bool) {
	if len(x.Args) != 2 {
		return false, false
	}
	t := g.typeOf(x.Args[0])
	if t.IsUnknown() || t.Kind == infer.OptionalKind {
		return false, false
	}
	for _, name := range isinstanceTargets(x.Args[1]) {
		if g.matchesType(t, name) {
			return true, true
		}
	}
	return false, true
}

var runtimeTypeNames = map[string]string{
	"int": "i64", "float": "f64", "bool": "bool", "str": "[]const u8",
}

func (g *Generator) isinstance(x *pyast.Call) string {
	if len(x.Args) != 2 {
		return registry.CompileError(g, x.Pos(), "isinstance takes 2 arguments")
	}
	if v, ok := g.staticIsinstance(x); ok {
		return strconv.FormatBool(v)
	}
	t := g.typeOf(x.Args[0])
	v := g.expr(x.Args[0])
	var parts []string
	for _, name := range isinstanceTargets(x.Args[1]) {
		if t.Kind == infer.OptionalKind {
			if g.matchesType(t.ElemType(), name) {
				parts = append(parts, zig.Paren(v)+" != null")
			}
			continue
		}
		zt, ok := runtimeTypeNames[name]
		if !ok {
			if _, isClass := g.classes.Lookup(name); !isClass {
				g.Warnf(x.Pos(), "isinstance against %s is always false here", name)
				continue
			}
			zt = "*" + zig.Ident(name)
		}
		parts = append(parts, "runtime.isInstance(@TypeOf("+v+"), "+zt+")")
	}
	if len(parts) == 0 {
		return "false"
	}
	return strings.Join(parts, " or ")
}

// ---------------------------------------------------------------------------
// Coroutines
// ---------------------------------------------------------------------------

// coroutineCall recognizes a call of an async function or method defined in
// this module and returns its spawn expression and the prefix of its
// generated frame declarations.
func (g *Generator) coroutineCall(x *pyast.Call) (spawn, prefix string, ok bool) {
	switch f := x.Func.(type) {
	case *pyast.Name:
		fn, found := g.funcs[f.ID]
		if !found || !fn.IsAsync || g.isLocal(f.ID) {
			return "", "", false
		}
		return "try " + f.ID + "_spawn(" + g.callArgs(fn, 0, x) + ")", f.ID, true
	case *pyast.Attribute:
		vt := g.typeOf(f.Value)
		if vt.Kind != infer.ClassKind {
			return "", "", false
		}
		m, owner, found := g.classes.FindMethod(vt.Name, f.Attr)
		if !found || !m.IsAsync {
			return "", "", false
		}
		prefix = owner + "_" + m.Name
		return "try " + prefix + "_spawn(" + joinArgs(zig.Paren(g.expr(f.Value)), g.callArgs(m, 1, x)) + ")", prefix, true
	}
	return "", "", false
}
