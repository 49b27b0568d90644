package registry

import (
	"fmt"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Methods on builtin types
// ---------------------------------------------------------------------------

func registerMethods(d *Dispatcher) {
	for name, h := range map[string]Handler{
		"upper":      strAlloc("std.ascii.allocUpperString", 0),
		"lower":      strAlloc("std.ascii.allocLowerString", 0),
		"casefold":   strAlloc("std.ascii.allocLowerString", 0),
		"strip":      strTrim("trim"),
		"lstrip":     strTrim("trimLeft"),
		"rstrip":     strTrim("trimRight"),
		"replace":    strReplace,
		"split":      strSplit("split"),
		"rsplit":     strSplit("rsplit"),
		"splitlines": strAlloc("runtime.str.splitLines", 0),
		"join":       strJoin,
		"startswith": strAffix("startsWith"),
		"endswith":   strAffix("endsWith"),
		"find":       strFind("indexOf"),
		"rfind":      strFind("lastIndexOf"),
		"index":      strIndex,
		"count":      strCount,
		"format":     strFormat,
		"title":      strAlloc("runtime.str.title", 0),
		"capitalize": strAlloc("runtime.str.capitalize", 0),
		"swapcase":   strAlloc("runtime.str.swapcase", 0),
		"center":     strAlloc("runtime.str.center", 1),
		"ljust":      strAlloc("runtime.str.ljust", 1),
		"rjust":      strAlloc("runtime.str.rjust", 1),
		"zfill":      strAlloc("runtime.str.zfill", 1),
		"isdigit":    strPredicate("isDigit"),
		"isalpha":    strPredicate("isAlpha"),
		"isalnum":    strPredicate("isAlnum"),
		"isspace":    strPredicate("isSpace"),
		"isupper":    strPredicate("isUpper"),
		"islower":    strPredicate("isLower"),
		"encode":     strIdentity("encode"),
		"decode":     strIdentity("decode"),
	} {
		d.Handle(StrMethods, name, h)
	}

	for name, h := range map[string]Handler{
		"append":  listAppend,
		"extend":  listExtend,
		"pop":     listPop,
		"insert":  listInsert,
		"remove":  listRuntime("remove", true),
		"index":   listRuntime("index", true),
		"count":   listRuntime("count", false),
		"clear":   clearMethod("list.clear"),
		"reverse": listReverse,
		"sort":    listSort,
		"copy":    cloneMethod("list.copy"),
	} {
		d.Handle(ListMethods, name, h)
	}

	for name, h := range map[string]Handler{
		"get":        dictGet,
		"keys":       dictView("keys"),
		"values":     dictView("values"),
		"items":      dictView("items"),
		"pop":        dictPop,
		"setdefault": dictSetdefault,
		"update":     dictUpdate,
		"clear":      clearMethod("dict.clear"),
		"copy":       cloneMethod("dict.copy"),
	} {
		d.Handle(DictMethods, name, h)
	}

	for name, h := range map[string]Handler{
		"add":          setAdd,
		"remove":       setRuntime("remove", true, false),
		"discard":      setRuntime("discard", false, false),
		"union":        setRuntime("unionOf", true, true),
		"intersection": setRuntime("intersectionOf", true, true),
		"difference":   setRuntime("differenceOf", true, true),
		"clear":        clearMethod("set.clear"),
		"copy":         cloneMethod("set.copy"),
	} {
		d.Handle(SetMethods, name, h)
	}

	d.Handle(CounterType, "most_common", counterMostCommon)
	d.Handle(CounterType, "update", counterUpdate)
}

// MethodModule returns the pseudo-module holding methods for values of type
// t, or "".
func MethodModule(t infer.Type) string {
	switch t.Kind {
	case infer.StringKind:
		return StrMethods
	case infer.ListKind:
		return ListMethods
	case infer.DictKind:
		return DictMethods
	case infer.SetKind:
		return SetMethods
	case infer.CounterKind:
		return CounterType
	}
	return ""
}

func recv(ctx Context, call *pyast.Call) string {
	return zig.Paren(ctx.Lower(Receiver(call)))
}

// --- str -------------------------------------------------------------------

// strAlloc emits try fn(allocator, s[, args...]) for methods taking at least
// minArgs arguments.
func strAlloc(fn string, minArgs int) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, fn, minArgs, minArgs+1); msg != "" {
			return msg
		}
		args := append([]string{ctx.Allocator(), ctx.Lower(Receiver(call))}, lowerAll(ctx, call.Args)...)
		return "try " + fn + "(" + strings.Join(args, ", ") + ")"
	}
}

func strTrim(fn string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "str."+fn, 0, 1); msg != "" {
			return msg
		}
		chars := `" \t\r\n"`
		if len(call.Args) == 1 {
			chars = ctx.Lower(call.Args[0])
		}
		return "std.mem." + fn + "(u8, " + ctx.Lower(Receiver(call)) + ", " + chars + ")"
	}
}

func strReplace(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "str.replace", 2, 2); msg != "" {
		return msg
	}
	return "try std.mem.replaceOwned(u8, " + ctx.Allocator() + ", " + ctx.Lower(Receiver(call)) + ", " +
		ctx.Lower(call.Args[0]) + ", " + ctx.Lower(call.Args[1]) + ")"
}

func strSplit(fn string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "str."+fn, 0, 2); msg != "" {
			return msg
		}
		s := ctx.Lower(Receiver(call))
		if len(call.Args) == 0 {
			return "try runtime.str.splitWhitespace(" + ctx.Allocator() + ", " + s + ")"
		}
		args := append([]string{ctx.Allocator(), s}, lowerAll(ctx, call.Args)...)
		return "try runtime.str." + fn + "(" + strings.Join(args, ", ") + ")"
	}
}

func strJoin(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "str.join", 1, 1); msg != "" {
		return msg
	}
	return "try std.mem.join(" + ctx.Allocator() + ", " + ctx.Lower(Receiver(call)) + ", " + Items(ctx, call.Args[0]) + ")"
}

func strAffix(fn string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "str."+fn, 1, 1); msg != "" {
			return msg
		}
		return "std.mem." + fn + "(u8, " + ctx.Lower(Receiver(call)) + ", " + ctx.Lower(call.Args[0]) + ")"
	}
}

func strFind(fn string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "str.find", 1, 1); msg != "" {
			return msg
		}
		return "if (std.mem." + fn + "(u8, " + ctx.Lower(Receiver(call)) + ", " + ctx.Lower(call.Args[0]) +
			")) |i| @as(i64, @intCast(i)) else -1"
	}
}

func strIndex(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "str.index", 1, 1); msg != "" {
		return msg
	}
	return "@as(i64, @intCast(std.mem.indexOf(u8, " + ctx.Lower(Receiver(call)) + ", " + ctx.Lower(call.Args[0]) +
		") orelse return error.ValueError))"
}

func strCount(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "str.count", 1, 1); msg != "" {
		return msg
	}
	return castLen("std.mem.count(u8, " + ctx.Lower(Receiver(call)) + ", " + ctx.Lower(call.Args[0]) + ")")
}

// strFormat lowers "template".format(args...) for literal templates.
func strFormat(ctx Context, call *pyast.Call) string {
	if Receiver(call) == nil {
		return CompileError(ctx, call.Pos(), "str.format needs a receiver")
	}
	tmpl, ok := stringLiteral(Receiver(call))
	if !ok {
		return CompileError(ctx, call.Pos(), "str.format needs a literal template")
	}
	parts, ok := ParseBraces(tmpl)
	if !ok {
		return CompileError(ctx, call.Pos(), "str.format template is not supported")
	}
	var f Format
	for _, p := range parts {
		if p.Index < 0 {
			f.Literal(p.Text)
			continue
		}
		if p.Index >= len(call.Args) {
			return CompileError(ctx, call.Pos(), fmt.Sprintf("str.format: no argument %d", p.Index))
		}
		f.ValueSpec(ctx, call.Args[p.Index], p.Spec)
	}
	if text, static := f.Static(); static {
		return zig.Quote(text)
	}
	return "try std.fmt.allocPrint(" + ctx.Allocator() + ", " + f.String() + ", " + f.Args() + ")"
}

func strPredicate(fn string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "str."+fn, 0, 0); msg != "" {
			return msg
		}
		return "runtime.str." + fn + "(" + ctx.Lower(Receiver(call)) + ")"
	}
}

// strIdentity handles encode/decode: bytes and str share one representation.
func strIdentity(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "str."+name, 0, 2); msg != "" {
			return msg
		}
		return ctx.Lower(Receiver(call))
	}
}

// --- list ------------------------------------------------------------------

func listAppend(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "list.append", 1, 1); msg != "" {
		return msg
	}
	return "try " + recv(ctx, call) + ".append(" + ctx.Lower(call.Args[0]) + ")"
}

func listExtend(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "list.extend", 1, 1); msg != "" {
		return msg
	}
	return "try " + recv(ctx, call) + ".appendSlice(" + Items(ctx, call.Args[0]) + ")"
}

func listPop(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "list.pop", 0, 1); msg != "" {
		return msg
	}
	r := recv(ctx, call)
	if len(call.Args) == 0 {
		return "(" + r + ".pop() orelse return error.IndexError)"
	}
	if i, ok := infer.IntLiteral(call.Args[0]); ok && i >= 0 {
		return r + ".orderedRemove(" + fmt.Sprint(i) + ")"
	}
	return "try runtime.list.popAt(&" + r + ", " + ctx.Lower(call.Args[0]) + ")"
}

func listInsert(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "list.insert", 2, 2); msg != "" {
		return msg
	}
	return "try runtime.list.insert(&" + recv(ctx, call) + ", " + ctx.Lower(call.Args[0]) + ", " + ctx.Lower(call.Args[1]) + ")"
}

// listRuntime emits runtime.list.fn(&xs, v) for remove/index/count.
func listRuntime(fn string, fails bool) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "list."+fn, 1, 1); msg != "" {
			return msg
		}
		expr := "runtime.list." + fn + "(&" + recv(ctx, call) + ", " + ctx.Lower(call.Args[0]) + ")"
		if fails {
			expr = "try " + expr
		}
		return expr
	}
}

func listReverse(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "list.reverse", 0, 0); msg != "" {
		return msg
	}
	return "std.mem.reverse(" + elemZig(ctx, Receiver(call)) + ", " + recv(ctx, call) + ".items)"
}

func listSort(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "list.sort", 0, 0); msg != "" {
		return msg
	}
	elem := ctx.TypeOf(Receiver(call)).IterElem()
	desc := false
	if r := call.KeywordArg("reverse"); r != nil {
		v, ok := boolLiteral(r)
		if !ok {
			return CompileError(ctx, call.Pos(), "list.sort: reverse must be a literal")
		}
		desc = v
	}
	items := recv(ctx, call) + ".items"
	if key := call.KeywordArg("key"); key != nil {
		return "runtime.list.sortBy(" + elem.Zig() + ", " + items + ", " + ctx.Lower(key) + ", " + fmt.Sprint(desc) + ")"
	}
	if elem.Kind == infer.StringKind || elem.Kind == infer.TupleKind || elem.Kind == infer.ClassKind {
		return "runtime.list.sort(" + elem.Zig() + ", " + items + ", " + fmt.Sprint(desc) + ")"
	}
	order := "asc"
	if desc {
		order = "desc"
	}
	return "std.mem.sort(" + elem.Zig() + ", " + items + ", {}, std.sort." + order + "(" + elem.Zig() + "))"
}

func clearMethod(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, name, 0, 0); msg != "" {
			return msg
		}
		return recv(ctx, call) + ".clearRetainingCapacity()"
	}
}

func cloneMethod(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, name, 0, 0); msg != "" {
			return msg
		}
		return "try " + recv(ctx, call) + ".clone()"
	}
}

// --- dict ------------------------------------------------------------------

func dictGet(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "dict.get", 1, 2); msg != "" {
		return msg
	}
	get := recv(ctx, call) + ".get(" + ctx.Lower(call.Args[0]) + ")"
	if len(call.Args) == 2 {
		return "(" + get + " orelse " + ctx.Lower(call.Args[1]) + ")"
	}
	return get
}

func dictView(view string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "dict."+view, 0, 0); msg != "" {
			return msg
		}
		return "try runtime.dict." + view + "(" + ctx.Allocator() + ", " + ctx.Lower(Receiver(call)) + ")"
	}
}

func dictPop(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "dict.pop", 1, 2); msg != "" {
		return msg
	}
	fetch := recv(ctx, call) + ".fetchRemove(" + ctx.Lower(call.Args[0]) + ")"
	if len(call.Args) == 2 {
		return "if (" + fetch + ") |kv| kv.value else " + ctx.Lower(call.Args[1])
	}
	return "(" + fetch + " orelse return error.KeyError).value"
}

func dictSetdefault(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "dict.setdefault", 2, 2); msg != "" {
		return msg
	}
	return "(try " + recv(ctx, call) + ".getOrPutValue(" + ctx.Lower(call.Args[0]) + ", " + ctx.Lower(call.Args[1]) + ")).value_ptr.*"
}

func dictUpdate(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "dict.update", 1, 1); msg != "" {
		return msg
	}
	return "try runtime.dict.update(&" + recv(ctx, call) + ", " + ctx.Lower(call.Args[0]) + ")"
}

// --- set -------------------------------------------------------------------

func setAdd(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "set.add", 1, 1); msg != "" {
		return msg
	}
	return "try " + recv(ctx, call) + ".put(" + ctx.Lower(call.Args[0]) + ", {})"
}

// setRuntime emits runtime.set.fn(...). Binary operations build a new set
// and take the allocator.
func setRuntime(fn string, fails, alloc bool) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := methodArity(ctx, call, "set."+fn, 1, 1); msg != "" {
			return msg
		}
		var args []string
		if alloc {
			args = append(args, ctx.Allocator(), ctx.Lower(Receiver(call)))
		} else {
			args = append(args, "&"+recv(ctx, call))
		}
		args = append(args, ctx.Lower(call.Args[0]))
		expr := "runtime.set." + fn + "(" + strings.Join(args, ", ") + ")"
		if fails {
			expr = "try " + expr
		}
		return expr
	}
}

// --- Counter ---------------------------------------------------------------

func counterMostCommon(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "Counter.most_common", 0, 1); msg != "" {
		return msg
	}
	n := "null"
	if len(call.Args) == 1 {
		n = ctx.Lower(call.Args[0])
	}
	return "try " + recv(ctx, call) + ".mostCommon(" + ctx.Allocator() + ", " + n + ")"
}

func counterUpdate(ctx Context, call *pyast.Call) string {
	if msg := methodArity(ctx, call, "Counter.update", 1, 1); msg != "" {
		return msg
	}
	return "try " + recv(ctx, call) + ".update(" + Items(ctx, call.Args[0]) + ")"
}
