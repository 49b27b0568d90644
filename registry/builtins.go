package registry

import (
	"fmt"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Builtin functions
// ---------------------------------------------------------------------------

func registerBuiltins(d *Dispatcher) {
	for name, h := range map[string]Handler{
		"print":     builtinPrint,
		"len":       builtinLen,
		"str":       builtinStr,
		"repr":      builtinRepr,
		"int":       builtinInt,
		"float":     builtinFloat,
		"bool":      builtinBool,
		"abs":       builtinAbs,
		"min":       minMax("min"),
		"max":       minMax("max"),
		"sum":       builtinSum,
		"sorted":    builtinSorted,
		"reversed":  builtinReversed,
		"ord":       builtinOrd,
		"chr":       builtinChr,
		"round":     builtinRound,
		"range":     builtinRange,
		"enumerate": builtinEnumerate,
		"zip":       builtinZip,
		"input":     builtinInput,
		"hex":       radix("hex"),
		"bin":       radix("bin"),
		"oct":       radix("oct"),
		"divmod":    builtinDivmod,
		"pow":       builtinPow,
		"any":       anyAll("any"),
		"all":       anyAll("all"),
		"list":      builtinList,
		"set":       builtinSet,
		"dict":      builtinDict,
		"tuple":     builtinTuple,
		"open":      builtinOpen,
		"hasattr":   builtinHasattr,
		"getattr":   builtinGetattr,
		"format":    builtinFormat,
	} {
		d.Handle(Builtins, name, h)
	}
}

// builtinPrint emits runtime.print, or runtime.eprint for file=sys.stderr.
func builtinPrint(ctx Context, call *pyast.Call) string {
	sep, end := " ", "\n"
	if kw := call.KeywordArg("sep"); kw != nil {
		s, ok := stringLiteral(kw)
		if !ok {
			ctx.Warnf(call.Pos(), "print: non-literal sep ignored")
		} else {
			sep = s
		}
	}
	if kw := call.KeywordArg("end"); kw != nil {
		s, ok := stringLiteral(kw)
		if !ok {
			ctx.Warnf(call.Pos(), "print: non-literal end ignored")
		} else {
			end = s
		}
	}
	var f Format
	for i, a := range call.Args {
		if i > 0 {
			f.Literal(sep)
		}
		if st, ok := a.(*pyast.Starred); ok {
			f.Value(ctx, st.Value)
			continue
		}
		f.Value(ctx, a)
	}
	f.Literal(end)
	fn := "runtime.print"
	if file := call.KeywordArg("file"); file != nil && infer.DottedName(file) == "sys.stderr" {
		fn = "runtime.eprint"
	}
	return fn + "(" + f.String() + ", " + f.Args() + ")"
}

// LenOf lowers len(e) by the static type of e.
func LenOf(ctx Context, e pyast.Expr) string {
	t := ctx.TypeOf(e)
	v := ctx.Lower(e)
	switch t.Kind {
	case infer.StringKind:
		return castLen(zig.Paren(v) + ".len")
	case infer.ListKind:
		return castLen(zig.Paren(v) + ".items.len")
	case infer.DictKind, infer.SetKind, infer.CounterKind:
		return castLen(zig.Paren(v) + ".count()")
	case infer.TupleKind:
		return fmt.Sprint(len(t.Elems))
	case infer.ClassKind:
		if ctx.Classes().Defines(t.Name, "__len__") {
			return "try " + zig.Paren(v) + ".__len__()"
		}
	}
	return "runtime.len(" + v + ")"
}

func builtinLen(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "len", 1, 1); msg != "" {
		return msg
	}
	return LenOf(ctx, call.Args[0])
}

func builtinStr(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "str", 0, 1); msg != "" {
		return msg
	}
	if len(call.Args) == 0 {
		return `""`
	}
	return ctx.Stringify(call.Args[0])
}

func builtinRepr(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "repr", 1, 1); msg != "" {
		return msg
	}
	if ctx.TypeOf(call.Args[0]).Kind == infer.StringKind {
		return "try runtime.reprStr(" + ctx.Allocator() + ", " + ctx.Lower(call.Args[0]) + ")"
	}
	return ctx.Stringify(call.Args[0])
}

func builtinInt(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "int", 0, 2); msg != "" {
		return msg
	}
	if len(call.Args) == 0 {
		return "0"
	}
	a := call.Args[0]
	v := ctx.Lower(a)
	switch ctx.TypeOf(a).Kind {
	case infer.StringKind:
		base := "10"
		if len(call.Args) == 2 {
			base = "@intCast(" + ctx.Lower(call.Args[1]) + ")"
		}
		return "try std.fmt.parseInt(i64, std.mem.trim(u8, " + v + ", \" \\t\\n\"), " + base + ")"
	case infer.FloatKind:
		return "@as(i64, @intFromFloat(@trunc(" + v + ")))"
	case infer.BoolKind:
		return "@as(i64, @intFromBool(" + v + "))"
	case infer.IntKind:
		return v
	}
	return "runtime.toInt(" + v + ")"
}

func builtinFloat(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "float", 0, 1); msg != "" {
		return msg
	}
	if len(call.Args) == 0 {
		return "0.0"
	}
	a := call.Args[0]
	if s, ok := stringLiteral(a); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "inf", "+inf", "infinity":
			return "std.math.inf(f64)"
		case "-inf", "-infinity":
			return "-std.math.inf(f64)"
		case "nan":
			return "std.math.nan(f64)"
		}
	}
	if ctx.TypeOf(a).Kind == infer.StringKind {
		return "try std.fmt.parseFloat(f64, " + ctx.Lower(a) + ")"
	}
	return AsFloat(ctx, a)
}

func builtinBool(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "bool", 0, 1); msg != "" {
		return msg
	}
	if len(call.Args) == 0 {
		return "false"
	}
	if ctx.TypeOf(call.Args[0]).Kind == infer.BoolKind {
		return ctx.Lower(call.Args[0])
	}
	return "runtime.toBool(" + ctx.Lower(call.Args[0]) + ")"
}

func builtinAbs(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "abs", 1, 1); msg != "" {
		return msg
	}
	v := ctx.Lower(call.Args[0])
	if ctx.TypeOf(call.Args[0]).Kind == infer.FloatKind {
		return "@abs(" + v + ")"
	}
	return "@as(i64, @intCast(@abs(" + v + ")))"
}

func minMax(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, name, 1, -1); msg != "" {
			return msg
		}
		if call.KeywordArg("key") != nil {
			return CompileError(ctx, call.Pos(), name+" with key= is not supported")
		}
		if len(call.Args) == 1 {
			a := call.Args[0]
			fn := "std.mem." + name
			if ctx.TypeOf(a).IterElem().Kind == infer.StringKind {
				fn = "runtime." + name + "Str"
			}
			return fn + "(" + elemZig(ctx, a) + ", " + Items(ctx, a) + ")"
		}
		return "@" + name + "(" + strings.Join(lowerAll(ctx, call.Args), ", ") + ")"
	}
}

// builtinSum emits a labeled block accumulating over the iterable.
func builtinSum(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "sum", 1, 2); msg != "" {
		return msg
	}
	a := call.Args[0]
	elem := ctx.TypeOf(a).IterElem()
	if elem.IsUnknown() {
		elem = infer.Int
	}
	start := elem.ZigDefault(ctx.Allocator())
	if len(call.Args) == 2 {
		start = ctx.Lower(call.Args[1])
	}
	label := ctx.NextLabel("sum")
	return fmt.Sprintf("%s: { var acc: %s = %s; for (%s) |v| acc += v; break :%s acc; }",
		label, elem.Zig(), start, Items(ctx, a), label)
}

func builtinSorted(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "sorted", 1, 1); msg != "" {
		return msg
	}
	a := call.Args[0]
	fn := "sorted"
	if r := call.KeywordArg("reverse"); r != nil {
		rev, ok := boolLiteral(r)
		if !ok {
			return CompileError(ctx, call.Pos(), "sorted: reverse must be a literal")
		}
		if rev {
			fn = "sortedDesc"
		}
	}
	args := []string{elemZig(ctx, a), ctx.Allocator(), Items(ctx, a)}
	if key := call.KeywordArg("key"); key != nil {
		fn += "By"
		args = append(args, ctx.Lower(key))
	}
	return "try runtime." + fn + "(" + strings.Join(args, ", ") + ")"
}

func builtinReversed(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "reversed", 1, 1); msg != "" {
		return msg
	}
	a := call.Args[0]
	return "try runtime.reversed(" + elemZig(ctx, a) + ", " + ctx.Allocator() + ", " + Items(ctx, a) + ")"
}

func builtinOrd(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "ord", 1, 1); msg != "" {
		return msg
	}
	if s, ok := stringLiteral(call.Args[0]); ok && len(s) == 1 {
		return fmt.Sprint(int(s[0]))
	}
	return "@as(i64, " + zig.Paren(ctx.Lower(call.Args[0])) + "[0])"
}

func builtinChr(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "chr", 1, 1); msg != "" {
		return msg
	}
	if v, ok := infer.IntLiteral(call.Args[0]); ok && v >= 0 && v < 0x80 {
		return zig.Quote(string(rune(v)))
	}
	return "try runtime.chr(" + ctx.Allocator() + ", " + ctx.Lower(call.Args[0]) + ")"
}

func builtinRound(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "round", 1, 2); msg != "" {
		return msg
	}
	x := AsFloat(ctx, call.Args[0])
	if len(call.Args) == 2 {
		return "runtime.roundTo(" + x + ", " + ctx.Lower(call.Args[1]) + ")"
	}
	return "@as(i64, @intFromFloat(runtime.roundHalfEven(" + x + ")))"
}

// RangeArgs returns start, stop and step of a range call as Zig expressions.
func RangeArgs(ctx Context, call *pyast.Call) (start, stop, step string) {
	args := lowerAll(ctx, call.Args)
	switch len(args) {
	case 1:
		return "0", args[0], "1"
	case 2:
		return args[0], args[1], "1"
	}
	return args[0], args[1], args[2]
}

func builtinRange(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "range", 1, 3); msg != "" {
		return msg
	}
	start, stop, step := RangeArgs(ctx, call)
	return "try runtime.range(" + ctx.Allocator() + ", " + start + ", " + stop + ", " + step + ")"
}

func builtinEnumerate(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "enumerate", 1, 2); msg != "" {
		return msg
	}
	a := call.Args[0]
	start := "0"
	if len(call.Args) == 2 {
		start = ctx.Lower(call.Args[1])
	} else if s := call.KeywordArg("start"); s != nil {
		start = ctx.Lower(s)
	}
	return "try runtime.enumerate(" + elemZig(ctx, a) + ", " + ctx.Allocator() + ", " + Items(ctx, a) + ", " + start + ")"
}

func builtinZip(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "zip", 2, 2); msg != "" {
		return msg
	}
	a, b := call.Args[0], call.Args[1]
	return "try runtime.zip(" + elemZig(ctx, a) + ", " + elemZig(ctx, b) + ", " + ctx.Allocator() + ", " +
		Items(ctx, a) + ", " + Items(ctx, b) + ")"
}

func builtinInput(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "input", 0, 1); msg != "" {
		return msg
	}
	prompt := `""`
	if len(call.Args) == 1 {
		prompt = ctx.Lower(call.Args[0])
	}
	return "try runtime.input(" + ctx.Allocator() + ", " + prompt + ")"
}

func radix(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, name, 1, 1); msg != "" {
			return msg
		}
		return "try runtime." + name + "(" + ctx.Allocator() + ", " + ctx.Lower(call.Args[0]) + ")"
	}
}

func builtinDivmod(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "divmod", 2, 2); msg != "" {
		return msg
	}
	a, b := ctx.Lower(call.Args[0]), ctx.Lower(call.Args[1])
	return ".{ @divFloor(" + a + ", " + b + "), @mod(" + a + ", " + b + ") }"
}

func builtinPow(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "pow", 2, 3); msg != "" {
		return msg
	}
	if len(call.Args) == 3 {
		return "runtime.powMod(" + strings.Join(lowerAll(ctx, call.Args), ", ") + ")"
	}
	if ctx.TypeOf(call.Args[0]).Kind == infer.IntKind && ctx.TypeOf(call.Args[1]).Kind == infer.IntKind {
		return "std.math.pow(i64, " + ctx.Lower(call.Args[0]) + ", " + ctx.Lower(call.Args[1]) + ")"
	}
	return "std.math.pow(f64, " + AsFloat(ctx, call.Args[0]) + ", " + AsFloat(ctx, call.Args[1]) + ")"
}

func anyAll(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, name, 1, 1); msg != "" {
			return msg
		}
		return "runtime." + name + "(" + Items(ctx, call.Args[0]) + ")"
	}
}

func builtinList(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "list", 0, 1); msg != "" {
		return msg
	}
	if len(call.Args) == 0 {
		return "std.ArrayList(i64).init(" + ctx.Allocator() + ")"
	}
	a := call.Args[0]
	return "try runtime.listFrom(" + elemZig(ctx, a) + ", " + ctx.Allocator() + ", " + Items(ctx, a) + ")"
}

func builtinSet(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "set", 0, 1); msg != "" {
		return msg
	}
	if len(call.Args) == 0 {
		return infer.SetOf(infer.Int).ZigDefault(ctx.Allocator())
	}
	a := call.Args[0]
	return "try runtime.setFrom(" + elemZig(ctx, a) + ", " + ctx.Allocator() + ", " + Items(ctx, a) + ")"
}

func builtinDict(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "dict", 0, 1); msg != "" {
		return msg
	}
	if len(call.Args) == 0 {
		if len(call.Keywords) == 0 {
			return infer.DictOf(infer.String, infer.Int).ZigDefault(ctx.Allocator())
		}
		return CompileError(ctx, call.Pos(), "dict(**kwargs) is not supported")
	}
	return "try " + zig.Paren(ctx.Lower(call.Args[0])) + ".clone()"
}

func builtinTuple(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "tuple", 1, 1); msg != "" {
		return msg
	}
	return Items(ctx, call.Args[0])
}

func builtinOpen(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "open", 1, 2); msg != "" {
		return msg
	}
	mode := `"r"`
	if len(call.Args) == 2 {
		mode = ctx.Lower(call.Args[1])
	} else if m := call.KeywordArg("mode"); m != nil {
		mode = ctx.Lower(m)
	}
	return "try runtime.io.open(" + ctx.Allocator() + ", " + ctx.Lower(call.Args[0]) + ", " + mode + ")"
}

func builtinHasattr(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "hasattr", 2, 2); msg != "" {
		return msg
	}
	name, ok := stringLiteral(call.Args[1])
	if !ok {
		return CompileError(ctx, call.Pos(), "hasattr needs a literal attribute name")
	}
	obj := ctx.Lower(call.Args[0])
	return "runtime.hasField(@TypeOf(" + obj + "), " + zig.Quote(name) + ")"
}

func builtinGetattr(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "getattr", 2, 3); msg != "" {
		return msg
	}
	name, ok := stringLiteral(call.Args[1])
	if !ok {
		return CompileError(ctx, call.Pos(), "getattr needs a literal attribute name")
	}
	obj := zig.Paren(ctx.Lower(call.Args[0]))
	if len(call.Args) == 3 {
		return "if (comptime runtime.hasField(@TypeOf(" + obj + "), " + zig.Quote(name) + ")) " +
			obj + "." + zig.Ident(name) + " else " + ctx.Lower(call.Args[2])
	}
	return obj + "." + zig.Ident(name)
}

func builtinFormat(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "format", 1, 2); msg != "" {
		return msg
	}
	spec := ""
	if len(call.Args) == 2 {
		s, ok := stringLiteral(call.Args[1])
		if !ok {
			return CompileError(ctx, call.Pos(), "format needs a literal spec")
		}
		spec = s
	}
	var f Format
	f.ValueSpec(ctx, call.Args[0], spec)
	return "try std.fmt.allocPrint(" + ctx.Allocator() + ", " + f.String() + ", " + f.Args() + ")"
}
