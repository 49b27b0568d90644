package registry

import (
	"strings"
	"testing"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
)

func methodCall(recv string, fn string, args ...pyast.Expr) *pyast.Call {
	return pyast.CallAttr(pyast.Id(recv), fn, args...)
}

// Every registered pair must produce code through its own handler, for any
// argument count, without reaching the unregistered-module fallback.
func TestEveryPairDispatches(t *testing.T) {
	d := NewDispatcher(New())
	pairs := d.Pairs()
	if len(pairs) < 100 {
		t.Fatalf("only %d pairs registered", len(pairs))
	}
	argSets := [][]pyast.Expr{
		nil,
		{pyast.Id("a")},
		{pyast.Id("a"), pyast.Int(2)},
		{pyast.Id("a"), pyast.Int(2), pyast.Str("s")},
	}
	for _, p := range pairs {
		for _, args := range argSets {
			ctx := newFakeCtx(nil)
			call := methodCall("recv", p.Func, args...)
			code, ok := d.Dispatch(ctx, p.Module, p.Func, call)
			if !ok {
				t.Errorf("%s.%s: fell through to the fallback", p.Module, p.Func)
			}
			if code == "" {
				t.Errorf("%s.%s(%d args): empty code", p.Module, p.Func, len(args))
			}
		}
	}
}

func TestResolve(t *testing.T) {
	d := NewDispatcher(New())
	tests := []struct {
		module, fn string
		want       Route
	}{
		{"importlib", "import_module", RouteSpecial},
		{"pickle", "dumps", RouteSpecial},
		{"pickle", "loads", RouteTable},
		{"math", "sqrt", RouteTable},
		{Builtins, "len", RouteTable},
		{"numpy", "zeros", RouteMetadata},
		{"numpy", "fft", RouteNotFound},
		{"tkinter", "Tk", RouteUnsupported},
		{"mymodule", "helper", RouteNotFound},
	}
	for _, tt := range tests {
		if got := d.Resolve(tt.module, tt.fn); got != tt.want {
			t.Errorf("Resolve(%s, %s) = %v, want %v", tt.module, tt.fn, got, tt.want)
		}
	}
}

func TestDispatchOutput(t *testing.T) {
	types := map[string]infer.Type{
		"xs":  infer.ListOf(infer.Int),
		"s":   infer.String,
		"n":   infer.Int,
		"x":   infer.Float,
		"d":   infer.DictOf(infer.String, infer.Int),
		"ok":  infer.Bool,
		"tup": infer.TupleOf(infer.Int, infer.String),
		"obj": infer.ClassOf("Thing"),
	}
	tests := []struct {
		name   string
		module string
		fn     string
		call   *pyast.Call
		want   string
	}{
		{"len list", Builtins, "len", pyast.CallName("len", pyast.Id("xs")), "@as(i64, @intCast(xs.items.len))"},
		{"len str", Builtins, "len", pyast.CallName("len", pyast.Id("s")), "@as(i64, @intCast(s.len))"},
		{"len dict", Builtins, "len", pyast.CallName("len", pyast.Id("d")), "@as(i64, @intCast(d.count()))"},
		{"len tuple", Builtins, "len", pyast.CallName("len", pyast.Id("tup")), "2"},
		{"len unknown", Builtins, "len", pyast.CallName("len", pyast.Id("q")), "runtime.len(q)"},
		{"print", Builtins, "print", pyast.CallName("print", pyast.Str("a"), pyast.Id("n")),
			`runtime.print("a {d}\n", .{ n })`},
		{"print empty", Builtins, "print", pyast.CallName("print"), `runtime.print("\n", .{})`},
		{"print bool", Builtins, "print", pyast.CallName("print", pyast.Id("ok")),
			`runtime.print("{s}\n", .{ runtime.boolStr(ok) })`},
		{"print none braces", Builtins, "print", pyast.CallName("print", pyast.Str("{}"), pyast.None()),
			`runtime.print("{{}} None\n", .{})`},
		{"sum", Builtins, "sum", pyast.CallName("sum", pyast.Id("xs")),
			"sum_1: { var acc: i64 = 0; for (xs.items) |v| acc += v; break :sum_1 acc; }"},
		{"int of str", Builtins, "int", pyast.CallName("int", pyast.Id("s")),
			`try std.fmt.parseInt(i64, std.mem.trim(u8, s, " \t\n"), 10)`},
		{"float of int", Builtins, "float", pyast.CallName("float", pyast.Id("n")), "@as(f64, @floatFromInt(n))"},
		{"max args", Builtins, "max", pyast.CallName("max", pyast.Id("n"), pyast.Int(3)), "@max(n, 3)"},
		{"max list", Builtins, "max", pyast.CallName("max", pyast.Id("xs")), "std.mem.max(i64, xs.items)"},
		{"chr literal", Builtins, "chr", pyast.CallName("chr", pyast.Int(65)), `"A"`},
		{"ord literal", Builtins, "ord", pyast.CallName("ord", pyast.Str("a")), "97"},
		{"sqrt int", "math", "sqrt", pyast.CallName("sqrt", pyast.Id("n")), "@sqrt(@as(f64, @floatFromInt(n)))"},
		{"sqrt literal", "math", "sqrt", pyast.CallName("sqrt", pyast.Int(2)), "@sqrt(2.0)"},
		{"floor", "math", "floor", pyast.CallName("floor", pyast.Id("x")), "@as(i64, @intFromFloat(@floor(x)))"},
		{"append", ListMethods, "append", methodCall("xs", "append", pyast.Int(4)), "try xs.append(4)"},
		{"pop", ListMethods, "pop", methodCall("xs", "pop"), "(xs.pop() orelse return error.IndexError)"},
		{"upper", StrMethods, "upper", methodCall("s", "upper"), "try std.ascii.allocUpperString(allocator, s)"},
		{"strip", StrMethods, "strip", methodCall("s", "strip"), `std.mem.trim(u8, s, " \t\r\n")`},
		{"startswith", StrMethods, "startswith", methodCall("s", "startswith", pyast.Str("a")),
			`std.mem.startsWith(u8, s, "a")`},
		{"find", StrMethods, "find", methodCall("s", "find", pyast.Str("a")),
			`if (std.mem.indexOf(u8, s, "a")) |i| @as(i64, @intCast(i)) else -1`},
		{"format", StrMethods, "format", pyast.CallAttr(pyast.Str("{} is {:.2f}"), "format", pyast.Id("s"), pyast.Id("x")),
			`try std.fmt.allocPrint(allocator, "{s} is {d:.2}", .{ s, x })`},
		{"format static", StrMethods, "format", pyast.CallAttr(pyast.Str("{0}-{0}"), "format", pyast.Str("ab")),
			`"ab-ab"`},
		{"dict get default", DictMethods, "get", methodCall("d", "get", pyast.Str("k"), pyast.Int(0)),
			`(d.get("k") orelse 0)`},
		{"dict pop", DictMethods, "pop", methodCall("d", "pop", pyast.Str("k")),
			`(d.fetchRemove("k") orelse return error.KeyError).value`},
		{"getenv default", "os", "getenv", pyast.CallName("getenv", pyast.Str("HOME"), pyast.Str("/")),
			`(std.posix.getenv("HOME") orelse "/")`},
		{"asyncio.run", "asyncio", "run", pyast.CallName("run", pyast.CallName("main")), "run(main())"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(New())
			ctx := newFakeCtx(types)
			got, ok := d.Dispatch(ctx, tt.module, tt.fn, tt.call)
			if !ok {
				t.Fatalf("Dispatch(%s, %s) not found", tt.module, tt.fn)
			}
			if got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
			if len(ctx.warnings) > 0 {
				t.Errorf("unexpected warnings: %v", ctx.warnings)
			}
		})
	}
}

func TestPickleProtocol(t *testing.T) {
	obj := pyast.Id("obj")
	withProto := func(p pyast.Expr) *pyast.Call {
		c := pyast.CallName("dumps", obj)
		c.Keywords = []*pyast.Keyword{{Arg: "protocol", Value: p}}
		return c
	}
	tests := []struct {
		name string
		call *pyast.Call
		want string
	}{
		{"text", withProto(pyast.Int(0)), "try runtime.pickle.dumpsText(allocator, obj)"},
		{"binary", withProto(pyast.Int(2)), "try runtime.pickle.dumpsBinary(allocator, obj, 2)"},
		{"positional", pyast.CallName("dumps", obj, pyast.Int(4)), "try runtime.pickle.dumpsBinary(allocator, obj, 4)"},
		{"default", pyast.CallName("dumps", obj), "try runtime.pickle.dumpsBinary(allocator, obj, runtime.pickle.default_protocol)"},
		{"dynamic", withProto(pyast.Id("p")), "try runtime.pickle.dumps(allocator, obj, p)"},
	}
	d := NewDispatcher(New())
	for _, tt := range tests {
		got, _ := d.Dispatch(newFakeCtx(nil), "pickle", "dumps", tt.call)
		if got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}

	dump := pyast.CallName("dump", obj, pyast.Id("f"))
	dump.Keywords = []*pyast.Keyword{{Arg: "protocol", Value: pyast.Int(0)}}
	if got, _ := d.Dispatch(newFakeCtx(nil), "pickle", "dump", dump); got != "try runtime.pickle.dumpText(allocator, obj, f)" {
		t.Errorf("dump: got %s", got)
	}
}

func TestImportModule(t *testing.T) {
	d := NewDispatcher(New())
	tests := []struct {
		arg      pyast.Expr
		want     string
		warnings int
	}{
		{pyast.Str("math"), "runtime.math", 0},
		{pyast.Str("mypkg.util"), `@import("mypkg/util.zig")`, 0},
		{pyast.Str("tkinter"), `@compileError("module tkinter is not supported")`, 1},
		{pyast.Id("name"), `@compileError("importlib.import_module needs a literal module name")`, 1},
	}
	for _, tt := range tests {
		ctx := newFakeCtx(nil)
		got, ok := d.Dispatch(ctx, "importlib", "import_module", pyast.CallName("import_module", tt.arg))
		if !ok || got != tt.want {
			t.Errorf("import_module(%v) = %s, want %s", tt.arg, got, tt.want)
		}
		if len(ctx.warnings) != tt.warnings {
			t.Errorf("import_module(%v): %d warnings, want %d", tt.arg, len(ctx.warnings), tt.warnings)
		}
	}
}

func TestMetadataFallback(t *testing.T) {
	d := NewDispatcher(New())
	ctx := newFakeCtx(nil)
	ctx.aliases["numpy"] = "np"
	got, ok := d.Dispatch(ctx, "numpy", "zeros", pyast.CallName("zeros", pyast.Int(3)))
	if !ok || got != "try np.zeros(allocator, 3)" {
		t.Errorf("numpy.zeros = %q, %v", got, ok)
	}
	got, _ = d.Dispatch(ctx, "numpy", "mean", pyast.CallName("mean", pyast.Id("a")))
	if got != "np.mean(a)" {
		t.Errorf("numpy.mean = %q", got)
	}
}

func TestUnsupportedModule(t *testing.T) {
	d := NewDispatcher(New())
	ctx := newFakeCtx(nil)
	got, ok := d.Dispatch(ctx, "tkinter", "Tk", pyast.CallName("Tk"))
	if !ok || !strings.HasPrefix(got, "@compileError(") {
		t.Errorf("tkinter.Tk = %q, %v", got, ok)
	}
	if len(ctx.warnings) != 1 {
		t.Errorf("warnings = %v", ctx.warnings)
	}
	if _, ok := d.Dispatch(ctx, "mymodule", "f", pyast.CallName("f")); ok {
		t.Error("unregistered module should not dispatch")
	}
}

func TestArityMarker(t *testing.T) {
	d := NewDispatcher(New())
	ctx := newFakeCtx(nil)
	got, _ := d.Dispatch(ctx, Builtins, "len", pyast.CallName("len"))
	if got != `@compileError("len takes 1 arguments, got 0")` {
		t.Errorf("len() = %s", got)
	}
	if len(ctx.warnings) != 1 {
		t.Errorf("warnings = %v", ctx.warnings)
	}
}

func TestAttr(t *testing.T) {
	d := NewDispatcher(New())
	if got, ok := d.Attr("math", "pi"); !ok || got != "std.math.pi" {
		t.Errorf("math.pi = %q, %v", got, ok)
	}
	if _, ok := d.Attr("math", "nope"); ok {
		t.Error("math.nope should miss")
	}
}

func TestMethodModule(t *testing.T) {
	tests := []struct {
		t    infer.Type
		want string
	}{
		{infer.String, StrMethods},
		{infer.ListOf(infer.Int), ListMethods},
		{infer.DictOf(infer.String, infer.Int), DictMethods},
		{infer.SetOf(infer.Int), SetMethods},
		{infer.Counter, CounterType},
		{infer.Int, ""},
	}
	for _, tt := range tests {
		if got := MethodModule(tt.t); got != tt.want {
			t.Errorf("MethodModule(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}
