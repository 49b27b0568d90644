package registry

import (
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
)

// ---------------------------------------------------------------------------
// Standard library modules
// ---------------------------------------------------------------------------

func registerStdlib(d *Dispatcher) {
	// math
	for _, fn := range []string{"sin", "cos", "tan", "exp", "log2", "log10"} {
		d.Handle("math", fn, floatBuiltin(fn))
	}
	d.Handle("math", "sqrt", floatBuiltin("sqrt"))
	d.Handle("math", "log", mathLog)
	d.Handle("math", "fabs", floatBuiltin("abs"))
	d.Handle("math", "floor", floatToInt("floor"))
	d.Handle("math", "ceil", floatToInt("ceil"))
	d.Handle("math", "trunc", floatToInt("trunc"))
	d.Handle("math", "pow", floatCall("std.math.pow(f64, ", 2))
	d.Handle("math", "hypot", floatCall("std.math.hypot(", 2))
	d.Handle("math", "atan2", floatCall("std.math.atan2(", 2))
	d.Handle("math", "isnan", floatCall("std.math.isNan(", 1))
	d.Handle("math", "isinf", floatCall("std.math.isInf(", 1))
	d.Handle("math", "gcd", mathGcd)
	d.Handle("math", "factorial", runtimeCall("math.factorial", 1, 1, false, true))
	d.Constant("math", "pi", "std.math.pi")
	d.Constant("math", "e", "std.math.e")
	d.Constant("math", "tau", "std.math.tau")
	d.Constant("math", "inf", "std.math.inf(f64)")
	d.Constant("math", "nan", "std.math.nan(f64)")

	// time
	d.Handle("time", "time", runtimeCall("time.time", 0, 0, false, false))
	d.Handle("time", "perf_counter", runtimeCall("time.perfCounter", 0, 0, false, false))
	d.Handle("time", "monotonic", runtimeCall("time.perfCounter", 0, 0, false, false))
	d.Handle("time", "time_ns", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "time.time_ns", 0, 0); msg != "" {
			return msg
		}
		return "@as(i64, @intCast(std.time.nanoTimestamp()))"
	})
	d.Handle("time", "sleep", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "time.sleep", 1, 1); msg != "" {
			return msg
		}
		return "runtime.time.sleep(" + AsFloat(ctx, call.Args[0]) + ")"
	})

	// asyncio: awaited forms are lowered by the async transform.
	d.Handle("asyncio", "run", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "asyncio.run", 1, 1); msg != "" {
			return msg
		}
		return ctx.RunCoroutine(call.Args[0])
	})
	d.Handle("asyncio", "create_task", passThrough("asyncio.create_task"))
	d.Handle("asyncio", "ensure_future", passThrough("asyncio.ensure_future"))
	for _, fn := range []string{"sleep", "gather", "wait_for"} {
		d.Handle("asyncio", fn, func(ctx Context, call *pyast.Call) string {
			return CompileError(ctx, call.Pos(), "asyncio."+fn+" outside an awaited position is not supported")
		})
	}

	// json
	d.Handle("json", "dumps", runtimeCall("json.dumps", 1, 1, true, true))
	d.Handle("json", "loads", runtimeCall("json.loads", 1, 1, true, true))
	d.Handle("json", "dump", runtimeCall("json.dump", 2, 2, true, true))
	d.Handle("json", "load", runtimeCall("json.load", 1, 1, true, true))

	// os, os.path
	d.Handle("os", "getcwd", runtimeCall("os.getcwd", 0, 0, true, true))
	d.Handle("os", "listdir", runtimeCall("os.listdir", 0, 1, true, true))
	d.Handle("os", "remove", runtimeCall("os.remove", 1, 1, false, true))
	d.Handle("os", "mkdir", runtimeCall("os.mkdir", 1, 1, false, true))
	d.Handle("os", "makedirs", runtimeCall("os.makedirs", 1, 1, false, true))
	d.Handle("os", "getenv", osGetenv)
	d.Handle("os.path", "join", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "os.path.join", 1, -1); msg != "" {
			return msg
		}
		return "try std.fs.path.join(" + ctx.Allocator() + ", &.{ " + strings.Join(lowerAll(ctx, call.Args), ", ") + " })"
	})
	d.Handle("os.path", "exists", runtimeCall("os.path.exists", 1, 1, false, false))
	d.Handle("os.path", "isfile", runtimeCall("os.path.isfile", 1, 1, false, false))
	d.Handle("os.path", "isdir", runtimeCall("os.path.isdir", 1, 1, false, false))
	d.Handle("os.path", "basename", wrap1("os.path.basename", "std.fs.path.basename(", ")"))
	d.Handle("os.path", "dirname", wrap1("os.path.dirname", "(std.fs.path.dirname(", `) orelse "")`))
	d.Handle("os.path", "splitext", runtimeCall("os.path.splitext", 1, 1, false, false))
	d.Constant("os", "sep", "std.fs.path.sep_str")
	d.Constant("os", "linesep", `"\n"`)

	// sys
	d.Handle("sys", "exit", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "sys.exit", 0, 1); msg != "" {
			return msg
		}
		code := "0"
		if len(call.Args) == 1 {
			code = "@intCast(" + ctx.Lower(call.Args[0]) + ")"
		}
		return "std.process.exit(" + code + ")"
	})
	d.Constant("sys", "argv", "runtime.sys.argv")
	d.Constant("sys", "maxsize", "std.math.maxInt(i64)")
	d.Constant("sys", "platform", "runtime.sys.platform")

	// random
	d.Handle("random", "random", runtimeCall("random.random", 0, 0, false, false))
	d.Handle("random", "randint", runtimeCall("random.randint", 2, 2, false, false))
	d.Handle("random", "randrange", runtimeCall("random.randrange", 1, 3, false, false))
	d.Handle("random", "uniform", floatCall("runtime.random.uniform(", 2))
	d.Handle("random", "seed", runtimeCall("random.seed", 1, 1, false, false))
	d.Handle("random", "choice", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "random.choice", 1, 1); msg != "" {
			return msg
		}
		return "runtime.random.choice(" + elemZig(ctx, call.Args[0]) + ", " + Items(ctx, call.Args[0]) + ")"
	})
	d.Handle("random", "shuffle", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "random.shuffle", 1, 1); msg != "" {
			return msg
		}
		return "runtime.random.shuffle(" + elemZig(ctx, call.Args[0]) + ", " + Items(ctx, call.Args[0]) + ")"
	})

	// re
	for _, fn := range []string{"match", "search", "fullmatch", "findall", "split", "compile"} {
		d.Handle("re", fn, runtimeCall("re."+fn, 1, 2, true, true))
	}
	d.Handle("re", "sub", runtimeCall("re.sub", 3, 3, true, true))

	// collections
	d.Handle("collections", "Counter", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "collections.Counter", 0, 1); msg != "" {
			return msg
		}
		if len(call.Args) == 0 {
			return infer.Counter.ZigDefault(ctx.Allocator())
		}
		return "try runtime.Counter.fromSlice(" + ctx.Allocator() + ", " + Items(ctx, call.Args[0]) + ")"
	})
	d.Handle("collections", "defaultdict", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "collections.defaultdict", 0, 1); msg != "" {
			return msg
		}
		value := infer.Int
		if len(call.Args) == 1 {
			value = infer.FromAnnotation(call.Args[0], ctx.Classes())
		}
		return "runtime.DefaultDict(" + value.Zig() + ").init(" + ctx.Allocator() + ")"
	})
	d.Handle("collections", "deque", func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "collections.deque", 0, 1); msg != "" {
			return msg
		}
		if len(call.Args) == 0 {
			return infer.ListOf(infer.Int).ZigDefault(ctx.Allocator())
		}
		a := call.Args[0]
		return "try runtime.listFrom(" + elemZig(ctx, a) + ", " + ctx.Allocator() + ", " + Items(ctx, a) + ")"
	})

	// string
	d.Handle("string", "capwords", runtimeCall("string.capwords", 1, 1, true, true))
	for _, c := range []string{"ascii_letters", "ascii_lowercase", "ascii_uppercase", "digits", "hexdigits", "punctuation", "whitespace"} {
		d.Constant("string", c, "runtime.string."+c)
	}

	// pickle (dumps and dump are special-cased)
	d.Handle("pickle", "loads", runtimeCall("pickle.loads", 1, 1, true, true))
	d.Handle("pickle", "load", runtimeCall("pickle.load", 1, 1, true, true))
}

// runtimeCall emits [try ]runtime.<fn>([allocator, ]args...).
func runtimeCall(fn string, min, max int, alloc, fails bool) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, fn, min, max); msg != "" {
			return msg
		}
		var args []string
		if alloc {
			args = append(args, ctx.Allocator())
		}
		args = append(args, lowerAll(ctx, call.Args)...)
		expr := "runtime." + fn + "(" + strings.Join(args, ", ") + ")"
		if fails {
			expr = "try " + expr
		}
		return expr
	}
}

// floatBuiltin emits a Zig float builtin such as @sqrt on an f64 argument.
func floatBuiltin(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "math."+name, 1, 1); msg != "" {
			return msg
		}
		return "@" + name + "(" + AsFloat(ctx, call.Args[0]) + ")"
	}
}

// floatToInt emits a rounding builtin whose Python result is an int.
func floatToInt(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, "math."+name, 1, 1); msg != "" {
			return msg
		}
		if ctx.TypeOf(call.Args[0]).Kind == infer.IntKind {
			return ctx.Lower(call.Args[0])
		}
		return "@as(i64, @intFromFloat(@" + name + "(" + AsFloat(ctx, call.Args[0]) + ")))"
	}
}

// floatCall emits prefix + n f64 arguments + ")".
func floatCall(prefix string, n int) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, strings.TrimSuffix(prefix, "("), n, n); msg != "" {
			return msg
		}
		args := make([]string, n)
		for i := range args {
			args[i] = AsFloat(ctx, call.Args[i])
		}
		return prefix + strings.Join(args, ", ") + ")"
	}
}

func mathLog(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "math.log", 1, 2); msg != "" {
		return msg
	}
	x := "@log(" + AsFloat(ctx, call.Args[0]) + ")"
	if len(call.Args) == 2 {
		return "(" + x + " / @log(" + AsFloat(ctx, call.Args[1]) + "))"
	}
	return x
}

func mathGcd(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "math.gcd", 2, 2); msg != "" {
		return msg
	}
	return "@as(i64, @intCast(std.math.gcd(@abs(" + ctx.Lower(call.Args[0]) + "), @abs(" + ctx.Lower(call.Args[1]) + "))))"
}

func osGetenv(ctx Context, call *pyast.Call) string {
	if msg := checkArity(ctx, call, "os.getenv", 1, 2); msg != "" {
		return msg
	}
	get := "std.posix.getenv(" + ctx.Lower(call.Args[0]) + ")"
	if len(call.Args) == 2 {
		return "(" + get + " orelse " + ctx.Lower(call.Args[1]) + ")"
	}
	return get
}

// passThrough lowers f(coro) to the lowered coroutine spawn itself.
func passThrough(name string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, name, 1, 1); msg != "" {
			return msg
		}
		return ctx.Lower(call.Args[0])
	}
}

func wrap1(name, prefix, suffix string) Handler {
	return func(ctx Context, call *pyast.Call) string {
		if msg := checkArity(ctx, call, name, 1, 1); msg != "" {
			return msg
		}
		return prefix + ctx.Lower(call.Args[0]) + suffix
	}
}
