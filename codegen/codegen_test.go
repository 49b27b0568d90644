package codegen

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/pyaot/pyast"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func arg(name string, ann pyast.Expr) *pyast.Arg {
	return &pyast.Arg{Name: name, Annotation: ann}
}

func def(name string, args []*pyast.Arg, ret pyast.Expr, body ...pyast.Stmt) *pyast.FunctionDef {
	return &pyast.FunctionDef{Name: name, Args: &pyast.Arguments{Args: args}, Returns: ret, Body: body}
}

func listOf(elem string) pyast.Expr {
	return &pyast.Subscript{Value: pyast.Id("list"), Slice: pyast.Id(elem)}
}

func ret(v pyast.Expr) *pyast.Return { return &pyast.Return{Value: v} }

func importStmt(names ...string) *pyast.Import {
	imp := &pyast.Import{}
	for _, n := range names {
		imp.Names = append(imp.Names, &pyast.Alias{Name: n})
	}
	return imp
}

func lower(t *testing.T, opts Options, body ...pyast.Stmt) *Result {
	t.Helper()
	res, err := Generate(&pyast.Module{Name: "main", Body: body}, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return res
}

func mustContain(t *testing.T, src string, fragments ...string) {
	t.Helper()
	for _, f := range fragments {
		if !strings.Contains(src, f) {
			t.Errorf("output lacks %q\n--- output ---\n%s", f, src)
		}
	}
}

func hasDiagnostic(res *Result, sev Severity, fragment string) bool {
	for _, d := range res.Diagnostics {
		if d.Severity == sev && strings.Contains(d.Message, fragment) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Generation
// ---------------------------------------------------------------------------

func TestGenerate_NilModule(t *testing.T) {
	_, err := Generate(nil, Options{})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestGenerate_Preamble(t *testing.T) {
	res := lower(t, Options{Entry: true})
	mustContain(t, res.Source,
		"// Code generated by pyaot from main. DO NOT EDIT.",
		`const std = @import("std");`,
		`const runtime = @import("runtime");`,
		"pub var allocator: std.mem.Allocator = undefined;",
		"pub fn main() !void {",
		"allocator = arena.allocator();",
	)
	if strings.Contains(res.Source, "initialized") {
		t.Errorf("entry module carries an init guard:\n%s", res.Source)
	}
}

func TestGenerate_LibraryModuleInit(t *testing.T) {
	res := lower(t, Options{})
	mustContain(t, res.Source,
		"var initialized: bool = false;",
		"pub fn init(init_allocator: std.mem.Allocator) anyerror!void {",
		"if (initialized) return;",
		"allocator = init_allocator;",
	)
	if strings.Contains(res.Source, "pub fn main(") {
		t.Errorf("library module has a main:\n%s", res.Source)
	}
}

func TestGenerate_NegativeListIndex(t *testing.T) {
	last := def("last", []*pyast.Arg{arg("xs", listOf("int"))}, pyast.Id("int"),
		ret(&pyast.Subscript{Value: pyast.Id("xs"), Slice: &pyast.UnaryOp{Op: pyast.USub, Operand: pyast.Int(1)}}))
	res := lower(t, Options{Entry: true}, last)
	mustContain(t, res.Source,
		"pub fn last(xs: std.ArrayList(i64)) anyerror!i64 {",
		"return xs.items[xs.items.len -| 1];",
	)
}

func TestGenerate_SliceBoundsClamp(t *testing.T) {
	head := def("head", []*pyast.Arg{arg("xs", listOf("int"))}, listOf("int"),
		ret(&pyast.Subscript{Value: pyast.Id("xs"), Slice: &pyast.Slice{Upper: pyast.Int(3)}}))
	tail := def("tail", []*pyast.Arg{arg("xs", listOf("int"))}, listOf("int"),
		ret(&pyast.Subscript{Value: pyast.Id("xs"), Slice: &pyast.Slice{Lower: &pyast.UnaryOp{Op: pyast.USub, Operand: pyast.Int(2)}}}))
	res := lower(t, Options{Entry: true}, head, tail)
	mustContain(t, res.Source, "@min(3, ", " -| 2")
}

func TestGenerate_HoistsBranchLocals(t *testing.T) {
	f := def("pick", []*pyast.Arg{arg("c", pyast.Id("bool"))}, pyast.Id("int"),
		&pyast.If{Test: pyast.Id("c"), Body: []pyast.Stmt{pyast.AssignName("y", pyast.Int(1))},
			OrElse: []pyast.Stmt{pyast.AssignName("y", pyast.Int(2))}},
		ret(pyast.Id("y")))
	res := lower(t, Options{Entry: true}, f)
	src := res.Source
	decl := strings.Index(src, "var y: i64 = 0;")
	cond := strings.Index(src, "if (")
	if decl < 0 || cond < 0 || decl > cond {
		t.Fatalf("y is not declared ahead of the if:\n%s", src)
	}
	mustContain(t, src, "y = 1;", "y = 2;", "return y;")
}

func TestGenerate_StaticIsinstanceKeepsEffects(t *testing.T) {
	sideEffect := def("side_effect", nil, pyast.Id("int"), ret(pyast.Int(1)))
	f := def("check", nil, pyast.Id("int"),
		&pyast.If{
			Test: pyast.CallName("isinstance", pyast.CallName("side_effect"), pyast.Id("int")),
			Body: []pyast.Stmt{ret(pyast.Int(1))},
		},
		ret(pyast.Int(2)))
	res := lower(t, Options{Entry: true}, sideEffect, f)
	if n := strings.Count(res.Source, "_ = try side_effect();"); n != 1 {
		t.Errorf("side_effect evaluated %d times, want 1:\n%s", n, res.Source)
	}
	if strings.Contains(res.Source, "isinstance") {
		t.Errorf("isinstance was not folded:\n%s", res.Source)
	}
}

func TestGenerate_UnsupportedImportWarns(t *testing.T) {
	res := lower(t, Options{Entry: true}, importStmt("tkinter"))
	mustContain(t, res.Source, "const tkinter = struct {};")
	if !hasDiagnostic(res, Warning, "tkinter") {
		t.Errorf("no warning for tkinter: %v", res.Diagnostics)
	}
	if res.HasErrors() {
		t.Errorf("unexpected errors: %v", res.Diagnostics)
	}
}

func TestGenerate_LambdaRelocatedAheadOfMain(t *testing.T) {
	lam := &pyast.Lambda{
		Args: &pyast.Arguments{Args: []*pyast.Arg{arg("x", nil)}},
		Body: &pyast.BinOp{Left: pyast.Id("x"), Op: pyast.Add, Right: pyast.Int(1)},
	}
	res := lower(t, Options{Entry: true}, pyast.AssignName("inc", lam))
	src := res.Source
	mustContain(t, src, "pub const inc = __lambda_")
	fn, main := strings.Index(src, "fn __lambda_"), strings.Index(src, "pub fn main(")
	if fn < 0 || main < 0 || fn > main {
		t.Errorf("lambda is not emitted ahead of main:\n%s", src)
	}
}

// ---------------------------------------------------------------------------
// Coroutines
// ---------------------------------------------------------------------------

func TestGenerate_SleepCoroutine(t *testing.T) {
	tick := def("tick", []*pyast.Arg{arg("d", pyast.Id("float"))}, pyast.Id("int"),
		&pyast.ExprStmt{Value: &pyast.Await{Value: pyast.CallAttr(pyast.Id("asyncio"), "sleep", pyast.Id("d"))}},
		ret(pyast.Int(1)))
	tick.IsAsync = true
	res := lower(t, Options{Entry: true}, importStmt("asyncio"), tick)
	mustContain(t, res.Source,
		"pub const tick_State = enum { start, await_0, done };",
		"__state: tick_State = .start,",
		"__timer_0: runtime.Timer = undefined,",
		"pub fn tick_spawn(d: f64) !*tick_Frame {",
		"frame.* = .{ .d = d };",
		"pub fn tick_poll(frame: *tick_Frame) anyerror!?i64 {",
		"frame.__timer_0 = try runtime.poller.schedule(frame.d);",
		"frame.__state = .await_0;",
		"if (!runtime.poller.ready(frame.__timer_0)) return null;",
		".done => return frame.__result,",
		"try runtime.poller.init(allocator);",
	)
}

// ---------------------------------------------------------------------------
// Classes and exceptions
// ---------------------------------------------------------------------------

func TestGenerate_ClassWithInit(t *testing.T) {
	self := func(attr string) pyast.Expr { return &pyast.Attribute{Value: pyast.Id("self"), Attr: attr} }
	ctor := def("__init__", []*pyast.Arg{arg("self", nil), arg("x", pyast.Id("int")), arg("y", pyast.Id("int"))}, nil,
		&pyast.Assign{Targets: []pyast.Expr{self("x")}, Value: pyast.Id("x")},
		&pyast.Assign{Targets: []pyast.Expr{self("y")}, Value: pyast.Id("y")})
	getX := def("get_x", []*pyast.Arg{arg("self", nil)}, pyast.Id("int"), ret(self("x")))
	point := &pyast.ClassDef{Name: "Point", Body: []pyast.Stmt{ctor, getX}}
	res := lower(t, Options{Entry: true}, point)
	mustContain(t, res.Source,
		"pub const Point = struct {",
		"x: i64,",
		"y: i64,",
		"const Self = @This();",
		"pub fn init(x: i64, y: i64) anyerror!*Self {",
		"const self = try allocator.create(Self);",
		"try self.__init__(x, y);",
		"pub fn get_x(self: *Self) anyerror!i64 {",
	)
}

func TestGenerate_TryExcept(t *testing.T) {
	safe := def("safe", []*pyast.Arg{arg("a", pyast.Id("int")), arg("b", pyast.Id("int"))}, pyast.Id("int"),
		&pyast.Try{
			Body: []pyast.Stmt{ret(&pyast.BinOp{Left: pyast.Id("a"), Op: pyast.FloorDiv, Right: pyast.Id("b")})},
			Handlers: []*pyast.ExceptHandler{{
				Type: pyast.Id("ZeroDivisionError"),
				Body: []pyast.Stmt{ret(pyast.Int(0))},
			}},
		})
	res := lower(t, Options{Entry: true}, safe)
	mustContain(t, res.Source,
		"= struct {",
		"fn run(",
		"anyerror!?i64 {",
		"error.ZeroDivisionError => {",
		"return 0;",
		"else => return err_",
	)
}

func TestExceptNames(t *testing.T) {
	tests := []struct {
		name string
		expr pyast.Expr
		want []string
	}{
		{"plain", pyast.Id("ValueError"), []string{"ValueError"}},
		{"dotted", &pyast.Attribute{Value: pyast.Id("json"), Attr: "JSONDecodeError"}, []string{"JSONDecodeError"}},
		{"tuple", &pyast.Tuple{Elts: []pyast.Expr{pyast.Id("KeyError"), pyast.Id("IndexError")}}, []string{"KeyError", "IndexError"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exceptNames(tt.expr)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("exceptNames = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeferrable(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"x = 1;", true},
		{"try runtime.print(x);", false},
		{"return;", false},
		{"break;", false},
	}
	for _, tt := range tests {
		if got := deferrable(tt.text); got != tt.want {
			t.Errorf("deferrable(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// User modules
// ---------------------------------------------------------------------------

type mapLoader map[string]*pyast.Module

func (l mapLoader) Load(module string) (*pyast.Module, error) {
	m, ok := l[module]
	if !ok {
		return nil, fmt.Errorf("no module %s", module)
	}
	return m, nil
}

type memSink map[string]string

func (s memSink) Write(module, source string) error {
	s[module] = source
	return nil
}

type memCache struct {
	entries    map[string]*Result
	gets, puts int
}

func (c *memCache) Get(key string) (*Result, error) {
	c.gets++
	if res, ok := c.entries[key]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("%s: %w", key, ErrCacheMiss)
}

func (c *memCache) Put(key string, res *Result) error {
	c.puts++
	c.entries[key] = res
	return nil
}

func TestGenerate_UserModule(t *testing.T) {
	loader := mapLoader{
		"util": {Body: []pyast.Stmt{def("two", nil, pyast.Id("int"), ret(pyast.Int(2)))}},
	}
	sink := memSink{}
	res := lower(t, Options{Entry: true, Loader: loader, Sink: sink}, importStmt("util"))
	mustContain(t, res.Source, `const util = @import("util.zig");`, "try util.init(allocator);")
	if len(res.Modules) != 1 || res.Modules[0] != "util" {
		t.Errorf("Modules = %v, want [util]", res.Modules)
	}
	mustContain(t, sink["util"], "pub fn two() anyerror!i64 {", "pub fn init(init_allocator: std.mem.Allocator)")
}

func TestGenerate_ImportCycle(t *testing.T) {
	loader := mapLoader{
		"a": {Body: []pyast.Stmt{importStmt("b")}},
		"b": {Body: []pyast.Stmt{importStmt("a")}},
	}
	sink := memSink{}
	res := lower(t, Options{Entry: true, Loader: loader, Sink: sink}, importStmt("a"))
	if !hasDiagnostic(res, Error, "import cycle through module a") {
		t.Fatalf("no cycle error: %v", res.Diagnostics)
	}
	if strings.Join(res.Modules, ",") != "b,a" {
		t.Errorf("Modules = %v, want [b a]", res.Modules)
	}
	if _, ok := sink["b"]; !ok {
		t.Errorf("module b was not written")
	}
}

func TestGenerate_CachesUserModules(t *testing.T) {
	loader := mapLoader{
		"util": {Body: []pyast.Stmt{def("two", nil, pyast.Id("int"), ret(pyast.Int(2)))}},
	}
	cache := &memCache{entries: map[string]*Result{}}
	for i := 0; i < 2; i++ {
		sink := memSink{}
		lower(t, Options{Entry: true, Loader: loader, Sink: sink, Cache: cache}, importStmt("util"))
		mustContain(t, sink["util"], "pub fn two() anyerror!i64 {")
	}
	if cache.gets != 2 || cache.puts != 1 {
		t.Errorf("gets=%d puts=%d, want 2 and 1", cache.gets, cache.puts)
	}
}

func TestCacheKey_Strict(t *testing.T) {
	m := &pyast.Module{Name: "util", Body: []pyast.Stmt{pyast.AssignName("x", pyast.Int(1))}}
	if cacheKey(m, Options{}) == cacheKey(m, Options{Strict: true}) {
		t.Errorf("strict and lenient builds share a cache key")
	}
	if !strings.HasPrefix(cacheKey(m, Options{}), "util:") {
		t.Errorf("key %q does not start with the module name", cacheKey(m, Options{}))
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func cmp(l pyast.Expr, op pyast.CmpOp, r pyast.Expr) *pyast.Compare {
	return &pyast.Compare{Left: l, Ops: []pyast.CmpOp{op}, Comparators: []pyast.Expr{r}}
}

// between returns the text of src after the first from and before the next
// to, or "" when either is missing.
func between(src, from, to string) string {
	i := strings.Index(src, from)
	if i < 0 {
		return ""
	}
	rest := src[i+len(from):]
	j := strings.Index(rest, to)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

func TestGenerate_ElifChainFlattens(t *testing.T) {
	sign := def("sign", []*pyast.Arg{arg("c", pyast.Id("int"))}, pyast.Id("int"),
		&pyast.If{
			Test: cmp(pyast.Id("c"), pyast.Gt, pyast.Int(0)),
			Body: []pyast.Stmt{ret(pyast.Int(1))},
			OrElse: []pyast.Stmt{&pyast.If{
				Test:   cmp(pyast.Id("c"), pyast.Lt, pyast.Int(0)),
				Body:   []pyast.Stmt{ret(pyast.Int(2))},
				OrElse: []pyast.Stmt{ret(pyast.Int(0))},
			}},
		},
		ret(pyast.Int(9)))
	res := lower(t, Options{Entry: true}, sign)
	src := res.Source
	mustContain(t, src, "if (c > 0) {", "} else if (c < 0) {", "} else {", "return 2;", "return 0;")
	if strings.Contains(src, "return 9;") {
		t.Errorf("statement after an exhaustive if/elif/else was emitted:\n%s", src)
	}
}

func TestGenerate_DropsStatementsAfterJump(t *testing.T) {
	tests := []struct {
		name string
		body []pyast.Stmt
		gone string
	}{
		{"return", []pyast.Stmt{ret(pyast.Int(1)), ret(pyast.Int(7))}, "return 7;"},
		{"raise", []pyast.Stmt{&pyast.Raise{Exc: pyast.CallName("ValueError")}, ret(pyast.Int(7))}, "return 7;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lower(t, Options{Entry: true}, def("f", nil, pyast.Id("int"), tt.body...))
			if strings.Contains(res.Source, tt.gone) {
				t.Errorf("unreachable %q was emitted:\n%s", tt.gone, res.Source)
			}
		})
	}
}

func TestGenerate_WalrusDeclaredAheadOfIf(t *testing.T) {
	f := def("f", nil, pyast.Id("int"),
		&pyast.If{
			Test: cmp(&pyast.NamedExpr{Target: pyast.Id("n"), Value: pyast.Int(3)}, pyast.Gt, pyast.Int(2)),
			Body: []pyast.Stmt{ret(pyast.Id("n"))},
		},
		ret(pyast.Int(0)))
	res := lower(t, Options{Entry: true}, f)
	src := res.Source
	mustContain(t, src, ": { n = 3; break :walrus_")
	decl, cond := strings.Index(src, "var n: i64"), strings.Index(src, "if (")
	if decl < 0 || cond < 0 || decl > cond {
		t.Errorf("walrus target is not declared ahead of the if:\n%s", src)
	}
}

func TestGenerate_MatchChain(t *testing.T) {
	f := def("f", []*pyast.Arg{arg("n", pyast.Id("int"))}, pyast.Id("int"),
		&pyast.Match{
			Subject: pyast.Id("n"),
			Cases: []*pyast.MatchCase{
				{Pattern: &pyast.MatchValue{Value: pyast.Int(1)}, Body: []pyast.Stmt{ret(pyast.Int(10))}},
				{Pattern: &pyast.MatchValue{Value: pyast.Int(2)}, Body: []pyast.Stmt{ret(pyast.Int(20))}},
				{Pattern: &pyast.MatchAs{}, Body: []pyast.Stmt{ret(pyast.Int(0))}},
			},
		})
	res := lower(t, Options{Entry: true}, f)
	src := res.Source
	mustContain(t, src, "const subject_", " = n;", "_ = &subject_", "if (", "} else if (", "} else {",
		"return 10;", "return 20;", "return 0;")
	first, second := strings.Index(src, "return 10;"), strings.Index(src, "} else if (")
	wild := strings.Index(src, "} else {")
	if first > second || second > wild {
		t.Errorf("cases are out of order:\n%s", src)
	}
}

func TestGenerate_BreakInsideTryHelper(t *testing.T) {
	body := &pyast.Try{
		Body: []pyast.Stmt{
			&pyast.If{Test: cmp(pyast.Id("x"), pyast.Eq, pyast.Int(0)), Body: []pyast.Stmt{&pyast.Break{}}},
			&pyast.If{Test: cmp(pyast.Id("x"), pyast.Lt, pyast.Int(0)), Body: []pyast.Stmt{&pyast.Continue{}}},
			pyast.AssignName("total", &pyast.BinOp{Left: pyast.Id("total"), Op: pyast.Add, Right: pyast.Id("x")}),
		},
		Handlers: []*pyast.ExceptHandler{{Type: pyast.Id("ValueError"), Body: []pyast.Stmt{&pyast.Pass{}}}},
	}
	f := def("sum_until_zero", []*pyast.Arg{arg("xs", listOf("int"))}, pyast.Id("int"),
		pyast.AssignName("total", pyast.Int(0)),
		&pyast.For{Target: pyast.Id("x"), Iter: pyast.Id("xs"), Body: []pyast.Stmt{body}},
		ret(pyast.Id("total")))
	res := lower(t, Options{Entry: true}, f)
	mustContain(t, res.Source,
		"return error.BreakRequested;",
		"return error.ContinueRequested;",
		"error.BreakRequested => break,",
		"error.ContinueRequested => continue,",
	)
}

// ---------------------------------------------------------------------------
// Indexing and slicing
// ---------------------------------------------------------------------------

func TestGenerate_Indexing(t *testing.T) {
	sub := func(v, i pyast.Expr) pyast.Expr { return &pyast.Subscript{Value: v, Slice: i} }
	tests := []struct {
		name  string
		args  []*pyast.Arg
		value pyast.Expr
		want  []string
	}{
		{"string literal", []*pyast.Arg{arg("s", pyast.Id("str"))}, sub(pyast.Id("s"), pyast.Int(0)),
			[]string{"return s[0..1];"}},
		{"string dynamic", []*pyast.Arg{arg("s", pyast.Id("str")), arg("i", pyast.Id("int"))}, sub(pyast.Id("s"), pyast.Id("i")),
			[]string{": { const str_", " = s; const at_", " = try runtime.wrapIndex(i, str_", " + 1]; }"}},
		{"string negative", []*pyast.Arg{arg("s", pyast.Id("str"))}, sub(pyast.Id("s"), &pyast.UnaryOp{Op: pyast.USub, Operand: pyast.Int(1)}),
			[]string{".len -| 1;", " + 1]; }"}},
		{"list dynamic", []*pyast.Arg{arg("xs", listOf("int")), arg("i", pyast.Id("int"))}, sub(pyast.Id("xs"), pyast.Id("i")),
			[]string{"try runtime.wrapIndex(i, seq_", ".items.len); break :index_"}},
		{"unknown", []*pyast.Arg{arg("seq", nil), arg("i", pyast.Id("int"))}, sub(pyast.Id("seq"), pyast.Id("i")),
			[]string{"runtime.lenOf(seq_", "if (comptime runtime.hasItems(@TypeOf(seq_", ".items[at_", " else seq_"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lower(t, Options{Entry: true}, def("at", tt.args, nil, ret(tt.value)))
			mustContain(t, res.Source, tt.want...)
		})
	}
}

func TestGenerate_SteppedSlices(t *testing.T) {
	neg := func(k int64) pyast.Expr { return &pyast.UnaryOp{Op: pyast.USub, Operand: pyast.Int(k)} }
	tests := []struct {
		name string
		sl   *pyast.Slice
		want []string
	}{
		{"forward", &pyast.Slice{Step: pyast.Int(2)},
			[]string{") : (i_", " += 2) try out_", ".append(src_"}},
		{"backward", &pyast.Slice{Step: neg(1)},
			[]string{": i64 = @intCast(src_", " -= 1) try out_", "[@intCast(i_"}},
		{"backward bounded", &pyast.Slice{Lower: pyast.Int(5), Upper: pyast.Int(1), Step: neg(2)},
			[]string{"@min(5, len_", " -= 2) try out_"}},
		{"dynamic", &pyast.Slice{Step: pyast.Id("k")},
			[]string{"try runtime.sliceStep(i64, allocator, src_", ", null, null, k); }"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := def("pick", []*pyast.Arg{arg("xs", listOf("int")), arg("k", pyast.Id("int"))}, listOf("int"),
				ret(&pyast.Subscript{Value: pyast.Id("xs"), Slice: tt.sl}))
			res := lower(t, Options{Entry: true}, f)
			mustContain(t, res.Source, tt.want...)
		})
	}
}

func TestGenerate_ZeroSliceStep(t *testing.T) {
	f := def("pick", []*pyast.Arg{arg("xs", listOf("int"))}, listOf("int"),
		ret(&pyast.Subscript{Value: pyast.Id("xs"), Slice: &pyast.Slice{Step: pyast.Int(0)}}))
	res := lower(t, Options{Entry: true}, f)
	if !hasDiagnostic(res, Error, "slice step cannot be zero") {
		t.Errorf("no error for a zero step: %v", res.Diagnostics)
	}
}

func TestGenerate_GetItem(t *testing.T) {
	getitem := def("__getitem__", []*pyast.Arg{arg("self", nil), arg("i", pyast.Id("int"))}, pyast.Id("int"), ret(pyast.Id("i")))
	bag := &pyast.ClassDef{Name: "Bag", Body: []pyast.Stmt{getitem}}
	index := func(name string) pyast.Expr { return &pyast.Subscript{Value: pyast.Id(name), Slice: pyast.Int(0)} }

	t.Run("class receiver", func(t *testing.T) {
		f := def("first", []*pyast.Arg{arg("b", pyast.Id("Bag"))}, pyast.Id("int"), ret(index("b")))
		res := lower(t, Options{Entry: true}, bag, f)
		mustContain(t, res.Source, "return try b.__getitem__(0);")
		if hasDiagnostic(res, Warning, "__getitem__") {
			t.Errorf("typed receiver warned: %v", res.Diagnostics)
		}
	})
	t.Run("unknown name", func(t *testing.T) {
		f := def("first", []*pyast.Arg{arg("b", nil)}, nil, ret(index("b")))
		res := lower(t, Options{Entry: true}, bag, f)
		mustContain(t, res.Source, "try b.__getitem__(0)")
		if !hasDiagnostic(res, Warning, "b has unknown type; assuming a class with __getitem__") {
			t.Errorf("no warning for the unknown receiver: %v", res.Diagnostics)
		}
	})
	t.Run("no class defines it", func(t *testing.T) {
		f := def("first", []*pyast.Arg{arg("b", nil)}, nil, ret(index("b")))
		res := lower(t, Options{Entry: true}, f)
		if strings.Contains(res.Source, "__getitem__") {
			t.Errorf("unknown receiver lowered to __getitem__ without any class defining it:\n%s", res.Source)
		}
		mustContain(t, res.Source, "runtime.hasItems")
	})
}

// ---------------------------------------------------------------------------
// Coroutine await points
// ---------------------------------------------------------------------------

func asyncDef(name string, args []*pyast.Arg, ret pyast.Expr, body ...pyast.Stmt) *pyast.FunctionDef {
	f := def(name, args, ret, body...)
	f.IsAsync = true
	return f
}

func await(v pyast.Expr) *pyast.Await { return &pyast.Await{Value: v} }

// worker is an async def returning its int argument without suspending.
func worker() *pyast.FunctionDef {
	return asyncDef("work", []*pyast.Arg{arg("n", pyast.Id("int"))}, pyast.Id("int"), ret(pyast.Id("n")))
}

// A poll function yields null until the coroutine completes, and the done
// state returns the stored result on every later poll.
func TestGenerate_PollStates(t *testing.T) {
	tick := asyncDef("tick", nil, pyast.Id("int"),
		&pyast.ExprStmt{Value: await(pyast.CallAttr(pyast.Id("asyncio"), "sleep", pyast.Float(0.5)))},
		ret(pyast.Int(1)))
	res := lower(t, Options{Entry: true}, importStmt("asyncio"), tick)
	src := res.Source

	start := between(src, ".start => {", ".await_0 => {")
	if start == "" {
		t.Fatalf("no start prong:\n%s", src)
	}
	if strings.Index(start, "frame.__state = .await_0;") > strings.Index(start, "return null;") {
		t.Errorf("start prong yields before moving to await_0:\n%s", start)
	}
	if strings.Contains(start, ".done") {
		t.Errorf("start prong completes the coroutine:\n%s", start)
	}

	resume := between(src, ".await_0 => {", ".done =>")
	ready, done := strings.Index(resume, "return null;"), strings.Index(resume, "frame.__state = .done;")
	if ready < 0 || done < 0 || ready > done {
		t.Errorf("await_0 prong does not yield null before completing:\n%s", resume)
	}
	mustContain(t, resume, "frame.__result = 1;", "return frame.__result;")
	mustContain(t, src, ".done => return frame.__result,")
}

func TestGenerate_AwaitCoroutineCall(t *testing.T) {
	outer := asyncDef("outer", nil, pyast.Id("int"),
		pyast.AssignName("v", await(pyast.CallName("work", pyast.Int(1)))),
		ret(pyast.Id("v")))
	res := lower(t, Options{Entry: true}, worker(), outer)
	mustContain(t, res.Source,
		"pub const outer_State = enum { start, await_0, done };",
		"__child_0: ?*work_Frame = null,",
		"frame.__child_0 = try work_spawn(1);",
		"(try work_poll(frame.__child_0.?)) orelse return null;",
		"allocator.destroy(frame.__child_0.?);",
		"frame.__child_0 = null;",
		"frame.v = result_",
	)
}

func TestGenerate_NestedAwaitRunsToCompletion(t *testing.T) {
	nested := asyncDef("nested", []*pyast.Arg{arg("n", pyast.Id("int"))}, pyast.Id("int"),
		&pyast.If{
			Test: cmp(pyast.Id("n"), pyast.Gt, pyast.Int(0)),
			Body: []pyast.Stmt{ret(await(pyast.CallName("work", pyast.Id("n"))))},
		},
		ret(pyast.Int(0)))
	res := lower(t, Options{Entry: true}, worker(), nested)
	mustContain(t, res.Source,
		"pub const nested_State = enum { start, done };",
		"try work_spawn(frame.n)",
		"if (try work_poll(frame_",
		"runtime.poller.wait();",
	)
	if !hasDiagnostic(res, Warning, "nested await of work(...) runs it to completion without yielding") {
		t.Errorf("no warning for the nested await: %v", res.Diagnostics)
	}
}

func TestGenerate_NestedAwaitSleepBlocks(t *testing.T) {
	nap := asyncDef("nap", []*pyast.Arg{arg("n", pyast.Id("int"))}, nil,
		&pyast.If{
			Test: cmp(pyast.Id("n"), pyast.Gt, pyast.Int(0)),
			Body: []pyast.Stmt{&pyast.ExprStmt{Value: await(pyast.CallAttr(pyast.Id("asyncio"), "sleep", pyast.Float(0.1)))}},
		})
	res := lower(t, Options{Entry: true}, importStmt("asyncio"), nap)
	mustContain(t, res.Source, "runtime.time.sleep(")
	if !hasDiagnostic(res, Warning, "nested await of asyncio.sleep blocks the thread") {
		t.Errorf("no warning for the blocking sleep: %v", res.Diagnostics)
	}
}

func TestGenerate_GatherPollsEveryChild(t *testing.T) {
	gather := pyast.CallAttr(pyast.Id("asyncio"), "gather",
		pyast.CallName("work", pyast.Int(1)), pyast.CallName("work", pyast.Int(2)))
	both := asyncDef("both", nil, listOf("int"),
		pyast.AssignName("r", await(gather)),
		ret(pyast.Id("r")))
	res := lower(t, Options{Entry: true}, importStmt("asyncio"), worker(), both)
	src := res.Source
	mustContain(t, src,
		"__results_0: std.ArrayList(i64) = undefined,",
		"__child_0_0: ?*work_Frame = null,",
		"__child_0_1: ?*work_Frame = null,",
		"frame.__results_0 = std.ArrayList(i64).init(allocator);",
		"try frame.__results_0.resize(2);",
		"frame.__child_0_0 = try work_spawn(1);",
		"frame.__child_0_1 = try work_spawn(2);",
		"frame.__results_0.items[0] = result_",
		"frame.__results_0.items[1] = result_",
		"frame.__child_0_0 = null;",
		"frame.__child_0_1 = null;",
		"frame.r = frame.__results_0;",
	)

	// Every child is polled before the point yields, so one slow child
	// does not starve the others.
	resume := between(src, ".await_0 => {", ".done =>")
	first := strings.Index(resume, "if (frame.__child_0_0) |")
	second := strings.Index(resume, "if (frame.__child_0_1) |")
	yield := strings.Index(resume, "return null;")
	if first < 0 || second < 0 || yield < 0 || !(first < second && second < yield) {
		t.Errorf("children are not all polled before yielding:\n%s", resume)
	}
	mustContain(t, resume, "= true;", "if (pending_")
}

func TestGenerate_UnsupportedAwaitCompletes(t *testing.T) {
	other := asyncDef("other", []*pyast.Arg{arg("x", pyast.Id("int"))}, nil,
		&pyast.ExprStmt{Value: await(pyast.Id("x"))})
	res := lower(t, Options{Entry: true}, other)
	mustContain(t, res.Source, "// await of x is not implemented", "frame.__state = .await_0;")
	if !hasDiagnostic(res, Warning, "await of x is not supported") {
		t.Errorf("no warning for the await: %v", res.Diagnostics)
	}
}

// ---------------------------------------------------------------------------
// Unregistered modules
// ---------------------------------------------------------------------------

func TestGenerate_UnregisteredModuleFallback(t *testing.T) {
	t.Run("no loader", func(t *testing.T) {
		res := lower(t, Options{Entry: true}, importStmt("mylib"))
		mustContain(t, res.Source, `const mylib = @import("mylib.zig");`)
	})
	t.Run("unloadable", func(t *testing.T) {
		res := lower(t, Options{Entry: true, Loader: mapLoader{}, Sink: memSink{}}, importStmt("mylib"))
		mustContain(t, res.Source, `const mylib = @import("mylib.zig");`)
		if !hasDiagnostic(res, Warning, "cannot load module mylib") {
			t.Errorf("no warning for the missing module: %v", res.Diagnostics)
		}
		if res.HasErrors() {
			t.Errorf("a missing user module is not an error: %v", res.Diagnostics)
		}
		if len(res.Modules) != 0 {
			t.Errorf("Modules = %v, want none", res.Modules)
		}
	})
}
