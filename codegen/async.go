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
// Await analysis
// ---------------------------------------------------------------------------

type awaitKind int

const (
	awaitOther awaitKind = iota
	awaitDelay
	awaitGather
	awaitCall
)

func (k awaitKind) String() string {
	return [...]string{"other", "delay", "gather", "call"}[k]
}

// awaitPoint is one suspension point in the top-level body of a coroutine.
type awaitPoint struct {
	index  int
	kind   awaitKind
	expr   *pyast.Await
	bind   pyast.Expr // assignment target of the result, nil if none
	ret    bool       // return await ...
	callee string     // frame prefix of the awaited coroutine
	stmt   int        // index of the statement in the body
}

// analyzeAwaits scans the top-level statements of body for awaits in
// statement position: a bare await, an assignment of one, or a return of
// one. Awaits anywhere else are lowered by awaitExpr.
func (g *Generator) analyzeAwaits(body []pyast.Stmt) []awaitPoint {
	var points []awaitPoint
	for i, s := range body {
		p := awaitPoint{stmt: i}
		switch x := s.(type) {
		case *pyast.ExprStmt:
			p.expr, _ = x.Value.(*pyast.Await)
		case *pyast.Assign:
			if aw, ok := x.Value.(*pyast.Await); ok && len(x.Targets) == 1 {
				p.expr, p.bind = aw, x.Targets[0]
			}
		case *pyast.AnnAssign:
			if aw, ok := x.Value.(*pyast.Await); ok {
				p.expr, p.bind = aw, x.Target
			}
		case *pyast.Return:
			p.expr, _ = x.Value.(*pyast.Await)
			p.ret = p.expr != nil
		}
		if p.expr == nil {
			continue
		}
		p.index = len(points)
		p.kind, p.callee = g.classifyAwait(p.expr)
		points = append(points, p)
	}
	return points
}

// asyncioFunc returns the asyncio function a call names, or "".
func (g *Generator) asyncioFunc(call *pyast.Call) string {
	switch f := call.Func.(type) {
	case *pyast.Attribute:
		if g.moduleOf(f.Value) == "asyncio" {
			return f.Attr
		}
	case *pyast.Name:
		if fa, ok := g.fromNames[f.ID]; ok && fa.module == "asyncio" && !g.isLocal(f.ID) {
			return fa.name
		}
	}
	return ""
}

// coroutinePrefix returns the frame prefix of a coroutine-valued
// expression without lowering it.
func (g *Generator) coroutinePrefix(e pyast.Expr) (string, bool) {
	if t := g.typeOf(e); t.Kind == infer.CoroutineKind {
		return t.Name, true
	}
	return "", false
}

func (g *Generator) classifyAwait(aw *pyast.Await) (awaitKind, string) {
	if call, ok := aw.Value.(*pyast.Call); ok {
		switch g.asyncioFunc(call) {
		case "sleep":
			if len(call.Args) == 1 {
				return awaitDelay, ""
			}
			return awaitOther, ""
		case "gather":
			if g.gatherShape(call) {
				return awaitGather, ""
			}
			return awaitOther, ""
		}
	}
	if prefix, ok := g.coroutinePrefix(aw.Value); ok {
		return awaitCall, prefix
	}
	return awaitOther, ""
}

// gatherShape reports whether a gather call is either a list of coroutine
// calls or a single starred list of coroutines.
func (g *Generator) gatherShape(call *pyast.Call) bool {
	if len(call.Args) == 0 {
		return false
	}
	if st, ok := call.Args[0].(*pyast.Starred); ok {
		t := g.typeOf(st.Value)
		return len(call.Args) == 1 && t.Kind == infer.ListKind && t.ElemType().Kind == infer.CoroutineKind
	}
	for _, a := range call.Args {
		if _, ok := g.coroutinePrefix(a); !ok {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// frameState is the lowering state of a coroutine's poll function.
type frameState struct {
	prefix string
	points []awaitPoint
}

type frameField struct {
	name string // Zig field name
	typ  string
	def  string
}

// fieldDefault is the initializer of a frame field of type t.
func fieldDefault(t infer.Type) string {
	switch t.Kind {
	case infer.IntKind, infer.UnknownKind:
		return "0"
	case infer.FloatKind:
		return "0.0"
	case infer.BoolKind:
		return "false"
	case infer.StringKind:
		return `""`
	case infer.NoneKind:
		return "{}"
	case infer.OptionalKind:
		return "null"
	}
	return "undefined"
}

// frameType types a parameter or local stored in a frame. Unknown types
// fall back to i64, which strict mode reports as an error.
func (g *Generator) frameType(def *pyast.FunctionDef, name string, t infer.Type) infer.Type {
	if !t.IsUnknown() {
		return t
	}
	if g.opts.Strict {
		g.errorf(def.Pos(), "type of %s in coroutine %s is unknown", name, def.Name)
	} else {
		g.Warnf(def.Pos(), "type of %s in coroutine %s is unknown; using i64", name, def.Name)
	}
	return infer.Int
}

// frameLocals returns the names stored in the frame of def besides its
// parameters: every name assigned in the body except global names and
// classes defined inside it.
func (g *Generator) frameLocals(def *pyast.FunctionDef, globals map[string]bool) []string {
	params := map[string]bool{}
	for _, n := range def.Args.Names() {
		params[n] = true
	}
	if def.Args.Vararg != nil {
		params[def.Args.Vararg.Name] = true
	}
	classes := map[string]bool{}
	for _, s := range def.Body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.FunctionDef, *pyast.Lambda:
				return false
			case *pyast.ClassDef:
				classes[x.Name] = true
				return false
			}
			return true
		})
	}
	var out []string
	for _, n := range pyast.AssignedNames(def.Body) {
		if !params[n] && !classes[n] && !globals[n] {
			out = append(out, n)
		}
	}
	return out
}

// coroutine emits an async def as a state enum, a frame struct, a spawn
// function and a poll function, all named after prefix.
func (g *Generator) coroutine(def *pyast.FunctionDef, prefix, owner string) {
	if def.Args == nil {
		def = &pyast.FunctionDef{PosVal: def.PosVal, Name: def.Name, Args: &pyast.Arguments{}, Body: def.Body, IsAsync: true}
	}
	if def.Args.Kwarg != nil {
		g.Warnf(def.Pos(), "**%s parameter of %s is ignored", def.Args.Kwarg.Name, def.Name)
	}
	ret := g.inf.ReturnType(def)
	if ret.IsUnknown() {
		ret = g.frameType(def, "the result", ret)
	}
	saved := g.enterFunc(def, owner, ret, def.Body)
	defer g.leaveFunc(saved)
	g.fn.owner = owner
	g.fn.taken["frame"] = true
	points := g.analyzeAwaits(def.Body)
	g.fn.frame = &frameState{prefix: prefix, points: points}

	// Parameters and locals become fields, and every reference to them
	// goes through the frame.
	var fields []frameField
	var spawnParams, inits []string
	for i, a := range def.Args.Args {
		var t infer.Type
		zt := ""
		if i == 0 && owner != "" {
			t = infer.ClassOf(owner)
			zt = "*" + zig.Ident(owner)
		} else {
			t = g.frameType(def, a.Name, g.inf.ParamType(def, i))
			zt = zigType(t)
		}
		zn := zig.Ident(a.Name)
		g.symbols.Declare(a.Name, t, true)
		g.rename(a.Name, "frame."+zn)
		fields = append(fields, frameField{zn, zt, "undefined"})
		spawnParams = append(spawnParams, zn+": "+zt)
		inits = append(inits, "."+zn+" = "+zn)
	}
	var post []string
	if v := def.Args.Vararg; v != nil {
		elem := g.varargElem(def)
		zn := zig.Ident(v.Name)
		g.symbols.Declare(v.Name, infer.ListOf(elem), true)
		g.rename(v.Name, "frame."+zn)
		fields = append(fields, frameField{zn, infer.ListOf(elem).Zig(), "undefined"})
		spawnParams = append(spawnParams, zn+"_in: []const "+elem.Zig())
		post = append(post,
			"frame."+zn+" = std.ArrayList("+elem.Zig()+").init(allocator);",
			"try frame."+zn+".appendSlice("+zn+"_in);")
	}
	for _, name := range g.frameLocals(def, g.fn.globals) {
		t, ok := g.inf.VarType(name)
		if !ok || t.IsUnknown() {
			if v := firstAssigned(name, def.Body); v != nil {
				t = g.typeOf(v)
			}
		}
		t = g.frameType(def, name, t)
		zn := zig.Ident(name)
		g.symbols.Declare(name, t, true)
		g.rename(name, "frame."+zn)
		fields = append(fields, frameField{zn, zigType(t), fieldDefault(t)})
	}
	for _, p := range points {
		fields = append(fields, g.pointFields(p)...)
	}
	fields = append(fields, frameField{"__result", retZig(ret), fieldDefault(ret)})

	states := []string{"start"}
	for _, p := range points {
		states = append(states, fmt.Sprintf("await_%d", p.index))
	}
	states = append(states, "done")

	g.out.line("pub const %s_State = enum { %s };", prefix, strings.Join(states, ", "))
	g.out.blank()
	g.out.open("pub const %s_Frame = struct {", prefix)
	g.out.line("__state: %s_State = .start,", prefix)
	for _, f := range fields {
		g.out.line("%s: %s = %s,", f.name, f.typ, f.def)
	}
	g.out.close("};")
	g.out.blank()

	g.out.open("pub fn %s_spawn(%s) !*%s_Frame {", prefix, strings.Join(spawnParams, ", "), prefix)
	g.out.line("const frame = try allocator.create(%s_Frame);", prefix)
	if len(inits) == 0 {
		g.out.line("frame.* = .{};")
	} else {
		g.out.line("frame.* = .{ %s };", strings.Join(inits, ", "))
	}
	for _, l := range post {
		g.out.line("%s", l)
	}
	g.out.line("return frame;")
	g.out.close("}")
	g.out.blank()

	g.out.open("pub fn %s_poll(frame: *%s_Frame) anyerror!?%s {", prefix, prefix, retZig(ret))
	g.out.open("switch (frame.__state) {")
	g.pollStates(def.Body, points)
	g.out.line(".done => return frame.__result,")
	g.out.close("}")
	g.out.close("}")
}

// firstAssigned returns the value first assigned to name in stmts.
func firstAssigned(name string, stmts []pyast.Stmt) pyast.Expr {
	var first pyast.Expr
	for _, s := range stmts {
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
			case *pyast.AnnAssign:
				if tn, ok := x.Target.(*pyast.Name); ok && tn.ID == name && x.Value != nil {
					first = x.Value
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
	}
	return first
}

// pointFields returns the bookkeeping fields of one await point.
func (g *Generator) pointFields(p awaitPoint) []frameField {
	i := p.index
	switch p.kind {
	case awaitDelay:
		return []frameField{{fmt.Sprintf("__timer_%d", i), "runtime.Timer", "undefined"}}
	case awaitCall:
		return []frameField{{fmt.Sprintf("__child_%d", i), "?*" + p.callee + "_Frame", "null"}}
	case awaitGather:
		call := p.expr.Value.(*pyast.Call)
		results := infer.ListOf(g.gatherElem(call))
		fields := []frameField{{fmt.Sprintf("__results_%d", i), results.Zig(), "undefined"}}
		if st, ok := call.Args[0].(*pyast.Starred); ok {
			t := g.typeOf(st.Value)
			return append(fields,
				frameField{fmt.Sprintf("__tasks_%d", i), t.Zig(), "undefined"},
				frameField{fmt.Sprintf("__fin_%d", i), "std.ArrayList(bool)", "undefined"})
		}
		for j, a := range call.Args {
			prefix, _ := g.coroutinePrefix(a)
			fields = append(fields, frameField{fmt.Sprintf("__child_%d_%d", i, j), "?*" + prefix + "_Frame", "null"})
		}
		return fields
	}
	return nil
}

// gatherElem is the result type of one gathered coroutine.
func (g *Generator) gatherElem(call *pyast.Call) infer.Type {
	t := g.typeOf(&pyast.Await{PosVal: call.PosVal, Value: call})
	if t.Kind == infer.ListKind && !t.ElemType().IsUnknown() {
		return t.ElemType()
	}
	return infer.Int
}

// ---------------------------------------------------------------------------
// Poll
// ---------------------------------------------------------------------------

// pollStates emits the switch prongs of every state but done. Statements
// between two await points run inline in the prong of the earlier one.
func (g *Generator) pollStates(body []pyast.Stmt, points []awaitPoint) {
	dead := false
	for k := 0; k <= len(points); k++ {
		state := "start"
		from := 0
		if k > 0 {
			state = fmt.Sprintf("await_%d", k-1)
			from = points[k-1].stmt + 1
		}
		to := len(body)
		if k < len(points) {
			to = points[k].stmt
		}
		if dead {
			g.out.line(".%s => unreachable,", state)
			continue
		}
		g.out.open(".%s => {", state)
		g.pushScope()
		if k > 0 && !g.resume(points[k-1]) {
			dead = true
		}
		segment := body[from:to]
		if !dead {
			g.stmts(segment)
			if terminates(segment) {
				dead = true
			}
		}
		if !dead {
			if k < len(points) {
				g.at = body[points[k].stmt].Pos()
				g.suspend(points[k])
			} else {
				g.emitReturn("")
			}
		}
		g.popScope()
		g.out.close("},")
	}
}

// suspend starts the work of await point p and yields.
func (g *Generator) suspend(p awaitPoint) {
	i := p.index
	switch p.kind {
	case awaitDelay:
		call := p.expr.Value.(*pyast.Call)
		g.out.line("frame.__timer_%d = try runtime.poller.schedule(%s);", i, registry.AsFloat(g, call.Args[0]))
	case awaitCall:
		spawn := ""
		if call, ok := p.expr.Value.(*pyast.Call); ok {
			spawn, _, _ = g.coroutineCall(call)
		}
		if spawn == "" {
			spawn = g.expr(p.expr.Value)
		}
		g.out.line("frame.__child_%d = %s;", i, spawn)
	case awaitGather:
		call := p.expr.Value.(*pyast.Call)
		elem := g.gatherElem(call).Zig()
		results := fmt.Sprintf("frame.__results_%d", i)
		g.out.line("%s = std.ArrayList(%s).init(allocator);", results, elem)
		if st, ok := call.Args[0].(*pyast.Starred); ok {
			tasks, fin := fmt.Sprintf("frame.__tasks_%d", i), fmt.Sprintf("frame.__fin_%d", i)
			g.out.line("%s = %s;", tasks, g.expr(st.Value))
			g.out.line("try %s.resize(%s.items.len);", results, tasks)
			g.out.line("%s = std.ArrayList(bool).init(allocator);", fin)
			g.out.line("try %s.appendNTimes(false, %s.items.len);", fin, tasks)
			break
		}
		g.out.line("try %s.resize(%d);", results, len(call.Args))
		for j, a := range call.Args {
			spawn := ""
			if c, ok := a.(*pyast.Call); ok {
				spawn, _, _ = g.coroutineCall(c)
			}
			if spawn == "" {
				spawn = g.expr(a)
			}
			g.out.line("frame.__child_%d_%d = %s;", i, j, spawn)
		}
	default:
		g.out.line("// await of %s is not implemented", strings.ReplaceAll(describe(p.expr.Value), "\n", " "))
		g.Warnf(p.expr.Pos(), "await of %s is not supported; it completes immediately", describe(p.expr.Value))
	}
	g.out.line("frame.__state = .await_%d;", i)
	g.out.line("return null;")
}

// resume emits the readiness check of await point p and the use of its
// result. It reports false when the point returned from the coroutine.
func (g *Generator) resume(p awaitPoint) bool {
	i := p.index
	result := ""
	switch p.kind {
	case awaitDelay:
		g.out.line("if (!runtime.poller.ready(frame.__timer_%d)) return null;", i)
	case awaitCall:
		child := fmt.Sprintf("frame.__child_%d", i)
		result = g.fresh("result")
		g.out.line("const %s = (try %s_poll(%s.?)) orelse return null;", result, p.callee, child)
		g.out.line("allocator.destroy(%s.?);", child)
		g.out.line("%s = null;", child)
	case awaitGather:
		call := p.expr.Value.(*pyast.Call)
		results := fmt.Sprintf("frame.__results_%d", i)
		pending := g.fresh("pending")
		g.out.line("var %s = false;", pending)
		if st, ok := call.Args[0].(*pyast.Starred); ok {
			prefix := g.typeOf(st.Value).ElemType().Name
			c, k, r := g.fresh("task"), g.fresh("k"), g.fresh("result")
			g.out.open("for (frame.__tasks_%d.items, 0..) |%s, %s| {", i, c, k)
			g.out.line("if (frame.__fin_%d.items[%s]) continue;", i, k)
			g.out.open("if (try %s_poll(%s)) |%s| {", prefix, c, r)
			g.out.line("%s.items[%s] = %s;", results, k, r)
			g.out.line("allocator.destroy(%s);", c)
			g.out.line("frame.__fin_%d.items[%s] = true;", i, k)
			g.reopen("} else {")
			g.out.line("%s = true;", pending)
			g.out.close("}")
			g.out.close("}")
		} else {
			for j, a := range call.Args {
				prefix, _ := g.coroutinePrefix(a)
				child := fmt.Sprintf("frame.__child_%d_%d", i, j)
				c, r := g.fresh("child"), g.fresh("result")
				g.out.open("if (%s) |%s| {", child, c)
				g.out.open("if (try %s_poll(%s)) |%s| {", prefix, c, r)
				g.out.line("%s.items[%d] = %s;", results, j, r)
				g.out.line("allocator.destroy(%s);", c)
				g.out.line("%s = null;", child)
				g.reopen("} else {")
				g.out.line("%s = true;", pending)
				g.out.close("}")
				g.out.close("}")
			}
		}
		g.out.line("if (%s) return null;", pending)
		result = results
	}
	switch {
	case p.ret:
		if result != "" && g.fn.ret.Kind == infer.NoneKind {
			g.out.line("_ = %s;", result)
			result = ""
		}
		g.emitReturn(result)
		return false
	case p.bind != nil && result != "":
		g.storeValue(p.bind, result, g.typeOf(p.expr))
	case result != "" && p.kind == awaitCall:
		g.out.line("_ = %s;", result)
	}
	return true
}

// frameReturn completes the coroutine with value, "" meaning None.
func (g *Generator) frameReturn(value string) {
	if value != "" {
		g.out.line("frame.__result = %s;", value)
	}
	g.out.line("frame.__state = .done;")
	g.out.line("return frame.__result;")
}

// describe renders a short description of an awaited expression.
func describe(e pyast.Expr) string {
	if c, ok := e.(*pyast.Call); ok {
		if name := infer.DottedName(c.Func); name != "" {
			return name + "(...)"
		}
	}
	if name := infer.DottedName(e); name != "" {
		return name
	}
	return fmt.Sprintf("%T", e)
}

// ---------------------------------------------------------------------------
// Awaits outside statement position
// ---------------------------------------------------------------------------

// awaitExpr lowers an await that is not an await point: inside a compound
// statement or a larger expression. Coroutines are driven to completion on
// the spot and delays block.
func (g *Generator) awaitExpr(x *pyast.Await) string {
	if g.fn == nil || g.fn.def == nil || !g.fn.def.IsAsync {
		return registry.CompileError(g, x.Pos(), "await outside an async function")
	}
	if call, ok := x.Value.(*pyast.Call); ok {
		switch g.asyncioFunc(call) {
		case "sleep":
			if len(call.Args) != 1 {
				return registry.CompileError(g, x.Pos(), "asyncio.sleep takes 1 argument")
			}
			g.Warnf(x.Pos(), "nested await of asyncio.sleep blocks the thread")
			return "runtime.time.sleep(" + registry.AsFloat(g, call.Args[0]) + ")"
		case "gather":
			return registry.CompileError(g, x.Pos(), "asyncio.gather is only supported as a statement-level await")
		}
		if _, ok := g.coroutinePrefix(call); ok {
			g.Warnf(x.Pos(), "nested await of %s runs it to completion without yielding", describe(call))
			return g.RunCoroutine(call)
		}
	}
	return registry.CompileError(g, x.Pos(), "await of "+describe(x.Value)+" is not supported here")
}
