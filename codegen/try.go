package codegen

import (
	"fmt"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// try / except / else / finally
// ---------------------------------------------------------------------------
//
// A try body is lowered into the run function of a local helper struct so
// that every error it raises, through try or return error.X, surfaces at a
// single catch. The helper cannot see the enclosing function's locals, so
// each one the body touches is passed by pointer. A return inside the body
// makes run return an optional the call site unwraps; break and continue
// travel as error.BreakRequested and error.ContinueRequested.

func (g *Generator) tryStmt(x *pyast.Try) {
	g.hoist(x, false)
	if len(x.Handlers) == 0 && len(x.OrElse) == 0 {
		g.tryFinally(x.FinalBody, func() {
			g.pushScope()
			g.stmts(x.Body)
			g.popScope()
		})
		return
	}
	g.tryFinally(x.FinalBody, func() { g.tryExcept(x) })
}

// tryFinally runs body with final as a deferred block when final can be
// deferred, and after body otherwise.
func (g *Generator) tryFinally(final []pyast.Stmt, body func()) {
	if len(final) == 0 {
		body()
		return
	}
	text := g.capture(g.out.indent+2, func() {
		g.pushScope()
		g.stmts(final)
		g.popScope()
	})
	if deferrable(text) {
		g.out.open("{")
		g.out.open("defer {")
		g.out.raw(text)
		g.out.close("}")
		body()
		g.out.close("}")
		return
	}
	g.Warnf(g.at, "finally block runs only when the try statement completes normally")
	g.out.open("{")
	body()
	g.out.close("}")
	g.pushScope()
	g.stmts(final)
	g.popScope()
}

// deferrable reports whether lowered statements may appear in a Zig defer,
// which forbids leaving the block early.
func deferrable(text string) bool {
	for _, kw := range []string{"try ", "return", "break", "continue"} {
		if strings.Contains(text, kw) {
			return false
		}
	}
	return true
}

// capture of one local passed to a try helper.
type tryCapture struct {
	arg   string // argument at the call site
	param string // helper parameter
}

// tryCaptures binds the locals body touches to helper parameters and
// returns them in order. Frame fields share one parameter for the frame.
func (g *Generator) tryCaptures(body []pyast.Stmt) []tryCapture {
	var caps []tryCapture
	seen := map[string]bool{}
	frameParam := ""
	for _, s := range body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
				return false
			case *pyast.Name:
				if seen[x.ID] || !g.isLocal(x.ID) {
					return true
				}
				seen[x.ID] = true
				e := g.ident(x.ID)
				switch {
				case strings.HasPrefix(e, "frame."):
					if frameParam == "" {
						frameParam = g.fresh("fp")
						caps = append(caps, tryCapture{arg: "frame", param: frameParam})
					}
					g.rename(x.ID, frameParam+strings.TrimPrefix(e, "frame"))
				case strings.HasSuffix(e, ".*"):
					p := g.fresh(zig.Ident(x.ID) + "_ptr")
					caps = append(caps, tryCapture{arg: strings.TrimSuffix(e, ".*"), param: p})
					g.rename(x.ID, p+".*")
				case strings.HasPrefix(e, "fp_") && strings.Contains(e, "."):
					// a frame field renamed by an enclosing helper
					base, rest, _ := strings.Cut(e, ".")
					p := ""
					for _, c := range caps {
						if c.arg == base {
							p = c.param
						}
					}
					if p == "" {
						p = g.fresh("fp")
						caps = append(caps, tryCapture{arg: base, param: p})
					}
					g.rename(x.ID, p+"."+rest)
				default:
					p := g.fresh(zig.Ident(x.ID) + "_ptr")
					caps = append(caps, tryCapture{arg: "&" + e, param: p})
					g.rename(x.ID, p+".*")
				}
			}
			return true
		})
	}
	return caps
}

// returns reports whether stmts contain a return outside nested functions.
func returns(stmts []pyast.Stmt) bool {
	found := false
	for _, s := range stmts {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch n.(type) {
			case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
				return false
			case *pyast.Return:
				found = true
			}
			return !found
		})
	}
	return found
}

// jumps reports which loop jumps in stmts leave a try body, that is,
// appear outside any loop of the body itself.
func jumps(stmts []pyast.Stmt) (brk, cont bool) {
	var walk func(stmts []pyast.Stmt)
	walk = func(stmts []pyast.Stmt) {
		for _, s := range stmts {
			switch x := s.(type) {
			case *pyast.Break:
				brk = true
			case *pyast.Continue:
				cont = true
			case *pyast.If:
				walk(x.Body)
				walk(x.OrElse)
			case *pyast.With:
				walk(x.Body)
			case *pyast.Try:
				walk(x.Body)
				walk(x.OrElse)
				walk(x.FinalBody)
				for _, h := range x.Handlers {
					walk(h.Body)
				}
			case *pyast.Match:
				for _, c := range x.Cases {
					walk(c.Body)
				}
			case *pyast.For:
				walk(x.OrElse)
			case *pyast.While:
				walk(x.OrElse)
			}
		}
	}
	walk(stmts)
	return brk, cont
}

func (g *Generator) tryExcept(x *pyast.Try) {
	name := g.fresh("try")
	optional := returns(x.Body)
	result := "void"
	if optional {
		result = "?" + retZig(g.fn.ret)
	}

	// Captures are renamed in a scope of their own so the handlers, the
	// else branch and the finally block see the original bindings.
	g.pushScope()
	caps := g.tryCaptures(x.Body)
	var params, args []string
	for _, c := range caps {
		params = append(params, c.param+": anytype")
		args = append(args, c.arg)
	}
	outer := g.fn
	helper := *outer
	helper.loops = 0
	helper.helper = &helperState{optional: optional}
	g.fn = &helper
	g.out.open("const %s = struct {", name)
	g.out.open("fn run(%s) anyerror!%s {", strings.Join(params, ", "), result)
	g.pushScope()
	g.stmts(x.Body)
	g.popScope()
	if optional && !terminates(x.Body) {
		g.out.line("return null;")
	}
	g.out.close("}")
	g.out.close("};")
	g.fn = outer
	g.popScope()

	call := fmt.Sprintf("%s.run(%s)", name, strings.Join(args, ", "))
	errName := g.fresh("err")
	if !optional && len(x.OrElse) == 0 {
		g.out.open("%s catch |%s| switch (%s) {", call, errName, errName)
		g.handlers(x, errName)
		g.out.close("};")
		return
	}
	maybe := g.fresh("maybe")
	if !optional {
		maybe = "_"
	}
	g.out.open("if (%s) |%s| {", call, maybe)
	if optional {
		if g.fn.ret.Kind == infer.NoneKind {
			g.out.open("if (%s != null) {", maybe)
			g.emitReturn("")
		} else {
			r := g.fresh("r")
			g.out.open("if (%s) |%s| {", maybe, r)
			g.emitReturn(r)
		}
		g.out.close("}")
	}
	g.pushScope()
	g.stmts(x.OrElse)
	g.popScope()
	g.reopen("} else |%s| switch (%s) {", errName, errName)
	g.handlers(x, errName)
	g.out.close("}")
}

// handlers emits the switch prongs matching errName against the except
// clauses of x.
func (g *Generator) handlers(x *pyast.Try, errName string) {
	brk, cont := jumps(x.Body)
	switch {
	case g.fn.loops > 0:
		if brk {
			g.out.line("error.BreakRequested => break,")
		}
		if cont {
			g.out.line("error.ContinueRequested => continue,")
		}
	case g.fn.helper != nil && (brk || cont):
		// the jump leaves an enclosing helper too
		g.out.line("error.BreakRequested, error.ContinueRequested => return %s,", errName)
	}
	listed := map[string]bool{}
	catchAll := false
	for _, h := range x.Handlers {
		var names []string
		if h.Type == nil {
			catchAll = true
		} else {
			for _, n := range exceptNames(h.Type) {
				if n == "Exception" || n == "BaseException" {
					catchAll = true
				}
				if !listed[n] {
					listed[n] = true
					names = append(names, "error."+zig.Ident(n))
				}
			}
		}
		switch {
		case catchAll:
			g.out.open("else => {")
		case len(names) == 0:
			g.Warnf(h.PosVal, "except clause is unreachable")
			continue
		default:
			g.out.open("%s => {", strings.Join(names, ", "))
		}
		g.handlerBody(h, errName)
		g.out.close("},")
		if catchAll {
			return
		}
	}
	g.out.line("else => return %s,", errName)
}

func (g *Generator) handlerBody(h *pyast.ExceptHandler, errName string) {
	g.pushScope()
	defer g.popScope()
	saved := g.fn.caught
	g.fn.caught = errName
	defer func() { g.fn.caught = saved }()
	if h.Name != "" && g.reads(h.Body, h.Name) {
		zn := g.declare(h.Name, infer.String, false)
		g.out.line("const %s = @errorName(%s);", zn, errName)
	}
	g.stmts(h.Body)
}

// exceptNames returns the exception class names an except clause matches.
func exceptNames(e pyast.Expr) []string {
	if t, ok := e.(*pyast.Tuple); ok {
		var out []string
		for _, el := range t.Elts {
			out = append(out, exceptNames(el)...)
		}
		return out
	}
	name := infer.DottedName(e)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return nil
	}
	return []string{name}
}
