package codegen

import (
	"fmt"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Function state
// ---------------------------------------------------------------------------

// funcState is the lowering state of the function being emitted. main and
// init run with a funcState whose def is nil.
type funcState struct {
	def     *pyast.FunctionDef
	class   string     // class defining the method being lowered
	owner   string     // struct the method is emitted into
	cls     string     // name of a classmethod's class parameter
	caught  string     // Zig name of the error an except body is handling
	ret     infer.Type // result type, None for procedures
	depth   int        // symbol table depth of the function scope
	locals  map[string]*localInfo
	globals map[string]bool // names declared global
	taken   map[string]bool // Zig names declared so far
	loops   int             // enclosing loops inside the current Zig function
	helper  *helperState
	frame   *frameState
}

// helperState tracks a try body being lowered into a helper struct.
type helperState struct {
	optional bool // run returns ?T so the body can return from the caller
}

func (g *Generator) enterFunc(def *pyast.FunctionDef, class string, ret infer.Type, body []pyast.Stmt) *funcState {
	saved := g.fn
	g.pushScope()
	g.fn = &funcState{
		def:     def,
		class:   class,
		ret:     ret,
		depth:   g.symbols.Depth(),
		locals:  g.analyzeLocals(body),
		globals: map[string]bool{},
		taken:   map[string]bool{},
	}
	for _, s := range body {
		if gl, ok := s.(*pyast.Global); ok {
			for _, n := range gl.Names {
				g.fn.globals[n] = true
			}
		}
	}
	return saved
}

func (g *Generator) leaveFunc(saved *funcState) {
	g.popScope()
	g.fn = saved
}

// local returns the analysis record of name in the current function.
func (g *Generator) local(name string) *localInfo {
	if g.fn == nil {
		return &localInfo{}
	}
	if li, ok := g.fn.locals[name]; ok {
		return li
	}
	return &localInfo{}
}

// ---------------------------------------------------------------------------
// Rename scopes
// ---------------------------------------------------------------------------

func (g *Generator) pushScope() {
	g.symbols.Push()
	g.scopes = append(g.scopes, map[string]string{})
}

func (g *Generator) popScope() {
	g.symbols.Pop()
	if len(g.scopes) > 1 {
		g.scopes = g.scopes[:len(g.scopes)-1]
	}
}

// rename binds name to a Zig expression in the innermost scope.
func (g *Generator) rename(name, expr string) {
	g.scopes[len(g.scopes)-1][name] = expr
}

// ident returns the Zig expression a Python name refers to.
func (g *Generator) ident(name string) string {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if expr, ok := g.scopes[i][name]; ok {
			return expr
		}
	}
	return zig.Ident(name)
}

// isLocal reports whether name is bound inside the current function, as
// opposed to at module level or not at all.
func (g *Generator) isLocal(name string) bool {
	if g.fn == nil {
		return false
	}
	_, depth, ok := g.symbols.LookupDepth(name)
	return ok && depth >= g.fn.depth
}

// isBound reports whether an assignment to name stores into an existing
// binding rather than declaring a new local.
func (g *Generator) isBound(name string) bool {
	if _, global := g.globals[name]; global && (g.fn == nil || g.fn.def == nil || g.fn.globals[name]) {
		return true
	}
	return g.isLocal(name)
}

// zigName picks a Zig identifier for a new local, avoiding file-scope names
// and locals already declared in the function.
func (g *Generator) zigName(name string) string {
	base := zig.Ident(name)
	if !g.collides(base) {
		return base
	}
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s_%d", name, i)
		if !g.collides(cand) {
			return cand
		}
	}
}

func (g *Generator) collides(zigName string) bool {
	if g.container[zigName] {
		return true
	}
	return g.fn != nil && g.fn.taken[zigName]
}

// declare binds a new local in the innermost scope and returns its Zig name.
func (g *Generator) declare(name string, t infer.Type, mutable bool) string {
	zn := g.zigName(name)
	if g.fn != nil {
		g.fn.taken[zn] = true
	}
	g.symbols.Declare(name, t, mutable)
	if zn != zig.Ident(name) {
		g.rename(name, zn)
	} else {
		delete(g.scopes[len(g.scopes)-1], name)
	}
	return zn
}

// fresh returns an unused Zig name for a temporary.
func (g *Generator) fresh(prefix string) string {
	n := g.nextLabel(prefix)
	if g.fn != nil {
		g.fn.taken[n] = true
	}
	return n
}

// ---------------------------------------------------------------------------
// Local analysis
// ---------------------------------------------------------------------------

// localInfo summarizes how a function body uses one name.
type localInfo struct {
	stores  int  // syntactic bindings
	reads   int  // loads
	mutated bool // augmented assignment, mutating method call or container store
}

// mutable reports whether the name must be declared var.
func (li *localInfo) mutable() bool { return li.stores > 1 || li.mutated }

// mutatingMethods take their receiver by pointer in the emitted code.
var mutatingMethods = map[string]bool{
	"append": true, "extend": true, "insert": true, "pop": true, "remove": true,
	"clear": true, "add": true, "discard": true, "update": true,
	"setdefault": true, "popitem": true, "appendleft": true, "popleft": true,
}

// analyzeLocals counts stores and loads of every name in body, without
// entering nested functions or classes.
func (g *Generator) analyzeLocals(body []pyast.Stmt) map[string]*localInfo {
	info := map[string]*localInfo{}
	get := func(name string) *localInfo {
		li, ok := info[name]
		if !ok {
			li = &localInfo{}
			info[name] = li
		}
		return li
	}
	stores := map[*pyast.Name]bool{}
	var markStore func(pyast.Expr)
	markStore = func(target pyast.Expr) {
		switch t := target.(type) {
		case *pyast.Name:
			stores[t] = true
			get(t.ID).stores++
		case *pyast.Tuple:
			for _, e := range t.Elts {
				markStore(e)
			}
		case *pyast.List:
			for _, e := range t.Elts {
				markStore(e)
			}
		case *pyast.Starred:
			markStore(t.Value)
		case *pyast.Subscript:
			if n, ok := t.Value.(*pyast.Name); ok {
				if vt, _ := g.inf.VarType(n.ID); vt.Kind != infer.ListKind {
					get(n.ID).mutated = true
				}
			}
		}
	}
	for _, s := range body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.FunctionDef, *pyast.ClassDef:
				return false
			case *pyast.Assign:
				for _, t := range x.Targets {
					markStore(t)
				}
			case *pyast.AnnAssign:
				markStore(x.Target)
			case *pyast.AugAssign:
				markStore(x.Target)
				if name, ok := x.Target.(*pyast.Name); ok {
					li := get(name.ID)
					li.mutated = true
					li.reads++
				}
			case *pyast.For:
				markStore(x.Target)
			case *pyast.With:
				for _, item := range x.Items {
					if item.Var != nil {
						markStore(item.Var)
					}
				}
			case *pyast.NamedExpr:
				stores[x.Target] = true
				get(x.Target.ID).stores++
			case *pyast.Call:
				if attr, ok := x.Func.(*pyast.Attribute); ok && mutatingMethods[attr.Attr] {
					if recv, ok := attr.Value.(*pyast.Name); ok {
						get(recv.ID).mutated = true
					}
				}
			case *pyast.Name:
				if !stores[x] {
					get(x.ID).reads++
				}
			}
			return true
		})
	}
	return info
}

// reads reports whether any statement in stmts loads name.
func (g *Generator) reads(stmts []pyast.Stmt, name string) bool {
	li, ok := g.analyzeLocals(stmts)[name]
	return ok && li.reads > 0
}

// exprReads reports whether e loads name.
func exprReads(e pyast.Expr, name string) bool {
	found := false
	pyast.Inspect(e, func(n pyast.Node) bool {
		if x, ok := n.(*pyast.Name); ok && x.ID == name {
			found = true
		}
		return !found
	})
	return found
}
