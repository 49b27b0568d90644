package codegen

import (
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------
//
// A class becomes a struct holding every field of its chain, ancestors
// first, with every method it can call flattened into it. Instances are
// heap allocated and passed as *Self. Class-level assignments become
// container variables of the class that defines them.

// classAttr is a class-level assignment whose value is computed at startup.
type classAttr struct {
	class string
	name  string
	value pyast.Expr
	t     infer.Type
}

// classAttrOwner returns the class in the chain of class that assigns attr
// at class level, or "".
func (g *Generator) classAttrOwner(class, attr string) string {
	for _, name := range g.classes.Chain(class) {
		info, _ := g.classes.Lookup(name)
		for _, s := range info.Def.Body {
			if a, ok := s.(*pyast.Assign); ok && len(a.Targets) == 1 {
				if n, ok := a.Targets[0].(*pyast.Name); ok && n.ID == attr {
					return name
				}
			}
		}
	}
	return ""
}

// dcField is one constructor parameter of a dataclass.
type dcField struct {
	name string
	typ  infer.Type
	def  pyast.Expr // default value, nil if required
}

func fieldIndex(fields []dcField, name string) int {
	for i, f := range fields {
		if f.name == name {
			return i
		}
	}
	return -1
}

// isDataclass reports whether def carries a dataclass decorator, with or
// without arguments.
func isDataclass(def *pyast.ClassDef) bool {
	for _, d := range def.Decorators {
		if c, ok := d.(*pyast.Call); ok {
			d = c.Func
		}
		switch infer.DottedName(d) {
		case "dataclass", "dataclasses.dataclass":
			return true
		}
	}
	return false
}

// dataclassFields returns the constructor fields of a dataclass, inherited
// ones first, or nil when class is not a dataclass.
func (g *Generator) dataclassFields(class string) []dcField {
	info, ok := g.classes.Lookup(class)
	if !ok || !isDataclass(info.Def) {
		return nil
	}
	fields := []dcField{}
	chain := g.classes.Chain(class)
	for i := len(chain) - 1; i >= 0; i-- {
		ci, _ := g.classes.Lookup(chain[i])
		if !isDataclass(ci.Def) {
			continue
		}
		for _, s := range ci.Def.Body {
			a, ok := s.(*pyast.AnnAssign)
			if !ok {
				continue
			}
			n, ok := a.Target.(*pyast.Name)
			if !ok || strings.HasPrefix(infer.DottedName(a.Annotation), "ClassVar") {
				continue
			}
			f := dcField{name: n.ID, typ: infer.FromAnnotation(a.Annotation, g.classes), def: fieldValue(a.Value)}
			if j := fieldIndex(fields, n.ID); j >= 0 {
				fields[j] = f
				continue
			}
			fields = append(fields, f)
		}
	}
	return fields
}

// fieldValue returns the default a class-level field value stands for:
// field(default=v) is v, field(default_factory=f) is f(), and field()
// without either has none.
func fieldValue(e pyast.Expr) pyast.Expr {
	c, ok := e.(*pyast.Call)
	if !ok {
		return e
	}
	switch infer.DottedName(c.Func) {
	case "field", "dataclasses.field":
	default:
		return e
	}
	for _, kw := range c.Keywords {
		switch kw.Arg {
		case "default":
			return kw.Value
		case "default_factory":
			return &pyast.Call{PosVal: c.PosVal, Func: kw.Value}
		}
	}
	return nil
}

// fieldDefaults returns the class-level values of annotated fields in the
// chain of class, nearest class winning.
func (g *Generator) fieldDefaults(class string) map[string]pyast.Expr {
	defs := map[string]pyast.Expr{}
	chain := g.classes.Chain(class)
	for i := len(chain) - 1; i >= 0; i-- {
		ci, _ := g.classes.Lookup(chain[i])
		for _, s := range ci.Def.Body {
			if a, ok := s.(*pyast.AnnAssign); ok && a.Value != nil {
				if n, ok := a.Target.(*pyast.Name); ok {
					if v := fieldValue(a.Value); v != nil {
						defs[n.ID] = v
					}
				}
			}
		}
	}
	return defs
}

// classDef emits one module-level class.
func (g *Generator) classDef(def *pyast.ClassDef) {
	name := def.Name
	info, ok := g.classes.Lookup(name)
	if !ok {
		g.bail(def.Pos(), "class %s was not registered", name)
	}
	for _, d := range def.Decorators {
		if !isDataclass(&pyast.ClassDef{Decorators: []pyast.Expr{d}}) {
			g.Warnf(d.Pos(), "class decorator %s is ignored", infer.DottedName(d))
		}
	}
	if len(def.Bases) > 1 {
		g.Warnf(def.Pos(), "class %s: only the first base class is inherited", name)
	}
	log.Debugf("lowering class %s", name)

	fields := g.classes.AllFields(name)
	g.out.open("pub const %s = struct {", zig.Ident(name))
	for _, f := range fields {
		g.out.line("%s: %s,", zig.Ident(f.Name), zigType(f.Type))
	}
	if len(fields) > 0 {
		g.out.blank()
	}
	g.out.line("const Self = @This();")
	g.classAttrs(info)
	g.out.blank()
	g.initFunc(name, fields)

	var coroutines []*pyast.FunctionDef
	for _, m := range g.classes.MethodSet(name) {
		fn, definer, _ := g.classes.FindMethod(name, m)
		if fn.IsAsync {
			if definer == name {
				coroutines = append(coroutines, fn)
			}
			continue
		}
		g.out.blank()
		g.at = fn.Pos()
		g.function(fn, funcDecl{name: zig.Ident(m), pub: true, class: definer, owner: name})
	}
	g.superCopies(name)
	g.out.close("};")

	for _, fn := range coroutines {
		g.out.blank()
		g.coroutine(fn, name+"_"+fn.Name, name)
	}
}

// classAttrs emits the class-level assignments of info as container
// variables. Values that are not constants are assigned at startup.
func (g *Generator) classAttrs(info *infer.ClassInfo) {
	for _, s := range info.Def.Body {
		a, ok := s.(*pyast.Assign)
		if !ok || len(a.Targets) != 1 {
			continue
		}
		n, ok := a.Targets[0].(*pyast.Name)
		if !ok {
			g.Warnf(a.Pos(), "class-level assignment to %T is ignored", a.Targets[0])
			continue
		}
		t := g.typeOf(a.Value)
		if t.IsUnknown() {
			g.Warnf(a.Pos(), "type of %s.%s is unknown; using i64", info.Name, n.ID)
			t = infer.Int
		}
		if c, ok := a.Value.(*pyast.Constant); ok && c.Kind != pyast.ConstBytes {
			g.out.line("pub var %s: %s = %s;", zig.Ident(n.ID), zigType(t), g.exprAs(c, t))
			continue
		}
		g.out.line("pub var %s: %s = undefined;", zig.Ident(n.ID), zigType(t))
		g.attrInits = append(g.attrInits, classAttr{class: info.Name, name: n.ID, value: a.Value, t: t})
	}
}

// initFunc emits init, which allocates an instance with every field at its
// default and runs __init__, or stores the fields of a dataclass.
func (g *Generator) initFunc(class string, fields []infer.Field) {
	saved := g.enterFunc(nil, class, infer.ClassOf(class), nil)
	defer g.leaveFunc(saved)
	g.fn.owner = class

	defaults := g.fieldDefaults(class)
	values := map[string]string{}
	for _, f := range fields {
		if v, ok := defaults[f.Name]; ok {
			values[f.Name] = g.exprAs(v, f.Type)
		} else {
			values[f.Name] = zigDefault(f.Type)
		}
	}

	var params, forward []string
	post := ""
	if dc := g.dataclassFields(class); dc != nil {
		for _, f := range dc {
			zn := g.declare(f.name, f.typ, false)
			params = append(params, zn+": "+zigType(f.typ))
			values[f.name] = zn
		}
		if g.classes.Defines(class, "__post_init__") {
			post = "try self.__post_init__();"
		}
	} else if init, _, ok := g.classes.FindMethod(class, "__init__"); ok && init.Args != nil {
		for i, a := range init.Args.Args {
			if i == 0 {
				continue
			}
			t := g.inf.ParamType(init, i)
			zt := "anytype"
			if !t.IsUnknown() {
				zt = zigType(t)
			}
			zn := g.declare(a.Name, t, false)
			params = append(params, zn+": "+zt)
			forward = append(forward, zn)
		}
		if v := init.Args.Vararg; v != nil {
			zn := g.declare(v.Name, infer.Unknown, false)
			params = append(params, zn+"_in: []const "+g.varargElem(init).Zig())
			forward = append(forward, zn+"_in")
		}
		post = "try self.__init__(" + strings.Join(forward, ", ") + ");"
	}

	var inits []string
	for _, f := range fields {
		inits = append(inits, "."+zig.Ident(f.Name)+" = "+values[f.Name])
	}
	g.out.open("pub fn init(%s) anyerror!*Self {", strings.Join(params, ", "))
	g.out.line("const self = try allocator.create(Self);")
	if len(inits) == 0 {
		g.out.line("self.* = .{};")
	} else {
		g.out.line("self.* = .{ %s };", strings.Join(inits, ", "))
	}
	if post != "" {
		g.out.line("%s", post)
	}
	g.out.line("return self;")
	g.out.close("}")
}

// superCopies emits, inside the struct of class, a copy of every ancestor
// method reached through super() from the methods of class, transitively.
func (g *Generator) superCopies(class string) {
	type method struct {
		def     *pyast.FunctionDef
		definer string
	}
	var work []method
	for _, m := range g.classes.MethodSet(class) {
		def, definer, _ := g.classes.FindMethod(class, m)
		work = append(work, method{def, definer})
	}
	done := map[string]bool{}
	for len(work) > 0 {
		m := work[0]
		work = work[1:]
		for _, target := range superCalls(m.def) {
			owner, def, ok := g.superTarget(m.definer, target)
			if !ok {
				continue
			}
			copyName := superName(owner, target)
			if done[copyName] {
				continue
			}
			done[copyName] = true
			if def.IsAsync {
				g.Warnf(def.Pos(), "super() call of async method %s is not supported", target)
				continue
			}
			g.out.blank()
			g.function(def, funcDecl{name: copyName, class: owner, owner: class})
			work = append(work, method{def, owner})
		}
	}
}

// superCalls returns the methods def calls through super(), in order.
func superCalls(def *pyast.FunctionDef) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range def.Body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
				return false
			case *pyast.Call:
				if f, ok := x.Func.(*pyast.Attribute); ok && isSuper(f.Value) && !seen[f.Attr] {
					seen[f.Attr] = true
					out = append(out, f.Attr)
				}
			}
			return true
		})
	}
	return out
}
