package infer

import (
	"github.com/chazu/pyaot/pyast"
)

// ---------------------------------------------------------------------------
// ClassRegistry: user classes, their parents, methods and fields
// ---------------------------------------------------------------------------

// Field is an instance attribute, discovered from "self.x = ..." assignments
// in __init__ or from class-level annotations.
type Field struct {
	Name string
	Type Type
}

// ClassInfo describes one registered class.
type ClassInfo struct {
	Name    string
	Def     *pyast.ClassDef
	Parent  string // first base naming a class; "" for object
	Methods map[string]*pyast.FunctionDef
	Order   []string // method names in definition order
	Fields  []Field  // own fields, in first-assignment order
}

// ClassRegistry maps class names to their definitions. Method resolution
// walks the single-parent chain; multiple bases beyond the first are
// ignored.
type ClassRegistry struct {
	classes map[string]*ClassInfo
	order   []string
}

// NewClassRegistry creates an empty registry.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{classes: make(map[string]*ClassInfo)}
}

// Register records a class definition. Registering a name twice replaces the
// earlier definition, as rebinding does in Python.
func (r *ClassRegistry) Register(def *pyast.ClassDef) *ClassInfo {
	info := &ClassInfo{
		Name:    def.Name,
		Def:     def,
		Methods: make(map[string]*pyast.FunctionDef),
	}
	for _, b := range def.Bases {
		if n, ok := b.(*pyast.Name); ok && n.ID != "object" {
			info.Parent = n.ID
			break
		}
	}
	for _, s := range def.Body {
		switch st := s.(type) {
		case *pyast.FunctionDef:
			if _, dup := info.Methods[st.Name]; !dup {
				info.Order = append(info.Order, st.Name)
			}
			info.Methods[st.Name] = st
		case *pyast.AnnAssign:
			if n, ok := st.Target.(*pyast.Name); ok {
				info.addField(n.ID, FromAnnotation(st.Annotation, r))
			}
		}
	}
	if init, ok := info.Methods["__init__"]; ok {
		info.collectInitFields(init, r)
	}
	if _, exists := r.classes[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.classes[def.Name] = info
	return info
}

func (c *ClassInfo) addField(name string, t Type) {
	for i, f := range c.Fields {
		if f.Name == name {
			c.Fields[i].Type = Join(f.Type, t)
			return
		}
	}
	c.Fields = append(c.Fields, Field{Name: name, Type: t})
}

// Field returns the named own field.
func (c *ClassInfo) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (c *ClassInfo) collectInitFields(init *pyast.FunctionDef, r *ClassRegistry) {
	params := map[string]Type{}
	if init.Args != nil {
		for _, a := range init.Args.Args {
			params[a.Name] = FromAnnotation(a.Annotation, r)
		}
	}
	pyast.Inspect(&pyast.Module{Body: init.Body}, func(n pyast.Node) bool {
		switch s := n.(type) {
		case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
			return false
		case *pyast.Assign:
			for _, t := range s.Targets {
				if name, ok := selfAttr(t); ok {
					c.addField(name, fieldValueType(s.Value, params, r))
				}
			}
		case *pyast.AnnAssign:
			if name, ok := selfAttr(s.Target); ok {
				c.addField(name, FromAnnotation(s.Annotation, r))
			}
		}
		return true
	})
}

func selfAttr(e pyast.Expr) (string, bool) {
	a, ok := e.(*pyast.Attribute)
	if !ok {
		return "", false
	}
	if n, ok := a.Value.(*pyast.Name); ok && n.ID == "self" {
		return a.Attr, true
	}
	return "", false
}

// fieldValueType types a field initializer without a full inferrer: literals,
// annotated parameters and constructor calls.
func fieldValueType(e pyast.Expr, params map[string]Type, r *ClassRegistry) Type {
	switch v := e.(type) {
	case *pyast.Name:
		if t, ok := params[v.ID]; ok {
			return t
		}
	case *pyast.Call:
		if n, ok := v.Func.(*pyast.Name); ok {
			if _, isClass := r.Lookup(n.ID); isClass {
				return ClassOf(n.ID)
			}
		}
	}
	return literalType(e)
}

// Lookup returns the named class.
func (r *ClassRegistry) Lookup(name string) (*ClassInfo, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Names returns registered class names in registration order.
func (r *ClassRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Chain returns name followed by its registered ancestors, nearest first.
// Cyclic parent chains are cut at the first repeat.
func (r *ClassRegistry) Chain(name string) []string {
	var chain []string
	seen := map[string]bool{}
	for name != "" && !seen[name] {
		c, ok := r.classes[name]
		if !ok {
			break
		}
		seen[name] = true
		chain = append(chain, name)
		name = c.Parent
	}
	return chain
}

// FindMethod resolves method on class through the parent chain and returns
// the definition together with the name of the class that defines it.
func (r *ClassRegistry) FindMethod(class, method string) (*pyast.FunctionDef, string, bool) {
	for _, name := range r.Chain(class) {
		if m, ok := r.classes[name].Methods[method]; ok {
			return m, name, true
		}
	}
	return nil, "", false
}

// Defines reports whether class or one of its ancestors defines method.
func (r *ClassRegistry) Defines(class, method string) bool {
	_, _, ok := r.FindMethod(class, method)
	return ok
}

// AnyDefines reports whether any registered class defines method. This is a
// flow-insensitive capability check used only when the receiver's class is
// not known.
func (r *ClassRegistry) AnyDefines(method string) bool {
	for _, name := range r.order {
		if _, ok := r.classes[name].Methods[method]; ok {
			return true
		}
	}
	return false
}

// IsSubclass reports whether a is b or inherits from b. The last parent in
// the chain may be unregistered (e.g. Exception) and still matches.
func (r *ClassRegistry) IsSubclass(a, b string) bool {
	if a == b {
		return true
	}
	for _, name := range r.Chain(a) {
		if name == b || r.classes[name].Parent == b {
			return true
		}
	}
	return false
}

// AllFields returns the fields of class including inherited ones, ancestors
// first. A field redeclared by a subclass keeps its ancestor position.
func (r *ClassRegistry) AllFields(class string) []Field {
	chain := r.Chain(class)
	var fields []Field
	index := map[string]int{}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, f := range r.classes[chain[i]].Fields {
			if j, ok := index[f.Name]; ok {
				fields[j].Type = Join(fields[j].Type, f.Type)
				continue
			}
			index[f.Name] = len(fields)
			fields = append(fields, f)
		}
	}
	return fields
}

// FieldType returns the type of field on class, searching ancestors.
func (r *ClassRegistry) FieldType(class, field string) (Type, bool) {
	for _, f := range r.AllFields(class) {
		if f.Name == field {
			return f.Type, true
		}
	}
	return Unknown, false
}

// MethodSet returns every method callable on class (own and inherited),
// nearest definition winning, in a stable order: ancestors' methods first.
func (r *ClassRegistry) MethodSet(class string) []string {
	chain := r.Chain(class)
	var names []string
	seen := map[string]bool{}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, m := range r.classes[chain[i]].Order {
			if !seen[m] {
				seen[m] = true
				names = append(names, m)
			}
		}
	}
	return names
}

// RegisterAll registers a batch of classes. Field types may name classes
// defined later in the batch, so registration runs twice.
func (r *ClassRegistry) RegisterAll(defs []*pyast.ClassDef) {
	for pass := 0; pass < 2; pass++ {
		for _, d := range defs {
			r.Register(d)
		}
	}
}
