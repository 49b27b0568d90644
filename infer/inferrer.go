package infer

import (
	"errors"

	"github.com/chazu/pyaot/pyast"
)

// ErrUninferable is returned when an expression's type cannot be determined.
// Callers treat it as Unknown.
var ErrUninferable = errors.New("cannot infer type")

// Inferrer is the type query interface the generator consumes.
type Inferrer interface {
	// InferExpr returns the static type of e. On failure it returns Unknown
	// and a non-nil error.
	InferExpr(e pyast.Expr) (Type, error)
	// VarType returns the recorded type of a variable.
	VarType(name string) (Type, bool)
}

// ---------------------------------------------------------------------------
// Local: best-effort, flow-insensitive inferrer over a single module
// ---------------------------------------------------------------------------

// Local infers types from literals, annotations, assignments and calls within
// one module. Variable types are kept in a single flat map shared by every
// function of the module, joined over all assignments to the same name. When
// a SymbolTable is attached, its typed symbols shadow the flat map.
type Local struct {
	classes *ClassRegistry
	symbols *SymbolTable
	vars    map[string]Type
	funcs   map[string]*pyast.FunctionDef
	returns map[*pyast.FunctionDef]Type
	pending map[*pyast.FunctionDef]bool
	params  map[*pyast.FunctionDef][]Type // joined call-site argument types
	methods map[*pyast.FunctionDef]string // method -> defining class
	overlay []map[string]Type             // comprehension targets, parameters
}

var _ Inferrer = (*Local)(nil)

// NewLocal builds an inferrer for m. classes must already hold the module's
// classes; it may be nil.
func NewLocal(m *pyast.Module, classes *ClassRegistry) *Local {
	if classes == nil {
		classes = NewClassRegistry()
	}
	l := &Local{
		classes: classes,
		vars:    make(map[string]Type),
		funcs:   make(map[string]*pyast.FunctionDef),
		returns: make(map[*pyast.FunctionDef]Type),
		pending: make(map[*pyast.FunctionDef]bool),
		params:  make(map[*pyast.FunctionDef][]Type),
		methods: make(map[*pyast.FunctionDef]string),
	}
	for _, name := range classes.Names() {
		c, _ := classes.Lookup(name)
		for _, m := range c.Methods {
			l.methods[m] = name
		}
	}
	if m == nil {
		return l
	}
	for _, s := range m.Body {
		if fn, ok := s.(*pyast.FunctionDef); ok {
			l.funcs[fn.Name] = fn
		}
	}
	// Two passes let later assignments inform earlier uses.
	for pass := 0; pass < 2; pass++ {
		l.collect(m.Body)
		clear(l.returns)
	}
	return l
}

// AttachSymbols makes VarType consult st before the module-wide map.
func (l *Local) AttachSymbols(st *SymbolTable) { l.symbols = st }

// Classes returns the class registry the inferrer resolves against.
func (l *Local) Classes() *ClassRegistry { return l.classes }

// Function returns a module-level function definition by name.
func (l *Local) Function(name string) (*pyast.FunctionDef, bool) {
	fn, ok := l.funcs[name]
	return fn, ok
}

// Record sets the module-wide type of a variable, joining with any earlier
// type.
func (l *Local) Record(name string, t Type) {
	l.vars[name] = Join(l.vars[name], t)
}

func (l *Local) collect(body []pyast.Stmt) {
	for _, s := range body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.FunctionDef:
				for i, name := range x.Args.Names() {
					if i == 0 && l.methods[x] != "" {
						continue
					}
					l.Record(name, l.ParamType(x, i))
				}
			case *pyast.Lambda:
				return false
			case *pyast.Call:
				l.collectCall(x)
			case *pyast.Assign:
				t := l.typeOf(x.Value)
				for _, target := range x.Targets {
					l.bindTarget(target, t)
				}
			case *pyast.AnnAssign:
				if name, ok := x.Target.(*pyast.Name); ok {
					t := FromAnnotation(x.Annotation, l.classes)
					if t.IsUnknown() && x.Value != nil {
						t = l.typeOf(x.Value)
					}
					l.vars[name.ID] = t
				}
			case *pyast.AugAssign:
				if name, ok := x.Target.(*pyast.Name); ok {
					l.Record(name.ID, l.typeOf(&pyast.BinOp{Left: name, Op: x.Op, Right: x.Value}))
				}
			case *pyast.For:
				l.bindTarget(x.Target, l.typeOf(x.Iter).IterElem())
			case *pyast.NamedExpr:
				l.Record(x.Target.ID, l.typeOf(x.Value))
			}
			return true
		})
	}
}

// collectCall joins argument types into the callee's parameter types and
// learns container element types from mutating method calls.
func (l *Local) collectCall(c *pyast.Call) {
	switch f := c.Func.(type) {
	case *pyast.Name:
		if fn, ok := l.funcs[f.ID]; ok {
			l.joinArgs(fn, 0, c.Args)
		} else if init, _, ok := l.classes.FindMethod(f.ID, "__init__"); ok {
			l.joinArgs(init, 1, c.Args)
		}
	case *pyast.Attribute:
		recv := l.typeOf(f.Value)
		if recv.Kind == ClassKind {
			if m, _, ok := l.classes.FindMethod(recv.Name, f.Attr); ok {
				l.joinArgs(m, 1, c.Args)
			}
			return
		}
		name, ok := f.Value.(*pyast.Name)
		if !ok || len(c.Args) == 0 {
			return
		}
		arg := c.Args[len(c.Args)-1]
		switch {
		case recv.Kind == ListKind && (f.Attr == "append" || f.Attr == "insert"):
			l.Record(name.ID, ListOf(l.typeOf(arg)))
		case recv.Kind == ListKind && f.Attr == "extend":
			l.Record(name.ID, ListOf(l.typeOf(arg).IterElem()))
		case recv.Kind == SetKind && f.Attr == "add":
			l.Record(name.ID, SetOf(l.typeOf(arg)))
		}
	}
}

func (l *Local) joinArgs(fn *pyast.FunctionDef, offset int, args []pyast.Expr) {
	ts := l.params[fn]
	for i, a := range args {
		if _, starred := a.(*pyast.Starred); starred {
			return
		}
		for len(ts) <= i+offset {
			ts = append(ts, Unknown)
		}
		ts[i+offset] = Join(ts[i+offset], l.typeOf(a))
	}
	l.params[fn] = ts
}

// ParamType returns the type of the i-th positional parameter of fn: its
// annotation, else the join of its default value and every call site's
// argument. A method's first parameter is an instance of its class.
func (l *Local) ParamType(fn *pyast.FunctionDef, i int) Type {
	if fn.Args == nil || i >= len(fn.Args.Args) {
		return Unknown
	}
	if i == 0 {
		if class := l.methods[fn]; class != "" {
			return ClassOf(class)
		}
	}
	if ann := fn.Args.Args[i].Annotation; ann != nil {
		if t := FromAnnotation(ann, l.classes); !t.IsUnknown() {
			return t
		}
	}
	t := Unknown
	if d := i - (len(fn.Args.Args) - len(fn.Args.Defaults)); d >= 0 {
		t = l.typeOf(fn.Args.Defaults[d])
	}
	if i < len(l.params[fn]) {
		t = Join(t, l.params[fn][i])
	}
	return t
}

// MethodClass returns the class defining method fn, or "".
func (l *Local) MethodClass(fn *pyast.FunctionDef) string { return l.methods[fn] }

func (l *Local) bindTarget(target pyast.Expr, t Type) {
	switch tg := target.(type) {
	case *pyast.Subscript:
		if name, ok := tg.Value.(*pyast.Name); ok {
			if vt, _ := l.VarType(name.ID); vt.Kind == DictKind {
				l.Record(name.ID, DictOf(l.typeOf(tg.Slice), t))
			}
		}
	case *pyast.Name:
		l.Record(tg.ID, t)
	case *pyast.Tuple:
		l.bindElems(tg.Elts, t)
	case *pyast.List:
		l.bindElems(tg.Elts, t)
	}
}

func (l *Local) bindElems(elts []pyast.Expr, t Type) {
	for i, e := range elts {
		et := Unknown
		switch {
		case t.Kind == TupleKind && i < len(t.Elems):
			et = t.Elems[i]
		case t.Kind == ListKind:
			et = t.ElemType()
		}
		l.bindTarget(e, et)
	}
}

// VarType implements Inferrer.
func (l *Local) VarType(name string) (Type, bool) {
	for i := len(l.overlay) - 1; i >= 0; i-- {
		if t, ok := l.overlay[i][name]; ok {
			return t, true
		}
	}
	if l.symbols != nil {
		if sym, ok := l.symbols.Lookup(name); ok && !sym.Type.IsUnknown() {
			return sym.Type, true
		}
	}
	t, ok := l.vars[name]
	return t, ok
}

// InferExpr implements Inferrer.
func (l *Local) InferExpr(e pyast.Expr) (Type, error) {
	t := l.typeOf(e)
	if t.IsUnknown() {
		return t, ErrUninferable
	}
	return t, nil
}

// ReturnType returns the declared or inferred result type of fn. For async
// functions this is the awaited result, not the coroutine.
func (l *Local) ReturnType(fn *pyast.FunctionDef) Type {
	if t, ok := l.returns[fn]; ok {
		return t
	}
	if l.pending[fn] {
		return Unknown
	}
	l.pending[fn] = true
	scope := map[string]Type{}
	for i, name := range fn.Args.Names() {
		scope[name] = l.ParamType(fn, i)
	}
	l.overlay = append(l.overlay, scope)
	t := ReturnType(fn, l.typeOf, l.classes)
	l.overlay = l.overlay[:len(l.overlay)-1]
	delete(l.pending, fn)
	l.returns[fn] = t
	return t
}

// ReturnType computes a function's result type: the return annotation when
// present, otherwise the join of every returned value's type (None when the
// function never returns a value). Nested function bodies are skipped.
func ReturnType(fn *pyast.FunctionDef, typeOf func(pyast.Expr) Type, classes *ClassRegistry) Type {
	if fn.Returns != nil {
		return FromAnnotation(fn.Returns, classes)
	}
	result := Unknown
	sawValue := false
	for _, s := range fn.Body {
		pyast.Inspect(s, func(n pyast.Node) bool {
			switch x := n.(type) {
			case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
				return false
			case *pyast.Return:
				if x.Value != nil {
					sawValue = true
					result = Join(result, typeOf(x.Value))
				}
			}
			return true
		})
	}
	if !sawValue {
		return None
	}
	return result
}

func (l *Local) typeOf(e pyast.Expr) Type {
	switch x := e.(type) {
	case nil:
		return Unknown
	case *pyast.Constant, *pyast.JoinedStr:
		return literalType(x)
	case *pyast.Name:
		if t, ok := l.VarType(x.ID); ok {
			return t
		}
		if _, ok := l.classes.Lookup(x.ID); ok {
			return ClassOf(x.ID)
		}
		return Unknown
	case *pyast.BinOp:
		return l.binOpType(x)
	case *pyast.UnaryOp:
		if x.Op == pyast.Not {
			return Bool
		}
		t := l.typeOf(x.Operand)
		if t.Kind == BoolKind {
			return Int
		}
		return t
	case *pyast.BoolOp:
		t := Unknown
		for _, v := range x.Values {
			t = Join(t, l.typeOf(v))
		}
		return t
	case *pyast.Compare:
		return Bool
	case *pyast.IfExp:
		return Join(l.typeOf(x.Body), l.typeOf(x.OrElse))
	case *pyast.List:
		return ListOf(l.joinAll(x.Elts))
	case *pyast.Set:
		return SetOf(l.joinAll(x.Elts))
	case *pyast.Tuple:
		elems := make([]Type, len(x.Elts))
		for i, el := range x.Elts {
			elems[i] = l.typeOf(el)
		}
		return TupleOf(elems...)
	case *pyast.Dict:
		var keys []pyast.Expr
		for _, k := range x.Keys {
			if k != nil {
				keys = append(keys, k)
			}
		}
		return DictOf(l.joinAll(keys), l.joinAll(x.Values))
	case *pyast.ListComp:
		return ListOf(l.withGenerators(x.Generators, func() Type { return l.typeOf(x.Elt) }))
	case *pyast.GeneratorExp:
		return ListOf(l.withGenerators(x.Generators, func() Type { return l.typeOf(x.Elt) }))
	case *pyast.SetComp:
		return SetOf(l.withGenerators(x.Generators, func() Type { return l.typeOf(x.Elt) }))
	case *pyast.DictComp:
		var k, v Type
		l.withGenerators(x.Generators, func() Type {
			k, v = l.typeOf(x.Key), l.typeOf(x.Value)
			return Unknown
		})
		return DictOf(k, v)
	case *pyast.Subscript:
		return l.subscriptType(x)
	case *pyast.Attribute:
		return l.attributeType(x)
	case *pyast.Call:
		return l.callType(x)
	case *pyast.Await:
		return l.awaitType(x)
	case *pyast.NamedExpr:
		return l.typeOf(x.Value)
	case *pyast.Starred:
		return l.typeOf(x.Value)
	}
	return Unknown
}

func (l *Local) joinAll(exprs []pyast.Expr) Type {
	t := Unknown
	for _, e := range exprs {
		t = Join(t, l.typeOf(e))
	}
	return t
}

func (l *Local) withGenerators(gens []*pyast.Comprehension, f func() Type) Type {
	scope := map[string]Type{}
	l.overlay = append(l.overlay, scope)
	defer func() { l.overlay = l.overlay[:len(l.overlay)-1] }()
	for _, g := range gens {
		elem := l.typeOf(g.Iter).IterElem()
		bindInto(scope, g.Target, elem)
	}
	return f()
}

func bindInto(scope map[string]Type, target pyast.Expr, t Type) {
	switch tg := target.(type) {
	case *pyast.Name:
		scope[tg.ID] = t
	case *pyast.Tuple:
		for i, e := range tg.Elts {
			et := Unknown
			if t.Kind == TupleKind && i < len(t.Elems) {
				et = t.Elems[i]
			}
			bindInto(scope, e, et)
		}
	}
}

func (l *Local) binOpType(x *pyast.BinOp) Type {
	lt, rt := l.typeOf(x.Left), l.typeOf(x.Right)
	if lt.Kind == ClassKind {
		if m, _, ok := l.classes.FindMethod(lt.Name, magicMethods[x.Op]); ok {
			if m.Returns != nil {
				return FromAnnotation(m.Returns, l.classes)
			}
			return lt
		}
	}
	switch x.Op {
	case pyast.Add:
		if lt.Kind == StringKind || rt.Kind == StringKind {
			return String
		}
		if lt.Kind == ListKind {
			return lt
		}
	case pyast.Mult:
		if lt.Kind == StringKind || rt.Kind == StringKind {
			return String
		}
		if lt.Kind == ListKind {
			return lt
		}
		if rt.Kind == ListKind {
			return rt
		}
	case pyast.Div:
		return Float
	case pyast.Mod:
		if lt.Kind == StringKind {
			return String // printf-style formatting
		}
	case pyast.BitOr, pyast.BitAnd, pyast.BitXor, pyast.LShift, pyast.RShift:
		if lt.Kind == SetKind {
			return lt
		}
		return Int
	}
	if lt.Kind == FloatKind || rt.Kind == FloatKind {
		return Float
	}
	if lt.IsNumeric() && rt.IsNumeric() {
		return Int
	}
	return Join(lt, rt)
}

// magicMethods maps binary operators to their overloading method names.
var magicMethods = map[pyast.Operator]string{
	pyast.Add:      "__add__",
	pyast.Sub:      "__sub__",
	pyast.Mult:     "__mul__",
	pyast.Div:      "__truediv__",
	pyast.FloorDiv: "__floordiv__",
	pyast.Mod:      "__mod__",
	pyast.Pow:      "__pow__",
	pyast.MatMult:  "__matmul__",
	pyast.BitAnd:   "__and__",
	pyast.BitOr:    "__or__",
	pyast.BitXor:   "__xor__",
	pyast.LShift:   "__lshift__",
	pyast.RShift:   "__rshift__",
}

// MagicMethod returns the dunder method overloading op.
func MagicMethod(op pyast.Operator) string { return magicMethods[op] }

func (l *Local) subscriptType(x *pyast.Subscript) Type {
	vt := l.typeOf(x.Value)
	if _, isSlice := x.Slice.(*pyast.Slice); isSlice {
		if vt.Kind == TupleKind {
			return Unknown
		}
		return vt
	}
	switch vt.Kind {
	case ListKind, SetKind:
		return vt.ElemType()
	case DictKind:
		return vt.ElemType()
	case StringKind:
		return String
	case CounterKind:
		return Int
	case TupleKind:
		if i, ok := IntLiteral(x.Slice); ok {
			if i < 0 {
				i += int64(len(vt.Elems))
			}
			if i >= 0 && i < int64(len(vt.Elems)) {
				return vt.Elems[i]
			}
		}
	case ClassKind:
		if m, _, ok := l.classes.FindMethod(vt.Name, "__getitem__"); ok && m.Returns != nil {
			return FromAnnotation(m.Returns, l.classes)
		}
	}
	return Unknown
}

// IntLiteral returns the value of an integer literal, including a negated
// one (-k parses as UnaryOp(USub, k)).
func IntLiteral(e pyast.Expr) (int64, bool) {
	switch x := e.(type) {
	case *pyast.Constant:
		if x.Kind == pyast.ConstInt {
			return x.Int, true
		}
	case *pyast.UnaryOp:
		if x.Op == pyast.USub {
			if v, ok := IntLiteral(x.Operand); ok {
				return -v, true
			}
		}
	}
	return 0, false
}

func (l *Local) attributeType(x *pyast.Attribute) Type {
	vt := l.typeOf(x.Value)
	if vt.Kind == ClassKind {
		if t, ok := l.classes.FieldType(vt.Name, x.Attr); ok {
			return t
		}
	}
	if mod, ok := x.Value.(*pyast.Name); ok {
		if t, ok := moduleAttrTypes[mod.ID+"."+x.Attr]; ok {
			return t
		}
	}
	return Unknown
}

var moduleAttrTypes = map[string]Type{
	"math.pi":      Float,
	"math.e":       Float,
	"math.tau":     Float,
	"math.inf":     Float,
	"math.nan":     Float,
	"sys.argv":     ListOf(String),
	"sys.platform": String,
	"sys.maxsize":  Int,
	"os.sep":       String,
}
