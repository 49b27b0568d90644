package infer

import (
	"errors"
	"testing"

	"github.com/chazu/pyaot/pyast"
)

func TestLocal_InferExpr(t *testing.T) {
	worker := &pyast.FunctionDef{
		Name:    "worker",
		IsAsync: true,
		Args:    &pyast.Arguments{Args: []*pyast.Arg{{Name: "n", Annotation: pyast.Id("int")}}},
		Returns: pyast.Id("int"),
		Body:    []pyast.Stmt{&pyast.Return{Value: pyast.Id("n")}},
	}
	m := &pyast.Module{Body: []pyast.Stmt{
		worker,
		pyast.AssignName("xs", &pyast.List{Elts: []pyast.Expr{pyast.Int(1), pyast.Int(2)}}),
		pyast.AssignName("names", &pyast.Dict{Keys: []pyast.Expr{pyast.Str("a")}, Values: []pyast.Expr{pyast.Float(1)}}),
		pyast.AssignName("s", pyast.Str("hello")),
	}}
	l := NewLocal(m, NewClassRegistry())

	sub := func(v pyast.Expr, idx pyast.Expr) pyast.Expr { return &pyast.Subscript{Value: v, Slice: idx} }
	tests := []struct {
		name string
		expr pyast.Expr
		want Type
	}{
		{"int literal", pyast.Int(3), Int},
		{"list var", pyast.Id("xs"), ListOf(Int)},
		{"list index", sub(pyast.Id("xs"), &pyast.UnaryOp{Op: pyast.USub, Operand: pyast.Int(1)}), Int},
		{"list slice", sub(pyast.Id("xs"), &pyast.Slice{Lower: pyast.Int(1)}), ListOf(Int)},
		{"dict value", sub(pyast.Id("names"), pyast.Str("a")), Float},
		{"string char", sub(pyast.Id("s"), pyast.Int(0)), String},
		{"true division", &pyast.BinOp{Left: pyast.Int(1), Op: pyast.Div, Right: pyast.Int(2)}, Float},
		{"string concat", &pyast.BinOp{Left: pyast.Id("s"), Op: pyast.Add, Right: pyast.Str("!")}, String},
		{"compare", &pyast.Compare{Left: pyast.Int(1), Ops: []pyast.CmpOp{pyast.Lt}, Comparators: []pyast.Expr{pyast.Int(2)}}, Bool},
		{"len", pyast.CallName("len", pyast.Id("xs")), Int},
		{"str method", pyast.CallAttr(pyast.Id("s"), "split"), ListOf(String)},
		{"coroutine call", pyast.CallName("worker", pyast.Int(1)), CoroutineOf("worker", Int)},
		{"await call", &pyast.Await{Value: pyast.CallName("worker", pyast.Int(1))}, Int},
		{"asyncio.run", pyast.CallAttr(pyast.Id("asyncio"), "run", pyast.CallName("worker", pyast.Int(1))), Int},
		{"list comp", &pyast.ListComp{
			Elt:        &pyast.BinOp{Left: pyast.Id("v"), Op: pyast.Mult, Right: pyast.Float(2)},
			Generators: []*pyast.Comprehension{{Target: pyast.Id("v"), Iter: pyast.Id("xs")}},
		}, ListOf(Float)},
		{"gather of spawned list", &pyast.Await{Value: pyast.CallAttr(pyast.Id("asyncio"), "gather",
			&pyast.Starred{Value: &pyast.ListComp{
				Elt:        pyast.CallName("worker", pyast.Id("i")),
				Generators: []*pyast.Comprehension{{Target: pyast.Id("i"), Iter: pyast.CallName("range", pyast.Int(3))}},
			}})}, ListOf(Int)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.InferExpr(tt.expr)
			if err != nil {
				t.Fatalf("InferExpr: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLocal_Uninferable(t *testing.T) {
	l := NewLocal(&pyast.Module{}, nil)
	got, err := l.InferExpr(pyast.Id("mystery"))
	if !errors.Is(err, ErrUninferable) || !got.IsUnknown() {
		t.Errorf("got %s, %v; want unknown, ErrUninferable", got, err)
	}
}

func TestLocal_SymbolsShadowModuleMap(t *testing.T) {
	m := &pyast.Module{Body: []pyast.Stmt{pyast.AssignName("x", pyast.Int(1))}}
	l := NewLocal(m, nil)
	st := NewSymbolTable()
	l.AttachSymbols(st)
	st.Push()
	st.Declare("x", String, false)
	if got, _ := l.VarType("x"); !got.Equal(String) {
		t.Errorf("VarType(x) = %s, want str", got)
	}
	st.Pop()
	if got, _ := l.VarType("x"); !got.Equal(Int) {
		t.Errorf("VarType(x) after pop = %s, want int", got)
	}
}

func TestReturnType(t *testing.T) {
	l := NewLocal(nil, nil)
	fn := &pyast.FunctionDef{Name: "f", Body: []pyast.Stmt{
		&pyast.If{Test: pyast.Bool(true), Body: []pyast.Stmt{&pyast.Return{Value: pyast.Int(1)}}},
		&pyast.Return{Value: pyast.Float(2)},
	}}
	if got := l.ReturnType(fn); !got.Equal(Float) {
		t.Errorf("ReturnType = %s, want float", got)
	}
	if got := l.ReturnType(&pyast.FunctionDef{Name: "g"}); !got.Equal(None) {
		t.Errorf("no returns = %s, want None", got)
	}
}

func TestFromAnnotation(t *testing.T) {
	classes := NewClassRegistry()
	classes.Register(&pyast.ClassDef{Name: "Node"})
	sub := func(base string, args ...pyast.Expr) pyast.Expr {
		var slice pyast.Expr = args[0]
		if len(args) > 1 {
			slice = &pyast.Tuple{Elts: args}
		}
		return &pyast.Subscript{Value: pyast.Id(base), Slice: slice}
	}
	tests := []struct {
		name string
		ann  pyast.Expr
		want Type
	}{
		{"int", pyast.Id("int"), Int},
		{"list", sub("list", pyast.Id("str")), ListOf(String)},
		{"typing dict", sub("Dict", pyast.Id("str"), pyast.Id("int")), DictOf(String, Int)},
		{"optional", sub("Optional", pyast.Id("Node")), OptionalOf(ClassOf("Node"))},
		{"pep604", &pyast.BinOp{Left: pyast.Id("int"), Op: pyast.BitOr, Right: pyast.None()}, OptionalOf(Int)},
		{"forward ref", pyast.Str("Node"), ClassOf("Node")},
		{"tuple", sub("tuple", pyast.Id("int"), pyast.Id("float")), TupleOf(Int, Float)},
		{"unknown", pyast.Id("Whatever"), Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromAnnotation(tt.ann, classes); !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLocal_ParamTypes(t *testing.T) {
	scale := &pyast.FunctionDef{
		Name: "scale",
		Args: &pyast.Arguments{
			Args:     []*pyast.Arg{{Name: "v"}, {Name: "factor"}},
			Defaults: []pyast.Expr{pyast.Int(2)},
		},
		Body: []pyast.Stmt{&pyast.Return{Value: &pyast.BinOp{Left: pyast.Id("v"), Op: pyast.Mult, Right: pyast.Id("factor")}}},
	}
	m := &pyast.Module{Body: []pyast.Stmt{
		scale,
		&pyast.ExprStmt{Value: pyast.CallName("scale", pyast.Float(1.5))},
		&pyast.ExprStmt{Value: pyast.CallName("scale", pyast.Int(3), pyast.Int(4))},
	}}
	l := NewLocal(m, nil)
	if got := l.ParamType(scale, 0); !got.Equal(Float) {
		t.Errorf("ParamType(v) = %s, want float", got)
	}
	if got := l.ParamType(scale, 1); !got.Equal(Int) {
		t.Errorf("ParamType(factor) = %s, want int", got)
	}
	if got := l.ReturnType(scale); !got.Equal(Float) {
		t.Errorf("ReturnType = %s, want float", got)
	}
}

func TestLocal_MethodSelf(t *testing.T) {
	area := &pyast.FunctionDef{
		Name: "area",
		Args: &pyast.Arguments{Args: []*pyast.Arg{{Name: "self"}}},
		Body: []pyast.Stmt{&pyast.Return{Value: &pyast.Attribute{Value: pyast.Id("self"), Attr: "w"}}},
	}
	init := &pyast.FunctionDef{
		Name: "__init__",
		Args: &pyast.Arguments{Args: []*pyast.Arg{{Name: "self"}, {Name: "w", Annotation: pyast.Id("float")}}},
		Body: []pyast.Stmt{&pyast.Assign{
			Targets: []pyast.Expr{&pyast.Attribute{Value: pyast.Id("self"), Attr: "w"}},
			Value:   pyast.Id("w"),
		}},
	}
	def := &pyast.ClassDef{Name: "Box", Body: []pyast.Stmt{init, area}}
	classes := NewClassRegistry()
	classes.Register(def)
	l := NewLocal(&pyast.Module{Body: []pyast.Stmt{def}}, classes)
	if got := l.MethodClass(area); got != "Box" {
		t.Errorf("MethodClass = %q, want Box", got)
	}
	if got := l.ReturnType(area); !got.Equal(Float) {
		t.Errorf("ReturnType(area) = %s, want float", got)
	}
}

func TestLocal_ContainerElementsFromUse(t *testing.T) {
	m := &pyast.Module{Body: []pyast.Stmt{
		pyast.AssignName("xs", &pyast.List{}),
		&pyast.ExprStmt{Value: pyast.CallAttr(pyast.Id("xs"), "append", pyast.Str("a"))},
		pyast.AssignName("seen", pyast.CallName("set")),
		&pyast.ExprStmt{Value: pyast.CallAttr(pyast.Id("seen"), "add", pyast.Int(1))},
		pyast.AssignName("d", &pyast.Dict{}),
		&pyast.Assign{
			Targets: []pyast.Expr{&pyast.Subscript{Value: pyast.Id("d"), Slice: pyast.Str("k")}},
			Value:   pyast.Float(1),
		},
	}}
	l := NewLocal(m, nil)
	tests := []struct {
		name string
		want Type
	}{
		{"xs", ListOf(String)},
		{"seen", SetOf(Int)},
		{"d", DictOf(String, Float)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := l.VarType(tt.name); !got.Equal(tt.want) {
				t.Errorf("VarType(%s) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}
