package pyast

import (
	"reflect"
	"testing"
)

func TestAssignedNames(t *testing.T) {
	body := []Stmt{
		AssignName("a", Int(1)),
		&Assign{Targets: []Expr{&Tuple{Elts: []Expr{Id("b"), &Starred{Value: Id("c")}}}}, Value: Id("t")},
		&AugAssign{Target: Id("a"), Op: Add, Value: Int(1)},
		&For{Target: Id("i"), Iter: CallName("range", Int(3)), Body: []Stmt{
			AssignName("d", Id("i")),
		}},
		&If{Test: &NamedExpr{Target: Id("w"), Value: Int(2)}, Body: []Stmt{&Pass{}}},
		&FunctionDef{Name: "inner", Args: &Arguments{}, Body: []Stmt{AssignName("hidden", Int(0))}},
		&Assign{Targets: []Expr{&Attribute{Value: Id("self"), Attr: "x"}}, Value: Int(0)},
	}
	got := AssignedNames(body)
	want := []string{"a", "b", "c", "i", "d", "w"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AssignedNames = %v, want %v", got, want)
	}
}

func TestContainsAwait(t *testing.T) {
	await := &Await{Value: CallAttr(Id("asyncio"), "sleep", Int(1))}
	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"bare", &ExprStmt{Value: await}, true},
		{"assign", AssignName("x", await), true},
		{"nested in call", &ExprStmt{Value: CallName("print", await)}, true},
		{"none", AssignName("x", Int(1)), false},
		{"inside lambda", &ExprStmt{Value: &Lambda{Args: &Arguments{}, Body: await}}, false},
		{"inside nested def", &FunctionDef{Name: "g", Body: []Stmt{&ExprStmt{Value: await}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsAwait(tt.node); got != tt.want {
				t.Errorf("ContainsAwait = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInspect_SkipChildren(t *testing.T) {
	m := &Module{Body: []Stmt{
		&ExprStmt{Value: CallName("f", CallName("g"))},
	}}
	var calls int
	Inspect(m, func(n Node) bool {
		if _, ok := n.(*Call); ok {
			calls++
			return false
		}
		return true
	})
	if calls != 1 {
		t.Errorf("visited %d calls, want 1", calls)
	}
}
