package pyast

import (
	"errors"
	"testing"
)

const assignJSON = `{
  "_type": "Module",
  "body": [
    {"_type": "Assign", "lineno": 1, "col_offset": 0,
     "targets": [{"_type": "Name", "id": "x", "ctx": {"_type": "Store"}}],
     "value": {"_type": "List", "elts": [
        {"_type": "Constant", "value": 1},
        {"_type": "Constant", "value": 2.5},
        {"_type": "Constant", "value": "s"},
        {"_type": "Constant", "value": null},
        {"_type": "Constant", "value": true}]}},
    {"_type": "Assign", "lineno": 2, "col_offset": 0,
     "targets": [{"_type": "Name", "id": "y"}],
     "value": {"_type": "Subscript",
       "value": {"_type": "Name", "id": "x"},
       "slice": {"_type": "UnaryOp", "op": {"_type": "USub"},
                 "operand": {"_type": "Constant", "value": 1}}}}
  ],
  "type_ignores": []
}`

func TestDecode_Assign(t *testing.T) {
	m, err := Decode([]byte(assignJSON), "main")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Name != "main" {
		t.Errorf("Name = %q, want main", m.Name)
	}
	if len(m.Body) != 2 {
		t.Fatalf("len(Body) = %d, want 2", len(m.Body))
	}
	a, ok := m.Body[0].(*Assign)
	if !ok {
		t.Fatalf("Body[0] is %T, want *Assign", m.Body[0])
	}
	if a.Pos().Line != 1 {
		t.Errorf("line = %d, want 1", a.Pos().Line)
	}
	elts := a.Value.(*List).Elts
	wantKinds := []ConstKind{ConstInt, ConstFloat, ConstString, ConstNone, ConstBool}
	for i, k := range wantKinds {
		c, ok := elts[i].(*Constant)
		if !ok || c.Kind != k {
			t.Errorf("elt %d: got %#v, want kind %d", i, elts[i], k)
		}
	}
	if c := elts[0].(*Constant); c.Int != 1 {
		t.Errorf("int value = %d, want 1", c.Int)
	}
	if c := elts[1].(*Constant); c.Float != 2.5 {
		t.Errorf("float value = %v, want 2.5", c.Float)
	}

	sub := m.Body[1].(*Assign).Value.(*Subscript)
	u, ok := sub.Slice.(*UnaryOp)
	if !ok || u.Op != USub {
		t.Errorf("slice = %#v, want USub", sub.Slice)
	}
}

func TestDecode_AsyncFunction(t *testing.T) {
	src := `{"_type": "Module", "body": [
	  {"_type": "AsyncFunctionDef", "name": "f", "lineno": 1,
	   "args": {"_type": "arguments", "posonlyargs": [], "args": [{"_type": "arg", "arg": "d"}],
	            "defaults": [], "kwonlyargs": [], "kw_defaults": []},
	   "body": [
	     {"_type": "Expr", "value": {"_type": "Await", "value": {"_type": "Call",
	        "func": {"_type": "Attribute", "value": {"_type": "Name", "id": "asyncio"}, "attr": "sleep"},
	        "args": [{"_type": "Name", "id": "d"}], "keywords": []}}},
	     {"_type": "Return", "value": {"_type": "Constant", "value": 1}}],
	   "decorator_list": [], "returns": null}]}`
	m, err := Decode([]byte(src), "main")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	fn := m.Body[0].(*FunctionDef)
	if !fn.IsAsync {
		t.Error("IsAsync = false")
	}
	if got := fn.Args.Names(); len(got) != 1 || got[0] != "d" {
		t.Errorf("Args = %v, want [d]", got)
	}
	if !ContainsAwait(fn.Body[0]) {
		t.Error("expected await in first statement")
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantBad bool
	}{
		{"not json", `{`, false},
		{"not a module", `{"_type": "Expression", "body": {}}`, true},
		{"unknown statement", `{"_type": "Module", "body": [{"_type": "Frobnicate"}]}`, true},
		{"unknown expression", `{"_type": "Module", "body": [{"_type": "Expr", "value": {"_type": "Yield"}}]}`, true},
		{"walrus target", `{"_type": "Module", "body": [{"_type": "Expr", "value": {"_type": "NamedExpr",
			"target": {"_type": "Constant", "value": 1}, "value": {"_type": "Constant", "value": 2}}}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.src), "m")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrBadTree); got != tt.wantBad {
				t.Errorf("errors.Is(err, ErrBadTree) = %v, want %v (err: %v)", got, tt.wantBad, err)
			}
		})
	}
}

func TestDecode_ImportFrom(t *testing.T) {
	src := `{"_type": "Module", "body": [
	  {"_type": "ImportFrom", "module": "json", "level": 0,
	   "names": [{"_type": "alias", "name": "loads", "asname": "ld"}]}]}`
	m, err := Decode([]byte(src), "main")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	imp := m.Body[0].(*ImportFrom)
	if imp.Module != "json" || imp.Names[0].Bound() != "ld" {
		t.Errorf("got %+v", imp)
	}
}
