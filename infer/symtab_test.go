package infer

import "testing"

func TestSymbolTable_Shadowing(t *testing.T) {
	st := NewSymbolTable()
	st.Declare("x", Int, false)

	st.Push()
	st.Declare("x", String, true)
	sym, ok := st.Lookup("x")
	if !ok || !sym.Type.Equal(String) || !sym.Mutable {
		t.Fatalf("inner lookup = %+v, %v", sym, ok)
	}
	st.Pop()

	sym, ok = st.Lookup("x")
	if !ok || !sym.Type.Equal(Int) {
		t.Fatalf("outer lookup after pop = %+v, %v", sym, ok)
	}
}

func TestSymbolTable_DeclareAt(t *testing.T) {
	st := NewSymbolTable()
	st.Push() // function
	outer := st.Depth()
	st.Push() // if branch
	st.DeclareAt(outer, "z", Int, true)
	if st.IsLocal("z") {
		t.Error("hoisted name should not be local to the branch")
	}
	st.Pop()
	if !st.IsDeclared("z") {
		t.Error("hoisted name should survive leaving the branch")
	}
	st.Pop()
	if st.IsDeclared("z") {
		t.Error("name should not leak out of the function scope")
	}
}

func TestSymbolTable_ModuleScopeNeverPopped(t *testing.T) {
	st := NewSymbolTable()
	st.Declare("g", Int, false)
	st.Pop()
	st.Pop()
	if st.Depth() != 0 || !st.IsDeclared("g") {
		t.Error("module scope was popped")
	}
}

func TestSymbolTable_LookupDepth(t *testing.T) {
	st := NewSymbolTable()
	st.Declare("g", Int, false)
	st.Push()
	st.Push()
	st.Declare("x", String, true)
	if _, d, ok := st.LookupDepth("g"); !ok || d != 0 {
		t.Errorf("LookupDepth(g) = %d, %v; want 0, true", d, ok)
	}
	if _, d, ok := st.LookupDepth("x"); !ok || d != 2 {
		t.Errorf("LookupDepth(x) = %d, %v; want 2, true", d, ok)
	}
	if _, d, ok := st.LookupDepth("nope"); ok || d != -1 {
		t.Errorf("LookupDepth(nope) = %d, %v; want -1, false", d, ok)
	}
}
