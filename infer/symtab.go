package infer

// ---------------------------------------------------------------------------
// SymbolTable: lexical scope stack
// ---------------------------------------------------------------------------

// Symbol is a declared name.
type Symbol struct {
	Name    string
	Type    Type
	Mutable bool // emitted as var rather than const
}

// scope is one lexical level: module, function, loop body or block.
type scope struct {
	symbols map[string]*Symbol
}

// SymbolTable is a stack of scopes. Index 0 is the module scope. Lookups walk
// from the innermost scope outwards.
type SymbolTable struct {
	scopes []scope
}

// NewSymbolTable returns a table holding only the module scope.
func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{}
	st.Push()
	return st
}

// Push enters a new innermost scope.
func (st *SymbolTable) Push() {
	st.scopes = append(st.scopes, scope{symbols: make(map[string]*Symbol)})
}

// Pop leaves the innermost scope. The module scope is never popped.
func (st *SymbolTable) Pop() {
	if len(st.scopes) > 1 {
		st.scopes = st.scopes[:len(st.scopes)-1]
	}
}

// Depth returns the index of the innermost scope.
func (st *SymbolTable) Depth() int {
	return len(st.scopes) - 1
}

// Declare binds name in the innermost scope, replacing any binding there.
func (st *SymbolTable) Declare(name string, t Type, mutable bool) *Symbol {
	return st.DeclareAt(st.Depth(), name, t, mutable)
}

// DeclareAt binds name in the scope at depth. Used by if-lowering to hoist a
// name assigned in only some branches into the enclosing scope.
func (st *SymbolTable) DeclareAt(depth int, name string, t Type, mutable bool) *Symbol {
	if depth < 0 {
		depth = 0
	}
	if depth > st.Depth() {
		depth = st.Depth()
	}
	sym := &Symbol{Name: name, Type: t, Mutable: mutable}
	st.scopes[depth].symbols[name] = sym
	return sym
}

// Lookup finds name, innermost scope first.
func (st *SymbolTable) Lookup(name string) (*Symbol, bool) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if sym, ok := st.scopes[i].symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// IsDeclared reports whether name is visible from the innermost scope.
func (st *SymbolTable) IsDeclared(name string) bool {
	_, ok := st.Lookup(name)
	return ok
}

// IsLocal reports whether name is declared in the innermost scope itself.
func (st *SymbolTable) IsLocal(name string) bool {
	_, ok := st.scopes[st.Depth()].symbols[name]
	return ok
}

// LookupDepth is Lookup that also returns the depth of the scope holding the
// binding.
func (st *SymbolTable) LookupDepth(name string) (*Symbol, int, bool) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if sym, ok := st.scopes[i].symbols[name]; ok {
			return sym, i, true
		}
	}
	return nil, -1, false
}
