package pyast

// Inspect traverses the tree rooted at n in depth-first order, calling f for
// each node. If f returns false, the children of that node are skipped.
// Nested function, lambda and class bodies are visited like any other child;
// callers that need scope boundaries check for *FunctionDef, *Lambda and
// *ClassDef themselves.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch x := n.(type) {
	case *Module:
		inspectStmts(x.Body, f)

	// Expressions
	case *Constant, *Name:
	case *BinOp:
		Inspect(x.Left, f)
		Inspect(x.Right, f)
	case *UnaryOp:
		Inspect(x.Operand, f)
	case *BoolOp:
		inspectExprs(x.Values, f)
	case *Compare:
		Inspect(x.Left, f)
		inspectExprs(x.Comparators, f)
	case *Call:
		Inspect(x.Func, f)
		inspectExprs(x.Args, f)
		for _, kw := range x.Keywords {
			Inspect(kw, f)
		}
	case *Keyword:
		Inspect(x.Value, f)
	case *Attribute:
		Inspect(x.Value, f)
	case *Subscript:
		Inspect(x.Value, f)
		Inspect(x.Slice, f)
	case *Slice:
		inspectOptional(x.Lower, f)
		inspectOptional(x.Upper, f)
		inspectOptional(x.Step, f)
	case *List:
		inspectExprs(x.Elts, f)
	case *Tuple:
		inspectExprs(x.Elts, f)
	case *Set:
		inspectExprs(x.Elts, f)
	case *Dict:
		for _, k := range x.Keys {
			inspectOptional(k, f)
		}
		inspectExprs(x.Values, f)
	case *ListComp:
		inspectGenerators(x.Generators, f)
		Inspect(x.Elt, f)
	case *SetComp:
		inspectGenerators(x.Generators, f)
		Inspect(x.Elt, f)
	case *GeneratorExp:
		inspectGenerators(x.Generators, f)
		Inspect(x.Elt, f)
	case *DictComp:
		inspectGenerators(x.Generators, f)
		Inspect(x.Key, f)
		Inspect(x.Value, f)
	case *JoinedStr:
		inspectExprs(x.Values, f)
	case *FormattedValue:
		Inspect(x.Value, f)
		if x.FormatSpec != nil {
			Inspect(x.FormatSpec, f)
		}
	case *IfExp:
		Inspect(x.Test, f)
		Inspect(x.Body, f)
		Inspect(x.OrElse, f)
	case *Lambda:
		if x.Args != nil {
			inspectExprs(x.Args.Defaults, f)
		}
		Inspect(x.Body, f)
	case *Await:
		Inspect(x.Value, f)
	case *NamedExpr:
		Inspect(x.Target, f)
		Inspect(x.Value, f)
	case *Starred:
		Inspect(x.Value, f)

	// Statements
	case *FunctionDef:
		inspectExprs(x.Decorators, f)
		if x.Args != nil {
			inspectExprs(x.Args.Defaults, f)
		}
		inspectStmts(x.Body, f)
	case *ClassDef:
		inspectExprs(x.Decorators, f)
		inspectExprs(x.Bases, f)
		inspectStmts(x.Body, f)
	case *Return:
		inspectOptional(x.Value, f)
	case *Assign:
		inspectExprs(x.Targets, f)
		Inspect(x.Value, f)
	case *AugAssign:
		Inspect(x.Target, f)
		Inspect(x.Value, f)
	case *AnnAssign:
		Inspect(x.Target, f)
		inspectOptional(x.Value, f)
	case *For:
		Inspect(x.Target, f)
		Inspect(x.Iter, f)
		inspectStmts(x.Body, f)
		inspectStmts(x.OrElse, f)
	case *While:
		Inspect(x.Test, f)
		inspectStmts(x.Body, f)
		inspectStmts(x.OrElse, f)
	case *If:
		Inspect(x.Test, f)
		inspectStmts(x.Body, f)
		inspectStmts(x.OrElse, f)
	case *Try:
		inspectStmts(x.Body, f)
		for _, h := range x.Handlers {
			inspectOptional(h.Type, f)
			inspectStmts(h.Body, f)
		}
		inspectStmts(x.OrElse, f)
		inspectStmts(x.FinalBody, f)
	case *Raise:
		inspectOptional(x.Exc, f)
	case *Assert:
		Inspect(x.Test, f)
		inspectOptional(x.Msg, f)
	case *With:
		for _, item := range x.Items {
			Inspect(item.Context, f)
			inspectOptional(item.Var, f)
		}
		inspectStmts(x.Body, f)
	case *ExprStmt:
		Inspect(x.Value, f)
	case *Match:
		Inspect(x.Subject, f)
		for _, c := range x.Cases {
			Inspect(c.Pattern, f)
			inspectOptional(c.Guard, f)
			inspectStmts(c.Body, f)
		}
	case *MatchValue:
		Inspect(x.Value, f)
	case *MatchSingleton:
		if x.Value != nil {
			Inspect(x.Value, f)
		}
	case *MatchAs:
		if x.Pattern != nil {
			Inspect(x.Pattern, f)
		}
	case *MatchOr:
		for _, p := range x.Patterns {
			Inspect(p, f)
		}
	case *Pass, *Break, *Continue, *Import, *ImportFrom, *Global:
	}
}

func inspectStmts(stmts []Stmt, f func(Node) bool) {
	for _, s := range stmts {
		Inspect(s, f)
	}
}

func inspectExprs(exprs []Expr, f func(Node) bool) {
	for _, e := range exprs {
		Inspect(e, f)
	}
}

func inspectOptional(e Expr, f func(Node) bool) {
	if e != nil {
		Inspect(e, f)
	}
}

func inspectGenerators(gens []*Comprehension, f func(Node) bool) {
	for _, g := range gens {
		Inspect(g.Iter, f)
		Inspect(g.Target, f)
		inspectExprs(g.Ifs, f)
	}
}

// ContainsAwait reports whether n contains an await expression outside of
// nested function and lambda bodies.
func ContainsAwait(n Node) bool {
	found := false
	Inspect(n, func(c Node) bool {
		if found {
			return false
		}
		switch c.(type) {
		case *Await:
			found = true
			return false
		case *FunctionDef, *Lambda:
			return c == n
		}
		return true
	})
	return found
}

// AssignedNames returns the simple names bound by assignment-like statements
// in stmts, in first-appearance order, without descending into nested
// functions or classes.
func AssignedNames(stmts []Stmt) []string {
	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, s := range stmts {
		Inspect(s, func(n Node) bool {
			switch x := n.(type) {
			case *FunctionDef, *ClassDef, *Lambda:
				return false
			case *Assign:
				for _, t := range x.Targets {
					for _, name := range TargetNames(t) {
						add(name)
					}
				}
			case *AnnAssign:
				for _, name := range TargetNames(x.Target) {
					add(name)
				}
			case *AugAssign:
				for _, name := range TargetNames(x.Target) {
					add(name)
				}
			case *For:
				for _, name := range TargetNames(x.Target) {
					add(name)
				}
			case *NamedExpr:
				add(x.Target.ID)
			case *With:
				for _, item := range x.Items {
					if item.Var != nil {
						for _, name := range TargetNames(item.Var) {
							add(name)
						}
					}
				}
			}
			return true
		})
	}
	return names
}

// TargetNames returns the names bound by an assignment target: a Name, or a
// Tuple/List of targets. Attribute and subscript targets bind nothing.
func TargetNames(target Expr) []string {
	switch t := target.(type) {
	case *Name:
		return []string{t.ID}
	case *Tuple:
		var names []string
		for _, e := range t.Elts {
			names = append(names, TargetNames(e)...)
		}
		return names
	case *List:
		var names []string
		for _, e := range t.Elts {
			names = append(names, TargetNames(e)...)
		}
		return names
	case *Starred:
		return TargetNames(t.Value)
	}
	return nil
}
