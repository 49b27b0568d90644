// Package pyast defines the Python syntax tree consumed by the code generator.
//
// The tree mirrors the node set of CPython's ast module. It is produced by an
// external parser (or decoded from a JSON dump, see Decode) and is only ever
// read by the generator.
package pyast

// ---------------------------------------------------------------------------
// AST: Python syntax tree
// ---------------------------------------------------------------------------

// Pos is a source location. Only used for diagnostics.
type Pos struct {
	Line   int // 1-based line number
	Column int // 0-based column offset, as reported by CPython
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Pos
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Module is a whole compilation unit.
type Module struct {
	Name string // module name, e.g. "main" or "pkg.util"
	Body []Stmt
}

func (n *Module) Pos() Pos { return Pos{Line: 1} }
func (n *Module) node()    {}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// Operator is a binary arithmetic operator. Values match CPython node names.
type Operator string

const (
	Add      Operator = "Add"
	Sub      Operator = "Sub"
	Mult     Operator = "Mult"
	Div      Operator = "Div"
	FloorDiv Operator = "FloorDiv"
	Mod      Operator = "Mod"
	Pow      Operator = "Pow"
	LShift   Operator = "LShift"
	RShift   Operator = "RShift"
	BitOr    Operator = "BitOr"
	BitXor   Operator = "BitXor"
	BitAnd   Operator = "BitAnd"
	MatMult  Operator = "MatMult"
)

// UnaryOperator is a unary operator.
type UnaryOperator string

const (
	Not    UnaryOperator = "Not"
	USub   UnaryOperator = "USub"
	UAdd   UnaryOperator = "UAdd"
	Invert UnaryOperator = "Invert"
)

// BoolOperator is "and" or "or".
type BoolOperator string

const (
	And BoolOperator = "And"
	Or  BoolOperator = "Or"
)

// CmpOp is a comparison operator.
type CmpOp string

const (
	Eq    CmpOp = "Eq"
	NotEq CmpOp = "NotEq"
	Lt    CmpOp = "Lt"
	LtE   CmpOp = "LtE"
	Gt    CmpOp = "Gt"
	GtE   CmpOp = "GtE"
	Is    CmpOp = "Is"
	IsNot CmpOp = "IsNot"
	In    CmpOp = "In"
	NotIn CmpOp = "NotIn"
)

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// ConstKind identifies the Go field holding a Constant's value.
type ConstKind int

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
	ConstBytes
)

// Constant is a literal value.
type Constant struct {
	PosVal Pos
	Kind   ConstKind
	Int    int64
	Float  float64
	Str    string // string and bytes payload
	Bool   bool
}

func (n *Constant) Pos() Pos { return n.PosVal }
func (n *Constant) node()    {}
func (n *Constant) expr()    {}

// Name is a variable reference.
type Name struct {
	PosVal Pos
	ID     string
}

func (n *Name) Pos() Pos { return n.PosVal }
func (n *Name) node()    {}
func (n *Name) expr()    {}

// BinOp is a binary arithmetic expression.
type BinOp struct {
	PosVal Pos
	Left   Expr
	Op     Operator
	Right  Expr
}

func (n *BinOp) Pos() Pos { return n.PosVal }
func (n *BinOp) node()    {}
func (n *BinOp) expr()    {}

// UnaryOp is a unary expression.
type UnaryOp struct {
	PosVal  Pos
	Op      UnaryOperator
	Operand Expr
}

func (n *UnaryOp) Pos() Pos { return n.PosVal }
func (n *UnaryOp) node()    {}
func (n *UnaryOp) expr()    {}

// BoolOp is a chain of "and"/"or" operands.
type BoolOp struct {
	PosVal Pos
	Op     BoolOperator
	Values []Expr
}

func (n *BoolOp) Pos() Pos { return n.PosVal }
func (n *BoolOp) node()    {}
func (n *BoolOp) expr()    {}

// Compare is a (possibly chained) comparison: Left Ops[0] Comparators[0] ...
type Compare struct {
	PosVal      Pos
	Left        Expr
	Ops         []CmpOp
	Comparators []Expr
}

func (n *Compare) Pos() Pos { return n.PosVal }
func (n *Compare) node()    {}
func (n *Compare) expr()    {}

// Keyword is a keyword argument in a call. Arg is empty for **kwargs.
type Keyword struct {
	PosVal Pos
	Arg    string
	Value  Expr
}

func (n *Keyword) Pos() Pos { return n.PosVal }
func (n *Keyword) node()    {}

// Call is a function or method call.
type Call struct {
	PosVal   Pos
	Func     Expr
	Args     []Expr
	Keywords []*Keyword
}

func (n *Call) Pos() Pos { return n.PosVal }
func (n *Call) node()    {}
func (n *Call) expr()    {}

// KeywordArg returns the value of the named keyword argument, or nil.
func (n *Call) KeywordArg(name string) Expr {
	for _, kw := range n.Keywords {
		if kw.Arg == name {
			return kw.Value
		}
	}
	return nil
}

// Attribute is attribute access: Value.Attr.
type Attribute struct {
	PosVal Pos
	Value  Expr
	Attr   string
}

func (n *Attribute) Pos() Pos { return n.PosVal }
func (n *Attribute) node()    {}
func (n *Attribute) expr()    {}

// Subscript is Value[Slice]. Slice is either an index expression or a *Slice.
type Subscript struct {
	PosVal Pos
	Value  Expr
	Slice  Expr
}

func (n *Subscript) Pos() Pos { return n.PosVal }
func (n *Subscript) node()    {}
func (n *Subscript) expr()    {}

// Slice is lower:upper:step inside a subscript. Any part may be nil.
type Slice struct {
	PosVal Pos
	Lower  Expr
	Upper  Expr
	Step   Expr
}

func (n *Slice) Pos() Pos { return n.PosVal }
func (n *Slice) node()    {}
func (n *Slice) expr()    {}

// List is a list display.
type List struct {
	PosVal Pos
	Elts   []Expr
}

func (n *List) Pos() Pos { return n.PosVal }
func (n *List) node()    {}
func (n *List) expr()    {}

// Tuple is a tuple display.
type Tuple struct {
	PosVal Pos
	Elts   []Expr
}

func (n *Tuple) Pos() Pos { return n.PosVal }
func (n *Tuple) node()    {}
func (n *Tuple) expr()    {}

// Set is a set display.
type Set struct {
	PosVal Pos
	Elts   []Expr
}

func (n *Set) Pos() Pos { return n.PosVal }
func (n *Set) node()    {}
func (n *Set) expr()    {}

// Dict is a dict display. A nil key marks a **mapping unpack.
type Dict struct {
	PosVal Pos
	Keys   []Expr
	Values []Expr
}

func (n *Dict) Pos() Pos { return n.PosVal }
func (n *Dict) node()    {}
func (n *Dict) expr()    {}

// Comprehension is one "for Target in Iter if Ifs..." clause.
type Comprehension struct {
	Target  Expr
	Iter    Expr
	Ifs     []Expr
	IsAsync bool
}

// ListComp is [Elt for ...].
type ListComp struct {
	PosVal     Pos
	Elt        Expr
	Generators []*Comprehension
}

func (n *ListComp) Pos() Pos { return n.PosVal }
func (n *ListComp) node()    {}
func (n *ListComp) expr()    {}

// SetComp is {Elt for ...}.
type SetComp struct {
	PosVal     Pos
	Elt        Expr
	Generators []*Comprehension
}

func (n *SetComp) Pos() Pos { return n.PosVal }
func (n *SetComp) node()    {}
func (n *SetComp) expr()    {}

// GeneratorExp is (Elt for ...). Lowered eagerly, like a list comprehension.
type GeneratorExp struct {
	PosVal     Pos
	Elt        Expr
	Generators []*Comprehension
}

func (n *GeneratorExp) Pos() Pos { return n.PosVal }
func (n *GeneratorExp) node()    {}
func (n *GeneratorExp) expr()    {}

// DictComp is {Key: Value for ...}.
type DictComp struct {
	PosVal     Pos
	Key        Expr
	Value      Expr
	Generators []*Comprehension
}

func (n *DictComp) Pos() Pos { return n.PosVal }
func (n *DictComp) node()    {}
func (n *DictComp) expr()    {}

// JoinedStr is an f-string. Values are *Constant strings and *FormattedValue.
type JoinedStr struct {
	PosVal Pos
	Values []Expr
}

func (n *JoinedStr) Pos() Pos { return n.PosVal }
func (n *JoinedStr) node()    {}
func (n *JoinedStr) expr()    {}

// FormattedValue is a {Value!conv:spec} field inside an f-string.
type FormattedValue struct {
	PosVal     Pos
	Value      Expr
	Conversion int        // -1 none, 's', 'r' or 'a'
	FormatSpec *JoinedStr // may be nil
}

func (n *FormattedValue) Pos() Pos { return n.PosVal }
func (n *FormattedValue) node()    {}
func (n *FormattedValue) expr()    {}

// IfExp is Body if Test else OrElse.
type IfExp struct {
	PosVal Pos
	Test   Expr
	Body   Expr
	OrElse Expr
}

func (n *IfExp) Pos() Pos { return n.PosVal }
func (n *IfExp) node()    {}
func (n *IfExp) expr()    {}

// Lambda is an anonymous function.
type Lambda struct {
	PosVal Pos
	Args   *Arguments
	Body   Expr
}

func (n *Lambda) Pos() Pos { return n.PosVal }
func (n *Lambda) node()    {}
func (n *Lambda) expr()    {}

// Await suspends until Value completes.
type Await struct {
	PosVal Pos
	Value  Expr
}

func (n *Await) Pos() Pos { return n.PosVal }
func (n *Await) node()    {}
func (n *Await) expr()    {}

// NamedExpr is the walrus operator: Target := Value.
type NamedExpr struct {
	PosVal Pos
	Target *Name
	Value  Expr
}

func (n *NamedExpr) Pos() Pos { return n.PosVal }
func (n *NamedExpr) node()    {}
func (n *NamedExpr) expr()    {}

// Starred is *Value in a call or display.
type Starred struct {
	PosVal Pos
	Value  Expr
}

func (n *Starred) Pos() Pos { return n.PosVal }
func (n *Starred) node()    {}
func (n *Starred) expr()    {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Arg is a single parameter.
type Arg struct {
	Name       string
	Annotation Expr // may be nil
}

// Arguments is a parameter list. Defaults align with the tail of Args.
type Arguments struct {
	Args     []*Arg
	Defaults []Expr
	Vararg   *Arg
	Kwarg    *Arg
}

// Names returns the positional parameter names in order.
func (a *Arguments) Names() []string {
	if a == nil {
		return nil
	}
	names := make([]string, len(a.Args))
	for i, arg := range a.Args {
		names[i] = arg.Name
	}
	return names
}

// FunctionDef is a def or async def.
type FunctionDef struct {
	PosVal     Pos
	Name       string
	Args       *Arguments
	Body       []Stmt
	Decorators []Expr
	Returns    Expr // return annotation, may be nil
	IsAsync    bool
}

func (n *FunctionDef) Pos() Pos { return n.PosVal }
func (n *FunctionDef) node()    {}
func (n *FunctionDef) stmt()    {}

// ClassDef is a class definition.
type ClassDef struct {
	PosVal     Pos
	Name       string
	Bases      []Expr
	Body       []Stmt
	Decorators []Expr
}

func (n *ClassDef) Pos() Pos { return n.PosVal }
func (n *ClassDef) node()    {}
func (n *ClassDef) stmt()    {}

// Return is a return statement. Value may be nil.
type Return struct {
	PosVal Pos
	Value  Expr
}

func (n *Return) Pos() Pos { return n.PosVal }
func (n *Return) node()    {}
func (n *Return) stmt()    {}

// Assign is Targets[0] = Targets[1] = ... = Value.
type Assign struct {
	PosVal  Pos
	Targets []Expr
	Value   Expr
}

func (n *Assign) Pos() Pos { return n.PosVal }
func (n *Assign) node()    {}
func (n *Assign) stmt()    {}

// AugAssign is Target op= Value.
type AugAssign struct {
	PosVal Pos
	Target Expr
	Op     Operator
	Value  Expr
}

func (n *AugAssign) Pos() Pos { return n.PosVal }
func (n *AugAssign) node()    {}
func (n *AugAssign) stmt()    {}

// AnnAssign is Target: Annotation [= Value].
type AnnAssign struct {
	PosVal     Pos
	Target     Expr
	Annotation Expr
	Value      Expr // may be nil
}

func (n *AnnAssign) Pos() Pos { return n.PosVal }
func (n *AnnAssign) node()    {}
func (n *AnnAssign) stmt()    {}

// For is a for loop with an optional else clause.
type For struct {
	PosVal Pos
	Target Expr
	Iter   Expr
	Body   []Stmt
	OrElse []Stmt
}

func (n *For) Pos() Pos { return n.PosVal }
func (n *For) node()    {}
func (n *For) stmt()    {}

// While is a while loop with an optional else clause.
type While struct {
	PosVal Pos
	Test   Expr
	Body   []Stmt
	OrElse []Stmt
}

func (n *While) Pos() Pos { return n.PosVal }
func (n *While) node()    {}
func (n *While) stmt()    {}

// If is an if statement. An elif is an OrElse holding exactly one *If.
type If struct {
	PosVal Pos
	Test   Expr
	Body   []Stmt
	OrElse []Stmt
}

func (n *If) Pos() Pos { return n.PosVal }
func (n *If) node()    {}
func (n *If) stmt()    {}

// ExceptHandler is one except clause. Type is nil for a bare except.
type ExceptHandler struct {
	PosVal Pos
	Type   Expr
	Name   string
	Body   []Stmt
}

// Try is try/except/else/finally.
type Try struct {
	PosVal    Pos
	Body      []Stmt
	Handlers  []*ExceptHandler
	OrElse    []Stmt
	FinalBody []Stmt
}

func (n *Try) Pos() Pos { return n.PosVal }
func (n *Try) node()    {}
func (n *Try) stmt()    {}

// Raise is raise [Exc].
type Raise struct {
	PosVal Pos
	Exc    Expr // may be nil for a bare re-raise
}

func (n *Raise) Pos() Pos { return n.PosVal }
func (n *Raise) node()    {}
func (n *Raise) stmt()    {}

// Assert is assert Test[, Msg].
type Assert struct {
	PosVal Pos
	Test   Expr
	Msg    Expr
}

func (n *Assert) Pos() Pos { return n.PosVal }
func (n *Assert) node()    {}
func (n *Assert) stmt()    {}

// WithItem is one "Context as Var" clause.
type WithItem struct {
	Context Expr
	Var     Expr // may be nil
}

// With is a with statement.
type With struct {
	PosVal Pos
	Items  []*WithItem
	Body   []Stmt
}

func (n *With) Pos() Pos { return n.PosVal }
func (n *With) node()    {}
func (n *With) stmt()    {}

// ExprStmt is an expression evaluated for its side effects.
type ExprStmt struct {
	PosVal Pos
	Value  Expr
}

func (n *ExprStmt) Pos() Pos { return n.PosVal }
func (n *ExprStmt) node()    {}
func (n *ExprStmt) stmt()    {}

// Pass is the pass statement.
type Pass struct{ PosVal Pos }

func (n *Pass) Pos() Pos { return n.PosVal }
func (n *Pass) node()    {}
func (n *Pass) stmt()    {}

// Break is the break statement.
type Break struct{ PosVal Pos }

func (n *Break) Pos() Pos { return n.PosVal }
func (n *Break) node()    {}
func (n *Break) stmt()    {}

// Continue is the continue statement.
type Continue struct{ PosVal Pos }

func (n *Continue) Pos() Pos { return n.PosVal }
func (n *Continue) node()    {}
func (n *Continue) stmt()    {}

// Alias is "Name as AsName" in an import.
type Alias struct {
	Name   string
	AsName string
}

// Bound returns the name the alias binds in the importing scope.
func (a *Alias) Bound() string {
	if a.AsName != "" {
		return a.AsName
	}
	return a.Name
}

// Import is import a, b as c.
type Import struct {
	PosVal Pos
	Names  []*Alias
}

func (n *Import) Pos() Pos { return n.PosVal }
func (n *Import) node()    {}
func (n *Import) stmt()    {}

// ImportFrom is from Module import names.
type ImportFrom struct {
	PosVal Pos
	Module string
	Names  []*Alias
	Level  int
}

func (n *ImportFrom) Pos() Pos { return n.PosVal }
func (n *ImportFrom) node()    {}
func (n *ImportFrom) stmt()    {}

// Global is global a, b.
type Global struct {
	PosVal Pos
	Names  []string
}

func (n *Global) Pos() Pos { return n.PosVal }
func (n *Global) node()    {}
func (n *Global) stmt()    {}

// ---------------------------------------------------------------------------
// Structural pattern matching
// ---------------------------------------------------------------------------

// Pattern is a match-case pattern.
type Pattern interface {
	Node
	pattern() // marker method
}

// MatchValue matches by equality with Value.
type MatchValue struct {
	PosVal Pos
	Value  Expr
}

func (n *MatchValue) Pos() Pos { return n.PosVal }
func (n *MatchValue) node()    {}
func (n *MatchValue) pattern() {}

// MatchSingleton matches None, True or False.
type MatchSingleton struct {
	PosVal Pos
	Value  *Constant
}

func (n *MatchSingleton) Pos() Pos { return n.PosVal }
func (n *MatchSingleton) node()    {}
func (n *MatchSingleton) pattern() {}

// MatchAs is "Pattern as Name"; with a nil Pattern it is a capture, and with
// an empty Name as well it is the wildcard "_".
type MatchAs struct {
	PosVal  Pos
	Pattern Pattern
	Name    string
}

func (n *MatchAs) Pos() Pos { return n.PosVal }
func (n *MatchAs) node()    {}
func (n *MatchAs) pattern() {}

// MatchOr is p1 | p2 | ...
type MatchOr struct {
	PosVal   Pos
	Patterns []Pattern
}

func (n *MatchOr) Pos() Pos { return n.PosVal }
func (n *MatchOr) node()    {}
func (n *MatchOr) pattern() {}

// MatchCase is one case clause.
type MatchCase struct {
	Pattern Pattern
	Guard   Expr
	Body    []Stmt
}

// Match is a match statement.
type Match struct {
	PosVal  Pos
	Subject Expr
	Cases   []*MatchCase
}

func (n *Match) Pos() Pos { return n.PosVal }
func (n *Match) node()    {}
func (n *Match) stmt()    {}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// Int returns an int constant.
func Int(v int64) *Constant { return &Constant{Kind: ConstInt, Int: v} }

// Float returns a float constant.
func Float(v float64) *Constant { return &Constant{Kind: ConstFloat, Float: v} }

// Str returns a string constant.
func Str(v string) *Constant { return &Constant{Kind: ConstString, Str: v} }

// Bool returns a bool constant.
func Bool(v bool) *Constant { return &Constant{Kind: ConstBool, Bool: v} }

// None returns the None constant.
func None() *Constant { return &Constant{Kind: ConstNone} }

// Id returns a name reference.
func Id(name string) *Name { return &Name{ID: name} }

// CallName builds fn(args...).
func CallName(fn string, args ...Expr) *Call {
	return &Call{Func: Id(fn), Args: args}
}

// CallAttr builds recv.attr(args...).
func CallAttr(recv Expr, attr string, args ...Expr) *Call {
	return &Call{Func: &Attribute{Value: recv, Attr: attr}, Args: args}
}

// AssignName builds name = value.
func AssignName(name string, value Expr) *Assign {
	return &Assign{Targets: []Expr{Id(name)}, Value: value}
}
