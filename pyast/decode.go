package pyast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// JSON decoding of CPython ast dumps
//
// The accepted format is the one produced by walking ast.AST objects and
// emitting {"_type": <class name>, <field>: <value>, ...}, with "lineno" and
// "col_offset" carried along. Ints and floats are distinguished by the JSON
// number text.
// ---------------------------------------------------------------------------

// ErrBadTree is returned (wrapped) when the JSON does not describe a valid tree.
var ErrBadTree = errors.New("malformed syntax tree")

type object = map[string]any

// Decode parses a JSON-encoded CPython module tree.
func Decode(data []byte, moduleName string) (*Module, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root object
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding ast json: %w", err)
	}
	if t, _ := root["_type"].(string); t != "Module" {
		return nil, fmt.Errorf("%w: root is %q, want Module", ErrBadTree, t)
	}
	d := &decoder{}
	body := d.stmts(root["body"])
	if d.err != nil {
		return nil, d.err
	}
	return &Module{Name: moduleName, Body: body}, nil
}

type decoder struct {
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrBadTree, fmt.Sprintf(format, args...))
	}
}

func typeOf(o object) string {
	t, _ := o["_type"].(string)
	return t
}

func pos(o object) Pos {
	return Pos{Line: intField(o, "lineno"), Column: intField(o, "col_offset")}
}

func intField(o object, key string) int {
	if n, ok := o[key].(json.Number); ok {
		v, err := n.Int64()
		if err == nil {
			return int(v)
		}
	}
	return 0
}

func strField(o object, key string) string {
	s, _ := o[key].(string)
	return s
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func obj(v any) object {
	o, _ := v.(map[string]any)
	return o
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (d *decoder) stmts(v any) []Stmt {
	var out []Stmt
	for _, item := range list(v) {
		if s := d.stmt(obj(item)); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (d *decoder) stmt(o object) Stmt {
	if o == nil {
		d.fail("statement is not an object")
		return nil
	}
	p := pos(o)
	switch t := typeOf(o); t {
	case "FunctionDef", "AsyncFunctionDef":
		return &FunctionDef{
			PosVal:     p,
			Name:       strField(o, "name"),
			Args:       d.arguments(obj(o["args"])),
			Body:       d.stmts(o["body"]),
			Decorators: d.exprs(o["decorator_list"]),
			Returns:    d.optExpr(o["returns"]),
			IsAsync:    t == "AsyncFunctionDef",
		}
	case "ClassDef":
		return &ClassDef{
			PosVal:     p,
			Name:       strField(o, "name"),
			Bases:      d.exprs(o["bases"]),
			Body:       d.stmts(o["body"]),
			Decorators: d.exprs(o["decorator_list"]),
		}
	case "Return":
		return &Return{PosVal: p, Value: d.optExpr(o["value"])}
	case "Assign":
		return &Assign{PosVal: p, Targets: d.exprs(o["targets"]), Value: d.expr(obj(o["value"]))}
	case "AugAssign":
		return &AugAssign{
			PosVal: p,
			Target: d.expr(obj(o["target"])),
			Op:     Operator(typeOf(obj(o["op"]))),
			Value:  d.expr(obj(o["value"])),
		}
	case "AnnAssign":
		return &AnnAssign{
			PosVal:     p,
			Target:     d.expr(obj(o["target"])),
			Annotation: d.optExpr(o["annotation"]),
			Value:      d.optExpr(o["value"]),
		}
	case "For", "AsyncFor":
		return &For{
			PosVal: p,
			Target: d.expr(obj(o["target"])),
			Iter:   d.expr(obj(o["iter"])),
			Body:   d.stmts(o["body"]),
			OrElse: d.stmts(o["orelse"]),
		}
	case "While":
		return &While{PosVal: p, Test: d.expr(obj(o["test"])), Body: d.stmts(o["body"]), OrElse: d.stmts(o["orelse"])}
	case "If":
		return &If{PosVal: p, Test: d.expr(obj(o["test"])), Body: d.stmts(o["body"]), OrElse: d.stmts(o["orelse"])}
	case "Try", "TryStar":
		n := &Try{PosVal: p, Body: d.stmts(o["body"]), OrElse: d.stmts(o["orelse"]), FinalBody: d.stmts(o["finalbody"])}
		for _, h := range list(o["handlers"]) {
			ho := obj(h)
			n.Handlers = append(n.Handlers, &ExceptHandler{
				PosVal: pos(ho),
				Type:   d.optExpr(ho["type"]),
				Name:   strField(ho, "name"),
				Body:   d.stmts(ho["body"]),
			})
		}
		return n
	case "Raise":
		return &Raise{PosVal: p, Exc: d.optExpr(o["exc"])}
	case "Assert":
		return &Assert{PosVal: p, Test: d.expr(obj(o["test"])), Msg: d.optExpr(o["msg"])}
	case "With", "AsyncWith":
		n := &With{PosVal: p, Body: d.stmts(o["body"])}
		for _, item := range list(o["items"]) {
			io := obj(item)
			n.Items = append(n.Items, &WithItem{Context: d.expr(obj(io["context_expr"])), Var: d.optExpr(io["optional_vars"])})
		}
		return n
	case "Expr":
		return &ExprStmt{PosVal: p, Value: d.expr(obj(o["value"]))}
	case "Pass":
		return &Pass{PosVal: p}
	case "Break":
		return &Break{PosVal: p}
	case "Continue":
		return &Continue{PosVal: p}
	case "Import":
		return &Import{PosVal: p, Names: aliases(o["names"])}
	case "ImportFrom":
		return &ImportFrom{PosVal: p, Module: strField(o, "module"), Names: aliases(o["names"]), Level: intField(o, "level")}
	case "Global", "Nonlocal":
		n := &Global{PosVal: p}
		for _, name := range list(o["names"]) {
			if s, ok := name.(string); ok {
				n.Names = append(n.Names, s)
			}
		}
		return n
	case "Match":
		n := &Match{PosVal: p, Subject: d.expr(obj(o["subject"]))}
		for _, c := range list(o["cases"]) {
			co := obj(c)
			n.Cases = append(n.Cases, &MatchCase{
				Pattern: d.pattern(obj(co["pattern"])),
				Guard:   d.optExpr(co["guard"]),
				Body:    d.stmts(co["body"]),
			})
		}
		return n
	default:
		d.fail("unknown statement type %q at line %d", t, p.Line)
		return nil
	}
}

func aliases(v any) []*Alias {
	var out []*Alias
	for _, a := range list(v) {
		ao := obj(a)
		out = append(out, &Alias{Name: strField(ao, "name"), AsName: strField(ao, "asname")})
	}
	return out
}

func (d *decoder) arguments(o object) *Arguments {
	args := &Arguments{}
	if o == nil {
		return args
	}
	// posonlyargs precede args positionally.
	for _, key := range []string{"posonlyargs", "args"} {
		for _, a := range list(o[key]) {
			args.Args = append(args.Args, d.arg(obj(a)))
		}
	}
	args.Defaults = d.exprs(o["defaults"])
	if v := obj(o["vararg"]); v != nil {
		args.Vararg = d.arg(v)
	}
	if k := obj(o["kwarg"]); k != nil {
		args.Kwarg = d.arg(k)
	}
	return args
}

func (d *decoder) arg(o object) *Arg {
	return &Arg{Name: strField(o, "arg"), Annotation: d.optExpr(o["annotation"])}
}

func (d *decoder) pattern(o object) Pattern {
	p := pos(o)
	switch t := typeOf(o); t {
	case "MatchValue":
		return &MatchValue{PosVal: p, Value: d.expr(obj(o["value"]))}
	case "MatchSingleton":
		c := d.constant(p, o["value"])
		return &MatchSingleton{PosVal: p, Value: c}
	case "MatchAs":
		n := &MatchAs{PosVal: p, Name: strField(o, "name")}
		if sub := obj(o["pattern"]); sub != nil {
			n.Pattern = d.pattern(sub)
		}
		return n
	case "MatchOr":
		n := &MatchOr{PosVal: p}
		for _, sub := range list(o["patterns"]) {
			n.Patterns = append(n.Patterns, d.pattern(obj(sub)))
		}
		return n
	default:
		d.fail("unsupported pattern type %q at line %d", t, p.Line)
		return &MatchAs{PosVal: p}
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (d *decoder) exprs(v any) []Expr {
	var out []Expr
	for _, item := range list(v) {
		out = append(out, d.expr(obj(item)))
	}
	return out
}

func (d *decoder) optExpr(v any) Expr {
	o := obj(v)
	if o == nil {
		return nil
	}
	return d.expr(o)
}

func (d *decoder) expr(o object) Expr {
	if o == nil {
		d.fail("expression is not an object")
		return &Constant{Kind: ConstNone}
	}
	p := pos(o)
	switch t := typeOf(o); t {
	case "Constant":
		return d.constant(p, o["value"])
	case "Name":
		return &Name{PosVal: p, ID: strField(o, "id")}
	case "BinOp":
		return &BinOp{PosVal: p, Left: d.expr(obj(o["left"])), Op: Operator(typeOf(obj(o["op"]))), Right: d.expr(obj(o["right"]))}
	case "UnaryOp":
		return &UnaryOp{PosVal: p, Op: UnaryOperator(typeOf(obj(o["op"]))), Operand: d.expr(obj(o["operand"]))}
	case "BoolOp":
		return &BoolOp{PosVal: p, Op: BoolOperator(typeOf(obj(o["op"]))), Values: d.exprs(o["values"])}
	case "Compare":
		n := &Compare{PosVal: p, Left: d.expr(obj(o["left"])), Comparators: d.exprs(o["comparators"])}
		for _, op := range list(o["ops"]) {
			n.Ops = append(n.Ops, CmpOp(typeOf(obj(op))))
		}
		return n
	case "Call":
		n := &Call{PosVal: p, Func: d.expr(obj(o["func"])), Args: d.exprs(o["args"])}
		for _, kw := range list(o["keywords"]) {
			ko := obj(kw)
			n.Keywords = append(n.Keywords, &Keyword{PosVal: pos(ko), Arg: strField(ko, "arg"), Value: d.expr(obj(ko["value"]))})
		}
		return n
	case "Attribute":
		return &Attribute{PosVal: p, Value: d.expr(obj(o["value"])), Attr: strField(o, "attr")}
	case "Subscript":
		return &Subscript{PosVal: p, Value: d.expr(obj(o["value"])), Slice: d.expr(obj(o["slice"]))}
	case "Index": // Python < 3.9 wraps subscripts
		return d.expr(obj(o["value"]))
	case "Slice":
		return &Slice{PosVal: p, Lower: d.optExpr(o["lower"]), Upper: d.optExpr(o["upper"]), Step: d.optExpr(o["step"])}
	case "List":
		return &List{PosVal: p, Elts: d.exprs(o["elts"])}
	case "Tuple":
		return &Tuple{PosVal: p, Elts: d.exprs(o["elts"])}
	case "Set":
		return &Set{PosVal: p, Elts: d.exprs(o["elts"])}
	case "Dict":
		n := &Dict{PosVal: p, Values: d.exprs(o["values"])}
		for _, k := range list(o["keys"]) {
			n.Keys = append(n.Keys, d.optExpr(k))
		}
		return n
	case "ListComp":
		return &ListComp{PosVal: p, Elt: d.expr(obj(o["elt"])), Generators: d.generators(o["generators"])}
	case "SetComp":
		return &SetComp{PosVal: p, Elt: d.expr(obj(o["elt"])), Generators: d.generators(o["generators"])}
	case "GeneratorExp":
		return &GeneratorExp{PosVal: p, Elt: d.expr(obj(o["elt"])), Generators: d.generators(o["generators"])}
	case "DictComp":
		return &DictComp{PosVal: p, Key: d.expr(obj(o["key"])), Value: d.expr(obj(o["value"])), Generators: d.generators(o["generators"])}
	case "JoinedStr":
		return &JoinedStr{PosVal: p, Values: d.exprs(o["values"])}
	case "FormattedValue":
		n := &FormattedValue{PosVal: p, Value: d.expr(obj(o["value"])), Conversion: -1}
		if c, ok := o["conversion"].(json.Number); ok {
			if v, err := c.Int64(); err == nil {
				n.Conversion = int(v)
			}
		}
		if spec := obj(o["format_spec"]); spec != nil {
			if js, ok := d.expr(spec).(*JoinedStr); ok {
				n.FormatSpec = js
			}
		}
		return n
	case "IfExp":
		return &IfExp{PosVal: p, Test: d.expr(obj(o["test"])), Body: d.expr(obj(o["body"])), OrElse: d.expr(obj(o["orelse"]))}
	case "Lambda":
		return &Lambda{PosVal: p, Args: d.arguments(obj(o["args"])), Body: d.expr(obj(o["body"]))}
	case "Await":
		return &Await{PosVal: p, Value: d.expr(obj(o["value"]))}
	case "NamedExpr":
		target, ok := d.expr(obj(o["target"])).(*Name)
		if !ok {
			d.fail("walrus target is not a name at line %d", p.Line)
			target = &Name{PosVal: p}
		}
		return &NamedExpr{PosVal: p, Target: target, Value: d.expr(obj(o["value"]))}
	case "Starred":
		return &Starred{PosVal: p, Value: d.expr(obj(o["value"]))}
	default:
		d.fail("unknown expression type %q at line %d", t, p.Line)
		return &Constant{PosVal: p, Kind: ConstNone}
	}
}

func (d *decoder) generators(v any) []*Comprehension {
	var out []*Comprehension
	for _, g := range list(v) {
		gobj := obj(g)
		out = append(out, &Comprehension{
			Target:  d.expr(obj(gobj["target"])),
			Iter:    d.expr(obj(gobj["iter"])),
			Ifs:     d.exprs(gobj["ifs"]),
			IsAsync: intField(gobj, "is_async") != 0,
		})
	}
	return out
}

func (d *decoder) constant(p Pos, v any) *Constant {
	switch x := v.(type) {
	case nil:
		return &Constant{PosVal: p, Kind: ConstNone}
	case bool:
		return &Constant{PosVal: p, Kind: ConstBool, Bool: x}
	case string:
		return &Constant{PosVal: p, Kind: ConstString, Str: x}
	case json.Number:
		text := x.String()
		if !strings.ContainsAny(text, ".eE") {
			if i, err := x.Int64(); err == nil {
				return &Constant{PosVal: p, Kind: ConstInt, Int: i}
			}
		}
		f, err := x.Float64()
		if err != nil {
			d.fail("bad numeric constant %q at line %d", text, p.Line)
		}
		return &Constant{PosVal: p, Kind: ConstFloat, Float: f}
	default:
		d.fail("unsupported constant %T at line %d", v, p.Line)
		return &Constant{PosVal: p, Kind: ConstNone}
	}
}
