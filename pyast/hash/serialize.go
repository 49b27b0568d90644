package hash

import (
	"encoding/binary"
	"math"

	"github.com/chazu/pyaot/pyast"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of a Python syntax tree.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int64=8B)
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Lists: uint32 big-endian count, then elements
//   - Nil optional children: TagAbsent
//   - Child nodes: serialized inline (flat)
//
// Source positions are not serialized: moving code around without changing
// it keeps its hash.
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of a node tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node pyast.Node) []byte {
	s := &serializer{buf: make([]byte, 0, 512)}
	s.writeByte(HashVersion)
	s.node(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) exprs(list []pyast.Expr) {
	s.writeUint32(uint32(len(list)))
	for _, e := range list {
		s.optional(e)
	}
}

func (s *serializer) stmts(list []pyast.Stmt) {
	s.writeUint32(uint32(len(list)))
	for _, st := range list {
		s.node(st)
	}
}

func (s *serializer) optional(e pyast.Expr) {
	if e == nil {
		s.writeByte(TagAbsent)
		return
	}
	s.node(e)
}

func (s *serializer) generators(gens []*pyast.Comprehension) {
	s.writeUint32(uint32(len(gens)))
	for _, g := range gens {
		s.writeByte(TagComprehension)
		s.node(g.Target)
		s.node(g.Iter)
		s.exprs(g.Ifs)
		s.writeBool(g.IsAsync)
	}
}

func (s *serializer) arguments(a *pyast.Arguments) {
	s.writeByte(TagArguments)
	if a == nil {
		s.writeUint32(0)
		s.writeUint32(0)
		s.writeString("")
		s.writeString("")
		return
	}
	s.writeUint32(uint32(len(a.Args)))
	for _, arg := range a.Args {
		s.writeString(arg.Name)
		s.optional(arg.Annotation)
	}
	s.exprs(a.Defaults)
	s.writeString(argName(a.Vararg))
	s.writeString(argName(a.Kwarg))
}

func argName(a *pyast.Arg) string {
	if a == nil {
		return ""
	}
	return a.Name
}

func (s *serializer) aliases(names []*pyast.Alias) {
	s.writeUint32(uint32(len(names)))
	for _, a := range names {
		s.writeString(a.Name)
		s.writeString(a.AsName)
	}
}

func (s *serializer) node(node pyast.Node) {
	switch n := node.(type) {
	case *pyast.Module:
		s.writeByte(TagModule)
		s.writeString(n.Name)
		s.stmts(n.Body)

	// Expressions
	case *pyast.Constant:
		switch n.Kind {
		case pyast.ConstNone:
			s.writeByte(TagNone)
		case pyast.ConstBool:
			s.writeByte(TagBool)
			s.writeBool(n.Bool)
		case pyast.ConstInt:
			s.writeByte(TagInt)
			s.writeInt64(n.Int)
		case pyast.ConstFloat:
			s.writeByte(TagFloat)
			s.writeFloat64(n.Float)
		case pyast.ConstString:
			s.writeByte(TagString)
			s.writeString(n.Str)
		case pyast.ConstBytes:
			s.writeByte(TagBytes)
			s.writeString(n.Str)
		}
	case *pyast.Name:
		s.writeByte(TagName)
		s.writeString(n.ID)
	case *pyast.BinOp:
		s.writeByte(TagBinOp)
		s.writeString(string(n.Op))
		s.node(n.Left)
		s.node(n.Right)
	case *pyast.UnaryOp:
		s.writeByte(TagUnaryOp)
		s.writeString(string(n.Op))
		s.node(n.Operand)
	case *pyast.BoolOp:
		s.writeByte(TagBoolOp)
		s.writeString(string(n.Op))
		s.exprs(n.Values)
	case *pyast.Compare:
		s.writeByte(TagCompare)
		s.node(n.Left)
		s.writeUint32(uint32(len(n.Ops)))
		for _, op := range n.Ops {
			s.writeString(string(op))
		}
		s.exprs(n.Comparators)
	case *pyast.Call:
		s.writeByte(TagCall)
		s.node(n.Func)
		s.exprs(n.Args)
		s.writeUint32(uint32(len(n.Keywords)))
		for _, kw := range n.Keywords {
			s.node(kw)
		}
	case *pyast.Keyword:
		s.writeByte(TagKeyword)
		s.writeString(n.Arg)
		s.node(n.Value)
	case *pyast.Attribute:
		s.writeByte(TagAttribute)
		s.writeString(n.Attr)
		s.node(n.Value)
	case *pyast.Subscript:
		s.writeByte(TagSubscript)
		s.node(n.Value)
		s.node(n.Slice)
	case *pyast.Slice:
		s.writeByte(TagSlice)
		s.optional(n.Lower)
		s.optional(n.Upper)
		s.optional(n.Step)
	case *pyast.List:
		s.writeByte(TagList)
		s.exprs(n.Elts)
	case *pyast.Tuple:
		s.writeByte(TagTuple)
		s.exprs(n.Elts)
	case *pyast.Set:
		s.writeByte(TagSet)
		s.exprs(n.Elts)
	case *pyast.Dict:
		s.writeByte(TagDict)
		s.exprs(n.Keys)
		s.exprs(n.Values)
	case *pyast.ListComp:
		s.writeByte(TagListComp)
		s.node(n.Elt)
		s.generators(n.Generators)
	case *pyast.SetComp:
		s.writeByte(TagSetComp)
		s.node(n.Elt)
		s.generators(n.Generators)
	case *pyast.GeneratorExp:
		s.writeByte(TagGeneratorExp)
		s.node(n.Elt)
		s.generators(n.Generators)
	case *pyast.DictComp:
		s.writeByte(TagDictComp)
		s.node(n.Key)
		s.node(n.Value)
		s.generators(n.Generators)
	case *pyast.JoinedStr:
		s.writeByte(TagJoinedStr)
		s.exprs(n.Values)
	case *pyast.FormattedValue:
		s.writeByte(TagFormatted)
		s.node(n.Value)
		s.writeInt64(int64(n.Conversion))
		if n.FormatSpec == nil {
			s.writeByte(TagAbsent)
		} else {
			s.node(n.FormatSpec)
		}
	case *pyast.IfExp:
		s.writeByte(TagIfExp)
		s.node(n.Test)
		s.node(n.Body)
		s.node(n.OrElse)
	case *pyast.Lambda:
		s.writeByte(TagLambda)
		s.arguments(n.Args)
		s.node(n.Body)
	case *pyast.Await:
		s.writeByte(TagAwait)
		s.node(n.Value)
	case *pyast.NamedExpr:
		s.writeByte(TagNamedExpr)
		s.writeString(n.Target.ID)
		s.node(n.Value)
	case *pyast.Starred:
		s.writeByte(TagStarred)
		s.node(n.Value)

	// Statements
	case *pyast.FunctionDef:
		s.writeByte(TagFunctionDef)
		s.writeString(n.Name)
		s.writeBool(n.IsAsync)
		s.arguments(n.Args)
		s.exprs(n.Decorators)
		s.optional(n.Returns)
		s.stmts(n.Body)
	case *pyast.ClassDef:
		s.writeByte(TagClassDef)
		s.writeString(n.Name)
		s.exprs(n.Bases)
		s.exprs(n.Decorators)
		s.stmts(n.Body)
	case *pyast.Return:
		s.writeByte(TagReturn)
		s.optional(n.Value)
	case *pyast.Assign:
		s.writeByte(TagAssign)
		s.exprs(n.Targets)
		s.node(n.Value)
	case *pyast.AugAssign:
		s.writeByte(TagAugAssign)
		s.writeString(string(n.Op))
		s.node(n.Target)
		s.node(n.Value)
	case *pyast.AnnAssign:
		s.writeByte(TagAnnAssign)
		s.node(n.Target)
		s.optional(n.Annotation)
		s.optional(n.Value)
	case *pyast.For:
		s.writeByte(TagFor)
		s.node(n.Target)
		s.node(n.Iter)
		s.stmts(n.Body)
		s.stmts(n.OrElse)
	case *pyast.While:
		s.writeByte(TagWhile)
		s.node(n.Test)
		s.stmts(n.Body)
		s.stmts(n.OrElse)
	case *pyast.If:
		s.writeByte(TagIf)
		s.node(n.Test)
		s.stmts(n.Body)
		s.stmts(n.OrElse)
	case *pyast.Try:
		s.writeByte(TagTry)
		s.stmts(n.Body)
		s.writeUint32(uint32(len(n.Handlers)))
		for _, h := range n.Handlers {
			s.writeByte(TagHandler)
			s.optional(h.Type)
			s.writeString(h.Name)
			s.stmts(h.Body)
		}
		s.stmts(n.OrElse)
		s.stmts(n.FinalBody)
	case *pyast.Raise:
		s.writeByte(TagRaise)
		s.optional(n.Exc)
	case *pyast.Assert:
		s.writeByte(TagAssert)
		s.node(n.Test)
		s.optional(n.Msg)
	case *pyast.With:
		s.writeByte(TagWith)
		s.writeUint32(uint32(len(n.Items)))
		for _, item := range n.Items {
			s.node(item.Context)
			s.optional(item.Var)
		}
		s.stmts(n.Body)
	case *pyast.ExprStmt:
		s.writeByte(TagExprStmt)
		s.node(n.Value)
	case *pyast.Pass:
		s.writeByte(TagPass)
	case *pyast.Break:
		s.writeByte(TagBreak)
	case *pyast.Continue:
		s.writeByte(TagContinue)
	case *pyast.Import:
		s.writeByte(TagImport)
		s.aliases(n.Names)
	case *pyast.ImportFrom:
		s.writeByte(TagImportFrom)
		s.writeString(n.Module)
		s.writeInt64(int64(n.Level))
		s.aliases(n.Names)
	case *pyast.Global:
		s.writeByte(TagGlobal)
		s.writeUint32(uint32(len(n.Names)))
		for _, name := range n.Names {
			s.writeString(name)
		}
	case *pyast.Match:
		s.writeByte(TagMatch)
		s.node(n.Subject)
		s.writeUint32(uint32(len(n.Cases)))
		for _, c := range n.Cases {
			s.node(c.Pattern)
			s.optional(c.Guard)
			s.stmts(c.Body)
		}

	// Patterns
	case *pyast.MatchValue:
		s.writeByte(TagMatchValue)
		s.node(n.Value)
	case *pyast.MatchSingleton:
		s.writeByte(TagMatchSingleton)
		if n.Value == nil {
			s.writeByte(TagAbsent)
		} else {
			s.node(n.Value)
		}
	case *pyast.MatchAs:
		s.writeByte(TagMatchAs)
		s.writeString(n.Name)
		if n.Pattern == nil {
			s.writeByte(TagAbsent)
		} else {
			s.node(n.Pattern)
		}
	case *pyast.MatchOr:
		s.writeByte(TagMatchOr)
		s.writeUint32(uint32(len(n.Patterns)))
		for _, p := range n.Patterns {
			s.node(p)
		}

	default:
		s.writeByte(TagAbsent)
	}
}
