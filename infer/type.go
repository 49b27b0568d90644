// Package infer is the type and symbol query layer used by the code
// generator: a small type union, a best-effort expression typer, the lexical
// symbol table and the class registry.
package infer

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Type: inferred static type of a Python value
// ---------------------------------------------------------------------------

// Kind tags a Type.
type Kind int

const (
	UnknownKind Kind = iota
	IntKind
	FloatKind
	BoolKind
	StringKind
	NoneKind
	ListKind
	DictKind
	SetKind
	TupleKind
	OptionalKind
	ClassKind
	CounterKind
	CoroutineKind
)

var kindNames = [...]string{
	UnknownKind:   "unknown",
	IntKind:       "int",
	FloatKind:     "float",
	BoolKind:      "bool",
	StringKind:    "str",
	NoneKind:      "None",
	ListKind:      "list",
	DictKind:      "dict",
	SetKind:       "set",
	TupleKind:     "tuple",
	OptionalKind:  "Optional",
	ClassKind:     "class",
	CounterKind:   "Counter",
	CoroutineKind: "coroutine",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Type is a tagged union over the static types the generator specializes on.
//
// Elem is the element type of list, set and optional, and the value type of
// dict. Key is the dict key type. Elems holds tuple members. Name is the class
// name of a class instance and the function name of a coroutine; Elem is a
// coroutine's result type.
type Type struct {
	Kind  Kind
	Elem  *Type
	Key   *Type
	Elems []Type
	Name  string
}

// Scalar types.
var (
	Unknown = Type{Kind: UnknownKind}
	Int     = Type{Kind: IntKind}
	Float   = Type{Kind: FloatKind}
	Bool    = Type{Kind: BoolKind}
	String  = Type{Kind: StringKind}
	None    = Type{Kind: NoneKind}
	Counter = Type{Kind: CounterKind}
)

// ListOf returns list[elem].
func ListOf(elem Type) Type { return Type{Kind: ListKind, Elem: &elem} }

// SetOf returns set[elem].
func SetOf(elem Type) Type { return Type{Kind: SetKind, Elem: &elem} }

// DictOf returns dict[key, value].
func DictOf(key, value Type) Type { return Type{Kind: DictKind, Key: &key, Elem: &value} }

// TupleOf returns tuple[elems...].
func TupleOf(elems ...Type) Type { return Type{Kind: TupleKind, Elems: elems} }

// OptionalOf returns Optional[inner]. Optional of optional collapses.
func OptionalOf(inner Type) Type {
	if inner.Kind == OptionalKind {
		return inner
	}
	return Type{Kind: OptionalKind, Elem: &inner}
}

// ClassOf returns an instance of the named class.
func ClassOf(name string) Type { return Type{Kind: ClassKind, Name: name} }

// CoroutineOf returns the type of calling async function fn, whose awaited
// result has type result.
func CoroutineOf(fn string, result Type) Type {
	return Type{Kind: CoroutineKind, Name: fn, Elem: &result}
}

// IsUnknown reports whether inference produced nothing usable.
func (t Type) IsUnknown() bool { return t.Kind == UnknownKind }

// IsNumeric reports whether t is int, float or bool.
func (t Type) IsNumeric() bool {
	return t.Kind == IntKind || t.Kind == FloatKind || t.Kind == BoolKind
}

// IsContainer reports whether t has a Python length.
func (t Type) IsContainer() bool {
	switch t.Kind {
	case ListKind, DictKind, SetKind, TupleKind, StringKind, CounterKind:
		return true
	}
	return false
}

// ElemType returns the element (or dict value) type, or Unknown.
func (t Type) ElemType() Type {
	if t.Elem == nil {
		return Unknown
	}
	return *t.Elem
}

// KeyType returns the dict key type, or Unknown.
func (t Type) KeyType() Type {
	if t.Key == nil {
		return Unknown
	}
	return *t.Key
}

// IterElem returns the type produced by iterating over t.
func (t Type) IterElem() Type {
	switch t.Kind {
	case ListKind, SetKind:
		return t.ElemType()
	case DictKind:
		return t.KeyType()
	case CounterKind:
		return String
	case StringKind:
		return String
	case TupleKind:
		if len(t.Elems) > 0 {
			return t.Elems[0]
		}
	}
	return Unknown
}

// Equal reports structural equality.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Name != o.Name || len(t.Elems) != len(o.Elems) {
		return false
	}
	if !equalPtr(t.Elem, o.Elem) || !equalPtr(t.Key, o.Key) {
		return false
	}
	for i := range t.Elems {
		if !t.Elems[i].Equal(o.Elems[i]) {
			return false
		}
	}
	return true
}

// equalPtr compares optional component types. A missing component equals
// an explicit Unknown one.
func equalPtr(a, b *Type) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil:
		return b.Equal(Unknown)
	case b == nil:
		return equalPtr(b, a)
	}
	return a.Equal(*b)
}

// Join returns the least type both a and b fit in: numeric widening from int
// to float, unknown absorbing into the known side, None making an optional.
// Containers of the same kind join element-wise. Incompatible types join to
// Unknown.
func Join(a, b Type) Type {
	switch {
	case a.IsUnknown():
		return b
	case b.IsUnknown():
		return a
	case a.Equal(b):
		return a
	case a.Kind == b.Kind && (a.Kind == ListKind || a.Kind == SetKind):
		elem, ok := joinPart(a.ElemType(), b.ElemType())
		if !ok {
			return Unknown
		}
		return Type{Kind: a.Kind, Elem: &elem}
	case a.Kind == DictKind && b.Kind == DictKind:
		key, ok1 := joinPart(a.KeyType(), b.KeyType())
		value, ok2 := joinPart(a.ElemType(), b.ElemType())
		if !ok1 || !ok2 {
			return Unknown
		}
		return DictOf(key, value)
	case a.Kind == TupleKind && b.Kind == TupleKind && len(a.Elems) == len(b.Elems):
		elems := make([]Type, len(a.Elems))
		for i := range elems {
			var ok bool
			if elems[i], ok = joinPart(a.Elems[i], b.Elems[i]); !ok {
				return Unknown
			}
		}
		return TupleOf(elems...)
	case a.Kind == NoneKind:
		return OptionalOf(b)
	case b.Kind == NoneKind:
		return OptionalOf(a)
	case a.IsNumeric() && b.IsNumeric():
		if a.Kind == FloatKind || b.Kind == FloatKind {
			return Float
		}
		return Int
	case a.Kind == OptionalKind && a.ElemType().Equal(b):
		return a
	case b.Kind == OptionalKind && b.ElemType().Equal(a):
		return b
	}
	return Unknown
}

// joinPart joins component types of two containers. It fails when both
// sides are known but have no common type: list[int] and list[str] share no
// Zig element type.
func joinPart(a, b Type) (Type, bool) {
	j := Join(a, b)
	if j.IsUnknown() && !a.IsUnknown() && !b.IsUnknown() {
		return Unknown, false
	}
	return j, true
}

// String renders the type in Python annotation syntax.
func (t Type) String() string {
	switch t.Kind {
	case ListKind, SetKind:
		return t.Kind.String() + "[" + t.ElemType().String() + "]"
	case DictKind:
		return "dict[" + t.KeyType().String() + ", " + t.ElemType().String() + "]"
	case TupleKind:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "tuple[" + strings.Join(parts, ", ") + "]"
	case OptionalKind:
		return "Optional[" + t.ElemType().String() + "]"
	case ClassKind:
		return t.Name
	case CoroutineKind:
		return "Coroutine[" + t.Name + ", " + t.ElemType().String() + "]"
	}
	return t.Kind.String()
}

// ---------------------------------------------------------------------------
// Zig rendering
// ---------------------------------------------------------------------------

// Zig renders the Zig type used to store a value of type t. Unknown renders
// as the numeric default i64.
func (t Type) Zig() string {
	switch t.Kind {
	case IntKind, UnknownKind:
		return "i64"
	case FloatKind:
		return "f64"
	case BoolKind:
		return "bool"
	case StringKind:
		return "[]const u8"
	case NoneKind:
		return "void"
	case ListKind:
		return "std.ArrayList(" + t.ElemType().Zig() + ")"
	case DictKind:
		if t.KeyType().Kind == StringKind {
			return "std.StringHashMap(" + t.ElemType().Zig() + ")"
		}
		return "std.AutoHashMap(" + t.KeyType().Zig() + ", " + t.ElemType().Zig() + ")"
	case SetKind:
		if t.ElemType().Kind == StringKind {
			return "std.StringHashMap(void)"
		}
		return "std.AutoHashMap(" + t.ElemType().Zig() + ", void)"
	case TupleKind:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.Zig()
		}
		return "struct { " + strings.Join(parts, ", ") + " }"
	case OptionalKind:
		return "?" + t.ElemType().Zig()
	case ClassKind:
		return "*" + t.Name
	case CounterKind:
		return "runtime.Counter"
	case CoroutineKind:
		return "*" + t.Name + "_Frame"
	}
	return "i64"
}

// ZigDefault renders a zero value of type t, used to pre-declare hoisted
// variables and to initialize frame fields. alloc is the allocator
// expression containers are initialized with.
func (t Type) ZigDefault(alloc string) string {
	switch t.Kind {
	case IntKind, UnknownKind:
		return "0"
	case FloatKind:
		return "0.0"
	case BoolKind:
		return "false"
	case StringKind:
		return `""`
	case NoneKind:
		return "{}"
	case ListKind, DictKind, SetKind:
		return t.Zig() + ".init(" + alloc + ")"
	case CounterKind:
		return "runtime.Counter.init(" + alloc + ")"
	case TupleKind:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.ZigDefault(alloc)
		}
		return ".{ " + strings.Join(parts, ", ") + " }"
	case OptionalKind:
		return "null"
	case ClassKind, CoroutineKind:
		return "undefined"
	}
	return "0"
}
