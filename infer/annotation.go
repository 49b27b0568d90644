package infer

import "github.com/chazu/pyaot/pyast"

// FromAnnotation converts a Python type annotation into a Type. Both builtin
// generics (list[int]) and typing aliases (List[int], Optional[str]) are
// understood, as are PEP 604 unions with None (int | None). Names of classes
// known to classes become class instances; anything else is Unknown.
func FromAnnotation(ann pyast.Expr, classes *ClassRegistry) Type {
	switch a := ann.(type) {
	case nil:
		return Unknown
	case *pyast.Constant:
		if a.Kind == pyast.ConstNone {
			return None
		}
		if a.Kind == pyast.ConstString {
			// Forward reference: "Node".
			return FromAnnotation(pyast.Id(a.Str), classes)
		}
	case *pyast.Name:
		switch a.ID {
		case "int":
			return Int
		case "float":
			return Float
		case "bool":
			return Bool
		case "str", "bytes":
			return String
		case "None":
			return None
		case "list", "List":
			return ListOf(Unknown)
		case "dict", "Dict":
			return DictOf(Unknown, Unknown)
		case "set", "Set":
			return SetOf(Unknown)
		case "Counter":
			return Counter
		}
		if classes != nil {
			if _, ok := classes.Lookup(a.ID); ok {
				return ClassOf(a.ID)
			}
		}
	case *pyast.Attribute:
		// typing.List[...] and friends resolve by attribute name.
		return FromAnnotation(pyast.Id(a.Attr), classes)
	case *pyast.BinOp:
		if a.Op == pyast.BitOr {
			return Join(FromAnnotation(a.Left, classes), FromAnnotation(a.Right, classes))
		}
	case *pyast.Subscript:
		return fromGeneric(a, classes)
	}
	return Unknown
}

func fromGeneric(s *pyast.Subscript, classes *ClassRegistry) Type {
	base := ""
	switch v := s.Value.(type) {
	case *pyast.Name:
		base = v.ID
	case *pyast.Attribute:
		base = v.Attr
	}
	var args []pyast.Expr
	if t, ok := s.Slice.(*pyast.Tuple); ok {
		args = t.Elts
	} else {
		args = []pyast.Expr{s.Slice}
	}
	arg := func(i int) Type {
		if i < len(args) {
			return FromAnnotation(args[i], classes)
		}
		return Unknown
	}
	switch base {
	case "list", "List", "Sequence", "Iterable":
		return ListOf(arg(0))
	case "set", "Set", "frozenset", "FrozenSet":
		return SetOf(arg(0))
	case "dict", "Dict", "Mapping":
		return DictOf(arg(0), arg(1))
	case "tuple", "Tuple":
		elems := make([]Type, len(args))
		for i := range args {
			elems[i] = arg(i)
		}
		return TupleOf(elems...)
	case "Optional":
		return OptionalOf(arg(0))
	case "Union":
		t := arg(0)
		for i := 1; i < len(args); i++ {
			t = Join(t, arg(i))
		}
		return t
	}
	return Unknown
}
