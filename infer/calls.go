package infer

import "github.com/chazu/pyaot/pyast"

// literalType types constants, f-strings and displays of constants.
func literalType(e pyast.Expr) Type {
	switch x := e.(type) {
	case *pyast.Constant:
		switch x.Kind {
		case pyast.ConstInt:
			return Int
		case pyast.ConstFloat:
			return Float
		case pyast.ConstBool:
			return Bool
		case pyast.ConstString, pyast.ConstBytes:
			return String
		case pyast.ConstNone:
			return None
		}
	case *pyast.JoinedStr:
		return String
	case *pyast.List:
		t := Unknown
		for _, el := range x.Elts {
			t = Join(t, literalType(el))
		}
		return ListOf(t)
	case *pyast.Dict:
		k, v := Unknown, Unknown
		for i := range x.Keys {
			if x.Keys[i] != nil {
				k = Join(k, literalType(x.Keys[i]))
			}
			v = Join(v, literalType(x.Values[i]))
		}
		return DictOf(k, v)
	case *pyast.Set:
		t := Unknown
		for _, el := range x.Elts {
			t = Join(t, literalType(el))
		}
		return SetOf(t)
	case *pyast.UnaryOp:
		if x.Op == pyast.Not {
			return Bool
		}
		return literalType(x.Operand)
	}
	return Unknown
}

// builtinResults types builtin calls whose result does not depend on the
// arguments.
var builtinResults = map[string]Type{
	"len":        Int,
	"int":        Int,
	"ord":        Int,
	"hash":       Int,
	"id":         Int,
	"str":        String,
	"repr":       String,
	"chr":        String,
	"input":      String,
	"format":     String,
	"hex":        String,
	"bin":        String,
	"oct":        String,
	"float":      Float,
	"bool":       Bool,
	"isinstance": Bool,
	"callable":   Bool,
	"any":        Bool,
	"all":        Bool,
	"hasattr":    Bool,
	"print":      None,
	"Counter":    Counter,
	"range":      ListOf(Int),
}

// stringMethodResults types str methods.
var stringMethodResults = map[string]Type{
	"upper": String, "lower": String, "strip": String, "lstrip": String,
	"rstrip": String, "replace": String, "join": String, "format": String,
	"title": String, "capitalize": String, "swapcase": String, "center": String,
	"ljust": String, "rjust": String, "zfill": String, "casefold": String,
	"split": ListOf(String), "rsplit": ListOf(String), "splitlines": ListOf(String),
	"find": Int, "rfind": Int, "index": Int, "count": Int,
	"startswith": Bool, "endswith": Bool, "isdigit": Bool, "isalpha": Bool,
	"isalnum": Bool, "isspace": Bool, "isupper": Bool, "islower": Bool,
	"encode": String, "decode": String,
}

// moduleFuncResults types module-level library functions.
var moduleFuncResults = map[string]Type{
	"math.sqrt": Float, "math.sin": Float, "math.cos": Float, "math.tan": Float,
	"math.log": Float, "math.log2": Float, "math.log10": Float, "math.exp": Float,
	"math.pow": Float, "math.fabs": Float, "math.hypot": Float, "math.atan2": Float,
	"math.floor": Int, "math.ceil": Int, "math.trunc": Int, "math.gcd": Int,
	"math.factorial": Int, "math.isnan": Bool, "math.isinf": Bool,
	"time.time": Float, "time.perf_counter": Float, "time.monotonic": Float,
	"time.time_ns": Int, "time.sleep": None,
	"json.dumps":    String,
	"random.random": Float, "random.uniform": Float, "random.randint": Int,
	"random.randrange": Int,
	"os.getcwd":        String, "os.getenv": OptionalOf(String),
	"os.path.join": String, "os.path.exists": Bool,
	"re.sub": String, "re.findall": ListOf(String), "re.split": ListOf(String),
	"string.capwords": String,
	"pickle.dumps":    String,
	"zlib.compress":   String, "zlib.decompress": String,
}

func (l *Local) callType(c *pyast.Call) Type {
	switch f := c.Func.(type) {
	case *pyast.Name:
		return l.nameCallType(f.ID, c)
	case *pyast.Attribute:
		return l.methodCallType(f, c)
	}
	return Unknown
}

func (l *Local) argType(c *pyast.Call, i int) Type {
	if i < len(c.Args) {
		return l.typeOf(c.Args[i])
	}
	return Unknown
}

func (l *Local) nameCallType(name string, c *pyast.Call) Type {
	if _, ok := l.classes.Lookup(name); ok {
		return ClassOf(name)
	}
	if fn, ok := l.funcs[name]; ok {
		ret := l.ReturnType(fn)
		if fn.IsAsync {
			return CoroutineOf(fn.Name, ret)
		}
		return ret
	}
	if t, ok := builtinResults[name]; ok {
		return t
	}
	switch name {
	case "abs":
		return l.argType(c, 0)
	case "round":
		if len(c.Args) > 1 {
			return Float
		}
		return Int
	case "list", "sorted", "reversed":
		t := l.argType(c, 0)
		if t.Kind == DictKind {
			return ListOf(t.KeyType())
		}
		return ListOf(t.IterElem())
	case "set", "frozenset":
		return SetOf(l.argType(c, 0).IterElem())
	case "tuple":
		return l.argType(c, 0)
	case "dict":
		if len(c.Args) == 0 {
			return DictOf(Unknown, Unknown)
		}
		return l.argType(c, 0)
	case "enumerate":
		return ListOf(TupleOf(Int, l.argType(c, 0).IterElem()))
	case "zip":
		elems := make([]Type, len(c.Args))
		for i := range c.Args {
			elems[i] = l.argType(c, i).IterElem()
		}
		return ListOf(TupleOf(elems...))
	case "min", "max":
		if len(c.Args) == 1 {
			return l.argType(c, 0).IterElem()
		}
		return l.joinAll(c.Args)
	case "sum":
		if t := l.argType(c, 0).IterElem(); !t.IsUnknown() {
			return t
		}
		return Int
	case "divmod":
		return TupleOf(Int, Int)
	}
	return Unknown
}

func (l *Local) methodCallType(f *pyast.Attribute, c *pyast.Call) Type {
	if mod := DottedName(f.Value); mod != "" {
		if t, ok := moduleFuncResults[mod+"."+f.Attr]; ok {
			return t
		}
		if mod == "asyncio" && (f.Attr == "create_task" || f.Attr == "ensure_future") {
			return l.argType(c, 0)
		}
		if mod == "asyncio" && f.Attr == "run" {
			if t := l.argType(c, 0); t.Kind == CoroutineKind {
				return t.ElemType()
			}
			return Unknown
		}
	}
	recv := l.typeOf(f.Value)
	switch recv.Kind {
	case StringKind:
		if t, ok := stringMethodResults[f.Attr]; ok {
			return t
		}
	case ListKind:
		switch f.Attr {
		case "pop":
			return recv.ElemType()
		case "index", "count":
			return Int
		case "copy":
			return recv
		case "append", "extend", "insert", "remove", "clear", "sort", "reverse":
			return None
		}
	case SetKind:
		switch f.Attr {
		case "add", "discard", "remove", "clear":
			return None
		case "union", "intersection", "difference", "copy":
			return recv
		}
	case DictKind:
		switch f.Attr {
		case "get", "pop", "setdefault":
			if len(c.Args) > 1 {
				return Join(recv.ElemType(), l.typeOf(c.Args[1]))
			}
			return OptionalOf(recv.ElemType())
		case "keys":
			return ListOf(recv.KeyType())
		case "values":
			return ListOf(recv.ElemType())
		case "items":
			return ListOf(TupleOf(recv.KeyType(), recv.ElemType()))
		case "copy":
			return recv
		case "update", "clear":
			return None
		}
	case CounterKind:
		switch f.Attr {
		case "most_common":
			return ListOf(TupleOf(String, Int))
		case "update":
			return None
		}
	case ClassKind:
		if m, owner, ok := l.classes.FindMethod(recv.Name, f.Attr); ok {
			ret := l.ReturnType(m)
			if m.IsAsync {
				return CoroutineOf(owner+"_"+m.Name, ret)
			}
			return ret
		}
	}
	return Unknown
}

func (l *Local) awaitType(a *pyast.Await) Type {
	if c, ok := a.Value.(*pyast.Call); ok {
		if attr, ok := c.Func.(*pyast.Attribute); ok && DottedName(attr.Value) == "asyncio" {
			switch attr.Attr {
			case "sleep":
				return None
			case "gather":
				return ListOf(l.gatherElem(c))
			}
		}
	}
	t := l.typeOf(a.Value)
	if t.Kind == CoroutineKind {
		return t.ElemType()
	}
	return Unknown
}

// gatherElem types the results of asyncio.gather(...) from the first
// argument: a coroutine call, or *tasks where tasks is a list of coroutines.
func (l *Local) gatherElem(c *pyast.Call) Type {
	if len(c.Args) == 0 {
		return Unknown
	}
	t := l.typeOf(c.Args[0])
	if t.Kind == ListKind {
		t = t.ElemType()
	}
	if t.Kind == CoroutineKind {
		return t.ElemType()
	}
	return Unknown
}

// DottedName renders a Name or Attribute chain ("os.path"), or "" when e is
// anything else.
func DottedName(e pyast.Expr) string {
	switch x := e.(type) {
	case *pyast.Name:
		return x.ID
	case *pyast.Attribute:
		if base := DottedName(x.Value); base != "" {
			return base + "." + x.Attr
		}
	}
	return ""
}
