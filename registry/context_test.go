package registry

import (
	"fmt"
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// fakeCtx lowers names and constants verbatim and types names from a map.
type fakeCtx struct {
	types    map[string]infer.Type
	aliases  map[string]string
	classes  *infer.ClassRegistry
	labels   int
	warnings []string
}

func newFakeCtx(types map[string]infer.Type) *fakeCtx {
	return &fakeCtx{types: types, aliases: map[string]string{}, classes: infer.NewClassRegistry()}
}

func (c *fakeCtx) Lower(e pyast.Expr) string {
	switch x := e.(type) {
	case *pyast.Name:
		return x.ID
	case *pyast.Constant:
		switch x.Kind {
		case pyast.ConstInt:
			return fmt.Sprint(x.Int)
		case pyast.ConstFloat:
			return fmt.Sprint(x.Float)
		case pyast.ConstString:
			return zig.Quote(x.Str)
		case pyast.ConstBool:
			return fmt.Sprint(x.Bool)
		}
		return "null"
	case *pyast.Call:
		return infer.DottedName(x.Func) + "()"
	}
	return "expr"
}

func (c *fakeCtx) TypeOf(e pyast.Expr) infer.Type {
	switch x := e.(type) {
	case *pyast.Name:
		return c.types[x.ID]
	case *pyast.Constant:
		switch x.Kind {
		case pyast.ConstInt:
			return infer.Int
		case pyast.ConstFloat:
			return infer.Float
		case pyast.ConstString:
			return infer.String
		case pyast.ConstBool:
			return infer.Bool
		}
		return infer.None
	}
	return infer.Unknown
}

func (c *fakeCtx) Classes() *infer.ClassRegistry { return c.classes }
func (c *fakeCtx) Allocator() string             { return "allocator" }

func (c *fakeCtx) NextLabel(prefix string) string {
	c.labels++
	return fmt.Sprintf("%s_%d", prefix, c.labels)
}

func (c *fakeCtx) Warnf(pos pyast.Pos, format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func (c *fakeCtx) ModuleAlias(module string) string {
	if a, ok := c.aliases[module]; ok {
		return a
	}
	return module[strings.LastIndexByte(module, '.')+1:]
}

func (c *fakeCtx) Stringify(e pyast.Expr) string {
	return "try runtime.str(allocator, " + c.Lower(e) + ")"
}

func (c *fakeCtx) RunCoroutine(e pyast.Expr) string {
	return "run(" + c.Lower(e) + ")"
}

var _ Context = (*fakeCtx)(nil)
