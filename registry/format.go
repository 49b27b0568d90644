package registry

import (
	"strings"

	"github.com/chazu/pyaot/infer"
	"github.com/chazu/pyaot/pyast"
	"github.com/chazu/pyaot/zig"
)

// Format accumulates a std.fmt format string and its argument tuple, for
// print, f-strings and str.format.
type Format struct {
	text strings.Builder
	args []string
}

// Literal appends text that is printed verbatim.
func (f *Format) Literal(s string) {
	f.text.WriteString(zig.EscapeFormat(s))
}

// Value appends e formatted the way str(e) renders it.
func (f *Format) Value(ctx Context, e pyast.Expr) {
	f.ValueSpec(ctx, e, "")
}

// ValueSpec appends e formatted with a Python format spec such as ".2f" or
// ">8". An empty spec formats like str(e).
func (f *Format) ValueSpec(ctx Context, e pyast.Expr, spec string) {
	if c, ok := e.(*pyast.Constant); ok && spec == "" {
		switch c.Kind {
		case pyast.ConstNone:
			f.Literal("None")
			return
		case pyast.ConstString:
			f.Literal(c.Str)
			return
		case pyast.ConstBool:
			if c.Bool {
				f.Literal("True")
			} else {
				f.Literal("False")
			}
			return
		}
	}
	t := ctx.TypeOf(e)
	verb, arg := "any", ctx.Lower(e)
	switch t.Kind {
	case infer.IntKind, infer.FloatKind:
		verb = "d"
	case infer.StringKind:
		verb = "s"
	case infer.BoolKind:
		verb, arg = "s", "runtime.boolStr("+arg+")"
	case infer.UnknownKind:
	default:
		verb, arg = "s", ctx.Stringify(e)
	}
	opts, conv := translateSpec(spec)
	if conv != "" {
		verb = conv
	}
	f.text.WriteString("{" + verb + opts + "}")
	f.args = append(f.args, arg)
}

// String returns the format string as a Zig literal.
func (f *Format) String() string { return zig.Quote(f.text.String()) }

// Args returns the argument tuple, ".{}" when empty.
func (f *Format) Args() string {
	if len(f.args) == 0 {
		return ".{}"
	}
	return ".{ " + strings.Join(f.args, ", ") + " }"
}

// Static reports whether the format has no arguments, and returns its text.
func (f *Format) Static() (string, bool) {
	if len(f.args) > 0 {
		return "", false
	}
	return strings.NewReplacer("{{", "{", "}}", "}").Replace(f.text.String()), true
}

// translateSpec converts a Python format spec
// ([[fill]align][0][width][,][.precision][type]) into std.fmt options (":"
// followed by fill, alignment, width and precision) and, when the
// presentation type demands one, a replacement verb.
func translateSpec(spec string) (opts, verb string) {
	if spec == "" {
		return "", ""
	}
	fill, align := byte(0), byte(0)
	i := 0
	if len(spec) >= 2 && isAlign(spec[1]) {
		fill, align = spec[0], spec[1]
		i = 2
	} else if isAlign(spec[0]) {
		align = spec[0]
		i = 1
	}
	if i < len(spec) && (spec[i] == '+' || spec[i] == '-' || spec[i] == ' ') {
		i++
	}
	if i < len(spec) && spec[i] == '0' && align == 0 {
		fill, align = '0', '>'
		i++
	}
	start := i
	for i < len(spec) && spec[i] >= '0' && spec[i] <= '9' {
		i++
	}
	width := spec[start:i]
	if i < len(spec) && (spec[i] == ',' || spec[i] == '_') {
		i++
	}
	precision := ""
	if i < len(spec) && spec[i] == '.' {
		i++
		start = i
		for i < len(spec) && spec[i] >= '0' && spec[i] <= '9' {
			i++
		}
		precision = spec[start:i]
	}
	if i < len(spec) {
		switch spec[i] {
		case 'f', 'F', 'g', 'G', 'd', 'n', '%':
			verb = "d"
		case 'e', 'E':
			verb = "e"
		case 'x':
			verb = "x"
		case 'X':
			verb = "X"
		case 'b':
			verb = "b"
		case 'o':
			verb = "o"
		case 's':
			verb = "s"
		case 'c':
			verb = "u"
		}
	}
	if width == "" && precision == "" {
		return "", verb
	}
	var b strings.Builder
	b.WriteByte(':')
	if align != 0 {
		if fill != 0 {
			b.WriteByte(fill)
		}
		b.WriteByte(align)
	}
	b.WriteString(width)
	if precision != "" {
		b.WriteString("." + precision)
	}
	return b.String(), verb
}

func isAlign(c byte) bool { return c == '<' || c == '>' || c == '^' }

// ParseBraces splits a str.format template into literal text and replacement
// fields. It returns false for templates it does not understand (nested
// fields, attribute access, conversions).
func ParseBraces(tmpl string) (parts []BracePart, ok bool) {
	var lit strings.Builder
	auto := 0
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return nil, false
			}
			field := tmpl[i+1 : i+end]
			name, spec, _ := strings.Cut(field, ":")
			if strings.ContainsAny(name, "![.{") || strings.Contains(spec, "{") {
				return nil, false
			}
			idx := auto
			if name != "" {
				n := 0
				for _, d := range name {
					if d < '0' || d > '9' {
						return nil, false
					}
					n = n*10 + int(d-'0')
				}
				idx = n
			} else {
				auto++
			}
			if lit.Len() > 0 {
				parts = append(parts, BracePart{Text: lit.String(), Index: -1})
				lit.Reset()
			}
			parts = append(parts, BracePart{Index: idx, Spec: spec})
			i += end
		case c == '}':
			return nil, false
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		parts = append(parts, BracePart{Text: lit.String(), Index: -1})
	}
	return parts, true
}

// BracePart is literal Text (Index -1) or a reference to positional argument
// Index with an optional format Spec.
type BracePart struct {
	Text  string
	Index int
	Spec  string
}
