package codegen

import (
	"fmt"
	"strings"
)

// writer is the append-only output buffer. Every line is prefixed with the
// current indentation, four spaces per level.
type writer struct {
	buf    strings.Builder
	indent int
}

// line writes one indented line.
func (w *writer) line(format string, args ...any) {
	for i := 0; i < w.indent; i++ {
		w.buf.WriteString("    ")
	}
	if len(args) == 0 {
		w.buf.WriteString(format)
	} else {
		fmt.Fprintf(&w.buf, format, args...)
	}
	w.buf.WriteByte('\n')
}

// open writes a line ending a block opener and indents.
func (w *writer) open(format string, args ...any) {
	w.line(format, args...)
	w.indent++
}

// close dedents and writes the closing line.
func (w *writer) close(s string) {
	if w.indent > 0 {
		w.indent--
	}
	w.line("%s", s)
}

// blank writes an empty line.
func (w *writer) blank() { w.buf.WriteByte('\n') }

// raw appends pre-indented text verbatim.
func (w *writer) raw(s string) { w.buf.WriteString(s) }

func (w *writer) String() string { return w.buf.String() }

// capture runs f with g.out redirected to a fresh writer at the given
// indentation and returns what f wrote.
func (g *Generator) capture(indent int, f func()) string {
	saved := g.out
	g.out = &writer{indent: indent}
	defer func() { g.out = saved }()
	f()
	return g.out.String()
}
