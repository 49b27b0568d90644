// Package zig holds the lexical helpers shared by everything that emits Zig
// source text: string literal quoting, format-string escaping and identifier
// escaping.
package zig

import (
	"fmt"
	"strings"
)

// Quote renders s as a Zig string literal. UTF-8 passes through unchanged;
// control bytes are hex-escaped.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\x%02x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// EscapeFormat doubles braces so s can be embedded literally in a std.fmt
// format string.
func EscapeFormat(s string) string {
	s = strings.ReplaceAll(s, "{", "{{")
	return strings.ReplaceAll(s, "}", "}}")
}

// keywords are Zig reserved words and primitive type names that cannot be
// used as bare identifiers.
var keywords = map[string]bool{
	"addrspace": true, "align": true, "allowzero": true, "and": true,
	"anyframe": true, "anytype": true, "asm": true, "async": true,
	"await": true, "break": true, "callconv": true, "catch": true,
	"comptime": true, "const": true, "continue": true, "defer": true,
	"else": true, "enum": true, "errdefer": true, "error": true,
	"export": true, "extern": true, "fn": true, "for": true, "if": true,
	"inline": true, "linksection": true, "noalias": true, "noinline": true,
	"nosuspend": true, "opaque": true, "or": true, "orelse": true,
	"packed": true, "pub": true, "resume": true, "return": true,
	"struct": true, "suspend": true, "switch": true, "test": true,
	"threadlocal": true, "try": true, "union": true, "unreachable": true,
	"usingnamespace": true, "var": true, "volatile": true, "while": true,
	"type": true, "void": true, "bool": true, "anyerror": true,
	"null": true, "undefined": true, "true": true, "false": true,
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true,
	"f16": true, "f32": true, "f64": true, "f128": true, "usize": true,
	"isize": true, "noreturn": true,
}

// generatorNames are identifiers every emitted file binds itself. Python
// names that collide with them get a trailing underscore.
var generatorNames = map[string]bool{
	"std": true, "runtime": true, "allocator": true, "frame": true,
}

// IsKeyword reports whether name is a Zig reserved word.
func IsKeyword(name string) bool { return keywords[name] }

// Ident renders a Python identifier as a Zig identifier, escaping reserved
// words with @"name" and renaming collisions with generator-bound names.
func Ident(name string) string {
	if generatorNames[name] {
		return name + "_"
	}
	if keywords[name] {
		return `@"` + name + `"`
	}
	return name
}

// Paren wraps expr in parentheses unless it is already a simple operand (an
// identifier, a field chain, a call or a literal), so that a postfix operator
// appended to it binds to the whole expression.
func Paren(expr string) string {
	if isOperand(expr) {
		return expr
	}
	return "(" + expr + ")"
}

func isOperand(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '"' && strings.HasSuffix(s, `"`) && !strings.Contains(s[1:len(s)-1], `" `) {
		return true
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case depth > 0:
		case c == '_' || c == '.' || c == '@' || c == '*' && i > 0 && s[i-1] == '.':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return depth == 0 && s[0] != '(' && s[0] != '.'
}
