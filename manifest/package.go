package manifest

import (
	"strings"
	"unicode"
)

// ToModuleName converts a dependency name to the Python package name it
// provides by default: "my-lib" -> "my_lib", "Models" -> "models".
func ToModuleName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// IsModuleName reports whether name is a valid dotted Python module name.
func IsModuleName(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" || pythonKeywords[part] {
			return false
		}
		for i, r := range part {
			if r != '_' && !unicode.IsLetter(r) && (i == 0 || !unicode.IsDigit(r)) {
				return false
			}
		}
	}
	return true
}

var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// reservedPackages are standard modules the runtime provides. A dependency
// providing one of them would shadow it.
var reservedPackages = map[string]bool{
	"asyncio": true, "builtins": true, "collections": true, "dataclasses": true,
	"functools": true, "itertools": true, "json": true, "math": true,
	"os": true, "random": true, "re": true, "string": true, "sys": true,
	"time": true, "typing": true, "runtime": true, "std": true,
}

// IsReservedPackage reports whether the root package of name is provided
// by the runtime. Only the root is checked: "vendor.json" is fine.
func IsReservedPackage(name string) bool {
	root, _, _ := strings.Cut(name, ".")
	return reservedPackages[root]
}
