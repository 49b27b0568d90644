package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/pyaot/pyast"
)

// TreeExt is the extension of module syntax tree files: the JSON dump of
// the module's CPython ast.
const TreeExt = ".json"

// ErrModuleNotFound is returned when no source root holds a module.
var ErrModuleNotFound = errors.New("module not found")

// Loader finds module syntax trees under a list of source roots. Module
// a.b is read from a/b.json, or a/b/__init__.json for a package, in the
// first root that has it.
type Loader struct {
	Roots []string
}

// Loader returns a Loader over the project's source directories followed
// by those of deps.
func (m *Manifest) Loader(deps []ResolvedDep) *Loader {
	roots := m.SourceDirPaths()
	for _, d := range deps {
		roots = append(roots, d.SourceRoots()...)
	}
	return &Loader{Roots: roots}
}

// Path returns the tree file of module.
func (l *Loader) Path(module string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(module, ".", "/"))
	for _, root := range l.Roots {
		for _, candidate := range []string{rel + TreeExt, filepath.Join(rel, "__init__"+TreeExt)} {
			p := filepath.Join(root, candidate)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrModuleNotFound, module)
}

// Load reads and decodes the tree of module.
func (l *Loader) Load(module string) (*pyast.Module, error) {
	p, err := l.Path(module)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	tree, err := pyast.Decode(data, module)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return tree, nil
}

// DirSink writes lowered modules under Dir, module a.b as a/b.zig.
type DirSink struct {
	Dir string
}

// Path returns the output file of module.
func (s DirSink) Path(module string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(strings.ReplaceAll(module, ".", "/"))+".zig")
}

func (s DirSink) Write(module, source string) error {
	p := s.Path(module)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	if old, err := os.ReadFile(p); err == nil && string(old) == source {
		return nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(p, []byte(source), 0644)
}
