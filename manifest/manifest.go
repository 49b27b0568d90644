// Package manifest handles pyaot.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project file.
const FileName = "pyaot.toml"

// Manifest represents a pyaot.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Build        Build                 `toml:"build"`
	Imports      Imports               `toml:"imports"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the pyaot.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	// Package is the top-level Python package the project provides to
	// projects depending on it.
	Package string `toml:"package"`
}

// Source configures where syntax trees are read from. Entry is the dotted
// name of the program's main module.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// Build configures generation output.
type Build struct {
	Dir    string `toml:"dir"`
	Cache  string `toml:"cache"`
	Strict bool   `toml:"strict"`
}

// Imports configures module resolution.
type Imports struct {
	// Registry is a CUE or YAML file of extra import registry entries.
	Registry string `toml:"registry"`
}

// Dependency is a project whose sources are importable from this one.
type Dependency struct {
	Git     string `toml:"git"`
	Tag     string `toml:"tag"`
	Path    string `toml:"path"`
	Package string `toml:"package"`
}

// Load parses a pyaot.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Source.Entry == "" {
		m.Source.Entry = "main"
	}
	if m.Build.Dir == "" {
		m.Build.Dir = "zig-out/src"
	}
	if m.Build.Cache == "" {
		m.Build.Cache = filepath.Join(".pyaot", "cache.db")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a pyaot.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// BuildDirPath returns the absolute output directory for generated Zig.
func (m *Manifest) BuildDirPath() string {
	return m.abs(m.Build.Dir)
}

// CachePath returns the absolute path of the build cache database.
func (m *Manifest) CachePath() string {
	return m.abs(m.Build.Cache)
}

// RegistryPath returns the absolute path of the extra registry file, or ""
// when none is configured.
func (m *Manifest) RegistryPath() string {
	if m.Imports.Registry == "" {
		return ""
	}
	return m.abs(m.Imports.Registry)
}

// DepsDir returns the path to the .pyaot/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".pyaot", "deps")
}

// LockFilePath returns the path to .pyaot/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".pyaot", "lock.toml")
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
