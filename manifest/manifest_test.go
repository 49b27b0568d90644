package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"
package = "testapp"

[source]
dirs = ["src", "lib"]
entry = "app.main"

[build]
dir = "out"
cache = "build.db"
strict = true

[imports]
registry = "modules.cue"

[dependencies]
helper = { path = "../helper" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Project.Package != "testapp" {
		t.Errorf("project package = %q, want testapp", m.Project.Package)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Entry != "app.main" {
		t.Errorf("source entry = %q, want app.main", m.Source.Entry)
	}
	if !m.Build.Strict {
		t.Error("build strict = false, want true")
	}
	if got, want := m.BuildDirPath(), filepath.Join(m.Dir, "out"); got != want {
		t.Errorf("BuildDirPath = %q, want %q", got, want)
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, "build.db"); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
	if got, want := m.RegistryPath(), filepath.Join(m.Dir, "modules.cue"); got != want {
		t.Errorf("RegistryPath = %q, want %q", got, want)
	}
	if dep, ok := m.Dependencies["helper"]; !ok || dep.Path != "../helper" {
		t.Errorf("helper dep = %v, want path ../helper", m.Dependencies["helper"])
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Source.Entry != "main" {
		t.Errorf("default entry = %q, want main", m.Source.Entry)
	}
	if m.Build.Strict {
		t.Error("strict defaults to true")
	}
	if m.RegistryPath() != "" {
		t.Errorf("RegistryPath = %q, want empty", m.RegistryPath())
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, ".pyaot", "cache.db"); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
}

func TestLoadManifestParseError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname = ")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no pyaot.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "/abs/lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/abs/lib" {
		t.Errorf("paths[1] = %q, want /abs/lib", paths[1])
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "lock.toml")

	lf := &LockFile{
		Deps: []LockedDep{
			{Name: "vectors", Git: "https://example.com/vectors.git", Commit: "abc123", Tag: "v0.5.0"},
			{Name: "helper", Path: "../helper"},
		},
	}

	if err := WriteLock(lockPath, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}

	loaded, err := ReadLock(lockPath)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}

	if len(loaded.Deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(loaded.Deps))
	}
	// sorted by name on write
	if loaded.Deps[0].Name != "helper" {
		t.Errorf("dep[0].Name = %q, want helper", loaded.Deps[0].Name)
	}
	if loaded.Deps[1].Commit != "abc123" {
		t.Errorf("dep[1].Commit = %q, want abc123", loaded.Deps[1].Commit)
	}

	found := loaded.FindLockedDep("helper")
	if found == nil || found.Path != "../helper" {
		t.Errorf("FindLockedDep(helper) = %v, want path ../helper", found)
	}
	if notFound := loaded.FindLockedDep("nonexistent"); notFound != nil {
		t.Errorf("FindLockedDep(nonexistent) = %v, want nil", notFound)
	}
}

func TestReadLockNotFound(t *testing.T) {
	lf, err := ReadLock("/nonexistent/path/lock.toml")
	if err != nil {
		t.Errorf("ReadLock should return nil,nil for missing file, got err: %v", err)
	}
	if lf != nil {
		t.Errorf("ReadLock should return nil for missing file, got %v", lf)
	}
	if lf.FindLockedDep("x") != nil {
		t.Error("FindLockedDep on nil lock file found an entry")
	}
}
