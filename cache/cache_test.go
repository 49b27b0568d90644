package cache

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/pyaot/codegen"
	"github.com/chazu/pyaot/pyast"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func sampleResult() *codegen.Result {
	return &codegen.Result{
		Source: "pub fn two() anyerror!i64 {\n    return 2;\n}\n",
		Diagnostics: []codegen.Diagnostic{
			{Severity: codegen.Warning, Module: "util", Pos: pyast.Pos{Line: 3, Column: 4}, Message: "type of x is unknown"},
		},
		LinkLibraries: []string{"sqlite3"},
		Modules:       []string{"helpers"},
	}
}

func TestStore_Miss(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.Get("util:abc:strict=false")
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("err = %v, want ErrMiss", err)
	}
	if !errors.Is(err, codegen.ErrCacheMiss) {
		t.Errorf("ErrMiss does not wrap codegen.ErrCacheMiss")
	}
}

func TestStore_PutGet(t *testing.T) {
	s, _ := openTemp(t)
	want := sampleResult()
	if err := s.Put("k", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Source != want.Source {
		t.Errorf("Source = %q, want %q", got.Source, want.Source)
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0] != want.Diagnostics[0] {
		t.Errorf("Diagnostics = %v, want %v", got.Diagnostics, want.Diagnostics)
	}
	if len(got.LinkLibraries) != 1 || got.LinkLibraries[0] != "sqlite3" {
		t.Errorf("LinkLibraries = %v", got.LinkLibraries)
	}
	if len(got.Modules) != 1 || got.Modules[0] != "helpers" {
		t.Errorf("Modules = %v", got.Modules)
	}
}

func TestStore_Persists(t *testing.T) {
	s, path := openTemp(t)
	if err := s.Put("k", sampleResult()); err != nil {
		t.Fatal(err)
	}
	first := s.Build()
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if s2.Build() == first {
		t.Errorf("reopened store reuses build %s", first)
	}
	if _, err := s2.Get("k"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}

func TestStore_Sweep(t *testing.T) {
	s, path := openTemp(t)
	for _, k := range []string{"used", "unused"} {
		if err := s.Put(k, sampleResult()); err != nil {
			t.Fatal(err)
		}
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.Get("used"); err != nil {
		t.Fatal(err)
	}
	n, err := s2.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d entries, want 1", n)
	}
	if _, err := s2.Get("unused"); !errors.Is(err, ErrMiss) {
		t.Errorf("unused entry survived the sweep: %v", err)
	}
	if l, _ := s2.Len(); l != 1 {
		t.Errorf("Len = %d, want 1", l)
	}
}

func TestStore_StaleEntryIsMiss(t *testing.T) {
	s, _ := openTemp(t)
	data, err := cbor.Marshal(&entry{Version: formatVersion + 1, Source: "old"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("INSERT INTO entries (key, build, data) VALUES (?, ?, ?)", "k", s.Build(), data); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss", err)
	}
}

func TestStore_Memory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Put("k", sampleResult()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("k"); err != nil {
		t.Errorf("Get: %v", err)
	}
}

func TestMarshalResult_Canonical(t *testing.T) {
	a, err := marshalResult(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	b, err := marshalResult(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("encoding is not deterministic")
	}
}

// The generator consults the store for imported modules.
func TestStore_ServesGenerator(t *testing.T) {
	s, _ := openTemp(t)
	util := &pyast.Module{Body: []pyast.Stmt{
		&pyast.FunctionDef{Name: "two", Args: &pyast.Arguments{}, Returns: pyast.Id("int"),
			Body: []pyast.Stmt{&pyast.Return{Value: pyast.Int(2)}}},
	}}
	loader := loaderFunc(func(module string) (*pyast.Module, error) { return util, nil })
	main := &pyast.Module{Name: "main", Body: []pyast.Stmt{&pyast.Import{Names: []*pyast.Alias{{Name: "util"}}}}}
	for i := 0; i < 2; i++ {
		if _, err := codegen.Generate(main, codegen.Options{Entry: true, Loader: loader, Cache: s}); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := s.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

type loaderFunc func(string) (*pyast.Module, error)

func (f loaderFunc) Load(module string) (*pyast.Module, error) { return f(module) }
