package registry

import (
	"errors"
	"reflect"
	"testing"
)

func TestStrategyNames(t *testing.T) {
	for _, s := range []Strategy{Native, Foreign, Source, Unsupported} {
		got, err := ParseStrategy(s.String())
		if err != nil {
			t.Fatalf("ParseStrategy(%q): %v", s.String(), err)
		}
		if got != s {
			t.Errorf("ParseStrategy(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if _, err := ParseStrategy("magic"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("ParseStrategy(magic) error = %v, want ErrUnknownStrategy", err)
	}
}

func TestBuiltinTable(t *testing.T) {
	r := New()
	tests := []struct {
		module   string
		strategy Strategy
		imp      string
		link     string
	}{
		{"math", Native, "runtime.math", ""},
		{"asyncio", Native, "runtime.asyncio", ""},
		{"os.path", Native, "runtime.os.path", ""},
		{"numpy", Foreign, `@import("c_interop/numpy.zig")`, "openblas"},
		{"zlib", Foreign, `@import("c_interop/zlib.zig")`, "z"},
		{"pathlib", Source, `@import("pathlib.zig")`, ""},
		{"tkinter", Unsupported, "", ""},
	}
	for _, tt := range tests {
		info, ok := r.Lookup(tt.module)
		if !ok {
			t.Errorf("Lookup(%q) not found", tt.module)
			continue
		}
		if info.Strategy != tt.strategy || info.Import != tt.imp || info.Link != tt.link {
			t.Errorf("Lookup(%q) = %+v", tt.module, info)
		}
	}
	if _, ok := r.Lookup("mypackage"); ok {
		t.Error("Lookup(mypackage) should miss")
	}
	if _, ok := r.Lookup("xml.etree"); ok {
		t.Error("dotted lookups must not fall back to a parent")
	}
}

func TestAlias(t *testing.T) {
	if got := (ImportInfo{Module: "os.path"}).Alias(); got != "path" {
		t.Errorf("Alias = %q, want path", got)
	}
	if got := (ImportInfo{Module: "json"}).Alias(); got != "json" {
		t.Errorf("Alias = %q, want json", got)
	}
}

func TestRegister(t *testing.T) {
	r := Empty()
	if err := r.Register(ImportInfo{Module: "fast", Strategy: Native}); err != nil {
		t.Fatal(err)
	}
	info, _ := r.Lookup("fast")
	if info.Import != "runtime.fast" {
		t.Errorf("default native import = %q", info.Import)
	}
	if err := r.Register(ImportInfo{Module: "lz4", Strategy: Foreign}); err == nil {
		t.Error("foreign module without link should fail")
	}
	if err := r.Register(ImportInfo{Strategy: Native}); err == nil {
		t.Error("entry without module name should fail")
	}
	if err := r.Register(ImportInfo{Module: "x", Strategy: Strategy(9)}); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("bad strategy error = %v", err)
	}
	if got := r.Modules(); !reflect.DeepEqual(got, []string{"fast"}) {
		t.Errorf("Modules = %v", got)
	}
}

func TestLinkLibraries(t *testing.T) {
	r := New()
	got := r.LinkLibraries([]string{"zlib", "math", "sqlite3", "zlib", "nosuch"})
	want := []string{"sqlite3", "z"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LinkLibraries = %v, want %v", got, want)
	}
}
