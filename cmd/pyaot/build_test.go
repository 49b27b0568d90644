package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/pyaot/codegen"
	"github.com/chazu/pyaot/pyast"
)

func TestTreeModuleName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.json", "main"},
		{"src/app/util.json", "util"},
		{"src/geo/__init__.json", "geo"},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		if got := treeModuleName(tt.path); got != tt.want {
			t.Errorf("treeModuleName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPrintDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	diags := []codegen.Diagnostic{
		{Severity: codegen.Warning, Module: "main", Pos: pyast.Pos{Line: 1}, Message: "module tkinter is not supported"},
	}
	if printDiagnostics(&buf, diags) {
		t.Error("warnings alone should not fail the build")
	}
	if !strings.Contains(buf.String(), "main:1:0: warning: module tkinter is not supported") {
		t.Errorf("unexpected output %q", buf.String())
	}

	diags = append(diags, codegen.Diagnostic{Severity: codegen.Error, Module: "main", Message: "boom"})
	buf.Reset()
	if !printDiagnostics(&buf, diags) {
		t.Error("an error diagnostic should fail the build")
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("printed %d lines, want 2", n)
	}
}

func TestLoadRegistry(t *testing.T) {
	reg, err := loadRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Lookup("math"); !ok {
		t.Error("built-in registry should know math")
	}

	if _, err := loadRegistry(filepath.Join(t.TempDir(), "missing.cue")); err == nil {
		t.Error("expected error for a missing registry file")
	}
}

func TestLoadProjectWithoutManifest(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	p, err := loadProject()
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Errorf("expected no project in %s", dir)
	}
}
