package server

import (
	"errors"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/pyaot/codegen"
	"github.com/chazu/pyaot/pyast"
)

const importTkinter = `{"_type": "Module", "body": [
  {"_type": "Import", "lineno": 2, "col_offset": 0,
   "names": [{"_type": "alias", "name": "tkinter", "asname": null}]}],
 "type_ignores": []}`

// ---------------------------------------------------------------------------
// Document names
// ---------------------------------------------------------------------------

func TestModuleName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"file:///src/util.json", "util"},
		{"file:///src/pkg/__init__.json", "pkg"},
		{"untitled:scratch.json", "untitled:scratch"},
		{"/plain/path/main.json", "main"},
	}
	for _, tc := range tests {
		if got := moduleName(tc.uri); got != tc.want {
			t.Errorf("moduleName(%q) = %q, want %q", tc.uri, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestLspDiagnostics(t *testing.T) {
	diags := []codegen.Diagnostic{
		{Severity: codegen.Warning, Module: "main", Pos: pyast.Pos{Line: 3, Column: 4}, Message: "unknown type"},
		{Severity: codegen.Error, Module: "main", Pos: pyast.Pos{Line: 0}, Message: "import cycle"},
		{Severity: codegen.Error, Module: "util", Pos: pyast.Pos{Line: 1}, Message: "elsewhere"},
	}
	got := lspDiagnostics("main", diags)
	if len(got) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(got))
	}
	if got[0].Range.Start.Line != 2 || got[0].Range.Start.Character != 4 {
		t.Errorf("range = %+v, want line 2 character 4", got[0].Range.Start)
	}
	if *got[0].Severity != protocol.DiagnosticSeverityWarning {
		t.Errorf("severity = %v, want warning", *got[0].Severity)
	}
	if got[1].Range.Start.Line != 0 {
		t.Errorf("line 0 position maps to %d", got[1].Range.Start.Line)
	}
	if *got[1].Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", *got[1].Severity)
	}
	if *got[1].Source != lspName {
		t.Errorf("source = %q, want %q", *got[1].Source, lspName)
	}
}

func TestLspDiagnostics_EmptyIsNotNil(t *testing.T) {
	if got := lspDiagnostics("main", nil); got == nil {
		t.Error("no diagnostics must publish an empty list, not null")
	}
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func TestWorker_Generate(t *testing.T) {
	w := NewWorker(codegen.Options{Entry: true})
	defer w.Stop()

	res, err := w.Generate("main", importTkinter)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(res.Source, "const tkinter = struct {};") {
		t.Errorf("unexpected source:\n%s", res.Source)
	}
	diags := lspDiagnostics("main", res.Diagnostics)
	if len(diags) != 1 || diags[0].Range.Start.Line != 1 {
		t.Errorf("diagnostics = %+v", diags)
	}
}

func TestWorker_DecodeError(t *testing.T) {
	w := NewWorker(codegen.Options{})
	defer w.Stop()
	if _, err := w.Generate("main", "{not json"); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestWorker_RecoversPanics(t *testing.T) {
	w := NewWorker(codegen.Options{})
	defer w.Stop()
	_, err := w.Do(func(codegen.Options) any { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want recovered panic", err)
	}
	// the worker keeps serving
	v, err := w.Do(func(opts codegen.Options) any { return 42 })
	if err != nil || v.(int) != 42 {
		t.Errorf("Do after panic = %v, %v", v, err)
	}
}

func TestWorker_Stopped(t *testing.T) {
	w := NewWorker(codegen.Options{})
	w.Stop()
	if _, err := w.Do(func(codegen.Options) any { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestExecuteGenerate(t *testing.T) {
	s := NewLSP(codegen.Options{Entry: true})
	defer s.worker.Stop()
	uri := "file:///src/main.json"
	s.docs[uri] = importTkinter

	out, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command:   CommandGenerate,
		Arguments: []any{uri},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if src, _ := out.(string); !strings.Contains(src, "pub fn main() !void {") {
		t.Errorf("unexpected output %v", out)
	}

	if _, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command:   CommandGenerate,
		Arguments: []any{"file:///closed.json"},
	}); err == nil {
		t.Error("expected an error for a document that is not open")
	}
	if _, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{Command: "other"}); err == nil {
		t.Error("expected an error for an unknown command")
	}
}
