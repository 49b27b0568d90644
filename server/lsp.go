package server

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/pyaot/codegen"
	"github.com/chazu/pyaot/manifest"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "pyaot-lsp"

// CommandGenerate returns the Zig source generated for the document whose
// URI is its single argument.
const CommandGenerate = "pyaot.generate"

var log = commonlog.GetLogger("pyaot.server")

// LspServer publishes generator diagnostics for syntax tree documents:
// JSON dumps of CPython ast modules.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server generating with opts.
func NewLSP(opts codegen.Options) *LspServer {
	s := &LspServer{
		worker:  NewWorker(opts),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		WorkspaceExecuteCommand: s.workspaceExecuteCommand,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("pyaot LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{CommandGenerate},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[uri] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[uri] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Commands ---

func (s *LspServer) workspaceExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	if params.Command != CommandGenerate {
		return nil, fmt.Errorf("unknown command %q", params.Command)
	}
	if len(params.Arguments) != 1 {
		return nil, fmt.Errorf("%s takes one document URI", CommandGenerate)
	}
	uri, ok := params.Arguments[0].(string)
	if !ok {
		return nil, fmt.Errorf("%s: argument is %T, not a URI", CommandGenerate, params.Arguments[0])
	}
	return s.generate(uri)
}

// generate returns the Zig source of an open document.
func (s *LspServer) generate(uri string) (string, error) {
	s.mu.Lock()
	text, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("document %s is not open", uri)
	}
	res, err := s.worker.Generate(moduleName(uri), text)
	if err != nil {
		return "", err
	}
	return res.Source, nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	module := moduleName(uri)
	res, err := s.worker.Generate(module, text)
	var diagnostics []protocol.Diagnostic
	switch {
	case err == ErrStopped:
		return
	case err != nil:
		diagnostics = []protocol.Diagnostic{errorDiagnostic(err)}
	default:
		diagnostics = lspDiagnostics(module, res.Diagnostics)
	}
	log.Debugf("%s: %d diagnostics", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// lspDiagnostics converts the diagnostics reported for module. Those of
// modules it imports belong to other documents and are dropped.
func lspDiagnostics(module string, diags []codegen.Diagnostic) []protocol.Diagnostic {
	out := []protocol.Diagnostic{}
	source := lspName
	for _, d := range diags {
		if d.Module != module {
			continue
		}
		severity := protocol.DiagnosticSeverityWarning
		if d.Severity == codegen.Error {
			severity = protocol.DiagnosticSeverityError
		}
		line := d.Pos.Line - 1
		if line < 0 {
			line = 0
		}
		start := protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(d.Pos.Column)}
		out = append(out, protocol.Diagnostic{
			Range:    protocol.Range{Start: start, End: start},
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}

// errorDiagnostic reports a document that could not be lowered at all.
func errorDiagnostic(err error) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	return protocol.Diagnostic{
		Range:    protocol.Range{},
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}
}

// moduleName derives the module a document holds from its URI:
// file:///src/pkg/util.json holds util.
func moduleName(uri string) string {
	p := uri
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
	}
	name := strings.TrimSuffix(path.Base(p), manifest.TreeExt)
	if name == "__init__" {
		name = path.Base(path.Dir(p))
	}
	return name
}

func boolPtr(b bool) *bool {
	return &b
}
