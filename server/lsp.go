package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/tape/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "tape-lsp"

// LspServer provides diagnostics, hover and bracket navigation for tape
// programs.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → parsed document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// document is an open editor buffer and the result of compiling it.
type document struct {
	text string
	prog *compiler.Program // nil when text does not compile
	err  error

	// code and locs come from prog when it compiled, otherwise from the
	// lexer alone, so hover still works in broken buffers.
	code []compiler.Instruction
	locs []compiler.Position
}

// NewLSP creates a new LSP server. Buffers are compiled on every change and
// are not cached.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
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

		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
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
	log.Info("tape LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

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
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc := s.update(uri, params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.update(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, doc)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update compiles text and stores it as the current content of uri.
func (s *LspServer) update(uri protocol.DocumentUri, text string) *document {
	doc := parseDocument(text)

	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()
	return doc
}

func (s *LspServer) lookup(uri protocol.DocumentUri) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	return doc, ok
}

// --- Language features ---

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return doc.hover(params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	doc, ok := s.lookup(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	loc := doc.definition(params.TextDocument.URI, params.Position)
	if loc == nil {
		return nil, nil
	}
	return []protocol.Location{*loc}, nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, doc *document) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: doc.diagnostics(),
	})
}

// ---------------------------------------------------------------------------
// Document analysis
// ---------------------------------------------------------------------------

var opDocs = map[compiler.Op]string{
	compiler.OpMoveRight: "Move the data pointer one cell right.",
	compiler.OpMoveLeft:  "Move the data pointer one cell left.",
	compiler.OpIncrement: "Add one to the current cell, wrapping 255 to 0.",
	compiler.OpDecrement: "Subtract one from the current cell, wrapping 0 to 255.",
	compiler.OpWrite:     "Write the current cell to the output.",
	compiler.OpRead:      "Read one byte of input into the current cell.",
	compiler.OpLoopOpen:  "If the current cell is zero, jump past the matching `]`.",
	compiler.OpLoopClose: "If the current cell is non-zero, jump back to the matching `[`.",
}

func parseDocument(text string) *document {
	doc := &document{text: text}
	doc.prog, doc.err = compiler.Compile(text)
	if doc.prog != nil {
		doc.code = doc.prog.Instructions
		doc.locs = doc.prog.SourceMap
	} else {
		doc.code, doc.locs = compiler.LexSource(text)
	}
	return doc
}

func (d *document) diagnostics() []protocol.Diagnostic {
	if d.err == nil {
		return []protocol.Diagnostic{}
	}

	rng := protocol.Range{}
	msg := d.err.Error()
	var ce *compiler.CompileError
	if errors.As(d.err, &ce) {
		msg = ce.Err.Error()
		if ce.Pos.Line > 0 {
			rng = rangeOf(ce.Pos)
		}
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range:    rng,
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}}
}

// indexAt returns the index of the instruction under the cursor.
func (d *document) indexAt(pos protocol.Position) (int, bool) {
	line, col := int(pos.Line)+1, int(pos.Character)+1
	for i, loc := range d.locs {
		if loc.Line == line && loc.Column == col {
			return i, true
		}
		if loc.Line > line {
			break
		}
	}
	return 0, false
}

func (d *document) hover(pos protocol.Position) *protocol.Hover {
	i, ok := d.indexAt(pos)
	if !ok {
		return nil
	}
	in := d.code[i]

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%c` (instruction %d)\n\n%s", in.Op, in.Op.Glyph(), i, opDocs[in.Op])
	if in.Op.IsLoop() {
		if d.prog == nil {
			b.WriteString("\n\nBrackets are unbalanced; partner unknown.")
		} else if partner, ok := d.prog.Partner(i); ok {
			other := d.code[partner]
			fmt.Fprintf(&b, "\n\nMatches `%c` at %s.", other.Op.Glyph(), d.locs[partner])
		}
	}

	rng := rangeOf(d.locs[i])
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
		Range: &rng,
	}
}

// definition returns the location of the bracket matching the one under the
// cursor.
func (d *document) definition(uri protocol.DocumentUri, pos protocol.Position) *protocol.Location {
	if d.prog == nil {
		return nil
	}
	i, ok := d.indexAt(pos)
	if !ok {
		return nil
	}
	partner, ok := d.prog.Partner(i)
	if !ok {
		return nil
	}
	return &protocol.Location{URI: uri, Range: rangeOf(d.locs[partner])}
}

// rangeOf converts a 1-based source position to a one-character LSP range.
func rangeOf(p compiler.Position) protocol.Range {
	line := protocol.UInteger(p.Line - 1)
	col := protocol.UInteger(p.Column - 1)
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: col},
		End:   protocol.Position{Line: line, Character: col + 1},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
