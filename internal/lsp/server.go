// Package lsp implements a Language Server Protocol server that publishes
// query diagnostics. Diagnostics are computed in the background and dropped
// when a newer version of the document arrives before they are ready.
package lsp

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/tooling"
)

// ResetMetadataCommand is the workspace command that discards all cached
// schema metadata and re-checks open documents.
const ResetMetadataCommand = "querylint.resetMetadataCache"

// MetadataResetter discards cached metadata.
type MetadataResetter interface {
	Reset(ctx context.Context) error
}

// diagnosticsPublisher is the part of protocol.Client the server uses
type diagnosticsPublisher interface {
	PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error
}

// Options configures a Server.
type Options struct {
	API      *tooling.API
	Metadata MetadataResetter
	Logger   *zap.Logger
	Version  string
}

// Server implements the LSP server
type Server struct {
	// api produces diagnostics for cached documents
	api *tooling.API

	metadata MetadataResetter
	version  string

	// conn is the JSON-RPC connection
	conn jsonrpc2.Conn

	// client receives published diagnostics
	client diagnosticsPublisher

	logger *zap.Logger

	// workspaceRoot is the root directory of the workspace
	workspaceRoot string

	// Server capabilities
	capabilities protocol.ServerCapabilities

	// ctx bounds every background diagnostics pass
	ctx context.Context

	// cancel is used to signal server shutdown
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pass
	wg      sync.WaitGroup
}

// pass is one scheduled diagnostics computation for a document version
type pass struct {
	version int
	cancel  context.CancelFunc
}

// NewServer creates a new LSP server instance
func NewServer(opts Options) *Server {
	if opts.API == nil {
		opts.API = tooling.NewAPI()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		api:      opts.API,
		metadata: opts.Metadata,
		version:  opts.Version,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*pass),
		capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
				Save: &protocol.SaveOptions{
					IncludeText: false,
				},
			},
			HoverProvider: true,
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{ResetMetadataCommand},
			},
		},
	}
}

// Run starts the LSP server on stdin and stdout and blocks until the client
// exits or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting language server", zap.String("version", s.version))

	// Create context with cancellation for shutdown
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel

	// Create JSON-RPC stream handler
	stream := jsonrpc2.NewStream(stdrwc{})

	// Create connection
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn
	s.client = protocol.ClientDispatcher(conn, s.logger.Named("client"))

	// Register handlers
	conn.Go(ctx, s.handler())

	// Wait for context cancellation or a dropped connection
	select {
	case <-ctx.Done():
	case <-conn.Done():
		cancel()
	}
	s.wait()

	s.logger.Info("shutting down language server")
	return conn.Close()
}

// handler returns the JSON-RPC handler function
func (s *Server) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		s.logger.Debug("received", zap.String("method", req.Method()))

		switch req.Method() {
		case protocol.MethodInitialize:
			return s.handleInitialize(ctx, reply, req)
		case protocol.MethodInitialized:
			return s.handleInitialized(ctx, reply, req)
		case protocol.MethodShutdown:
			return s.handleShutdown(ctx, reply, req)
		case protocol.MethodExit:
			return s.handleExit(ctx, reply, req)
		case protocol.MethodTextDocumentDidOpen:
			return s.handleTextDocumentDidOpen(ctx, reply, req)
		case protocol.MethodTextDocumentDidChange:
			return s.handleTextDocumentDidChange(ctx, reply, req)
		case protocol.MethodTextDocumentDidClose:
			return s.handleTextDocumentDidClose(ctx, reply, req)
		case protocol.MethodTextDocumentDidSave:
			return s.handleTextDocumentDidSave(ctx, reply, req)
		case protocol.MethodTextDocumentHover:
			return s.handleTextDocumentHover(ctx, reply, req)
		case protocol.MethodWorkspaceExecuteCommand:
			return s.handleWorkspaceExecuteCommand(ctx, reply, req)
		case protocol.MethodWorkspaceDidChangeConfiguration:
			return s.handleWorkspaceDidChangeConfiguration(ctx, reply, req)
		default:
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}
	}
}

// handleInitialize handles the initialize request
func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse initialize params")
	}

	if params.ClientInfo != nil {
		s.logger.Info("initialize", zap.String("client", params.ClientInfo.Name))
	}

	// Extract workspace root from params
	if len(params.WorkspaceFolders) > 0 {
		s.workspaceRoot = uri.URI(params.WorkspaceFolders[0].URI).Filename()
	} else if params.RootURI != "" {
		// Fall back to rootUri (deprecated but still used)
		s.workspaceRoot = params.RootURI.Filename()
	} else if params.RootPath != "" {
		s.workspaceRoot = params.RootPath
	}
	if s.workspaceRoot != "" {
		s.logger.Info("workspace root set", zap.String("root", s.workspaceRoot))
	}

	result := protocol.InitializeResult{
		Capabilities: s.capabilities,
		ServerInfo: &protocol.ServerInfo{
			Name:    "querylint",
			Version: s.version,
		},
	}

	return reply(ctx, result, nil)
}

// handleInitialized handles the initialized notification
func (s *Server) handleInitialized(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Debug("client initialized")
	return reply(ctx, nil, nil)
}

// handleShutdown handles the shutdown request
func (s *Server) handleShutdown(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Info("shutdown requested")
	return reply(ctx, nil, nil)
}

// handleExit handles the exit notification
func (s *Server) handleExit(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	// Reply first, then trigger shutdown
	if err := reply(ctx, nil, nil); err != nil {
		s.logger.Warn("error replying to exit", zap.Error(err))
	}
	// Cancel the context to trigger graceful shutdown
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// replyWithError sends an LSP-compliant error response
func (s *Server) replyWithError(ctx context.Context, reply jsonrpc2.Replier, code jsonrpc2.Code, message string) error {
	return reply(ctx, nil, &jsonrpc2.Error{
		Code:    code,
		Message: message,
	})
}

// schedule starts a background diagnostics pass for a document version and
// cancels any pass still running for an older version.
func (s *Server) schedule(docURI string, version int) {
	ctx, cancel := context.WithCancel(s.ctx)
	p := &pass{version: version, cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.pending[docURI]; ok {
		prev.cancel()
	}
	s.pending[docURI] = p
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(docURI, p)
		s.publishDiagnostics(ctx, docURI, version)
	}()
}

func (s *Server) finish(docURI string, p *pass) {
	p.cancel()

	s.mu.Lock()
	if s.pending[docURI] == p {
		delete(s.pending, docURI)
	}
	s.mu.Unlock()
}

// current reports whether version is still the newest scheduled version.
func (s *Server) current(docURI string, version int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[docURI]
	return ok && p.version == version
}

// forget cancels the pending pass of a closed document.
func (s *Server) forget(docURI string) {
	s.mu.Lock()
	if p, ok := s.pending[docURI]; ok {
		p.cancel()
		delete(s.pending, docURI)
	}
	s.mu.Unlock()
}

// wait blocks until all background passes have finished.
func (s *Server) wait() {
	s.wg.Wait()
}

// publishDiagnostics computes and publishes diagnostics for a document
func (s *Server) publishDiagnostics(ctx context.Context, docURI string, version int) {
	diagnostics, err := s.api.GetDiagnostics(ctx, docURI)
	if err != nil {
		s.logger.Debug("no diagnostics", zap.String("uri", docURI), zap.Error(err))
		return
	}

	if ctx.Err() != nil || !s.current(docURI, version) {
		s.logger.Debug("dropping stale diagnostics",
			zap.String("uri", docURI),
			zap.Int("version", version))
		return
	}

	s.send(ctx, docURI, version, convertDiagnostics(diagnostics))
}

func (s *Server) send(ctx context.Context, docURI string, version int, diagnostics []protocol.Diagnostic) {
	if s.client == nil {
		return
	}

	params := protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(docURI),
		Version:     uint32(version),
		Diagnostics: diagnostics,
	}

	if err := s.client.PublishDiagnostics(ctx, &params); err != nil {
		s.logger.Warn("error publishing diagnostics", zap.String("uri", docURI), zap.Error(err))
	}
}

func convertDiagnostics(diagnostics []tooling.Diagnostic) []protocol.Diagnostic {
	lspDiagnostics := make([]protocol.Diagnostic, 0, len(diagnostics))
	for _, d := range diagnostics {
		lspDiagnostics = append(lspDiagnostics, protocol.Diagnostic{
			Range:    convertRange(d.Range),
			Severity: convertSeverity(d.Severity),
			Code:     d.Code,
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	return lspDiagnostics
}

func convertRange(r tooling.Range) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{
			Line:      uint32(r.Start.Line),
			Character: uint32(r.Start.Character),
		},
		End: protocol.Position{
			Line:      uint32(r.End.Line),
			Character: uint32(r.End.Character),
		},
	}
}

// convertSeverity converts tooling diagnostic severity to LSP severity
func convertSeverity(severity tooling.DiagnosticSeverity) protocol.DiagnosticSeverity {
	switch severity {
	case tooling.DiagnosticSeverityError:
		return protocol.DiagnosticSeverityError
	case tooling.DiagnosticSeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case tooling.DiagnosticSeverityInfo:
		return protocol.DiagnosticSeverityInformation
	case tooling.DiagnosticSeverityHint:
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityError
	}
}

// stdrwc implements io.ReadWriteCloser for stdin/stdout
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
