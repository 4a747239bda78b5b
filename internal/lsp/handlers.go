package lsp

import (
	"context"
	"encoding/json"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/tooling"
)

// handleTextDocumentDidOpen handles document open notifications
func (s *Server) handleTextDocumentDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didOpen params")
	}

	docURI := string(params.TextDocument.URI)
	version := int(params.TextDocument.Version)

	s.logger.Debug("document opened", zap.String("uri", docURI), zap.Int("version", version))

	if _, err := s.api.UpdateDocument(docURI, params.TextDocument.Text, version); err != nil {
		s.logger.Warn("error parsing document", zap.String("uri", docURI), zap.Error(err))
	}
	s.schedule(docURI, version)

	return reply(ctx, nil, nil)
}

// handleTextDocumentDidChange handles document change notifications
func (s *Server) handleTextDocumentDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didChange params")
	}

	docURI := string(params.TextDocument.URI)
	version := int(params.TextDocument.Version)

	if len(params.ContentChanges) == 0 {
		return reply(ctx, nil, nil)
	}

	// We use full document sync, so take the last change
	content := params.ContentChanges[len(params.ContentChanges)-1].Text

	s.logger.Debug("document changed", zap.String("uri", docURI), zap.Int("version", version))

	if _, err := s.api.UpdateDocument(docURI, content, version); err != nil {
		s.logger.Warn("error updating document", zap.String("uri", docURI), zap.Error(err))
	}
	s.schedule(docURI, version)

	return reply(ctx, nil, nil)
}

// handleTextDocumentDidClose handles document close notifications
func (s *Server) handleTextDocumentDidClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didClose params")
	}

	docURI := string(params.TextDocument.URI)
	s.logger.Debug("document closed", zap.String("uri", docURI))

	s.forget(docURI)
	s.api.CloseDocument(docURI)

	// Clear whatever the editor still shows for the closed document
	s.send(ctx, docURI, 0, []protocol.Diagnostic{})

	return reply(ctx, nil, nil)
}

// handleTextDocumentDidSave handles document save notifications
func (s *Server) handleTextDocumentDidSave(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidSaveTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse didSave params")
	}

	docURI := string(params.TextDocument.URI)
	if doc, ok := s.api.GetDocument(docURI); ok {
		s.schedule(docURI, doc.Version)
	}

	return reply(ctx, nil, nil)
}

// handleWorkspaceExecuteCommand runs server commands
func (s *Server) handleWorkspaceExecuteCommand(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.ExecuteCommandParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse executeCommand params")
	}

	switch params.Command {
	case ResetMetadataCommand:
		if err := s.resetMetadata(ctx); err != nil {
			return s.replyWithError(ctx, reply, jsonrpc2.InternalError, "Failed to reset metadata cache")
		}
		return reply(ctx, nil, nil)
	default:
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Unknown command: "+params.Command)
	}
}

// handleWorkspaceDidChangeConfiguration treats any settings change as a
// possible change of org or credentials.
func (s *Server) handleWorkspaceDidChangeConfiguration(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if err := s.resetMetadata(ctx); err != nil {
		s.logger.Warn("error resetting metadata", zap.Error(err))
	}
	return reply(ctx, nil, nil)
}

// resetMetadata discards cached metadata and re-checks every open document.
func (s *Server) resetMetadata(ctx context.Context) error {
	if s.metadata != nil {
		if err := s.metadata.Reset(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("metadata cache reset")

	for _, docURI := range s.api.Documents() {
		if doc, ok := s.api.GetDocument(docURI); ok {
			s.schedule(docURI, doc.Version)
		}
	}
	return nil
}

// handleTextDocumentHover reports the resolved size of the field under the
// cursor
func (s *Server) handleTextDocumentHover(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.HoverParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return s.replyWithError(ctx, reply, jsonrpc2.InvalidParams, "Failed to parse hover params")
	}

	docURI := string(params.TextDocument.URI)
	pos := tooling.Position{
		Line:      int(params.Position.Line),
		Character: int(params.Position.Character),
	}

	hover, err := s.api.GetHover(ctx, docURI, pos)
	if err != nil {
		s.logger.Debug("no hover", zap.String("uri", docURI), zap.Error(err))
		return reply(ctx, nil, nil)
	}
	if hover == nil {
		return reply(ctx, nil, nil)
	}

	rng := convertRange(hover.Range)
	return reply(ctx, protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: hover.Contents,
		},
		Range: &rng,
	}, nil)
}
