package lsp

import (
	"context"
	"sync"

	"go.lsp.dev/protocol"
)

// recordingPublisher collects published diagnostics instead of sending them
// over a connection.
type recordingPublisher struct {
	mu        sync.Mutex
	published []*protocol.PublishDiagnosticsParams
}

func (p *recordingPublisher) PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, params)
	return nil
}

func (p *recordingPublisher) all() []*protocol.PublishDiagnosticsParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*protocol.PublishDiagnosticsParams(nil), p.published...)
}

func (p *recordingPublisher) forURI(docURI string) []*protocol.PublishDiagnosticsParams {
	var out []*protocol.PublishDiagnosticsParams
	for _, params := range p.all() {
		if string(params.URI) == docURI {
			out = append(out, params)
		}
	}
	return out
}
