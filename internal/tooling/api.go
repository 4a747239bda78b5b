// Package tooling provides a programmatic API for IDE integration via LSP.
// It keeps parsed query documents and runs the registered validators over
// them in a thread-safe manner.
package tooling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/query"
)

// API provides thread-safe access to query analysis for IDE integration.
// It maintains document state and produces diagnostics on demand.
type API struct {
	// Document cache stores parsed queries per URI
	documents map[string]*Document
	docsMutex sync.RWMutex

	validators []Validator
	analyzer   Analyzer
	recorder   Recorder
	logger     *zap.Logger
}

// Document represents a cached document with its parsed queries
type Document struct {
	// URI is the document identifier (typically a file path)
	URI string

	// Content is the raw document text
	Content string

	// Version tracks document changes (incremented on each update)
	Version int

	// Queries holds every query that parsed successfully. A query document
	// has at most one; a script may embed several.
	Queries []*query.Query

	// ParseErrors contains syntax errors of queries that failed to parse
	ParseErrors []*query.SyntaxError
}

// Position represents a position in a document (zero-based for LSP compatibility)
type Position = query.Position

// Range represents a range in a document
type Range = query.Range

// Recorder receives analysis statistics, typically for metrics.
type Recorder interface {
	RecordDiagnostic(code string)
	ObserveAnalysis(d time.Duration)
}

// Option configures an API.
type Option func(*API)

// WithValidators registers diagnostic producers.
func WithValidators(validators ...Validator) Option {
	return func(a *API) {
		a.validators = append(a.validators, validators...)
	}
}

// WithRecorder reports analysis statistics to r.
func WithRecorder(r Recorder) Option {
	return func(a *API) {
		a.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// NewAPI creates a new tooling API instance
func NewAPI(opts ...Option) *API {
	a := &API{
		documents: make(map[string]*Document),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ParseFile parses a document and caches it
func (a *API) ParseFile(uri, content string) (*Document, error) {
	doc := parseDocument(uri, content)

	a.docsMutex.Lock()
	a.documents[uri] = doc
	a.docsMutex.Unlock()

	return doc, nil
}

// UpdateDocument updates an existing document with new content
func (a *API) UpdateDocument(uri, content string, version int) (*Document, error) {
	a.docsMutex.Lock()
	oldDoc, exists := a.documents[uri]
	if exists && oldDoc.Content == content {
		// Content unchanged, update version and return cached document
		oldDoc.Version = version
		a.docsMutex.Unlock()
		return oldDoc, nil
	}
	a.docsMutex.Unlock()

	doc := parseDocument(uri, content)
	doc.Version = version

	a.docsMutex.Lock()
	a.documents[uri] = doc
	a.docsMutex.Unlock()

	return doc, nil
}

// GetDocument retrieves a cached document
func (a *API) GetDocument(uri string) (*Document, bool) {
	a.docsMutex.RLock()
	defer a.docsMutex.RUnlock()

	doc, exists := a.documents[uri]
	return doc, exists
}

// Documents returns the URIs of all cached documents in sorted order
func (a *API) Documents() []string {
	a.docsMutex.RLock()
	defer a.docsMutex.RUnlock()

	uris := make([]string, 0, len(a.documents))
	for uri := range a.documents {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// CloseDocument removes a document from the cache
func (a *API) CloseDocument(uri string) {
	a.docsMutex.Lock()
	delete(a.documents, uri)
	a.docsMutex.Unlock()
}

// GetDiagnostics returns diagnostics for a cached document. Syntax errors are
// reported directly; every parsed query is handed to each validator.
func (a *API) GetDiagnostics(ctx context.Context, uri string) ([]Diagnostic, error) {
	doc, exists := a.GetDocument(uri)
	if !exists {
		return nil, fmt.Errorf("document not found: %s", uri)
	}

	start := time.Now()
	diagnostics := make([]Diagnostic, 0)

	for _, err := range doc.ParseErrors {
		diagnostics = append(diagnostics, Diagnostic{
			Range:    err.Range,
			Severity: DiagnosticSeverityError,
			Code:     CodeParseError,
			Message:  err.Message,
			Source:   DiagnosticSource,
		})
	}

	for _, q := range doc.Queries {
		for _, v := range a.validators {
			diagnostics = append(diagnostics, a.runValidator(ctx, v, doc, q)...)
		}
	}

	if a.recorder != nil {
		a.recorder.ObserveAnalysis(time.Since(start))
		for _, d := range diagnostics {
			a.recorder.RecordDiagnostic(d.Code)
		}
	}

	return diagnostics, nil
}

// runValidator keeps a failing validator from taking down the whole pass.
func (a *API) runValidator(ctx context.Context, v Validator, doc *Document, q *query.Query) (diagnostics []Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("validator panicked",
				zap.String("uri", doc.URI),
				zap.Any("panic", r))
			diagnostics = nil
		}
	}()
	return v.Validate(ctx, doc, q)
}

func parseDocument(uri, content string) *Document {
	doc := &Document{
		URI:     uri,
		Content: content,
		Version: 1,
	}

	sources := []query.Embedded{{Text: content}}
	if query.IsEmbeddingHost(uri) {
		sources = query.ExtractEmbedded(content)
	}

	for _, src := range sources {
		q, err := query.ParseAt(src.Text, src.Origin)
		if err != nil {
			var syntaxErr *query.SyntaxError
			if errors.As(err, &syntaxErr) {
				doc.ParseErrors = append(doc.ParseErrors, syntaxErr)
			}
			continue
		}
		doc.Queries = append(doc.Queries, q)
	}

	return doc
}
