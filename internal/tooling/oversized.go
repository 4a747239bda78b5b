package tooling

import (
	"context"

	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/entitytree"
	"github.com/querylint/querylint/internal/query"
	"github.com/querylint/querylint/internal/sizecheck"
)

// OversizedRecordValidator flags selected fields and records whose byte size
// could exceed sizecheck.MaxFieldSize.
type OversizedRecordValidator struct {
	builder *entitytree.Builder
	engine  *sizecheck.Engine
	logger  *zap.Logger
}

// NewOversizedRecordValidator creates the validator.
func NewOversizedRecordValidator(builder *entitytree.Builder, engine *sizecheck.Engine, logger *zap.Logger) *OversizedRecordValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OversizedRecordValidator{builder: builder, engine: engine, logger: logger}
}

// Analyze builds the entity tree of q and runs the size check over it. The
// returned tree carries the resolved names and sizes.
func (v *OversizedRecordValidator) Analyze(ctx context.Context, q *query.Query) (*entitytree.Root, sizecheck.Result) {
	root := v.builder.Build(q.Document)
	return root, v.engine.ComputeOversized(ctx, root)
}

// Validate implements Validator.
func (v *OversizedRecordValidator) Validate(ctx context.Context, doc *Document, q *query.Query) []Diagnostic {
	if q == nil || q.Document == nil {
		return nil
	}

	_, result := v.Analyze(ctx, q)
	if ctx.Err() != nil {
		v.logger.Debug("analysis abandoned", zap.String("uri", doc.URI))
		return nil
	}
	return FormatOversized(q, result)
}
