package tooling

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql/language/ast"

	"github.com/querylint/querylint/internal/query"
	"github.com/querylint/querylint/internal/sizecheck"
)

// DiagnosticSource names this tool in every diagnostic
const DiagnosticSource = "querylint"

// Diagnostic codes
const (
	CodeParseError      = "parse-error"
	CodeOversizedField  = "oversized-field"
	CodeOversizedRecord = "oversized-record"
)

var (
	oversizedFieldMessage = fmt.Sprintf(
		"This field's value could exceed the %d KB size limit. Consider removing it from the query or querying it separately.",
		sizecheck.MaxFieldSize/1024)
	oversizedRecordMessage = fmt.Sprintf(
		"The total field size of this record could exceed the %d KB size limit. Consider selecting fewer fields.",
		sizecheck.MaxFieldSize/1024)
)

// Diagnostic represents a problem found in a document
type Diagnostic struct {
	Range    Range
	Severity DiagnosticSeverity
	Code     string
	Message  string
	Source   string
}

// DiagnosticSeverity indicates the severity of a diagnostic
type DiagnosticSeverity int

const (
	// DiagnosticSeverityError represents an error diagnostic
	DiagnosticSeverityError DiagnosticSeverity = iota
	// DiagnosticSeverityWarning represents a warning diagnostic
	DiagnosticSeverityWarning
	// DiagnosticSeverityInfo represents an informational diagnostic
	DiagnosticSeverityInfo
	// DiagnosticSeverityHint represents a hint diagnostic
	DiagnosticSeverityHint
)

func (s DiagnosticSeverity) String() string {
	switch s {
	case DiagnosticSeverityError:
		return "error"
	case DiagnosticSeverityWarning:
		return "warning"
	case DiagnosticSeverityInfo:
		return "info"
	case DiagnosticSeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Validator produces diagnostics for one parsed query of a document.
// Implementations must not return errors; failures yield fewer diagnostics.
type Validator interface {
	Validate(ctx context.Context, doc *Document, q *query.Query) []Diagnostic
}

// FormatOversized turns a size check result into diagnostics anchored at the
// name of each flagged field. A record flagged at several nesting depths is
// reported once per occurrence.
func FormatOversized(q *query.Query, result sizecheck.Result) []Diagnostic {
	diagnostics := make([]Diagnostic, 0, len(result.OversizedFields)+len(result.OversizedEntities))
	diagnostics = appendInfo(diagnostics, q, result.OversizedFields, CodeOversizedField, oversizedFieldMessage)
	diagnostics = appendInfo(diagnostics, q, result.OversizedEntities, CodeOversizedRecord, oversizedRecordMessage)
	return diagnostics
}

func appendInfo(diagnostics []Diagnostic, q *query.Query, fields []*ast.Field, code, message string) []Diagnostic {
	for _, f := range fields {
		diagnostics = append(diagnostics, Diagnostic{
			Range:    q.NameRange(f),
			Severity: DiagnosticSeverityInfo,
			Code:     code,
			Message:  message,
			Source:   DiagnosticSource,
		})
	}
	return diagnostics
}
