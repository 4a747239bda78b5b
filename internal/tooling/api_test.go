package tooling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querylint/querylint/internal/query"
)

// stubValidator reports one hint per query at the query origin.
type stubValidator struct {
	calls int
}

func (v *stubValidator) Validate(ctx context.Context, doc *Document, q *query.Query) []Diagnostic {
	v.calls++
	return []Diagnostic{{
		Range:    q.Origin.Translate(Range{}),
		Severity: DiagnosticSeverityHint,
		Code:     "stub",
		Source:   DiagnosticSource,
	}}
}

type panicValidator struct{}

func (panicValidator) Validate(ctx context.Context, doc *Document, q *query.Query) []Diagnostic {
	panic("boom")
}

type countingRecorder struct {
	codes    map[string]int
	observed int
}

func (r *countingRecorder) RecordDiagnostic(code string) {
	if r.codes == nil {
		r.codes = map[string]int{}
	}
	r.codes[code]++
}

func (r *countingRecorder) ObserveAnalysis(d time.Duration) {
	r.observed++
}

func TestAPICreation(t *testing.T) {
	api := NewAPI()
	require.NotNil(t, api)
	assert.NotNil(t, api.documents)
	assert.NotNil(t, api.logger)
	assert.Empty(t, api.validators)
}

func TestParseFile(t *testing.T) {
	api := NewAPI()

	doc, err := api.ParseFile("account.graphql", `query { uiapi { query { Account { edges { node { Name { value } } } } } } }`)
	require.NoError(t, err)

	assert.Equal(t, "account.graphql", doc.URI)
	assert.Equal(t, 1, doc.Version)
	assert.Len(t, doc.Queries, 1)
	assert.Empty(t, doc.ParseErrors)

	cached, ok := api.GetDocument("account.graphql")
	require.True(t, ok)
	assert.Same(t, doc, cached)
}

func TestParseFileWithSyntaxError(t *testing.T) {
	api := NewAPI()

	doc, err := api.ParseFile("broken.graphql", "query {")
	require.NoError(t, err)

	assert.Empty(t, doc.Queries)
	require.Len(t, doc.ParseErrors, 1)

	diags, err := api.GetDiagnostics(context.Background(), "broken.graphql")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, CodeParseError, diags[0].Code)
	assert.Equal(t, DiagnosticSeverityError, diags[0].Severity)
	assert.Equal(t, DiagnosticSource, diags[0].Source)
}

func TestParseFileWithEmbeddedQueries(t *testing.T) {
	api := NewAPI()
	content := "const a = gql`query { uiapi { query { Account { edges { node { Name { value } } } } } } }`;\n" +
		"const b = gql`query {`;\n"

	doc, err := api.ParseFile("component.js", content)
	require.NoError(t, err)

	require.Len(t, doc.Queries, 1)
	assert.Equal(t, query.Origin{Line: 0, Character: 14}, doc.Queries[0].Origin)
	require.Len(t, doc.ParseErrors, 1)
	assert.Equal(t, 1, doc.ParseErrors[0].Range.Start.Line)
}

func TestUpdateDocument(t *testing.T) {
	api := NewAPI()

	_, err := api.ParseFile("q.graphql", "query { a }")
	require.NoError(t, err)

	doc, err := api.UpdateDocument("q.graphql", "query { b }", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, "query { b }", doc.Content)

	same, err := api.UpdateDocument("q.graphql", "query { b }", 3)
	require.NoError(t, err)
	assert.Same(t, doc, same)
	assert.Equal(t, 3, same.Version)
}

func TestCloseDocument(t *testing.T) {
	api := NewAPI()

	_, err := api.ParseFile("q.graphql", "query { a }")
	require.NoError(t, err)

	api.CloseDocument("q.graphql")

	_, ok := api.GetDocument("q.graphql")
	assert.False(t, ok)

	_, err = api.GetDiagnostics(context.Background(), "q.graphql")
	assert.Error(t, err)
}

func TestGetDiagnosticsRunsValidatorsPerQuery(t *testing.T) {
	stub := &stubValidator{}
	recorder := &countingRecorder{}
	api := NewAPI(WithValidators(stub), WithRecorder(recorder))

	content := "gql`query { a }`\ngql`query { b }`\n"
	_, err := api.ParseFile("two.ts", content)
	require.NoError(t, err)

	diags, err := api.GetDiagnostics(context.Background(), "two.ts")
	require.NoError(t, err)

	assert.Equal(t, 2, stub.calls)
	require.Len(t, diags, 2)
	assert.Equal(t, Position{Line: 0, Character: 4}, diags[0].Range.Start)
	assert.Equal(t, Position{Line: 1, Character: 4}, diags[1].Range.Start)

	assert.Equal(t, 1, recorder.observed)
	assert.Equal(t, 2, recorder.codes["stub"])
}

func TestGetDiagnosticsRecoversFromPanics(t *testing.T) {
	stub := &stubValidator{}
	api := NewAPI(WithValidators(panicValidator{}, stub))

	_, err := api.ParseFile("q.graphql", "query { a }")
	require.NoError(t, err)

	diags, err := api.GetDiagnostics(context.Background(), "q.graphql")
	require.NoError(t, err)
	assert.Len(t, diags, 1)
	assert.Equal(t, "stub", diags[0].Code)
}

func TestDiagnosticSeverityString(t *testing.T) {
	tests := []struct {
		severity DiagnosticSeverity
		want     string
	}{
		{DiagnosticSeverityError, "error"},
		{DiagnosticSeverityWarning, "warning"},
		{DiagnosticSeverityInfo, "info"},
		{DiagnosticSeverityHint, "hint"},
		{DiagnosticSeverity(42), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.severity.String())
	}
}

func TestDocuments(t *testing.T) {
	api := NewAPI()
	assert.Empty(t, api.Documents())

	_, _ = api.ParseFile("b.graphql", "query { b }")
	_, _ = api.ParseFile("a.graphql", "query { a }")

	assert.Equal(t, []string{"a.graphql", "b.graphql"}, api.Documents())
}
