// Package query parses record queries written in the GraphQL selection syntax
// and translates source offsets into editor positions.
package query

import (
	"errors"
	"fmt"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// Query is a parsed query document together with the information needed to
// map its local offsets back into the document that contains it.
type Query struct {
	// Text is the query source exactly as parsed
	Text string

	// Document is the parsed abstract syntax tree
	Document *ast.Document

	// Origin is where Text starts inside the host document
	Origin Origin

	lines *LineIndex
}

// SyntaxError describes a query that could not be parsed.
type SyntaxError struct {
	Message string
	Range   Range
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Range.Start.Line+1, e.Range.Start.Character+1, e.Message)
}

// Parse parses a standalone query document.
func Parse(text string) (*Query, error) {
	return ParseAt(text, Origin{})
}

// ParseAt parses a query whose first character sits at origin in a larger
// host document.
func ParseAt(text string, origin Origin) (*Query, error) {
	src := source.NewSource(&source.Source{
		Body: []byte(text),
		Name: "query",
	})

	lines := NewLineIndex(text)
	doc, err := parser.Parse(parser.ParseParams{Source: src})
	if err != nil {
		return nil, newSyntaxError(err, lines, origin)
	}

	return &Query{
		Text:     text,
		Document: doc,
		Origin:   origin,
		lines:    lines,
	}, nil
}

// NameRange returns the host-document range covered by a field's name token.
// Aliased fields still point at the field name, not the alias.
func (q *Query) NameRange(field *ast.Field) Range {
	if field == nil || field.Name == nil || field.Name.Loc == nil {
		return q.Origin.Translate(Range{})
	}
	local := Range{
		Start: q.lines.Position(field.Name.Loc.Start),
		End:   q.lines.Position(field.Name.Loc.End),
	}
	return q.Origin.Translate(local)
}

// newSyntaxError places the error at its byte position. The line/column
// locations graphql-go reports count bytes, not characters.
func newSyntaxError(err error, lines *LineIndex, origin Origin) error {
	var gqlErr *gqlerrors.Error
	if !errors.As(err, &gqlErr) {
		return &SyntaxError{Message: err.Error(), Range: origin.Translate(Range{})}
	}

	var start Position
	switch {
	case len(gqlErr.Positions) > 0:
		start = lines.Position(gqlErr.Positions[0])
	case len(gqlErr.Locations) > 0:
		loc := gqlErr.Locations[0]
		start = Position{Line: loc.Line - 1, Character: loc.Column - 1}
	default:
		return &SyntaxError{Message: gqlErr.Message, Range: origin.Translate(Range{})}
	}
	end := Position{Line: start.Line, Character: start.Character + 1}
	return &SyntaxError{
		Message: gqlErr.Message,
		Range:   origin.Translate(Range{Start: start, End: end}),
	}
}
