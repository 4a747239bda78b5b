package tooling

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/visitor"

	"github.com/querylint/querylint/internal/entitytree"
	"github.com/querylint/querylint/internal/query"
	"github.com/querylint/querylint/internal/sizecheck"
)

// Analyzer produces the entity tree of a query annotated with resolved
// names and sizes.
type Analyzer interface {
	Analyze(ctx context.Context, q *query.Query) (*entitytree.Root, sizecheck.Result)
}

// Hover represents hover information for a field of a query
type Hover struct {
	// Contents is markdown
	Contents string
	Range    Range
}

// WithAnalyzer enables hover information.
func WithAnalyzer(analyzer Analyzer) Option {
	return func(a *API) {
		a.analyzer = analyzer
	}
}

// GetHover returns size information for the field under pos, or nil when
// pos is not on a field name.
func (a *API) GetHover(ctx context.Context, uri string, pos Position) (*Hover, error) {
	doc, exists := a.GetDocument(uri)
	if !exists {
		return nil, fmt.Errorf("document not found: %s", uri)
	}
	if a.analyzer == nil {
		return nil, nil
	}

	for _, q := range doc.Queries {
		if !touchesField(q, pos) {
			continue
		}
		root, _ := a.analyzer.Analyze(ctx, q)
		if h := findHover(q, root, pos); h != nil {
			return h, nil
		}
	}
	return nil, nil
}

// touchesField reports whether pos is on the name of any field of q, so
// queries elsewhere in the document are not analyzed
func touchesField(q *query.Query, pos Position) bool {
	if q == nil || q.Document == nil {
		return false
	}
	found := false
	visitor.Visit(q.Document, &visitor.VisitorOptions{
		Enter: func(p visitor.VisitFuncParams) (string, interface{}) {
			field, ok := p.Node.(*ast.Field)
			if !ok || field.Name == nil {
				return visitor.ActionNoChange, nil
			}
			if contains(q.NameRange(field), pos) {
				found = true
				return visitor.ActionBreak, nil
			}
			return visitor.ActionNoChange, nil
		},
	}, nil)
	return found
}

func findHover(q *query.Query, root *entitytree.Root, pos Position) *Hover {
	if root == nil {
		return nil
	}
	for _, op := range root.Operations {
		for _, entity := range op.Entities {
			if h := entityHover(q, entity, pos); h != nil {
				return h
			}
		}
	}
	return nil
}

func entityHover(q *query.Query, entity *entitytree.Entity, pos Position) *Hover {
	if entity == nil {
		return nil
	}
	if r := q.NameRange(entity.Source); entity.Source != nil && contains(r, pos) {
		return &Hover{Contents: describeEntity(entity), Range: r}
	}
	for _, p := range entity.Properties {
		if r := q.NameRange(p.Source); p.Source != nil && contains(r, pos) {
			return &Hover{Contents: describeProperty(entity, p), Range: r}
		}
	}
	for _, rel := range entity.Relationships {
		if h := entityHover(q, rel.Entity, pos); h != nil {
			return h
		}
		for _, candidate := range rel.Candidates {
			if h := entityHover(q, candidate, pos); h != nil {
				return h
			}
		}
	}
	return nil
}

func describeEntity(entity *entitytree.Entity) string {
	var b strings.Builder
	if entity.Name != "" {
		fmt.Fprintf(&b, "**%s** record\n\n", entity.Name)
	} else {
		b.WriteString("Record of unresolved type\n\n")
	}
	writeSize(&b, "Selected fields", entity.Size)
	if n := len(entity.Relationships); n > 0 {
		fmt.Fprintf(&b, "\n\n%d related %s not counted", n, plural(n, "record", "records"))
	}
	return b.String()
}

func describeProperty(parent *entitytree.Entity, p *entitytree.Property) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", p.Name)
	if parent.Name != "" {
		fmt.Fprintf(&b, " field of `%s`", parent.Name)
	}
	b.WriteString("\n\n")
	writeSize(&b, "Size", p.Size)
	return b.String()
}

func writeSize(b *strings.Builder, label string, size int) {
	if size == entitytree.UnknownSize {
		fmt.Fprintf(b, "%s: unknown (metadata unavailable)", label)
		return
	}
	fmt.Fprintf(b, "%s: %d bytes", label, size)
	if size > sizecheck.MaxFieldSize {
		fmt.Fprintf(b, "\n\nExceeds the %d KB limit of a single response field", sizecheck.MaxFieldSize/1024)
	}
}

// contains reports whether pos lies in r, including its end so a cursor
// right after a name still hovers it
func contains(r Range, pos Position) bool {
	if pos.Line < r.Start.Line || pos.Line > r.End.Line {
		return false
	}
	if pos.Line == r.Start.Line && pos.Character < r.Start.Character {
		return false
	}
	if pos.Line == r.End.Line && pos.Character > r.End.Character {
		return false
	}
	return true
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
