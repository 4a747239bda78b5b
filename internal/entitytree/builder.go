package entitytree

import (
	"github.com/graphql-go/graphql/language/ast"
	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/query"
)

// Builder converts parsed query documents into entity trees.
type Builder struct {
	markers query.Markers
	logger  *zap.Logger
}

// NewBuilder creates a builder that recognizes the given structural markers.
func NewBuilder(markers query.Markers, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{markers: markers, logger: logger}
}

// Build walks doc once, depth first, and returns the resulting tree. Fragment
// spreads and fragment definitions are ignored.
func (b *Builder) Build(doc *ast.Document) *Root {
	root := &Root{Operations: []*Operation{}}
	if doc == nil {
		return root
	}

	p := &pass{
		markers: b.markers,
		logger:  b.logger,
		stack:   []Node{root},
	}
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			p.visitOperation(op)
		}
	}
	return root
}

// pass holds the state of a single Build call.
type pass struct {
	markers query.Markers
	logger  *zap.Logger

	stack []Node

	// fields is the chain of field selections enclosing the current visit
	fields []*ast.Field
}

func (p *pass) top() Node {
	return p.stack[len(p.stack)-1]
}

func (p *pass) push(n Node) {
	p.stack = append(p.stack, n)
}

func (p *pass) pop() {
	if len(p.stack) > 1 {
		p.stack = p.stack[:len(p.stack)-1]
	}
}

// ancestor returns the n-th enclosing field, 1 being the direct parent.
func (p *pass) ancestor(n int) *ast.Field {
	if n <= 0 || n > len(p.fields) {
		return nil
	}
	return p.fields[len(p.fields)-n]
}

func (p *pass) visitOperation(def *ast.OperationDefinition) {
	var op *Operation
	if root, ok := p.top().(*Root); ok {
		op = &Operation{Entities: []*Entity{}}
		if def.Name != nil {
			op.Name = def.Name.Value
		}
		root.Operations = append(root.Operations, op)
		p.push(op)
	}

	p.visitSelections(def.SelectionSet)

	if op != nil && p.top() == op {
		p.pop()
	}
}

func (p *pass) visitSelections(set *ast.SelectionSet) {
	if set == nil {
		return
	}
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			p.enterField(s)
			p.fields = append(p.fields, s)
			p.visitSelections(s.SelectionSet)
			p.fields = p.fields[:len(p.fields)-1]
			p.leaveField(s)
		case *ast.InlineFragment:
			p.enterFragment(s)
			p.visitSelections(s.SelectionSet)
			p.leaveFragment(s)
		}
	}
}

func (p *pass) enterField(f *ast.Field) {
	name := fieldName(f)
	if p.markers.IsStructural(name) {
		return
	}

	parent := p.ancestor(1)
	if parent == nil {
		p.logger.Debug("ignoring field outside of the query wrapper", zap.String("field", name))
		return
	}

	switch fieldName(parent) {
	case p.markers.QueryWrapper:
		p.addRootEntity(f)
	case p.markers.RecordWrapper:
		// F -> node -> edges -> entity
		var anchor *ast.Field
		if fieldName(p.ancestor(2)) == p.markers.Connection {
			anchor = p.ancestor(3)
		}
		p.handlePropertyWithRelation(f, anchor, false)
	default:
		p.handlePropertyWithRelation(f, parent, true)
	}
}

func (p *pass) leaveField(f *ast.Field) {
	if sourceOf(p.top()) == f {
		p.pop()
	}
}

func (p *pass) addRootEntity(f *ast.Field) {
	op, ok := p.top().(*Operation)
	if !ok {
		p.logger.Debug("ignoring root entity outside of an operation", zap.String("field", fieldName(f)))
		return
	}
	entity := NewEntity(f, fieldName(f))
	op.Entities = append(op.Entities, entity)
	p.push(entity)
}

// handlePropertyWithRelation records f as a property of the entity built for
// anchor. When the stack top is still a provisional property, f proves that
// property has nested selections, so it is promoted to a related entity.
func (p *pass) handlePropertyWithRelation(f, anchor *ast.Field, parentRelationship bool) {
	if anchor == nil || sourceOf(p.top()) != anchor {
		p.logger.Debug("ignoring orphaned selection", zap.String("field", fieldName(f)))
		return
	}

	var entity *Entity
	switch top := p.top().(type) {
	case *Entity:
		entity = top
	case *Property:
		p.pop()
		owner, ok := p.top().(*Entity)
		if !ok {
			p.push(top)
			return
		}
		entity = Promote(top)
		owner.removeProperty(top)

		relation := RelationChild
		if parentRelationship {
			relation = RelationParent
		}
		owner.Relationships = append(owner.Relationships, &Relationship{
			Relation: relation,
			Name:     top.Name,
			Entity:   entity,
		})
		p.push(entity)
	default:
		// shared fields of a polymorphic lookup are not attributed to any candidate
		return
	}

	prop := NewProperty(f)
	entity.Properties = append(entity.Properties, prop)
	p.push(prop)
}

// enterFragment turns `Field { ... on Type { } }` into a polymorphic
// relationship with one candidate entity per type condition.
func (p *pass) enterFragment(frag *ast.InlineFragment) {
	if frag.TypeCondition == nil || frag.TypeCondition.Name == nil {
		return
	}
	field := p.ancestor(1)
	if field == nil || sourceOf(p.top()) != field {
		return
	}

	switch top := p.top().(type) {
	case *Property:
		p.pop()
		owner, ok := p.top().(*Entity)
		if !ok {
			p.push(top)
			return
		}
		owner.removeProperty(top)
		rel := &Relationship{
			Relation:   RelationPolymorphicParent,
			Name:       top.Name,
			Candidates: []*Entity{},
		}
		owner.Relationships = append(owner.Relationships, rel)
		frame := &polymorphicFrame{source: field, relationship: rel}
		p.push(frame)
		p.pushCandidate(frame, frag)
	case *polymorphicFrame:
		p.pushCandidate(top, frag)
	}
}

func (p *pass) pushCandidate(frame *polymorphicFrame, frag *ast.InlineFragment) {
	candidate := NewEntity(frame.source, frag.TypeCondition.Name.Value)
	candidate.fragment = frag
	frame.relationship.Candidates = append(frame.relationship.Candidates, candidate)
	p.push(candidate)
}

func (p *pass) leaveFragment(frag *ast.InlineFragment) {
	if e, ok := p.top().(*Entity); ok && e.fragment == frag {
		p.pop()
	}
}
