// Package entitytree reshapes a parsed record query into a tree of
// operations, entities, properties and relationships.
//
// Entity names below the root are unknown while the tree is built. They are
// filled in by the size check once the parent's metadata has been resolved.
package entitytree

import (
	"github.com/graphql-go/graphql/language/ast"
)

// UnknownSize marks a size that has not been computed yet.
const UnknownSize = -1

// Relation is the schema direction of a relationship.
type Relation int

const (
	// RelationParent is a lookup from a record to the record it references
	RelationParent Relation = iota
	// RelationChild is a list of records that reference the parent record
	RelationChild
	// RelationPolymorphicParent is a lookup that can target several types
	RelationPolymorphicParent
)

func (r Relation) String() string {
	switch r {
	case RelationParent:
		return "parent"
	case RelationChild:
		return "child"
	case RelationPolymorphicParent:
		return "polymorphic-parent"
	default:
		return "unknown"
	}
}

// Node is implemented by every tree node type.
type Node interface {
	isNode()
}

// Root holds the operations of one analyzed query document.
type Root struct {
	Operations []*Operation
}

// Operation is one top-level operation of the query.
type Operation struct {
	Name     string
	Entities []*Entity
}

// Entity is one record-producing selection.
type Entity struct {
	// Source is the field selection this entity was built from
	Source *ast.Field

	// Name is the schema type name. Empty until resolved for entities
	// reached through a relationship.
	Name string

	// Size is the aggregate byte size of the selected properties
	Size int

	Relationships []*Relationship
	Properties    []*Property

	// fragment is set on polymorphic candidates
	fragment *ast.InlineFragment
}

// Property is a scalar field selection.
type Property struct {
	Source *ast.Field
	Name   string
	Size   int
}

// Relationship links an entity to a related entity selected through the
// field Name. Polymorphic relationships carry Candidates instead of Entity.
type Relationship struct {
	Relation   Relation
	Name       string
	Entity     *Entity
	Candidates []*Entity
}

// IsPolymorphic reports whether the relationship targets several types.
func (r *Relationship) IsPolymorphic() bool {
	return r.Relation == RelationPolymorphicParent
}

// polymorphicFrame sits on the build stack while the candidates of a
// polymorphic relationship are being collected.
type polymorphicFrame struct {
	source       *ast.Field
	relationship *Relationship
}

func (*Root) isNode()             {}
func (*Operation) isNode()        {}
func (*Entity) isNode()           {}
func (*Property) isNode()         {}
func (*polymorphicFrame) isNode() {}

// NewEntity creates an entity for a field selection. name may be empty.
func NewEntity(source *ast.Field, name string) *Entity {
	return &Entity{
		Source:        source,
		Name:          name,
		Size:          UnknownSize,
		Relationships: []*Relationship{},
		Properties:    []*Property{},
	}
}

// NewProperty creates a provisional scalar property for a field selection.
func NewProperty(source *ast.Field) *Property {
	return &Property{
		Source: source,
		Name:   fieldName(source),
		Size:   UnknownSize,
	}
}

// Promote turns a provisional property into an unnamed entity that keeps the
// property's source field.
func Promote(p *Property) *Entity {
	return NewEntity(p.Source, "")
}

// removeProperty drops p from the entity's properties, keeping order.
func (e *Entity) removeProperty(p *Property) {
	for i, candidate := range e.Properties {
		if candidate == p {
			e.Properties = append(e.Properties[:i], e.Properties[i+1:]...)
			return
		}
	}
}

func sourceOf(n Node) *ast.Field {
	switch v := n.(type) {
	case *Entity:
		return v.Source
	case *Property:
		return v.Source
	case *polymorphicFrame:
		return v.source
	default:
		return nil
	}
}

func fieldName(f *ast.Field) string {
	if f == nil || f.Name == nil {
		return ""
	}
	return f.Name.Value
}
