// Package sizecheck finds fields and records in an entity tree whose byte
// size could exceed the response size limit.
package sizecheck

import (
	"context"
	"sort"

	"github.com/graphql-go/graphql/language/ast"
	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/entitytree"
	"github.com/querylint/querylint/internal/metadata"
)

// MaxFieldSize is the byte limit for a single field and for the sum of the
// selected fields of one record.
const MaxFieldSize = 32768

// ObjectInfoResolver supplies type metadata. A nil result means the metadata
// is unavailable.
type ObjectInfoResolver interface {
	GetObjectInfo(ctx context.Context, typeName string) *metadata.ObjectInfo
}

// Result lists the field selections that exceed MaxFieldSize, in traversal
// order.
type Result struct {
	OversizedFields   []*ast.Field
	OversizedEntities []*ast.Field
}

// Empty reports whether nothing was flagged.
func (r Result) Empty() bool {
	return len(r.OversizedFields) == 0 && len(r.OversizedEntities) == 0
}

// Engine aggregates field sizes over entity trees.
type Engine struct {
	resolver ObjectInfoResolver
	logger   *zap.Logger
}

// NewEngine creates an engine backed by resolver.
func NewEngine(resolver ObjectInfoResolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{resolver: resolver, logger: logger}
}

// ComputeOversized walks every named entity depth first, one relationship at
// a time, filling in entity names and sizes as it goes. Subtrees whose
// metadata cannot be resolved are skipped.
func (e *Engine) ComputeOversized(ctx context.Context, root *entitytree.Root) Result {
	result := Result{
		OversizedFields:   []*ast.Field{},
		OversizedEntities: []*ast.Field{},
	}
	if root == nil {
		return result
	}
	for _, op := range root.Operations {
		for _, entity := range op.Entities {
			e.checkEntity(ctx, entity, &result)
		}
	}
	return result
}

func (e *Engine) checkEntity(ctx context.Context, entity *entitytree.Entity, result *Result) {
	if entity.Name == "" || ctx.Err() != nil {
		return
	}

	info := e.resolver.GetObjectInfo(ctx, entity.Name)
	if info == nil {
		e.logger.Debug("no metadata, skipping subtree", zap.String("type", entity.Name))
		return
	}

	total := 0
	for _, prop := range entity.Properties {
		size, ok := info.FieldSize(prop.Name)
		if !ok {
			continue
		}
		prop.Size = size
		total += size
		if size > MaxFieldSize {
			result.OversizedFields = append(result.OversizedFields, prop.Source)
		}
	}
	entity.Size = total
	if total > MaxFieldSize {
		result.OversizedEntities = append(result.OversizedEntities, entity.Source)
	}

	for _, rel := range entity.Relationships {
		if rel.IsPolymorphic() || rel.Entity == nil {
			e.logger.Debug("polymorphic relationships are not checked", zap.String("relationship", rel.Name))
			continue
		}
		if rel.Entity.Name == "" {
			rel.Entity.Name = ResolveTarget(info, rel)
		}
		if rel.Entity.Name == "" {
			e.logger.Debug("cannot resolve relationship target",
				zap.String("type", entity.Name),
				zap.String("relationship", rel.Name),
				zap.Stringer("relation", rel.Relation))
			continue
		}
		e.checkEntity(ctx, rel.Entity, result)
	}
}

// ResolveTarget returns the type name a relationship of the described parent
// type points to, or "" when it cannot be determined.
func ResolveTarget(parent *metadata.ObjectInfo, rel *entitytree.Relationship) string {
	if parent == nil || rel == nil {
		return ""
	}

	switch rel.Relation {
	case entitytree.RelationChild:
		for _, child := range parent.ChildRelationships {
			if child.RelationshipName == rel.Name {
				return child.ChildObjectAPIName
			}
		}
	case entitytree.RelationParent:
		names := make([]string, 0, len(parent.Fields))
		for name := range parent.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			field := parent.Fields[name]
			if field.RelationshipName == rel.Name &&
				!field.PolymorphicForeignKey &&
				len(field.ReferenceToInfos) > 0 {
				return field.ReferenceToInfos[0].APIName
			}
		}
	}
	return ""
}
