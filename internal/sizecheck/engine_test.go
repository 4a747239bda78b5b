package sizecheck

import (
	"context"
	"sync"
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querylint/querylint/internal/entitytree"
	"github.com/querylint/querylint/internal/metadata"
	"github.com/querylint/querylint/internal/query"
)

// mapResolver serves object infos from a map and records lookups.
type mapResolver struct {
	mu      sync.Mutex
	objects map[string]*metadata.ObjectInfo
	lookups []string
}

func newMapResolver(infos ...*metadata.ObjectInfo) *mapResolver {
	r := &mapResolver{objects: map[string]*metadata.ObjectInfo{}}
	for _, info := range infos {
		r.objects[info.APIName] = info
	}
	return r
}

func (r *mapResolver) GetObjectInfo(ctx context.Context, typeName string) *metadata.ObjectInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, typeName)
	return r.objects[typeName]
}

func object(name string, sizes map[string]int) *metadata.ObjectInfo {
	info := &metadata.ObjectInfo{APIName: name, Fields: map[string]metadata.FieldInfo{}}
	for field, size := range sizes {
		info.Fields[field] = metadata.FieldInfo{APIName: field, Length: size}
	}
	return info
}

func buildTree(t *testing.T, text string) *entitytree.Root {
	t.Helper()
	q, err := query.Parse(text)
	require.NoError(t, err)
	return entitytree.NewBuilder(query.DefaultMarkers(), nil).Build(q.Document)
}

func names(fields []*ast.Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Name.Value)
	}
	return out
}

func TestSingleOversizedField(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Account { edges { node { Notes__c { value } } } } } } }`)
	engine := NewEngine(newMapResolver(object("Account", map[string]int{"Notes__c": 40000})), nil)

	result := engine.ComputeOversized(context.Background(), root)

	assert.Equal(t, []string{"Notes__c"}, names(result.OversizedFields))
	assert.Equal(t, []string{"Account"}, names(result.OversizedEntities))
	assert.False(t, result.Empty())

	account := root.Operations[0].Entities[0]
	assert.Equal(t, 40000, account.Size)
	assert.Equal(t, 40000, account.Properties[0].Size)
}

func TestFieldsSumOverThreshold(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Account { edges { node {
		A__c { value } B__c { value } C__c { value }
	} } } } } }`)
	info := object("Account", map[string]int{"A__c": 15000, "B__c": 15000, "C__c": 15000})

	result := NewEngine(newMapResolver(info), nil).ComputeOversized(context.Background(), root)

	assert.Empty(t, result.OversizedFields)
	assert.Equal(t, []string{"Account"}, names(result.OversizedEntities))
	assert.Equal(t, 45000, root.Operations[0].Entities[0].Size)
}

func TestThresholdIsExclusive(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		flagged bool
	}{
		{"exactly at limit", MaxFieldSize, false},
		{"one byte over", MaxFieldSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := buildTree(t, `query { uiapi { query { Account { edges { node { Body__c { value } } } } } } }`)
			info := object("Account", map[string]int{"Body__c": tt.size})

			result := NewEngine(newMapResolver(info), nil).ComputeOversized(context.Background(), root)

			if tt.flagged {
				assert.Len(t, result.OversizedFields, 1)
				assert.Len(t, result.OversizedEntities, 1)
			} else {
				assert.True(t, result.Empty())
			}
		})
	}
}

func TestUnmatchedChildRelationship(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Account { edges { node {
		Name { value }
		Widgets__r { edges { node { Body__c { value } } } }
	} } } } } }`)
	account := object("Account", map[string]int{"Name": 255})
	account.ChildRelationships = []metadata.ChildRelationship{
		{RelationshipName: "Contacts", ChildObjectAPIName: "Contact"},
	}
	resolver := newMapResolver(account, object("Widget__c", map[string]int{"Body__c": 100000}))

	var result Result
	require.NotPanics(t, func() {
		result = NewEngine(resolver, nil).ComputeOversized(context.Background(), root)
	})

	assert.True(t, result.Empty())
	assert.Equal(t, []string{"Account"}, resolver.lookups)
	widgets := root.Operations[0].Entities[0].Relationships[0].Entity
	assert.Equal(t, "", widgets.Name)
	assert.Equal(t, entitytree.UnknownSize, widgets.Size)
}

func TestResolvesParentAndChildRelationships(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Account { edges { node {
		Name { value }
		Owner { AboutMe { value } }
		Contacts { edges { node { Bio__c { value } } } }
	} } } } } }`)

	account := object("Account", map[string]int{"Name": 255})
	account.Fields["OwnerId"] = metadata.FieldInfo{
		APIName:          "OwnerId",
		Length:           18,
		RelationshipName: "Owner",
		ReferenceToInfos: []metadata.ReferenceToInfo{{APIName: "User"}, {APIName: "Group"}},
	}
	account.ChildRelationships = []metadata.ChildRelationship{
		{RelationshipName: "Opportunities", ChildObjectAPIName: "Opportunity"},
		{RelationshipName: "Contacts", ChildObjectAPIName: "Contact"},
	}
	resolver := newMapResolver(account,
		object("User", map[string]int{"AboutMe": 33000}),
		object("Contact", map[string]int{"Bio__c": 131072}),
	)

	result := NewEngine(resolver, nil).ComputeOversized(context.Background(), root)

	assert.Equal(t, []string{"AboutMe", "Bio__c"}, names(result.OversizedFields))
	assert.Equal(t, []string{"Owner", "Contacts"}, names(result.OversizedEntities))
	assert.Equal(t, []string{"Account", "User", "Contact"}, resolver.lookups)

	rels := root.Operations[0].Entities[0].Relationships
	assert.Equal(t, "User", rels[0].Entity.Name)
	assert.Equal(t, "Contact", rels[1].Entity.Name)
}

func TestPolymorphicRelationshipsAreSkipped(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Case { edges { node {
		Subject { value }
		Owner {
			... on User { AboutMe { value } }
		}
	} } } } } }`)
	resolver := newMapResolver(
		object("Case", map[string]int{"Subject": 255}),
		object("User", map[string]int{"AboutMe": 100000}),
	)

	result := NewEngine(resolver, nil).ComputeOversized(context.Background(), root)

	assert.True(t, result.Empty())
	assert.Equal(t, []string{"Case"}, resolver.lookups)
}

func TestPolymorphicLookupFieldIsNotResolved(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Case { edges { node {
		Owner { AboutMe { value } }
	} } } } } }`)
	kase := object("Case", nil)
	kase.Fields["OwnerId"] = metadata.FieldInfo{
		APIName:               "OwnerId",
		RelationshipName:      "Owner",
		PolymorphicForeignKey: true,
		ReferenceToInfos:      []metadata.ReferenceToInfo{{APIName: "User"}, {APIName: "Group"}},
	}
	resolver := newMapResolver(kase, object("User", map[string]int{"AboutMe": 100000}))

	result := NewEngine(resolver, nil).ComputeOversized(context.Background(), root)

	assert.True(t, result.Empty())
	assert.Equal(t, []string{"Case"}, resolver.lookups)
}

func TestMissingMetadataSkipsSubtree(t *testing.T) {
	root := buildTree(t, `query { uiapi { query {
		Ghost { edges { node { Body__c { value } } } }
		Account { edges { node { Notes__c { value } } } }
	} } }`)
	resolver := newMapResolver(object("Account", map[string]int{"Notes__c": 40000}))

	result := NewEngine(resolver, nil).ComputeOversized(context.Background(), root)

	assert.Equal(t, []string{"Notes__c"}, names(result.OversizedFields))
	assert.Equal(t, []string{"Account"}, names(result.OversizedEntities))
}

func TestUnknownFieldsContributeNothing(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Account { edges { node {
		Missing__c { value } Name { value }
	} } } } } }`)
	resolver := newMapResolver(object("Account", map[string]int{"Name": 255}))

	NewEngine(resolver, nil).ComputeOversized(context.Background(), root)

	account := root.Operations[0].Entities[0]
	assert.Equal(t, 255, account.Size)
	assert.Equal(t, entitytree.UnknownSize, account.Properties[0].Size)
	assert.Equal(t, 255, account.Properties[1].Size)
}

func TestSecondPassIsStable(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Account { edges { node {
		Contacts { edges { node { Bio__c { value } } } }
	} } } } } }`)
	account := object("Account", nil)
	account.ChildRelationships = []metadata.ChildRelationship{{RelationshipName: "Contacts", ChildObjectAPIName: "Contact"}}
	resolver := newMapResolver(account, object("Contact", map[string]int{"Bio__c": 50000}))
	engine := NewEngine(resolver, nil)

	first := engine.ComputeOversized(context.Background(), root)
	second := engine.ComputeOversized(context.Background(), root)
	assert.Equal(t, first, second)
}

func TestCancelledContextStopsTraversal(t *testing.T) {
	root := buildTree(t, `query { uiapi { query { Account { edges { node { Notes__c { value } } } } } } }`)
	resolver := newMapResolver(object("Account", map[string]int{"Notes__c": 40000}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewEngine(resolver, nil).ComputeOversized(ctx, root)
	assert.True(t, result.Empty())
	assert.Empty(t, resolver.lookups)
}

func TestNilRoot(t *testing.T) {
	result := NewEngine(newMapResolver(), nil).ComputeOversized(context.Background(), nil)
	assert.True(t, result.Empty())
}

func TestResolveTarget(t *testing.T) {
	parent := object("Account", nil)
	parent.Fields["ParentId"] = metadata.FieldInfo{
		RelationshipName: "Parent",
		ReferenceToInfos: []metadata.ReferenceToInfo{{APIName: "Account"}},
	}
	parent.Fields["BrokenId"] = metadata.FieldInfo{RelationshipName: "Broken"}
	parent.ChildRelationships = []metadata.ChildRelationship{{RelationshipName: "Cases", ChildObjectAPIName: "Case"}}

	tests := []struct {
		name     string
		rel      *entitytree.Relationship
		expected string
	}{
		{"parent match", &entitytree.Relationship{Relation: entitytree.RelationParent, Name: "Parent"}, "Account"},
		{"parent without reference targets", &entitytree.Relationship{Relation: entitytree.RelationParent, Name: "Broken"}, ""},
		{"child match", &entitytree.Relationship{Relation: entitytree.RelationChild, Name: "Cases"}, "Case"},
		{"child name is not a parent", &entitytree.Relationship{Relation: entitytree.RelationParent, Name: "Cases"}, ""},
		{"parent name is not a child", &entitytree.Relationship{Relation: entitytree.RelationChild, Name: "Parent"}, ""},
		{"polymorphic", &entitytree.Relationship{Relation: entitytree.RelationPolymorphicParent, Name: "Parent"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveTarget(parent, tt.rel))
		})
	}

	assert.Equal(t, "", ResolveTarget(nil, tests[0].rel))
}

func TestEngineWithResolver(t *testing.T) {
	account := object("Account", map[string]int{"Notes__c": 40000})
	svc := metadata.NewStaticService(account)
	resolver := metadata.NewResolver(metadata.Options{Service: svc})

	root := buildTree(t, `query { uiapi { query { Account { edges { node { Notes__c { value } } } } } } }`)
	result := NewEngine(resolver, nil).ComputeOversized(context.Background(), root)

	assert.Len(t, result.OversizedFields, 1)
	assert.Len(t, result.OversizedEntities, 1)
}
