package metadata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

func accountInfo() *ObjectInfo {
	return &ObjectInfo{
		APIName: "Account",
		Fields: map[string]FieldInfo{
			"Name":        {APIName: "Name", DataType: "String", Length: 255},
			"Description": {APIName: "Description", DataType: "TextArea", Length: 32000},
			"OwnerId": {
				APIName:          "OwnerId",
				DataType:         "Reference",
				Length:           18,
				RelationshipName: "Owner",
				ReferenceToInfos: []ReferenceToInfo{{APIName: "User"}},
			},
		},
		ChildRelationships: []ChildRelationship{
			{RelationshipName: "Contacts", ChildObjectAPIName: "Contact", FieldName: "AccountId"},
		},
	}
}

func contactInfo() *ObjectInfo {
	return &ObjectInfo{
		APIName: "Contact",
		Fields: map[string]FieldInfo{
			"LastName": {APIName: "LastName", DataType: "String", Length: 80},
		},
	}
}

// fakeService counts calls and can hold fetches until release is closed.
type fakeService struct {
	authorized bool
	known      []string
	objects    map[string]*ObjectInfo
	fetchErr   error
	release    chan struct{}

	authCalls     atomic.Int32
	describeCalls atomic.Int32
	fetchCalls    atomic.Int32
}

func newFakeService(infos ...*ObjectInfo) *fakeService {
	s := &fakeService{authorized: true, objects: map[string]*ObjectInfo{}}
	for _, info := range infos {
		s.objects[info.APIName] = info
		s.known = append(s.known, info.APIName)
	}
	return s
}

func (s *fakeService) IsAuthorized(ctx context.Context) bool {
	s.authCalls.Add(1)
	return s.authorized
}

func (s *fakeService) DescribeKnownTypes(ctx context.Context) ([]string, error) {
	s.describeCalls.Add(1)
	return s.known, nil
}

func (s *fakeService) FetchObjectInfo(ctx context.Context, typeName string) (*ObjectInfo, error) {
	s.fetchCalls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	info, ok := s.objects[typeName]
	if !ok {
		return nil, errors.New("not found")
	}
	return info, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recorder) RecordLookup(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}
