package metadata

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when nothing is persisted for a key.
var ErrNotFound = errors.New("metadata: not found")

// Record is a persisted object info together with its fetch time.
type Record struct {
	// TypeName is the name the info was requested under. The service may
	// answer with a differently spelled API name.
	TypeName  string      `json:"typeName,omitempty"`
	Info      *ObjectInfo `json:"objectInfo"`
	FetchedAt time.Time   `json:"fetchedAt"`
}

// Key returns the name a record is persisted under: TypeName, or the API
// name of its info when TypeName is empty.
func (r *Record) Key() string {
	if r == nil {
		return ""
	}
	if r.TypeName != "" {
		return r.TypeName
	}
	if r.Info != nil {
		return r.Info.APIName
	}
	return ""
}

// Store persists object infos across process restarts.
type Store interface {
	// Load returns the record for typeName or ErrNotFound
	Load(ctx context.Context, typeName string) (*Record, error)

	// Save persists a record under rec.Key()
	Save(ctx context.Context, rec *Record) error

	// LoadKnownTypes returns the persisted type name list or ErrNotFound
	LoadKnownTypes(ctx context.Context) ([]string, error)

	// SaveKnownTypes persists the type name list
	SaveKnownTypes(ctx context.Context, names []string) error

	// Clear removes everything the store persisted
	Clear(ctx context.Context) error
}
