package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// AuthState is the authorization state of the resolver.
type AuthState int

const (
	// StateUnknown means no connection attempt has been made since the last reset
	StateUnknown AuthState = iota
	// StateAuthorized means the schema service accepted the connection
	StateAuthorized
	// StateUnauthorized means lookups short-circuit until the next reset
	StateUnauthorized
)

func (s AuthState) String() string {
	switch s {
	case StateAuthorized:
		return "authorized"
	case StateUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Lookup outcomes reported to the Recorder.
const (
	OutcomeMemory       = "memory"
	OutcomeStore        = "store"
	OutcomeNetwork      = "network"
	OutcomeUnknownType  = "unknown_type"
	OutcomeFetchError   = "fetch_error"
	OutcomeUnauthorized = "unauthorized"
)

// SchemaService is the remote source of schema metadata.
type SchemaService interface {
	// IsAuthorized reports whether a live, authorized connection is available
	IsAuthorized(ctx context.Context) bool

	// DescribeKnownTypes lists every type name the service can describe
	DescribeKnownTypes(ctx context.Context) ([]string, error)

	// FetchObjectInfo fetches the metadata of one type
	FetchObjectInfo(ctx context.Context, typeName string) (*ObjectInfo, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// Recorder receives lookup outcomes, typically for metrics.
type Recorder interface {
	RecordLookup(outcome string)
}

// Options configures a Resolver.
type Options struct {
	Service SchemaService
	Store   Store
	Clock   Clock

	// MaxAge bounds how old a persisted record may be. Zero disables expiry.
	MaxAge time.Duration

	Logger   *zap.Logger
	Recorder Recorder
}

// Resolver looks up object infos. Concurrent lookups of the same type share
// a single network request. It never returns errors: missing metadata is
// reported as nil and callers skip the affected subtree.
type Resolver struct {
	service  SchemaService
	store    Store
	clock    Clock
	maxAge   time.Duration
	logger   *zap.Logger
	recorder Recorder

	mu      sync.Mutex
	state   AuthState
	objects map[string]*ObjectInfo
	known   *btree.BTreeG[string]

	// generation increases on every Reset. Requests started before a reset
	// neither share results with nor write into the new generation.
	generation uint64

	inflight singleflight.Group
}

// NewResolver creates a resolver in the unknown state.
func NewResolver(opts Options) *Resolver {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Resolver{
		service:  opts.Service,
		store:    opts.Store,
		clock:    opts.Clock,
		maxAge:   opts.MaxAge,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		state:    StateUnknown,
		objects:  make(map[string]*ObjectInfo),
		known:    newNameSet(nil),
	}
}

// State returns the current authorization state.
func (r *Resolver) State() AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Authorize settles the authorization state, contacting the schema service
// if it is still unknown, and returns the result.
func (r *Resolver) Authorize(ctx context.Context) AuthState {
	r.ensureAuthorized(ctx)
	return r.State()
}

// KnownTypes returns the known type names in sorted order.
func (r *Resolver) KnownTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, r.known.Len())
	r.known.Scan(func(name string) bool {
		names = append(names, name)
		return true
	})
	return names
}

// GetObjectInfo returns the metadata of typeName, or nil when it is not
// available. If ctx is cancelled while a fetch is in flight the fetch still
// completes and populates the caches, but this call returns nil.
func (r *Resolver) GetObjectInfo(ctx context.Context, typeName string) *ObjectInfo {
	if typeName == "" {
		return nil
	}
	if !r.ensureAuthorized(ctx) {
		r.record(OutcomeUnauthorized)
		return nil
	}

	r.mu.Lock()
	if info, ok := r.objects[typeName]; ok {
		r.mu.Unlock()
		r.record(OutcomeMemory)
		return info
	}
	gen := r.generation
	_, known := r.known.Get(typeName)
	r.mu.Unlock()

	if info := r.loadPersisted(ctx, typeName); info != nil {
		r.mu.Lock()
		if gen == r.generation {
			r.objects[typeName] = info
		}
		r.mu.Unlock()
		r.record(OutcomeStore)
		return info
	}

	if !known {
		r.logger.Debug("type is not described by the schema service", zap.String("type", typeName))
		r.record(OutcomeUnknownType)
		return nil
	}

	key := fmt.Sprintf("%d/%s", gen, typeName)
	ch := r.inflight.DoChan(key, func() (interface{}, error) {
		return r.fetch(context.WithoutCancel(ctx), gen, typeName), nil
	})

	select {
	case res := <-ch:
		info, _ := res.Val.(*ObjectInfo)
		return info
	case <-ctx.Done():
		return nil
	}
}

// Reset clears every cache tier and returns the resolver to the unknown
// state. In-flight requests keep running but their results are discarded.
func (r *Resolver) Reset(ctx context.Context) error {
	r.mu.Lock()
	r.generation++
	r.state = StateUnknown
	r.objects = make(map[string]*ObjectInfo)
	r.known = newNameSet(nil)
	r.mu.Unlock()

	r.logger.Info("metadata caches reset")

	if r.store == nil {
		return nil
	}
	if err := r.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear metadata store: %w", err)
	}
	return nil
}

func (r *Resolver) ensureAuthorized(ctx context.Context) bool {
	r.mu.Lock()
	state, gen := r.state, r.generation
	r.mu.Unlock()

	switch state {
	case StateAuthorized:
		return true
	case StateUnauthorized:
		return false
	}

	ch := r.inflight.DoChan(fmt.Sprintf("%d/\x00refresh", gen), func() (interface{}, error) {
		r.refresh(context.WithoutCancel(ctx), gen)
		return nil, nil
	})
	select {
	case <-ch:
	case <-ctx.Done():
		return false
	}

	return r.State() == StateAuthorized
}

func (r *Resolver) refresh(ctx context.Context, gen uint64) {
	if r.service == nil || !r.service.IsAuthorized(ctx) {
		r.setState(gen, StateUnauthorized, nil)
		r.logger.Info("schema service is not authorized; metadata lookups disabled")
		return
	}

	names, err := r.service.DescribeKnownTypes(ctx)
	if err != nil {
		r.logger.Warn("failed to describe known types", zap.Error(err))
		names = r.loadPersistedKnownTypes(ctx)
	} else if r.store != nil {
		if err := r.store.SaveKnownTypes(ctx, names); err != nil {
			r.logger.Warn("failed to persist known types", zap.Error(err))
		}
	}

	r.setState(gen, StateAuthorized, names)
	r.logger.Info("schema service authorized", zap.Int("known_types", len(names)))
}

func (r *Resolver) setState(gen uint64, state AuthState, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return
	}
	r.state = state
	r.known = newNameSet(names)
}

func (r *Resolver) fetch(ctx context.Context, gen uint64, typeName string) *ObjectInfo {
	info, err := r.service.FetchObjectInfo(ctx, typeName)
	if err != nil {
		r.logger.Warn("failed to fetch object info", zap.String("type", typeName), zap.Error(err))
		r.record(OutcomeFetchError)
		return nil
	}
	if info == nil {
		r.record(OutcomeFetchError)
		return nil
	}
	if info.APIName == "" {
		info.APIName = typeName
	}

	r.mu.Lock()
	current := gen == r.generation
	if current {
		r.objects[typeName] = info
	}
	r.mu.Unlock()

	if current && r.store != nil {
		rec := &Record{TypeName: typeName, Info: info, FetchedAt: r.clock.Now()}
		if err := r.store.Save(ctx, rec); err != nil {
			r.logger.Warn("failed to persist object info", zap.String("type", typeName), zap.Error(err))
		}
	}

	r.record(OutcomeNetwork)
	return info
}

func (r *Resolver) loadPersisted(ctx context.Context, typeName string) *ObjectInfo {
	if r.store == nil {
		return nil
	}
	rec, err := r.store.Load(ctx, typeName)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("failed to read persisted object info", zap.String("type", typeName), zap.Error(err))
		}
		return nil
	}
	if r.maxAge > 0 && r.clock.Now().Sub(rec.FetchedAt) > r.maxAge {
		r.logger.Debug("persisted object info expired", zap.String("type", typeName))
		return nil
	}
	return rec.Info
}

func (r *Resolver) loadPersistedKnownTypes(ctx context.Context) []string {
	if r.store == nil {
		return nil
	}
	names, err := r.store.LoadKnownTypes(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("failed to read persisted known types", zap.Error(err))
		}
		return nil
	}
	return names
}

func (r *Resolver) record(outcome string) {
	if r.recorder != nil {
		r.recorder.RecordLookup(outcome)
	}
}

func newNameSet(names []string) *btree.BTreeG[string] {
	set := btree.NewBTreeG[string](func(a, b string) bool { return a < b })
	for _, name := range names {
		set.Set(name)
	}
	return set
}
