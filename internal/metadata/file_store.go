package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	objectsDirName     = "objects"
	knownTypesFileName = "known-types.json"
	lockFileName       = ".lock"

	// persisted files are world-readable
	filePerm = 0o644
	dirPerm  = 0o755

	lockRetryInterval = 50 * time.Millisecond
	lockTimeout       = 3 * time.Second
)

// FileStore keeps one JSON document per type name under a directory. A lock
// file serializes access between processes sharing the directory.
type FileStore struct {
	dir      string
	fileLock *flock.Flock
	mu       sync.Mutex
}

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, objectsDirName), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{
		dir:      dir,
		fileLock: flock.New(filepath.Join(dir, lockFileName)),
	}, nil
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads the record for typeName.
func (s *FileStore) Load(ctx context.Context, typeName string) (*Record, error) {
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var rec Record
	if err := readJSON(s.objectPath(typeName), &rec); err != nil {
		return nil, err
	}
	if rec.Info == nil {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Save writes the record atomically.
func (s *FileStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Info == nil || rec.Key() == "" {
		return errors.New("metadata: record has no type name")
	}

	unlock, err := s.lock(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	return writeJSON(s.objectPath(rec.Key()), rec)
}

// LoadKnownTypes reads the persisted type name list.
func (s *FileStore) LoadKnownTypes(ctx context.Context) ([]string, error) {
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var names []string
	if err := readJSON(filepath.Join(s.dir, knownTypesFileName), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// SaveKnownTypes writes the type name list atomically.
func (s *FileStore) SaveKnownTypes(ctx context.Context, names []string) error {
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	return writeJSON(filepath.Join(s.dir, knownTypesFileName), names)
}

// Clear deletes every persisted record and the type name list.
func (s *FileStore) Clear(ctx context.Context) error {
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	objects := filepath.Join(s.dir, objectsDirName)
	if err := os.RemoveAll(objects); err != nil {
		return fmt.Errorf("failed to remove cached objects: %w", err)
	}
	if err := os.Remove(filepath.Join(s.dir, knownTypesFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove known types: %w", err)
	}
	return os.MkdirAll(objects, dirPerm)
}

func (s *FileStore) objectPath(typeName string) string {
	return filepath.Join(s.dir, objectsDirName, url.PathEscape(typeName)+".json")
}

func (s *FileStore) lock(ctx context.Context, shared bool) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	s.mu.Lock()

	var locked bool
	var err error
	if shared {
		locked, err = s.fileLock.TryRLockContext(ctx, lockRetryInterval)
	} else {
		locked, err = s.fileLock.TryLockContext(ctx, lockRetryInterval)
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		s.mu.Unlock()
		return nil, errors.New("could not acquire file lock")
	}
	return func() {
		_ = s.fileLock.Unlock()
		s.mu.Unlock()
	}, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Chmod(tmp, filePerm); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
