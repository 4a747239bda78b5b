package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StaticService serves object infos from memory. It backs offline checks
// against a directory of exported object-info documents.
type StaticService struct {
	objects map[string]*ObjectInfo
}

// NewStaticService creates a service over the given object infos, keyed by
// their API names.
func NewStaticService(infos ...*ObjectInfo) *StaticService {
	s := &StaticService{objects: make(map[string]*ObjectInfo, len(infos))}
	for _, info := range infos {
		s.objects[info.APIName] = info
	}
	return s
}

// LoadStaticService reads every *.json object-info document in dir.
func LoadStaticService(dir string) (*StaticService, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	infos := make([]*ObjectInfo, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var info ObjectInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if info.APIName == "" {
			info.APIName = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		infos = append(infos, &info)
	}
	return NewStaticService(infos...), nil
}

// IsAuthorized always succeeds.
func (s *StaticService) IsAuthorized(ctx context.Context) bool {
	return true
}

// DescribeKnownTypes lists the served type names.
func (s *StaticService) DescribeKnownTypes(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FetchObjectInfo returns the served object info.
func (s *StaticService) FetchObjectInfo(ctx context.Context, typeName string) (*ObjectInfo, error) {
	info, ok := s.objects[typeName]
	if !ok {
		return nil, fmt.Errorf("no object info for %s", typeName)
	}
	return info, nil
}
