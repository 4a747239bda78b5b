package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/querylint/querylint/internal/query"
)

// QueryExtensions are the extensions of standalone query documents
var QueryExtensions = []string{".graphql", ".gql"}

// skippedDirs are never descended into
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// IsQueryFile reports whether path is a query document or a script that may
// embed queries
func IsQueryFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range QueryExtensions {
		if ext == candidate {
			return true
		}
	}
	return query.IsEmbeddingHost(path)
}

// FindQueryFiles recursively finds all query documents and scripts in the
// specified directory. Hidden directories, node_modules and vendor are
// skipped.
func FindQueryFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			name := d.Name()
			if path != dir && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}

		if IsQueryFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// ExpandPaths replaces every directory in paths with the query files below
// it. Files are kept as given, whatever their extension.
func ExpandPaths(paths []string) ([]string, error) {
	expanded := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			expanded = append(expanded, p)
			continue
		}
		files, err := FindQueryFiles(p)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, files...)
	}
	return expanded, nil
}
