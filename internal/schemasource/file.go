package schemasource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"rowgraph/internal/naming"
	"rowgraph/internal/schemadiff"
)

// FileSource loads a snapshot from a document file or from every document
// in a directory, in name order. Subdirectories are not read.
type FileSource struct {
	Path  string
	namer *naming.Namer
}

// NewFileSource creates a file source.
func NewFileSource(path string, namer *naming.Namer) *FileSource {
	return &FileSource{Path: path, namer: namer}
}

// Location returns the path.
func (s *FileSource) Location() string { return s.Path }

// Files returns the documents the source reads.
func (s *FileSource) Files() ([]string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: s.Path}
		}
		return nil, fmt.Errorf("failed to stat schema path: %w", err)
	}
	if !info.IsDir() {
		return []string{s.Path}, nil
	}

	entries, err := os.ReadDir(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !isDocument(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(s.Path, entry.Name()))
	}
	if len(files) == 0 {
		return nil, &NotFoundError{Path: s.Path}
	}
	return files, nil
}

// Load reads and merges the documents.
func (s *FileSource) Load(ctx context.Context) (schemadiff.Snapshot, error) {
	files, err := s.Files()
	if err != nil {
		return schemadiff.Snapshot{}, err
	}

	var snapshot schemadiff.Snapshot
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return schemadiff.Snapshot{}, err
		}
		next, err := s.loadFile(file)
		if err != nil {
			return schemadiff.Snapshot{}, err
		}
		snapshot = merge(snapshot, next)
	}
	return snapshot, nil
}

func (s *FileSource) loadFile(file string) (schemadiff.Snapshot, error) {
	f, err := os.Open(file)
	if err != nil {
		return schemadiff.Snapshot{}, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	snapshot, err := decodeDocument(f, s.namer)
	if err != nil {
		return schemadiff.Snapshot{}, fmt.Errorf("%s: %w", file, err)
	}
	return snapshot, nil
}
