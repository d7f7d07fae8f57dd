package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore keeps the remote tree in a directory on disk. Ids are
// slash-separated paths relative to the base directory.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates the base directory if needed
func NewLocalStore(baseDir string) (*LocalStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStore{baseDir: abs}, nil
}

// BaseDir returns the absolute base directory
func (s *LocalStore) BaseDir() string { return s.baseDir }

// cleanID pins an id below the base directory
func cleanID(id string) string {
	return strings.TrimPrefix(path.Clean("/"+id), "/")
}

// resolve maps an id to a path, refusing anything outside the base
func (s *LocalStore) resolve(id string) (string, error) {
	full := filepath.Join(s.baseDir, filepath.FromSlash(cleanID(id)))
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("id %q escapes the store", id)
	}
	return full, nil
}

func (s *LocalStore) ListChildren(_ context.Context, folderID string) ([]Entry, error) {
	dir, err := s.resolve(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	children := make([]Entry, 0, len(entries))
	for _, e := range entries {
		// Skip uploads that never completed
		if strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		children = append(children, Entry{
			ID:       path.Join(cleanID(folderID), e.Name()),
			Title:    e.Name(),
			IsFolder: e.IsDir(),
		})
	}
	return children, nil
}

func (s *LocalStore) CreateFolder(_ context.Context, parentID, title string) (string, error) {
	if err := validTitle(title); err != nil {
		return "", err
	}
	id := path.Join(cleanID(parentID), title)
	dir, err := s.resolve(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	return id, nil
}

// CreateFile writes through a temporary file and renames it into place so
// a listing never sees a partial upload.
func (s *LocalStore) CreateFile(_ context.Context, parentID, title string, data []byte, _ string) (string, error) {
	if err := validTitle(title); err != nil {
		return "", err
	}
	id := path.Join(cleanID(parentID), title)
	filename, err := s.resolve(id)
	if err != nil {
		return "", err
	}

	tempFile := filename + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return id, nil
}

func (s *LocalStore) Find(ctx context.Context, parentID, title, mimeType string) ([]Entry, error) {
	dir, err := s.resolve(parentID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	children, err := s.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return findIn(children, title, mimeType), nil
}
