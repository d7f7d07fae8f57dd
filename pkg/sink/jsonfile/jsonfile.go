// Package jsonfile keeps one JSON document per user holding the profile
// and every post written so far.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"weibocrawler/pkg/models"
)

// Document is the on-disk layout
type Document struct {
	User  models.User   `json:"user"`
	Posts []models.Post `json:"posts"`
}

// Sink writes {dir}/{screen_name}/{user_id}.json
type Sink struct {
	dir string
}

// New creates a JSON sink rooted at dir
func New(dir string) *Sink {
	return &Sink{dir: dir}
}

func (s *Sink) Name() string { return "json" }

// Path returns the document a user's posts go to
func (s *Sink) Path(user models.User) string {
	folder := user.ScreenName
	if folder == "" {
		folder = user.IDString()
	}
	return filepath.Join(s.dir, folder, user.IDString()+".json")
}

// Write merges posts into the user's document. A post already present is
// replaced in place; new posts are appended in order. The profile is
// always replaced by the latest snapshot.
func (s *Sink) Write(_ context.Context, user models.User, posts []models.Post) error {
	path := s.Path(user)

	doc, err := Load(path)
	if err != nil {
		return err
	}
	doc.User = user

	index := make(map[int64]int, len(doc.Posts))
	for i, p := range doc.Posts {
		index[p.ID] = i
	}
	for _, p := range posts {
		if i, ok := index[p.ID]; ok {
			doc.Posts[i] = p
			continue
		}
		index[p.ID] = len(doc.Posts)
		doc.Posts = append(doc.Posts, p)
	}

	return doc.Save(path)
}

// Load reads a document; a missing file yields an empty one
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read json file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes the document through a temporary file
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create json directory: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write json file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename json file: %w", err)
	}
	return nil
}
