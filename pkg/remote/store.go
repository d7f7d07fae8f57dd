package remote

import (
	"context"
	"fmt"
	"strings"
)

// FolderMimeType marks folder entries in stores that keep folders as objects
const FolderMimeType = "application/x-directory"

// RootID identifies the top of every store
const RootID = ""

// Entry is one child of a remote folder
type Entry struct {
	ID       string
	Title    string
	IsFolder bool
}

// Store is a hierarchical object store. Folder and file ids are opaque to
// callers; RootID names the top level.
type Store interface {
	ListChildren(ctx context.Context, folderID string) ([]Entry, error)
	CreateFolder(ctx context.Context, parentID, title string) (string, error)
	CreateFile(ctx context.Context, parentID, title string, data []byte, mimeType string) (string, error)
	// Find returns the children of parentID named title. An empty mimeType
	// matches both files and folders, FolderMimeType matches folders only.
	Find(ctx context.Context, parentID, title, mimeType string) ([]Entry, error)
}

func validTitle(title string) error {
	switch {
	case strings.TrimSpace(title) == "":
		return fmt.Errorf("empty title")
	case title == "." || title == "..":
		return fmt.Errorf("invalid title %q", title)
	case strings.ContainsAny(title, `/\`):
		return fmt.Errorf("title %q contains a path separator", title)
	}
	return nil
}

// findIn filters a listing the way Find is specified
func findIn(entries []Entry, title, mimeType string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Title != title {
			continue
		}
		if mimeType == FolderMimeType && !e.IsFolder {
			continue
		}
		out = append(out, e)
	}
	return out
}
