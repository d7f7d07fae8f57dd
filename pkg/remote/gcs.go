package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore emulates folders in a bucket. A folder id is an object prefix
// ending in "/" and each folder is marked by a zero-byte object of that
// name.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSClient opens a storage client, using the credentials file when
// given and Application Default Credentials otherwise.
func NewGCSClient(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*storage.Client, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return client, nil
}

// NewGCSStore wraps a client for one bucket
func NewGCSStore(client *storage.Client, bucket string) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// CheckBucket fails when the bucket is missing or not accessible
func (s *GCSStore) CheckBucket(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", s.bucket, err)
	}
	return nil
}

// Close releases the client
func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) ListChildren(ctx context.Context, folderID string) ([]Entry, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{
		Prefix:    folderID,
		Delimiter: "/",
	})

	var children []Entry
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", folderID, err)
		}

		if attrs.Prefix != "" {
			children = append(children, Entry{
				ID:       attrs.Prefix,
				Title:    strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, folderID), "/"),
				IsFolder: true,
			})
			continue
		}
		// The folder marker lists itself
		if attrs.Name == folderID {
			continue
		}
		children = append(children, Entry{
			ID:    attrs.Name,
			Title: strings.TrimPrefix(attrs.Name, folderID),
		})
	}
	return children, nil
}

func (s *GCSStore) CreateFolder(ctx context.Context, parentID, title string) (string, error) {
	if err := validTitle(title); err != nil {
		return "", err
	}
	id := parentID + title + "/"
	if err := s.put(ctx, id, nil, FolderMimeType); err != nil {
		return "", err
	}
	return id, nil
}

func (s *GCSStore) CreateFile(ctx context.Context, parentID, title string, data []byte, mimeType string) (string, error) {
	if err := validTitle(title); err != nil {
		return "", err
	}
	id := parentID + title
	if err := s.put(ctx, id, data, mimeType); err != nil {
		return "", err
	}
	return id, nil
}

func (s *GCSStore) Find(ctx context.Context, parentID, title, mimeType string) ([]Entry, error) {
	children, err := s.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return findIn(children, title, mimeType), nil
}

func (s *GCSStore) put(ctx context.Context, name string, data []byte, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for object %s: %w", name, err)
	}
	return nil
}
