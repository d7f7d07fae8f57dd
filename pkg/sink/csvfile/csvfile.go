// Package csvfile appends posts to one CSV file per user.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"weibocrawler/pkg/models"
	"weibocrawler/pkg/sink"
)

const utf8BOM = "\ufeff"

// Sink writes {dir}/{screen_name}/{user_id}.csv. The header is written
// when the file is created; later batches append.
type Sink struct {
	dir         string
	withRetweet bool
	enc         encoding.Encoding // nil for UTF-8
}

// New creates a CSV sink. Reposted originals get their own columns unless
// only original posts are kept. encodingName follows the WHATWG names.
func New(dir string, withRetweet bool, encodingName string) (*Sink, error) {
	s := &Sink{dir: dir, withRetweet: withRetweet}
	if encodingName != "" {
		enc, err := htmlindex.Get(encodingName)
		if err != nil {
			return nil, fmt.Errorf("unsupported csv encoding %q: %w", encodingName, err)
		}
		if name, _ := htmlindex.Name(enc); name != "utf-8" {
			s.enc = enc
		}
	}
	return s, nil
}

func (s *Sink) Name() string { return "csv" }

// Path returns the file a user's posts go to
func (s *Sink) Path(user models.User) string {
	folder := user.ScreenName
	if folder == "" {
		folder = user.IDString()
	}
	return filepath.Join(s.dir, folder, user.IDString()+".csv")
}

func (s *Sink) Write(_ context.Context, user models.User, posts []models.Post) error {
	path := s.Path(user)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create csv directory: %w", err)
	}

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	var out io.Writer = f
	var encoder *transform.Writer
	if s.enc != nil {
		encoder = transform.NewWriter(f, s.enc.NewEncoder())
		out = encoder
	} else if isNew {
		// Spreadsheet tools need the BOM to detect UTF-8
		if _, err := io.WriteString(f, utf8BOM); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}

	w := csv.NewWriter(out)
	if isNew {
		if err := w.Write(sink.Columns(s.withRetweet)); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	for _, p := range posts {
		if err := w.Write(sink.Row(p, s.withRetweet)); err != nil {
			return fmt.Errorf("failed to write post %d: %w", p.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if encoder != nil {
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("failed to encode csv: %w", err)
		}
	}
	return f.Close()
}
