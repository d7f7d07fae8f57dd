package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"weibocrawler/pkg/models"
)

// SidecarFile is the failure log name inside each category directory
const SidecarFile = "not_downloaded.txt"

// Sidecar appends one "post_id:url" line per asset that could not be
// mirrored, in {output_dir}/{screen_name}/{img|video}/not_downloaded.txt.
type Sidecar struct {
	outputDir string
	mu        sync.Mutex
}

// NewSidecar creates a sidecar rooted at outputDir
func NewSidecar(outputDir string) *Sidecar {
	return &Sidecar{outputDir: outputDir}
}

// Path returns the failure log of one user and media kind
func (s *Sidecar) Path(screenName string, kind models.MediaKind) string {
	return filepath.Join(s.outputDir, screenName, string(kind), SidecarFile)
}

// Record appends a failed asset
func (s *Sidecar) Record(screenName string, kind models.MediaKind, postID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(screenName, kind)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create sidecar directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open sidecar: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s:%s\n", postID, url); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to sidecar: %w", err)
	}
	return f.Close()
}
