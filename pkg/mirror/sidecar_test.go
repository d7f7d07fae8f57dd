package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawler/pkg/models"
)

func TestSidecarAppends(t *testing.T) {
	dir := t.TempDir()
	s := NewSidecar(dir)

	require.NoError(t, s.Record("tester", models.MediaVideo, "1", "https://f.video/a.mp4"))
	require.NoError(t, s.Record("tester", models.MediaVideo, "2", "https://f.video/b.mp4"))

	path := filepath.Join(dir, "tester", "video", "not_downloaded.txt")
	assert.Equal(t, path, s.Path("tester", models.MediaVideo))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1:https://f.video/a.mp4\n2:https://f.video/b.mp4\n", string(data))
}
