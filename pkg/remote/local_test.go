package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreTree(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStore(base)
	require.NoError(t, err)
	ctx := context.Background()

	folder, err := store.CreateFolder(ctx, RootID, "weibo")
	require.NoError(t, err)
	assert.Equal(t, "weibo", folder)

	img, err := store.CreateFolder(ctx, folder, "img")
	require.NoError(t, err)

	fileID, err := store.CreateFile(ctx, img, "20230501_1.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "weibo/img/20230501_1.jpg", fileID)

	data, err := os.ReadFile(filepath.Join(base, "weibo", "img", "20230501_1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	children, err := store.ListChildren(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{ID: fileID, Title: "20230501_1.jpg"}}, children)

	found, err := store.Find(ctx, RootID, "weibo", FolderMimeType)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{ID: "weibo", Title: "weibo", IsFolder: true}}, found)
}

func TestLocalStoreFindMissingParent(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	found, err := store.Find(context.Background(), "nope", "img", FolderMimeType)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLocalStoreStaysInsideBase(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStore(filepath.Join(base, "store"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.CreateFolder(ctx, RootID, "..")
	assert.Error(t, err)

	_, err = store.CreateFile(ctx, RootID, "../escape.txt", []byte("x"), "")
	assert.Error(t, err)

	// A parent id climbing out is pinned to the base
	id, err := store.CreateFolder(ctx, "../../outside", "img")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(base, "store", "outside", "img"))
	assert.NoDirExists(t, filepath.Join(base, "outside"))
	assert.Equal(t, "outside/img", id)
}

func TestLocalStoreHidesPartialUploads(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStore(base)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(base, "half.jpg.tmp"), []byte("x"), 0644))

	children, err := store.ListChildren(context.Background(), RootID)
	require.NoError(t, err)
	assert.Empty(t, children)
}
