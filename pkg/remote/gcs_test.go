package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestGCSStore points a storage client at a test server
func newTestGCSStore(t *testing.T, handler http.Handler) *GCSStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGCSClient(context.Background(), "", option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	store, err := NewGCSStore(client, "test-bucket")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGCSStoreListChildren(t *testing.T) {
	var gotPrefix, gotDelimiter string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/b/test-bucket/o")
		gotPrefix = r.URL.Query().Get("prefix")
		gotDelimiter = r.URL.Query().Get("delimiter")
		fmt.Fprint(w, `{
			"kind": "storage#objects",
			"prefixes": ["weibo/tester/"],
			"items": [
				{"name": "weibo/", "bucket": "test-bucket"},
				{"name": "weibo/readme.txt", "bucket": "test-bucket"}
			]
		}`)
	})

	children, err := newTestGCSStore(t, handler).ListChildren(context.Background(), "weibo/")
	require.NoError(t, err)

	assert.Equal(t, "weibo/", gotPrefix)
	assert.Equal(t, "/", gotDelimiter)
	assert.ElementsMatch(t, []Entry{
		{ID: "weibo/tester/", Title: "tester", IsFolder: true},
		{ID: "weibo/readme.txt", Title: "readme.txt"},
	}, children)
}

func TestGCSStoreCreateFile(t *testing.T) {
	var mu sync.Mutex
	var uploaded []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		name := r.URL.Query().Get("name")
		mu.Lock()
		uploaded = append(uploaded, name)
		mu.Unlock()

		if strings.HasSuffix(name, ".jpg") {
			assert.Contains(t, string(body), "jpeg-bytes")
		}
		fmt.Fprintf(w, `{"name": %q, "bucket": "test-bucket"}`, name)
	})

	store := newTestGCSStore(t, handler)
	ctx := context.Background()

	folder, err := store.CreateFolder(ctx, "weibo/", "img")
	require.NoError(t, err)
	assert.Equal(t, "weibo/img/", folder)

	file, err := store.CreateFile(ctx, folder, "20230501_1.jpg", []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "weibo/img/20230501_1.jpg", file)

	assert.Equal(t, []string{"weibo/img/", "weibo/img/20230501_1.jpg"}, uploaded)
}

func TestGCSStoreUploadError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := newTestGCSStore(t, handler).CreateFolder(context.Background(), RootID, "weibo")
	assert.Error(t, err)
}

func TestNewGCSStoreRequiresBucket(t *testing.T) {
	_, err := NewGCSStore(nil, "bucket")
	assert.Error(t, err)
}
