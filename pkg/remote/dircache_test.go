package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawler/pkg/config"
	errs "weibocrawler/pkg/errors"
	"weibocrawler/pkg/logger"
)

// memoryStore is an in-memory Store that can be told to fail
type memoryStore struct {
	children map[string][]Entry
	creates  int
	finds    int
	failNext int
	failWith error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{children: make(map[string][]Entry)}
}

func (m *memoryStore) fail() error {
	if m.failNext != 0 {
		if m.failNext > 0 {
			m.failNext--
		}
		return m.failWith
	}
	return nil
}

func (m *memoryStore) ListChildren(_ context.Context, folderID string) ([]Entry, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]Entry(nil), m.children[folderID]...), nil
}

func (m *memoryStore) CreateFolder(_ context.Context, parentID, title string) (string, error) {
	if err := m.fail(); err != nil {
		return "", err
	}
	m.creates++
	id := path.Join(parentID, title)
	m.children[parentID] = append(m.children[parentID], Entry{ID: id, Title: title, IsFolder: true})
	return id, nil
}

func (m *memoryStore) CreateFile(_ context.Context, parentID, title string, _ []byte, _ string) (string, error) {
	if err := m.fail(); err != nil {
		return "", err
	}
	id := path.Join(parentID, title)
	m.children[parentID] = append(m.children[parentID], Entry{ID: id, Title: title})
	return id, nil
}

func (m *memoryStore) Find(ctx context.Context, parentID, title, mimeType string) ([]Entry, error) {
	m.finds++
	children, err := m.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return findIn(children, title, mimeType), nil
}

var testRetry = config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2}

func newTestCache(store Store, sleeps *[]time.Duration) *DirectoryCache {
	return NewDirectoryCache(store, testRetry, logger.NewNopLogger(), WithSleep(func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}))
}

func TestResolveCreatesOnce(t *testing.T) {
	store := newMemoryStore()
	var sleeps []time.Duration
	cache := newTestCache(store, &sleeps)
	ctx := context.Background()

	first, err := cache.ResolvePath(ctx, "weibo", "tester", "img")
	require.NoError(t, err)
	assert.Equal(t, "weibo/tester/img", first)
	assert.Equal(t, 3, store.creates)

	findsBefore := store.finds
	for i := 0; i < 5; i++ {
		again, err := cache.ResolvePath(ctx, "weibo", "tester", "img")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 3, store.creates)
	assert.Equal(t, findsBefore, store.finds, "memoized lookups must not reach the store")
	assert.Empty(t, sleeps)
}

func TestResolveReusesExistingFolder(t *testing.T) {
	store := newMemoryStore()
	store.children[RootID] = []Entry{
		{ID: "weibo.jpg", Title: "weibo"},
		{ID: "existing", Title: "weibo", IsFolder: true},
	}
	var sleeps []time.Duration

	id, err := newTestCache(store, &sleeps).Resolve(context.Background(), RootID, "weibo")
	require.NoError(t, err)
	assert.Equal(t, "existing", id)
	assert.Zero(t, store.creates)
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	store := newMemoryStore()
	store.failNext = 2
	store.failWith = errs.New(errs.ErrorTypeRateLimit, "user rate limit exceeded")
	var sleeps []time.Duration

	id, err := newTestCache(store, &sleeps).Resolve(context.Background(), RootID, "weibo")
	require.NoError(t, err)
	assert.Equal(t, "weibo", id)
	assert.Equal(t, 1, store.creates)
	require.Len(t, sleeps, 2)
	assert.Greater(t, sleeps[1], sleeps[0]/2, "delays grow between attempts")
}

func TestResolveBoundedRetries(t *testing.T) {
	store := newMemoryStore()
	store.failNext = -1
	store.failWith = fmt.Errorf("backend unavailable")
	var sleeps []time.Duration

	_, err := newTestCache(store, &sleeps).Resolve(context.Background(), RootID, "weibo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, testRetry.MaxAttempts, store.finds)
	assert.Len(t, sleeps, testRetry.MaxAttempts-1)
}

func TestResolveStopsOnCancel(t *testing.T) {
	store := newMemoryStore()
	store.failNext = -1
	store.failWith = context.Canceled
	var sleeps []time.Duration

	_, err := newTestCache(store, &sleeps).Resolve(context.Background(), RootID, "weibo")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, 1, store.finds)
}

func TestResolveRejectsBadTitles(t *testing.T) {
	var sleeps []time.Duration
	cache := newTestCache(newMemoryStore(), &sleeps)
	for _, title := range []string{"", "..", "a/b"} {
		_, err := cache.Resolve(context.Background(), RootID, title)
		assert.Error(t, err, title)
	}
}
