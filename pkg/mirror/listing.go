package mirror

import (
	"context"
	"sync"

	"weibocrawler/pkg/remote"
)

// ListingCache remembers the file titles of each remote folder. A folder
// is listed once, on first use; after that only uploads made through the
// cache change what it knows.
type ListingCache struct {
	store remote.Store

	mu     sync.Mutex
	titles map[string]map[string]struct{}
}

// NewListingCache creates an empty cache over store
func NewListingCache(store remote.Store) *ListingCache {
	return &ListingCache{store: store, titles: make(map[string]map[string]struct{})}
}

// Contains reports whether folderID holds a file named title
func (c *ListingCache) Contains(ctx context.Context, folderID, title string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	known, err := c.load(ctx, folderID)
	if err != nil {
		return false, err
	}
	_, ok := known[title]
	return ok, nil
}

// Add records a file uploaded to folderID
func (c *ListingCache) Add(folderID, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if known, ok := c.titles[folderID]; ok {
		known[title] = struct{}{}
	}
}

func (c *ListingCache) load(ctx context.Context, folderID string) (map[string]struct{}, error) {
	if known, ok := c.titles[folderID]; ok {
		return known, nil
	}

	children, err := c.store.ListChildren(ctx, folderID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(children))
	for _, e := range children {
		if !e.IsFolder {
			known[e.Title] = struct{}{}
		}
	}
	c.titles[folderID] = known
	return known, nil
}
