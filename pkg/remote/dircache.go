package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"weibocrawler/pkg/config"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/retry"
)

// ErrRetriesExhausted is returned when a folder could not be resolved
// within the configured attempt budget.
var ErrRetriesExhausted = errors.New("remote folder retries exhausted")

type folderKey struct {
	parent string
	title  string
}

// DirectoryCache resolves folders by (parent, title), creating them when
// missing, and remembers every answer for the rest of the run.
type DirectoryCache struct {
	store    Store
	settings config.RetryConfig
	sleep    retry.SleepFunc
	logger   logger.Logger

	mu  sync.Mutex
	ids map[folderKey]string
}

// CacheOption customizes a DirectoryCache
type CacheOption func(*DirectoryCache)

// WithSleep replaces the wait between attempts
func WithSleep(sleep retry.SleepFunc) CacheOption {
	return func(c *DirectoryCache) { c.sleep = sleep }
}

// NewDirectoryCache creates a cache in front of store
func NewDirectoryCache(store Store, settings config.RetryConfig, log logger.Logger, opts ...CacheOption) *DirectoryCache {
	c := &DirectoryCache{
		store:    store,
		settings: settings,
		sleep:    retry.Wait,
		logger:   logger.OrGlobal(log),
		ids:      make(map[folderKey]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying store
func (c *DirectoryCache) Store() Store { return c.store }

// Resolve returns the id of folder title under parentID. A folder is
// created at most once per run: later calls are answered from memory.
func (c *DirectoryCache) Resolve(ctx context.Context, parentID, title string) (string, error) {
	if err := validTitle(title); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := folderKey{parent: parentID, title: title}
	if id, ok := c.ids[key]; ok {
		return id, nil
	}

	cfg := retry.FromSettings(ctx, c.settings, c.logger)
	cfg.Sleep = c.sleep
	// Every failure counts as transient here, rate limiting included
	cfg.RetryIf = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	id, err := retry.DoWithResult(func() (string, error) {
		return c.findOrCreate(ctx, parentID, title)
	}, cfg)
	if err != nil {
		if errors.Is(err, retry.ErrMaxAttempts) {
			return "", fmt.Errorf("%w: %q under %q: %w", ErrRetriesExhausted, title, parentID, err)
		}
		return "", fmt.Errorf("resolve folder %q: %w", title, err)
	}

	c.ids[key] = id
	return id, nil
}

// ResolvePath walks segments from the root, resolving each in turn
func (c *DirectoryCache) ResolvePath(ctx context.Context, segments ...string) (string, error) {
	id := RootID
	for _, segment := range segments {
		next, err := c.Resolve(ctx, id, segment)
		if err != nil {
			return "", err
		}
		id = next
	}
	return id, nil
}

// findOrCreate looks before it creates, so an attempt that follows a
// create whose response was lost picks up the folder instead of
// duplicating it.
func (c *DirectoryCache) findOrCreate(ctx context.Context, parentID, title string) (string, error) {
	found, err := c.store.Find(ctx, parentID, title, FolderMimeType)
	if err != nil {
		return "", err
	}
	if len(found) > 0 {
		return found[0].ID, nil
	}

	id, err := c.store.CreateFolder(ctx, parentID, title)
	if err != nil {
		return "", err
	}
	c.logger.DebugWithFields("created remote folder", map[string]interface{}{
		"parent": parentID,
		"title":  title,
		"id":     id,
	})
	return id, nil
}
