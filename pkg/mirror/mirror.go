package mirror

import (
	"context"
	"fmt"

	"weibocrawler/internal/downloader"
	"weibocrawler/pkg/config"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/metrics"
	"weibocrawler/pkg/models"
	"weibocrawler/pkg/remote"
)

// BatchFetcher downloads the assets of one post
type BatchFetcher interface {
	FetchAll(ctx context.Context, urls []string) []downloader.Result
}

// Options configures a Mirror
type Options struct {
	// Root is the top folder every user folder is created under
	Root         string
	FolderRetry  config.RetryConfig
	CacheOptions []remote.CacheOption
	Metrics      *metrics.Metrics
}

// Mirror copies post media into a remote store
type Mirror struct {
	store   remote.Store
	fetcher BatchFetcher
	sidecar *Sidecar
	opts    Options
	logger  logger.Logger
}

// New creates a mirror
func New(store remote.Store, fetcher BatchFetcher, sidecar *Sidecar, opts Options, log logger.Logger) *Mirror {
	return &Mirror{
		store:   store,
		fetcher: fetcher,
		sidecar: sidecar,
		opts:    opts,
		logger:  logger.OrGlobal(log),
	}
}

// Categories lists the enabled mirroring passes. Reposted media is only
// mirrored when reposts are kept.
func Categories(cfg config.MediaConfig, filterOriginalOnly bool) []models.MediaCategory {
	var cats []models.MediaCategory
	if cfg.OriginalImages {
		cats = append(cats, models.MediaCategory{Kind: models.MediaImage, Source: models.SourceOriginal})
	}
	if cfg.OriginalVideos {
		cats = append(cats, models.MediaCategory{Kind: models.MediaVideo, Source: models.SourceOriginal})
	}
	if filterOriginalOnly {
		return cats
	}
	if cfg.RetweetImages {
		cats = append(cats, models.MediaCategory{Kind: models.MediaImage, Source: models.SourceRetweet})
	}
	if cfg.RetweetVideos {
		cats = append(cats, models.MediaCategory{Kind: models.MediaVideo, Source: models.SourceRetweet})
	}
	return cats
}

// Run holds the folder and listing caches of one crawl run
type Run struct {
	mirror   *Mirror
	dirs     *remote.DirectoryCache
	listings *ListingCache
}

// NewRun starts a run with empty caches
func (m *Mirror) NewRun() *Run {
	return &Run{
		mirror:   m,
		dirs:     remote.NewDirectoryCache(m.store, m.opts.FolderRetry, m.logger, m.opts.CacheOptions...),
		listings: NewListingCache(m.store),
	}
}

// Stats counts what a mirroring call did
type Stats struct {
	Uploaded int
	Skipped  int
	Failed   int
}

func (s *Stats) add(o Stats) {
	s.Uploaded += o.Uploaded
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// MirrorAll runs every category over posts, one category at a time
func (r *Run) MirrorAll(ctx context.Context, user models.User, posts []models.Post, cats []models.MediaCategory) Stats {
	var total Stats
	for _, cat := range cats {
		for _, post := range posts {
			total.add(r.Mirror(ctx, user, post, cat))
		}
	}
	return total
}

// Mirror uploads the assets of one category of post that the destination
// folder does not already hold. Failures never propagate: each failed
// asset is logged and appended to the category's sidecar.
func (r *Run) Mirror(ctx context.Context, user models.User, post models.Post, cat models.MediaCategory) Stats {
	var stats Stats

	subject := cat.Subject(post)
	urls := cat.URLs(post)
	if subject == nil || len(urls) == 0 {
		return stats
	}
	names := FileNames(*subject, cat.Kind, urls)
	owner := folderName(user)

	fail := func(url string, err error) {
		stats.Failed++
		r.mirror.opts.Metrics.ObserveMedia(string(cat.Kind), metrics.StatusFailed)
		logger.LogMediaFailure(r.mirror.logger, subject.IDString(), url, cat.String(), err)
		if serr := r.mirror.sidecar.Record(owner, cat.Kind, subject.IDString(), url); serr != nil {
			r.mirror.logger.WithError(serr).Error("Failed to record media failure")
		}
	}

	segments := []string{owner, string(cat.Kind)}
	if r.mirror.opts.Root != "" {
		segments = append([]string{r.mirror.opts.Root}, segments...)
	}
	folderID, err := r.dirs.ResolvePath(ctx, segments...)
	if err != nil {
		for _, u := range urls {
			fail(u, fmt.Errorf("resolve folder: %w", err))
		}
		return stats
	}

	var pendingURLs, pendingNames []string
	queued := make(map[string]bool)
	for i, name := range names {
		exists, err := r.listings.Contains(ctx, folderID, name)
		if err != nil {
			fail(urls[i], fmt.Errorf("list folder: %w", err))
			continue
		}
		if exists || queued[name] {
			stats.Skipped++
			r.mirror.opts.Metrics.ObserveMedia(string(cat.Kind), metrics.StatusSkipped)
			continue
		}
		queued[name] = true
		pendingURLs = append(pendingURLs, urls[i])
		pendingNames = append(pendingNames, name)
	}
	if len(pendingURLs) == 0 {
		return stats
	}

	for i, res := range r.mirror.fetcher.FetchAll(ctx, pendingURLs) {
		if res.Err != nil {
			fail(res.Job.URL, fmt.Errorf("download: %w", res.Err))
			continue
		}
		name := pendingNames[i]
		if _, err := r.dirs.Store().CreateFile(ctx, folderID, name, res.Data, MimeType(name, cat.Kind)); err != nil {
			fail(res.Job.URL, fmt.Errorf("upload: %w", err))
			continue
		}
		r.listings.Add(folderID, name)
		stats.Uploaded++
		r.mirror.opts.Metrics.ObserveMedia(string(cat.Kind), metrics.StatusOK)
		r.mirror.logger.DebugWithFields("Mirrored asset", map[string]interface{}{
			"post_id": subject.IDString(),
			"file":    name,
			"size":    len(res.Data),
		})
	}
	return stats
}

func folderName(user models.User) string {
	if user.ScreenName != "" {
		return user.ScreenName
	}
	return user.IDString()
}
