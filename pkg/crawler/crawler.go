package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	errs "weibocrawler/pkg/errors"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/metrics"
	"weibocrawler/pkg/mirror"
	"weibocrawler/pkg/models"
	"weibocrawler/pkg/ratelimit"
	"weibocrawler/pkg/retry"
	"weibocrawler/pkg/sink"
	"weibocrawler/pkg/weibo"
)

// Status is the terminal state of a run
type Status string

const (
	// StatusCompleted means every page was attempted
	StatusCompleted Status = "completed"
	// StatusFatal means the profile could not be fetched and no page was
	// attempted
	StatusFatal Status = "fatal"
	// StatusAborted means a sink failed or the context ended mid-run
	StatusAborted Status = "aborted"
)

// ErrProfileFetch marks a run that could not start
var ErrProfileFetch = errors.New("profile fetch failed")

// Source is the upstream API the loop pages through
type Source interface {
	FetchProfile(ctx context.Context, userID string) (*weibo.ProfileResponse, error)
	FetchPage(ctx context.Context, userID string, page int) (*weibo.PageResponse, error)
}

// PostNormalizer turns raw cards and profiles into records
type PostNormalizer interface {
	Card(ctx context.Context, card weibo.Card) (models.Post, error)
	User(raw weibo.RawUser) (models.User, error)
}

// Progress receives crawl events for display
type Progress interface {
	Start(user models.User, pageCount int)
	Page(page, pageCount, posts int, err error)
	Finish(result *Result)
}

// Options configures a Crawler
type Options struct {
	PageSize   int
	Pacing     ratelimit.PacerConfig
	Categories []models.MediaCategory
	Metrics    *metrics.Metrics
	Progress   Progress

	// Rand and Sleep drive page pacing; nil uses the clock and retry.Wait
	Rand  *rand.Rand
	Sleep retry.SleepFunc
}

// Result is what one account's run produced
type Result struct {
	SessionID   string
	User        models.User
	Posts       []models.Post
	Status      Status
	PageCount   int
	FailedPages []int
	Media       mirror.Stats
}

// Crawler pages through accounts, flushing records and mirroring media
// after every page.
type Crawler struct {
	source     Source
	normalizer PostNormalizer
	fanout     *sink.FanOut
	mirror     *mirror.Mirror
	opts       Options
	logger     logger.Logger
}

// New creates a crawler. A nil mirror disables media mirroring.
func New(source Source, normalizer PostNormalizer, fanout *sink.FanOut, m *mirror.Mirror, opts Options, log logger.Logger) *Crawler {
	if opts.PageSize <= 0 {
		opts.PageSize = weibo.PageSize
	}
	if fanout == nil {
		fanout = sink.NewFanOut(nil, opts.Metrics, log)
	}
	return &Crawler{
		source:     source,
		normalizer: normalizer,
		fanout:     fanout,
		mirror:     m,
		opts:       opts,
		logger:     logger.OrGlobal(log),
	}
}

// Run crawls every timeline page of userID in ascending order. A page that
// fails is logged and skipped. Only a failed profile fetch, a sink error or
// ctx ending stop the run early; in the latter two cases the partial result
// is returned with the error.
func (c *Crawler) Run(ctx context.Context, userID string, filterOriginalOnly bool) (*Result, error) {
	ctx = logger.ContextWithUser(ctx, userID)
	log := c.logger.WithContext(ctx)

	if !weibo.IsValidUserID(userID) {
		return &Result{Status: StatusFatal}, errs.New(errs.ErrorTypeConfig, fmt.Sprintf("invalid user id %q", userID))
	}

	profile, err := c.source.FetchProfile(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Failed to fetch profile")
		return &Result{Status: StatusFatal}, fmt.Errorf("%w: %s: %w", ErrProfileFetch, userID, err)
	}
	user, err := c.normalizer.User(profile.Data.UserInfo)
	if err != nil {
		log.WithError(err).Error("Failed to normalize profile")
		return &Result{Status: StatusFatal}, fmt.Errorf("%w: %s: %w", ErrProfileFetch, userID, err)
	}

	session := NewSession(user, filterOriginalOnly)
	if c.mirror != nil && len(c.opts.Categories) > 0 {
		session.Media = c.mirror.NewRun()
	}
	ctx = sink.WithRunID(ctx, session.ID.String())
	log = c.logger.WithContext(ctx)

	pageCount := weibo.PageCount(user.StatusesCount, c.opts.PageSize)
	result := &Result{
		SessionID: session.ID.String(),
		User:      user,
		PageCount: pageCount,
	}

	log.InfoWithFields("Starting crawl", map[string]interface{}{
		"screen_name":    user.ScreenName,
		"statuses_count": user.StatusesCount,
		"page_count":     pageCount,
		"filter":         filterOriginalOnly,
	})
	if c.opts.Progress != nil {
		c.opts.Progress.Start(user, pageCount)
	}

	pacer := ratelimit.NewPagePacer(c.opts.Pacing, c.opts.Rand, c.opts.Sleep)

	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return c.finish(session, result, StatusAborted), err
		}

		kept, err := c.crawlPage(ctx, session, page)
		if err != nil {
			logger.LogPageFailure(log, page, err)
			result.FailedPages = append(result.FailedPages, page)
		}
		if c.opts.Progress != nil {
			c.opts.Progress.Page(page, pageCount, kept, err)
		}

		stats, err := c.flush(ctx, session)
		result.Media.Uploaded += stats.Uploaded
		result.Media.Skipped += stats.Skipped
		result.Media.Failed += stats.Failed
		if err != nil {
			log.WithError(err).WithField("page", page).Error("Flush failed, aborting crawl")
			return c.finish(session, result, StatusAborted), err
		}

		logger.LogCrawlProgress(log, user.ScreenName, page, pageCount, len(session.Posts))

		if pause, err := pacer.AfterPage(ctx, page, pageCount); err != nil {
			return c.finish(session, result, StatusAborted), err
		} else if pause > 0 {
			log.DebugWithFields("Pausing between pages", map[string]interface{}{
				"page":  page,
				"pause": pause.String(),
			})
		}
	}

	return c.finish(session, result, StatusCompleted), nil
}

// crawlPage fetches and normalizes one page. The page's posts reach the
// session only when every post card on it normalized.
func (c *Crawler) crawlPage(ctx context.Context, session *Session, page int) (int, error) {
	start := time.Now()
	userID := session.User.IDString()

	resp, err := c.source.FetchPage(ctx, userID, page)
	if err != nil {
		c.opts.Metrics.ObservePage(metrics.StatusFailed, time.Since(start))
		return 0, err
	}

	var posts []models.Post
	for i, card := range resp.Data.Cards {
		if !card.IsPost() {
			continue
		}
		post, err := c.normalizer.Card(ctx, card)
		if err != nil {
			c.opts.Metrics.ObservePage(metrics.StatusFailed, time.Since(start))
			return 0, fmt.Errorf("card %d: %w", i, err)
		}
		posts = append(posts, post)
	}

	kept := session.Append(posts...)
	c.opts.Metrics.ObservePage(metrics.StatusOK, time.Since(start))
	c.opts.Metrics.AddPosts(kept)
	return kept, nil
}

// flush hands the pending tail to the sinks and, once they all succeeded,
// mirrors that same tail's media.
func (c *Crawler) flush(ctx context.Context, session *Session) (mirror.Stats, error) {
	from := session.Watermark
	mark, err := c.fanout.Flush(ctx, session.User, session.Posts, from)
	if err != nil {
		return mirror.Stats{}, err
	}
	session.Watermark = mark

	if session.Media == nil || mark == from {
		return mirror.Stats{}, nil
	}
	return session.Media.MirrorAll(ctx, session.User, session.Posts[from:mark], c.opts.Categories), nil
}

func (c *Crawler) finish(session *Session, result *Result, status Status) *Result {
	result.Posts = session.Posts
	result.Status = status

	c.logger.InfoWithFields("Crawl finished", map[string]interface{}{
		"user_id":      session.User.ID,
		"session_id":   result.SessionID,
		"status":       string(status),
		"posts":        len(result.Posts),
		"failed_pages": len(result.FailedPages),
		"uploaded":     result.Media.Uploaded,
		"media_failed": result.Media.Failed,
	})
	if c.opts.Progress != nil {
		c.opts.Progress.Finish(result)
	}
	return result
}

// RunAll crawls each account in order with a fresh session. An account
// whose profile cannot be fetched is logged and skipped; any other error
// stops the whole batch.
func (c *Crawler) RunAll(ctx context.Context, userIDs []string, filterOriginalOnly bool) ([]*Result, error) {
	for _, id := range userIDs {
		if !weibo.IsValidUserID(id) {
			return nil, errs.New(errs.ErrorTypeConfig, fmt.Sprintf("invalid user id %q", id))
		}
	}

	results := make([]*Result, 0, len(userIDs))
	for _, id := range userIDs {
		res, err := c.Run(ctx, id, filterOriginalOnly)
		results = append(results, res)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrProfileFetch) {
			c.logger.WithError(err).WithField("user_id", id).Warn("Skipping account")
			continue
		}
		return results, err
	}
	return results, nil
}
