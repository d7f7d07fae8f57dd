package normalize

import (
	"context"
	"fmt"
	"strings"
	"time"

	errs "weibocrawler/pkg/errors"
	"weibocrawler/pkg/extract"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/models"
	"weibocrawler/pkg/weibo"
)

// DetailFetcher retrieves the raw detail page of a status
type DetailFetcher interface {
	FetchDetail(ctx context.Context, statusID string) (string, error)
}

// Normalizer turns raw API statuses into canonical records. A record is
// either fully resolved or an error is returned; there is no partial result.
type Normalizer struct {
	fetcher   DetailFetcher
	extractor extract.ContentExtractor
	sanitizer *Sanitizer
	now       func() time.Time
	logger    logger.Logger
}

// Option customizes a Normalizer
type Option func(*Normalizer)

// WithClock fixes the reference time for relative timestamps
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New creates a normalizer. A nil sanitizer keeps UTF-8 output.
func New(fetcher DetailFetcher, extractor extract.ContentExtractor, sanitizer *Sanitizer, log logger.Logger, opts ...Option) *Normalizer {
	if extractor == nil {
		extractor = extract.New()
	}
	if sanitizer == nil {
		sanitizer, _ = NewSanitizer("utf-8")
	}
	n := &Normalizer{
		fetcher:   fetcher,
		extractor: extractor,
		sanitizer: sanitizer,
		now:       time.Now,
		logger:    logger.OrGlobal(log),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Card normalizes the status carried by a timeline card. For a repost both
// the wrapper and the original it wraps are resolved; deeper nesting is not
// followed.
func (n *Normalizer) Card(ctx context.Context, card weibo.Card) (models.Post, error) {
	if !card.IsPost() {
		return models.Post{}, errs.New(errs.ErrorTypeParsing, fmt.Sprintf("card type %d carries no status", card.CardType))
	}
	mblog := card.Mblog

	post, err := n.Resolve(ctx, mblog)
	if err != nil {
		return models.Post{}, err
	}

	if mblog.RetweetedStatus != nil {
		original, err := n.Resolve(ctx, mblog.RetweetedStatus)
		if err != nil {
			return models.Post{}, fmt.Errorf("resolve reposted %s: %w", mblog.RetweetedStatus.ID, err)
		}
		post.Retweet = &original
	}
	return post, nil
}

// Resolve normalizes one status, fetching the full text when the listing
// only carries a truncated body.
func (n *Normalizer) Resolve(ctx context.Context, raw *weibo.RawStatus) (models.Post, error) {
	if !raw.IsLongText {
		return n.Parse(raw)
	}
	if n.fetcher == nil {
		return models.Post{}, errs.New(errs.ErrorTypeExtraction, "long status without a detail fetcher")
	}

	body, err := n.fetcher.FetchDetail(ctx, raw.ID.String())
	if err != nil {
		return models.Post{}, err
	}
	full, err := n.extractor.StatusFromDetail(body)
	if err != nil {
		return models.Post{}, errs.Wrap(errs.ErrorTypeExtraction, err, "detail "+raw.ID.String())
	}

	n.logger.DebugWithFields("resolved long status", map[string]interface{}{
		"post_id": raw.ID.String(),
	})
	return n.Parse(full)
}

// Parse maps a single status to a record without following reposts
func (n *Normalizer) Parse(raw *weibo.RawStatus) (models.Post, error) {
	id, err := raw.ID.Int64()
	if err != nil {
		return models.Post{}, errs.Wrap(errs.ErrorTypeParsing, err, fmt.Sprintf("status id %q", raw.ID))
	}

	rendered, err := n.extractor.Rendered(raw.Text)
	if err != nil {
		return models.Post{}, errs.Wrap(errs.ErrorTypeParsing, err, "status body")
	}

	post := models.Post{
		ID:         id,
		BID:        raw.BID,
		Text:       n.sanitizer.Clean(rendered.Text),
		Source:     n.sanitizer.Clean(raw.Source),
		Location:   n.sanitizer.Clean(rendered.Location),
		Topics:     n.sanitizer.Clean(strings.Join(rendered.Topics, ",")),
		AtUsers:    n.sanitizer.Clean(strings.Join(rendered.AtUsers, ",")),
		Pics:       picURLs(raw.Pics),
		VideoURL:   videoURL(raw.PageInfo),
		ArticleURL: articleURL(raw.PageInfo),
	}

	// Statuses of deleted accounts come back without a user
	if raw.User != nil {
		post.UserID = raw.User.ID
		post.ScreenName = n.sanitizer.Clean(raw.User.ScreenName)
	}

	counters := []struct {
		name string
		raw  interface{}
		dst  *int64
	}{
		{"reposts_count", raw.RepostsCount, &post.RepostsCount},
		{"comments_count", raw.CommentsCount, &post.CommentsCount},
		{"attitudes_count", raw.AttitudesCount, &post.AttitudesCount},
	}
	for _, c := range counters {
		v, err := ParseCount(c.raw)
		if err != nil {
			return models.Post{}, errs.Wrap(errs.ErrorTypeParsing, err, c.name)
		}
		*c.dst = v
	}

	if raw.CreatedAt != "" {
		created, err := ParseCreatedAt(raw.CreatedAt, n.now())
		if err != nil {
			return models.Post{}, errs.Wrap(errs.ErrorTypeParsing, err, "created_at")
		}
		post.CreatedAt = created
	}

	return post, nil
}

// User maps the profile card to a user record
func (n *Normalizer) User(raw weibo.RawUser) (models.User, error) {
	user := models.User{
		ID:              raw.ID,
		ScreenName:      n.sanitizer.Clean(raw.ScreenName),
		Gender:          n.sanitizer.Clean(raw.Gender),
		Description:     n.sanitizer.Clean(raw.Description),
		ProfileURL:      raw.ProfileURL,
		ProfileImageURL: raw.ProfileImageURL,
		AvatarHD:        raw.AvatarHD,
		Urank:           raw.Urank,
		Mbrank:          raw.Mbrank,
		Verified:        raw.Verified,
		VerifiedType:    raw.VerifiedType,
		VerifiedReason:  n.sanitizer.Clean(raw.VerifiedReason),
	}

	var err error
	if user.StatusesCount, err = ParseCount(raw.StatusesCount); err != nil {
		return models.User{}, errs.Wrap(errs.ErrorTypeParsing, err, "statuses_count")
	}
	if user.FollowersCount, err = ParseCount(raw.FollowersCount); err != nil {
		return models.User{}, errs.Wrap(errs.ErrorTypeParsing, err, "followers_count")
	}
	if user.FollowCount, err = ParseCount(raw.FollowCount); err != nil {
		return models.User{}, errs.Wrap(errs.ErrorTypeParsing, err, "follow_count")
	}
	return user, nil
}

func picURLs(pics []weibo.RawPic) string {
	urls := make([]string, 0, len(pics))
	for _, p := range pics {
		u := p.Large.URL
		if u == "" {
			u = p.URL
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	return strings.Join(urls, ",")
}

func videoURL(info *weibo.RawPageInfo) string {
	if info == nil || info.Type != "video" {
		return ""
	}
	return info.MediaInfo.BestURL()
}

func articleURL(info *weibo.RawPageInfo) string {
	if info == nil || info.Type != "article" {
		return ""
	}
	return info.PageURL
}
