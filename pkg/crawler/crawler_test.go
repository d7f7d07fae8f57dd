package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawler/internal/downloader"
	"weibocrawler/pkg/config"
	errs "weibocrawler/pkg/errors"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/mirror"
	"weibocrawler/pkg/models"
	"weibocrawler/pkg/ratelimit"
	"weibocrawler/pkg/remote"
	"weibocrawler/pkg/sink"
	"weibocrawler/pkg/weibo"
)

// fakeSource serves statusesCount posts, ten per page, ids counting from 1.
// Every third post is a repost.
type fakeSource struct {
	mu            sync.Mutex
	statusesCount int
	profileErr    error
	failPages     map[int]error
	pages         []int
}

func (s *fakeSource) FetchProfile(_ context.Context, userID string) (*weibo.ProfileResponse, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	id, _ := strconv.ParseInt(userID, 10, 64)
	resp := &weibo.ProfileResponse{OK: true}
	resp.Data.UserInfo = weibo.RawUser{
		ID:            id,
		ScreenName:    "tester",
		StatusesCount: json.RawMessage(strconv.Itoa(s.statusesCount)),
	}
	return resp, nil
}

func (s *fakeSource) FetchPage(_ context.Context, _ string, page int) (*weibo.PageResponse, error) {
	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()

	if err := s.failPages[page]; err != nil {
		return nil, err
	}

	resp := &weibo.PageResponse{OK: true}
	// a non-post card leads every page
	resp.Data.Cards = append(resp.Data.Cards, weibo.Card{CardType: 11})
	for i := 1; i <= weibo.PageSize; i++ {
		id := (page-1)*weibo.PageSize + i
		if id > s.statusesCount {
			break
		}
		status := &weibo.RawStatus{ID: json.Number(strconv.Itoa(id)), Text: fmt.Sprintf("post %d", id)}
		if id%3 == 0 {
			status.RetweetedStatus = &weibo.RawStatus{ID: json.Number(strconv.Itoa(1000 + id))}
		}
		resp.Data.Cards = append(resp.Data.Cards, weibo.Card{CardType: weibo.PostCardType, Mblog: status})
	}
	return resp, nil
}

// fakeNormalizer maps statuses directly and fails for ids in bad
type fakeNormalizer struct {
	bad map[int64]bool
}

func (n *fakeNormalizer) Card(_ context.Context, card weibo.Card) (models.Post, error) {
	id, _ := card.Mblog.ID.Int64()
	if n.bad[id] {
		return models.Post{}, errs.New(errs.ErrorTypeExtraction, "marker not found")
	}
	post := models.Post{ID: id, Text: card.Mblog.Text, UserID: 42,
		Pics: fmt.Sprintf("https://img.example/%d.jpg", id),
		CreatedAt: time.Date(2023, 5, 1, 0, 0, 0, 0, models.ChinaTime)}
	if rt := card.Mblog.RetweetedStatus; rt != nil {
		rtID, _ := rt.ID.Int64()
		post.Retweet = &models.Post{ID: rtID}
	}
	return post, nil
}

func (n *fakeNormalizer) User(raw weibo.RawUser) (models.User, error) {
	count, err := strconv.ParseInt(string(raw.StatusesCount), 10, 64)
	if err != nil {
		return models.User{}, err
	}
	return models.User{ID: raw.ID, ScreenName: raw.ScreenName, StatusesCount: count}, nil
}

type recordingSink struct {
	batches [][]int64
	runIDs  []string
	failOn  int // 1-based write call to fail, 0 never
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(ctx context.Context, _ models.User, posts []models.Post) error {
	if s.failOn > 0 && len(s.batches)+1 == s.failOn {
		return errors.New("disk full")
	}
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	s.batches = append(s.batches, ids)
	s.runIDs = append(s.runIDs, sink.RunID(ctx))
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestCrawler(src Source, norm PostNormalizer, sinks []sink.RecordSink, m *mirror.Mirror, opts Options) *Crawler {
	log := logger.NewTestLogger()
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	if opts.Sleep == nil {
		opts.Sleep = noSleep
	}
	return New(src, norm, sink.NewFanOut(sinks, nil, log), m, opts, log)
}

func postIDs(posts []models.Post) []int64 {
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestRunFetchesEveryPageInOrder(t *testing.T) {
	src := &fakeSource{statusesCount: 43}
	c := newTestCrawler(src, &fakeNormalizer{}, nil, nil, Options{})

	res, err := c.Run(context.Background(), "42", false)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 5, res.PageCount)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, src.pages)
	require.Len(t, res.Posts, 43)
	for i, p := range res.Posts {
		assert.Equal(t, int64(i+1), p.ID)
	}
}

func TestRunNoStatuses(t *testing.T) {
	src := &fakeSource{statusesCount: 0}
	res, err := newTestCrawler(src, &fakeNormalizer{}, nil, nil, Options{}).Run(context.Background(), "42", false)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, src.pages)
	assert.Empty(t, res.Posts)
}

func TestRunFilterOriginalOnly(t *testing.T) {
	src := &fakeSource{statusesCount: 20}
	res, err := newTestCrawler(src, &fakeNormalizer{}, nil, nil, Options{}).Run(context.Background(), "42", true)
	require.NoError(t, err)

	require.NotEmpty(t, res.Posts)
	for _, p := range res.Posts {
		assert.Nil(t, p.Retweet, "post %d is a repost", p.ID)
	}
	// 20 posts, ids 3,6,...,18 are reposts
	assert.Len(t, res.Posts, 14)
}

func TestRunIsolatesFailedPages(t *testing.T) {
	src := &fakeSource{
		statusesCount: 50,
		failPages:     map[int]error{4: errs.FromStatusCode(502, "bad gateway")},
	}
	// a bad post on page 3 sinks the whole page
	norm := &fakeNormalizer{bad: map[int64]bool{25: true}}
	rec := &recordingSink{}
	c := newTestCrawler(src, norm, []sink.RecordSink{rec}, nil, Options{})

	res, err := c.Run(context.Background(), "42", false)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, src.pages)
	assert.Equal(t, []int{3, 4}, res.FailedPages)
	require.Len(t, res.Posts, 30)
	for _, p := range res.Posts {
		page := int((p.ID-1)/10) + 1
		assert.NotContains(t, []int{3, 4}, page)
	}
	// pages that added nothing do not reach the sink
	assert.Len(t, rec.batches, 3)
}

func TestRunTagsLogsWithSession(t *testing.T) {
	src := &fakeSource{
		statusesCount: 20,
		failPages:     map[int]error{2: errs.FromStatusCode(502, "bad gateway")},
	}
	log := logger.NewTestLogger()
	c := New(src, &fakeNormalizer{}, nil, nil, Options{Rand: rand.New(rand.NewSource(1)), Sleep: noSleep}, log)

	res, err := c.Run(context.Background(), "42", false)
	require.NoError(t, err)

	failures := log.GetMessagesByLevel("ERROR")
	require.Len(t, failures, 1)
	assert.Equal(t, "Page skipped", failures[0].Message)
	assert.Equal(t, res.SessionID, failures[0].Fields["session_id"])
	assert.Equal(t, "42", failures[0].Fields["user_id"])
	assert.Equal(t, 2, failures[0].Fields["page"])
}

func TestRunFlushesDisjointTails(t *testing.T) {
	src := &fakeSource{statusesCount: 25}
	rec := &recordingSink{}
	c := newTestCrawler(src, &fakeNormalizer{}, []sink.RecordSink{rec}, nil, Options{})

	res, err := c.Run(context.Background(), "42", false)
	require.NoError(t, err)

	require.Len(t, rec.batches, 3)
	var all []int64
	for _, b := range rec.batches {
		all = append(all, b...)
	}
	assert.Equal(t, postIDs(res.Posts), all)

	for _, id := range rec.runIDs {
		assert.Equal(t, res.SessionID, id)
	}
}

func TestRunAbortsOnSinkError(t *testing.T) {
	src := &fakeSource{statusesCount: 40}
	rec := &recordingSink{failOn: 2}
	c := newTestCrawler(src, &fakeNormalizer{}, []sink.RecordSink{rec}, nil, Options{})

	res, err := c.Run(context.Background(), "42", false)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeSink))
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, []int{1, 2}, src.pages)
	assert.Len(t, rec.batches, 1)
}

func TestRunProfileFailureIsFatal(t *testing.T) {
	src := &fakeSource{profileErr: errs.New(errs.ErrorTypeAPINotOK, "profile not ok")}
	res, err := newTestCrawler(src, &fakeNormalizer{}, nil, nil, Options{}).Run(context.Background(), "42", false)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileFetch)
	assert.Equal(t, StatusFatal, res.Status)
	assert.Empty(t, src.pages)
}

func TestRunRejectsInvalidUserID(t *testing.T) {
	src := &fakeSource{statusesCount: 10}
	res, err := newTestCrawler(src, &fakeNormalizer{}, nil, nil, Options{}).Run(context.Background(), "abc", false)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeConfig))
	assert.Equal(t, StatusFatal, res.Status)
}

func TestRunPacesPages(t *testing.T) {
	src := &fakeSource{statusesCount: 100}
	var pauses []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	c := newTestCrawler(src, &fakeNormalizer{}, nil, nil, Options{
		Pacing: ratelimit.PacerConfig{EveryMin: 2, EveryMax: 2, PauseMin: 6 * time.Second, PauseMax: 6 * time.Second},
		Sleep:  sleep,
	})

	_, err := c.Run(context.Background(), "42", false)
	require.NoError(t, err)
	// after pages 2,4,6,8; never after the last page
	assert.Equal(t, []time.Duration{6 * time.Second, 6 * time.Second, 6 * time.Second, 6 * time.Second}, pauses)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	src := &fakeSource{statusesCount: 30}
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recordingSink{}
	c := newTestCrawler(src, &fakeNormalizer{}, []sink.RecordSink{rec}, nil, Options{
		Pacing: ratelimit.PacerConfig{EveryMin: 1, EveryMax: 1},
		Sleep: func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		},
	})

	res, err := c.Run(ctx, "42", false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, []int{1}, src.pages)
	assert.Len(t, res.Posts, 10)
}

type fakeFetcher struct{ calls int }

func (f *fakeFetcher) FetchAll(_ context.Context, urls []string) []downloader.Result {
	out := make([]downloader.Result, len(urls))
	for i, u := range urls {
		f.calls++
		out[i] = downloader.Result{Job: downloader.Job{Index: i, URL: u}, Data: []byte(u)}
	}
	return out
}

func TestRunMirrorsFlushedPosts(t *testing.T) {
	store, err := remote.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	fetcher := &fakeFetcher{}
	m := mirror.New(store, fetcher, mirror.NewSidecar(t.TempDir()), mirror.Options{
		Root:        "weibo",
		FolderRetry: config.RetryConfig{MaxAttempts: 1},
	}, logger.NewTestLogger())

	cats := mirror.Categories(config.MediaConfig{OriginalImages: true}, false)
	src := &fakeSource{statusesCount: 15}
	c := newTestCrawler(src, &fakeNormalizer{}, nil, m, Options{Categories: cats})

	res, err := c.Run(context.Background(), "42", false)
	require.NoError(t, err)
	assert.Equal(t, 15, res.Media.Uploaded)
	assert.Equal(t, 15, fetcher.calls)

	entries, err := store.ListChildren(context.Background(), "weibo/tester/img")
	require.NoError(t, err)
	assert.Len(t, entries, 15)

	// a second crawl finds every file already mirrored
	res, err = c.Run(context.Background(), "42", false)
	require.NoError(t, err)
	assert.Zero(t, res.Media.Uploaded)
	assert.Equal(t, 15, res.Media.Skipped)
	assert.Equal(t, 15, fetcher.calls)
}

func TestRunAllSkipsFailedProfiles(t *testing.T) {
	calls := 0
	src := &switchingSource{
		fakeSource: fakeSource{statusesCount: 5},
		failFor:    "7",
		calls:      &calls,
	}
	c := newTestCrawler(src, &fakeNormalizer{}, nil, nil, Options{})

	results, err := c.RunAll(context.Background(), []string{"7", "42"}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StatusFatal, results[0].Status)
	assert.Equal(t, StatusCompleted, results[1].Status)
	assert.Len(t, results[1].Posts, 5)
	assert.NotEqual(t, results[0].SessionID, results[1].SessionID)
}

func TestRunAllValidatesIDsFirst(t *testing.T) {
	src := &fakeSource{statusesCount: 5}
	_, err := newTestCrawler(src, &fakeNormalizer{}, nil, nil, Options{}).RunAll(context.Background(), []string{"42", "x"}, false)
	require.Error(t, err)
	assert.Empty(t, src.pages)
}

type switchingSource struct {
	fakeSource
	failFor string
	calls   *int
}

func (s *switchingSource) FetchProfile(ctx context.Context, userID string) (*weibo.ProfileResponse, error) {
	*s.calls++
	if userID == s.failFor {
		return nil, errs.FromStatusCode(404, "no such user")
	}
	return s.fakeSource.FetchProfile(ctx, userID)
}
