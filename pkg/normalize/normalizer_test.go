package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "weibocrawler/pkg/errors"
	"weibocrawler/pkg/extract"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/weibo"
)

type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) FetchDetail(_ context.Context, id string) (string, error) {
	f.calls = append(f.calls, id)
	body, ok := f.pages[id]
	if !ok {
		return "", errs.New(errs.ErrorTypeNotFound, "detail "+id)
	}
	return body, nil
}

func decodeCard(t *testing.T, raw string) weibo.Card {
	t.Helper()
	var card weibo.Card
	require.NoError(t, json.Unmarshal([]byte(raw), &card))
	return card
}

func newTestNormalizer(f DetailFetcher) *Normalizer {
	now := time.Date(2023, 5, 10, 12, 0, 0, 0, cst)
	return New(f, extract.New(), nil, logger.NewTestLogger(), WithClock(func() time.Time { return now }))
}

const shortCard = `{
	"card_type": 9,
	"mblog": {
		"id": "4890000000000001",
		"bid": "Mz001",
		"text": "去了 <a href=\"/n/小明\">@小明</a> 家 <span class=\"surl-text\">#周末#</span><span><img src=\"https://h5.sinaimg.cn/upload/2015/timeline_card_small_location_default.png\"></span><span>北京·朝阳</span>",
		"source": "iPhone客户端",
		"created_at": "Mon May 01 12:00:00 +0800 2023",
		"user": {"id": 123, "screen_name": "tester"},
		"reposts_count": 1,
		"comments_count": "1.2万",
		"attitudes_count": "3万+",
		"pics": [
			{"url": "https://wx1.sinaimg.cn/orj360/a.jpeg", "large": {"url": "https://wx1.sinaimg.cn/large/a.jpeg"}},
			{"url": "https://wx1.sinaimg.cn/orj360/b"}
		],
		"page_info": {"type": "video", "media_info": {"mp4_hd_url": "https://f.video/hd.mp4", "mp4_sd_url": "https://f.video/sd.mp4"}}
	}
}`

func TestCardShortStatus(t *testing.T) {
	f := &fakeFetcher{}
	post, err := newTestNormalizer(f).Card(context.Background(), decodeCard(t, shortCard))
	require.NoError(t, err)

	assert.Empty(t, f.calls)
	assert.Equal(t, int64(4890000000000001), post.ID)
	assert.Equal(t, "Mz001", post.BID)
	assert.Equal(t, int64(123), post.UserID)
	assert.Equal(t, "tester", post.ScreenName)
	assert.Contains(t, post.Text, "去了 @小明 家")
	assert.Equal(t, "北京·朝阳", post.Location)
	assert.Equal(t, "周末", post.Topics)
	assert.Equal(t, "小明", post.AtUsers)
	assert.Equal(t, int64(1), post.RepostsCount)
	assert.Equal(t, int64(12000), post.CommentsCount)
	assert.Equal(t, int64(30000), post.AttitudesCount)
	assert.Equal(t, "https://wx1.sinaimg.cn/large/a.jpeg,https://wx1.sinaimg.cn/orj360/b", post.Pics)
	assert.Equal(t, "https://f.video/hd.mp4", post.VideoURL)
	assert.Equal(t, "2023-05-01", post.CreatedAt.In(cst).Format("2006-01-02"))
	assert.False(t, post.IsRepost())
}

const longDetail = `<script>var $render_data = [{"status": {
	"id": "4890000000000002",
	"bid": "Mz002",
	"text": "完整的长文本
第二行",
	"created_at": "Tue May 02 08:00:00 +0800 2023",
	"user": {"id": 123, "screen_name": "tester"},
	"reposts_count": 0, "comments_count": 0, "attitudes_count": 0
}, "call": 1, "hotScheme": "x"}][0]</script>`

func TestCardLongStatusUsesDetail(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"4890000000000002": longDetail}}
	card := decodeCard(t, `{"card_type": 9, "mblog": {"id": "4890000000000002", "isLongText": true, "text": "完整的...全文", "user": {"id": 123}}}`)

	post, err := newTestNormalizer(f).Card(context.Background(), card)
	require.NoError(t, err)

	assert.Equal(t, []string{"4890000000000002"}, f.calls)
	assert.Equal(t, "完整的长文本\n第二行", post.Text)
	assert.Equal(t, "Mz002", post.BID)
}

const fullStatus = `{
	"id": "4890000000000003",
	"bid": "Mz003",
	"text": "长文 <a href=\"/n/小红\">@小红</a> <span class=\"surl-text\">#旅行#</span>",
	"source": "微博 weibo.com",
	"created_at": "Wed May 03 09:30:00 +0800 2023",
	"user": {"id": 123, "screen_name": "tester"},
	"reposts_count": 4, "comments_count": "1万+", "attitudes_count": 12,
	"pics": [{"url": "https://wx1.sinaimg.cn/orj360/c.jpg", "large": {"url": "https://wx1.sinaimg.cn/large/c.jpg"}}]
}`

func TestCardLongStatusMatchesShortForm(t *testing.T) {
	n := newTestNormalizer(&fakeFetcher{pages: map[string]string{
		"4890000000000003": `<script>var $render_data = [{"status": ` + fullStatus + `, "call": 1, "hotScheme": "x"}][0]</script>`,
	}})

	short, err := n.Card(context.Background(), decodeCard(t, `{"card_type": 9, "mblog": `+fullStatus+`}`))
	require.NoError(t, err)

	truncated := `{"card_type": 9, "mblog": {"id": "4890000000000003", "isLongText": true, "text": "长文...全文", "user": {"id": 123}}}`
	long, err := n.Card(context.Background(), decodeCard(t, truncated))
	require.NoError(t, err)

	assert.Equal(t, short, long)
	assert.Equal(t, "旅行", long.Topics)
	assert.Equal(t, "https://wx1.sinaimg.cn/large/c.jpg", long.Pics)
}

func TestCardLongStatusDetailFailure(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"7": "<html>no payload</html>"}}
	n := newTestNormalizer(f)

	_, err := n.Card(context.Background(), decodeCard(t, `{"card_type": 9, "mblog": {"id": "8", "isLongText": true}}`))
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))

	_, err = n.Card(context.Background(), decodeCard(t, `{"card_type": 9, "mblog": {"id": "7", "isLongText": true}}`))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeExtraction))
	assert.True(t, errors.Is(err, extract.ErrMarkerNotFound))
}

func TestCardRepostResolvesOneLevel(t *testing.T) {
	card := decodeCard(t, `{"card_type": 9, "mblog": {
		"id": "20", "text": "转发微博", "user": {"id": 1, "screen_name": "reposter"},
		"retweeted_status": {
			"id": "10", "text": "原文", "user": {"id": 2, "screen_name": "author"},
			"pics": [{"url": "https://img/x.png"}],
			"retweeted_status": {"id": "5", "text": "更早"}
		}
	}}`)

	post, err := newTestNormalizer(&fakeFetcher{}).Card(context.Background(), card)
	require.NoError(t, err)

	require.True(t, post.IsRepost())
	assert.Equal(t, int64(20), post.ID)
	assert.Equal(t, int64(10), post.Retweet.ID)
	assert.Equal(t, "author", post.Retweet.ScreenName)
	assert.Equal(t, "https://img/x.png", post.Retweet.Pics)
	assert.Nil(t, post.Retweet.Retweet)
}

func TestCardRepostOfDeletedAuthor(t *testing.T) {
	card := decodeCard(t, `{"card_type": 9, "mblog": {
		"id": "20", "text": "转发", "user": {"id": 1},
		"retweeted_status": {"id": "10", "text": "此微博已被删除", "user": null}
	}}`)

	post, err := newTestNormalizer(&fakeFetcher{}).Card(context.Background(), card)
	require.NoError(t, err)
	require.NotNil(t, post.Retweet)
	assert.Zero(t, post.Retweet.UserID)
}

func TestCardRejectsNonStatus(t *testing.T) {
	_, err := newTestNormalizer(nil).Card(context.Background(), weibo.Card{CardType: 11})
	assert.True(t, errs.Is(err, errs.ErrorTypeParsing))
}

func TestParseArticleAndBadCounter(t *testing.T) {
	n := newTestNormalizer(nil)

	post, err := n.Parse(&weibo.RawStatus{
		ID:       "3",
		Text:     "长文",
		PageInfo: &weibo.RawPageInfo{Type: "article", PageURL: "https://m.weibo.cn/p/article"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://m.weibo.cn/p/article", post.ArticleURL)
	assert.Empty(t, post.VideoURL)

	_, err = n.Parse(&weibo.RawStatus{ID: "4", RepostsCount: json.RawMessage(`"many"`)})
	assert.True(t, errs.Is(err, errs.ErrorTypeParsing))
}

func TestUser(t *testing.T) {
	var raw weibo.RawUser
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 1669879400, "screen_name": "Dear-迪丽热巴", "gender": "f",
		"statuses_count": 1100, "followers_count": "7829万", "follow_count": 233,
		"verified": true, "verified_type": 0, "verified_reason": "演员"
	}`), &raw))

	user, err := newTestNormalizer(nil).User(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1669879400), user.ID)
	assert.Equal(t, int64(1100), user.StatusesCount)
	assert.Equal(t, int64(78290000), user.FollowersCount)
	assert.Equal(t, int64(233), user.FollowCount)
	assert.True(t, user.Verified)
	assert.Equal(t, "演员", user.VerifiedReason)
}
