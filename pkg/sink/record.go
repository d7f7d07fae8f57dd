package sink

import (
	"strconv"

	"weibocrawler/pkg/models"
)

// TimeLayout formats timestamps in flat records
const TimeLayout = "2006-01-02 15:04:05"

// PostColumns is the flat layout of one post
var PostColumns = []string{
	"id", "bid", "user_id", "screen_name", "text", "article_url", "pics", "video_url",
	"location", "created_at", "source", "attitudes_count", "comments_count",
	"reposts_count", "topics", "at_users",
}

// Columns returns the flat header, with the reposted original's columns
// prefixed "retweet_" when withRetweet is set.
func Columns(withRetweet bool) []string {
	cols := append([]string(nil), PostColumns...)
	if withRetweet {
		for _, c := range PostColumns {
			cols = append(cols, "retweet_"+c)
		}
	}
	return cols
}

// Row flattens a post in Columns order
func Row(p models.Post, withRetweet bool) []string {
	row := fields(p)
	if withRetweet {
		if p.Retweet != nil {
			row = append(row, fields(*p.Retweet)...)
		} else {
			row = append(row, make([]string, len(PostColumns))...)
		}
	}
	return row
}

func fields(p models.Post) []string {
	created := ""
	if !p.CreatedAt.IsZero() {
		created = p.CreatedAt.In(models.ChinaTime).Format(TimeLayout)
	}
	return []string{
		p.IDString(),
		p.BID,
		strconv.FormatInt(p.UserID, 10),
		p.ScreenName,
		p.Text,
		p.ArticleURL,
		p.Pics,
		p.VideoURL,
		p.Location,
		created,
		p.Source,
		strconv.FormatInt(p.AttitudesCount, 10),
		strconv.FormatInt(p.CommentsCount, 10),
		strconv.FormatInt(p.RepostsCount, 10),
		p.Topics,
		p.AtUsers,
	}
}
