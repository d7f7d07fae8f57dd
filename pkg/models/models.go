package models

import (
	"strconv"
	"strings"
	"time"
)

// ChinaTime is the zone upstream timestamps and file dates are read in
var ChinaTime = time.FixedZone("CST", 8*60*60)

// User is the profile snapshot taken at the start of a crawl
type User struct {
	ID              int64  `json:"id" bson:"_id"`
	ScreenName      string `json:"screen_name" bson:"screen_name"`
	Gender          string `json:"gender" bson:"gender"`
	StatusesCount   int64  `json:"statuses_count" bson:"statuses_count"`
	FollowersCount  int64  `json:"followers_count" bson:"followers_count"`
	FollowCount     int64  `json:"follow_count" bson:"follow_count"`
	Description     string `json:"description" bson:"description"`
	ProfileURL      string `json:"profile_url" bson:"profile_url"`
	ProfileImageURL string `json:"profile_image_url" bson:"profile_image_url"`
	AvatarHD        string `json:"avatar_hd" bson:"avatar_hd"`
	Urank           int64  `json:"urank" bson:"urank"`
	Mbrank          int64  `json:"mbrank" bson:"mbrank"`
	Verified        bool   `json:"verified" bson:"verified"`
	VerifiedType    int64  `json:"verified_type" bson:"verified_type"`
	VerifiedReason  string `json:"verified_reason" bson:"verified_reason"`
}

// IDString returns the user id in decimal
func (u User) IDString() string { return strconv.FormatInt(u.ID, 10) }

// Post is one normalized status. A repost carries the original it wraps in
// Retweet; the original never carries another level.
type Post struct {
	ID             int64     `json:"id" bson:"_id"`
	BID            string    `json:"bid" bson:"bid"`
	UserID         int64     `json:"user_id" bson:"user_id"`
	ScreenName     string    `json:"screen_name" bson:"screen_name"`
	Text           string    `json:"text" bson:"text"`
	ArticleURL     string    `json:"article_url" bson:"article_url"`
	Pics           string    `json:"pics" bson:"pics"`
	VideoURL       string    `json:"video_url" bson:"video_url"`
	Location       string    `json:"location" bson:"location"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	Source         string    `json:"source" bson:"source"`
	AttitudesCount int64     `json:"attitudes_count" bson:"attitudes_count"`
	CommentsCount  int64     `json:"comments_count" bson:"comments_count"`
	RepostsCount   int64     `json:"reposts_count" bson:"reposts_count"`
	Topics         string    `json:"topics" bson:"topics"`
	AtUsers        string    `json:"at_users" bson:"at_users"`
	Retweet        *Post     `json:"retweet,omitempty" bson:"retweet,omitempty"`
}

// IDString returns the post id in decimal
func (p Post) IDString() string { return strconv.FormatInt(p.ID, 10) }

// IsRepost reports whether the post wraps an original
func (p Post) IsRepost() bool { return p.Retweet != nil }

// PicURLs splits the comma-joined image list
func (p Post) PicURLs() []string { return splitNonEmpty(p.Pics, ",") }

// VideoURLs splits the semicolon-joined video list
func (p Post) VideoURLs() []string { return splitNonEmpty(p.VideoURL, ";") }

// Clone returns a deep copy
func (p Post) Clone() Post {
	if p.Retweet != nil {
		rt := p.Retweet.Clone()
		p.Retweet = &rt
	}
	return p
}

// ClonePosts deep-copies a slice of posts
func ClonePosts(posts []Post) []Post {
	out := make([]Post, len(posts))
	for i := range posts {
		out[i] = posts[i].Clone()
	}
	return out
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MediaKind distinguishes the two mirrored asset types
type MediaKind string

const (
	MediaImage MediaKind = "img"
	MediaVideo MediaKind = "video"
)

// MediaSource selects whether a category mirrors the post itself or the
// original it reposts.
type MediaSource string

const (
	SourceOriginal MediaSource = "original"
	SourceRetweet  MediaSource = "retweet"
)

// MediaCategory is one independently enabled mirroring pass
type MediaCategory struct {
	Kind   MediaKind
	Source MediaSource
}

func (c MediaCategory) String() string { return string(c.Source) + "_" + string(c.Kind) }

// URLs returns the asset URLs the category covers for p
func (c MediaCategory) URLs(p Post) []string {
	target := &p
	if c.Source == SourceRetweet {
		target = p.Retweet
	}
	if target == nil {
		return nil
	}
	if c.Kind == MediaVideo {
		return target.VideoURLs()
	}
	return target.PicURLs()
}

// Subject returns the post whose id and date name the files of the category
func (c MediaCategory) Subject(p Post) *Post {
	if c.Source == SourceRetweet {
		return p.Retweet
	}
	return &p
}
