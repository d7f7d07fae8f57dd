package weibo

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Flag decodes the API's ok field, which arrives as 0/1 or as a boolean
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "1", "true":
		*f = true
	case "0", "false", "null":
		*f = false
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid ok flag %s", data)
		}
		*f = n.String() == "1"
	}
	return nil
}

// ProfileResponse is the envelope of a profile container request
type ProfileResponse struct {
	OK   Flag   `json:"ok"`
	Msg  string `json:"msg"`
	Data struct {
		UserInfo RawUser `json:"userInfo"`
	} `json:"data"`
}

// PageResponse is the envelope of a timeline page request
type PageResponse struct {
	OK   Flag   `json:"ok"`
	Msg  string `json:"msg"`
	Data struct {
		Cards []Card `json:"cards"`
	} `json:"data"`
}

// Card is one entry of a timeline page; only card_type 9 carries a status
type Card struct {
	CardType int        `json:"card_type"`
	Mblog    *RawStatus `json:"mblog"`
}

// IsPost reports whether the card carries a status
func (c Card) IsPost() bool { return c.CardType == PostCardType && c.Mblog != nil }

// RawUser is the user object as the API returns it. Counters may be
// numbers or abbreviated strings.
type RawUser struct {
	ID              int64           `json:"id"`
	ScreenName      string          `json:"screen_name"`
	Gender          string          `json:"gender"`
	StatusesCount   json.RawMessage `json:"statuses_count"`
	FollowersCount  json.RawMessage `json:"followers_count"`
	FollowCount     json.RawMessage `json:"follow_count"`
	Description     string          `json:"description"`
	ProfileURL      string          `json:"profile_url"`
	ProfileImageURL string          `json:"profile_image_url"`
	AvatarHD        string          `json:"avatar_hd"`
	Urank           int64           `json:"urank"`
	Mbrank          int64           `json:"mbrank"`
	Verified        bool            `json:"verified"`
	VerifiedType    int64           `json:"verified_type"`
	VerifiedReason  string          `json:"verified_reason"`
}

// RawStatus is one status as the API returns it
type RawStatus struct {
	ID              json.Number     `json:"id"`
	BID             string          `json:"bid"`
	Text            string          `json:"text"`
	Source          string          `json:"source"`
	CreatedAt       string          `json:"created_at"`
	IsLongText      bool            `json:"isLongText"`
	User            *RawUser        `json:"user"`
	RepostsCount    json.RawMessage `json:"reposts_count"`
	CommentsCount   json.RawMessage `json:"comments_count"`
	AttitudesCount  json.RawMessage `json:"attitudes_count"`
	Pics            []RawPic        `json:"pics"`
	PageInfo        *RawPageInfo    `json:"page_info"`
	RetweetedStatus *RawStatus      `json:"retweeted_status"`
}

// RawPic is an attached image; Large carries the original resolution
type RawPic struct {
	URL   string `json:"url"`
	Large struct {
		URL string `json:"url"`
	} `json:"large"`
}

// RawPageInfo describes an attached video or article
type RawPageInfo struct {
	Type      string        `json:"type"`
	PageURL   string        `json:"page_url"`
	MediaInfo *RawMediaInfo `json:"media_info"`
}

// RawMediaInfo lists the video renditions, best first
type RawMediaInfo struct {
	MP4720P   string `json:"mp4_720p_mp4"`
	MP4HD     string `json:"mp4_hd_url"`
	MP4SD     string `json:"mp4_sd_url"`
	StreamURL string `json:"stream_url"`
}

// BestURL returns the highest quality rendition available
func (m *RawMediaInfo) BestURL() string {
	if m == nil {
		return ""
	}
	for _, u := range []string{m.MP4720P, m.MP4HD, m.MP4SD, m.StreamURL} {
		if u != "" {
			return u
		}
	}
	return ""
}
