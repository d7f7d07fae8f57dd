package weibo

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the mobile web host serving the container API
	BaseURL = "https://m.weibo.cn"

	// IndexEndpoint serves both profiles and timelines, keyed by containerid
	IndexEndpoint = "/api/container/getIndex"

	// ProfileContainerPrefix prefixes a user id to address the profile card
	ProfileContainerPrefix = "100505"

	// TimelineContainerPrefix prefixes a user id to address the status timeline
	TimelineContainerPrefix = "107603"

	// PostCardType marks a card that carries a status
	PostCardType = 9

	// PageSize is the number of statuses the timeline returns per page
	PageSize = 10
)

// ProfileURL constructs the URL for fetching a user's profile
func ProfileURL(base, userID string) string {
	params := url.Values{}
	params.Set("containerid", ProfileContainerPrefix+userID)
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(base, "/"), IndexEndpoint, params.Encode())
}

// PageURL constructs the URL for one page of a user's timeline
func PageURL(base, userID string, page int) string {
	params := url.Values{}
	params.Set("containerid", TimelineContainerPrefix+userID)
	params.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(base, "/"), IndexEndpoint, params.Encode())
}

// DetailURL constructs the URL of the full-text detail page of a status
func DetailURL(base, statusID string) string {
	return fmt.Sprintf("%s/detail/%s", strings.TrimRight(base, "/"), url.PathEscape(statusID))
}

// PageCount returns how many timeline pages hold statusesCount statuses
func PageCount(statusesCount int64, pageSize int) int {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	if statusesCount <= 0 {
		return 0
	}
	return int((statusesCount + int64(pageSize) - 1) / int64(pageSize))
}

// IsValidUserID checks that a user id is a non-empty string of digits
func IsValidUserID(userID string) bool {
	if userID == "" || len(userID) > 20 {
		return false
	}
	for _, char := range userID {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}
