package crawler

import (
	"github.com/google/uuid"
	"weibocrawler/pkg/mirror"
	"weibocrawler/pkg/models"
)

// Session is the state of crawling one account. Posts only grows, and
// Watermark counts the posts already handed to every sink.
type Session struct {
	ID                 uuid.UUID
	User               models.User
	Posts              []models.Post
	Watermark          int
	FilterOriginalOnly bool

	// Media holds the per-run folder and listing caches; nil when
	// mirroring is disabled.
	Media *mirror.Run
}

// NewSession starts an empty session for user
func NewSession(user models.User, filterOriginalOnly bool) *Session {
	return &Session{
		ID:                 uuid.New(),
		User:               user,
		FilterOriginalOnly: filterOriginalOnly,
	}
}

// Append adds posts in order, dropping reposts when the session keeps
// originals only. It returns how many were kept.
func (s *Session) Append(posts ...models.Post) int {
	kept := 0
	for _, p := range posts {
		if s.FilterOriginalOnly && p.IsRepost() {
			continue
		}
		s.Posts = append(s.Posts, p)
		kept++
	}
	return kept
}

// Pending returns the posts not yet flushed
func (s *Session) Pending() []models.Post {
	return s.Posts[s.Watermark:]
}
