// Package natsbus publishes each flushed post as a JSON message on NATS.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"weibocrawler/pkg/models"
	"weibocrawler/pkg/sink"
)

const (
	DefaultSubjectPrefix = "weibo.posts"

	HeaderRunID  = "Run-Id"
	HeaderUserID = "User-Id"
)

type publisher interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Message is the payload of one published post
type Message struct {
	User models.User `json:"user"`
	Post models.Post `json:"post"`
}

// Sink publishes posts on {prefix}.{user id}
type Sink struct {
	conn   publisher
	prefix string
}

// New connects to url. An empty prefix uses DefaultSubjectPrefix.
func New(url, prefix string) (*Sink, error) {
	nc, err := nats.Connect(url, nats.Name("weibocrawler"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newWithPublisher(nc, prefix), nil
}

func newWithPublisher(p publisher, prefix string) *Sink {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Sink{conn: p, prefix: prefix}
}

func (s *Sink) Name() string { return "nats" }

// Subject returns the subject posts of user are published on
func (s *Sink) Subject(user models.User) string {
	return s.prefix + "." + user.IDString()
}

// Write publishes every post and waits for the server to acknowledge the
// buffered messages.
func (s *Sink) Write(ctx context.Context, user models.User, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	subject := s.Subject(user)
	runID := sink.RunID(ctx)

	for _, p := range posts {
		data, err := json.Marshal(Message{User: user, Post: p})
		if err != nil {
			return fmt.Errorf("marshal post %d: %w", p.ID, err)
		}
		msg := &nats.Msg{
			Subject: subject,
			Data:    data,
			Header:  make(nats.Header),
		}
		msg.Header.Set(HeaderUserID, user.IDString())
		if runID != "" {
			msg.Header.Set(HeaderRunID, runID)
		}
		if err := s.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish post %d: %w", p.ID, err)
		}
	}

	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

// Close drains pending messages before closing the connection
func (s *Sink) Close() error {
	return s.conn.Drain()
}
