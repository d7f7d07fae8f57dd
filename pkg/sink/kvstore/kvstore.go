// Package kvstore keeps the latest copy of every user and post in a NATS
// JetStream key-value bucket.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"weibocrawler/pkg/models"
)

const DefaultBucket = "weibo"

type putter interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// Sink writes user.{id} and post.{id} keys. A later write of the same id
// replaces the earlier value.
type Sink struct {
	kv    putter
	close func() error
}

// New connects to url and opens bucket, creating it when missing. An empty
// bucket uses DefaultBucket.
func New(ctx context.Context, url, bucket string) (*Sink, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	nc, err := nats.Connect(url, nats.Name("weibocrawler"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "weibocrawler users and posts",
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}
	return &Sink{kv: kv, close: nc.Drain}, nil
}

func (s *Sink) Name() string { return "kv" }

// UserKey returns the key a user is stored under
func UserKey(user models.User) string { return "user." + user.IDString() }

// PostKey returns the key a post is stored under
func PostKey(post models.Post) string { return "post." + post.IDString() }

// Write stores the user, then each post. A reposted original gets its own
// key ahead of the repost.
func (s *Sink) Write(ctx context.Context, user models.User, posts []models.Post) error {
	if err := s.put(ctx, UserKey(user), user); err != nil {
		return fmt.Errorf("put user %d: %w", user.ID, err)
	}
	for _, p := range posts {
		if p.Retweet != nil {
			if err := s.put(ctx, PostKey(*p.Retweet), *p.Retweet); err != nil {
				return fmt.Errorf("put post %d: %w", p.Retweet.ID, err)
			}
		}
		if err := s.put(ctx, PostKey(p), p); err != nil {
			return fmt.Errorf("put post %d: %w", p.ID, err)
		}
	}
	return nil
}

func (s *Sink) put(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, key, data)
	return err
}

// Close drains the connection
func (s *Sink) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
