// Package mongo upserts users and posts into MongoDB collections.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"weibocrawler/pkg/models"
)

const (
	usersCollection = "users"
	postsCollection = "posts"
)

type collection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// Sink writes users and posts keyed by their numeric ids
type Sink struct {
	client *mongo.Client
	users  collection
	posts  collection
}

// New connects to uri and uses the named database
func New(ctx context.Context, uri, database string) (*Sink, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := newWithCollections(db.Collection(usersCollection), db.Collection(postsCollection))
	s.client = client
	return s, nil
}

func newWithCollections(users, posts collection) *Sink {
	return &Sink{users: users, posts: posts}
}

func (s *Sink) Name() string { return "mongo" }

// Close disconnects the client
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// Write replaces the user document and every post document, inserting
// those that do not exist. Reposted originals get a document of their own
// as well as staying embedded in the repost.
func (s *Sink) Write(ctx context.Context, user models.User, posts []models.Post) error {
	if _, err := s.users.BulkWrite(ctx, []mongo.WriteModel{upsert(user.ID, user)}); err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ID, err)
	}
	if len(posts) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(posts))
	for _, p := range posts {
		if p.Retweet != nil {
			writes = append(writes, upsert(p.Retweet.ID, p.Retweet))
		}
		writes = append(writes, upsert(p.ID, p))
	}
	if _, err := s.posts.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("upsert posts: %w", err)
	}
	return nil
}

func upsert(id int64, doc interface{}) mongo.WriteModel {
	return mongo.NewReplaceOneModel().
		SetFilter(bson.M{"_id": id}).
		SetReplacement(doc).
		SetUpsert(true)
}
