// Package neo4j records who posted what, and what reposts what, as a graph.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"weibocrawler/pkg/config"
	"weibocrawler/pkg/models"
	"weibocrawler/pkg/sink"
)

const (
	mergeUser = `MERGE (u:User {id: $id}) SET u += $props`

	mergePost = `MERGE (p:Post {id: $id}) SET p += $props`

	mergePosted = `MATCH (p:Post {id: $post_id})
MERGE (u:User {id: $user_id})
MERGE (u)-[:POSTED]->(p)`

	mergeReposts = `MATCH (r:Post {id: $id}), (o:Post {id: $original_id})
MERGE (r)-[:REPOSTS]->(o)`
)

// Statement is one parameterized Cypher query
type Statement struct {
	Cypher string
	Params map[string]any
}

type runner interface {
	RunAll(ctx context.Context, statements []Statement) error
	Close(ctx context.Context) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

// RunAll executes every statement in one managed write transaction
func (d *driverRunner) RunAll(ctx context.Context, statements []Statement) error {
	sess := d.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: d.database,
	})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range statements {
			if _, err := tx.Run(ctx, st.Cypher, st.Params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (d *driverRunner) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Sink merges users and posts as nodes
type Sink struct {
	runner runner
}

// New creates a driver for cfg and verifies it can reach the server
func New(ctx context.Context, cfg config.Neo4jConfig) (*Sink, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Sink{runner: &driverRunner{driver: driver, database: cfg.Database}}, nil
}

func (s *Sink) Name() string { return "neo4j" }

func (s *Sink) Close() error {
	return s.runner.Close(context.Background())
}

func (s *Sink) Write(ctx context.Context, user models.User, posts []models.Post) error {
	if err := s.runner.RunAll(ctx, Statements(user, posts)); err != nil {
		return fmt.Errorf("error executing neo4j query: %w", err)
	}
	return nil
}

// Statements builds the merge queries for one flush. Originals are merged
// before the reposts that point at them.
func Statements(user models.User, posts []models.Post) []Statement {
	out := []Statement{{
		Cypher: mergeUser,
		Params: map[string]any{"id": user.ID, "props": userProps(user)},
	}}

	for _, p := range posts {
		if p.Retweet != nil {
			out = append(out, postStatements(*p.Retweet)...)
		}
		out = append(out, postStatements(p)...)
		if p.Retweet != nil {
			out = append(out, Statement{
				Cypher: mergeReposts,
				Params: map[string]any{"id": p.ID, "original_id": p.Retweet.ID},
			})
		}
	}
	return out
}

func postStatements(p models.Post) []Statement {
	out := []Statement{{
		Cypher: mergePost,
		Params: map[string]any{"id": p.ID, "props": postProps(p)},
	}}
	// deleted authors have no id to hang the edge on
	if p.UserID != 0 {
		out = append(out, Statement{
			Cypher: mergePosted,
			Params: map[string]any{"post_id": p.ID, "user_id": p.UserID},
		})
	}
	return out
}

func userProps(u models.User) map[string]any {
	return map[string]any{
		"screen_name":     u.ScreenName,
		"gender":          u.Gender,
		"statuses_count":  u.StatusesCount,
		"followers_count": u.FollowersCount,
		"follow_count":    u.FollowCount,
		"description":     u.Description,
		"verified":        u.Verified,
		"verified_reason": u.VerifiedReason,
	}
}

func postProps(p models.Post) map[string]any {
	return map[string]any{
		"bid":             p.BID,
		"screen_name":     p.ScreenName,
		"text":            p.Text,
		"location":        p.Location,
		"created_at":      p.CreatedAt.Format(sink.TimeLayout),
		"source":          p.Source,
		"attitudes_count": p.AttitudesCount,
		"comments_count":  p.CommentsCount,
		"reposts_count":   p.RepostsCount,
		"topics":          p.Topics,
		"at_users":        p.AtUsers,
	}
}
