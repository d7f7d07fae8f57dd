// Package postgres upserts users and posts into PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"weibocrawler/pkg/models"
)

var sqBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"id", "screen_name", "gender", "statuses_count", "followers_count", "follow_count",
	"description", "profile_url", "profile_image_url", "avatar_hd", "urank", "mbrank",
	"verified", "verified_type", "verified_reason", "updated_at",
}

var postColumns = []string{
	"id", "bid", "user_id", "screen_name", "text", "article_url", "pics", "video_url",
	"location", "created_at", "source", "attitudes_count", "comments_count", "reposts_count",
	"topics", "at_users", "retweet_id",
}

// Config controls the connection pool
type Config struct {
	DSN      string
	MaxConns int32
}

type beginCloser interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Sink writes every batch in one transaction
type Sink struct {
	pool beginCloser
	now  func() time.Time
}

// New connects a pool for the sink
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool), nil
}

// NewWithPool builds a sink over an existing pool
func NewWithPool(pool beginCloser) *Sink {
	return &Sink{pool: pool, now: time.Now}
}

func (s *Sink) Name() string { return "postgres" }

// Close releases the pool
func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}

// Write upserts the user, then each post. A reposted original is stored
// as its own row before the repost that points at it.
func (s *Sink) Write(ctx context.Context, user models.User, posts []models.Post) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = s.upsertUser(ctx, tx, user); err != nil {
		return err
	}
	for _, p := range posts {
		if p.Retweet != nil {
			if err = s.upsertPost(ctx, tx, *p.Retweet); err != nil {
				return err
			}
		}
		if err = s.upsertPost(ctx, tx, p); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Sink) upsertUser(ctx context.Context, tx pgx.Tx, u models.User) error {
	query, args, err := sqBuilder.
		Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.ScreenName, u.Gender, u.StatusesCount, u.FollowersCount, u.FollowCount,
			u.Description, u.ProfileURL, u.ProfileImageURL, u.AvatarHD, u.Urank, u.Mbrank,
			u.Verified, u.VerifiedType, u.VerifiedReason, s.now()).
		Suffix(upsertSuffix(userColumns)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build user upsert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

func (s *Sink) upsertPost(ctx context.Context, tx pgx.Tx, p models.Post) error {
	var createdAt *time.Time
	if !p.CreatedAt.IsZero() {
		createdAt = &p.CreatedAt
	}
	var retweetID *int64
	if p.Retweet != nil {
		retweetID = &p.Retweet.ID
	}

	query, args, err := sqBuilder.
		Insert("posts").
		Columns(postColumns...).
		Values(p.ID, p.BID, p.UserID, p.ScreenName, p.Text, p.ArticleURL, p.Pics, p.VideoURL,
			p.Location, createdAt, p.Source, p.AttitudesCount, p.CommentsCount, p.RepostsCount,
			p.Topics, p.AtUsers, retweetID).
		Suffix(upsertSuffix(postColumns)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build post upsert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert post %d: %w", p.ID, err)
	}
	return nil
}

// upsertSuffix overwrites every non-key column on id conflicts
func upsertSuffix(columns []string) string {
	suffix := "ON CONFLICT (id) DO UPDATE SET "
	for i, c := range columns[1:] {
		if i > 0 {
			suffix += ", "
		}
		suffix += c + " = EXCLUDED." + c
	}
	return suffix
}
