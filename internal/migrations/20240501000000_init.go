package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id                BIGINT PRIMARY KEY,
		screen_name       TEXT NOT NULL DEFAULT '',
		gender            TEXT NOT NULL DEFAULT '',
		statuses_count    BIGINT NOT NULL DEFAULT 0,
		followers_count   BIGINT NOT NULL DEFAULT 0,
		follow_count      BIGINT NOT NULL DEFAULT 0,
		description       TEXT NOT NULL DEFAULT '',
		profile_url       TEXT NOT NULL DEFAULT '',
		profile_image_url TEXT NOT NULL DEFAULT '',
		avatar_hd         TEXT NOT NULL DEFAULT '',
		urank             BIGINT NOT NULL DEFAULT 0,
		mbrank            BIGINT NOT NULL DEFAULT 0,
		verified          BOOLEAN NOT NULL DEFAULT FALSE,
		verified_type     BIGINT NOT NULL DEFAULT -1,
		verified_reason   TEXT NOT NULL DEFAULT '',
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS posts (
		id              BIGINT PRIMARY KEY,
		bid             TEXT NOT NULL DEFAULT '',
		user_id         BIGINT NOT NULL DEFAULT 0,
		screen_name     TEXT NOT NULL DEFAULT '',
		text            TEXT NOT NULL DEFAULT '',
		article_url     TEXT NOT NULL DEFAULT '',
		pics            TEXT NOT NULL DEFAULT '',
		video_url       TEXT NOT NULL DEFAULT '',
		location        TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ,
		source          TEXT NOT NULL DEFAULT '',
		attitudes_count BIGINT NOT NULL DEFAULT 0,
		comments_count  BIGINT NOT NULL DEFAULT 0,
		reposts_count   BIGINT NOT NULL DEFAULT 0,
		topics          TEXT NOT NULL DEFAULT '',
		at_users        TEXT NOT NULL DEFAULT '',
		retweet_id      BIGINT
	);
	`)
	return err
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	DROP TABLE IF EXISTS posts;
	DROP TABLE IF EXISTS users;
	`)
	return err
}
