package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upPostIndexes, downPostIndexes)
}

func upPostIndexes(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	CREATE INDEX IF NOT EXISTS posts_user_created_idx ON posts (user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS posts_retweet_idx ON posts (retweet_id) WHERE retweet_id IS NOT NULL;
	`)
	return err
}

func downPostIndexes(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	DROP INDEX IF EXISTS posts_retweet_idx;
	DROP INDEX IF EXISTS posts_user_created_idx;
	`)
	return err
}
