package main

import (
	"context"

	"github.com/spf13/cobra"
	"weibocrawler/internal/migrations"
	"weibocrawler/pkg/ui"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL sink schema",
	Long: `Apply, roll back or inspect the schema used by the postgres sink.

The DSN comes from sinks.postgres.dsn or WEIBOCRAWLER_POSTGRES_DSN.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(cmd *cobra.Command, args []string) {
		runMigration(cmd.Context(), "Schema is up to date", migrations.Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	Run: func(cmd *cobra.Command, args []string) {
		runMigration(cmd.Context(), "Rolled back one migration", migrations.Down)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of every migration",
	Run: func(cmd *cobra.Command, args []string) {
		runMigration(cmd.Context(), "", migrations.Status)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigration(ctx context.Context, done string, fn func(context.Context, string) error) {
	cfg, err := loadUnvalidated()
	if err != nil {
		fail("Failed to load configuration", err)
	}
	if cfg.Sinks.Postgres.DSN == "" {
		fail("sinks.postgres.dsn is not set", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx, cfg.Sinks.Postgres.DSN); err != nil {
		fail("Migration failed", err)
	}
	if done != "" {
		ui.PrintSuccess(done)
	}
}
