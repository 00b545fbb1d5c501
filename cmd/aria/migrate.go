package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/ariaworks/aria/internal/config"
	"github.com/ariaworks/aria/internal/storage"
)

func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "aria.yaml", "Path to YAML configuration file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrateUp(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version and pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrateStatus(cmd.Context(), configPath)
			},
		},
	)
	return cmd
}

// slogMigrationLogger adapts *slog.Logger to storage.MigrationLogger.
type slogMigrationLogger struct {
	logger *slog.Logger
}

func (l slogMigrationLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l slogMigrationLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l slogMigrationLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func openMigrationRunner(configPath string) (*storage.MigrationRunner, *sql.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	runner := storage.NewMigrationRunner(db, slogMigrationLogger{slog.Default()})
	for _, m := range storage.BaselineMigrations() {
		runner.Register(m)
	}
	return runner, db, nil
}

func runMigrateUp(ctx context.Context, configPath string) error {
	runner, db, err := openMigrationRunner(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	result, err := runner.MigrateUp(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	fmt.Printf("migrated %d -> %d (%d applied)\n", result.StartVersion, result.EndVersion, len(result.Applied))
	for _, m := range result.Applied {
		fmt.Printf("  v%d %s (%dms)\n", m.Version, m.Name, m.DurationMs)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, configPath string) error {
	runner, db, err := openMigrationRunner(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	current, err := runner.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("read current version: %w", err)
	}
	pending, err := runner.PendingMigrations(ctx)
	if err != nil {
		return fmt.Errorf("read pending migrations: %w", err)
	}

	fmt.Printf("current schema version: %d\n", current)
	if len(pending) == 0 {
		fmt.Println("no pending migrations")
		return nil
	}
	fmt.Printf("%d pending migration(s):\n", len(pending))
	for _, m := range pending {
		fmt.Printf("  v%d %s\n", m.Version, m.Name)
	}
	return nil
}
