package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariaworks/aria/internal/config"
	"github.com/ariaworks/aria/internal/storage"
)

func buildSyncCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the Agent/Model catalog source files into the database",
		Long: `Sync reads catalog.agents_path and catalog.models_path and applies
the Config Registry sync algorithm: declared entries are inserted if new,
updated if previously app-managed or --force is set, and skipped otherwise.
Rows absent from the source are never deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), configPath, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aria.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite app-managed rows with the source file's values")

	return cmd
}

func runSync(ctx context.Context, configPath string, force bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stores, err := storage.NewCockroachStoresFromDSN(cfg.Database.URL, &storage.CockroachConfig{
		MaxOpenConns:    cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = stores.Close() }()

	agents, models, err := config.Sync(ctx, stores, cfg.Catalog, force)
	if err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}

	fmt.Printf("agents: %d inserted, %d updated, %d skipped\n", agents.Inserted, agents.Updated, agents.Skipped)
	fmt.Printf("models: %d inserted, %d updated, %d skipped\n", models.Inserted, models.Updated, models.Skipped)
	return nil
}
