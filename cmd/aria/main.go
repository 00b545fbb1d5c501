// Package main provides the CLI entry point for aria, a multi-agent AI
// orchestration core: Chat Sessions, a Roundtable Engine for multi-agent
// discussion, a job Scheduler, and the Config Registry/Skill Ledger/
// Immutable Kernel supporting them.
//
// Start the server:
//
//	aria serve --config aria.yaml
//
// Apply database migrations:
//
//	aria migrate up
//	aria migrate status
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "aria",
		Short:        "aria - multi-agent AI orchestration core",
		Long:         "aria runs Chat Sessions, multi-agent Roundtable discussions, and scheduled agent jobs over a shared Agent/Model catalog.",
		Version:      version + " (commit: " + commit + ", built: " + date + ")",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildMigrateCmd(), buildSyncCmd())
	return rootCmd
}
