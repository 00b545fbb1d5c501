package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariaworks/aria/internal/auth"
	"github.com/ariaworks/aria/internal/breaker"
	"github.com/ariaworks/aria/internal/chatengine"
	"github.com/ariaworks/aria/internal/config"
	"github.com/ariaworks/aria/internal/kernel"
	"github.com/ariaworks/aria/internal/llmproxy"
	"github.com/ariaworks/aria/internal/observability"
	"github.com/ariaworks/aria/internal/roundtable"
	"github.com/ariaworks/aria/internal/scheduler"
	"github.com/ariaworks/aria/internal/sessions"
	"github.com/ariaworks/aria/internal/skills"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/internal/transport"
	"github.com/ariaworks/aria/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the aria orchestration server",
		Long: `Start the aria orchestration server.

The server will:
1. Load configuration and sync the Agent/Model catalog into the database
2. Load the immutable kernel blobs
3. Start the job scheduler
4. Start the HTTP surface for health checks, metrics, and chat/roundtable calls

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aria.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	obsLogger := observability.NewLogger(observability.LogConfig{Level: logLevel, Format: cfg.Logging.Format})
	slogLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: observability.LogLevelFromString(logLevel)}))
	slog.SetDefault(slogLogger)
	obsLogger.Info(ctx, "starting aria", "config_path", configPath)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := storage.NewCockroachStoresFromDSN(cfg.Database.URL, &storage.CockroachConfig{
		MaxOpenConns:    cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = stores.Close() }()

	agentResult, modelResult, err := config.Sync(ctx, stores, cfg.Catalog, false)
	if err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	obsLogger.Info(ctx, "catalog synced",
		"agents_inserted", agentResult.Inserted, "agents_updated", agentResult.Updated, "agents_skipped", agentResult.Skipped,
		"models_inserted", modelResult.Inserted, "models_updated", modelResult.Updated, "models_skipped", modelResult.Skipped,
	)

	var kernelBlobs *kernel.Kernel
	if len(cfg.Kernel.Paths) > 0 {
		kernelBlobs, err = kernel.Load(cfg.Kernel.Paths)
		if err != nil {
			return fmt.Errorf("load kernel: %w", err)
		}
		obsLogger.Info(ctx, "kernel loaded", "blobs", kernelBlobs.Names())
	}

	skillRegistry := skills.NewRegistry()
	if cfg.Catalog.ManifestsPath != "" {
		manifests, err := skills.LoadManifests(cfg.Catalog.ManifestsPath)
		if err != nil {
			return fmt.Errorf("load skill manifests: %w", err)
		}
		handlers := make(map[string]skills.Handler)
		for _, m := range manifests {
			for _, tool := range m.Tools {
				toolName := tool.ToolName
				handlers[toolName] = func(ctx context.Context, args json.RawMessage) (string, error) {
					return "", fmt.Errorf("skill %q has no handler wired in this deployment", toolName)
				}
			}
		}
		skillRegistry, err = skills.NewRegistryFromManifests(manifests, handlers)
		if err != nil {
			return fmt.Errorf("build skill registry: %w", err)
		}
	}
	ledger := skills.NewLedger(stores.Skills)

	sessionEngine := sessions.New(stores.Sessions, stores.Messages, nil)
	breakers := breaker.NewCircuitBreakerRegistry(breaker.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Timeout:          cfg.Breaker.ResetTimeout,
	})
	llmClient := llmproxy.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)

	var systemPromptSource chatengine.SystemPromptSource
	if kernelBlobs != nil {
		systemPromptSource = kernelBlobs
	}
	chatEngine := chatengine.New(sessionEngine, stores.Agents, stores.Models, skillRegistry, ledger, breakers, llmClient, systemPromptSource, cfg.ChatEngine)
	roundtableEngine := roundtable.New(sessionEngine, chatEngine, stores.Roundtables, cfg.Roundtable)

	authService := auth.NewService(auth.Config{APIKey: cfg.Auth.APIKey, JWTSecret: cfg.Auth.JWTSecret, TokenExpiry: cfg.Auth.TokenExpiry})

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.NewScheduler(stores.Jobs, newDispatcher(sessionEngine, chatEngine),
			scheduler.WithLogger(slogLogger),
			scheduler.WithTickInterval(cfg.Scheduler.TickInterval),
			scheduler.WithMaxConcurrentFires(cfg.Scheduler.MaxConcurrentFires),
		)
		if err := sched.Start(runCtx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	go runPheromoneDecay(runCtx, ledger, stores.Agents, slogLogger)
	go func() {
		if err := config.WatchCatalog(runCtx, stores, cfg.Catalog, slogLogger); err != nil {
			slogLogger.Warn("catalog watch stopped", "error", err)
		}
	}()

	server := transport.New(transport.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.HTTPPort,
		Auth:       authService,
		Logger:     slogLogger,
		ChatEngine: chatEngine,
		Roundtable: roundtableEngine,
	})

	if err := server.Start(runCtx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	<-runCtx.Done()
	obsLogger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sched != nil {
		_ = sched.Stop(shutdownCtx)
	}
	return server.Stop(shutdownCtx)
}

// runPheromoneDecay recomputes every agent's pheromone_score once a minute
// until ctx is cancelled, per SPEC_FULL.md §C's pheromone decay job.
func runPheromoneDecay(ctx context.Context, ledger *skills.Ledger, agents storage.AgentStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ledger.DecayPheromoneScores(ctx, agents); err != nil {
				logger.Warn("pheromone decay failed", "error", err)
			}
		}
	}
}

// newDispatcher adapts the Chat Engine into the Scheduler's Dispatcher
// surface: an isolated fire gets a fresh session, a persistent fire gets
// one session reused across every fire of that job, and either way the
// payload runs as one ordinary chat turn.
func newDispatcher(sessionEngine *sessions.Engine, chatEngine *chatengine.Engine) scheduler.Dispatcher {
	persistentSessions := make(map[string]string)
	return scheduler.DispatcherFuncs{
		NewSessionFunc: func(ctx context.Context, job *models.ScheduledJob) (string, error) {
			sess, err := sessionEngine.CreateSession(ctx, job.AgentID, models.SessionTypeCron, map[string]any{"job_id": job.ID})
			if err != nil {
				return "", err
			}
			return sess.ID, nil
		},
		PersistentSessionFunc: func(ctx context.Context, job *models.ScheduledJob) (string, error) {
			if id, ok := persistentSessions[job.ID]; ok {
				return id, nil
			}
			sess, err := sessionEngine.CreateSession(ctx, job.AgentID, models.SessionTypeCron, map[string]any{"job_id": job.ID, "persistent": true})
			if err != nil {
				return "", err
			}
			persistentSessions[job.ID] = sess.ID
			return sess.ID, nil
		},
		SendMessageFunc: func(ctx context.Context, sessionID, payload string) error {
			_, err := chatEngine.SendMessage(ctx, sessionID, payload, true, false)
			return err
		},
	}
}
