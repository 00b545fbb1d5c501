package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Migration is a single forward-only schema change, applied in its own
// transaction and recorded in schema_migrations once it succeeds.
type Migration struct {
	Version     int
	Name        string
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// MigrationLogger logs migration progress.
type MigrationLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AppliedMigration records a completed migration, per the schema_migrations
// table's row shape.
type AppliedMigration struct {
	Version    int
	Name       string
	AppliedAt  time.Time
	DurationMs int64
}

// MigrationResult summarizes one MigrateUp call.
type MigrationResult struct {
	StartVersion int
	EndVersion   int
	Applied      []AppliedMigration
}

// MigrationRunner tracks schema version in Postgres rather than a local
// state file — aria has no per-install state directory, only the shared
// database, so schema_migrations is the only source of truth for what has
// run. Migrations are forward-only: there is no Down, matching spec.md's
// "never delete, never roll back a schema change in place" operating
// posture for the catalog sync algorithm.
type MigrationRunner struct {
	db         *sql.DB
	migrations []Migration
	logger     MigrationLogger
}

// NewMigrationRunner creates a runner against db. If logger is nil, a
// no-op logger is used.
func NewMigrationRunner(db *sql.DB, logger MigrationLogger) *MigrationRunner {
	if logger == nil {
		logger = &noopLogger{}
	}
	return &MigrationRunner{db: db, logger: logger}
}

// Register adds a migration, keeping the set sorted by version.
func (r *MigrationRunner) Register(m Migration) {
	r.migrations = append(r.migrations, m)
	sort.Slice(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})
}

const createSchemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	applied_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	duration_ms BIGINT NOT NULL DEFAULT 0
)`

// ensureTable creates schema_migrations if it doesn't exist yet.
func (r *MigrationRunner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, createSchemaMigrationsTable)
	return err
}

// CurrentVersion returns the highest applied migration version, 0 if none.
func (r *MigrationRunner) CurrentVersion(ctx context.Context) (int, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	var version sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT max(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// PendingMigrations returns migrations newer than the current DB version.
func (r *MigrationRunner) PendingMigrations(ctx context.Context) ([]Migration, error) {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range r.migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// MigrateUp applies every pending migration in order, each inside its own
// transaction. It stops and returns the error from the first failure,
// leaving the schema at the last successfully applied version.
func (r *MigrationRunner) MigrateUp(ctx context.Context) (*MigrationResult, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	start, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{StartVersion: start, EndVersion: start}

	pending, err := r.PendingMigrations(ctx)
	if err != nil {
		return nil, err
	}

	for _, m := range pending {
		r.logger.Info("applying migration %d: %s", m.Version, m.Name)
		startedAt := time.Now()

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return result, fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(ctx, tx); err != nil {
			_ = tx.Rollback()
			return result, fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}

		durationMs := time.Since(startedAt).Milliseconds()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at, duration_ms) VALUES ($1, $2, $3, $4)`,
			m.Version, m.Name, time.Now(), durationMs,
		); err != nil {
			_ = tx.Rollback()
			return result, fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return result, fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		result.Applied = append(result.Applied, AppliedMigration{
			Version: m.Version, Name: m.Name, AppliedAt: time.Now(), DurationMs: durationMs,
		})
		result.EndVersion = m.Version
		r.logger.Info("migration %d completed in %dms", m.Version, durationMs)
	}

	return result, nil
}

// noopLogger is a no-op MigrationLogger.
type noopLogger struct{}

func (l *noopLogger) Info(msg string, args ...any)  {}
func (l *noopLogger) Warn(msg string, args ...any)  {}
func (l *noopLogger) Error(msg string, args ...any) {}

// BaselineMigrations returns the migration set that creates aria's schema:
// agents, models, chat_sessions, chat_messages, roundtable_records,
// scheduled_jobs, skill_invocations, and kernel_blobs, matching the entity
// field lists in pkg/models and spec.md §3.
func BaselineMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "create_agents_and_models",
			Description: "Config Registry catalog tables (spec.md §4.2)",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE agents (
	agent_id          TEXT PRIMARY KEY,
	display_name      TEXT NOT NULL,
	agent_type        TEXT NOT NULL,
	parent_agent_id   TEXT REFERENCES agents(agent_id),
	model             TEXT NOT NULL,
	fallback_model    TEXT,
	system_prompt     TEXT NOT NULL DEFAULT '',
	temperature       DOUBLE PRECISION NOT NULL DEFAULT 0.7,
	max_tokens        INTEGER NOT NULL DEFAULT 0,
	focus_type        TEXT,
	skills            TEXT[] NOT NULL DEFAULT '{}',
	capabilities      TEXT[] NOT NULL DEFAULT '{}',
	enabled           BOOLEAN NOT NULL DEFAULT true,
	timeout_seconds   INTEGER NOT NULL DEFAULT 0,
	rate_limit_requests INTEGER NOT NULL DEFAULT 0,
	rate_limit_window   BIGINT NOT NULL DEFAULT 0,
	app_managed       BOOLEAN NOT NULL DEFAULT false,
	status            TEXT NOT NULL DEFAULT 'idle',
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	pheromone_score   DOUBLE PRECISION NOT NULL DEFAULT 0.5
);
CREATE TABLE models (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	provider           TEXT NOT NULL,
	tier               TEXT NOT NULL DEFAULT 'unknown',
	reasoning          BOOLEAN NOT NULL DEFAULT false,
	vision             BOOLEAN NOT NULL DEFAULT false,
	tool_calling       BOOLEAN NOT NULL DEFAULT false,
	context_window     INTEGER NOT NULL DEFAULT 0,
	max_tokens         INTEGER NOT NULL DEFAULT 0,
	cost_input         DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost_output        DOUBLE PRECISION NOT NULL DEFAULT 0,
	proxy_model_string TEXT NOT NULL,
	enabled            BOOLEAN NOT NULL DEFAULT true,
	sort_order         INTEGER NOT NULL DEFAULT 0,
	app_managed        BOOLEAN NOT NULL DEFAULT false
);`)
				return err
			},
		},
		{
			Version:     2,
			Name:        "create_sessions_and_messages",
			Description: "Chat Session Engine append-only log (spec.md §3-4.4)",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE chat_sessions (
	id                      TEXT PRIMARY KEY,
	agent_id                TEXT NOT NULL REFERENCES agents(agent_id),
	session_type            TEXT NOT NULL,
	title                   TEXT,
	system_prompt_snapshot  TEXT,
	model_snapshot          TEXT,
	status                  TEXT NOT NULL DEFAULT 'active',
	message_count           INTEGER NOT NULL DEFAULT 0,
	total_tokens            BIGINT NOT NULL DEFAULT 0,
	total_cost              DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata                JSONB NOT NULL DEFAULT '{}',
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at                TIMESTAMPTZ
);
CREATE TABLE chat_messages (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES chat_sessions(id),
	role          TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	thinking      TEXT,
	tool_calls    JSONB,
	tool_results  JSONB,
	model         TEXT,
	tokens_input  INTEGER NOT NULL DEFAULT 0,
	tokens_output INTEGER NOT NULL DEFAULT 0,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	latency_ms    BIGINT NOT NULL DEFAULT 0,
	embedding     JSONB,
	agent_id      TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX chat_messages_session_id_created_at_idx ON chat_messages (session_id, created_at);`)
				return err
			},
		},
		{
			Version:     3,
			Name:        "create_roundtable_records",
			Description: "Roundtable Engine persisted discussions (spec.md §3)",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE roundtable_records (
	session_id        TEXT PRIMARY KEY,
	topic             TEXT NOT NULL,
	participants      TEXT[] NOT NULL DEFAULT '{}',
	rounds_requested   INTEGER NOT NULL,
	turn_count        INTEGER NOT NULL DEFAULT 0,
	synthesis         TEXT NOT NULL DEFAULT '',
	synthesizer_id    TEXT,
	total_duration_ms BIGINT NOT NULL DEFAULT 0,
	turns             JSONB NOT NULL DEFAULT '[]',
	partial           BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
				return err
			},
		},
		{
			Version:     4,
			Name:        "create_scheduled_jobs",
			Description: "Scheduler job definitions and run state (spec.md §4.7)",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE scheduled_jobs (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	cron                 TEXT,
	every_ns             BIGINT,
	agent_id             TEXT NOT NULL REFERENCES agents(agent_id),
	payload_type         TEXT NOT NULL DEFAULT 'prompt',
	payload              TEXT NOT NULL,
	session_mode         TEXT NOT NULL DEFAULT 'isolated',
	max_duration_seconds INTEGER NOT NULL DEFAULT 0,
	retry_count          INTEGER NOT NULL DEFAULT 0,
	enabled              BOOLEAN NOT NULL DEFAULT true,
	last_run_at          TIMESTAMPTZ,
	last_status          TEXT,
	last_duration_ms     BIGINT NOT NULL DEFAULT 0,
	last_error           TEXT,
	next_run_at          TIMESTAMPTZ NOT NULL,
	run_count            BIGINT NOT NULL DEFAULT 0,
	success_count        BIGINT NOT NULL DEFAULT 0,
	fail_count           BIGINT NOT NULL DEFAULT 0,
	CONSTRAINT scheduled_jobs_one_schedule CHECK ((cron IS NOT NULL) <> (every_ns IS NOT NULL))
);`)
				return err
			},
		},
		{
			Version:     5,
			Name:        "create_skill_invocations",
			Description: "Skill Invocation Ledger (spec.md §4.3)",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE skill_invocations (
	id           TEXT PRIMARY KEY,
	skill_name   TEXT NOT NULL,
	tool_name    TEXT NOT NULL,
	duration_ms  BIGINT NOT NULL,
	success      BOOLEAN NOT NULL,
	error_type   TEXT,
	tokens_used  INTEGER NOT NULL DEFAULT 0,
	model_used   TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX skill_invocations_skill_name_created_at_idx ON skill_invocations (skill_name, created_at);`)
				return err
			},
		},
		{
			Version:     6,
			Name:        "create_kernel_blobs",
			Description: "Immutable Kernel checksum ledger (spec.md §4.8)",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
CREATE TABLE kernel_blobs (
	name        TEXT PRIMARY KEY,
	checksum    TEXT NOT NULL,
	loaded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
				return err
			},
		},
	}
}
