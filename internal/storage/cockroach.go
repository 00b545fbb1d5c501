package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ariaworks/aria/pkg/models"
)

// NewCockroachStoresFromDSN opens a Postgres/CockroachDB pool and wraps it
// in the full StoreSet the orchestration core depends on.
func NewCockroachStoresFromDSN(dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	return StoreSet{
		Agents:      &cockroachAgentStore{db: db},
		Models:      &cockroachModelStore{db: db},
		Sessions:    &cockroachSessionStore{db: db},
		Messages:    &cockroachMessageStore{db: db},
		Jobs:        &cockroachJobStore{db: db},
		Skills:      &cockroachSkillStore{db: db},
		Roundtables: &cockroachRoundtableStore{db: db},
		closer:      db.Close,
	}, nil
}

// -- agents -------------------------------------------------------------

type cockroachAgentStore struct{ db *sql.DB }

const agentColumns = `agent_id, display_name, agent_type, parent_agent_id, model, fallback_model,
	system_prompt, temperature, max_tokens, focus_type, skills, capabilities, enabled,
	timeout_seconds, rate_limit_requests, rate_limit_window, app_managed, status,
	consecutive_failures, pheromone_score`

func scanAgent(scan func(...any) error) (*models.Agent, error) {
	var a models.Agent
	var parentID, fallback, focus sql.NullString
	var rateLimitWindowNs int64
	if err := scan(
		&a.AgentID, &a.DisplayName, &a.Type, &parentID, &a.Model, &fallback,
		&a.SystemPrompt, &a.Temperature, &a.MaxTokens, &focus,
		pq.Array(&a.Skills), pq.Array(&a.Capabilities), &a.Enabled,
		&a.TimeoutSeconds, &a.RateLimit.Requests, &rateLimitWindowNs, &a.AppManaged, &a.Status,
		&a.ConsecutiveFail, &a.PheromoneScore,
	); err != nil {
		return nil, err
	}
	a.ParentAgentID = parentID.String
	a.FallbackModel = fallback.String
	a.FocusType = focus.String
	a.RateLimit.Window = time.Duration(rateLimitWindowNs)
	return &a, nil
}

func (s *cockroachAgentStore) Create(ctx context.Context, a *models.Agent) error {
	if a == nil || a.AgentID == "" {
		return fmt.Errorf("agent is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO agents (`+agentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		a.AgentID, a.DisplayName, a.Type, nullable(a.ParentAgentID), a.Model, nullable(a.FallbackModel),
		a.SystemPrompt, a.Temperature, a.MaxTokens, nullable(a.FocusType),
		pq.Array(a.Skills), pq.Array(a.Capabilities), a.Enabled,
		a.TimeoutSeconds, a.RateLimit.Requests, int64(a.RateLimit.Window), a.AppManaged, a.Status,
		a.ConsecutiveFail, a.PheromoneScore,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *cockroachAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE agent_id = $1`, id)
	agent, err := scanAgent(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

func (s *cockroachAgentStore) List(ctx context.Context) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *cockroachAgentStore) Update(ctx context.Context, a *models.Agent) error {
	if a == nil || a.AgentID == "" {
		return fmt.Errorf("agent is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET
		display_name=$1, agent_type=$2, parent_agent_id=$3, model=$4, fallback_model=$5,
		system_prompt=$6, temperature=$7, max_tokens=$8, focus_type=$9, skills=$10,
		capabilities=$11, enabled=$12, timeout_seconds=$13, rate_limit_requests=$14,
		rate_limit_window=$15, app_managed=$16, status=$17, consecutive_failures=$18,
		pheromone_score=$19
		WHERE agent_id=$20`,
		a.DisplayName, a.Type, nullable(a.ParentAgentID), a.Model, nullable(a.FallbackModel),
		a.SystemPrompt, a.Temperature, a.MaxTokens, nullable(a.FocusType), pq.Array(a.Skills),
		pq.Array(a.Capabilities), a.Enabled, a.TimeoutSeconds, a.RateLimit.Requests,
		int64(a.RateLimit.Window), a.AppManaged, a.Status, a.ConsecutiveFail,
		a.PheromoneScore, a.AgentID,
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *cockroachAgentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// -- models ---------------------------------------------------------------

type cockroachModelStore struct{ db *sql.DB }

const modelColumns = `id, name, provider, tier, reasoning, vision, tool_calling, context_window,
	max_tokens, cost_input, cost_output, proxy_model_string, enabled, sort_order, app_managed`

func scanModel(scan func(...any) error) (*models.Model, error) {
	var m models.Model
	if err := scan(
		&m.ID, &m.Name, &m.Provider, &m.Tier, &m.Reasoning, &m.Vision, &m.ToolCalling,
		&m.ContextWindow, &m.MaxTokens, &m.CostInput, &m.CostOutput, &m.ProxyModelString,
		&m.Enabled, &m.SortOrder, &m.AppManaged,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *cockroachModelStore) Create(ctx context.Context, m *models.Model) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("model is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO models (`+modelColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		m.ID, m.Name, m.Provider, m.Tier, m.Reasoning, m.Vision, m.ToolCalling,
		m.ContextWindow, m.MaxTokens, m.CostInput, m.CostOutput, m.ProxyModelString,
		m.Enabled, m.SortOrder, m.AppManaged,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create model: %w", err)
	}
	return nil
}

func (s *cockroachModelStore) Get(ctx context.Context, id string) (*models.Model, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = $1`, id)
	m, err := scanModel(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

func (s *cockroachModelStore) List(ctx context.Context) ([]*models.Model, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM models ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []*models.Model
	for rows.Next() {
		m, err := scanModel(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *cockroachModelStore) Update(ctx context.Context, m *models.Model) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("model is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE models SET
		name=$1, provider=$2, tier=$3, reasoning=$4, vision=$5, tool_calling=$6,
		context_window=$7, max_tokens=$8, cost_input=$9, cost_output=$10,
		proxy_model_string=$11, enabled=$12, sort_order=$13, app_managed=$14
		WHERE id=$15`,
		m.Name, m.Provider, m.Tier, m.Reasoning, m.Vision, m.ToolCalling,
		m.ContextWindow, m.MaxTokens, m.CostInput, m.CostOutput, m.ProxyModelString,
		m.Enabled, m.SortOrder, m.AppManaged, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *cockroachModelStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// -- sessions ---------------------------------------------------------------

type cockroachSessionStore struct{ db *sql.DB }

func (s *cockroachSessionStore) Create(ctx context.Context, sess *models.ChatSession) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session is required")
	}
	meta, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO chat_sessions
		(id, agent_id, session_type, title, system_prompt_snapshot, model_snapshot, status,
		 message_count, total_tokens, total_cost, metadata, created_at, updated_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sess.ID, sess.AgentID, sess.SessionType, nullable(sess.Title), nullable(sess.SystemPromptSnapshot),
		nullable(sess.ModelSnapshot), sess.Status, sess.MessageCount, sess.TotalTokens, sess.TotalCost,
		meta, sess.CreatedAt, sess.UpdatedAt, sess.EndedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *cockroachSessionStore) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, agent_id, session_type, title, system_prompt_snapshot,
		model_snapshot, status, message_count, total_tokens, total_cost, metadata, created_at,
		updated_at, ended_at FROM chat_sessions WHERE id = $1`, id)

	var sess models.ChatSession
	var title, systemPrompt, model sql.NullString
	var metaBytes []byte
	if err := row.Scan(
		&sess.ID, &sess.AgentID, &sess.SessionType, &title, &systemPrompt, &model, &sess.Status,
		&sess.MessageCount, &sess.TotalTokens, &sess.TotalCost, &metaBytes, &sess.CreatedAt,
		&sess.UpdatedAt, &sess.EndedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.Title = title.String
	sess.SystemPromptSnapshot = systemPrompt.String
	sess.ModelSnapshot = model.String
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	return &sess, nil
}

func (s *cockroachSessionStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, endedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET status = $1, ended_at = $2, updated_at = now() WHERE id = $3`,
		status, endedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *cockroachSessionStore) IncrementCounters(ctx context.Context, id string, messageCountDelta int, tokensDelta int64, costDelta float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET message_count = message_count + $1, total_tokens = total_tokens + $2,
		 total_cost = total_cost + $3, updated_at = now() WHERE id = $4`,
		messageCountDelta, tokensDelta, costDelta, id,
	)
	if err != nil {
		return fmt.Errorf("increment session counters: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *cockroachSessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// -- messages ---------------------------------------------------------------

type cockroachMessageStore struct{ db *sql.DB }

func (s *cockroachMessageStore) Append(ctx context.Context, m *models.ChatMessage) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("message is required")
	}
	toolCalls, err := json.Marshal(m.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	toolResults, err := json.Marshal(m.ToolResults)
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}
	var embedding []byte
	if len(m.Embedding) > 0 {
		embedding, err = json.Marshal(m.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO chat_messages
		(id, session_id, role, content, thinking, tool_calls, tool_results, model,
		 tokens_input, tokens_output, cost, latency_ms, embedding, agent_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		m.ID, m.SessionID, m.Role, m.Content, nullable(m.Thinking), toolCalls, toolResults,
		nullable(m.Model), m.TokensInput, m.TokensOutput, m.Cost, m.LatencyMs, nullOrBytes(embedding),
		nullable(m.AgentID), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET
		message_count = message_count + 1,
		total_tokens = total_tokens + $1,
		total_cost = total_cost + $2,
		updated_at = now()
		WHERE id = $3`, m.TokensInput+m.TokensOutput, m.Cost, m.SessionID); err != nil {
		return fmt.Errorf("update session counters: %w", err)
	}

	return tx.Commit()
}

func (s *cockroachMessageStore) List(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, role, content, thinking, tool_calls,
		tool_results, model, tokens_input, tokens_output, cost, latency_ms, embedding, agent_id, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var thinking, model, agentID sql.NullString
		var toolCalls, toolResults, embedding []byte
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Role, &m.Content, &thinking, &toolCalls, &toolResults,
			&model, &m.TokensInput, &m.TokensOutput, &m.Cost, &m.LatencyMs, &embedding, &agentID, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Thinking = thinking.String
		m.Model = model.String
		m.AgentID = agentID.String
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		if len(toolResults) > 0 {
			if err := json.Unmarshal(toolResults, &m.ToolResults); err != nil {
				return nil, fmt.Errorf("unmarshal tool results: %w", err)
			}
		}
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &m.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshal embedding: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// -- scheduled jobs -----------------------------------------------------

type cockroachJobStore struct{ db *sql.DB }

const jobColumns = `id, name, cron, every_ns, agent_id, payload_type, payload, session_mode,
	max_duration_seconds, retry_count, enabled, last_run_at, last_status, last_duration_ms,
	last_error, next_run_at, run_count, success_count, fail_count`

func scanJob(scan func(...any) error) (*models.ScheduledJob, error) {
	var j models.ScheduledJob
	var cron, lastStatus, lastError sql.NullString
	var everyNs sql.NullInt64
	if err := scan(
		&j.ID, &j.Name, &cron, &everyNs, &j.AgentID, &j.PayloadType, &j.Payload, &j.SessionMode,
		&j.MaxDurationSeconds, &j.RetryCount, &j.Enabled, &j.LastRunAt, &lastStatus, &j.LastDurationMs,
		&lastError, &j.NextRunAt, &j.RunCount, &j.SuccessCount, &j.FailCount,
	); err != nil {
		return nil, err
	}
	j.Cron = cron.String
	j.Every = time.Duration(everyNs.Int64)
	j.LastStatus = models.JobRunStatus(lastStatus.String)
	j.LastError = lastError.String
	return &j, nil
}

func (s *cockroachJobStore) Create(ctx context.Context, j *models.ScheduledJob) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("job is required")
	}
	if !j.HasExactlyOneSchedule() {
		return fmt.Errorf("job must set exactly one of cron or every")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO scheduled_jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		j.ID, j.Name, nullable(j.Cron), nullableDuration(j.Every), j.AgentID, j.PayloadType, j.Payload,
		j.SessionMode, j.MaxDurationSeconds, j.RetryCount, j.Enabled, j.LastRunAt,
		nullable(string(j.LastStatus)), j.LastDurationMs, nullable(j.LastError), j.NextRunAt,
		j.RunCount, j.SuccessCount, j.FailCount,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *cockroachJobStore) Get(ctx context.Context, id string) (*models.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = $1`, id)
	j, err := scanJob(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *cockroachJobStore) ListEnabled(ctx context.Context) ([]*models.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE enabled = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *cockroachJobStore) Update(ctx context.Context, j *models.ScheduledJob) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("job is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_jobs SET
		name=$1, cron=$2, every_ns=$3, agent_id=$4, payload_type=$5, payload=$6, session_mode=$7,
		max_duration_seconds=$8, retry_count=$9, enabled=$10, last_run_at=$11, last_status=$12,
		last_duration_ms=$13, last_error=$14, next_run_at=$15, run_count=$16, success_count=$17,
		fail_count=$18
		WHERE id=$19`,
		j.Name, nullable(j.Cron), nullableDuration(j.Every), j.AgentID, j.PayloadType, j.Payload,
		j.SessionMode, j.MaxDurationSeconds, j.RetryCount, j.Enabled, j.LastRunAt,
		nullable(string(j.LastStatus)), j.LastDurationMs, nullable(j.LastError), j.NextRunAt,
		j.RunCount, j.SuccessCount, j.FailCount, j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

func (s *cockroachJobStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return rowsAffectedOrNotFound(res)
}

// -- skill invocations -----------------------------------------------------

type cockroachSkillStore struct{ db *sql.DB }

func (s *cockroachSkillStore) Append(ctx context.Context, inv *models.SkillInvocation) error {
	if inv == nil || inv.ID == "" {
		return fmt.Errorf("invocation is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO skill_invocations
		(id, skill_name, tool_name, duration_ms, success, error_type, tokens_used, model_used, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		inv.ID, inv.SkillName, inv.ToolName, inv.DurationMs, inv.Success, nullable(inv.ErrorType),
		inv.TokensUsed, nullable(inv.ModelUsed), inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append skill invocation: %w", err)
	}
	return nil
}

func (s *cockroachSkillStore) ListSince(ctx context.Context, skillName string, since time.Time) ([]*models.SkillInvocation, error) {
	var rows *sql.Rows
	var err error
	if skillName == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id, skill_name, tool_name, duration_ms, success,
			error_type, tokens_used, model_used, created_at
			FROM skill_invocations WHERE created_at >= $1 ORDER BY created_at ASC`,
			since)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id, skill_name, tool_name, duration_ms, success,
			error_type, tokens_used, model_used, created_at
			FROM skill_invocations WHERE skill_name = $1 AND created_at >= $2 ORDER BY created_at ASC`,
			skillName, since)
	}
	if err != nil {
		return nil, fmt.Errorf("list skill invocations: %w", err)
	}
	defer rows.Close()

	var out []*models.SkillInvocation
	for rows.Next() {
		var inv models.SkillInvocation
		var errType, modelUsed sql.NullString
		if err := rows.Scan(
			&inv.ID, &inv.SkillName, &inv.ToolName, &inv.DurationMs, &inv.Success,
			&errType, &inv.TokensUsed, &modelUsed, &inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan skill invocation: %w", err)
		}
		inv.ErrorType = errType.String
		inv.ModelUsed = modelUsed.String
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// -- roundtable records -----------------------------------------------------

type cockroachRoundtableStore struct{ db *sql.DB }

func (s *cockroachRoundtableStore) Save(ctx context.Context, r *models.RoundtableRecord) error {
	if r == nil || r.SessionID == "" {
		return fmt.Errorf("roundtable record is required")
	}
	turns, err := json.Marshal(r.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO roundtable_records
		(session_id, topic, participants, rounds_requested, turn_count, synthesis, synthesizer_id,
		 total_duration_ms, turns, partial)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (session_id) DO UPDATE SET
			turn_count = EXCLUDED.turn_count, synthesis = EXCLUDED.synthesis,
			synthesizer_id = EXCLUDED.synthesizer_id, total_duration_ms = EXCLUDED.total_duration_ms,
			turns = EXCLUDED.turns, partial = EXCLUDED.partial`,
		r.SessionID, r.Topic, pq.Array(r.Participants), r.RoundsRequested, r.TurnCount, r.Synthesis,
		nullable(r.SynthesizerID), r.TotalDurationMs, turns, r.Partial,
	)
	if err != nil {
		return fmt.Errorf("save roundtable record: %w", err)
	}
	return nil
}

func (s *cockroachRoundtableStore) Get(ctx context.Context, sessionID string) (*models.RoundtableRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT session_id, topic, participants, rounds_requested,
		turn_count, synthesis, synthesizer_id, total_duration_ms, turns, partial
		FROM roundtable_records WHERE session_id = $1`, sessionID)

	var r models.RoundtableRecord
	var synthesizerID sql.NullString
	var turns []byte
	if err := row.Scan(
		&r.SessionID, &r.Topic, pq.Array(&r.Participants), &r.RoundsRequested, &r.TurnCount,
		&r.Synthesis, &synthesizerID, &r.TotalDurationMs, &turns, &r.Partial,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get roundtable record: %w", err)
	}
	r.SynthesizerID = synthesizerID.String
	if len(turns) > 0 {
		if err := json.Unmarshal(turns, &r.Turns); err != nil {
			return nil, fmt.Errorf("unmarshal turns: %w", err)
		}
	}
	return &r, nil
}

// -- shared helpers -----------------------------------------------------

func rowsAffectedOrNotFound(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullOrBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableDuration(d time.Duration) any {
	if d == 0 {
		return nil
	}
	return int64(d)
}
