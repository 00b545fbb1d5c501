// Package chatengine implements spec.md §4.5's Chat Engine: send_message,
// the "hard part" turn loop that resolves an agent/model, assembles the
// system prompt, calls the LLM, dispatches any requested tools, and
// persists every row durably as it goes. Grounded on the teacher's
// internal/agent/loop.go (AgenticLoop's resolve → call → dispatch-tools →
// persist phase shape), generalized from the teacher's streaming,
// approval-gated, async-job-capable loop to the spec's simpler
// non-streaming, single-session turn contract.
package chatengine

import (
	"context"
	"fmt"
	"time"

	"github.com/ariaworks/aria/internal/breaker"
	"github.com/ariaworks/aria/internal/config"
	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/internal/llmproxy"
	"github.com/ariaworks/aria/internal/ratelimit"
	"github.com/ariaworks/aria/internal/sessions"
	"github.com/ariaworks/aria/internal/skills"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

// defaultToolTimeout bounds one tool call when no tighter turn budget
// applies, mirroring the teacher's ExecutorConfig.DefaultTimeout (30s).
const defaultToolTimeout = 30 * time.Second

// defaultAgentTimeout is used when an Agent's TimeoutSeconds is unset.
const defaultAgentTimeout = 60 * time.Second

// maxUserContentBytes is the configured cap on inbound user_content,
// per spec.md §4.5's "non-empty text ≤ configured max (default 64 KiB)".
const maxUserContentBytes = 64 * 1024

// LLMClient is the narrow surface the Chat Engine needs from
// internal/llmproxy — an interface so tests can substitute a fake.
type LLMClient interface {
	Complete(ctx context.Context, req llmproxy.Request) (*llmproxy.Response, error)
}

// SystemPromptSource supplies the kernel-sourced prompt section, per
// spec.md §4.5 step 3. Implemented by *internal/kernel.Kernel; an
// interface here avoids chatengine importing kernel's file-loading
// concerns directly.
type SystemPromptSource interface {
	SystemPrompt() string
}

// Engine executes chat turns against a session, an agent/model catalog,
// a skill registry, and an LLM client.
type Engine struct {
	sessions *sessions.Engine
	agents   storage.AgentStore
	models   storage.ModelStore
	skills   *skills.Registry
	ledger   *skills.Ledger
	breakers *breaker.CircuitBreakerRegistry
	llm      LLMClient
	kernel   SystemPromptSource
	cfg      config.ChatEngineConfig
	now      func() time.Time
	limiter  *ratelimit.Limiter
}

// New constructs an Engine. kernel may be nil (no kernel-sourced system
// prompt section is prepended — acceptable for tests and for processes
// that have not finished booting the kernel).
func New(
	sessionEngine *sessions.Engine,
	agents storage.AgentStore,
	modelStore storage.ModelStore,
	skillRegistry *skills.Registry,
	ledger *skills.Ledger,
	breakers *breaker.CircuitBreakerRegistry,
	llm LLMClient,
	kernel SystemPromptSource,
	cfg config.ChatEngineConfig,
) *Engine {
	return &Engine{
		sessions: sessionEngine,
		agents:   agents,
		models:   modelStore,
		skills:   skillRegistry,
		ledger:   ledger,
		breakers: breakers,
		llm:      llm,
		kernel:   kernel,
		cfg:      cfg,
		now:      time.Now,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{Enabled: false}),
	}
}

// turn carries the per-call state threaded through SendMessage's phases —
// the Go shape of the teacher's LoopState.
type turn struct {
	session       *models.ChatSession
	agent         *models.Agent
	model         *models.Model
	enableTools   bool
	enableThink   bool
	turnDeadline  time.Time // overall send_message budget
	toolRounds    int
	fallbackTried bool
}

// remaining returns how long is left before the turn's overall deadline,
// clamped to zero.
func (t *turn) remaining(now time.Time) time.Duration {
	d := t.turnDeadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// SendMessage executes one turn of a chat session, per spec.md §4.5's
// algorithm and failure-semantics table.
func (e *Engine) SendMessage(ctx context.Context, sessionID, userContent string, enableTools, enableThinking bool) (*models.ChatMessage, error) {
	if userContent == "" {
		return nil, errkind.New(errkind.Validation, "user_content is required")
	}
	if len(userContent) > maxUserContentBytes {
		return nil, errkind.New(errkind.Validation, "user_content exceeds the configured maximum size")
	}

	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, errkind.ErrSessionNotActive
	}

	release, ok := e.sessions.TryLockSession(sessionID)
	if !ok {
		return nil, errkind.ErrSessionBusy
	}
	defer release()

	agent, model, err := e.resolveAgentAndModel(ctx, session.AgentID)
	if err != nil {
		return nil, err
	}
	if !e.limiter.AllowWithConfig(agent.AgentID, ratelimit.FromRequestsPerWindow(agent.RateLimit.Requests, agent.RateLimit.Window)) {
		return nil, errkind.Wrap(errkind.UpstreamUnavailable, errkind.ErrUpstreamUnavailable, "agent rate limit exceeded")
	}

	t := &turn{
		session:      session,
		agent:        agent,
		model:        model,
		enableTools:  enableTools,
		enableThink:  enableThinking,
		turnDeadline: e.now().Add(e.turnTimeout()),
	}

	userMsg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   userContent,
		AgentID:   agent.AgentID,
	}
	if err := e.sessions.AppendMessage(ctx, userMsg, sessions.AppendOptions{SkipLock: true}); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	result, err := e.runTurn(ctx, t)
	if err != nil {
		e.appendErrorMarker(ctx, sessionID, agent.AgentID, err)
		return nil, err
	}
	return result, nil
}

func (e *Engine) resolveAgentAndModel(ctx context.Context, agentID string) (*models.Agent, *models.Model, error) {
	agent, err := e.agents.Get(ctx, agentID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil, errkind.New(errkind.ConfigurationError, "session's agent is not configured")
		}
		return nil, nil, err
	}
	if !agent.Enabled || agent.Status == models.AgentStatusDisabled {
		return nil, nil, errkind.ErrAgentDisabled
	}
	if agent.Model == "" {
		return nil, nil, errkind.New(errkind.ConfigurationError, "agent has no model configured")
	}
	model, err := e.models.Get(ctx, agent.Model)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil, errkind.New(errkind.ConfigurationError, "agent's model is not in the catalog")
		}
		return nil, nil, err
	}
	if !model.Enabled {
		return nil, nil, errkind.New(errkind.ConfigurationError, "agent's model is disabled")
	}
	return agent, model, nil
}

func agentTimeout(agent *models.Agent) time.Duration {
	if agent.TimeoutSeconds <= 0 {
		return defaultAgentTimeout
	}
	return time.Duration(agent.TimeoutSeconds) * time.Second
}

func (e *Engine) turnTimeout() time.Duration {
	if e.cfg.TurnTimeout <= 0 {
		return 5 * time.Minute
	}
	return e.cfg.TurnTimeout
}

func (e *Engine) maxToolRounds() int {
	if e.cfg.MaxToolRounds <= 0 {
		return 6
	}
	return e.cfg.MaxToolRounds
}

func (e *Engine) contextWindow(model *models.Model) int {
	if model != nil && model.ContextWindow > 0 {
		return model.ContextWindow
	}
	if e.cfg.ContextWindowSoft > 0 {
		return e.cfg.ContextWindowSoft
	}
	return 100_000
}

// appendErrorMarker records a best-effort error-marked assistant row so a
// later send_message call can read the full history including the
// failure, per spec.md §4.5's state machine note ("Any error transition
// returns to Idle after appending an error-marked assistant row"). It
// deliberately swallows its own append failure — the original error is
// what the caller needs to see.
func (e *Engine) appendErrorMarker(ctx context.Context, sessionID, agentID string, cause error) {
	if errkind.Is(cause, errkind.Cancelled) {
		// Per spec.md §4.5's cancellation row: finish whatever was already
		// in flight and don't start a new append for the cancellation
		// itself.
		return
	}
	marker := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		AgentID:   agentID,
		Content:   fmt.Sprintf("[error] %s", cause.Error()),
	}
	_ = e.sessions.AppendMessage(ctx, marker, sessions.AppendOptions{SkipLock: true})
}
