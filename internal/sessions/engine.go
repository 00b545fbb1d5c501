// Package sessions implements spec.md §4.4's Session Store: the append-only
// Chat Session/Chat Message log, per-session writer serialization, tool-call
// referential integrity, and the embedding-hook event emission.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

// EmbeddingEvent is the fire-and-forget payload the store emits on every
// user/assistant append, per spec.md §4.4 and the "external collaborators"
// design note in §9: an out-of-core consumer embeds the content and writes
// the vector back later. The core never blocks on this.
type EmbeddingEvent struct {
	SessionID string
	MessageID string
	Content   string
}

// EmbeddingHook receives EmbeddingEvents. It must not block the caller —
// Engine invokes it in its own goroutine.
type EmbeddingHook func(EmbeddingEvent)

// Engine implements the Session Store's operations on top of
// storage.SessionStore/MessageStore, adding the guarantees spec.md §4.4
// requires that a bare CRUD store does not: per-session writer
// serialization and tool-call referential integrity.
type Engine struct {
	sessions storage.SessionStore
	messages storage.MessageStore
	locks    *LockManager
	onEmbed  EmbeddingHook
	now      func() time.Time
}

// New constructs an Engine. onEmbed may be nil, in which case the embedding
// hook is a no-op (acceptable per spec.md §4.4 — "absence of an embedding
// is not an error").
func New(sessionStore storage.SessionStore, messageStore storage.MessageStore, onEmbed EmbeddingHook) *Engine {
	return &Engine{
		sessions: sessionStore,
		messages: messageStore,
		locks:    NewLockManager(),
		onEmbed:  onEmbed,
		now:      time.Now,
	}
}

// CreateSession creates a new Chat Session.
func (e *Engine) CreateSession(ctx context.Context, agentID string, sessionType models.SessionType, metadata map[string]any) (*models.ChatSession, error) {
	if agentID == "" {
		return nil, errkind.New(errkind.Validation, "agent_id is required")
	}
	now := e.now()
	sess := &models.ChatSession{
		ID:          uuid.NewString(),
		AgentID:     agentID,
		SessionType: sessionType,
		Status:      models.SessionStatusActive,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession fetches one session by id.
func (e *Engine) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, errkind.New(errkind.NotFound, "session not found")
		}
		return nil, err
	}
	return sess, nil
}

// ListMessages returns a session's messages in monotone created_at order,
// optionally paginated.
func (e *Engine) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]*models.ChatMessage, error) {
	all, err := e.messages.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*models.ChatMessage{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// EndSession transitions a session to a terminal status and stamps
// ended_at, per the invariant in pkg/models.SessionStatus.Terminal.
func (e *Engine) EndSession(ctx context.Context, sessionID string, status models.SessionStatus) error {
	if !status.Terminal() {
		return errkind.New(errkind.Validation, fmt.Sprintf("status %q is not a terminal status", status))
	}
	endedAt := e.now()
	if err := e.sessions.UpdateStatus(ctx, sessionID, status, &endedAt); err != nil {
		if err == storage.ErrNotFound {
			return errkind.New(errkind.NotFound, "session not found")
		}
		return err
	}
	return nil
}

// DeleteSession removes a session and its message log.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		if err == storage.ErrNotFound {
			return errkind.New(errkind.NotFound, "session not found")
		}
		return err
	}
	return nil
}

// AppendOptions controls an AppendMessage call. SkipLock is set by callers
// that already hold the session's write lock (the Chat Engine's turn loop
// appends several messages under one held lock rather than re-acquiring
// per row).
type AppendOptions struct {
	SkipLock bool
}

// AppendMessage appends one message to a session's log, enforcing
// spec.md §4.4's invariants: at-most-one-writer-per-session (unless the
// caller already holds the lock via AppendOptions.SkipLock) and tool-call
// referential integrity for role=tool messages.
func (e *Engine) AppendMessage(ctx context.Context, msg *models.ChatMessage, opts AppendOptions) error {
	if msg == nil || msg.SessionID == "" {
		return errkind.New(errkind.Validation, "message session_id is required")
	}

	if !opts.SkipLock {
		release, ok := e.locks.TryAcquire(msg.SessionID)
		if !ok {
			return errkind.ErrSessionBusy
		}
		defer release()
	}

	if msg.Role == models.RoleTool {
		if err := e.validateToolReferences(ctx, msg); err != nil {
			return err
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = e.now()
	}

	if err := e.messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	tokensDelta := int64(msg.TokensInput + msg.TokensOutput)
	if err := e.sessions.IncrementCounters(ctx, msg.SessionID, 1, tokensDelta, msg.Cost); err != nil && err != storage.ErrNotFound {
		return fmt.Errorf("update session counters: %w", err)
	}

	if (msg.Role == models.RoleUser || msg.Role == models.RoleAssistant) && e.onEmbed != nil && msg.Content != "" {
		event := EmbeddingEvent{SessionID: msg.SessionID, MessageID: msg.ID, Content: msg.Content}
		go e.onEmbed(event)
	}

	return nil
}

// TryLockSession acquires the session's writer lock for the duration of a
// whole turn (the Chat Engine calls this once at the top of send_message,
// then uses AppendOptions.SkipLock for every append within that turn).
func (e *Engine) TryLockSession(sessionID string) (release func(), ok bool) {
	return e.locks.TryAcquire(sessionID)
}

func (e *Engine) validateToolReferences(ctx context.Context, msg *models.ChatMessage) error {
	prior, err := e.messages.List(ctx, msg.SessionID)
	if err != nil {
		return err
	}
	for _, result := range msg.ToolResults {
		found := false
		for _, p := range prior {
			if p.Role == models.RoleAssistant && p.ReferencesToolCall(result.ToolCallID) {
				found = true
				break
			}
		}
		if !found {
			return errkind.New(errkind.Validation, fmt.Sprintf("tool message references unknown tool_call_id %q", result.ToolCallID))
		}
	}
	return nil
}
