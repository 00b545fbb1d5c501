package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ariaworks/aria/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// AgentStore persists Agent catalog rows (spec.md §3, §4.2).
type AgentStore interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context) ([]*models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) error
	Delete(ctx context.Context, id string) error
}

// ModelStore persists Model catalog rows (spec.md §3, §4.2).
type ModelStore interface {
	Create(ctx context.Context, model *models.Model) error
	Get(ctx context.Context, id string) (*models.Model, error)
	List(ctx context.Context) ([]*models.Model, error)
	Update(ctx context.Context, model *models.Model) error
	Delete(ctx context.Context, id string) error
}

// SessionStore persists ChatSession rows (spec.md §4.4).
type SessionStore interface {
	Create(ctx context.Context, session *models.ChatSession) error
	Get(ctx context.Context, id string) (*models.ChatSession, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, endedAt *time.Time) error
	// IncrementCounters atomically adds messageCountDelta/tokensDelta/costDelta
	// to the session's running totals and bumps updated_at, per spec.md §8's
	// counter-consistency invariant.
	IncrementCounters(ctx context.Context, id string, messageCountDelta int, tokensDelta int64, costDelta float64) error
	Delete(ctx context.Context, id string) error
}

// MessageStore persists the append-only ChatMessage log (spec.md §4.4-4.5).
type MessageStore interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	List(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
}

// JobStore persists ScheduledJob rows and their run bookkeeping
// (spec.md §4.7).
type JobStore interface {
	Create(ctx context.Context, job *models.ScheduledJob) error
	Get(ctx context.Context, id string) (*models.ScheduledJob, error)
	ListEnabled(ctx context.Context) ([]*models.ScheduledJob, error)
	Update(ctx context.Context, job *models.ScheduledJob) error
	Delete(ctx context.Context, id string) error
}

// SkillInvocationStore persists the append-only skill invocation ledger
// (spec.md §4.3) and serves the aggregate queries health()/expert_for()
// need.
type SkillInvocationStore interface {
	Append(ctx context.Context, inv *models.SkillInvocation) error
	// ListSince returns invocations at or after since, ordered by
	// created_at. An empty skillName returns invocations for every skill.
	ListSince(ctx context.Context, skillName string, since time.Time) ([]*models.SkillInvocation, error)
}

// RoundtableStore persists RoundtableRecord rows (spec.md §4.6).
type RoundtableStore interface {
	Save(ctx context.Context, record *models.RoundtableRecord) error
	Get(ctx context.Context, sessionID string) (*models.RoundtableRecord, error)
}

// StoreSet groups every storage dependency the orchestration core needs.
type StoreSet struct {
	Agents      AgentStore
	Models      ModelStore
	Sessions    SessionStore
	Messages    MessageStore
	Jobs        JobStore
	Skills      SkillInvocationStore
	Roundtables RoundtableStore
	closer      func() error
}

// Close closes any underlying resources (e.g. the DB pool).
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
