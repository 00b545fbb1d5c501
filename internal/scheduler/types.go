package scheduler

import (
	"context"
	"time"

	"github.com/ariaworks/aria/pkg/models"
)

// Dispatcher is the scheduler's one dependency on the rest of the system:
// turning a due job fire into a Chat Engine turn, per spec.md §4.7(c). The
// concrete implementation lives alongside the session and chat engines; the
// scheduler only needs a session id to push the job's payload into.
type Dispatcher interface {
	// NewSession opens a fresh isolated session for one fire of job and
	// returns its id. Used for SessionModeIsolated jobs.
	NewSession(ctx context.Context, job *models.ScheduledJob) (sessionID string, err error)

	// PersistentSession returns the session id reused across every fire of
	// a SessionModePersistent job, creating it on first use so the agent
	// accumulates context across runs.
	PersistentSession(ctx context.Context, job *models.ScheduledJob) (sessionID string, err error)

	// SendMessage pushes payload into sessionID as a user message and runs
	// it to completion through the Chat Engine, bounded by ctx's deadline.
	SendMessage(ctx context.Context, sessionID, payload string) error
}

// DispatcherFuncs adapts three functions into a Dispatcher, mirroring the
// teacher's *Func adapter idiom for single-method callback interfaces.
type DispatcherFuncs struct {
	NewSessionFunc        func(ctx context.Context, job *models.ScheduledJob) (string, error)
	PersistentSessionFunc func(ctx context.Context, job *models.ScheduledJob) (string, error)
	SendMessageFunc       func(ctx context.Context, sessionID, payload string) error
}

func (d DispatcherFuncs) NewSession(ctx context.Context, job *models.ScheduledJob) (string, error) {
	return d.NewSessionFunc(ctx, job)
}

func (d DispatcherFuncs) PersistentSession(ctx context.Context, job *models.ScheduledJob) (string, error) {
	return d.PersistentSessionFunc(ctx, job)
}

func (d DispatcherFuncs) SendMessage(ctx context.Context, sessionID, payload string) error {
	return d.SendMessageFunc(ctx, sessionID, payload)
}

// Schedule is a parsed, mutually-exclusive cron-or-interval schedule for a
// ScheduledJob (spec.md §3's "exactly one of cron or every" invariant).
type Schedule struct {
	Kind     ScheduleKind
	CronExpr string
	Every    time.Duration
}

// ScheduleKind distinguishes the two schedule formats spec.md §4.7 allows.
type ScheduleKind string

const (
	ScheduleCron  ScheduleKind = "cron"
	ScheduleEvery ScheduleKind = "every"
)
