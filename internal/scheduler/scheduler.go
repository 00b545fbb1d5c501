// Package scheduler implements spec.md §4.7: a 1-second tick loop that
// fires enabled ScheduledJobs (cron or interval) into the Chat Engine via
// isolated or persistent sessions, with no backfill of missed ticks and an
// overlap policy that skips a fire already in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ariaworks/aria/internal/concurrency"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

// defaultMaxConcurrentFires bounds how many job fires may run at once
// across the whole scheduler, so a tick with many due jobs doesn't open
// an unbounded number of simultaneous LLM calls.
const defaultMaxConcurrentFires = 20

// Scheduler runs scheduled jobs read from a JobStore.
type Scheduler struct {
	store      storage.JobStore
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
	tickInterval time.Duration
	fires      *concurrency.Semaphore

	mu       sync.Mutex
	started  bool
	wg       sync.WaitGroup
	inFlight map[string]bool
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the scheduler tick interval (spec.md §4.7
// defaults this to one second).
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// WithMaxConcurrentFires overrides how many job fires may run at once.
func WithMaxConcurrentFires(max int64) Option {
	return func(s *Scheduler) {
		if max > 0 {
			s.fires = concurrency.NewSemaphore(max)
		}
	}
}

// NewScheduler creates a scheduler over store, dispatching due fires to
// dispatcher.
func NewScheduler(store storage.JobStore, dispatcher Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		dispatcher:   dispatcher,
		logger:       slog.Default().With("component", "scheduler"),
		now:          time.Now,
		tickInterval: time.Second,
		fires:        concurrency.NewSemaphore(defaultMaxConcurrentFires),
		inFlight:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins ticking until ctx is cancelled. Each fire runs in its own
// goroutine so a slow job never blocks the tick loop or other jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for the tick loop and any in-flight fires to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs one tick synchronously, for tests and manual invocation. It
// returns once every due job has been dispatched (fires themselves still
// run in background goroutines tracked by Stop's WaitGroup).
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s == nil {
		return 0
	}
	return s.runDue(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) int {
	jobs, err := s.store.ListEnabled(ctx)
	if err != nil {
		s.logger.Warn("scheduler list enabled jobs failed", "error", err)
		return 0
	}

	now := s.now()
	count := 0
	for _, job := range jobs {
		if job == nil || job.NextRunAt.IsZero() || job.NextRunAt.After(now) {
			continue
		}

		schedule, err := ParseSchedule(job)
		if err != nil {
			s.logger.Warn("scheduler invalid schedule, skipping", "job_id", job.ID, "error", err)
			continue
		}
		next, err := schedule.Next(now)
		if err != nil {
			s.logger.Warn("scheduler could not compute next run", "job_id", job.ID, "error", err)
			continue
		}

		s.mu.Lock()
		if s.inFlight[job.ID] {
			s.mu.Unlock()
			s.recordOverlap(ctx, job, now, next)
			continue
		}
		s.inFlight[job.ID] = true
		s.mu.Unlock()

		job.LastRunAt = &now
		job.NextRunAt = next
		if err := s.store.Update(ctx, job); err != nil {
			s.logger.Warn("scheduler dispatch update failed", "job_id", job.ID, "error", err)
		}

		count++
		s.wg.Add(1)
		go func(job *models.ScheduledJob, firedAt time.Time) {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.inFlight, job.ID)
				s.mu.Unlock()
			}()
			if err := s.fires.Acquire(ctx, 1); err != nil {
				s.logger.Warn("scheduler fire dropped, concurrency limit wait cancelled", "job_id", job.ID, "error", err)
				return
			}
			defer s.fires.Release(1)
			s.fire(ctx, job, firedAt)
		}(job, now)
	}
	return count
}

// recordOverlap logs a skipped fire and advances next_run_at so the job
// doesn't re-trigger on every subsequent tick while the prior run is still
// in flight (spec.md §4.7 overlap policy).
func (s *Scheduler) recordOverlap(ctx context.Context, job *models.ScheduledJob, now, next time.Time) {
	s.logger.Warn("scheduler fire skipped, previous run still in flight", "job_id", job.ID)
	job.LastStatus = models.JobRunOverlap
	job.NextRunAt = next
	if err := s.store.Update(ctx, job); err != nil {
		s.logger.Warn("scheduler overlap update failed", "job_id", job.ID, "error", err)
	}
}

// fire runs a single job through the dispatcher, bounded by
// max_duration_seconds, and records the outcome.
func (s *Scheduler) fire(ctx context.Context, job *models.ScheduledJob, firedAt time.Time) {
	runCtx := ctx
	if job.MaxDurationSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(job.MaxDurationSeconds)*time.Second)
		defer cancel()
	}

	sessionID, err := s.openSession(runCtx, job)
	if err == nil {
		err = s.dispatcher.SendMessage(runCtx, sessionID, job.Payload)
	}

	completed := s.now()
	status := models.JobRunOK
	switch {
	case err == nil:
		status = models.JobRunOK
	case errors.Is(err, context.DeadlineExceeded):
		status = models.JobRunTimeout
	default:
		status = models.JobRunFail
	}

	job.LastStatus = status
	job.LastDurationMs = completed.Sub(firedAt).Milliseconds()
	job.RunCount++
	if status == models.JobRunOK {
		job.SuccessCount++
		job.LastError = ""
	} else {
		job.FailCount++
		if err != nil {
			job.LastError = err.Error()
		}
	}

	if updateErr := s.store.Update(ctx, job); updateErr != nil {
		s.logger.Warn("scheduler outcome update failed", "job_id", job.ID, "error", updateErr)
	}
}

func (s *Scheduler) openSession(ctx context.Context, job *models.ScheduledJob) (string, error) {
	if s.dispatcher == nil {
		return "", fmt.Errorf("scheduler dispatcher not configured")
	}
	switch job.SessionMode {
	case models.SessionModePersistent:
		return s.dispatcher.PersistentSession(ctx, job)
	case models.SessionModeIsolated, "":
		return s.dispatcher.NewSession(ctx, job)
	default:
		return "", fmt.Errorf("unknown session mode %q", job.SessionMode)
	}
}
