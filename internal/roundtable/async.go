package roundtable

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariaworks/aria/pkg/models"
)

// asyncState is the lifecycle of one discuss_async job.
type asyncState string

const (
	asyncStateRunning asyncState = "running"
	asyncStateDone    asyncState = "done"
	asyncStateError   asyncState = "error"
)

// asyncJob is the tracked outcome of one discuss_async call, per spec.md
// §4.6's "tracking key, background execution, status cached for
// AsyncStatusTTL after completion" contract.
type asyncJob struct {
	state     asyncState
	record    *models.RoundtableRecord
	err       error
	expiresAt time.Time // zero while still running
}

// asyncJobs is an in-memory, mutex-guarded tracking-key → job map. A
// background goroutine never removes a running job; only a completed job
// gets an expiry, and expired entries are swept lazily on lookup.
type asyncJobs struct {
	mu   sync.Mutex
	jobs map[string]*asyncJob
}

func newAsyncJobs() *asyncJobs {
	return &asyncJobs{jobs: make(map[string]*asyncJob)}
}

func (j *asyncJobs) start() string {
	key := uuid.NewString()
	j.mu.Lock()
	j.jobs[key] = &asyncJob{state: asyncStateRunning}
	j.mu.Unlock()
	return key
}

func (j *asyncJobs) finish(key string, record *models.RoundtableRecord, err error, ttl time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[key]
	if !ok {
		return
	}
	if err != nil {
		job.state = asyncStateError
		job.err = err
	} else {
		job.state = asyncStateDone
		job.record = record
	}
	job.expiresAt = ttl
}

func (j *asyncJobs) lookup(now time.Time, key string) (*asyncJob, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for k, v := range j.jobs {
		if v.state != asyncStateRunning && !v.expiresAt.IsZero() && now.After(v.expiresAt) {
			delete(j.jobs, k)
		}
	}
	job, ok := j.jobs[key]
	return job, ok
}

// AsyncStatus reports a discuss_async job's current state. ok is false
// when the key is unknown or its post-completion cache entry has expired.
type AsyncStatus struct {
	State   string
	Record  *models.RoundtableRecord
	Err     error
	Pending bool
}

// DiscussAsync starts Discuss in the background and returns a tracking
// key immediately, per spec.md §4.6. The result (or error) is held for
// AsyncStatusTTL after completion, then evicted.
func (e *Engine) DiscussAsync(topic string, agentIDs []string, rounds int, synthesizerID string, agentTimeout, totalTimeout time.Duration) string {
	key := e.async.start()
	go func() {
		record, err := e.Discuss(context.Background(), topic, agentIDs, rounds, synthesizerID, agentTimeout, totalTimeout)
		e.async.finish(key, record, err, e.now().Add(e.statusTTL()))
	}()
	return key
}

// AsyncStatus looks up a discuss_async tracking key's current status.
func (e *Engine) AsyncStatus(key string) (AsyncStatus, bool) {
	job, ok := e.async.lookup(e.now(), key)
	if !ok {
		return AsyncStatus{}, false
	}
	return AsyncStatus{
		State:   string(job.state),
		Record:  job.record,
		Err:     job.err,
		Pending: job.state == asyncStateRunning,
	}, true
}

func (e *Engine) statusTTL() time.Duration {
	if e.cfg.AsyncStatusTTL > 0 {
		return e.cfg.AsyncStatusTTL
	}
	return time.Hour
}
