package models

import "time"

// JobPayloadType identifies the kind of payload a scheduled job carries.
type JobPayloadType string

// PayloadPrompt is currently the only supported payload type (spec.md §3).
const PayloadPrompt JobPayloadType = "prompt"

// SessionMode controls whether a job's fires share one session or each get
// a fresh one.
type SessionMode string

const (
	SessionModeIsolated   SessionMode = "isolated"
	SessionModePersistent SessionMode = "persistent"
)

// JobRunStatus is the outcome of the most recent fire of a job.
type JobRunStatus string

const (
	JobRunOK      JobRunStatus = "ok"
	JobRunFail    JobRunStatus = "fail"
	JobRunTimeout JobRunStatus = "timeout"
	JobRunOverlap JobRunStatus = "overlap"
)

// ScheduledJob is a cron/interval-triggered background job, per spec.md §3.
//
// Exactly one of Cron or Every is set; ParseSchedule in the scheduler package
// enforces this at load time (see spec.md §9 open question).
type ScheduledJob struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Cron              string        `json:"cron,omitempty"`
	Every             time.Duration `json:"every,omitempty"`
	AgentID           string        `json:"agent_id"`
	PayloadType       JobPayloadType `json:"payload_type"`
	Payload           string        `json:"payload"`
	SessionMode       SessionMode   `json:"session_mode"`
	MaxDurationSeconds int          `json:"max_duration_seconds"`
	RetryCount        int           `json:"retry_count"`
	Enabled           bool          `json:"enabled"`
	LastRunAt         *time.Time    `json:"last_run_at,omitempty"`
	LastStatus        JobRunStatus  `json:"last_status,omitempty"`
	LastDurationMs    int64         `json:"last_duration_ms,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	NextRunAt         time.Time     `json:"next_run_at"`
	RunCount          int64         `json:"run_count"`
	SuccessCount      int64         `json:"success_count"`
	FailCount         int64         `json:"fail_count"`
}

// HasExactlyOneSchedule validates the invariant from spec.md §3: exactly one
// of cron-style or duration-style schedule is set.
func (j *ScheduledJob) HasExactlyOneSchedule() bool {
	if j == nil {
		return false
	}
	hasCron := j.Cron != ""
	hasEvery := j.Every > 0
	return hasCron != hasEvery
}
