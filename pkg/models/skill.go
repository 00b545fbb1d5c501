package models

import "time"

// SkillInvocation is an append-only ledger entry for one tool execution,
// per spec.md §3. Never mutated after insert.
type SkillInvocation struct {
	ID         string    `json:"id"`
	SkillName  string    `json:"skill_name"`
	ToolName   string    `json:"tool_name"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	ErrorType  string    `json:"error_type,omitempty"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	ModelUsed  string    `json:"model_used,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SkillHealthStatus classifies a skill's current health, per spec.md §4.3.
type SkillHealthStatus string

const (
	SkillHealthy   SkillHealthStatus = "healthy"
	SkillDegraded  SkillHealthStatus = "degraded"
	SkillUnhealthy SkillHealthStatus = "unhealthy"
	SkillSlow      SkillHealthStatus = "slow"
)

// SkillHealth is the computed health summary for one skill over a window.
type SkillHealth struct {
	SkillName     string            `json:"skill_name"`
	Invocations   int               `json:"invocations"`
	SuccessRate   float64           `json:"success_rate"`
	AvgDurationMs float64           `json:"avg_duration_ms"`
	P95DurationMs float64           `json:"p95_duration_ms"`
	LastError     string            `json:"last_error,omitempty"`
	Status        SkillHealthStatus `json:"status"`
}
