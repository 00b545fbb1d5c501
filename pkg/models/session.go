package models

import "time"

// SessionType tags the origin of a chat session.
type SessionType string

const (
	SessionTypeInteractive SessionType = "interactive"
	SessionTypeCron        SessionType = "cron"
	SessionTypeSkillExec   SessionType = "skill_exec"
	SessionTypeRoundtable  SessionType = "roundtable"
	SessionTypeSwarm       SessionType = "swarm"
)

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
	SessionStatusArchived  SessionStatus = "archived"
)

// ChatSession is the append-only message log header described in spec.md §3.
type ChatSession struct {
	ID                   string         `json:"id"`
	AgentID              string         `json:"agent_id"`
	SessionType          SessionType    `json:"session_type"`
	Title                string         `json:"title,omitempty"`
	SystemPromptSnapshot string         `json:"system_prompt_snapshot,omitempty"`
	ModelSnapshot        string         `json:"model_snapshot,omitempty"`
	Status               SessionStatus  `json:"status"`
	MessageCount         int            `json:"message_count"`
	TotalTokens          int64          `json:"total_tokens"`
	TotalCost            float64        `json:"total_cost"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	EndedAt              *time.Time     `json:"ended_at,omitempty"`
}

// Terminal reports whether the session has reached a state that permits
// EndedAt to be set, per the invariant in spec.md §3.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusError, SessionStatusArchived:
		return true
	default:
		return false
	}
}
