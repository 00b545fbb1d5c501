package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is the LLM's structured request to run a skill, embedded in an
// assistant message's ToolCalls array.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the recorded outcome of one ToolCall, embedded in the
// corresponding tool message's ToolResults array.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// ChatMessage is one row of a session's append-only log, per spec.md §3.
type ChatMessage struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	Role         Role         `json:"role"`
	Content      string       `json:"content"`
	Thinking     string       `json:"thinking,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []ToolResult `json:"tool_results,omitempty"`
	Model        string       `json:"model,omitempty"`
	TokensInput  int          `json:"tokens_input,omitempty"`
	TokensOutput int          `json:"tokens_output,omitempty"`
	Cost         float64      `json:"cost,omitempty"`
	LatencyMs    int64        `json:"latency_ms,omitempty"`
	Embedding    []float32    `json:"embedding,omitempty"`
	AgentID      string       `json:"agent_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ReferencesToolCall reports whether the message's ToolResults include an
// entry for callID — used to validate the tool-call integrity invariant.
func (m *ChatMessage) ReferencesToolCall(callID string) bool {
	if m == nil {
		return false
	}
	for _, tc := range m.ToolCalls {
		if tc.ID == callID {
			return true
		}
	}
	return false
}
