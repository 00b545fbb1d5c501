package models

import "time"

// Turn is one agent's contribution within a roundtable round.
type Turn struct {
	AgentID    string        `json:"agent_id"`
	Round      int           `json:"round_number"`
	Position   int           `json:"position_within_round"`
	Content    string        `json:"content"`
	DurationMs int64         `json:"duration_ms"`
	TimedOut   bool          `json:"timed_out,omitempty"`
	Elapsed    time.Duration `json:"-"`
}

// RoundtableRecord is the persisted result of a multi-agent discussion,
// per spec.md §3. SessionID doubles as the roundtable's own id.
type RoundtableRecord struct {
	SessionID       string   `json:"session_id"`
	Topic           string   `json:"topic"`
	Participants    []string `json:"participants"`
	RoundsRequested int      `json:"rounds"`
	TurnCount       int      `json:"turn_count"`
	Synthesis       string   `json:"synthesis"`
	SynthesizerID   string   `json:"synthesizer_id"`
	TotalDurationMs int64    `json:"total_duration_ms"`
	Turns           []Turn   `json:"turns"`
	Partial         bool     `json:"partial,omitempty"`
}
