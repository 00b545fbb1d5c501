// Package models provides the domain entities persisted by the Aria
// orchestration core: agents, models, chat sessions and messages,
// roundtable records, scheduled jobs, and skill invocations.
package models

import "time"

// AgentType identifies an actor's position in the orchestration hierarchy.
type AgentType string

const (
	AgentTypeOrchestrator AgentType = "orchestrator"
	AgentTypeAgent        AgentType = "agent"
	AgentTypeSubAgent     AgentType = "sub_agent"
)

// AgentStatus is the runtime status of an agent.
type AgentStatus string

const (
	AgentStatusIdle     AgentStatus = "idle"
	AgentStatusBusy     AgentStatus = "busy"
	AgentStatusDisabled AgentStatus = "disabled"
)

// RateLimit configures a requests-per-window budget for an agent.
type RateLimit struct {
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
}

// Agent is the runtime-mutable configuration for one logical actor.
//
// AgentID is the stable primary key used throughout the core; ParentAgentID
// is a nullable self-reference used only when Type is AgentTypeSubAgent.
// Cycles in the parent relation are forbidden — see Registry.validateHierarchy.
type Agent struct {
	AgentID         string      `json:"agent_id"`
	DisplayName     string      `json:"display_name"`
	Type            AgentType   `json:"agent_type"`
	ParentAgentID   string      `json:"parent_agent_id,omitempty"`
	Model           string      `json:"model"`
	FallbackModel   string      `json:"fallback_model,omitempty"`
	SystemPrompt    string      `json:"system_prompt"`
	Temperature     float64     `json:"temperature"`
	MaxTokens       int         `json:"max_tokens"`
	FocusType       string      `json:"focus_type,omitempty"`
	Skills          []string    `json:"skills,omitempty"`
	Capabilities    []string    `json:"capabilities,omitempty"`
	Enabled         bool        `json:"enabled"`
	TimeoutSeconds  int         `json:"timeout_seconds"`
	RateLimit       RateLimit   `json:"rate_limit"`
	AppManaged      bool        `json:"app_managed"`
	Status          AgentStatus `json:"status"`
	ConsecutiveFail int         `json:"consecutive_failures"`
	PheromoneScore  float64     `json:"pheromone_score"`
}

// Validate checks the invariants named in spec.md §3: a sub_agent must have
// a parent, and temperature/pheromone must stay in their documented ranges.
func (a *Agent) Validate() error {
	if a == nil {
		return errAgentNil
	}
	if a.AgentID == "" {
		return errAgentIDRequired
	}
	if a.Type == AgentTypeSubAgent && a.ParentAgentID == "" {
		return errSubAgentNeedsParent
	}
	if a.PheromoneScore < 0 || a.PheromoneScore > 1 {
		return errPheromoneRange
	}
	return nil
}

// Model is a selectable LLM target, mirroring spec.md §3's Model entity.
type ModelTier string

const (
	ModelTierFree    ModelTier = "free"
	ModelTierPremium ModelTier = "premium"
	ModelTierLocal   ModelTier = "local"
	ModelTierUnknown ModelTier = "unknown"
)

type Model struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Provider         string    `json:"provider"`
	Tier             ModelTier `json:"tier"`
	Reasoning        bool      `json:"reasoning"`
	Vision           bool      `json:"vision"`
	ToolCalling      bool      `json:"tool_calling"`
	ContextWindow    int       `json:"context_window"`
	MaxTokens        int       `json:"max_tokens"`
	CostInput        float64   `json:"cost_input"`
	CostOutput       float64   `json:"cost_output"`
	ProxyModelString string    `json:"proxy_model_string"`
	Enabled          bool      `json:"enabled"`
	SortOrder        int       `json:"sort_order"`
	AppManaged       bool      `json:"app_managed"`
}
