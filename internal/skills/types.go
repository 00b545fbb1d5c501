// Package skills implements spec.md §4.3's Skill Invocation Ledger and the
// registry of tool handlers the Chat Engine dispatches against, per the
// "dynamic tool dispatch" design note in spec.md §9: skill-name strings are
// resolved to typed handlers through a registry built once at boot from
// declared manifests, never through runtime string-eval.
package skills

import (
	"context"
	"encoding/json"
)

// Handler executes one skill's tool call and returns its textual result.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Skill is one tool a skill manifest declares, with the JSON schema the
// Chat Engine attaches to the LLM request when tools are enabled.
type Skill struct {
	Name        string          `yaml:"name" json:"name"`
	ToolName    string          `yaml:"tool_name" json:"tool_name"`
	Description string          `yaml:"description" json:"description"`
	Schema      json.RawMessage `yaml:"-" json:"schema,omitempty"`
}

// Manifest is the on-disk declaration for one skill: its identity plus the
// tools it exposes. Parsed by LoadManifests.
type Manifest struct {
	Name  string  `yaml:"name"`
	Tools []Skill `yaml:"tools"`
}
