package config

import (
	"context"
	"fmt"
	"os"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

// SyncResult reports what a catalog sync did, per spec.md §4.2's
// "{inserted, updated, skipped}" return contract.
type SyncResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// agentEntry is the on-disk shape of one agents.yaml/agents.json5 record.
// A separate type (rather than yaml tags on models.Agent) keeps the wire
// format decoupled from the runtime struct, which carries fields
// (Status, ConsecutiveFail, PheromoneScore) the source file never sets.
type agentEntry struct {
	AgentID        string   `yaml:"agent_id"`
	DisplayName    string   `yaml:"display_name"`
	Type           string   `yaml:"agent_type"`
	ParentAgentID  string   `yaml:"parent_agent_id"`
	Model          string   `yaml:"model"`
	FallbackModel  string   `yaml:"fallback_model"`
	SystemPrompt   string   `yaml:"system_prompt"`
	Temperature    float64  `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	FocusType      string   `yaml:"focus_type"`
	Skills         []string `yaml:"skills"`
	Capabilities   []string `yaml:"capabilities"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	RateLimit      struct {
		Requests int           `yaml:"requests"`
		Window   time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`
}

type agentCatalogFile struct {
	Agents []agentEntry `yaml:"agents"`
}

// modelEntry is the on-disk shape of one models.yaml/models.json5 record.
type modelEntry struct {
	ID               string  `yaml:"id"`
	Name             string  `yaml:"name"`
	Provider         string  `yaml:"provider"`
	Tier             string  `yaml:"tier"`
	Reasoning        bool    `yaml:"reasoning"`
	Vision           bool    `yaml:"vision"`
	ToolCalling      bool    `yaml:"tool_calling"`
	ContextWindow    int     `yaml:"context_window"`
	MaxTokens        int     `yaml:"max_tokens"`
	CostInput        float64 `yaml:"cost_input"`
	CostOutput       float64 `yaml:"cost_output"`
	ProxyModelString string  `yaml:"proxy_model_string"`
	Enabled          *bool   `yaml:"enabled"`
	SortOrder        int     `yaml:"sort_order"`
}

type modelCatalogFile struct {
	Models []modelEntry `yaml:"models"`
}

func parseCatalogFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errkind.Wrap(errkind.NotFound, err, "catalog source not found")
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	var parseErr error
	switch ext := fileExt(path); ext {
	case ".json", ".json5":
		parseErr = json5.Unmarshal(expanded, out)
	default:
		parseErr = yaml.Unmarshal(expanded, out)
	}
	if parseErr != nil {
		return errkind.Wrap(errkind.Validation, parseErr, "catalog source parse error")
	}
	return nil
}

func fileExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// SyncAgents runs spec.md §4.2's sync algorithm for the Agent catalog:
// insert declared agents missing from the DB, update non-app_managed ones
// (or every one, when force is set) preserving runtime state
// (status/consecutive_failures/pheromone_score), skip the rest, and never
// delete.
func SyncAgents(ctx context.Context, store storage.AgentStore, sourcePath string, force bool) (SyncResult, error) {
	var file agentCatalogFile
	if err := parseCatalogFile(sourcePath, &file); err != nil {
		return SyncResult{}, err
	}

	existing, err := store.List(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	byID := make(map[string]*models.Agent, len(existing))
	for _, a := range existing {
		byID[a.AgentID] = a
	}

	var result SyncResult
	seen := make(map[string]bool, len(file.Agents))
	for _, entry := range file.Agents {
		if entry.AgentID == "" {
			return result, errkind.New(errkind.Validation, "agent entry missing agent_id")
		}
		if seen[entry.AgentID] {
			return result, errkind.New(errkind.Validation, fmt.Sprintf("duplicate agent id %q in catalog source", entry.AgentID))
		}
		seen[entry.AgentID] = true

		current, ok := byID[entry.AgentID]
		if !ok {
			agent := agentFromEntry(entry)
			agent.Status = models.AgentStatusIdle
			agent.PheromoneScore = 0.5
			if err := store.Create(ctx, &agent); err != nil {
				return result, err
			}
			result.Inserted++
			continue
		}

		if current.AppManaged && !force {
			result.Skipped++
			continue
		}

		updated := agentFromEntry(entry)
		updated.Status = current.Status
		updated.ConsecutiveFail = current.ConsecutiveFail
		updated.PheromoneScore = current.PheromoneScore
		updated.AppManaged = false
		if err := store.Update(ctx, &updated); err != nil {
			return result, err
		}
		result.Updated++
	}
	return result, nil
}

func agentFromEntry(e agentEntry) models.Agent {
	return models.Agent{
		AgentID:        e.AgentID,
		DisplayName:    e.DisplayName,
		Type:           models.AgentType(e.Type),
		ParentAgentID:  e.ParentAgentID,
		Model:          e.Model,
		FallbackModel:  e.FallbackModel,
		SystemPrompt:   e.SystemPrompt,
		Temperature:    e.Temperature,
		MaxTokens:      e.MaxTokens,
		FocusType:      e.FocusType,
		Skills:         e.Skills,
		Capabilities:   e.Capabilities,
		Enabled:        boolOrDefault(e.Enabled, true),
		TimeoutSeconds: e.TimeoutSeconds,
		RateLimit:      models.RateLimit{Requests: e.RateLimit.Requests, Window: e.RateLimit.Window},
	}
}

// SyncModels is SyncAgents' Model-catalog counterpart.
func SyncModels(ctx context.Context, store storage.ModelStore, sourcePath string, force bool) (SyncResult, error) {
	var file modelCatalogFile
	if err := parseCatalogFile(sourcePath, &file); err != nil {
		return SyncResult{}, err
	}

	existing, err := store.List(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	byID := make(map[string]*models.Model, len(existing))
	for _, m := range existing {
		byID[m.ID] = m
	}

	var result SyncResult
	seen := make(map[string]bool, len(file.Models))
	for _, entry := range file.Models {
		if entry.ID == "" {
			return result, errkind.New(errkind.Validation, "model entry missing id")
		}
		if seen[entry.ID] {
			return result, errkind.New(errkind.Validation, fmt.Sprintf("duplicate model id %q in catalog source", entry.ID))
		}
		seen[entry.ID] = true

		current, ok := byID[entry.ID]
		if !ok {
			model := modelFromEntry(entry)
			if err := store.Create(ctx, &model); err != nil {
				return result, err
			}
			result.Inserted++
			continue
		}

		if current.AppManaged && !force {
			result.Skipped++
			continue
		}

		updated := modelFromEntry(entry)
		updated.AppManaged = false
		if err := store.Update(ctx, &updated); err != nil {
			return result, err
		}
		result.Updated++
	}
	return result, nil
}

func modelFromEntry(e modelEntry) models.Model {
	return models.Model{
		ID:               e.ID,
		Name:             e.Name,
		Provider:         e.Provider,
		Tier:             models.ModelTier(e.Tier),
		Reasoning:        e.Reasoning,
		Vision:           e.Vision,
		ToolCalling:      e.ToolCalling,
		ContextWindow:    e.ContextWindow,
		MaxTokens:        e.MaxTokens,
		CostInput:        e.CostInput,
		CostOutput:       e.CostOutput,
		ProxyModelString: e.ProxyModelString,
		Enabled:          boolOrDefault(e.Enabled, true),
		SortOrder:        e.SortOrder,
	}
}

// Sync runs both catalog syncs against cfg.Catalog's source paths.
func Sync(ctx context.Context, stores storage.StoreSet, cfg CatalogConfig, force bool) (agents, modelsResult SyncResult, err error) {
	agents, err = SyncAgents(ctx, stores.Agents, cfg.AgentsPath, force)
	if err != nil {
		return agents, SyncResult{}, err
	}
	modelsResult, err = SyncModels(ctx, stores.Models, cfg.ModelsPath, force)
	return agents, modelsResult, err
}
