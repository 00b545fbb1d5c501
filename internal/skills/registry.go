package skills

import (
	"fmt"
	"sort"
	"sync"
)

type registered struct {
	skill   Skill
	handler Handler
}

// Registry maps tool_name → typed handler, built once at boot and swapped
// atomically on reload (spec.md §9 "dynamic tool dispatch").
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// NewRegistryFromManifests builds a registry from parsed manifests, wiring
// each declared tool to handler via lookup by tool_name. Tools with no
// matching handler are rejected — every declared tool must be executable.
func NewRegistryFromManifests(manifests []Manifest, handlers map[string]Handler) (*Registry, error) {
	r := NewRegistry()
	for _, m := range manifests {
		for _, skill := range m.Tools {
			handler, ok := handlers[skill.ToolName]
			if !ok {
				return nil, fmt.Errorf("skill %s: no handler registered for tool %q", m.Name, skill.ToolName)
			}
			if err := r.Register(skill, handler); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Register adds or replaces a tool handler.
func (r *Registry) Register(skill Skill, handler Handler) error {
	if skill.ToolName == "" {
		return fmt.Errorf("skill tool_name is required")
	}
	if handler == nil {
		return fmt.Errorf("skill %s: handler is required", skill.ToolName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[skill.ToolName] = registered{skill: skill, handler: handler}
	return nil
}

// Get returns the handler for a tool name, if registered.
func (r *Registry) Get(toolName string) (Handler, Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[toolName]
	if !ok {
		return nil, Skill{}, false
	}
	return reg.handler, reg.skill, true
}

// ToolsFor returns the tool schemas for an agent's declared skill names,
// in a stable order, for attaching to an LLM request (spec.md §4.5 step 5).
func (r *Registry) ToolsFor(skillNames []string) []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := make(map[string]bool, len(skillNames))
	for _, name := range skillNames {
		wanted[name] = true
	}
	var out []Skill
	for _, reg := range r.tools {
		if wanted[reg.skill.Name] {
			out = append(out, reg.skill)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out
}
