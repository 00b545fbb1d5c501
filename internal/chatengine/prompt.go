package chatengine

import (
	"context"
	"strings"

	"github.com/ariaworks/aria/internal/compaction"
	"github.com/ariaworks/aria/internal/llmproxy"
	"github.com/ariaworks/aria/pkg/models"
)

// historyShare bounds how much of the model's context window the pruned
// message history may occupy, leaving headroom for the system prompt and
// the model's own response. Grounded on internal/compaction's
// maxHistoryShare parameter; 0.8 mirrors the teacher's compaction defaults
// for agentic loops (internal/agent/compaction.go's trigger ratio).
const historyShare = 0.8

// historyParts is the chunk count PruneHistoryForContextShare uses when
// deciding which trailing chunk of history to keep.
const historyParts = 4

// buildPrompt assembles the message list for one LLM call: a single
// system message (kernel + agent + session prompt sections), followed by
// the session's history trimmed to the model's context window, per
// spec.md §4.5 step 3.
func (e *Engine) buildPrompt(ctx context.Context, t *turn) ([]llmproxy.Message, error) {
	history, err := e.sessions.ListMessages(ctx, t.session.ID, 0, 0)
	if err != nil {
		return nil, err
	}

	pruned := prune(history, e.contextWindow(t.model))

	out := make([]llmproxy.Message, 0, len(pruned)+1)
	out = append(out, llmproxy.Message{Role: models.RoleSystem, Content: e.systemPrompt(t)})
	for _, msg := range pruned {
		out = append(out, toLLMMessages(msg)...)
	}
	return out, nil
}

// systemPrompt concatenates the kernel-sourced prompt, the agent's own
// system prompt, and the session's frozen prompt snapshot into one system
// message, per spec.md §4.5 step 3 ("prepend kernel system prompt +
// agent.system_prompt + session.system_prompt_snapshot as ONE system
// message, concatenated with a blank line").
func (e *Engine) systemPrompt(t *turn) string {
	var sections []string
	if e.kernel != nil {
		if k := e.kernel.SystemPrompt(); k != "" {
			sections = append(sections, k)
		}
	}
	if t.agent.SystemPrompt != "" {
		sections = append(sections, t.agent.SystemPrompt)
	}
	if t.session.SystemPromptSnapshot != "" {
		sections = append(sections, t.session.SystemPromptSnapshot)
	}
	return strings.Join(sections, "\n\n")
}

// prune converts the canonical history into internal/compaction's Message
// shape, trims it to historyShare of the model's context window, and
// reports the surviving, still chronologically ordered ChatMessage rows.
func prune(history []*models.ChatMessage, contextWindow int) []*models.ChatMessage {
	if len(history) == 0 {
		return history
	}

	byID := make(map[string]*models.ChatMessage, len(history))
	compactMsgs := make([]*compaction.Message, 0, len(history))
	for _, msg := range history {
		byID[msg.ID] = msg
		compactMsgs = append(compactMsgs, toCompactionMessage(msg))
	}

	result := compaction.PruneHistoryForContextShare(compactMsgs, contextWindow, historyShare, historyParts)

	kept := make([]*models.ChatMessage, 0, len(result.Messages))
	for _, cm := range result.Messages {
		if original, ok := byID[cm.ID]; ok {
			kept = append(kept, original)
		}
	}
	return kept
}

func toCompactionMessage(msg *models.ChatMessage) *compaction.Message {
	return &compaction.Message{
		Role:        string(msg.Role),
		Content:     msg.Content,
		Timestamp:   msg.CreatedAt.Unix(),
		ID:          msg.ID,
		ToolCalls:   summarizeToolCalls(msg.ToolCalls),
		ToolResults: summarizeToolResults(msg.ToolResults),
	}
}

func summarizeToolCalls(calls []models.ToolCall) string {
	if len(calls) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range calls {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(c.Name)
		b.Write(c.Arguments)
	}
	return b.String()
}

func summarizeToolResults(results []models.ToolResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(r.Content)
	}
	return b.String()
}

// toLLMMessages converts one ChatMessage row into the llmproxy.Message(s)
// the OpenAI-shaped wire format expects: a tool-role row fans out into one
// message per recorded ToolResult, since a session may bundle a whole
// round's results onto a single durable row while the LLM API addresses
// each tool_call_id individually.
func toLLMMessages(msg *models.ChatMessage) []llmproxy.Message {
	if msg.Role == models.RoleTool {
		out := make([]llmproxy.Message, 0, len(msg.ToolResults))
		for _, r := range msg.ToolResults {
			out = append(out, llmproxy.Message{
				Role:       models.RoleTool,
				Content:    r.Content,
				ToolCallID: r.ToolCallID,
			})
		}
		return out
	}
	return []llmproxy.Message{{
		Role:      msg.Role,
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
	}}
}
