package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/pkg/models"
)

// ExportFormat is one of the formats spec.md §4.4's export_session
// supports.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
)

// Export is the full, self-contained representation of a session returned
// by ExportSession — round-tripping Export through json.Marshal/Unmarshal
// reconstructs the original session and message list modulo embeddings,
// per spec.md §8's export round-trip property.
type Export struct {
	Session  *models.ChatSession  `json:"session"`
	Messages []*models.ChatMessage `json:"messages"`
}

// ExportSession renders a session plus its full message log in the
// requested format.
func (e *Engine) ExportSession(ctx context.Context, sessionID string, format ExportFormat) ([]byte, error) {
	sess, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := e.messages.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportJSON, "":
		return exportJSON(sess, messages)
	case ExportMarkdown:
		return exportMarkdown(sess, messages), nil
	default:
		return nil, errkind.New(errkind.Validation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func exportJSON(sess *models.ChatSession, messages []*models.ChatMessage) ([]byte, error) {
	export := Export{Session: sess, Messages: messages}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}

func exportMarkdown(sess *models.ChatSession, messages []*models.ChatMessage) []byte {
	var b strings.Builder
	title := sess.Title
	if title == "" {
		title = sess.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- agent: `%s`\n", sess.AgentID)
	fmt.Fprintf(&b, "- type: `%s`\n", sess.SessionType)
	fmt.Fprintf(&b, "- status: `%s`\n", sess.Status)
	fmt.Fprintf(&b, "- created: %s\n\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))

	for _, msg := range messages {
		fmt.Fprintf(&b, "## %s\n\n", strings.Title(string(msg.Role)))
		if msg.Content != "" {
			fmt.Fprintf(&b, "%s\n\n", msg.Content)
		}
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(&b, "> tool call `%s` (`%s`): %s\n\n", tc.ID, tc.Name, string(tc.Arguments))
		}
		for _, tr := range msg.ToolResults {
			status := "ok"
			if tr.IsError {
				status = "error"
			}
			fmt.Fprintf(&b, "> tool result `%s` [%s]: %s\n\n", tr.ToolCallID, status, tr.Content)
		}
	}
	return []byte(b.String())
}
