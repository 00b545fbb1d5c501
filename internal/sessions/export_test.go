package sessions

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ariaworks/aria/pkg/models"
)

func seedExportableSession(t *testing.T, e *Engine) *models.ChatSession {
	t.Helper()
	ctx := context.Background()
	sess, err := e.CreateSession(ctx, "aria", models.SessionTypeInteractive, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := e.AppendMessage(ctx, &models.ChatMessage{SessionID: sess.ID, Role: models.RoleUser, Content: "what's 2+2?"}, AppendOptions{}); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := e.AppendMessage(ctx, &models.ChatMessage{
		SessionID: sess.ID,
		Role:      models.RoleAssistant,
		Content:   "let me compute that",
		ToolCalls: []models.ToolCall{{ID: "call_1", Name: "calculator", Arguments: json.RawMessage(`{"expr":"2+2"}`)}},
	}, AppendOptions{}); err != nil {
		t.Fatalf("append assistant with tool call: %v", err)
	}
	if err := e.AppendMessage(ctx, &models.ChatMessage{
		SessionID:   sess.ID,
		Role:        models.RoleTool,
		ToolResults: []models.ToolResult{{ToolCallID: "call_1", Content: "4"}},
	}, AppendOptions{}); err != nil {
		t.Fatalf("append tool result: %v", err)
	}
	if err := e.AppendMessage(ctx, &models.ChatMessage{SessionID: sess.ID, Role: models.RoleAssistant, Content: "it's 4"}, AppendOptions{}); err != nil {
		t.Fatalf("append final assistant: %v", err)
	}
	return sess
}

func TestExportSessionJSONRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	sess := seedExportableSession(t, e)

	data, err := e.ExportSession(context.Background(), sess.ID, ExportJSON)
	if err != nil {
		t.Fatalf("ExportSession: %v", err)
	}

	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if export.Session.ID != sess.ID {
		t.Fatalf("expected session id %s, got %s", sess.ID, export.Session.ID)
	}
	if len(export.Messages) != 4 {
		t.Fatalf("expected 4 messages in export, got %d", len(export.Messages))
	}
	if export.Messages[2].ToolResults[0].ToolCallID != "call_1" {
		t.Fatalf("expected tool result to reference call_1, got %+v", export.Messages[2].ToolResults)
	}
}

func TestExportSessionDefaultsToJSON(t *testing.T) {
	e := newTestEngine(t)
	sess := seedExportableSession(t, e)

	data, err := e.ExportSession(context.Background(), sess.ID, "")
	if err != nil {
		t.Fatalf("ExportSession with empty format: %v", err)
	}
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("expected default format to be valid JSON: %v", err)
	}
}

func TestExportSessionMarkdownIncludesToolActivity(t *testing.T) {
	e := newTestEngine(t)
	sess := seedExportableSession(t, e)

	data, err := e.ExportSession(context.Background(), sess.ID, ExportMarkdown)
	if err != nil {
		t.Fatalf("ExportSession markdown: %v", err)
	}
	md := string(data)
	if !strings.Contains(md, "what's 2+2?") {
		t.Fatalf("expected markdown to contain user message, got:\n%s", md)
	}
	if !strings.Contains(md, "tool call `call_1`") {
		t.Fatalf("expected markdown to render the tool call, got:\n%s", md)
	}
	if !strings.Contains(md, "tool result `call_1` [ok]: 4") {
		t.Fatalf("expected markdown to render the tool result, got:\n%s", md)
	}
}

func TestExportSessionRejectsUnknownFormat(t *testing.T) {
	e := newTestEngine(t)
	sess := seedExportableSession(t, e)

	if _, err := e.ExportSession(context.Background(), sess.ID, ExportFormat("xml")); err == nil {
		t.Fatalf("expected error for unsupported export format")
	}
}

func TestExportSessionUnknownSession(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.ExportSession(context.Background(), "missing", ExportJSON); err == nil {
		t.Fatalf("expected error exporting a nonexistent session")
	}
}
