package llmproxy

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/pkg/models"
)

func TestClassifyForRetryRetries5xxAndTransport(t *testing.T) {
	if !classifyForRetry(errors.New("dial tcp: connection refused")) {
		t.Fatalf("expected plain transport error to be retryable")
	}
	serverErr := &openai.APIError{HTTPStatusCode: 503}
	if !classifyForRetry(serverErr) {
		t.Fatalf("expected 503 to be retryable")
	}
}

func TestClassifyForRetryRejects4xx(t *testing.T) {
	badReq := &openai.APIError{HTTPStatusCode: 400}
	if classifyForRetry(badReq) {
		t.Fatalf("expected 400 not to be retryable")
	}
	rateLimited := &openai.APIError{HTTPStatusCode: 429}
	if classifyForRetry(rateLimited) {
		t.Fatalf("expected 429 not to be retryable (no observable Retry-After)")
	}
}

func TestTranslateErrorMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   errkind.Kind
	}{
		{429, errkind.UpstreamBadRequest},
		{500, errkind.UpstreamTimeout},
		{404, errkind.UpstreamBadRequest},
	}
	for _, tc := range cases {
		err := translateError(&openai.APIError{HTTPStatusCode: tc.status})
		if got := errkind.KindOf(err); got != tc.want {
			t.Errorf("status %d: got kind %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestTranslateErrorMapsContextErrors(t *testing.T) {
	if got := errkind.KindOf(translateError(context.DeadlineExceeded)); got != errkind.UpstreamTimeout {
		t.Fatalf("expected DeadlineExceeded to map to UpstreamTimeout, got %s", got)
	}
	if got := errkind.KindOf(translateError(context.Canceled)); got != errkind.Cancelled {
		t.Fatalf("expected Canceled to map to Cancelled, got %s", got)
	}
}

func TestToOpenAIRequestConvertsMessagesAndTools(t *testing.T) {
	req := Request{
		Model: "gpt-4o",
		Messages: []Message{
			{Role: models.RoleSystem, Content: "be terse"},
			{Role: models.RoleUser, Content: "hi"},
			{
				Role:      models.RoleAssistant,
				ToolCalls: []models.ToolCall{{ID: "call_1", Name: "calc", Arguments: []byte(`{"x":1}`)}},
			},
			{Role: models.RoleTool, ToolCallID: "call_1", Content: "2"},
		},
		Tools: []ToolSchema{
			{Name: "calc", Description: "adds", Parameters: []byte(`{"type":"object"}`)},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	}

	apiReq := toOpenAIRequest(req)
	if apiReq.Model != "gpt-4o" {
		t.Fatalf("expected model to carry through, got %s", apiReq.Model)
	}
	if len(apiReq.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(apiReq.Messages))
	}
	if apiReq.Messages[2].ToolCalls[0].Function.Name != "calc" {
		t.Fatalf("expected tool call name to carry through, got %+v", apiReq.Messages[2].ToolCalls)
	}
	if apiReq.Messages[3].ToolCallID != "call_1" {
		t.Fatalf("expected tool message to carry tool_call_id, got %+v", apiReq.Messages[3])
	}
	if len(apiReq.Tools) != 1 || apiReq.Tools[0].Function.Name != "calc" {
		t.Fatalf("expected one tool schema named calc, got %+v", apiReq.Tools)
	}
}

func TestFromOpenAIResponseExtractsToolCallsAndUsage(t *testing.T) {
	resp := openai.ChatCompletionResponse{
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5},
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Content: "done",
					ToolCalls: []openai.ToolCall{
						{ID: "call_1", Function: openai.FunctionCall{Name: "calc", Arguments: `{"x":1}`}},
					},
				},
			},
		},
	}
	out := fromOpenAIResponse(resp)
	if out.Content != "done" {
		t.Fatalf("expected content to carry through, got %s", out.Content)
	}
	if out.TokensInput != 10 || out.TokensOutput != 5 {
		t.Fatalf("expected token usage to carry through, got %+v", out)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "calc" {
		t.Fatalf("expected tool call to carry through, got %+v", out.ToolCalls)
	}
}

func TestFromOpenAIResponseHandlesNoChoices(t *testing.T) {
	out := fromOpenAIResponse(openai.ChatCompletionResponse{})
	if out.Content != "" || len(out.ToolCalls) != 0 {
		t.Fatalf("expected empty response for no choices, got %+v", out)
	}
}
