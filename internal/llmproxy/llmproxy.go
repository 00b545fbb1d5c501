// Package llmproxy wraps github.com/sashabaranov/go-openai behind the
// narrow interface the Chat Engine needs, implementing spec.md §4.5/§7's
// retry policy in one place: infrastructure failures are retried at most
// once, with jitter, at the lowest layer that knows the retry is safe
// (no side effect has been durably applied yet when an LLM call fails).
package llmproxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/internal/retry"
	"github.com/ariaworks/aria/pkg/models"
)

// retryPolicy is spec.md §4.5's "one retry after 250ms jitter, then stop"
// rule expressed as an internal/retry.Config: two attempts total, no
// exponential growth since there's only ever one delay to take.
var retryPolicy = retry.Config{
	MaxAttempts:  2,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     250 * time.Millisecond,
	Factor:       1,
	Jitter:       true,
}

// Message is the wire-neutral chat message the proxy sends upstream —
// deliberately narrower than models.ChatMessage (no session bookkeeping).
type Message struct {
	Role       models.Role
	Content    string
	ToolCalls  []models.ToolCall
	ToolCallID string
}

// ToolSchema describes one callable tool for the upstream request.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  []byte // raw JSON schema
}

// Request is one completion call.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSchema
	Temperature float64
	MaxTokens   int
}

// Response is one completion result.
type Response struct {
	Content      string
	Thinking     string
	ToolCalls    []models.ToolCall
	TokensInput  int
	TokensOutput int
	LatencyMs    int64
}

// Client issues chat completions against one OpenAI-compatible endpoint.
type Client struct {
	openai *openai.Client
	now    func() time.Time
}

// NewClient builds a Client against baseURL (empty uses OpenAI's default)
// with apiKey for auth.
func NewClient(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		openai: openai.NewClientWithConfig(cfg),
		now:    time.Now,
	}
}

// Complete issues one non-streaming chat completion, applying the
// single-retry-with-jitter policy for 5xx/transport failures via
// internal/retry.DoWithValue.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	start := c.now()

	apiReq := toOpenAIRequest(req)

	resp, result := retry.DoWithValue(ctx, retryPolicy, func() (openai.ChatCompletionResponse, error) {
		resp, err := c.openai.CreateChatCompletion(ctx, apiReq)
		if err != nil && !classifyForRetry(err) {
			return resp, retry.Permanent(err)
		}
		return resp, err
	})
	if result.Err != nil {
		return nil, translateError(result.Err)
	}

	out := fromOpenAIResponse(resp)
	out.LatencyMs = c.now().Sub(start).Milliseconds()
	return out, nil
}

// classifyForRetry reports whether err is retryable under spec.md §4.5's
// table. 5xx/transport errors retry once; 4xx (including 429) do not —
// go-openai's APIError does not surface the response's Retry-After header,
// so a 429 is treated the same as any other 4xx ("else fail" in the spec's
// 429 row), rather than guessing at a retry delay it cannot observe.
func classifyForRetry(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500
	}
	// No structured API error — treat as a transport failure (DNS,
	// connection refused, timeout) and retry once.
	return true
}

// translateError maps a final (non-retried or retry-exhausted) upstream
// failure into the errkind taxonomy per spec.md §7.
func translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return errkind.Wrap(errkind.UpstreamBadRequest, err, "rate limited")
		case apiErr.HTTPStatusCode >= 500:
			return errkind.Wrap(errkind.UpstreamTimeout, err, "upstream server error after retry")
		case apiErr.HTTPStatusCode >= 400:
			return errkind.Wrap(errkind.UpstreamBadRequest, err, "upstream rejected the request")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errkind.Wrap(errkind.UpstreamTimeout, err, "upstream call timed out")
	}
	if errors.Is(err, context.Canceled) {
		return errkind.Wrap(errkind.Cancelled, err, "upstream call cancelled")
	}
	return errkind.Wrap(errkind.UpstreamTimeout, err, "upstream call failed after retry")
}

func toOpenAIRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		messages = append(messages, om)
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}
	for _, tool := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  rawParameters(tool.Parameters),
			},
		})
	}
	return apiReq
}

func rawParameters(schema []byte) any {
	if len(schema) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return json.RawMessage(schema)
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) *Response {
	out := &Response{}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		out.TokensInput = resp.Usage.PromptTokens
		out.TokensOutput = resp.Usage.CompletionTokens
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	return out
}
