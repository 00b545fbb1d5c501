package chatengine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ariaworks/aria/internal/breaker"
	"github.com/ariaworks/aria/internal/config"
	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/internal/llmproxy"
	"github.com/ariaworks/aria/internal/sessions"
	"github.com/ariaworks/aria/internal/skills"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

// fakeLLM is a scripted LLMClient: each call pops the next queued response
// (or error) off its list, recording every request it was given.
type fakeLLM struct {
	responses []fakeCall
	calls     []llmproxy.Request
	i         int
}

type fakeCall struct {
	resp *llmproxy.Response
	err  error
}

func (f *fakeLLM) Complete(_ context.Context, req llmproxy.Request) (*llmproxy.Response, error) {
	f.calls = append(f.calls, req)
	if f.i >= len(f.responses) {
		return nil, errors.New("fakeLLM: no scripted response left")
	}
	c := f.responses[f.i]
	f.i++
	return c.resp, c.err
}

type testHarness struct {
	engine   *Engine
	sessions *sessions.Engine
	agents   storage.AgentStore
	models   storage.ModelStore
	llm      *fakeLLM
}

func newHarness(t *testing.T, llm *fakeLLM) *testHarness {
	t.Helper()
	stores := storage.NewMemoryStores()
	sessionEngine := sessions.New(stores.Sessions, stores.Messages, nil)
	registry := skills.NewRegistry()
	ledger := skills.NewLedger(stores.Skills)
	breakers := breaker.NewCircuitBreakerRegistry(breaker.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})

	agent := &models.Agent{
		AgentID:        "concierge",
		DisplayName:    "Concierge",
		Type:           models.AgentTypeAgent,
		Model:          "gpt-main",
		Enabled:        true,
		Status:         models.AgentStatusIdle,
		TimeoutSeconds: 30,
		SystemPrompt:   "You are the concierge.",
	}
	if err := stores.Agents.Create(context.Background(), agent); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	model := &models.Model{ID: "gpt-main", Provider: "openai", Enabled: true, ContextWindow: 8000}
	if err := stores.Models.Create(context.Background(), model); err != nil {
		t.Fatalf("seed model: %v", err)
	}

	engine := New(sessionEngine, stores.Agents, stores.Models, registry, ledger, breakers, llm, nil, config.ChatEngineConfig{
		MaxToolRounds:     6,
		ContextWindowSoft: 8000,
		TurnTimeout:       time.Minute,
	})

	return &testHarness{engine: engine, sessions: sessionEngine, agents: stores.Agents, models: stores.Models, llm: llm}
}

func (h *testHarness) newSession(t *testing.T) *models.ChatSession {
	t.Helper()
	sess, err := h.sessions.CreateSession(context.Background(), "concierge", models.SessionTypeInteractive, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func TestSendMessageHappyPathNoTools(t *testing.T) {
	llm := &fakeLLM{responses: []fakeCall{{resp: &llmproxy.Response{Content: "hello there", TokensInput: 10, TokensOutput: 5}}}}
	h := newHarness(t, llm)
	sess := h.newSession(t)

	msg, err := h.engine.SendMessage(context.Background(), sess.ID, "hi", false, false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Content != "hello there" {
		t.Fatalf("expected content %q, got %q", "hello there", msg.Content)
	}
	if msg.Role != models.RoleAssistant {
		t.Fatalf("expected assistant role, got %s", msg.Role)
	}

	history, err := h.sessions.ListMessages(context.Background(), sess.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages (user+assistant), got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected message roles: %v, %v", history[0].Role, history[1].Role)
	}

	if len(llm.calls) != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", len(llm.calls))
	}
	sysMsg := llm.calls[0].Messages[0]
	if sysMsg.Role != models.RoleSystem || sysMsg.Content != "You are the concierge." {
		t.Fatalf("expected system prompt from agent, got %q", sysMsg.Content)
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	h := newHarness(t, &fakeLLM{})
	sess := h.newSession(t)
	if _, err := h.engine.SendMessage(context.Background(), sess.ID, "", false, false); !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestSendMessageRejectsInactiveSession(t *testing.T) {
	h := newHarness(t, &fakeLLM{})
	sess := h.newSession(t)
	if err := h.sessions.EndSession(context.Background(), sess.ID, models.SessionStatusCompleted); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	_, err := h.engine.SendMessage(context.Background(), sess.ID, "hi", false, false)
	if !errors.Is(err, errkind.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestSendMessageRejectsDisabledAgent(t *testing.T) {
	h := newHarness(t, &fakeLLM{})
	agent, err := h.agents.Get(context.Background(), "concierge")
	if err != nil {
		t.Fatalf("Get agent: %v", err)
	}
	agent.Enabled = false
	if err := h.agents.Update(context.Background(), agent); err != nil {
		t.Fatalf("Update agent: %v", err)
	}
	sess := h.newSession(t)

	_, err = h.engine.SendMessage(context.Background(), sess.ID, "hi", false, false)
	if !errors.Is(err, errkind.ErrAgentDisabled) {
		t.Fatalf("expected ErrAgentDisabled, got %v", err)
	}
}

func TestSendMessageDispatchesToolThenFinishes(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"city": "Lagos"})
	llm := &fakeLLM{responses: []fakeCall{
		{resp: &llmproxy.Response{ToolCalls: []models.ToolCall{{ID: "call1", Name: "get_weather", Arguments: args}}}},
		{resp: &llmproxy.Response{Content: "It is sunny in Lagos."}},
	}}
	h := newHarness(t, llm)

	handlerCalled := false
	h.engine.skills.Register(skills.Skill{Name: "weather", ToolName: "get_weather", Description: "looks up weather"}, func(ctx context.Context, raw json.RawMessage) (string, error) {
		handlerCalled = true
		return "sunny", nil
	})

	sess := h.newSession(t)
	agent, _ := h.agents.Get(context.Background(), "concierge")
	agent.Skills = []string{"weather"}
	if err := h.agents.Update(context.Background(), agent); err != nil {
		t.Fatalf("Update agent: %v", err)
	}

	msg, err := h.engine.SendMessage(context.Background(), sess.ID, "what's the weather", true, false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !handlerCalled {
		t.Fatalf("expected the tool handler to be invoked")
	}
	if msg.Content != "It is sunny in Lagos." {
		t.Fatalf("unexpected final content: %q", msg.Content)
	}
	if len(llm.calls) != 2 {
		t.Fatalf("expected 2 LLM calls (initial + after tool), got %d", len(llm.calls))
	}

	history, _ := h.sessions.ListMessages(context.Background(), sess.ID, 0, 0)
	var sawTool bool
	for _, m := range history {
		if m.Role == models.RoleTool {
			sawTool = true
			if len(m.ToolResults) != 1 || m.ToolResults[0].Content != "sunny" {
				t.Fatalf("unexpected tool result row: %+v", m.ToolResults)
			}
		}
	}
	if !sawTool {
		t.Fatalf("expected a persisted tool message")
	}
}

func TestSendMessageToolLoopExhausted(t *testing.T) {
	args, _ := json.Marshal(map[string]string{})
	var responses []fakeCall
	for i := 0; i < 10; i++ {
		responses = append(responses, fakeCall{resp: &llmproxy.Response{ToolCalls: []models.ToolCall{{ID: "c", Name: "noop", Arguments: args}}}})
	}
	llm := &fakeLLM{responses: responses}
	h := newHarness(t, llm)
	h.engine.skills.Register(skills.Skill{Name: "noop", ToolName: "noop"}, func(ctx context.Context, raw json.RawMessage) (string, error) {
		return "ok", nil
	})
	agent, _ := h.agents.Get(context.Background(), "concierge")
	agent.Skills = []string{"noop"}
	_ = h.agents.Update(context.Background(), agent)

	sess := h.newSession(t)
	_, err := h.engine.SendMessage(context.Background(), sess.ID, "loop forever", true, false)
	if !errors.Is(err, errkind.ErrToolLoopExhausted) {
		t.Fatalf("expected ErrToolLoopExhausted, got %v", err)
	}
}

func TestSendMessageConcurrentCallsFailFast(t *testing.T) {
	llm := &fakeLLM{}
	h := newHarness(t, llm)
	sess := h.newSession(t)

	release, ok := h.sessions.TryLockSession(sess.ID)
	if !ok {
		t.Fatalf("expected to acquire the session lock")
	}
	defer release()

	_, err := h.engine.SendMessage(context.Background(), sess.ID, "hi", false, false)
	if !errors.Is(err, errkind.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
}

func TestSendMessageFallsBackToSecondModelWhenFirstCircuitOpen(t *testing.T) {
	llm := &fakeLLM{responses: []fakeCall{{resp: &llmproxy.Response{Content: "from fallback"}}}}
	h := newHarness(t, llm)

	if err := h.models.Create(context.Background(), &models.Model{ID: "gpt-fallback", Provider: "openai", Enabled: true, ContextWindow: 8000}); err != nil {
		t.Fatalf("seed fallback model: %v", err)
	}
	agent, _ := h.agents.Get(context.Background(), "concierge")
	agent.FallbackModel = "gpt-fallback"
	_ = h.agents.Update(context.Background(), agent)

	cb := h.engine.breakers.Get("model:gpt-main")
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if !cb.IsOpen() {
		t.Fatalf("expected the primary model's circuit to be open")
	}

	sess := h.newSession(t)
	msg, err := h.engine.SendMessage(context.Background(), sess.ID, "hi", false, false)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Content != "from fallback" {
		t.Fatalf("expected fallback content, got %q", msg.Content)
	}
	if msg.Model != "gpt-fallback" {
		t.Fatalf("expected the final message to record the fallback model, got %q", msg.Model)
	}
}

func TestSendMessageNoFallbackConfiguredFailsUpstreamUnavailable(t *testing.T) {
	h := newHarness(t, &fakeLLM{})
	cb := h.engine.breakers.Get("model:gpt-main")
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	sess := h.newSession(t)
	_, err := h.engine.SendMessage(context.Background(), sess.ID, "hi", false, false)
	if !errors.Is(err, errkind.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSendMessageRejectsWhenAgentRateLimitExceeded(t *testing.T) {
	llm := &fakeLLM{responses: []fakeCall{
		{resp: &llmproxy.Response{Content: "first"}},
		{resp: &llmproxy.Response{Content: "second"}},
	}}
	h := newHarness(t, llm)

	agent, err := h.agents.Get(context.Background(), "concierge")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	agent.RateLimit = models.RateLimit{Requests: 1, Window: time.Minute}
	if err := h.agents.Update(context.Background(), agent); err != nil {
		t.Fatalf("update agent: %v", err)
	}

	sess := h.newSession(t)
	if _, err := h.engine.SendMessage(context.Background(), sess.ID, "hi", false, false); err != nil {
		t.Fatalf("first SendMessage: %v", err)
	}

	second := h.newSession(t)
	_, err = h.engine.SendMessage(context.Background(), second.ID, "hi again", false, false)
	if !errors.Is(err, errkind.ErrUpstreamUnavailable) {
		t.Fatalf("expected rate limit rejection wrapping ErrUpstreamUnavailable, got %v", err)
	}
}
