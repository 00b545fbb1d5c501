package chatengine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ariaworks/aria/internal/breaker"
	"github.com/ariaworks/aria/internal/config"
	"github.com/ariaworks/aria/internal/sessions"
	"github.com/ariaworks/aria/internal/skills"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

type fakeKernel struct{ prompt string }

func (f fakeKernel) SystemPrompt() string { return f.prompt }

func TestSystemPromptConcatenatesKernelAgentAndSessionSections(t *testing.T) {
	stores := storage.NewMemoryStores()
	sessionEngine := sessions.New(stores.Sessions, stores.Messages, nil)
	e := New(sessionEngine, stores.Agents, stores.Models, skills.NewRegistry(), skills.NewLedger(stores.Skills),
		breaker.NewCircuitBreakerRegistry(breaker.CircuitBreakerConfig{}), &fakeLLM{}, fakeKernel{prompt: "be safe"}, config.ChatEngineConfig{})

	tn := &turn{
		agent:   &models.Agent{SystemPrompt: "You are the concierge."},
		session: &models.ChatSession{SystemPromptSnapshot: "User prefers terse replies."},
	}
	got := e.systemPrompt(tn)
	for _, want := range []string{"be safe", "You are the concierge.", "User prefers terse replies."} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected system prompt to contain %q, got:\n%s", want, got)
		}
	}
	if strings.Index(got, "be safe") > strings.Index(got, "You are the concierge.") {
		t.Fatalf("expected kernel section to precede the agent section, got:\n%s", got)
	}
}

func TestSystemPromptOmitsNilKernel(t *testing.T) {
	stores := storage.NewMemoryStores()
	sessionEngine := sessions.New(stores.Sessions, stores.Messages, nil)
	e := New(sessionEngine, stores.Agents, stores.Models, skills.NewRegistry(), skills.NewLedger(stores.Skills),
		breaker.NewCircuitBreakerRegistry(breaker.CircuitBreakerConfig{}), &fakeLLM{}, nil, config.ChatEngineConfig{})

	tn := &turn{agent: &models.Agent{SystemPrompt: "solo prompt"}, session: &models.ChatSession{}}
	got := e.systemPrompt(tn)
	if got != "solo prompt" {
		t.Fatalf("expected just the agent prompt with no kernel wired, got %q", got)
	}
}

func TestBuildPromptTrimsHistoryToContextWindow(t *testing.T) {
	stores := storage.NewMemoryStores()
	sessionEngine := sessions.New(stores.Sessions, stores.Messages, nil)
	e := New(sessionEngine, stores.Agents, stores.Models, skills.NewRegistry(), skills.NewLedger(stores.Skills),
		breaker.NewCircuitBreakerRegistry(breaker.CircuitBreakerConfig{}), &fakeLLM{}, nil, config.ChatEngineConfig{})

	sess, err := sessionEngine.CreateSession(context.Background(), "agent-1", models.SessionTypeInteractive, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	longText := strings.Repeat("word ", 2000) // ~10000 tokens worth of text
	for i := 0; i < 5; i++ {
		msg := &models.ChatMessage{SessionID: sess.ID, Role: models.RoleUser, Content: longText}
		if err := sessionEngine.AppendMessage(context.Background(), msg, sessions.AppendOptions{}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	tn := &turn{
		session: sess,
		agent:   &models.Agent{SystemPrompt: "sys"},
		model:   &models.Model{ID: "small-model", ContextWindow: 2000},
	}
	msgs, err := e.buildPrompt(context.Background(), tn)
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}
	if len(msgs) == 0 || msgs[0].Role != models.RoleSystem {
		t.Fatalf("expected a leading system message")
	}
	// A 2000-token context window can't possibly hold all 5 ~2500-token
	// messages plus the system prompt, so some history must be dropped.
	if len(msgs)-1 >= 5 {
		t.Fatalf("expected history to be trimmed below the full 5 messages, got %d history entries", len(msgs)-1)
	}
}
