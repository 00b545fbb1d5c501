package roundtable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ariaworks/aria/internal/config"
	"github.com/ariaworks/aria/internal/sessions"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

// fakeChat is a scripted ChatEngine: it answers deterministically keyed
// on the child session's owning agent, and can be told to block/err for
// specific agents to exercise timeout and failure paths.
type fakeChat struct {
	sessions *sessions.Engine
	replies  map[string]string
	delays   map[string]time.Duration
	errs     map[string]error
	calls    int
}

func (f *fakeChat) SendMessage(ctx context.Context, sessionID, userContent string, enableTools, enableThinking bool) (*models.ChatMessage, error) {
	f.calls++
	sess, err := f.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	agentID := sess.AgentID
	if d, ok := f.delays[agentID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e, ok := f.errs[agentID]; ok {
		return nil, e
	}
	content := f.replies[agentID]
	if content == "" {
		content = fmt.Sprintf("%s says something", agentID)
	}
	return &models.ChatMessage{SessionID: sessionID, Role: models.RoleAssistant, Content: content, AgentID: agentID}, nil
}

func newTestEngine(t *testing.T, chat *fakeChat) (*Engine, *sessions.Engine, storage.RoundtableStore) {
	t.Helper()
	stores := storage.NewMemoryStores()
	sessionEngine := sessions.New(stores.Sessions, stores.Messages, nil)
	chat.sessions = sessionEngine
	e := New(sessionEngine, chat, stores.Roundtables, config.RoundtableConfig{
		DefaultAgentTimeout: time.Second,
		DefaultTotalTimeout: 5 * time.Second,
		AsyncStatusTTL:      time.Hour,
	})
	return e, sessionEngine, stores.Roundtables
}

func TestDiscussRunsAgentsInFixedOrderAcrossRounds(t *testing.T) {
	chat := &fakeChat{replies: map[string]string{"alice": "alice's view", "bob": "bob's view", "synth": "the synthesis"}}
	e, _, store := newTestEngine(t, chat)

	record, err := e.Discuss(context.Background(), "roadmap", []string{"alice", "bob"}, 2, "synth", time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("Discuss: %v", err)
	}
	if record.TurnCount != 4 {
		t.Fatalf("expected 4 turns (2 agents x 2 rounds), got %d", record.TurnCount)
	}
	wantOrder := []string{"alice", "bob", "alice", "bob"}
	for i, want := range wantOrder {
		if record.Turns[i].AgentID != want {
			t.Fatalf("turn %d: expected agent %q, got %q", i, want, record.Turns[i].AgentID)
		}
		if record.Turns[i].Round != (i/2)+1 {
			t.Fatalf("turn %d: expected round %d, got %d", i, (i/2)+1, record.Turns[i].Round)
		}
	}
	if record.Synthesis != "the synthesis" {
		t.Fatalf("expected synthesis content, got %q", record.Synthesis)
	}
	if record.Partial {
		t.Fatalf("expected a complete (non-partial) discussion")
	}

	saved, err := store.Get(context.Background(), record.SessionID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if saved.TurnCount != 4 {
		t.Fatalf("expected the persisted record to have 4 turns, got %d", saved.TurnCount)
	}
}

func TestTranscriptIncludesPriorTurns(t *testing.T) {
	prior := []models.Turn{{AgentID: "alice", Round: 1, Content: "opening view"}}
	got := transcript("topic", prior)
	for _, want := range []string{"topic", "alice", "opening view"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected transcript to mention %q, got:\n%s", want, got)
		}
	}
}

func TestDiscussAgentTimeoutProducesSyntheticTurn(t *testing.T) {
	chat := &fakeChat{
		replies: map[string]string{"bob": "bob's view"},
		delays:  map[string]time.Duration{"alice": 50 * time.Millisecond},
	}
	e, _, _ := newTestEngine(t, chat)

	record, err := e.Discuss(context.Background(), "topic", []string{"alice", "bob"}, 1, "", 10*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("Discuss: %v", err)
	}
	if !record.Turns[0].TimedOut {
		t.Fatalf("expected alice's turn to be marked timed out")
	}
	if record.Turns[0].Content != "[alice timed out]" {
		t.Fatalf("unexpected synthetic timeout content: %q", record.Turns[0].Content)
	}
	if record.Turns[1].TimedOut {
		t.Fatalf("expected bob's turn to succeed normally")
	}
}

func TestDiscussTotalTimeoutStopsSchedulingAndMarksPartial(t *testing.T) {
	chat := &fakeChat{delays: map[string]time.Duration{"alice": 30 * time.Millisecond, "bob": 30 * time.Millisecond}}
	e, _, _ := newTestEngine(t, chat)

	record, err := e.Discuss(context.Background(), "topic", []string{"alice", "bob"}, 5, "", time.Second, 40*time.Millisecond)
	if err != nil {
		t.Fatalf("Discuss: %v", err)
	}
	if !record.Partial {
		t.Fatalf("expected the discussion to be marked partial once the total timeout elapsed")
	}
	if record.TurnCount >= 10 {
		t.Fatalf("expected scheduling to stop well short of all 10 requested turns, got %d", record.TurnCount)
	}
}

func TestDiscussValidatesInputs(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeChat{})
	if _, err := e.Discuss(context.Background(), "", []string{"alice"}, 1, "", 0, 0); err == nil {
		t.Fatalf("expected an error for an empty topic")
	}
	if _, err := e.Discuss(context.Background(), "topic", nil, 1, "", 0, 0); err == nil {
		t.Fatalf("expected an error for no agents")
	}
}

func TestDiscussAsyncReportsStatus(t *testing.T) {
	chat := &fakeChat{replies: map[string]string{"alice": "done"}}
	e, _, _ := newTestEngine(t, chat)

	key := e.DiscussAsync("topic", []string{"alice"}, 1, "", time.Second, 5*time.Second)

	var status AsyncStatus
	var ok bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, ok = e.AsyncStatus(key)
		if ok && !status.Pending {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !ok {
		t.Fatalf("expected to find the async job")
	}
	if status.Pending {
		t.Fatalf("expected the async job to have finished")
	}
	if status.Err != nil {
		t.Fatalf("unexpected async error: %v", status.Err)
	}
	if status.Record == nil || status.Record.TurnCount != 1 {
		t.Fatalf("expected a 1-turn record, got %+v", status.Record)
	}
}

func TestAsyncStatusUnknownKey(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeChat{})
	if _, ok := e.AsyncStatus("nonexistent"); ok {
		t.Fatalf("expected an unknown tracking key to report not found")
	}
}

func TestRunTurnReportsChildSessionFailureAsSyntheticTurn(t *testing.T) {
	chat := &fakeChat{errs: map[string]error{"alice": errors.New("boom")}}
	e, _, _ := newTestEngine(t, chat)

	record, err := e.Discuss(context.Background(), "topic", []string{"alice"}, 1, "", time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("Discuss: %v", err)
	}
	if !record.Turns[0].TimedOut {
		t.Fatalf("expected the failed turn to be flagged")
	}
}
