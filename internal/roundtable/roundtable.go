// Package roundtable implements spec.md §4.6's Roundtable Engine: a
// strictly sequential, fixed-order multi-agent discussion built on top of
// the Chat Engine — each agent's turn is one ephemeral, single-shot chat
// session, never a long-lived one. Grounded on the teacher's
// internal/multiagent/orchestrator.go round-structuring shape, narrowed
// from the teacher's capability-routed parallel handoff to the spec's
// fixed agent order with no fan-out (determinism requirement).
package roundtable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariaworks/aria/internal/config"
	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/internal/sessions"
	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

// ChatEngine is the narrow surface Roundtable needs from
// internal/chatengine — an interface so tests can substitute a fake
// without depending on chatengine's own dependency graph.
type ChatEngine interface {
	SendMessage(ctx context.Context, sessionID, userContent string, enableTools, enableThinking bool) (*models.ChatMessage, error)
}

// Engine runs discuss()/discuss_async() over a fixed agent roster.
type Engine struct {
	sessions *sessions.Engine
	chat     ChatEngine
	store    storage.RoundtableStore
	cfg      config.RoundtableConfig
	now      func() time.Time

	async *asyncJobs
}

// New constructs an Engine.
func New(sessionEngine *sessions.Engine, chat ChatEngine, store storage.RoundtableStore, cfg config.RoundtableConfig) *Engine {
	return &Engine{
		sessions: sessionEngine,
		chat:     chat,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		async:    newAsyncJobs(),
	}
}

// Discuss runs one fixed-order, multi-round discussion among agentIDs and
// returns the persisted RoundtableRecord, per spec.md §4.6's algorithm.
func (e *Engine) Discuss(ctx context.Context, topic string, agentIDs []string, rounds int, synthesizerID string, agentTimeout, totalTimeout time.Duration) (*models.RoundtableRecord, error) {
	if topic == "" {
		return nil, errkind.New(errkind.Validation, "topic is required")
	}
	if len(agentIDs) == 0 {
		return nil, errkind.New(errkind.Validation, "at least one agent_id is required")
	}
	if rounds <= 0 {
		rounds = 1
	}
	if agentTimeout <= 0 {
		agentTimeout = e.defaultAgentTimeout()
	}
	if totalTimeout <= 0 {
		totalTimeout = e.defaultTotalTimeout()
	}

	parentOwner := synthesizerID
	if parentOwner == "" {
		parentOwner = agentIDs[0]
	}
	parent, err := e.sessions.CreateSession(ctx, parentOwner, models.SessionTypeRoundtable, map[string]any{
		"topic":        topic,
		"participants": agentIDs,
	})
	if err != nil {
		return nil, err
	}

	record := &models.RoundtableRecord{
		SessionID:       parent.ID,
		Topic:           topic,
		Participants:    agentIDs,
		RoundsRequested: rounds,
		SynthesizerID:   synthesizerID,
	}

	start := e.now()
	deadline := start.Add(totalTimeout)

roundLoop:
	for round := 1; round <= rounds; round++ {
		for position, agentID := range agentIDs {
			select {
			case <-ctx.Done():
				record.Partial = true
				break roundLoop
			default:
			}
			if e.now().After(deadline) {
				record.Partial = true
				break roundLoop
			}

			turn := e.runTurn(ctx, agentID, topic, record.Turns, round, position, agentTimeout)
			record.Turns = append(record.Turns, turn)

			if err := e.sessions.AppendMessage(ctx, &models.ChatMessage{
				SessionID: parent.ID,
				Role:      models.RoleAssistant,
				Content:   turn.Content,
				AgentID:   agentID,
			}, sessions.AppendOptions{}); err != nil {
				return nil, err
			}
		}
	}

	record.TurnCount = len(record.Turns)
	record.Synthesis = e.runSynthesis(ctx, synthesizerID, topic, record.Turns, agentTimeout)
	record.TotalDurationMs = e.now().Sub(start).Milliseconds()

	if err := e.store.Save(ctx, record); err != nil {
		return nil, err
	}
	_ = e.sessions.EndSession(context.Background(), parent.ID, models.SessionStatusCompleted)
	return record, nil
}

// runTurn gives one agent a single ephemeral turn: a fresh child session
// sees the topic and every prior turn, contributes one message, and the
// child session is discarded — only the parent roundtable session and the
// returned Turn persist. A per-turn timeout or failure produces a
// synthetic, clearly marked turn rather than aborting the discussion, per
// spec.md §4.6's "per-turn timeout → synthetic turn" rule.
func (e *Engine) runTurn(ctx context.Context, agentID, topic string, prior []models.Turn, round, position int, timeout time.Duration) models.Turn {
	child, err := e.sessions.CreateSession(ctx, agentID, models.SessionTypeInteractive, map[string]any{"roundtable_round": round})
	if err != nil {
		return models.Turn{AgentID: agentID, Round: round, Position: position, Content: fmt.Sprintf("[%s failed to join: %s]", agentID, err), TimedOut: true}
	}
	defer func() { _ = e.sessions.DeleteSession(context.Background(), child.ID) }()

	turnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.now()
	msg, err := e.chat.SendMessage(turnCtx, child.ID, transcript(topic, prior), false, false)
	duration := e.now().Sub(start)

	if err != nil {
		if errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
			return models.Turn{AgentID: agentID, Round: round, Position: position, Content: fmt.Sprintf("[%s timed out]", agentID), DurationMs: duration.Milliseconds(), TimedOut: true}
		}
		return models.Turn{AgentID: agentID, Round: round, Position: position, Content: fmt.Sprintf("[%s error: %s]", agentID, err), DurationMs: duration.Milliseconds(), TimedOut: true}
	}
	return models.Turn{AgentID: agentID, Round: round, Position: position, Content: msg.Content, DurationMs: duration.Milliseconds()}
}

// runSynthesis runs the synthesizer once over every turn gathered so far,
// including when the discussion ended partial. An empty synthesizerID, a
// session failure, or a timeout all yield an empty synthesis rather than
// failing the whole discuss() call — the turns themselves are the
// valuable artifact; the synthesis is best-effort on top of them.
func (e *Engine) runSynthesis(ctx context.Context, synthesizerID, topic string, turns []models.Turn, timeout time.Duration) string {
	if synthesizerID == "" || len(turns) == 0 {
		return ""
	}
	child, err := e.sessions.CreateSession(ctx, synthesizerID, models.SessionTypeInteractive, nil)
	if err != nil {
		return ""
	}
	defer func() { _ = e.sessions.DeleteSession(context.Background(), child.ID) }()

	turnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := e.chat.SendMessage(turnCtx, child.ID, synthesisPrompt(topic, turns), false, false)
	if err != nil {
		return ""
	}
	return msg.Content
}

func (e *Engine) defaultAgentTimeout() time.Duration {
	if e.cfg.DefaultAgentTimeout > 0 {
		return e.cfg.DefaultAgentTimeout
	}
	return 60 * time.Second
}

func (e *Engine) defaultTotalTimeout() time.Duration {
	if e.cfg.DefaultTotalTimeout > 0 {
		return e.cfg.DefaultTotalTimeout
	}
	return 10 * time.Minute
}

// transcript renders the topic and every prior turn into the prompt one
// agent sees before contributing, in spec.md §4.6's "sees all prior
// turns" shape.
func transcript(topic string, prior []models.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Discussion topic: %s\n", topic)
	if len(prior) == 0 {
		b.WriteString("\nYou are speaking first. Share your opening view.")
		return b.String()
	}
	b.WriteString("\nPrior turns:\n")
	for _, t := range prior {
		fmt.Fprintf(&b, "[round %d] %s: %s\n", t.Round, t.AgentID, t.Content)
	}
	b.WriteString("\nContribute your turn, building on what has been said.")
	return b.String()
}

func synthesisPrompt(topic string, turns []models.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Discussion topic: %s\n\nFull transcript:\n", topic)
	for _, t := range turns {
		fmt.Fprintf(&b, "[round %d] %s: %s\n", t.Round, t.AgentID, t.Content)
	}
	b.WriteString("\nSynthesize the discussion above into a single conclusion.")
	return b.String()
}
