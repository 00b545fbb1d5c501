package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ariaworks/aria/pkg/models"
)

func TestMemoryAgentStoreLifecycle(t *testing.T) {
	store := NewMemoryAgentStore()
	agent := &models.Agent{
		AgentID:     uuid.NewString(),
		DisplayName: "Research Agent",
		Type:        models.AgentTypeAgent,
		Model:       "gpt-5",
		Enabled:     true,
		Status:      models.AgentStatusIdle,
	}

	if err := store.Create(context.Background(), agent); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(context.Background(), agent); err != ErrAlreadyExists {
		t.Fatalf("Create() duplicate error = %v, want ErrAlreadyExists", err)
	}

	got, err := store.Get(context.Background(), agent.AgentID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DisplayName != agent.DisplayName {
		t.Fatalf("Get() display_name = %q", got.DisplayName)
	}

	agent.DisplayName = "Updated Agent"
	if err := store.Update(context.Background(), agent); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].DisplayName != "Updated Agent" {
		t.Fatalf("List() = %+v", list)
	}

	if err := store.Delete(context.Background(), agent.AgentID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(context.Background(), agent.AgentID); err != ErrNotFound {
		t.Fatalf("Get() after delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryModelStoreOrdersBySortOrder(t *testing.T) {
	store := NewMemoryModelStore()
	second := &models.Model{ID: "m2", Name: "Second", SortOrder: 2, ProxyModelString: "proxy/m2"}
	first := &models.Model{ID: "m1", Name: "First", SortOrder: 1, ProxyModelString: "proxy/m1"}

	if err := store.Create(context.Background(), second); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(context.Background(), first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "m1" || list[1].ID != "m2" {
		t.Fatalf("List() not sorted by sort_order: %+v", list)
	}
}

func TestMemorySessionStoreUpdateStatus(t *testing.T) {
	store := NewMemorySessionStore()
	sess := &models.ChatSession{
		ID:          uuid.NewString(),
		AgentID:     "agent-1",
		SessionType: models.SessionTypeInteractive,
		Status:      models.SessionStatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := store.Create(context.Background(), sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	endedAt := time.Now()
	if err := store.UpdateStatus(context.Background(), sess.ID, models.SessionStatusCompleted, &endedAt); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, err := store.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.SessionStatusCompleted {
		t.Fatalf("Get() status = %q", got.Status)
	}
	if got.EndedAt == nil {
		t.Fatalf("Get() ended_at not set")
	}
}

func TestMemoryMessageStorePreservesAppendOrder(t *testing.T) {
	store := NewMemoryMessageStore()
	sessionID := uuid.NewString()

	for i := 0; i < 3; i++ {
		msg := &models.ChatMessage{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      models.RoleUser,
			Content:   "message",
			CreatedAt: time.Now(),
		}
		if err := store.Append(context.Background(), msg); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	list, err := store.List(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
}

func TestMemoryJobStoreRejectsBothSchedules(t *testing.T) {
	store := NewMemoryJobStore()
	job := &models.ScheduledJob{
		ID:      uuid.NewString(),
		Name:    "digest",
		Cron:    "0 * * * *",
		Every:   time.Minute,
		AgentID: "agent-1",
		Enabled: true,
	}
	if err := store.Create(context.Background(), job); err == nil {
		t.Fatalf("Create() expected error for conflicting schedule fields")
	}
}

func TestMemoryJobStoreListEnabledFiltersDisabled(t *testing.T) {
	store := NewMemoryJobStore()
	enabled := &models.ScheduledJob{ID: "j1", Name: "a", Cron: "* * * * *", AgentID: "agent-1", Enabled: true}
	disabled := &models.ScheduledJob{ID: "j2", Name: "b", Cron: "* * * * *", AgentID: "agent-1", Enabled: false}

	if err := store.Create(context.Background(), enabled); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(context.Background(), disabled); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	list, err := store.ListEnabled(context.Background())
	if err != nil {
		t.Fatalf("ListEnabled() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != "j1" {
		t.Fatalf("ListEnabled() = %+v", list)
	}
}

func TestMemorySkillInvocationStoreListSince(t *testing.T) {
	store := NewMemorySkillInvocationStore()
	cutoff := time.Now()

	old := &models.SkillInvocation{ID: "i1", SkillName: "search", CreatedAt: cutoff.Add(-2 * time.Hour), Success: true}
	recent := &models.SkillInvocation{ID: "i2", SkillName: "search", CreatedAt: cutoff.Add(time.Minute), Success: true}

	if err := store.Append(context.Background(), old); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(context.Background(), recent); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	list, err := store.ListSince(context.Background(), "search", cutoff)
	if err != nil {
		t.Fatalf("ListSince() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != "i2" {
		t.Fatalf("ListSince() = %+v", list)
	}
}

func TestMemoryRoundtableStoreSaveAndGet(t *testing.T) {
	store := NewMemoryRoundtableStore()
	record := &models.RoundtableRecord{
		SessionID:       uuid.NewString(),
		Topic:           "architecture review",
		Participants:    []string{"agent-1", "agent-2"},
		RoundsRequested: 2,
	}
	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(context.Background(), record.SessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Topic != record.Topic {
		t.Fatalf("Get() topic = %q", got.Topic)
	}

	if _, err := store.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("Get() missing = %v, want ErrNotFound", err)
	}
}
