package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariaworks/aria/pkg/models"
)

// MemoryAgentStore provides an in-memory AgentStore, used by tests and the
// local/dev run mode.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
}

// NewMemoryAgentStore creates an in-memory agent store.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{agents: make(map[string]*models.Agent)}
}

func (s *MemoryAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.AgentID == "" {
		return fmt.Errorf("agent is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.AgentID]; exists {
		return ErrAlreadyExists
	}
	cp := *agent
	s.agents[agent.AgentID] = &cp
	return nil
}

func (s *MemoryAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (s *MemoryAgentStore) List(ctx context.Context) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		cp := *agent
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *MemoryAgentStore) Update(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.AgentID == "" {
		return fmt.Errorf("agent is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.AgentID]; !exists {
		return ErrNotFound
	}
	cp := *agent
	s.agents[agent.AgentID] = &cp
	return nil
}

func (s *MemoryAgentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[id]; !exists {
		return ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

// MemoryModelStore provides an in-memory ModelStore.
type MemoryModelStore struct {
	mu     sync.RWMutex
	models map[string]*models.Model
}

// NewMemoryModelStore creates an in-memory model store.
func NewMemoryModelStore() *MemoryModelStore {
	return &MemoryModelStore{models: make(map[string]*models.Model)}
}

func (s *MemoryModelStore) Create(ctx context.Context, m *models.Model) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("model is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.models[m.ID]; exists {
		return ErrAlreadyExists
	}
	cp := *m
	s.models[m.ID] = &cp
	return nil
}

func (s *MemoryModelStore) Get(ctx context.Context, id string) (*models.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryModelStore) List(ctx context.Context) ([]*models.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Model, 0, len(s.models))
	for _, m := range s.models {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryModelStore) Update(ctx context.Context, m *models.Model) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("model is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.models[m.ID]; !exists {
		return ErrNotFound
	}
	cp := *m
	s.models[m.ID] = &cp
	return nil
}

func (s *MemoryModelStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.models[id]; !exists {
		return ErrNotFound
	}
	delete(s.models, id)
	return nil
}

// MemorySessionStore provides an in-memory SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.ChatSession)}
}

func (s *MemorySessionStore) Create(ctx context.Context, sess *models.ChatSession) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return ErrAlreadyExists
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemorySessionStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, endedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Status = status
	sess.EndedAt = endedAt
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySessionStore) IncrementCounters(ctx context.Context, id string, messageCountDelta int, tokensDelta int64, costDelta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.MessageCount += messageCountDelta
	sess.TotalTokens += tokensDelta
	sess.TotalCost += costDelta
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; !exists {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// MemoryMessageStore provides an in-memory MessageStore. Messages are kept
// in append order per session, mirroring the append-only log invariant.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string][]*models.ChatMessage
}

// NewMemoryMessageStore creates an in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[string][]*models.ChatMessage)}
}

func (s *MemoryMessageStore) Append(ctx context.Context, m *models.ChatMessage) error {
	if m == nil || m.ID == "" || m.SessionID == "" {
		return fmt.Errorf("message is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.messages[m.SessionID] = append(s.messages[m.SessionID], &cp)
	return nil
}

func (s *MemoryMessageStore) List(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.messages[sessionID]
	out := make([]*models.ChatMessage, len(src))
	for i, m := range src {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// MemoryJobStore provides an in-memory JobStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.ScheduledJob
}

// NewMemoryJobStore creates an in-memory scheduled job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*models.ScheduledJob)}
}

func (s *MemoryJobStore) Create(ctx context.Context, j *models.ScheduledJob) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("job is required")
	}
	if !j.HasExactlyOneSchedule() {
		return fmt.Errorf("job must set exactly one of cron or every")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return ErrAlreadyExists
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*models.ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryJobStore) ListEnabled(ctx context.Context) ([]*models.ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ScheduledJob
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryJobStore) Update(ctx context.Context, j *models.ScheduledJob) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("job is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; !exists {
		return ErrNotFound
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *MemoryJobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; !exists {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// MemorySkillInvocationStore provides an in-memory SkillInvocationStore.
type MemorySkillInvocationStore struct {
	mu          sync.RWMutex
	invocations []*models.SkillInvocation
}

// NewMemorySkillInvocationStore creates an in-memory skill ledger.
func NewMemorySkillInvocationStore() *MemorySkillInvocationStore {
	return &MemorySkillInvocationStore{}
}

func (s *MemorySkillInvocationStore) Append(ctx context.Context, inv *models.SkillInvocation) error {
	if inv == nil || inv.ID == "" {
		return fmt.Errorf("invocation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.invocations = append(s.invocations, &cp)
	return nil
}

func (s *MemorySkillInvocationStore) ListSince(ctx context.Context, skillName string, since time.Time) ([]*models.SkillInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SkillInvocation
	for _, inv := range s.invocations {
		if skillName != "" && inv.SkillName != skillName {
			continue
		}
		if !inv.CreatedAt.IsZero() && inv.CreatedAt.Before(since) {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MemoryRoundtableStore provides an in-memory RoundtableStore.
type MemoryRoundtableStore struct {
	mu      sync.RWMutex
	records map[string]*models.RoundtableRecord
}

// NewMemoryRoundtableStore creates an in-memory roundtable record store.
func NewMemoryRoundtableStore() *MemoryRoundtableStore {
	return &MemoryRoundtableStore{records: make(map[string]*models.RoundtableRecord)}
}

func (s *MemoryRoundtableStore) Save(ctx context.Context, r *models.RoundtableRecord) error {
	if r == nil || r.SessionID == "" {
		return fmt.Errorf("roundtable record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records[r.SessionID] = &cp
	return nil
}

func (s *MemoryRoundtableStore) Get(ctx context.Context, sessionID string) (*models.RoundtableRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// NewMemoryStores constructs a StoreSet backed entirely by memory, used by
// tests and by `aria serve --store memory` local/dev runs.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Agents:      NewMemoryAgentStore(),
		Models:      NewMemoryModelStore(),
		Sessions:    NewMemorySessionStore(),
		Messages:    NewMemoryMessageStore(),
		Jobs:        NewMemoryJobStore(),
		Skills:      NewMemorySkillInvocationStore(),
		Roundtables: NewMemoryRoundtableStore(),
	}
}
