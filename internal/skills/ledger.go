package skills

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ariaworks/aria/internal/storage"
	"github.com/ariaworks/aria/pkg/models"
)

// Ledger is the append-only skill invocation fact table plus its two
// read-only aggregations, health() and expert_for() (spec.md §4.3).
type Ledger struct {
	store storage.SkillInvocationStore
	now   func() time.Time
}

// NewLedger wraps a SkillInvocationStore.
func NewLedger(store storage.SkillInvocationStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Record appends one invocation row. Called by the Chat Engine's tool
// dispatch around every skill execution.
func (l *Ledger) Record(ctx context.Context, skillName, toolName string, duration time.Duration, success bool, errorType string, tokensUsed int, modelUsed string) error {
	return l.store.Append(ctx, &models.SkillInvocation{
		ID:         uuid.NewString(),
		SkillName:  skillName,
		ToolName:   toolName,
		DurationMs: duration.Milliseconds(),
		Success:    success,
		ErrorType:  errorType,
		TokensUsed: tokensUsed,
		ModelUsed:  modelUsed,
		CreatedAt:  l.now(),
	})
}

// Health returns a per-skill reliability report over the trailing window.
func (l *Ledger) Health(ctx context.Context, hours int) (map[string]*models.SkillHealth, error) {
	since := l.now().Add(-time.Duration(hours) * time.Hour)
	invocations, err := l.store.ListSince(ctx, "", since)
	if err != nil {
		return nil, err
	}

	bySkill := make(map[string][]*models.SkillInvocation)
	for _, inv := range invocations {
		bySkill[inv.SkillName] = append(bySkill[inv.SkillName], inv)
	}

	reports := make(map[string]*models.SkillHealth, len(bySkill))
	for name, invs := range bySkill {
		reports[name] = summarize(name, invs)
	}
	return reports, nil
}

func summarize(name string, invs []*models.SkillInvocation) *models.SkillHealth {
	report := &models.SkillHealth{SkillName: name, Invocations: len(invs)}
	if len(invs) == 0 {
		report.Status = models.SkillHealthy
		return report
	}

	var successes int
	var totalDuration int64
	durations := make([]int64, 0, len(invs))
	var lastError string
	var lastAt time.Time
	for _, inv := range invs {
		if inv.Success {
			successes++
		} else if inv.ErrorType != "" && (lastError == "" || inv.CreatedAt.After(lastAt)) {
			lastError = inv.ErrorType
			lastAt = inv.CreatedAt
		}
		totalDuration += inv.DurationMs
		durations = append(durations, inv.DurationMs)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	report.SuccessRate = float64(successes) / float64(len(invs))
	report.AvgDurationMs = float64(totalDuration) / float64(len(invs))
	report.P95DurationMs = float64(percentile(durations, 0.95))
	report.LastError = lastError
	report.Status = classify(report.SuccessRate, report.P95DurationMs)
	return report
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func classify(successRate float64, p95Ms float64) models.SkillHealthStatus {
	switch {
	case successRate < 0.7:
		return models.SkillUnhealthy
	case successRate < 0.9:
		return models.SkillDegraded
	case p95Ms > 5000:
		return models.SkillSlow
	default:
		return models.SkillHealthy
	}
}

const (
	expertHalfLife  = 7 * 24 * time.Hour
	expertLookback  = 30 * 24 * time.Hour
	expertColdStart = 0.5
)

// ExpertFor scores each candidate skill's fitness for taskType by a
// recency-weighted success rate over the last 30 days, with a 7-day
// half-life exponential decay (spec.md §4.3). taskType is matched against
// tool_name — the ledger has no separate task_type column, and tool_name
// is the closest durable proxy for "what kind of work was this" (see
// DESIGN.md's open-question resolution for this component).
func (l *Ledger) ExpertFor(ctx context.Context, taskType string, candidates []string) (map[string]float64, error) {
	since := l.now().Add(-expertLookback)
	scores := make(map[string]float64, len(candidates))
	now := l.now()

	for _, candidate := range candidates {
		invs, err := l.store.ListSince(ctx, candidate, since)
		if err != nil {
			return nil, err
		}

		var weightedSuccess, totalWeight float64
		for _, inv := range invs {
			if taskType != "" && inv.ToolName != taskType {
				continue
			}
			age := now.Sub(inv.CreatedAt)
			weight := math.Exp(-math.Ln2 * age.Hours() / expertHalfLife.Hours())
			totalWeight += weight
			if inv.Success {
				weightedSuccess += weight
			}
		}

		if totalWeight == 0 {
			scores[candidate] = expertColdStart
			continue
		}
		scores[candidate] = weightedSuccess / totalWeight
	}
	return scores, nil
}

// DecayPheromoneScores recomputes every agent's pheromone_score as the
// average of expert_for across its own declared skills. spec.md §3 defines
// Agent.pheromone_score but not how it moves; this is the decay job that
// keeps it live, grounded on ExpertFor's own half-life decay. Agents with
// no declared skills are left at their current score — there is no ledger
// history to score them against.
func (l *Ledger) DecayPheromoneScores(ctx context.Context, agents storage.AgentStore) error {
	all, err := agents.List(ctx)
	if err != nil {
		return err
	}
	for _, agent := range all {
		if len(agent.Skills) == 0 {
			continue
		}
		scores, err := l.ExpertFor(ctx, "", agent.Skills)
		if err != nil {
			return err
		}
		if len(scores) == 0 {
			continue
		}
		var sum float64
		for _, score := range scores {
			sum += score
		}
		agent.PheromoneScore = sum / float64(len(scores))
		if err := agents.Update(ctx, agent); err != nil {
			return err
		}
	}
	return nil
}

// LegacyInvocation is one row from a pre-ledger invocation source (e.g. the
// teacher's gateway execution logs) to be backfilled into the ledger.
type LegacyInvocation struct {
	SkillName  string
	ToolName   string
	DurationMs int64
	Success    bool
	ErrorType  string
	TokensUsed int
	ModelUsed  string
	CreatedAt  time.Time
}

func legacyKey(l LegacyInvocation) string {
	return l.SkillName + "\x00" + l.ToolName + "\x00" + l.CreatedAt.UTC().Format(time.RFC3339Nano)
}

// Backfill performs a one-shot, idempotent import of legacy invocation rows
// at startup. Rows are keyed by (skill_name, tool_name, created_at); rows
// already present in the ledger's lookback window are skipped, so re-running
// Backfill against the same legacy source is a no-op after the first run.
func (l *Ledger) Backfill(ctx context.Context, legacy []LegacyInvocation) (imported int, err error) {
	if len(legacy) == 0 {
		return 0, nil
	}

	var oldest time.Time
	for _, li := range legacy {
		if oldest.IsZero() || li.CreatedAt.Before(oldest) {
			oldest = li.CreatedAt
		}
	}

	existing, err := l.store.ListSince(ctx, "", oldest)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, inv := range existing {
		seen[legacyKey(LegacyInvocation{SkillName: inv.SkillName, ToolName: inv.ToolName, CreatedAt: inv.CreatedAt})] = true
	}

	for _, li := range legacy {
		key := legacyKey(li)
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := l.store.Append(ctx, &models.SkillInvocation{
			ID:         uuid.NewString(),
			SkillName:  li.SkillName,
			ToolName:   li.ToolName,
			DurationMs: li.DurationMs,
			Success:    li.Success,
			ErrorType:  li.ErrorType,
			TokensUsed: li.TokensUsed,
			ModelUsed:  li.ModelUsed,
			CreatedAt:  li.CreatedAt,
		}); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
