package chatengine

import (
	"context"
	"errors"
	"time"

	"github.com/ariaworks/aria/internal/audit"
	"github.com/ariaworks/aria/internal/breaker"
	"github.com/ariaworks/aria/internal/errkind"
	"github.com/ariaworks/aria/internal/llmproxy"
	"github.com/ariaworks/aria/internal/observability"
	"github.com/ariaworks/aria/internal/sessions"
	"github.com/ariaworks/aria/pkg/models"
)

// runTurn drives the Idle→AwaitingLLM→(Dispatching→AwaitingLLM)*→Persisting
// loop of spec.md §4.5: call the model, and if it asks for tools, dispatch
// them and call again, bounded by max_tool_rounds.
func (e *Engine) runTurn(ctx context.Context, t *turn) (*models.ChatMessage, error) {
	for {
		current, err := e.sessions.GetSession(ctx, t.session.ID)
		if err != nil {
			return nil, err
		}
		if current.Status != models.SessionStatusActive {
			return nil, errkind.ErrSessionTerminatedMid
		}
		t.session = current

		msgs, err := e.buildPrompt(ctx, t)
		if err != nil {
			return nil, err
		}

		resp, err := e.callModel(ctx, t, msgs)
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			return e.persistFinalAssistant(ctx, t, resp)
		}

		t.toolRounds++
		if t.toolRounds > e.maxToolRounds() {
			return nil, errkind.ErrToolLoopExhausted
		}

		assistantMsg := &models.ChatMessage{
			SessionID: t.session.ID,
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
			Model:     t.model.ID,
			LatencyMs: resp.LatencyMs,
		}
		if err := e.sessions.AppendMessage(ctx, assistantMsg, sessions.AppendOptions{SkipLock: true}); err != nil {
			return nil, err
		}

		results, err := e.dispatchTools(ctx, t, resp.ToolCalls)
		toolMsg := &models.ChatMessage{
			SessionID:   t.session.ID,
			Role:        models.RoleTool,
			ToolResults: results,
			AgentID:     t.agent.AgentID,
		}
		if appendErr := e.sessions.AppendMessage(ctx, toolMsg, sessions.AppendOptions{SkipLock: true}); appendErr != nil {
			return nil, appendErr
		}
		if err != nil {
			return nil, err
		}
	}
}

// callModel runs one LLM call under the model's circuit breaker, falling
// back to agent.fallback_model (at most once) on an open circuit or a
// classified-timeout failure, per spec.md §4.5 step 2 and the failure
// table's timeout row.
func (e *Engine) callModel(ctx context.Context, t *turn, msgs []llmproxy.Message) (*llmproxy.Response, error) {
	cb := e.breakers.Get("model:" + t.model.ID)
	if cb.IsOpen() {
		return e.fallback(ctx, t, msgs, errkind.ErrUpstreamUnavailable)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.modelCallBudget(t))
	defer cancel()

	req := llmproxy.Request{
		Model:       modelTarget(t.model),
		Messages:    msgs,
		Temperature: t.agent.Temperature,
		MaxTokens:   t.agent.MaxTokens,
	}
	if t.enableTools {
		req.Tools = e.toolSchemas(t.agent.Skills)
	}

	resp, err := breaker.ExecuteWithResult(cb, callCtx, func(ctx context.Context) (*llmproxy.Response, error) {
		return e.llm.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			return e.fallback(ctx, t, msgs, errkind.ErrUpstreamUnavailable)
		}
		if errkind.Is(err, errkind.UpstreamTimeout) {
			return e.fallback(ctx, t, msgs, err)
		}
		return nil, err
	}

	observability.EmitModelUsage(&observability.ModelUsageEvent{
		SessionID: t.session.ID,
		Provider:  t.model.Provider,
		Model:     t.model.ID,
		Usage: observability.UsageDetails{
			Input:  int64(resp.TokensInput),
			Output: int64(resp.TokensOutput),
			Total:  int64(resp.TokensInput + resp.TokensOutput),
		},
		CostUSD:    estimateCost(t.model, resp),
		DurationMs: resp.LatencyMs,
	})

	return resp, nil
}

// fallback retries the call once against agent.fallback_model, per
// spec.md §4.5's "recurse with single substitution" rule. If no fallback
// is configured, it has already been tried, or it is itself unusable, the
// original cause is returned.
func (e *Engine) fallback(ctx context.Context, t *turn, msgs []llmproxy.Message, cause error) (*llmproxy.Response, error) {
	if t.fallbackTried || t.agent.FallbackModel == "" {
		return nil, cause
	}
	fallbackModel, err := e.models.Get(ctx, t.agent.FallbackModel)
	if err != nil || !fallbackModel.Enabled {
		return nil, cause
	}
	t.fallbackTried = true
	t.model = fallbackModel
	return e.callModel(ctx, t, msgs)
}

func (e *Engine) modelCallBudget(t *turn) time.Duration {
	budget := agentTimeout(t.agent)
	if remaining := t.remaining(e.now()); remaining < budget {
		budget = remaining
	}
	return budget
}

func modelTarget(model *models.Model) string {
	if model.ProxyModelString != "" {
		return model.ProxyModelString
	}
	return model.ID
}

func estimateCost(model *models.Model, resp *llmproxy.Response) float64 {
	if model == nil || resp == nil {
		return 0
	}
	return float64(resp.TokensInput)*model.CostInput/1000 + float64(resp.TokensOutput)*model.CostOutput/1000
}

func (e *Engine) toolSchemas(skillNames []string) []llmproxy.ToolSchema {
	skills := e.skills.ToolsFor(skillNames)
	out := make([]llmproxy.ToolSchema, 0, len(skills))
	for _, s := range skills {
		out = append(out, llmproxy.ToolSchema{
			Name:        s.ToolName,
			Description: s.Description,
			Parameters:  s.Schema,
		})
	}
	return out
}

// dispatchTools executes every requested tool call in order, recording a
// ledger invocation and an audit log entry for each, under a per-skill
// circuit breaker and a deadline of min(remaining turn budget,
// defaultToolTimeout), per spec.md §4.5 step 6. It returns every result
// gathered so far even when one call fails, along with that failure, so
// the caller can still persist a tool message for the calls that
// completed before the error.
func (e *Engine) dispatchTools(ctx context.Context, t *turn, calls []models.ToolCall) ([]models.ToolResult, error) {
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		result, err := e.dispatchOne(ctx, t, call)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Engine) dispatchOne(ctx context.Context, t *turn, call models.ToolCall) (models.ToolResult, error) {
	handler, skill, ok := e.skills.Get(call.Name)
	if !ok {
		return models.ToolResult{ToolCallID: call.ID, Content: "unknown tool", IsError: true}, nil
	}

	budget := defaultToolTimeout
	if remaining := t.remaining(e.now()); remaining < budget {
		budget = remaining
	}
	if budget <= 0 {
		return models.ToolResult{ToolCallID: call.ID, Content: "tool deadline exceeded", IsError: true}, errkind.ErrToolDeadlineExceeded
	}

	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	auditLog := audit.GetGlobalLogger()
	if auditLog != nil {
		auditLog.LogToolInvocation(callCtx, call.Name, call.ID, call.Arguments, t.session.ID)
	}

	start := e.now()
	content, err := breaker.ExecuteWithResult(e.breakers.Get("skill:"+call.Name), callCtx, func(ctx context.Context) (string, error) {
		return handler(ctx, call.Arguments)
	})
	duration := e.now().Sub(start)

	success := err == nil
	errType := ""
	if err != nil {
		errType = string(errkind.KindOf(err))
	}
	_ = e.ledger.Record(ctx, skill.Name, call.Name, duration, success, errType, 0, t.model.ID)
	if auditLog != nil {
		auditLog.LogToolCompletion(callCtx, call.Name, call.ID, success, content, duration, t.session.ID)
	}

	if err != nil {
		isDeadline := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		result := models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true, DurationMs: duration.Milliseconds()}
		if isDeadline {
			return result, errkind.ErrToolDeadlineExceeded
		}
		return result, nil
	}

	return models.ToolResult{ToolCallID: call.ID, Content: content, DurationMs: duration.Milliseconds()}, nil
}

// persistFinalAssistant writes the turn's terminal assistant row — no
// tool_calls left to satisfy — per spec.md §4.5 step 7.
func (e *Engine) persistFinalAssistant(ctx context.Context, t *turn, resp *llmproxy.Response) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		SessionID:    t.session.ID,
		Role:         models.RoleAssistant,
		Content:      resp.Content,
		Model:        t.model.ID,
		AgentID:      t.agent.AgentID,
		TokensInput:  resp.TokensInput,
		TokensOutput: resp.TokensOutput,
		Cost:         estimateCost(t.model, resp),
		LatencyMs:    resp.LatencyMs,
	}
	if t.enableThink {
		msg.Thinking = resp.Thinking
	}
	if err := e.sessions.AppendMessage(ctx, msg, sessions.AppendOptions{SkipLock: true}); err != nil {
		return nil, err
	}
	return msg, nil
}
