// Package agent drives the multi-round exchange with the model: build
// context from the documents, invoke the model, execute any tool calls
// it requests, feed the results back, and repeat until the model stops
// asking for tools or the round budget runs out. One run serves one
// job, executed off the request path; everything the run learns is
// recorded on the job through the registry.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthward/larder/internal/docstore"
	"github.com/hearthward/larder/internal/events"
	"github.com/hearthward/larder/internal/expiry"
	"github.com/hearthward/larder/internal/jobs"
	"github.com/hearthward/larder/internal/llm"
	"github.com/hearthward/larder/internal/tools"
	"github.com/hearthward/larder/internal/usage"
)

// Run-loop budgets. Tests shrink the backoff.
const (
	defaultMaxRounds   = 5
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
)

// noKeyMessage is returned to the dashboard when no credential is
// configured. It points at the add-on settings page, so keep the
// wording in sync with the dashboard docs.
const noKeyMessage = "Claude API key not configured. Go to Settings → Add-ons → Meal Planner → Configuration."

// fallbackResponse stands in when the model saved its work through
// tools but produced no closing text.
const fallbackResponse = "Done — files updated."

// ClientSource hands out a model client for the current credential.
// Satisfied by llm.Factory.
type ClientSource interface {
	Client() (llm.Client, error)
}

// UsageRecorder persists per-run token accounting. Satisfied by
// usage.Store.
type UsageRecorder interface {
	Record(ctx context.Context, run usage.Run) error
}

// Orchestrator runs assistant jobs against the document store.
type Orchestrator struct {
	store    *docstore.Store
	executor *tools.Executor
	clients  ClientSource
	registry *jobs.Registry
	logger   *slog.Logger

	// Model and MaxTokens configure every model call.
	Model     string
	MaxTokens int

	// Usage and Bus are optional; a nil Bus is safe to publish to and a
	// nil Usage skips accounting.
	Usage UsageRecorder
	Bus   *events.Bus

	maxRounds   int
	maxAttempts int
	backoffBase time.Duration
	now         func() time.Time
}

// New creates an Orchestrator with the default budgets.
func New(store *docstore.Store, executor *tools.Executor, clients ClientSource, registry *jobs.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:       store,
		executor:    executor,
		clients:     clients,
		registry:    registry,
		logger:      logger,
		maxRounds:   defaultMaxRounds,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		now:         time.Now,
	}
}

// Run drives one job to completion or error. kind labels the run for
// usage accounting (chat, action, import, ask). All failures land on
// the job; Run never propagates them because the submitting caller has
// already returned.
//
// Tools already executed stay committed even when a later round fails —
// there is no rollback. The documents the tools touched are each
// internally consistent, and the next run simply sees the newer state.
func (o *Orchestrator) Run(ctx context.Context, jobID, kind, userMessage string) {
	client, err := o.clients.Client()
	if err != nil {
		if errors.Is(err, llm.ErrNoCredential) {
			o.failJob(ctx, jobID, kind, noKeyMessage, runStats{})
			return
		}
		o.failJob(ctx, jobID, kind, err.Error(), runStats{})
		return
	}

	// Whatever happens below, leave the status document's expiry alerts
	// fresh: tool calls may have changed the inventory before a later
	// round failed.
	defer o.refreshExpiryAlerts(ctx)

	start := o.now()
	stats := runStats{}

	contextBlock := BuildContext(o.store, o.now())
	messages := []llm.Message{{
		Role:    llm.RoleUser,
		Content: contextBlock + "\n\nUser request: " + userMessage,
	}}

	resp, err := o.chatWithRetry(ctx, client, messages)
	if err != nil {
		o.failJob(ctx, jobID, kind, err.Error(), stats)
		return
	}
	stats.observe(resp)

	for round := 0; round < o.maxRounds && resp.WantsTools(); round++ {
		stats.rounds++

		results := make([]llm.Message, 0, len(resp.Message.ToolCalls))
		for _, call := range resp.Message.ToolCalls {
			result := o.executor.Execute(call.Name, call.Input)
			o.registry.AppendTool(jobID, jobs.ToolRecord{
				Tool:    call.Name,
				Success: result.Success,
				Message: result.Message,
				Error:   result.Error,
			})
			o.Bus.Publish(events.Event{
				Timestamp: o.now(),
				Source:    events.SourceAgent,
				Kind:      events.KindToolExecuted,
				Data:      map[string]any{"job_id": jobID, "tool": call.Name, "ok": result.Success},
			})
			stats.tools++

			payload, merr := resultJSON(result)
			if merr != nil {
				payload = fmt.Sprintf(`{"success":false,"error":%q}`, merr.Error())
			}
			results = append(results, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    payload,
			})
		}

		messages = append(messages, resp.Message)
		messages = append(messages, results...)

		resp, err = client.Chat(ctx, o.request(messages))
		if err != nil {
			o.failJob(ctx, jobID, kind, err.Error(), stats)
			return
		}
		stats.observe(resp)
	}

	text := resp.Message.Content
	if text == "" {
		text = fallbackResponse
	}

	o.registry.Complete(jobID, text, RenderHTML(text))
	o.recordUsage(ctx, jobID, kind, jobs.StatusComplete, stats, o.now().Sub(start))
	o.Bus.Publish(events.Event{
		Timestamp: o.now(),
		Source:    events.SourceAgent,
		Kind:      events.KindJobComplete,
		Data: map[string]any{
			"job_id":     jobID,
			"rounds":     stats.rounds,
			"tools":      stats.tools,
			"tokens_in":  stats.inputTokens,
			"tokens_out": stats.outputTokens,
			"elapsed_ms": o.now().Sub(start).Milliseconds(),
		},
	})
	o.logger.Info("run complete",
		"job_id", jobID,
		"kind", kind,
		"rounds", stats.rounds,
		"tools", stats.tools,
		"input_tokens", stats.inputTokens,
		"output_tokens", stats.outputTokens,
	)
}

// chatWithRetry calls the model with bounded retry and exponential
// backoff. Only the opening call of a run is retried; once tools have
// executed, a retry could double-apply them.
func (o *Orchestrator) chatWithRetry(ctx context.Context, client llm.Client, messages []llm.Message) (*llm.ChatResponse, error) {
	delay := o.backoffBase
	var lastErr error

	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		resp, err := client.Chat(ctx, o.request(messages))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == o.maxAttempts-1 {
			break
		}
		o.logger.Warn("model call failed, retrying", "attempt", attempt+1, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return nil, lastErr
}

func (o *Orchestrator) request(messages []llm.Message) llm.Request {
	return llm.Request{
		Model:     o.Model,
		MaxTokens: o.MaxTokens,
		System:    systemPrompt,
		Tools:     catalogTools(),
		Messages:  messages,
	}
}

func (o *Orchestrator) failJob(ctx context.Context, jobID, kind, msg string, stats runStats) {
	o.logger.Error("run failed", "job_id", jobID, "kind", kind, "error", msg)
	o.registry.Fail(jobID, msg)
	o.recordUsage(ctx, jobID, kind, jobs.StatusError, stats, 0)
	o.Bus.Publish(events.Event{
		Timestamp: o.now(),
		Source:    events.SourceAgent,
		Kind:      events.KindJobError,
		Data:      map[string]any{"job_id": jobID, "error": msg},
	})
}

func (o *Orchestrator) recordUsage(ctx context.Context, jobID, kind, status string, stats runStats, elapsed time.Duration) {
	if o.Usage == nil {
		return
	}
	err := o.Usage.Record(ctx, usage.Run{
		ID:           jobID,
		Kind:         kind,
		Model:        o.Model,
		Rounds:       stats.rounds,
		InputTokens:  stats.inputTokens,
		OutputTokens: stats.outputTokens,
		DurationMS:   elapsed.Milliseconds(),
		Status:       status,
	})
	if err != nil {
		o.logger.Warn("usage record failed", "job_id", jobID, "error", err)
	}
}

func (o *Orchestrator) refreshExpiryAlerts(_ context.Context) {
	today := o.now()
	alerts, err := expiry.RefreshStatus(o.store, today)
	if err != nil {
		o.logger.Error("expiry alert refresh failed", "error", err)
		return
	}
	o.Bus.Publish(events.Event{
		Timestamp: today,
		Source:    events.SourceExpiry,
		Kind:      events.KindExpiryScan,
		Data: map[string]any{
			"red":   len(alerts.Red),
			"amber": len(alerts.Amber),
			"green": len(alerts.Green),
		},
	})
}

// catalogTools adapts the executor's catalog to the model API shape.
func catalogTools() []llm.Tool {
	specs := tools.Catalog()
	out := make([]llm.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.Tool{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	return out
}

// runStats accumulates per-run accounting across model calls.
type runStats struct {
	rounds       int
	tools        int
	inputTokens  int
	outputTokens int
}

func (s *runStats) observe(resp *llm.ChatResponse) {
	s.inputTokens += resp.InputTokens
	s.outputTokens += resp.OutputTokens
}
