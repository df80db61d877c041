// Package orchestrator is the sole owner of the "send prompt -> record
// health outcome" transaction (spec.md §4.3, §5): it coordinates the
// router, the provider adapter and the workflow store, and is the only
// component allowed to call router.RecordSuccess/RecordFailure.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/agentgateway/gateway/adapter"
	"github.com/agentgateway/gateway/config"
	"github.com/agentgateway/gateway/gwerr"
	"github.com/agentgateway/gateway/internal/metrics"
	"github.com/agentgateway/gateway/internal/telemetry"
	"github.com/agentgateway/gateway/router"
	"github.com/agentgateway/gateway/workflow"
)

var tracer = otel.Tracer(telemetry.Tracer)

// endSpan records err on span (if non-nil) and ends it. A small helper
// so every top-level operation reports its outcome the same way.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Orchestrator wires the router, adapter and workflow store together.
type Orchestrator struct {
	router  *router.Router
	adapter adapter.Adapter
	store   *workflow.Store
	cfg     config.OrchestratorConfig
	sem     *semaphore.Weighted
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New builds an Orchestrator. A nil logger falls back to zap.NewNop(); a
// nil metrics Collector disables recording rather than panicking, so
// callers that don't care about Prometheus can skip WithMetrics.
func New(r *router.Router, a adapter.Adapter, store *workflow.Store, cfg config.OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Orchestrator{
		router:  r,
		adapter: a,
		store:   store,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:  logger,
	}
}

// WithMetrics attaches a Collector that promptOne and ExecuteWorkflowStep
// report to. Returns o for chaining at construction time.
func (o *Orchestrator) WithMetrics(c *metrics.Collector) *Orchestrator {
	o.metrics = c
	return o
}

// ProviderResult is one provider's outcome from a parallel or consensus
// call: either Text is set, or Err is, never both.
type ProviderResult struct {
	Provider router.Provider `json:"provider"`
	Text     string          `json:"text"`
	Err      string          `json:"error,omitempty"`
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.Timeout)
}

// Prompt routes text to the best available provider for task and returns
// its response. This is the transaction spec.md §4.3 names explicitly:
// select a provider, open a session, send the prompt, record the outcome,
// close the session.
func (o *Orchestrator) Prompt(ctx context.Context, task router.TaskType, text string) (result *ProviderResult, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Prompt", trace.WithAttributes(attribute.String("task_type", string(task))))
	defer func() { endSpan(span, err) }()

	p, err := o.router.SelectBest(task)
	if err != nil {
		return nil, err
	}
	return o.promptOne(ctx, p, text)
}

// PromptProvider sends text to an explicitly named provider, bypassing
// selection but still recording the health outcome.
func (o *Orchestrator) PromptProvider(ctx context.Context, p router.Provider, text string) (result *ProviderResult, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.PromptProvider", trace.WithAttributes(attribute.String("provider", string(p))))
	defer func() { endSpan(span, err) }()
	return o.promptOne(ctx, p, text)
}

// promptOne is the single-provider transaction every other operation in
// this file is built from.
func (o *Orchestrator) promptOne(ctx context.Context, p router.Provider, text string) (*ProviderResult, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	session, err := o.adapter.Open(ctx, p)
	if err != nil {
		o.router.RecordFailure(p)
		o.recordLLM(p, "error", time.Since(start), 0, 0)
		return nil, gwerr.Wrap(gwerr.KindProvider, fmt.Sprintf("open session for %s", p), err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			o.logger.Warn("adapter session close failed",
				zap.String("provider", string(p)), zap.Error(cerr))
		}
	}()

	resp, err := session.Prompt(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			o.router.RecordFailure(p)
			o.recordLLM(p, "timeout", time.Since(start), 0, 0)
			return nil, gwerr.Wrap(gwerr.KindTimeout, fmt.Sprintf("prompt to %s timed out", p), ctx.Err())
		}
		o.router.RecordFailure(p)
		o.recordLLM(p, "error", time.Since(start), 0, 0)
		return nil, gwerr.Wrap(gwerr.KindProvider, fmt.Sprintf("prompt to %s failed", p), err)
	}

	o.router.RecordSuccess(p, resp.LatencyMs, uint64(resp.PromptTokens+resp.OutputTokens))
	o.recordLLM(p, "success", time.Since(start), resp.PromptTokens, resp.OutputTokens)
	return &ProviderResult{Provider: p, Text: resp.Text}, nil
}

func (o *Orchestrator) recordLLM(p router.Provider, status string, duration time.Duration, promptTokens, outputTokens int) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordLLMRequest(string(p), status, duration, promptTokens, outputTokens)
}

// ParallelPrompt sends the same prompt to each of the given providers, in
// order, per spec.md §4.3's parallel_prompt(message, providers[]). Despite
// the name, delivery may run sequentially or concurrently depending on the
// adapter (spec.md §9: "the 'parallel' prompt is actually serial in the
// source" — we improve on that using a bounded semaphore, but preserve
// the spec's ordering guarantee: results are always returned in the same
// order providers were given, independent of completion order). A
// per-provider failure does not abort the batch; it is recorded in that
// slot's Err field.
func (o *Orchestrator) ParallelPrompt(ctx context.Context, providers []router.Provider, text string) (results []ProviderResult, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.ParallelPrompt", trace.WithAttributes(attribute.Int("provider_count", len(providers))))
	defer func() { endSpan(span, err) }()

	if len(providers) == 0 {
		return nil, gwerr.New(gwerr.KindNoProviders, "no providers given")
	}
	return o.fanOut(ctx, providers, text)
}

// selectForTask is the task-based shortlist selection ConsensusPrompt
// builds its explicit provider list from; it is not itself part of
// spec.md's parallel_prompt contract, which always takes an explicit
// provider list.
func (o *Orchestrator) selectForTask(task router.TaskType, n int) ([]router.Provider, error) {
	return o.router.SelectMultiple(task, n)
}

// ConsensusResult is the outcome of ConsensusPrompt (spec.md §3): the
// winning response's text, every response with the winner flagged
// selected, and the fixed placeholder agreement score spec.md §4.3/§9
// deliberately retains for API shape stability.
type ConsensusResult struct {
	ConsensusText  string                    `json:"consensus_text"`
	Responses      []router.ProviderResponse `json:"responses"`
	AgreementScore float64                   `json:"agreement_score"`
}

// ConsensusPrompt implements spec.md §4.3's consensus_prompt: select at
// least max(minProviders, 3) providers on TaskGeneral, fan the prompt out
// to all of them, and — provided at least minProviders succeeded — pick
// the success with the longest text as the winner (ties broken by result
// order). Fails with gwerr.KindNoProviders if fewer than minProviders
// providers answered.
func (o *Orchestrator) ConsensusPrompt(ctx context.Context, text string, minProviders int) (result *ConsensusResult, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.ConsensusPrompt", trace.WithAttributes(attribute.Int("min_providers", minProviders)))
	defer func() { endSpan(span, err) }()

	want := minProviders
	if want < 3 {
		want = 3
	}
	providers, err := o.selectForTask(router.TaskGeneral, want)
	if err != nil {
		return nil, err
	}

	results, err := o.ParallelPrompt(ctx, providers, text)
	if err != nil {
		return nil, err
	}

	type success struct {
		idx int
		res ProviderResult
	}
	var successes []success
	for i, r := range results {
		if r.Err == "" {
			successes = append(successes, success{i, r})
		}
	}
	if len(successes) < minProviders {
		return nil, gwerr.New(gwerr.KindNoProviders,
			fmt.Sprintf("only %d providers responded, need %d", len(successes), minProviders))
	}

	winner := successes[0]
	for _, s := range successes[1:] {
		if len(s.res.Text) > len(winner.res.Text) {
			winner = s
		}
	}

	responses := make([]router.ProviderResponse, 0, len(successes))
	for _, s := range successes {
		responses = append(responses, router.ProviderResponse{
			Provider: s.res.Provider,
			Text:     s.res.Text,
			Selected: s.idx == winner.idx,
		})
	}

	return &ConsensusResult{
		ConsensusText:  winner.res.Text,
		Responses:      responses,
		AgreementScore: 0.5,
	}, nil
}

// fanOut runs one promptOne transaction per provider, writing each result
// at its selection index regardless of completion order. A single
// provider's failure is recorded in that slot's Err field, not returned
// as the overall error — spec.md's consensus/parallel operations return
// whatever subset of providers answered rather than failing the whole
// call for one bad provider. The returned error is reserved for the
// fan-out machinery itself (e.g. the semaphore's context being canceled).
func (o *Orchestrator) fanOut(ctx context.Context, providers []router.Provider, text string) ([]ProviderResult, error) {
	results := make([]ProviderResult, len(providers))
	errCh := make(chan error, len(providers))

	for i, p := range providers {
		i, p := i, p
		if err := o.sem.Acquire(ctx, 1); err != nil {
			errCh <- err
			continue
		}
		go func() {
			defer o.sem.Release(1)
			res, err := o.promptOne(ctx, p, text)
			if err != nil {
				results[i] = ProviderResult{Provider: p, Err: err.Error()}
				errCh <- nil
				return
			}
			results[i] = *res
			errCh <- nil
		}()
	}

	var combined error
	for range providers {
		if err := <-errCh; err != nil {
			combined = multierr.Append(combined, err)
		}
	}
	close(errCh)

	return results, combined
}

// StartWorkflow creates a new workflow from a list of step configurations.
func (o *Orchestrator) StartWorkflow(steps []workflow.StepConfig) (*workflow.Workflow, error) {
	return o.store.Start(steps)
}

// GetWorkflow returns the current state of a workflow by ID.
func (o *Orchestrator) GetWorkflow(id string) (*workflow.Workflow, error) {
	return o.store.Get(id)
}

// ExecuteWorkflowStep advances wf by one step, dispatching on the
// current step's type and running the matching orchestrator operation,
// then feeding the result back into the workflow store.
func (o *Orchestrator) ExecuteWorkflowStep(ctx context.Context, id string) (result *workflow.StepResult, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator.ExecuteWorkflowStep", trace.WithAttributes(attribute.String("workflow_id", id)))
	defer func() {
		if err != nil && err != workflow.ErrAwaitingHuman {
			endSpan(span, err)
		} else {
			span.End()
		}
	}()

	beforeState, _ := o.peekState(id)

	result, err = o.store.ExecuteNext(ctx, id, func(ctx context.Context, step workflow.WorkflowStep) (*workflow.StepResult, error) {
		start := time.Now()
		stepType := string(step.Config.Type)

		res, err := o.runStep(ctx, step)
		o.recordStep(stepType, err, time.Since(start))
		return res, err
	})

	if afterState, ok := o.peekState(id); ok && beforeState != "" && afterState != beforeState {
		o.recordStateChange(beforeState, afterState)
	}
	return result, err
}

func (o *Orchestrator) peekState(id string) (workflow.State, bool) {
	wf, err := o.store.Get(id)
	if err != nil {
		return "", false
	}
	return wf.State, true
}

func (o *Orchestrator) runStep(ctx context.Context, step workflow.WorkflowStep) (*workflow.StepResult, error) {
	start := time.Now()

	switch step.Config.Type {
	case workflow.StepPrompt:
		var result *ProviderResult
		var err error
		if step.Config.Provider != "" {
			result, err = o.PromptProvider(ctx, step.Config.Provider, step.Config.Prompt)
		} else {
			result, err = o.Prompt(ctx, step.Config.TaskType, step.Config.Prompt)
		}
		if err != nil {
			return nil, err
		}
		return &workflow.StepResult{
			Output:      result.Text,
			Provider:    result.Provider,
			DurationMs:  time.Since(start).Milliseconds(),
			CompletedAt: time.Now(),
		}, nil

	case workflow.StepParallelPrompt:
		results, err := o.ParallelPrompt(ctx, step.Config.Providers, step.Config.Prompt)
		if err != nil {
			return nil, err
		}
		return &workflow.StepResult{
			Output:      renderParallelOutput(results),
			Responses:   toResponses(results),
			DurationMs:  time.Since(start).Milliseconds(),
			CompletedAt: time.Now(),
		}, nil

	case workflow.StepConsensus:
		min := step.Config.MinProviders
		if min <= 0 {
			min = 3
		}
		result, err := o.ConsensusPrompt(ctx, step.Config.Prompt, min)
		if err != nil {
			return nil, err
		}
		return &workflow.StepResult{
			Output:      result.ConsensusText,
			Responses:   result.Responses,
			DurationMs:  time.Since(start).Milliseconds(),
			Metadata:    map[string]any{"agreement_score": result.AgreementScore},
			CompletedAt: time.Now(),
		}, nil

	case workflow.StepHumanReview:
		return nil, workflow.ErrAwaitingHuman

	default:
		return nil, gwerr.New(gwerr.KindInvalidState, fmt.Sprintf("step type %q not implemented", step.Config.Type))
	}
}

func (o *Orchestrator) recordStep(stepType string, err error, duration time.Duration) {
	if o.metrics == nil {
		return
	}
	status := "completed"
	switch {
	case err == workflow.ErrAwaitingHuman:
		status = "waiting_for_human"
	case err != nil:
		status = "failed"
	}
	o.metrics.RecordWorkflowStep(stepType, status, duration)
}

func (o *Orchestrator) recordStateChange(from, to workflow.State) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordWorkflowStateChange(string(from), string(to))
}

// renderParallelOutput joins each provider's response into the single
// text blob spec.md §4.3 specifies for ParallelPrompt steps: chunks
// separated by "\n\n---\n\n", each prefixed "**<provider>**:\n<text>". A
// per-provider failure renders its error message in place of text.
func renderParallelOutput(results []ProviderResult) string {
	chunks := make([]string, 0, len(results))
	for _, r := range results {
		text := r.Text
		if r.Err != "" {
			text = "error: " + r.Err
		}
		chunks = append(chunks, fmt.Sprintf("**%s**:\n%s", r.Provider, text))
	}
	return strings.Join(chunks, "\n\n---\n\n")
}

func toResponses(results []ProviderResult) []router.ProviderResponse {
	out := make([]router.ProviderResponse, 0, len(results))
	for _, r := range results {
		if r.Err != "" {
			continue
		}
		out = append(out, router.ProviderResponse{Provider: r.Provider, Text: r.Text})
	}
	return out
}

// ResolveHumanReview resumes a paused workflow's human_review step.
func (o *Orchestrator) ResolveHumanReview(id string, approved bool, approvedBy, note string) (*workflow.Workflow, error) {
	return o.store.ResolveHumanReview(id, approved, approvedBy, note)
}

// Status is the snapshot backing the agent_status MCP tool.
type Status struct {
	AvailableProviders []router.Provider
	ProviderStats      map[router.Provider]router.Stats
	ActiveWorkflows    int
}

// Status reports the orchestrator's current view of provider health,
// usage and in-flight workflow count (spec.md §6's agent_status tool).
func (o *Orchestrator) Status() Status {
	return Status{
		AvailableProviders: o.router.AvailableProviders(),
		ProviderStats:      o.router.AllStats(),
		ActiveWorkflows:    o.store.Count(),
	}
}
