// Package workflow implements the durable-in-process, resumable linear
// workflow state machine: a cursor over a fixed list of steps of
// heterogeneous type, advanced one step at a time by a caller-supplied
// executor. Nothing here talks to a provider or the router directly —
// that's the orchestrator's job (spec.md §4.3) — this package only owns
// the state machine and its locking, the way the teacher's
// agent/hitl/interrupt.go owns an in-memory store behind a sync.RWMutex
// without knowing what created the interrupts it stores.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentgateway/gateway/gwerr"
	"github.com/agentgateway/gateway/router"
)

// StepType distinguishes the kinds of work a WorkflowStep can describe.
// Conditional and Tool are reserved: they decode and store but
// ExecuteNext refuses to run them (spec.md §9).
type StepType string

const (
	StepPrompt         StepType = "prompt"
	StepParallelPrompt StepType = "parallel_prompt"
	StepConsensus      StepType = "consensus"
	StepHumanReview    StepType = "human_review"
	StepConditional    StepType = "conditional"
	StepTool           StepType = "tool"
)

// State is the workflow's overall lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StatePaused    State = "paused" // waiting on a human_review step
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StepState is one step's individual lifecycle state.
type StepState string

const (
	StepPending         StepState = "pending"
	StepRunning         StepState = "running"
	StepCompleted       StepState = "completed"
	StepFailed          StepState = "failed"
	StepWaitingForHuman StepState = "waiting_for_human"
)

// StepConfig is the type-specific configuration for one step. Only the
// fields matching Type are meaningful; the rest are left zero-valued.
// Context mirrors the Rust original's unused per-step context map
// (spec.md §9): it round-trips but no step ever reads it.
type StepConfig struct {
	Type         StepType
	Prompt       string
	Provider     router.Provider   // StepPrompt
	TaskType     router.TaskType   // StepPrompt
	Providers    []router.Provider // StepParallelPrompt
	MinProviders int               // StepConsensus (spec.md §3 Consensus{message, min_providers})
	Question     string            // StepHumanReview
	Context      map[string]any
}

// StepResult is what an executor hands back after running one step,
// mirroring spec.md §3's StepResult: rendered output, the attributable
// single provider (Prompt steps only), the per-provider breakdown
// (ParallelPrompt/Consensus), a duration and a free-form metadata bag.
type StepResult struct {
	Output      string
	Provider    router.Provider
	Responses   []router.ProviderResponse // parallel_prompt / consensus breakdown
	DurationMs  int64
	Metadata    map[string]any
	Err         string
	ApprovedBy  string
	CompletedAt time.Time
}

// WorkflowStep pairs a step's static configuration with its runtime
// state and (once run) its result.
type WorkflowStep struct {
	Config StepConfig
	State  StepState
	Result *StepResult
}

// Workflow is one instance of a linear, cursor-advanced step sequence.
type Workflow struct {
	ID          string
	Steps       []WorkflowStep
	CurrentStep int
	State       State
	Context     map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SetContext and GetContext manipulate the workflow's unused context bag,
// preserved from the original source unread by step execution.
func (w *Workflow) SetContext(key string, value any) {
	if w.Context == nil {
		w.Context = make(map[string]any)
	}
	w.Context[key] = value
}

func (w *Workflow) GetContext(key string) (any, bool) {
	v, ok := w.Context[key]
	return v, ok
}

// Executor runs a single step and returns its result. Returning
// ErrAwaitingHuman signals that the step is a human_review step awaiting
// an external decision; the workflow pauses rather than failing.
type Executor func(ctx context.Context, step WorkflowStep) (*StepResult, error)

// ErrAwaitingHuman is returned by an Executor for a human_review step
// that has not yet been resolved by ResolveHumanReview.
var ErrAwaitingHuman = fmt.Errorf("workflow: awaiting human review")

// Store holds all live workflows in memory. There is deliberately no
// on-disk persistence (spec.md Non-goals): a process restart loses all
// in-flight workflows, matching the original source.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewStore builds an empty in-memory workflow store.
func NewStore() *Store {
	return &Store{workflows: make(map[string]*Workflow)}
}

// Start creates a new workflow over the given steps, all initially
// StepPending, and stores it under a fresh UUID v4 ID.
func (s *Store) Start(steps []StepConfig) (*Workflow, error) {
	if len(steps) == 0 {
		return nil, gwerr.New(gwerr.KindInvalidParams, "workflow must have at least one step")
	}

	wfSteps := make([]WorkflowStep, len(steps))
	for i, cfg := range steps {
		wfSteps[i] = WorkflowStep{Config: cfg, State: StepPending}
	}

	now := time.Now()
	wf := &Workflow{
		ID:        uuid.New().String(),
		Steps:     wfSteps,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.workflows[wf.ID] = wf
	s.mu.Unlock()

	return wf, nil
}

// Count returns the number of workflows currently held by the store,
// regardless of state — spec.md §6's agent_status active_workflows field.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

// Get returns a copy-free pointer to a stored workflow. Callers must not
// mutate fields directly; go through Store methods so mutations happen
// under the store's lock.
func (s *Store) Get(id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, gwerr.New(gwerr.KindWorkflow, fmt.Sprintf("workflow %s not found", id))
	}
	return wf, nil
}

// ExecuteNext advances wf by exactly one step: it runs exec against the
// step at the current cursor, then applies the cursor-advancement rule.
//
//   - exec succeeds            -> step Completed, cursor++, workflow
//     Completed if that was the last step, else Running.
//   - exec returns ErrAwaitingHuman -> step WaitingForHuman, workflow
//     Paused, cursor does NOT advance (non-fatal; resume via
//     ResolveHumanReview).
//   - exec returns any other error  -> step Failed, workflow Failed,
//     cursor does NOT advance.
//
// Reserved step types (Conditional, Tool) are rejected before exec runs.
func (s *Store) ExecuteNext(ctx context.Context, id string, exec Executor) (*StepResult, error) {
	s.mu.Lock()
	wf, ok := s.workflows[id]
	if !ok {
		s.mu.Unlock()
		return nil, gwerr.New(gwerr.KindWorkflow, fmt.Sprintf("workflow %s not found", id))
	}
	if wf.State == StateCompleted || wf.State == StateFailed {
		s.mu.Unlock()
		return nil, gwerr.New(gwerr.KindInvalidState, fmt.Sprintf("workflow %s is %s", id, wf.State))
	}
	if wf.CurrentStep >= len(wf.Steps) {
		s.mu.Unlock()
		return nil, gwerr.New(gwerr.KindInvalidState, "workflow has no remaining steps")
	}

	step := wf.Steps[wf.CurrentStep]
	if step.Config.Type == StepConditional || step.Config.Type == StepTool {
		s.mu.Unlock()
		return nil, gwerr.New(gwerr.KindInvalidState,
			fmt.Sprintf("step type %q is reserved and not implemented", step.Config.Type))
	}

	wf.State = StateRunning
	wf.Steps[wf.CurrentStep].State = StepRunning
	s.mu.Unlock()

	result, err := exec(ctx, step)

	s.mu.Lock()
	defer s.mu.Unlock()
	wf.UpdatedAt = time.Now()

	switch {
	case err == nil:
		wf.Steps[wf.CurrentStep].State = StepCompleted
		wf.Steps[wf.CurrentStep].Result = result
		wf.CurrentStep++
		if wf.CurrentStep >= len(wf.Steps) {
			wf.State = StateCompleted
		} else {
			wf.State = StateRunning
		}
		return result, nil

	case err == ErrAwaitingHuman:
		wf.Steps[wf.CurrentStep].State = StepWaitingForHuman
		wf.State = StatePaused
		return nil, err

	default:
		wf.Steps[wf.CurrentStep].State = StepFailed
		wf.Steps[wf.CurrentStep].Result = &StepResult{Err: err.Error(), CompletedAt: time.Now()}
		wf.State = StateFailed
		return nil, gwerr.Wrap(gwerr.KindWorkflow, "step execution failed", err)
	}
}

// ResolveHumanReview resumes a Paused workflow whose current step is
// WaitingForHuman. Approval completes the step and advances the cursor
// exactly as a successful Executor result would; rejection fails the
// whole workflow.
func (s *Store) ResolveHumanReview(id string, approved bool, approvedBy string, note string) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, gwerr.New(gwerr.KindWorkflow, fmt.Sprintf("workflow %s not found", id))
	}
	if wf.State != StatePaused || wf.Steps[wf.CurrentStep].State != StepWaitingForHuman {
		return nil, gwerr.New(gwerr.KindInvalidState, "workflow is not waiting for human review")
	}

	wf.UpdatedAt = time.Now()
	if approved {
		wf.Steps[wf.CurrentStep].State = StepCompleted
		wf.Steps[wf.CurrentStep].Result = &StepResult{
			Output:      note,
			ApprovedBy:  approvedBy,
			CompletedAt: time.Now(),
		}
		wf.CurrentStep++
		if wf.CurrentStep >= len(wf.Steps) {
			wf.State = StateCompleted
		} else {
			wf.State = StateRunning
		}
	} else {
		wf.Steps[wf.CurrentStep].State = StepFailed
		wf.Steps[wf.CurrentStep].Result = &StepResult{Err: "rejected by human reviewer", CompletedAt: time.Now()}
		wf.State = StateFailed
	}
	return wf, nil
}
