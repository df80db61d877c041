package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgateway/gateway/router"
)

func twoStepPromptWorkflow(t *testing.T) (*Store, *Workflow) {
	t.Helper()
	s := NewStore()
	wf, err := s.Start([]StepConfig{
		{Type: StepPrompt, Prompt: "first", Provider: router.ProviderClaude},
		{Type: StepPrompt, Prompt: "second", Provider: router.ProviderClaude},
	})
	require.NoError(t, err)
	return s, wf
}

func TestStartWorkflowBeginsPending(t *testing.T) {
	s := NewStore()
	wf, err := s.Start([]StepConfig{{Type: StepPrompt, Prompt: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, StatePending, wf.State)
	assert.Equal(t, 0, wf.CurrentStep)
	assert.NotEmpty(t, wf.ID)
}

func TestStartWorkflowRejectsEmptySteps(t *testing.T) {
	s := NewStore()
	_, err := s.Start(nil)
	require.Error(t, err)
}

func TestExecuteNextAdvancesCursorOnSuccess(t *testing.T) {
	s, wf := twoStepPromptWorkflow(t)

	result, err := s.ExecuteNext(context.Background(), wf.ID, func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		return &StepResult{Output: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)

	got, err := s.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, StateRunning, got.State)
	assert.Equal(t, StepCompleted, got.Steps[0].State)
}

func TestExecuteNextCompletesWorkflowOnLastStep(t *testing.T) {
	s, wf := twoStepPromptWorkflow(t)
	exec := func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		return &StepResult{Output: "ok"}, nil
	}
	_, err := s.ExecuteNext(context.Background(), wf.ID, exec)
	require.NoError(t, err)
	_, err = s.ExecuteNext(context.Background(), wf.ID, exec)
	require.NoError(t, err)

	got, err := s.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, 2, got.CurrentStep)
}

func TestExecuteNextOnFailedStepFailsWorkflowWithoutAdvancingCursor(t *testing.T) {
	s, wf := twoStepPromptWorkflow(t)
	_, err := s.ExecuteNext(context.Background(), wf.ID, func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		return nil, errors.New("provider exploded")
	})
	require.Error(t, err)

	got, err := s.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, 0, got.CurrentStep)
	assert.Equal(t, StepFailed, got.Steps[0].State)
}

func TestExecuteNextRejectsCompletedWorkflow(t *testing.T) {
	s := NewStore()
	wf, err := s.Start([]StepConfig{{Type: StepPrompt}})
	require.NoError(t, err)
	exec := func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		return &StepResult{}, nil
	}
	_, err = s.ExecuteNext(context.Background(), wf.ID, exec)
	require.NoError(t, err)

	_, err = s.ExecuteNext(context.Background(), wf.ID, exec)
	require.Error(t, err)
}

func TestExecuteNextRejectsReservedStepTypes(t *testing.T) {
	s := NewStore()
	wf, err := s.Start([]StepConfig{{Type: StepConditional}})
	require.NoError(t, err)

	_, err = s.ExecuteNext(context.Background(), wf.ID, func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		t.Fatal("executor should not run for a reserved step type")
		return nil, nil
	})
	require.Error(t, err)
}

func TestHumanReviewPausesWithoutAdvancingCursor(t *testing.T) {
	s := NewStore()
	wf, err := s.Start([]StepConfig{
		{Type: StepHumanReview, Question: "approve?"},
		{Type: StepPrompt, Prompt: "after review"},
	})
	require.NoError(t, err)

	_, err = s.ExecuteNext(context.Background(), wf.ID, func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		return nil, ErrAwaitingHuman
	})
	require.ErrorIs(t, err, ErrAwaitingHuman)

	got, err := s.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePaused, got.State)
	assert.Equal(t, 0, got.CurrentStep)
	assert.Equal(t, StepWaitingForHuman, got.Steps[0].State)
}

func TestResolveHumanReviewApprovedAdvancesCursor(t *testing.T) {
	s := NewStore()
	wf, err := s.Start([]StepConfig{
		{Type: StepHumanReview, Question: "approve?"},
		{Type: StepPrompt, Prompt: "after review"},
	})
	require.NoError(t, err)
	_, err = s.ExecuteNext(context.Background(), wf.ID, func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		return nil, ErrAwaitingHuman
	})
	require.ErrorIs(t, err, ErrAwaitingHuman)

	got, err := s.ResolveHumanReview(wf.ID, true, "alice", "looks good")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.State)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, "alice", got.Steps[0].Result.ApprovedBy)
}

func TestResolveHumanReviewRejectedFailsWorkflow(t *testing.T) {
	s := NewStore()
	wf, err := s.Start([]StepConfig{{Type: StepHumanReview}})
	require.NoError(t, err)
	_, err = s.ExecuteNext(context.Background(), wf.ID, func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		return nil, ErrAwaitingHuman
	})
	require.ErrorIs(t, err, ErrAwaitingHuman)

	got, err := s.ResolveHumanReview(wf.ID, false, "alice", "no")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
}

func TestWorkflowContextIsNeverReadByExecution(t *testing.T) {
	s, wf := twoStepPromptWorkflow(t)
	wf.SetContext("trace_id", "abc123")

	_, err := s.ExecuteNext(context.Background(), wf.ID, func(ctx context.Context, step WorkflowStep) (*StepResult, error) {
		return &StepResult{}, nil
	})
	require.NoError(t, err)

	v, ok := wf.GetContext("trace_id")
	require.True(t, ok)
	assert.Equal(t, "abc123", v)
}
