package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentgateway/gateway/adapter"
	"github.com/agentgateway/gateway/config"
	"github.com/agentgateway/gateway/orchestrator"
	"github.com/agentgateway/gateway/router"
	"github.com/agentgateway/gateway/workflow"
)

// fakeAdapter is a minimal adapter.Adapter test double: each provider
// can be configured with a fixed response or an error, with no real
// network traffic involved.
type fakeAdapter struct {
	responses map[router.Provider]string
	errs      map[router.Provider]error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{responses: make(map[router.Provider]string), errs: make(map[router.Provider]error)}
}

func (f *fakeAdapter) Open(ctx context.Context, p router.Provider) (adapter.Session, error) {
	return &fakeSession{a: f, p: p}, nil
}

type fakeSession struct {
	a *fakeAdapter
	p router.Provider
}

func (s *fakeSession) Prompt(ctx context.Context, text string) (*adapter.Response, error) {
	if err := s.a.errs[s.p]; err != nil {
		return nil, err
	}
	return &adapter.Response{Text: s.a.responses[s.p]}, nil
}

func (s *fakeSession) Close() error { return nil }

func defaultTestPrefs() map[router.Provider]router.Preferences {
	return map[router.Provider]router.Preferences{
		router.ProviderClaude:  {Enabled: true, Priority: 100},
		router.ProviderGrok:    {Enabled: true, Priority: 80},
		router.ProviderGemini:  {Enabled: true, Priority: 90},
		router.ProviderChatGpt: {Enabled: true, Priority: 85},
	}
}

func newTestRegistry(t *testing.T, f *fakeAdapter) *Registry {
	t.Helper()
	r := router.New(defaultTestPrefs(), zap.NewNop())
	cfg := config.OrchestratorConfig{Timeout: 500 * time.Millisecond, MaxConcurrent: 5}
	orch := orchestrator.New(r, f, workflow.NewStore(), cfg, zap.NewNop())
	return NewRegistry(orch, false)
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestDefinitionsListsAllSevenTools(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	defs := reg.Definitions()
	require.Len(t, defs, 7)

	names := make(map[string]bool)
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{
		"agent_prompt", "agent_parallel_prompt", "agent_consensus",
		"agent_workflow_start", "agent_workflow_step", "agent_status", "agent_list_providers",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestExecuteUnknownToolReturnsError(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "not_a_tool", raw(map[string]any{}))
	require.Error(t, err)
}

func TestAgentPromptRequiresPrompt(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "agent_prompt", raw(map[string]any{}))
	require.Error(t, err)
}

func TestAgentPromptWithExplicitProviderRejectsUnknownName(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "agent_prompt", raw(map[string]any{
		"prompt": "hi", "provider": "not-a-real-provider",
	}))
	require.Error(t, err)
}

func TestAgentPromptWithExplicitProviderReturnsText(t *testing.T) {
	f := newFakeAdapter()
	f.responses[router.ProviderGrok] = "grok says hi"
	reg := newTestRegistry(t, f)

	res, err := reg.Execute(context.Background(), "agent_prompt", raw(map[string]any{
		"prompt": "hi", "provider": "grok",
	}))
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "grok says hi", res.Content[0].Text)
	assert.False(t, res.IsError)
}

func TestAgentPromptSelectsBestProviderWhenNoneNamed(t *testing.T) {
	f := newFakeAdapter()
	f.responses[router.ProviderClaude] = "claude wins"
	reg := newTestRegistry(t, f)

	res, err := reg.Execute(context.Background(), "agent_prompt", raw(map[string]any{"prompt": "hi"}))
	require.NoError(t, err)
	assert.Equal(t, "claude wins", res.Content[0].Text)
}

func TestAgentPromptPropagatesProviderErrorAsGoError(t *testing.T) {
	f := newFakeAdapter()
	f.errs[router.ProviderClaude] = fmt.Errorf("boom")
	reg := newTestRegistry(t, f)

	_, err := reg.Execute(context.Background(), "agent_prompt", raw(map[string]any{"prompt": "hi"}))
	require.Error(t, err)
}

func TestAgentParallelPromptRequiresTwoProviders(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "agent_parallel_prompt", raw(map[string]any{
		"prompt": "hi", "providers": []string{"claude"},
	}))
	require.Error(t, err)
}

func TestAgentParallelPromptSilentlyDropsUnknownProviderNames(t *testing.T) {
	f := newFakeAdapter()
	f.responses[router.ProviderClaude] = "a"
	f.responses[router.ProviderGemini] = "b"
	reg := newTestRegistry(t, f)

	res, err := reg.Execute(context.Background(), "agent_parallel_prompt", raw(map[string]any{
		"prompt":    "hi",
		"providers": []string{"claude", "bogus-provider", "gemini"},
	}))
	require.NoError(t, err)

	var results []orchestrator.ProviderResult
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &results))
	require.Len(t, results, 2)
	assert.Equal(t, router.ProviderClaude, results[0].Provider)
	assert.Equal(t, router.ProviderGemini, results[1].Provider)
}

func TestAgentConsensusDefaultsMinProvidersToThree(t *testing.T) {
	f := newFakeAdapter()
	f.responses[router.ProviderClaude] = "short"
	f.responses[router.ProviderGemini] = "a much longer answer"
	f.responses[router.ProviderChatGpt] = "medium one"
	reg := newTestRegistry(t, f)

	res, err := reg.Execute(context.Background(), "agent_consensus", raw(map[string]any{"prompt": "q"}))
	require.NoError(t, err)

	var result orchestrator.ConsensusResult
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &result))
	assert.Equal(t, "a much longer answer", result.ConsensusText)
}

func TestAgentConsensusRequiresPrompt(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "agent_consensus", raw(map[string]any{}))
	require.Error(t, err)
}

func TestAgentWorkflowStartRequiresAtLeastOneStep(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "agent_workflow_start", raw(map[string]any{"steps": []any{}}))
	require.Error(t, err)
}

func TestAgentWorkflowStartRejectsUnknownExplicitProvider(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "agent_workflow_start", raw(map[string]any{
		"steps": []map[string]any{{"type": "prompt", "prompt": "go", "provider": "bogus"}},
	}))
	require.Error(t, err)
}

func TestAgentWorkflowStartThenStepDrivesPromptStep(t *testing.T) {
	f := newFakeAdapter()
	f.responses[router.ProviderClaude] = "step done"
	reg := newTestRegistry(t, f)

	startRes, err := reg.Execute(context.Background(), "agent_workflow_start", raw(map[string]any{
		"steps": []map[string]any{{"type": "prompt", "prompt": "go", "provider": "claude"}},
	}))
	require.NoError(t, err)

	var started map[string]any
	require.NoError(t, json.Unmarshal([]byte(startRes.Content[0].Text), &started))
	id, ok := started["workflow_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	stepRes, err := reg.Execute(context.Background(), "agent_workflow_step", raw(map[string]any{"workflow_id": id}))
	require.NoError(t, err)

	var result workflow.StepResult
	require.NoError(t, json.Unmarshal([]byte(stepRes.Content[0].Text), &result))
	assert.Equal(t, "step done", result.Output)
}

func TestAgentWorkflowStepOnHumanReviewReportsPausedWithoutError(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())

	startRes, err := reg.Execute(context.Background(), "agent_workflow_start", raw(map[string]any{
		"steps": []map[string]any{{"type": "human_review", "question": "ok?"}},
	}))
	require.NoError(t, err)

	var started map[string]any
	require.NoError(t, json.Unmarshal([]byte(startRes.Content[0].Text), &started))
	id := started["workflow_id"].(string)

	stepRes, err := reg.Execute(context.Background(), "agent_workflow_step", raw(map[string]any{"workflow_id": id}))
	require.NoError(t, err)

	var paused map[string]any
	require.NoError(t, json.Unmarshal([]byte(stepRes.Content[0].Text), &paused))
	assert.Equal(t, "paused", paused["state"])
	assert.Equal(t, true, paused["awaiting_human"])
}

func TestAgentWorkflowStepResolvesPausedHumanReview(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())

	startRes, err := reg.Execute(context.Background(), "agent_workflow_start", raw(map[string]any{
		"steps": []map[string]any{{"type": "human_review", "question": "ok?"}},
	}))
	require.NoError(t, err)
	var started map[string]any
	require.NoError(t, json.Unmarshal([]byte(startRes.Content[0].Text), &started))
	id := started["workflow_id"].(string)

	_, err = reg.Execute(context.Background(), "agent_workflow_step", raw(map[string]any{"workflow_id": id}))
	require.NoError(t, err)

	resumeRes, err := reg.Execute(context.Background(), "agent_workflow_step", raw(map[string]any{
		"workflow_id": id, "approved": true, "note": "go ahead",
	}))
	require.NoError(t, err)

	var resumed map[string]any
	require.NoError(t, json.Unmarshal([]byte(resumeRes.Content[0].Text), &resumed))
	assert.Equal(t, "completed", resumed["state"])
}

func TestAgentWorkflowStepRequiresWorkflowID(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "agent_workflow_step", raw(map[string]any{}))
	require.Error(t, err)
}

func TestAgentWorkflowStepUnknownIDPropagatesError(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	_, err := reg.Execute(context.Background(), "agent_workflow_step", raw(map[string]any{"workflow_id": "does-not-exist"}))
	require.Error(t, err)
}

func TestAgentStatusReportsAvailableProviders(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	res, err := reg.Execute(context.Background(), "agent_status", raw(map[string]any{}))
	require.NoError(t, err)

	var status orchestrator.Status
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &status))
	assert.Contains(t, status.AvailableProviders, router.ProviderClaude)
}

func TestAgentListProvidersReturnsStaticCatalogueRegardlessOfEnablement(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter())
	res, err := reg.Execute(context.Background(), "agent_list_providers", raw(map[string]any{}))
	require.NoError(t, err)

	var entries []router.CatalogueEntry
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &entries))
	require.Len(t, entries, 6)

	byProvider := make(map[router.Provider]router.CatalogueEntry, len(entries))
	for _, e := range entries {
		byProvider[e.Provider] = e
	}
	// defaultTestPrefs never enables perplexity or notebooklm, but the
	// catalogue is static and reports them regardless.
	assert.Contains(t, byProvider, router.ProviderPerplexity)
	assert.Contains(t, byProvider, router.ProviderNotebookLm)
	assert.True(t, byProvider[router.ProviderGemini].SearchCapable)
	assert.True(t, byProvider[router.ProviderClaude].LargeContextCapable)
}
