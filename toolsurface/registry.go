// Package toolsurface implements the seven MCP tools spec.md §6 exposes
// over the gateway's orchestrator, grounded on the original source's
// tools.rs ToolRegistry (name -> Tool lookup, arguments as a raw JSON
// value) translated into Go's interface-table idiom instead of Rust's
// dyn Tool trait objects.
package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentgateway/gateway/gwerr"
	"github.com/agentgateway/gateway/orchestrator"
	"github.com/agentgateway/gateway/protocol/mcp"
	"github.com/agentgateway/gateway/router"
	"github.com/agentgateway/gateway/workflow"
)

// Tool is one MCP tool: its schema, plus a handler bound to the
// orchestrator.
type Tool interface {
	Definition() mcp.ToolDefinition
	Execute(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResult, error)
}

// Registry is a name-indexed table of Tools, built once over an
// Orchestrator at startup.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds the gateway's fixed set of seven tools over orch.
func NewRegistry(orch *orchestrator.Orchestrator, visible bool) *Registry {
	reg := &Registry{tools: make(map[string]Tool)}
	reg.register(&promptTool{orch: orch})
	reg.register(&parallelPromptTool{orch: orch})
	reg.register(&consensusTool{orch: orch})
	reg.register(&workflowStartTool{orch: orch})
	reg.register(&workflowStepTool{orch: orch})
	reg.register(&statusTool{orch: orch})
	reg.register(&listProvidersTool{})
	return reg
}

func (r *Registry) register(t Tool) {
	name := t.Definition().Name
	r.tools[name] = t
	r.order = append(r.order, name)
}

// Definitions returns every tool's schema, in registration order, for
// tools/list.
func (r *Registry) Definitions() []mcp.ToolDefinition {
	defs := make([]mcp.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool, for tools/call.
func (r *Registry) Execute(ctx context.Context, name string, arguments json.RawMessage) (*mcp.ToolCallResult, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, gwerr.New(gwerr.KindInvalidParams, fmt.Sprintf("unknown tool: %s", name))
	}
	return t.Execute(ctx, arguments)
}

// --- agent_prompt ---------------------------------------------------------

type promptTool struct{ orch *orchestrator.Orchestrator }

func (t *promptTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "agent_prompt",
		Description: "Send a prompt to the best available provider for the given task type, or to a specific provider.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt":   map[string]any{"type": "string"},
				"provider": map[string]any{"type": "string", "description": "optional: claude, grok, gemini, chatgpt, perplexity, notebooklm"},
				"task_type": map[string]any{
					"type": "string", "enum": []string{"general", "code", "search", "creative", "large_context"},
				},
			},
			"required": []string{"prompt"},
		},
	}
}

type promptArgs struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	TaskType string `json:"task_type"`
}

func (t *promptTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResult, error) {
	var args promptArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, gwerr.Wrap(gwerr.KindInvalidParams, "decode agent_prompt arguments", err)
	}
	if args.Prompt == "" {
		return nil, gwerr.New(gwerr.KindInvalidParams, "prompt is required")
	}

	if args.Provider != "" {
		p, ok := router.ParseProvider(args.Provider)
		if !ok {
			return nil, gwerr.New(gwerr.KindInvalidParams, fmt.Sprintf("unknown provider: %s", args.Provider))
		}
		res, err := t.orch.PromptProvider(ctx, p, args.Prompt)
		if err != nil {
			return nil, err
		}
		return mcp.TextContent(res.Text), nil
	}

	task := router.TaskType(args.TaskType)
	if task == "" {
		task = router.TaskGeneral
	}
	res, err := t.orch.Prompt(ctx, task, args.Prompt)
	if err != nil {
		return nil, err
	}
	return mcp.TextContent(res.Text), nil
}

// --- agent_parallel_prompt ------------------------------------------------

type parallelPromptTool struct{ orch *orchestrator.Orchestrator }

func (t *parallelPromptTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "agent_parallel_prompt",
		Description: "Send the same prompt to multiple named providers and return every response.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{"type": "string"},
				"providers": map[string]any{
					"type": "array", "items": map[string]any{"type": "string"}, "minItems": 2,
					"description": "claude, grok, gemini, chatgpt, perplexity, notebooklm",
				},
			},
			"required": []string{"prompt", "providers"},
		},
	}
}

type parallelArgs struct {
	Prompt    string   `json:"prompt"`
	Providers []string `json:"providers"`
}

func (t *parallelPromptTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResult, error) {
	var args parallelArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, gwerr.Wrap(gwerr.KindInvalidParams, "decode agent_parallel_prompt arguments", err)
	}
	if args.Prompt == "" {
		return nil, gwerr.New(gwerr.KindInvalidParams, "prompt is required")
	}
	if len(args.Providers) < 2 {
		return nil, gwerr.New(gwerr.KindInvalidParams, "providers must list at least 2 providers")
	}

	providers := parseProviderListDroppingUnknown(args.Providers)
	results, err := t.orch.ParallelPrompt(ctx, providers, args.Prompt)
	if err != nil {
		return nil, err
	}
	return mcp.TextContent(formatResults(results)), nil
}

// --- agent_consensus --------------------------------------------------------

type consensusTool struct{ orch *orchestrator.Orchestrator }

func (t *consensusTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "agent_consensus",
		Description: "Send the same prompt to several providers and pick the consensus winner; does not merge answers into one (semantic consensus is not implemented, spec.md §9).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt":        map[string]any{"type": "string"},
				"min_providers": map[string]any{"type": "integer", "default": 3},
			},
			"required": []string{"prompt"},
		},
	}
}

type consensusArgs struct {
	Prompt       string `json:"prompt"`
	MinProviders int    `json:"min_providers"`
}

func (t *consensusTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResult, error) {
	var args consensusArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, gwerr.Wrap(gwerr.KindInvalidParams, "decode agent_consensus arguments", err)
	}
	if args.Prompt == "" {
		return nil, gwerr.New(gwerr.KindInvalidParams, "prompt is required")
	}
	min := args.MinProviders
	if min <= 0 {
		min = 3
	}

	result, err := t.orch.ConsensusPrompt(ctx, args.Prompt, min)
	if err != nil {
		return nil, err
	}
	out, _ := json.Marshal(result)
	return mcp.TextContent(string(out)), nil
}

func formatResults(results []orchestrator.ProviderResult) string {
	out, _ := json.Marshal(results)
	return string(out)
}

// parseProviderListDroppingUnknown maps each string onto a Provider,
// silently dropping names ParseProvider doesn't recognize, per spec.md
// §6's "in parallel/consensus provider lists → silently dropped".
func parseProviderListDroppingUnknown(names []string) []router.Provider {
	out := make([]router.Provider, 0, len(names))
	for _, n := range names {
		if p, ok := router.ParseProvider(n); ok {
			out = append(out, p)
		}
	}
	return out
}

// --- agent_workflow_start ---------------------------------------------------

type workflowStartTool struct{ orch *orchestrator.Orchestrator }

func (t *workflowStartTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "agent_workflow_start",
		Description: "Start a new linear workflow from a list of steps (prompt, parallel_prompt, consensus, human_review).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"steps": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
			},
			"required": []string{"steps"},
		},
	}
}

type workflowStepJSON struct {
	Type         string   `json:"type"`
	Prompt       string   `json:"prompt"`
	Provider     string   `json:"provider"`
	TaskType     string   `json:"task_type"`
	Providers    []string `json:"providers"`
	MinProviders int      `json:"min_providers"`
	Question     string   `json:"question"`
}

type workflowStartArgs struct {
	Steps []workflowStepJSON `json:"steps"`
}

func (t *workflowStartTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResult, error) {
	var args workflowStartArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, gwerr.Wrap(gwerr.KindInvalidParams, "decode agent_workflow_start arguments", err)
	}
	if len(args.Steps) == 0 {
		return nil, gwerr.New(gwerr.KindInvalidParams, "at least one step is required")
	}

	steps := make([]workflow.StepConfig, len(args.Steps))
	for i, s := range args.Steps {
		cfg := workflow.StepConfig{
			Type:         workflow.StepType(s.Type),
			Prompt:       s.Prompt,
			TaskType:     router.TaskType(s.TaskType),
			MinProviders: s.MinProviders,
			Question:     s.Question,
		}
		// A single explicit provider (Prompt steps) is validated per
		// spec.md §6: an unknown name is an error. Provider lists
		// (ParallelPrompt) are parsed leniently: unknown names are
		// dropped silently, same as the tool-call arguments path.
		if s.Provider != "" {
			p, ok := router.ParseProvider(s.Provider)
			if !ok {
				return nil, gwerr.New(gwerr.KindInvalidParams, fmt.Sprintf("unknown provider: %s", s.Provider))
			}
			cfg.Provider = p
		}
		cfg.Providers = parseProviderListDroppingUnknown(s.Providers)
		steps[i] = cfg
	}

	wf, err := t.orch.StartWorkflow(steps)
	if err != nil {
		return nil, err
	}
	out, _ := json.Marshal(map[string]any{"workflow_id": wf.ID, "state": wf.State})
	return mcp.TextContent(string(out)), nil
}

// --- agent_workflow_step ----------------------------------------------------

type workflowStepTool struct{ orch *orchestrator.Orchestrator }

func (t *workflowStepTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "agent_workflow_step",
		Description: "Advance a workflow by one step, or resolve a paused human_review step.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"workflow_id": map[string]any{"type": "string"},
				"approved":    map[string]any{"type": "boolean", "description": "required only when resolving a paused human_review step"},
				"note":        map[string]any{"type": "string"},
			},
			"required": []string{"workflow_id"},
		},
	}
}

type workflowStepArgs struct {
	WorkflowID string `json:"workflow_id"`
	Approved   *bool  `json:"approved"`
	Note       string `json:"note"`
}

func (t *workflowStepTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResult, error) {
	var args workflowStepArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, gwerr.Wrap(gwerr.KindInvalidParams, "decode agent_workflow_step arguments", err)
	}
	if args.WorkflowID == "" {
		return nil, gwerr.New(gwerr.KindInvalidParams, "workflow_id is required")
	}

	wf, err := t.orch.GetWorkflow(args.WorkflowID)
	if err != nil {
		return nil, err
	}

	if wf.State == workflow.StatePaused && args.Approved != nil {
		resumed, err := t.orch.ResolveHumanReview(args.WorkflowID, *args.Approved, "mcp-caller", args.Note)
		if err != nil {
			return nil, err
		}
		out, _ := json.Marshal(map[string]any{"state": resumed.State, "current_step": resumed.CurrentStep})
		return mcp.TextContent(string(out)), nil
	}

	result, err := t.orch.ExecuteWorkflowStep(ctx, args.WorkflowID)
	if err == workflow.ErrAwaitingHuman {
		out, _ := json.Marshal(map[string]any{"state": "paused", "awaiting_human": true})
		return mcp.TextContent(string(out)), nil
	}
	if err != nil {
		return nil, err
	}
	out, _ := json.Marshal(result)
	return mcp.TextContent(string(out)), nil
}

// --- agent_status ------------------------------------------------------------

type statusTool struct{ orch *orchestrator.Orchestrator }

func (t *statusTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "agent_status",
		Description: "Report available providers and per-provider usage statistics.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *statusTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResult, error) {
	status := t.orch.Status()
	out, _ := json.Marshal(status)
	return mcp.TextContent(string(out)), nil
}

// --- agent_list_providers ----------------------------------------------------

type listProvidersTool struct{}

func (t *listProvidersTool) Definition() mcp.ToolDefinition {
	return mcp.ToolDefinition{
		Name:        "agent_list_providers",
		Description: "List the gateway's static catalogue of supported providers and their capabilities, independent of current health or enablement.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *listProvidersTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResult, error) {
	out, _ := json.Marshal(router.Catalogue())
	return mcp.TextContent(string(out)), nil
}
