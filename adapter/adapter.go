// Package adapter is the concrete Provider Adapter (spec.md §1 calls this
// component external to the orchestration core, but the gateway ships a
// default HTTP-based implementation rather than leaving it abstract).
// A single Registry (this package's Adapter) holds a real SDK client per
// provider: the native
// Anthropic Messages API for Claude, the native Gemini API for
// Gemini/NotebookLm, and a single reused OpenAI-compatible client,
// pointed at different base URLs, for ChatGpt/Grok/Perplexity — the same
// "one SDK client, many base URLs" shape the pack's reefline BYOK client
// uses for multi-provider delivery.
package adapter

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentgateway/gateway/config"
	"github.com/agentgateway/gateway/gwerr"
	"github.com/agentgateway/gateway/router"
)

// Response is what a Session hands back from a single prompt call.
type Response struct {
	Text         string
	LatencyMs    float64
	PromptTokens int
	OutputTokens int
}

// Session is a live connection to one provider, opened for the duration
// of a single orchestrator operation and closed afterward. Spec.md §5
// treats the adapter as a scarce, possibly single-tenant resource: the
// orchestrator opens a Session right before use and closes it right
// after, never holding one open across a workflow's lifetime.
type Session interface {
	// Prompt sends text to the provider and returns its response.
	Prompt(ctx context.Context, text string) (*Response, error)
	// Close releases any resources held by the session. The sessions in
	// this package share their SDK clients and consume their rate limiter
	// token in Open, so their Close releases nothing and returns nil.
	Close() error
}

// Adapter opens provider sessions on demand.
type Adapter interface {
	Open(ctx context.Context, provider router.Provider) (Session, error)
}

// Registry is the default Adapter: it builds one concrete delivery
// client per configured provider up front, then hands out thin Session
// wrappers around shared clients. It is the thing this repo's
// cmd/agent-gateway wires into the Orchestrator.
type Registry struct {
	visible  bool
	claude   *claudeClient
	openai   map[router.Provider]*openAICompatClient
	gemini   *geminiClient
	counter  *tokenCounter
	limiters map[router.Provider]*rate.Limiter
}

// NewRegistry builds a Registry from provider preferences. visible
// mirrors the --visible CLI flag (spec.md §6); the HTTP-based delivery
// clients here ignore it (there is no browser to show) but it is
// threaded through because the Adapter interface contractually allows a
// browser-automation implementation that would use it.
func NewRegistry(prefs config.ProviderPreferences, visible bool) (*Registry, error) {
	reg := &Registry{
		visible:  visible,
		openai:   make(map[router.Provider]*openAICompatClient),
		counter:  newTokenCounter(),
		limiters: make(map[router.Provider]*rate.Limiter),
	}

	if prefs.Claude.Enabled {
		c, err := newClaudeClient(prefs.Claude.APIKey, prefs.Claude.Model)
		if err != nil {
			return nil, fmt.Errorf("build claude client: %w", err)
		}
		reg.claude = c
		reg.limiters[router.ProviderClaude] = rate.NewLimiter(rate.Limit(2), 4)
	}

	for _, pc := range []struct {
		provider router.Provider
		entry    config.ProviderEntry
		defURL   string
	}{
		{router.ProviderChatGpt, prefs.ChatGpt, "https://api.openai.com/v1"},
		{router.ProviderGrok, prefs.Grok, "https://api.x.ai/v1"},
		{router.ProviderPerplexity, prefs.Perplexity, "https://api.perplexity.ai"},
	} {
		if !pc.entry.Enabled {
			continue
		}
		baseURL := pc.entry.BaseURL
		if baseURL == "" {
			baseURL = pc.defURL
		}
		reg.openai[pc.provider] = newOpenAICompatClient(pc.entry.APIKey, baseURL, pc.entry.Model)
		reg.limiters[pc.provider] = rate.NewLimiter(rate.Limit(2), 4)
	}

	if prefs.Gemini.Enabled || prefs.NotebookLm.Enabled {
		apiKey := prefs.Gemini.APIKey
		model := prefs.Gemini.Model
		if !prefs.Gemini.Enabled {
			apiKey = prefs.NotebookLm.APIKey
			model = prefs.NotebookLm.Model
		}
		c, err := newGeminiClient(apiKey, model)
		if err != nil {
			return nil, fmt.Errorf("build gemini client: %w", err)
		}
		reg.gemini = c
		reg.limiters[router.ProviderGemini] = rate.NewLimiter(rate.Limit(2), 4)
		reg.limiters[router.ProviderNotebookLm] = rate.NewLimiter(rate.Limit(2), 4)
	}

	return reg, nil
}

// Open returns a Session bound to provider, rate-limited per spec.md §5's
// resource-throttling guidance.
func (reg *Registry) Open(ctx context.Context, provider router.Provider) (Session, error) {
	limiter, ok := reg.limiters[provider]
	if !ok {
		return nil, gwerr.New(gwerr.KindProvider, fmt.Sprintf("provider %s is not configured", provider))
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, gwerr.Wrap(gwerr.KindTimeout, "rate limiter wait", err)
	}

	switch provider {
	case router.ProviderClaude:
		return &claudeSession{client: reg.claude, counter: reg.counter}, nil
	case router.ProviderChatGpt, router.ProviderGrok, router.ProviderPerplexity:
		return &openAICompatSession{client: reg.openai[provider], counter: reg.counter}, nil
	case router.ProviderGemini, router.ProviderNotebookLm:
		return &geminiSession{client: reg.gemini, counter: reg.counter}, nil
	default:
		return nil, gwerr.New(gwerr.KindProvider, fmt.Sprintf("unknown provider %s", provider))
	}
}

// timeSince returns the time elapsed since start in milliseconds, with
// microsecond precision.
func timeSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
