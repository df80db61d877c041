// Package router implements the health-aware, score-based provider router:
// it tracks per-provider latency and failure history and picks the best
// provider (or an ordered shortlist) for a given task type, the way
// llm/router.WeightedRouter in the teacher picks model candidates, scoring
// and sorting rather than round-robining.
package router

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentgateway/gateway/gwerr"
)

// Provider identifies one of the gateway's six upstream AI providers.
type Provider string

const (
	ProviderClaude     Provider = "claude"
	ProviderGrok       Provider = "grok"
	ProviderGemini     Provider = "gemini"
	ProviderChatGpt    Provider = "chatgpt"
	ProviderPerplexity Provider = "perplexity"
	ProviderNotebookLm Provider = "notebooklm"
)

// TaskType classifies a prompt so the router can apply a per-task-type
// bonus in its scoring function (spec.md §4.1).
type TaskType string

const (
	TaskGeneral      TaskType = "general"
	TaskSearch       TaskType = "search"
	TaskLargeContext TaskType = "large_context"
	TaskCode         TaskType = "code"
	TaskCreative     TaskType = "creative"
)

// SearchCapable and LargeContextCapable are the two capability sets spec.md
// §3 declares as "data, not behaviour": which providers are fit for
// retrieval-style tasks, and which accept very long inputs. Grok and
// Perplexity both front live web search; Gemini is grounded with search by
// default. Claude, Gemini and NotebookLM are the providers this gateway
// treats as accepting very long contexts.
var (
	SearchCapable = map[Provider]bool{
		ProviderGrok:       true,
		ProviderGemini:     true,
		ProviderPerplexity: true,
	}
	LargeContextCapable = map[Provider]bool{
		ProviderClaude:     true,
		ProviderGemini:     true,
		ProviderNotebookLm: true,
	}
)

// codeAffine and creativeAffine are the fixed small provider sets spec.md
// §4.1's task_bonus names directly, rather than declaring as data.
var (
	codeAffine     = map[Provider]bool{ProviderClaude: true, ProviderChatGpt: true}
	creativeAffine = map[Provider]bool{ProviderGemini: true, ProviderClaude: true}
)

// taskBonus computes spec.md §4.1's task_bonus(p,t) term.
func taskBonus(p Provider, task TaskType) float64 {
	switch task {
	case TaskSearch:
		if SearchCapable[p] {
			return 50
		}
	case TaskLargeContext:
		if LargeContextCapable[p] {
			return 30
		}
	case TaskCode:
		if codeAffine[p] {
			return 20
		}
	case TaskCreative:
		if creativeAffine[p] {
			return 15
		}
	}
	return 0
}

// CatalogueEntry describes one provider in the fixed six-provider
// catalogue, independent of runtime enablement or health.
type CatalogueEntry struct {
	Provider            Provider `json:"provider"`
	SearchCapable       bool     `json:"search_capable"`
	LargeContextCapable bool     `json:"large_context_capable"`
}

// catalogueOrder is spec.md §3's closed six-provider set, in a fixed
// presentation order.
var catalogueOrder = []Provider{
	ProviderClaude, ProviderGrok, ProviderGemini, ProviderChatGpt, ProviderPerplexity, ProviderNotebookLm,
}

// Catalogue returns the static provider enumeration spec.md §6's
// agent_list_providers tool reports, annotated with each provider's
// search/large-context capability. Unlike AvailableProviders, it never
// shrinks when a provider is disabled or goes unhealthy.
func Catalogue() []CatalogueEntry {
	out := make([]CatalogueEntry, 0, len(catalogueOrder))
	for _, p := range catalogueOrder {
		out = append(out, CatalogueEntry{
			Provider:            p,
			SearchCapable:       SearchCapable[p],
			LargeContextCapable: LargeContextCapable[p],
		})
	}
	return out
}

// ProviderResponse is one provider's contribution to a parallel or
// consensus call (spec.md §3): its text, and whether it was picked as the
// consensus winner.
type ProviderResponse struct {
	Provider   Provider `json:"provider"`
	Text       string   `json:"text"`
	Selected   bool     `json:"selected"`
	Confidence *float64 `json:"confidence,omitempty"`
}

const (
	// unhealthyFailureThreshold is the consecutive-failure count at which
	// a provider is considered unhealthy, provided the most recent
	// failure also falls inside unhealthyWindow.
	unhealthyFailureThreshold = 3
	unhealthyWindow           = 300 * time.Second

	// emaNewWeight/emaHistoryWeight are the exponential-moving-average
	// smoothing weights applied to latency observations.
	emaNewWeight     = 0.1
	emaHistoryWeight = 0.9

	// loadBalancePenaltyModulo bounds the load-balancing penalty term so
	// providers with very high request counts still occasionally win.
	loadBalancePenaltyModulo = 100
)

// Health tracks the rolling health signal for one provider.
type Health struct {
	ConsecutiveFailures int
	LastFailureAt       time.Time
	LastSuccessAt       time.Time
}

// Healthy reports whether the provider should still be considered for
// routing: it is unhealthy only once it has failed unhealthyFailureThreshold
// times in a row AND the most recent of those failures is recent.
func (h Health) Healthy(now time.Time) bool {
	if h.ConsecutiveFailures < unhealthyFailureThreshold {
		return true
	}
	return now.Sub(h.LastFailureAt) > unhealthyWindow
}

// Stats accumulates counters surfaced through the agent_status tool and
// the router's internal scoring.
type Stats struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	TotalTokens        uint64
	AvgLatencyMs       float64
}

// Preferences is a provider's static routing configuration: whether it is
// enabled at all, and the priority term used in scoring.
type Preferences struct {
	Enabled  bool
	Priority int
}

// Router is the concrete, health-aware provider router. All mutable state
// lives behind mu, following the teacher's WeightedRouter: short critical
// sections, no I/O while holding the lock.
type Router struct {
	mu          sync.RWMutex
	preferences map[Provider]Preferences
	health      map[Provider]*Health
	stats       map[Provider]*Stats
	logger      *zap.Logger
}

// New builds a Router from a set of provider preferences. A nil logger
// falls back to zap.NewNop(), matching the teacher's nil-logger guard.
func New(prefs map[Provider]Preferences, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		preferences: make(map[Provider]Preferences, len(prefs)),
		health:      make(map[Provider]*Health, len(prefs)),
		stats:       make(map[Provider]*Stats, len(prefs)),
		logger:      logger,
	}
	for p, pref := range prefs {
		r.preferences[p] = pref
		r.health[p] = &Health{}
		r.stats[p] = &Stats{}
	}
	return r
}

// score computes the additive selection score for provider p under task,
// combining priority, task-type affinity, a failure penalty, a latency
// penalty, and a load-balancing penalty that cycles modulo 100.
func (r *Router) score(p Provider, task TaskType) float64 {
	pref := r.preferences[p]
	h := r.health[p]
	s := r.stats[p]

	score := float64(pref.Priority)
	score += taskBonus(p, task)
	score -= float64(h.ConsecutiveFailures) * 10
	score -= math.Floor(s.AvgLatencyMs / 1000)
	score -= float64(s.TotalRequests%loadBalancePenaltyModulo) * 0.1
	return score
}

// availableLocked returns the providers that are enabled and currently
// healthy, in no particular order. Caller must hold at least r.mu.RLock.
func (r *Router) availableLocked(now time.Time) []Provider {
	var avail []Provider
	for p, pref := range r.preferences {
		if !pref.Enabled {
			continue
		}
		if !r.health[p].Healthy(now) {
			continue
		}
		avail = append(avail, p)
	}
	return avail
}

// AvailableProviders returns the providers currently eligible for routing.
func (r *Router) AvailableProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableLocked(time.Now())
}

// SelectBest returns the single highest-scoring available provider for
// task. Returns gwerr.KindNoProviders if nothing is eligible.
func (r *Router) SelectBest(task TaskType) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	avail := r.availableLocked(time.Now())
	if len(avail) == 0 {
		return "", gwerr.New(gwerr.KindNoProviders, "no healthy providers available")
	}

	best := avail[0]
	bestScore := r.score(best, task)
	for _, p := range avail[1:] {
		if s := r.score(p, task); s > bestScore {
			best, bestScore = p, s
		}
	}
	return best, nil
}

// SelectMultiple returns exactly n available providers for task, ordered
// by descending score, for use by parallel/consensus prompts. It fails
// with gwerr.KindNoProviders if fewer than n candidates remain healthy
// and enabled; a partial result is never returned.
func (r *Router) SelectMultiple(task TaskType, n int) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	avail := r.availableLocked(time.Now())
	if len(avail) < n {
		return nil, gwerr.New(gwerr.KindNoProviders,
			fmt.Sprintf("need %d providers but only %d available", n, len(avail)))
	}

	type scored struct {
		p Provider
		s float64
	}
	ranked := make([]scored, 0, len(avail))
	for _, p := range avail {
		ranked = append(ranked, scored{p, r.score(p, task)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].s > ranked[j].s })

	out := make([]Provider, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].p
	}
	return out, nil
}

// RecordSuccess updates health and stats after a successful call,
// resetting the consecutive-failure counter and folding latencyMs into
// the EMA-smoothed average latency.
func (r *Router) RecordSuccess(p Provider, latencyMs float64, tokens uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.health[p]
	h.ConsecutiveFailures = 0
	h.LastSuccessAt = time.Now()

	s := r.stats[p]
	s.TotalRequests++
	s.SuccessfulRequests++
	s.TotalTokens += tokens
	if s.AvgLatencyMs == 0 {
		s.AvgLatencyMs = latencyMs
	} else {
		s.AvgLatencyMs = emaHistoryWeight*s.AvgLatencyMs + emaNewWeight*latencyMs
	}
}

// RecordFailure updates health and stats after a failed call.
func (r *Router) RecordFailure(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.health[p]
	h.ConsecutiveFailures++
	h.LastFailureAt = time.Now()

	s := r.stats[p]
	s.TotalRequests++
	s.FailedRequests++
}

// GetStats returns a snapshot copy of one provider's stats.
func (r *Router) GetStats(p Provider) Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.stats[p]; ok {
		return *s
	}
	return Stats{}
}

// AllStats returns a snapshot of every configured provider's stats, keyed
// by provider, for the agent_status tool.
func (r *Router) AllStats() map[Provider]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Provider]Stats, len(r.stats))
	for p, s := range r.stats {
		out[p] = *s
	}
	return out
}

// ParseProvider maps a case-insensitive provider string (including the
// "openai" and "notebook" aliases spec.md §6 calls out) onto a Provider.
func ParseProvider(s string) (Provider, bool) {
	switch normalizeProviderString(s) {
	case "claude":
		return ProviderClaude, true
	case "grok":
		return ProviderGrok, true
	case "gemini":
		return ProviderGemini, true
	case "chatgpt", "openai":
		return ProviderChatGpt, true
	case "perplexity":
		return ProviderPerplexity, true
	case "notebooklm", "notebook":
		return ProviderNotebookLm, true
	default:
		return "", false
	}
}

func normalizeProviderString(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
