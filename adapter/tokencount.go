package adapter

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter populates ProviderStats.total_tokens (spec.md §3 allows
// counters, not a full cost model). A single cl100k_base encoding is
// shared across providers: spec.md's Non-goals exclude per-provider
// cost accounting, so an approximate, uniform counter is sufficient.
type tokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Falls back to a nil encoding; Count degrades to a
		// four-characters-per-token estimate rather than failing prompt
		// delivery over a counter.
		return &tokenCounter{}
	}
	return &tokenCounter{enc: enc}
}

// Count returns the token count for text, or a rough estimate of one
// token per four bytes of text if the encoder failed to load.
func (tc *tokenCounter) Count(text string) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.enc == nil {
		return len(text) / 4
	}
	return len(tc.enc.Encode(text, nil, nil))
}
