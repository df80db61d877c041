package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgateway/gateway/config"
	"github.com/agentgateway/gateway/router"
)

func emptyPrefs() config.ProviderPreferences {
	return config.ProviderPreferences{}
}

func TestOpenAICompatSessionPromptReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-5",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": "hello back",
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := newOpenAICompatClient("test-key", srv.URL, "gpt-5")
	session := &openAICompatSession{client: client, counter: newTokenCounter()}

	resp, err := session.Prompt(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello back", resp.Text)
	assert.Positive(t, resp.PromptTokens)
	assert.Positive(t, resp.OutputTokens)
}

func TestOpenAICompatSessionPropagatesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newOpenAICompatClient("test-key", srv.URL, "gpt-5")
	session := &openAICompatSession{client: client, counter: newTokenCounter()}

	_, err := session.Prompt(context.Background(), "hello")
	require.Error(t, err)
}

func TestTokenCounterCountsNonEmptyText(t *testing.T) {
	tc := newTokenCounter()
	assert.Positive(t, tc.Count("hello world, this is a test prompt"))
	assert.Zero(t, tc.Count(""))
}

func TestRegistryOpenRejectsUnconfiguredProvider(t *testing.T) {
	reg, err := NewRegistry(emptyPrefs(), false)
	require.NoError(t, err)

	_, err = reg.Open(context.Background(), router.ProviderClaude)
	require.Error(t, err)
}
