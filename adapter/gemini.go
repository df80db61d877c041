package adapter

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/agentgateway/gateway/gwerr"
)

// geminiClient wraps the native Gemini API client, used for both the
// Gemini and NotebookLm providers (spec.md's NotebookLm is routed through
// Gemini's large-context model — see SPEC_FULL.md's Open Questions).
type geminiClient struct {
	client *genai.Client
	model  string
}

func newGeminiClient(apiKey, model string) (*geminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key required")
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiClient{client: client, model: model}, nil
}

type geminiSession struct {
	client  *geminiClient
	counter *tokenCounter
}

func (s *geminiSession) Prompt(ctx context.Context, text string) (*Response, error) {
	start := time.Now()
	resp, err := s.client.client.Models.GenerateContent(ctx, s.client.model, genai.Text(text), nil)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProvider, "gemini generatecontent failed", err)
	}

	out := resp.Text()
	return &Response{
		Text:         out,
		LatencyMs:    timeSince(start),
		PromptTokens: s.counter.Count(text),
		OutputTokens: s.counter.Count(out),
	}, nil
}

func (s *geminiSession) Close() error { return nil }
