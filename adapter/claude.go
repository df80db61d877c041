package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentgateway/gateway/gwerr"
)

// claudeClient wraps the native Anthropic Messages API client.
type claudeClient struct {
	client *anthropic.Client
	model  string
}

func newClaudeClient(apiKey, model string) (*claudeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude: api key required")
	}
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &claudeClient{client: &c, model: model}, nil
}

type claudeSession struct {
	client  *claudeClient
	counter *tokenCounter
}

func (s *claudeSession) Prompt(ctx context.Context, text string) (*Response, error) {
	start := time.Now()
	resp, err := s.client.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.client.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProvider, "claude messages.new failed", err)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}

	return &Response{
		Text:         out,
		LatencyMs:    timeSince(start),
		PromptTokens: s.counter.Count(text),
		OutputTokens: s.counter.Count(out),
	}, nil
}

func (s *claudeSession) Close() error { return nil }
