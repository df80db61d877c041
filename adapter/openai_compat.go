package adapter

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/agentgateway/gateway/gwerr"
)

// openAICompatClient drives any OpenAI-chat-completions-compatible
// endpoint (OpenAI itself, xAI's Grok endpoint, Perplexity's endpoint) by
// pointing one openai.Client at a different BaseURL per provider —
// grounded on the reefline BYOK client's providerBaseURLs map in the
// retrieved example pack.
type openAICompatClient struct {
	client *openai.Client
	model  string
}

func newOpenAICompatClient(apiKey, baseURL, model string) *openAICompatClient {
	c := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	return &openAICompatClient{client: &c, model: model}
}

type openAICompatSession struct {
	client  *openAICompatClient
	counter *tokenCounter
}

func (s *openAICompatSession) Prompt(ctx context.Context, text string) (*Response, error) {
	start := time.Now()
	params := openai.ChatCompletionNewParams{
		Model: s.client.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(text),
		},
		MaxTokens: openai.Int(4096),
	}

	resp, err := s.client.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProvider, "chat completions.new failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, gwerr.New(gwerr.KindProvider, "provider returned no choices")
	}

	out := resp.Choices[0].Message.Content
	return &Response{
		Text:         out,
		LatencyMs:    timeSince(start),
		PromptTokens: s.counter.Count(text),
		OutputTokens: s.counter.Count(out),
	}, nil
}

func (s *openAICompatSession) Close() error { return nil }
