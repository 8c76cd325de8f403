// Package provider wraps the upstream model provider behind a small
// interface so the guard can be tested without network access.
package provider

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Result is a completed generation.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Completer produces a completion for a prompt on a model. Implementations
// must honor ctx cancellation and deadlines.
type Completer interface {
	Complete(ctx context.Context, modelID, prompt string) (*Result, error)
}

// OpenAIClient is a Completer backed by an OpenAI-compatible API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient constructs an OpenAIClient. baseURL may be empty for the
// default endpoint, or point at any OpenAI-compatible provider.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
		cfg.BaseURL = trimmed
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Complete sends a single-turn chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, modelID, prompt string) (*Result, error) {
	resp, errCreate := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if errCreate != nil {
		return nil, fmt.Errorf("provider: chat completion: %w", errCreate)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("provider: empty completion for model %s", modelID)
	}
	return &Result{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
