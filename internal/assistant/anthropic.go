package assistant

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured
const DefaultAnthropicModel = "claude-haiku-4-5-20251001"

// Anthropic answers through the Anthropic Messages API
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an Anthropic-backed assistant
func NewAnthropic(apiKey, model string, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(opts...)

	return &Anthropic{
		client:    &client,
		model:     model,
		maxTokens: 512,
	}, nil
}

// Reply implements Assistant
func (a *Anthropic) Reply(ctx context.Context, q Query) (string, error) {
	if q.Message == "" {
		return "", ErrEmptyQuery
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(q))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}
