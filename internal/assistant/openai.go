package assistant

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI-compatible backends
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func newOpenAIClient(cfg OpenAIConfig) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(config), nil
}

// OpenAI answers through the chat completions API
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-backed assistant
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: client, model: model}, nil
}

// Reply implements Assistant
func (o *OpenAI) Reply(ctx context.Context, q Query) (string, error) {
	if q.Message == "" {
		return "", ErrEmptyQuery
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(q)},
		},
		MaxCompletionTokens: 512,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Whisper transcribes audio with the OpenAI transcription API
type Whisper struct {
	client *openai.Client
}

// NewWhisper creates a Whisper transcriber
func NewWhisper(cfg OpenAIConfig) (*Whisper, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Whisper{client: client}, nil
}

// Transcribe implements Transcriber
func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if filename == "" {
		filename = "query.webm"
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   audio,
		FilePath: filename,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}
