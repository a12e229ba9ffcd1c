package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates a backend for model. baseURL overrides the API endpoint when non-empty.
func NewOpenAIBackend(apiKey, baseURL, model string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name returns "openai".
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Generate sends one non-streaming chat completion and returns the first choice.
func (b *OpenAIBackend) Generate(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", &BackendError{Provider: b.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Provider: b.Name(), Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}
