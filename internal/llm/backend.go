// Package llm provides generative chat backends used to synthesize grounded answers.
package llm

import (
	"context"
	"fmt"

	"github.com/hyperjump/ragkb/internal/config"
)

// Backend generates a completion for one system + user prompt pair.
type Backend interface {
	Generate(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error)
	Name() string
}

// BackendError wraps any failure reported by a generative backend.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackend returns the backend selected by cfg. It returns (nil, nil) when no provider is
// configured or when the OpenAI provider has no API key, so callers fall back to extractive answers.
func NewBackend(cfg config.LLMConfig) (Backend, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		key := cfg.APIKey()
		if key == "" {
			return nil, nil
		}
		return NewOpenAIBackend(key, cfg.BaseURL, cfg.Model), nil
	case config.ProviderOllama:
		return NewOllamaBackend(cfg.BaseURL, cfg.Model, nil)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: openai, ollama, none)", cfg.Provider)
	}
}
