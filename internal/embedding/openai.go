package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEncoder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEncoder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEncoder creates an encoder for model. baseURL overrides the API endpoint when non-empty.
func NewOpenAIEncoder(apiKey, baseURL, model string, dimensions int) (*OpenAIEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai encoder: API key is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("openai encoder: dimensions must be positive")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEncoder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Encode sends all texts in one request and orders the response by input index.
func (e *OpenAIEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	if err := checkBatch(out, len(texts), e.dimensions); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEncoder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the embedding model name.
func (e *OpenAIEncoder) ModelName() string {
	return e.model
}

// Close is a no-op.
func (e *OpenAIEncoder) Close() error {
	return nil
}
