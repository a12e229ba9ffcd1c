package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaEncoder calls the Ollama /api/embed endpoint.
type OllamaEncoder struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaEncoder creates an encoder for model served at baseURL.
func NewOllamaEncoder(baseURL, model string, dimensions int, httpClient *http.Client) (*OllamaEncoder, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("ollama encoder: dimensions must be positive")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaEncoder{
		client:     api.NewClient(u, httpClient),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Encode embeds all texts in a single request.
func (e *OllamaEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if err := checkBatch(resp.Embeddings, len(texts), e.dimensions); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return resp.Embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEncoder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the embedding model name.
func (e *OllamaEncoder) ModelName() string {
	return e.model
}

// Close is a no-op.
func (e *OllamaEncoder) Close() error {
	return nil
}
