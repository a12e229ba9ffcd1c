package embedding

import (
	"fmt"

	"github.com/hyperjump/ragkb/internal/config"
	"go.uber.org/zap"
)

// NewEncoder builds the encoder selected by cfg.Provider, wrapped in an LRU cache when
// cfg.CacheSize > 0. Concurrency limits are applied by the caller (see Pool).
func NewEncoder(cfg config.EmbeddingConfig, logger *zap.Logger) (Encoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var enc Encoder
	switch cfg.Provider {
	case config.ProviderHash, "":
		enc = NewHashEncoder(cfg.Dimensions)
	case config.ProviderONNX:
		onnx, err := NewONNXEncoder(cfg.ModelPath, cfg.Model, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		enc = onnx
	case config.ProviderOpenAI:
		oa, err := NewOpenAIEncoder(cfg.APIKey(), cfg.BaseURL, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		enc = oa
	case config.ProviderOllama:
		ol, err := NewOllamaEncoder(cfg.BaseURL, cfg.Model, cfg.Dimensions, nil)
		if err != nil {
			return nil, err
		}
		enc = ol
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hash, onnx, openai, ollama)", cfg.Provider)
	}
	logger.Debug("encoder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", enc.ModelName()),
		zap.Int("dimensions", enc.Dimensions()))
	if cfg.CacheSize > 0 {
		return NewCachedEncoder(enc, cfg.CacheSize), nil
	}
	return enc, nil
}
