package embedding

import (
	"fmt"

	"github.com/hyperjump/docindex/internal/config"
	"go.uber.org/zap"
)

// NewEmbedder builds the configured provider and wraps it, from the inside out,
// with rate limiting, retry and caching.
func NewEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	var e Embedder = provider
	if cfg.RequestsPerMinute > 0 {
		e = NewRateLimitedEmbedder(e, cfg.RequestsPerMinute)
	}
	e = NewRetryEmbedder(e, RetryConfig{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		Timeout:         cfg.Retry.Timeout,
	}, logger)
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}

	logger.Debug("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", e.Model()),
		zap.Int("dimensions", e.Dimensions()))
	return e, nil
}

func newProvider(cfg config.EmbeddingConfig) (Embedder, error) {
	dims := cfg.Dimensions
	if dims == 0 {
		dims = config.ModelDimensions(cfg.Model)
	}

	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIEmbedder(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: dims,
		})
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, dims)
	case "onnx":
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("embedding.model_path is required for the onnx provider")
		}
		e, err := NewONNXEmbedder(cfg.ModelPath, dims, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "mock":
		return NewMockEmbedder(dims), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
