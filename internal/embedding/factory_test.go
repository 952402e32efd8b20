package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/docindex/internal/config"
)

func TestNewEmbedder_Mock(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Provider:          "mock",
		Dimensions:        8,
		CacheSize:         16,
		RequestsPerMinute: 6000,
		Retry:             config.RetryConfig{MaxRetries: 1},
	}
	e, err := NewEmbedder(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("outermost wrapper should be the cache, got %T", e)
	}
	if e.Dimensions() != 8 || e.Model() != MockModel {
		t.Errorf("unexpected dimensions %d or model %q", e.Dimensions(), e.Model())
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil || len(vecs) != 2 {
		t.Fatalf("EmbedBatch: %v, %d vectors", err, len(vecs))
	}
}

func TestNewEmbedder_NoCache(t *testing.T) {
	e, err := NewEmbedder(config.EmbeddingConfig{Provider: "mock", Dimensions: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*RetryEmbedder); !ok {
		t.Errorf("without a cache the retry wrapper is outermost, got %T", e)
	}
}

func TestNewEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EmbeddingConfig
	}{
		{"unknown provider", config.EmbeddingConfig{Provider: "nope"}},
		{"openai without key", config.EmbeddingConfig{Provider: "openai", Model: config.DefaultModel}},
		{"onnx without model path", config.EmbeddingConfig{Provider: "onnx", Dimensions: 384}},
		{"ollama without model", config.EmbeddingConfig{Provider: "ollama"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEmbedder(tt.cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewEmbedder_OpenAIUsesModelTable(t *testing.T) {
	e, err := NewEmbedder(config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-large", APIKey: "k"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimensions() != 3072 {
		t.Errorf("dimensions = %d, want 3072", e.Dimensions())
	}
}
