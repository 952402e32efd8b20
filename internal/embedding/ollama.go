package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	chromem "github.com/philippgille/chromem-go"
)

// DefaultOllamaURL is the local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaEmbedder embeds text through a local Ollama server.
type OllamaEmbedder struct {
	embed      chromem.EmbeddingFunc
	model      string
	dimensions atomic.Int64
}

// NewOllamaEmbedder creates an embedder for model served at baseURL
// (for example http://localhost:11434). Dimensions may be 0, in which case they
// are learned from the first response.
func NewOllamaEmbedder(baseURL, model string, dimensions int) (*OllamaEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api"
	e := &OllamaEmbedder{
		embed: chromem.NewEmbeddingFuncOllama(model, apiURL),
		model: model,
	}
	e.dimensions.Store(int64(dimensions))
	return e, nil
}

// Embed returns the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	e.dimensions.CompareAndSwap(0, int64(len(v)))
	return v, nil
}

// EmbedBatch embeds texts one request at a time; Ollama has no batch endpoint
// in this client.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured or observed dimension, 0 before the first call
// when none was configured.
func (e *OllamaEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

// Model returns the Ollama model name.
func (e *OllamaEmbedder) Model() string {
	return e.model
}

// Close is a no-op.
func (e *OllamaEmbedder) Close() error {
	return nil
}
