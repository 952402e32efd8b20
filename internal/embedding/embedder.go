// Package embedding turns chunk text into dense vectors. Providers (OpenAI,
// Ollama, ONNX, mock) are wrapped with retry, rate limiting and caching, and
// the Batcher drives them over a whole chunk store in fixed-size batches.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Model names the model the vectors come from; it is recorded in the index metadata.
	Model() string
	Close() error
}

// embedOne embeds a single text through EmbedBatch.
func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, batchSizeError(1, len(vecs))
	}
	return vecs[0], nil
}
