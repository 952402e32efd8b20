package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder paces batch requests to a fixed number per minute.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows requestsPerMinute batch calls per minute with a
// burst of one.
func NewRateLimitedEmbedder(inner Embedder, requestsPerMinute int) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
	}
}

// Embed returns the embedding for a single text.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, r, text)
}

// EmbedBatch waits for a token and then forwards the batch.
func (r *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped embedder's dimensions.
func (r *RateLimitedEmbedder) Dimensions() int { return r.inner.Dimensions() }

// Model returns the wrapped embedder's model.
func (r *RateLimitedEmbedder) Model() string { return r.inner.Model() }

// Close closes the wrapped embedder.
func (r *RateLimitedEmbedder) Close() error { return r.inner.Close() }
