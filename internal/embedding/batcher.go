package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/docindex/internal/models"
	"github.com/hyperjump/docindex/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of texts sent per provider call.
const DefaultBatchSize = 128

// Batcher embeds a sequence of texts in fixed-size batches and reassembles the
// vectors in input order.
type Batcher struct {
	embedder    Embedder
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithConcurrency sets how many batches may be in flight at once.
func WithConcurrency(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithLogger sets a logger for per-batch progress.
func WithLogger(l *zap.Logger) BatcherOption {
	return func(b *Batcher) { b.logger = l }
}

// NewBatcher creates a batcher over e. batchSize must be positive.
func NewBatcher(e Embedder, batchSize int, opts ...BatcherOption) (*Batcher, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	b := &Batcher{
		embedder:    e,
		batchSize:   batchSize,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// EmbedChunks embeds the chunks' embedding inputs; row i belongs to chunks[i].
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].EmbeddingInput()
	}
	return b.EmbedAll(ctx, texts)
}

// EmbedAll returns one vector per text, with row i for texts[i]. The first failing
// batch cancels the others and nothing partial is returned.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	total := (len(texts) + b.batchSize - 1) / b.batchSize
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for n, offset := 0, 0; offset < len(texts); n, offset = n+1, offset+b.batchSize {
		end := min(offset+b.batchSize, len(texts))
		batch := texts[offset:end]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vecs, err := b.embedBatch(gctx, offset, batch)
			if err != nil {
				return fmt.Errorf("batch %d/%d (offset %d): %w", n+1, total, offset, err)
			}
			copy(out[offset:], vecs)
			b.logger.Debug("embedded batch",
				zap.Int("batch", n+1),
				zap.Int("batches", total),
				zap.Int("size", len(batch)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Batcher) embedBatch(ctx context.Context, offset int, batch []string) ([][]float32, error) {
	ctx, span := observability.StartBatchSpan(ctx, b.embedder.Model(), offset, len(batch))
	defer span.End()

	vecs, err := b.embedder.EmbedBatch(ctx, batch)
	if err == nil && len(vecs) != len(batch) {
		err = batchSizeError(len(batch), len(vecs))
	}
	observability.RecordError(span, err)
	return vecs, err
}
