package embedding

import (
	"context"
	"sync"
)

// countingEmbedder records how many batch calls and texts reach the wrapped embedder.
type countingEmbedder struct {
	Embedder
	mu    sync.Mutex
	calls int
	texts int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.texts += len(texts)
	c.mu.Unlock()
	return c.Embedder.EmbedBatch(ctx, texts)
}

// scriptedEmbedder fails with the queued errors before delegating to the mock.
type scriptedEmbedder struct {
	*MockEmbedder
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MockEmbedder.EmbedBatch(ctx, texts)
}

// shortEmbedder drops the last vector of every batch.
type shortEmbedder struct {
	*MockEmbedder
}

func (s shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.MockEmbedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) == 0 {
		return vecs, err
	}
	return vecs[:len(vecs)-1], nil
}
