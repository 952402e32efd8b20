package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/docindex/internal/extract"
	"github.com/hyperjump/docindex/internal/manifest"
	"github.com/hyperjump/docindex/internal/models"
	"github.com/hyperjump/docindex/internal/storage"
	"go.uber.org/zap"
)

// ChunkSummary reports the outcome of a chunk run.
type ChunkSummary struct {
	Documents int `json:"documents"`
	Skipped   int `json:"skipped"`
	Chunks    int `json:"chunks"`
}

// ChunkWriter drains the chunker for every manifest entry and writes the chunk store.
type ChunkWriter struct {
	chunker *Chunker
	loader  *extract.Loader
	logger  *zap.Logger
}

// ChunkWriterOption configures a ChunkWriter.
type ChunkWriterOption func(*ChunkWriter)

// WithLogger sets a logger for skipped documents and per-document debug output.
func WithLogger(l *zap.Logger) ChunkWriterOption {
	return func(w *ChunkWriter) { w.logger = l }
}

// NewChunkWriter creates a chunk writer reading documents through loader.
func NewChunkWriter(chunker *Chunker, loader *extract.Loader, opts ...ChunkWriterOption) *ChunkWriter {
	w := &ChunkWriter{
		chunker: chunker,
		loader:  loader,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteFromManifest reads the manifest at manifestPath and writes the chunk store
// to outPath. A missing manifest fails before anything is written.
func (w *ChunkWriter) WriteFromManifest(ctx context.Context, manifestPath, outPath string) (*ChunkSummary, error) {
	entries, err := manifest.Read(manifestPath)
	if err != nil {
		return nil, err
	}
	return w.Write(ctx, entries, outPath)
}

// Write chunks every entry in order and atomically replaces outPath with the result.
// Entries whose document is missing are logged and skipped. Any other error aborts
// the run and leaves the previous chunk store in place, including a rel that
// appears twice.
func (w *ChunkWriter) Write(ctx context.Context, entries []models.ManifestEntry, outPath string) (*ChunkSummary, error) {
	store, err := storage.CreateChunkStore(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk store: %w", err)
	}
	defer store.Abort()

	summary := &ChunkSummary{}
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := seen[entry.Rel]; dup {
			return nil, fmt.Errorf("%w: %s", manifest.ErrDuplicateEntry, entry.Rel)
		}
		seen[entry.Rel] = struct{}{}
		doc, err := w.loader.Load(entry)
		if errors.Is(err, extract.ErrDocumentNotFound) {
			w.logger.Warn("missing document, skipping", zap.String("rel", entry.Rel), zap.String("path", w.loader.Path(entry.Rel)))
			summary.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}

		n := 0
		for chunk := range w.chunker.Chunk(doc) {
			chunk.ID = models.ChunkID(chunk.Rel, chunk.ChunkIndex)
			if err := store.Write(&chunk); err != nil {
				return nil, err
			}
			n++
		}
		summary.Documents++
		summary.Chunks += n
		w.logger.Debug("document chunked", zap.String("rel", entry.Rel), zap.Int("chunks", n))
	}

	if err := store.Commit(); err != nil {
		return nil, err
	}
	return summary, nil
}
