package keyword

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hyperjump/docindex/internal/models"
	"go.uber.org/zap"
)

const (
	docType = "chunk"
	// batchSize is the number of chunks written per bleve batch.
	batchSize = 500
)

// BleveIndex implements Index on a bleve index directory.
type BleveIndex struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	index bleve.Index
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets the logger used for rebuild progress.
func WithLogger(l *zap.Logger) Option {
	return func(b *BleveIndex) { b.logger = l }
}

// NewBleveIndex opens the index at path, creating an empty one when none exists.
func NewBleveIndex(path string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bleve index: %w", err)
		}
		b.index = index
		return b, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// newMapping indexes rel as a single keyword term and section and text with the
// standard analyzer (lowercase, no stemming).
func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	doc.AddFieldMappingsAt("section", textField)
	doc.AddFieldMappingsAt("text", textField)
	doc.AddFieldMappingsAt("rel", bleve.NewKeywordFieldMapping())

	im.AddDocumentMapping(docType, doc)
	im.DefaultType = docType
	im.DefaultMapping = doc
	return im
}

// Rebuild writes chunks into a fresh index beside the current one and swaps it in.
// On failure the current index is left untouched.
func (b *BleveIndex) Rebuild(ctx context.Context, chunks []models.Chunk) error {
	tmp := b.path + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	fresh, err := bleve.New(tmp, newMapping())
	if err != nil {
		return fmt.Errorf("failed to create bleve index: %w", err)
	}
	if err := fill(ctx, fresh, chunks); err != nil {
		fresh.Close()
		os.RemoveAll(tmp)
		return err
	}
	if err := fresh.Close(); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		if err := b.index.Close(); err != nil {
			return err
		}
		b.index = nil
	}
	if err := os.RemoveAll(b.path); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("failed to replace bleve index: %w", err)
	}
	index, err := bleve.Open(b.path)
	if err != nil {
		return fmt.Errorf("failed to reopen bleve index: %w", err)
	}
	b.index = index
	b.logger.Debug("keyword index rebuilt", zap.String("path", b.path), zap.Int("chunks", len(chunks)))
	return nil
}

func fill(ctx context.Context, index bleve.Index, chunks []models.Chunk) error {
	batch := index.NewBatch()
	for i := range chunks {
		if err := batch.Index(chunks[i].ID, toDoc(&chunks[i])); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", chunks[i].ID, err)
		}
		if batch.Size() < batchSize {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := index.Batch(batch); err != nil {
			return err
		}
		batch.Reset()
	}
	if batch.Size() > 0 {
		return index.Batch(batch)
	}
	return nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return 0, nil
	}
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}
