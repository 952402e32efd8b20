// Package pipeline runs the chunk, embed, index and sidecar stages as one build.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/docindex/internal/config"
	"github.com/hyperjump/docindex/internal/embedding"
	"github.com/hyperjump/docindex/internal/extract"
	"github.com/hyperjump/docindex/internal/fileid"
	"github.com/hyperjump/docindex/internal/indexer"
	"github.com/hyperjump/docindex/internal/keyword"
	"github.com/hyperjump/docindex/internal/models"
	"github.com/hyperjump/docindex/internal/observability"
	"github.com/hyperjump/docindex/internal/storage"
	"github.com/hyperjump/docindex/internal/vector"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrBuildInProgress is returned when a build is started while another is running.
	ErrBuildInProgress = errors.New("build in progress")
	// ErrNoEmbedder is returned by the embed stage of a chunk-only pipeline.
	ErrNoEmbedder = errors.New("no embedder configured")
)

// Stage names, used in span names and error prefixes.
const (
	StageChunk      = "chunk"
	StageEmbed      = "embed"
	StageBuildIndex = "build_index"
	StageSidecars   = "sidecars"
)

// Exporter receives the normalized vectors after an index build.
type Exporter interface {
	Export(ctx context.Context, dims int, records []vector.ExportRecord) error
}

// Summary reports what a run produced.
type Summary struct {
	RunID      string `json:"run_id"`
	Documents  int    `json:"documents"`
	Skipped    int    `json:"skipped"`
	Chunks     int    `json:"chunks"`
	Vectors    int    `json:"vectors"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
	IndexType  string `json:"index_type,omitempty"`
	IndexPath  string `json:"index_path,omitempty"`
	MetaPath   string `json:"meta_path,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Pipeline owns the build components. Only one build runs at a time.
type Pipeline struct {
	storage  config.StorageConfig
	writer   *indexer.ChunkWriter
	embedder embedding.Embedder
	batcher  *embedding.Batcher
	builder  *vector.Builder

	catalog  storage.Catalog
	keywords keyword.Index
	exporter Exporter

	logger *zap.Logger
	mu     sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger. It is also handed to the stage components.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithCatalog replaces the chunk catalog after every index build.
func WithCatalog(c storage.Catalog) Option {
	return func(p *Pipeline) { p.catalog = c }
}

// WithKeywordIndex rebuilds a keyword index after every index build.
func WithKeywordIndex(k keyword.Index) Option {
	return func(p *Pipeline) { p.keywords = k }
}

// WithExporter pushes vectors to an external store after every index build.
func WithExporter(e Exporter) Option {
	return func(p *Pipeline) { p.exporter = e }
}

// New wires the stage components from cfg around embedder. A nil embedder gives
// a pipeline that can only chunk.
func New(cfg *config.Config, embedder embedding.Embedder, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{storage: cfg.Storage, embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	chunker, err := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.HeaderLevels)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}
	loader := extract.NewLoader(cfg.Storage.RawDir, extract.NewExtractor())
	p.writer = indexer.NewChunkWriter(chunker, loader, indexer.WithLogger(p.logger))

	if embedder != nil {
		p.batcher, err = embedding.NewBatcher(embedder, cfg.Embedding.BatchSize,
			embedding.WithConcurrency(cfg.Embedding.Concurrency),
			embedding.WithLogger(p.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create batcher: %w", err)
		}
	}

	p.builder, err = vector.NewBuilder(cfg.Vector.IndexType, vector.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create index builder: %w", err)
	}
	return p, nil
}

func (p *Pipeline) acquire() error {
	if !p.mu.TryLock() {
		return ErrBuildInProgress
	}
	return nil
}

// Chunk runs the chunk stage only.
func (p *Pipeline) Chunk(ctx context.Context) (*Summary, error) {
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	start := time.Now()
	sum := &Summary{RunID: uuid.NewString()}
	if err := p.chunk(ctx, sum); err != nil {
		return nil, err
	}
	sum.DurationMS = time.Since(start).Milliseconds()
	return sum, nil
}

// Index embeds the existing chunk store, builds the index and refreshes the sidecars.
func (p *Pipeline) Index(ctx context.Context) (*Summary, error) {
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	start := time.Now()
	sum := &Summary{RunID: uuid.NewString()}
	if err := p.index(ctx, sum); err != nil {
		return nil, err
	}
	sum.DurationMS = time.Since(start).Milliseconds()
	return sum, nil
}

// Run executes every stage in order. A failing stage stops the run and its error
// is prefixed with the stage name.
func (p *Pipeline) Run(ctx context.Context) (sum *Summary, err error) {
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	start := time.Now()
	sum = &Summary{RunID: uuid.NewString()}
	ctx, span := observability.StartStageSpan(ctx, "run", attribute.String("docindex.run_id", sum.RunID))
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	p.logger.Info("build started", zap.String("run_id", sum.RunID))
	if err := p.chunk(ctx, sum); err != nil {
		return nil, err
	}
	if err := p.index(ctx, sum); err != nil {
		return nil, err
	}
	sum.DurationMS = time.Since(start).Milliseconds()
	p.logger.Info("build finished",
		zap.String("run_id", sum.RunID),
		zap.Int("documents", sum.Documents),
		zap.Int("skipped", sum.Skipped),
		zap.Int("chunks", sum.Chunks),
		zap.Int("vectors", sum.Vectors),
		zap.Int64("duration_ms", sum.DurationMS))
	return sum, nil
}

func (p *Pipeline) chunk(ctx context.Context, sum *Summary) error {
	return p.stage(ctx, StageChunk, func(ctx context.Context) error {
		cs, err := p.writer.WriteFromManifest(ctx, p.storage.ManifestPath, p.storage.ChunksPath)
		if err != nil {
			return err
		}
		sum.Documents, sum.Skipped, sum.Chunks = cs.Documents, cs.Skipped, cs.Chunks
		p.logger.Info("chunk store written",
			zap.String("path", p.storage.ChunksPath),
			zap.Int("documents", cs.Documents),
			zap.Int("skipped", cs.Skipped),
			zap.Int("chunks", cs.Chunks))
		return nil
	})
}

func (p *Pipeline) index(ctx context.Context, sum *Summary) error {
	var chunks []models.Chunk
	var vectors [][]float32
	var digest string
	err := p.stage(ctx, StageEmbed, func(ctx context.Context) error {
		if p.batcher == nil {
			return ErrNoEmbedder
		}
		var err error
		if chunks, err = storage.ReadChunks(p.storage.ChunksPath); err != nil {
			return err
		}
		if digest, err = fileid.Digest(p.storage.ChunksPath); err != nil {
			return fmt.Errorf("failed to digest chunk store: %w", err)
		}
		if len(chunks) == 0 {
			return vector.ErrEmptyCorpus
		}
		vectors, err = p.batcher.EmbedChunks(ctx, chunks)
		if err != nil {
			return err
		}
		p.logger.Info("chunks embedded", zap.String("model", p.embedder.Model()), zap.Int("vectors", len(vectors)))
		return nil
	})
	if err != nil {
		return err
	}
	if sum.Chunks == 0 {
		sum.Chunks = len(chunks)
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	var res *vector.BuildResult
	err = p.stage(ctx, StageBuildIndex, func(ctx context.Context) error {
		r, err := p.builder.Build(ctx, vector.BuildInput{
			IDs:          ids,
			Vectors:      vectors,
			Model:        p.embedder.Model(),
			ChunksSHA256: digest,
			Dir:          p.storage.IndexDir,
		})
		res = r
		return err
	})
	if err != nil {
		return err
	}
	meta := res.Metadata
	sum.Vectors = meta.Count
	sum.Model = meta.Model
	sum.Dimensions = meta.Dimensions
	sum.IndexType = meta.IndexType
	sum.IndexPath = res.IndexPath
	sum.MetaPath = res.MetaPath

	return p.stage(ctx, StageSidecars, func(ctx context.Context) error {
		return p.sidecars(ctx, sum.RunID, meta, chunks, vectors)
	})
}

// sidecars refreshes the catalog, the keyword index and the export target from
// the chunks and the normalized vectors of a persisted index.
func (p *Pipeline) sidecars(ctx context.Context, runID string, meta *vector.IndexMetadata, chunks []models.Chunk, vectors [][]float32) error {
	if p.catalog != nil {
		build := &storage.BuildRecord{
			RunID:        runID,
			Model:        meta.Model,
			IndexType:    meta.IndexType,
			Count:        meta.Count,
			Dimensions:   meta.Dimensions,
			ChunksSHA256: meta.ChunksSHA256,
		}
		if err := p.catalog.ReplaceAll(ctx, build, chunks); err != nil {
			return fmt.Errorf("failed to update catalog: %w", err)
		}
	}
	if p.keywords != nil {
		if err := p.keywords.Rebuild(ctx, chunks); err != nil {
			return fmt.Errorf("failed to rebuild keyword index: %w", err)
		}
	}
	if p.exporter != nil {
		records := make([]vector.ExportRecord, len(chunks))
		for i := range chunks {
			records[i] = vector.ExportRecord{
				ChunkID: chunks[i].ID,
				Rel:     chunks[i].Rel,
				Section: chunks[i].Section,
				Source:  chunks[i].Source,
				Vector:  vectors[i],
			}
		}
		if err := p.exporter.Export(ctx, meta.Dimensions, records); err != nil {
			return fmt.Errorf("failed to export vectors: %w", err)
		}
	}
	return nil
}

// stage runs fn inside a "pipeline.<name>" span and prefixes its error with the stage name.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := observability.StartStageSpan(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("%s stage: %w", name, err)
	}
	return nil
}
