package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/docindex/internal/config"
	"github.com/hyperjump/docindex/internal/embedding"
	"github.com/hyperjump/docindex/internal/keyword"
	"github.com/hyperjump/docindex/internal/observability"
	"github.com/hyperjump/docindex/internal/pipeline"
	"github.com/hyperjump/docindex/internal/storage"
	"github.com/hyperjump/docindex/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Tracing  *observability.TracerProvider
	Embedder embedding.Embedder
	Catalog  *storage.SQLiteCatalog
	Keywords *keyword.BleveIndex
	Exporter *vector.QdrantSink
	Pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// Close releases everything in reverse order of creation and flushes pending spans.
func (c *Components) Close() {
	if c.Exporter != nil {
		_ = c.Exporter.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Tracing.Shutdown(ctx); err != nil {
			c.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Tracing, err = observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	c.Embedder, err = embedding.NewEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Catalog, err = storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	c.Keywords, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath, keyword.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithCatalog(c.Catalog),
		pipeline.WithKeywordIndex(c.Keywords),
	}
	if q := cfg.Export.Qdrant; q.Host != "" {
		c.Exporter, err = vector.NewQdrantSink(q.Host, q.Port, q.Collection, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		opts = append(opts, pipeline.WithExporter(c.Exporter))
	}

	c.Pipeline, err = pipeline.New(cfg, c.Embedder, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("components initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", c.Embedder.Model()),
		zap.String("index_type", cfg.Vector.IndexType),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()),
		zap.Bool("qdrant_export", c.Exporter != nil),
		zap.Bool("tracing", cfg.Tracing.OTLPEndpoint != ""))
	return c, nil
}
