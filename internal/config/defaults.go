package config

import (
	"path/filepath"
	"time"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

// modelDimensions lists output sizes of known hosted embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// ModelDimensions returns the known output size for model, or 0 when unknown.
func ModelDimensions(model string) int {
	return modelDimensions[model]
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.RawDir == "" {
		cfg.Storage.RawDir = "./data/raw"
	}
	if cfg.Storage.ManifestPath == "" {
		cfg.Storage.ManifestPath = filepath.Join(cfg.Storage.RawDir, "manifest.jsonl")
	}
	if cfg.Storage.ChunksPath == "" {
		cfg.Storage.ChunksPath = "./data/chunks.jsonl"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "./vector_store"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = filepath.Join(cfg.Storage.IndexDir, "catalog.db")
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = filepath.Join(cfg.Storage.IndexDir, "keyword.bleve")
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1200
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 150
	}
	if len(cfg.Chunking.HeaderLevels) == 0 {
		cfg.Chunking.HeaderLevels = []int{1, 2, 3, 4}
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultModel
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = ModelDimensions(cfg.Embedding.Model)
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 128
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 1
	}
	if cfg.Embedding.OllamaURL == "" {
		cfg.Embedding.OllamaURL = "http://localhost:11434"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Retry.MaxRetries == 0 {
		cfg.Embedding.Retry.MaxRetries = 5
	}
	if cfg.Embedding.Retry.InitialInterval == 0 {
		cfg.Embedding.Retry.InitialInterval = time.Second
	}
	if cfg.Embedding.Retry.MaxInterval == 0 {
		cfg.Embedding.Retry.MaxInterval = 30 * time.Second
	}
	if cfg.Embedding.Retry.Timeout == 0 {
		cfg.Embedding.Retry.Timeout = 2 * time.Minute
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "flat"
	}
	if cfg.Export.Qdrant.Port == 0 {
		cfg.Export.Qdrant.Port = 6334
	}
	if cfg.Export.Qdrant.Collection == "" {
		cfg.Export.Qdrant.Collection = "docindex"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".md", ".mdx", ".markdown", ".pdf", ".jsonl"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "docindex"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
}
