// Package config provides configuration loading and structs for docindex.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/hyperjump/docindex/pkg/utils"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug" env:"DOCINDEX_DEBUG"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Export    ExportConfig    `yaml:"export"`
	Watch     WatchConfig     `yaml:"watch"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"DOCINDEX_SERVER_HOST"`
	Port int    `yaml:"port" env:"DOCINDEX_SERVER_PORT"`
}

// StorageConfig holds the locations of pipeline inputs and outputs.
type StorageConfig struct {
	RawDir           string `yaml:"raw_dir" env:"DOCINDEX_RAW_DIR"`
	ManifestPath     string `yaml:"manifest_path" env:"DOCINDEX_MANIFEST_PATH"`
	ChunksPath       string `yaml:"chunks_path" env:"DOCINDEX_CHUNKS_PATH"`
	IndexDir         string `yaml:"index_dir" env:"DOCINDEX_INDEX_DIR"`
	CatalogPath      string `yaml:"catalog_path" env:"DOCINDEX_CATALOG_PATH"`
	KeywordIndexPath string `yaml:"keyword_index_path" env:"DOCINDEX_KEYWORD_INDEX_PATH"`
}

// ChunkingConfig holds segmentation settings. Sizes are in characters.
type ChunkingConfig struct {
	ChunkSize    int   `yaml:"chunk_size" env:"DOCINDEX_CHUNK_SIZE"`
	ChunkOverlap int   `yaml:"chunk_overlap" env:"DOCINDEX_CHUNK_OVERLAP"`
	HeaderLevels []int `yaml:"header_levels" env:"DOCINDEX_HEADER_LEVELS" envSeparator:","`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string      `yaml:"provider" env:"DOCINDEX_EMBEDDING_PROVIDER"`
	Model             string      `yaml:"model" env:"DOCINDEX_EMBEDDING_MODEL"`
	Dimensions        int         `yaml:"dimensions" env:"DOCINDEX_EMBEDDING_DIMENSIONS"`
	BatchSize         int         `yaml:"batch_size" env:"DOCINDEX_BATCH_SIZE"`
	Concurrency       int         `yaml:"concurrency" env:"DOCINDEX_EMBEDDING_CONCURRENCY"`
	APIKey            string      `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL           string      `yaml:"base_url" env:"OPENAI_BASE_URL"`
	OllamaURL         string      `yaml:"ollama_url" env:"OLLAMA_URL"`
	ModelPath         string      `yaml:"model_path" env:"DOCINDEX_ONNX_MODEL_PATH"`
	MaxTokens         int         `yaml:"max_tokens"`
	CacheSize         int         `yaml:"cache_size"`
	RequestsPerMinute int         `yaml:"requests_per_minute" env:"DOCINDEX_REQUESTS_PER_MINUTE"`
	Retry             RetryConfig `yaml:"retry"`
}

// RetryConfig configures backoff for embedding requests.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Timeout         time.Duration `yaml:"timeout"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	IndexType string `yaml:"index_type" env:"DOCINDEX_INDEX_TYPE"` // "flat" or "faiss"
}

// ExportConfig holds optional sinks that receive the built vectors.
type ExportConfig struct {
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig enables the Qdrant sink when Host is non-empty.
type QdrantConfig struct {
	Host       string `yaml:"host" env:"QDRANT_HOST"`
	Port       int    `yaml:"port" env:"QDRANT_PORT"`
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`
}

// WatchConfig holds watch-triggered rebuild settings.
type WatchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Extensions []string      `yaml:"extensions"`
	Debounce   time.Duration `yaml:"debounce"`
	Recursive  *bool         `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// TracingConfig holds OpenTelemetry settings. Tracing is off when OTLPEndpoint is empty.
type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, expands paths, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return finish(&cfg, filepath.Dir(path))
}

// Default returns the default configuration with paths resolved against the
// working directory. Environment overrides still apply.
func Default() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return finish(&Config{}, cwd)
}

func finish(cfg *Config, baseDir string) (*Config, error) {
	ApplyDefaults(cfg)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	expandPaths(cfg, baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandPaths(cfg *Config, baseDir string) {
	cfg.Storage.RawDir = expandPath(cfg.Storage.RawDir, baseDir)
	cfg.Storage.ManifestPath = expandPath(cfg.Storage.ManifestPath, baseDir)
	cfg.Storage.ChunksPath = expandPath(cfg.Storage.ChunksPath, baseDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, baseDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, baseDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, baseDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, baseDir)
	}
}

// Validate reports the first setting that would make the pipeline misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize))
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		errs = append(errs, fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap))
	}
	for _, lvl := range c.Chunking.HeaderLevels {
		if lvl < 1 || lvl > 6 {
			errs = append(errs, fmt.Errorf("chunking.header_levels: level %d out of range 1-6", lvl))
		}
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize))
	}
	if c.Embedding.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("embedding.concurrency must be positive, got %d", c.Embedding.Concurrency))
	}
	switch c.Embedding.Provider {
	case "openai", "ollama":
	case "onnx", "mock":
		if c.Embedding.Dimensions <= 0 {
			errs = append(errs, fmt.Errorf("embedding.dimensions must be set for provider %q", c.Embedding.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", c.Embedding.Provider))
	}
	switch c.Vector.IndexType {
	case "flat", "memory", "faiss":
	default:
		errs = append(errs, fmt.Errorf("vector.index_type: unknown index type %q", c.Vector.IndexType))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	err = utils.WriteFileAtomic(path, func(w io.Writer) error {
		_, werr := w.Write(data)
		return werr
	})
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" paths are relative to the home directory; other relative paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
