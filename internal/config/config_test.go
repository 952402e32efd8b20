package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  provider: mock
  model: test-model
  dimensions: 8
  batch_size: 4
chunking:
  chunk_size: 500
  chunk_overlap: 50
  header_levels: [1, 2]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.Dimensions != 8 || cfg.Embedding.BatchSize != 4 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Chunking.ChunkSize != 500 || cfg.Chunking.ChunkOverlap != 50 {
		t.Errorf("unexpected chunking config: %+v", cfg.Chunking)
	}
	if len(cfg.Chunking.HeaderLevels) != 2 {
		t.Errorf("header_levels = %v", cfg.Chunking.HeaderLevels)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  raw_dir: "./corpus"
  chunks_path: "out/chunks.jsonl"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "corpus"); cfg.Storage.RawDir != want {
		t.Errorf("raw_dir = %s, want %s", cfg.Storage.RawDir, want)
	}
	if want := filepath.Join(dir, "corpus", "manifest.jsonl"); cfg.Storage.ManifestPath != want {
		t.Errorf("manifest_path = %s, want %s", cfg.Storage.ManifestPath, want)
	}
	if want := filepath.Join(dir, "out", "chunks.jsonl"); cfg.Storage.ChunksPath != want {
		t.Errorf("chunks_path = %s, want %s", cfg.Storage.ChunksPath, want)
	}
	if want := filepath.Join(dir, "vector_store", "catalog.db"); cfg.Storage.CatalogPath != want {
		t.Errorf("catalog_path = %s, want %s", cfg.Storage.CatalogPath, want)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	path := writeConfig(t, `
embedding:
  model: text-embedding-3-small
`)
	t.Setenv("DOCINDEX_EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("DOCINDEX_BATCH_SIZE", "16")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.Model != "text-embedding-3-large" {
		t.Errorf("model = %s", cfg.Embedding.Model)
	}
	if cfg.Embedding.BatchSize != 16 {
		t.Errorf("batch_size = %d", cfg.Embedding.BatchSize)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("api key not taken from environment")
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"overlap too large", "chunking:\n  chunk_size: 100\n  chunk_overlap: 100\n", "chunk_overlap"},
		{"negative batch", "embedding:\n  batch_size: -1\n", "batch_size"},
		{"bad provider", "embedding:\n  provider: carrier-pigeon\n", "provider"},
		{"bad index type", "vector:\n  index_type: hnsw\n", "index_type"},
		{"bad header level", "chunking:\n  header_levels: [0]\n", "header_levels"},
		{"mock without dims", "embedding:\n  provider: mock\n  model: unknown\n", "dimensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Chunking.ChunkSize != 1200 || cfg.Chunking.ChunkOverlap != 150 {
		t.Errorf("default chunking: %+v", cfg.Chunking)
	}
	if got := cfg.Chunking.HeaderLevels; len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Errorf("default header levels: %v", got)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("default model: %s/%d", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BatchSize != 128 {
		t.Errorf("default batch size: %d", cfg.Embedding.BatchSize)
	}
	if cfg.Embedding.Retry.InitialInterval != time.Second {
		t.Errorf("default retry interval: %v", cfg.Embedding.Retry.InitialInterval)
	}
	if cfg.Vector.IndexType != "flat" {
		t.Errorf("default index type: %s", cfg.Vector.IndexType)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("default debounce: %v", cfg.Watch.Debounce)
	}
}

func TestApplyDefaults_dimensionsFromModel(t *testing.T) {
	cfg := &Config{Embedding: EmbeddingConfig{Model: "text-embedding-3-large"}}
	ApplyDefaults(cfg)
	if cfg.Embedding.Dimensions != 3072 {
		t.Errorf("dimensions = %d, want 3072", cfg.Embedding.Dimensions)
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		v := false
		w := &WatchConfig{Recursive: &v}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave_roundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 16
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Embedding.Provider != "mock" || loaded.Embedding.Dimensions != 16 {
		t.Errorf("round trip lost embedding settings: %+v", loaded.Embedding)
	}
}

func TestSave_atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config mode = %v, want 0600", perm)
	}

	blocked := filepath.Join(dir, "blocked.yaml")
	if err := os.MkdirAll(filepath.Join(blocked, "child"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := Save(blocked, cfg); err == nil {
		t.Fatal("expected error saving over a directory")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("temp files left behind: %d entries in %s", len(entries), dir)
	}
}
