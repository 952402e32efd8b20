package server

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/hyperjump/docindex/internal/config"
	"github.com/hyperjump/docindex/internal/storage"
	"github.com/hyperjump/docindex/internal/vector"
)

// Status describes the built artifacts and the settings that produced them.
type Status struct {
	Documents      int64                `json:"documents"`
	Chunks         int64                `json:"chunks"`
	Index          *IndexStatus         `json:"index"`
	LastBuild      *storage.BuildRecord `json:"last_build,omitempty"`
	Config         ConfigSummary        `json:"config"`
	Disk           []storage.PathUsage  `json:"disk,omitempty"`
	DiskUsageBytes int64                `json:"disk_usage_bytes"`
}

// IndexStatus is the part of meta.json worth reporting.
type IndexStatus struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Count      int    `json:"count"`
	IndexType  string `json:"index_type"`
}

// ConfigSummary is the subset of the configuration shown by status.
type ConfigSummary struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Dimensions   int    `json:"dimensions"`
	BatchSize    int    `json:"batch_size"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
	HeaderLevels []int  `json:"header_levels"`
	IndexType    string `json:"index_type"`
	ManifestPath string `json:"manifest_path"`
	ChunksPath   string `json:"chunks_path"`
	IndexDir     string `json:"index_dir"`
}

// CollectStatus gathers catalog counts, index metadata and disk usage. A missing
// index is reported as a nil Index rather than an error.
func CollectStatus(ctx context.Context, cfg *config.Config, catalog storage.Catalog) (*Status, error) {
	st := &Status{Config: summarize(cfg)}

	var err error
	if st.Chunks, err = catalog.CountChunks(ctx); err != nil {
		return nil, err
	}
	if st.Documents, err = catalog.CountDocuments(ctx); err != nil {
		return nil, err
	}
	build, err := catalog.LatestBuild(ctx)
	switch {
	case err == nil:
		st.LastBuild = build
	case !errors.Is(err, storage.ErrBuildNotFound):
		return nil, err
	}

	meta, err := vector.LoadMetadata(filepath.Join(cfg.Storage.IndexDir, vector.MetadataFileName))
	switch {
	case err == nil:
		st.Index = &IndexStatus{
			Model:      meta.Model,
			Dimensions: meta.Dimensions,
			Count:      meta.Count,
			IndexType:  meta.IndexType,
		}
	case !errors.Is(err, vector.ErrMetadataNotFound):
		return nil, err
	}

	if st.Disk, st.DiskUsageBytes, err = storage.DiskUsage(outputPaths(cfg)...); err != nil {
		return nil, err
	}
	return st, nil
}

func summarize(cfg *config.Config) ConfigSummary {
	return ConfigSummary{
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
		BatchSize:    cfg.Embedding.BatchSize,
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		HeaderLevels: cfg.Chunking.HeaderLevels,
		IndexType:    cfg.Vector.IndexType,
		ManifestPath: cfg.Storage.ManifestPath,
		ChunksPath:   cfg.Storage.ChunksPath,
		IndexDir:     cfg.Storage.IndexDir,
	}
}

// outputPaths lists the pipeline outputs, leaving out those inside the index
// directory so nothing is counted twice.
func outputPaths(cfg *config.Config) []string {
	paths := []string{cfg.Storage.ChunksPath, cfg.Storage.IndexDir}
	for _, p := range []string{cfg.Storage.CatalogPath, cfg.Storage.KeywordIndexPath} {
		if rel, err := filepath.Rel(cfg.Storage.IndexDir, p); err == nil && filepath.IsLocal(rel) {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}
