// Package storage persists pipeline outputs: the JSONL chunk store written by the
// chunk stage and the SQLite catalog that maps index positions and chunk ids back
// to chunk records.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/docindex/internal/models"
)

var (
	// ErrChunkNotFound is returned when the catalog has no chunk for an id or position.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrBuildNotFound is returned when no build has been recorded yet.
	ErrBuildNotFound = errors.New("no build recorded")
)

// BuildRecord describes one successful index build.
type BuildRecord struct {
	RunID        string    `json:"run_id"`
	Model        string    `json:"model"`
	IndexType    string    `json:"index_type"`
	Count        int       `json:"count"`
	Dimensions   int       `json:"dimensions"`
	ChunksSHA256 string    `json:"chunks_sha256"`
	CreatedAt    time.Time `json:"created_at"`
}

// Catalog is a queryable copy of the chunk store, aligned with the index.
type Catalog interface {
	// ReplaceAll swaps the catalog contents for chunks (position i = chunks[i])
	// and records build, all in one transaction.
	ReplaceAll(ctx context.Context, build *BuildRecord, chunks []models.Chunk) error
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunkAt(ctx context.Context, position int) (*models.Chunk, error)
	CountChunks(ctx context.Context) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
	LatestBuild(ctx context.Context) (*BuildRecord, error)
	Close() error
}
