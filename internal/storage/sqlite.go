package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docindex/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		rel TEXT NOT NULL,
		source TEXT,
		section TEXT,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_rel ON chunks(rel, chunk_index);

	CREATE TABLE IF NOT EXISTS documents (
		rel TEXT PRIMARY KEY,
		source TEXT,
		chunk_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS builds (
		run_id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		index_type TEXT NOT NULL,
		count INTEGER NOT NULL,
		dimensions INTEGER NOT NULL,
		chunks_sha256 TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceAll replaces every chunk and document row and appends build to the build log.
func (s *SQLiteCatalog) ReplaceAll(ctx context.Context, build *BuildRecord, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{"DELETE FROM chunks", "DELETE FROM documents"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to clear catalog: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (position, id, rel, source, section, chunk_index, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	type docRow struct {
		source *string
		count  int
	}
	docs := make(map[string]*docRow)
	var order []string
	for i := range chunks {
		c := &chunks[i]
		if _, err := stmt.ExecContext(ctx, i, c.ID, c.Rel, c.Source, c.Section, c.ChunkIndex, c.Text); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
		d, ok := docs[c.Rel]
		if !ok {
			d = &docRow{source: c.Source}
			docs[c.Rel] = d
			order = append(order, c.Rel)
		}
		d.count++
	}

	for _, rel := range order {
		d := docs[rel]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (rel, source, chunk_count) VALUES (?, ?, ?)`,
			rel, d.source, d.count); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", rel, err)
		}
	}

	if build != nil {
		if build.CreatedAt.IsZero() {
			build.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO builds (run_id, model, index_type, count, dimensions, chunks_sha256, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			build.RunID, build.Model, build.IndexType, build.Count, build.Dimensions, build.ChunksSHA256, build.CreatedAt); err != nil {
			return fmt.Errorf("failed to record build: %w", err)
		}
	}

	return tx.Commit()
}

const chunkColumns = `id, rel, source, section, chunk_index, text`

func scanChunk(row *sql.Row) (*models.Chunk, error) {
	var c models.Chunk
	var source, section sql.NullString
	if err := row.Scan(&c.ID, &c.Rel, &source, &section, &c.ChunkIndex, &c.Text); err != nil {
		return nil, err
	}
	if source.Valid {
		c.Source = &source.String
	}
	if section.Valid {
		c.Section = &section.String
	}
	return &c, nil
}

// GetChunk returns a chunk by id.
func (s *SQLiteCatalog) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	c, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
	}
	return c, err
}

// GetChunkAt returns the chunk stored at index position.
func (s *SQLiteCatalog) GetChunkAt(ctx context.Context, position int) (*models.Chunk, error) {
	c, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE position = ?`, position))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: position %d", ErrChunkNotFound, position)
	}
	return c, err
}

// CountChunks returns the number of chunks.
func (s *SQLiteCatalog) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// CountDocuments returns the number of documents with at least one chunk.
func (s *SQLiteCatalog) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

// LatestBuild returns the most recently recorded build.
func (s *SQLiteCatalog) LatestBuild(ctx context.Context) (*BuildRecord, error) {
	var b BuildRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, model, index_type, count, dimensions, chunks_sha256, created_at
		 FROM builds ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&b.RunID, &b.Model, &b.IndexType, &b.Count, &b.Dimensions, &b.ChunksSHA256, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBuildNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}
