package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// MetadataVersion is the current meta.json format version. Version 2 added
// index_sha256; version 1 files are still read, without the digest check.
const MetadataVersion = 2

// MetadataFileName is the metadata file written next to the index.
const MetadataFileName = "meta.json"

// MetricInnerProduct is the only metric the builder produces.
const MetricInnerProduct = "inner_product"

var (
	// ErrDimensionMismatch is returned when vectors disagree on dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrLengthMismatch is returned when ids, vectors and index size disagree.
	ErrLengthMismatch = errors.New("ids and vectors length mismatch")
	// ErrEmptyCorpus is returned when there is nothing to index.
	ErrEmptyCorpus = errors.New("no vectors to index")
	// ErrMetadataNotFound is returned when no index has been built yet.
	ErrMetadataNotFound = errors.New("index metadata not found")
	// ErrIndexMismatch is returned when the index file on disk is not the one the
	// metadata was written for.
	ErrIndexMismatch = errors.New("index file does not match metadata")
)

// IndexMetadata ties index positions to chunk ids. ids[i] is the chunk at
// position i of the index.
type IndexMetadata struct {
	FormatVersion int      `json:"format_version"`
	Model         string   `json:"model"`
	Dimensions    int      `json:"dimensions"`
	Count         int      `json:"count"`
	IndexType     string   `json:"index_type"`
	IndexFile     string   `json:"index_file"`
	IndexSHA256   string   `json:"index_sha256,omitempty"`
	Metric        string   `json:"metric"`
	Normalized    bool     `json:"normalized"`
	ChunksSHA256  string   `json:"chunks_sha256"`
	IDs           []string `json:"ids"`
}

// Validate checks the metadata's internal consistency.
func (m *IndexMetadata) Validate() error {
	if m.FormatVersion < 1 || m.FormatVersion > MetadataVersion {
		return fmt.Errorf("unsupported metadata format version %d (this build reads up to %d)", m.FormatVersion, MetadataVersion)
	}
	if len(m.IDs) != m.Count {
		return fmt.Errorf("%w: metadata lists %d ids for %d vectors", ErrLengthMismatch, len(m.IDs), m.Count)
	}
	if m.Dimensions <= 0 {
		return fmt.Errorf("%w: metadata has %d dimensions", ErrDimensionMismatch, m.Dimensions)
	}
	return nil
}

// WriteMetadata encodes m as indented JSON.
func WriteMetadata(w io.Writer, m *IndexMetadata) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads and validates the metadata at path.
func LoadMetadata(path string) (*IndexMetadata, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMetadataNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var m IndexMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
