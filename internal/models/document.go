// Package models defines the core data structures that flow through the indexing pipeline.
package models

import (
	"fmt"
	"strings"
)

// ManifestEntry is one line of the corpus manifest.
type ManifestEntry struct {
	Rel       string  `json:"rel"`
	SourceURL *string `json:"source_url"`
}

// Document represents a raw source document with its front matter split off.
type Document struct {
	Rel      string                 `json:"rel"`
	Path     string                 `json:"path"`
	Source   *string                `json:"source"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Chunk is the atomic retrieval unit. Field order is the chunk store's line layout.
type Chunk struct {
	ID         string  `json:"id" db:"id"`
	Rel        string  `json:"rel" db:"rel"`
	Source     *string `json:"source" db:"source"`
	Section    *string `json:"section" db:"section"`
	ChunkIndex int     `json:"chunk_index" db:"chunk_index"`
	Text       string  `json:"text" db:"text"`
}

// ChunkID returns the deterministic identifier for the index-th chunk of rel.
func ChunkID(rel string, index int) string {
	return fmt.Sprintf("%s::%04d", rel, index)
}

// EmbeddingInput returns the text sent to the embedding model: the section path
// and body separated by a blank line, or the body alone when there is no section.
func (c *Chunk) EmbeddingInput() string {
	if c.Section == nil {
		return c.Text
	}
	prefix := strings.TrimSpace(*c.Section)
	if prefix == "" {
		return c.Text
	}
	return prefix + "\n\n" + c.Text
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
