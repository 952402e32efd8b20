// Package keyword maintains a full-text sidecar index over the chunk store.
package keyword

import (
	"context"

	"github.com/hyperjump/docindex/internal/models"
)

// Index is a keyword index that is always rebuilt from the complete chunk list.
type Index interface {
	Rebuild(ctx context.Context, chunks []models.Chunk) error
	DocCount() (uint64, error)
	Close() error
}

// chunkDoc is the indexed shape of a chunk. The chunk id is the document id.
type chunkDoc struct {
	Rel     string `json:"rel"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

func toDoc(c *models.Chunk) chunkDoc {
	return chunkDoc{Rel: c.Rel, Section: models.Deref(c.Section), Text: c.Text}
}
