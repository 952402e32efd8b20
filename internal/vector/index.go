// Package vector builds and persists inner-product indexes over normalized
// embeddings. Indexes hold no ids: result positions map to the ids recorded in
// the index metadata.
package vector

import "context"

// Index is a flat inner-product index addressed by insertion position.
type Index interface {
	// Add appends vectors; the first added vector gets position Size().
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns the k best positions by inner product, best first.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	// Save writes the index to exactly path.
	Save(path string) error
	// Load replaces the index contents with the file at path.
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Result is a single search hit.
type Result struct {
	Position int
	Score    float64 // inner product; cosine similarity for normalized vectors
}
