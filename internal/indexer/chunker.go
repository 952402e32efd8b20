// Package indexer turns corpus documents into chunk records and writes the chunk store.
package indexer

import (
	"iter"

	"github.com/hyperjump/docindex/internal/models"
)

// Chunker segments a document by headers, splits each segment by length and
// normalizes the resulting pieces.
type Chunker struct {
	segmenter *Segmenter
	splitter  *Splitter
}

// NewChunker creates a chunker with the given size and overlap (in characters)
// that splits on the given markdown header levels.
func NewChunker(chunkSize, chunkOverlap int, headerLevels []int) (*Chunker, error) {
	segmenter, err := NewSegmenter(headerLevels)
	if err != nil {
		return nil, err
	}
	splitter, err := NewSplitter(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Chunker{segmenter: segmenter, splitter: splitter}, nil
}

// Chunk returns a lazy sequence of the document's chunks. IDs are left empty;
// ChunkIndex counts only emitted chunks, so indices are contiguous from 0.
// The sequence may be ranged over more than once and yields the same chunks each time.
func (c *Chunker) Chunk(doc *models.Document) iter.Seq[models.Chunk] {
	return func(yield func(models.Chunk) bool) {
		index := 0
		for _, seg := range c.segmenter.Segments(doc.Content) {
			section := models.StringPtr(seg.Section())
			for _, piece := range c.splitter.Split(seg.Body) {
				body := Normalize(piece)
				if body == "" {
					continue
				}
				chunk := models.Chunk{
					Rel:        doc.Rel,
					Source:     doc.Source,
					Section:    section,
					ChunkIndex: index,
					Text:       body,
				}
				if !yield(chunk) {
					return
				}
				index++
			}
		}
	}
}
