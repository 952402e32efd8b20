package vector

import "fmt"

// IndexType names a vector index implementation.
type IndexType string

const (
	// IndexTypeFlat is the pure-Go exact inner-product index.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeMemory is accepted as an alias of IndexTypeFlat.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS is FAISS IndexFlatIP. Requires -tags=faiss and libfaiss_c.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an empty index of the given type. "" selects flat.
func NewIndex(indexType string, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, IndexTypeMemory, "":
		return NewFlatIndex(dimensions)
	case IndexTypeFAISS:
		idx, err := NewFAISSIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IndexFileName returns the file name used for an index of the given type.
func IndexFileName(indexType string) string {
	if IndexType(indexType) == IndexTypeFAISS {
		return "index.faiss"
	}
	return "index.flat"
}

// canonicalType maps aliases to the type recorded in metadata.
func canonicalType(indexType string) string {
	if IndexType(indexType) == IndexTypeFAISS {
		return string(IndexTypeFAISS)
	}
	return string(IndexTypeFlat)
}

// IsFAISSAvailable reports whether FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
