package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/hyperjump/docindex/pkg/utils"
)

// flatMagic opens every flat index file.
var flatMagic = [4]byte{'D', 'I', 'X', 'F'}

const flatVersion uint32 = 1

// FlatIndex is a pure-Go exact inner-product index. Vectors are stored
// contiguously in insertion order.
type FlatIndex struct {
	dimensions int
	data       []float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Add appends vectors in order.
func (f *FlatIndex) Add(ctx context.Context, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("%w: vector %d has %d dimensions, index expects %d", ErrDimensionMismatch, i, len(vec), f.dimensions)
		}
	}
	for _, vec := range vectors {
		f.data = append(f.data, vec...)
	}
	return nil
}

// Search returns the top-k positions by inner product. Ties keep insertion order.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := len(f.data) / f.dimensions
	if k <= 0 || n == 0 {
		return nil, nil
	}
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		row := f.data[i*f.dimensions : (i+1)*f.dimensions]
		results[i] = Result{Position: i, Score: utils.Dot(query, row)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results[:min(k, n)], nil
}

// Save writes the index to path. Format (little endian): magic, version,
// dimensions, count, then count*dimensions float32 values.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	w := bufio.NewWriter(file)
	header := []uint32{flatVersion, uint32(f.dimensions), uint32(len(f.data) / f.dimensions)}
	if _, err := w.Write(flatMagic[:]); err != nil {
		file.Close()
		return fmt.Errorf("failed to write index header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		file.Close()
		return fmt.Errorf("failed to write index header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, f.data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write vectors: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	return file.Close()
}

// Load reads an index written by Save. The file's dimensions must match.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()
	r := bufio.NewReader(file)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("failed to read index header: %w", err)
	}
	if magic != flatMagic {
		return errors.New("not a flat index file")
	}
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to read index header: %w", err)
	}
	version, dim, n := header[0], int(header[1]), int(header[2])
	if version != flatVersion {
		return fmt.Errorf("unsupported flat index version %d", version)
	}
	if dim != f.dimensions {
		return fmt.Errorf("%w: file has %d dimensions, index expects %d", ErrDimensionMismatch, dim, f.dimensions)
	}
	data := make([]float32, n*dim)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("failed to read vectors: %w", err)
	}

	f.mu.Lock()
	f.data = data
	f.mu.Unlock()
	return nil
}

// Vector returns a copy of the vector at position i.
func (f *FlatIndex) Vector(i int) ([]float32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i < 0 || (i+1)*f.dimensions > len(f.data) {
		return nil, fmt.Errorf("position %d out of range", i)
	}
	out := make([]float32, f.dimensions)
	copy(out, f.data[i*f.dimensions:])
	return out, nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data) / f.dimensions
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}
