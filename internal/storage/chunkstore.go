package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"

	"github.com/hyperjump/docindex/internal/models"
	"github.com/hyperjump/docindex/pkg/utils"
)

// ErrChunkStoreNotFound is returned when the chunk store has not been written yet.
var ErrChunkStoreNotFound = errors.New("chunk store not found")

const maxChunkLine = 16 << 20

// ChunkStoreWriter stages chunk records in a temp file next to the final path.
// Nothing is visible at the final path until Commit succeeds.
type ChunkStoreWriter struct {
	path  string
	tmp   *os.File
	buf   *bufio.Writer
	enc   *json.Encoder
	count int
	done  bool
}

// CreateChunkStore starts a new chunk store that will replace path on Commit.
func CreateChunkStore(path string) (*ChunkStoreWriter, error) {
	tmp, err := utils.CreateTemp(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(tmp)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &ChunkStoreWriter{path: path, tmp: tmp, buf: buf, enc: enc}, nil
}

// Write appends one chunk as a JSON line.
func (w *ChunkStoreWriter) Write(c *models.Chunk) error {
	if w.done {
		return fmt.Errorf("chunk store already closed")
	}
	if err := w.enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", c.ID, err)
	}
	w.count++
	return nil
}

// Count returns the number of chunks written so far.
func (w *ChunkStoreWriter) Count() int {
	return w.count
}

// Commit flushes, syncs and renames the staged file into place.
func (w *ChunkStoreWriter) Commit() error {
	if w.done {
		return fmt.Errorf("chunk store already closed")
	}
	w.done = true
	if err := w.buf.Flush(); err != nil {
		w.discard()
		return fmt.Errorf("failed to flush chunk store: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("failed to sync chunk store: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("failed to close chunk store: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("failed to rename chunk store into place: %w", err)
	}
	return nil
}

// Abort discards the staged file. It is a no-op after Commit.
func (w *ChunkStoreWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *ChunkStoreWriter) discard() {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}

// ScanChunks returns a sequence over the chunk store at path in file order.
// A decode or read error is yielded once and ends the sequence.
func ScanChunks(path string) iter.Seq2[models.Chunk, error] {
	return func(yield func(models.Chunk, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("%w: %s", ErrChunkStoreNotFound, path)
			}
			yield(models.Chunk{}, err)
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 256*1024), maxChunkLine)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var c models.Chunk
			if err := json.Unmarshal(line, &c); err != nil {
				yield(models.Chunk{}, fmt.Errorf("chunk store line %d: %w", lineNo, err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(models.Chunk{}, fmt.Errorf("failed to read chunk store: %w", err))
		}
	}
}

// ReadChunks loads the whole chunk store at path.
func ReadChunks(path string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for c, err := range ScanChunks(path) {
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}
