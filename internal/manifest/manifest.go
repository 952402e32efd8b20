// Package manifest reads the JSONL document manifest that drives a build.
package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/docindex/internal/models"
)

// ErrManifestNotFound is returned when the manifest file does not exist.
var ErrManifestNotFound = errors.New("manifest not found")

// ErrDuplicateEntry is returned when two manifest entries share a rel. Chunk ids
// are derived from rel, so a repeated rel would repeat ids.
var ErrDuplicateEntry = errors.New("duplicate manifest entry")

// maxLineSize bounds a single manifest line.
const maxLineSize = 1 << 20

// Read loads every entry of the manifest at path, in file order.
func Read(path string) ([]models.ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes manifest lines from r. Blank lines are skipped; every other
// line must be a JSON object with a non-empty, unique "rel".
func Parse(r io.Reader) ([]models.ManifestEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var entries []models.ManifestEntry
	seen := make(map[string]int)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry models.ManifestEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}
		if entry.Rel == "" {
			return nil, fmt.Errorf("manifest line %d: missing rel", lineNo)
		}
		if first, ok := seen[entry.Rel]; ok {
			return nil, fmt.Errorf("manifest line %d: %w: %s (first on line %d)", lineNo, ErrDuplicateEntry, entry.Rel, first)
		}
		seen[entry.Rel] = lineNo
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return entries, nil
}

// Write serializes entries to w as JSONL.
func Write(w io.Writer, entries []models.ManifestEntry) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode manifest entry %s: %w", e.Rel, err)
		}
	}
	return nil
}
