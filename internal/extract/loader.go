package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/docindex/internal/models"
)

// ErrDocumentNotFound is returned by Loader.Load when a manifest entry has no file on disk.
var ErrDocumentNotFound = errors.New("document not found")

// sidecarSuffix names the per-file metadata written by the fetch step.
const sidecarSuffix = ".meta.json"

// Loader resolves manifest entries against a raw document directory.
type Loader struct {
	rawDir    string
	extractor *Extractor
}

// NewLoader returns a Loader rooted at rawDir.
func NewLoader(rawDir string, extractor *Extractor) *Loader {
	if extractor == nil {
		extractor = NewExtractor()
	}
	return &Loader{rawDir: rawDir, extractor: extractor}
}

// Path returns the on-disk location of rel.
func (l *Loader) Path(rel string) string {
	return filepath.Join(l.rawDir, filepath.FromSlash(rel))
}

// Load reads the document for entry. The document source is taken from the
// front matter "source" key, then the manifest source_url, then the sidecar file.
func (l *Loader) Load(entry models.ManifestEntry) (*models.Document, error) {
	path := l.Path(entry.Rel)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat document: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrDocumentNotFound, path)
	}

	text, err := l.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", entry.Rel, err)
	}

	doc := &models.Document{Rel: entry.Rel, Path: path, Content: text}
	if !IsBinary(filepath.Ext(path)) {
		meta, body, err := ParseFrontMatter(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Rel, err)
		}
		doc.Content = body
		doc.Metadata = meta
	}

	switch {
	case hasSource(doc.Metadata):
		src, _ := SourceFromMeta(doc.Metadata)
		doc.Source = &src
	case entry.SourceURL != nil && strings.TrimSpace(*entry.SourceURL) != "":
		src := *entry.SourceURL
		doc.Source = &src
	default:
		doc.Source = readSidecarSource(path)
	}
	return doc, nil
}

func hasSource(meta map[string]interface{}) bool {
	_, ok := SourceFromMeta(meta)
	return ok
}

// readSidecarSource returns source_url from path's sidecar, or nil if there is none.
func readSidecarSource(path string) *string {
	data, err := os.ReadFile(path + sidecarSuffix)
	if err != nil {
		return nil
	}
	var side struct {
		SourceURL string `json:"source_url"`
	}
	if err := json.Unmarshal(data, &side); err != nil {
		return nil
	}
	return models.StringPtr(side.SourceURL)
}
