package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docindex/internal/extract"
	"github.com/hyperjump/docindex/internal/manifest"
	"github.com/hyperjump/docindex/internal/models"
	"github.com/hyperjump/docindex/internal/storage"
)

func writeDoc(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func testChunkWriter(t *testing.T, rawDir string) *ChunkWriter {
	t.Helper()
	return NewChunkWriter(defaultChunker(t), extract.NewLoader(rawDir, nil))
}

func TestChunkWriter_Write(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw")
	writeDoc(t, raw, "docs/a.md", "# Title\n\nHello world.")
	writeDoc(t, raw, "docs/b.md", "---\nsource: https://front.example/b\n---\n# One\n\nfirst\n\n# Two\n\nsecond")

	srcA := "https://example.com/a"
	entries := []models.ManifestEntry{
		{Rel: "docs/a.md", SourceURL: &srcA},
		{Rel: "docs/missing.md"},
		{Rel: "docs/b.md"},
	}
	out := filepath.Join(dir, "chunks.jsonl")
	summary, err := testChunkWriter(t, raw).Write(context.Background(), entries, out)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if summary.Documents != 2 || summary.Skipped != 1 || summary.Chunks != 3 {
		t.Errorf("summary = %+v", summary)
	}

	chunks, err := storage.ReadChunks(out)
	if err != nil {
		t.Fatalf("ReadChunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	first := chunks[0]
	if first.ID != "docs/a.md::0000" || first.Rel != "docs/a.md" || first.Text != "Hello world." ||
		models.Deref(first.Section) != "Title" || models.Deref(first.Source) != srcA {
		t.Errorf("first chunk = %+v", first)
	}
	if chunks[1].ID != "docs/b.md::0000" || chunks[2].ID != "docs/b.md::0001" {
		t.Errorf("ids = %s, %s", chunks[1].ID, chunks[2].ID)
	}
	if models.Deref(chunks[2].Source) != "https://front.example/b" {
		t.Errorf("front matter source not applied: %v", chunks[2].Source)
	}

	seen := map[string]bool{}
	for _, c := range chunks {
		if seen[c.ID] {
			t.Errorf("duplicate id %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestChunkWriter_failureKeepsPreviousStore(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw")
	writeDoc(t, raw, "good.md", "# A\n\ntext")
	writeDoc(t, raw, "bad.md", "---\nkey: [unterminated\n---\nbody")
	out := filepath.Join(dir, "chunks.jsonl")
	if err := os.WriteFile(out, []byte("previous\n"), 0600); err != nil {
		t.Fatal(err)
	}

	entries := []models.ManifestEntry{{Rel: "good.md"}, {Rel: "bad.md"}}
	_, err := testChunkWriter(t, raw).Write(context.Background(), entries, out)
	if !errors.Is(err, extract.ErrFrontMatter) {
		t.Fatalf("err = %v, want ErrFrontMatter", err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "previous\n" {
		t.Errorf("previous chunk store modified: %q", got)
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 2 {
		t.Errorf("expected raw dir and chunk store only, got %d entries", len(files))
	}
}

func TestChunkWriter_duplicateRel(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw")
	writeDoc(t, raw, "docs/a.md", "# A\n\ntext")
	out := filepath.Join(dir, "chunks.jsonl")

	entries := []models.ManifestEntry{{Rel: "docs/a.md"}, {Rel: "docs/a.md"}}
	_, err := testChunkWriter(t, raw).Write(context.Background(), entries, out)
	if !errors.Is(err, manifest.ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("chunk store should not be written when ids would repeat")
	}
}

func TestChunkWriter_missingManifest(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "chunks.jsonl")
	_, err := testChunkWriter(t, dir).WriteFromManifest(context.Background(), filepath.Join(dir, "manifest.jsonl"), out)
	if !errors.Is(err, manifest.ErrManifestNotFound) {
		t.Fatalf("err = %v, want ErrManifestNotFound", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("chunk store should not be created when the manifest is missing")
	}
}

func TestChunkWriter_canceled(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "text")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testChunkWriter(t, dir).Write(ctx, []models.ManifestEntry{{Rel: "a.md"}}, filepath.Join(dir, "out.jsonl"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
