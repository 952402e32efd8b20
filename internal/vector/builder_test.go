package vector

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docindex/internal/fileid"
	"github.com/hyperjump/docindex/pkg/utils"
)

func buildInput(dir string) BuildInput {
	return BuildInput{
		IDs:          []string{"a.md::0000", "a.md::0001", "b.md::0000"},
		Vectors:      [][]float32{{3, 4}, {0, 0}, {-2, 0}},
		Model:        "mock",
		ChunksSHA256: "abc123",
		Dir:          dir,
	}
}

func TestBuilder_Build(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBuilder("flat")
	if err != nil {
		t.Fatal(err)
	}
	in := buildInput(dir)
	res, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	m := res.Metadata
	if m.FormatVersion != MetadataVersion || m.Count != 3 || m.Dimensions != 2 {
		t.Errorf("unexpected metadata %+v", m)
	}
	if m.Metric != MetricInnerProduct || !m.Normalized || m.IndexType != "flat" || m.IndexFile != "index.flat" {
		t.Errorf("unexpected index description %+v", m)
	}
	if m.Model != "mock" || m.ChunksSHA256 != "abc123" {
		t.Errorf("model/digest not recorded: %+v", m)
	}

	// Rows are normalized in place; the zero row stays zero.
	if got := utils.L2Norm(in.Vectors[0]); math.Abs(got-1) > 1e-6 {
		t.Errorf("row 0 norm = %v, want 1", got)
	}
	if in.Vectors[1][0] != 0 || in.Vectors[1][1] != 0 {
		t.Errorf("zero row changed: %v", in.Vectors[1])
	}

	meta, idx, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if len(meta.IDs) != idx.Size() || idx.Size() != 3 {
		t.Fatalf("ids %d, index size %d", len(meta.IDs), idx.Size())
	}
	results, err := idx.Search(context.Background(), []float32{0.6, 0.8}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if meta.IDs[results[0].Position] != "a.md::0000" {
		t.Errorf("top hit = %s", meta.IDs[results[0].Position])
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("self similarity = %v, want 1", results[0].Score)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected only index and metadata in dir, got %d entries", len(entries))
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	b, _ := NewBuilder("flat")
	var outputs [2][2][]byte
	for i := range outputs {
		dir := t.TempDir()
		if _, err := b.Build(context.Background(), buildInput(dir)); err != nil {
			t.Fatal(err)
		}
		outputs[i][0], _ = os.ReadFile(filepath.Join(dir, "index.flat"))
		outputs[i][1], _ = os.ReadFile(filepath.Join(dir, MetadataFileName))
	}
	if !bytes.Equal(outputs[0][0], outputs[1][0]) || !bytes.Equal(outputs[0][1], outputs[1][1]) {
		t.Error("identical inputs should produce identical files")
	}
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		vectors [][]float32
		want    error
	}{
		{"empty", nil, nil, ErrEmptyCorpus},
		{"length mismatch", []string{"a", "b"}, [][]float32{{1, 0}}, ErrLengthMismatch},
		{"ragged", []string{"a", "b"}, [][]float32{{1, 0}, {1, 0, 0}}, ErrDimensionMismatch},
		{"zero dimensions", []string{"a"}, [][]float32{{}}, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			b, _ := NewBuilder("flat")
			_, err := b.Build(context.Background(), BuildInput{IDs: tt.ids, Vectors: tt.vectors, Dir: dir})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("failed build wrote %d files", len(entries))
			}
		})
	}
}

func TestBuilder_FailureKeepsPreviousIndex(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewBuilder("flat")
	if _, err := b.Build(context.Background(), buildInput(dir)); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, MetadataFileName))

	_, err := b.Build(context.Background(), BuildInput{IDs: []string{"x"}, Vectors: [][]float32{{1, 2, 3}, {1}}, Dir: dir})
	if err == nil {
		t.Fatal("expected error")
	}
	after, _ := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if !bytes.Equal(before, after) {
		t.Error("failed build replaced the metadata")
	}
}

func TestBuilder_RecordsIndexDigest(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewBuilder("flat")
	res, err := b.Build(context.Background(), buildInput(dir))
	if err != nil {
		t.Fatal(err)
	}
	digest, err := fileid.Digest(res.IndexPath)
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.IndexSHA256 != digest {
		t.Errorf("index_sha256 = %q, want %q", res.Metadata.IndexSHA256, digest)
	}
}

func TestOpen_metadataWriteFailureIsDetected(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewBuilder("flat")
	if _, err := b.Build(context.Background(), buildInput(dir)); err != nil {
		t.Fatal(err)
	}
	metaPath := filepath.Join(dir, MetadataFileName)
	oldMeta, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}

	// A non-empty directory at the metadata path makes the final rename fail
	// after the new index is already in place.
	if err := os.Remove(metaPath); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(metaPath, "blocker"), 0755); err != nil {
		t.Fatal(err)
	}
	same := BuildInput{
		IDs:     []string{"a.md::0000", "a.md::0001", "b.md::0000"},
		Vectors: [][]float32{{1, 0}, {0, 1}, {1, 1}},
		Model:   "mock",
		Dir:     dir,
	}
	if _, err := b.Build(context.Background(), same); err == nil {
		t.Fatal("expected metadata write to fail")
	}

	if err := os.RemoveAll(metaPath); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(metaPath, oldMeta, 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Open(dir); !errors.Is(err, ErrIndexMismatch) {
		t.Errorf("Open = %v, want ErrIndexMismatch for an index from another build", err)
	}
}

func TestNewBuilder_UnknownType(t *testing.T) {
	if _, err := NewBuilder("hnsw"); err == nil {
		t.Error("expected error")
	}
	b, err := NewBuilder("memory")
	if err != nil || b.indexType != "flat" {
		t.Errorf("memory should build a flat index, got %v, %v", b, err)
	}
}
