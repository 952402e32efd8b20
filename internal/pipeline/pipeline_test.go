package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/docindex/internal/config"
	"github.com/hyperjump/docindex/internal/embedding"
	"github.com/hyperjump/docindex/internal/keyword"
	"github.com/hyperjump/docindex/internal/manifest"
	"github.com/hyperjump/docindex/internal/models"
	"github.com/hyperjump/docindex/internal/storage"
	"github.com/hyperjump/docindex/internal/vector"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{RawDir: filepath.Join(dir, "raw")},
		Embedding: config.EmbeddingConfig{
			Provider:   "mock",
			Model:      embedding.MockModel,
			Dimensions: 8,
			BatchSize:  2,
		},
	}
	cfg.Storage.ChunksPath = filepath.Join(dir, "chunks.jsonl")
	cfg.Storage.IndexDir = filepath.Join(dir, "vector_store")
	config.ApplyDefaults(cfg)
	return cfg
}

func writeCorpus(t *testing.T, cfg *config.Config, docs map[string]string, rels ...string) {
	t.Helper()
	for rel, content := range docs {
		path := filepath.Join(cfg.Storage.RawDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(cfg.Storage.RawDir, 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(cfg.Storage.ManifestPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var entries []models.ManifestEntry
	for _, rel := range rels {
		entries = append(entries, models.ManifestEntry{Rel: rel})
	}
	if err := manifest.Write(f, entries); err != nil {
		t.Fatal(err)
	}
}

var corpus = map[string]string{
	"guide.md": "# Guide\n\nIntro text.\n\n## Install\n\nRun the installer.",
	"faq.md":   "Plain answer without headings.",
}

type recordingExporter struct {
	dims    int
	records []vector.ExportRecord
}

func (r *recordingExporter) Export(_ context.Context, dims int, records []vector.ExportRecord) error {
	r.dims, r.records = dims, records
	return nil
}

func TestPipeline_Run(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, corpus, "guide.md", "missing.md", "faq.md")

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
	if err != nil {
		t.Fatal(err)
	}
	defer catalog.Close()
	kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	defer kw.Close()
	exp := &recordingExporter{}

	p, err := New(cfg, embedding.NewMockEmbedder(8), WithCatalog(catalog), WithKeywordIndex(kw), WithExporter(exp))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	sum, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Documents != 2 || sum.Skipped != 1 || sum.Chunks != 3 || sum.Vectors != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.RunID == "" || sum.Model != embedding.MockModel || sum.Dimensions != 8 || sum.IndexType != "flat" {
		t.Errorf("summary = %+v", sum)
	}

	meta, idx, err := vector.Open(cfg.Storage.IndexDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()
	want := []string{"guide.md::0000", "guide.md::0001", "faq.md::0000"}
	if strings.Join(meta.IDs, ",") != strings.Join(want, ",") {
		t.Errorf("ids = %v, want %v", meta.IDs, want)
	}
	if idx.Size() != len(meta.IDs) {
		t.Errorf("index size %d, ids %d", idx.Size(), len(meta.IDs))
	}

	if n, _ := catalog.CountChunks(ctx); n != 3 {
		t.Errorf("catalog chunks = %d", n)
	}
	build, err := catalog.LatestBuild(ctx)
	if err != nil || build.RunID != sum.RunID || build.ChunksSHA256 != meta.ChunksSHA256 {
		t.Errorf("latest build = %+v, %v", build, err)
	}
	if n, _ := kw.DocCount(); n != 3 {
		t.Errorf("keyword docs = %d", n)
	}
	if exp.dims != 8 || len(exp.records) != 3 || exp.records[1].ChunkID != "guide.md::0001" {
		t.Errorf("export = %d dims, %d records", exp.dims, len(exp.records))
	}
}

func TestPipeline_ChunkThenIndex(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, corpus, "faq.md")
	p, err := New(cfg, embedding.NewMockEmbedder(8))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	cs, err := p.Chunk(ctx)
	if err != nil || cs.Chunks != 1 {
		t.Fatalf("Chunk = %+v, %v", cs, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.IndexDir, vector.MetadataFileName)); !os.IsNotExist(err) {
		t.Error("chunk stage must not write the index")
	}

	is, err := p.Index(ctx)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if is.Chunks != 1 || is.Vectors != 1 {
		t.Errorf("index summary = %+v", is)
	}
}

func TestPipeline_MissingManifest(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, embedding.NewMockEmbedder(8))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Run(context.Background())
	if !errors.Is(err, manifest.ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "chunk stage: ") {
		t.Errorf("error not prefixed with stage: %v", err)
	}
	if _, err := os.Stat(cfg.Storage.ChunksPath); !os.IsNotExist(err) {
		t.Error("chunk store should not exist")
	}
}

func TestPipeline_EmptyCorpus(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, nil, "missing.md")
	p, _ := New(cfg, embedding.NewMockEmbedder(8))
	_, err := p.Run(context.Background())
	if !errors.Is(err, vector.ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
}

type failingEmbedder struct{ *embedding.MockEmbedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func TestPipeline_EmbeddingFailurePersistsNothing(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, corpus, "guide.md")
	p, _ := New(cfg, failingEmbedder{embedding.NewMockEmbedder(8)})

	_, err := p.Run(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "embed stage: ") {
		t.Fatalf("expected embed stage error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.IndexDir, vector.MetadataFileName)); !os.IsNotExist(err) {
		t.Error("meta.json should not exist after a failed embed")
	}
}

type blockingEmbedder struct {
	*embedding.MockEmbedder
	entered chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestPipeline_ConcurrentRunRejected(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, corpus, "faq.md")
	emb := &blockingEmbedder{
		MockEmbedder: embedding.NewMockEmbedder(8),
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	p, _ := New(cfg, emb)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = p.Run(context.Background())
	}()
	<-emb.entered

	if _, err := p.Run(context.Background()); !errors.Is(err, ErrBuildInProgress) {
		t.Errorf("expected ErrBuildInProgress, got %v", err)
	}
	if _, err := p.Chunk(context.Background()); !errors.Is(err, ErrBuildInProgress) {
		t.Errorf("expected ErrBuildInProgress from Chunk, got %v", err)
	}

	close(emb.release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first run: %v", firstErr)
	}
}

func TestPipeline_ChunkOnly(t *testing.T) {
	cfg := testConfig(t)
	writeCorpus(t, cfg, corpus, "faq.md")
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Chunk(context.Background()); err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if _, err := p.Index(context.Background()); !errors.Is(err, ErrNoEmbedder) {
		t.Errorf("expected ErrNoEmbedder, got %v", err)
	}
}
