package vector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/docindex/internal/fileid"
	"github.com/hyperjump/docindex/pkg/utils"
	"go.uber.org/zap"
)

// BuildInput is everything needed to build and persist one index.
type BuildInput struct {
	IDs          []string
	Vectors      [][]float32 // normalized in place
	Model        string
	ChunksSHA256 string
	Dir          string
}

// BuildResult describes the persisted index.
type BuildResult struct {
	Metadata  *IndexMetadata
	IndexPath string
	MetaPath  string
}

// Builder normalizes embeddings, builds an inner-product index and persists it
// next to its metadata.
type Builder struct {
	indexType string
	logger    *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a builder for the given index type.
func NewBuilder(indexType string, opts ...BuilderOption) (*Builder, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, IndexTypeMemory, IndexTypeFAISS, "":
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
	b := &Builder{indexType: canonicalType(indexType), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build checks the inputs, normalizes the vectors, builds the index and writes
// the index file and meta.json into in.Dir. The index is staged as a temp file and
// renamed into place first; meta.json, which records the index digest, is written
// last. A failure before the index rename changes nothing at the final paths.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*BuildResult, error) {
	dims, err := checkVectors(in.IDs, in.Vectors)
	if err != nil {
		return nil, err
	}

	utils.NormalizeRows(in.Vectors)

	idx, err := NewIndex(b.indexType, dims)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	if err := idx.Add(ctx, in.Vectors); err != nil {
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}
	if idx.Size() != len(in.IDs) {
		return nil, fmt.Errorf("%w: index holds %d vectors for %d ids", ErrLengthMismatch, idx.Size(), len(in.IDs))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	indexFile := IndexFileName(b.indexType)
	meta := &IndexMetadata{
		FormatVersion: MetadataVersion,
		Model:         in.Model,
		Dimensions:    dims,
		Count:         len(in.IDs),
		IndexType:     b.indexType,
		IndexFile:     indexFile,
		Metric:        MetricInnerProduct,
		Normalized:    true,
		ChunksSHA256:  in.ChunksSHA256,
		IDs:           in.IDs,
	}

	res := &BuildResult{
		Metadata:  meta,
		IndexPath: filepath.Join(in.Dir, indexFile),
		MetaPath:  filepath.Join(in.Dir, MetadataFileName),
	}
	if err := persist(idx, meta, res.IndexPath, res.MetaPath); err != nil {
		return nil, err
	}

	b.logger.Info("index built",
		zap.String("index", res.IndexPath),
		zap.String("type", b.indexType),
		zap.Int("count", meta.Count),
		zap.Int("dimensions", dims))
	return res, nil
}

// checkVectors returns the shared dimensionality of vectors.
func checkVectors(ids []string, vectors [][]float32) (int, error) {
	if len(ids) != len(vectors) {
		return 0, fmt.Errorf("%w: %d ids, %d vectors", ErrLengthMismatch, len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return 0, ErrEmptyCorpus
	}
	dims := len(vectors[0])
	if dims == 0 {
		return 0, fmt.Errorf("%w: vector 0 is empty", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dims {
			return 0, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return dims, nil
}

func persist(idx Index, meta *IndexMetadata, indexPath, metaPath string) (err error) {
	indexTmp, err := tempPath(indexPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(indexTmp)
		}
	}()

	if err = idx.Save(indexTmp); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if meta.IndexSHA256, err = fileid.Digest(indexTmp); err != nil {
		return fmt.Errorf("failed to digest index: %w", err)
	}
	var encoded bytes.Buffer
	if err = WriteMetadata(&encoded, meta); err != nil {
		return err
	}

	if err = os.Rename(indexTmp, indexPath); err != nil {
		return fmt.Errorf("failed to rename index into place: %w", err)
	}
	err = utils.WriteFileAtomic(metaPath, func(w io.Writer) error {
		_, werr := w.Write(encoded.Bytes())
		return werr
	})
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// tempPath reserves a temp file name next to path.
func tempPath(path string) (string, error) {
	f, err := utils.CreateTemp(path)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return name, nil
}

// Open loads the metadata in dir and the index it names, and checks that they agree.
func Open(dir string) (*IndexMetadata, Index, error) {
	meta, err := LoadMetadata(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return nil, nil, err
	}
	indexPath := filepath.Join(dir, meta.IndexFile)
	if meta.IndexSHA256 != "" {
		digest, err := fileid.Digest(indexPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to digest index: %w", err)
		}
		if digest != meta.IndexSHA256 {
			return nil, nil, fmt.Errorf("%w: %s has sha256 %s, metadata expects %s", ErrIndexMismatch, indexPath, digest, meta.IndexSHA256)
		}
	}
	idx, err := NewIndex(meta.IndexType, meta.Dimensions)
	if err != nil {
		return nil, nil, err
	}
	if err := idx.Load(indexPath); err != nil {
		idx.Close()
		return nil, nil, err
	}
	if idx.Size() != meta.Count {
		idx.Close()
		return nil, nil, fmt.Errorf("%w: index holds %d vectors, metadata lists %d", ErrLengthMismatch, idx.Size(), meta.Count)
	}
	return meta, idx, nil
}
