// Package cli formats command output for docindex.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/docindex/internal/models"
	"github.com/hyperjump/docindex/internal/pipeline"
	"github.com/hyperjump/docindex/internal/server"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to a format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteSummary writes the outcome of a pipeline run.
func WriteSummary(w io.Writer, sum *pipeline.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, sum)
	}
	fmt.Fprintf(w, "Run %s finished in %s\n", sum.RunID, time.Duration(sum.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "  documents processed: %d\n", sum.Documents)
	fmt.Fprintf(w, "  documents skipped:   %d\n", sum.Skipped)
	fmt.Fprintf(w, "  chunks:              %d\n", sum.Chunks)
	fmt.Fprintf(w, "  vectors:             %d\n", sum.Vectors)
	if sum.IndexPath != "" {
		fmt.Fprintf(w, "  index:               %s (%s, %d dims, model %s)\n", sum.IndexPath, sum.IndexType, sum.Dimensions, sum.Model)
		fmt.Fprintf(w, "  metadata:            %s\n", sum.MetaPath)
	}
	return nil
}

// WriteStatus writes the index status.
func WriteStatus(w io.Writer, st *server.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Documents: %d\n", st.Documents)
	fmt.Fprintf(w, "Chunks:    %d\n", st.Chunks)
	if st.Index != nil {
		fmt.Fprintf(w, "Index:     %d vectors, %d dims, %s, model %s\n", st.Index.Count, st.Index.Dimensions, st.Index.IndexType, st.Index.Model)
	} else {
		fmt.Fprintln(w, "Index:     not built")
	}
	if st.LastBuild != nil {
		fmt.Fprintf(w, "Last build: %s at %s\n", st.LastBuild.RunID, st.LastBuild.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Disk usage: %s\n", formatBytes(st.DiskUsageBytes))

	c := st.Config
	fmt.Fprintln(w, "\nConfig:")
	fmt.Fprintf(w, "  embedding:  %s / %s (%d dims, batch %d)\n", c.Provider, c.Model, c.Dimensions, c.BatchSize)
	fmt.Fprintf(w, "  chunking:   size %d, overlap %d, headers %v\n", c.ChunkSize, c.ChunkOverlap, c.HeaderLevels)
	fmt.Fprintf(w, "  index type: %s\n", c.IndexType)
	fmt.Fprintf(w, "  manifest:   %s\n", c.ManifestPath)
	fmt.Fprintf(w, "  chunks:     %s\n", c.ChunksPath)
	fmt.Fprintf(w, "  index dir:  %s\n", c.IndexDir)
	return nil
}

// WriteChunk writes one chunk record.
func WriteChunk(w io.Writer, c *models.Chunk, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, c)
	}
	fmt.Fprintf(w, "ID:      %s\n", c.ID)
	fmt.Fprintf(w, "Rel:     %s\n", c.Rel)
	if c.Source != nil {
		fmt.Fprintf(w, "Source:  %s\n", *c.Source)
	}
	if c.Section != nil {
		fmt.Fprintf(w, "Section: %s\n", *c.Section)
	}
	fmt.Fprintf(w, "\n%s\n", c.Text)
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
