package vector

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMeta(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), MetadataFileName)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWriteMetadata_Layout(t *testing.T) {
	var buf bytes.Buffer
	m := &IndexMetadata{
		FormatVersion: 1, Model: "m", Dimensions: 2, Count: 1,
		IndexType: "flat", IndexFile: "index.flat", IndexSHA256: "i", Metric: MetricInnerProduct,
		Normalized: true, ChunksSHA256: "d", IDs: []string{"a<b>::0000"},
	}
	if err := WriteMetadata(&buf, m); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	order := []string{`"format_version"`, `"model"`, `"dimensions"`, `"count"`, `"index_type"`, `"index_file"`, `"index_sha256"`, `"metric"`, `"normalized"`, `"chunks_sha256"`, `"ids"`}
	last := -1
	for _, key := range order {
		i := strings.Index(out, key)
		if i <= last {
			t.Fatalf("key %s out of order in %s", key, out)
		}
		last = i
	}
	if !strings.Contains(out, "a<b>::0000") {
		t.Error("ids should not be HTML-escaped")
	}
	if strings.Contains(out, "time") || strings.Contains(out, "created") {
		t.Error("metadata must not carry timestamps")
	}
}

func TestLoadMetadata(t *testing.T) {
	good := `{"format_version":1,"model":"m","dimensions":2,"count":2,"index_type":"flat","index_file":"index.flat","metric":"inner_product","normalized":true,"chunks_sha256":"x","ids":["a","b"]}`
	m, err := LoadMetadata(writeMeta(t, good))
	if err != nil {
		t.Fatal(err)
	}
	if m.Count != 2 || m.IDs[1] != "b" {
		t.Errorf("unexpected metadata %+v", m)
	}

	tests := []struct {
		name string
		body string
		want error
	}{
		{"future version", strings.Replace(good, `"format_version":1`, `"format_version":3`, 1), nil},
		{"zero version", strings.Replace(good, `"format_version":1`, `"format_version":0`, 1), nil},
		{"count mismatch", strings.Replace(good, `"count":2`, `"count":3`, 1), ErrLengthMismatch},
		{"bad json", `{"format_version":`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMetadata(writeMeta(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := LoadMetadata(filepath.Join(t.TempDir(), "nope.json")); !errors.Is(err, ErrMetadataNotFound) {
		t.Errorf("expected ErrMetadataNotFound, got %v", err)
	}
}
