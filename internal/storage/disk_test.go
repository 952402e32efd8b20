package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "chunks.jsonl")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "vector_store")
	if err := os.MkdirAll(filepath.Join(sub, "keyword.bleve"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "index.flat"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "keyword.bleve", "store"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
		n     int
	}{
		{"single file", []string{f1}, 5, 1},
		{"directory", []string{sub}, 3, 1},
		{"file and dir", []string{f1, sub}, 8, 2},
		{"missing skipped", []string{f1, filepath.Join(dir, "nonexistent"), sub}, 8, 2},
		{"empty skipped", []string{"", f1}, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage, total, err := DiskUsage(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if total != tt.want {
				t.Errorf("total = %d, want %d", total, tt.want)
			}
			if len(usage) != tt.n {
				t.Errorf("got %d entries, want %d", len(usage), tt.n)
			}
		})
	}
}
