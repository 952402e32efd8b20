package indexer

import (
	"slices"
	"strings"
	"testing"
	"unicode/utf8"
)

func mustSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := NewSplitter(size, overlap)
	if err != nil {
		t.Fatalf("NewSplitter(%d, %d): %v", size, overlap, err)
	}
	return s
}

func TestSplitter_Split(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		in      string
		want    []string
	}{
		{
			name: "short text is one trimmed piece",
			size: 100, overlap: 10,
			in:   "  hello  ",
			want: []string{"hello"},
		},
		{
			name: "empty text yields nothing",
			size: 100, overlap: 10,
			in:   "",
			want: nil,
		},
		{
			name: "prefers paragraph boundary",
			size: 20, overlap: 0,
			in:   "para one here.\n\npara two here.",
			want: []string{"para one here.", "para two here."},
		},
		{
			name: "falls back to words",
			size: 12, overlap: 0,
			in:   "aaa bbb ccc ddd",
			want: []string{"aaa bbb ccc", "ddd"},
		},
		{
			name: "hard cut with overlap",
			size: 10, overlap: 3,
			in:   "abcdefghijklmnopqrstuvwxyz",
			want: []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxyz"},
		},
		{
			name: "counts runes not bytes",
			size: 2, overlap: 0,
			in:   "ééééé",
			want: []string{"éé", "éé", "é"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustSplitter(t, tt.size, tt.overlap).Split(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Split() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitter_hardCutOverlap(t *testing.T) {
	const overlap = 3
	pieces := mustSplitter(t, 10, overlap).Split("abcdefghijklmnopqrstuvwxyz")
	for i := 1; i < len(pieces); i++ {
		prev := []rune(pieces[i-1])
		tail := string(prev[len(prev)-overlap:])
		if !strings.HasPrefix(pieces[i], tail) {
			t.Errorf("piece %d %q does not start with tail %q of previous piece", i, pieces[i], tail)
		}
	}
}

func TestSplitter_neverExceedsSize(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	var b strings.Builder
	for i := 0; i < 600; i++ {
		b.WriteString(words[i%len(words)])
		switch {
		case i%37 == 36:
			b.WriteString(".\n\n")
		case i%11 == 10:
			b.WriteString(". ")
		case i%7 == 6:
			b.WriteString("\n")
		default:
			b.WriteString(" ")
		}
	}
	const size = 200
	pieces := mustSplitter(t, size, 30).Split(b.String())
	if len(pieces) < 2 {
		t.Fatalf("expected several pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if n := utf8.RuneCountInString(p); n > size {
			t.Errorf("piece %d has %d runes, limit %d", i, n, size)
		}
		if strings.TrimSpace(p) != p || p == "" {
			t.Errorf("piece %d is not trimmed or is empty: %q", i, p)
		}
	}
}

func TestSplitter_overlongAtomicUnitKept(t *testing.T) {
	// a single word longer than the limit is cut at runes, nothing is lost
	s := mustSplitter(t, 5, 0)
	got := s.Split("ab abcdefghij")
	want := []string{"ab", "abcd", "efghi", "j"}
	if !slices.Equal(got, want) {
		t.Errorf("Split() = %q, want %q", got, want)
	}
}

func TestNewSplitter_invalid(t *testing.T) {
	for _, tc := range [][2]int{{0, 0}, {-1, 0}, {10, 10}, {10, -1}} {
		if _, err := NewSplitter(tc[0], tc[1]); err == nil {
			t.Errorf("NewSplitter(%d, %d) should fail", tc[0], tc[1])
		}
	}
}
