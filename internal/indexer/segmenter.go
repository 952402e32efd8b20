package indexer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// SectionSeparator joins header titles into a section path.
const SectionSeparator = " > "

// Segment is a run of document body text under one stack of active headers.
type Segment struct {
	Headers []Header
	Body    string
}

// Header is one active markdown heading.
type Header struct {
	Level int
	Title string
}

// Section returns the header path of s, or "" when no titled header is active.
func (s Segment) Section() string {
	titles := make([]string, 0, len(s.Headers))
	for _, h := range s.Headers {
		if h.Title != "" {
			titles = append(titles, h.Title)
		}
	}
	return strings.Join(titles, SectionSeparator)
}

// Segmenter partitions markdown at top-level ATX headings of the tracked levels.
type Segmenter struct {
	md     goldmark.Markdown
	levels map[int]bool
}

// NewSegmenter returns a Segmenter that splits on the given heading levels.
func NewSegmenter(levels []int) (*Segmenter, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("at least one header level is required")
	}
	tracked := make(map[int]bool, len(levels))
	for _, lvl := range levels {
		if lvl < 1 || lvl > 6 {
			return nil, fmt.Errorf("header level %d out of range 1-6", lvl)
		}
		tracked[lvl] = true
	}
	return &Segmenter{md: goldmark.New(), levels: tracked}, nil
}

// headingSpan is a tracked heading with the byte range of its whole source line.
type headingSpan struct {
	header     Header
	start, end int
}

// Segments splits source into header-bounded segments in document order.
// Heading lines are not part of any body. Whitespace-only bodies are dropped and
// adjacent segments with the same header path are merged.
func (s *Segmenter) Segments(source string) []Segment {
	src := []byte(source)
	var segments []Segment
	var stack []Header

	emit := func(body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		if n := len(segments); n > 0 && slices.Equal(segments[n-1].Headers, stack) {
			segments[n-1].Body += "\n\n" + body
			return
		}
		segments = append(segments, Segment{Headers: slices.Clone(stack), Body: body})
	}

	pos := 0
	for _, h := range s.headings(src) {
		emit(source[pos:h.start])
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.header.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h.header)
		pos = h.end
	}
	emit(source[pos:])
	return segments
}

// headings returns the tracked ATX headings that are direct children of the document.
// Headings nested in lists, quotes or code never split a document. An empty heading
// ("#" or "## ") has no title line of its own, so it is found by scanning forward
// from the end of the previous block.
func (s *Segmenter) headings(src []byte) []headingSpan {
	doc := s.md.Parser().Parse(text.NewReader(src))
	var spans []headingSpan
	cursor := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok && s.levels[heading.Level] {
			if span, found := headingSpanOf(src, heading, cursor); found {
				spans = append(spans, span)
				cursor = span.end
				continue
			}
		}
		if stop := lastStop(n); stop > cursor {
			cursor = lineEnd(src, stop-1)
		}
	}
	return spans
}

func headingSpanOf(src []byte, heading *ast.Heading, cursor int) (headingSpan, bool) {
	lines := heading.Lines()
	if lines.Len() == 0 {
		for pos := cursor; pos < len(src); pos = lineEnd(src, pos) {
			end := lineEnd(src, pos)
			if isEmptyATX(src[pos:end], heading.Level) {
				return headingSpan{header: Header{Level: heading.Level}, start: pos, end: end}, true
			}
		}
		return headingSpan{}, false
	}
	first := lines.At(0)
	start := lineStart(src, first.Start)
	if !isATX(src[start:first.Start], heading.Level) {
		return headingSpan{}, false
	}
	return headingSpan{
		header: Header{Level: heading.Level, Title: strings.TrimSpace(string(lines.Value(src)))},
		start:  start,
		end:    lineEnd(src, lines.At(lines.Len()-1).Stop),
	}, true
}

// lastStop returns the end offset of the last source line owned by block n or its
// descendants, or -1 when it owns none.
func lastStop(n ast.Node) int {
	if n.Type() != ast.TypeBlock {
		return -1
	}
	if lines := n.Lines(); lines.Len() > 0 {
		return lines.At(lines.Len() - 1).Stop
	}
	for c := n.LastChild(); c != nil; c = c.PreviousSibling() {
		if stop := lastStop(c); stop >= 0 {
			return stop
		}
	}
	return -1
}

// isEmptyATX reports whether line is an ATX heading of the given level with no title,
// optionally followed by a closing sequence.
func isEmptyATX(line []byte, level int) bool {
	l := strings.TrimRight(string(line), "\r\n")
	p := strings.TrimLeft(l, " ")
	if len(l)-len(p) > 3 || !strings.HasPrefix(p, strings.Repeat("#", level)) {
		return false
	}
	rest := p[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return false
	}
	return strings.Trim(rest, " \t#") == ""
}

// isATX reports whether prefix (the text before a heading's title on its line)
// is an ATX opening sequence of the given level.
func isATX(prefix []byte, level int) bool {
	p := strings.TrimLeft(string(prefix), " ")
	if !strings.HasPrefix(p, strings.Repeat("#", level)) {
		return false
	}
	rest := p[level:]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

func lineStart(src []byte, i int) int {
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	return i
}

// lineEnd returns the offset just past the newline ending the line containing i.
func lineEnd(src []byte, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	if i < len(src) {
		i++
	}
	return i
}
