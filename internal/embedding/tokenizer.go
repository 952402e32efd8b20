package embedding

import (
	"bufio"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// VocabFileName is looked up next to an ONNX model file.
const VocabFileName = "vocab.txt"

const (
	maxWordRunes    = 100
	hashVocabSize   = 30000
	wordPiecePrefix = "##"
)

// Tokenizer produces fixed-length BERT inputs (input_ids, attention_mask,
// token_type_ids). Every slice has exactly maxTokens entries; the text is truncated
// so that [CLS] and [SEP] always fit.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// specialTokens are the ids framing and padding a sequence.
type specialTokens struct {
	cls, sep, pad, unk int64
}

var bertSpecials = specialTokens{cls: 101, sep: 102, pad: 0, unk: 100}

// NewTokenizer returns a WordPiece tokenizer built from the vocab.txt next to
// modelPath, or a HashTokenizer when the model ships without one.
func NewTokenizer(modelPath string) (Tokenizer, error) {
	vocabPath := filepath.Join(filepath.Dir(modelPath), VocabFileName)
	tok, err := LoadWordPiece(vocabPath)
	if errors.Is(err, os.ErrNotExist) {
		return HashTokenizer{}, nil
	}
	return tok, err
}

// WordPieceTokenizer implements uncased BERT tokenization: lowercasing, accent
// stripping, punctuation splitting and greedy longest-match WordPiece.
type WordPieceTokenizer struct {
	vocab    map[string]int64
	specials specialTokens
}

// LoadWordPiece reads a vocabulary with one token per line; the line number is the id.
func LoadWordPiece(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		vocab[strings.TrimRight(scanner.Text(), "\r")] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab %s: %w", path, err)
	}
	return NewWordPiece(vocab)
}

// NewWordPiece builds a tokenizer from an in-memory vocabulary. [CLS], [SEP],
// [PAD] and [UNK] must be present.
func NewWordPiece(vocab map[string]int64) (*WordPieceTokenizer, error) {
	var sp specialTokens
	for token, dst := range map[string]*int64{"[CLS]": &sp.cls, "[SEP]": &sp.sep, "[PAD]": &sp.pad, "[UNK]": &sp.unk} {
		id, ok := vocab[token]
		if !ok {
			return nil, fmt.Errorf("vocab is missing %s", token)
		}
		*dst = id
	}
	return &WordPieceTokenizer{vocab: vocab, specials: sp}, nil
}

// Tokenize encodes text into padded model inputs.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	var ids []int64
	for _, word := range basicTokens(text) {
		ids = append(ids, t.wordPiece(word)...)
	}
	return frame(ids, maxTokens, t.specials)
}

// wordPiece splits one word into the longest vocabulary pieces, left to right.
// A word that cannot be fully covered becomes a single [UNK].
func (t *WordPieceTokenizer) wordPiece(word string) []int64 {
	chars := []rune(word)
	if len(chars) > maxWordRunes {
		return []int64{t.specials.unk}
	}
	var out []int64
	for start := 0; start < len(chars); {
		end := len(chars)
		var id int64 = -1
		for ; end > start; end-- {
			piece := string(chars[start:end])
			if start > 0 {
				piece = wordPiecePrefix + piece
			}
			if v, ok := t.vocab[piece]; ok {
				id = v
				break
			}
		}
		if id < 0 {
			return []int64{t.specials.unk}
		}
		out = append(out, id)
		start = end
	}
	return out
}

// HashTokenizer maps whitespace-separated words to hashed ids. It keeps an ONNX
// model usable without its vocabulary, at the cost of meaningful embeddings.
type HashTokenizer struct{}

// Tokenize encodes text into padded model inputs.
func (HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	words := basicTokens(text)
	ids := make([]int64, len(words))
	for i, w := range words {
		// Offset past the special ids.
		ids[i] = 1000 + int64(hash64(w)%hashVocabSize)
	}
	return frame(ids, maxTokens, bertSpecials)
}

// frame wraps ids in [CLS] ... [SEP], truncating to maxTokens and padding the rest.
func frame(ids []int64, maxTokens int, sp specialTokens) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 2
	}
	if len(ids) > maxTokens-2 {
		ids = ids[:maxTokens-2]
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = sp.cls
	copy(inputIDs[1:], ids)
	inputIDs[len(ids)+1] = sp.sep
	for i := 0; i < len(ids)+2; i++ {
		attentionMask[i] = 1
	}
	for i := len(ids) + 2; i < maxTokens; i++ {
		inputIDs[i] = sp.pad
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// basicTokens lowercases, strips accents and splits text on whitespace, with each
// punctuation rune as its own token. Control characters are dropped.
func basicTokens(text string) []string {
	folded, _, err := transform.String(stripAccents, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func hash64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
