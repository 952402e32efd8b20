package extract

import (
	"strings"
	"unicode/utf8"
)

const bom = "\ufeff"

// extractPlain returns content as string with a leading byte order mark removed.
// Invalid UTF-8 sequences are replaced with the replacement character.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	return strings.TrimPrefix(s, bom), nil
}
