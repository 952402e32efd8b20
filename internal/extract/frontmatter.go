package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrFrontMatter is returned when a front matter block is present but cannot be decoded.
var ErrFrontMatter = errors.New("invalid front matter")

const (
	yamlDelim = "---"
	tomlDelim = "+++"
)

// ParseFrontMatter splits a leading YAML ("---") or TOML ("+++") block from text.
// Text without a complete block is returned unchanged with nil metadata.
func ParseFrontMatter(text string) (map[string]interface{}, string, error) {
	text = strings.TrimPrefix(text, bom)
	first, rest, ok := cutLine(text)
	if !ok {
		return nil, text, nil
	}
	delim := strings.TrimRight(first, " \t\r")
	if delim != yamlDelim && delim != tomlDelim {
		return nil, text, nil
	}

	var block strings.Builder
	remaining := rest
	for {
		line, after, more := cutLine(remaining)
		if strings.TrimRight(line, " \t\r") == delim {
			meta, err := decodeFrontMatter(delim, block.String())
			if err != nil {
				return nil, text, err
			}
			return meta, after, nil
		}
		if !more {
			// no closing delimiter
			return nil, text, nil
		}
		block.WriteString(line)
		block.WriteByte('\n')
		remaining = after
	}
}

func decodeFrontMatter(delim, block string) (map[string]interface{}, error) {
	meta := map[string]interface{}{}
	var err error
	switch delim {
	case yamlDelim:
		err = yaml.Unmarshal([]byte(block), &meta)
	case tomlDelim:
		err = toml.Unmarshal([]byte(block), &meta)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrontMatter, err)
	}
	return meta, nil
}

// cutLine returns the first line of s (without its newline) and the remainder.
// more is false when s holds no newline.
func cutLine(s string) (line, rest string, more bool) {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

// SourceFromMeta returns the non-empty string value of the "source" key, if any.
func SourceFromMeta(meta map[string]interface{}) (string, bool) {
	v, ok := meta["source"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}
