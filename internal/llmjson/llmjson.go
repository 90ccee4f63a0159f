// Package llmjson decodes JSON produced by language models into typed values.
//
// Model replies are parsed strictly first. When that fails a single
// normalisation pass is applied (single quoted strings become double quoted,
// comments and trailing commas are removed) and the result is parsed again.
// Anything still invalid is reported as an error and callers fall back to an
// empty result.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailscale/hujson"
)

var (
	// ErrNoJSON means the reply contained no array or object at all.
	ErrNoJSON = errors.New("llmjson: no json value found")
	// ErrInvalid means the reply could not be decoded even after normalisation.
	ErrInvalid = errors.New("llmjson: invalid json")
)

// StripFences removes a surrounding markdown code fence such as ```json.
func StripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(cleaned[:nl], "[{") {
		cleaned = cleaned[nl+1:]
	}
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// ExtractArray returns the outermost JSON array in text.
func ExtractArray(text string) (string, bool) {
	return extract(text, '[', ']')
}

// ExtractObject returns the outermost JSON object in text.
func ExtractObject(text string) (string, bool) {
	return extract(text, '{', '}')
}

// extract scans from the first open delimiter to its balancing close,
// skipping over string literals in either quote style. A value cut short by
// the model is returned up to the end of the text so the decoder can report it.
func extract(text string, open, close byte) (string, bool) {
	text = StripFences(text)
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return text[start:], true
}

// Normalize performs the single repair pass: single quoted strings are
// rewritten with double quotes and the result is standardised by hujson,
// which strips comments and trailing commas.
func Normalize(raw string) (string, error) {
	converted := convertQuotes(raw)
	standard, err := hujson.Standardize([]byte(converted))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return string(standard), nil
}

func convertQuotes(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	var quote byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch quote {
		case 0:
			switch c {
			case '"':
				quote = '"'
				b.WriteByte(c)
			case '\'':
				quote = '\''
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		case '"':
			b.WriteByte(c)
			if c == '\\' && i+1 < len(raw) {
				i++
				b.WriteByte(raw[i])
			} else if c == '"' {
				quote = 0
			}
		case '\'':
			switch {
			case c == '\\' && i+1 < len(raw) && raw[i+1] == '\'':
				i++
				b.WriteByte('\'')
			case c == '\\' && i+1 < len(raw):
				i++
				b.WriteByte(c)
				b.WriteByte(raw[i])
			case c == '"':
				b.WriteString(`\"`)
			case c == '\'':
				quote = 0
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// decode unmarshals raw into a fresh T, running the normalisation pass once
// when the strict decode fails.
func decode[T any](raw string) (T, error) {
	var zero, out T
	err := json.Unmarshal([]byte(raw), &out)
	if err == nil {
		return out, nil
	}
	normalized, nerr := Normalize(raw)
	if nerr != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var repaired T
	if err := json.Unmarshal([]byte(normalized), &repaired); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return repaired, nil
}
