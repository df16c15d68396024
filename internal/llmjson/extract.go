package llmjson

import (
	"encoding/json"
	"strings"
)

// ExtractArray returns text from the first '[' through the last ']' verbatim.
// The span is not checked for JSON validity.
func ExtractArray(text string) (string, error) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return "", ErrNoArrayFound
	}
	return text[start : end+1], nil
}

// Decode sanitizes raw model output, isolates the JSON array when brackets are present and
// unmarshals it into generic Go values ([]any, map[string]any, string, float64, bool, nil).
func Decode(raw string) (any, error) {
	s, err := Sanitize(raw)
	if err != nil {
		return nil, err
	}

	text := s.Text
	if strings.Contains(text, "[") && strings.Contains(text, "]") {
		text, err = ExtractArray(text)
		if err != nil {
			return nil, err
		}
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, &ParseError{Text: text, Err: err}
	}
	return v, nil
}
