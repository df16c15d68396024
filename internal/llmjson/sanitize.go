// Package llmjson turns raw LLM completion text into parsed JSON values.
//
// Models wrap their JSON in markdown fences, quote it as a string literal, or surround it with
// prose. Sanitize removes the wrapping, ExtractArray isolates the array span and Decode runs the
// whole pipeline.
package llmjson

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const fence = "```"

// QuoteHandling records what Sanitize did with an outer quote pair.
type QuoteHandling int

const (
	// QuotesNone means the text was not wrapped in a matching quote pair.
	QuotesNone QuoteHandling = iota
	// QuotesDecoded means the pair was removed and escape sequences were decoded.
	QuotesDecoded
	// QuotesRaw means the pair was removed but decoding failed, so escapes are left verbatim.
	QuotesRaw
)

func (q QuoteHandling) String() string {
	switch q {
	case QuotesDecoded:
		return "decoded"
	case QuotesRaw:
		return "raw"
	}
	return "none"
}

// Sanitized is the unwrapped text plus how the outer quotes were handled.
type Sanitized struct {
	Text      string
	Quotes    QuoteHandling
	DecodeErr error
}

// Sanitize strips one leading markdown fence (with its language tag), the closing fence,
// surrounding whitespace and a single layer of matching ' or " quotes.
func Sanitize(raw string) (Sanitized, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Sanitized{}, ErrEmptyInput
	}

	if strings.HasPrefix(text, fence) {
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = text[len(fence):]
		}
	}
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "`"))

	out := Sanitized{Text: text}
	if len(text) < 2 {
		return out, nil
	}
	q := text[0]
	if (q != '"' && q != '\'') || text[len(text)-1] != q {
		return out, nil
	}

	inner := text[1 : len(text)-1]
	decoded, err := decodeEscapes(inner)
	if err != nil {
		out.Text = inner
		out.Quotes = QuotesRaw
		out.DecodeErr = err
		return out, nil
	}
	out.Text = decoded
	out.Quotes = QuotesDecoded
	return out, nil
}

// decodeEscapes resolves backslash escapes (\n, \t, \", \', \\, \xHH, \uHHHH, ...).
// Both quote characters may appear escaped or bare.
func decodeEscapes(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	buf := make([]byte, 0, len(s))
	for len(s) > 0 {
		if len(s) >= 2 && s[0] == '\\' && (s[1] == '"' || s[1] == '\'') {
			buf = append(buf, s[1])
			s = s[2:]
			continue
		}
		c, _, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			return "", err
		}
		s = tail
		// \xHH and octal escapes name code points, so \xe9 is é.
		buf = utf8.AppendRune(buf, c)
	}
	return string(buf), nil
}
