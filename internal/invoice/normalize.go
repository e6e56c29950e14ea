package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// snippetLimit bounds how much of a bad response ends up in logs and CSV rows
const snippetLimit = 200

// ErrNoJSONObject is returned when the response contains no opening brace
var ErrNoJSONObject = errors.New("no JSON object found")

var fenceTag = regexp.MustCompile(`^[A-Za-z0-9_+\-]*$`)

// ParseError describes a response that still did not parse after repair
type ParseError struct {
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s - snippet: %s", e.Reason, e.Snippet)
}

// Normalize turns raw model output into a decoded page or a failure reason
func Normalize(raw string) NormalizedResult {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return Failed(err.Error())
	}
	page, err := DecodePage(obj)
	if err != nil {
		return Failed(err.Error())
	}
	return OK(page)
}

// ExtractJSON finds the single JSON object in text that may be wrapped in markdown fences or prose.
// A strict parse is tried first, then one repair pass.
func ExtractJSON(raw string) (map[string]any, error) {
	text := stripFence(raw)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, ErrNoJSONObject
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, &ParseError{
			Reason:  "no closing brace for JSON object",
			Snippet: truncate(text[start:], snippetLimit),
		}
	}
	candidate := text[start : end+1]

	obj, err := decodeObject(candidate)
	if err == nil {
		return obj, nil
	}

	obj, err = decodeObject(repairJSON(candidate))
	if err != nil {
		return nil, &ParseError{
			Reason:  fmt.Sprintf("could not parse JSON: %v", err),
			Snippet: truncate(candidate, snippetLimit),
		}
	}
	return obj, nil
}

// stripFence removes one outer ``` fence, with or without a language tag. The fence
// only counts as outer when it opens before the first brace and closes after the last;
// anything else is returned unchanged.
func stripFence(text string) string {
	open := strings.Index(text, "```")
	if open == -1 {
		return text
	}
	if brace := strings.Index(text, "{"); brace != -1 && brace < open {
		return text
	}
	body := text[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl != -1 && fenceTag.MatchString(strings.TrimSpace(body[:nl])) {
		body = body[nl+1:]
	}
	closing := strings.LastIndex(body, "```")
	if closing == -1 || strings.LastIndex(body, "}") > closing {
		return text
	}
	return strings.TrimSpace(body[:closing])
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return obj, nil
}

// repairJSON fixes the mistakes models commonly make: single-quoted strings,
// raw newlines and trailing commas before a closing brace or bracket.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var quote rune // 0 outside a string, otherwise the opening delimiter
	escaped := false
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\r' || r == '\n' {
			if r == '\r' && i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			if escaped {
				// a space is not an escapable character
				dropLast(&b)
				escaped = false
			}
			b.WriteRune(' ')
			continue
		}

		if quote != 0 {
			switch {
			case escaped:
				escaped = false
				if r == '\'' {
					// \' is not a valid JSON escape
					dropLast(&b)
				}
				b.WriteRune(r)
			case r == '\\':
				escaped = true
				b.WriteRune(r)
			case r == quote:
				quote = 0
				b.WriteRune('"')
			case r == '"' && quote == '\'':
				b.WriteString(`\"`)
			default:
				b.WriteRune(r)
			}
			continue
		}

		switch r {
		case '"', '\'':
			quote = r
			b.WriteRune('"')
		case ',':
			if next := nextSignificant(runes, i+1); next == '}' || next == ']' {
				continue
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dropLast removes the final byte written to b, which callers only use for an ASCII backslash
func dropLast(b *strings.Builder) {
	prev := b.String()
	b.Reset()
	b.WriteString(prev[:len(prev)-1])
}

func nextSignificant(runes []rune, from int) rune {
	for _, r := range runes[from:] {
		switch r {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return r
	}
	return 0
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
