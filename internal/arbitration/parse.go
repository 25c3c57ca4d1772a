package arbitration

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	errNoObject      = errors.New("no JSON object found")
	errUnbalanced    = errors.New("unbalanced JSON object")
	errInvalidObject = errors.New("no valid JSON object found")
)

// ParseError means the model answered but the answer could not be decoded
// into the expected shape. It is distinct from a decoded SKIP.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Sprintf("arbitration: unparsable model output (%v): %q", e.Err, raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractJSON returns the first balanced {...} span of text that decodes as a
// JSON object. Spans that are not valid JSON, like "{action}", are skipped.
// Braces inside JSON strings are ignored.
func ExtractJSON(text string) (string, error) {
	err := errNoObject
	for from := 0; from < len(text); {
		i := strings.IndexByte(text[from:], '{')
		if i < 0 {
			break
		}
		start := from + i
		span, ok := balancedSpan(text, start)
		if !ok {
			err = errUnbalanced
		} else if json.Valid([]byte(span)) {
			return span, nil
		} else {
			err = errInvalidObject
		}
		from = start + 1
	}
	return "", err
}

// balancedSpan returns the {...} span that opens at text[start].
func balancedSpan(text string, start int) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSON extracts the first JSON object of text and decodes it into out.
// Any failure is returned as *ParseError.
func ParseJSON(text string, out any) error {
	span, err := ExtractJSON(text)
	if err != nil {
		return &ParseError{Raw: text, Err: err}
	}
	if err := json.Unmarshal([]byte(span), out); err != nil {
		return &ParseError{Raw: text, Err: err}
	}
	return nil
}

// fields is a decoded JSON object whose values are read leniently: a value of
// the wrong type reads as absent instead of failing the whole object.
type fields map[string]json.RawMessage

func parseFields(text string) (fields, error) {
	var f fields
	if err := ParseJSON(text, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f fields) str(key string) string {
	var s string
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

// num accepts a JSON number or a numeric string.
func (f fields) num(key string) (float64, bool) {
	raw, ok := f[key]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (f fields) numPtr(key string) *float64 {
	if v, ok := f.num(key); ok {
		return &v
	}
	return nil
}
