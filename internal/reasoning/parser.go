package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// loneBackslash matches a backslash that does not start a JSON escape the
// models use on purpose. Regexes written by the model ("\w", "\d", "\b") come
// back unescaped and are doubled so they survive decoding.
var loneBackslash = regexp.MustCompile(`([^\\])\\([^\\nt"/u])`)

// fixer asks a model to repair invalid JSON given the parse error.
type fixer func(ctx context.Context, text, parseErr string) (string, error)

// jsonParser decodes model output into Go values, repairing it when needed.
type jsonParser struct {
	fix      fixer
	attempts int
}

// escapeBackslashes doubles lone backslashes until none remain.
// A single pass misses runs like "\d\d" because matches cannot overlap.
func escapeBackslashes(text string) string {
	for {
		next := loneBackslash.ReplaceAllString(text, `${1}\\${2}`)
		if next == text {
			return text
		}
		text = next
	}
}

// stripNoise removes markdown fences and "#" comment lines models put
// around the JSON they were asked for.
func stripNoise(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, fence) || strings.HasPrefix(trimmed, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// locateJSON returns the first well-formed JSON array or object in text.
// When wantList is set, a bare object is wrapped into a one-element list.
// If nothing parses, the text from the first bracket is returned so the
// caller reports a useful decode error.
func locateJSON(text string, wantList bool) string {
	text = escapeBackslashes(stripNoise(text))

	first := -1
	for i, r := range text {
		if r != '[' && r != '{' {
			continue
		}
		if first < 0 {
			first = i
		}
		raw, ok := firstValue(text[i:])
		if !ok {
			continue
		}
		if r == '{' && wantList {
			if i != first {
				// an object inside a broken list; wrapping it would drop the rest
				continue
			}
			return "[" + raw + "]"
		}
		if r == '[' && !wantList {
			continue
		}
		return raw
	}

	if first < 0 {
		return text
	}
	if wantList && strings.HasPrefix(text[first:], "{") {
		return "[" + text[first:] + "]"
	}
	return text[first:]
}

// firstValue returns the JSON value at the start of text, ignoring any
// trailing prose.
func firstValue(text string) (string, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&raw); err != nil {
		return "", false
	}
	return string(raw), true
}

// decodeList decodes a JSON list of T, validating every element.
func decodeList[T interface{ Validate() error }](text string) ([]T, error) {
	raw := locateJSON(text, true)
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	for i, item := range out {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}

// decodeComparison reads a verdict object. Booleans given as strings
// ("true") are accepted.
func decodeComparison(text string) (Comparison, error) {
	raw := locateJSON(text, false)
	if !gjson.Valid(raw) {
		return Comparison{}, fmt.Errorf("invalid JSON object: %.80q", raw)
	}

	res := gjson.Parse(raw)
	if !res.IsObject() {
		return Comparison{}, fmt.Errorf("expected a JSON object, got %s", res.Type)
	}

	eq := res.Get("equivalent")
	if !eq.Exists() {
		return Comparison{}, fmt.Errorf("verdict missing \"equivalent\"")
	}
	if eq.Type != gjson.True && eq.Type != gjson.False && eq.Type != gjson.String {
		return Comparison{}, fmt.Errorf("\"equivalent\" must be a bool, got %s", eq.Type)
	}

	cmp := Comparison{Equivalent: eq.Bool(), Discrepancies: []string{}}
	disc := res.Get("discrepancies")
	if disc.Exists() && disc.Type != gjson.Null && !disc.IsArray() {
		return Comparison{}, fmt.Errorf("\"discrepancies\" must be a list")
	}
	disc.ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			cmp.Discrepancies = append(cmp.Discrepancies, s)
		}
		return true
	})
	return cmp, nil
}

// parse runs decode on text, asking the fixer to repair the text after each
// failure. It gives up with ErrMalformedResponse.
func parse[T any](ctx context.Context, p jsonParser, text string, decode func(string) (T, error)) (T, error) {
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		v, err := decode(text)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if p.fix == nil {
			break
		}
		fixed, ferr := p.fix(ctx, text, err.Error())
		if ferr != nil {
			var zero T
			return zero, fmt.Errorf("%w: %v (repair failed: %v)", ErrMalformedResponse, lastErr, ferr)
		}
		text = fixed
	}

	v, err := decode(text)
	if err == nil {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}
