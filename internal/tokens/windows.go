package tokens

import (
	"sort"
	"strings"
)

// DefaultSafetyFactor is the share of the context window a single prompt
// may use. The rest is headroom for the delivery wrapper and the conversation.
const DefaultSafetyFactor = 0.70

// contextWindows maps a model name (or family prefix) to its context window.
var contextWindows = map[string]int{
	"gpt-3.5-turbo":   4097,
	"gpt-4":           8000,
	"gpt-4-32k":       32768,
	"gpt-4-turbo":     128000,
	"gpt-4o":          128000,
	"gpt-4o-mini":     128000,
	"claude-3":        200000,
	"claude-sonnet-4": 200000,
	"claude-opus-4":   200000,
	"claude-haiku-4":  200000,
}

// windowPrefixes holds the table keys, longest first, so that
// "gpt-4o-mini-2024-07-18" resolves to "gpt-4o-mini" before "gpt-4".
var windowPrefixes = func() []string {
	keys := make([]string, 0, len(contextWindows))
	for k := range contextWindows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// ContextWindow returns the context window for model. Dated or suffixed
// model names resolve to their family. ok is false for unknown models.
func ContextWindow(model string) (window int, ok bool) {
	if w, found := contextWindows[model]; found {
		return w, true
	}
	for _, prefix := range windowPrefixes {
		if strings.HasPrefix(model, prefix) {
			return contextWindows[prefix], true
		}
	}
	return 0, false
}

// Budget is the largest prompt, in tokens, that fits window at the given
// safety factor. A non-positive factor uses DefaultSafetyFactor.
func Budget(window int, safetyFactor float64) int {
	if window <= 0 {
		return 0
	}
	if safetyFactor <= 0 {
		safetyFactor = DefaultSafetyFactor
	}
	return int(float64(window) * safetyFactor)
}
