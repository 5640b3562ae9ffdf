package compression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/reasoning"
)

// staticMatchTimeout bounds a single rule; patterns come from a model and
// may backtrack badly.
const staticMatchTimeout = 2 * time.Second

// ExtractStatics applies rules to text and returns the unique spans they
// match, in order of first occurrence.
//
// Patterns are compiled in multiline mode. A pattern without capture
// groups yields its whole match. A pattern with groups yields every group
// after the first, which is treated as an anchor. Groups count in order of
// their opening parenthesis, named or not, and Python's (?P<name>...) and
// (?P=name) forms are accepted. Newlines inside a span
// become spaces and blank spans are dropped. Rules that fail to compile or
// time out are logged and skipped.
func ExtractStatics(ctx context.Context, logger *logging.Logger, text string, rules []reasoning.StaticRule) []string {
	var spans []string
	seen := make(map[string]struct{})

	for _, rule := range rules {
		matches, err := matchRule(rule.Regex, text)
		if err != nil {
			logger.Warn(ctx, "skipping static rule",
				zap.String("regex", rule.Regex),
				zap.Error(err),
			)
			continue
		}

		for _, m := range matches {
			span := strings.TrimSpace(strings.ReplaceAll(m, "\n", " "))
			if span == "" {
				continue
			}
			if _, dup := seen[span]; dup {
				continue
			}
			seen[span] = struct{}{}
			spans = append(spans, span)
		}

		logger.Debug(ctx, "extracted statics",
			zap.String("regex", rule.Regex),
			zap.Int("matches", len(matches)),
			zap.Int("total", len(spans)),
		)
	}

	return spans
}

func matchRule(pattern, text string) ([]string, error) {
	re, err := regexp2.Compile(numberNamedGroups(pattern), regexp2.Multiline)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	re.MatchTimeout = staticMatchTimeout

	var out []string
	m, err := re.FindStringMatch(text)
	for ; m != nil && err == nil; m, err = re.FindNextMatch(m) {
		groups := m.Groups()
		if len(groups) == 1 {
			out = append(out, m.String())
			continue
		}
		for _, g := range groups[2:] {
			if len(g.Captures) > 0 {
				out = append(out, g.String())
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("matching: %w", err)
	}
	return out, nil
}

// numberNamedGroups rewrites named groups as plain capture groups, so the
// group numbers follow the opening parentheses, and named backreferences
// as numbered ones. Escapes and character classes are copied untouched.
func numberNamedGroups(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))

	names := make(map[string]int)
	groups := 0
	inClass := false

	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '\\' && i+1 < len(pattern):
			b.WriteString(pattern[i : i+2])
			i++
			continue
		case inClass:
			if ch == ']' {
				inClass = false
			}
		case ch == '[':
			inClass = true
			// a ']' right after '[' or '[^' is a literal
			j := i + 1
			if j < len(pattern) && pattern[j] == '^' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			b.WriteString(pattern[i:j])
			i = j - 1
			continue
		case ch == '(':
			rest := pattern[i:]
			if !strings.HasPrefix(rest, "(?") {
				groups++
				break
			}
			if name, n, ok := groupName(rest); ok {
				groups++
				names[name] = groups
				b.WriteByte('(')
				i += n - 1
				continue
			}
			if name, n, ok := scanName(rest, "(?P=", ')'); ok {
				if num, known := names[name]; known {
					fmt.Fprintf(&b, `(?:\%d)`, num)
					i += n - 1
					continue
				}
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// groupName reads a named group opener at the start of s and returns the
// name and the opener's length.
func groupName(s string) (string, int, bool) {
	for _, form := range []struct {
		prefix string
		end    byte
	}{{"(?P<", '>'}, {"(?<", '>'}, {"(?'", '\''}} {
		if name, n, ok := scanName(s, form.prefix, form.end); ok {
			return name, n, true
		}
	}
	return "", 0, false
}

// scanName matches prefix, a group name and end at the start of s.
func scanName(s, prefix string, end byte) (string, int, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", 0, false
	}
	i := len(prefix)
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	if i == len(prefix) || i >= len(s) || s[i] != end {
		return "", 0, false
	}
	return s[len(prefix):i], i + 1, true
}

func isNameByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// FormatStatics renders spans as the numbered listing chunks refer to:
//
//	- 0: first span
//	- 1: second span
func FormatStatics(spans []string) string {
	lines := make([]string, len(spans))
	for i, span := range spans {
		lines[i] = fmt.Sprintf("- %d: %s", i, span)
	}
	return strings.Join(lines, "\n")
}
