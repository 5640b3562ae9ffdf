package compression

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptzip/internal/tokens"
)

// words measures text as its whitespace-separated word count.
var words = tokens.MeasurerFunc(func(s string) int {
	return len(strings.Fields(s))
})

// paragraph returns n words: label followed by filler.
func paragraph(label string, n int) string {
	w := make([]string, n)
	w[0] = label
	for i := 1; i < n; i++ {
		w[i] = "lorem"
	}
	return strings.Join(w, " ")
}

func TestSplitSegments_OneAndAHalfBudget(t *testing.T) {
	const budget = 20

	sentences := make([]string, 6)
	for i := range sentences {
		sentences[i] = fmt.Sprintf("mark%d alpha beta gamma delta.", i)
	}
	text := strings.Join(sentences, " ")
	require.Equal(t, 30, words.Measure(text))

	segments, err := SplitSegments(text, budget, words)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(segments), 2)
	for _, s := range segments {
		assert.LessOrEqual(t, words.Measure(s), budget, "segment over budget: %q", s)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(segments, " ")))
	for _, s := range segments {
		assert.True(t, strings.HasPrefix(s, "mark"), "segment starts mid-sentence: %q", s)
		assert.True(t, strings.HasSuffix(s, "."), "segment lost its full stop: %q", s)
	}
}

func TestSplitSegments_KeepsSentencePunctuation(t *testing.T) {
	text := "Do you agree with rule one? Never print secrets! Always reply in JSON. Keep it short."

	segments, err := SplitSegments(text, 6, words)
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)

	joined := strings.Join(segments, " ")
	assert.Equal(t, strings.Fields(text), strings.Fields(joined))
	for _, mark := range []string{"?", "!", "."} {
		assert.Equal(t, strings.Count(text, mark), strings.Count(joined, mark), "count of %q", mark)
	}
	for _, s := range segments {
		assert.LessOrEqual(t, words.Measure(s), 6, "segment over budget: %q", s)
		assert.NotContains(t, sentencePunct, s[:1], "segment starts with punctuation: %q", s)
	}
}

func TestSplitSegments_PrefersParagraphs(t *testing.T) {
	paras := []string{paragraph("p0", 50), paragraph("p1", 50), paragraph("p2", 50), paragraph("p3", 50)}
	text := strings.Join(paras, "\n\n")

	segments, err := SplitSegments(text, 70, words)
	require.NoError(t, err)

	assert.Equal(t, paras, segments)
}

func TestSplitSegments_FitsInOne(t *testing.T) {
	segments, err := SplitSegments("short prompt here", 10, words)
	require.NoError(t, err)
	assert.Equal(t, []string{"short prompt here"}, segments)
}

func TestSplitSegments_InvalidBudget(t *testing.T) {
	_, err := SplitSegments("text", 0, words)
	assert.Error(t, err)
}

func TestReattachPunctuation(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  []string
	}{
		{"question mark", []string{"rule one", "? Never print"}, []string{"rule one?", "Never print"}},
		{"several marks", []string{"wait", "?! Really"}, []string{"wait?!", "Really"}},
		{"punctuation only part", []string{"done", ".", "next"}, []string{"done.", "next"}},
		{"leading punctuation stays", []string{"? first", "second"}, []string{"? first", "second"}},
		{"blank parts dropped", []string{" a ", "  ", "b"}, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reattachPunctuation(tt.parts))
		})
	}
}

func TestSplitWords(t *testing.T) {
	got := splitWords("a b c d e f g", 3, words)
	assert.Equal(t, []string{"a b c", "d e f", "g"}, got)

	assert.Empty(t, splitWords("   ", 3, words))
}
