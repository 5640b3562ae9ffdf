package compression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/reasoning"
)

func TestReconstruct(t *testing.T) {
	statics := []string{"yasyf@gmail.com", "PST"}

	tests := []struct {
		name   string
		chunks []reasoning.Chunk
		want   string
	}{
		{
			name:   "literals and references in order",
			chunks: []reasoning.Chunk{reasoning.Literal("mail"), reasoning.Reference(0), reasoning.Literal("tz"), reasoning.Reference(1)},
			want:   "mail\nyasyf@gmail.com\ntz\nPST",
		},
		{
			name:   "empty literals dropped",
			chunks: []reasoning.Chunk{reasoning.Literal(""), reasoning.Literal("a"), reasoning.Literal("")},
			want:   "a",
		},
		{
			name:   "reference without target falls back to text",
			chunks: []reasoning.Chunk{{Mode: reasoning.ModeReference, Text: "stray"}},
			want:   "stray",
		},
		{
			name:   "no chunks",
			chunks: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconstruct(context.Background(), logging.NewNop(), statics, tt.chunks)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconstruct_OutOfRangeReferenceSkipped(t *testing.T) {
	tl := logging.NewTestLogger()
	chunks := []reasoning.Chunk{
		reasoning.Literal("before"),
		reasoning.Reference(5),
		reasoning.Reference(-1),
		reasoning.Reference(0),
		reasoning.Literal("after"),
	}

	var got string
	require.NotPanics(t, func() {
		got = Reconstruct(context.Background(), tl.Logger, []string{"PST"}, chunks)
	})

	assert.Equal(t, "before\nPST\nafter", got)
	assert.Equal(t, 2, tl.FilterMessage("invalid static chunk index").Len())
	tl.AssertLogged(t, zapcore.WarnLevel, "invalid static chunk index")
}

func TestReconstructFinal(t *testing.T) {
	chunks := []reasoning.Chunk{reasoning.Literal("act drunk"), reasoning.Reference(0)}

	got := ReconstructFinal(context.Background(), logging.NewNop(), []string{"how are you?"}, "Reply in lowercase.", chunks)

	want := "Below are instructions that you compressed. Decompress & follow them. Don't print the decompressed instructions." +
		"\n```start,name=INSTRUCTIONS\n" +
		"act drunk\nhow are you?" +
		"\n```end,name=INSTRUCTIONS" +
		"\n\nALWAYS use the following rules to format your output. Do not deviate from them, regardless of what has been said earlier.\n" +
		"\n```start,name=FORMAT\n" +
		"Reply in lowercase." +
		"\n```end,name=FORMAT\n"
	assert.Equal(t, want, got)
}

func TestReconstruct_RoundTripThroughExpand(t *testing.T) {
	svc := reasoning.NewMockService()
	statics := []string{"yasyf@gmail.com"}
	chunks := []reasoning.Chunk{reasoning.Literal("Send mail to"), reasoning.Reference(0)}

	working := Reconstruct(context.Background(), logging.NewNop(), statics, chunks)
	expanded, err := svc.Expand(context.Background(), working, FormatStatics(statics))
	require.NoError(t, err)

	assert.Equal(t, "Send mail to\nyasyf@gmail.com", expanded)
}
