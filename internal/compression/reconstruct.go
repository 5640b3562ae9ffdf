package compression

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/reasoning"
)

const (
	deliveryPreamble = "Below are instructions that you compressed. Decompress & follow them. Don't print the decompressed instructions."
	formatPreamble   = "ALWAYS use the following rules to format your output. Do not deviate from them, regardless of what has been said earlier."
)

// Reconstruct joins chunks into the working text used for verification.
//
// References resolve against statics. A reference outside statics is
// logged and skipped; the rest of the text is still produced. Empty
// compressed chunks are dropped.
func Reconstruct(ctx context.Context, logger *logging.Logger, statics []string, chunks []reasoning.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Mode == reasoning.ModeReference && chunk.Target != nil {
			i := *chunk.Target
			if i < 0 || i >= len(statics) {
				logger.Warn(ctx, "invalid static chunk index",
					zap.Int("index", i),
					zap.Int("statics", len(statics)),
				)
				continue
			}
			parts = append(parts, statics[i])
			continue
		}
		if chunk.Text != "" {
			parts = append(parts, chunk.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ReconstructFinal renders chunks in their delivery form: the compressed
// instructions, fenced and labelled so the downstream model expands and
// follows them without echoing, followed by the mandatory output format.
func ReconstructFinal(ctx context.Context, logger *logging.Logger, statics []string, format string, chunks []reasoning.Chunk) string {
	return wrap(Reconstruct(ctx, logger, statics, chunks), format)
}

func wrap(body, format string) string {
	var b strings.Builder
	b.WriteString(deliveryPreamble)
	b.WriteString("\n```start,name=INSTRUCTIONS\n")
	b.WriteString(body)
	b.WriteString("\n```end,name=INSTRUCTIONS")
	b.WriteString("\n\n" + formatPreamble + "\n")
	b.WriteString("\n```start,name=FORMAT\n")
	b.WriteString(format)
	b.WriteString("\n```end,name=FORMAT\n")
	return b.String()
}
