package compression

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/tokens"
)

// segmentSeparators are tried in order: paragraphs, lines, sentences, words.
var segmentSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", " ", ""}

// sentencePunct is what the sentence separators carry across a boundary.
const sentencePunct = ".?!;"

// SplitSegments partitions text into segments of at most budget tokens as
// measured by measurer, preferring paragraph and sentence boundaries.
//
// A segment can only exceed budget when it is a single word longer than
// budget.
func SplitSegments(text string, budget int, measurer tokens.Measurer) ([]string, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("segment budget must be positive, got %d", budget)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(budget),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(segmentSeparators),
		textsplitter.WithLenFunc(measurer.Measure),
		textsplitter.WithKeepSeparator(true),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}

	segments := make([]string, 0, len(parts))
	for _, part := range reattachPunctuation(parts) {
		// Token counts are not additive across joins, so merged parts can
		// land a little over budget.
		if measurer.Measure(part) > budget {
			segments = append(segments, splitWords(part, budget, measurer)...)
			continue
		}
		segments = append(segments, part)
	}
	return segments, nil
}

// reattachPunctuation moves the punctuation a kept separator leaves at the
// start of a part back onto the end of the part before it, and drops blank
// parts.
func reattachPunctuation(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if n := len(out); n > 0 {
			rest := strings.TrimLeft(part, sentencePunct)
			if lead := len(part) - len(rest); lead > 0 {
				out[n-1] += part[:lead]
				part = strings.TrimSpace(rest)
			}
		}
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// splitWords greedily packs whitespace-separated words into pieces that
// measure within budget.
func splitWords(text string, budget int, measurer tokens.Measurer) []string {
	var pieces []string
	var current []string
	for _, word := range strings.Fields(text) {
		candidate := append(current, word)
		if len(current) > 0 && measurer.Measure(strings.Join(candidate, " ")) > budget {
			pieces = append(pieces, strings.Join(current, " "))
			current = []string{word}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}

// splitAndCompress splits prompt to fit window and compresses the segments
// concurrently. Outputs are joined with newlines in input order. changed
// reports whether any segment was compressed.
func (c *Compressor) splitAndCompress(ctx context.Context, prompt, format string, attempts, window int) (out string, changed bool, err error) {
	budget := tokens.Budget(window, c.safetyFactor)
	ctx, span := c.tracer.Start(ctx, "compression.split", trace.WithAttributes(
		attribute.Int("window", window),
		attribute.Int("budget", budget),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	segments, err := SplitSegments(prompt, budget, c.measurer)
	if err != nil {
		return "", false, err
	}
	span.SetAttributes(attribute.Int("segments", len(segments)))
	c.logger.Info(ctx, "splitting prompt",
		zap.Int("window", window),
		zap.Int("budget", budget),
		zap.Int("segments", len(segments)),
	)

	results := make([]string, len(segments))
	compressed := make([]bool, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, segment := range segments {
		g.Go(func() error {
			segCtx := logging.WithSegment(gctx, i, len(segments))
			res, ok, err := c.compressSegment(segCtx, segment, format, attempts)
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			results[i] = res
			compressed[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", false, err
	}

	for _, ok := range compressed {
		changed = changed || ok
	}
	return strings.Join(results, "\n"), changed, nil
}
