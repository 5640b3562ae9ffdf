package compression

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/reasoning"
)

// compressSegment runs the chunk, verify and repair loop over one segment.
//
// It returns prompt itself, with changed false, when no attempt yields a
// verified delivery text that is strictly shorter than prompt. Malformed
// service responses are absorbed as empty results; any other service error
// ends the segment.
func (c *Compressor) compressSegment(ctx context.Context, prompt, format string, attempts int) (out string, changed bool, err error) {
	attrs := []attribute.KeyValue{attribute.Int("attempts.max", attempts)}
	if seg, ok := logging.SegmentFromContext(ctx); ok {
		attrs = append(attrs,
			attribute.Int("segment.index", seg.Index),
			attribute.Int("segment.total", seg.Total),
		)
	}
	ctx, span := c.tracer.Start(ctx, "compression.segment", trace.WithAttributes(attrs...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Bool("compressed", changed))
		span.End()
	}()

	startTokens := c.measurer.Measure(prompt)
	span.SetAttributes(attribute.Int("tokens.original", startTokens))
	c.logger.Info(ctx, "compressing segment", zap.Int("tokens", startTokens))

	rules, err := c.full.IdentifyStaticRules(ctx, prompt)
	if err = c.absorbMalformed(ctx, "identify_static_rules", err); err != nil {
		return "", false, fmt.Errorf("identify static rules: %w", err)
	}
	statics := ExtractStatics(ctx, c.logger, prompt, rules)
	listing := FormatStatics(statics)
	span.SetAttributes(attribute.Int("statics", len(statics)))

	chunks, err := c.full.Chunk(ctx, prompt, listing)
	if errors.Is(err, reasoning.ErrMalformedResponse) {
		chunks = nil
	}
	if err = c.absorbMalformed(ctx, "chunk", err); err != nil {
		return "", false, fmt.Errorf("chunk: %w", err)
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Debug(ctx, "verification attempt",
			zap.Int("attempt", attempt),
			zap.Int("chunks", len(chunks)),
		)

		working := Reconstruct(ctx, c.logger, statics, chunks)
		expanded, err := c.full.Expand(ctx, working, listing)
		if err != nil {
			return "", false, fmt.Errorf("expand: %w", err)
		}

		verdict, err := c.compare(ctx, prompt, format, expanded)
		if err != nil {
			return "", false, err
		}

		if verdict.Equivalent {
			c.metrics.recordAttempts(ctx, attempt)
			span.SetAttributes(attribute.Int("attempts.used", attempt))

			final := ReconstructFinal(ctx, c.logger, statics, format, chunks)
			endTokens := c.measurer.Measure(final)
			span.SetAttributes(attribute.Int("tokens.compressed", endTokens))

			if endTokens >= startTokens {
				c.logger.Info(ctx, "compressed segment is not shorter, keeping original",
					zap.Int("original_tokens", startTokens),
					zap.Int("compressed_tokens", endTokens),
				)
				c.metrics.recordFallback(ctx, reasonNotShorter)
				return prompt, false, nil
			}

			c.logger.Info(ctx, "compressed segment",
				zap.Int("original_tokens", startTokens),
				zap.Int("compressed_tokens", endTokens),
				zap.Float64("savings_pct", savings(startTokens, endTokens)),
			)
			return final, true, nil
		}

		c.logger.Info(ctx, "fixing discrepancies",
			zap.Int("attempt", attempt),
			zap.Int("discrepancies", len(verdict.Discrepancies)),
		)
		chunks, err = c.full.Repair(ctx, prompt, listing, expanded, verdict.Discrepancies)
		if errors.Is(err, reasoning.ErrMalformedResponse) {
			chunks = nil
		}
		if err = c.absorbMalformed(ctx, "repair", err); err != nil {
			return "", false, fmt.Errorf("repair: %w", err)
		}
	}

	c.metrics.recordAttempts(ctx, attempts)
	c.metrics.recordFallback(ctx, reasonAttemptsExhausted)
	span.SetAttributes(attribute.Int("attempts.used", attempts))
	c.logger.Warn(ctx, "attempts exhausted, keeping original", zap.Int("attempts", attempts))
	return prompt, false, nil
}

// compare diffs expanded against original with the fast service, then
// judges equivalence from that analysis with the full one.
func (c *Compressor) compare(ctx context.Context, original, format, expanded string) (reasoning.Comparison, error) {
	analysis, err := c.fast.Diff(ctx, original, expanded)
	if err != nil {
		return reasoning.Comparison{}, fmt.Errorf("diff: %w", err)
	}

	verdict, err := c.full.JudgeEquivalence(ctx, expanded, format, analysis)
	if errors.Is(err, reasoning.ErrMalformedResponse) {
		verdict = reasoning.Comparison{}
	}
	if err = c.absorbMalformed(ctx, "judge_equivalence", err); err != nil {
		return reasoning.Comparison{}, fmt.Errorf("judge equivalence: %w", err)
	}
	return verdict, nil
}

// absorbMalformed logs and clears ErrMalformedResponse. Other errors pass
// through.
func (c *Compressor) absorbMalformed(ctx context.Context, op string, err error) error {
	if errors.Is(err, reasoning.ErrMalformedResponse) {
		c.logger.Warn(ctx, "malformed response, continuing with empty result",
			zap.String("operation", op),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func savings(start, end int) float64 {
	if start == 0 {
		return 0
	}
	return (1 - float64(end)/float64(start)) * 100
}
