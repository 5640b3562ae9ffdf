package compression

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/reasoning"
	"github.com/fyrsmithlabs/promptzip/internal/tokens"
)

const (
	tracerName = "github.com/fyrsmithlabs/promptzip/internal/compression"
	meterName  = "compression"
)

// DefaultAttempts is the number of verification rounds per segment.
const DefaultAttempts = 3

// DefaultConcurrency is the number of segments compressed at once.
const DefaultConcurrency = 4

// roleLine matches lines holding nothing but a chat role marker.
var roleLine = regexp.MustCompile(`(?m)^(System|User|AI|Assistant|Human):$`)

// Compressor is the entry point for prompt compression.
//
// The full service handles static rules, chunking, expansion, judging and
// repair. The fast service handles format identification and diffing.
// A Compressor is safe for concurrent use.
type Compressor struct {
	full     reasoning.Service
	fast     reasoning.Service
	measurer tokens.Measurer

	attempts     int
	window       int
	safetyFactor float64
	concurrency  int

	logger  *logging.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	metrics *metrics
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithAttempts sets the default number of verification rounds.
func WithAttempts(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithContextWindow sets the model's context window in tokens. Zero
// disables proactive splitting; a limit reported by the provider still
// triggers it.
func WithContextWindow(tokens int) Option {
	return func(c *Compressor) {
		if tokens >= 0 {
			c.window = tokens
		}
	}
}

// WithSafetyFactor sets the share of the window a segment may use.
func WithSafetyFactor(f float64) Option {
	return func(c *Compressor) {
		if f > 0 && f <= 1 {
			c.safetyFactor = f
		}
	}
}

// WithConcurrency sets how many segments are compressed in parallel.
func WithConcurrency(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Compressor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer. Defaults to the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Compressor) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithMeter sets the meter. Defaults to the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(c *Compressor) {
		if m != nil {
			c.meter = m
		}
	}
}

// New creates a Compressor. A nil fast service reuses full.
func New(full, fast reasoning.Service, measurer tokens.Measurer, opts ...Option) (*Compressor, error) {
	if full == nil {
		return nil, errors.New("reasoning service is required")
	}
	if measurer == nil {
		return nil, errors.New("length measurer is required")
	}
	if fast == nil {
		fast = full
	}

	c := &Compressor{
		full:         full,
		fast:         fast,
		measurer:     measurer,
		attempts:     DefaultAttempts,
		safetyFactor: tokens.DefaultSafetyFactor,
		concurrency:  DefaultConcurrency,
		logger:       logging.NewNop(),
		tracer:       otel.Tracer(tracerName),
		meter:        otel.Meter(meterName),
	}
	for _, opt := range opts {
		opt(c)
	}

	m, err := newMetrics(c.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	c.metrics = m
	c.logger = c.logger.Named("compression")

	return c, nil
}

// Result describes one compression request.
type Result struct {
	// RunID correlates logs and spans of this request.
	RunID string

	Original   string
	Compressed string

	OriginalTokens   int
	CompressedTokens int

	Duration time.Duration
}

// Unchanged reports whether the original prompt was returned.
func (r *Result) Unchanged() bool {
	return r.Compressed == r.Original
}

// Compress compresses prompt with up to attempts verification rounds per
// segment; attempts <= 0 uses the configured default.
//
// The returned text is either prompt itself or strictly shorter than it.
// Errors are returned only for ErrInsufficientContext and for ctx being
// done; every other failure is logged and yields prompt unchanged.
func (c *Compressor) Compress(ctx context.Context, prompt string, attempts int) (*Result, error) {
	if attempts <= 0 {
		attempts = c.attempts
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx, span := c.tracer.Start(ctx, "compression.compress", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("attempts", attempts),
		attribute.Int("prompt.bytes", len(prompt)),
	))
	defer span.End()

	start := time.Now()
	res := &Result{
		RunID:          runID,
		Original:       prompt,
		Compressed:     prompt,
		OriginalTokens: c.measurer.Measure(prompt),
	}
	span.SetAttributes(attribute.Int("tokens.original", res.OriginalTokens))

	out, changed, err := c.compress(ctx, prompt, attempts)
	switch {
	case errors.Is(err, ErrInsufficientContext):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.recordOperation(ctx, outcomeFailed, time.Since(start))
		return nil, err
	case err != nil && ctx.Err() != nil:
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, ctx.Err().Error())
		c.metrics.recordOperation(ctx, outcomeFailed, time.Since(start))
		return nil, ctx.Err()
	case err != nil:
		reason := reasonError
		if cle, ok := reasoning.AsContextLength(err); ok && cle.Limit <= 0 {
			reason = reasonUnknownLimit
		}
		c.logger.Error(ctx, "compression failed, returning original prompt",
			zap.String("reason", reason),
			zap.Error(err),
		)
		span.RecordError(err)
		c.metrics.recordFallback(ctx, reason)
		changed = false
	}

	if changed {
		if n := c.measurer.Measure(out); n < res.OriginalTokens {
			res.Compressed = out
		}
	}
	res.CompressedTokens = c.measurer.Measure(res.Compressed)
	res.Duration = time.Since(start)

	outcome := outcomeCompressed
	if res.Unchanged() {
		outcome = outcomeUnchanged
	} else {
		c.metrics.recordRatio(ctx, res.OriginalTokens, res.CompressedTokens)
	}
	c.metrics.recordOperation(ctx, outcome, res.Duration)

	span.SetAttributes(
		attribute.Int("tokens.compressed", res.CompressedTokens),
		attribute.Bool("unchanged", res.Unchanged()),
	)
	c.logger.Info(ctx, "compression finished",
		zap.String("outcome", outcome),
		zap.Int("original_tokens", res.OriginalTokens),
		zap.Int("compressed_tokens", res.CompressedTokens),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// AsyncResult carries the outcome of CompressAsync.
type AsyncResult struct {
	Result *Result
	Err    error
}

// CompressAsync runs Compress in a goroutine. The channel yields exactly
// one value and is then closed.
func (c *Compressor) CompressAsync(ctx context.Context, prompt string, attempts int) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		defer close(ch)
		res, err := c.Compress(ctx, prompt, attempts)
		ch <- AsyncResult{Result: res, Err: err}
	}()
	return ch
}

func (c *Compressor) compress(ctx context.Context, prompt string, attempts int) (string, bool, error) {
	cleaned := StripRoles(prompt)

	format, err := c.fast.IdentifyFormat(ctx, cleaned)
	if err != nil {
		if _, ok := reasoning.AsContextLength(err); ok {
			return "", false, fmt.Errorf("%w: %w", ErrInsufficientContext, err)
		}
		return "", false, fmt.Errorf("identify format: %w", err)
	}
	c.logger.Debug(ctx, "identified format", logging.Preview("format", format, 80))

	var (
		out     string
		changed bool
	)
	if c.window > 0 && c.measurer.Measure(cleaned) > tokens.Budget(c.window, c.safetyFactor) {
		out, changed, err = c.splitAndCompress(ctx, cleaned, format, attempts, c.window)
	} else {
		out, changed, err = c.compressSegment(ctx, cleaned, format, attempts)
	}

	cle, ok := reasoning.AsContextLength(err)
	if !ok {
		return out, changed, err
	}
	if cle.Limit <= 0 {
		return "", false, fmt.Errorf("context length exceeded with no reported limit: %w", err)
	}

	c.logger.Warn(ctx, "provider reported a smaller context window, re-splitting",
		zap.Int("limit", cle.Limit),
		zap.Int("configured", c.window),
	)
	return c.splitAndCompress(ctx, cleaned, format, attempts, cle.Limit)
}

// StripRoles blanks lines that hold only a chat role marker such as
// "System:" or "User:".
func StripRoles(prompt string) string {
	return roleLine.ReplaceAllString(prompt, "")
}
