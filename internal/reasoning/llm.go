package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/promptzip/internal/logging"
)

const tracerName = "github.com/fyrsmithlabs/promptzip/internal/reasoning"

// Default configuration values.
const (
	defaultMaxTokens          = 4096
	defaultMaxRetries         = 3
	defaultBaseBackoff        = 1 * time.Second
	defaultJSONRepairAttempts = 3
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// LLMService implements Service on top of langchaingo chat models.
//
// Every call runs at temperature 0. Output that should be JSON is parsed
// leniently; when it still fails to parse, the repair model is asked to fix
// it before ErrMalformedResponse is returned.
type LLMService struct {
	model       llms.Model
	repairModel llms.Model
	name        string

	limiter            *rate.Limiter
	maxRetries         int
	baseBackoff        time.Duration
	maxTokens          int
	jsonRepairAttempts int

	logger *logging.Logger
	tracer trace.Tracer
}

// Option configures an LLMService.
type Option func(*LLMService)

// WithRepairModel sets the model used to fix malformed JSON. Defaults to
// the main model.
func WithRepairModel(m llms.Model) Option {
	return func(s *LLMService) {
		if m != nil {
			s.repairModel = m
		}
	}
}

// WithName sets the identity reported in logs and spans, usually
// "provider/model".
func WithName(name string) Option {
	return func(s *LLMService) {
		s.name = name
	}
}

// WithRateLimit sets requests per second and burst. A non-positive limit
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *LLMService) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetries sets how many times a retryable provider failure is retried
// and the first backoff delay, which doubles per retry.
func WithRetries(maxRetries int, baseBackoff time.Duration) Option {
	return func(s *LLMService) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if baseBackoff > 0 {
			s.baseBackoff = baseBackoff
		}
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(s *LLMService) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithJSONRepairAttempts sets how many times malformed JSON is sent back
// for repair.
func WithJSONRepairAttempts(n int) Option {
	return func(s *LLMService) {
		if n >= 0 {
			s.jsonRepairAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *LLMService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLLMService creates a service backed by model.
func NewLLMService(model llms.Model, opts ...Option) (*LLMService, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	s := &LLMService{
		model:              model,
		repairModel:        model,
		name:               "llm",
		limiter:            rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries:         defaultMaxRetries,
		baseBackoff:        defaultBaseBackoff,
		maxTokens:          defaultMaxTokens,
		jsonRepairAttempts: defaultJSONRepairAttempts,
		logger:             logging.NewNop(),
		tracer:             otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the identity of the backing model.
func (s *LLMService) Name() string {
	return s.name
}

// IdentifyStaticRules implements Service.
func (s *LLMService) IdentifyStaticRules(ctx context.Context, prompt string) ([]StaticRule, error) {
	out, err := s.call(ctx, "identify_static", s.model, staticPrompt(), map[string]any{
		"prompt": prompt,
	})
	if err != nil {
		return nil, err
	}
	return parse(ctx, s.parser(), out, decodeList[StaticRule])
}

// Chunk implements Service.
func (s *LLMService) Chunk(ctx context.Context, prompt, statics string) ([]Chunk, error) {
	out, err := s.call(ctx, "chunk", s.model, chunkPrompt(), chunkValues(prompt, statics))
	if err != nil {
		return nil, err
	}
	return parse(ctx, s.parser(), out, decodeList[Chunk])
}

// Expand implements Service.
func (s *LLMService) Expand(ctx context.Context, compressed, statics string) (string, error) {
	return s.call(ctx, "expand", s.model, expandPrompt(), map[string]any{
		"compressed": compressed,
		"statics":    statics,
	})
}

// IdentifyFormat implements Service.
func (s *LLMService) IdentifyFormat(ctx context.Context, prompt string) (string, error) {
	return s.call(ctx, "identify_format", s.model, formatPrompt(), map[string]any{
		"input": prompt,
	})
}

// Diff implements Service.
func (s *LLMService) Diff(ctx context.Context, original, expanded string) (string, error) {
	return s.call(ctx, "diff", s.model, diffPrompt(), map[string]any{
		"original": original,
		"restored": expanded,
	})
}

// JudgeEquivalence implements Service.
func (s *LLMService) JudgeEquivalence(ctx context.Context, expanded, format, analysis string) (Comparison, error) {
	out, err := s.call(ctx, "judge_equivalence", s.model, judgePrompt(), map[string]any{
		"restored":   expanded,
		"formatting": format,
		"analysis":   analysis,
	})
	if err != nil {
		return Comparison{}, err
	}
	return parse(ctx, s.parser(), out, decodeComparison)
}

// Repair implements Service.
func (s *LLMService) Repair(ctx context.Context, original, statics, expanded string, discrepancies []string) ([]Chunk, error) {
	values := chunkValues(original, statics)
	values["restored"] = expanded
	values["discrepancies"] = bulletList(discrepancies)

	out, err := s.call(ctx, "repair", s.model, repairPrompt(), values)
	if err != nil {
		return nil, err
	}
	return parse(ctx, s.parser(), out, decodeList[Chunk])
}

func chunkValues(prompt, statics string) map[string]any {
	maxIndex := 0
	if statics != "" {
		maxIndex = strings.Count(statics, "\n")
	}
	return map[string]any{
		"prompt":    prompt,
		"statics":   statics,
		"max_index": maxIndex,
	}
}

func (s *LLMService) parser() jsonParser {
	return jsonParser{fix: s.fixJSON, attempts: s.jsonRepairAttempts}
}

func (s *LLMService) fixJSON(ctx context.Context, text, parseErr string) (string, error) {
	s.logger.Debug(ctx, "asking model to repair JSON", zap.String("error", parseErr))
	return s.call(ctx, "fix_json", s.repairModel, fixJSONPrompt(), map[string]any{
		"input": text,
		"error": parseErr,
	})
}

// call renders tmpl, sends it to model and returns the text of the first
// choice. Retryable failures are retried with exponential backoff;
// context-length failures are returned at once as *ContextLengthError.
func (s *LLMService) call(ctx context.Context, op string, model llms.Model, tmpl prompts.ChatPromptTemplate, values map[string]any) (string, error) {
	ctx, span := s.tracer.Start(ctx, "reasoning."+op,
		trace.WithAttributes(
			attribute.String("model", s.name),
		),
	)
	defer span.End()

	msgs, err := renderMessages(tmpl, values)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return "", fmt.Errorf("rendering %s prompt: %w", op, err)
	}

	if s.logger.Enabled(logging.TraceLevel) {
		s.logger.Trace(ctx, "reasoning request",
			zap.String("op", op),
			zap.String("prompt", transcript(msgs)),
		)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.baseBackoff * time.Duration(1<<(attempt-1))
			s.logger.Debug(ctx, "retrying reasoning call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		out, err := s.generate(ctx, model, msgs)
		if err == nil {
			span.SetAttributes(
				attribute.Int("attempts", attempt+1),
				attribute.Int("output_length", len(out)),
			)
			s.logger.Debug(ctx, "reasoning call completed",
				zap.String("op", op),
				zap.String("model", s.name),
				zap.Duration("duration", time.Since(start)),
			)
			s.logger.Trace(ctx, "reasoning response",
				zap.String("op", op),
				zap.String("output", out),
			)
			return out, nil
		}

		lastErr = classifyProviderError(err)
		if !isRetryableError(lastErr) {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, op+" failed")
	if cle, ok := AsContextLength(lastErr); ok {
		span.SetAttributes(attribute.Int("context_limit", cle.Limit))
		return "", fmt.Errorf("%s: %w", op, cle)
	}
	if isRetryableError(lastErr) {
		return "", fmt.Errorf("%s: max retries exceeded: %w", op, lastErr)
	}
	return "", fmt.Errorf("%s: %w", op, lastErr)
}

// transcript flattens the text parts of msgs for trace logging.
func transcript(msgs []llms.MessageContent) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				b.WriteString(t.Text)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s *LLMService) generate(ctx context.Context, model llms.Model, msgs []llms.MessageContent) (string, error) {
	resp, err := model.GenerateContent(ctx, msgs,
		llms.WithTemperature(0),
		llms.WithMaxTokens(s.maxTokens),
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("empty response from model")
	}
	return resp.Choices[0].Content, nil
}

// renderMessages formats tmpl and folds consecutive messages of one role
// into a single message, which providers with strict turn order require.
func renderMessages(tmpl prompts.ChatPromptTemplate, values map[string]any) ([]llms.MessageContent, error) {
	chat, err := tmpl.FormatMessages(values)
	if err != nil {
		return nil, err
	}

	out := make([]llms.MessageContent, 0, len(chat))
	var texts []string
	var role llms.ChatMessageType
	flush := func() {
		if len(texts) > 0 {
			out = append(out, llms.TextParts(role, strings.Join(texts, "\n\n")))
		}
	}
	for _, msg := range chat {
		if msg.GetType() != role {
			flush()
			role = msg.GetType()
			texts = texts[:0]
		}
		texts = append(texts, msg.GetContent())
	}
	flush()
	return out, nil
}

var _ Service = (*LLMService)(nil)
