// Package logging provides structured logging for promptzip on top of Zap.
//
// Logger methods take a context and add its correlation fields: the active
// trace and span, the compression run ID, the segment being compressed when
// a prompt was split, and the HTTP request ID.
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithSegment(ctx, 2, 5)
//	logger.Info(ctx, "segment compressed", zap.Int("tokens", n))
//
// Console output goes to stderr by default so the CLI can write the
// compressed prompt to stdout. Output can also be bridged to OpenTelemetry
// through otelzap.
//
// String values are redacted by key (api_key, authorization, ...) and by
// pattern (bearer tokens, sk- keys). Prompts are user data; log them with
// Preview at Debug and in full only at Trace.
//
// Entries below Error are sampled; errors never are.
//
// Tests use TestLogger:
//
//	tl := logging.NewTestLogger()
//	svc := New(..., WithLogger(tl.Logger))
//	tl.AssertLogged(t, zapcore.WarnLevel, "cache read failed")
package logging
