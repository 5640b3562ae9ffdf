// Package telemetry sets up OpenTelemetry tracing and metrics for promptzip.
//
// Spans cover each compression run, each segment of a split prompt and each
// reasoning-service call. Metrics count runs, attempts, fallbacks and the
// achieved compression ratio. Both are exported over OTLP (gRPC or
// HTTP/protobuf) to a collector.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Telemetry failures never stop compression; a degraded instance hands out
// no-op tracers and meters and reports why in Health.
//
// Tests use TestTelemetry, which records spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	c, _ := compression.New(svc, fast, measurer,
//	    compression.WithTracer(tt.Tracer("test")),
//	    compression.WithMeter(tt.Meter("test")))
//	tt.AssertSpanExists(t, "compression.compress")
package telemetry
