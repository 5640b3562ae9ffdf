package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/promptzip/internal/http"
	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the promptzip HTTP API until interrupted.

Endpoints:
  GET    /health
  GET    /metrics
  POST   /api/v1/compress
  DELETE /api/v1/cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	opts := []httpserver.Option{
		httpserver.WithTelemetry(a.telemetry),
		httpserver.WithHTTPMetrics(httpserver.NewHTTPMetrics(a.telemetry.Meter(telemetry.ScopeHTTP), a.logger)),
	}
	if a.cache != nil {
		opts = append(opts, httpserver.WithCache(a.cache))
	}

	srv, err := httpserver.NewServer(a.compressor, a.logger, &httpserver.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		RequestTimeout: a.cfg.Server.RequestTimeout.Duration(),
		MaxBodyBytes:   a.cfg.Server.MaxBodyBytes,
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	a.logger.Info(ctx, "starting promptzip",
		zap.String("version", version),
		zap.String("model", a.cfg.LLM.Model),
		zap.String("fast_model", a.cfg.LLM.FastModelName()),
		zap.String("cache", a.cfg.Cache.Backend),
		logging.Secret("api_key", a.cfg.LLM.APIKey),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}
