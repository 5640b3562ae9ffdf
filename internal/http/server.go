// Package http provides the HTTP API for promptzip.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptzip/internal/compression"
	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/telemetry"
)

// maxAttempts caps the verification rounds a single request may ask for.
const maxAttempts = 10

// Compressor compresses prompts.
type Compressor interface {
	Compress(ctx context.Context, prompt string, attempts int) (*compression.Result, error)
}

// CacheClearer empties the result cache.
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// Server provides HTTP endpoints for promptzip.
type Server struct {
	echo       *echo.Echo
	compressor Compressor
	cache      CacheClearer
	telemetry  *telemetry.Telemetry
	gatherer   prometheus.Gatherer
	metrics    *HTTPMetrics
	logger     *logging.Logger
	config     *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Option configures a Server.
type Option func(*Server)

// WithCache enables DELETE /api/v1/cache.
func WithCache(c CacheClearer) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithTelemetry reports telemetry health on GET /health.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) {
		s.telemetry = t
	}
}

// WithGatherer sets the registry served on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithHTTPMetrics records OTEL request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new HTTP server.
func NewServer(compressor Compressor, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if compressor == nil {
		return nil, fmt.Errorf("compressor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8088,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		compressor: compressor,
		gatherer:   prometheus.DefaultGatherer,
		logger:     logger.Named("http"),
		config:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(s.requestContext)
	if cfg.MaxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxBodyBytes)))
	}

	s.registerRoutes()
	return s, nil
}

// requestContext carries the request ID into the request context and logs
// each request.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(req.Context(), requestID)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/compress", s.handleCompress)
	v1.DELETE("/cache", s.handleClearCache)
}

// CompressRequest is the request body for POST /api/v1/compress.
type CompressRequest struct {
	Prompt   string `json:"prompt"`
	Attempts int    `json:"attempts,omitempty"`
}

// CompressResponse is the response body for POST /api/v1/compress.
type CompressResponse struct {
	ID               string `json:"id"`
	Compressed       string `json:"compressed"`
	OriginalTokens   int    `json:"original_tokens"`
	CompressedTokens int    `json:"compressed_tokens"`
	Unchanged        bool   `json:"unchanged"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// StatusResponse is the response body for simple acknowledgements.
type StatusResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		resp.Telemetry = &h
	}
	return c.JSON(http.StatusOK, resp)
}

// handleCompress compresses the prompt in the request body.
func (s *Server) handleCompress(c echo.Context) error {
	var req CompressRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid compress request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt field is required")
	}
	if req.Attempts < 0 || req.Attempts > maxAttempts {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("attempts must be between 0 and %d", maxAttempts))
	}

	ctx := c.Request().Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	res, err := s.compressor.Compress(ctx, req.Prompt, req.Attempts)
	switch {
	case errors.Is(err, compression.ErrInsufficientContext):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "compression timed out")
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	case err != nil:
		s.logger.Error(ctx, "compress failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "compression failed")
	}

	return c.JSON(http.StatusOK, CompressResponse{
		ID:               res.RunID,
		Compressed:       res.Compressed,
		OriginalTokens:   res.OriginalTokens,
		CompressedTokens: res.CompressedTokens,
		Unchanged:        res.Unchanged(),
	})
}

// handleClearCache empties the result cache.
func (s *Server) handleClearCache(c echo.Context) error {
	if s.cache == nil {
		return echo.NewHTTPError(http.StatusNotFound, "cache is disabled")
	}
	ctx := c.Request().Context()
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Error(ctx, "cache clear failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear cache")
	}
	s.logger.Info(ctx, "cache cleared")
	return c.JSON(http.StatusOK, StatusResponse{Status: "cleared"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
