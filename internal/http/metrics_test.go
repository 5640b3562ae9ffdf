package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/promptzip/internal/reasoning"
	"github.com/fyrsmithlabs/promptzip/internal/telemetry"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	m := NewHTTPMetrics(tt.Meter(httpInstrumentationName), nil)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "hello")
	})
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/compress", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/test"},
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/compress"},
	} {
		req := httptest.NewRequest(r.method, r.path, nil)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.EqualValues(t, 3, tt.CounterValue(t, "promptzip.http.requests_total"))
	assert.EqualValues(t, 1, tt.CounterValue(t, "promptzip.http.requests_total",
		attribute.String("endpoint", "/api/v1/compress"),
		attribute.String("method", http.MethodPost),
	))

	dur, ok := tt.FindMetric(t, "promptzip.http.request_duration_seconds")
	require.True(t, ok)
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.EqualValues(t, 3, count)

	_, ok = tt.FindMetric(t, "promptzip.http.response_size_bytes")
	assert.True(t, ok)
}

func TestServer_RecordsErrorStatus(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	server := setupTestServer(t, reasoning.NewMockService(), nil,
		WithHTTPMetrics(NewHTTPMetrics(tt.Meter(httpInstrumentationName), nil)),
	)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/compress", CompressRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.EqualValues(t, 1, tt.CounterValue(t, "promptzip.http.requests_total",
		attribute.Int("status", http.StatusBadRequest),
	))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/health", "/health"},
		{"/api/v1/compress", "/api/v1/compress"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input))
	}
}
