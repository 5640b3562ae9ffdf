package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/promptzip/internal/compression"
	"github.com/fyrsmithlabs/promptzip/internal/logging"
	"github.com/fyrsmithlabs/promptzip/internal/reasoning"
	"github.com/fyrsmithlabs/promptzip/internal/telemetry"
	"github.com/fyrsmithlabs/promptzip/internal/tokens"
)

var words = tokens.MeasurerFunc(func(s string) int {
	return len(strings.Fields(s))
})

func longPrompt() string {
	return strings.TrimSpace(strings.Repeat("please answer politely ", 60))
}

type fakeCache struct {
	cleared int
	err     error
}

func (f *fakeCache) Clear(context.Context) error {
	f.cleared++
	return f.err
}

func setupTestServer(t *testing.T, svc *reasoning.MockService, cfg *Config, opts ...Option) *Server {
	t.Helper()
	c, err := compression.New(svc, nil, words)
	require.NoError(t, err)

	server, err := NewServer(c, logging.NewNop(), cfg, opts...)
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	msg, _ := resp["message"].(string)
	return msg
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server := setupTestServer(t, reasoning.NewMockService(), nil)
		assert.Equal(t, "127.0.0.1", server.config.Host)
		assert.Equal(t, 8088, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		c, err := compression.New(reasoning.NewMockService(), nil, words)
		require.NoError(t, err)

		_, err = NewServer(c, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when compressor is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "compressor cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("without telemetry", func(t *testing.T) {
		server := setupTestServer(t, reasoning.NewMockService(), nil)

		rec := doJSON(t, server, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Telemetry)
	})

	t.Run("with telemetry", func(t *testing.T) {
		tt := telemetry.NewTestTelemetry()
		server := setupTestServer(t, reasoning.NewMockService(), nil, WithTelemetry(tt.Telemetry))

		rec := doJSON(t, server, http.MethodGet, "/health", nil)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Telemetry)
		assert.True(t, resp.Telemetry.Healthy)
	})
}

func TestHandleCompress(t *testing.T) {
	t.Run("compresses prompt", func(t *testing.T) {
		svc := reasoning.NewMockService()
		svc.ChunkFunc = func(context.Context, string, string) ([]reasoning.Chunk, error) {
			return []reasoning.Chunk{reasoning.Literal("be polite")}, nil
		}
		server := setupTestServer(t, svc, nil)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/compress", CompressRequest{Prompt: longPrompt()})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CompressResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.False(t, resp.Unchanged)
		assert.Contains(t, resp.Compressed, "be polite")
		assert.Equal(t, 180, resp.OriginalTokens)
		assert.Less(t, resp.CompressedTokens, resp.OriginalTokens)
	})

	t.Run("returns prompt unchanged when compression does not help", func(t *testing.T) {
		server := setupTestServer(t, reasoning.NewMockService(), nil)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/compress", CompressRequest{Prompt: "Hello"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CompressResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Unchanged)
		assert.Equal(t, "Hello", resp.Compressed)
		assert.Equal(t, resp.OriginalTokens, resp.CompressedTokens)
	})

	t.Run("passes attempts through", func(t *testing.T) {
		svc := reasoning.NewMockService()
		svc.JudgeEquivalenceFunc = func(context.Context, string, string, string) (reasoning.Comparison, error) {
			return reasoning.Comparison{Discrepancies: []string{"x"}}, nil
		}
		server := setupTestServer(t, svc, nil)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/compress", CompressRequest{Prompt: longPrompt(), Attempts: 2})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, svc.Calls("Repair"))
	})

	t.Run("propagates request id", func(t *testing.T) {
		svc := reasoning.NewMockService()
		var requestID string
		svc.IdentifyFormatFunc = func(ctx context.Context, _ string) (string, error) {
			requestID = logging.RequestIDFromContext(ctx)
			return "", nil
		}
		server := setupTestServer(t, svc, nil)

		body, err := json.Marshal(CompressRequest{Prompt: "Hello"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/compress", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderXRequestID, "req-123")
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "req-123", requestID)
		assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("insufficient context is unprocessable", func(t *testing.T) {
		svc := reasoning.NewMockService()
		svc.IdentifyFormatFunc = func(context.Context, string) (string, error) {
			return "", &reasoning.ContextLengthError{Limit: 8000, Err: errors.New("too long")}
		}
		server := setupTestServer(t, svc, nil)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/compress", CompressRequest{Prompt: longPrompt()})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "not enough context window")
	})

	t.Run("times out", func(t *testing.T) {
		svc := reasoning.NewMockService()
		svc.IdentifyFormatFunc = func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}
		server := setupTestServer(t, svc, &Config{RequestTimeout: 10 * time.Millisecond})

		rec := doJSON(t, server, http.MethodPost, "/api/v1/compress", CompressRequest{Prompt: "Hello"})
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		server := setupTestServer(t, reasoning.NewMockService(), nil)

		tests := []struct {
			name string
			body any
			msg  string
		}{
			{"empty prompt", CompressRequest{}, "prompt field is required"},
			{"negative attempts", CompressRequest{Prompt: "x", Attempts: -1}, "attempts must be between"},
			{"too many attempts", CompressRequest{Prompt: "x", Attempts: 11}, "attempts must be between"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := doJSON(t, server, http.MethodPost, "/api/v1/compress", tt.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Contains(t, errorMessage(t, rec), tt.msg)
			})
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		server := setupTestServer(t, reasoning.NewMockService(), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/compress", strings.NewReader("invalid json"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		server := setupTestServer(t, reasoning.NewMockService(), &Config{MaxBodyBytes: 64})

		rec := doJSON(t, server, http.MethodPost, "/api/v1/compress", CompressRequest{Prompt: longPrompt()})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestHandleClearCache(t *testing.T) {
	t.Run("clears cache", func(t *testing.T) {
		fc := &fakeCache{}
		server := setupTestServer(t, reasoning.NewMockService(), nil, WithCache(fc))

		rec := doJSON(t, server, http.MethodDelete, "/api/v1/cache", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, fc.cleared)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "cleared", resp.Status)
	})

	t.Run("cache disabled", func(t *testing.T) {
		server := setupTestServer(t, reasoning.NewMockService(), nil)

		rec := doJSON(t, server, http.MethodDelete, "/api/v1/cache", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("clear fails", func(t *testing.T) {
		server := setupTestServer(t, reasoning.NewMockService(), nil, WithCache(&fakeCache{err: errors.New("redis down")}))

		rec := doJSON(t, server, http.MethodDelete, "/api/v1/cache", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "promptzip_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	server := setupTestServer(t, reasoning.NewMockService(), nil, WithGatherer(reg))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "promptzip_test_total 1")
}
