package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"none", LevelNone},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestRequestLoggerAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, slog.LevelDebug, "prod")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(RequestLogger(base))
	router.Get("/pass", func(w http.ResponseWriter, r *http.Request) {
		ContextRequestLogger(r.Context()).Debug("inside handler")
		ContextWithLogAttrs(r.Context(), slog.String("serial_number", "SJ-2023-2024-1"))
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pass", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, final map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &final))

	assert.Equal(t, "inside handler", inner["msg"])
	assert.NotEmpty(t, inner["request_id"])
	assert.Equal(t, "/pass", inner["path"])

	assert.Equal(t, "Request completed", final["msg"])
	assert.Equal(t, float64(http.StatusTeapot), final["status"])
	assert.Equal(t, "SJ-2023-2024-1", final["serial_number"])
	assert.Equal(t, "WARN", final["level"])
}

func TestContextRequestLoggerFallsBackToDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Same(t, slog.Default(), ContextRequestLogger(req.Context()))

	// outside a RequestLogger scope this must not panic
	ContextWithLogAttrs(req.Context(), slog.String("k", "v"))
}
