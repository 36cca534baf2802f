package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var inCtx string
	r.GET("/rid", func(c *gin.Context) {
		inCtx = c.GetString(requestIDKey)
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name, in string
		keep     bool
	}{
		{"absent", "", false},
		{"plain", "Z-REQ-123", true},
		{"dotted", "web.7f3a_1", true},
		{"spaces", "a b", false},
		{"newline", "abc\ninjected", false},
		{"too long", strings.Repeat("r", 65), false},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/rid", nil)
		if tc.in != "" {
			req.Header.Set(requestIDHeader, tc.in)
		}
		r.ServeHTTP(w, req)

		got := w.Header().Get(requestIDHeader)
		if got != inCtx {
			t.Fatalf("%s: header %q and context %q differ", tc.name, got, inCtx)
		}
		if tc.keep && got != tc.in {
			t.Fatalf("%s: expected %q to be propagated, got %q", tc.name, tc.in, got)
		}
		if !tc.keep {
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("%s: expected a generated uuid, got %q", tc.name, got)
			}
		}
	}
}

func TestRecovery_PanicsToEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{}))
	r.Use(Recovery())
	r.GET("/groups", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	req.Header.Set(requestIDHeader, "rid-panic")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["success"] != false || body["code"] != "internal_error" || body["request_id"] != "rid-panic" {
		t.Fatalf("unexpected body %v", body)
	}
	out := buf.String()
	if !strings.Contains(out, `"request_id":"rid-panic"`) || !strings.Contains(out, `"panic":"kaboom"`) || !strings.Contains(out, `"stack"`) {
		t.Fatalf("expected a scoped panic log with stack, got:\n%s", out)
	}
}

func TestRecovery_PanicAfterWrite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery())
	r.GET("/groups", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups", nil))

	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("no envelope may follow a written body, got %q", w.Body.String())
	}
	if !strings.Contains(buf.String(), "late kaboom") {
		t.Fatalf("expected the panic to be logged, got:\n%s", buf.String())
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("global fallback", func(t *testing.T) {
		buf := captureLogger(t)
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		LoggerFrom(c).Info().Msg("plain")
		if out := buf.String(); !strings.Contains(out, `"message":"plain"`) || strings.Contains(out, "request_id") || strings.Contains(out, "trace_id") {
			t.Fatalf("unexpected fallback log %s", out)
		}
	})

	t.Run("scoped with trace id", func(t *testing.T) {
		var buf bytes.Buffer
		scoped := zerolog.New(&buf).With().Str("request_id", "rid-7").Logger()

		tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil).
			WithContext(trace.ContextWithSpanContext(context.Background(), sc))
		c.Set(ctxKeyLogger, &scoped)

		LoggerFrom(c).Info().Msg("traced")
		want := `"request_id":"rid-7","trace_id":"4bf92f3577b34da6a3ce929d0e0e4736","message":"traced"`
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %s, got %s", want, buf.String())
		}
	})
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
