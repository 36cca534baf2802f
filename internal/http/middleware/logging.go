// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the correlation id, panic recovery and the accessor for the
// request-scoped logger. Install RequestID first, then RedactingLogger, then
// Recovery, so a panic is logged with the id the client sees.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	ctxKeyLogger    = "logger"
	// maxQueryLogLength caps the logged query string in bytes.
	maxQueryLogLength = 2048
)

// inboundRequestID is what RequestID accepts from clients; anything else is
// replaced so ids stay safe to log and to echo back.
var inboundRequestID = regexp.MustCompile(`^[A-Za-z0-9._\-]{1,64}$`)

// RequestID reuses a well-formed X-Request-ID from the client or generates a
// uuid, stores it in the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !inboundRequestID.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Recovery turns a panic into a 500 "internal_error" envelope, or a bare 500
// when the handler already wrote, and logs it with the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			if rid := c.GetString(requestIDKey); rid != "" {
				c.Header(requestIDHeader, rid)
			}
			abort(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger RedactingLogger attached to the request, or
// the global logger. When the request is traced the trace id is added, so
// handler logs can be joined with spans.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	lg := log.Logger
	if v, ok := c.Get(ctxKeyLogger); ok {
		if scoped, ok := v.(*zerolog.Logger); ok {
			lg = *scoped
		}
	}
	if c.Request != nil {
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			lg = lg.With().Str("trace_id", sc.TraceID().String()).Logger()
		}
	}
	return &lg
}

// truncate cuts s to max bytes and marks the cut. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
