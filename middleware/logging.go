package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const TraceIDHeader = "X-Trace-ID"
const TraceParentHeader = "traceparent"

// GetTraceID returns the trace id of the request: the active span's id when
// tracing is on, else the W3C traceparent or X-Trace-ID header, else a new one.
func GetTraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	// traceparent format: version-trace_id-parent_id-flags
	if traceParent := c.GetHeader(TraceParentHeader); traceParent != "" {
		parts := strings.Split(traceParent, "-")
		if len(parts) >= 2 && parts[1] != "" {
			return parts[1]
		}
	}

	if traceID := c.GetHeader(TraceIDHeader); traceID != "" {
		return traceID
	}

	return generateTraceID()
}

// generateTraceID returns 32 random hex characters.
func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(time.Now().UTC().Format("20060102150405.000000000"), ".", "")
	}
	return hex.EncodeToString(b)
}

// LoggingMiddleware attaches a trace_id sub-logger to the request context
// and logs one line per request.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		traceID := GetTraceID(c)
		c.Set("trace_id", traceID)

		logger := log.With().Str("trace_id", traceID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Header(TraceIDHeader, traceID)

		c.Next()

		statusCode := c.Writer.Status()

		level := zerolog.InfoLevel
		switch {
		case statusCode >= 500:
			level = zerolog.ErrorLevel
		case statusCode >= 400:
			level = zerolog.WarnLevel
		}

		// Handlers further down the chain may have enriched the request
		// logger (client_id); prefer it.
		reqLogger := zerolog.Ctx(c.Request.Context())
		if reqLogger.GetLevel() == zerolog.Disabled {
			reqLogger = &logger
		}
		event := reqLogger.WithLevel(level)

		event.
			Str("method", method).
			Str("path", path).
			Str("route", c.FullPath()).
			Int("status", statusCode).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Msg("HTTP request")
	}
}
