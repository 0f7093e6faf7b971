package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// Skip lists paths that never get a span, such as /health and /metrics.
	Skip []string
}

// Tracing wraps otelgin and tags the server span with the request id and,
// after the handler ran, the configurator session and admin flag. 4xx and 5xx
// responses mark the span as failed.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skipped := make(map[string]struct{}, len(cfg.Skip))
	for _, p := range cfg.Skip {
		skipped[p] = struct{}{}
	}
	return otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
		_, skip := skipped[r.URL.Path]
		return !skip
	}))
}

// SpanEnricher adds request attributes to the span created by Tracing. It
// must run inside Tracing so the span is already in the request context.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}
		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}

		c.Next()

		if sid := c.GetString(SessionIDKey); sid != "" {
			span.SetAttributes(attribute.String("session_id", sid))
		}
		if IsAdmin(c) {
			span.SetAttributes(attribute.Bool("admin", true))
		}
		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
