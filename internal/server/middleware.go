package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/llmgw/internal/observability"
)

// RequestIDHeader is the header name for request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID returns a middleware that assigns a request ID to each request.
// An incoming X-Request-ID is preserved so IDs propagate across hops.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(RequestIDHeader, requestID)

		c.Next()
	}
}

// Logging returns a middleware that logs each HTTP request on completion.
func Logging(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		requestID := observability.RequestIDFromContext(c.Request.Context())

		logger.Info("http request",
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.String("query", query),
			observability.Int("status", c.Writer.Status()),
			observability.Int("size", c.Writer.Size()),
			observability.Duration("duration", duration),
			observability.String("remote_addr", c.Request.RemoteAddr),
			observability.String("user_agent", c.Request.UserAgent()),
			observability.String("request_id", requestID),
		)
	}
}

// Recovery returns a middleware that recovers from panics and responds 500.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := observability.RequestIDFromContext(c.Request.Context())
				logger.Error("panic recovered",
					observability.Any("panic", rec),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("request_id", requestID),
				)
				c.AbortWithStatusJSON(500, gin.H{
					"error":   "internal server error",
					"message": "an unexpected error occurred",
				})
			}
		}()

		c.Next()
	}
}

// Tracing returns a middleware that starts a server span per request,
// continuing any trace context propagated by the caller. The span context
// rides the request so the upstream call is attributed to it.
func Tracing(tracer *observability.Tracer) gin.HandlerFunc {
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, path),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.target", path),
			attribute.String("http.host", c.Request.Host),
			attribute.String("http.user_agent", c.Request.UserAgent()),
			attribute.String("net.peer.ip", c.ClientIP()),
		)
		if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		// Carry the span downstream: the forwarder relays headers, so the
		// upstream call joins this trace.
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Request.Header))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int("http.response_content_length", c.Writer.Size()),
		)
		if status >= 500 {
			span.SetAttributes(attribute.Bool("error", true))
		}
	}
}

// MetricsCollector returns a middleware that records request metrics.
func MetricsCollector(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.RequestStarted()

		c.Next()

		metrics.RequestFinished()
		metrics.RecordRequest(c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
