package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/llmgw/internal/observability"
)

// Common errors for API key validation.
var (
	// ErrMissingAPIKey indicates the request carried no API key header.
	ErrMissingAPIKey = errors.New("auth: missing API key")

	// ErrInvalidAPIKey indicates the presented key is not in the current
	// key set.
	ErrInvalidAPIKey = errors.New("auth: invalid API key")
)

// keyContextKey is the gin context key the validated API key is stored
// under, for audit logging by downstream handlers.
const keyContextKey = "llmgw.apikey"

// auditPrefixLen is how many characters of a rejected key are logged.
const auditPrefixLen = 10

// Guard authenticates requests against the key cache. Both failure modes
// produce the same unauthorized response so callers cannot distinguish a
// missing key from an unknown one; logs and metrics keep them separate.
type Guard struct {
	header  string
	cache   *Cache
	logger  observability.Logger
	metrics *observability.Metrics
}

// GuardOption is a functional option for configuring the guard.
type GuardOption func(*Guard)

// WithGuardLogger sets the logger for the guard.
func WithGuardLogger(logger observability.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithGuardMetrics sets the metrics recorder for the guard.
func WithGuardMetrics(metrics *observability.Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = metrics
	}
}

// NewGuard creates a guard that validates the given header against cache.
// An empty header name defaults to X-API-Key.
func NewGuard(header string, cache *Cache, opts ...GuardOption) *Guard {
	if header == "" {
		header = "X-API-Key"
	}

	g := &Guard{
		header: header,
		cache:  cache,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Header returns the header name the guard inspects.
func (g *Guard) Header() string {
	return g.header
}

// Authenticate extracts the API key from the request headers and checks
// it against the current key set. The returned key is for audit logging
// only and must never be forwarded upstream. An empty key set rejects
// every request.
func (g *Guard) Authenticate(r *http.Request) (string, error) {
	key := r.Header.Get(g.header)
	if key == "" {
		return "", ErrMissingAPIKey
	}

	if !g.cache.Get().Contains(key) {
		return "", ErrInvalidAPIKey
	}

	return key, nil
}

// Middleware returns a gin middleware that rejects unauthenticated
// requests with 401 and otherwise stores the validated key in the
// context.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := g.Authenticate(c.Request)
		if err != nil {
			g.reject(c, err)
			return
		}

		c.Set(keyContextKey, key)
		c.Next()
	}
}

// reject logs the failure by kind and writes the uniform 401 response.
func (g *Guard) reject(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMissingAPIKey):
		g.logger.Warn("request missing API key header",
			observability.String("header", g.header),
			observability.String("path", c.Request.URL.Path),
		)
		if g.metrics != nil {
			g.metrics.RecordAuthFailure("missing")
		}
	case errors.Is(err, ErrInvalidAPIKey):
		g.logger.Warn("invalid API key attempted",
			observability.String("key_prefix", keyPrefix(c.GetHeader(g.header))),
			observability.String("path", c.Request.URL.Path),
		)
		if g.metrics != nil {
			g.metrics.RecordAuthFailure("invalid")
		}
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": "invalid or missing API key",
	})
}

// KeyFromContext returns the validated API key stored by the middleware.
func KeyFromContext(c *gin.Context) string {
	if key, ok := c.Get(keyContextKey); ok {
		if s, ok := key.(string); ok {
			return s
		}
	}
	return ""
}

// keyPrefix truncates a key for audit logs so full credentials never
// land in log storage.
func keyPrefix(key string) string {
	if len(key) <= auditPrefixLen {
		return key
	}
	return key[:auditPrefixLen] + "..."
}
