// Package server wires the HTTP surface of the gateway: health and admin
// endpoints plus the authenticated catch-all proxy route.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/llmgw/internal/auth"
	"github.com/vyrodovalexey/llmgw/internal/observability"
	"github.com/vyrodovalexey/llmgw/internal/proxy"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Config holds configuration for the HTTP server.
type Config struct {
	Address           string
	Port              int
	ServiceName       string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// Server is the gateway HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	guard      *auth.Guard
	cache      *auth.Cache
	reloader   *Reloader
	forwarder  *proxy.Forwarder
	logger     observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	cfg        Config

	mu      sync.RWMutex
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithTracer sets the tracer. The tracing middleware is only installed
// when the tracer is enabled.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// New creates the gateway server and registers all routes.
func New(cfg Config, guard *auth.Guard, cache *auth.Cache, reloader *Reloader, forwarder *proxy.Forwarder, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:    gin.New(),
		guard:     guard,
		cache:     cache,
		reloader:  reloader,
		forwarder: forwarder,
		logger:    observability.NopLogger(),
		cfg:       cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(Recovery(s.logger))
	s.engine.Use(RequestID())
	s.engine.Use(Logging(s.logger))
	if s.metrics != nil {
		s.engine.Use(MetricsCollector(s.metrics))
	}
	if s.tracer != nil && s.tracer.Enabled() {
		s.engine.Use(Tracing(s.tracer))
	}

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	admin := s.engine.Group("/admin")
	admin.Use(s.guard.Middleware())
	admin.GET("/reload-keys", s.handleReloadKeys)
	admin.POST("/reload-keys", s.handleReloadKeys)

	// Everything else is an inference request: authenticate, then stream
	// through to the upstream.
	s.engine.NoRoute(s.guard.Middleware(), s.handleProxy)
}

// Engine returns the underlying gin engine, primarily for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     s.cfg.ServiceName,
		"keys_loaded": s.cache.Len(),
	})
}

func (s *Server) handleReloadKeys(c *gin.Context) {
	loaded, err := s.reloader.Reload(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "failed to reload API keys",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"keys_loaded": loaded,
		"message":     fmt.Sprintf("reloaded %d API keys", loaded),
	})
}

func (s *Server) handleProxy(c *gin.Context) {
	s.forwarder.ServeHTTP(c.Writer, c.Request)
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)

	// No WriteTimeout: inference responses stream for minutes and the
	// per-request ceiling in the forwarder already bounds them.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", addr),
		observability.String("service", s.cfg.ServiceName),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop stops the HTTP server gracefully, letting in-flight streams drain
// until the context expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
