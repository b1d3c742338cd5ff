package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/llmgw/internal/auth"
	"github.com/vyrodovalexey/llmgw/internal/observability"
	"github.com/vyrodovalexey/llmgw/internal/secrets"
)

// Reloader fetches API keys from the secret backend and installs them into
// the credential cache. A failed fetch leaves the cache untouched.
type Reloader struct {
	provider secrets.Provider
	cache    *auth.Cache
	logger   observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	// serializes reloads so a slow fetch cannot overwrite a newer key set
	mu sync.Mutex
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithReloaderLogger sets the logger for the reloader.
func WithReloaderLogger(logger observability.Logger) ReloaderOption {
	return func(r *Reloader) {
		r.logger = logger
	}
}

// WithReloaderMetrics sets the metrics collector for the reloader.
func WithReloaderMetrics(metrics *observability.Metrics) ReloaderOption {
	return func(r *Reloader) {
		r.metrics = metrics
	}
}

// WithReloaderTracer sets the tracer for the reloader, so reloads driven
// by the file watcher are traced like admin-triggered ones.
func WithReloaderTracer(tracer *observability.Tracer) ReloaderOption {
	return func(r *Reloader) {
		r.tracer = tracer
	}
}

// NewReloader creates a reloader backed by the given provider and cache.
func NewReloader(provider secrets.Provider, cache *auth.Cache, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		provider: provider,
		cache:    cache,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Reload fetches the key set from the backend and atomically replaces the
// cached set. It returns the number of keys now loaded. On error the
// previously cached set remains in effect.
func (r *Reloader) Reload(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tracer != nil && r.tracer.Enabled() {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "keys.reload",
			trace.WithAttributes(attribute.String("keys.source", string(r.provider.Type()))),
		)
		defer span.End()
	}

	start := time.Now()

	keys, err := r.provider.FetchKeys(ctx)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordKeyReload(false, time.Since(start))
		}
		r.logger.Error("key reload failed, keeping current key set",
			observability.String("source", string(r.provider.Type())),
			observability.Error(err),
		)
		return r.cache.Len(), fmt.Errorf("fetching keys from %s: %w", r.provider.Type(), err)
	}

	r.cache.Replace(auth.NewKeySet(keys))
	loaded := r.cache.Len()

	if r.metrics != nil {
		r.metrics.RecordKeyReload(true, time.Since(start))
		r.metrics.SetKeysLoaded(loaded)
	}

	if loaded == 0 {
		r.logger.Warn("key reload returned no keys, all requests will be rejected",
			observability.String("source", string(r.provider.Type())),
		)
	} else {
		r.logger.Info("API keys reloaded",
			observability.String("source", string(r.provider.Type())),
			observability.Int("keys_loaded", loaded),
			observability.Duration("duration", time.Since(start)),
		)
	}

	return loaded, nil
}
