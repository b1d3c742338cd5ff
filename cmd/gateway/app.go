package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/llmgw/internal/auth"
	"github.com/vyrodovalexey/llmgw/internal/config"
	"github.com/vyrodovalexey/llmgw/internal/observability"
	"github.com/vyrodovalexey/llmgw/internal/proxy"
	"github.com/vyrodovalexey/llmgw/internal/secrets"
	"github.com/vyrodovalexey/llmgw/internal/server"
)

const serviceName = "llmgw"

// initTimeout bounds startup work that talks to external systems, such as
// Vault authentication and the initial key fetch.
const initTimeout = 30 * time.Second

// application holds all initialized components of the gateway.
type application struct {
	config        *config.Config
	logger        observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	provider      secrets.Provider
	cache         *auth.Cache
	reloader      *server.Reloader
	server        *server.Server
	keyWatcher    *secrets.Watcher
	metricsServer *http.Server
}

// initApplication wires all gateway components together.
func initApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	metrics := observability.NewMetrics(serviceName)
	metrics.SetBuildInfo(version)

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}

	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}

	cache := auth.NewCache()
	reloader := server.NewReloader(provider, cache,
		server.WithReloaderLogger(logger),
		server.WithReloaderMetrics(metrics),
		server.WithReloaderTracer(tracer),
	)

	// The initial load is best effort. On failure the gateway still comes
	// up with an empty key set and rejects every request until a reload
	// succeeds.
	if loaded, err := reloader.Reload(ctx); err != nil {
		logger.Warn("initial key load failed, starting with empty key set",
			observability.Error(err),
		)
	} else {
		logger.Info("initial key load complete", observability.Int("keys_loaded", loaded))
	}

	guard := auth.NewGuard(cfg.Keys.Header, cache,
		auth.WithGuardLogger(logger),
		auth.WithGuardMetrics(metrics),
	)

	forwarder, err := buildForwarder(cfg, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("initializing forwarder: %w", err)
	}

	srv := server.New(server.Config{
		Address:           cfg.Server.Address,
		Port:              cfg.Server.Port,
		ServiceName:       serviceName,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Duration(),
		IdleTimeout:       cfg.Server.IdleTimeout.Duration(),
	}, guard, cache, reloader, forwarder,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithTracer(tracer),
	)

	app := &application{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		provider: provider,
		cache:    cache,
		reloader: reloader,
		server:   srv,
	}

	if cfg.Keys.Source == config.KeySourceFile && cfg.Keys.File.Watch {
		watcher, err := secrets.NewWatcher(cfg.Keys.File.Path, func() {
			reloadCtx, reloadCancel := context.WithTimeout(context.Background(), initTimeout)
			defer reloadCancel()
			_, _ = reloader.Reload(reloadCtx)
		}, secrets.WithWatcherLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("initializing key file watcher: %w", err)
		}
		app.keyWatcher = watcher
	}

	return app, nil
}

// buildProvider constructs the key provider selected by the configuration.
func buildProvider(ctx context.Context, cfg *config.Config, logger observability.Logger) (secrets.Provider, error) {
	switch cfg.Keys.Source {
	case config.KeySourceVault:
		return secrets.NewVaultProvider(ctx, &secrets.VaultConfig{
			Address:   cfg.Keys.Vault.Address,
			Token:     cfg.Keys.Vault.Token,
			RoleID:    cfg.Keys.Vault.RoleID,
			SecretID:  cfg.Keys.Vault.SecretID,
			Mount:     cfg.Keys.Vault.Mount,
			Path:      cfg.Keys.Vault.Path,
			Namespace: cfg.Keys.Vault.Namespace,
			Timeout:   cfg.Keys.Vault.Timeout.Duration(),
		}, logger)
	case config.KeySourceFile:
		return secrets.NewFileProvider(cfg.Keys.File.Path)
	case config.KeySourceEnv:
		return secrets.NewEnvProvider(cfg.Keys.Env.Var)
	default:
		return nil, fmt.Errorf("unknown key source %q", cfg.Keys.Source)
	}
}

// buildForwarder constructs the streaming proxy, optionally wrapping the
// transport with a circuit breaker.
func buildForwarder(cfg *config.Config, logger observability.Logger, metrics *observability.Metrics) (*proxy.Forwarder, error) {
	var transport http.RoundTripper = proxy.NewTransport(proxy.TransportConfig{
		DialTimeout:  cfg.Upstream.DialTimeout.Duration(),
		MaxIdleConns: cfg.Upstream.MaxIdleConns,
	})

	if cfg.Upstream.CircuitBreaker.Enabled {
		transport = proxy.NewBreakerTransport(transport,
			cfg.Upstream.CircuitBreaker.Threshold,
			cfg.Upstream.CircuitBreaker.Timeout.Duration(),
			proxy.WithBreakerLogger(logger),
		)
	}

	return proxy.NewForwarder(cfg.Upstream.URL,
		proxy.WithTransport(transport),
		proxy.WithStripHeader(cfg.Keys.Header),
		proxy.WithTimeout(cfg.Upstream.Timeout.Duration()),
		proxy.WithForwarderLogger(logger),
		proxy.WithForwarderMetrics(metrics),
	)
}
