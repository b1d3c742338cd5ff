package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/llmgw/internal/observability"
	"github.com/vyrodovalexey/llmgw/internal/secrets"
)

// createMetricsServer creates the metrics HTTP server. Besides /metrics it
// exposes liveness and a backend health probe for the key provider.
func createMetricsServer(port int, path string, metrics *observability.Metrics, provider secrets.Provider, logger observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := provider.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","component":"key_backend"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting metrics server",
		observability.String("address", addr),
		observability.String("metrics_path", path),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// runMetricsServer runs the metrics HTTP server.
func runMetricsServer(server *http.Server, logger observability.Logger) {
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// startMetricsServerIfEnabled starts the metrics server if enabled.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) {
	if !app.config.Metrics.Enabled {
		return
	}

	metricsPath := app.config.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	metricsPort := app.config.Metrics.Port
	if metricsPort == 0 {
		metricsPort = 9090
	}

	app.metricsServer = createMetricsServer(metricsPort, metricsPath, app.metrics, app.provider, logger)
	go runMetricsServer(app.metricsServer, logger)
}
