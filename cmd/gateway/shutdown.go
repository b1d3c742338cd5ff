package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/llmgw/internal/observability"
)

// runGateway runs the gateway and handles shutdown.
func runGateway(app *application, logger observability.Logger) {
	ctx := context.Background()

	if app.keyWatcher != nil {
		if err := app.keyWatcher.Start(ctx); err != nil {
			logger.Fatal("failed to start key file watcher", observability.Error(err))
		}
	}

	startMetricsServerIfEnabled(app, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start(ctx)
	}()

	waitForShutdown(app, errCh, logger)
}

// waitForShutdown waits for a shutdown signal or a server error and performs
// graceful shutdown.
func waitForShutdown(app *application, errCh <-chan error, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", observability.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if app.keyWatcher != nil {
		if err := app.keyWatcher.Stop(); err != nil {
			logger.Error("failed to stop key file watcher", observability.Error(err))
		}
	}

	if app.metricsServer != nil {
		logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	// In-flight inference streams drain until the shutdown timeout.
	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if err := app.provider.Close(); err != nil {
		logger.Error("failed to close key provider", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("gateway stopped")
}
