package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/therapy-slot-booking/internal/api"
	"github.com/hackgods/therapy-slot-booking/internal/app/bootstrap"
	"github.com/hackgods/therapy-slot-booking/internal/config"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "api-server")
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(rootCtx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	router := api.NewRouter(api.RouterConfig{
		Store:            deps.Store,
		Booker:           deps.Submitter,
		Checker:          deps.Checker,
		Reconciler:       deps.Processor,
		ReconcileTimeout: cfg.ReconcileTimeout,
		Postgres:         deps.Postgres,
		Redis:            deps.Redis,
		MetricsHandler:   promhttp.Handler(),
		Logger:           logger,
		Env:              cfg.Env,
		Version:          version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("api-server stopped")
}
