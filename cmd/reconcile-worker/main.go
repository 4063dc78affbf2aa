package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/therapy-slot-booking/internal/app/bootstrap"
	"github.com/hackgods/therapy-slot-booking/internal/config"
	"github.com/hackgods/therapy-slot-booking/internal/reconcile"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "reconcile-worker")
	logger.Info("reconcile-worker starting up",
		"env", cfg.Env,
		"interval", cfg.WorkerInterval,
		"concurrency", cfg.ReconcileConcurrency,
		"max_attempts", cfg.RetryMaxAttempts,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(rootCtx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	// Run once at startup
	runOnce(rootCtx, deps.Processor, cfg.ReconcileTimeout, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, deps.Processor, cfg.ReconcileTimeout, logger)
		}
	}
}

func runOnce(ctx context.Context, p *reconcile.Processor, timeout time.Duration, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	summary, err := p.ProcessPending(runCtx)
	if err != nil {
		if errors.Is(err, reconcile.ErrAlreadyRunning) {
			logger.Info("previous run still active, skipping")
			return
		}
		logger.Error("reconcile run error", "error", err)
		return
	}
	logger.Info("reconcile run complete",
		"total", summary.Total,
		"success", summary.Success,
		"failed", summary.Failed,
		"duration", time.Since(start),
	)
}
