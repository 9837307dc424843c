package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/app"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/config"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/expiry"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, "expiry-worker")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// An in-memory store lives in the api-server process, which sweeps it itself.
	if cfg.StorageDriver != config.StorageDriverPostgres {
		logger.Fatal("expiry-worker requires STORAGE_DRIVER=postgres; api-server sweeps the memory store",
			zap.String("storage", cfg.StorageDriver))
	}

	logger.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("batch_size", cfg.SweepBatchSize),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(rootCtx, "expiry-worker", cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	if err := expiry.NewScheduler(a.Sweeper(), cfg.WorkerInterval, logger).Run(rootCtx); err != nil {
		logger.Fatal("expiry worker failed", zap.Error(err))
	}
	logger.Info("expiry-worker stopped")
}
