package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/api"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/app"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/config"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/expiry"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, "api-server")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("storage", cfg.StorageDriver),
		zap.String("locks", cfg.LockDriver),
		zap.String("payment", cfg.PaymentDriver),
		zap.String("notifier", cfg.NotifierDriver),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(rootCtx, "api-server", cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	logger.Info("reservation settings",
		zap.Duration("hold_duration", cfg.HoldDuration),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int64("prepay_percent", cfg.PrepayPercent),
		zap.Duration("lock_ttl", cfg.LockTTL),
		zap.String("timezone", cfg.Timezone),
	)

	router := api.NewRouter(api.RouterConfig{
		Coordinator:  a.Coordinator(),
		Refunds:      a.Refunds(),
		Availability: a.Availability,
		Catalog:      a.Catalog,
		PgPool:       a.Pool,
		Redis:        a.Redis,
		Gatherer:     a.Registry,
		Logger:       logger.Named("http"),
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)

	// No expiry-worker can reach an in-memory store, so this process sweeps it.
	if cfg.StorageDriver == config.StorageDriverMemory {
		g.Go(func() error {
			logger.Info("sweeping expired holds in process", zap.Duration("interval", cfg.WorkerInterval))
			return expiry.NewScheduler(a.Sweeper(), cfg.WorkerInterval, logger.Named("expiry")).Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api-server stopped with error", zap.Error(err))
		return
	}
	logger.Info("api-server stopped")
}
