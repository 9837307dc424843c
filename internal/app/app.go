// Package app builds the collaborators shared by the binaries from config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/config"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/db"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/events"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/expiry"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/metrics"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/payment"
	redisclient "github.com/balbiss/remix-of-cut-style-hub-sub000/internal/redis"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/reservation"
)

type App struct {
	Name     string
	Config   config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Pool is nil with STORAGE_DRIVER=memory, Redis with LOCK_DRIVER=local.
	Pool  *pgxpool.Pool
	Redis *redis.Client

	Repo         appointment.Repository
	Catalog      catalog.Store
	Availability *availability.Service
	Locker       redisclient.Locker
	Gateway      payment.Gateway
	Dispatcher   *notify.Dispatcher
	Publisher    events.Publisher
	Journal      *events.Journal

	// Demo is the generated shop served by memory storage.
	Demo *catalog.DemoShop
}

// Build connects to the configured backends on behalf of the named binary.
// Close releases them.
func Build(ctx context.Context, name string, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Name:     name,
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if err := a.buildStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildLocker(ctx); err != nil {
		a.Close()
		return nil, err
	}

	switch cfg.PaymentDriver {
	case config.PaymentDriverSandbox:
		logger.Warn("using sandbox payment gateway", zap.Duration("approve_after", cfg.SandboxApproveAfter))
		a.Gateway = payment.NewSandbox(cfg.SandboxApproveAfter)
	default:
		a.Gateway = payment.NewPixClient(cfg.PaymentAPIURL, cfg.PaymentAccessToken)
	}

	var notifier notify.Notifier
	switch cfg.NotifierDriver {
	case config.NotifierDriverLog:
		notifier = notify.NewLogNotifier(logger.Named("notifier"))
	default:
		notifier = notify.NewWhatsAppClient(cfg.NotifierAPIURL, cfg.NotifierAPIKey, cfg.NotifierInstance, cfg.NotifierRatePerSec)
	}
	a.Dispatcher = notify.NewDispatcher(notifier, logger.Named("notify"), a.Metrics)

	a.Publisher = events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	a.Journal = events.NewJournal(a.Repo, a.Publisher, logger.Named("events"))

	a.Availability = availability.NewService(a.Catalog, a.Repo, cfg.SlotGranularity, cfg.Location())
	return a, nil
}

func (a *App) buildStorage(ctx context.Context) error {
	if a.Config.StorageDriver == config.StorageDriverMemory {
		store := catalog.NewMemoryStore()
		shop := catalog.NewDemoShop(uint64(time.Now().UnixNano()), 3)
		shop.Load(store)

		a.Demo = &shop
		a.Catalog = store
		a.Repo = appointment.NewMemoryRepository()
		a.Logger.Warn("using in-memory storage, data is lost on exit",
			zap.Stringer("demo_tenant_id", shop.TenantID))
		return nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, a.Config.PostgresDSN, db.PoolOptions{AppName: a.Name})
	if err != nil {
		return fmt.Errorf("postgres connection error: %w", err)
	}
	a.Pool = pool
	a.Logger.Info("connected to Postgres")

	if err := db.Migrate(pgCtx, pool); err != nil {
		return err
	}

	a.Repo = appointment.NewPgRepository(pool)
	a.Catalog = catalog.NewPgStore(pool)
	return nil
}

func (a *App) buildLocker(ctx context.Context) error {
	if a.Config.LockDriver == config.LockDriverLocal {
		a.Logger.Warn("using in-process slot locks, run a single api-server instance")
		a.Locker = redisclient.NewLocalSlotLocker(a.Config.LockTTL)
		return nil
	}

	rdb, err := redisclient.Connect(ctx, redisclient.Options{
		Addr:       a.Config.RedisAddr,
		Username:   a.Config.RedisUsername,
		Password:   a.Config.RedisPassword,
		ClientName: a.Name,
	})
	if err != nil {
		return fmt.Errorf("redis connection error: %w", err)
	}
	a.Redis = rdb
	a.Locker = redisclient.NewRedisSlotLocker(rdb, a.Config.LockTTL)
	a.Logger.Info("connected to Redis")
	return nil
}

func (a *App) dependencies() reservation.Dependencies {
	return reservation.Dependencies{
		Repo:         a.Repo,
		Catalog:      a.Catalog,
		Availability: a.Availability,
		Locker:       a.Locker,
		Gateway:      a.Gateway,
		Dispatcher:   a.Dispatcher,
		Journal:      a.Journal,
		Metrics:      a.Metrics,
		Logger:       a.Logger.Named("reservation"),
	}
}

func (a *App) Coordinator() *reservation.Coordinator {
	return reservation.NewCoordinator(a.dependencies(), reservation.OptionsFromConfig(a.Config))
}

func (a *App) Refunds() *reservation.RefundCoordinator {
	return reservation.NewRefundCoordinator(a.dependencies(), reservation.OptionsFromConfig(a.Config))
}

func (a *App) Sweeper() *expiry.Sweeper {
	return expiry.NewSweeper(a.Repo, a.Catalog, a.Dispatcher, a.Journal, a.Metrics, a.Logger.Named("expiry"), expiry.Options{
		BatchSize: a.Config.SweepBatchSize,
		Location:  a.Config.Location(),
	})
}

func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("error closing event publisher", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("error closing redis", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
