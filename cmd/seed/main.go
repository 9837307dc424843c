package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/db"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/logging"
)

func main() {
	professionals := flag.Int("professionals", 4, "number of professionals to generate")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "gofakeit seed")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("APP_ENV"), "seed")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{AppName: "seed", MaxConns: 2})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	shop := catalog.NewDemoShop(*seed, *professionals)
	if err := seedShop(ctx, pool, shop); err != nil {
		logger.Fatal("seed shop", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.Stringer("tenant_id", shop.TenantID),
		zap.Int("professionals", len(shop.Professionals)),
		zap.Int("services", len(shop.Services)),
	)
	fmt.Println(shop.TenantID)
}

func seedShop(ctx context.Context, pool *pgxpool.Pool, shop catalog.DemoShop) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range shop.Professionals {
		_, custom := shop.Schedules[p.ID]
		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, tenant_id, name, phone, custom_hours_enabled)
			VALUES ($1, $2, $3, $4, $5)
		`, p.ID, p.TenantID, p.Name, p.Phone, custom)
		if err != nil {
			return fmt.Errorf("insert professional: %w", err)
		}
	}

	for _, s := range shop.Services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, tenant_id, name, duration_minutes, price_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, s.TenantID, s.Name, s.DurationMinutes, s.PriceCents)
		if err != nil {
			return fmt.Errorf("insert service: %w", err)
		}
	}

	for wd, day := range shop.Hours.Days {
		if err := insertHours(ctx, tx, "business_hours", "tenant_id", shop.TenantID, wd, day); err != nil {
			return fmt.Errorf("insert business hours: %w", err)
		}
	}

	for id, sched := range shop.Schedules {
		for wd, day := range sched.Days {
			if err := insertHours(ctx, tx, "professional_hours", "professional_id", id, wd, day); err != nil {
				return fmt.Errorf("insert professional hours: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

func insertHours(ctx context.Context, tx pgx.Tx, table, owner string, ownerID any, wd time.Weekday, day availability.DayHours) error {
	// morning and afternoon shifts, nil when the day has fewer intervals
	shifts := make([]*string, 4)
	for i, iv := range day.Intervals {
		if i > 1 {
			break
		}
		start, end := iv.Start.String(), iv.End.String()
		shifts[i*2], shifts[i*2+1] = &start, &end
	}

	_, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, weekday, is_open, morning_start, morning_end, afternoon_start, afternoon_end)
		VALUES ($1, $2, $3, $4::text::time, $5::text::time, $6::text::time, $7::text::time)
	`, table, owner), ownerID, int16(wd), day.Open, shifts[0], shifts[1], shifts[2], shifts[3])
	return err
}
