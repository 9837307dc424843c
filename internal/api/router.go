package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/reservation"
)

type RouterConfig struct {
	Coordinator  *reservation.Coordinator
	Refunds      *reservation.RefundCoordinator
	Availability *availability.Service
	Catalog      catalog.Store
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Get("/catalog", catalogHandler(cfg.Catalog))
		r.Get("/professionals/{professionalID}/slots", slotsHandler(cfg.Availability, cfg.Catalog))
		r.Post("/reservations", beginReservationHandler(cfg.Coordinator))
		r.Post("/appointments", createAppointmentHandler(cfg.Coordinator))
		r.Get("/appointments", listAppointmentsHandler(cfg.Coordinator, cfg.Availability))
	})

	r.Get("/reservations/{id}/status", pollReservationHandler(cfg.Coordinator))
	r.Post("/reservations/{id}/cancel", cancelReservationHandler(cfg.Coordinator))

	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Coordinator))
	r.Post("/appointments/{id}/refund", refundHandler(cfg.Refunds))

	return r
}
