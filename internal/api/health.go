package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// dependency is one backend the readiness probe pings. A nil ping means the
// process was started without it (memory storage, local locks).
type dependency struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	deps    []dependency
	env     string
	version string
}

func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	h := &HealthHandler{env: env, version: version}

	// Postgres holds every appointment; without it nothing works.
	pg := dependency{name: "postgres", critical: true}
	if pgPool != nil {
		pg.ping = pgPool.Ping
	}
	// Redis only serializes hold creation; reads keep working without it.
	lock := dependency{name: "redis"}
	if rdb != nil {
		lock.ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	h.deps = []dependency{pg, lock}
	return h
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "ok", Version: h.version, Env: h.env})
}

// Readiness answers 503 only when a critical dependency is down; a failed
// non-critical one reports "degraded".
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadinessResponse{
		Status:       "ok",
		Version:      h.version,
		Env:          h.env,
		Dependencies: make(map[string]string, len(h.deps)),
	}

	for _, d := range h.deps {
		if d.ping == nil {
			resp.Dependencies[d.name] = "disabled"
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, time.Second)
		err := d.ping(pingCtx)
		pingCancel()

		if err == nil {
			resp.Dependencies[d.name] = "ok"
			continue
		}
		resp.Dependencies[d.name] = "down"
		switch {
		case d.critical:
			resp.Status = "error"
		case resp.Status == "ok":
			resp.Status = "degraded"
		}
	}

	code := http.StatusOK
	if resp.Status == "error" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
