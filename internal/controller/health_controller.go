package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// healthCheck is one named readiness dependency.
type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

type HealthController struct {
	checks []healthCheck
}

func NewHealthController(pool *pgxpool.Pool, rdb *redis.Client) *HealthController {
	return &HealthController{checks: []healthCheck{
		{name: "database", check: pool.Ping},
		{name: "redis", check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness fails on the first dependency that does not answer within 2s.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": c.name + " unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
