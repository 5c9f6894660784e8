// Package httptransport assembles the service's HTTP surface: the domain
// handlers, health and metrics endpoints, and the shared middleware
// stack.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civicledger/internal/ledger"
	"civicledger/internal/platform/middleware"
	"civicledger/internal/transport/http/shared"
)

// Registrar is implemented by the domain handlers.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports chain connectivity for the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) *ledger.Health
}

// Ping checks one named dependency; used by the health endpoint.
type Ping func(ctx context.Context) error

// NewRouter wires all endpoints. Handlers stay thin; cross-cutting
// concerns live in the middleware stack here.
func NewRouter(logger *slog.Logger, health HealthChecker, pings map[string]Ping, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", handleHealth(health, pings))
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

// handleHealth reports degraded state with a 503 but never errors: the
// body always carries the full connectivity snapshot so operators can
// tell an unreachable node from undeployed contracts or a lost database.
func handleHealth(health HealthChecker, pings map[string]Ping) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := health.HealthCheck(r.Context())
		status := http.StatusOK
		if !snapshot.NodeConnected || !snapshot.ContractsDeployed {
			status = http.StatusServiceUnavailable
		}

		components := make(map[string]string, len(pings))
		for name, ping := range pings {
			if err := ping(r.Context()); err != nil {
				components[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}

		body := map[string]any{"ledger": snapshot}
		if len(components) > 0 {
			body["components"] = components
		}
		shared.WriteJSON(w, status, body)
	}
}
