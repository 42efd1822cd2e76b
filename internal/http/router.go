// Package httpapi assembles the service's HTTP router.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"reconciler/internal/platform/metrics"
	"reconciler/internal/platform/middleware"
	"reconciler/pkg/platform/httputil"
	"reconciler/pkg/platform/middleware/metadata"
	"reconciler/pkg/platform/middleware/requestid"
	"reconciler/pkg/platform/middleware/requesttime"
)

// healthTimeout bounds each dependency ping in /health.
const healthTimeout = 2 * time.Second

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// Check pings one dependency for /health.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// NewRouter wires the middleware chain, the module routes, /health and
// /metrics.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, checks []Check, modules ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if m != nil {
		r.Use(m.Latency)
	}
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.Recovery(logger))

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/health", healthHandler(logger, checks))
	for _, mod := range modules {
		mod.Register(r)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(logger *slog.Logger, checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := c.Ping(ctx)
			cancel()
			if err != nil {
				logger.WarnContext(r.Context(), "health check failed", "dependency", c.Name, "error", err)
				resp.Checks[c.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
