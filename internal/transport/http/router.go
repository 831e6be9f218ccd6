// Package httptransport assembles the HTTP surface: middleware chain, public
// reads, authenticated investor writes, and the gated admin endpoints.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gatewayhandler "zeron/internal/gateway/handler"
	"zeron/internal/identity"
	investmenthandler "zeron/internal/investment/handler"
	"zeron/internal/platform/middleware"
	propertyhandler "zeron/internal/property/handler"
	"zeron/pkg/platform/httputil"
)

// Deps carries the wired handlers and cross-cutting collaborators.
type Deps struct {
	Logger     *slog.Logger
	Identity   identity.Provider
	Properties *propertyhandler.Handler
	Investment *investmenthandler.Handler
	Gateway    *gatewayhandler.Handler
	Health     func() error
}

// NewRouter builds the full route tree.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", handleHealth(d.Health))

	// Public reads.
	r.Group(func(r chi.Router) {
		d.Properties.Register(r)
	})

	// Authenticated surface. Role checks live in the services, not here:
	// the middleware only establishes who is calling.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(d.Identity, d.Logger))
		d.Investment.Register(r)
		d.Gateway.Register(r)
	})

	return r
}

// NewMetricsRouter serves the Prometheus scrape endpoint on its own listener.
func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func handleHealth(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
