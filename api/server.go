/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request, echoed into logs
  2. RealIP:        Client address behind proxies
  3. Trace:         OpenTelemetry server span
  4. RequestLogger: Request-scoped zap logger + completion line
  5. Recoverer:     Panic recovery (500 instead of crash)
  6. CORS:          Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/v1/fees/*           Calculation, estimate, lookup, trace
  /api/v1/jurisdictions/*  Jurisdictions and rates
  /healthz                 Liveness
  /metrics                 Prometheus (when configured)

SECURITY NOTE:
  No authentication middleware. Deploy behind an authenticating gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/epr-engine/observability"
	"go.uber.org/zap"
)

type RouterOptions struct {
	Logger         *zap.Logger
	Metrics        http.Handler
	AllowedOrigins []string
}

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TraceMiddleware)
	r.Use(observability.RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/fees", func(r chi.Router) {
			r.Post("/calculate", h.CalculateFee)
			r.Post("/estimate", h.EstimateFee)
			r.Get("/calculations", h.ListCalculations)
			r.Get("/calculations/{id}", h.GetCalculation)
			r.Get("/calculations/{id}/trace", h.GetTrace)
		})

		r.Route("/jurisdictions", func(r chi.Router) {
			r.Get("/", h.ListJurisdictions)
			r.Get("/{code}/rates", h.ListRates)
		})
	})

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	return r
}
