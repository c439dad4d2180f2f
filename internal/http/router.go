package http

import (
	"github.com/gatepass/gatepass/internal/observability"
	"github.com/gatepass/gatepass/internal/rateLimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.With(RateLimitMiddleware(rl)).Post("/v1/checkout", h.Checkout)
	r.Post("/v1/payments/webhook", h.Webhook)
	r.Get("/v1/payments/verify/{reference}", h.Verify)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
