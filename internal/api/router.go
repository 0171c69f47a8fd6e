package api

import (
	"log/slog"
	"net/http"

	"repairhub/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter serves the warehouse API. maxInFlight bounds concurrent requests
// when positive.
func NewRouter(h *Handlers, keys middleware.KeyStore, maxInFlight int) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(ChiMiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		if maxInFlight > 0 {
			r.Use(ChiMiddleware.Throttle(maxInFlight))
		}
		r.With(middleware.Idempotency(keys)).Post("/orders", h.OrderPart)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
	})

	r.Handle("/metrics", promhttp.Handler())

	slog.Info("registered routes", "routes", "POST /api/orders (idempotent), GET /api/orders, GET /api/orders/{id} (cached), GET /metrics")

	return r
}

// NewOpsRouter serves health and metrics for workers without a public API.
// status reports the worker state and whether it is healthy.
func NewOpsRouter(status func() (string, bool)) http.Handler {
	r := chi.NewRouter()
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		state, ok := status()
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"state": state})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
