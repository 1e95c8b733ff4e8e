/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in the access log
  2. accessLog:  zerolog access line with status, latency and trace id
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a booking frontend

ROUTE GROUPS:
  /liveness             Process health
  /api/products         Room products
  /api/inventory        Per-night inventory upserts
  /api/rate-plans       Rate plans
  /api/promos/*         Promo codes, evaluation and redemptions
  /api/availability     Availability search
  /api/quotes           Detailed pricing
  /api/scenarios/*      Demo data

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Access logging
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// CORSOptions are the cross-origin settings, usually from config.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, c CORSOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   c.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods,
		AllowedHeaders:   c.AllowedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAgeSeconds,
	}))

	r.Get("/liveness", h.Liveness)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})

		r.Put("/inventory", h.UpsertInventory)

		r.Route("/rate-plans", func(r chi.Router) {
			r.Get("/", h.ListRatePlans)
			r.Post("/", h.CreateRatePlan)
		})

		r.Route("/promos", func(r chi.Router) {
			r.Get("/", h.ListPromos)
			r.Post("/", h.CreatePromo)
			r.Get("/{code}", h.GetPromo)
			r.Post("/{code}/evaluate", h.EvaluatePromo)
			r.Post("/{code}/redemptions", h.RecordRedemption)
		})

		r.Post("/availability", h.Availability)
		r.Post("/quotes", h.Quote)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
