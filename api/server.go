/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the review frontend

ROUTE GROUPS:
  /api/batches/*   Batch lifecycle, lines, exclusions, events
  /api/events/*    Debounced row edits and soft deletes
  /api/config/*    Period-versioned tariffs, rates, additionals, groups
  /api/holidays/*  Holiday calendar

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Post("/", h.CreateBatch)
			r.Get("/{id}", h.GetBatch)
			r.Get("/{id}/lines", h.GetLines)
			r.Get("/{id}/exclusions", h.GetExclusions)
			r.Get("/{id}/events", h.GetEvents)
			r.Post("/{id}/transition", h.TransitionBatch)
			r.Post("/{id}/recompute", h.RecomputeBatch)
		})

		// Event routes
		r.Route("/events", func(r chi.Router) {
			r.Post("/flush", h.FlushEdits)
			r.Patch("/{id}", h.EditEvent)
			r.Get("/{id}/state", h.GetEventState)
			r.Delete("/{id}", h.DeleteEvent)
		})

		// Configuration routes
		r.Route("/config", func(r chi.Router) {
			r.Get("/tariffs", h.ListTariffs)
			r.Post("/tariffs", h.SaveTariff)
			r.Get("/rate-cards", h.ListRateCards)
			r.Post("/rate-cards", h.SaveRateCard)
			r.Get("/additionals", h.ListAdditionals)
			r.Post("/additionals", h.SaveAdditional)
			r.Get("/groups", h.ListGroupAssignments)
			r.Post("/groups", h.SaveGroupAssignment)
			r.Post("/copy", h.CopyConfig)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})
	})

	return r
}
