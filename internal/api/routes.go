package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes: service auth, then owner session
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Use(SessionMiddleware)

			r.Route("/entries", func(r chi.Router) {
				r.Post("/", h.CreateEntry)
				r.Get("/", h.ListEntries)
				r.Get("/search", h.SearchEntries)
				r.Get("/mood", h.SearchByMood)
				r.Get("/mood-series", h.MoodSeries)
				r.Get("/{id}", h.GetEntry)
				r.Put("/{id}", h.UpdateEntry)
				r.Delete("/{id}", h.DeleteEntry)
			})

			r.Post("/clustering", h.TriggerClustering)
			r.Post("/reflect", h.Reflect)
		})
	})

	return r
}
