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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/calculate*       Calculation endpoints
  /api/workers/*        Structure resolution and overrides
  /api/templates/*      Template management
  /api/admin/*          Assignments and tax rules

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.
  Deployments put this behind the platform gateway.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Calculation routes
		r.Post("/calculate", h.Calculate)
		r.Post("/calculate/batch", h.CalculateBatch)
		r.Post("/formulas/validate", h.ValidateFormula)

		// Worker routes
		r.Route("/workers/{id}", func(r chi.Router) {
			r.Get("/structure", h.GetStructure)
			r.Get("/overrides", h.ListOverrides)
			r.Post("/overrides", h.CreateOverride)
			r.Delete("/overrides/{overrideID}", h.DeleteOverride)
		})

		// Template routes
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}/{version}", h.GetTemplate)
			r.Post("/{id}/{version}/publish", h.PublishTemplate)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/assignments", h.CreateAssignment)
			r.Post("/tax-rules", h.CreateTaxRuleSet)
		})
	})

	return r
}
