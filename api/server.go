/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Lightweight, context-based, good middleware support, RESTful patterns.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend
  5. Auth:       Bearer token -> actor id + role (dev passthrough when no
                 secret is configured)

ROUTE GROUPS:
  /api/records/*   Schedule entries: create, edit, delete, status, subtype
  /api/staff/*     Per-staff record listing and monthly submissions
  /api/members/*   Member roster, memberships, payments

  Review (approve/reject) is the one admin-only route; everything else
  accepts staff or admin.

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
)

// RouterConfig carries the router's runtime knobs.
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(Auth(cfg.JWTSecret))

		// Schedule entries
		r.Route("/records", func(r chi.Router) {
			r.Use(RequireRole(RoleStaff, RoleAdmin))
			r.Post("/", h.CreateRecord)
			r.Get("/{id}", h.GetRecord)
			r.Put("/{id}", h.UpdateRecord)
			r.Delete("/{id}", h.DeleteRecord)
			r.Post("/{id}/status", h.ChangeStatus)
			r.Post("/{id}/subtype", h.Reclassify)
		})

		// Per-staff views and monthly submission workflow
		r.Route("/staff/{id}", func(r chi.Router) {
			r.With(RequireRole(RoleStaff, RoleAdmin)).
				Get("/records", h.ListStaffRecords)
			r.Route("/months/{yearMonth}", func(r chi.Router) {
				r.With(RequireRole(RoleStaff, RoleAdmin)).Get("/", h.GetMonth)
				r.With(RequireRole(RoleStaff, RoleAdmin)).Post("/submit", h.SubmitMonth)
				r.With(RequireRole(RoleAdmin)).Post("/review", h.ReviewMonth)
			})
		})

		// Members, memberships, payments
		r.Route("/members", func(r chi.Router) {
			r.Use(RequireRole(RoleStaff, RoleAdmin))
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Post("/{id}/memberships", h.PurchaseMembership)
			r.Post("/{id}/payments", h.CapturePayment)
			r.Get("/{id}/payments", h.ListPayments)
		})
	})

	return r
}
