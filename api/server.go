/*
server.go - HTTP server and routing

PURPOSE:
  Wires the chi router, middleware stack, and route table for the deal
  lifecycle API. The server owns no business logic; everything delegates
  to the handlers which in turn delegate to the engine.

MIDDLEWARE STACK (inside-out):
  - RequestID: tags every request for log correlation
  - RealIP: honors X-Forwarded-For behind a proxy
  - Logger: one structured line per request
  - Recoverer: converts panics into 500s
  - CORS: permissive, for local dashboards

SEE ALSO:
  - handlers.go: Route implementations
  - cmd/server/main.go: Process entrypoint
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the fully-wired HTTP router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/deals/{id}", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Get("/transitions", h.GetAvailableTransitions)
		r.Post("/transition", h.Transition)
		r.Get("/blockers", h.GetCurrentBlockers)

		r.Post("/events", h.RecordEvent)
		r.Get("/events", h.GetEventHistory)
		r.Get("/verify", h.VerifyChain)
		r.Get("/audit", h.GetAuditTrail)

		r.Post("/documents", h.RegisterDocument)
	})

	return r
}
