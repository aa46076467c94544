package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/avlog/internal/recordservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *recordservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Output tree.
	r.Get("/frames", h.Frames)
	r.Get("/hours", h.ListHours)
	r.Get("/hours/{hour}", h.ListRecords)
	r.Get("/records/{hour}/{name}", h.GetRecord)

	// Catalog.
	r.Get("/records", h.QueryRecords)
	r.Get("/stats", h.Stats)

	r.Get("/runs/last", h.LastRun)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
