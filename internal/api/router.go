package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Syncer, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Runs.
	r.Post("/scan", h.Scan)
	r.Get("/status", h.Status)
	r.Get("/ping", h.Ping)

	// Single documents.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents/*", h.SyncDocument)
	r.Delete("/documents/*", h.DeleteDocument)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
