package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/tasksync/internal/syncservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *syncservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/tasks", h.ListTasks)
	r.Get("/tasks/*", h.GetTask)

	r.Post("/sync", h.SyncAll)
	r.Post("/sync/*", h.SyncNote)
	r.Get("/status", h.Status)

	r.Get("/active", h.GetActive)
	r.Put("/active", h.SetActive)
	r.Delete("/active", h.ClearActive)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
