package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/tasksync/internal/apperr"
	"github.com/starford/tasksync/internal/index"
	"github.com/starford/tasksync/internal/syncservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *syncservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *syncservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the wildcard segment.
// Supports encoded slashes from OpenAPI clients (e.g. tasks%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListTasks handles GET /api/tasks.
//
//	@Summary		List task notes with optional filtering
//	@Tags			tasks
//	@Produce		json
//	@Param			status	query		string	false	"Task state"	Enums(open, closed)
//	@Param			q		query		string	false	"Title or path substring"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	TaskListResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	st := q.Get("status")
	if st != "" && st != "open" && st != "closed" {
		writeError(w, http.StatusBadRequest, "status must be open or closed")
		return
	}

	items, total, err := h.svc.ListTasks(r.Context(), index.TaskFilter{
		Status: st,
		Query:  q.Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		slog.Error("list tasks failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: items, Total: total})
}

// GetTask handles GET /api/tasks/*.
//
//	@Summary		Get a single task note by path
//	@Tags			tasks
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	TaskDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{path} [get]
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	task, err := h.svc.GetTask(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			slog.Error("get task failed", slog.String("path", path), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// SyncNote handles POST /api/sync/*.
//
//	@Summary		Reconcile one note with the remote database
//	@Tags			sync
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	SyncResult
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/{path} [post]
func (h *Handler) SyncNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	res, err := h.svc.SyncNote(r.Context(), path)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, apperr.ErrMalformedLink):
			writeError(w, http.StatusUnprocessableEntity, "note link is not a page URL")
		default:
			slog.Error("sync note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "sync failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncAll handles POST /api/sync.
//
//	@Summary		Reconcile every note in the vault
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	ScanSummary
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	// The scan outlives a client that hangs up.
	sum, err := h.svc.SyncAll(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			writeError(w, http.StatusConflict, "scan already running")
		} else {
			slog.Error("sync all failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Status handles GET /api/status.
//
//	@Summary		Report scan and active-note state
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Scanning: h.svc.Scanning(),
		Active:   h.svc.Active(),
	})
}

// GetActive handles GET /api/active.
func (h *Handler) GetActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ActiveNoteResponse{Path: h.svc.Active()})
}

// SetActive handles PUT /api/active.
//
//	@Summary		Mark a note as open in the editor
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ActiveNoteRequest	true	"Active note"
//	@Success		200		{object}	ActiveNoteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/active [put]
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ActiveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.SetActive(req.Path); err != nil {
		writeError(w, http.StatusBadRequest, "path must name a markdown note")
		return
	}
	writeJSON(w, http.StatusOK, ActiveNoteResponse{Path: h.svc.Active()})
}

// ClearActive handles DELETE /api/active.
func (h *Handler) ClearActive(w http.ResponseWriter, _ *http.Request) {
	h.svc.ClearActive()
	w.WriteHeader(http.StatusNoContent)
}
