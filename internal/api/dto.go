package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/starford/tasksync/internal/reconcile"
	"github.com/starford/tasksync/internal/syncservice"
)

// TaskItem is a lightweight item in a list response (aliased from the domain layer).
type TaskItem = syncservice.TaskItem

// TaskDetail is the full task response type (aliased from the domain layer).
type TaskDetail = syncservice.TaskDetail

// SyncResult is the response to a single-note sync.
type SyncResult = syncservice.SyncResult

// ScanSummary is the response to a full scan.
type ScanSummary = reconcile.Summary

// TaskListResponse wraps paginated task listings.
type TaskListResponse struct {
	Tasks []TaskItem `json:"tasks" validate:"required"`
	Total int        `json:"total" example:"42" validate:"required"`
}

// ActiveNoteRequest sets the note currently open in the editor.
type ActiveNoteRequest struct {
	Path string `json:"path" example:"tasks/Write report.md" validate:"required"`
}

// Validate checks the request body.
func (r ActiveNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// ActiveNoteResponse reports the active note; Path is empty when none is set.
type ActiveNoteResponse struct {
	Path string `json:"path" example:"tasks/Write report.md"`
}

// StatusResponse reports daemon sync state.
type StatusResponse struct {
	Scanning bool   `json:"scanning"`
	Active   string `json:"active,omitempty"`
}
