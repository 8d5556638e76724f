package notion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/starford/tasksync/internal/apperr"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion: api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("notion: api error (%d %s): %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the response onto the shared sentinel errors.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound || e.Code == "object_not_found":
		return apperr.ErrNotFound
	case e.Status == http.StatusConflict || e.Code == "conflict_error":
		return apperr.ErrConflict
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return apperr.ErrUnauthorized
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Status = status
	return apiErr
}

// isArchived reports the error the API returns when editing a block that has
// already been archived.
func isArchived(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "archived")
}
