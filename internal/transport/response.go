package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"clinic-crm/internal/access"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type ListResponse struct {
	Items  interface{} `json:"items"`
	Limit  int64       `json:"limit"`
	Offset int64       `json:"offset"`
	Total  int64       `json:"total"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, message string, details map[string]string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// WriteAccessError answers for the identity/role categories and reports
// whether err belonged to one of them.
func WriteAccessError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, access.ErrUnauthenticated):
		WriteError(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, access.ErrInvalidRole):
		WriteError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, access.ErrForbidden):
		WriteError(w, http.StatusForbidden, err.Error(), nil)
	default:
		return false
	}
	return true
}
