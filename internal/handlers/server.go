package handlers

import (
	"log/slog"
	"net/http"

	"clinic-crm/internal/activity"
	"clinic-crm/internal/auth"
	"clinic-crm/internal/config"
	"clinic-crm/internal/middleware"
	"clinic-crm/internal/users"
	"clinic-crm/internal/validation"
)

// Server holds the session endpoints. Domain endpoints live with their
// packages.
type Server struct {
	Cfg      *config.Config
	Users    *users.Service
	Activity *activity.Service
	Tokens   *auth.Manager
	Val      *validation.Validator
	Log      *slog.Logger
}

func (s *Server) logWithRequest(r *http.Request) *slog.Logger {
	if r == nil {
		return s.Log
	}
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return s.Log.With(slog.String("request_id", id))
	}
	return s.Log
}
