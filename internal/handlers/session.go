package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/auth"
	"clinic-crm/internal/httpx"
	"clinic-crm/internal/middleware"
	"clinic-crm/internal/transport"
	"clinic-crm/internal/users"
)

const (
	refreshCookie = "crm_refresh"
	refreshPath   = "/api/auth"
)

type SessionResponse struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         users.User `json:"user"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	var req users.SignupRequest
	if !s.decode(w, r, log, "auth signup", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	user, err := s.Users.Signup(ctx, req)
	if err != nil {
		s.writeUserError(w, log, "auth signup", err)
		return
	}

	log.Info("auth signup: ok", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	s.startSession(ctx, w, log, "auth signup", user, http.StatusCreated)
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	var req users.LoginRequest
	if !s.decode(w, r, log, "auth login", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	user, err := s.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		s.writeUserError(w, log, "auth login", err)
		return
	}

	if err := s.Activity.RecordLogin(ctx, user.Identity()); err != nil {
		log.Warn("auth login: activity not recorded", slog.String("error", err.Error()))
	}

	log.Info("auth login: ok", slog.String("user_id", user.ID))
	s.startSession(ctx, w, log, "auth login", user, http.StatusOK)
}

// Refresh accepts the refresh token from its cookie or the request body.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	if s.Tokens == nil {
		log.Warn("auth refresh: not configured")
		transport.WriteError(w, http.StatusServiceUnavailable, "auth not configured", nil)
		return
	}

	token := ""
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		token = cookie.Value
	}
	if token == "" && r.ContentLength != 0 {
		var req RefreshRequest
		if err := httpx.DecodeJSON(r.Body, &req); err != nil {
			log.Warn("auth refresh: invalid json")
			transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		log.Warn("auth refresh: missing refresh token")
		transport.WriteError(w, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}

	claims, err := s.Tokens.Parse(token, auth.KindRefresh)
	if err != nil {
		log.Warn("auth refresh: invalid refresh token")
		transport.WriteError(w, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	identity, err := s.Users.Resolve(ctx, claims.UserID())
	if err != nil {
		if transport.WriteAccessError(w, err) {
			log.Warn("auth refresh: unknown user", slog.String("user_id", claims.UserID()))
			return
		}
		log.Error("auth refresh: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}
	user, err := s.Users.Get(ctx, identity, identity.UserID)
	if err != nil {
		s.writeUserError(w, log, "auth refresh", err)
		return
	}

	log.Info("auth refresh: ok", slog.String("user_id", user.ID))
	s.startSession(ctx, w, log, "auth refresh", user, http.StatusOK)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	clearAuthCookies(w, s.Cfg.CookieSecure)
	log.Info("auth logout: ok")
	transport.WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := s.Users.Get(ctx, actor, actor.UserID)
	if err != nil {
		s.writeUserError(w, log, "auth me", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) startSession(ctx context.Context, w http.ResponseWriter, log *slog.Logger, op string, user users.User, status int) {
	if s.Tokens == nil {
		log.Warn(op + ": not configured")
		transport.WriteError(w, http.StatusServiceUnavailable, "auth not configured", nil)
		return
	}
	accessToken, err := s.Tokens.NewAccessToken(user.ID, string(user.Role))
	if err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "token error", nil)
		return
	}
	refreshToken, err := s.Tokens.NewRefreshToken(user.ID, string(user.Role))
	if err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "token error", nil)
		return
	}

	setAuthCookies(w, accessToken, refreshToken, s.Tokens.AccessTTL, s.Tokens.RefreshTTL, s.Cfg.CookieSecure)
	transport.WriteJSON(w, status, SessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, dst interface{}) bool {
	if err := httpx.DecodeJSON(r.Body, dst); err != nil {
		log.Warn(op + ": invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return false
	}
	if err := s.Val.Struct(dst); err != nil {
		log.Warn(op + ": validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(s.Val.ValidationErrors(err)))
		return false
	}
	return true
}

func (s *Server) writeUserError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	if transport.WriteAccessError(w, err) {
		log.Warn(op+": denied", slog.String("error", err.Error()))
		return
	}
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		log.Warn(op + ": invalid credentials")
		transport.WriteError(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, users.ErrInvalidSetupKey):
		log.Warn(op + ": invalid setup key")
		transport.WriteError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, users.ErrDuplicateEmail):
		transport.WriteError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, users.ErrNotFound):
		transport.WriteError(w, http.StatusUnauthorized, access.ErrUnauthenticated.Error(), nil)
	case errors.Is(err, auth.ErrEmptyPassword), errors.Is(err, auth.ErrWeakPassword):
		transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"password": "min"})
	default:
		log.Error(op+": database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
}

func setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessCookie,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(accessTTL.Seconds()),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    refreshToken,
		Path:     refreshPath,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(refreshTTL.Seconds()),
	})
}

func clearAuthCookies(w http.ResponseWriter, secure bool) {
	expire := time.Now().Add(-1 * time.Hour)
	for name, path := range map[string]string{middleware.AccessCookie: "/", refreshCookie: refreshPath} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  expire,
			MaxAge:   -1,
		})
	}
}
