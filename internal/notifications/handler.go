package notifications

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/httpx"
	"clinic-crm/internal/middleware"
	"clinic-crm/internal/transport"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
	log     *slog.Logger
}

func NewHandler(service *Service, log *slog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		log.Warn("notifications list: invalid query", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, actor, httpx.QueryBool(r.URL.Query(), "unread"), limit, offset)
	if err != nil {
		h.writeError(w, log, "notifications list", err)
		return
	}

	transport.WriteJSON(w, http.StatusOK, transport.ListResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	count, err := h.service.UnreadCount(ctx, actor)
	if err != nil {
		h.writeError(w, log, "notifications unread", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.service.MarkRead(ctx, actor, id)
	if err != nil {
		h.writeError(w, log, "notifications read", err)
		return
	}

	log.Info("notifications read: ok", slog.String("notification_id", id))
	transport.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	updated, err := h.service.MarkAllRead(ctx, actor)
	if err != nil {
		h.writeError(w, log, "notifications read all", err)
		return
	}

	log.Info("notifications read all: ok", slog.Int64("updated", updated))
	transport.WriteJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	if transport.WriteAccessError(w, err) {
		log.Warn(op+": denied", slog.String("error", err.Error()))
		return
	}
	if errors.Is(err, ErrNotFound) {
		transport.WriteError(w, http.StatusNotFound, err.Error(), nil)
		return
	}
	log.Error(op+": database error", slog.String("error", err.Error()))
	transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if r == nil {
		return h.log
	}
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
