package activity

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
	"clinic-crm/internal/schedule"
	"clinic-crm/internal/transport"
	"clinic-crm/internal/validation"
)

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{
		service: service,
		val:     val,
		log:     log,
	}
}

func (h *Handler) TabVisit(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	var req TabVisitRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("activity tab visit: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("activity tab visit: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.RecordTabVisit(ctx, actor, req.Tab); err != nil {
		if transport.WriteAccessError(w, err) {
			return
		}
		log.Error("activity tab visit: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 50, 200)
	if err != nil {
		log.Warn("activity list: invalid query", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	q := r.URL.Query()
	filter := ListFilter{
		Type:   Type(strings.TrimSpace(q.Get("type"))),
		UserID: strings.TrimSpace(q.Get("userId")),
		From:   strings.TrimSpace(q.Get("from")),
		To:     strings.TrimSpace(q.Get("to")),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, actor, filter, limit, offset)
	if err != nil {
		if transport.WriteAccessError(w, err) {
			return
		}
		switch {
		case errors.Is(err, ErrInvalidType):
			transport.WriteError(w, http.StatusBadRequest, "invalid query", map[string]string{"type": "oneof"})
		case errors.Is(err, schedule.ErrInvalidDate), errors.Is(err, schedule.ErrInvalidRange):
			transport.WriteError(w, http.StatusBadRequest, "invalid query", map[string]string{"from": "date", "to": "date"})
		default:
			log.Error("activity list: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	log.Info("activity list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, transport.ListResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
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
