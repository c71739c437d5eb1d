package calendar

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
	"github.com/go-chi/chi/v5"
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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	var req CreateRequest
	if !h.decode(w, r, log, "calendar create", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	e, err := h.service.Create(ctx, actor, req)
	if err != nil {
		h.writeError(w, log, "calendar create", err)
		return
	}
	log.Info("calendar create: ok", slog.String("event_id", e.ID), slog.String("date", e.Date))
	transport.WriteJSON(w, http.StatusCreated, e)
}

// List accepts ?date=YYYY-MM-DD or ?from=&to=, plus ?ownerId= for admins.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	query := r.URL.Query()
	filter := ListFilter{OwnerID: strings.TrimSpace(query.Get("ownerId"))}
	for key, dst := range map[string]*string{"date": &filter.Date, "from": &filter.From, "to": &filter.To} {
		value, err := httpx.QueryDate(query, key)
		if err != nil {
			log.Warn("calendar list: invalid query", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		*dst = value
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.service.List(ctx, actor, filter)
	if err != nil {
		h.writeError(w, log, "calendar list", err)
		return
	}
	log.Info("calendar list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req UpdateRequest
	if !h.decode(w, r, log, "calendar update", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	e, err := h.service.Update(ctx, actor, id, req)
	if err != nil {
		h.writeError(w, log, "calendar update", err)
		return
	}
	log.Info("calendar update: ok", slog.String("event_id", id))
	transport.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	e, err := h.service.ToggleComplete(ctx, actor, id)
	if err != nil {
		h.writeError(w, log, "calendar toggle", err)
		return
	}
	log.Info("calendar toggle: ok", slog.String("event_id", id), slog.Bool("completed", e.Completed))
	transport.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.Delete(ctx, actor, id); err != nil {
		h.writeError(w, log, "calendar delete", err)
		return
	}
	log.Info("calendar delete: ok", slog.String("event_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, dst interface{}) bool {
	if err := httpx.DecodeJSON(r.Body, dst); err != nil {
		log.Warn(op + ": invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return false
	}
	if err := h.val.Struct(dst); err != nil {
		log.Warn(op + ": validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	if transport.WriteAccessError(w, err) {
		log.Warn(op+": denied", slog.String("error", err.Error()))
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		transport.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrInvalidPriority),
		errors.Is(err, ErrMissingDate),
		errors.Is(err, ErrEmptyTitle),
		errors.Is(err, schedule.ErrInvalidDate),
		errors.Is(err, schedule.ErrInvalidRange):
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		log.Error(op+": database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
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
