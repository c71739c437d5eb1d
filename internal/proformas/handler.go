package proformas

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/httpx"
	"clinic-crm/internal/leads"
	"clinic-crm/internal/middleware"
	"clinic-crm/internal/transport"
	"clinic-crm/internal/validation"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service     *Service
	val         *validation.Validator
	log         *slog.Logger
	frontendURL string
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger, frontendURL string) *Handler {
	return &Handler{
		service:     service,
		val:         val,
		log:         log,
		frontendURL: strings.TrimRight(frontendURL, "/"),
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
	if !h.decode(w, r, log, "proformas create", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	inv, err := h.service.Create(ctx, actor, req)
	if err != nil {
		h.writeError(w, log, "proformas create", err)
		return
	}
	log.Info("proformas create: ok",
		slog.String("proforma_id", inv.ID),
		slog.String("number", inv.Number),
		slog.String("patient_id", inv.PatientID),
	)
	transport.WriteJSON(w, http.StatusCreated, inv)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	inv, err := h.service.Get(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, log, "proformas get", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.service.ListByPatient(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, log, "proformas list", err)
		return
	}
	log.Info("proformas list: ok", slog.Int("count", len(items)))
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
	if !h.decode(w, r, log, "proformas update", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	inv, err := h.service.Update(ctx, actor, id, req)
	if err != nil {
		h.writeError(w, log, "proformas update", err)
		return
	}
	log.Info("proformas update: ok", slog.String("proforma_id", id))
	transport.WriteJSON(w, http.StatusOK, inv)
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
		h.writeError(w, log, "proformas delete", err)
		return
	}
	log.Info("proformas delete: ok", slog.String("proforma_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Redirect sends shared proforma links to the frontend viewer.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}
	http.Redirect(w, r, h.frontendURL+"/proforma/"+url.PathEscape(id), http.StatusFound)
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
	case errors.Is(err, leads.ErrNotFound):
		transport.WriteError(w, http.StatusNotFound, "patient not found", nil)
	case errors.Is(err, ErrNegativeAmount):
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
