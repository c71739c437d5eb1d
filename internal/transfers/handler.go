package transfers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
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
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("transfers create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("transfers create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	t, err := h.service.Create(ctx, actor, req)
	if err != nil {
		h.writeError(w, log, "transfers create", err)
		return
	}

	go func(created Transfer) {
		mailCtx, mailCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer mailCancel()
		if err := h.service.EmailRequested(mailCtx, created); err != nil {
			h.log.Warn("transfers create: email failed",
				slog.String("transfer_id", created.ID),
				slog.String("error", err.Error()),
			)
		}
	}(t)

	log.Info("transfers create: ok",
		slog.String("transfer_id", t.ID),
		slog.String("patient_id", t.PatientID),
		slog.String("type", string(t.Type)),
	)
	transport.WriteJSON(w, http.StatusCreated, t)
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
		log.Warn("transfers list: invalid query", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, actor, ListFilter{Status: r.URL.Query().Get("status")}, limit, offset)
	if err != nil {
		h.writeError(w, log, "transfers list", err)
		return
	}

	log.Info("transfers list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, transport.ListResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.service.Get(ctx, actor, id)
	if err != nil {
		h.writeError(w, log, "transfers get", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	t, err := h.service.Approve(ctx, actor, id)
	if err != nil {
		h.writeError(w, log, "transfers approve", err)
		return
	}
	h.emailDecision(t)

	log.Info("transfers approve: ok", slog.String("transfer_id", id), slog.String("new_owner", t.NewOwner()))
	transport.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req RejectRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r.Body, &req); err != nil {
			log.Warn("transfers reject: invalid json")
			transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			log.Warn("transfers reject: validation error")
			transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	t, err := h.service.Reject(ctx, actor, id, req.Reason)
	if err != nil {
		h.writeError(w, log, "transfers reject", err)
		return
	}
	h.emailDecision(t)

	log.Info("transfers reject: ok", slog.String("transfer_id", id))
	transport.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) emailDecision(t Transfer) {
	go func() {
		mailCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		if err := h.service.EmailDecided(mailCtx, t); err != nil {
			h.log.Warn("transfers decision: email failed",
				slog.String("transfer_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
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
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrDuplicatePending):
		log.Warn(op+": conflict", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrInvalidType):
		transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"type": "oneof"})
	case errors.Is(err, ErrInvalidStatus):
		transport.WriteError(w, http.StatusBadRequest, "invalid query", map[string]string{"status": "oneof"})
	case errors.Is(err, ErrInvalidTarget):
		transport.WriteError(w, http.StatusBadRequest, err.Error(), map[string]string{"toUserId": "invalid"})
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
