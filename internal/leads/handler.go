package leads

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/httpx"
	"clinic-crm/internal/middleware"
	"clinic-crm/internal/transport"
	"clinic-crm/internal/validation"
	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

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
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !h.decode(w, r, log, "leads create", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	lead, err := h.service.Create(ctx, actor, req)
	if err != nil {
		h.writeError(w, log, "leads create", err)
		return
	}

	log.Info("leads create: ok", slog.String("lead_id", lead.ID), slog.String("assigned_to", lead.AssignedTo))
	transport.WriteJSON(w, http.StatusCreated, lead)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		log.Warn("leads list: invalid query", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, total, err := h.service.List(ctx, actor, listFilter(r), limit, offset)
	if err != nil {
		h.writeError(w, log, "leads list", err)
		return
	}

	log.Info("leads list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, transport.ListResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	limit, _, err := httpx.ParseLimitOffset(r.URL.Query(), 20, 100)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items, err := h.service.Search(ctx, actor, q, int(limit))
	if err != nil {
		h.writeError(w, log, "leads search", err)
		return
	}

	log.Info("leads search: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) FollowUps(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, err := h.service.DueFollowUps(ctx, actor)
	if err != nil {
		h.writeError(w, log, "leads follow-ups", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	counts, err := h.service.StatusCounts(ctx, actor)
	if err != nil {
		h.writeError(w, log, "leads stats", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": counts})
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	data, err := h.service.Export(ctx, actor, listFilter(r))
	if err != nil {
		h.writeError(w, log, "leads export", err)
		return
	}

	filename := "leads-" + time.Now().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Warn("leads export: write failed", slog.String("error", err.Error()))
		return
	}
	log.Info("leads export: ok", slog.Int("bytes", len(data)))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	lead, err := h.service.Get(ctx, actor, id)
	if err != nil {
		h.writeError(w, log, "leads get", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req UpdateRequest
	if !h.decode(w, r, log, "leads update", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	lead, err := h.service.Update(ctx, actor, id, req)
	if err != nil {
		h.writeError(w, log, "leads update", err)
		return
	}

	log.Info("leads update: ok", slog.String("lead_id", id))
	transport.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req StatusUpdateRequest
	if !h.decode(w, r, log, "leads status", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	lead, err := h.service.UpdateStatus(ctx, actor, id, req.Status)
	if err != nil {
		h.writeError(w, log, "leads status", err)
		return
	}

	log.Info("leads status: ok", slog.String("lead_id", id), slog.String("status", string(lead.Status)))
	transport.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) UpdateConsultation(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, ErrInvalidConsultation.Error(), nil)
		return
	}

	var req ConsultationRequest
	if !h.decode(w, r, log, "leads consultation", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	lead, err := h.service.UpdateConsultation(ctx, actor, id, index, req)
	if err != nil {
		h.writeError(w, log, "leads consultation", err)
		return
	}

	log.Info("leads consultation: ok", slog.String("lead_id", id), slog.Int("index", index))
	transport.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) AttachFile(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var req AttachFileRequest
	if !h.decode(w, r, log, "leads attach", &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	lead, err := h.service.AttachFile(ctx, actor, id, req)
	if err != nil {
		h.writeError(w, log, "leads attach", err)
		return
	}

	log.Info("leads attach: ok", slog.String("lead_id", id), slog.String("file_id", req.FileID))
	transport.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) DetachFile(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	fileID := strings.TrimSpace(chi.URLParam(r, "fileId"))

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	lead, err := h.service.DetachFile(ctx, actor, id, fileID)
	if err != nil {
		h.writeError(w, log, "leads detach", err)
		return
	}
	h.removeBlobs(ctx, log, id, []string{fileID})

	log.Info("leads detach: ok", slog.String("lead_id", id), slog.String("file_id", fileID))
	transport.WriteJSON(w, http.StatusOK, lead)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	lead, err := h.service.Delete(ctx, actor, id)
	if err != nil {
		h.writeError(w, log, "leads delete", err)
		return
	}

	fileIDs := make([]string, 0, len(lead.Files))
	for _, f := range lead.Files {
		fileIDs = append(fileIDs, f.FileID)
	}
	h.removeBlobs(ctx, log, id, fileIDs)

	log.Info("leads delete: ok", slog.String("lead_id", id), slog.Int("files", len(fileIDs)))
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Import is the webhook used by external lead sources. It is guarded by the
// import key middleware, not by a user session.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	// external sources send extra fields, so unknown keys are tolerated here
	var req ImportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		log.Warn("leads import: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	lead, duplicate, err := h.service.Import(ctx, req)
	if err != nil {
		log.Error("leads import: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	log.Info("leads import: ok", slog.String("lead_id", lead.ID), slog.Bool("duplicate", duplicate))
	transport.WriteJSON(w, status, map[string]interface{}{
		"success":   true,
		"id":        lead.ID,
		"duplicate": duplicate,
	})
}

func (h *Handler) removeBlobs(ctx context.Context, log *slog.Logger, leadID string, fileIDs []string) {
	for fileID, err := range h.service.RemoveBlobs(ctx, fileIDs) {
		log.Warn("leads blob cleanup: failed",
			slog.String("lead_id", leadID),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

func listFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	return ListFilter{
		Status:     strings.TrimSpace(q.Get("status")),
		Stage:      strings.TrimSpace(q.Get("stage")),
		AssignedTo: strings.TrimSpace(q.Get("assignedTo")),
	}
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (access.Identity, bool) {
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return access.Identity{}, false
	}
	return actor, true
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
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFileNotFound):
		log.Warn(op+": not found", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrDuplicatePhone):
		log.Warn(op + ": duplicate phone")
		transport.WriteError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrFileAttached):
		log.Warn(op + ": file attached elsewhere")
		transport.WriteError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrInvalidStatus):
		transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"status": "oneof"})
	case errors.Is(err, ErrInvalidStage):
		transport.WriteError(w, http.StatusBadRequest, "validation error", map[string]string{"stage": "oneof"})
	case errors.Is(err, ErrInvalidConsultation):
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
