package files

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/leads"
	"clinic-crm/internal/middleware"
	"clinic-crm/internal/transport"
	"github.com/go-chi/chi/v5"
)

const FileNameHeader = "X-File-Name"

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

func (h *Handler) UploadURL(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}

	ticket, err := h.service.IssueUploadURL(actor)
	if err != nil {
		if transport.WriteAccessError(w, err) {
			return
		}
		log.Error("files upload url: token error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "token error", nil)
		return
	}

	log.Info("files upload url: ok", slog.String("user_id", actor.UserID))
	transport.WriteJSON(w, http.StatusOK, ticket)
}

// Upload receives the raw file body. It is authenticated by the signed token
// in the query string rather than the session.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		transport.WriteError(w, http.StatusUnauthorized, ErrInvalidToken.Error(), nil)
		return
	}

	name := r.Header.Get(FileNameHeader)
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	blob, err := h.service.Upload(ctx, token, name, contentType, r.Body)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken):
			log.Warn("files upload: invalid token")
			transport.WriteError(w, http.StatusUnauthorized, err.Error(), nil)
		case errors.Is(err, ErrTooLarge):
			log.Warn("files upload: too large")
			transport.WriteError(w, http.StatusRequestEntityTooLarge, err.Error(), nil)
		case errors.Is(err, ErrEmptyFile):
			transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		default:
			log.Error("files upload: storage error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "storage error", nil)
		}
		return
	}

	log.Info("files upload: ok", slog.String("file_id", blob.ID), slog.Int64("size", blob.Size))
	transport.WriteJSON(w, http.StatusCreated, blob)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	actor, err := access.FromContext(r.Context())
	if err != nil {
		transport.WriteAccessError(w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	rc, blob, err := h.service.Open(ctx, actor, id)
	if err != nil {
		if transport.WriteAccessError(w, err) {
			log.Warn("files download: denied", slog.String("file_id", id))
			return
		}
		if errors.Is(err, leads.ErrFileNotFound) || errors.Is(err, ErrBlobNotFound) {
			transport.WriteError(w, http.StatusNotFound, "file not found", nil)
			return
		}
		log.Error("files download: storage error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage error", nil)
		return
	}
	defer rc.Close()

	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": blob.Name}))
	if blob.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rc)
	if err != nil {
		log.Warn("files download: stream interrupted", slog.String("file_id", id), slog.String("error", err.Error()))
		return
	}
	log.Info("files download: ok", slog.String("file_id", id), slog.Int64("bytes", n))
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
