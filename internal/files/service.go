package files

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/auth"
	"clinic-crm/internal/leads"
)

var (
	ErrTooLarge     = errors.New("file too large")
	ErrInvalidToken = errors.New("invalid upload token")
	ErrEmptyFile    = errors.New("empty file")
)

const uploadPath = "/api/files/upload"

// Attachments resolves which lead holds a file and whether the caller may
// see it.
type Attachments interface {
	FileOwner(ctx context.Context, actor access.Identity, fileID string) (leads.Lead, leads.FileRef, error)
}

type UploadTicket struct {
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	store       Store
	attachments Attachments
	tokens      *auth.Manager
	maxBytes    int64
	location    *time.Location
	now         func() time.Time
}

func NewService(store Store, attachments Attachments, tokens *auth.Manager, maxBytes int64, location *time.Location) *Service {
	return &Service{
		store:       store,
		attachments: attachments,
		tokens:      tokens,
		maxBytes:    maxBytes,
		location:    location,
		now:         time.Now,
	}
}

// IssueUploadURL signs a short-lived URL the caller can POST a raw file body
// to.
func (s *Service) IssueUploadURL(actor access.Identity) (UploadTicket, error) {
	if err := access.Authorize(&actor); err != nil {
		return UploadTicket{}, err
	}
	token, err := s.tokens.NewUploadToken(actor.UserID)
	if err != nil {
		return UploadTicket{}, err
	}
	return UploadTicket{
		UploadURL: uploadPath + "?token=" + url.QueryEscape(token),
		ExpiresAt: s.now().In(s.location).Add(s.tokens.UploadTTL),
	}, nil
}

// Upload stores body under a signed upload token. The returned blob is not
// attached to any lead yet.
func (s *Service) Upload(ctx context.Context, token, name, contentType string, body io.Reader) (Blob, error) {
	if s.tokens == nil {
		return Blob{}, ErrInvalidToken
	}
	claims, err := s.tokens.Parse(token, auth.KindUpload)
	if err != nil {
		return Blob{}, ErrInvalidToken
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "upload"
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	blob, err := s.store.Upload(ctx, Blob{
		Name:        name,
		ContentType: contentType,
		UploadedBy:  claims.UserID(),
		UploadedAt:  s.now().In(s.location),
	}, &limitedReader{r: body, remaining: s.maxBytes})
	if err != nil {
		return Blob{}, err
	}
	if blob.Size == 0 {
		_ = s.store.Delete(ctx, blob.ID)
		return Blob{}, ErrEmptyFile
	}
	return blob, nil
}

// Open streams an attached file if the caller can access its lead.
func (s *Service) Open(ctx context.Context, actor access.Identity, fileID string) (io.ReadCloser, Blob, error) {
	_, ref, err := s.attachments.FileOwner(ctx, actor, fileID)
	if err != nil {
		return nil, Blob{}, err
	}
	rc, blob, err := s.store.Open(ctx, ref.FileID)
	if err != nil {
		return nil, Blob{}, err
	}
	blob.Name = ref.Name
	if ref.Type != "" {
		blob.ContentType = ref.Type
	}
	return rc, blob, nil
}

// limitedReader fails with ErrTooLarge once more than remaining bytes are
// read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
