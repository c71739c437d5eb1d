package files

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/auth"
	"clinic-crm/internal/leads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	blobs map[string]Blob
	data  map[string][]byte
	seq   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{blobs: map[string]Blob{}, data: map[string][]byte{}}
}

func (m *memoryStore) Upload(ctx context.Context, blob Blob, r io.Reader) (Blob, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Blob{}, err
	}
	m.seq++
	blob.ID = "blob-" + string(rune('0'+m.seq))
	blob.Size = int64(len(raw))
	m.blobs[blob.ID] = blob
	m.data[blob.ID] = raw
	return blob, nil
}

func (m *memoryStore) Open(ctx context.Context, id string) (io.ReadCloser, Blob, error) {
	b, ok := m.blobs[id]
	if !ok {
		return nil, Blob{}, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(m.data[id])), b, nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(m.blobs, id)
	delete(m.data, id)
	return nil
}

type attachments struct {
	owner string
	ref   leads.FileRef
}

func (a attachments) FileOwner(ctx context.Context, actor access.Identity, fileID string) (leads.Lead, leads.FileRef, error) {
	if fileID != a.ref.FileID {
		return leads.Lead{}, leads.FileRef{}, leads.ErrFileNotFound
	}
	if err := access.RequireOwner(actor, a.owner); err != nil {
		return leads.Lead{}, leads.FileRef{}, err
	}
	return leads.Lead{AssignedTo: a.owner}, a.ref, nil
}

var (
	ayla  = access.Identity{UserID: "ayla", Role: access.RoleSalesperson}
	burak = access.Identity{UserID: "burak", Role: access.RoleSalesperson}
)

func newTestService(maxBytes int64) (*Service, *memoryStore) {
	store := newMemoryStore()
	tokens := &auth.Manager{
		Secret:    []byte("test-secret"),
		AccessTTL: time.Minute,
		UploadTTL: 5 * time.Minute,
		Issuer:    "test",
	}
	return NewService(store, attachments{}, tokens, maxBytes, time.UTC), store
}

func tokenFrom(t *testing.T, ticket UploadTicket) string {
	t.Helper()
	u, err := url.Parse(ticket.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "/api/files/upload", u.Path)
	return u.Query().Get("token")
}

func TestUploadWithSignedURL(t *testing.T) {
	svc, store := newTestService(1024)
	ctx := context.Background()

	_, err := svc.IssueUploadURL(access.Identity{})
	assert.ErrorIs(t, err, access.ErrUnauthenticated)

	ticket, err := svc.IssueUploadURL(ayla)
	require.NoError(t, err)
	token := tokenFrom(t, ticket)

	blob, err := svc.Upload(ctx, token, " xray.png ", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "xray.png", blob.Name)
	assert.Equal(t, "ayla", blob.UploadedBy)
	assert.Equal(t, int64(9), blob.Size)
	assert.Equal(t, []byte("png-bytes"), store.data[blob.ID])

	_, err = svc.Upload(ctx, "forged", "a", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	accessToken, err := svc.tokens.NewAccessToken("ayla", "salesperson")
	require.NoError(t, err)
	_, err = svc.Upload(ctx, accessToken, "a", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUploadLimits(t *testing.T) {
	svc, store := newTestService(4)
	ctx := context.Background()
	ticket, err := svc.IssueUploadURL(ayla)
	require.NoError(t, err)
	token := tokenFrom(t, ticket)

	_, err = svc.Upload(ctx, token, "big", "", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	blob, err := svc.Upload(ctx, token, "fits", "", strings.NewReader("1234"))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", blob.ContentType)

	_, err = svc.Upload(ctx, token, "empty", "", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
	assert.Len(t, store.blobs, 1)
}

func TestDownloadChecksLeadOwner(t *testing.T) {
	svc, store := newTestService(1024)
	ctx := context.Background()
	ticket, err := svc.IssueUploadURL(ayla)
	require.NoError(t, err)
	blob, err := svc.Upload(ctx, tokenFrom(t, ticket), "scan.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	svc.attachments = attachments{owner: "ayla", ref: leads.FileRef{FileID: blob.ID, Name: "Passport.pdf", Type: "application/pdf"}}

	_, _, err = svc.Open(ctx, burak, blob.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
	_, _, err = svc.Open(ctx, ayla, "unattached")
	assert.ErrorIs(t, err, leads.ErrFileNotFound)

	rc, got, err := svc.Open(ctx, ayla, blob.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "Passport.pdf", got.Name)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(raw))
	assert.Len(t, store.blobs, 1)
}

func TestUploadHandler(t *testing.T) {
	svc, _ := newTestService(1024)
	h := NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ticket, err := svc.IssueUploadURL(ayla)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, ticket.UploadURL, strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set(FileNameHeader, "note.txt")
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"text/plain"`)
	assert.Contains(t, rec.Body.String(), `"name":"note.txt"`)

	rec = httptest.NewRecorder()
	h.Upload(rec, httptest.NewRequest(http.MethodPost, "/api/files/upload", strings.NewReader("x")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
