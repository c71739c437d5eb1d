package transfers

import (
	"context"
	"testing"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/db"
	"clinic-crm/internal/leads"
	"clinic-crm/internal/mailer"
	"clinic-crm/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

type memoryRepo struct {
	items map[string]Transfer
}

func (m *memoryRepo) Create(ctx context.Context, t Transfer) error {
	m.items[t.ID] = t
	return nil
}

func (m *memoryRepo) GetByID(ctx context.Context, id string) (Transfer, error) {
	t, ok := m.items[id]
	if !ok {
		return Transfer{}, mongo.ErrNoDocuments
	}
	return t, nil
}

func (m *memoryRepo) FindPending(ctx context.Context, patientID, fromUserID, toUserID string) (Transfer, error) {
	for _, t := range m.items {
		if t.Status == StatusPending && t.PatientID == patientID && t.FromUserID == fromUserID && t.ToUserID == toUserID {
			return t, nil
		}
	}
	return Transfer{}, mongo.ErrNoDocuments
}

func (m *memoryRepo) Decide(ctx context.Context, id string, d Decision) (Transfer, error) {
	t, ok := m.items[id]
	if !ok || t.Status != StatusPending {
		return Transfer{}, mongo.ErrNoDocuments
	}
	t.Status = d.Status
	at := d.At
	t.DecidedAt = &at
	t.UpdatedAt = at
	if d.Status == StatusApproved {
		t.ApprovedBy = d.DecidedBy
	} else {
		t.RejectedBy = d.DecidedBy
		t.RejectionReason = d.Reason
	}
	m.items[id] = t
	return t, nil
}

func (m *memoryRepo) List(ctx context.Context, q Query, limit, offset int64) ([]Transfer, error) {
	out := make([]Transfer, 0)
	for _, t := range m.items {
		if q.Participant != "" && t.FromUserID != q.Participant && t.ToUserID != q.Participant {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memoryRepo) Count(ctx context.Context, q Query) (int64, error) {
	items, _ := m.List(ctx, q, 0, 0)
	return int64(len(items)), nil
}

func (m *memoryRepo) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	var n int64
	for id, t := range m.items {
		if t.PatientID == patientID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

type leadStore map[string]leads.Lead

func (s leadStore) Lookup(ctx context.Context, id string) (leads.Lead, error) {
	l, ok := s[id]
	if !ok {
		return leads.Lead{}, leads.ErrNotFound
	}
	return l, nil
}

func (s leadStore) Reassign(ctx context.Context, id, assignee string) error {
	l, ok := s[id]
	if !ok {
		return leads.ErrNotFound
	}
	l.AssignedTo = assignee
	s[id] = l
	return nil
}

type sent struct {
	userID     string
	kind       notifications.Type
	transferID string
}

type recordingNotifier struct {
	sent []sent
}

func (n *recordingNotifier) Notify(ctx context.Context, userID string, kind notifications.Type, transferID, message string) (notifications.Notification, error) {
	n.sent = append(n.sent, sent{userID: userID, kind: kind, transferID: transferID})
	return notifications.Notification{UserID: userID, Type: kind, TransferID: transferID, Message: message}, nil
}

type directory map[string]access.Identity

func (d directory) Resolve(ctx context.Context, userID string) (access.Identity, error) {
	id, ok := d[userID]
	if !ok {
		return access.Identity{}, access.ErrUnauthenticated
	}
	return id, nil
}

type capturedMail struct {
	to  mailer.Recipient
	msg mailer.TransferMessage
}

type fakeMailer struct {
	requested []capturedMail
	decided   []capturedMail
}

func (f *fakeMailer) SendTransferRequested(ctx context.Context, to mailer.Recipient, msg mailer.TransferMessage) (string, error) {
	f.requested = append(f.requested, capturedMail{to: to, msg: msg})
	return "m1", nil
}

func (f *fakeMailer) SendTransferDecided(ctx context.Context, to mailer.Recipient, msg mailer.TransferMessage) (string, error) {
	f.decided = append(f.decided, capturedMail{to: to, msg: msg})
	return "m2", nil
}

var (
	admin = access.Identity{UserID: "admin", Name: "Admin", Email: "admin@clinic.test", Role: access.RoleAdmin}
	ali   = access.Identity{UserID: "ali", Name: "Ali", Email: "ali@clinic.test", Role: access.RoleSalesperson}
	zeyno = access.Identity{UserID: "zeyno", Name: "Zeynep", Email: "zeynep@clinic.test", Role: access.RoleSalesperson}
)

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	leads    leadStore
	notifier *recordingNotifier
}

func newFixture() fixture {
	repo := &memoryRepo{items: map[string]Transfer{}}
	store := leadStore{
		"p1": {ID: "p1", Name: "Ayşe Yılmaz", AssignedTo: "ali"},
		"p2": {ID: "p2", Name: "Mehmet Kaya"},
	}
	notifier := &recordingNotifier{}
	dir := directory{"admin": admin, "ali": ali, "zeyno": zeyno}
	svc := NewService(repo, db.DirectRunner{}, store, notifier, dir, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	return fixture{svc: svc, repo: repo, leads: store, notifier: notifier}
}

func TestGiveApprovedMovesPatientToRecipient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tr, err := f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "give"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, tr.Status)
	assert.Equal(t, "Ayşe Yılmaz", tr.PatientName)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, sent{userID: "zeyno", kind: notifications.TypeTransferRequest, transferID: tr.ID}, f.notifier.sent[0])

	approved, err := f.svc.Approve(ctx, admin, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, "admin", approved.ApprovedBy)
	require.NotNil(t, approved.DecidedAt)
	assert.Equal(t, "zeyno", f.leads["p1"].AssignedTo)

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, sent{userID: "ali", kind: notifications.TypeTransferApproved, transferID: tr.ID}, f.notifier.sent[1])
}

func TestTakeApprovedMovesPatientToRequester(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tr, err := f.svc.Create(ctx, zeyno, CreateRequest{PatientID: "p1", ToUserID: "ignored", Type: "take"})
	require.NoError(t, err)
	assert.Equal(t, "ali", tr.ToUserID)
	assert.Equal(t, "ali", f.notifier.sent[0].userID)

	_, err = f.svc.Approve(ctx, admin, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "zeyno", f.leads["p1"].AssignedTo)
	assert.Equal(t, "zeyno", f.notifier.sent[1].userID)
}

func TestDecidedTransferCannotBeDecidedAgain(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tr, err := f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "give"})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, admin, tr.ID, "  not now ")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "not now", rejected.RejectionReason)
	assert.Equal(t, notifications.TypeTransferRejected, f.notifier.sent[1].kind)
	assert.Equal(t, "ali", f.leads["p1"].AssignedTo)

	_, err = f.svc.Approve(ctx, admin, tr.ID)
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = f.svc.Reject(ctx, admin, tr.ID, "")
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Equal(t, "ali", f.leads["p1"].AssignedTo)

	_, err = f.svc.Approve(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicatePendingRequestRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "give"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "give"})
	assert.ErrorIs(t, err, ErrDuplicatePending)
	assert.Len(t, f.repo.items, 1)
}

func TestCreateOwnershipRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, zeyno, CreateRequest{PatientID: "p1", ToUserID: "ali", Type: "give"})
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.ErrorIs(t, err, access.ErrForbidden)

	_, err = f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", Type: "take"})
	assert.ErrorIs(t, err, ErrAlreadyOwner)

	_, err = f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "ali", Type: "give"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "ghost", Type: "give"})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = f.svc.Create(ctx, zeyno, CreateRequest{PatientID: "p2", Type: "take"})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "swap"})
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = f.svc.Create(ctx, ali, CreateRequest{PatientID: "nope", ToUserID: "zeyno", Type: "give"})
	assert.ErrorIs(t, err, leads.ErrNotFound)

	assert.Empty(t, f.repo.items)
	assert.Empty(t, f.notifier.sent)
}

func TestOnlyAdminsDecide(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tr, err := f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "give"})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, zeyno, tr.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
	_, err = f.svc.Reject(ctx, ali, tr.ID, "")
	assert.ErrorIs(t, err, access.ErrForbidden)
	assert.Equal(t, StatusPending, f.repo.items[tr.ID].Status)
}

func TestListAndGetScopedToParticipants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	outsider := access.Identity{UserID: "can", Role: access.RoleSalesperson}

	tr, err := f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "give"})
	require.NoError(t, err)

	items, total, err := f.svc.List(ctx, zeyno, ListFilter{}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)

	items, total, err = f.svc.List(ctx, outsider, ListFilter{}, 20, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	_, total, err = f.svc.List(ctx, admin, ListFilter{Status: "approved"}, 20, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = f.svc.List(ctx, admin, ListFilter{Status: "done"}, 20, 0)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.Get(ctx, outsider, tr.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
	got, err := f.svc.Get(ctx, zeyno, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
}

func TestPurgePatient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "give"})
	require.NoError(t, err)
	require.NoError(t, f.svc.PurgePatient(ctx, "p1"))
	assert.Empty(t, f.repo.items)
}

func TestEmails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tr, err := f.svc.Create(ctx, ali, CreateRequest{PatientID: "p1", ToUserID: "zeyno", Type: "give"})
	require.NoError(t, err)

	// Disabled mailer is a no-op.
	require.NoError(t, f.svc.EmailRequested(ctx, tr))

	m := &fakeMailer{}
	f.svc.WithMailer(m, "https://crm.clinic.test/")
	require.NoError(t, f.svc.EmailRequested(ctx, tr))
	require.Len(t, m.requested, 1)
	assert.Equal(t, "zeynep@clinic.test", m.requested[0].to.Email)
	assert.Equal(t, "Ali", m.requested[0].msg.RequesterName)
	assert.Equal(t, "https://crm.clinic.test/transfers/"+tr.ID, m.requested[0].msg.Link)

	rejected, err := f.svc.Reject(ctx, admin, tr.ID, "busy")
	require.NoError(t, err)
	require.NoError(t, f.svc.EmailDecided(ctx, rejected))
	require.Len(t, m.decided, 1)
	assert.Equal(t, "ali@clinic.test", m.decided[0].to.Email)
	assert.Equal(t, "rejected", m.decided[0].msg.Status)
	assert.Equal(t, "busy", m.decided[0].msg.Reason)
}
