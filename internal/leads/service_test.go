package leads

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/activity"
	"clinic-crm/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

type memoryRepo struct {
	leads map[string]Lead
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{leads: map[string]Lead{}}
}

func (m *memoryRepo) Create(ctx context.Context, lead Lead) error {
	m.leads[lead.ID] = lead
	return nil
}

func (m *memoryRepo) GetByID(ctx context.Context, id string) (Lead, error) {
	l, ok := m.leads[id]
	if !ok {
		return Lead{}, mongo.ErrNoDocuments
	}
	return l, nil
}

func (m *memoryRepo) FindByPhone(ctx context.Context, phone string) (Lead, error) {
	for _, l := range m.leads {
		if l.Phone == phone {
			return l, nil
		}
	}
	return Lead{}, mongo.ErrNoDocuments
}

func (m *memoryRepo) FindByFile(ctx context.Context, fileID string) (Lead, error) {
	for _, l := range m.leads {
		for _, f := range l.Files {
			if f.FileID == fileID {
				return l, nil
			}
		}
	}
	return Lead{}, mongo.ErrNoDocuments
}

func (m *memoryRepo) matches(q Query, l Lead) bool {
	if q.Owner != "" && l.AssignedTo != q.Owner {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, l.Status) {
		return false
	}
	if containsStatus(q.Exclude, l.Status) {
		return false
	}
	if q.Arrived != nil && *q.Arrived != (l.ArrivalDate != "") {
		return false
	}
	if q.FollowUpBy != "" && (l.NextFollowUpDate == "" || l.NextFollowUpDate > q.FollowUpBy) {
		return false
	}
	return true
}

func (m *memoryRepo) List(ctx context.Context, q Query, limit, offset int64) ([]Lead, error) {
	out := make([]Lead, 0)
	for _, l := range m.leads {
		if m.matches(q, l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 {
		if offset >= int64(len(out)) {
			return []Lead{}, nil
		}
		out = out[offset:]
		if int64(len(out)) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

func (m *memoryRepo) Count(ctx context.Context, q Query) (int64, error) {
	items, _ := m.List(ctx, q, 0, 0)
	return int64(len(items)), nil
}

func (m *memoryRepo) CountByStatus(ctx context.Context, q Query) (map[Status]int64, error) {
	items, _ := m.List(ctx, q, 0, 0)
	out := map[Status]int64{}
	for _, l := range items {
		out[l.Status]++
	}
	return out, nil
}

func (m *memoryRepo) Replace(ctx context.Context, lead Lead) error {
	if _, ok := m.leads[lead.ID]; !ok {
		return mongo.ErrNoDocuments
	}
	m.leads[lead.ID] = lead
	return nil
}

func (m *memoryRepo) SetAssignee(ctx context.Context, id, assignee string, now time.Time) error {
	l, ok := m.leads[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	l.AssignedTo = assignee
	l.UpdatedAt = now
	m.leads[id] = l
	return nil
}

func (m *memoryRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.leads[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(m.leads, id)
	return nil
}

type recorder struct {
	changes []activity.StatusChange
	actors  []access.Identity
}

func (r *recorder) RecordStatusChange(ctx context.Context, actor access.Identity, change activity.StatusChange) error {
	r.changes = append(r.changes, change)
	r.actors = append(r.actors, actor)
	return nil
}

type purger struct {
	purged []string
	err    error
}

func (p *purger) PurgePatient(ctx context.Context, patientID string) error {
	if p.err != nil {
		return p.err
	}
	p.purged = append(p.purged, patientID)
	return nil
}

type blobs struct {
	owners  map[string]string
	deleted []string
	fail    map[string]bool
}

func (b *blobs) UploadedBy(ctx context.Context, fileID string) (string, error) {
	owner, ok := b.owners[fileID]
	if !ok {
		return "", ErrFileNotFound
	}
	return owner, nil
}

func (b *blobs) Delete(ctx context.Context, fileID string) error {
	if b.fail[fileID] {
		return errors.New("gridfs unavailable")
	}
	b.deleted = append(b.deleted, fileID)
	return nil
}

var (
	admin = access.Identity{UserID: "root", Name: "Root", Role: access.RoleAdmin}
	ayla  = access.Identity{UserID: "ayla", Name: "Ayla", Role: access.RoleSalesperson}
	burak = access.Identity{UserID: "burak", Name: "Burak", Role: access.RoleSalesperson}
)

type fixture struct {
	svc   *Service
	repo  *memoryRepo
	rec   *recorder
	blobs *blobs
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)

	f := &fixture{
		repo:  newMemoryRepo(),
		rec:   &recorder{},
		blobs: &blobs{owners: map[string]string{}, fail: map[string]bool{}},
		now:   time.Date(2024, 1, 1, 10, 0, 0, 0, loc),
	}
	f.svc = NewService(f.repo, db.DirectRunner{}, f.rec, f.blobs, Options{
		Location:        loc,
		DefaultCurrency: "eur",
		ImportAssignee:  "ayla",
	})
	f.svc.now = func() time.Time {
		f.now = f.now.Add(time.Second)
		return f.now
	}
	return f
}

func (f *fixture) create(t *testing.T, actor access.Identity, name, phone string) Lead {
	t.Helper()
	lead, err := f.svc.Create(context.Background(), actor, CreateRequest{Name: name, Phone: phone})
	require.NoError(t, err)
	return lead
}

func TestCreateRejectsDuplicatePhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, ayla, "Mehmet", "5551234567")
	assert.Equal(t, StatusNew, first.Status)
	assert.Equal(t, "ayla", first.AssignedTo)
	assert.Equal(t, "EUR", first.Currency)
	assert.True(t, first.Price.IsZero())

	_, err := f.svc.Create(ctx, burak, CreateRequest{Name: "Other", Phone: " 5551234567 "})
	assert.ErrorIs(t, err, ErrDuplicatePhone)
	assert.Len(t, f.repo.leads, 1)
}

func TestCreateAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, err := f.svc.Create(ctx, ayla, CreateRequest{Name: "A", Phone: "5550000001", AssignedTo: "burak"})
	require.NoError(t, err)
	assert.Equal(t, "ayla", lead.AssignedTo)

	lead, err = f.svc.Create(ctx, admin, CreateRequest{Name: "B", Phone: "5550000002", AssignedTo: "burak"})
	require.NoError(t, err)
	assert.Equal(t, "burak", lead.AssignedTo)

	_, err = f.svc.Create(ctx, access.Identity{}, CreateRequest{Name: "C", Phone: "5550000003"})
	assert.ErrorIs(t, err, access.ErrUnauthenticated)
	_, err = f.svc.Create(ctx, access.Identity{UserID: "x", Role: "doctor"}, CreateRequest{Name: "C", Phone: "5550000003"})
	assert.ErrorIs(t, err, access.ErrInvalidRole)
	_, err = f.svc.Create(ctx, ayla, CreateRequest{Name: "C", Phone: "5550000003", Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStatusToFollowUpSetsTomorrowAndLogsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.create(t, ayla, "Mehmet", "5551234567")

	updated, err := f.svc.UpdateStatus(ctx, ayla, lead.ID, "on_follow_up")
	require.NoError(t, err)
	assert.Equal(t, StatusOnFollowUp, updated.Status)
	assert.Equal(t, "2024-01-02", updated.NextFollowUpDate)
	assert.Equal(t, "2024-01-02", f.repo.leads[lead.ID].NextFollowUpDate)

	require.Len(t, f.rec.changes, 1)
	assert.Equal(t, activity.StatusChange{
		PatientID:   lead.ID,
		PatientName: "Mehmet",
		OldStatus:   "new",
		NewStatus:   "on_follow_up",
	}, f.rec.changes[0])
	assert.Equal(t, "ayla", f.rec.actors[0].UserID)

	_, err = f.svc.UpdateStatus(ctx, ayla, lead.ID, "on_follow_up")
	require.NoError(t, err)
	assert.Len(t, f.rec.changes, 1)
}

func TestFollowUpUsesConfiguredTimezone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.create(t, ayla, "Mehmet", "5551234567")

	// 22:30 UTC on Jan 1 is already Jan 2 in Istanbul.
	f.now = time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC)
	updated, err := f.svc.UpdateStatus(ctx, ayla, lead.ID, "on_follow_up")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", updated.NextFollowUpDate)
}

func TestUpdateRunsThroughSameInterception(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.create(t, ayla, "Mehmet", "5551234567")

	status := "hot"
	name := "Mehmet Yılmaz"
	price := decimal.RequireFromString("2500.50")
	updated, err := f.svc.Update(ctx, ayla, lead.ID, UpdateRequest{Status: &status, Name: &name, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, StatusHot, updated.Status)
	assert.True(t, price.Equal(updated.Price))
	assert.Empty(t, updated.NextFollowUpDate)
	require.Len(t, f.rec.changes, 1)
	assert.Equal(t, "Mehmet Yılmaz", f.rec.changes[0].PatientName)

	notes := "called twice"
	_, err = f.svc.Update(ctx, ayla, lead.ID, UpdateRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Len(t, f.rec.changes, 1)

	bad := "archived"
	_, err = f.svc.Update(ctx, ayla, lead.ID, UpdateRequest{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateOwnershipAndReassignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.create(t, ayla, "Mehmet", "5551234567")
	other := f.create(t, burak, "Zeynep", "5559999999")

	_, err := f.svc.Get(ctx, burak, lead.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)
	_, err = f.svc.UpdateStatus(ctx, burak, lead.ID, "hot")
	assert.ErrorIs(t, err, access.ErrForbidden)

	to := "burak"
	_, err = f.svc.Update(ctx, ayla, lead.ID, UpdateRequest{AssignedTo: &to})
	assert.ErrorIs(t, err, access.ErrForbidden)

	updated, err := f.svc.Update(ctx, admin, lead.ID, UpdateRequest{AssignedTo: &to})
	require.NoError(t, err)
	assert.Equal(t, "burak", updated.AssignedTo)

	phone := other.Phone
	_, err = f.svc.Update(ctx, admin, lead.ID, UpdateRequest{Phone: &phone})
	assert.ErrorIs(t, err, ErrDuplicatePhone)

	_, err = f.svc.Get(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSalespersonOnlySeesOwnLeads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, ayla, "A1", "5550000001")
	f.create(t, ayla, "A2", "5550000002")
	f.create(t, burak, "B1", "5550000003")

	items, total, err := f.svc.List(ctx, ayla, ListFilter{}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, l := range items {
		assert.Equal(t, "ayla", l.AssignedTo)
	}

	_, _, err = f.svc.List(ctx, ayla, ListFilter{AssignedTo: "burak"}, 20, 0)
	assert.ErrorIs(t, err, access.ErrForbidden)

	items, total, err = f.svc.List(ctx, admin, ListFilter{}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	items, _, err = f.svc.List(ctx, admin, ListFilter{AssignedTo: "burak"}, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "B1", items[0].Name)

	found, err := f.svc.Search(ctx, burak, "a1", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestListExcludesTreatmentDoneUnlessFiltered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	done := f.create(t, ayla, "Done", "5550000001")
	f.create(t, ayla, "Open", "5550000002")
	sold := f.create(t, ayla, "Sold", "5550000003")
	arrived := f.create(t, ayla, "Arrived", "5550000004")

	_, err := f.svc.UpdateStatus(ctx, ayla, done.ID, "treatment_done")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, ayla, sold.ID, "sold")
	require.NoError(t, err)
	arrival := "2024-02-01"
	st := "converted"
	_, err = f.svc.Update(ctx, ayla, arrived.ID, UpdateRequest{Status: &st, ArrivalDate: &arrival})
	require.NoError(t, err)

	_, total, err := f.svc.List(ctx, ayla, ListFilter{}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	items, _, err := f.svc.List(ctx, ayla, ListFilter{Status: "treatment_done"}, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, StageAftercare, items[0].Stage())

	items, _, err = f.svc.List(ctx, ayla, ListFilter{Stage: "sold"}, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Sold", items[0].Name)

	items, _, err = f.svc.List(ctx, ayla, ListFilter{Stage: "treatment"}, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, StageTreatment, items[0].Stage())

	items, total, err = f.svc.List(ctx, ayla, ListFilter{Stage: "new", Status: "sold"}, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)

	_, _, err = f.svc.List(ctx, ayla, ListFilter{Stage: "pipeline"}, 20, 0)
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestSearchMatchesFoldedNameAndPhoneDigits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, ayla, "Şükrü Işık", "+90 555 123 45 67")
	f.create(t, ayla, "John Smith", "5559990000")

	found, err := f.svc.Search(ctx, ayla, "sukru", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Şükrü Işık", found[0].Name)

	found, err = f.svc.Search(ctx, ayla, "123-45", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = f.svc.Search(ctx, ayla, "", 1)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestConsultations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.create(t, ayla, "Mehmet", "5551234567")

	_, err := f.svc.UpdateConsultation(ctx, ayla, lead.ID, 5, ConsultationRequest{Date: "2024-01-10"})
	assert.ErrorIs(t, err, ErrInvalidConsultation)
	_, err = f.svc.UpdateConsultation(ctx, ayla, lead.ID, 0, ConsultationRequest{})
	assert.ErrorIs(t, err, ErrInvalidConsultation)

	_, err = f.svc.UpdateConsultation(ctx, ayla, lead.ID, 3, ConsultationRequest{Date: "2024-01-20"})
	require.NoError(t, err)
	_, err = f.svc.UpdateConsultation(ctx, ayla, lead.ID, 1, ConsultationRequest{Date: "2024-01-10", Status: "done"})
	require.NoError(t, err)
	updated, err := f.svc.UpdateConsultation(ctx, ayla, lead.ID, 3, ConsultationRequest{Date: "2024-01-21"})
	require.NoError(t, err)

	require.Len(t, updated.Consultations, 2)
	assert.Equal(t, 1, updated.Consultations[0].Index)
	assert.Equal(t, "2024-01-21", updated.Consultations[1].Date)
	assert.Empty(t, f.rec.changes)
}

func TestFilesAttachDetachAndOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.create(t, ayla, "Mehmet", "5551234567")
	f.blobs.owners["f1"] = "ayla"
	f.blobs.owners["f2"] = "ayla"

	_, err := f.svc.AttachFile(ctx, ayla, lead.ID, AttachFileRequest{FileID: "f1", Name: "xray.png", Type: "image/png"})
	require.NoError(t, err)
	updated, err := f.svc.AttachFile(ctx, ayla, lead.ID, AttachFileRequest{FileID: "f2", Name: "passport.pdf", Type: "application/pdf"})
	require.NoError(t, err)
	require.Len(t, updated.Files, 2)

	_, ref, err := f.svc.FileOwner(ctx, ayla, "f1")
	require.NoError(t, err)
	assert.Equal(t, "xray.png", ref.Name)
	_, _, err = f.svc.FileOwner(ctx, burak, "f1")
	assert.ErrorIs(t, err, access.ErrForbidden)
	_, _, err = f.svc.FileOwner(ctx, admin, "nope")
	assert.ErrorIs(t, err, ErrFileNotFound)

	updated, err = f.svc.DetachFile(ctx, ayla, lead.ID, "f1")
	require.NoError(t, err)
	require.Len(t, updated.Files, 1)
	_, err = f.svc.DetachFile(ctx, ayla, lead.ID, "f1")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestAttachRequiresUploaderAndSingleLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	aylaLead := f.create(t, ayla, "Mehmet", "5551234567")
	burakLead := f.create(t, burak, "Zeynep", "5559876543")
	f.blobs.owners["blob-1"] = "ayla"

	_, err := f.svc.AttachFile(ctx, ayla, aylaLead.ID, AttachFileRequest{FileID: "blob-1", Name: "xray.png", Type: "image/png"})
	require.NoError(t, err)

	_, err = f.svc.AttachFile(ctx, burak, burakLead.ID, AttachFileRequest{FileID: "blob-1", Name: "mine.png", Type: "image/png"})
	assert.ErrorIs(t, err, access.ErrForbidden)
	_, err = f.svc.AttachFile(ctx, admin, burakLead.ID, AttachFileRequest{FileID: "blob-1", Name: "mine.png", Type: "image/png"})
	assert.ErrorIs(t, err, ErrFileAttached)
	_, err = f.svc.AttachFile(ctx, burak, burakLead.ID, AttachFileRequest{FileID: "missing", Name: "x", Type: "image/png"})
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = f.svc.DetachFile(ctx, burak, burakLead.ID, "blob-1")
	assert.ErrorIs(t, err, ErrFileNotFound)
	failed := f.svc.RemoveBlobs(ctx, []string{"blob-1"})
	assert.Empty(t, failed)
	assert.Empty(t, f.blobs.deleted)

	again, err := f.svc.AttachFile(ctx, ayla, aylaLead.ID, AttachFileRequest{FileID: "blob-1", Name: "renamed.png", Type: "image/png"})
	require.NoError(t, err)
	require.Len(t, again.Files, 1)
	assert.Equal(t, "renamed.png", again.Files[0].Name)

	_, err = f.svc.DetachFile(ctx, ayla, aylaLead.ID, "blob-1")
	require.NoError(t, err)
	assert.Empty(t, f.svc.RemoveBlobs(ctx, []string{"blob-1"}))
	assert.Equal(t, []string{"blob-1"}, f.blobs.deleted)
}

func TestDeleteIsAdminOnlyAndCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := &purger{}
	f.svc.RegisterPurger(p)

	lead := f.create(t, ayla, "Mehmet", "5551234567")
	f.blobs.owners["f1"] = "ayla"
	_, err := f.svc.AttachFile(ctx, ayla, lead.ID, AttachFileRequest{FileID: "f1", Name: "a", Type: "image/png"})
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, ayla, lead.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)

	deleted, err := f.svc.Delete(ctx, admin, lead.ID)
	require.NoError(t, err)
	assert.Empty(t, f.repo.leads)
	assert.Equal(t, []string{lead.ID}, p.purged)
	require.Len(t, deleted.Files, 1)

	f.blobs.fail["f2"] = true
	failed := f.svc.RemoveBlobs(ctx, []string{"f1", "f2"})
	assert.Equal(t, []string{"f1"}, f.blobs.deleted)
	assert.Contains(t, failed, "f2")

	_, err = f.svc.Delete(ctx, admin, lead.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePropagatesPurgeFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.RegisterPurger(&purger{err: errors.New("write conflict")})
	lead := f.create(t, ayla, "Mehmet", "5551234567")

	_, err := f.svc.Delete(context.Background(), admin, lead.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purge dependents")
}

func TestImportDefaultsAndDedupe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, dup, err := f.svc.Import(ctx, ImportRequest{Phone: " 5551234567 "})
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, "Unknown", lead.Name)
	assert.Equal(t, StatusNewLead, lead.Status)
	assert.Equal(t, "website", lead.Source)
	assert.Equal(t, "ayla", lead.AssignedTo)
	assert.Equal(t, "EUR", lead.Currency)

	again, dup, err := f.svc.Import(ctx, ImportRequest{Name: "Someone", Phone: "5551234567"})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, lead.ID, again.ID)
	assert.Len(t, f.repo.leads, 1)
}

func TestDueFollowUpsAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, ayla, "A", "5550000001")
	b := f.create(t, ayla, "B", "5550000002")
	f.create(t, burak, "C", "5550000003")

	_, err := f.svc.UpdateStatus(ctx, ayla, a.ID, "on_follow_up")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, ayla, b.ID, "on_follow_up")
	require.NoError(t, err)
	later := "2024-03-01"
	_, err = f.svc.Update(ctx, ayla, b.ID, UpdateRequest{NextFollowUpDate: &later})
	require.NoError(t, err)

	due, err := f.svc.DueFollowUps(ctx, ayla)
	require.NoError(t, err)
	assert.Empty(t, due)

	f.now = f.now.AddDate(0, 0, 1)
	due, err = f.svc.DueFollowUps(ctx, ayla)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, a.ID, due[0].ID)

	counts, err := f.svc.StatusCounts(ctx, ayla)
	require.NoError(t, err)
	require.Len(t, counts, len(Statuses))
	byStatus := map[Status]int64{}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	assert.Equal(t, int64(2), byStatus[StatusOnFollowUp])
	assert.Equal(t, int64(0), byStatus[StatusNew])

	counts, err = f.svc.StatusCounts(ctx, admin)
	require.NoError(t, err)
	byStatus = map[Status]int64{}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	assert.Equal(t, int64(1), byStatus[StatusNew])
}

func TestReassign(t *testing.T) {
	f := newFixture(t)
	lead := f.create(t, ayla, "Mehmet", "5551234567")

	require.NoError(t, f.svc.Reassign(context.Background(), lead.ID, "burak"))
	assert.Equal(t, "burak", f.repo.leads[lead.ID].AssignedTo)
	assert.ErrorIs(t, f.svc.Reassign(context.Background(), "missing", "burak"), ErrNotFound)
}

func TestParseStatusCoversEveryStatus(t *testing.T) {
	for _, st := range Statuses {
		parsed, err := ParseStatus(" " + string(st) + " ")
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}
	_, err := ParseStatus("")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
