package leads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/activity"
	"clinic-crm/internal/db"
	"clinic-crm/internal/schedule"
	"clinic-crm/internal/utils"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound            = errors.New("lead not found")
	ErrDuplicatePhone      = errors.New("a lead with this phone number already exists")
	ErrInvalidConsultation = errors.New("consultation index must be between 1 and 4")
	ErrFileNotFound        = errors.New("file not found")
	ErrFileAttached        = errors.New("file is attached to another lead")
	ErrFileNotYours        = fmt.Errorf("%w: file was uploaded by another user", access.ErrForbidden)
)

const (
	importDefaultName   = "Unknown"
	importDefaultSource = "website"
)

// ActivityRecorder receives one call per effective status change.
type ActivityRecorder interface {
	RecordStatusChange(ctx context.Context, actor access.Identity, change activity.StatusChange) error
}

// Purger removes records that reference a patient when the patient is deleted.
type Purger interface {
	PurgePatient(ctx context.Context, patientID string) error
}

// BlobStore is the stored side of an attachment. UploadedBy returns an error
// wrapping ErrFileNotFound when the blob does not exist.
type BlobStore interface {
	UploadedBy(ctx context.Context, fileID string) (string, error)
	Delete(ctx context.Context, fileID string) error
}

type Options struct {
	Location        *time.Location
	DefaultCurrency string
	ImportAssignee  string
}

type Service struct {
	repo     Repository
	tx       db.TxRunner
	activity ActivityRecorder
	blobs    BlobStore
	purgers  []Purger
	opts     Options
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, recorder ActivityRecorder, blobs BlobStore, opts Options) *Service {
	if tx == nil {
		tx = db.DirectRunner{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	opts.DefaultCurrency = strings.ToUpper(strings.TrimSpace(opts.DefaultCurrency))
	return &Service{
		repo:     repo,
		tx:       tx,
		activity: recorder,
		blobs:    blobs,
		opts:     opts,
		now:      time.Now,
	}
}

// RegisterPurger adds a dependent store cleaned up inside the delete
// transaction.
func (s *Service) RegisterPurger(p Purger) {
	s.purgers = append(s.purgers, p)
}

func (s *Service) Create(ctx context.Context, actor access.Identity, req CreateRequest) (Lead, error) {
	if err := access.Authorize(&actor); err != nil {
		return Lead{}, err
	}

	status := StatusNew
	if strings.TrimSpace(req.Status) != "" {
		parsed, err := ParseStatus(req.Status)
		if err != nil {
			return Lead{}, err
		}
		status = parsed
	}

	assignee := actor.UserID
	if actor.IsAdmin() && strings.TrimSpace(req.AssignedTo) != "" {
		assignee = strings.TrimSpace(req.AssignedTo)
	}

	phone := strings.TrimSpace(req.Phone)
	if err := s.ensureUniquePhone(ctx, phone, ""); err != nil {
		return Lead{}, err
	}

	now := s.now().In(s.opts.Location)
	lead := Lead{
		ID:          primitive.NewObjectID().Hex(),
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       phone,
		Country:     strings.TrimSpace(req.Country),
		Source:      strings.TrimSpace(req.Source),
		Treatment:   strings.TrimSpace(req.Treatment),
		Notes:       strings.TrimSpace(req.Notes),
		Status:      status,
		AssignedTo:  assignee,
		Price:       decimalOrZero(req.Price),
		Deposit:     decimalOrZero(req.Deposit),
		Currency:    s.currency(req.Currency),
		SaleDate:    strings.TrimSpace(req.SaleDate),
		ArrivalDate: strings.TrimSpace(req.ArrivalDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if lead.Status == StatusOnFollowUp {
		lead.NextFollowUpDate = schedule.Tomorrow(now, s.opts.Location)
	}

	if err := s.repo.Create(ctx, lead); err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// Import stores a lead from the external webhook. A lead whose phone already
// exists is returned unchanged with duplicate set.
func (s *Service) Import(ctx context.Context, req ImportRequest) (Lead, bool, error) {
	phone := strings.TrimSpace(req.Phone)
	if phone != "" {
		existing, err := s.repo.FindByPhone(ctx, phone)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return Lead{}, false, err
		}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = importDefaultName
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = importDefaultSource
	}

	now := s.now().In(s.opts.Location)
	lead := Lead{
		ID:         primitive.NewObjectID().Hex(),
		Name:       name,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      phone,
		Country:    strings.TrimSpace(req.Country),
		Source:     source,
		Treatment:  strings.TrimSpace(req.Treatment),
		Notes:      strings.TrimSpace(req.Notes),
		Status:     StatusNewLead,
		AssignedTo: s.opts.ImportAssignee,
		Price:      decimal.Zero,
		Deposit:    decimal.Zero,
		Currency:   s.currency(req.Currency),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, lead); err != nil {
		return Lead{}, false, err
	}
	return lead, false, nil
}

func (s *Service) Get(ctx context.Context, actor access.Identity, id string) (Lead, error) {
	return s.load(ctx, actor, id)
}

func (s *Service) Update(ctx context.Context, actor access.Identity, id string, req UpdateRequest) (Lead, error) {
	before, err := s.load(ctx, actor, id)
	if err != nil {
		return Lead{}, err
	}
	after := before

	if req.Name != nil {
		after.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		after.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone != before.Phone {
			if err := s.ensureUniquePhone(ctx, phone, before.ID); err != nil {
				return Lead{}, err
			}
		}
		after.Phone = phone
	}
	if req.Country != nil {
		after.Country = strings.TrimSpace(*req.Country)
	}
	if req.Source != nil {
		after.Source = strings.TrimSpace(*req.Source)
	}
	if req.Treatment != nil {
		after.Treatment = strings.TrimSpace(*req.Treatment)
	}
	if req.Notes != nil {
		after.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Status != nil {
		status, err := ParseStatus(*req.Status)
		if err != nil {
			return Lead{}, err
		}
		after.Status = status
	}
	if req.AssignedTo != nil {
		assignee := strings.TrimSpace(*req.AssignedTo)
		if assignee != before.AssignedTo {
			if !actor.IsAdmin() {
				return Lead{}, access.ErrForbidden
			}
			after.AssignedTo = assignee
		}
	}
	if req.Price != nil {
		after.Price = *req.Price
	}
	if req.Deposit != nil {
		after.Deposit = *req.Deposit
	}
	if req.Currency != nil {
		after.Currency = s.currency(*req.Currency)
	}
	if req.SaleDate != nil {
		after.SaleDate = strings.TrimSpace(*req.SaleDate)
	}
	if req.ArrivalDate != nil {
		after.ArrivalDate = strings.TrimSpace(*req.ArrivalDate)
	}
	if req.NextFollowUpDate != nil {
		after.NextFollowUpDate = strings.TrimSpace(*req.NextFollowUpDate)
	}

	return s.commit(ctx, actor, before, after)
}

func (s *Service) UpdateStatus(ctx context.Context, actor access.Identity, id, status string) (Lead, error) {
	parsed, err := ParseStatus(status)
	if err != nil {
		return Lead{}, err
	}
	before, err := s.load(ctx, actor, id)
	if err != nil {
		return Lead{}, err
	}
	after := before
	after.Status = parsed
	return s.commit(ctx, actor, before, after)
}

// UpdateConsultation sets consultation index (1-based) on the lead.
func (s *Service) UpdateConsultation(ctx context.Context, actor access.Identity, id string, index int, req ConsultationRequest) (Lead, error) {
	if index < 1 || index > MaxConsultations {
		return Lead{}, ErrInvalidConsultation
	}
	before, err := s.load(ctx, actor, id)
	if err != nil {
		return Lead{}, err
	}
	after := before

	entry := Consultation{
		Index:  index,
		Date:   strings.TrimSpace(req.Date),
		Status: strings.TrimSpace(req.Status),
		Notes:  strings.TrimSpace(req.Notes),
	}
	consultations := make([]Consultation, 0, MaxConsultations)
	for _, c := range before.Consultations {
		if c.Index != index {
			consultations = append(consultations, c)
		}
	}
	consultations = append(consultations, entry)
	sort.Slice(consultations, func(i, j int) bool { return consultations[i].Index < consultations[j].Index })
	after.Consultations = consultations

	return s.commit(ctx, actor, before, after)
}

// AttachFile references an uploaded blob from the lead. Only the uploader
// or an admin may attach a blob, and a blob belongs to at most one lead.
func (s *Service) AttachFile(ctx context.Context, actor access.Identity, id string, req AttachFileRequest) (Lead, error) {
	before, err := s.load(ctx, actor, id)
	if err != nil {
		return Lead{}, err
	}
	after := before

	ref := FileRef{
		FileID:     strings.TrimSpace(req.FileID),
		Name:       strings.TrimSpace(req.Name),
		Type:       strings.TrimSpace(req.Type),
		UploadedAt: s.now().In(s.opts.Location),
	}
	if err := s.checkAttachable(ctx, actor, before.ID, ref.FileID); err != nil {
		return Lead{}, err
	}
	files := make([]FileRef, 0, len(before.Files)+1)
	for _, f := range before.Files {
		if f.FileID != ref.FileID {
			files = append(files, f)
		}
	}
	after.Files = append(files, ref)

	lead, err := s.commit(ctx, actor, before, after)
	if mongo.IsDuplicateKeyError(err) {
		return Lead{}, ErrFileAttached
	}
	return lead, err
}

func (s *Service) checkAttachable(ctx context.Context, actor access.Identity, leadID, fileID string) error {
	if s.blobs != nil {
		uploader, err := s.blobs.UploadedBy(ctx, fileID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && uploader != actor.UserID {
			return ErrFileNotYours
		}
	}
	holder, err := s.repo.FindByFile(ctx, fileID)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil
	case err != nil:
		return err
	case holder.ID != leadID:
		return ErrFileAttached
	}
	return nil
}

// DetachFile drops the file reference. The blob itself is left to RemoveBlobs.
func (s *Service) DetachFile(ctx context.Context, actor access.Identity, id, fileID string) (Lead, error) {
	before, err := s.load(ctx, actor, id)
	if err != nil {
		return Lead{}, err
	}
	after := before

	fileID = strings.TrimSpace(fileID)
	files := make([]FileRef, 0, len(before.Files))
	for _, f := range before.Files {
		if f.FileID != fileID {
			files = append(files, f)
		}
	}
	if len(files) == len(before.Files) {
		return Lead{}, ErrFileNotFound
	}
	after.Files = files

	return s.commit(ctx, actor, before, after)
}

// FileOwner returns the reference of an attached file if the caller may
// access the lead holding it.
func (s *Service) FileOwner(ctx context.Context, actor access.Identity, fileID string) (Lead, FileRef, error) {
	if err := access.Authorize(&actor); err != nil {
		return Lead{}, FileRef{}, err
	}
	fileID = strings.TrimSpace(fileID)
	lead, err := s.repo.FindByFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Lead{}, FileRef{}, ErrFileNotFound
		}
		return Lead{}, FileRef{}, err
	}
	if err := access.RequireOwner(actor, lead.AssignedTo); err != nil {
		return Lead{}, FileRef{}, err
	}
	for _, f := range lead.Files {
		if f.FileID == fileID {
			return lead, f, nil
		}
	}
	return Lead{}, FileRef{}, ErrFileNotFound
}

func (s *Service) List(ctx context.Context, actor access.Identity, filter ListFilter, limit, offset int64) ([]Lead, int64, error) {
	query, ok, err := s.resolveFilter(actor, filter)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return []Lead{}, 0, nil
	}

	items, err := s.repo.List(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Search scans the caller's visible leads and matches name, email and phone
// in memory.
func (s *Service) Search(ctx context.Context, actor access.Identity, q string, limit int) ([]Lead, error) {
	owner, err := access.OwnerScope(actor)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.List(ctx, Query{Owner: owner}, 0, 0)
	if err != nil {
		return nil, err
	}

	out := make([]Lead, 0)
	for _, lead := range all {
		if !utils.MatchesQuery(q, lead.Name, lead.Email, lead.Phone) {
			continue
		}
		out = append(out, lead)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// DueFollowUps lists on_follow_up leads whose follow-up date is today or
// earlier.
func (s *Service) DueFollowUps(ctx context.Context, actor access.Identity) ([]Lead, error) {
	owner, err := access.OwnerScope(actor)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, Query{
		Owner:      owner,
		Statuses:   []Status{StatusOnFollowUp},
		FollowUpBy: schedule.Today(s.now(), s.opts.Location),
	}, 0, 0)
}

func (s *Service) StatusCounts(ctx context.Context, actor access.Identity) ([]StatusCount, error) {
	owner, err := access.OwnerScope(actor)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, Query{Owner: owner})
	if err != nil {
		return nil, err
	}
	out := make([]StatusCount, 0, len(Statuses))
	for _, st := range Statuses {
		stage, _ := st.stage()
		out = append(out, StatusCount{Status: st, Stage: stage, Count: counts[st]})
	}
	return out, nil
}

// Delete removes the lead and every record referencing it in one
// transaction. Attached blobs are not touched; pass the returned lead's files
// to RemoveBlobs.
func (s *Service) Delete(ctx context.Context, actor access.Identity, id string) (Lead, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return Lead{}, err
	}
	lead, err := s.load(ctx, actor, id)
	if err != nil {
		return Lead{}, err
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, lead.ID); err != nil {
			return err
		}
		for _, p := range s.purgers {
			if err := p.PurgePatient(ctx, lead.ID); err != nil {
				return fmt.Errorf("purge dependents: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return lead, nil
}

// RemoveBlobs deletes stored files no lead references any more and returns
// the ones that failed. Still referenced files are kept.
func (s *Service) RemoveBlobs(ctx context.Context, fileIDs []string) map[string]error {
	failed := map[string]error{}
	if s.blobs == nil {
		return failed
	}
	for _, id := range fileIDs {
		_, err := s.repo.FindByFile(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			failed[id] = err
			continue
		}
		if err := s.blobs.Delete(ctx, id); err != nil {
			failed[id] = err
		}
	}
	return failed
}

// Reassign moves a lead to a new owner. Callers check permissions.
func (s *Service) Reassign(ctx context.Context, id, assignee string) error {
	err := s.repo.SetAssignee(ctx, strings.TrimSpace(id), assignee, s.now().In(s.opts.Location))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// Lookup fetches a lead without an ownership check.
func (s *Service) Lookup(ctx context.Context, id string) (Lead, error) {
	lead, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return lead, nil
}

func (s *Service) load(ctx context.Context, actor access.Identity, id string) (Lead, error) {
	if err := access.Authorize(&actor); err != nil {
		return Lead{}, err
	}
	lead, err := s.Lookup(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	if err := access.RequireOwner(actor, lead.AssignedTo); err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// commit persists after and emits the status change derived from before, in
// one transaction.
func (s *Service) commit(ctx context.Context, actor access.Identity, before, after Lead) (Lead, error) {
	now := s.now().In(s.opts.Location)
	change := s.applyChange(before, &after, now)
	after.UpdatedAt = now

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Replace(ctx, after); err != nil {
			return err
		}
		if change != nil && s.activity != nil {
			return s.activity.RecordStatusChange(ctx, actor, *change)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return after, nil
}

// applyChange derives the side effects of a status transition. It returns
// nil when the status did not change.
func (s *Service) applyChange(before Lead, after *Lead, now time.Time) *activity.StatusChange {
	if after.Status == before.Status {
		return nil
	}
	if after.Status == StatusOnFollowUp {
		after.NextFollowUpDate = schedule.Tomorrow(now, s.opts.Location)
	}
	return &activity.StatusChange{
		PatientID:   after.ID,
		PatientName: after.Name,
		OldStatus:   string(before.Status),
		NewStatus:   string(after.Status),
	}
}

// resolveFilter turns a list filter into a store query. ok is false when the
// filter can match nothing.
func (s *Service) resolveFilter(actor access.Identity, filter ListFilter) (query Query, ok bool, err error) {
	owner, err := access.OwnerScope(actor)
	if err != nil {
		return Query{}, false, err
	}
	query = Query{Owner: owner}

	if assignee := strings.TrimSpace(filter.AssignedTo); assignee != "" {
		if !actor.IsAdmin() && assignee != actor.UserID {
			return Query{}, false, access.ErrForbidden
		}
		query.Owner = assignee
	}

	var status Status
	if strings.TrimSpace(filter.Status) != "" {
		if status, err = ParseStatus(filter.Status); err != nil {
			return Query{}, false, err
		}
		query.Statuses = []Status{status}
	}

	if strings.TrimSpace(filter.Stage) != "" {
		stage, err := ParseStage(filter.Stage)
		if err != nil {
			return Query{}, false, err
		}
		inStage := statusesIn(stage)
		if status != "" {
			if !containsStatus(inStage, status) {
				return Query{}, false, nil
			}
			inStage = []Status{status}
		}
		query.Statuses = inStage
		switch stage {
		case StageSold:
			query.Arrived = boolPtr(false)
		case StageTreatment:
			query.Arrived = boolPtr(true)
		}
	}

	if !containsStatus(query.Statuses, StatusTreatmentDone) {
		query.Exclude = []Status{StatusTreatmentDone}
	}
	return query, true, nil
}

func (s *Service) ensureUniquePhone(ctx context.Context, phone, selfID string) error {
	if phone == "" {
		return nil
	}
	existing, err := s.repo.FindByPhone(ctx, phone)
	if err == nil {
		if existing.ID != selfID {
			return ErrDuplicatePhone
		}
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return err
}

func (s *Service) currency(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return s.opts.DefaultCurrency
	}
	return value
}

func containsStatus(list []Status, st Status) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func boolPtr(b bool) *bool {
	return &b
}
