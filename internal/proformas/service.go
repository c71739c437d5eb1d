package proformas

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/leads"
	"clinic-crm/internal/schedule"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound       = errors.New("proforma not found")
	ErrNegativeAmount = errors.New("amounts must not be negative")
)

type Patients interface {
	Lookup(ctx context.Context, id string) (leads.Lead, error)
}

type Service struct {
	repo            Repository
	patients        Patients
	defaultCurrency string
	location        *time.Location
	now             func() time.Time
}

func NewService(repo Repository, patients Patients, defaultCurrency string, location *time.Location) *Service {
	return &Service{
		repo:            repo,
		patients:        patients,
		defaultCurrency: defaultCurrency,
		location:        location,
		now:             time.Now,
	}
}

// Create issues the next numbered proforma of the day for a patient the
// caller owns. Deposit and currency default to the patient's.
func (s *Service) Create(ctx context.Context, actor access.Identity, req CreateRequest) (Invoice, error) {
	lead, err := s.patient(ctx, actor, req.PatientID)
	if err != nil {
		return Invoice{}, err
	}
	items, err := buildItems(req.Items)
	if err != nil {
		return Invoice{}, err
	}

	deposit := lead.Deposit
	if req.Deposit != nil {
		deposit = *req.Deposit
	}
	if deposit.IsNegative() {
		return Invoice{}, ErrNegativeAmount
	}
	currency := firstNonEmpty(req.Currency, lead.Currency, s.defaultCurrency)

	now := s.now().In(s.location)
	issueDate := req.IssueDate
	if issueDate == "" {
		issueDate = schedule.Today(now, s.location)
	}

	start, end := schedule.DayBounds(now, s.location)
	count, err := s.repo.CountCreatedBetween(ctx, start, end)
	if err != nil {
		return Invoice{}, err
	}

	total, remaining := Totals(items, deposit)
	inv := Invoice{
		ID:          primitive.NewObjectID().Hex(),
		PatientID:   lead.ID,
		PatientName: lead.Name,
		CreatedBy:   actor.UserID,
		Number:      Number(schedule.Compact(now, s.location), count+1),
		Items:       items,
		Deposit:     deposit,
		Total:       total,
		Remaining:   remaining,
		Currency:    currency,
		Notes:       strings.TrimSpace(req.Notes),
		IssueDate:   issueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (s *Service) Get(ctx context.Context, actor access.Identity, id string) (Invoice, error) {
	if err := access.Authorize(&actor); err != nil {
		return Invoice{}, err
	}
	inv, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	if _, err := s.patient(ctx, actor, inv.PatientID); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (s *Service) ListByPatient(ctx context.Context, actor access.Identity, patientID string) ([]Invoice, error) {
	lead, err := s.patient(ctx, actor, patientID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByPatient(ctx, lead.ID)
}

// Update keeps the number and recomputes the totals.
func (s *Service) Update(ctx context.Context, actor access.Identity, id string, req UpdateRequest) (Invoice, error) {
	inv, err := s.Get(ctx, actor, id)
	if err != nil {
		return Invoice{}, err
	}

	if req.Items != nil {
		items, err := buildItems(*req.Items)
		if err != nil {
			return Invoice{}, err
		}
		inv.Items = items
	}
	if req.Deposit != nil {
		if req.Deposit.IsNegative() {
			return Invoice{}, ErrNegativeAmount
		}
		inv.Deposit = *req.Deposit
	}
	if req.Currency != nil && *req.Currency != "" {
		inv.Currency = *req.Currency
	}
	if req.Notes != nil {
		inv.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.IssueDate != nil && *req.IssueDate != "" {
		inv.IssueDate = *req.IssueDate
	}

	inv.Total, inv.Remaining = Totals(inv.Items, inv.Deposit)
	inv.UpdatedAt = s.now().In(s.location)
	if err := s.repo.Replace(ctx, inv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (s *Service) Delete(ctx context.Context, actor access.Identity, id string) error {
	inv, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, inv.ID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// PurgePatient drops every proforma of a deleted patient.
func (s *Service) PurgePatient(ctx context.Context, patientID string) error {
	_, err := s.repo.DeleteByPatient(ctx, patientID)
	return err
}

func (s *Service) patient(ctx context.Context, actor access.Identity, patientID string) (leads.Lead, error) {
	if err := access.Authorize(&actor); err != nil {
		return leads.Lead{}, err
	}
	lead, err := s.patients.Lookup(ctx, patientID)
	if err != nil {
		return leads.Lead{}, err
	}
	if err := access.RequireOwner(actor, lead.AssignedTo); err != nil {
		return leads.Lead{}, err
	}
	return lead, nil
}

func buildItems(reqs []ItemRequest) ([]Item, error) {
	items := make([]Item, 0, len(reqs))
	for _, r := range reqs {
		if r.Amount.IsNegative() {
			return nil, ErrNegativeAmount
		}
		id := strings.TrimSpace(r.ID)
		if id == "" {
			id = uuid.NewString()
		}
		items = append(items, Item{
			ID:          id,
			Description: strings.TrimSpace(r.Description),
			Amount:      r.Amount,
		})
	}
	return items, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
