package activity

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/schedule"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrInvalidType = errors.New("invalid activity type")

type Service struct {
	repo     Repository
	location *time.Location
	now      func() time.Time
}

func NewService(repo Repository, location *time.Location) *Service {
	return &Service{
		repo:     repo,
		location: location,
		now:      time.Now,
	}
}

// Record appends entry, stamping id and timestamp when missing.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if !entry.Type.Valid() {
		return ErrInvalidType
	}
	if entry.ID == "" {
		entry.ID = primitive.NewObjectID().Hex()
	}
	if entry.Timestamp == "" {
		entry.Timestamp = formatTimestamp(s.now())
	}
	return s.repo.Insert(ctx, entry)
}

func (s *Service) RecordLogin(ctx context.Context, actor access.Identity) error {
	return s.Record(ctx, Entry{
		Type:     TypeLogin,
		UserID:   actor.UserID,
		UserName: actor.Name,
		Details:  map[string]interface{}{"role": string(actor.Role)},
	})
}

func (s *Service) RecordTabVisit(ctx context.Context, actor access.Identity, tab string) error {
	if err := access.Authorize(&actor); err != nil {
		return err
	}
	return s.Record(ctx, Entry{
		Type:     TypeTabVisit,
		UserID:   actor.UserID,
		UserName: actor.Name,
		Details:  map[string]interface{}{"tab": strings.TrimSpace(tab)},
	})
}

func (s *Service) RecordStatusChange(ctx context.Context, actor access.Identity, change StatusChange) error {
	return s.Record(ctx, Entry{
		Type:     TypeStatusUpdate,
		UserID:   actor.UserID,
		UserName: actor.Name,
		Details: map[string]interface{}{
			"patientId":   change.PatientID,
			"patientName": change.PatientName,
			"oldStatus":   change.OldStatus,
			"newStatus":   change.NewStatus,
		},
	})
}

func (s *Service) List(ctx context.Context, actor access.Identity, filter ListFilter, limit, offset int64) ([]Entry, int64, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, 0, err
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, ErrInvalidType
	}
	if err := schedule.ValidateRange(filter.From, filter.To, s.location); err != nil {
		return nil, 0, err
	}

	query := Query{Type: filter.Type, UserID: strings.TrimSpace(filter.UserID)}
	if filter.From != "" {
		from, _ := schedule.ParseDate(filter.From, s.location)
		query.Since = formatTimestamp(from)
	}
	if filter.To != "" {
		to, _ := schedule.ParseDate(filter.To, s.location)
		query.Before = formatTimestamp(to.AddDate(0, 0, 1))
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

// formatTimestamp renders UTC RFC3339 with fixed millisecond precision so
// stored timestamps sort lexically in time order.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
