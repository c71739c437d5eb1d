package calendar

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/schedule"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound        = errors.New("event not found")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrMissingDate     = errors.New("date or from/to is required")
	ErrEmptyTitle      = errors.New("title is required")
)

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

func (s *Service) Create(ctx context.Context, actor access.Identity, req CreateRequest) (Event, error) {
	if err := access.Authorize(&actor); err != nil {
		return Event{}, err
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return Event{}, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Event{}, ErrEmptyTitle
	}
	if _, err := schedule.ParseDate(req.Date, s.location); err != nil {
		return Event{}, err
	}

	now := s.now().In(s.location)
	e := Event{
		ID:        primitive.NewObjectID().Hex(),
		OwnerID:   actor.UserID,
		Title:     title,
		Date:      req.Date,
		Time:      strings.TrimSpace(req.Time),
		Priority:  priority,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// List returns the caller's events for one day or a date range. Admins may
// look at another owner's calendar through filter.OwnerID.
func (s *Service) List(ctx context.Context, actor access.Identity, filter ListFilter) ([]Event, error) {
	if err := access.Authorize(&actor); err != nil {
		return nil, err
	}
	owner := actor.UserID
	if target := strings.TrimSpace(filter.OwnerID); target != "" && target != owner {
		if !access.CanAccess(actor, target) {
			return nil, access.ErrForbidden
		}
		owner = target
	}

	q := Query{OwnerID: owner}
	switch {
	case filter.Date != "":
		if _, err := schedule.ParseDate(filter.Date, s.location); err != nil {
			return nil, err
		}
		q.From, q.To = filter.Date, filter.Date
	case filter.From != "" || filter.To != "":
		if err := schedule.ValidateRange(filter.From, filter.To, s.location); err != nil {
			return nil, err
		}
		q.From, q.To = filter.From, filter.To
	default:
		return nil, ErrMissingDate
	}
	return s.repo.List(ctx, q)
}

func (s *Service) Get(ctx context.Context, actor access.Identity, id string) (Event, error) {
	e, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}
	if err := access.RequireOwner(actor, e.OwnerID); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (s *Service) Update(ctx context.Context, actor access.Identity, id string, req UpdateRequest) (Event, error) {
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return Event{}, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return Event{}, ErrEmptyTitle
		}
		e.Title = title
	}
	if req.Date != nil {
		if _, err := schedule.ParseDate(*req.Date, s.location); err != nil {
			return Event{}, err
		}
		e.Date = *req.Date
	}
	if req.Time != nil {
		e.Time = strings.TrimSpace(*req.Time)
	}
	if req.Priority != nil {
		priority, err := parsePriority(*req.Priority)
		if err != nil {
			return Event{}, err
		}
		e.Priority = priority
	}
	if req.Completed != nil {
		e.Completed = *req.Completed
	}
	if req.Notes != nil {
		e.Notes = strings.TrimSpace(*req.Notes)
	}
	return s.save(ctx, e)
}

// ToggleComplete flips the completion flag.
func (s *Service) ToggleComplete(ctx context.Context, actor access.Identity, id string) (Event, error) {
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return Event{}, err
	}
	e.Completed = !e.Completed
	return s.save(ctx, e)
}

func (s *Service) Delete(ctx context.Context, actor access.Identity, id string) error {
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, e.ID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) save(ctx context.Context, e Event) (Event, error) {
	e.UpdatedAt = s.now().In(s.location)
	if err := s.repo.Replace(ctx, e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}
	return e, nil
}

func parsePriority(raw string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", ErrInvalidPriority
	}
}
