package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrNotFound = errors.New("notification not found")

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

// Notify stores an unread notification for userID.
func (s *Service) Notify(ctx context.Context, userID string, kind Type, transferID, message string) (Notification, error) {
	n := Notification{
		ID:         primitive.NewObjectID().Hex(),
		TransferID: transferID,
		UserID:     userID,
		Type:       kind,
		Message:    strings.TrimSpace(message),
		CreatedAt:  s.now().In(s.location),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, actor access.Identity, unreadOnly bool, limit, offset int64) ([]Notification, int64, error) {
	if err := access.Authorize(&actor); err != nil {
		return nil, 0, err
	}
	items, err := s.repo.ListByUser(ctx, actor.UserID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByUser(ctx, actor.UserID, unreadOnly)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) UnreadCount(ctx context.Context, actor access.Identity) (int64, error) {
	if err := access.Authorize(&actor); err != nil {
		return 0, err
	}
	return s.repo.CountByUser(ctx, actor.UserID, true)
}

// MarkRead flags one notification as read. Only its recipient may do so,
// admins included.
func (s *Service) MarkRead(ctx context.Context, actor access.Identity, id string) (Notification, error) {
	if err := access.Authorize(&actor); err != nil {
		return Notification{}, err
	}
	id = strings.TrimSpace(id)
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	if n.UserID != actor.UserID {
		return Notification{}, access.ErrForbidden
	}
	if n.IsRead {
		return n, nil
	}
	updated, err := s.repo.MarkRead(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	return updated, nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor access.Identity) (int64, error) {
	if err := access.Authorize(&actor); err != nil {
		return 0, err
	}
	return s.repo.MarkAllRead(ctx, actor.UserID)
}
