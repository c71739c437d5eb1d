package transfers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/db"
	"clinic-crm/internal/leads"
	"clinic-crm/internal/mailer"
	"clinic-crm/internal/notifications"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound         = errors.New("transfer not found")
	ErrNotPending       = errors.New("transfer is not pending")
	ErrDuplicatePending = errors.New("an identical transfer request is already pending")
	ErrInvalidType      = errors.New("invalid transfer type")
	ErrInvalidStatus    = errors.New("invalid transfer status")
	ErrInvalidTarget    = errors.New("invalid transfer target")
	ErrNotOwner         = fmt.Errorf("%w: only the owner can give a patient", access.ErrForbidden)
	ErrAlreadyOwner     = fmt.Errorf("%w: the patient is already yours", access.ErrForbidden)
)

// Leads is the part of the lead store a transfer reads and mutates.
type Leads interface {
	Lookup(ctx context.Context, id string) (leads.Lead, error)
	Reassign(ctx context.Context, id, assignee string) error
}

type Notifier interface {
	Notify(ctx context.Context, userID string, kind notifications.Type, transferID, message string) (notifications.Notification, error)
}

// Directory resolves user ids for target validation and email addresses.
type Directory interface {
	Resolve(ctx context.Context, userID string) (access.Identity, error)
}

type Mailer interface {
	SendTransferRequested(ctx context.Context, to mailer.Recipient, msg mailer.TransferMessage) (string, error)
	SendTransferDecided(ctx context.Context, to mailer.Recipient, msg mailer.TransferMessage) (string, error)
}

type Service struct {
	repo        Repository
	tx          db.TxRunner
	leads       Leads
	notifier    Notifier
	directory   Directory
	mailer      Mailer
	frontendURL string
	location    *time.Location
	now         func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, leadStore Leads, notifier Notifier, directory Directory, location *time.Location) *Service {
	if tx == nil {
		tx = db.DirectRunner{}
	}
	return &Service{
		repo:      repo,
		tx:        tx,
		leads:     leadStore,
		notifier:  notifier,
		directory: directory,
		location:  location,
		now:       time.Now,
	}
}

// WithMailer enables transfer emails. Links in them point at frontendURL.
func (s *Service) WithMailer(m Mailer, frontendURL string) *Service {
	s.mailer = m
	s.frontendURL = strings.TrimRight(frontendURL, "/")
	return s
}

func (s *Service) Create(ctx context.Context, actor access.Identity, req CreateRequest) (Transfer, error) {
	if err := access.Authorize(&actor); err != nil {
		return Transfer{}, err
	}
	kind := Type(strings.ToLower(strings.TrimSpace(req.Type)))
	if kind != TypeGive && kind != TypeTake {
		return Transfer{}, ErrInvalidType
	}

	lead, err := s.leads.Lookup(ctx, req.PatientID)
	if err != nil {
		return Transfer{}, err
	}

	var to string
	switch kind {
	case TypeGive:
		if lead.AssignedTo != actor.UserID {
			return Transfer{}, ErrNotOwner
		}
		to = strings.TrimSpace(req.ToUserID)
		if to == "" || to == actor.UserID {
			return Transfer{}, ErrInvalidTarget
		}
		if _, err := s.directory.Resolve(ctx, to); err != nil {
			if errors.Is(err, access.ErrUnauthenticated) {
				return Transfer{}, ErrInvalidTarget
			}
			return Transfer{}, err
		}
	case TypeTake:
		if lead.AssignedTo == actor.UserID {
			return Transfer{}, ErrAlreadyOwner
		}
		to = lead.AssignedTo
		if to == "" {
			return Transfer{}, ErrInvalidTarget
		}
	}

	if _, err := s.repo.FindPending(ctx, lead.ID, actor.UserID, to); err == nil {
		return Transfer{}, ErrDuplicatePending
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return Transfer{}, err
	}

	now := s.now().In(s.location)
	t := Transfer{
		ID:          primitive.NewObjectID().Hex(),
		PatientID:   lead.ID,
		PatientName: lead.Name,
		FromUserID:  actor.UserID,
		ToUserID:    to,
		Type:        kind,
		Status:      StatusPending,
		Reason:      strings.TrimSpace(req.Reason),
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrDuplicatePending
			}
			return err
		}
		_, err := s.notifier.Notify(ctx, t.ToUserID, notifications.TypeTransferRequest, t.ID, requestMessage(actor.Name, t))
		return err
	})
	if err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// Approve completes a pending transfer and hands the patient to its new
// owner.
func (s *Service) Approve(ctx context.Context, actor access.Identity, id string) (Transfer, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return Transfer{}, err
	}

	var decided Transfer
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := s.decide(ctx, id, Decision{
			Status:    StatusApproved,
			DecidedBy: actor.UserID,
			At:        s.now().In(s.location),
		})
		if err != nil {
			return err
		}
		if err := s.leads.Reassign(ctx, t.PatientID, t.NewOwner()); err != nil {
			return err
		}
		msg := fmt.Sprintf("Your transfer request for %s was approved", t.PatientName)
		if _, err := s.notifier.Notify(ctx, t.FromUserID, notifications.TypeTransferApproved, t.ID, msg); err != nil {
			return err
		}
		decided = t
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return decided, nil
}

func (s *Service) Reject(ctx context.Context, actor access.Identity, id, reason string) (Transfer, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return Transfer{}, err
	}
	reason = strings.TrimSpace(reason)

	var decided Transfer
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := s.decide(ctx, id, Decision{
			Status:    StatusRejected,
			DecidedBy: actor.UserID,
			Reason:    reason,
			At:        s.now().In(s.location),
		})
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Your transfer request for %s was rejected", t.PatientName)
		if reason != "" {
			msg += ": " + reason
		}
		if _, err := s.notifier.Notify(ctx, t.FromUserID, notifications.TypeTransferRejected, t.ID, msg); err != nil {
			return err
		}
		decided = t
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return decided, nil
}

func (s *Service) decide(ctx context.Context, id string, d Decision) (Transfer, error) {
	id = strings.TrimSpace(id)
	t, err := s.repo.Decide(ctx, id, d)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return Transfer{}, err
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	return Transfer{}, ErrNotPending
}

func (s *Service) Get(ctx context.Context, actor access.Identity, id string) (Transfer, error) {
	if err := access.Authorize(&actor); err != nil {
		return Transfer{}, err
	}
	t, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	if !actor.IsAdmin() && actor.UserID != t.FromUserID && actor.UserID != t.ToUserID {
		return Transfer{}, access.ErrForbidden
	}
	return t, nil
}

// List returns every transfer to admins and the caller's own (sent or
// received) to everyone else.
func (s *Service) List(ctx context.Context, actor access.Identity, filter ListFilter, limit, offset int64) ([]Transfer, int64, error) {
	participant, err := access.OwnerScope(actor)
	if err != nil {
		return nil, 0, err
	}
	query := Query{Participant: participant}
	if raw := strings.ToLower(strings.TrimSpace(filter.Status)); raw != "" {
		status := Status(raw)
		if !status.Valid() {
			return nil, 0, ErrInvalidStatus
		}
		query.Status = status
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

// PurgePatient drops every transfer of a deleted patient.
func (s *Service) PurgePatient(ctx context.Context, patientID string) error {
	_, err := s.repo.DeleteByPatient(ctx, patientID)
	return err
}

// EmailRequested tells the counterparty about a new request. It is a no-op
// when email is disabled.
func (s *Service) EmailRequested(ctx context.Context, t Transfer) error {
	if s.mailer == nil {
		return nil
	}
	to, err := s.directory.Resolve(ctx, t.ToUserID)
	if err != nil {
		return err
	}
	msg := s.message(t)
	if from, err := s.directory.Resolve(ctx, t.FromUserID); err == nil {
		msg.RequesterName = from.Name
	}
	_, err = s.mailer.SendTransferRequested(ctx, mailer.Recipient{Email: to.Email, Name: to.Name}, msg)
	return err
}

// EmailDecided tells the requester how their request was decided.
func (s *Service) EmailDecided(ctx context.Context, t Transfer) error {
	if s.mailer == nil {
		return nil
	}
	to, err := s.directory.Resolve(ctx, t.FromUserID)
	if err != nil {
		return err
	}
	_, err = s.mailer.SendTransferDecided(ctx, mailer.Recipient{Email: to.Email, Name: to.Name}, s.message(t))
	return err
}

func (s *Service) message(t Transfer) mailer.TransferMessage {
	msg := mailer.TransferMessage{
		TransferID:  t.ID,
		PatientName: t.PatientName,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Reason:      t.Reason,
	}
	if t.Status == StatusRejected {
		msg.Reason = t.RejectionReason
	}
	if s.frontendURL != "" {
		msg.Link = s.frontendURL + "/transfers/" + t.ID
	}
	return msg
}

func requestMessage(requester string, t Transfer) string {
	if requester == "" {
		requester = "A colleague"
	}
	if t.Type == TypeTake {
		return fmt.Sprintf("%s asked to take over %s", requester, t.PatientName)
	}
	return fmt.Sprintf("%s wants to give you %s", requester, t.PatientName)
}
