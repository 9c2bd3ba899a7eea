package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dispatch/internal/content"
	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/pkg/logger"
	"github.com/ignite/dispatch/internal/service/recipient"
)

// DefaultManager is the manager slug used when a caller does not name one.
const DefaultManager = "default"

// Service is the dispatch engine. It performs no background work; every
// method is a bounded, synchronous call against the repository.
type Service struct {
	repo       Repository
	registry   *content.Registry
	recipients RecipientStore
	events     EventPublisher
	now        func() time.Time
}

// NewService creates a dispatch engine. Content types must be registered
// on registry before they are dispatched.
func NewService(repo Repository, registry *content.Registry, recipients RecipientStore) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		recipients: recipients,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher sets where status changes are announced.
func (s *Service) SetEventPublisher(p EventPublisher) {
	s.events = p
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Registry returns the content registry the engine validates against.
func (s *Service) Registry() *content.Registry {
	return s.registry
}

// DispatchInput holds the fields for Dispatch.
type DispatchInput struct {
	RecipientID int64     `json:"recipient_id"`
	ContentType string    `json:"content_type"`
	ObjectID    string    `json:"object_id"`
	ManagerSlug string    `json:"manager_slug"`
	SendAt      time.Time `json:"send_at"`
}

// Dispatch creates a new PENDING record for one object and one recipient.
// A zero SendAt means "now". Each call creates a new record.
func (s *Service) Dispatch(ctx context.Context, in DispatchInput) (*domain.DispatchRecord, error) {
	ref, err := s.registry.Encode(in.ContentType, in.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := s.checkRecipient(ctx, in.RecipientID); err != nil {
		return nil, err
	}

	rec := s.newRecord(ref, in.RecipientID, in.ManagerSlug, in.SendAt)
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create dispatch: %w", err)
	}

	logger.Info("dispatch created",
		"dispatch_id", rec.ID,
		"manager", rec.ManagerSlug,
		"ref", content.Key(rec.Ref),
		"recipient_id", rec.RecipientID,
		"send_at", rec.SendAt)
	return rec, nil
}

// ListDispatchInput holds the fields for DispatchToList.
type ListDispatchInput struct {
	ListID      int64     `json:"list_id"`
	ContentType string    `json:"content_type"`
	ObjectID    string    `json:"object_id"`
	ManagerSlug string    `json:"manager_slug"`
	SendAt      time.Time `json:"send_at"`
}

// DispatchToList creates one PENDING record per subscribed member of a
// mailing list. The records are stored together or not at all.
func (s *Service) DispatchToList(ctx context.Context, in ListDispatchInput) ([]*domain.DispatchRecord, error) {
	ref, err := s.registry.Encode(in.ContentType, in.ObjectID)
	if err != nil {
		return nil, err
	}
	members, err := s.recipients.ListMembers(ctx, in.ListID, true)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	recs := make([]*domain.DispatchRecord, 0, len(members))
	for _, m := range members {
		recs = append(recs, s.newRecord(ref, m.ID, in.ManagerSlug, in.SendAt))
	}
	if err := s.repo.CreateBatch(ctx, recs); err != nil {
		return nil, fmt.Errorf("create dispatch batch: %w", err)
	}

	logger.Info("list dispatched",
		"list_id", in.ListID,
		"manager", recs[0].ManagerSlug,
		"ref", content.Key(ref),
		"records", len(recs))
	return recs, nil
}

func (s *Service) checkRecipient(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: id %d", ErrInvalidRecipient, id)
	}
	_, err := s.recipients.Get(ctx, id)
	if errors.Is(err, recipient.ErrNotFound) {
		return fmt.Errorf("%w: id %d", ErrInvalidRecipient, id)
	}
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	return nil
}

func (s *Service) newRecord(ref domain.Reference, recipientID int64, manager string, sendAt time.Time) *domain.DispatchRecord {
	now := s.now()
	manager = strings.TrimSpace(manager)
	if manager == "" {
		manager = DefaultManager
	}
	if sendAt.IsZero() {
		sendAt = now
	}
	return &domain.DispatchRecord{
		CreatedAt:   now,
		SendAt:      sendAt.UTC(),
		ManagerSlug: manager,
		Ref:         ref,
		RecipientID: recipientID,
		Status:      domain.StatusPending,
	}
}

// MarkSent records a confirmed transmission and stamps SentAt.
func (s *Service) MarkSent(ctx context.Context, id int64) (*domain.DispatchRecord, error) {
	return s.transition(ctx, id, domain.StatusSent, "")
}

// MarkError records a failed transmission and its cause.
func (s *Service) MarkError(ctx context.Context, id int64, message string) (*domain.DispatchRecord, error) {
	return s.transition(ctx, id, domain.StatusError, message)
}

// MarkCancelled cancels a record before it is sent.
func (s *Service) MarkCancelled(ctx context.Context, id int64) (*domain.DispatchRecord, error) {
	return s.transition(ctx, id, domain.StatusCancelled, "")
}

// MarkUnsubscribed records that the recipient was unsubscribed at send time.
func (s *Service) MarkUnsubscribed(ctx context.Context, id int64) (*domain.DispatchRecord, error) {
	return s.transition(ctx, id, domain.StatusUnsubscribed, "")
}

func (s *Service) transition(ctx context.Context, id int64, to domain.DispatchStatus, message string) (*domain.DispatchRecord, error) {
	if !domain.StatusPending.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: pending -> %s", ErrInvalidTransition, to)
	}
	rec, err := s.repo.Transition(ctx, id, to, message, s.now())
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			logger.Warn("dispatch transition rejected", "dispatch_id", id, "to", string(to))
		}
		return nil, err
	}
	logger.Info("dispatch transitioned", "dispatch_id", id, "to", string(to))
	s.publish(ctx, *rec, message)
	return rec, nil
}

// CancelForObject cancels every pending record for an object, for example
// after the object was deleted. It returns the number of records cancelled.
func (s *Service) CancelForObject(ctx context.Context, ref domain.Reference, reason string) (int, error) {
	recs, err := s.repo.CancelPending(ctx, ref, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel pending: %w", err)
	}
	for _, rec := range recs {
		s.publish(ctx, rec, reason)
	}
	if len(recs) > 0 {
		logger.Info("pending dispatches cancelled", "ref", content.Key(ref), "records", len(recs))
	}
	return len(recs), nil
}

func (s *Service) publish(ctx context.Context, rec domain.DispatchRecord, message string) {
	if s.events == nil {
		return
	}
	evt := domain.StatusChanged{
		EventID:     uuid.NewString(),
		DispatchID:  rec.ID,
		RecipientID: rec.RecipientID,
		ManagerSlug: rec.ManagerSlug,
		ContentType: rec.Ref.ContentType,
		ObjectID:    rec.Ref.ObjectID,
		From:        domain.StatusPending,
		To:          rec.Status,
		Message:     message,
		OccurredAt:  s.now(),
	}
	// The transition is already stored; a lost event is logged, not returned.
	if err := s.events.Publish(ctx, evt); err != nil {
		logger.Error("publish status change", "dispatch_id", rec.ID, "error", err)
	}
}

// Due returns pending records whose send time has passed, oldest first.
// A zero Limit returns all of them.
func (s *Service) Due(ctx context.Context, f DueFilter) ([]domain.DispatchRecord, error) {
	if f.Now.IsZero() {
		f.Now = s.now()
	}
	if f.Limit < 0 {
		f.Limit = 0
	}
	return s.repo.Due(ctx, f)
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id int64) (*domain.DispatchRecord, error) {
	return s.repo.Get(ctx, id)
}

// List returns records matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.DispatchRecord, int, error) {
	return s.repo.List(ctx, f)
}
