package dispatch

import (
	"context"
	"time"

	"github.com/ignite/dispatch/internal/domain"
)

// Repository defines the data access contract for dispatch records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a pending record and fills in ID and CreatedAt.
	Create(ctx context.Context, rec *domain.DispatchRecord) error

	// CreateBatch inserts all records in one transaction.
	CreateBatch(ctx context.Context, recs []*domain.DispatchRecord) error

	// Get returns a record by id. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id int64) (*domain.DispatchRecord, error)

	// List returns records matching the filter ordered by id, plus the
	// total number of matches.
	List(ctx context.Context, f ListFilter) ([]domain.DispatchRecord, int, error)

	// Due returns pending records with send_at <= f.Now ordered by
	// send_at, then id.
	Due(ctx context.Context, f DueFilter) ([]domain.DispatchRecord, error)

	// Transition moves a record from pending to `to` atomically. SentAt is
	// set to `at` for StatusSent. Returns ErrInvalidTransition if the record
	// is no longer pending and ErrNotFound if it doesn't exist.
	Transition(ctx context.Context, id int64, to domain.DispatchStatus, message string, at time.Time) (*domain.DispatchRecord, error)

	// CancelPending cancels every pending record that references ref and
	// returns the affected records.
	CancelPending(ctx context.Context, ref domain.Reference, message string) ([]domain.DispatchRecord, error)
}

// RecipientStore is the slice of the recipient service the engine needs.
type RecipientStore interface {
	Get(ctx context.Context, id int64) (*domain.Recipient, error)
	ListMembers(ctx context.Context, listID int64, subscribedOnly bool) ([]domain.Recipient, error)
}

// EventPublisher receives status changes after they are stored.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.StatusChanged) error
}

// ListFilter controls pagination and filtering for record lists.
// Zero-value fields are not applied.
type ListFilter struct {
	Status      domain.DispatchStatus
	ManagerSlug string
	RecipientID int64
	ContentType string
	ObjectID    string
	Limit       int
	Offset      int
}

// DueFilter selects records ready for delivery.
type DueFilter struct {
	Now         time.Time
	ManagerSlug string
	// Limit caps the result; zero means no cap.
	Limit int
}
