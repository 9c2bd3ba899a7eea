package recipient

import (
	"context"

	"github.com/ignite/dispatch/internal/domain"
)

// Repository defines the data access contract for recipients and lists.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a recipient by id. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id int64) (*domain.Recipient, error)

	// GetByEmail returns a recipient by normalized email. Returns ErrNotFound
	// if it doesn't exist.
	GetByEmail(ctx context.Context, email string) (*domain.Recipient, error)

	// Create inserts r and fills in ID, CreatedAt and UpdatedAt. Returns
	// domain.ErrStorageConflict if the email already exists.
	Create(ctx context.Context, r *domain.Recipient) error

	// Update stores the mutable fields of r (names, subscription flag) and
	// refreshes UpdatedAt. CreatedAt is never changed.
	Update(ctx context.Context, r *domain.Recipient) error

	// Count returns the total number of recipients.
	Count(ctx context.Context) (int, error)

	// CreateList inserts a mailing list and fills in its ID and timestamps.
	CreateList(ctx context.Context, l *domain.MailingList) error

	// AddToList adds a recipient to a list. Adding an existing member is a
	// no-op. Returns ErrListNotFound or ErrNotFound for missing rows.
	AddToList(ctx context.Context, listID, recipientID int64) error

	// ListMembers returns list members ordered by id, optionally only those
	// currently subscribed.
	ListMembers(ctx context.Context, listID int64, subscribedOnly bool) ([]domain.Recipient, error)
}

// DispatchReader loads dispatch records for token verification.
type DispatchReader interface {
	Get(ctx context.Context, id int64) (*domain.DispatchRecord, error)
}

// TokenVerifier checks a per-dispatch token.
type TokenVerifier interface {
	Verify(ref domain.Reference, r domain.Recipient, candidate string) bool
}
