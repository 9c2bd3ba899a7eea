package recipient

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/pkg/logger"
)

// Service implements recipient business logic. It is safe for concurrent
// use if the underlying repository is.
type Service struct {
	repo       Repository
	dispatches DispatchReader
	tokens     TokenVerifier
}

// NewService creates a recipient service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetTokenVerification enables UnsubscribeWithToken.
func (s *Service) SetTokenVerification(dispatches DispatchReader, tokens TokenVerifier) {
	s.dispatches = dispatches
	s.tokens = tokens
}

// SubscribeInput holds the fields for Subscribe. A nil Subscribed means
// "subscribed".
type SubscribeInput struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Subscribed *bool  `json:"subscribed,omitempty"`
}

// MaxNameLength is the longest first or last name stored, in characters.
const MaxNameLength = 200

// ValidEmail reports whether email is a bare, well-formed address.
func ValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	local, host, _ := strings.Cut(email, "@")
	return local != "" && strings.Contains(host, ".")
}

// Subscribe creates or updates the recipient for in.Email. Calling it
// again with the same email returns the same recipient. Empty name fields
// keep whatever is stored.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (*domain.Recipient, error) {
	email := domain.NormalizeEmail(in.Email)
	if !ValidEmail(email) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, in.Email)
	}
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if utf8.RuneCountInString(first) > MaxNameLength || utf8.RuneCountInString(last) > MaxNameLength {
		return nil, fmt.Errorf("%w: at most %d characters", ErrNameTooLong, MaxNameLength)
	}
	subscribed := true
	if in.Subscribed != nil {
		subscribed = *in.Subscribed
	}

	// A concurrent Subscribe for the same email can win the insert; the
	// second pass then updates the row it created.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.GetByEmail(ctx, email)
		if errors.Is(err, ErrNotFound) {
			r := &domain.Recipient{
				Email:        email,
				FirstName:    first,
				LastName:     last,
				IsSubscribed: subscribed,
			}
			err := s.repo.Create(ctx, r)
			if errors.Is(err, domain.ErrStorageConflict) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("create recipient: %w", err)
			}
			logger.Info("recipient created", "recipient_id", r.ID, "email", r.Email)
			return r, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get recipient: %w", err)
		}

		changed := false
		if first != "" && first != existing.FirstName {
			existing.FirstName = first
			changed = true
		}
		if last != "" && last != existing.LastName {
			existing.LastName = last
			changed = true
		}
		if existing.IsSubscribed != subscribed {
			existing.IsSubscribed = subscribed
			changed = true
		}
		if changed {
			if err := s.repo.Update(ctx, existing); err != nil {
				return nil, fmt.Errorf("update recipient: %w", err)
			}
		}
		return existing, nil
	}
	return nil, fmt.Errorf("subscribe %s: %w", email, domain.ErrStorageConflict)
}

// Get returns a recipient by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Recipient, error) {
	return s.repo.Get(ctx, id)
}

// GetByEmail returns a recipient by email (case-insensitive).
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Recipient, error) {
	return s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
}

// Count returns the number of recipients.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Unsubscribe clears the subscription flag of a recipient. Pending
// dispatch records are left alone; the delivery worker marks them
// unsubscribed when they come due.
func (s *Service) Unsubscribe(ctx context.Context, id int64) (*domain.Recipient, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsSubscribed {
		return r, nil
	}
	r.IsSubscribed = false
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update recipient: %w", err)
	}
	logger.Info("recipient unsubscribed", "recipient_id", r.ID)
	return r, nil
}

// VerifyToken checks the token embedded in an unsubscribe link and returns
// the recipient it was issued to. Nothing is modified.
func (s *Service) VerifyToken(ctx context.Context, dispatchID int64, tok string) (*domain.Recipient, error) {
	if s.dispatches == nil || s.tokens == nil {
		return nil, fmt.Errorf("token verification is not configured")
	}
	rec, err := s.dispatches.Get(ctx, dispatchID)
	if err != nil {
		return nil, err
	}
	r, err := s.repo.Get(ctx, rec.RecipientID)
	if err != nil {
		return nil, err
	}
	if !s.tokens.Verify(rec.Ref, *r, tok) {
		logger.Warn("unsubscribe token rejected", "dispatch_id", dispatchID)
		return nil, ErrInvalidToken
	}
	return r, nil
}

// UnsubscribeWithToken unsubscribes the recipient of a dispatch record
// after checking the token embedded in the link.
func (s *Service) UnsubscribeWithToken(ctx context.Context, dispatchID int64, tok string) (*domain.Recipient, error) {
	r, err := s.VerifyToken(ctx, dispatchID, tok)
	if err != nil {
		return nil, err
	}
	return s.Unsubscribe(ctx, r.ID)
}

// CreateList creates a named mailing list.
func (s *Service) CreateList(ctx context.Context, name string) (*domain.MailingList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	l := &domain.MailingList{Name: name}
	if err := s.repo.CreateList(ctx, l); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	return l, nil
}

// AddToList adds a recipient to a list.
func (s *Service) AddToList(ctx context.Context, listID, recipientID int64) error {
	return s.repo.AddToList(ctx, listID, recipientID)
}

// ListMembers returns the members of a list.
func (s *Service) ListMembers(ctx context.Context, listID int64, subscribedOnly bool) ([]domain.Recipient, error) {
	return s.repo.ListMembers(ctx, listID, subscribedOnly)
}
