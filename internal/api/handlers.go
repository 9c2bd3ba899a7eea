// Package api exposes the subscription and dispatch services over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/dispatch/internal/content"
	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/pkg/httputil"
	"github.com/ignite/dispatch/internal/service/dispatch"
	"github.com/ignite/dispatch/internal/service/recipient"
)

// RecipientService is the recipient operations the handlers call.
type RecipientService interface {
	Subscribe(ctx context.Context, in recipient.SubscribeInput) (*domain.Recipient, error)
	VerifyToken(ctx context.Context, dispatchID int64, tok string) (*domain.Recipient, error)
	UnsubscribeWithToken(ctx context.Context, dispatchID int64, tok string) (*domain.Recipient, error)
	CreateList(ctx context.Context, name string) (*domain.MailingList, error)
	AddToList(ctx context.Context, listID, recipientID int64) error
}

// DispatchService is the dispatch operations the handlers call.
type DispatchService interface {
	Dispatch(ctx context.Context, in dispatch.DispatchInput) (*domain.DispatchRecord, error)
	DispatchToList(ctx context.Context, in dispatch.ListDispatchInput) ([]*domain.DispatchRecord, error)
	Get(ctx context.Context, id int64) (*domain.DispatchRecord, error)
	List(ctx context.Context, f dispatch.ListFilter) ([]domain.DispatchRecord, int, error)
	MarkCancelled(ctx context.Context, id int64) (*domain.DispatchRecord, error)
	CancelForObject(ctx context.Context, ref domain.Reference, reason string) (int, error)
	Registry() *content.Registry
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	recipients RecipientService
	dispatches DispatchService
}

func NewHandlers(recipients RecipientService, dispatches DispatchService) *Handlers {
	return &Handlers{recipients: recipients, dispatches: dispatches}
}

// writeServiceError maps service sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recipient.ErrInvalidEmail),
		errors.Is(err, recipient.ErrInvalidName),
		errors.Is(err, recipient.ErrNameTooLong),
		errors.Is(err, content.ErrNotRegistered),
		errors.Is(err, content.ErrInvalidObjectID),
		errors.Is(err, content.ErrInvalidType),
		errors.Is(err, dispatch.ErrInvalidRecipient):
		httputil.BadRequest(w, err.Error())
	// A bad token is reported like a missing link so tokens can't be probed.
	case errors.Is(err, recipient.ErrInvalidToken),
		errors.Is(err, recipient.ErrNotFound),
		errors.Is(err, recipient.ErrListNotFound),
		errors.Is(err, dispatch.ErrNotFound):
		httputil.NotFound(w, notFoundMessage(err))
	case errors.Is(err, dispatch.ErrInvalidTransition),
		errors.Is(err, domain.ErrStorageConflict):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

func notFoundMessage(err error) string {
	if errors.Is(err, recipient.ErrInvalidToken) {
		return "unsubscribe link not found"
	}
	return err.Error()
}
