// Package transport delivers rendered messages through an email backend.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/pkg/logger"
)

// ErrNotConfigured is returned by a sender whose backend client is missing.
var ErrNotConfigured = errors.New("transport not configured")

// Sender delivers a single message. A nil error means the backend
// accepted the message.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
	Type() domain.TransportType
}

func validate(msg *domain.EmailMessage) error {
	if msg.To == "" {
		return fmt.Errorf("dispatch %d: empty recipient address", msg.DispatchID)
	}
	if msg.FromEmail == "" {
		return fmt.Errorf("dispatch %d: empty from address", msg.DispatchID)
	}
	return nil
}

// sortedHeaders returns header names in a stable order.
func sortedHeaders(h map[string]string) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogSender accepts every message and only logs it. Used in development
// and when no backend is configured.
type LogSender struct{}

func (LogSender) Type() domain.TransportType { return domain.TransportLog }

func (LogSender) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	logger.Info("log transport: message accepted",
		"dispatch_id", msg.DispatchID,
		"recipient", msg.To,
		"subject", msg.Subject,
		"message_id", id)
	return &domain.SendResult{MessageID: id, Transport: domain.TransportLog, SentAt: time.Now().UTC()}, nil
}
