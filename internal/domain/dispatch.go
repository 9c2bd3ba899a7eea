package domain

import (
	"fmt"
	"time"
)

// DispatchStatus enumerates the delivery states of a dispatch record.
type DispatchStatus string

const (
	StatusPending      DispatchStatus = "pending"
	StatusSent         DispatchStatus = "sent"
	StatusCancelled    DispatchStatus = "cancelled"
	StatusUnsubscribed DispatchStatus = "unsubscribed"
	StatusError        DispatchStatus = "error"
)

// AllStatuses lists every dispatch status in lifecycle order.
func AllStatuses() []DispatchStatus {
	return []DispatchStatus{StatusPending, StatusSent, StatusCancelled, StatusUnsubscribed, StatusError}
}

// ParseStatus converts a stored or user-supplied value into a DispatchStatus.
func ParseStatus(s string) (DispatchStatus, error) {
	for _, st := range AllStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown dispatch status %q", s)
}

// IsTerminal reports whether no transition may leave this status.
func (s DispatchStatus) IsTerminal() bool {
	switch s {
	case StatusSent, StatusCancelled, StatusUnsubscribed, StatusError:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Only pending records move, and only into one of the terminal states.
func (s DispatchStatus) CanTransitionTo(next DispatchStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

// Reference points at exactly one object of one registered content type.
// ObjectID is always populated; ObjectIDInt shadows it only when the
// content type declares integer keys, so the column can be indexed.
type Reference struct {
	ContentType string `json:"content_type" db:"content_type"`
	ObjectID    string `json:"object_id" db:"object_id"`
	ObjectIDInt *int64 `json:"object_id_int,omitempty" db:"object_id_int"`
}

// Equal reports whether both references name the same type and identifier.
func (r Reference) Equal(other Reference) bool {
	return r.ContentType == other.ContentType && r.ObjectID == other.ObjectID
}

// String is the stable placeholder used when the object cannot be resolved.
func (r Reference) String() string {
	return "<" + r.ContentType + ":" + r.ObjectID + ">"
}

// DispatchRecord is one scheduled, attempted or completed send of one
// object to one recipient. Records are never deleted by the engine.
type DispatchRecord struct {
	ID            int64          `json:"id" db:"id"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	SendAt        time.Time      `json:"send_at" db:"send_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	ManagerSlug   string         `json:"manager_slug" db:"manager_slug"`
	Ref           Reference      `json:"ref"`
	RecipientID   int64          `json:"recipient_id" db:"recipient_id"`
	Status        DispatchStatus `json:"status" db:"status"`
	StatusMessage string         `json:"status_message,omitempty" db:"status_message"`
}

// IsDue reports whether a pending record should be picked up at now.
func (d DispatchRecord) IsDue(now time.Time) bool {
	return d.Status == StatusPending && !d.SendAt.After(now)
}
