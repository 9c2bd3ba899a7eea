package domain

import "time"

// TransportType identifies the delivery backend that carried a message.
type TransportType string

const (
	TransportSES  TransportType = "ses"
	TransportSMTP TransportType = "smtp"
	TransportLog  TransportType = "log"
)

// EmailMessage is the message handed to a transport. Subject and body come
// from the content adapter; the worker only adds addressing and headers.
type EmailMessage struct {
	DispatchID  int64             `json:"dispatch_id"`
	RecipientID int64             `json:"recipient_id"`
	To          string            `json:"to"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"`
	ReplyTo     string            `json:"reply_to"`
	Subject     string            `json:"subject"`
	HTMLContent string            `json:"html_content"`
	TextContent string            `json:"text_content"`
	Headers     map[string]string `json:"headers,omitempty"`
	ManagerSlug string            `json:"manager_slug"`
}

// SendResult is returned by a transport after attempting delivery.
type SendResult struct {
	MessageID string        `json:"message_id"`
	Transport TransportType `json:"transport"`
	SentAt    time.Time     `json:"sent_at"`
}

// StatusChanged describes a completed dispatch status transition. It is
// published to downstream consumers after the transition is stored.
type StatusChanged struct {
	EventID     string         `json:"event_id"`
	DispatchID  int64          `json:"dispatch_id"`
	RecipientID int64          `json:"recipient_id"`
	ManagerSlug string         `json:"manager_slug"`
	ContentType string         `json:"content_type"`
	ObjectID    string         `json:"object_id"`
	From        DispatchStatus `json:"from"`
	To          DispatchStatus `json:"to"`
	Message     string         `json:"message,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}
