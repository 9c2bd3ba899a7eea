package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/google/uuid"

	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/pkg/logger"
)

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
	Timeout            time.Duration
}

type mailDialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender sends email through an SMTP relay.
type SMTPSender struct {
	dialer mailDialer
	host   string
}

// NewSMTPSender creates a sender for the given relay.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.InsecureSkipVerify}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto"/"starttls": go-mail negotiates STARTTLS when offered
	}
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	return &SMTPSender{dialer: d, host: cfg.Host}
}

func (s *SMTPSender) Type() domain.TransportType { return domain.TransportSMTP }

// buildMessage assembles a multipart/alternative message when both bodies
// are present.
func buildMessage(msg *domain.EmailMessage, messageID string) *mail.Message {
	m := mail.NewMessage()
	m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	for _, k := range sortedHeaders(msg.Headers) {
		m.SetHeader(k, msg.Headers[k])
	}

	switch {
	case msg.TextContent != "" && msg.HTMLContent != "":
		m.SetBody("text/plain", msg.TextContent)
		m.AddAlternative("text/html", msg.HTMLContent)
	case msg.HTMLContent != "":
		m.SetBody("text/html", msg.HTMLContent)
	default:
		m.SetBody("text/plain", msg.TextContent)
	}
	return m
}

func (s *SMTPSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.dialer == nil {
		return nil, ErrNotConfigured
	}
	if err := validate(msg); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host)
	if err := s.dialer.DialAndSend(buildMessage(msg, messageID)); err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}
	logger.Info("smtp: message sent", "dispatch_id", msg.DispatchID, "recipient", msg.To, "host", s.host)

	return &domain.SendResult{MessageID: messageID, Transport: domain.TransportSMTP, SentAt: time.Now().UTC()}, nil
}
