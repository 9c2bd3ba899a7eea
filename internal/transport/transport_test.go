package transport

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	mail "github.com/go-mail/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dispatch/internal/domain"
)

func testMessage() *domain.EmailMessage {
	return &domain.EmailMessage{
		DispatchID:  12,
		RecipientID: 3,
		To:          "ann@example.com",
		FromName:    "Weekly",
		FromEmail:   "news@example.com",
		Subject:     "Issue 42",
		HTMLContent: "<p>hello</p>",
		TextContent: "hello",
		Headers: map[string]string{
			"List-Unsubscribe":      "<https://example.com/unsubscribe/12/abc>",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
		ManagerSlug: "weekly digest",
	}
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	s := newSESSender(fake, SESConfig{ConfigurationSet: "tracking"})

	res, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "ses-1", res.MessageID)
	assert.Equal(t, domain.TransportSES, res.Transport)

	in := fake.in
	require.NotNil(t, in)
	assert.Equal(t, "Weekly <news@example.com>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ann@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Issue 42", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "hello", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Equal(t, "tracking", aws.ToString(in.ConfigurationSetName))
	require.Len(t, in.Content.Simple.Headers, 2)
	assert.Equal(t, "List-Unsubscribe", aws.ToString(in.Content.Simple.Headers[0].Name))
	assert.Equal(t, "weekly_digest", aws.ToString(in.EmailTags[1].Value))
}

func TestSESSender_Errors(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	s := newSESSender(fake, SESConfig{})

	_, err := s.Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "throttled")

	msg := testMessage()
	msg.To = ""
	_, err = s.Send(context.Background(), msg)
	assert.Error(t, err)

	_, err = (&SESSender{}).Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type captureDialer struct {
	msgs []*mail.Message
	err  error
}

func (c *captureDialer) DialAndSend(m ...*mail.Message) error {
	c.msgs = append(c.msgs, m...)
	return c.err
}

func TestSMTPSender_Send(t *testing.T) {
	d := &captureDialer{}
	s := &SMTPSender{dialer: d, host: "mx.example.com"}

	res, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, domain.TransportSMTP, res.Transport)
	assert.True(t, strings.HasSuffix(res.MessageID, "@mx.example.com>"))
	require.Len(t, d.msgs, 1)

	m := d.msgs[0]
	assert.Equal(t, []string{"Issue 42"}, m.GetHeader("Subject"))
	assert.Equal(t, []string{"<https://example.com/unsubscribe/12/abc>"}, m.GetHeader("List-Unsubscribe"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "multipart/alternative")
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	d := &captureDialer{}
	s := &SMTPSender{dialer: d, host: "mx.example.com"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Send(ctx, testMessage())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.msgs)
}

func TestLogSender(t *testing.T) {
	res, err := LogSender{}.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	assert.Equal(t, domain.TransportLog, res.Transport)
}
