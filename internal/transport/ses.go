package transport

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/pkg/logger"
)

// sesAPI is the subset of the SES v2 client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds SES connection settings. Empty keys fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	ConfigurationSet string
}

// SESSender sends email via AWS SES using the SDK v2.
type SESSender struct {
	client    sesAPI
	configSet string
}

// NewSESSender loads AWS config and creates an SES sender.
func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESSender(sesv2.NewFromConfig(awsCfg), cfg), nil
}

func newSESSender(client sesAPI, cfg SESConfig) *SESSender {
	return &SESSender{client: client, configSet: cfg.ConfigurationSet}
}

func (s *SESSender) Type() domain.TransportType { return domain.TransportSES }

// Send delivers a single email through AWS SES.
func (s *SESSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	if err := validate(msg); err != nil {
		return nil, err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(domain.FormatAddress(msg.FromEmail, msg.FromName)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &types.Body{},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("dispatch_id"), Value: aws.String(strconv.FormatInt(msg.DispatchID, 10))},
			{Name: aws.String("manager"), Value: aws.String(tagValue(msg.ManagerSlug))},
		},
	}
	body := input.Content.Simple.Body
	if msg.HTMLContent != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")}
	}
	if msg.TextContent != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	for _, k := range sortedHeaders(msg.Headers) {
		input.Content.Simple.Headers = append(input.Content.Simple.Headers,
			types.MessageHeader{Name: aws.String(k), Value: aws.String(msg.Headers[k])})
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send: %w", err)
	}
	messageID := aws.ToString(out.MessageId)
	logger.Info("ses: message sent", "dispatch_id", msg.DispatchID, "recipient", msg.To, "message_id", messageID)

	return &domain.SendResult{MessageID: messageID, Transport: domain.TransportSES, SentAt: time.Now().UTC()}, nil
}

// tagValue keeps SES tag values within the allowed character set.
func tagValue(v string) string {
	if v == "" {
		return "default"
	}
	b := []byte(v)
	for i, c := range b {
		ok := c == '-' || c == '_' || c == '.' || c == '@' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			b[i] = '_'
		}
	}
	return string(b)
}
