// Package events announces dispatch status changes to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/dispatch/internal/domain"
)

const publishTimeout = 5 * time.Second

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends StatusChanged events as JSON messages to an SQS queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

func NewSQSPublisher(client *sqs.Client, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Publish sends evt synchronously. The message carries the new status and
// manager slug as attributes so subscribers can filter without decoding.
func (p *SQSPublisher) Publish(ctx context.Context, evt domain.StatusChanged) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"status":      {DataType: aws.String("String"), StringValue: aws.String(string(evt.To))},
			"manager":     {DataType: aws.String("String"), StringValue: aws.String(evt.ManagerSlug)},
			"dispatch_id": {DataType: aws.String("Number"), StringValue: aws.String(strconv.FormatInt(evt.DispatchID, 10))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.StatusChanged) error { return nil }
