package messaging

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Publisher defines the output port for publishing domain events.
type Publisher interface {
	PublishLabor(ctx context.Context, event LaborEvent) error
	PublishEmail(ctx context.Context, event EmailEvent) error
}

// MessageSender sends a raw message body to a destination queue.
type MessageSender interface {
	SendMessage(ctx context.Context, destination string, eventType EventType, body []byte) error
}

// SQSClient is the part of the AWS SQS client used for publishing.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}
