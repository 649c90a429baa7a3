package messaging

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"punchclock.service/pkg/telemetry"
)

// SQSSender implements MessageSender for AWS SQS.
type SQSSender struct {
	client SQSClient
}

func NewSQSSender(client SQSClient) *SQSSender {
	return &SQSSender{client: client}
}

// SendMessage sends body with the event type and the current trace context
// as message attributes.
func (s *SQSSender) SendMessage(ctx context.Context, destination string, eventType EventType, body []byte) error {
	attributes := telemetry.InjectTraceContext(ctx)
	attributes["EventType"] = types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(string(eventType)),
	}

	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(destination),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attributes,
	})
	return err
}
