package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Producer struct {
	sender        MessageSender
	laborQueueURL string
	emailQueueURL string
}

func NewProducer(sender MessageSender, laborQueueURL, emailQueueURL string) *Producer {
	return &Producer{
		sender:        sender,
		laborQueueURL: laborQueueURL,
		emailQueueURL: emailQueueURL,
	}
}

// NewSQSProducer creates a Producer backed by an AWS SQS sender.
func NewSQSProducer(client SQSClient, laborQueueURL, emailQueueURL string) *Producer {
	return NewProducer(NewSQSSender(client), laborQueueURL, emailQueueURL)
}

func (p *Producer) PublishLabor(ctx context.Context, event LaborEvent) error {
	return p.publish(ctx, p.laborQueueURL, EventShiftClosed, event.EmployeeID, event)
}

func (p *Producer) PublishEmail(ctx context.Context, event EmailEvent) error {
	return p.publish(ctx, p.emailQueueURL, EventShiftSummary, event.EmployeeID, event)
}

func (p *Producer) publish(ctx context.Context, destination string, eventType EventType, employeeID string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("app.employeeId", employeeID),
		attribute.String("messaging.event_type", string(eventType)),
	)

	if err := p.sender.SendMessage(ctx, destination, eventType, b); err != nil {
		return fmt.Errorf("failed to send %s event: %w", eventType, err)
	}
	return nil
}
