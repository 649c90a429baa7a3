package core

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"punchclock.service/pkg/telemetry"
)

type EmailService interface {
	SendShiftSummary(ctx context.Context, to string, workDate time.Time, hours float64) error
}

// SESClient is the part of the SES client used to send mail.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESEmailService struct {
	client SESClient
	sender string
}

func NewSESEmailService(client SESClient, sender string) *SESEmailService {
	return &SESEmailService{client: client, sender: sender}
}

func (s *SESEmailService) SendShiftSummary(ctx context.Context, to string, workDate time.Time, hours float64) error {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "send_email", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if empID := telemetry.GetEmployeeIDFromContext(ctx); empID != "" {
		span.SetAttributes(attribute.String("app.employeeId", empID))
	}

	day := workDate.Format(time.DateOnly)
	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Work Shift Summary " + day),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(fmt.Sprintf("Hello,\n\nYour time sheet for %s is closed. Total hours worked: %.2f hours.", day, hours)),
				},
			},
		},
	}

	_, err := s.client.SendEmail(ctx, input)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
