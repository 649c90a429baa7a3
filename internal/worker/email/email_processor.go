package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core"
	"punchclock.service/internal/core/model"
	"punchclock.service/internal/ports/messaging"
	"punchclock.service/internal/ports/repository"
	"punchclock.service/internal/worker"
)

// MaxRetries is the number of failed sends after which the summary is given up.
const MaxRetries = 5

type Processor struct {
	emailService core.EmailService
	repo         repository.Repository
	domain       string
}

// NewProcessor sends shift summaries to <employeeId>@domain.
func NewProcessor(emailService core.EmailService, repo repository.Repository, domain string) *Processor {
	return &Processor{
		emailService: emailService,
		repo:         repo,
		domain:       domain,
	}
}

func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event messaging.EmailEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal email event")
		return false, 0, err
	}

	record, err := p.repo.GetTimeRecord(ctx, event.TimeRecordID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, 0, fmt.Errorf("time record %d does not exist: %w", event.TimeRecordID, err)
	}
	if err != nil {
		return true, worker.Backoff(0), fmt.Errorf("failed to get record from db for email processing: %w", err)
	}

	if record.EmailStatus == model.StatusEmailCompleted {
		log.Ctx(ctx).Info().Int64("time_record_id", event.TimeRecordID).Msg("Email already sent. Skipping.")
		return false, 0, nil
	}

	// The record holds the latest hours when a later overtime punch re-closed the day.
	err = p.emailService.SendShiftSummary(ctx, event.EmployeeID+"@"+p.domain, record.WorkDate, record.HoursWorked)
	if err != nil {
		newCount := record.EmailRetryCount + 1
		if newCount >= MaxRetries {
			_ = p.repo.UpdateEmailStatus(ctx, record.ID, model.StatusEmailFailed, newCount)
			return false, 0, fmt.Errorf("giving up after %d attempts: %w", newCount, err)
		}
		if uerr := p.repo.UpdateEmailStatus(ctx, record.ID, model.StatusEmailPending, newCount); uerr != nil {
			log.Ctx(ctx).Error().Err(uerr).Msg("Failed to store email retry count")
		}
		return true, worker.Backoff(newCount), err
	}

	if err := p.repo.UpdateEmailStatus(ctx, record.ID, model.StatusEmailCompleted, record.EmailRetryCount); err != nil {
		return true, worker.Backoff(0), fmt.Errorf("failed to mark email sent: %w", err)
	}
	return false, 0, nil
}
