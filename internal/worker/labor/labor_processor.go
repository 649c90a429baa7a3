package labor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/ports/messaging"
	"punchclock.service/internal/ports/repository"
	"punchclock.service/internal/worker"
	"punchclock.service/internal/worker/legacyapi"
)

// MaxRetries is the number of failed deliveries after which a record is
// marked FAILED and its message dropped.
const MaxRetries = 10

// Processor handles jobs from the labor queue by forwarding closed shifts to
// the legacy payroll API behind a circuit breaker.
type Processor struct {
	repo   repository.Repository
	legacy legacyapi.Client
	cb     *gobreaker.CircuitBreaker
}

func NewProcessor(r repository.Repository, legacy legacyapi.Client) *Processor {
	settings := gobreaker.Settings{
		Name:        "Legacy-API",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate is at least 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}

	return &Processor{
		repo:   r,
		legacy: legacy,
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	var event messaging.LaborEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal labor event")
		return false, 0, err
	}

	logger := log.Ctx(ctx).With().Int64("time_record_id", event.TimeRecordID).Str("employee_id", event.EmployeeID).Logger()

	record, err := p.repo.GetTimeRecord(ctx, event.TimeRecordID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, 0, fmt.Errorf("time record %d does not exist: %w", event.TimeRecordID, err)
	}
	if err != nil {
		return true, worker.Backoff(0), fmt.Errorf("failed to get record from db: %w", err)
	}

	if record.LaborStatus == model.StatusWorkingCompleted {
		logger.Info().Msg("Shift already exported. Skipping.")
		return false, 0, nil
	}

	if err := p.repo.UpdateLaborStatus(ctx, record.ID, model.StatusWorkingProcessing, record.LaborRetryCount); err != nil {
		return true, worker.Backoff(0), fmt.Errorf("failed to mark record processing: %w", err)
	}

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.legacy.RecordShift(ctx, event)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Warn().Msg("Circuit breaker is open; skipping legacy API call")
		}

		newCount := record.LaborRetryCount + 1
		if newCount >= MaxRetries {
			_ = p.repo.UpdateLaborStatus(ctx, record.ID, model.StatusWorkingFailed, newCount)
			return false, 0, fmt.Errorf("giving up after %d attempts: %w", newCount, err)
		}
		if uerr := p.repo.UpdateLaborStatus(ctx, record.ID, model.StatusWorkingPending, newCount); uerr != nil {
			logger.Error().Err(uerr).Msg("Failed to store labor retry count")
		}
		return true, worker.Backoff(newCount), err
	}

	logger.Info().Float64("hours_worked", event.HoursWorked).Msg("Shift exported to legacy payroll")
	if err := p.repo.UpdateLaborStatus(ctx, record.ID, model.StatusWorkingCompleted, record.LaborRetryCount); err != nil {
		return true, worker.Backoff(0), fmt.Errorf("failed to mark record completed: %w", err)
	}
	return false, 0, nil
}
