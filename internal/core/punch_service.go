package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/ports/messaging"
	"punchclock.service/internal/ports/repository"
)

// ErrInvalidPunch wraps every validation failure of an incoming punch.
var ErrInvalidPunch = errors.New("invalid punch")

// maxClockSkew bounds how far in the future a device clock may be.
const maxClockSkew = 5 * time.Minute

// PunchResult is the outcome of recording one punch.
type PunchResult struct {
	Record    *model.TimeRecord
	Duplicate bool
}

type PunchService struct {
	repo     repository.Repository
	producer messaging.Publisher
	loc      *time.Location
	now      func() time.Time
}

// NewPunchService wires the repository and the queue producer. Work days are
// cut at midnight in loc.
func NewPunchService(repo repository.Repository, p messaging.Publisher, loc *time.Location) *PunchService {
	if loc == nil {
		loc = time.UTC
	}
	return &PunchService{
		repo:     repo,
		producer: p,
		loc:      loc,
		now:      time.Now,
	}
}

// RecordPunch stores a punch delivered by a device and folds it into the
// employee's daily record. Replaying a punch id is a no-op that reports
// Duplicate. When the punch closes the record or changes its hours, the
// shift is fanned out to the labor and email queues.
func (s *PunchService) RecordPunch(ctx context.Context, p model.Punch, deviceID string) (PunchResult, error) {
	if err := s.validate(p); err != nil {
		return PunchResult{}, err
	}

	workDate := model.WorkDate(p.Timestamp, s.loc)
	rec, duplicate, err := s.repo.ApplyPunch(ctx, p, deviceID, workDate)
	if err != nil {
		return PunchResult{}, fmt.Errorf("failed to apply punch %s: %w", p.ID, err)
	}
	if duplicate {
		log.Ctx(ctx).Info().Str("punch_id", p.ID).Str("employee_id", p.EmployeeID).Msg("Duplicate punch ignored")
		return PunchResult{Record: rec, Duplicate: true}, nil
	}

	log.Ctx(ctx).Info().
		Str("punch_id", p.ID).
		Str("employee_id", p.EmployeeID).
		Str("type", string(p.Type)).
		Str("device_id", deviceID).
		Msg("Punch recorded")

	if !rec.Closed() {
		return PunchResult{Record: rec}, nil
	}

	// The first value per column wins, so a later punch of the same type
	// from another device leaves the record as it was. Postgres keeps microseconds.
	if at := rec.PunchTime(p.Type); at == nil || !at.Equal(p.Timestamp.Truncate(time.Microsecond)) {
		log.Ctx(ctx).Info().Str("punch_id", p.ID).Int64("time_record_id", rec.ID).Msg("Punch did not change the time record")
		return PunchResult{Record: rec}, nil
	}

	hours := model.ComputeHours(rec)
	firstClose := p.Type == model.PunchClockOut && rec.HoursWorked == 0
	if hours == rec.HoursWorked && !firstClose {
		return PunchResult{Record: rec}, nil
	}

	if err := s.repo.CompleteTimeRecord(ctx, rec.ID, hours); err != nil {
		return PunchResult{}, fmt.Errorf("failed to store hours of record %d: %w", rec.ID, err)
	}
	rec.HoursWorked = hours
	rec.LaborStatus = model.StatusWorkingPending
	rec.EmailStatus = model.StatusEmailPending
	rec.LaborRetryCount, rec.EmailRetryCount = 0, 0

	s.publish(ctx, rec)
	return PunchResult{Record: rec}, nil
}

// publish fans out a closed record. A failed publish marks that job FAILED
// and never fails the punch, which is already committed.
func (s *PunchService) publish(ctx context.Context, rec *model.TimeRecord) {
	emailEvent := messaging.EmailEvent{
		TimeRecordID: rec.ID,
		EmployeeID:   rec.EmployeeID,
		WorkDate:     rec.WorkDate,
		HoursWorked:  rec.HoursWorked,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.producer.PublishEmail(ctx, emailEvent); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("time_record_id", rec.ID).Msg("Failed to publish email event")
		if uerr := s.repo.UpdateEmailStatus(ctx, rec.ID, model.StatusEmailFailed, 0); uerr != nil {
			log.Ctx(ctx).Error().Err(uerr).Int64("time_record_id", rec.ID).Msg("Failed to flag email job")
		}
		rec.EmailStatus = model.StatusEmailFailed
	}

	laborEvent := messaging.LaborEvent{
		TimeRecordID: rec.ID,
		EmployeeID:   rec.EmployeeID,
		WorkDate:     rec.WorkDate,
		ClockIn:      *rec.ClockIn,
		ClockOut:     *rec.ClockOut,
		HoursWorked:  rec.HoursWorked,
	}
	if err := s.producer.PublishLabor(ctx, laborEvent); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("time_record_id", rec.ID).Msg("Failed to publish labor event")
		if uerr := s.repo.UpdateLaborStatus(ctx, rec.ID, model.StatusWorkingFailed, 0); uerr != nil {
			log.Ctx(ctx).Error().Err(uerr).Int64("time_record_id", rec.ID).Msg("Failed to flag labor job")
		}
		rec.LaborStatus = model.StatusWorkingFailed
	}
}

func (s *PunchService) validate(p model.Punch) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidPunch)
	case len(p.ID) > 64:
		return fmt.Errorf("%w: id is too long", ErrInvalidPunch)
	case p.EmployeeID == "":
		return fmt.Errorf("%w: employeeId is required", ErrInvalidPunch)
	case !p.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPunch, p.Type)
	case p.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidPunch)
	case p.Timestamp.After(s.now().Add(maxClockSkew)):
		return fmt.Errorf("%w: timestamp is in the future", ErrInvalidPunch)
	}
	return nil
}

// GetTimeRecord returns the record of an employee for the day containing date.
func (s *PunchService) GetTimeRecord(ctx context.Context, employeeID string, date time.Time) (*model.TimeRecord, error) {
	return s.repo.FindTimeRecord(ctx, employeeID, date)
}
