package repository

import (
	"context"
	"errors"
	"time"

	"punchclock.service/internal/core/model"
)

var ErrNotFound = errors.New("time record not found")

// Repository contract
type Repository interface {
	// ApplyPunch stores p and folds it into the employee's record for
	// workDate in one transaction. A punch id seen before changes nothing and
	// reports duplicate=true together with the current record.
	ApplyPunch(ctx context.Context, p model.Punch, deviceID string, workDate time.Time) (rec *model.TimeRecord, duplicate bool, err error)
	// CompleteTimeRecord stores the computed hours and queues the record for
	// labor export and email again.
	CompleteTimeRecord(ctx context.Context, id int64, hoursWorked float64) error
	GetTimeRecord(ctx context.Context, id int64) (*model.TimeRecord, error)
	FindTimeRecord(ctx context.Context, employeeID string, workDate time.Time) (*model.TimeRecord, error)
	UpdateLaborStatus(ctx context.Context, id int64, status model.WorkingTimeStatus, retryCount int) error
	UpdateEmailStatus(ctx context.Context, id int64, status model.EmailStatus, retryCount int) error
}
