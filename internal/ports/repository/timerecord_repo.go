package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"punchclock.service/internal/core/model"
)

// punchColumns maps a punch type to the time_records column it fills.
// Only these names are ever interpolated into SQL.
var punchColumns = map[model.PunchType]string{
	model.PunchClockIn:       "clock_in",
	model.PunchClockOut:      "clock_out",
	model.PunchBreakStart:    "break_start",
	model.PunchBreakEnd:      "break_end",
	model.PunchOvertimeStart: "overtime_start",
	model.PunchOvertimeEnd:   "overtime_end",
}

const recordColumns = `id, employee_id, work_date, clock_in, clock_out, break_start, break_end,
	overtime_start, overtime_end, hours_worked, labor_status, labor_retry_count, email_status, email_retry_count`

// TimeRecordRepository is the concrete implementation for a PostgreSQL database.
type TimeRecordRepository struct {
	DB *sql.DB
}

func NewTimeRecordRepository(db *sql.DB) *TimeRecordRepository {
	return &TimeRecordRepository{DB: db}
}

// ApplyPunch inserts the punch and, when it is new, sets the matching column
// of the daily record. An already filled column keeps its first value.
func (r *TimeRecordRepository) ApplyPunch(ctx context.Context, p model.Punch, deviceID string, workDate time.Time) (*model.TimeRecord, bool, error) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("app.employeeId", p.EmployeeID),
		attribute.String("app.punchId", p.ID),
	)

	column, ok := punchColumns[p.Type]
	if !ok {
		return nil, false, fmt.Errorf("unknown punch type %q", p.Type)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin punch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO punches (id, employee_id, punch_type, punched_at, device_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.EmployeeID, string(p.Type), p.Timestamp.UTC(), deviceID)
	if err != nil {
		return nil, false, fmt.Errorf("insert punch %s: %w", p.ID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if inserted == 0 {
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		rec, err := r.FindTimeRecord(ctx, p.EmployeeID, workDate)
		if errors.Is(err, ErrNotFound) {
			return nil, true, nil
		}
		return rec, true, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO time_records (employee_id, work_date, labor_status, email_status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (employee_id, work_date) DO NOTHING`,
		p.EmployeeID, workDate, model.StatusWorkingPending, model.StatusEmailPending)
	if err != nil {
		return nil, false, fmt.Errorf("create time record: %w", err)
	}

	query := fmt.Sprintf(
		`UPDATE time_records SET %[1]s = COALESCE(%[1]s, $1), updated_at = now()
		 WHERE employee_id = $2 AND work_date = $3
		 RETURNING %[2]s`, column, recordColumns)
	rec, err := scanRecord(tx.QueryRowContext(ctx, query, p.Timestamp.UTC(), p.EmployeeID, workDate))
	if err != nil {
		return nil, false, fmt.Errorf("apply punch to time record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit punch %s: %w", p.ID, err)
	}
	return rec, false, nil
}

// CompleteTimeRecord stores the hours and resets both fan-out statuses.
func (r *TimeRecordRepository) CompleteTimeRecord(ctx context.Context, id int64, hoursWorked float64) error {
	query := `UPDATE time_records
              SET hours_worked = $1,
                  labor_status = $2, labor_retry_count = 0,
                  email_status = $3, email_retry_count = 0,
                  updated_at = now()
              WHERE id = $4`
	return r.exec(ctx, query, hoursWorked, model.StatusWorkingPending, model.StatusEmailPending, id)
}

// GetTimeRecord fetches a complete time_records row by its ID.
func (r *TimeRecordRepository) GetTimeRecord(ctx context.Context, id int64) (*model.TimeRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM time_records WHERE id = $1`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// FindTimeRecord returns the record of an employee for one work day.
func (r *TimeRecordRepository) FindTimeRecord(ctx context.Context, employeeID string, workDate time.Time) (*model.TimeRecord, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employeeID))

	query := `SELECT ` + recordColumns + ` FROM time_records WHERE employee_id = $1 AND work_date = $2`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, employeeID, workDate))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// UpdateLaborStatus updates the status and retry count for a labor-related job.
func (r *TimeRecordRepository) UpdateLaborStatus(ctx context.Context, id int64, status model.WorkingTimeStatus, retryCount int) error {
	query := `UPDATE time_records SET labor_status = $1, labor_retry_count = $2, updated_at = now() WHERE id = $3`
	return r.exec(ctx, query, status, retryCount, id)
}

// UpdateEmailStatus updates the status and retry count for an email-related job.
func (r *TimeRecordRepository) UpdateEmailStatus(ctx context.Context, id int64, status model.EmailStatus, retryCount int) error {
	query := `UPDATE time_records SET email_status = $1, email_retry_count = $2, updated_at = now() WHERE id = $3`
	return r.exec(ctx, query, status, retryCount, id)
}

func (r *TimeRecordRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.TimeRecord, error) {
	var (
		rec                                  model.TimeRecord
		clockIn, clockOut, breakStart        sql.NullTime
		breakEnd, overtimeStart, overtimeEnd sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.EmployeeID, &rec.WorkDate,
		&clockIn, &clockOut, &breakStart, &breakEnd, &overtimeStart, &overtimeEnd,
		&rec.HoursWorked, &rec.LaborStatus, &rec.LaborRetryCount, &rec.EmailStatus, &rec.EmailRetryCount,
	)
	if err != nil {
		return nil, err
	}
	rec.ClockIn = nullTime(clockIn)
	rec.ClockOut = nullTime(clockOut)
	rec.BreakStart = nullTime(breakStart)
	rec.BreakEnd = nullTime(breakEnd)
	rec.OvertimeStart = nullTime(overtimeStart)
	rec.OvertimeEnd = nullTime(overtimeEnd)
	return &rec, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
