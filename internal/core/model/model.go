package model

import (
	"time"
)

// PunchType is the kind of time-clock event an employee records.
type PunchType string

const (
	PunchClockIn       PunchType = "CLOCK_IN"
	PunchClockOut      PunchType = "CLOCK_OUT"
	PunchBreakStart    PunchType = "BREAK_START"
	PunchBreakEnd      PunchType = "BREAK_END"
	PunchOvertimeStart PunchType = "OVERTIME_START"
	PunchOvertimeEnd   PunchType = "OVERTIME_END"
)

var punchTypes = []PunchType{
	PunchClockIn, PunchClockOut, PunchBreakStart, PunchBreakEnd, PunchOvertimeStart, PunchOvertimeEnd,
}

// Valid reports whether t is a known punch type.
func (t PunchType) Valid() bool {
	for _, known := range punchTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Punch is a single clock event. The ID is generated on the device that
// captured it and doubles as the idempotency key on the server.
type Punch struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employeeId"`
	Type       PunchType  `json:"type"`
	Timestamp  time.Time  `json:"timestamp"`
	Synced     bool       `json:"synced"`
	SyncedAt   *time.Time `json:"syncedAt,omitempty"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"lastError,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// WorkingTimeStatus defines the state of the labor export of a time record.
type WorkingTimeStatus string

const (
	StatusWorkingPending    WorkingTimeStatus = "PENDING"
	StatusWorkingProcessing WorkingTimeStatus = "PROCESSING"
	StatusWorkingCompleted  WorkingTimeStatus = "COMPLETED"
	StatusWorkingFailed     WorkingTimeStatus = "FAILED"
)

// EmailStatus defines the state of the shift summary email.
type EmailStatus string

const (
	StatusEmailPending    EmailStatus = "PENDING"
	StatusEmailProcessing EmailStatus = "PROCESSING"
	StatusEmailCompleted  EmailStatus = "COMPLETED"
	StatusEmailFailed     EmailStatus = "FAILED"
)

// TimeRecord is the server-side daily sheet of one employee, filled in by punches.
type TimeRecord struct {
	ID              int64             `json:"id"`
	EmployeeID      string            `json:"employeeId"`
	WorkDate        time.Time         `json:"workDate"`
	ClockIn         *time.Time        `json:"clockIn,omitempty"`
	ClockOut        *time.Time        `json:"clockOut,omitempty"`
	BreakStart      *time.Time        `json:"breakStart,omitempty"`
	BreakEnd        *time.Time        `json:"breakEnd,omitempty"`
	OvertimeStart   *time.Time        `json:"overtimeStart,omitempty"`
	OvertimeEnd     *time.Time        `json:"overtimeEnd,omitempty"`
	HoursWorked     float64           `json:"hoursWorked,omitempty"`
	LaborStatus     WorkingTimeStatus `json:"laborStatus"`
	EmailStatus     EmailStatus       `json:"emailStatus"`
	LaborRetryCount int               `json:"laborRetryCount"`
	EmailRetryCount int               `json:"emailRetryCount"`
}

// Closed reports whether the shift has both ends recorded.
func (r *TimeRecord) Closed() bool {
	return r.ClockIn != nil && r.ClockOut != nil
}

// PunchTime returns the stored time of the punch column for t, nil when unset.
func (r *TimeRecord) PunchTime(t PunchType) *time.Time {
	switch t {
	case PunchClockIn:
		return r.ClockIn
	case PunchClockOut:
		return r.ClockOut
	case PunchBreakStart:
		return r.BreakStart
	case PunchBreakEnd:
		return r.BreakEnd
	case PunchOvertimeStart:
		return r.OvertimeStart
	case PunchOvertimeEnd:
		return r.OvertimeEnd
	}
	return nil
}

// ComputeHours returns the worked hours of the record: the shift minus the
// break plus any overtime block. Open intervals count as zero.
func ComputeHours(r *TimeRecord) float64 {
	if !r.Closed() {
		return 0
	}
	worked := r.ClockOut.Sub(*r.ClockIn)
	if r.BreakStart != nil && r.BreakEnd != nil && r.BreakEnd.After(*r.BreakStart) {
		worked -= r.BreakEnd.Sub(*r.BreakStart)
	}
	if r.OvertimeStart != nil && r.OvertimeEnd != nil && r.OvertimeEnd.After(*r.OvertimeStart) {
		worked += r.OvertimeEnd.Sub(*r.OvertimeStart)
	}
	if worked < 0 {
		return 0
	}
	return worked.Hours()
}

// WorkDate truncates ts to the calendar day it falls on in loc.
func WorkDate(ts time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
