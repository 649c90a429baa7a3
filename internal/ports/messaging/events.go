package messaging

import "time"

// EventType is sent as the EventType message attribute so consumers can
// filter without decoding the body.
type EventType string

const (
	EventShiftClosed  EventType = "SHIFT_CLOSED"
	EventShiftSummary EventType = "SHIFT_SUMMARY"
)

// LaborEvent is the JSON payload sent via SQS to the labor queue when a
// shift closes or its overtime block ends.
type LaborEvent struct {
	TimeRecordID int64     `json:"timeRecordId"`
	EmployeeID   string    `json:"employeeId"`
	WorkDate     time.Time `json:"workDate"`
	ClockIn      time.Time `json:"clockIn"`
	ClockOut     time.Time `json:"clockOut"`
	HoursWorked  float64   `json:"hoursWorked"`
}

// EmailEvent is the JSON payload sent via SQS to the email queue.
type EmailEvent struct {
	TimeRecordID int64     `json:"timeRecordId"`
	EmployeeID   string    `json:"employeeId"`
	WorkDate     time.Time `json:"workDate"`
	HoursWorked  float64   `json:"hoursWorked"`
	OccurredAt   time.Time `json:"occurredAt"`
}
