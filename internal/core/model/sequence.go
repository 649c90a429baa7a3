package model

import (
	"errors"
	"fmt"
)

// ErrSequence is returned when a punch does not fit the employee's day so far.
var ErrSequence = errors.New("punch out of sequence")

// DayState tracks which punches an employee already has on a work day.
type DayState struct {
	seen map[PunchType]bool
}

// NewDayState builds the state from punches already recorded that day.
func NewDayState(punches []Punch) *DayState {
	s := &DayState{seen: make(map[PunchType]bool)}
	for _, p := range punches {
		s.seen[p.Type] = true
	}
	return s
}

// Has reports whether a punch of type t was recorded.
func (s *DayState) Has(t PunchType) bool {
	return s.seen[t]
}

// CanApply checks t against the day rules:
// a single shift, at most one break inside it, and one overtime block after it.
// Clocking out with the break still open is allowed; the break then counts as zero.
func (s *DayState) CanApply(t PunchType) error {
	ok := false
	switch t {
	case PunchClockIn:
		ok = !s.Has(PunchClockIn)
	case PunchClockOut:
		ok = s.Has(PunchClockIn) && !s.Has(PunchClockOut)
	case PunchBreakStart:
		ok = s.Has(PunchClockIn) && !s.Has(PunchClockOut) && !s.Has(PunchBreakStart)
	case PunchBreakEnd:
		ok = s.Has(PunchBreakStart) && !s.Has(PunchBreakEnd) && !s.Has(PunchClockOut)
	case PunchOvertimeStart:
		ok = s.Has(PunchClockOut) && !s.Has(PunchOvertimeStart)
	case PunchOvertimeEnd:
		ok = s.Has(PunchOvertimeStart) && !s.Has(PunchOvertimeEnd)
	default:
		return fmt.Errorf("unknown punch type %q", t)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSequence, t)
	}
	return nil
}

// Apply records t after a successful CanApply.
func (s *DayState) Apply(t PunchType) {
	s.seen[t] = true
}
