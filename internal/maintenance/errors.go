package maintenance

import (
	"errors"
	"fmt"
)

var (
	// ErrAlarmNotDue is returned by Trigger when the alarm's interval has not elapsed yet.
	ErrAlarmNotDue = errors.New("maintenance alarm is not due")
	// ErrAlarmInactive is returned by Trigger on a deactivated alarm.
	ErrAlarmInactive = errors.New("maintenance alarm is inactive")
	// ErrDuplicateAlarm is returned when a machine already holds an alarm with the same id.
	ErrDuplicateAlarm = errors.New("duplicate maintenance alarm id")
	// ErrAlarmNotFound is returned when a machine has no alarm with the requested id.
	ErrAlarmNotFound = errors.New("maintenance alarm not found")

	// ErrMachineNotFound is returned by stores when the machine does not exist.
	ErrMachineNotFound = errors.New("machine not found")
	// ErrConflict is returned by stores when a write lost against a concurrent writer.
	ErrConflict = errors.New("machine was modified concurrently")
)

// ValidationError reports an invalid alarm or machine field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
