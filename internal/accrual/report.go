package accrual

import (
	"encoding/json"
	"fmt"
	"time"
)

// MachineFailure is a machine that could not be processed in a run.
type MachineFailure struct {
	MachineID int64
	Err       error
}

func (f MachineFailure) String() string {
	return fmt.Sprintf("machine %d: %v", f.MachineID, f.Err)
}

// NotificationFailure is a trigger whose delivery to the sink failed. The
// trigger itself stays recorded on the alarm.
type NotificationFailure struct {
	MachineID int64
	AlarmID   int64
	Err       error
}

func (f NotificationFailure) String() string {
	return fmt.Sprintf("machine %d alarm %d: %v", f.MachineID, f.AlarmID, f.Err)
}

// RunReport summarizes one accrual run.
type RunReport struct {
	RunID string
	Today time.Weekday
	Now   time.Time

	// MachinesTotal is the size of the active fleet loaded at the start of the run.
	MachinesTotal int
	// MachinesProcessed counts machines whose unit completed without error.
	MachinesProcessed int
	// MachinesAccrued counts processed machines whose hours grew in this run.
	MachinesAccrued int
	// MachinesSkipped counts machines deactivated between loading the fleet and processing them.
	MachinesSkipped int
	// MachinesAlreadyAccrued counts machines an earlier run had already handled for this day.
	MachinesAlreadyAccrued int
	AlarmsTriggered        int

	Failures             []MachineFailure
	NotificationFailures []NotificationFailure

	Duration time.Duration
}

// Failed reports whether any machine failed.
func (r *RunReport) Failed() bool {
	return len(r.Failures) > 0
}

// Outcome classifies the run for metrics and run history.
func (r *RunReport) Outcome() string {
	switch {
	case len(r.Failures) == 0 && len(r.NotificationFailures) == 0:
		return OutcomeSuccess
	case r.MachinesProcessed == 0 && r.MachinesTotal > 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

type failureJSON struct {
	MachineID int64  `json:"machine_id"`
	AlarmID   int64  `json:"alarm_id,omitempty"`
	Error     string `json:"error"`
}

type reportJSON struct {
	RunID                  string        `json:"run_id"`
	Today                  string        `json:"today"`
	Now                    time.Time     `json:"now"`
	Outcome                string        `json:"outcome"`
	MachinesTotal          int           `json:"machines_total"`
	MachinesProcessed      int           `json:"machines_processed"`
	MachinesAccrued        int           `json:"machines_accrued"`
	MachinesSkipped        int           `json:"machines_skipped"`
	MachinesAlreadyAccrued int           `json:"machines_already_accrued"`
	AlarmsTriggered        int           `json:"alarms_triggered"`
	Failures               []failureJSON `json:"failures"`
	NotificationFailures   []failureJSON `json:"notification_failures"`
	DurationMillis         int64         `json:"duration_ms"`
}

// MarshalJSON renders the report with errors as strings.
func (r *RunReport) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		RunID:                  r.RunID,
		Today:                  r.Today.String(),
		Now:                    r.Now,
		Outcome:                r.Outcome(),
		MachinesTotal:          r.MachinesTotal,
		MachinesProcessed:      r.MachinesProcessed,
		MachinesAccrued:        r.MachinesAccrued,
		MachinesSkipped:        r.MachinesSkipped,
		MachinesAlreadyAccrued: r.MachinesAlreadyAccrued,
		AlarmsTriggered:        r.AlarmsTriggered,
		Failures:               make([]failureJSON, 0, len(r.Failures)),
		NotificationFailures:   make([]failureJSON, 0, len(r.NotificationFailures)),
		DurationMillis:         r.Duration.Milliseconds(),
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, failureJSON{MachineID: f.MachineID, Error: errString(f.Err)})
	}
	for _, f := range r.NotificationFailures {
		out.NotificationFailures = append(out.NotificationFailures, failureJSON{MachineID: f.MachineID, AlarmID: f.AlarmID, Error: errString(f.Err)})
	}
	return json.Marshal(out)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
