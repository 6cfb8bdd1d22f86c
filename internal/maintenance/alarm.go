package maintenance

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// MaxIntervalHours is the largest accepted alarm interval.
	MaxIntervalHours = 50000
	// MaxRelatedParts caps the spare-part references an alarm may carry.
	MaxRelatedParts = 50
	// MaxTitleLength caps the alarm title.
	MaxTitleLength = 256

	// overdueRatio is how far past its interval an alarm must be before it is shown as overdue.
	overdueRatio = 0.1
)

// Definition is the user-editable part of an alarm.
type Definition struct {
	Title         string
	Description   string
	IntervalHours float64
	RelatedParts  []string
}

func (d Definition) normalize() (Definition, error) {
	out := Definition{
		Title:         strings.TrimSpace(d.Title),
		Description:   strings.TrimSpace(d.Description),
		IntervalHours: d.IntervalHours,
	}
	if out.Title == "" {
		return Definition{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if len(out.Title) > MaxTitleLength {
		return Definition{}, &ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
	}
	if math.IsNaN(d.IntervalHours) || d.IntervalHours <= 0 || d.IntervalHours > MaxIntervalHours {
		return Definition{}, &ValidationError{
			Field:  "intervalHours",
			Reason: fmt.Sprintf("must be within (0, %d], got %v", MaxIntervalHours, d.IntervalHours),
		}
	}
	if len(d.RelatedParts) > MaxRelatedParts {
		return Definition{}, &ValidationError{
			Field:  "relatedParts",
			Reason: fmt.Sprintf("must have at most %d entries, got %d", MaxRelatedParts, len(d.RelatedParts)),
		}
	}
	out.RelatedParts = make([]string, 0, len(d.RelatedParts))
	for i, part := range d.RelatedParts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Definition{}, &ValidationError{Field: "relatedParts", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
		out.RelatedParts = append(out.RelatedParts, part)
	}
	return out, nil
}

func (d Definition) clone() Definition {
	d.RelatedParts = append([]string(nil), d.RelatedParts...)
	return d
}

// AlarmState is the persisted form of an alarm.
type AlarmState struct {
	ID        int64
	MachineID int64
	Definition
	IsActive           bool
	LastTriggeredHours *float64
	LastTriggeredAt    *time.Time
	TimesTriggered     int
}

// Alarm fires once the machine's operating hours since its last trigger reach
// the configured interval. The trigger bookkeeping only changes through Trigger.
type Alarm struct {
	id        int64
	machineID int64
	def       Definition

	active             bool
	lastTriggeredHours *float64
	lastTriggeredAt    *time.Time
	timesTriggered     int
}

// NewAlarm creates an active alarm that has never triggered.
func NewAlarm(id, machineID int64, def Definition) (*Alarm, error) {
	normalized, err := def.normalize()
	if err != nil {
		return nil, err
	}
	return &Alarm{
		id:        id,
		machineID: machineID,
		def:       normalized,
		active:    true,
	}, nil
}

// RestoreAlarm rebuilds an alarm from its persisted state.
func RestoreAlarm(st AlarmState) (*Alarm, error) {
	normalized, err := st.Definition.normalize()
	if err != nil {
		return nil, fmt.Errorf("alarm %d: %w", st.ID, err)
	}
	if st.TimesTriggered < 0 {
		return nil, &ValidationError{Field: "timesTriggered", Reason: "must not be negative"}
	}
	if st.LastTriggeredHours != nil && *st.LastTriggeredHours < 0 {
		return nil, &ValidationError{Field: "lastTriggeredHours", Reason: "must not be negative"}
	}

	a := &Alarm{
		id:             st.ID,
		machineID:      st.MachineID,
		def:            normalized,
		active:         st.IsActive,
		timesTriggered: st.TimesTriggered,
	}
	if st.LastTriggeredHours != nil {
		h := *st.LastTriggeredHours
		a.lastTriggeredHours = &h
	}
	if st.LastTriggeredAt != nil {
		at := *st.LastTriggeredAt
		a.lastTriggeredAt = &at
	}
	return a, nil
}

// State returns a copy of the alarm's persisted fields.
func (a *Alarm) State() AlarmState {
	st := AlarmState{
		ID:             a.id,
		MachineID:      a.machineID,
		Definition:     a.def.clone(),
		IsActive:       a.active,
		TimesTriggered: a.timesTriggered,
	}
	if a.lastTriggeredHours != nil {
		h := *a.lastTriggeredHours
		st.LastTriggeredHours = &h
	}
	if a.lastTriggeredAt != nil {
		at := *a.lastTriggeredAt
		st.LastTriggeredAt = &at
	}
	return st
}

func (a *Alarm) ID() int64 { return a.id }
func (a *Alarm) MachineID() int64 { return a.machineID }
func (a *Alarm) Title() string { return a.def.Title }
func (a *Alarm) IntervalHours() float64 { return a.def.IntervalHours }
func (a *Alarm) IsActive() bool { return a.active }
func (a *Alarm) TimesTriggered() int { return a.timesTriggered }
func (a *Alarm) Definition() Definition { return a.def.clone() }
func (a *Alarm) RelatedParts() []string { return append([]string(nil), a.def.RelatedParts...) }

// LastTriggeredHours returns the operating hours of the most recent trigger.
// ok is false when the alarm has never triggered.
func (a *Alarm) LastTriggeredHours() (hours float64, ok bool) {
	if a.lastTriggeredHours == nil {
		return 0, false
	}
	return *a.lastTriggeredHours, true
}

// LastTriggeredAt returns the time of the most recent trigger.
func (a *Alarm) LastTriggeredAt() (at time.Time, ok bool) {
	if a.lastTriggeredAt == nil {
		return time.Time{}, false
	}
	return *a.lastTriggeredAt, true
}

// Evaluation is the outcome of checking an alarm against an hour total.
type Evaluation struct {
	IsDue          bool
	ElapsedHours   float64
	RemainingHours float64
}

// Evaluate measures the hours elapsed since the last trigger. An alarm that
// never triggered measures from zero, i.e. from the machine's whole history.
func (a *Alarm) Evaluate(currentOperatingHours float64) Evaluation {
	baseline := 0.0
	if a.lastTriggeredHours != nil {
		baseline = *a.lastTriggeredHours
	}
	elapsed := currentOperatingHours - baseline
	return Evaluation{
		IsDue:          elapsed >= a.def.IntervalHours,
		ElapsedHours:   elapsed,
		RemainingHours: math.Max(a.def.IntervalHours-elapsed, 0),
	}
}

// TriggerResult describes a fired alarm for notification sinks.
type TriggerResult struct {
	AlarmID        int64     `json:"alarm_id"`
	MachineID      int64     `json:"machine_id"`
	Title          string    `json:"title"`
	RelatedParts   []string  `json:"related_parts"`
	TimesTriggered int       `json:"times_triggered"`
	TriggeredHours float64   `json:"triggered_hours"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// Trigger records that the alarm fired at currentOperatingHours. It fails
// without mutating anything when the alarm is inactive or not due.
func (a *Alarm) Trigger(currentOperatingHours float64, now time.Time) (TriggerResult, error) {
	if !a.active {
		return TriggerResult{}, fmt.Errorf("alarm %d: %w", a.id, ErrAlarmInactive)
	}
	eval := a.Evaluate(currentOperatingHours)
	if !eval.IsDue {
		return TriggerResult{}, fmt.Errorf("alarm %d: %w (%.1fh remaining)", a.id, ErrAlarmNotDue, eval.RemainingHours)
	}

	hours := currentOperatingHours
	at := now
	a.lastTriggeredHours = &hours
	a.lastTriggeredAt = &at
	a.timesTriggered++

	return TriggerResult{
		AlarmID:        a.id,
		MachineID:      a.machineID,
		Title:          a.def.Title,
		RelatedParts:   a.RelatedParts(),
		TimesTriggered: a.timesTriggered,
		TriggeredHours: hours,
		TriggeredAt:    at,
	}, nil
}

// Deactivate excludes the alarm from evaluation. Trigger bookkeeping is kept.
func (a *Alarm) Deactivate() {
	a.active = false
}

// Reactivate includes the alarm in evaluation again.
func (a *Alarm) Reactivate() {
	a.active = true
}

// Status is the presentation label of an alarm. It is derived from the
// persisted fields on every call and never stored.
type Status string

const (
	StatusPending  Status = "pending"
	StatusDue      Status = "due"
	StatusOverdue  Status = "overdue"
	StatusInactive Status = "inactive"
)

// Status projects the alarm onto its presentation label for the given hour total.
func (a *Alarm) Status(currentOperatingHours float64) Status {
	if !a.active {
		return StatusInactive
	}
	eval := a.Evaluate(currentOperatingHours)
	switch {
	case !eval.IsDue:
		return StatusPending
	case eval.ElapsedHours-a.def.IntervalHours > a.def.IntervalHours*overdueRatio:
		return StatusOverdue
	default:
		return StatusDue
	}
}
