package maintenance

import (
	"fmt"
	"math"
	"strings"
	"time"

	"hourmeter-backend/internal/usage"
)

// MachineState is the persisted form of a machine and its alarms.
type MachineState struct {
	ID             int64
	Name           string
	OperatingHours float64
	Schedule       usage.Schedule
	Alarms         []AlarmState
	IsActive       bool
	// Version is the optimistic concurrency token maintained by the store.
	Version int64
}

// Machine is the usage-relevant slice of a tracked machine. Its operating
// hours only grow, and only through AccrueIfScheduled.
type Machine struct {
	id             int64
	name           string
	operatingHours float64
	schedule       usage.Schedule
	alarms         []*Alarm
	active         bool
	version        int64
}

// NewMachine registers an active machine with no operating history.
func NewMachine(id int64, name string, schedule usage.Schedule) (*Machine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if schedule.IsZero() {
		return nil, &ValidationError{Field: "usageSchedule", Reason: "must be set"}
	}
	return &Machine{
		id:       id,
		name:     name,
		schedule: schedule,
		active:   true,
	}, nil
}

// RestoreMachine rebuilds a machine aggregate from its persisted state.
func RestoreMachine(st MachineState) (*Machine, error) {
	if math.IsNaN(st.OperatingHours) || st.OperatingHours < 0 {
		return nil, &ValidationError{Field: "operatingHours", Reason: fmt.Sprintf("must not be negative, got %v", st.OperatingHours)}
	}
	if st.Schedule.IsZero() {
		return nil, &ValidationError{Field: "usageSchedule", Reason: "must be set"}
	}

	m := &Machine{
		id:             st.ID,
		name:           st.Name,
		operatingHours: st.OperatingHours,
		schedule:       st.Schedule,
		active:         st.IsActive,
		version:        st.Version,
		alarms:         make([]*Alarm, 0, len(st.Alarms)),
	}
	for _, as := range st.Alarms {
		a, err := RestoreAlarm(as)
		if err != nil {
			return nil, fmt.Errorf("machine %d: %w", st.ID, err)
		}
		if err := m.AddAlarm(a); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// State returns a deep copy of the machine's persisted fields.
func (m *Machine) State() MachineState {
	st := MachineState{
		ID:             m.id,
		Name:           m.name,
		OperatingHours: m.operatingHours,
		Schedule:       m.schedule,
		IsActive:       m.active,
		Version:        m.version,
		Alarms:         make([]AlarmState, 0, len(m.alarms)),
	}
	for _, a := range m.alarms {
		st.Alarms = append(st.Alarms, a.State())
	}
	return st
}

func (m *Machine) ID() int64 { return m.id }
func (m *Machine) Name() string { return m.name }
func (m *Machine) OperatingHours() float64 { return m.operatingHours }
func (m *Machine) Schedule() usage.Schedule { return m.schedule }
func (m *Machine) IsActive() bool { return m.active }
func (m *Machine) Version() int64 { return m.version }

// Alarms returns the machine's alarms in their stored order. The slice is a
// copy; the alarms themselves are shared so the scheduler can drive them.
func (m *Machine) Alarms() []*Alarm {
	return append([]*Alarm(nil), m.alarms...)
}

// Alarm looks up an alarm by id.
func (m *Machine) Alarm(id int64) (*Alarm, error) {
	for _, a := range m.alarms {
		if a.id == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("machine %d alarm %d: %w", m.id, id, ErrAlarmNotFound)
}

// AddAlarm attaches an alarm to the machine. The alarm must belong to this
// machine, carry an id not yet used here, and not have triggered beyond the
// machine's current hours.
func (m *Machine) AddAlarm(a *Alarm) error {
	if a.machineID != m.id {
		return &ValidationError{
			Field:  "alarm.machineId",
			Reason: fmt.Sprintf("alarm %d belongs to machine %d, not %d", a.id, a.machineID, m.id),
		}
	}
	for _, existing := range m.alarms {
		if existing.id == a.id {
			return fmt.Errorf("machine %d alarm %d: %w", m.id, a.id, ErrDuplicateAlarm)
		}
	}
	if h, ok := a.LastTriggeredHours(); ok && h > m.operatingHours {
		return &ValidationError{
			Field:  "alarm.lastTriggeredHours",
			Reason: fmt.Sprintf("alarm %d triggered at %v, after the machine's %v hours", a.id, h, m.operatingHours),
		}
	}
	m.alarms = append(m.alarms, a)
	return nil
}

// ReplaceSchedule swaps in a new schedule wholesale. It reports false when
// the new schedule equals the current one and nothing changed.
func (m *Machine) ReplaceSchedule(s usage.Schedule) (bool, error) {
	if s.IsZero() {
		return false, &ValidationError{Field: "usageSchedule", Reason: "must be set"}
	}
	if m.schedule.Equal(s) {
		return false, nil
	}
	m.schedule = s
	return true, nil
}

// AccrualOutcome reports what AccrueIfScheduled did.
type AccrualOutcome struct {
	Accrued    bool
	HoursAdded float64
	NewTotal   float64
}

// AccrueIfScheduled adds one day of scheduled hours when today is an
// operating day and is a no-op otherwise. Guarding against a second call for
// the same day is the caller's job.
func (m *Machine) AccrueIfScheduled(today time.Weekday) AccrualOutcome {
	if !m.schedule.ShouldAccumulateToday(today) {
		return AccrualOutcome{Accrued: false, NewTotal: m.operatingHours}
	}
	added := m.schedule.DailyHours()
	m.operatingHours += added
	return AccrualOutcome{
		Accrued:    true,
		HoursAdded: added,
		NewTotal:   m.operatingHours,
	}
}

// Deactivate removes the machine from future accrual runs.
func (m *Machine) Deactivate() {
	m.active = false
}

// Reactivate puts the machine back into accrual runs.
func (m *Machine) Reactivate() {
	m.active = true
}
