package maintenance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hourmeter-backend/internal/usage"
)

var weekdays = usage.MustNew(8, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)

func TestAccrueIfScheduled(t *testing.T) {
	m, err := RestoreMachine(MachineState{ID: 1, Name: "Forklift 1", OperatingHours: 100, Schedule: weekdays, IsActive: true})
	require.NoError(t, err)

	out := m.AccrueIfScheduled(time.Saturday)
	assert.False(t, out.Accrued)
	assert.Equal(t, 100.0, out.NewTotal)
	assert.Equal(t, 100.0, m.OperatingHours())

	out = m.AccrueIfScheduled(time.Wednesday)
	assert.True(t, out.Accrued)
	assert.Equal(t, 8.0, out.HoursAdded)
	assert.Equal(t, 108.0, out.NewTotal)
	assert.Equal(t, 108.0, m.OperatingHours())
}

func TestNewMachine_Validation(t *testing.T) {
	_, err := NewMachine(1, " ", weekdays)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "name", vErr.Field)

	_, err = NewMachine(1, "Crane", usage.Schedule{})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "usageSchedule", vErr.Field)

	m, err := NewMachine(1, " Crane ", weekdays)
	require.NoError(t, err)
	assert.Equal(t, "Crane", m.Name())
	assert.True(t, m.IsActive())
	assert.Zero(t, m.OperatingHours())
}

func TestAddAlarm(t *testing.T) {
	m, err := NewMachine(1, "Crane", weekdays)
	require.NoError(t, err)

	a1, err := NewAlarm(11, 1, Definition{Title: "Grease", IntervalHours: 50})
	require.NoError(t, err)
	require.NoError(t, m.AddAlarm(a1))

	dup, err := NewAlarm(11, 1, Definition{Title: "Other", IntervalHours: 50})
	require.NoError(t, err)
	require.ErrorIs(t, m.AddAlarm(dup), ErrDuplicateAlarm)

	foreign, err := NewAlarm(12, 2, Definition{Title: "Foreign", IntervalHours: 50})
	require.NoError(t, err)
	require.Error(t, m.AddAlarm(foreign))

	got, err := m.Alarm(11)
	require.NoError(t, err)
	assert.Same(t, a1, got)

	_, err = m.Alarm(99)
	require.ErrorIs(t, err, ErrAlarmNotFound)
}

func TestRestoreMachine_RejectsAlarmTriggeredInTheFuture(t *testing.T) {
	future := 200.0
	_, err := RestoreMachine(MachineState{
		ID:             1,
		Name:           "Crane",
		OperatingHours: 100,
		Schedule:       weekdays,
		Alarms: []AlarmState{{
			ID:                 1,
			MachineID:          1,
			Definition:         Definition{Title: "x", IntervalHours: 10},
			LastTriggeredHours: &future,
		}},
	})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "alarm.lastTriggeredHours", vErr.Field)
}

func TestRestoreMachine_RejectsNegativeHours(t *testing.T) {
	_, err := RestoreMachine(MachineState{ID: 1, Name: "x", OperatingHours: -1, Schedule: weekdays})
	require.Error(t, err)
}

func TestReplaceSchedule(t *testing.T) {
	m, err := NewMachine(1, "Crane", weekdays)
	require.NoError(t, err)

	changed, err := m.ReplaceSchedule(usage.MustNew(8, time.Friday, time.Thursday, time.Wednesday, time.Tuesday, time.Monday))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = m.ReplaceSchedule(usage.MustNew(12, time.Saturday))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 12.0, m.Schedule().WeeklyHours())

	_, err = m.ReplaceSchedule(usage.Schedule{})
	require.Error(t, err)
}

func TestStateIsADeepCopy(t *testing.T) {
	m, err := NewMachine(1, "Crane", weekdays)
	require.NoError(t, err)
	a, err := NewAlarm(1, 1, Definition{Title: "Grease", IntervalHours: 50, RelatedParts: []string{"grease"}})
	require.NoError(t, err)
	require.NoError(t, m.AddAlarm(a))

	st := m.State()
	st.Alarms[0].RelatedParts[0] = "changed"

	assert.Equal(t, []string{"grease"}, a.RelatedParts())
}

func TestDeactivateMachine(t *testing.T) {
	m, err := NewMachine(1, "Crane", weekdays)
	require.NoError(t, err)

	m.Deactivate()
	assert.False(t, m.IsActive())
	assert.False(t, m.State().IsActive)

	m.Reactivate()
	assert.True(t, m.IsActive())
}
