package accrual

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/metrics"
	"hourmeter-backend/internal/usage"
)

// memStore is an in-memory MachineStore with a version check on save.
type memStore struct {
	mu        sync.Mutex
	order     []int64
	machines  map[int64]maintenance.MachineState
	ledgers   map[int64]Ledger
	loadErr   error
	failLoad  map[int64]error
	panicLoad map[int64]bool
	conflicts map[int64]int
	afterList func()
	saves     int
}

func newMemStore() *memStore {
	return &memStore{
		machines:  make(map[int64]maintenance.MachineState),
		ledgers:   make(map[int64]Ledger),
		failLoad:  make(map[int64]error),
		panicLoad: make(map[int64]bool),
		conflicts: make(map[int64]int),
	}
}

func (s *memStore) put(t *testing.T, st maintenance.MachineState) {
	t.Helper()
	_, err := maintenance.RestoreMachine(st)
	require.NoError(t, err)
	s.order = append(s.order, st.ID)
	s.machines[st.ID] = st
}

func (s *memStore) ActiveMachineIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []int64
	for _, id := range s.order {
		if s.machines[id].IsActive {
			out = append(out, id)
		}
	}
	if s.afterList != nil {
		s.afterList()
	}
	return out, nil
}

func (s *memStore) LoadMachine(_ context.Context, id int64) (*maintenance.Machine, Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicLoad[id] {
		panic("corrupt row")
	}
	if err := s.failLoad[id]; err != nil {
		return nil, Ledger{}, err
	}
	st, ok := s.machines[id]
	if !ok {
		return nil, Ledger{}, maintenance.ErrMachineNotFound
	}
	m, err := maintenance.RestoreMachine(st)
	return m, s.ledgers[id], err
}

func (s *memStore) SaveMachine(_ context.Context, m *maintenance.Machine, ledger Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.machines[m.ID()]
	if !ok {
		return maintenance.ErrMachineNotFound
	}
	if s.conflicts[m.ID()] > 0 {
		// Someone else wrote the row first.
		s.conflicts[m.ID()]--
		stored.Version++
		s.machines[m.ID()] = stored
		return maintenance.ErrConflict
	}
	if stored.Version != m.Version() {
		return maintenance.ErrConflict
	}
	st := m.State()
	st.Version = stored.Version + 1
	s.machines[m.ID()] = st
	s.ledgers[m.ID()] = ledger
	s.saves++
	return nil
}

func (s *memStore) state(id int64) maintenance.MachineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machines[id]
}

type recordingSink struct {
	mu      sync.Mutex
	got     []maintenance.TriggerResult
	failFor map[int64]error
	panics  bool
}

func (s *recordingSink) NotifyAlarmTriggered(_ context.Context, r maintenance.TriggerResult) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[r.AlarmID]; err != nil {
		return err
	}
	s.got = append(s.got, r)
	return nil
}

type recorderFunc func(ctx context.Context, r *RunReport) error

func (f recorderFunc) RecordRun(ctx context.Context, r *RunReport) error { return f(ctx, r) }

var monWedFri = usage.MustNew(10, time.Monday, time.Wednesday, time.Friday)

// 2025-03-03 is a Monday.
func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 5, 0, 0, time.UTC)
}

func machineWithAlarm(id int64, hours, interval float64) maintenance.MachineState {
	return maintenance.MachineState{
		ID:             id,
		Name:           "Excavator",
		OperatingHours: hours,
		Schedule:       monWedFri,
		IsActive:       true,
		Alarms: []maintenance.AlarmState{{
			ID:         id * 100,
			MachineID:  id,
			Definition: maintenance.Definition{Title: "Oil change", IntervalHours: interval, RelatedParts: []string{"oil filter"}},
			IsActive:   true,
		}},
	}
}

func newTestService(t *testing.T, store MachineStore, sink Sink, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(store, sink, opts...)
	require.NoError(t, err)
	return svc
}

func run(t *testing.T, svc *Service, now time.Time) *RunReport {
	t.Helper()
	report, err := svc.RunDailyAccrual(context.Background(), now.Weekday(), now)
	require.NoError(t, err)
	return report
}

func TestRunDailyAccrual_AccruesOverAWeekAndTriggersOnce(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 0, 30))
	sink := &recordingSink{}
	svc := newTestService(t, store, sink)

	report := run(t, svc, day(3))
	assert.Equal(t, 1, report.MachinesAccrued)
	assert.Equal(t, 10.0, store.state(1).OperatingHours)
	assert.Zero(t, report.AlarmsTriggered)

	report = run(t, svc, day(4))
	assert.Zero(t, report.MachinesAccrued)
	assert.Equal(t, 1, report.MachinesProcessed)
	assert.Equal(t, 10.0, store.state(1).OperatingHours)

	run(t, svc, day(5))
	assert.Equal(t, 20.0, store.state(1).OperatingHours)
	assert.Empty(t, sink.got)

	report = run(t, svc, day(7))
	assert.Equal(t, 30.0, store.state(1).OperatingHours)
	assert.Equal(t, 1, report.AlarmsTriggered)
	require.Len(t, sink.got, 1)

	got := sink.got[0]
	assert.Equal(t, int64(100), got.AlarmID)
	assert.Equal(t, int64(1), got.MachineID)
	assert.Equal(t, "Oil change", got.Title)
	assert.Equal(t, []string{"oil filter"}, got.RelatedParts)
	assert.Equal(t, 30.0, got.TriggeredHours)
	assert.Equal(t, day(7), got.TriggeredAt)
	assert.Equal(t, 1, got.TimesTriggered)

	alarm := store.state(1).Alarms[0]
	require.NotNil(t, alarm.LastTriggeredHours)
	assert.Equal(t, 30.0, *alarm.LastTriggeredHours)
	assert.Equal(t, 1, alarm.TimesTriggered)
}

func TestRunDailyAccrual_RerunSameDayDoesNotAccrueTwice(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 20, 30))
	sink := &recordingSink{}
	svc := newTestService(t, store, sink)

	first := run(t, svc, day(7))
	assert.Equal(t, 1, first.MachinesAccrued)
	assert.Equal(t, 1, first.AlarmsTriggered)

	second := run(t, svc, day(7).Add(3*time.Hour))
	assert.Zero(t, second.MachinesAccrued)
	assert.Equal(t, 1, second.MachinesAlreadyAccrued)
	assert.Zero(t, second.AlarmsTriggered)
	assert.Equal(t, 30.0, store.state(1).OperatingHours)
	assert.Len(t, sink.got, 1)
	assert.Equal(t, 1, store.saves)
}

func TestRunDailyAccrual_IsolatesFailingMachine(t *testing.T) {
	store := newMemStore()
	for id := int64(1); id <= 5; id++ {
		store.put(t, machineWithAlarm(id, 0, 100))
	}
	store.failLoad[3] = errors.New("connection reset")
	svc := newTestService(t, store, &recordingSink{})

	report := run(t, svc, day(3))

	assert.Equal(t, 5, report.MachinesTotal)
	assert.Equal(t, 4, report.MachinesProcessed)
	assert.Equal(t, 4, report.MachinesAccrued)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(3), report.Failures[0].MachineID)
	assert.ErrorContains(t, report.Failures[0].Err, "connection reset")
	assert.Equal(t, OutcomePartial, report.Outcome())

	for _, id := range []int64{1, 2, 4, 5} {
		assert.Equal(t, 10.0, store.state(id).OperatingHours, "machine %d", id)
	}
	assert.Zero(t, store.state(3).OperatingHours)
}

func TestRunDailyAccrual_PanicFailsOnlyThatMachine(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 0, 100))
	store.put(t, machineWithAlarm(2, 0, 100))
	store.panicLoad[1] = true
	svc := newTestService(t, store, &recordingSink{})

	report := run(t, svc, day(3))

	assert.Equal(t, 1, report.MachinesProcessed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(1), report.Failures[0].MachineID)
	assert.ErrorContains(t, report.Failures[0].Err, "corrupt row")
	assert.Equal(t, 10.0, store.state(2).OperatingHours)
}

func TestRunDailyAccrual_RetriesOnConflict(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 0, 100))
	store.conflicts[1] = 2
	svc := newTestService(t, store, &recordingSink{}, WithMaxConflictRetries(3))

	report := run(t, svc, day(3))

	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, report.MachinesAccrued)
	assert.Equal(t, 10.0, store.state(1).OperatingHours)
}

func TestRunDailyAccrual_GivesUpAfterRetries(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 0, 100))
	store.conflicts[1] = 5
	svc := newTestService(t, store, &recordingSink{}, WithMaxConflictRetries(1))

	report := run(t, svc, day(3))

	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, maintenance.ErrConflict)
	assert.Equal(t, 3, store.conflicts[1])
	assert.Zero(t, store.state(1).OperatingHours)
	assert.Equal(t, OutcomeFailed, report.Outcome())
}

func TestRunDailyAccrual_NotificationFailureKeepsTrigger(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 20, 30))
	sink := &recordingSink{failFor: map[int64]error{100: errors.New("broker down")}}
	svc := newTestService(t, store, sink)

	report := run(t, svc, day(3))

	assert.Equal(t, 1, report.AlarmsTriggered)
	assert.Empty(t, report.Failures)
	require.Len(t, report.NotificationFailures, 1)
	assert.Equal(t, int64(100), report.NotificationFailures[0].AlarmID)
	assert.Equal(t, OutcomePartial, report.Outcome())
	assert.Equal(t, 1, store.state(1).Alarms[0].TimesTriggered)

	// The trigger is not replayed on the next run.
	sink.failFor = nil
	report = run(t, svc, day(3))
	assert.Zero(t, report.AlarmsTriggered)
	assert.Empty(t, sink.got)
}

func TestRunDailyAccrual_PanickingSinkIsANotificationFailure(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 20, 30))
	svc := newTestService(t, store, &recordingSink{panics: true})

	report := run(t, svc, day(3))

	require.Len(t, report.NotificationFailures, 1)
	assert.ErrorContains(t, report.NotificationFailures[0].Err, "sink exploded")
	assert.Equal(t, 1, store.state(1).Alarms[0].TimesTriggered)
}

func TestRunDailyAccrual_NotifiesInLoadOrder(t *testing.T) {
	store := newMemStore()
	ids := []int64{7, 3, 9, 1, 5, 2, 8, 4, 6}
	for _, id := range ids {
		store.put(t, machineWithAlarm(id, 25, 30))
	}
	sink := &recordingSink{}
	svc := newTestService(t, store, sink, WithWorkers(8))

	report := run(t, svc, day(3))

	assert.Equal(t, len(ids), report.AlarmsTriggered)
	require.Len(t, sink.got, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, sink.got[i].MachineID)
	}
}

func TestRunDailyAccrual_TriggersWithoutAccrual(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 100, 50))
	sink := &recordingSink{}
	svc := newTestService(t, store, sink)

	// Tuesday is not an operating day.
	report := run(t, svc, day(4))

	assert.Zero(t, report.MachinesAccrued)
	assert.Equal(t, 1, report.AlarmsTriggered)
	require.Len(t, sink.got, 1)
	assert.Equal(t, 100.0, sink.got[0].TriggeredHours)
	assert.Equal(t, 100.0, store.state(1).OperatingHours)
}

func TestRunDailyAccrual_SkipsInactiveAlarms(t *testing.T) {
	store := newMemStore()
	st := machineWithAlarm(1, 100, 50)
	st.Alarms[0].IsActive = false
	store.put(t, st)
	sink := &recordingSink{}
	svc := newTestService(t, store, sink)

	report := run(t, svc, day(3))

	assert.Zero(t, report.AlarmsTriggered)
	assert.Empty(t, sink.got)
	assert.Equal(t, 110.0, store.state(1).OperatingHours)
}

func TestRunDailyAccrual_SkipsMachineDeactivatedMidRun(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 0, 100))
	store.put(t, machineWithAlarm(2, 0, 100))
	store.afterList = func() {
		st := store.machines[2]
		st.IsActive = false
		store.machines[2] = st
	}
	svc := newTestService(t, store, &recordingSink{})

	report := run(t, svc, day(3))

	assert.Equal(t, 2, report.MachinesTotal)
	assert.Equal(t, 1, report.MachinesProcessed)
	assert.Equal(t, 1, report.MachinesSkipped)
	assert.Empty(t, report.Failures)
	assert.Zero(t, store.state(2).OperatingHours)
}

func TestRunDailyAccrual_LoadFailureAbortsRun(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("db unavailable")
	var recorded bool
	svc := newTestService(t, store, &recordingSink{}, WithRunRecorder(recorderFunc(func(context.Context, *RunReport) error {
		recorded = true
		return nil
	})))

	report, err := svc.RunDailyAccrual(context.Background(), time.Monday, day(3))

	require.Error(t, err)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.MachinesTotal)
	assert.False(t, recorded)
}

func TestRunDailyAccrual_EmptyFleet(t *testing.T) {
	svc := newTestService(t, newMemStore(), &recordingSink{})

	report := run(t, svc, day(3))

	assert.Zero(t, report.MachinesTotal)
	assert.Equal(t, OutcomeSuccess, report.Outcome())
}

func TestRunDailyAccrual_RecordsRunAndMetrics(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 20, 30))
	m := metrics.New(prometheus.NewRegistry())
	var got *RunReport
	svc := newTestService(t, store, &recordingSink{},
		WithMetrics(m),
		WithRunIDGenerator(func() string { return "run-1" }),
		WithRunRecorder(recorderFunc(func(_ context.Context, r *RunReport) error {
			got = r
			return errors.New("history table missing")
		})),
	)

	report := run(t, svc, day(3))

	require.NotNil(t, got)
	assert.Same(t, report, got)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlarmsTriggered))
}

func TestRunDailyAccrual_CancelledContextFailsRemainingMachines(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 0, 100))
	svc := newTestService(t, store, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := svc.RunDailyAccrual(ctx, time.Monday, day(3))

	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, context.Canceled)
}

func TestRunDailyAccrual_RejectsWeekdayNotMatchingDate(t *testing.T) {
	store := newMemStore()
	store.put(t, machineWithAlarm(1, 0, 100))
	svc := newTestService(t, store, &recordingSink{})

	run(t, svc, day(3))

	// Wednesday's hours replayed with Monday's date would hit Monday's ledger entry.
	report, err := svc.RunDailyAccrual(context.Background(), time.Wednesday, day(3))
	require.ErrorIs(t, err, ErrWeekdayMismatch)
	assert.Nil(t, report)
	assert.Equal(t, 1, store.saves)

	report = run(t, svc, day(5))
	assert.Equal(t, 1, report.MachinesAccrued)
	assert.Equal(t, 20.0, store.state(1).OperatingHours)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, &recordingSink{})
	require.Error(t, err)
	_, err = NewService(newMemStore(), nil)
	require.Error(t, err)
}
