package accrual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"hourmeter-backend/internal/logger"
	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/metrics"
)

const (
	DefaultWorkers            = 4
	DefaultMaxConflictRetries = 3
)

var (
	errNilStore = errors.New("accrual: machine store is required")
	errNilSink  = errors.New("accrual: notification sink is required")

	// ErrWeekdayMismatch is returned when today is not the weekday of now.
	// now keys the idempotency ledger, so the two must describe the same day.
	ErrWeekdayMismatch = errors.New("accrual: weekday does not match the run date")
)

// Option configures a Service.
type Option func(*Service)

// WithWorkers bounds the number of machines processed concurrently.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxConflictRetries sets how many times a machine is reloaded and
// reprocessed after its save lost a version race.
func WithMaxConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxConflictRetries = n
		}
	}
}

// WithRunRecorder persists a summary of every finished run.
func WithRunRecorder(r RunRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithMetrics reports run results to prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRunIDGenerator replaces the uuid run id source.
func WithRunIDGenerator(f func() string) Option {
	return func(s *Service) {
		if f != nil {
			s.newRunID = f
		}
	}
}

// Service runs the daily usage accrual over the active fleet.
type Service struct {
	store    MachineStore
	sink     Sink
	recorder RunRecorder
	metrics  *metrics.Metrics

	workers            int
	maxConflictRetries int
	newRunID           func() string

	// runMu keeps a manual run and the daily runner from overlapping.
	runMu sync.Mutex
}

// NewService creates an accrual service.
func NewService(store MachineStore, sink Sink, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errNilStore
	}
	if sink == nil {
		return nil, errNilSink
	}
	s := &Service{
		store:              store,
		sink:               sink,
		workers:            DefaultWorkers,
		maxConflictRetries: DefaultMaxConflictRetries,
		newRunID:           func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// machineOutcome is the result of one machine's unit of work.
type machineOutcome struct {
	machineID      int64
	processed      bool
	accrued        bool
	alreadyAccrued bool
	skipped        bool
	triggers       []maintenance.TriggerResult
	err            error
}

// RunDailyAccrual accrues one day of usage for every active machine, then
// triggers the alarms that became due. today selects which schedules accrue
// and now is the timestamp stamped on triggers. Its calendar day also keys
// the idempotency ledger, so a second run for the same day does not accrue
// again.
//
// A machine that fails is reported in RunReport.Failures without affecting
// the others. The returned error is non-nil only when the fleet itself could
// not be loaded or when today is not now's weekday (ErrWeekdayMismatch, no
// report).
func (s *Service) RunDailyAccrual(ctx context.Context, today time.Weekday, now time.Time) (*RunReport, error) {
	if today != now.Weekday() {
		return nil, fmt.Errorf("%w: %s requested but %s is a %s",
			ErrWeekdayMismatch, today, now.Format(DateLayout), now.Weekday())
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	report := &RunReport{RunID: s.newRunID(), Today: today, Now: now}
	ctx = logger.WithKV(ctx, "run_id", report.RunID)
	logger.InfoKV(ctx, "accrual run started", "today", today.String(), "now", now.Format(time.RFC3339))

	ids, err := s.store.ActiveMachineIDs(ctx)
	if err != nil {
		report.Duration = time.Since(start)
		s.metrics.ObserveLoadFailure(report.Duration)
		logger.ErrorKV(ctx, "accrual run aborted", "error", err)
		return report, fmt.Errorf("load active machines: %w", err)
	}
	report.MachinesTotal = len(ids)

	outcomes := s.processFleet(ctx, ids, today, now)

	var triggers []maintenance.TriggerResult
	for _, out := range outcomes {
		switch {
		case out.err != nil:
			report.Failures = append(report.Failures, MachineFailure{MachineID: out.machineID, Err: out.err})
			logger.ErrorKV(ctx, "machine failed", "machine_id", out.machineID, "error", out.err)
		case out.skipped:
			report.MachinesSkipped++
		case out.processed:
			report.MachinesProcessed++
			if out.accrued {
				report.MachinesAccrued++
			}
			if out.alreadyAccrued {
				report.MachinesAlreadyAccrued++
			}
			report.AlarmsTriggered += len(out.triggers)
			triggers = append(triggers, out.triggers...)
		}
	}

	for _, tr := range triggers {
		if err := s.notify(ctx, tr); err != nil {
			report.NotificationFailures = append(report.NotificationFailures, NotificationFailure{
				MachineID: tr.MachineID,
				AlarmID:   tr.AlarmID,
				Err:       err,
			})
			logger.WarnKV(ctx, "alarm notification failed", "machine_id", tr.MachineID, "alarm_id", tr.AlarmID, "error", err)
		}
	}

	report.Duration = time.Since(start)

	if s.recorder != nil {
		if err := s.recorder.RecordRun(ctx, report); err != nil {
			logger.WarnKV(ctx, "failed to record accrual run", "error", err)
		}
	}
	s.metrics.ObserveRun(metrics.RunSummary{
		Outcome:              report.Outcome(),
		Duration:             report.Duration,
		FinishedAt:           now,
		Processed:            report.MachinesProcessed,
		Accrued:              report.MachinesAccrued,
		Failed:               len(report.Failures),
		Skipped:              report.MachinesSkipped,
		AlarmsTriggered:      report.AlarmsTriggered,
		NotificationFailures: len(report.NotificationFailures),
	})

	logger.InfoKV(ctx, "accrual run finished",
		"machines", report.MachinesTotal,
		"processed", report.MachinesProcessed,
		"accrued", report.MachinesAccrued,
		"already_accrued", report.MachinesAlreadyAccrued,
		"skipped", report.MachinesSkipped,
		"failed", len(report.Failures),
		"alarms_triggered", report.AlarmsTriggered,
		"notification_failures", len(report.NotificationFailures),
		"duration", report.Duration,
	)
	return report, nil
}

// processFleet fans the machines out to a bounded pool of workers. Outcomes
// are indexed by load order so the report does not depend on scheduling.
func (s *Service) processFleet(ctx context.Context, ids []int64, today time.Weekday, now time.Time) []machineOutcome {
	outcomes := make([]machineOutcome, len(ids))
	if len(ids) == 0 {
		return outcomes
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(s.workers, len(ids)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				id := ids[i]
				if err := ctx.Err(); err != nil {
					outcomes[i] = machineOutcome{machineID: id, err: err}
					continue
				}
				outcomes[i] = s.processMachine(ctx, id, today, now)
			}
		}()
	}
	for i := range ids {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

// processMachine runs one machine's unit of work, reloading and retrying
// when the save loses a version race. A panic fails only this machine.
func (s *Service) processMachine(ctx context.Context, id int64, today time.Weekday, now time.Time) (out machineOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = machineOutcome{machineID: id, err: fmt.Errorf("panic while processing machine: %v", r)}
		}
	}()

	ctx = logger.WithKV(ctx, "machine_id", id)
	for attempt := 1; ; attempt++ {
		res, err := s.applyDay(ctx, id, today, now)
		if err == nil {
			return res
		}
		if !errors.Is(err, maintenance.ErrConflict) || attempt > s.maxConflictRetries {
			return machineOutcome{machineID: id, err: err}
		}
		logger.WarnKV(ctx, "machine changed during accrual, retrying", "attempt", attempt)
	}
}

// applyDay is a single read-modify-write of one machine.
func (s *Service) applyDay(ctx context.Context, id int64, today time.Weekday, now time.Time) (machineOutcome, error) {
	out := machineOutcome{machineID: id}

	m, ledger, err := s.store.LoadMachine(ctx, id)
	if errors.Is(err, maintenance.ErrMachineNotFound) {
		logger.InfoKV(ctx, "machine removed before processing, skipping")
		out.skipped = true
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("load machine: %w", err)
	}
	if !m.IsActive() {
		out.skipped = true
		return out, nil
	}

	dirty := false
	day := now.Format(DateLayout)
	if ledger.handled(day) {
		out.alreadyAccrued = true
	} else {
		res := m.AccrueIfScheduled(today)
		out.accrued = res.Accrued
		ledger.LastAccrualDate = day
		dirty = true
		if res.Accrued {
			logger.Debugf(ctx, "accrued %.2fh, total %.2fh", res.HoursAdded, res.NewTotal)
		}
	}

	hours := m.OperatingHours()
	for _, a := range m.Alarms() {
		if !a.IsActive() || !a.Evaluate(hours).IsDue {
			continue
		}
		tr, err := a.Trigger(hours, now)
		if err != nil {
			return out, fmt.Errorf("trigger alarm %d: %w", a.ID(), err)
		}
		out.triggers = append(out.triggers, tr)
		dirty = true
	}

	if dirty {
		if err := s.store.SaveMachine(ctx, m, ledger); err != nil {
			return out, fmt.Errorf("save machine: %w", err)
		}
	}
	out.processed = true
	return out, nil
}

// notify delivers one trigger to the sink. A panicking sink counts as a
// failed delivery.
func (s *Service) notify(ctx context.Context, tr maintenance.TriggerResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in notification sink: %v", r)
		}
	}()
	return s.sink.NotifyAlarmTriggered(ctx, tr)
}
