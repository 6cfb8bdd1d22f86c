package accrual

import (
	"context"

	"hourmeter-backend/internal/maintenance"
)

// DateLayout is the calendar-day format used for the accrual ledger.
const DateLayout = "2006-01-02"

// Ledger is the scheduler's bookkeeping for one machine. It is persisted
// next to the machine but is not part of the machine aggregate.
type Ledger struct {
	// LastAccrualDate is the last calendar day (DateLayout) a run handled
	// this machine. Empty when no run has handled it yet.
	LastAccrualDate string
}

// handled reports whether day was already handled by an earlier run.
func (l Ledger) handled(day string) bool {
	return l.LastAccrualDate != "" && day <= l.LastAccrualDate
}

// MachineStore loads and saves machine aggregates. Implementations must
// return maintenance.ErrMachineNotFound and maintenance.ErrConflict (a
// version mismatch on save) so the two can be told apart.
//
// ActiveMachineIDs lists the fleet without rebuilding the aggregates, so a
// row that fails to load only fails its own machine in LoadMachine.
type MachineStore interface {
	ActiveMachineIDs(ctx context.Context) ([]int64, error)
	LoadMachine(ctx context.Context, id int64) (*maintenance.Machine, Ledger, error)
	SaveMachine(ctx context.Context, m *maintenance.Machine, ledger Ledger) error
}

// Sink receives alarm triggers once their state has been persisted.
type Sink interface {
	NotifyAlarmTriggered(ctx context.Context, result maintenance.TriggerResult) error
}

// RunRecorder persists the summary of a finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *RunReport) error
}
