package notification

import (
	"context"
	"errors"
	"fmt"

	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/logger"
	"hourmeter-backend/internal/maintenance"
)

// Multi fans a trigger out to several sinks. Every sink is tried; the
// failures are joined.
type Multi []accrual.Sink

// NotifyAlarmTriggered implements accrual.Sink.
func (m Multi) NotifyAlarmTriggered(ctx context.Context, result maintenance.TriggerResult) error {
	var errs []error
	for i, sink := range m {
		if err := sink.NotifyAlarmTriggered(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, sink, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes every trigger to the application log.
type LogSink struct{}

// NotifyAlarmTriggered implements accrual.Sink.
func (LogSink) NotifyAlarmTriggered(ctx context.Context, result maintenance.TriggerResult) error {
	logger.InfoKV(ctx, "maintenance alarm triggered",
		"machine_id", result.MachineID,
		"alarm_id", result.AlarmID,
		"title", result.Title,
		"hours", result.TriggeredHours,
		"times_triggered", result.TimesTriggered,
	)
	return nil
}
