package store

import (
	"context"
	"fmt"

	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/model"
)

const defaultRunsLimit = 50

// RecordRun stores the summary of a finished accrual run.
func (s *gormStore) RecordRun(ctx context.Context, report *accrual.RunReport) error {
	row := model.AccrualRun{
		ID:                     report.RunID,
		RunAt:                  report.Now,
		Weekday:                int(report.Today),
		Outcome:                report.Outcome(),
		MachinesTotal:          report.MachinesTotal,
		MachinesProcessed:      report.MachinesProcessed,
		MachinesAccrued:        report.MachinesAccrued,
		MachinesSkipped:        report.MachinesSkipped,
		MachinesAlreadyAccrued: report.MachinesAlreadyAccrued,
		AlarmsTriggered:        report.AlarmsTriggered,
		DurationMillis:         report.Duration.Milliseconds(),
	}
	for _, f := range report.Failures {
		row.Failures = append(row.Failures, model.RunFailure{MachineID: f.MachineID, Error: f.Err.Error()})
	}
	for _, f := range report.NotificationFailures {
		row.NotificationFailures = append(row.NotificationFailures, model.RunFailure{
			MachineID: f.MachineID,
			AlarmID:   f.AlarmID,
			Error:     f.Err.Error(),
		})
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *gormStore) ListRuns(ctx context.Context, limit int) ([]model.AccrualRun, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	var runs []model.AccrualRun
	if err := s.db.WithContext(ctx).Order("run_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
