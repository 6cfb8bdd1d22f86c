package store

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/model"
	"hourmeter-backend/internal/usage"
)

func toDomain(row *model.Machine) (*maintenance.Machine, accrual.Ledger, error) {
	days := make([]time.Weekday, len(row.OperatingDays))
	for i, d := range row.OperatingDays {
		days[i] = time.Weekday(d)
	}
	schedule, err := usage.New(row.DailyHours, days)
	if err != nil {
		return nil, accrual.Ledger{}, fmt.Errorf("machine %d: %w", row.ID, err)
	}

	st := maintenance.MachineState{
		ID:             row.ID,
		Name:           row.Name,
		OperatingHours: row.OperatingHours,
		Schedule:       schedule,
		IsActive:       row.IsActive,
		Version:        row.Version,
		Alarms:         make([]maintenance.AlarmState, 0, len(row.Alarms)),
	}
	for _, a := range row.Alarms {
		st.Alarms = append(st.Alarms, maintenance.AlarmState{
			ID:        a.ID,
			MachineID: a.MachineID,
			Definition: maintenance.Definition{
				Title:         a.Title,
				Description:   a.Description,
				IntervalHours: a.IntervalHours,
				RelatedParts:  []string(a.RelatedParts),
			},
			IsActive:           a.IsActive,
			LastTriggeredHours: a.LastTriggeredHours,
			LastTriggeredAt:    a.LastTriggeredAt,
			TimesTriggered:     a.TimesTriggered,
		})
	}

	m, err := maintenance.RestoreMachine(st)
	if err != nil {
		return nil, accrual.Ledger{}, err
	}
	return m, accrual.Ledger{LastAccrualDate: row.LastAccrualDate}, nil
}

func weekdaysToInts(days []time.Weekday) datatypes.JSONSlice[int] {
	out := make(datatypes.JSONSlice[int], len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}

func machineColumns(st maintenance.MachineState, ledger accrual.Ledger) map[string]any {
	return map[string]any{
		"name":              st.Name,
		"operating_hours":   st.OperatingHours,
		"daily_hours":       st.Schedule.DailyHours(),
		"operating_days":    weekdaysToInts(st.Schedule.OperatingDays()),
		"is_active":         st.IsActive,
		"last_accrual_date": ledger.LastAccrualDate,
	}
}

func alarmColumns(a maintenance.AlarmState) map[string]any {
	return map[string]any{
		"title":                a.Title,
		"description":          a.Description,
		"interval_hours":       a.IntervalHours,
		"related_parts":        datatypes.JSONSlice[string](a.RelatedParts),
		"is_active":            a.IsActive,
		"last_triggered_hours": a.LastTriggeredHours,
		"last_triggered_at":    a.LastTriggeredAt,
		"times_triggered":      a.TimesTriggered,
	}
}

func alarmRow(a maintenance.AlarmState, position int) model.MaintenanceAlarm {
	return model.MaintenanceAlarm{
		ID:                 a.ID,
		MachineID:          a.MachineID,
		Position:           position,
		Title:              a.Title,
		Description:        a.Description,
		IntervalHours:      a.IntervalHours,
		RelatedParts:       datatypes.JSONSlice[string](a.RelatedParts),
		IsActive:           a.IsActive,
		LastTriggeredHours: a.LastTriggeredHours,
		LastTriggeredAt:    a.LastTriggeredAt,
		TimesTriggered:     a.TimesTriggered,
	}
}
