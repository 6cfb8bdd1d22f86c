package api

import (
	"strings"
	"time"

	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/parse"
	"hourmeter-backend/internal/usage"
)

type scheduleResponse struct {
	DailyHours    float64  `json:"daily_hours"`
	OperatingDays []string `json:"operating_days"`
	WeeklyHours   float64  `json:"weekly_hours"`
}

type alarmResponse struct {
	ID                 int64              `json:"id"`
	Title              string             `json:"title"`
	Description        string             `json:"description,omitempty"`
	IntervalHours      float64            `json:"interval_hours"`
	RelatedParts       []string           `json:"related_parts"`
	IsActive           bool               `json:"is_active"`
	Status             maintenance.Status `json:"status"`
	ElapsedHours       float64            `json:"elapsed_hours"`
	RemainingHours     float64            `json:"remaining_hours"`
	WeeksUntilDue      int                `json:"weeks_until_due"`
	TimesTriggered     int                `json:"times_triggered"`
	LastTriggeredHours *float64           `json:"last_triggered_hours"`
	LastTriggeredAt    *time.Time         `json:"last_triggered_at"`
}

type machineResponse struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	OperatingHours float64          `json:"operating_hours"`
	IsActive       bool             `json:"is_active"`
	Version        int64            `json:"version"`
	Schedule       scheduleResponse `json:"schedule"`
	DueAlarms      int              `json:"due_alarms"`
	Alarms         []alarmResponse  `json:"alarms"`
}

func newScheduleResponse(s usage.Schedule) scheduleResponse {
	return scheduleResponse{
		DailyHours:    s.DailyHours(),
		OperatingDays: strings.Split(parse.FormatWeekdays(s.OperatingDays()), ","),
		WeeklyHours:   s.WeeklyHours(),
	}
}

func newMachineResponse(m *maintenance.Machine) machineResponse {
	hours := m.OperatingHours()
	schedule := m.Schedule()
	resp := machineResponse{
		ID:             m.ID(),
		Name:           m.Name(),
		OperatingHours: hours,
		IsActive:       m.IsActive(),
		Version:        m.Version(),
		Schedule:       newScheduleResponse(schedule),
		Alarms:         make([]alarmResponse, 0, len(m.Alarms())),
	}
	for _, a := range m.Alarms() {
		st := a.State()
		eval := a.Evaluate(hours)
		status := a.Status(hours)
		if status == maintenance.StatusDue || status == maintenance.StatusOverdue {
			resp.DueAlarms++
		}
		resp.Alarms = append(resp.Alarms, alarmResponse{
			ID:                 st.ID,
			Title:              st.Title,
			Description:        st.Description,
			IntervalHours:      st.IntervalHours,
			RelatedParts:       append([]string{}, st.RelatedParts...),
			IsActive:           st.IsActive,
			Status:             status,
			ElapsedHours:       eval.ElapsedHours,
			RemainingHours:     eval.RemainingHours,
			WeeksUntilDue:      schedule.WeeksToReachHours(hours+eval.RemainingHours, hours),
			TimesTriggered:     st.TimesTriggered,
			LastTriggeredHours: st.LastTriggeredHours,
			LastTriggeredAt:    st.LastTriggeredAt,
		})
	}
	return resp
}
