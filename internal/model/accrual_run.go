package model

import (
	"time"

	"gorm.io/datatypes"
)

// RunFailure is one machine or notification failure of an accrual run.
type RunFailure struct {
	MachineID int64  `json:"machine_id"`
	AlarmID   int64  `json:"alarm_id,omitempty"`
	Error     string `json:"error"`
}

// AccrualRun is the history record of one daily accrual run.
type AccrualRun struct {
	ID                     string    `gorm:"primaryKey;size:36" json:"id"`
	RunAt                  time.Time `gorm:"not null;index" json:"run_at"`
	Weekday                int       `gorm:"not null" json:"weekday"`
	Outcome                string    `gorm:"size:16;not null" json:"outcome"`
	MachinesTotal          int       `gorm:"not null" json:"machines_total"`
	MachinesProcessed      int       `gorm:"not null" json:"machines_processed"`
	MachinesAccrued        int       `gorm:"not null" json:"machines_accrued"`
	MachinesSkipped        int       `gorm:"not null" json:"machines_skipped"`
	MachinesAlreadyAccrued int       `gorm:"not null" json:"machines_already_accrued"`
	AlarmsTriggered        int       `gorm:"not null" json:"alarms_triggered"`
	DurationMillis         int64     `gorm:"not null" json:"duration_ms"`

	Failures             datatypes.JSONSlice[RunFailure] `json:"failures"`
	NotificationFailures datatypes.JSONSlice[RunFailure] `json:"notification_failures"`

	CreatedAt time.Time `json:"created_at"`
}
