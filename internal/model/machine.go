package model

import (
	"time"

	"gorm.io/datatypes"
)

// Machine is a tracked machine with its usage schedule.
type Machine struct {
	ID             int64                    `gorm:"primaryKey"`
	Name           string                   `gorm:"size:256;not null"`
	OperatingHours float64                  `gorm:"not null"`
	DailyHours     float64                  `gorm:"not null"`
	OperatingDays  datatypes.JSONSlice[int] `gorm:"not null"` // time.Weekday values
	IsActive       bool                     `gorm:"not null;index"`
	Version        int64                    `gorm:"not null"`
	// LastAccrualDate is the last calendar day (YYYY-MM-DD) an accrual run handled.
	LastAccrualDate string `gorm:"size:10"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Associations
	Alarms []MaintenanceAlarm `gorm:"foreignKey:MachineID;constraint:OnDelete:CASCADE"`
}
