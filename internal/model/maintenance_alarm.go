package model

import (
	"time"

	"gorm.io/datatypes"
)

// MaintenanceAlarm is an hour-based maintenance reminder of a machine.
type MaintenanceAlarm struct {
	ID            int64   `gorm:"primaryKey"`
	MachineID     int64   `gorm:"index;not null"`
	Position      int     `gorm:"not null"` // order within the machine
	Title         string  `gorm:"size:256;not null"`
	Description   string  `gorm:"type:text"`
	IntervalHours float64 `gorm:"not null"`
	RelatedParts  datatypes.JSONSlice[string]
	IsActive      bool `gorm:"not null"`

	LastTriggeredHours *float64
	LastTriggeredAt    *time.Time
	TimesTriggered     int `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
