package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/model"
	"hourmeter-backend/internal/usage"
)

// ErrSubscriptionNotFound is returned when no push subscription matches an endpoint.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Store defines the interface for all database operations.
type Store interface {
	accrual.MachineStore
	accrual.RunRecorder

	CreateMachine(ctx context.Context, name string, schedule usage.Schedule) (*maintenance.Machine, error)
	GetMachine(ctx context.Context, id int64) (*maintenance.Machine, error)
	ListMachines(ctx context.Context) ([]*maintenance.Machine, error)
	// UpdateMachine loads a machine, applies fn and saves the result when fn
	// reports a change. A concurrent write surfaces as maintenance.ErrConflict.
	UpdateMachine(ctx context.Context, id int64, fn func(m *maintenance.Machine) (bool, error)) (*maintenance.Machine, error)
	AddAlarm(ctx context.Context, machineID int64, def maintenance.Definition) (*maintenance.Alarm, error)

	ListRuns(ctx context.Context, limit int) ([]model.AccrualRun, error)

	UpsertSubscription(ctx context.Context, sub model.PushSubscription, machineIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForMachine(ctx context.Context, machineID int64) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}
