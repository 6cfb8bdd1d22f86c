package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/model"
	"hourmeter-backend/internal/usage"
)

func preloadAlarms(db *gorm.DB) *gorm.DB {
	return db.Preload("Alarms", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position, id")
	})
}

// ActiveMachineIDs returns the ids of every active machine in ascending order.
func (s *gormStore) ActiveMachineIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("is_active = ?", true).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list active machines: %w", err)
	}
	return ids, nil
}

// ListMachines returns every machine, active or not, ordered by id.
func (s *gormStore) ListMachines(ctx context.Context) ([]*maintenance.Machine, error) {
	var rows []model.Machine
	if err := preloadAlarms(s.db.WithContext(ctx)).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return toDomainList(rows)
}

func toDomainList(rows []model.Machine) ([]*maintenance.Machine, error) {
	machines := make([]*maintenance.Machine, 0, len(rows))
	for i := range rows {
		m, _, err := toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, nil
}

// LoadMachine reads one machine and its accrual ledger.
func (s *gormStore) LoadMachine(ctx context.Context, id int64) (*maintenance.Machine, accrual.Ledger, error) {
	var row model.Machine
	err := preloadAlarms(s.db.WithContext(ctx)).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, accrual.Ledger{}, fmt.Errorf("machine %d: %w", id, maintenance.ErrMachineNotFound)
	}
	if err != nil {
		return nil, accrual.Ledger{}, fmt.Errorf("failed to load machine %d: %w", id, err)
	}
	return toDomain(&row)
}

// GetMachine reads one machine.
func (s *gormStore) GetMachine(ctx context.Context, id int64) (*maintenance.Machine, error) {
	m, _, err := s.LoadMachine(ctx, id)
	return m, err
}

// SaveMachine writes the machine, its alarms and the ledger in one
// transaction. The write only applies when the stored version still equals
// the version the machine was loaded with; the version is then incremented.
func (s *gormStore) SaveMachine(ctx context.Context, m *maintenance.Machine, ledger accrual.Ledger) error {
	st := m.State()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols := machineColumns(st, ledger)
		cols["version"] = gorm.Expr("version + 1")

		res := tx.Model(&model.Machine{}).
			Where("id = ? AND version = ?", st.ID, st.Version).
			Updates(cols)
		if res.Error != nil {
			return fmt.Errorf("failed to update machine %d: %w", st.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, st.ID)
		}

		for i, a := range st.Alarms {
			res := tx.Model(&model.MaintenanceAlarm{}).
				Where("id = ? AND machine_id = ?", a.ID, st.ID).
				Updates(alarmColumns(a))
			if res.Error != nil {
				return fmt.Errorf("failed to update alarm %d: %w", a.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				row := alarmRow(a, i)
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("failed to insert alarm %d: %w", a.ID, err)
				}
			}
		}
		return nil
	})
}

func missingOrConflict(tx *gorm.DB, id int64) error {
	var count int64
	if err := tx.Model(&model.Machine{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check machine %d: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("machine %d: %w", id, maintenance.ErrMachineNotFound)
	}
	return fmt.Errorf("machine %d: %w", id, maintenance.ErrConflict)
}

// CreateMachine registers a new active machine with zero operating hours.
func (s *gormStore) CreateMachine(ctx context.Context, name string, schedule usage.Schedule) (*maintenance.Machine, error) {
	m, err := maintenance.NewMachine(0, name, schedule)
	if err != nil {
		return nil, err
	}
	st := m.State()
	row := model.Machine{
		Name:           st.Name,
		OperatingHours: st.OperatingHours,
		DailyHours:     st.Schedule.DailyHours(),
		OperatingDays:  weekdaysToInts(st.Schedule.OperatingDays()),
		IsActive:       st.IsActive,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create machine: %w", err)
	}
	created, _, err := toDomain(&row)
	return created, err
}

// UpdateMachine is a single read-modify-write of one machine. The ledger is
// carried over unchanged.
func (s *gormStore) UpdateMachine(ctx context.Context, id int64, fn func(m *maintenance.Machine) (bool, error)) (*maintenance.Machine, error) {
	m, ledger, err := s.LoadMachine(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := fn(m)
	if err != nil {
		return nil, err
	}
	if !changed {
		return m, nil
	}
	if err := s.SaveMachine(ctx, m, ledger); err != nil {
		return nil, err
	}
	return s.GetMachine(ctx, id)
}

// AddAlarm attaches a new active alarm to a machine. The machine's version is
// bumped so that a concurrent accrual save reloads and sees the alarm.
func (s *gormStore) AddAlarm(ctx context.Context, machineID int64, def maintenance.Definition) (*maintenance.Alarm, error) {
	alarm, err := maintenance.NewAlarm(0, machineID, def)
	if err != nil {
		return nil, err
	}

	var row model.MaintenanceAlarm
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Machine{}).
			Where("id = ?", machineID).
			Update("version", gorm.Expr("version + 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to update machine %d: %w", machineID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("machine %d: %w", machineID, maintenance.ErrMachineNotFound)
		}

		var position int64
		if err := tx.Model(&model.MaintenanceAlarm{}).Where("machine_id = ?", machineID).Count(&position).Error; err != nil {
			return fmt.Errorf("failed to count alarms of machine %d: %w", machineID, err)
		}

		row = alarmRow(alarm.State(), int(position))
		row.ID = 0
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert alarm: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	st := alarm.State()
	st.ID = row.ID
	return maintenance.RestoreAlarm(st)
}
