package model

// All lists every table the service owns, in migration order.
func All() []any {
	return []any{
		&Machine{},
		&MaintenanceAlarm{},
		&PushSubscription{},
		&AccrualRun{},
	}
}
