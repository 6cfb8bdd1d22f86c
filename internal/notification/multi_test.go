package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hourmeter-backend/internal/maintenance"
)

type sinkFunc func(ctx context.Context, r maintenance.TriggerResult) error

func (f sinkFunc) NotifyAlarmTriggered(ctx context.Context, r maintenance.TriggerResult) error {
	return f(ctx, r)
}

func TestMulti_TriesEverySinkAndJoinsErrors(t *testing.T) {
	var calls int
	ok := sinkFunc(func(context.Context, maintenance.TriggerResult) error {
		calls++
		return nil
	})
	errBroker := errors.New("broker down")
	failing := sinkFunc(func(context.Context, maintenance.TriggerResult) error {
		calls++
		return errBroker
	})

	err := Multi{failing, ok, LogSink{}}.NotifyAlarmTriggered(context.Background(), trigger)

	require.ErrorIs(t, err, errBroker)
	assert.Equal(t, 2, calls)
	assert.NoError(t, Multi{ok, LogSink{}}.NotifyAlarmTriggered(context.Background(), trigger))
}
