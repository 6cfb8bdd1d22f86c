package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun(RunSummary{
		Outcome:              "partial",
		Duration:             2 * time.Second,
		FinishedAt:           time.Unix(1700000000, 0),
		Processed:            9,
		Accrued:              7,
		Failed:               1,
		AlarmsTriggered:      3,
		NotificationFailures: 1,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("partial")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.MachinesTotal.WithLabelValues("processed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.MachinesTotal.WithLabelValues("accrued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MachinesTotal.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AlarmsTriggered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRunTimestamp))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun(RunSummary{Outcome: "success"})
		m.ObserveLoadFailure(time.Second)
	})
}
