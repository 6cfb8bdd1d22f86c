package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hourmeter"

// Metrics bundles accrual run metrics.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	MachinesTotal        *prometheus.CounterVec
	AlarmsTriggered      prometheus.Counter
	NotificationFailures prometheus.Counter
	LastRunTimestamp     prometheus.Gauge
}

// New constructs the metrics and registers them with reg. A nil reg
// registers with the default prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accrual_runs_total",
				Help:      "Total accrual runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "accrual_run_duration_seconds",
			Help:      "Accrual run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		MachinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accrual_machines_total",
				Help:      "Machines handled by accrual runs by result",
			},
			[]string{"result"},
		),
		AlarmsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_triggered_total",
			Help:      "Total maintenance alarms triggered",
		}),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_notification_failures_total",
			Help:      "Total alarm notifications that could not be delivered",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accrual_last_run_timestamp_seconds",
			Help:      "Unix time of the last finished accrual run",
		}),
	}
	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.MachinesTotal,
		m.AlarmsTriggered,
		m.NotificationFailures,
		m.LastRunTimestamp,
	)
	return m
}

// RunSummary is what a finished run reports to the metrics.
type RunSummary struct {
	Outcome              string
	Duration             time.Duration
	FinishedAt           time.Time
	Processed            int
	Accrued              int
	Failed               int
	Skipped              int
	AlarmsTriggered      int
	NotificationFailures int
}

// ObserveRun records a finished run. Safe to call on a nil *Metrics.
func (m *Metrics) ObserveRun(s RunSummary) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(s.Outcome).Inc()
	m.RunDuration.Observe(s.Duration.Seconds())
	m.MachinesTotal.WithLabelValues("processed").Add(float64(s.Processed))
	m.MachinesTotal.WithLabelValues("accrued").Add(float64(s.Accrued))
	m.MachinesTotal.WithLabelValues("failed").Add(float64(s.Failed))
	m.MachinesTotal.WithLabelValues("skipped").Add(float64(s.Skipped))
	m.AlarmsTriggered.Add(float64(s.AlarmsTriggered))
	m.NotificationFailures.Add(float64(s.NotificationFailures))
	if !s.FinishedAt.IsZero() {
		m.LastRunTimestamp.Set(float64(s.FinishedAt.Unix()))
	}
}

// ObserveLoadFailure records a run that could not load its fleet.
func (m *Metrics) ObserveLoadFailure(d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("load_failed").Inc()
	m.RunDuration.Observe(d.Seconds())
}
