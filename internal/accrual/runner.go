package accrual

import (
	"context"
	"fmt"
	"time"

	"hourmeter-backend/internal/logger"
)

// DailyRunner is the part of Service the Runner drives.
type DailyRunner interface {
	RunDailyAccrual(ctx context.Context, today time.Weekday, now time.Time) (*RunReport, error)
}

// Runner fires the daily accrual once a day at a fixed wall-clock time.
type Runner struct {
	svc        DailyRunner
	hour       int
	minute     int
	loc        *time.Location
	runOnStart bool

	clock func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewRunner creates a runner firing at dailyAt ("HH:MM") in loc.
func NewRunner(svc DailyRunner, dailyAt string, loc *time.Location, runOnStart bool) (*Runner, error) {
	hour, minute, err := parseDailyAt(dailyAt)
	if err != nil {
		return nil, fmt.Errorf("daily_at %q: %w", dailyAt, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		svc:        svc,
		hour:       hour,
		minute:     minute,
		loc:        loc,
		runOnStart: runOnStart,
		clock:      time.Now,
		after:      time.After,
	}, nil
}

// Run blocks until ctx is cancelled, running the accrual at every scheduled time.
func (r *Runner) Run(ctx context.Context) {
	ctx = logger.WithName(ctx, "accrual-runner")
	logger.Infof(ctx, "daily accrual scheduled at %02d:%02d %s", r.hour, r.minute, r.loc)

	if r.runOnStart {
		r.RunOnce(ctx)
	}

	for {
		next := r.nextRun(r.clock())
		wait := next.Sub(r.clock())
		logger.Debugf(ctx, "next accrual run at %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			logger.Info(ctx, "daily accrual runner shutting down")
			return
		case <-r.after(wait):
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs the accrual for the current moment in the runner's timezone.
func (r *Runner) RunOnce(ctx context.Context) {
	now := r.clock().In(r.loc)
	if _, err := r.svc.RunDailyAccrual(ctx, now.Weekday(), now); err != nil {
		logger.Errorf(ctx, "daily accrual run failed: %v", err)
	}
}

// nextRun returns the first scheduled time strictly after now.
func (r *Runner) nextRun(now time.Time) time.Time {
	now = now.In(r.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, r.minute, 0, 0, r.loc)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, r.hour, r.minute, 0, 0, r.loc)
	}
	return next
}

// LatestOn returns the latest moment at or before now that falls on day,
// keeping now's clock time and location.
func LatestOn(now time.Time, day time.Weekday) time.Time {
	back := (int(now.Weekday()) - int(day) + 7) % 7
	return now.AddDate(0, 0, -back)
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
