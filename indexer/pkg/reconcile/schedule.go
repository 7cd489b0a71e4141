package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "*/10 * * * *"
	DefaultTimezone = "America/Los_Angeles"
)

// Schedule is a five-field cron expression evaluated in a fixed time zone.
type Schedule struct {
	spec     string
	location *time.Location
	sched    cron.Schedule
}

func ParseSchedule(spec, timezone string) (*Schedule, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}
	return &Schedule{spec: spec, location: loc, sched: sched}, nil
}

// Next returns the first activation strictly after now.
func (s *Schedule) Next(now time.Time) time.Time {
	return s.sched.Next(now.In(s.location))
}

func (s *Schedule) String() string {
	return s.spec + " (" + s.location.String() + ")"
}

func (r *Reconciler) Schedule() *Schedule {
	return r.schedule
}

// Start launches the trigger loop. Each activation calls Trigger on its own
// goroutine so a long cycle never delays the timer; overlapping activations are
// rejected by the guard. Unless SkipInitialRun is set, one cycle is triggered
// immediately.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Go(func() {
		r.log.Info("reconcile: starting scheduler", "schedule", r.schedule.String(), "runOnStart", !r.cfg.SkipInitialRun)

		if !r.cfg.SkipInitialRun {
			r.wg.Go(func() { r.Trigger(ctx) })
		}

		for {
			now := r.cfg.Clock.Now()
			next := r.schedule.Next(now)
			r.log.Debug("reconcile: next cycle scheduled", "at", next)

			timer := r.cfg.Clock.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.Chan():
				r.wg.Go(func() { r.Trigger(ctx) })
			}
		}
	})
}

// Wait blocks until the trigger loop has exited and every cycle it started has
// returned.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
