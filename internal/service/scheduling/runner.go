package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runner extends the planning horizon once at startup and then daily at
// a fixed wall-clock time. Generation failures are logged, never fatal:
// idempotent generation plus the next day's run is the retry mechanism.
type Runner struct {
	svc         *Service
	horizonDays int
	runAtHour   int
	runAtMinute int
	log         *slog.Logger
}

// NewRunner wires a daily generation trigger. runAt is "HH:MM" wall
// clock in the service's time zone; the default is shortly after
// midnight so the horizon gains its new day before anyone asks for it.
func NewRunner(svc *Service, horizonDays int, runAt string, log *slog.Logger) (*Runner, error) {
	hour, minute := 0, 10
	if runAt != "" {
		if _, err := fmt.Sscanf(runAt, "%d:%d", &hour, &minute); err != nil {
			return nil, fmt.Errorf("invalid run time %q: %w", runAt, err)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid run time %q", runAt)
		}
	}

	if log == nil {
		log = slog.Default()
	}

	return &Runner{
		svc:         svc,
		horizonDays: horizonDays,
		runAtHour:   hour,
		runAtMinute: minute,
		log:         log.With(slog.String("component", "scheduling.runner")),
	}, nil
}

// Run blocks until ctx is cancelled. The first generation fires
// immediately to backfill and repair the horizon after downtime.
func (r *Runner) Run(ctx context.Context) {
	r.generate(ctx)

	for {
		wait := r.untilNextRun()
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			r.log.Info("daily generation runner stopped")
			return
		case <-timer.C:
			r.generate(ctx)
		}
	}
}

func (r *Runner) generate(ctx context.Context) {
	inserted, err := r.svc.Generate(ctx, r.horizonDays)
	if err != nil {
		r.log.Error("scheduled slot generation failed", slog.Any("err", err))
		return
	}
	r.log.Info("scheduled slot generation completed",
		slog.Int("inserted", inserted),
		slog.Int("horizon_days", r.horizonDays),
	)
}

func (r *Runner) untilNextRun() time.Duration {
	now := r.svc.now().In(r.svc.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), r.runAtHour, r.runAtMinute, 0, 0, r.svc.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
