// Package retrysweep schedules the webhook retry sweep.
package retrysweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// Sweeper claims and re-attempts due deliveries.
type Sweeper interface {
	ProcessRetries(ctx context.Context) (int, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Sweeper Sweeper
	// Schedule is a cron spec; an optional leading seconds field and descriptors such as
	// "@every 10s" are accepted.
	Schedule string
	Logger   *slog.Logger
}

// Runner fires the sweep on its schedule. Ticks that arrive while a sweep is still running
// are skipped.
type Runner struct {
	sweeper  Sweeper
	schedule cron.Schedule
	spec     string
	logger   *slog.Logger
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewRunner validates the schedule and builds a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Sweeper == nil {
		return nil, errors.New("sweeper is required")
	}
	spec := strings.TrimSpace(opts.Schedule)
	if spec == "" {
		return nil, errors.New("retry sweep schedule is required")
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse retry sweep schedule %q: %w", spec, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sweeper:  opts.Sweeper,
		schedule: schedule,
		spec:     spec,
		logger:   logger.With("component", "retry_sweep_runner"),
	}, nil
}

// Run blocks until ctx is cancelled, then waits for an in-flight sweep to finish.
func (r *Runner) Run(ctx context.Context) error {
	cl := cronLogger{r.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() { r.tick(ctx) }))

	r.logger.InfoContext(ctx, "starting retry sweep runner", "schedule", r.spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("retry sweep runner stopped")
	return nil
}

func (r *Runner) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := r.sweeper.ProcessRetries(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "retry sweep failed", "claimed", n, "error", err)
		return
	}
	if n > 0 {
		r.logger.DebugContext(ctx, "retry sweep tick", "claimed", n)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
