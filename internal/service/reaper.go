package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/data"
	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/observability/metrics"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.CalculationJobReaperRepository // Required
	Config  config.ReaperConfig
	Metrics metrics.Recorder  // optional
	Clock   data.TimeProvider // optional
	Logger  *slog.Logger      // optional
}

// ReaperService keeps the calculation_jobs table honest:
//   - jobs orphaned in processing by a crashed process are failed
//   - completed and failed jobs past their retention are deleted
type ReaperService struct {
	repo    core.CalculationJobReaperRepository
	config  config.ReaperConfig
	metrics metrics.Recorder
	clock   data.TimeProvider
	logger  *slog.Logger
}

// NewReaperService constructs a ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("CalculationJobReaperRepository is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaperService{
		repo:    opts.Repo,
		config:  cfg,
		metrics: metrics.OrNop(opts.Metrics),
		clock:   clock,
		logger:  logger.With("component", "reaper"),
	}, nil
}

// Run cleans up immediately and then at every interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper", "interval", s.config.Interval)

	// Several replicas starting together should not all reap at once.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logCleanupError(ctx, s.Cleanup(ctx), "initial cleanup")
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.logCleanupError(ctx, s.Cleanup(ctx), "cleanup")
		}
	}
}

// waitWithJitter sleeps up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)) // #nosec G115 - bounded by maxJitter

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

type cleanupStep struct {
	operation string
	fn        func(context.Context) (int64, error)
}

// Cleanup runs one pass of every cleanup step. A failing step does not stop the others.
func (s *ReaperService) Cleanup(ctx context.Context) error {
	start := s.clock.Now()
	steps := []cleanupStep{
		{operation: metrics.OperationFailStale, fn: s.failStaleProcessing},
		{operation: metrics.OperationDeleteCompleted, fn: s.deleteOld(model.CalculationJobStatusCompleted, s.config.CompletedMaxAge)},
		{operation: metrics.OperationDeleteFailed, fn: s.deleteOld(model.CalculationJobStatusFailed, s.config.FailedMaxAge)},
	}

	var (
		errs []error
		ops  = make([]metrics.ReaperOperationMetric, 0, len(steps))
	)
	for _, step := range steps {
		n, err := step.fn(ctx)
		op := metrics.ReaperOperationMetric{Operation: step.operation, Count: n}
		if err != nil && !isContextCancellation(err) {
			op.Err = err
		}
		ops = append(ops, op)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.operation, err))
			continue
		}
		if n > 0 {
			s.logger.InfoContext(ctx, "reaped calculation jobs", "operation", step.operation, "count", n)
		}
	}

	joined := errors.Join(errs...)
	s.metrics.ReaperCleanup(metrics.ReaperMetric{
		Result:     cleanupResult(ops, joined),
		Duration:   s.clock.Now().Sub(start),
		Operations: ops,
		Err:        joined,
	})
	if joined != nil {
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	return nil
}

func cleanupResult(ops []metrics.ReaperOperationMetric, err error) string {
	if err != nil {
		return metrics.ResultError
	}
	for _, op := range ops {
		if op.Count > 0 {
			return metrics.ResultSuccess
		}
	}
	return metrics.ResultNoop
}

// failStaleProcessing loops over batches until a batch comes back empty.
func (s *ReaperService) failStaleProcessing(ctx context.Context) (int64, error) {
	return drainBatches(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.FailStaleProcessing(ctx, s.config.ProcessingMaxAge, s.config.BatchSize)
	})
}

func (s *ReaperService) deleteOld(
	status model.CalculationJobStatus,
	maxAge time.Duration,
) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		return drainBatches(ctx, func(ctx context.Context) (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldCalculationJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: s.config.BatchSize,
			})
		})
	}
}

func drainBatches(ctx context.Context, batch func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := batch(ctx)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (s *ReaperService) logCleanupError(ctx context.Context, err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
