package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/data"
	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/observability/metrics"
)

// deliveryAttempter makes one attempt for a claimed delivery.
type deliveryAttempter interface {
	AttemptDelivery(ctx context.Context, d *model.WebhookDelivery) (*model.WebhookDelivery, error)
	ClaimLease() time.Duration
}

// RetrySweepServiceOptions groups dependencies for RetrySweepService.
type RetrySweepServiceOptions struct {
	Deliveries core.DeliveryRepository
	Attempter  deliveryAttempter
	Config     config.RetrySweepConfig
	Metrics    metrics.Recorder  // optional
	Clock      data.TimeProvider // optional
	Logger     *slog.Logger      // optional
}

// RetrySweepService re-attempts due deliveries.
type RetrySweepService struct {
	deliveries  core.DeliveryRepository
	attempter   deliveryAttempter
	batchSize   int
	concurrency int
	metrics     metrics.Recorder
	clock       data.TimeProvider
	logger      *slog.Logger
}

// NewRetrySweepService constructs a RetrySweepService.
func NewRetrySweepService(opts RetrySweepServiceOptions) (*RetrySweepService, error) {
	if opts.Deliveries == nil {
		return nil, errors.New("DeliveryRepository is required")
	}
	if opts.Attempter == nil {
		return nil, errors.New("delivery attempter is required")
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
	return &RetrySweepService{
		deliveries:  opts.Deliveries,
		attempter:   opts.Attempter,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		metrics:     metrics.OrNop(opts.Metrics),
		clock:       clock,
		logger:      logger.With("component", "retry_sweep"),
	}, nil
}

// ProcessRetries claims due deliveries and attempts each of them once. Rows claimed by a
// concurrent sweep or trigger are skipped. It returns the number of deliveries claimed.
//
// A failed attempt does not stop the sweep; persistence errors are joined into the result.
func (s *RetrySweepService) ProcessRetries(ctx context.Context) (int, error) {
	start := s.clock.Now()
	claimed, err := s.deliveries.ClaimDue(ctx, model.ClaimDueParams{
		Now:        start,
		ClaimUntil: start.Add(s.attempter.ClaimLease()),
		Limit:      s.batchSize,
	})
	if err != nil {
		s.metrics.SweepFinished(metrics.SweepMetric{
			Result:   metrics.ResultError,
			Duration: s.clock.Now().Sub(start),
			Err:      err,
		})
		return 0, fmt.Errorf("claim due deliveries: %w", err)
	}
	if len(claimed) == 0 {
		s.metrics.SweepFinished(metrics.SweepMetric{Result: metrics.ResultNoop, Duration: s.clock.Now().Sub(start)})
		return 0, nil
	}

	errs := make([]error, len(claimed))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, d := range claimed {
		g.Go(func() error {
			if _, err := s.attempter.AttemptDelivery(ctx, d); err != nil {
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	joined := errors.Join(errs...)
	result := metrics.ResultSuccess
	if joined != nil {
		result = metrics.ResultError
	}
	s.metrics.SweepFinished(metrics.SweepMetric{
		Result:   result,
		Claimed:  len(claimed),
		Duration: s.clock.Now().Sub(start),
		Err:      joined,
	})
	s.logger.InfoContext(ctx, "retry sweep finished", "claimed", len(claimed), "error", joined)
	return len(claimed), joined
}
