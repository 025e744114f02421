package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/data"
	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/domain/scoring"
	apperrors "github.com/target/renewal-risk-api/internal/errors"
	"github.com/target/renewal-risk-api/internal/observability/metrics"
)

// RiskCalculationRepos groups the repositories the calculation engine reads and writes.
type RiskCalculationRepos struct {
	Properties core.PropertyRepository
	Residents  core.ResidentRepository
	Leases     core.LeaseRepository
	Ledger     core.LedgerRepository
	Pricing    core.PricingRepository
	Offers     core.RenewalOfferRepository
	Scores     core.RiskScoreRepository
	Jobs       core.CalculationJobRepository
}

func (r RiskCalculationRepos) validate() error {
	switch {
	case r.Properties == nil:
		return errors.New("PropertyRepository is required")
	case r.Residents == nil:
		return errors.New("ResidentRepository is required")
	case r.Leases == nil:
		return errors.New("LeaseRepository is required")
	case r.Ledger == nil:
		return errors.New("LedgerRepository is required")
	case r.Pricing == nil:
		return errors.New("PricingRepository is required")
	case r.Offers == nil:
		return errors.New("RenewalOfferRepository is required")
	case r.Scores == nil:
		return errors.New("RiskScoreRepository is required")
	case r.Jobs == nil:
		return errors.New("CalculationJobRepository is required")
	}
	return nil
}

// RiskCalculationServiceOptions groups dependencies for RiskCalculationService.
type RiskCalculationServiceOptions struct {
	Repos   RiskCalculationRepos
	Config  config.RiskConfig
	Cache   *core.LatestScoreCache // optional
	Metrics metrics.Recorder       // optional
	Clock   data.TimeProvider      // optional
	Logger  *slog.Logger           // optional
}

// RiskCalculationService runs renewal-risk calculations and serves their results.
type RiskCalculationService struct {
	repos     RiskCalculationRepos
	chunkSize int
	cache     *core.LatestScoreCache
	metrics   metrics.Recorder
	clock     data.TimeProvider
	logger    *slog.Logger

	// running tracks detached runs started by StartCalculation.
	running sync.WaitGroup
}

// NewRiskCalculationService constructs a RiskCalculationService.
func NewRiskCalculationService(opts RiskCalculationServiceOptions) (*RiskCalculationService, error) {
	if err := opts.Repos.validate(); err != nil {
		return nil, err
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
	return &RiskCalculationService{
		repos:     opts.Repos,
		chunkSize: cfg.ChunkSize,
		cache:     opts.Cache,
		metrics:   metrics.OrNop(opts.Metrics),
		clock:     clock,
		logger:    logger.With("component", "risk_calculation"),
	}, nil
}

// StartCalculation validates the request, records a processing job and runs the
// calculation in the background. The returned job is still processing.
func (s *RiskCalculationService) StartCalculation(
	ctx context.Context,
	propertyID, asOfDate string,
) (*model.CalculationJob, error) {
	if _, err := model.ParseAsOfDate(asOfDate); err != nil {
		if errors.Is(err, model.ErrAsOfDateRequired) {
			return nil, apperrors.ValidationField("asOfDate", "asOfDate is required")
		}
		return nil, apperrors.ValidationField("asOfDate", "asOfDate must be YYYY-MM-DD or RFC 3339")
	}

	if _, err := s.repos.Properties.GetByID(ctx, propertyID); err != nil {
		if errors.Is(err, data.ErrPropertyNotFound) {
			return nil, apperrors.NotFound("Property not found")
		}
		return nil, fmt.Errorf("get property: %w", err)
	}

	job, err := s.repos.Jobs.Create(ctx, model.CreateCalculationJobRequest{
		PropertyID: propertyID,
		AsOfDate:   asOfDate,
	})
	if err != nil {
		return nil, fmt.Errorf("create calculation job: %w", err)
	}

	s.logger.InfoContext(ctx, "calculation started",
		"job_id", job.ID, "property_id", propertyID, "as_of_date", asOfDate)

	// The run outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)
	snapshot := *job
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.runDetached(runCtx, &snapshot)
	}()

	return job, nil
}

func (s *RiskCalculationService) runDetached(ctx context.Context, job *model.CalculationJob) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("calculation panicked: %v", r)
			s.logger.ErrorContext(ctx, "calculation panicked", "job_id", job.ID, "error", err)
			s.markFailed(ctx, job.ID, err)
		}
	}()
	// Run records failures on the job row itself.
	_, _ = s.Run(ctx, job)
}

// Run executes a calculation synchronously and moves the job to completed or failed.
func (s *RiskCalculationService) Run(
	ctx context.Context,
	job *model.CalculationJob,
) (model.CalculationSummary, error) {
	if job == nil {
		return model.CalculationSummary{}, errors.New("job is required")
	}
	start := s.clock.Now()

	summary, err := s.calculate(ctx, job)
	if err != nil {
		return summary, s.fail(ctx, job, start, summary, err)
	}

	updated, err := s.repos.Jobs.Complete(ctx, job.ID)
	if err != nil {
		// Scores are already written, so readers must not keep the previous snapshot.
		s.invalidate(ctx, job.PropertyID)
		return summary, s.fail(ctx, job, start, summary, fmt.Errorf("complete calculation job: %w", err))
	}
	if !updated {
		s.logger.WarnContext(ctx, "calculation job already terminal", "job_id", job.ID)
	}
	s.invalidate(ctx, job.PropertyID)

	result := metrics.ResultSuccess
	if summary.Residents == 0 {
		result = metrics.ResultNoop
	}
	s.metrics.CalculationFinished(metrics.CalculationMetric{
		Result:    result,
		Duration:  s.clock.Now().Sub(start),
		Residents: summary.Residents,
		Scored:    summary.Scored,
		Written:   summary.Written,
	})
	s.logger.InfoContext(ctx, "calculation completed",
		"job_id", job.ID,
		"property_id", job.PropertyID,
		"residents", summary.Residents,
		"scored", summary.Scored,
		"written", summary.Written,
	)
	return summary, nil
}

// fail moves the job to failed and reports the run. It returns cause.
func (s *RiskCalculationService) fail(
	ctx context.Context,
	job *model.CalculationJob,
	start time.Time,
	summary model.CalculationSummary,
	cause error,
) error {
	s.markFailed(ctx, job.ID, cause)
	s.metrics.CalculationFinished(metrics.CalculationMetric{
		Result:    metrics.ResultError,
		Duration:  s.clock.Now().Sub(start),
		Residents: summary.Residents,
		Scored:    summary.Scored,
		Written:   summary.Written,
		Err:       cause,
	})
	s.logger.ErrorContext(ctx, "calculation failed",
		"job_id", job.ID, "property_id", job.PropertyID, "error", cause)
	return cause
}

func (s *RiskCalculationService) invalidate(ctx context.Context, propertyID string) {
	if err := s.cache.Invalidate(ctx, propertyID); err != nil {
		s.logger.WarnContext(ctx, "invalidate latest scores failed",
			"property_id", propertyID, "error", err)
	}
}

func (s *RiskCalculationService) markFailed(ctx context.Context, jobID string, cause error) {
	if _, err := s.repos.Jobs.Fail(ctx, jobID, cause.Error()); err != nil {
		s.logger.ErrorContext(ctx, "record calculation failure", "job_id", jobID, "error", err)
	}
}

// residentIndex holds the batch-loaded inputs keyed for constant-time lookup.
type residentIndex struct {
	leases   map[string]*model.Lease
	offers   map[string]map[string]struct{}
	payments map[string][]model.LedgerEntry
	pricing  map[string]*model.UnitPricing
}

func (s *RiskCalculationService) calculate(
	ctx context.Context,
	job *model.CalculationJob,
) (model.CalculationSummary, error) {
	var summary model.CalculationSummary

	ref, err := model.ParseAsOfDate(job.AsOfDate)
	if err != nil {
		return summary, fmt.Errorf("parse as-of date: %w", err)
	}

	residents, err := s.repos.Residents.ListActiveByProperty(ctx, job.PropertyID)
	if err != nil {
		return summary, fmt.Errorf("list residents: %w", err)
	}
	summary.Residents = len(residents)
	if len(residents) == 0 {
		return summary, nil
	}

	idx, err := s.loadIndex(ctx, residents)
	if err != nil {
		return summary, err
	}

	for start := 0; start < len(residents); start += s.chunkSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		end := min(start+s.chunkSize, len(residents))
		batch := scoreChunk(residents[start:end], idx, job.PropertyID, ref)
		summary.Chunks++
		if len(batch) == 0 {
			continue
		}
		n, err := s.repos.Scores.UpsertBatch(ctx, batch)
		if err != nil {
			return summary, fmt.Errorf("write chunk %d: %w", summary.Chunks, err)
		}
		summary.Scored += len(batch)
		summary.Written += n
	}
	return summary, nil
}

// loadIndex issues the four batch reads concurrently.
func (s *RiskCalculationService) loadIndex(
	ctx context.Context,
	residents []*model.Resident,
) (residentIndex, error) {
	residentIDs := make([]string, 0, len(residents))
	unitIDs := make([]string, 0, len(residents))
	seenUnits := make(map[string]struct{}, len(residents))
	for _, r := range residents {
		residentIDs = append(residentIDs, r.ID)
		if _, ok := seenUnits[r.UnitID]; ok || r.UnitID == "" {
			continue
		}
		seenUnits[r.UnitID] = struct{}{}
		unitIDs = append(unitIDs, r.UnitID)
	}

	var (
		leases   []*model.Lease
		offers   []*model.RenewalOffer
		payments []*model.LedgerEntry
		pricing  []*model.UnitPricing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if leases, err = s.repos.Leases.ListActiveByResidents(gctx, residentIDs); err != nil {
			return fmt.Errorf("load leases: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if offers, err = s.repos.Offers.ListByResidents(gctx, residentIDs); err != nil {
			return fmt.Errorf("load renewal offers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if payments, err = s.repos.Ledger.ListRentPaymentsByResidents(gctx, residentIDs); err != nil {
			return fmt.Errorf("load rent payments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if pricing, err = s.repos.Pricing.ListByUnitsLatestFirst(gctx, unitIDs); err != nil {
			return fmt.Errorf("load unit pricing: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return residentIndex{}, err
	}

	return buildIndex(leases, offers, payments, pricing), nil
}

func buildIndex(
	leases []*model.Lease,
	offers []*model.RenewalOffer,
	payments []*model.LedgerEntry,
	pricing []*model.UnitPricing,
) residentIndex {
	idx := residentIndex{
		leases:   make(map[string]*model.Lease, len(leases)),
		offers:   make(map[string]map[string]struct{}, len(offers)),
		payments: make(map[string][]model.LedgerEntry),
		pricing:  make(map[string]*model.UnitPricing, len(pricing)),
	}
	for _, l := range leases {
		if cur, ok := idx.leases[l.ResidentID]; !ok || l.LeaseEndDate.After(cur.LeaseEndDate) {
			idx.leases[l.ResidentID] = l
		}
	}
	for _, o := range offers {
		byLease, ok := idx.offers[o.ResidentID]
		if !ok {
			byLease = make(map[string]struct{})
			idx.offers[o.ResidentID] = byLease
		}
		byLease[o.LeaseID] = struct{}{}
	}
	for _, p := range payments {
		idx.payments[p.ResidentID] = append(idx.payments[p.ResidentID], *p)
	}
	for _, p := range pricing {
		if cur, ok := idx.pricing[p.UnitID]; !ok || p.EffectiveDate.After(cur.EffectiveDate) {
			idx.pricing[p.UnitID] = p
		}
	}
	return idx
}

// scoreChunk evaluates residents that have an active lease; the rest are skipped.
func scoreChunk(
	residents []*model.Resident,
	idx residentIndex,
	propertyID string,
	ref time.Time,
) []model.RiskScore {
	out := make([]model.RiskScore, 0, len(residents))
	for _, r := range residents {
		lease, ok := idx.leases[r.ID]
		if !ok {
			continue
		}
		_, hasOffer := idx.offers[r.ID][lease.ID]

		var market *float64
		if p, ok := idx.pricing[r.UnitID]; ok {
			v := p.MarketRent
			market = &v
		}

		out = append(out, scoring.Evaluate(scoring.ResidentInputs{
			PropertyID:   propertyID,
			ResidentID:   r.ID,
			Lease:        *lease,
			RentPayments: scoring.CountRentPayments(idx.payments[r.ID], lease.LeaseStartDate),
			HasOffer:     hasOffer,
			MarketRent:   market,
			Reference:    ref,
		}))
	}
	return out
}

// GetJob returns a calculation job by id.
func (s *RiskCalculationService) GetJob(ctx context.Context, id string) (*model.CalculationJob, error) {
	job, err := s.repos.Jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrCalculationJobNotFound) {
			return nil, apperrors.NotFound("Job not found")
		}
		return nil, fmt.Errorf("get calculation job: %w", err)
	}
	return job, nil
}

// LatestScores returns the property's most recent snapshot, highest score first.
// It never returns a nil slice on success.
func (s *RiskCalculationService) LatestScores(ctx context.Context, propertyID string) ([]model.ResidentRisk, error) {
	lookup, err := s.cache.Get(ctx, propertyID)
	if err != nil {
		s.logger.WarnContext(ctx, "latest score cache read failed", "property_id", propertyID, "error", err)
	}
	if lookup.Hit {
		return lookup.Scores, nil
	}

	scores, err := s.repos.Scores.LatestForProperty(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list latest scores: %w", err)
	}
	if scores == nil {
		scores = []model.ResidentRisk{}
	}
	if err := s.cache.Put(ctx, propertyID, lookup.Generation, scores); err != nil {
		s.logger.WarnContext(ctx, "latest score cache write failed", "property_id", propertyID, "error", err)
	}
	return scores, nil
}

// Wait blocks until every detached run has finished or ctx is done.
func (s *RiskCalculationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
