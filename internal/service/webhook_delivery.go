package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/data"
	"github.com/target/renewal-risk-api/internal/domain/model"
	apperrors "github.com/target/renewal-risk-api/internal/errors"
	"github.com/target/renewal-risk-api/internal/observability/metrics"
)

// WebhookDeliveryRepos groups the repositories used by WebhookDeliveryService.
type WebhookDeliveryRepos struct {
	Residents  core.ResidentRepository
	Leases     core.LeaseRepository
	Offers     core.RenewalOfferRepository
	Scores     core.RiskScoreRepository
	Deliveries core.DeliveryRepository
}

func (r WebhookDeliveryRepos) validate() error {
	switch {
	case r.Residents == nil:
		return errors.New("ResidentRepository is required")
	case r.Leases == nil:
		return errors.New("LeaseRepository is required")
	case r.Offers == nil:
		return errors.New("RenewalOfferRepository is required")
	case r.Scores == nil:
		return errors.New("RiskScoreRepository is required")
	case r.Deliveries == nil:
		return errors.New("DeliveryRepository is required")
	}
	return nil
}

// WebhookDeliveryServiceOptions groups dependencies for WebhookDeliveryService.
type WebhookDeliveryServiceOptions struct {
	Repos    WebhookDeliveryRepos
	Client   core.RMSClient
	Requests *RMSRequestBuilder
	Config   config.WebhookConfig
	Metrics  metrics.Recorder  // optional
	Clock    data.TimeProvider // optional
	Logger   *slog.Logger      // optional
}

// WebhookDeliveryService emits renewal events to the RMS with at-least-once delivery.
//
// A delivery is only attempted by the holder of its claim. Claims are taken when the row is
// created, reset, or picked up by a sweep, and released when the attempt is recorded.
type WebhookDeliveryService struct {
	repos      WebhookDeliveryRepos
	client     core.RMSClient
	requests   *RMSRequestBuilder
	policy     model.RetryPolicy
	timeout    time.Duration
	claimLease time.Duration
	metrics    metrics.Recorder
	clock      data.TimeProvider
	logger     *slog.Logger
}

// NewWebhookDeliveryService constructs a WebhookDeliveryService.
func NewWebhookDeliveryService(opts WebhookDeliveryServiceOptions) (*WebhookDeliveryService, error) {
	if err := opts.Repos.validate(); err != nil {
		return nil, err
	}
	if opts.Client == nil {
		return nil, errors.New("RMSClient is required")
	}
	if opts.Requests == nil {
		return nil, errors.New("RMSRequestBuilder is required")
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
	return &WebhookDeliveryService{
		repos:      opts.Repos,
		client:     opts.Client,
		requests:   opts.Requests,
		policy:     model.RetryPolicy{MaxRetries: cfg.MaxRetries},
		timeout:    cfg.Timeout,
		claimLease: cfg.ClaimLease,
		metrics:    metrics.OrNop(opts.Metrics),
		clock:      clock,
		logger:     logger.With("component", "webhook_delivery"),
	}, nil
}

// ClaimLease is how long a claim taken by this service stays valid.
func (s *WebhookDeliveryService) ClaimLease() time.Duration { return s.claimLease }

// TriggerRenewalEvent emits the renewal event for a resident's latest score and makes the
// first attempt inline. Repeated triggers for the same snapshot reuse its event id.
func (s *WebhookDeliveryService) TriggerRenewalEvent(
	ctx context.Context,
	propertyID, residentID string,
) (*model.TriggerResult, error) {
	if _, err := s.repos.Residents.GetInProperty(ctx, propertyID, residentID); err != nil {
		if errors.Is(err, data.ErrResidentNotFound) {
			return nil, apperrors.NotFound("Resident not found")
		}
		return nil, fmt.Errorf("get resident: %w", err)
	}

	score, err := s.repos.Scores.LatestForResident(ctx, residentID)
	if err != nil {
		if errors.Is(err, data.ErrRiskScoreNotFound) {
			return nil, apperrors.NotFound("No risk score found for this resident. Run calculation first.")
		}
		return nil, fmt.Errorf("get latest risk score: %w", err)
	}
	score.PropertyID = propertyID
	eventID := model.RenewalEventID(propertyID, residentID, score.CalculatedAt)

	existing, err := s.repos.Deliveries.GetByEventID(ctx, eventID)
	switch {
	case err == nil:
		return s.redeliver(ctx, existing)
	case !errors.Is(err, data.ErrDeliveryNotFound):
		return nil, fmt.Errorf("get delivery: %w", err)
	}

	now := s.clock.Now()
	payload, err := json.Marshal(model.NewRenewalEventPayload(*score, now))
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	delivery, created, err := s.repos.Deliveries.CreateClaimed(ctx, model.CreateDeliveryRequest{
		PropertyID: propertyID,
		ResidentID: residentID,
		EventType:  model.EventTypeRenewalRiskFlagged,
		EventID:    eventID,
		Payload:    payload,
		Now:        now,
		ClaimUntil: now.Add(s.claimLease),
	})
	if err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}
	if !created {
		// A concurrent trigger inserted the row first.
		return s.redeliver(ctx, delivery)
	}

	s.logger.InfoContext(ctx, "webhook event created", "event_id", eventID, "property_id", propertyID)
	attempted, err := s.AttemptDelivery(ctx, delivery)
	if err != nil {
		return nil, err
	}
	return &model.TriggerResult{
		Message: model.TriggerMessageCreated,
		EventID: eventID,
		Status:  attempted.Status,
	}, nil
}

// redeliver handles a trigger for an event that already has a delivery row.
func (s *WebhookDeliveryService) redeliver(
	ctx context.Context,
	existing *model.WebhookDelivery,
) (*model.TriggerResult, error) {
	if existing.Status == model.DeliveryStatusDelivered {
		return &model.TriggerResult{
			Message: model.TriggerMessageDelivered,
			EventID: existing.EventID,
			Status:  existing.Status,
		}, nil
	}

	now := s.clock.Now()
	reset, err := s.repos.Deliveries.ResetForRedelivery(ctx, model.ResetDeliveryRequest{
		EventID:    existing.EventID,
		Now:        now,
		ClaimUntil: now.Add(s.claimLease),
	})
	if errors.Is(err, data.ErrDeliveryNotClaimable) {
		return s.reportUnclaimable(ctx, existing)
	}
	if err != nil {
		return nil, fmt.Errorf("reset delivery: %w", err)
	}

	s.logger.InfoContext(ctx, "webhook event re-queued", "event_id", reset.EventID)
	attempted, err := s.AttemptDelivery(ctx, reset)
	if err != nil {
		return nil, err
	}
	return &model.TriggerResult{
		Message: model.TriggerMessageRequeued,
		EventID: attempted.EventID,
		Status:  attempted.Status,
	}, nil
}

// reportUnclaimable answers a trigger whose delivery is held by another claimant or was
// delivered since it was read.
func (s *WebhookDeliveryService) reportUnclaimable(
	ctx context.Context,
	existing *model.WebhookDelivery,
) (*model.TriggerResult, error) {
	current, err := s.repos.Deliveries.GetByEventID(ctx, existing.EventID)
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	if current.Status == model.DeliveryStatusDelivered {
		return &model.TriggerResult{
			Message: model.TriggerMessageDelivered,
			EventID: current.EventID,
			Status:  current.Status,
		}, nil
	}
	return &model.TriggerResult{
		Message: model.TriggerMessageInProgress,
		EventID: current.EventID,
		Status:  current.Status,
	}, nil
}

// AttemptDelivery makes exactly one RMS call for a claimed delivery and persists the outcome.
// Transport failures are part of the outcome; only persistence errors are returned.
func (s *WebhookDeliveryService) AttemptDelivery(
	ctx context.Context,
	d *model.WebhookDelivery,
) (*model.WebhookDelivery, error) {
	if d == nil {
		return nil, errors.New("delivery is required")
	}
	next := *d

	start := s.clock.Now()
	res := s.send(ctx, &next, start)
	outcome := next.ApplyAttempt(res, s.policy, s.clock.Now())
	elapsed := s.clock.Now().Sub(start)

	// The outcome is persisted even when the caller has gone away, otherwise the
	// claim would linger until its lease runs out.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.repos.Deliveries.RecordAttempt(persistCtx, outcome); err != nil {
		s.metrics.WebhookAttempt(metrics.WebhookAttemptMetric{
			Outcome:  metrics.OutcomeError,
			Duration: elapsed,
			Err:      err,
		})
		s.logger.ErrorContext(ctx, "record webhook attempt failed",
			"event_id", next.EventID, "attempt", next.AttemptCount, "error", err)
		return nil, fmt.Errorf("record attempt for %s: %w", next.EventID, err)
	}

	s.metrics.WebhookAttempt(metrics.WebhookAttemptMetric{
		Outcome:  attemptOutcome(next.Status),
		Duration: elapsed,
		Err:      res.Err,
	})
	s.logAttempt(ctx, &next, outcome)

	if next.Status == model.DeliveryStatusDelivered {
		s.ensureRenewalOffer(persistCtx, &next)
	}
	return &next, nil
}

func (s *WebhookDeliveryService) send(ctx context.Context, d *model.WebhookDelivery, now time.Time) model.AttemptResult {
	req, err := s.requests.Build(d, now)
	if err != nil {
		return model.AttemptResult{Err: err}
	}
	// Only the RMS timeout ends a call. A caller going away must not burn a retry.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return s.client.Send(callCtx, req)
}

func (s *WebhookDeliveryService) logAttempt(ctx context.Context, d *model.WebhookDelivery, out model.DeliveryOutcome) {
	attrs := []any{
		"event_id", d.EventID,
		"attempt", d.AttemptCount,
		"status", d.Status,
	}
	switch d.Status {
	case model.DeliveryStatusDelivered:
		s.logger.InfoContext(ctx, "webhook delivered", attrs...)
	case model.DeliveryStatusDLQ:
		s.logger.ErrorContext(ctx, "webhook dead-lettered", append(attrs, "reason", *out.DeadLetterReason)...)
	default:
		if out.NextRetryAt != nil {
			attrs = append(attrs, "next_retry_at", out.NextRetryAt.Format(time.RFC3339))
		}
		s.logger.WarnContext(ctx, "webhook attempt failed", attrs...)
	}
}

func attemptOutcome(status model.DeliveryStatus) string {
	switch status {
	case model.DeliveryStatusDelivered:
		return metrics.OutcomeDelivered
	case model.DeliveryStatusDLQ:
		return metrics.OutcomeDLQ
	default:
		return metrics.OutcomeRetry
	}
}

// ensureRenewalOffer records a sent renewal offer for the resident's active lease once the
// RMS has accepted the event. Failures are logged; delivery state is already final.
func (s *WebhookDeliveryService) ensureRenewalOffer(ctx context.Context, d *model.WebhookDelivery) {
	lease, err := s.repos.Leases.GetActiveForResident(ctx, d.ResidentID)
	if err != nil {
		if !errors.Is(err, data.ErrLeaseNotFound) {
			s.logger.WarnContext(ctx, "renewal offer lookup failed", "event_id", d.EventID, "error", err)
		}
		return
	}
	if lease.PropertyID != d.PropertyID {
		return
	}

	exists, err := s.repos.Offers.ExistsForLease(ctx, d.ResidentID, lease.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "renewal offer lookup failed", "event_id", d.EventID, "error", err)
		return
	}
	if exists {
		return
	}

	offer, err := s.repos.Offers.Create(ctx, model.CreateRenewalOfferRequest{
		PropertyID:       d.PropertyID,
		ResidentID:       d.ResidentID,
		LeaseID:          lease.ID,
		RenewalStartDate: lease.LeaseEndDate,
		Status:           model.OfferStatusSent,
	})
	if errors.Is(err, data.ErrRenewalOfferExists) {
		// A concurrent delivery for the same resident created it first.
		s.logger.DebugContext(ctx, "renewal offer already exists", "event_id", d.EventID, "lease_id", lease.ID)
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "create renewal offer failed", "event_id", d.EventID, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "renewal offer created",
		"event_id", d.EventID, "offer_id", offer.ID, "lease_id", lease.ID)
}
