package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/data"
	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/mocks/memstore"
	"github.com/target/renewal-risk-api/internal/observability/metrics"
)

const (
	testPropertyID = "prop-001"
	testRMSURL     = "http://rms.test/webhook"
)

var testNow = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeRMS records every request and answers through respond.
type fakeRMS struct {
	mu      sync.Mutex
	calls   []model.RMSRequest
	respond func(call int, req model.RMSRequest) model.AttemptResult
}

func (f *fakeRMS) Send(ctx context.Context, req model.RMSRequest) model.AttemptResult {
	if err := ctx.Err(); err != nil {
		return model.AttemptResult{Err: err}
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return model.AttemptResult{StatusCode: 200, Body: `{"received":true}`}
	}
	return respond(n, req)
}

func (f *fakeRMS) Calls() []model.RMSRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.RMSRequest(nil), f.calls...)
}

func alwaysStatus(code int, body string) func(int, model.RMSRequest) model.AttemptResult {
	return func(int, model.RMSRequest) model.AttemptResult {
		return model.AttemptResult{StatusCode: code, Body: body}
	}
}

// recordingMetrics keeps every event for assertions.
type recordingMetrics struct {
	mu           sync.Mutex
	calculations []metrics.CalculationMetric
	attempts     []metrics.WebhookAttemptMetric
	sweeps       []metrics.SweepMetric
	reaps        []metrics.ReaperMetric
}

func (r *recordingMetrics) CalculationFinished(m metrics.CalculationMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculations = append(r.calculations, m)
}

func (r *recordingMetrics) WebhookAttempt(m metrics.WebhookAttemptMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, m)
}

func (r *recordingMetrics) SweepFinished(m metrics.SweepMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps = append(r.sweeps, m)
}

func (r *recordingMetrics) ReaperCleanup(m metrics.ReaperMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reaps = append(r.reaps, m)
}

func (r *recordingMetrics) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.attempts))
	for _, a := range r.attempts {
		out = append(out, a.Outcome)
	}
	return out
}

// seedResident adds an active resident with an active fixed lease on its own unit.
func seedResident(store *memstore.Store, id string, lease model.Lease) {
	unitID := "unit-" + id
	store.AddResident(model.Resident{
		ID:         id,
		PropertyID: testPropertyID,
		UnitID:     unitID,
		UnitNumber: id,
		FirstName:  "Res",
		LastName:   id,
	})
	lease.ResidentID = id
	lease.PropertyID = testPropertyID
	lease.UnitID = unitID
	if lease.ID == "" {
		lease.ID = "lease-" + id
	}
	if lease.LeaseType == "" {
		lease.LeaseType = model.LeaseTypeFixed
	}
	store.AddLease(lease)
}

func newTestStore() (*memstore.Store, *data.FixedTimeProvider) {
	clock := data.NewFixedTimeProvider(testNow)
	store := memstore.New(clock.Now)
	store.AddProperty(model.Property{ID: testPropertyID, Name: "Park Meadows", Status: model.StatusActive})
	return store, clock
}

type webhookHarness struct {
	store   *memstore.Store
	clock   *data.FixedTimeProvider
	rms     *fakeRMS
	metrics *recordingMetrics
	svc     *WebhookDeliveryService
}

func newWebhookHarness(t *testing.T, cfg config.WebhookConfig) *webhookHarness {
	t.Helper()
	store, clock := newTestStore()
	rms := &fakeRMS{}
	rec := &recordingMetrics{}

	if cfg.URL == "" {
		cfg.URL = testRMSURL
	}
	requests, err := NewRMSRequestBuilder(RMSRequestBuilderOptions{URL: cfg.URL, BodyExpr: cfg.BodyExpr})
	require.NoError(t, err)

	svc, err := NewWebhookDeliveryService(WebhookDeliveryServiceOptions{
		Repos: WebhookDeliveryRepos{
			Residents:  store.Residents(),
			Leases:     store.Leases(),
			Offers:     store.RenewalOffers(),
			Scores:     store.RiskScores(),
			Deliveries: store.WebhookDeliveries(),
		},
		Client:   rms,
		Requests: requests,
		Config:   cfg,
		Metrics:  rec,
		Clock:    clock,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	return &webhookHarness{store: store, clock: clock, rms: rms, metrics: rec, svc: svc}
}

func (h *webhookHarness) newSweep(t *testing.T, cfg config.RetrySweepConfig) *RetrySweepService {
	t.Helper()
	sweep, err := NewRetrySweepService(RetrySweepServiceOptions{
		Deliveries: h.store.WebhookDeliveries(),
		Attempter:  h.svc,
		Config:     cfg,
		Metrics:    h.metrics,
		Clock:      h.clock,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	return sweep
}

// seedScoredResident adds a resident with a lease and a latest score.
func (h *webhookHarness) seedScoredResident(id string) model.RiskScore {
	seedResident(h.store, id, model.Lease{
		LeaseStartDate: day(2025, 2, 1),
		LeaseEndDate:   day(2026, 1, 31),
		MonthlyRent:    1500,
	})
	score := model.RiskScore{
		PropertyID:   testPropertyID,
		ResidentID:   id,
		LeaseID:      "lease-" + id,
		Score:        85,
		Tier:         model.RiskTierHigh,
		DaysToExpiry: 30,
		Signals: model.RiskSignals{
			DaysToExpiryDays:         30,
			PaymentHistoryDelinquent: true,
			NoRenewalOfferYet:        true,
		},
		CalculatedAt: day(2026, 1, 1),
	}
	h.store.AddScore(score)
	return score
}
