package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/domain/model"
	apperrors "github.com/target/renewal-risk-api/internal/errors"
	"github.com/target/renewal-risk-api/internal/mocks/memstore"
	"github.com/target/renewal-risk-api/internal/observability/metrics"
)

func TestNewWebhookDeliveryService_RequiresDependencies(t *testing.T) {
	store := memstore.New(nil)
	requests, err := NewRMSRequestBuilder(RMSRequestBuilderOptions{URL: testRMSURL})
	require.NoError(t, err)
	repos := WebhookDeliveryRepos{
		Residents:  store.Residents(),
		Leases:     store.Leases(),
		Offers:     store.RenewalOffers(),
		Scores:     store.RiskScores(),
		Deliveries: store.WebhookDeliveries(),
	}

	_, err = NewWebhookDeliveryService(WebhookDeliveryServiceOptions{Repos: repos, Requests: requests})
	require.Error(t, err)

	_, err = NewWebhookDeliveryService(WebhookDeliveryServiceOptions{Repos: repos, Client: &fakeRMS{}})
	require.Error(t, err)

	missing := repos
	missing.Deliveries = nil
	_, err = NewWebhookDeliveryService(WebhookDeliveryServiceOptions{
		Repos: missing, Client: &fakeRMS{}, Requests: requests,
	})
	require.ErrorContains(t, err, "DeliveryRepository")
}

func TestTriggerRenewalEvent_DeliversAndCreatesOffer(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	score := h.seedScoredResident("res-1")

	res, err := h.svc.TriggerRenewalEvent(context.Background(), testPropertyID, "res-1")
	require.NoError(t, err)

	eventID := model.RenewalEventID(testPropertyID, "res-1", score.CalculatedAt)
	assert.Equal(t, model.TriggerMessageCreated, res.Message)
	assert.Equal(t, eventID, res.EventID)
	assert.Equal(t, model.DeliveryStatusDelivered, res.Status)

	calls := h.rms.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testRMSURL, calls[0].URL)
	assert.Equal(t, eventID, calls[0].EventID)

	var payload model.RenewalEventPayload
	require.NoError(t, json.Unmarshal(calls[0].Body, &payload))
	assert.Equal(t, model.EventTypeRenewalRiskFlagged, payload.Event)
	assert.Equal(t, eventID, payload.EventID)
	assert.Equal(t, 85, payload.Data.RiskScore)
	assert.Equal(t, model.RiskTierHigh, payload.Data.RiskTier)
	assert.True(t, payload.Data.Signals.PaymentHistoryDelinquent)

	d, ok := h.store.DeliveryByEvent(eventID)
	require.True(t, ok)
	assert.Equal(t, model.DeliveryStatusDelivered, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	assert.Nil(t, d.ClaimedUntil)
	assert.Nil(t, d.NextRetryAt)

	offers := h.store.Offers()
	require.Len(t, offers, 1)
	assert.Equal(t, "lease-res-1", offers[0].LeaseID)
	assert.Equal(t, model.OfferStatusSent, offers[0].Status)
	assert.Equal(t, day(2026, 1, 31), offers[0].RenewalStartDate)

	assert.Equal(t, []string{metrics.OutcomeDelivered}, h.metrics.outcomes())
}

func TestTriggerRenewalEvent_RepeatAfterDeliveryIsIdempotent(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.seedScoredResident("res-1")
	ctx := context.Background()

	first, err := h.svc.TriggerRenewalEvent(ctx, testPropertyID, "res-1")
	require.NoError(t, err)

	second, err := h.svc.TriggerRenewalEvent(ctx, testPropertyID, "res-1")
	require.NoError(t, err)
	assert.Equal(t, model.TriggerMessageDelivered, second.Message)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, model.DeliveryStatusDelivered, second.Status)

	assert.Len(t, h.rms.Calls(), 1, "a delivered event is never re-sent")
	assert.Len(t, h.store.Offers(), 1)
}

func TestTriggerRenewalEvent_RequeuesFailedDelivery(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.seedScoredResident("res-1")
	h.rms.respond = func(call int, _ model.RMSRequest) model.AttemptResult {
		if call == 1 {
			return model.AttemptResult{StatusCode: 503, Body: "unavailable"}
		}
		return model.AttemptResult{StatusCode: 200, Body: "ok"}
	}
	ctx := context.Background()

	first, err := h.svc.TriggerRenewalEvent(ctx, testPropertyID, "res-1")
	require.NoError(t, err)
	assert.Equal(t, model.TriggerMessageCreated, first.Message)
	assert.Equal(t, model.DeliveryStatusFailed, first.Status)
	assert.Empty(t, h.store.Offers())

	d, ok := h.store.DeliveryByEvent(first.EventID)
	require.True(t, ok)
	require.NotNil(t, d.NextRetryAt)
	assert.Equal(t, testNow.Add(time.Second), *d.NextRetryAt)
	require.NotNil(t, d.RMSResponse)
	assert.Equal(t, "503: unavailable", *d.RMSResponse)

	second, err := h.svc.TriggerRenewalEvent(ctx, testPropertyID, "res-1")
	require.NoError(t, err)
	assert.Equal(t, model.TriggerMessageRequeued, second.Message)
	assert.Equal(t, model.DeliveryStatusDelivered, second.Status)

	d, _ = h.store.DeliveryByEvent(first.EventID)
	assert.Equal(t, 1, d.AttemptCount, "re-queue resets the attempt budget")
	assert.Len(t, h.rms.Calls(), 2)
	assert.Len(t, h.store.Offers(), 1)
}

func TestTriggerRenewalEvent_ClaimedDeliveryIsInProgress(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	score := h.seedScoredResident("res-1")
	eventID := model.RenewalEventID(testPropertyID, "res-1", score.CalculatedAt)

	claimedUntil := testNow.Add(time.Minute)
	h.store.PutDelivery(model.WebhookDelivery{
		ID:           "d-1",
		PropertyID:   testPropertyID,
		ResidentID:   "res-1",
		EventType:    model.EventTypeRenewalRiskFlagged,
		EventID:      eventID,
		Payload:      json.RawMessage(`{}`),
		Status:       model.DeliveryStatusFailed,
		AttemptCount: 2,
		ClaimedUntil: &claimedUntil,
	})

	res, err := h.svc.TriggerRenewalEvent(context.Background(), testPropertyID, "res-1")
	require.NoError(t, err)
	assert.Equal(t, model.TriggerMessageInProgress, res.Message)
	assert.Equal(t, model.DeliveryStatusFailed, res.Status)
	assert.Empty(t, h.rms.Calls())

	d, _ := h.store.DeliveryByEvent(eventID)
	assert.Equal(t, 2, d.AttemptCount)
}

func TestTriggerRenewalEvent_NotFound(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	ctx := context.Background()

	_, err := h.svc.TriggerRenewalEvent(ctx, testPropertyID, "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, "Resident not found", apperrors.PublicMessage(err))

	seedResident(h.store, "res-2", model.Lease{LeaseStartDate: day(2025, 1, 1), LeaseEndDate: day(2026, 6, 1)})
	_, err = h.svc.TriggerRenewalEvent(ctx, testPropertyID, "res-2")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, apperrors.PublicMessage(err), "Run calculation first")

	_, err = h.svc.TriggerRenewalEvent(ctx, "other-property", "res-2")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, h.rms.Calls())
}

func TestAttemptDelivery_RecordFailureIsReturned(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.seedScoredResident("res-1")
	h.store.RecordAttemptErr = memstore.ErrInjected

	_, err := h.svc.TriggerRenewalEvent(context.Background(), testPropertyID, "res-1")
	require.ErrorIs(t, err, memstore.ErrInjected)
	assert.Equal(t, []string{metrics.OutcomeError}, h.metrics.outcomes())
	assert.Empty(t, h.store.Offers())
}

func TestAttemptDelivery_OfferFailureDoesNotFailDelivery(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.seedScoredResident("res-1")
	h.store.CreateOfferErr = memstore.ErrInjected

	res, err := h.svc.TriggerRenewalEvent(context.Background(), testPropertyID, "res-1")
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusDelivered, res.Status)
	assert.Empty(t, h.store.Offers())
}

func TestAttemptDelivery_SkipsOfferWhenOneExists(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.seedScoredResident("res-1")
	h.store.AddOffer(model.RenewalOffer{
		ID:         "offer-0",
		PropertyID: testPropertyID,
		ResidentID: "res-1",
		LeaseID:    "lease-res-1",
		Status:     model.OfferStatusPending,
	})

	_, err := h.svc.TriggerRenewalEvent(context.Background(), testPropertyID, "res-1")
	require.NoError(t, err)

	offers := h.store.Offers()
	require.Len(t, offers, 1)
	assert.Equal(t, "offer-0", offers[0].ID)
}

func TestAttemptDelivery_TransportErrorSchedulesRetry(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 3})
	h.seedScoredResident("res-1")
	h.rms.respond = func(int, model.RMSRequest) model.AttemptResult {
		return model.AttemptResult{Err: context.DeadlineExceeded}
	}

	res, err := h.svc.TriggerRenewalEvent(context.Background(), testPropertyID, "res-1")
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusFailed, res.Status)

	d, _ := h.store.DeliveryByEvent(res.EventID)
	require.NotNil(t, d.RMSResponse)
	assert.Equal(t, context.DeadlineExceeded.Error(), *d.RMSResponse)
	assert.Equal(t, []string{metrics.OutcomeRetry}, h.metrics.outcomes())
}

func TestAttemptDelivery_BodyExpressionProjectsPayload(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{
		MaxRetries: 5,
		BodyExpr:   "{id: eventId, score: data.riskScore}",
	})
	h.seedScoredResident("res-1")

	res, err := h.svc.TriggerRenewalEvent(context.Background(), testPropertyID, "res-1")
	require.NoError(t, err)

	calls := h.rms.Calls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"id":"`+res.EventID+`","score":85}`, string(calls[0].Body))

	// The stored payload keeps the full event.
	d, _ := h.store.DeliveryByEvent(res.EventID)
	var stored model.RenewalEventPayload
	require.NoError(t, json.Unmarshal(d.Payload, &stored))
	assert.Equal(t, testPropertyID, stored.PropertyID)
}

func TestAttemptDelivery_CallerCancellationIsNotAFailure(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 1})
	h.seedScoredResident("res-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.svc.TriggerRenewalEvent(ctx, testPropertyID, "res-1")
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusDelivered, res.Status)
	assert.Empty(t, h.store.DeadLetters())
	assert.Equal(t, []string{metrics.OutcomeDelivered}, h.metrics.outcomes())
}
