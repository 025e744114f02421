package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/renewal-risk-api/config"
	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/mocks/memstore"
	"github.com/target/renewal-risk-api/internal/observability/metrics"
)

func dueDelivery(id string, next time.Time) model.WebhookDelivery {
	return model.WebhookDelivery{
		ID:           id,
		PropertyID:   testPropertyID,
		ResidentID:   "res-" + id,
		EventType:    model.EventTypeRenewalRiskFlagged,
		EventID:      "evt-" + id,
		Payload:      json.RawMessage(`{"eventId":"evt-` + id + `"}`),
		Status:       model.DeliveryStatusFailed,
		AttemptCount: 1,
		NextRetryAt:  &next,
		CreatedAt:    next,
		UpdatedAt:    next,
	}
}

func TestNewRetrySweepService_RequiresDependencies(t *testing.T) {
	_, err := NewRetrySweepService(RetrySweepServiceOptions{})
	require.Error(t, err)

	store := memstore.New(nil)
	_, err = NewRetrySweepService(RetrySweepServiceOptions{Deliveries: store.WebhookDeliveries()})
	require.ErrorContains(t, err, "attempter")
}

func TestProcessRetries_NothingDue(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.store.PutDelivery(dueDelivery("later", testNow.Add(time.Hour)))
	sweep := h.newSweep(t, config.RetrySweepConfig{BatchSize: 10, Concurrency: 2})

	n, err := sweep.ProcessRetries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.rms.Calls())
	require.Len(t, h.metrics.sweeps, 1)
	assert.Equal(t, metrics.ResultNoop, h.metrics.sweeps[0].Result)
}

func TestProcessRetries_RespectsBatchSizeAndOrder(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.store.PutDelivery(dueDelivery("c", testNow.Add(-1*time.Second)))
	h.store.PutDelivery(dueDelivery("a", testNow.Add(-3*time.Second)))
	h.store.PutDelivery(dueDelivery("b", testNow.Add(-2*time.Second)))
	sweep := h.newSweep(t, config.RetrySweepConfig{BatchSize: 2, Concurrency: 1})

	n, err := sweep.ProcessRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var sent []string
	for _, c := range h.rms.Calls() {
		sent = append(sent, c.EventID)
	}
	assert.Equal(t, []string{"evt-a", "evt-b"}, sent)

	c, _ := h.store.DeliveryByEvent("evt-c")
	assert.Equal(t, model.DeliveryStatusFailed, c.Status)
}

func TestProcessRetries_FailuresEndInSingleDeadLetter(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.seedScoredResident("res-1")
	h.rms.respond = alwaysStatus(500, "boom")
	sweep := h.newSweep(t, config.RetrySweepConfig{BatchSize: 10, Concurrency: 2})
	ctx := context.Background()

	res, err := h.svc.TriggerRenewalEvent(ctx, testPropertyID, "res-1")
	require.NoError(t, err)
	require.Equal(t, model.DeliveryStatusFailed, res.Status)

	for attempt := 2; attempt <= 5; attempt++ {
		h.clock.AddTime(time.Minute)
		n, err := sweep.ProcessRetries(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n, "attempt %d", attempt)

		d, _ := h.store.DeliveryByEvent(res.EventID)
		require.Equal(t, attempt, d.AttemptCount)
	}

	d, _ := h.store.DeliveryByEvent(res.EventID)
	assert.Equal(t, model.DeliveryStatusDLQ, d.Status)
	assert.Nil(t, d.NextRetryAt)

	dead := h.store.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, d.ID, dead[0].DeliveryID)
	assert.Equal(t, "Max retries (5) exceeded. Last response: 500: boom", dead[0].Reason)

	// Terminal deliveries are never claimed again.
	h.clock.AddTime(time.Hour)
	n, err := sweep.ProcessRetries(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, h.rms.Calls(), 5)
	assert.Len(t, h.store.DeadLetters(), 1)
	assert.Empty(t, h.store.Offers())

	assert.Equal(t, []string{
		metrics.OutcomeRetry, metrics.OutcomeRetry, metrics.OutcomeRetry, metrics.OutcomeRetry, metrics.OutcomeDLQ,
	}, h.metrics.outcomes())
}

func TestProcessRetries_ConcurrentSweepsAttemptEachDeliveryOnce(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	const total = 40
	for i := range total {
		h.store.PutDelivery(dueDelivery(fmt.Sprintf("%02d", i), testNow.Add(-time.Second)))
	}

	const sweeps = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for range sweeps {
		sweep := h.newSweep(t, config.RetrySweepConfig{BatchSize: total, Concurrency: 4})
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := sweep.ProcessRetries(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			claimed += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, total, claimed)
	perEvent := map[string]int{}
	for _, c := range h.rms.Calls() {
		perEvent[c.EventID]++
	}
	require.Len(t, perEvent, total)
	for id, n := range perEvent {
		assert.Equal(t, 1, n, id)
	}
}

func TestProcessRetries_RecordErrorsAreJoined(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.store.PutDelivery(dueDelivery("a", testNow.Add(-time.Second)))
	h.store.PutDelivery(dueDelivery("b", testNow.Add(-time.Second)))
	h.store.RecordAttemptErr = memstore.ErrInjected
	sweep := h.newSweep(t, config.RetrySweepConfig{BatchSize: 10, Concurrency: 2})

	n, err := sweep.ProcessRetries(context.Background())
	assert.Equal(t, 2, n)
	require.ErrorIs(t, err, memstore.ErrInjected)
	require.Len(t, h.metrics.sweeps, 1)
	assert.Equal(t, metrics.ResultError, h.metrics.sweeps[0].Result)
	assert.Equal(t, 2, h.metrics.sweeps[0].Claimed)
}

func TestProcessRetries_ClaimError(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.store.ClaimDueErr = memstore.ErrInjected
	sweep := h.newSweep(t, config.RetrySweepConfig{BatchSize: 10, Concurrency: 2})

	n, err := sweep.ProcessRetries(context.Background())
	assert.Zero(t, n)
	require.ErrorIs(t, err, memstore.ErrInjected)
	assert.Equal(t, metrics.ResultError, h.metrics.sweeps[0].Result)
}

func TestProcessRetries_CancelledContextDoesNotSpendRetry(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	last := dueDelivery("last", testNow.Add(-time.Second))
	last.AttemptCount = 4
	h.store.PutDelivery(last)
	sweep := h.newSweep(t, config.RetrySweepConfig{BatchSize: 10, Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := sweep.ProcessRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, _ := h.store.DeliveryByEvent("evt-last")
	assert.Equal(t, model.DeliveryStatusDelivered, d.Status)
	assert.Equal(t, 5, d.AttemptCount)
	assert.Len(t, h.rms.Calls(), 1)
	assert.Empty(t, h.store.DeadLetters())
}

func TestProcessRetries_ConcurrentDeliveriesCreateOneOffer(t *testing.T) {
	h := newWebhookHarness(t, config.WebhookConfig{MaxRetries: 5})
	h.seedScoredResident("res-1")
	for _, id := range []string{"old", "new", "newer"} {
		d := dueDelivery(id, testNow.Add(-time.Second))
		d.ResidentID = "res-1"
		h.store.PutDelivery(d)
	}
	sweep := h.newSweep(t, config.RetrySweepConfig{BatchSize: 10, Concurrency: 3})

	n, err := sweep.ProcessRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	offers := h.store.Offers()
	require.Len(t, offers, 1)
	assert.Equal(t, "lease-res-1", offers[0].LeaseID)
	assert.Equal(t, model.OfferStatusSent, offers[0].Status)
	assert.Equal(t, []string{
		metrics.OutcomeDelivered, metrics.OutcomeDelivered, metrics.OutcomeDelivered,
	}, h.metrics.outcomes())
}
