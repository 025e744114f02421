package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/renewal-risk-api/internal/devseed"
	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/testutil"
)

func seedDemo(t *testing.T, db *sql.DB, ref time.Time) devseed.Dataset {
	t.Helper()
	ds, err := devseed.Seed(context.Background(), db, devseed.Options{Reference: ref})
	require.NoError(t, err)
	return ds
}

func TestReadersAgainstSeededProperty(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		ds := seedDemo(t, db, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))

		residents, err := NewResidentRepo(db).ListActiveByProperty(ctx, ds.Property.ID)
		require.NoError(t, err)
		require.Len(t, residents, len(ds.Residents))
		assert.Equal(t, "101", residents[0].UnitNumber)

		ids := make([]string, 0, len(residents))
		unitIDs := make([]string, 0, len(residents))
		for _, r := range residents {
			ids = append(ids, r.ID)
			unitIDs = append(unitIDs, r.UnitID)
		}

		leases, err := NewLeaseRepo(db).ListActiveByResidents(ctx, ids)
		require.NoError(t, err)
		assert.Len(t, leases, len(ds.Leases))

		payments, err := NewLedgerRepo(db).ListRentPaymentsByResidents(ctx, ids)
		require.NoError(t, err)
		assert.Len(t, payments, len(ds.Ledger))

		pricing, err := NewPricingRepo(db).ListByUnitsLatestFirst(ctx, unitIDs)
		require.NoError(t, err)
		require.Len(t, pricing, len(ds.Pricing))
		assert.False(t, pricing[0].EffectiveDate.Before(pricing[len(pricing)-1].EffectiveDate))

		offers, err := NewRenewalOfferRepo(db).ListByResidents(ctx, ids)
		require.NoError(t, err)
		assert.Len(t, offers, len(ds.Offers))

		// Seeding twice is a no-op.
		seedDemo(t, db, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
		again, err := NewResidentRepo(db).ListActiveByProperty(ctx, ds.Property.ID)
		require.NoError(t, err)
		assert.Len(t, again, len(ds.Residents))
	})
}

func TestDeliveryClaimsAgainstPostgres(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		ds := seedDemo(t, db, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
		now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		repo := NewDeliveryRepo(db, DeliveryRepoOptions{TimeProvider: NewFixedTimeProvider(now)})
		resident := ds.Residents[0]

		d, created, err := repo.CreateClaimed(ctx, model.CreateDeliveryRequest{
			PropertyID: ds.Property.ID,
			ResidentID: resident.ID,
			EventType:  model.EventTypeRenewalRiskFlagged,
			EventID:    "evt-integration-1",
			Payload:    []byte(`{"event":"renewal.risk_flagged"}`),
			Now:        now,
			ClaimUntil: now.Add(30 * time.Second),
		})
		require.NoError(t, err)
		require.True(t, created)

		// The trigger still holds the claim.
		claimed, err := repo.ClaimDue(ctx, model.ClaimDueParams{Now: now, ClaimUntil: now.Add(time.Minute), Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, claimed)

		later := now.Add(time.Minute)
		claimed, err = repo.ClaimDue(ctx, model.ClaimDueParams{Now: later, ClaimUntil: later.Add(time.Minute), Limit: 10})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, d.ID, claimed[0].ID)

		reason := "max retries exceeded"
		require.NoError(t, repo.RecordAttempt(ctx, model.DeliveryOutcome{
			DeliveryID:       d.ID,
			Status:           model.DeliveryStatusDLQ,
			AttemptCount:     1,
			LastAttemptAt:    later,
			RMSResponse:      testutil.StringPtr("HTTP 503"),
			DeadLetterReason: &reason,
		}))
		// A second write from the same starting count loses.
		require.ErrorIs(t, repo.RecordAttempt(ctx, model.DeliveryOutcome{
			DeliveryID: d.ID, Status: model.DeliveryStatusFailed, AttemptCount: 1, LastAttemptAt: later,
		}), ErrDeliveryNotClaimable)

		entries, err := NewDeadLetterRepo(db).List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "evt-integration-1", entries[0].EventID)
	})
}
