package scoring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/renewal-risk-api/internal/domain/model"
	"github.com/target/renewal-risk-api/internal/domain/scoring"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func TestEffectiveLeaseEndDate(t *testing.T) {
	ref := date(2026, 2, 10)

	t.Run("fixed term is unchanged", func(t *testing.T) {
		end := date(2025, 6, 30)
		assert.Equal(t, end, scoring.EffectiveLeaseEndDate(end, model.LeaseTypeFixed, ref))
	})

	t.Run("month to month rolls to next boundary", func(t *testing.T) {
		got := scoring.EffectiveLeaseEndDate(date(2025, 1, 1), model.LeaseTypeMonthToMonth, ref)
		assert.Equal(t, date(2026, 3, 1), got)
		assert.Equal(t, 19, scoring.DaysToExpiry(got, ref))
	})

	t.Run("boundary equal to reference advances", func(t *testing.T) {
		got := scoring.EffectiveLeaseEndDate(date(2026, 1, 10), model.LeaseTypeMonthToMonth, ref)
		assert.Equal(t, date(2026, 3, 10), got)
	})

	t.Run("future month to month end is kept", func(t *testing.T) {
		end := date(2026, 5, 1)
		assert.Equal(t, end, scoring.EffectiveLeaseEndDate(end, model.LeaseTypeMonthToMonth, ref))
	})
}

func TestDaysToExpiry(t *testing.T) {
	ref := date(2026, 2, 10)
	tests := []struct {
		name string
		end  time.Time
		ref  time.Time
		want int
	}{
		{name: "same day", end: ref, ref: ref, want: 0},
		{name: "thirty days", end: date(2026, 3, 12), ref: ref, want: 30},
		{name: "expired", end: date(2026, 2, 8), ref: ref, want: -2},
		{name: "partial day rounds up", end: date(2026, 2, 11), ref: ref.Add(12 * time.Hour), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoring.DaysToExpiry(tt.end, tt.ref))
		})
	}
}

func TestExpiryScoreThresholds(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{days: -400, want: 100},
		{days: 0, want: 100},
		{days: 1, want: 95},
		{days: 30, want: 95},
		{days: 31, want: 80},
		{days: 60, want: 80},
		{days: 61, want: 60},
		{days: 90, want: 60},
		{days: 120, want: 40},
		{days: 121, want: 20},
		{days: 180, want: 20},
		{days: 181, want: 5},
		{days: 900, want: 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scoring.ExpiryScore(tt.days, model.LeaseTypeFixed), "days=%d", tt.days)
	}

	assert.Equal(t, 70, scoring.ExpiryScore(0, model.LeaseTypeMonthToMonth))
	assert.Equal(t, 70, scoring.ExpiryScore(500, model.LeaseTypeMonthToMonth))
}

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name string
		in   scoring.Inputs
		want int
	}{
		{name: "expired only", in: scoring.Inputs{DaysToExpiry: 0, LeaseType: model.LeaseTypeFixed}, want: 40},
		{name: "30 days", in: scoring.Inputs{DaysToExpiry: 30, LeaseType: model.LeaseTypeFixed}, want: 38},
		{name: "31 days", in: scoring.Inputs{DaysToExpiry: 31, LeaseType: model.LeaseTypeFixed}, want: 32},
		{name: "181 days", in: scoring.Inputs{DaysToExpiry: 181, LeaseType: model.LeaseTypeFixed}, want: 2},
		{
			name: "every signal capped at 100",
			in: scoring.Inputs{
				DaysToExpiry: -5, PaymentDelinquent: true, NoOfferYet: true, RentAboveMarket: true,
				LeaseType: model.LeaseTypeFixed,
			},
			want: 100,
		},
		{
			name: "far expiry with all binary signals",
			in: scoring.Inputs{
				DaysToExpiry: 181, PaymentDelinquent: true, NoOfferYet: true, RentAboveMarket: true,
				LeaseType: model.LeaseTypeFixed,
			},
			want: 62,
		},
		{name: "month to month baseline", in: scoring.Inputs{DaysToExpiry: 19, LeaseType: model.LeaseTypeMonthToMonth}, want: 28},
		{
			name: "month to month without offer",
			in:   scoring.Inputs{DaysToExpiry: 19, NoOfferYet: true, LeaseType: model.LeaseTypeMonthToMonth},
			want: 48,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoring.ComputeScore(tt.in))
		})
	}
}

func TestComputeScoreIsPure(t *testing.T) {
	in := scoring.Inputs{DaysToExpiry: 45, NoOfferYet: true, LeaseType: model.LeaseTypeFixed}
	first := scoring.ComputeScore(in)
	for range 10 {
		require.Equal(t, first, scoring.ComputeScore(in))
	}
}

func TestClassifyTier(t *testing.T) {
	assert.Equal(t, model.RiskTierHigh, scoring.ClassifyTier(100))
	assert.Equal(t, model.RiskTierHigh, scoring.ClassifyTier(70))
	assert.Equal(t, model.RiskTierMedium, scoring.ClassifyTier(69))
	assert.Equal(t, model.RiskTierMedium, scoring.ClassifyTier(40))
	assert.Equal(t, model.RiskTierLow, scoring.ClassifyTier(39))
	assert.Equal(t, model.RiskTierLow, scoring.ClassifyTier(0))
}

func TestMonthsOnLease(t *testing.T) {
	start := date(2025, 1, 1)
	assert.Equal(t, 1, scoring.MonthsOnLease(start, start))
	assert.Equal(t, 1, scoring.MonthsOnLease(start, date(2025, 1, 31)))
	assert.Equal(t, 2, scoring.MonthsOnLease(start, date(2025, 2, 1)))
	assert.Equal(t, 1, scoring.MonthsOnLease(start, date(2024, 12, 1)))
}

func TestIsPaymentDelinquent(t *testing.T) {
	assert.True(t, scoring.IsPaymentDelinquent(0, 1))
	assert.False(t, scoring.IsPaymentDelinquent(1, 1))
	assert.True(t, scoring.IsPaymentDelinquent(3, 4))
	assert.False(t, scoring.IsPaymentDelinquent(5, 4))
	assert.True(t, scoring.IsPaymentDelinquent(0, 0))
}

func TestIsRentAboveMarket(t *testing.T) {
	assert.False(t, scoring.IsRentAboveMarket(1000, nil))
	assert.False(t, scoring.IsRentAboveMarket(1000, ptr(1099.0)))
	assert.True(t, scoring.IsRentAboveMarket(1000, ptr(1101.0)))
	assert.False(t, scoring.IsRentAboveMarket(1000, ptr(900.0)))
}

func TestCountRentPayments(t *testing.T) {
	start := date(2025, 3, 1)
	rent := ptr(model.ChargeCodeRent)
	entries := []model.LedgerEntry{
		{TransactionType: model.TransactionTypePayment, ChargeCode: rent, TransactionDate: date(2025, 3, 1)},
		{TransactionType: model.TransactionTypePayment, ChargeCode: rent, TransactionDate: date(2025, 4, 2)},
		{TransactionType: model.TransactionTypePayment, ChargeCode: rent, TransactionDate: date(2025, 2, 1)},
		{TransactionType: model.TransactionTypePayment, ChargeCode: ptr("parking"), TransactionDate: date(2025, 4, 2)},
		{TransactionType: model.TransactionTypePayment, TransactionDate: date(2025, 5, 2)},
		{TransactionType: model.TransactionTypeCharge, ChargeCode: rent, TransactionDate: date(2025, 5, 1)},
	}
	assert.Equal(t, 2, scoring.CountRentPayments(entries, start))
	assert.Equal(t, 0, scoring.CountRentPayments(nil, start))
}

func TestEvaluate(t *testing.T) {
	ref := date(2026, 2, 10)
	lease := model.Lease{
		ID:             "lease-1",
		LeaseStartDate: date(2025, 3, 1),
		LeaseEndDate:   date(2026, 3, 1),
		MonthlyRent:    1500,
		LeaseType:      model.LeaseTypeFixed,
	}

	got := scoring.Evaluate(scoring.ResidentInputs{
		PropertyID:   "prop-1",
		ResidentID:   "res-1",
		Lease:        lease,
		RentPayments: 12,
		MarketRent:   ptr(1700.0),
		Reference:    ref,
	})

	assert.Equal(t, "prop-1", got.PropertyID)
	assert.Equal(t, "res-1", got.ResidentID)
	assert.Equal(t, "lease-1", got.LeaseID)
	assert.Equal(t, 19, got.DaysToExpiry)
	assert.Equal(t, 73, got.Score)
	assert.Equal(t, model.RiskTierHigh, got.Tier)
	assert.Equal(t, ref, got.CalculatedAt)
	assert.Equal(t, model.RiskSignals{
		DaysToExpiryDays:         19,
		PaymentHistoryDelinquent: false,
		NoRenewalOfferYet:        true,
		RentGrowthAboveMarket:    true,
	}, got.Signals)

	t.Run("offer and on-time payments lower risk", func(t *testing.T) {
		low := scoring.Evaluate(scoring.ResidentInputs{
			Lease:        lease,
			RentPayments: 12,
			HasOffer:     true,
			Reference:    ref,
		})
		assert.Equal(t, 38, low.Score)
		assert.Equal(t, model.RiskTierLow, low.Tier)
	})
}
