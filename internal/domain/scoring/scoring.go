// Package scoring implements the deterministic renewal-risk model.
//
// Every function here is pure: callers pass the reference instant explicitly and
// nothing reads the clock or touches storage.
package scoring

import (
	"math"
	"time"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

const (
	day = 24 * time.Hour
	// monthApprox is the fixed month length used for tenure; calendar months are only
	// used for month-to-month renewal boundaries.
	monthApprox = 30 * day

	// MonthToMonthExpiryScore pins the expiry component for auto-renewing leases.
	MonthToMonthExpiryScore = 70

	// RentAboveMarketFactor is the multiplier market rent must exceed.
	RentAboveMarketFactor = 1.1

	// MaxScore caps the weighted sum.
	MaxScore = 100

	highTierMin   = 70
	mediumTierMin = 40
)

// Component weights; they sum to 1.
const (
	WeightExpiry      = 0.40
	WeightDelinquency = 0.25
	WeightNoOffer     = 0.20
	WeightRentGrowth  = 0.15
)

type expiryStep struct {
	maxDays int
	score   int
}

// expirySteps is scanned in ascending order; the first bound that holds wins.
var expirySteps = []expiryStep{
	{maxDays: 0, score: 100},
	{maxDays: 30, score: 95},
	{maxDays: 60, score: 80},
	{maxDays: 90, score: 60},
	{maxDays: 120, score: 40},
	{maxDays: 180, score: 20},
}

const expiryFloorScore = 5

// EffectiveLeaseEndDate returns the date a lease is next due to expire.
// Fixed-term leases expire on their end date. Month-to-month leases roll forward one
// calendar month at a time until the boundary is strictly after ref.
func EffectiveLeaseEndDate(leaseEnd time.Time, leaseType model.LeaseType, ref time.Time) time.Time {
	if leaseType != model.LeaseTypeMonthToMonth {
		return leaseEnd
	}
	next := leaseEnd
	for !next.After(ref) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// DaysToExpiry is the ceiling of whole days from ref to effectiveEnd. Negative when expired.
func DaysToExpiry(effectiveEnd, ref time.Time) int {
	return int(math.Ceil(float64(effectiveEnd.Sub(ref)) / float64(day)))
}

// ExpiryScore maps days-to-expiry onto the expiry component.
func ExpiryScore(days int, leaseType model.LeaseType) int {
	if leaseType == model.LeaseTypeMonthToMonth {
		return MonthToMonthExpiryScore
	}
	for _, step := range expirySteps {
		if days <= step.maxDays {
			return step.score
		}
	}
	return expiryFloorScore
}

// Inputs are the four signals the score is a function of.
type Inputs struct {
	DaysToExpiry      int
	PaymentDelinquent bool
	NoOfferYet        bool
	RentAboveMarket   bool
	LeaseType         model.LeaseType
}

// ComputeScore returns the weighted, rounded, capped risk score.
func ComputeScore(in Inputs) int {
	weighted := WeightExpiry*float64(ExpiryScore(in.DaysToExpiry, in.LeaseType)) +
		WeightDelinquency*binary(in.PaymentDelinquent) +
		WeightNoOffer*binary(in.NoOfferYet) +
		WeightRentGrowth*binary(in.RentAboveMarket)
	return min(int(math.Round(weighted)), MaxScore)
}

func binary(flag bool) float64 {
	if flag {
		return 100
	}
	return 0
}

// ClassifyTier buckets a score.
func ClassifyTier(score int) model.RiskTier {
	switch {
	case score >= highTierMin:
		return model.RiskTierHigh
	case score >= mediumTierMin:
		return model.RiskTierMedium
	default:
		return model.RiskTierLow
	}
}

// MonthsOnLease approximates tenure in 30-day months, never less than one.
func MonthsOnLease(leaseStart, ref time.Time) int {
	months := int(math.Ceil(float64(ref.Sub(leaseStart)) / float64(monthApprox)))
	return max(1, months)
}

// IsPaymentDelinquent flags residents with fewer rent payments than months on lease.
func IsPaymentDelinquent(payments, months int) bool {
	return payments < max(1, months)
}

// IsRentAboveMarket reports whether market rent exceeds current rent by more than 10%.
// A missing market quote never flags.
func IsRentAboveMarket(currentRent float64, marketRent *float64) bool {
	if marketRent == nil {
		return false
	}
	return *marketRent > currentRent*RentAboveMarketFactor
}

// CountRentPayments counts rent payments dated on or after the lease start.
func CountRentPayments(entries []model.LedgerEntry, leaseStart time.Time) int {
	n := 0
	for _, e := range entries {
		if e.TransactionType != model.TransactionTypePayment {
			continue
		}
		if e.ChargeCode == nil || *e.ChargeCode != model.ChargeCodeRent {
			continue
		}
		if e.TransactionDate.Before(leaseStart) {
			continue
		}
		n++
	}
	return n
}

// ResidentInputs is everything needed to score one resident.
type ResidentInputs struct {
	PropertyID   string
	ResidentID   string
	Lease        model.Lease
	RentPayments int
	HasOffer     bool
	MarketRent   *float64
	Reference    time.Time
}

// Evaluate scores one resident against its active lease. CalculatedAt is the reference
// instant so reruns for the same as-of date share a natural key.
func Evaluate(in ResidentInputs) model.RiskScore {
	end := EffectiveLeaseEndDate(in.Lease.LeaseEndDate, in.Lease.LeaseType, in.Reference)
	days := DaysToExpiry(end, in.Reference)
	delinquent := IsPaymentDelinquent(in.RentPayments, MonthsOnLease(in.Lease.LeaseStartDate, in.Reference))
	aboveMarket := IsRentAboveMarket(in.Lease.MonthlyRent, in.MarketRent)
	noOffer := !in.HasOffer

	score := ComputeScore(Inputs{
		DaysToExpiry:      days,
		PaymentDelinquent: delinquent,
		NoOfferYet:        noOffer,
		RentAboveMarket:   aboveMarket,
		LeaseType:         in.Lease.LeaseType,
	})

	return model.RiskScore{
		PropertyID:   in.PropertyID,
		ResidentID:   in.ResidentID,
		LeaseID:      in.Lease.ID,
		Score:        score,
		Tier:         ClassifyTier(score),
		DaysToExpiry: days,
		Signals: model.RiskSignals{
			DaysToExpiryDays:         days,
			PaymentHistoryDelinquent: delinquent,
			NoRenewalOfferYet:        noOffer,
			RentGrowthAboveMarket:    aboveMarket,
		},
		CalculatedAt: in.Reference,
	}
}
