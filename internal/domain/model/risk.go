package model

import (
	"fmt"
	"strings"
	"time"
)

// RiskTier is the coarse bucket derived from a numeric risk score.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type RiskTier string

const (
	// RiskTierHigh covers scores of 70 and above.
	RiskTierHigh RiskTier = "high"
	// RiskTierMedium covers scores from 40 to 69.
	RiskTierMedium RiskTier = "medium"
	// RiskTierLow covers scores below 40.
	RiskTierLow RiskTier = "low"
)

// Valid returns true if the RiskTier is known.
func (t RiskTier) Valid() bool {
	return t == RiskTierHigh || t == RiskTierMedium || t == RiskTierLow
}

// UnmarshalText implements encoding.TextUnmarshaler for RiskTier.
func (t *RiskTier) UnmarshalText(text []byte) error {
	v := RiskTier(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid RiskTier: %q", v)
	}
	*t = v
	return nil
}

// RiskSignals is the explainable signal bundle stored alongside each score.
type RiskSignals struct {
	DaysToExpiryDays         int  `json:"daysToExpiryDays"`
	PaymentHistoryDelinquent bool `json:"paymentHistoryDelinquent"`
	NoRenewalOfferYet        bool `json:"noRenewalOfferYet"`
	RentGrowthAboveMarket    bool `json:"rentGrowthAboveMarket"`
}

// RiskScore is one scored snapshot of a resident.
// (ResidentID, CalculatedAt) is unique.
type RiskScore struct {
	ID           string      `json:"id"             db:"id"`
	PropertyID   string      `json:"property_id"    db:"property_id"`
	ResidentID   string      `json:"resident_id"    db:"resident_id"`
	LeaseID      string      `json:"lease_id"       db:"lease_id"`
	Score        int         `json:"risk_score"     db:"risk_score"`
	Tier         RiskTier    `json:"risk_tier"      db:"risk_tier"`
	DaysToExpiry int         `json:"days_to_expiry" db:"days_to_expiry"`
	Signals      RiskSignals `json:"signals"        db:"signals"`
	CalculatedAt time.Time   `json:"calculated_at"  db:"calculated_at"`
}

// ResidentRisk is the dashboard view of a resident's latest score.
type ResidentRisk struct {
	ResidentID   string      `json:"residentId"`
	Name         string      `json:"name"`
	UnitID       string      `json:"unitId"`
	RiskScore    int         `json:"riskScore"`
	RiskTier     RiskTier    `json:"riskTier"`
	DaysToExpiry int         `json:"daysToExpiry"`
	Signals      RiskSignals `json:"signals"`
}
