// Package model defines the core data types shared by the renewal-risk engines.
package model

import (
	"fmt"
	"strings"
	"time"
)

// LeaseType distinguishes fixed-term leases from auto-renewing month-to-month leases.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type LeaseType string

const (
	// LeaseTypeFixed is a lease with a fixed end date.
	LeaseTypeFixed LeaseType = "fixed"
	// LeaseTypeMonthToMonth is a lease that renews at every monthly boundary.
	LeaseTypeMonthToMonth LeaseType = "month_to_month"
)

// Valid returns true if the LeaseType is known.
func (t LeaseType) Valid() bool {
	return t == LeaseTypeFixed || t == LeaseTypeMonthToMonth
}

// UnmarshalText implements encoding.TextUnmarshaler for LeaseType.
func (t *LeaseType) UnmarshalText(text []byte) error {
	v := LeaseType(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid LeaseType: %q", v)
	}
	*t = v
	return nil
}

// Record status values shared by residents, leases, units, and properties.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Ledger classification used by the payment-delinquency signal.
const (
	TransactionTypePayment = "payment"
	TransactionTypeCharge  = "charge"
	ChargeCodeRent         = "rent"
)

// Renewal offer status values.
const (
	OfferStatusPending = "pending"
	OfferStatusSent    = "sent"
)

// Property is a managed rental community.
type Property struct {
	ID        string    `json:"id"         db:"id"`
	Name      string    `json:"name"       db:"name"`
	Address   *string   `json:"address"    db:"address"`
	City      *string   `json:"city"       db:"city"`
	State     *string   `json:"state"      db:"state"`
	ZipCode   *string   `json:"zip_code"   db:"zip_code"`
	Status    string    `json:"status"     db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Resident is a person living in a unit. UnitNumber is populated by joins.
type Resident struct {
	ID         string  `json:"id"          db:"id"`
	PropertyID string  `json:"property_id" db:"property_id"`
	UnitID     string  `json:"unit_id"     db:"unit_id"`
	UnitNumber string  `json:"unit_number" db:"unit_number"`
	FirstName  string  `json:"first_name"  db:"first_name"`
	LastName   string  `json:"last_name"   db:"last_name"`
	Email      *string `json:"email"       db:"email"`
	Status     string  `json:"status"      db:"status"`
}

// DisplayName joins first and last name for dashboards.
func (r Resident) DisplayName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Lease is a rental agreement between a resident and a unit.
type Lease struct {
	ID             string    `json:"id"               db:"id"`
	PropertyID     string    `json:"property_id"      db:"property_id"`
	ResidentID     string    `json:"resident_id"      db:"resident_id"`
	UnitID         string    `json:"unit_id"          db:"unit_id"`
	LeaseStartDate time.Time `json:"lease_start_date" db:"lease_start_date"`
	LeaseEndDate   time.Time `json:"lease_end_date"   db:"lease_end_date"`
	MonthlyRent    float64   `json:"monthly_rent"     db:"monthly_rent"`
	LeaseType      LeaseType `json:"lease_type"       db:"lease_type"`
	Status         string    `json:"status"           db:"status"`
}

// LedgerEntry is a single resident ledger transaction.
type LedgerEntry struct {
	ID              string    `json:"id"               db:"id"`
	PropertyID      string    `json:"property_id"      db:"property_id"`
	ResidentID      string    `json:"resident_id"      db:"resident_id"`
	TransactionType string    `json:"transaction_type" db:"transaction_type"`
	ChargeCode      *string   `json:"charge_code"      db:"charge_code"`
	Amount          float64   `json:"amount"           db:"amount"`
	TransactionDate time.Time `json:"transaction_date" db:"transaction_date"`
}

// RenewalOffer is an offer to renew a specific lease.
type RenewalOffer struct {
	ID               string    `json:"id"                 db:"id"`
	PropertyID       string    `json:"property_id"        db:"property_id"`
	ResidentID       string    `json:"resident_id"        db:"resident_id"`
	LeaseID          string    `json:"lease_id"           db:"lease_id"`
	RenewalStartDate time.Time `json:"renewal_start_date" db:"renewal_start_date"`
	ProposedRent     *float64  `json:"proposed_rent"      db:"proposed_rent"`
	Status           string    `json:"status"             db:"status"`
	CreatedAt        time.Time `json:"created_at"         db:"created_at"`
}

// CreateRenewalOfferRequest describes a new renewal offer.
type CreateRenewalOfferRequest struct {
	PropertyID       string
	ResidentID       string
	LeaseID          string
	RenewalStartDate time.Time
	Status           string
}

// UnitPricing is a point-in-time rent quote for a unit.
type UnitPricing struct {
	ID            string    `json:"id"             db:"id"`
	UnitID        string    `json:"unit_id"        db:"unit_id"`
	BaseRent      float64   `json:"base_rent"      db:"base_rent"`
	MarketRent    float64   `json:"market_rent"    db:"market_rent"`
	EffectiveDate time.Time `json:"effective_date" db:"effective_date"`
}
