package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrPropertyNotFound       = errors.New("property not found")
	ErrResidentNotFound       = errors.New("resident not found")
	ErrLeaseNotFound          = errors.New("active lease not found")
	ErrRiskScoreNotFound      = errors.New("risk score not found")
	ErrCalculationJobNotFound = errors.New("calculation job not found")
	ErrDeliveryNotFound       = errors.New("webhook delivery not found")

	// ErrRenewalOfferExists is returned when the (resident, lease) pair already has an offer.
	ErrRenewalOfferExists = errors.New("renewal offer already exists")

	// ErrDeliveryNotClaimable is returned when a delivery is delivered or held by another claim.
	ErrDeliveryNotClaimable = errors.New("webhook delivery not claimable")

	ErrPropertyIDRequired = errors.New("property_id is required")
)
