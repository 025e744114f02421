package core

import (
	"context"
	"time"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// PropertyRepository reads managed properties.
type PropertyRepository interface {
	GetByID(ctx context.Context, id string) (*model.Property, error)
	List(ctx context.Context) ([]*model.Property, error)
}

// ResidentRepository reads residents.
type ResidentRepository interface {
	// ListActiveByProperty returns active residents with their unit number populated.
	ListActiveByProperty(ctx context.Context, propertyID string) ([]*model.Resident, error)
	// GetInProperty resolves a resident only if it belongs to the property.
	GetInProperty(ctx context.Context, propertyID, residentID string) (*model.Resident, error)
}

// LeaseRepository reads leases.
type LeaseRepository interface {
	ListActiveByResidents(ctx context.Context, residentIDs []string) ([]*model.Lease, error)
	// GetActiveForResident returns the active lease with the latest end date.
	GetActiveForResident(ctx context.Context, residentID string) (*model.Lease, error)
}

// LedgerRepository reads resident ledger entries.
type LedgerRepository interface {
	ListRentPaymentsByResidents(ctx context.Context, residentIDs []string) ([]*model.LedgerEntry, error)
}

// PricingRepository reads unit pricing history.
type PricingRepository interface {
	// ListByUnitsLatestFirst orders each unit's quotes by effective date descending.
	ListByUnitsLatestFirst(ctx context.Context, unitIDs []string) ([]*model.UnitPricing, error)
}

// RenewalOfferRepository reads and creates renewal offers.
type RenewalOfferRepository interface {
	ListByResidents(ctx context.Context, residentIDs []string) ([]*model.RenewalOffer, error)
	ExistsForLease(ctx context.Context, residentID, leaseID string) (bool, error)
	Create(ctx context.Context, req model.CreateRenewalOfferRequest) (*model.RenewalOffer, error)
}

// RiskScoreRepository persists scored snapshots.
type RiskScoreRepository interface {
	// UpsertBatch writes a chunk in one statement keyed on (resident_id, calculated_at)
	// and returns the number of rows inserted or changed.
	UpsertBatch(ctx context.Context, scores []model.RiskScore) (int64, error)
	// LatestForProperty returns the newest snapshot for a property sorted by score descending.
	LatestForProperty(ctx context.Context, propertyID string) ([]model.ResidentRisk, error)
	LatestForResident(ctx context.Context, residentID string) (*model.RiskScore, error)
}

// CalculationJobRepository persists calculation job records.
type CalculationJobRepository interface {
	Create(ctx context.Context, req model.CreateCalculationJobRequest) (*model.CalculationJob, error)
	GetByID(ctx context.Context, id string) (*model.CalculationJob, error)
	// Complete and Fail only transition jobs still in processing.
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
}

// DeleteOldCalculationJobsParams selects terminal jobs for deletion.
type DeleteOldCalculationJobsParams struct {
	Status    model.CalculationJobStatus
	MaxAge    time.Duration
	BatchSize int
}

// CalculationJobReaperRepository cleans up calculation jobs. Each call handles at most
// one batch and reports how many rows it touched.
type CalculationJobReaperRepository interface {
	FailStaleProcessing(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	DeleteOldJobs(ctx context.Context, params DeleteOldCalculationJobsParams) (int64, error)
}

// DeliveryRepository persists webhook delivery state and owns the claim protocol.
type DeliveryRepository interface {
	GetByEventID(ctx context.Context, eventID string) (*model.WebhookDelivery, error)
	// CreateClaimed inserts a claimed pending delivery. created is false when the event id
	// already existed, in which case the existing row is returned unchanged.
	CreateClaimed(ctx context.Context, req model.CreateDeliveryRequest) (d *model.WebhookDelivery, created bool, err error)
	// ResetForRedelivery resets a non-delivered, unclaimed delivery to pending and claims it.
	// Returns ErrDeliveryNotClaimable from the data package otherwise.
	ResetForRedelivery(ctx context.Context, req model.ResetDeliveryRequest) (*model.WebhookDelivery, error)
	// ClaimDue claims due deliveries without waiting on rows locked by another sweep.
	ClaimDue(ctx context.Context, params model.ClaimDueParams) ([]*model.WebhookDelivery, error)
	// RecordAttempt persists an attempt outcome, releases the claim, and writes the
	// dead-letter entry when the outcome is dlq, atomically.
	RecordAttempt(ctx context.Context, outcome model.DeliveryOutcome) error
	List(ctx context.Context, opts model.ListDeliveriesOptions) ([]*model.WebhookDelivery, error)
}

// DeadLetterRepository reads the dead-letter log.
type DeadLetterRepository interface {
	List(ctx context.Context, limit int) ([]*model.DeadLetterEntry, error)
}

// RMSClient sends one webhook request. Transport failures are reported in the result.
type RMSClient interface {
	Send(ctx context.Context, req model.RMSRequest) model.AttemptResult
}
