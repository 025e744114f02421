package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/target/renewal-risk-api/internal/data/pgxutil"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

// RenewalOfferRepo reads and creates renewal offers.
type RenewalOfferRepo struct {
	DB *sql.DB
}

// NewRenewalOfferRepo creates a new RenewalOfferRepo.
func NewRenewalOfferRepo(db *sql.DB) *RenewalOfferRepo {
	return &RenewalOfferRepo{DB: db}
}

// ListByResidents returns every offer for the residents.
func (r *RenewalOfferRepo) ListByResidents(ctx context.Context, residentIDs []string) ([]*model.RenewalOffer, error) {
	if len(residentIDs) == 0 {
		return nil, nil
	}
	offers, err := pgxutil.CollectStructs[model.RenewalOffer](ctx, r.DB, `
		SELECT id, property_id, resident_id, lease_id, renewal_start_date,
		       proposed_rent::float8 AS proposed_rent, status, created_at
		FROM renewal_offers
		WHERE resident_id = ANY($1::uuid[])
	`, residentIDs)
	if err != nil {
		return nil, fmt.Errorf("list renewal offers: %w", err)
	}
	return offers, nil
}

// ExistsForLease reports whether any offer references the (resident, lease) pair.
func (r *RenewalOfferRepo) ExistsForLease(ctx context.Context, residentID, leaseID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM renewal_offers WHERE resident_id = $1 AND lease_id = $2)`,
		residentID, leaseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check renewal offer: %w", err)
	}
	return exists, nil
}

// Create inserts an offer anchored at the requested renewal start date. A pair that already
// has an offer yields ErrRenewalOfferExists.
func (r *RenewalOfferRepo) Create(ctx context.Context, req model.CreateRenewalOfferRequest) (*model.RenewalOffer, error) {
	if req.ResidentID == "" || req.LeaseID == "" {
		return nil, errors.New("resident_id and lease_id are required")
	}
	status := req.Status
	if status == "" {
		status = model.OfferStatusPending
	}
	offer := model.RenewalOffer{
		ID:               uuid.NewString(),
		PropertyID:       req.PropertyID,
		ResidentID:       req.ResidentID,
		LeaseID:          req.LeaseID,
		RenewalStartDate: req.RenewalStartDate,
		Status:           status,
	}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO renewal_offers (id, property_id, resident_id, lease_id, renewal_start_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (resident_id, lease_id) DO NOTHING
		RETURNING created_at
	`, offer.ID, offer.PropertyID, offer.ResidentID, offer.LeaseID, offer.RenewalStartDate, offer.Status).
		Scan(&offer.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRenewalOfferExists
	}
	if err != nil {
		return nil, fmt.Errorf("create renewal offer: %w", err)
	}
	return &offer, nil
}
