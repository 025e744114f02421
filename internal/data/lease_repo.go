package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/renewal-risk-api/internal/data/pgxutil"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

const leaseColumns = `
	id, property_id, resident_id, unit_id, lease_start_date, lease_end_date,
	monthly_rent::float8 AS monthly_rent, lease_type, status`

// LeaseRepo reads leases.
type LeaseRepo struct {
	DB *sql.DB
}

// NewLeaseRepo creates a new LeaseRepo.
func NewLeaseRepo(db *sql.DB) *LeaseRepo {
	return &LeaseRepo{DB: db}
}

// ListActiveByResidents returns active leases for the residents, latest end date first per resident.
func (r *LeaseRepo) ListActiveByResidents(ctx context.Context, residentIDs []string) ([]*model.Lease, error) {
	if len(residentIDs) == 0 {
		return nil, nil
	}
	leases, err := pgxutil.CollectStructs[model.Lease](ctx, r.DB, `
		SELECT `+leaseColumns+`
		FROM leases
		WHERE resident_id = ANY($1::uuid[]) AND status = $2
		ORDER BY resident_id, lease_end_date DESC, id
	`, residentIDs, model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active leases: %w", err)
	}
	return leases, nil
}

// GetActiveForResident returns the active lease with the latest end date or ErrLeaseNotFound.
func (r *LeaseRepo) GetActiveForResident(ctx context.Context, residentID string) (*model.Lease, error) {
	if !validUUID(residentID) {
		return nil, ErrLeaseNotFound
	}
	var l model.Lease
	err := r.DB.QueryRowContext(ctx, `
		SELECT `+leaseColumns+`
		FROM leases
		WHERE resident_id = $1 AND status = $2
		ORDER BY lease_end_date DESC, id
		LIMIT 1
	`, residentID, model.StatusActive).Scan(
		&l.ID, &l.PropertyID, &l.ResidentID, &l.UnitID, &l.LeaseStartDate, &l.LeaseEndDate,
		&l.MonthlyRent, &l.LeaseType, &l.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLeaseNotFound
		}
		return nil, fmt.Errorf("get active lease: %w", err)
	}
	return &l, nil
}
