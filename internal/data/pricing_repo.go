package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/renewal-risk-api/internal/data/pgxutil"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

// PricingRepo reads unit pricing history.
type PricingRepo struct {
	DB *sql.DB
}

// NewPricingRepo creates a new PricingRepo.
func NewPricingRepo(db *sql.DB) *PricingRepo {
	return &PricingRepo{DB: db}
}

// ListByUnitsLatestFirst returns pricing rows for the units, most recent effective date first.
func (r *PricingRepo) ListByUnitsLatestFirst(ctx context.Context, unitIDs []string) ([]*model.UnitPricing, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	rows, err := pgxutil.CollectStructs[model.UnitPricing](ctx, r.DB, `
		SELECT id, unit_id, base_rent::float8 AS base_rent, market_rent::float8 AS market_rent, effective_date
		FROM unit_pricing
		WHERE unit_id = ANY($1::uuid[])
		ORDER BY effective_date DESC, created_at DESC
	`, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("list unit pricing: %w", err)
	}
	return rows, nil
}
