package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/renewal-risk-api/internal/data/pgxutil"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

// LedgerRepo reads resident ledger entries.
type LedgerRepo struct {
	DB *sql.DB
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{DB: db}
}

// ListRentPaymentsByResidents returns rent payments for the residents. Date filtering against
// each resident's lease start happens in the scoring layer.
func (r *LedgerRepo) ListRentPaymentsByResidents(ctx context.Context, residentIDs []string) ([]*model.LedgerEntry, error) {
	if len(residentIDs) == 0 {
		return nil, nil
	}
	entries, err := pgxutil.CollectStructs[model.LedgerEntry](ctx, r.DB, `
		SELECT id, property_id, resident_id, transaction_type, charge_code,
		       amount::float8 AS amount, transaction_date
		FROM resident_ledger
		WHERE resident_id = ANY($1::uuid[])
		  AND transaction_type = $2
		  AND charge_code = $3
		ORDER BY resident_id, transaction_date
	`, residentIDs, model.TransactionTypePayment, model.ChargeCodeRent)
	if err != nil {
		return nil, fmt.Errorf("list rent payments: %w", err)
	}
	return entries, nil
}
