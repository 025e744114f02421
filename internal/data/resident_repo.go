package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

const residentColumns = `
	r.id, r.property_id, r.unit_id, u.unit_number, r.first_name, r.last_name, r.email, r.status`

// ResidentRepo reads residents joined with their unit.
type ResidentRepo struct {
	DB *sql.DB
}

// NewResidentRepo creates a new ResidentRepo.
func NewResidentRepo(db *sql.DB) *ResidentRepo {
	return &ResidentRepo{DB: db}
}

func scanResident(row rowScanner) (*model.Resident, error) {
	var res model.Resident
	if err := row.Scan(
		&res.ID, &res.PropertyID, &res.UnitID, &res.UnitNumber,
		&res.FirstName, &res.LastName, &res.Email, &res.Status,
	); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListActiveByProperty returns the property's active residents ordered by unit number.
func (r *ResidentRepo) ListActiveByProperty(ctx context.Context, propertyID string) ([]*model.Resident, error) {
	if !validUUID(propertyID) {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+residentColumns+`
		FROM residents r
		JOIN units u ON u.id = r.unit_id
		WHERE r.property_id = $1 AND r.status = $2
		ORDER BY u.unit_number, r.id
	`, propertyID, model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active residents: %w", err)
	}
	defer rows.Close()

	var out []*model.Resident
	for rows.Next() {
		res, scanErr := scanResident(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan resident: %w", scanErr)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate residents: %w", err)
	}
	return out, nil
}

// GetInProperty returns the resident only when it belongs to propertyID.
func (r *ResidentRepo) GetInProperty(ctx context.Context, propertyID, residentID string) (*model.Resident, error) {
	if !validUUID(propertyID) || !validUUID(residentID) {
		return nil, ErrResidentNotFound
	}
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+residentColumns+`
		FROM residents r
		JOIN units u ON u.id = r.unit_id
		WHERE r.id = $1 AND r.property_id = $2
	`, residentID, propertyID)
	res, err := scanResident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResidentNotFound
		}
		return nil, fmt.Errorf("get resident: %w", err)
	}
	return res, nil
}
