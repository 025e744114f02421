package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

const propertyColumns = `id, name, address, city, state, zip_code, status, created_at, updated_at`

// PropertyRepo reads properties.
type PropertyRepo struct {
	DB *sql.DB
}

// NewPropertyRepo creates a new PropertyRepo.
func NewPropertyRepo(db *sql.DB) *PropertyRepo {
	return &PropertyRepo{DB: db}
}

// validUUID reports whether id can be compared against a UUID column.
// Malformed ids are treated as missing rows rather than query errors.
func validUUID(id string) bool {
	return uuid.Validate(id) == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*model.Property, error) {
	var p model.Property
	if err := row.Scan(
		&p.ID, &p.Name, &p.Address, &p.City, &p.State, &p.ZipCode, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns a property or ErrPropertyNotFound.
func (r *PropertyRepo) GetByID(ctx context.Context, id string) (*model.Property, error) {
	if !validUUID(id) {
		return nil, ErrPropertyNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id)
	p, err := scanProperty(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPropertyNotFound
		}
		return nil, fmt.Errorf("get property: %w", err)
	}
	return p, nil
}

// List returns all properties ordered by name.
func (r *PropertyRepo) List(ctx context.Context) ([]*model.Property, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+propertyColumns+` FROM properties ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []*model.Property
	for rows.Next() {
		p, scanErr := scanProperty(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan property: %w", scanErr)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return out, nil
}
