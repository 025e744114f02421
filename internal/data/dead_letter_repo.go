package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

// DeadLetterRepo reads the dead-letter log. Entries are written by DeliveryRepo.RecordAttempt.
type DeadLetterRepo struct {
	DB *sql.DB
}

// NewDeadLetterRepo creates a new DeadLetterRepo.
func NewDeadLetterRepo(db *sql.DB) *DeadLetterRepo {
	return &DeadLetterRepo{DB: db}
}

// List returns the newest entries first.
func (r *DeadLetterRepo) List(ctx context.Context, limit int) ([]*model.DeadLetterEntry, error) {
	if limit <= 0 {
		limit = defaultDeliveryListLimit
	}
	limit = min(limit, maxDeliveryListLimit)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT d.id, d.webhook_delivery_state_id, w.event_id, d.reason, d.created_at
		FROM webhook_dead_letter_queue d
		JOIN webhook_delivery_state w ON w.id = d.webhook_delivery_state_id
		ORDER BY d.created_at DESC, d.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*model.DeadLetterEntry
	for rows.Next() {
		var e model.DeadLetterEntry
		if scanErr := rows.Scan(&e.ID, &e.DeliveryID, &e.EventID, &e.Reason, &e.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan dead letter: %w", scanErr)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return out, nil
}
