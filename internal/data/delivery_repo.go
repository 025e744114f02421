package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/renewal-risk-api/internal/data/pgxutil"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

const deliveryColumns = `
	id, property_id, resident_id, event_type, event_id, payload, status, attempt_count,
	last_attempt_at, next_retry_at, rms_response, claimed_until, created_at, updated_at`

const (
	defaultDeliveryListLimit = 50
	maxDeliveryListLimit     = 1000
)

// DeliveryRepoOptions configures NewDeliveryRepo.
type DeliveryRepoOptions struct {
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// DeliveryRepo persists webhook delivery state and implements the claim protocol.
//
// A claim is a claimed_until timestamp in the future. Rows are only attempted by the holder
// of an unexpired claim; RecordAttempt releases it.
type DeliveryRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(db *sql.DB, opts DeliveryRepoOptions) *DeliveryRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryRepo{DB: db, timeProvider: tp, logger: logger.With("component", "delivery_repo")}
}

func scanDelivery(row rowScanner) (*model.WebhookDelivery, error) {
	var (
		d       model.WebhookDelivery
		payload []byte
	)
	if err := row.Scan(
		&d.ID, &d.PropertyID, &d.ResidentID, &d.EventType, &d.EventID, &payload, &d.Status, &d.AttemptCount,
		&d.LastAttemptAt, &d.NextRetryAt, &d.RMSResponse, &d.ClaimedUntil, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Payload = payload
	return &d, nil
}

func scanDeliveries(rows *sql.Rows) ([]*model.WebhookDelivery, error) {
	defer rows.Close()
	var out []*model.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

// GetByEventID returns the delivery for an event id or ErrDeliveryNotFound.
func (r *DeliveryRepo) GetByEventID(ctx context.Context, eventID string) (*model.WebhookDelivery, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM webhook_delivery_state WHERE event_id = $1`, eventID)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

// CreateClaimed inserts a pending delivery already claimed by the caller. When the event id
// exists the insert is a no-op and the existing row is returned with created=false.
func (r *DeliveryRepo) CreateClaimed(
	ctx context.Context,
	req model.CreateDeliveryRequest,
) (*model.WebhookDelivery, bool, error) {
	if req.EventID == "" {
		return nil, false, errors.New("event_id is required")
	}
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO webhook_delivery_state (
			id, property_id, resident_id, event_type, event_id, payload,
			status, attempt_count, next_retry_at, claimed_until, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $8, $8)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING `+deliveryColumns,
		uuid.NewString(), req.PropertyID, req.ResidentID, req.EventType, req.EventID, []byte(req.Payload),
		model.DeliveryStatusPending, req.Now.UTC(), req.ClaimUntil.UTC(),
	)
	d, err := scanDelivery(row)
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("create delivery: %w", err)
	}
	existing, getErr := r.GetByEventID(ctx, req.EventID)
	if getErr != nil {
		return nil, false, getErr
	}
	return existing, false, nil
}

// ResetForRedelivery resets a non-delivered, unclaimed delivery to pending with a zero attempt
// count, next retry now and no stored response, and claims it in the same statement.
func (r *DeliveryRepo) ResetForRedelivery(
	ctx context.Context,
	req model.ResetDeliveryRequest,
) (*model.WebhookDelivery, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE webhook_delivery_state
		SET status = $2,
			attempt_count = 0,
			next_retry_at = $3,
			rms_response = NULL,
			claimed_until = $4,
			updated_at = $3
		WHERE event_id = $1
		  AND status <> $5
		  AND (claimed_until IS NULL OR claimed_until < $3)
		RETURNING `+deliveryColumns,
		req.EventID, model.DeliveryStatusPending, req.Now.UTC(), req.ClaimUntil.UTC(), model.DeliveryStatusDelivered,
	)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeliveryNotClaimable
		}
		return nil, fmt.Errorf("reset delivery: %w", err)
	}
	return d, nil
}

// claimDueSQL selects due rows, skipping any row another transaction holds, and stamps the claim.
const claimDueSQL = `
	WITH due AS (
		SELECT id
		FROM webhook_delivery_state
		WHERE status IN ($3, $4)
		  AND next_retry_at <= $1
		  AND (claimed_until IS NULL OR claimed_until < $1)
		ORDER BY next_retry_at, id
		LIMIT $5
		FOR UPDATE SKIP LOCKED
	)
	UPDATE webhook_delivery_state w
	SET claimed_until = $2, updated_at = $1
	FROM due
	WHERE w.id = due.id
	RETURNING w.id, w.property_id, w.resident_id, w.event_type, w.event_id, w.payload, w.status, w.attempt_count,
	          w.last_attempt_at, w.next_retry_at, w.rms_response, w.claimed_until, w.created_at, w.updated_at`

// ClaimDue claims up to Limit due deliveries. Rows locked by a concurrent sweep are skipped,
// never waited on.
func (r *DeliveryRepo) ClaimDue(ctx context.Context, params model.ClaimDueParams) ([]*model.WebhookDelivery, error) {
	if params.Limit <= 0 {
		return nil, nil
	}
	var claimed []*model.WebhookDelivery
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, claimDueSQL,
				params.Now.UTC(), params.ClaimUntil.UTC(),
				model.DeliveryStatusPending, model.DeliveryStatusFailed, params.Limit,
			)
			if err != nil {
				return fmt.Errorf("claim due deliveries: %w", err)
			}
			claimed, err = scanDeliveries(rows)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RecordAttempt persists an attempt outcome and releases the claim. The update only applies
// when the stored attempt count is the one the attempt started from, so a stale holder
// cannot overwrite newer state. A dlq outcome appends its dead-letter entry in the same
// transaction.
func (r *DeliveryRepo) RecordAttempt(ctx context.Context, outcome model.DeliveryOutcome) error {
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE webhook_delivery_state
				SET status = $2,
					attempt_count = $3,
					last_attempt_at = $4,
					next_retry_at = $5,
					rms_response = $6,
					claimed_until = NULL,
					updated_at = $4
				WHERE id = $1 AND attempt_count = $7
			`, outcome.DeliveryID, outcome.Status, outcome.AttemptCount, outcome.LastAttemptAt.UTC(),
				nullableTime(outcome.NextRetryAt), outcome.RMSResponse, outcome.AttemptCount-1)
			if err != nil {
				return fmt.Errorf("record delivery attempt: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				return ErrDeliveryNotClaimable
			}

			if outcome.Status != model.DeliveryStatusDLQ || outcome.DeadLetterReason == nil {
				return nil
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO webhook_dead_letter_queue (id, webhook_delivery_state_id, reason, created_at)
				VALUES ($1, $2, $3, $4)
			`, uuid.NewString(), outcome.DeliveryID, *outcome.DeadLetterReason, outcome.LastAttemptAt.UTC()); err != nil {
				return fmt.Errorf("insert dead letter: %w", err)
			}
			r.logger.WarnContext(ctx, "delivery moved to dead letter queue",
				"delivery_id", outcome.DeliveryID, "attempt", outcome.AttemptCount)
			return nil
		},
	})
}

// List returns deliveries ordered by most recent update.
func (r *DeliveryRepo) List(ctx context.Context, opts model.ListDeliveriesOptions) ([]*model.WebhookDelivery, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultDeliveryListLimit
	}
	limit = min(limit, maxDeliveryListLimit)

	var (
		rows *sql.Rows
		err  error
	)
	if opts.Status != nil {
		rows, err = r.DB.QueryContext(ctx, `
			SELECT `+deliveryColumns+` FROM webhook_delivery_state
			WHERE status = $1 ORDER BY updated_at DESC, id LIMIT $2`, *opts.Status, limit)
	} else {
		rows, err = r.DB.QueryContext(ctx, `
			SELECT `+deliveryColumns+` FROM webhook_delivery_state
			ORDER BY updated_at DESC, id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return scanDeliveries(rows)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
