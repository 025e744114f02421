package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/renewal-risk-api/internal/data/pgxutil"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

// RiskScoreRepo persists renewal risk snapshots.
type RiskScoreRepo struct {
	DB *sql.DB
}

// NewRiskScoreRepo creates a new RiskScoreRepo.
func NewRiskScoreRepo(db *sql.DB) *RiskScoreRepo {
	return &RiskScoreRepo{DB: db}
}

// upsertRiskScoresSQL writes one chunk. Rows whose scored values are unchanged are skipped by
// the conflict WHERE clause, so they do not count toward rows affected.
const upsertRiskScoresSQL = `
	INSERT INTO renewal_risk_scores (
		property_id, resident_id, lease_id, risk_score, risk_tier, days_to_expiry, signals, calculated_at
	)
	SELECT t.property_id, t.resident_id, t.lease_id, t.risk_score, t.risk_tier, t.days_to_expiry,
	       t.signals::jsonb, t.calculated_at
	FROM unnest($1::uuid[], $2::uuid[], $3::uuid[], $4::int[], $5::text[], $6::int[], $7::text[], $8::timestamptz[])
	     AS t(property_id, resident_id, lease_id, risk_score, risk_tier, days_to_expiry, signals, calculated_at)
	ON CONFLICT (resident_id, calculated_at) DO UPDATE SET
		property_id = EXCLUDED.property_id,
		lease_id = EXCLUDED.lease_id,
		risk_score = EXCLUDED.risk_score,
		risk_tier = EXCLUDED.risk_tier,
		days_to_expiry = EXCLUDED.days_to_expiry,
		signals = EXCLUDED.signals,
		updated_at = now()
	WHERE (renewal_risk_scores.property_id, renewal_risk_scores.lease_id, renewal_risk_scores.risk_score,
	       renewal_risk_scores.risk_tier, renewal_risk_scores.days_to_expiry, renewal_risk_scores.signals)
	      IS DISTINCT FROM
	      (EXCLUDED.property_id, EXCLUDED.lease_id, EXCLUDED.risk_score,
	       EXCLUDED.risk_tier, EXCLUDED.days_to_expiry, EXCLUDED.signals)
`

type riskScoreColumns struct {
	propertyIDs  []string
	residentIDs  []string
	leaseIDs     []string
	scores       []int32
	tiers        []string
	days         []int32
	signals      []string
	calculatedAt []time.Time
}

// toColumns pivots scores into per-column arrays. A resident repeated within one batch keeps
// its last entry since a single upsert statement cannot touch the same key twice.
func toColumns(scores []model.RiskScore) (riskScoreColumns, error) {
	type key struct {
		resident string
		at       int64
	}
	last := make(map[key]int, len(scores))
	for i, s := range scores {
		last[key{s.ResidentID, s.CalculatedAt.UnixNano()}] = i
	}

	var c riskScoreColumns
	for i, s := range scores {
		if last[key{s.ResidentID, s.CalculatedAt.UnixNano()}] != i {
			continue
		}
		sig, err := json.Marshal(s.Signals)
		if err != nil {
			return c, fmt.Errorf("encode signals: %w", err)
		}
		c.propertyIDs = append(c.propertyIDs, s.PropertyID)
		c.residentIDs = append(c.residentIDs, s.ResidentID)
		c.leaseIDs = append(c.leaseIDs, s.LeaseID)
		c.scores = append(c.scores, int32(s.Score)) //nolint:gosec // bounded 0..100
		c.tiers = append(c.tiers, string(s.Tier))
		c.days = append(c.days, int32(s.DaysToExpiry)) //nolint:gosec // day counts fit int32
		c.signals = append(c.signals, string(sig))
		c.calculatedAt = append(c.calculatedAt, s.CalculatedAt.UTC())
	}
	return c, nil
}

// UpsertBatch writes the chunk in a single statement and returns the number of rows inserted
// or changed.
func (r *RiskScoreRepo) UpsertBatch(ctx context.Context, scores []model.RiskScore) (int64, error) {
	if len(scores) == 0 {
		return 0, nil
	}
	c, err := toColumns(scores)
	if err != nil {
		return 0, err
	}
	n, err := pgxutil.ExecCount(ctx, r.DB, upsertRiskScoresSQL,
		c.propertyIDs, c.residentIDs, c.leaseIDs, c.scores, c.tiers, c.days, c.signals, c.calculatedAt)
	if err != nil {
		return 0, fmt.Errorf("upsert risk scores: %w", err)
	}
	return n, nil
}

// LatestForProperty returns every score at the property's newest calculated_at, joined with
// resident display data and sorted by score descending. Returns an empty slice when none exist.
func (r *RiskScoreRepo) LatestForProperty(ctx context.Context, propertyID string) ([]model.ResidentRisk, error) {
	out := []model.ResidentRisk{}
	if !validUUID(propertyID) {
		return out, nil
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT s.resident_id, r.first_name, r.last_name, u.unit_number,
		       s.risk_score, s.risk_tier, s.days_to_expiry, s.signals
		FROM renewal_risk_scores s
		JOIN residents r ON r.id = s.resident_id
		JOIN units u ON u.id = r.unit_id
		WHERE s.property_id = $1
		  AND s.calculated_at = (
			SELECT MAX(calculated_at) FROM renewal_risk_scores WHERE property_id = $1
		  )
		ORDER BY s.risk_score DESC, s.resident_id
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list latest risk scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rr         model.ResidentRisk
			first      string
			last       string
			tier       string
			rawSignals []byte
		)
		if scanErr := rows.Scan(
			&rr.ResidentID, &first, &last, &rr.UnitID, &rr.RiskScore, &tier, &rr.DaysToExpiry, &rawSignals,
		); scanErr != nil {
			return nil, fmt.Errorf("scan latest risk score: %w", scanErr)
		}
		if jsonErr := json.Unmarshal(rawSignals, &rr.Signals); jsonErr != nil {
			return nil, fmt.Errorf("decode signals: %w", jsonErr)
		}
		rr.Name = strings.TrimSpace(first + " " + last)
		rr.RiskTier = model.RiskTier(tier)
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest risk scores: %w", err)
	}
	return out, nil
}

// LatestForResident returns the resident's newest snapshot or ErrRiskScoreNotFound.
func (r *RiskScoreRepo) LatestForResident(ctx context.Context, residentID string) (*model.RiskScore, error) {
	if !validUUID(residentID) {
		return nil, ErrRiskScoreNotFound
	}
	var (
		s          model.RiskScore
		tier       string
		rawSignals []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, property_id, resident_id, lease_id, risk_score, risk_tier, days_to_expiry, signals, calculated_at
		FROM renewal_risk_scores
		WHERE resident_id = $1
		ORDER BY calculated_at DESC
		LIMIT 1
	`, residentID).Scan(
		&s.ID, &s.PropertyID, &s.ResidentID, &s.LeaseID, &s.Score, &tier, &s.DaysToExpiry, &rawSignals, &s.CalculatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRiskScoreNotFound
		}
		return nil, fmt.Errorf("get latest risk score: %w", err)
	}
	if err := json.Unmarshal(rawSignals, &s.Signals); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	s.Tier = model.RiskTier(tier)
	s.CalculatedAt = s.CalculatedAt.UTC()
	return &s, nil
}
