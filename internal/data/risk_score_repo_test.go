package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

const testPropertyID = "0b8f4a8e-3c9d-4a55-8d0e-2f6b1c7d9e01"

func TestToColumnsKeepsLastDuplicate(t *testing.T) {
	at := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	cols, err := toColumns([]model.RiskScore{
		{ResidentID: "r1", Score: 10, Tier: model.RiskTierLow, CalculatedAt: at},
		{ResidentID: "r2", Score: 50, Tier: model.RiskTierMedium, CalculatedAt: at},
		{ResidentID: "r1", Score: 90, Tier: model.RiskTierHigh, CalculatedAt: at},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r1"}, cols.residentIDs)
	assert.Equal(t, []int32{50, 90}, cols.scores)
	assert.JSONEq(t,
		`{"daysToExpiryDays":0,"paymentHistoryDelinquent":false,"noRenewalOfferYet":false,"rentGrowthAboveMarket":false}`,
		cols.signals[0])
}

func TestRiskScoreRepo_UpsertBatchEmpty(t *testing.T) {
	repo := NewRiskScoreRepo(nil)
	n, err := repo.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRiskScoreRepo_LatestForProperty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRiskScoreRepo(db)

	mock.ExpectQuery("SELECT MAX\\(calculated_at\\)").
		WithArgs(testPropertyID).
		WillReturnRows(sqlmock.NewRows([]string{
			"resident_id", "first_name", "last_name", "unit_number", "risk_score", "risk_tier", "days_to_expiry", "signals",
		}).
			AddRow("r1", "Jane", "Doe", "101", 85, "high", 12,
				[]byte(`{"daysToExpiryDays":12,"paymentHistoryDelinquent":true,"noRenewalOfferYet":true,"rentGrowthAboveMarket":false}`)).
			AddRow("r2", "John", "Roe", "102", 20, "low", 300,
				[]byte(`{"daysToExpiryDays":300,"paymentHistoryDelinquent":false,"noRenewalOfferYet":false,"rentGrowthAboveMarket":false}`)))

	got, err := repo.LatestForProperty(context.Background(), testPropertyID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Jane Doe", got[0].Name)
	assert.Equal(t, "101", got[0].UnitID)
	assert.Equal(t, model.RiskTierHigh, got[0].RiskTier)
	assert.True(t, got[0].Signals.PaymentHistoryDelinquent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskScoreRepo_LatestForPropertyEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRiskScoreRepo(db)

	mock.ExpectQuery("FROM renewal_risk_scores").WillReturnRows(sqlmock.NewRows([]string{"resident_id"}))
	got, err := repo.LatestForProperty(context.Background(), testPropertyID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = repo.LatestForProperty(context.Background(), "bogus")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRiskScoreRepo_LatestForResidentNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRiskScoreRepo(db)

	mock.ExpectQuery("FROM renewal_risk_scores").WillReturnError(sql.ErrNoRows)
	_, err = repo.LatestForResident(context.Background(), testPropertyID)
	require.ErrorIs(t, err, ErrRiskScoreNotFound)
}
