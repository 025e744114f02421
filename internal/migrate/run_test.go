package migrate

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableIsOrdered(t *testing.T) {
	versions, err := Available()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "0001_core_schema", versions[0])
	assert.IsIncreasing(t, versions)
}

func TestPendingSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_core_schema"))

	pending, err := Pending(context.Background(), db)
	require.NoError(t, err)
	assert.NotContains(t, pending, "0001_core_schema")
	assert.Contains(t, pending, "0002_renewal_risk_scores")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSkipsRecordedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	versions, err := Available()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, v := range versions {
		mock.ExpectQuery("SELECT EXISTS").WithArgs(v).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	require.NoError(t, Run(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
