package data

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDeadLetterRepo(db)
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "webhook_delivery_state_id", "event_id", "reason", "created_at"}

	mock.ExpectQuery("FROM webhook_dead_letter_queue d").
		WithArgs(defaultDeliveryListLimit).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("dl-1", "d1", "evt-p1-r1-1", "max retries exceeded: HTTP 503", at))

	entries, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "evt-p1-r1-1", entries[0].EventID)
	assert.Equal(t, "d1", entries[0].DeliveryID)

	mock.ExpectQuery("FROM webhook_dead_letter_queue d").
		WithArgs(maxDeliveryListLimit).
		WillReturnRows(sqlmock.NewRows(cols))
	entries, err = repo.List(context.Background(), 5000)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, mock.ExpectationsWereMet())
}
