package quality

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestStore_RecordFillsDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	parkID := int64(6)
	mock.ExpectExec("INSERT INTO park_data.data_quality_issues").
		WithArgs(pgxmock.AnyArg(), "queuetimes", "missing_data", &parkID, (*int64)(nil),
			"no status reported", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewStore(mock).Record(context.Background(), model.DataQualityIssue{
		SourceSystem: "queuetimes",
		Kind:         model.IssueMissingData,
		ParkID:       &parkID,
		Details:      "no status reported",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	since := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	detected := since.Add(time.Hour)
	mock.ExpectQuery("FROM park_data.data_quality_issues").
		WithArgs(since, 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source_system", "kind", "park_id", "attraction_id", "details", "detected_at", "resolved",
		}).AddRow("abc", "queuetimes", "stale_source", (*int64)(nil), (*int64)(nil), "lagging", detected, false))

	issues, err := NewStore(mock).ListRecent(context.Background(), since, 10)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, model.IssueStaleSource, issues[0].Kind)
	assert.Equal(t, detected, issues[0].DetectedAt)
}

func TestStore_CountSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	since := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT count").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := NewStore(mock).CountSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
