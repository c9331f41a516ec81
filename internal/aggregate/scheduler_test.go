package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/monitoring"
)

type fakeParkLister struct {
	parks []model.Park
}

func (f *fakeParkLister) ListActiveParks(_ context.Context) ([]model.Park, error) {
	return f.parks, nil
}

type fakeAlertSink struct {
	alerts []monitoring.Alert
}

func (f *fakeAlertSink) Send(_ context.Context, alerts ...monitoring.Alert) int {
	f.alerts = append(f.alerts, alerts...)
	return len(alerts)
}

var testAggCfg = config.AggregateConfig{MaxAttempts: 3, RetryOffsetMins: 60, LookbackDays: 2}

func newMockScheduler(t *testing.T, parks []model.Park, now time.Time) (*Scheduler, *fakeAlertSink, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	alerts := &fakeAlertSink{}
	s := NewScheduler(NewLedger(mock), NewAggregator(mock, 10), &fakeParkLister{parks: parks}, alerts, testAggCfg)
	s.now = func() time.Time { return now }
	return s, alerts, mock
}

// Every pass starts by returning stale running entries to pending.
func expectReclaim(mock pgxmock.PgxPoolIface, now time.Time, reclaimed int64) {
	mock.ExpectExec("UPDATE park_data.aggregation_ledger").
		WithArgs(now.Add(-staleClaimAfter)).
		WillReturnResult(pgxmock.NewResult("UPDATE", reclaimed))
}

func TestScheduler_DiscoversClosedPeriods(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	park := model.Park{ID: 6, Name: "Testland", Timezone: "UTC", Active: true}
	s, _, mock := newMockScheduler(t, []model.Park{park}, now)

	expectReclaim(mock, now, 0)

	expect := func(pt string, start, firstAttempt time.Time) {
		mock.ExpectExec("INSERT INTO park_data.aggregation_ledger").
			WithArgs(int64(6), pt, start, "UTC", firstAttempt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	// Day periods walk back to the two-day lookback horizon; the longer
	// periods already end before it after one step.
	expect("day",
		time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 1, 0, 0, 0, time.UTC))
	expect("day",
		time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 30, 1, 0, 0, 0, time.UTC))
	expect("week",
		time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 1, 0, 0, 0, time.UTC))
	expect("month",
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC))
	expect("year",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC))

	mock.ExpectQuery("FROM park_data.aggregation_ledger").
		WithArgs(now).
		WillReturnRows(ledgerRows())

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Discovered)
	assert.Zero(t, sum.Ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_DiscoverBackfillsOutageGap(t *testing.T) {
	// The scheduler was down for days. Every day window inside the lookback
	// gets an entry when it comes back, not just the most recent one.
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	park := model.Park{ID: 6, Name: "Testland", Timezone: "UTC", Active: true}

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	cfg := config.AggregateConfig{MaxAttempts: 3, RetryOffsetMins: 60, LookbackDays: 4}
	s := NewScheduler(NewLedger(mock), NewAggregator(mock, 10), &fakeParkLister{parks: []model.Park{park}}, nil, cfg)
	s.now = func() time.Time { return now }

	expectReclaim(mock, now, 0)

	for day := 30; day >= 27; day-- {
		mock.ExpectExec("INSERT INTO park_data.aggregation_ledger").
			WithArgs(int64(6), "day",
				time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC),
				"UTC",
				time.Date(2026, 8, day+1, 1, 0, 0, 0, time.UTC)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	for _, pt := range []string{"week", "month", "year"} {
		mock.ExpectExec("INSERT INTO park_data.aggregation_ledger").
			WithArgs(int64(6), pt, pgxmock.AnyArg(), "UTC", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	mock.ExpectQuery("FROM park_data.aggregation_ledger").
		WithArgs(now).
		WillReturnRows(ledgerRows())

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, sum.Discovered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_ReclaimedEntryRunsInSamePass(t *testing.T) {
	// A previous claimer crashed between claiming and committing. The pass
	// reclaims the entry and executes it like any other due entry.
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s, _, mock := newMockScheduler(t, nil, now)

	expectReclaim(mock, now, 1)

	start := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM park_data.aggregation_ledger").
		WithArgs(now).
		WillReturnRows(ledgerRows().AddRow(
			int64(1), "park", int64(6), "day", start, "UTC", 1, "pending", nil, "", now))

	// claim, compute the day stats, write atomically
	mock.ExpectExec("UPDATE park_data.aggregation_ledger").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM park_data.park_activity_snapshots").
		WithArgs(anyArgs(3)...).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum", "avg_open", "avg_severity"}).
			AddRow(int64(144), int64Ptr(12), floatPtr(0.95), floatPtr(4.0)))
	mock.ExpectQuery("FROM park_data.status_readings").
		WithArgs(anyArgs(3)...).
		WillReturnRows(pgxmock.NewRows([]string{"attraction_id", "closed", "uptime"}))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM park_data.period_stats").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO park_data.period_stats").
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE park_data.aggregation_ledger").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_FailedAttemptGoesBackToPending(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s, alerts, mock := newMockScheduler(t, nil, now)

	expectReclaim(mock, now, 0)

	start := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM park_data.aggregation_ledger").
		WithArgs(now).
		WillReturnRows(ledgerRows().AddRow(
			int64(1), "park", int64(6), "day", start, "UTC", 0, "pending", nil, "", now))

	// claim, then the stat query blows up
	mock.ExpectExec("UPDATE park_data.aggregation_ledger").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM park_data.park_activity_snapshots").
		WithArgs(anyArgs(3)...).
		WillReturnError(eris.New("connection reset"))

	// back to pending with a later slot, not terminal
	mock.ExpectExec("UPDATE park_data.aggregation_ledger").
		WithArgs(int64(1), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Retried)
	assert.Zero(t, sum.Failed)
	assert.Empty(t, alerts.alerts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_ExhaustedAttemptsGoTerminalAndAlert(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s, alerts, mock := newMockScheduler(t, nil, now)

	expectReclaim(mock, now, 0)

	start := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	// attempt 2 of 3: this run is the last one
	mock.ExpectQuery("FROM park_data.aggregation_ledger").
		WithArgs(now).
		WillReturnRows(ledgerRows().AddRow(
			int64(1), "park", int64(6), "day", start, "UTC", 2, "pending", nil, "", now))

	mock.ExpectExec("UPDATE park_data.aggregation_ledger").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM park_data.park_activity_snapshots").
		WithArgs(anyArgs(3)...).
		WillReturnError(eris.New("connection reset"))
	mock.ExpectExec("UPDATE park_data.aggregation_ledger").
		WithArgs(int64(1), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, monitoring.AlertAggregationExhausted, alerts.alerts[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduler_UnclaimedEntrySkipped(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s, _, mock := newMockScheduler(t, nil, now)

	expectReclaim(mock, now, 0)

	start := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM park_data.aggregation_ledger").
		WithArgs(now).
		WillReturnRows(ledgerRows().AddRow(
			int64(1), "park", int64(6), "day", start, "UTC", 0, "pending", nil, "", now))

	// a concurrent scheduler claimed it first
	mock.ExpectExec("UPDATE park_data.aggregation_ledger").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}
