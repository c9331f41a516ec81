package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func mustLoad(t *testing.T, tz string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	require.NoError(t, err)
	return loc
}

func TestPeriodBounds_DayFollowsLocalMidnight(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")

	// 03:00 UTC is still the previous local day on the US west coast.
	at := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	start, end := PeriodBounds(model.PeriodDay, at, la)

	assert.Equal(t, time.Date(2026, 8, 30, 7, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC), end)
}

func TestPeriodBounds_SameInstantDifferentZones(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	tokyo := mustLoad(t, "Asia/Tokyo")

	// The same UTC moment falls on different local days for the two parks.
	at := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)

	laStart, _ := PeriodBounds(model.PeriodDay, at, la)
	tokyoStart, _ := PeriodBounds(model.PeriodDay, at, tokyo)

	assert.Equal(t, "2026-08-30", laStart.In(la).Format("2006-01-02"))
	assert.Equal(t, "2026-08-31", tokyoStart.In(tokyo).Format("2006-01-02"))
	assert.NotEqual(t, laStart, tokyoStart)
}

func TestPeriodBounds_WeekStartsMonday(t *testing.T) {
	// Wednesday
	start, end := PeriodBounds(model.PeriodWeek, time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), end)

	// Sunday belongs to the week that started the previous Monday.
	start, _ = PeriodBounds(model.PeriodWeek, time.Date(2026, 9, 6, 12, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), start)

	// Monday starts its own week.
	start, _ = PeriodBounds(model.PeriodWeek, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), start)
}

func TestPeriodBounds_MonthAndYear(t *testing.T) {
	at := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	start, end := PeriodBounds(model.PeriodMonth, at, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), end)

	start, end = PeriodBounds(model.PeriodYear, at, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestPeriodBounds_DSTTransitionDayIsShort(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")

	// Spring-forward day in the US is 23 hours long.
	at := time.Date(2026, 3, 8, 20, 0, 0, 0, time.UTC)
	start, end := PeriodBounds(model.PeriodDay, at, la)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}

func TestPrevPeriodBounds(t *testing.T) {
	at := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)

	start, end := PrevPeriodBounds(model.PeriodMonth, at, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), end)

	start, end = PrevPeriodBounds(model.PeriodDay, at, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), end)
}

func TestPeriodEnd_RederivesFromStartAndZone(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")

	start, end := PeriodBounds(model.PeriodDay, time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC), la)
	got, err := PeriodEnd(model.PeriodDay, start, "America/Los_Angeles")
	require.NoError(t, err)
	assert.Equal(t, end, got)

	_, err = PeriodEnd(model.PeriodDay, start, "Not/AZone")
	assert.Error(t, err)
}
