// Package aggregate rolls raw readings into day/week/month/year statistics
// per park-local time zone, tracks every period's lifecycle in a durable
// ledger, and purges raw rows only for ledger-verified windows.
package aggregate

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/model"
)

// PeriodBounds returns the UTC instants bounding the period of the given
// type that contains t, computed in the park's local time zone. Day and
// longer boundaries differ between zones; two parks at the same UTC moment
// can be in different local days.
func PeriodBounds(pt model.PeriodType, t time.Time, loc *time.Location) (start, end time.Time) {
	lt := t.In(loc)

	switch pt {
	case model.PeriodDay:
		start = time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
	case model.PeriodWeek:
		// ISO week: Monday 00:00 local.
		weekday := int(lt.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(lt.Year(), lt.Month(), lt.Day()-(weekday-1), 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 7)
	case model.PeriodMonth:
		start = time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	case model.PeriodYear:
		start = time.Date(lt.Year(), time.January, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
	}

	return start.UTC(), end.UTC()
}

// PrevPeriodBounds returns the bounds of the most recently closed period of
// the given type as of t.
func PrevPeriodBounds(pt model.PeriodType, t time.Time, loc *time.Location) (start, end time.Time) {
	curStart, _ := PeriodBounds(pt, t, loc)
	// A moment strictly inside the previous period.
	return PeriodBounds(pt, curStart.Add(-time.Second), loc)
}

// PeriodEnd recomputes a period's end instant from its start and time zone.
// The ledger stores only the start; the end is derived.
func PeriodEnd(pt model.PeriodType, periodStart time.Time, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "aggregate: load timezone %s", tz)
	}
	_, end := PeriodBounds(pt, periodStart.In(loc), loc)
	return end, nil
}
