// Package status derives operating state from raw readings and detects
// open/closed transitions against persisted per-attraction state.
package status

// Computed is the result of evaluating one raw reading.
type Computed struct {
	Open bool
	// MissingData is set when both raw fields were absent; the reading
	// fail-closes and the collector records a quality issue.
	MissingData bool
}

// Compute maps a raw reading to a single operating state. An attraction is
// open iff wait_minutes > 0, or raw_is_open is true with a zero wait. A nil
// wait counts as zero; if raw_is_open is also nil the attraction is closed
// (fail-closed on missing data). Pure and idempotent.
func Compute(rawIsOpen *bool, waitMinutes *int) Computed {
	if rawIsOpen == nil && waitMinutes == nil {
		return Computed{Open: false, MissingData: true}
	}

	wait := 0
	if waitMinutes != nil {
		wait = *waitMinutes
	}

	if wait > 0 {
		return Computed{Open: true}
	}
	return Computed{Open: rawIsOpen != nil && *rawIsOpen}
}
