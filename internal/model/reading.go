package model

import "time"

// StatusReading is one raw observation of an attraction from the upstream
// API. Append-only; raw readings are purged 24 hours after aggregation.
type StatusReading struct {
	AttractionID    int64      `json:"attraction_id"`
	ObservedAt      time.Time  `json:"observed_at"`
	RawIsOpen       *bool      `json:"raw_is_open,omitempty"`
	WaitMinutes     *int       `json:"wait_minutes,omitempty"`
	SourceUpdatedAt *time.Time `json:"source_updated_at,omitempty"`
}

// StatusTransition records one observed open/closed flip for an attraction.
// DurationMinutes is the time spent in the previous state and is never
// negative; PrevOpen always differs from NewOpen.
type StatusTransition struct {
	AttractionID    int64     `json:"attraction_id"`
	ChangedAt       time.Time `json:"changed_at"`
	PrevOpen        bool      `json:"prev_open"`
	NewOpen         bool      `json:"new_open"`
	DurationMinutes int       `json:"duration_minutes"`
	WaitMinutes     *int      `json:"wait_minutes,omitempty"`
}

// CurrentState is the persisted last known computed state for an attraction.
// It survives restarts so the change detector never fabricates transitions.
type CurrentState struct {
	AttractionID  int64     `json:"attraction_id"`
	Open          bool      `json:"open"`
	ObservedAt    time.Time `json:"observed_at"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

// ParkActivitySnapshot is the per-park rollup of a single collection cycle.
// SeverityScore is computed once at write time and stored; readers must not
// recompute it.
type ParkActivitySnapshot struct {
	ParkID        int64     `json:"park_id"`
	ObservedAt    time.Time `json:"observed_at"`
	OpenCount     int       `json:"open_count"`
	ClosedCount   int       `json:"closed_count"`
	AvgWait       float64   `json:"avg_wait"`
	MaxWait       int       `json:"max_wait"`
	AppearsActive bool      `json:"appears_active"`
	SeverityScore float64   `json:"severity_score"`
	WeatherTempC  *float64  `json:"weather_temp_c,omitempty"`
	WeatherCode   *string   `json:"weather_code,omitempty"`
}
