package model

import "time"

// PeriodType identifies an aggregation time bucket.
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodYear  PeriodType = "year"
)

// AllPeriodTypes returns the period types in ascending horizon order.
func AllPeriodTypes() []PeriodType {
	return []PeriodType{PeriodDay, PeriodWeek, PeriodMonth, PeriodYear}
}

// StatScope identifies what entity a period stat summarizes.
type StatScope string

const (
	ScopePark       StatScope = "park"
	ScopeAttraction StatScope = "attraction"
)

// PeriodStat is one summarized time bucket for a park or attraction.
// SeverityScore is only set for park-scope rows; it is computed once at write
// time and stored.
type PeriodStat struct {
	Scope           StatScope  `json:"scope"`
	EntityID        int64      `json:"entity_id"`
	PeriodType      PeriodType `json:"period_type"`
	PeriodStart     time.Time  `json:"period_start"` // UTC instant of the local period boundary
	PeriodEnd       time.Time  `json:"period_end"`
	Timezone        string     `json:"timezone"`
	DowntimeMinutes int64      `json:"downtime_minutes"`
	UptimePct       float64    `json:"uptime_pct"`
	SeverityScore   *float64   `json:"severity_score,omitempty"`
	ComputedAt      time.Time  `json:"computed_at"`
}

// LedgerStatus is the lifecycle state of an aggregation period in the ledger.
type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerRunning   LedgerStatus = "running"
	LedgerSucceeded LedgerStatus = "succeeded"
	LedgerFailed    LedgerStatus = "failed"
)

// Terminal reports whether the status permits no further automatic attempts.
func (s LedgerStatus) Terminal() bool {
	return s == LedgerSucceeded || s == LedgerFailed
}

// LedgerEntry is the durable record of one aggregation period's lifecycle.
// It is the single source of truth for whether a window is safe to purge.
type LedgerEntry struct {
	ID            int64        `json:"id"`
	Scope         StatScope    `json:"scope"`
	ParkID        int64        `json:"park_id"`
	PeriodType    PeriodType   `json:"period_type"`
	PeriodStart   time.Time    `json:"period_start"`
	Timezone      string       `json:"timezone"`
	Attempt       int          `json:"attempt"`
	Status        LedgerStatus `json:"status"`
	NextAttemptAt *time.Time   `json:"next_attempt_at,omitempty"`
	Error         string       `json:"error,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
