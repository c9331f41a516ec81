// Package model defines the domain types shared across the pipeline:
// parks, attractions, status readings and transitions, period statistics,
// the aggregation ledger, classification records and data quality issues.
package model

import "time"

// Tier is an attraction's importance class used to weight downtime severity.
type Tier int

const (
	Tier1 Tier = 1 // flagship
	Tier2 Tier = 2 // moderate
	Tier3 Tier = 3 // minor
)

// Valid reports whether t is one of the three defined tiers.
func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier3
}

// Park represents a single theme park tracked by the collector.
// Coordinates are optional and only feed the weather context columns.
type Park struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Timezone  string   `json:"timezone"` // IANA name, e.g. "America/Los_Angeles"
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Active    bool     `json:"active"`
}

// Attraction represents a ride or show belonging to a park. Tier is nil until
// the classification engine has resolved one; the pipeline treats the catalog
// as read-only.
type Attraction struct {
	ID        int64     `json:"id"`
	ParkID    int64     `json:"park_id"`
	Name      string    `json:"name"`
	Tier      *Tier     `json:"tier,omitempty"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}
