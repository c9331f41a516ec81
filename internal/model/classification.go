package model

import "time"

// ClassificationSource identifies which resolver produced a tier.
type ClassificationSource string

const (
	SourceManual  ClassificationSource = "manual"
	SourceCached  ClassificationSource = "cached"
	SourcePattern ClassificationSource = "pattern"
	SourceAI      ClassificationSource = "ai"
)

// ClassificationRecord is the outcome of resolving an attraction's tier.
// Manual records are immutable and always win; AI results below the review
// threshold carry NeedsReview and must never be promoted into the cache.
type ClassificationRecord struct {
	ParkID        int64                `json:"park_id"`
	AttractionID  int64                `json:"attraction_id"`
	Tier          Tier                 `json:"tier"`
	Confidence    float64              `json:"confidence"`
	Source        ClassificationSource `json:"source"`
	SchemaVersion int                  `json:"schema_version"`
	Rationale     string               `json:"rationale,omitempty"`
	NeedsReview   bool                 `json:"needs_review,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}
