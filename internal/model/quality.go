package model

import "time"

// IssueKind categorizes a data quality issue.
type IssueKind string

const (
	IssueMissingData           IssueKind = "missing_data"
	IssueInconsistentData      IssueKind = "inconsistent_data"
	IssueStaleSource           IssueKind = "stale_source"
	IssueMissingClassification IssueKind = "missing_classification"
)

// DataQualityIssue is one diagnostic record. Issues are append-only and never
// block the pipeline; they exist for operational reporting.
type DataQualityIssue struct {
	ID           string    `json:"id"`
	SourceSystem string    `json:"source_system"`
	Kind         IssueKind `json:"kind"`
	ParkID       *int64    `json:"park_id,omitempty"`
	AttractionID *int64    `json:"attraction_id,omitempty"`
	Details      string    `json:"details,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
	Resolved     bool      `json:"resolved"`
}
