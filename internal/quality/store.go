// Package quality records data quality issues. Issues are an append-only
// diagnostic trail; nothing in the pipeline consumes them.
package quality

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// Recorder is the write-side interface the pipeline components use.
type Recorder interface {
	Record(ctx context.Context, issue model.DataQualityIssue) error
}

// Store provides read/write access to park_data.data_quality_issues.
type Store struct {
	pool db.Pool
}

// NewStore creates a quality issue store backed by the given pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Record appends one issue. A missing ID is filled in. Recording failures
// are logged but reported to the caller; quality issues must never block
// the pipeline, so callers treat the error as advisory.
func (s *Store) Record(ctx context.Context, issue model.DataQualityIssue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.DetectedAt.IsZero() {
		issue.DetectedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO park_data.data_quality_issues
		 (id, source_system, kind, park_id, attraction_id, details, detected_at, resolved)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)`,
		issue.ID, issue.SourceSystem, string(issue.Kind), issue.ParkID, issue.AttractionID,
		issue.Details, issue.DetectedAt,
	)
	if err != nil {
		zap.L().Warn("quality: failed to record issue",
			zap.String("kind", string(issue.Kind)),
			zap.Error(err),
		)
		return eris.Wrapf(err, "quality: record %s issue", issue.Kind)
	}
	return nil
}

// ListRecent returns unresolved issues detected within the lookback window,
// newest first.
func (s *Store) ListRecent(ctx context.Context, since time.Time, limit int) ([]model.DataQualityIssue, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_system, kind, park_id, attraction_id, details, detected_at, resolved
		 FROM park_data.data_quality_issues
		 WHERE detected_at >= $1 AND NOT resolved
		 ORDER BY detected_at DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "quality: list recent issues")
	}
	defer rows.Close()

	var issues []model.DataQualityIssue
	for rows.Next() {
		var i model.DataQualityIssue
		var kind string
		if err := rows.Scan(&i.ID, &i.SourceSystem, &kind, &i.ParkID, &i.AttractionID,
			&i.Details, &i.DetectedAt, &i.Resolved); err != nil {
			return nil, eris.Wrap(err, "quality: scan issue")
		}
		i.Kind = model.IssueKind(kind)
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// CountSince returns the number of unresolved issues detected at or after
// the given time. Used by the alerter's quality-spike check.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM park_data.data_quality_issues
		 WHERE detected_at >= $1 AND NOT resolved`,
		since,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "quality: count issues")
	}
	return n, nil
}
