package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/db"
)

// MetricsSnapshot captures pipeline health over a lookback window.
type MetricsSnapshot struct {
	LookbackHours int            `json:"lookback_hours"`
	QualityIssues int            `json:"quality_issues"`
	QualityByKind map[string]int `json:"quality_by_kind,omitempty"`
	FailedWindows int            `json:"failed_windows"`
	ActiveParks   int            `json:"active_parks"`
	// StaleParks counts active parks with no activity snapshot inside the
	// lookback window.
	StaleParks  int       `json:"stale_parks"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collector queries pipeline tables for a health snapshot.
type Collector struct {
	pool db.Pool
}

// NewCollector creates a metrics collector.
func NewCollector(pool db.Pool) *Collector {
	return &Collector{pool: pool}
}

// Collect builds a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookback time.Duration) (*MetricsSnapshot, error) {
	since := time.Now().UTC().Add(-lookback)
	snap := &MetricsSnapshot{
		LookbackHours: int(lookback.Hours()),
		QualityByKind: map[string]int{},
		CollectedAt:   time.Now().UTC(),
	}

	rows, err := c.pool.Query(ctx,
		`SELECT kind, count(*) FROM park_data.data_quality_issues
		 WHERE NOT resolved AND detected_at >= $1 GROUP BY kind`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: query quality issues")
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "monitoring: scan quality issue count")
		}
		snap.QualityByKind[kind] = n
		snap.QualityIssues += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "monitoring: iterate quality issues")
	}

	err = c.pool.QueryRow(ctx,
		`SELECT count(*) FROM park_data.aggregation_ledger WHERE status = 'failed'`,
	).Scan(&snap.FailedWindows)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count failed windows")
	}

	err = c.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE NOT EXISTS (
		            SELECT 1 FROM park_data.park_activity_snapshots s
		            WHERE s.park_id = p.id AND s.observed_at >= $1))
		 FROM park_data.parks p WHERE p.active`,
		since,
	).Scan(&snap.ActiveParks, &snap.StaleParks)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count stale parks")
	}

	return snap, nil
}
