package aggregate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// Cleaner purges raw readings and snapshots past the retention horizon, but
// only inside day windows whose ledger entry succeeded. Raw rows with no
// verified rollup are never deleted, whatever their age: losing unaggregated
// data is worse than holding it too long.
type Cleaner struct {
	pool   db.Pool
	ledger *Ledger
	cfg    config.RetentionConfig
	now    func() time.Time
	log    *zap.Logger
}

// NewCleaner creates a retention cleaner.
func NewCleaner(pool db.Pool, ledger *Ledger, cfg config.RetentionConfig) *Cleaner {
	return &Cleaner{
		pool:   pool,
		ledger: ledger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		log:    zap.L().With(zap.String("component", "aggregate.retention")),
	}
}

// CleanupSummary reports one cleaner pass.
type CleanupSummary struct {
	ReadingsDeleted  int64
	SnapshotsDeleted int64
	WindowsPurged    int
	// WindowsBlocked counts day windows past the horizon that could not be
	// purged because their rollup has not succeeded.
	WindowsBlocked int
}

// Run performs one cleanup pass. overrideFailed additionally purges windows
// whose ledger entry is terminally failed; it is an explicit operator
// decision to abandon those rollups.
func (c *Cleaner) Run(ctx context.Context, overrideFailed bool) (CleanupSummary, error) {
	var sum CleanupSummary
	cutoff := c.now().Add(-time.Duration(c.cfg.RawHours) * time.Hour)

	entries, err := c.ledger.DayEntriesBefore(ctx, cutoff)
	if err != nil {
		return sum, err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}

		switch entry.Status {
		case model.LedgerSucceeded:
		case model.LedgerFailed:
			if !overrideFailed {
				sum.WindowsBlocked++
				c.log.Warn("retention blocked by failed rollup",
					zap.Int64("park_id", entry.ParkID),
					zap.Time("period_start", entry.PeriodStart),
					zap.String("error", entry.Error),
				)
				continue
			}
		default:
			sum.WindowsBlocked++
			c.log.Debug("retention waiting on rollup",
				zap.Int64("park_id", entry.ParkID),
				zap.Time("period_start", entry.PeriodStart),
				zap.String("status", string(entry.Status)),
			)
			continue
		}

		end, err := PeriodEnd(model.PeriodDay, entry.PeriodStart, entry.Timezone)
		if err != nil {
			return sum, err
		}
		// Only rows past the horizon go, even inside a verified window.
		upper := end
		if cutoff.Before(upper) {
			upper = cutoff
		}

		readings, snapshots, err := c.purgeWindow(ctx, entry.ParkID, entry.PeriodStart, upper)
		if err != nil {
			return sum, err
		}
		if readings > 0 || snapshots > 0 {
			sum.WindowsPurged++
		}
		sum.ReadingsDeleted += readings
		sum.SnapshotsDeleted += snapshots
	}

	c.log.Info("retention pass complete",
		zap.Int64("readings_deleted", sum.ReadingsDeleted),
		zap.Int64("snapshots_deleted", sum.SnapshotsDeleted),
		zap.Int("windows_purged", sum.WindowsPurged),
		zap.Int("windows_blocked", sum.WindowsBlocked),
	)
	return sum, nil
}

func (c *Cleaner) purgeWindow(ctx context.Context, parkID int64, from, to time.Time) (readings, snapshots int64, err error) {
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM park_data.status_readings r
		 USING park_data.attractions a
		 WHERE a.id = r.attraction_id AND a.park_id = $1
		   AND r.observed_at >= $2 AND r.observed_at < $3`,
		parkID, from, to,
	)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "aggregate: purge readings for park %d", parkID)
	}
	readings = tag.RowsAffected()

	tag, err = c.pool.Exec(ctx,
		`DELETE FROM park_data.park_activity_snapshots
		 WHERE park_id = $1 AND observed_at >= $2 AND observed_at < $3`,
		parkID, from, to,
	)
	if err != nil {
		return readings, 0, eris.Wrapf(err, "aggregate: purge snapshots for park %d", parkID)
	}
	return readings, tag.RowsAffected(), nil
}
