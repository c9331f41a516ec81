package aggregate

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// Ledger is the durable record of every aggregation period's lifecycle.
// One row covers a park's full rollup for a period: the park-scope stat row
// and all of its attraction-scope rows succeed or fail together.
type Ledger struct {
	pool db.Pool
}

// NewLedger creates a ledger over the given pool.
func NewLedger(pool db.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// EnsurePending inserts a pending entry for the period if none exists.
// Existing entries are left untouched regardless of state, so re-discovery
// of a closed period never resets a completed or in-flight one.
func (l *Ledger) EnsurePending(ctx context.Context, parkID int64, pt model.PeriodType, periodStart time.Time, tz string, firstAttemptAt time.Time) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO park_data.aggregation_ledger
		 (scope, park_id, period_type, period_start, timezone, attempt, status, next_attempt_at, updated_at)
		 VALUES ('park', $1, $2, $3, $4, 0, 'pending', $5, now())
		 ON CONFLICT (scope, park_id, period_type, period_start) DO NOTHING`,
		parkID, string(pt), periodStart, tz, firstAttemptAt,
	)
	if err != nil {
		return eris.Wrapf(err, "aggregate: ensure pending %s %s for park %d", pt, periodStart.Format(time.RFC3339), parkID)
	}
	return nil
}

// Due returns pending entries whose next attempt time has passed, oldest
// period first so backfill drains in order.
func (l *Ledger) Due(ctx context.Context, now time.Time) ([]model.LedgerEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, scope, park_id, period_type, period_start, timezone, attempt, status, next_attempt_at, COALESCE(error, ''), updated_at
		 FROM park_data.aggregation_ledger
		 WHERE status = 'pending' AND next_attempt_at <= $1
		 ORDER BY period_start, park_id`,
		now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: query due ledger entries")
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// MarkRunning claims an entry for execution and increments the attempt
// counter. The update is conditioned on pending status so two schedulers
// cannot claim the same entry.
func (l *Ledger) MarkRunning(ctx context.Context, id int64) (claimed bool, err error) {
	tag, err := l.pool.Exec(ctx,
		`UPDATE park_data.aggregation_ledger
		 SET status = 'running', attempt = attempt + 1, updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "aggregate: mark ledger %d running", id)
	}
	return tag.RowsAffected() == 1, nil
}

// ReclaimStale returns running entries whose last update is older than the
// threshold to pending, due immediately. A process that dies between claiming
// an entry and committing its stats leaves the row running; nothing else ever
// touches running rows, so the reclaim is the only way such a window gets
// retried. The crashed attempt keeps its slot in the attempt budget.
func (l *Ledger) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := l.pool.Exec(ctx,
		`UPDATE park_data.aggregation_ledger
		 SET status = 'pending', next_attempt_at = now(), updated_at = now()
		 WHERE status = 'running' AND updated_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, eris.Wrap(err, "aggregate: reclaim stale running entries")
	}
	return tag.RowsAffected(), nil
}

// MarkRetry returns a failed attempt to pending with its next slot.
func (l *Ledger) MarkRetry(ctx context.Context, id int64, cause string, nextAttemptAt time.Time) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE park_data.aggregation_ledger
		 SET status = 'pending', error = $2, next_attempt_at = $3, updated_at = now()
		 WHERE id = $1`,
		id, cause, nextAttemptAt,
	)
	if err != nil {
		return eris.Wrapf(err, "aggregate: mark ledger %d for retry", id)
	}
	return nil
}

// MarkFailed moves an entry to the terminal failed state. Nothing retries it
// automatically after this.
func (l *Ledger) MarkFailed(ctx context.Context, id int64, cause string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE park_data.aggregation_ledger
		 SET status = 'failed', error = $2, next_attempt_at = NULL, updated_at = now()
		 WHERE id = $1`,
		id, cause,
	)
	if err != nil {
		return eris.Wrapf(err, "aggregate: mark ledger %d failed", id)
	}
	return nil
}

// markSucceededTx records success inside the same transaction that wrote the
// stat rows, so the ledger never claims success for stats that were rolled
// back.
func markSucceededTx(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE park_data.aggregation_ledger
		 SET status = 'succeeded', error = NULL, next_attempt_at = NULL, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "aggregate: mark ledger %d succeeded", id)
	}
	return nil
}

// Reopen resets an entry to pending with a fresh attempt budget, due
// immediately. Used by forced re-runs. Running entries are included so an
// operator can recover a row wedged by a crashed claimer; stat replacement
// is atomic per window, so racing a live run cannot corrupt the stats.
func (l *Ledger) Reopen(ctx context.Context, parkID int64, pt model.PeriodType, periodStart time.Time) (bool, error) {
	tag, err := l.pool.Exec(ctx,
		`UPDATE park_data.aggregation_ledger
		 SET status = 'pending', attempt = 0, error = NULL, next_attempt_at = now(), updated_at = now()
		 WHERE scope = 'park' AND park_id = $1 AND period_type = $2 AND period_start = $3
		   AND status IN ('failed', 'succeeded', 'running')`,
		parkID, string(pt), periodStart,
	)
	if err != nil {
		return false, eris.Wrapf(err, "aggregate: reopen ledger for park %d", parkID)
	}
	return tag.RowsAffected() == 1, nil
}

// Find returns the entry for one park period, or nil when none exists.
func (l *Ledger) Find(ctx context.Context, parkID int64, pt model.PeriodType, periodStart time.Time) (*model.LedgerEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, scope, park_id, period_type, period_start, timezone, attempt, status, next_attempt_at, COALESCE(error, ''), updated_at
		 FROM park_data.aggregation_ledger
		 WHERE scope = 'park' AND park_id = $1 AND period_type = $2 AND period_start = $3`,
		parkID, string(pt), periodStart,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: find ledger entry for park %d", parkID)
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// DayEntriesBefore returns day-period entries starting before the cutoff,
// across all parks. The retention cleaner walks these to decide which raw
// windows are provably rolled up.
func (l *Ledger) DayEntriesBefore(ctx context.Context, cutoff time.Time) ([]model.LedgerEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, scope, park_id, period_type, period_start, timezone, attempt, status, next_attempt_at, COALESCE(error, ''), updated_at
		 FROM park_data.aggregation_ledger
		 WHERE scope = 'park' AND period_type = 'day' AND period_start < $1
		 ORDER BY park_id, period_start`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: query day ledger entries")
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// Recent returns the newest ledger entries across all parks for operator
// inspection.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, scope, park_id, period_type, period_start, timezone, attempt, status, next_attempt_at, COALESCE(error, ''), updated_at
		 FROM park_data.aggregation_ledger
		 ORDER BY updated_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: query recent ledger entries")
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows pgx.Rows) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var scope, pt, status string
		if err := rows.Scan(&e.ID, &scope, &e.ParkID, &pt, &e.PeriodStart, &e.Timezone,
			&e.Attempt, &status, &e.NextAttemptAt, &e.Error, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "aggregate: scan ledger entry")
		}
		e.Scope = model.StatScope(scope)
		e.PeriodType = model.PeriodType(pt)
		e.Status = model.LedgerStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
