package aggregate

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// A reading is open when it reports a positive wait, or an explicit open
// flag with a zero wait. Must stay in lockstep with status.Compute.
const openReadingExpr = `(COALESCE(r.wait_minutes, 0) > 0
	OR (r.raw_is_open IS TRUE AND COALESCE(r.wait_minutes, 0) = 0))`

// Aggregator computes and writes period stat rows. Day periods are computed
// from raw readings and snapshots; longer periods roll up from stored day
// rows, because raw data is gone long before a month closes.
type Aggregator struct {
	pool db.Pool
	// readingIntervalMins converts closed-reading counts into downtime
	// minutes. Matches the collector's polling cadence.
	readingIntervalMins int
	log                 *zap.Logger
}

// NewAggregator creates an aggregator. intervalMins is the collector's
// polling interval.
func NewAggregator(pool db.Pool, intervalMins int) *Aggregator {
	if intervalMins <= 0 {
		intervalMins = 10
	}
	return &Aggregator{
		pool:                pool,
		readingIntervalMins: intervalMins,
		log:                 zap.L().With(zap.String("component", "aggregate")),
	}
}

// RunPeriod computes every stat row for one park and period and writes them
// atomically, replacing any rows from a previous attempt. The ledger entry
// is marked succeeded in the same transaction.
func (a *Aggregator) RunPeriod(ctx context.Context, ledgerID int64, parkID int64, pt model.PeriodType, periodStart, periodEnd time.Time, tz string) error {
	var stats []model.PeriodStat
	var err error
	if pt == model.PeriodDay {
		stats, err = a.computeDay(ctx, parkID, periodStart, periodEnd, tz)
	} else {
		stats, err = a.rollUp(ctx, parkID, pt, periodStart, periodEnd, tz)
	}
	if err != nil {
		return err
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "aggregate: begin stat transaction")
	}
	defer tx.Rollback(ctx)

	if err := replaceStats(ctx, tx, parkID, pt, periodStart, stats); err != nil {
		return err
	}
	if err := markSucceededTx(ctx, tx, ledgerID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "aggregate: commit stat transaction")
	}

	a.log.Info("period aggregated",
		zap.Int64("park_id", parkID),
		zap.String("period_type", string(pt)),
		zap.Time("period_start", periodStart),
		zap.Int("stat_rows", len(stats)),
	)
	return nil
}

// computeDay builds the park row from activity snapshots and per-attraction
// rows from raw readings.
func (a *Aggregator) computeDay(ctx context.Context, parkID int64, start, end time.Time, tz string) ([]model.PeriodStat, error) {
	parkStat, err := a.parkDayStat(ctx, parkID, start, end, tz)
	if err != nil {
		return nil, err
	}
	attrStats, err := a.attractionDayStats(ctx, parkID, start, end, tz)
	if err != nil {
		return nil, err
	}
	return append([]model.PeriodStat{parkStat}, attrStats...), nil
}

func (a *Aggregator) parkDayStat(ctx context.Context, parkID int64, start, end time.Time, tz string) (model.PeriodStat, error) {
	stat := model.PeriodStat{
		Scope:       model.ScopePark,
		EntityID:    parkID,
		PeriodType:  model.PeriodDay,
		PeriodStart: start,
		PeriodEnd:   end,
		Timezone:    tz,
	}

	var snapshots int64
	var closedSum *int64
	var uptime, severity *float64
	err := a.pool.QueryRow(ctx,
		`SELECT count(*),
		        sum(closed_count),
		        avg(CASE WHEN open_count + closed_count > 0
		                 THEN open_count::double precision / (open_count + closed_count)
		                 ELSE NULL END),
		        avg(severity_score)
		 FROM park_data.park_activity_snapshots
		 WHERE park_id = $1 AND observed_at >= $2 AND observed_at < $3`,
		parkID, start, end,
	).Scan(&snapshots, &closedSum, &uptime, &severity)
	if err != nil {
		return stat, eris.Wrapf(err, "aggregate: park day stat for park %d", parkID)
	}

	if snapshots == 0 {
		// A park with no snapshots in the window had no activity to report;
		// an all-zero row still marks the period as processed.
		stat.UptimePct = 0
		return stat, nil
	}
	if closedSum != nil {
		stat.DowntimeMinutes = *closedSum * int64(a.readingIntervalMins)
	}
	if uptime != nil {
		stat.UptimePct = *uptime * 100
	}
	stat.SeverityScore = severity
	return stat, nil
}

func (a *Aggregator) attractionDayStats(ctx context.Context, parkID int64, start, end time.Time, tz string) ([]model.PeriodStat, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT r.attraction_id,
		        count(*) FILTER (WHERE NOT `+openReadingExpr+`),
		        count(*) FILTER (WHERE `+openReadingExpr+`)::double precision / count(*)
		 FROM park_data.status_readings r
		 JOIN park_data.attractions a ON a.id = r.attraction_id
		 WHERE a.park_id = $1 AND r.observed_at >= $2 AND r.observed_at < $3
		 GROUP BY r.attraction_id
		 ORDER BY r.attraction_id`,
		parkID, start, end,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: attraction day stats for park %d", parkID)
	}
	defer rows.Close()

	var out []model.PeriodStat
	for rows.Next() {
		stat := model.PeriodStat{
			Scope:       model.ScopeAttraction,
			PeriodType:  model.PeriodDay,
			PeriodStart: start,
			PeriodEnd:   end,
			Timezone:    tz,
		}
		var closedReadings int64
		var uptimeFrac float64
		if err := rows.Scan(&stat.EntityID, &closedReadings, &uptimeFrac); err != nil {
			return nil, eris.Wrap(err, "aggregate: scan attraction day stat")
		}
		stat.DowntimeMinutes = closedReadings * int64(a.readingIntervalMins)
		stat.UptimePct = uptimeFrac * 100
		out = append(out, stat)
	}
	return out, rows.Err()
}

// rollUp derives week/month/year rows from the day rows inside the window.
func (a *Aggregator) rollUp(ctx context.Context, parkID int64, pt model.PeriodType, start, end time.Time, tz string) ([]model.PeriodStat, error) {
	parkStat := model.PeriodStat{
		Scope:       model.ScopePark,
		EntityID:    parkID,
		PeriodType:  pt,
		PeriodStart: start,
		PeriodEnd:   end,
		Timezone:    tz,
	}

	var days int64
	var downtime *int64
	var uptime, severity *float64
	err := a.pool.QueryRow(ctx,
		`SELECT count(*), sum(downtime_minutes), avg(uptime_pct), avg(severity_score)
		 FROM park_data.period_stats
		 WHERE scope = 'park' AND entity_id = $1 AND period_type = 'day'
		   AND period_start >= $2 AND period_start < $3`,
		parkID, start, end,
	).Scan(&days, &downtime, &uptime, &severity)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: roll up park %s for park %d", pt, parkID)
	}
	if downtime != nil {
		parkStat.DowntimeMinutes = *downtime
	}
	if uptime != nil {
		parkStat.UptimePct = *uptime
	}
	parkStat.SeverityScore = severity

	rows, err := a.pool.Query(ctx,
		`SELECT s.entity_id, sum(s.downtime_minutes), avg(s.uptime_pct)
		 FROM park_data.period_stats s
		 JOIN park_data.attractions a ON a.id = s.entity_id
		 WHERE s.scope = 'attraction' AND s.period_type = 'day' AND a.park_id = $1
		   AND s.period_start >= $2 AND s.period_start < $3
		 GROUP BY s.entity_id
		 ORDER BY s.entity_id`,
		parkID, start, end,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: roll up attractions for park %d", parkID)
	}
	defer rows.Close()

	out := []model.PeriodStat{parkStat}
	for rows.Next() {
		stat := model.PeriodStat{
			Scope:       model.ScopeAttraction,
			PeriodType:  pt,
			PeriodStart: start,
			PeriodEnd:   end,
			Timezone:    tz,
		}
		if err := rows.Scan(&stat.EntityID, &stat.DowntimeMinutes, &stat.UptimePct); err != nil {
			return nil, eris.Wrap(err, "aggregate: scan attraction rollup")
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// replaceStats atomically swaps the period's stat rows: delete everything the
// park owns for this period, then insert the fresh set. Re-running a period
// yields identical rows, never duplicates.
func replaceStats(ctx context.Context, tx pgx.Tx, parkID int64, pt model.PeriodType, periodStart time.Time, stats []model.PeriodStat) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM park_data.period_stats
		 WHERE period_type = $1 AND period_start = $2
		   AND ((scope = 'park' AND entity_id = $3)
		     OR (scope = 'attraction' AND entity_id IN
		           (SELECT id FROM park_data.attractions WHERE park_id = $3)))`,
		string(pt), periodStart, parkID,
	)
	if err != nil {
		return eris.Wrapf(err, "aggregate: clear stats for park %d", parkID)
	}

	for _, s := range stats {
		_, err := tx.Exec(ctx,
			`INSERT INTO park_data.period_stats
			 (scope, entity_id, period_type, period_start, period_end, timezone,
			  downtime_minutes, uptime_pct, severity_score, computed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
			string(s.Scope), s.EntityID, string(s.PeriodType), s.PeriodStart, s.PeriodEnd,
			s.Timezone, s.DowntimeMinutes, s.UptimePct, s.SeverityScore,
		)
		if err != nil {
			return eris.Wrapf(err, "aggregate: insert %s stat for entity %d", s.Scope, s.EntityID)
		}
	}
	return nil
}

// StatsFor returns stored stats for an entity, newest periods first.
func (a *Aggregator) StatsFor(ctx context.Context, scope model.StatScope, entityID int64, pt model.PeriodType, limit int) ([]model.PeriodStat, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := a.pool.Query(ctx,
		`SELECT scope, entity_id, period_type, period_start, period_end, timezone,
		        downtime_minutes, uptime_pct, severity_score, computed_at
		 FROM park_data.period_stats
		 WHERE scope = $1 AND entity_id = $2 AND period_type = $3
		 ORDER BY period_start DESC LIMIT $4`,
		string(scope), entityID, string(pt), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: query stats for %s %d", scope, entityID)
	}
	defer rows.Close()

	var out []model.PeriodStat
	for rows.Next() {
		var s model.PeriodStat
		var sc, p string
		if err := rows.Scan(&sc, &s.EntityID, &p, &s.PeriodStart, &s.PeriodEnd, &s.Timezone,
			&s.DowntimeMinutes, &s.UptimePct, &s.SeverityScore, &s.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "aggregate: scan stat row")
		}
		s.Scope = model.StatScope(sc)
		s.PeriodType = model.PeriodType(p)
		out = append(out, s)
	}
	return out, rows.Err()
}
