package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/quality"
	"github.com/parkpulse/parkpulse/internal/score"
	"github.com/parkpulse/parkpulse/internal/status"
	"github.com/parkpulse/parkpulse/pkg/queuetimes"
	"github.com/parkpulse/parkpulse/pkg/weather"
)

// ErrCycleRunning is returned when a cycle is requested while the previous
// one has not finished. The caller skips; cycles never overlap.
var ErrCycleRunning = eris.New("collector: cycle already running")

// Collector runs the polling cycle: fetch queue times for every active park,
// persist raw readings, detect transitions, and write one activity snapshot
// per park with its severity score.
type Collector struct {
	qt       queuetimes.Client
	weather  weather.Client
	pool     db.Pool
	catalog  *Catalog
	detector *status.Detector
	scorer   *score.Calculator
	issues   quality.Recorder
	cfg      config.CollectConfig
	// staleAfter flags readings whose source timestamp lags this far behind.
	staleAfter time.Duration
	running    atomic.Bool
	now        func() time.Time
	log        *zap.Logger
}

// NewCollector assembles a collector. wx may be nil when weather context is
// disabled.
func NewCollector(
	qt queuetimes.Client,
	wx weather.Client,
	pool db.Pool,
	catalog *Catalog,
	detector *status.Detector,
	scorer *score.Calculator,
	issues quality.Recorder,
	cfg config.CollectConfig,
	staleAfter time.Duration,
) *Collector {
	return &Collector{
		qt:         qt,
		weather:    wx,
		pool:       pool,
		catalog:    catalog,
		detector:   detector,
		scorer:     scorer,
		issues:     issues,
		cfg:        cfg,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		log:        zap.L().With(zap.String("component", "collector")),
	}
}

// CycleSummary reports one polling cycle.
type CycleSummary struct {
	Parks       int
	ParksFailed int
	Readings    int64
	Transitions int
	Issues      int
}

// Run polls on the configured interval until the context is cancelled. The
// first cycle starts immediately.
func (c *Collector) Run(ctx context.Context) error {
	interval := time.Duration(c.cfg.IntervalMins) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleRunning) {
			c.log.Error("cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes one polling cycle across all active parks. A cycle still
// in flight causes ErrCycleRunning; the caller drops this tick rather than
// queueing behind a slow upstream.
func (c *Collector) RunCycle(ctx context.Context) (CycleSummary, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.log.Warn("skipping cycle, previous still running")
		return CycleSummary{}, ErrCycleRunning
	}
	defer c.running.Store(false)

	started := c.now()
	parks, err := c.catalog.ListActiveParks(ctx)
	if err != nil {
		return CycleSummary{}, err
	}

	workers := c.cfg.ParkWorkers
	if workers <= 0 {
		workers = 8
	}

	results := make([]parkResult, len(parks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, park := range parks {
		g.Go(func() error {
			res, err := c.collectPark(gCtx, park)
			if err != nil {
				// One park's failure never aborts the cycle.
				c.log.Error("park collection failed",
					zap.Int64("park_id", park.ID),
					zap.String("park", park.Name),
					zap.Error(err),
				)
				res.failed = true
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return CycleSummary{}, ctx.Err()
	}

	sum := CycleSummary{Parks: len(parks)}
	for _, r := range results {
		if r.failed {
			sum.ParksFailed++
		}
		sum.Readings += r.readings
		sum.Transitions += r.transitions
		sum.Issues += r.issues
	}

	c.log.Info("cycle complete",
		zap.Int("parks", sum.Parks),
		zap.Int("parks_failed", sum.ParksFailed),
		zap.Int64("readings", sum.Readings),
		zap.Int("transitions", sum.Transitions),
		zap.Int("quality_issues", sum.Issues),
		zap.Duration("elapsed", c.now().Sub(started)),
	)
	return sum, nil
}

type parkResult struct {
	readings    int64
	transitions int
	issues      int
	failed      bool
}

func (c *Collector) collectPark(ctx context.Context, park model.Park) (parkResult, error) {
	var res parkResult

	attractions, err := c.catalog.ListActiveAttractions(ctx, park.ID)
	if err != nil {
		return res, err
	}
	if len(attractions) == 0 {
		return res, nil
	}

	queue, err := c.qt.QueueTimes(ctx, park.ID)
	if err != nil {
		return res, err
	}

	observedAt := c.now().Truncate(time.Second)
	rideByID := make(map[int64]queuetimes.Ride)
	for _, ride := range queue.AllRides() {
		rideByID[ride.ID] = ride
	}

	// One reading per catalog attraction. Attractions the payload omits get
	// an empty reading: absence of data means closed, plus a quality issue.
	copyRows := make([][]any, 0, len(attractions))
	readings := make([]model.StatusReading, 0, len(attractions))
	for _, a := range attractions {
		reading := model.StatusReading{AttractionID: a.ID, ObservedAt: observedAt}
		if ride, ok := rideByID[a.ID]; ok {
			reading.RawIsOpen = ride.IsOpen
			reading.WaitMinutes = ride.WaitTime
			reading.SourceUpdatedAt = ride.LastUpdated
		}
		readings = append(readings, reading)
		copyRows = append(copyRows, []any{
			reading.AttractionID, reading.ObservedAt, reading.RawIsOpen,
			reading.WaitMinutes, reading.SourceUpdatedAt,
		})
	}

	n, err := db.CopyFrom(ctx, c.pool, "park_data.status_readings",
		[]string{"attraction_id", "observed_at", "raw_is_open", "wait_minutes", "source_updated_at"},
		copyRows,
	)
	if err != nil {
		return res, err
	}
	res.readings = n

	inputs := make([]score.Input, 0, len(attractions))
	var openCount, closedCount, maxWait int
	var waitSum, waitN int
	for i, a := range attractions {
		reading := readings[i]
		computed := status.Compute(reading.RawIsOpen, reading.WaitMinutes)

		if computed.MissingData {
			res.issues += c.recordIssue(ctx, model.DataQualityIssue{
				SourceSystem: "queuetimes",
				Kind:         model.IssueMissingData,
				ParkID:       &park.ID,
				AttractionID: &a.ID,
				Details:      fmt.Sprintf("no status reported for %q; treated as closed", a.Name),
			})
		}
		if reading.SourceUpdatedAt != nil && c.staleAfter > 0 &&
			observedAt.Sub(*reading.SourceUpdatedAt) > c.staleAfter {
			res.issues += c.recordIssue(ctx, model.DataQualityIssue{
				SourceSystem: "queuetimes",
				Kind:         model.IssueStaleSource,
				ParkID:       &park.ID,
				AttractionID: &a.ID,
				Details: fmt.Sprintf("source timestamp %s lags observation by %s",
					reading.SourceUpdatedAt.Format(time.RFC3339),
					observedAt.Sub(*reading.SourceUpdatedAt).Round(time.Minute)),
			})
		}

		transition, err := c.detector.Observe(ctx, reading)
		switch {
		case errors.Is(err, status.ErrOutOfOrder):
			res.issues += c.recordIssue(ctx, model.DataQualityIssue{
				SourceSystem: "queuetimes",
				Kind:         model.IssueInconsistentData,
				ParkID:       &park.ID,
				AttractionID: &a.ID,
				Details:      "reading observed before persisted state; discarded",
			})
		case err != nil:
			return res, err
		case transition != nil:
			res.transitions++
		}

		inputs = append(inputs, score.Input{
			AttractionID: a.ID,
			Tier:         a.Tier,
			Open:         computed.Open,
			Active:       a.Active,
		})
		if computed.Open {
			openCount++
		} else {
			closedCount++
		}
		if reading.WaitMinutes != nil {
			waitSum += *reading.WaitMinutes
			waitN++
			if *reading.WaitMinutes > maxWait {
				maxWait = *reading.WaitMinutes
			}
		}
	}

	snapshot := model.ParkActivitySnapshot{
		ParkID:        park.ID,
		ObservedAt:    observedAt,
		OpenCount:     openCount,
		ClosedCount:   closedCount,
		MaxWait:       maxWait,
		AppearsActive: openCount > 0,
		SeverityScore: c.scorer.Severity(ctx, park.ID, inputs),
	}
	if waitN > 0 {
		snapshot.AvgWait = float64(waitSum) / float64(waitN)
	}
	c.attachWeather(ctx, park, &snapshot)

	if err := c.insertSnapshot(ctx, snapshot); err != nil {
		return res, err
	}
	return res, nil
}

// attachWeather best-effort fills the snapshot's weather context. Failures
// are logged and ignored; weather never blocks a cycle.
func (c *Collector) attachWeather(ctx context.Context, park model.Park, snap *model.ParkActivitySnapshot) {
	if c.weather == nil || park.Latitude == nil || park.Longitude == nil {
		return
	}
	cond, err := c.weather.Current(ctx, *park.Latitude, *park.Longitude)
	if err != nil {
		c.log.Warn("weather lookup failed", zap.Int64("park_id", park.ID), zap.Error(err))
		return
	}
	snap.WeatherTempC = &cond.TempC
	snap.WeatherCode = &cond.Code
}

func (c *Collector) insertSnapshot(ctx context.Context, s model.ParkActivitySnapshot) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO park_data.park_activity_snapshots
		 (park_id, observed_at, open_count, closed_count, avg_wait, max_wait,
		  appears_active, severity_score, weather_temp_c, weather_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ParkID, s.ObservedAt, s.OpenCount, s.ClosedCount, s.AvgWait, s.MaxWait,
		s.AppearsActive, s.SeverityScore, s.WeatherTempC, s.WeatherCode,
	)
	if err != nil {
		return eris.Wrapf(err, "collector: insert snapshot for park %d", s.ParkID)
	}
	return nil
}

// recordIssue appends a quality issue, returning 1 when recorded. Recording
// failures are advisory.
func (c *Collector) recordIssue(ctx context.Context, issue model.DataQualityIssue) int {
	if c.issues == nil {
		return 0
	}
	if err := c.issues.Record(ctx, issue); err != nil {
		return 0
	}
	return 1
}
