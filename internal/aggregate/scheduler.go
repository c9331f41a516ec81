package aggregate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/monitoring"
)

// ParkLister supplies the active parks whose closed periods the scheduler
// discovers.
type ParkLister interface {
	ListActiveParks(ctx context.Context) ([]model.Park, error)
}

// AlertSink receives alerts for exhausted windows. Satisfied by
// monitoring.Alerter.
type AlertSink interface {
	Send(ctx context.Context, alerts ...monitoring.Alert) int
}

// RunSummary reports what one scheduler pass did.
type RunSummary struct {
	Discovered int
	Ran        int
	Succeeded  int
	Retried    int
	Failed     int
}

// Scheduler drives the aggregation lifecycle: it discovers newly closed
// periods for every active park, records them as pending in the ledger, and
// executes whatever is due. Each entry gets a bounded number of attempts at
// fixed wall-clock offsets after the period closes; exhausting them is
// terminal and alerts the operator.
type Scheduler struct {
	ledger *Ledger
	agg    *Aggregator
	parks  ParkLister
	alerts AlertSink
	cfg    config.AggregateConfig
	now    func() time.Time
	log    *zap.Logger
}

// NewScheduler assembles a scheduler. alerts may be nil.
func NewScheduler(ledger *Ledger, agg *Aggregator, parks ParkLister, alerts AlertSink, cfg config.AggregateConfig) *Scheduler {
	return &Scheduler{
		ledger: ledger,
		agg:    agg,
		parks:  parks,
		alerts: alerts,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		log:    zap.L().With(zap.String("component", "aggregate.scheduler")),
	}
}

// staleClaimAfter is how long a claimed entry may sit in running before a
// pass assumes the claiming process died and reclaims it. Attempts finish in
// seconds; anything older than this is a crashed claimer, not a slow one.
const staleClaimAfter = 30 * time.Minute

// Run performs one scheduler pass: reclaim entries orphaned by a crashed
// claimer, discover closed periods, then execute due entries. Individual
// entry failures are absorbed into the ledger's retry machinery; only
// infrastructure errors propagate.
func (s *Scheduler) Run(ctx context.Context) (RunSummary, error) {
	var sum RunSummary

	reclaimed, err := s.ledger.ReclaimStale(ctx, s.now().Add(-staleClaimAfter))
	if err != nil {
		return sum, err
	}
	if reclaimed > 0 {
		s.log.Warn("reclaimed stale running ledger entries", zap.Int64("count", reclaimed))
	}

	discovered, err := s.discover(ctx)
	if err != nil {
		return sum, err
	}
	sum.Discovered = discovered

	due, err := s.ledger.Due(ctx, s.now())
	if err != nil {
		return sum, err
	}

	for _, entry := range due {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		outcome, err := s.runEntry(ctx, entry)
		if err != nil {
			return sum, err
		}
		switch outcome {
		case outcomeSkipped:
		case outcomeSucceeded:
			sum.Ran++
			sum.Succeeded++
		case outcomeRetried:
			sum.Ran++
			sum.Retried++
		case outcomeFailed:
			sum.Ran++
			sum.Failed++
		}
	}

	s.log.Info("scheduler pass complete",
		zap.Int("discovered", sum.Discovered),
		zap.Int("ran", sum.Ran),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("retried", sum.Retried),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// discover ensures a pending ledger entry exists for every closed period of
// every type, per park, in the park's own time zone. It walks closed periods
// backward to the lookback horizon, so periods that closed while the
// scheduler was down still get ledger entries instead of a silent gap.
func (s *Scheduler) discover(ctx context.Context) (int, error) {
	parks, err := s.parks.ListActiveParks(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	horizon := now.Add(-s.cfg.Lookback())
	count := 0
	for _, park := range parks {
		loc, err := time.LoadLocation(park.Timezone)
		if err != nil {
			s.log.Warn("skipping park with bad timezone",
				zap.Int64("park_id", park.ID),
				zap.String("timezone", park.Timezone),
				zap.Error(err),
			)
			continue
		}
		for _, pt := range model.AllPeriodTypes() {
			start, end := PrevPeriodBounds(pt, now, loc)
			for {
				firstAttempt := end.Add(s.cfg.RetryOffset())
				if err := s.ledger.EnsurePending(ctx, park.ID, pt, start, park.Timezone, firstAttempt); err != nil {
					return count, err
				}
				count++
				start, end = PrevPeriodBounds(pt, start, loc)
				if !end.After(horizon) {
					break
				}
			}
		}
	}
	return count, nil
}

type entryOutcome int

const (
	outcomeSkipped entryOutcome = iota
	outcomeSucceeded
	outcomeRetried
	outcomeFailed
)

func (s *Scheduler) runEntry(ctx context.Context, entry model.LedgerEntry) (entryOutcome, error) {
	claimed, err := s.ledger.MarkRunning(ctx, entry.ID)
	if err != nil {
		return outcomeSkipped, err
	}
	if !claimed {
		return outcomeSkipped, nil
	}
	attempt := entry.Attempt + 1

	end, err := PeriodEnd(entry.PeriodType, entry.PeriodStart, entry.Timezone)
	if err != nil {
		return s.recordFailure(ctx, entry, attempt, err)
	}

	err = s.agg.RunPeriod(ctx, entry.ID, entry.ParkID, entry.PeriodType, entry.PeriodStart, end, entry.Timezone)
	if err != nil {
		return s.recordFailure(ctx, entry, attempt, err)
	}
	return outcomeSucceeded, nil
}

// recordFailure routes a failed attempt to retry or terminal failure.
func (s *Scheduler) recordFailure(ctx context.Context, entry model.LedgerEntry, attempt int, cause error) (entryOutcome, error) {
	s.log.Warn("aggregation attempt failed",
		zap.Int64("park_id", entry.ParkID),
		zap.String("period_type", string(entry.PeriodType)),
		zap.Time("period_start", entry.PeriodStart),
		zap.Int("attempt", attempt),
		zap.Error(cause),
	)

	if attempt >= s.cfg.MaxAttempts {
		if err := s.ledger.MarkFailed(ctx, entry.ID, cause.Error()); err != nil {
			return outcomeFailed, err
		}
		if s.alerts != nil {
			s.alerts.Send(ctx, monitoring.AggregationExhausted(
				entry.ParkID, string(entry.PeriodType), entry.PeriodStart, attempt, cause.Error()))
		}
		return outcomeFailed, nil
	}

	end, err := PeriodEnd(entry.PeriodType, entry.PeriodStart, entry.Timezone)
	if err != nil {
		end = s.now()
	}
	next := end.Add(time.Duration(attempt+1) * s.cfg.RetryOffset())
	if now := s.now(); next.Before(now) {
		// Backfilled periods have long-past slots; wait one offset instead
		// of retrying immediately.
		next = now.Add(s.cfg.RetryOffset())
	}
	if err := s.ledger.MarkRetry(ctx, entry.ID, cause.Error(), next); err != nil {
		return outcomeRetried, err
	}
	return outcomeRetried, nil
}

// ForceRun re-runs one park period regardless of its ledger state, resetting
// the attempt budget. It is the operator's recovery path for windows that
// exhausted their attempts.
func (s *Scheduler) ForceRun(ctx context.Context, parkID int64, pt model.PeriodType, periodStart time.Time, tz string) error {
	reopened, err := s.ledger.Reopen(ctx, parkID, pt, periodStart)
	if err != nil {
		return err
	}
	if !reopened {
		if err := s.ledger.EnsurePending(ctx, parkID, pt, periodStart, tz, s.now()); err != nil {
			return err
		}
	}

	entry, err := s.ledger.Find(ctx, parkID, pt, periodStart)
	if err != nil {
		return err
	}
	if entry == nil {
		return eris.Errorf("aggregate: no ledger entry for park %d %s %s", parkID, pt, periodStart.Format(time.RFC3339))
	}

	outcome, err := s.runEntry(ctx, *entry)
	if err != nil {
		return err
	}
	if outcome != outcomeSucceeded {
		return eris.Errorf("aggregate: forced run for park %d %s %s did not succeed (see ledger)",
			parkID, pt, periodStart.Format(time.RFC3339))
	}
	return nil
}
