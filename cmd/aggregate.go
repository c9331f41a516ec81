package main

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/parkpulse/parkpulse/internal/aggregate"
	"github.com/parkpulse/parkpulse/internal/collector"
	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/monitoring"
)

var (
	aggForcePark   int64
	aggForcePeriod string
	aggForceStart  string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Roll readings into period statistics",
	Long: `Run one scheduler pass: discover newly closed day/week/month/year
periods for every active park, then execute whatever the ledger says is due.

Failed periods retry at fixed offsets; after the attempt budget is exhausted
the window goes terminal and must be re-run with --force-park.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		ledger := aggregate.NewLedger(pool)
		agg := aggregate.NewAggregator(pool, cfg.Collect.IntervalMins)
		sched := aggregate.NewScheduler(ledger, agg, collector.NewCatalog(pool),
			monitoring.NewAlerter(cfg.Monitoring), cfg.Aggregate)

		if aggForcePark != 0 {
			return forceRun(cmd, pool, sched)
		}

		sum, err := sched.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Aggregation pass: %d periods tracked, %d ran (%d succeeded, %d retried, %d failed)\n",
			sum.Discovered, sum.Ran, sum.Succeeded, sum.Retried, sum.Failed)
		return nil
	},
}

// forceRun re-runs one park period, resetting its attempt budget.
func forceRun(cmd *cobra.Command, pool *pgxpool.Pool, sched *aggregate.Scheduler) error {
	ctx := cmd.Context()

	pt := model.PeriodType(aggForcePeriod)
	switch pt {
	case model.PeriodDay, model.PeriodWeek, model.PeriodMonth, model.PeriodYear:
	default:
		return eris.Errorf("invalid --period %q", aggForcePeriod)
	}

	var tz string
	if err := pool.QueryRow(ctx,
		`SELECT timezone FROM park_data.parks WHERE id = $1`, aggForcePark,
	).Scan(&tz); err != nil {
		return eris.Wrapf(err, "look up park %d", aggForcePark)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return eris.Wrapf(err, "load timezone %s", tz)
	}

	day, err := time.ParseInLocation("2006-01-02", aggForceStart, loc)
	if err != nil {
		return eris.Wrapf(err, "parse --start %q (want YYYY-MM-DD)", aggForceStart)
	}
	start, _ := aggregate.PeriodBounds(pt, day, loc)

	if err := sched.ForceRun(ctx, aggForcePark, pt, start, tz); err != nil {
		return err
	}
	fmt.Printf("Re-aggregated park %d %s period starting %s\n",
		aggForcePark, pt, start.Format(time.RFC3339))
	return nil
}

func init() {
	aggregateCmd.Flags().Int64Var(&aggForcePark, "force-park", 0, "re-run one park period regardless of ledger state")
	aggregateCmd.Flags().StringVar(&aggForcePeriod, "period", "day", "period type for --force-park")
	aggregateCmd.Flags().StringVar(&aggForceStart, "start", "", "local date inside the period for --force-park (YYYY-MM-DD)")
	rootCmd.AddCommand(aggregateCmd)
}
