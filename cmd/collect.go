package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkpulse/parkpulse/internal/collector"
	"github.com/parkpulse/parkpulse/internal/quality"
	"github.com/parkpulse/parkpulse/internal/score"
	"github.com/parkpulse/parkpulse/internal/status"
	"github.com/parkpulse/parkpulse/pkg/queuetimes"
	"github.com/parkpulse/parkpulse/pkg/weather"
)

var collectOnce bool

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Poll park status and record transitions",
	Long: `Poll queue times for every active park on the configured interval.

Each cycle persists raw readings, detects open/closed transitions against
stored state, records data quality issues, and writes one activity snapshot
per park with its severity score. Use --once for a single cycle (cron mode).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		qt := queuetimes.NewClient(cfg.QueueTimes.BaseURL, time.Duration(cfg.QueueTimes.TimeoutSecs)*time.Second)

		var wx weather.Client
		if cfg.Weather.Enabled {
			wx = weather.NewClient(cfg.Weather.BaseURL, time.Duration(cfg.Weather.TimeoutSecs)*time.Second)
		}

		issues := quality.NewStore(pool)
		c := collector.NewCollector(
			qt, wx, pool,
			collector.NewCatalog(pool),
			status.NewDetector(status.NewPGStateStore(pool)),
			score.NewCalculator(cfg.Score, issues),
			issues,
			cfg.Collect,
			time.Duration(cfg.QueueTimes.StaleAfterMins)*time.Minute,
		)

		if collectOnce {
			sum, err := c.RunCycle(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Collected %d parks (%d failed): %d readings, %d transitions, %d quality issues\n",
				sum.Parks, sum.ParksFailed, sum.Readings, sum.Transitions, sum.Issues)
			return nil
		}
		return c.Run(ctx)
	},
}

func init() {
	collectCmd.Flags().BoolVar(&collectOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(collectCmd)
}
