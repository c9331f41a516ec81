package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkpulse/parkpulse/internal/aggregate"
	"github.com/parkpulse/parkpulse/internal/monitoring"
	"github.com/parkpulse/parkpulse/internal/quality"
)

var statusLookbackHours int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health",
	Long: `Print a pipeline health summary: quality issue counts, failed
aggregation windows, stale parks, and the most recent ledger activity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		lookback := time.Duration(statusLookbackHours) * time.Hour
		snap, err := monitoring.NewCollector(pool).Collect(ctx, lookback)
		if err != nil {
			return err
		}

		fmt.Printf("Pipeline health (last %dh)\n", snap.LookbackHours)
		fmt.Printf("  active parks:    %d (%d stale)\n", snap.ActiveParks, snap.StaleParks)
		fmt.Printf("  quality issues:  %d\n", snap.QualityIssues)
		for kind, n := range snap.QualityByKind {
			fmt.Printf("    %-24s %d\n", kind, n)
		}
		fmt.Printf("  failed windows:  %d\n", snap.FailedWindows)

		entries, err := aggregate.NewLedger(pool).Recent(ctx, 10)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			fmt.Println("\nRecent aggregation activity:")
			for _, e := range entries {
				fmt.Printf("  park %-6d %-6s %s  %-9s attempt %d",
					e.ParkID, e.PeriodType, e.PeriodStart.Format("2006-01-02"), e.Status, e.Attempt)
				if e.Error != "" {
					fmt.Printf("  (%s)", e.Error)
				}
				fmt.Println()
			}
		}

		issues, err := quality.NewStore(pool).ListRecent(ctx, time.Now().UTC().Add(-lookback), 10)
		if err != nil {
			return err
		}
		if len(issues) > 0 {
			fmt.Println("\nRecent quality issues:")
			for _, i := range issues {
				fmt.Printf("  %s %-24s %s\n",
					i.DetectedAt.Format(time.RFC3339), i.Kind, i.Details)
			}
		}

		// Push threshold breaches to the webhook if one is configured.
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		if alerts := alerter.Evaluate(snap); len(alerts) > 0 {
			alerter.Send(ctx, alerts...)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLookbackHours, "lookback", 24, "lookback window in hours")
	rootCmd.AddCommand(statusCmd)
}
