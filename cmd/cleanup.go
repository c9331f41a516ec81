package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parkpulse/parkpulse/internal/aggregate"
)

var cleanupOverrideFailed bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge raw readings past the retention horizon",
	Long: `Delete raw readings and snapshots older than retention.raw_hours,
but only inside day windows whose aggregation succeeded. Windows without a
verified rollup are kept regardless of age.

--override-failed additionally purges windows whose aggregation is
terminally failed; that abandons those rollups for good.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		cleaner := aggregate.NewCleaner(pool, aggregate.NewLedger(pool), cfg.Retention)
		sum, err := cleaner.Run(ctx, cleanupOverrideFailed)
		if err != nil {
			return err
		}

		fmt.Printf("Purged %d windows: %d readings, %d snapshots (%d windows blocked)\n",
			sum.WindowsPurged, sum.ReadingsDeleted, sum.SnapshotsDeleted, sum.WindowsBlocked)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupOverrideFailed, "override-failed", false,
		"also purge windows whose aggregation terminally failed")
	rootCmd.AddCommand(cleanupCmd)
}
