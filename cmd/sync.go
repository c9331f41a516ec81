package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkpulse/parkpulse/internal/collector"
	"github.com/parkpulse/parkpulse/pkg/queuetimes"
)

var syncParkIDs []int64

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the park and attraction catalog",
	Long: `Sync parks and attractions from the upstream API into park_data.* tables.

By default, syncs the parks listed in collect.park_ids. Use --parks to
override. Attractions the upstream no longer lists are deactivated, not
deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		parkIDs := syncParkIDs
		if len(parkIDs) == 0 {
			parkIDs = cfg.Collect.ParkIDs
		}

		qt := queuetimes.NewClient(cfg.QueueTimes.BaseURL, time.Duration(cfg.QueueTimes.TimeoutSecs)*time.Second)
		syncer := collector.NewSyncer(qt, collector.NewCatalog(pool))

		sum, err := syncer.Sync(ctx, parkIDs)
		if err != nil {
			return err
		}

		fmt.Printf("Synced %d parks, %d attractions (%d deactivated)\n",
			sum.Parks, sum.Attractions, sum.Deactivated)
		return nil
	},
}

func init() {
	syncCmd.Flags().Int64SliceVar(&syncParkIDs, "parks", nil, "upstream park IDs to sync (default: collect.park_ids)")
	rootCmd.AddCommand(syncCmd)
}
