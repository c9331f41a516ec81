package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/parkpulse/parkpulse/internal/aggregate"
	"github.com/parkpulse/parkpulse/internal/model"
)

var (
	statsScope  string
	statsPeriod string
	statsLimit  int
)

var statsCmd = &cobra.Command{
	Use:   "stats <entity-id>",
	Short: "Show stored period statistics",
	Long: `Print stored downtime statistics for a park or attraction,
newest periods first. Stats are read as stored; severity scores are never
recomputed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var entityID int64
		if _, err := fmt.Sscan(args[0], &entityID); err != nil {
			return eris.Errorf("invalid entity id %q", args[0])
		}

		scope := model.StatScope(statsScope)
		if scope != model.ScopePark && scope != model.ScopeAttraction {
			return eris.Errorf("invalid --scope %q (want park or attraction)", statsScope)
		}
		pt := model.PeriodType(statsPeriod)
		switch pt {
		case model.PeriodDay, model.PeriodWeek, model.PeriodMonth, model.PeriodYear:
		default:
			return eris.Errorf("invalid --period %q", statsPeriod)
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stats, err := aggregate.NewAggregator(pool, cfg.Collect.IntervalMins).
			StatsFor(ctx, scope, entityID, pt, statsLimit)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Println("No stats stored")
			return nil
		}

		for _, s := range stats {
			line := fmt.Sprintf("%s  downtime %5dm  uptime %6.2f%%",
				s.PeriodStart.In(mustLocation(s.Timezone)).Format("2006-01-02"),
				s.DowntimeMinutes, s.UptimePct)
			if s.SeverityScore != nil {
				line += fmt.Sprintf("  severity %.2f", *s.SeverityScore)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// mustLocation falls back to UTC on a bad zone name; display only.
func mustLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func init() {
	statsCmd.Flags().StringVar(&statsScope, "scope", "park", "entity scope: park or attraction")
	statsCmd.Flags().StringVar(&statsPeriod, "period", "day", "period type: day, week, month or year")
	statsCmd.Flags().IntVar(&statsLimit, "limit", 30, "max periods to show")
	rootCmd.AddCommand(statsCmd)
}
