package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/classify"
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/pkg/anthropic"
)

var (
	classifyLimit    int
	classifySeedFile string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Resolve attraction tiers",
	Long: `Classify unclassified attractions through the tier chain:
manual override, versioned cache, name patterns, then the AI fallback.

Without an Anthropic API key the AI tier is skipped and pattern misses stay
unclassified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		engine, cache, err := buildEngine(pool)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		store := classify.NewStore(pool)
		items, err := store.ListUnclassified(ctx, classifyLimit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Nothing to classify")
			return nil
		}

		result, err := engine.ResolveBatch(ctx, items)
		if err != nil {
			return err
		}
		fmt.Printf("Classified %d attractions: %d resolved, %d flagged for review, %d unresolved, %d failed\n",
			len(items), result.Resolved, result.Review, result.Unresolved, result.Failed)
		return nil
	},
}

var classifySeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load manual tier overrides from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		entries, err := classify.LoadOverridesFile(classifySeedFile)
		if err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := classify.SeedOverrides(ctx, pool, entries)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d manual overrides\n", n)
		return nil
	},
}

var classifyReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List classifications flagged for human review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		records, err := classify.NewStore(pool).ListReviewQueue(ctx, classifyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("Review queue is empty")
			return nil
		}

		for _, rec := range records {
			fmt.Printf("park %d attraction %d: tier %d (confidence %.2f) %s\n",
				rec.ParkID, rec.AttractionID, rec.Tier, rec.Confidence, rec.Rationale)
		}
		return nil
	},
}

// buildEngine wires the resolver chain from config. The caller owns the
// returned cache.
func buildEngine(pool db.Pool) (*classify.Engine, classify.Cache, error) {
	var cache classify.Cache
	switch cfg.Classify.CacheDriver {
	case "", "postgres":
		cache = classify.NewPGCache(pool)
	case "sqlite":
		c, err := classify.NewSQLiteCache(cfg.Classify.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cache = c
	default:
		return nil, nil, eris.Errorf("unknown classify cache driver %q", cfg.Classify.CacheDriver)
	}

	cheap := []classify.Resolver{
		classify.NewManualResolver(pool),
		classify.NewCacheResolver(cache, cfg.Classify.SchemaVersion),
		classify.NewPatternResolver(),
	}

	var ai classify.Resolver
	if cfg.Anthropic.Key != "" {
		ai = classify.NewAIResolver(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
	} else {
		zap.L().Warn("no anthropic key configured, AI tier disabled")
	}

	return classify.NewEngine(cheap, ai, cache, classify.NewStore(pool), cfg.Classify), cache, nil
}

func init() {
	classifyCmd.Flags().IntVar(&classifyLimit, "limit", 500, "max attractions to process")
	classifySeedCmd.Flags().StringVar(&classifySeedFile, "file", "", "YAML overrides file")
	_ = classifySeedCmd.MarkFlagRequired("file")
	classifyCmd.AddCommand(classifySeedCmd)
	classifyCmd.AddCommand(classifyReviewCmd)
	rootCmd.AddCommand(classifyCmd)
}
