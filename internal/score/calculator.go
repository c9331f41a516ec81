// Package score computes the severity score: the single authoritative 0-10
// measure of how much of a park's tier-weighted capacity is closed. Scores
// are computed exactly once at write time and stored; readers never
// recompute them.
package score

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/quality"
)

// Input is one attraction's contribution to a park score.
type Input struct {
	AttractionID int64
	Tier         *model.Tier
	Open         bool
	Active       bool
}

// Calculator applies the configured tier weights. Weights are fixed per
// deployment; every stored score in a database was produced by one weight
// set.
type Calculator struct {
	cfg    config.ScoreConfig
	issues quality.Recorder
	log    *zap.Logger
}

// NewCalculator creates a calculator. The quality recorder may be nil when
// exclusion logging is not wanted (tests).
func NewCalculator(cfg config.ScoreConfig, issues quality.Recorder) *Calculator {
	return &Calculator{
		cfg:    cfg,
		issues: issues,
		log:    zap.L().With(zap.String("component", "score")),
	}
}

// Severity returns the park's severity score for the given attraction states:
// sum of closed attraction weights over the sum of all classified, active
// attraction weights, scaled to 0-10. Attractions without a resolved tier are
// excluded from both sums and logged as a quality issue; inactive attractions
// are skipped silently.
func (c *Calculator) Severity(ctx context.Context, parkID int64, attractions []Input) float64 {
	var closedWeight, totalWeight float64

	for _, a := range attractions {
		if !a.Active {
			continue
		}
		if a.Tier == nil {
			c.logExclusion(ctx, parkID, a.AttractionID)
			continue
		}

		w := c.cfg.Weight(*a.Tier)
		totalWeight += w
		if !a.Open {
			closedWeight += w
		}
	}

	if totalWeight == 0 {
		return 0
	}
	return closedWeight / totalWeight * 10
}

func (c *Calculator) logExclusion(ctx context.Context, parkID, attractionID int64) {
	c.log.Debug("excluding unclassified attraction from score",
		zap.Int64("park_id", parkID),
		zap.Int64("attraction_id", attractionID),
	)
	if c.issues == nil {
		return
	}
	_ = c.issues.Record(ctx, model.DataQualityIssue{
		SourceSystem: "score",
		Kind:         model.IssueMissingClassification,
		ParkID:       &parkID,
		AttractionID: &attractionID,
		Details:      fmt.Sprintf("attraction %d has no resolved tier; excluded from severity score", attractionID),
	})
}
