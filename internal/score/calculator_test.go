package score

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testWeights = config.ScoreConfig{TierWeights: map[int]float64{1: 3, 2: 2, 3: 1}}

// recordingRecorder captures quality issues for assertions.
type recordingRecorder struct {
	issues []model.DataQualityIssue
}

func (r *recordingRecorder) Record(_ context.Context, issue model.DataQualityIssue) error {
	r.issues = append(r.issues, issue)
	return nil
}

func tierPtr(t model.Tier) *model.Tier { return &t }

func TestSeverity_TierWeighting(t *testing.T) {
	c := NewCalculator(testWeights, nil)

	// One closed tier-1 (weight 3) against an open tier-3 (weight 1):
	// 3 / 4 * 10 = 7.5.
	got := c.Severity(context.Background(), 1, []Input{
		{AttractionID: 1, Tier: tierPtr(model.Tier1), Open: false, Active: true},
		{AttractionID: 2, Tier: tierPtr(model.Tier3), Open: true, Active: true},
	})
	assert.InDelta(t, 7.5, got, 1e-9)
}

func TestSeverity_Bounds(t *testing.T) {
	c := NewCalculator(testWeights, nil)

	allOpen := c.Severity(context.Background(), 1, []Input{
		{AttractionID: 1, Tier: tierPtr(model.Tier1), Open: true, Active: true},
		{AttractionID: 2, Tier: tierPtr(model.Tier2), Open: true, Active: true},
	})
	assert.Zero(t, allOpen)

	allClosed := c.Severity(context.Background(), 1, []Input{
		{AttractionID: 1, Tier: tierPtr(model.Tier1), Open: false, Active: true},
		{AttractionID: 2, Tier: tierPtr(model.Tier2), Open: false, Active: true},
	})
	assert.InDelta(t, 10.0, allClosed, 1e-9)
}

func TestSeverity_NoClassifiedAttractionsIsZero(t *testing.T) {
	c := NewCalculator(testWeights, nil)

	assert.Zero(t, c.Severity(context.Background(), 1, nil))
	assert.Zero(t, c.Severity(context.Background(), 1, []Input{
		{AttractionID: 1, Tier: nil, Open: false, Active: true},
	}))
}

func TestSeverity_UnclassifiedExcludedAndRecorded(t *testing.T) {
	rec := &recordingRecorder{}
	c := NewCalculator(testWeights, rec)

	// The unclassified closed attraction must not move the score.
	got := c.Severity(context.Background(), 7, []Input{
		{AttractionID: 1, Tier: tierPtr(model.Tier1), Open: false, Active: true},
		{AttractionID: 2, Tier: tierPtr(model.Tier3), Open: true, Active: true},
		{AttractionID: 3, Tier: nil, Open: false, Active: true},
	})
	assert.InDelta(t, 7.5, got, 1e-9)

	assert.Len(t, rec.issues, 1)
	issue := rec.issues[0]
	assert.Equal(t, model.IssueMissingClassification, issue.Kind)
	assert.Equal(t, int64(7), *issue.ParkID)
	assert.Equal(t, int64(3), *issue.AttractionID)
}

func TestSeverity_InactiveSkippedSilently(t *testing.T) {
	rec := &recordingRecorder{}
	c := NewCalculator(testWeights, rec)

	got := c.Severity(context.Background(), 1, []Input{
		{AttractionID: 1, Tier: tierPtr(model.Tier1), Open: false, Active: true},
		{AttractionID: 2, Tier: nil, Open: false, Active: false},
	})
	assert.InDelta(t, 10.0, got, 1e-9)
	assert.Empty(t, rec.issues, "inactive attractions must not record issues")
}
