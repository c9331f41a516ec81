package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/parkpulse/parkpulse/internal/model"
)

// Keyword rules over attraction names. Deterministic and free, so this tier
// runs before any AI call. Tier 1 keywords mark headline thrill rides;
// tier 3 keywords mark minor/children's attractions. Names matching neither
// fall through to the AI tier.
var tier1Keywords = []string{
	"coaster", "mountain", "space", "hyper", "launch", "tower of terror",
	"kraken", "leviathan", "behemoth", "goliath", "titan", "fury",
}

var tier3Keywords = []string{
	"kiddie", "carousel", "carrousel", "theater", "theatre", "playground",
	"junior", "tea party", "teacups", "story time", "meet and greet",
}

// patternConfidence is high enough to promote matches into the cache.
const patternConfidence = 0.9

type patternResolver struct{}

// NewPatternResolver creates the keyword-rule resolver.
func NewPatternResolver() Resolver {
	return patternResolver{}
}

func (patternResolver) Name() string { return "pattern" }

func (patternResolver) Resolve(_ context.Context, key Key, attraction model.Attraction, _ string) (*model.ClassificationRecord, error) {
	name := strings.ToLower(attraction.Name)

	// Tier 3 rules first: "kiddie coaster" is a children's ride, not a
	// flagship one.
	for _, kw := range tier3Keywords {
		if strings.Contains(name, kw) {
			return patternRecord(key, model.Tier3, kw), nil
		}
	}
	for _, kw := range tier1Keywords {
		if strings.Contains(name, kw) {
			return patternRecord(key, model.Tier1, kw), nil
		}
	}
	return nil, nil
}

func patternRecord(key Key, tier model.Tier, keyword string) *model.ClassificationRecord {
	return &model.ClassificationRecord{
		ParkID:       key.ParkID,
		AttractionID: key.AttractionID,
		Tier:         tier,
		Confidence:   patternConfidence,
		Source:       model.SourcePattern,
		Rationale:    fmt.Sprintf("name matched keyword %q", keyword),
	}
}
