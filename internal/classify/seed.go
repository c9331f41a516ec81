package classify

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/parkpulse/parkpulse/internal/db"
)

// OverrideEntry is one operator-curated tier assignment from a seed file.
type OverrideEntry struct {
	ParkID       int64  `yaml:"park_id"`
	AttractionID int64  `yaml:"attraction_id"`
	Tier         int    `yaml:"tier"`
	Note         string `yaml:"note,omitempty"`
}

type overrideFile struct {
	Overrides []OverrideEntry `yaml:"overrides"`
}

// LoadOverridesFile parses a YAML manual-override seed file.
func LoadOverridesFile(path string) ([]OverrideEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read overrides file %s", path)
	}

	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "classify: parse overrides file %s", path)
	}

	for _, o := range f.Overrides {
		if o.Tier < 1 || o.Tier > 3 {
			return nil, eris.Errorf("classify: override for %d/%d has invalid tier %d",
				o.ParkID, o.AttractionID, o.Tier)
		}
	}
	return f.Overrides, nil
}

// SeedOverrides upserts manual overrides into the override table. Existing
// rows for the same attraction are replaced; overrides are the operator's
// word and take effect on the next resolution.
func SeedOverrides(ctx context.Context, pool db.Pool, entries []OverrideEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(entries))
	for i, o := range entries {
		rows[i] = []any{o.ParkID, o.AttractionID, o.Tier, o.Note}
	}

	return db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "park_data.manual_tier_overrides",
		Columns:      []string{"park_id", "attraction_id", "tier", "note"},
		ConflictKeys: []string{"park_id", "attraction_id"},
	}, rows)
}
