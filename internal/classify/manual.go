package classify

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// manualResolver reads operator-curated overrides. Always the first tier:
// an override wins over every other source and never expires.
type manualResolver struct {
	pool db.Pool
}

// NewManualResolver creates the manual-override resolver.
func NewManualResolver(pool db.Pool) Resolver {
	return &manualResolver{pool: pool}
}

func (r *manualResolver) Name() string { return "manual" }

func (r *manualResolver) Resolve(ctx context.Context, key Key, _ model.Attraction, _ string) (*model.ClassificationRecord, error) {
	var tier int
	var note *string
	err := r.pool.QueryRow(ctx,
		`SELECT tier, note FROM park_data.manual_tier_overrides
		 WHERE park_id = $1 AND attraction_id = $2`,
		key.ParkID, key.AttractionID,
	).Scan(&tier, &note)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "classify: manual lookup for %s", key)
	}

	rec := &model.ClassificationRecord{
		ParkID:       key.ParkID,
		AttractionID: key.AttractionID,
		Tier:         model.Tier(tier),
		Confidence:   1.0,
		Source:       model.SourceManual,
	}
	if note != nil {
		rec.Rationale = *note
	}
	return rec, nil
}
