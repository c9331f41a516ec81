package classify

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// Store persists classification outcomes and the attraction tier column the
// rest of the pipeline reads.
type Store struct {
	pool db.Pool
}

// NewStore creates a classification store backed by the given pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertRecord writes the latest classification for an attraction. An
// existing manual record is never overwritten by a non-manual one.
func (s *Store) UpsertRecord(ctx context.Context, rec model.ClassificationRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO park_data.classification_records
		 (park_id, attraction_id, tier, confidence, source, schema_version, rationale, needs_review, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (park_id, attraction_id) DO UPDATE
		 SET tier = EXCLUDED.tier, confidence = EXCLUDED.confidence,
		     source = EXCLUDED.source, schema_version = EXCLUDED.schema_version,
		     rationale = EXCLUDED.rationale, needs_review = EXCLUDED.needs_review,
		     created_at = now()
		 WHERE park_data.classification_records.source <> 'manual'
		    OR EXCLUDED.source = 'manual'`,
		rec.ParkID, rec.AttractionID, int(rec.Tier), rec.Confidence, string(rec.Source),
		rec.SchemaVersion, rec.Rationale, rec.NeedsReview,
	)
	if err != nil {
		return eris.Wrapf(err, "classify: upsert record for %d/%d", rec.ParkID, rec.AttractionID)
	}
	return nil
}

// SetAttractionTier updates the tier column the collector and scorer read.
func (s *Store) SetAttractionTier(ctx context.Context, attractionID int64, tier model.Tier) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE park_data.attractions SET tier = $1, updated_at = now() WHERE id = $2`,
		int(tier), attractionID,
	)
	if err != nil {
		return eris.Wrapf(err, "classify: set tier for attraction %d", attractionID)
	}
	return nil
}

// Unclassified is one attraction awaiting a tier, with the park context the
// AI tier wants.
type Unclassified struct {
	Attraction model.Attraction
	ParkName   string
}

// ListUnclassified returns active attractions without a resolved tier.
func (s *Store) ListUnclassified(ctx context.Context, limit int) ([]Unclassified, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.park_id, a.name, p.name
		 FROM park_data.attractions a
		 JOIN park_data.parks p ON p.id = a.park_id
		 WHERE a.tier IS NULL AND a.active
		 ORDER BY a.id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "classify: list unclassified")
	}
	defer rows.Close()

	var out []Unclassified
	for rows.Next() {
		var u Unclassified
		if err := rows.Scan(&u.Attraction.ID, &u.Attraction.ParkID, &u.Attraction.Name, &u.ParkName); err != nil {
			return nil, eris.Wrap(err, "classify: scan unclassified")
		}
		u.Attraction.Active = true
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListReviewQueue returns records flagged for human review, newest first.
func (s *Store) ListReviewQueue(ctx context.Context, limit int) ([]model.ClassificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT park_id, attraction_id, tier, confidence, source, schema_version, rationale, needs_review, created_at
		 FROM park_data.classification_records
		 WHERE needs_review ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "classify: list review queue")
	}
	defer rows.Close()

	var out []model.ClassificationRecord
	for rows.Next() {
		var rec model.ClassificationRecord
		var tier int
		var source string
		if err := rows.Scan(&rec.ParkID, &rec.AttractionID, &tier, &rec.Confidence, &source,
			&rec.SchemaVersion, &rec.Rationale, &rec.NeedsReview, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "classify: scan review record")
		}
		rec.Tier = model.Tier(tier)
		rec.Source = model.ClassificationSource(source)
		out = append(out, rec)
	}
	return out, rows.Err()
}
