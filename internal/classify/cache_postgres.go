package classify

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/model"
)

// PGCache is the Postgres-backed classification cache.
type PGCache struct {
	pool db.Pool
}

// NewPGCache creates a cache backed by park_data.classification_cache.
func NewPGCache(pool db.Pool) *PGCache {
	return &PGCache{pool: pool}
}

func (c *PGCache) Get(ctx context.Context, key Key, schemaVersion int) (*CacheEntry, error) {
	entry := CacheEntry{Key: key, SchemaVersion: schemaVersion}
	var tier int
	var rationale *string
	err := c.pool.QueryRow(ctx,
		`SELECT tier, confidence, rationale, cached_at
		 FROM park_data.classification_cache
		 WHERE park_id = $1 AND attraction_id = $2 AND schema_version = $3`,
		key.ParkID, key.AttractionID, schemaVersion,
	).Scan(&tier, &entry.Confidence, &rationale, &entry.CachedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "classify: cache lookup for %s", key)
	}

	entry.Tier = model.Tier(tier)
	if !entry.Tier.Valid() {
		return nil, eris.Errorf("classify: cache row for %s has invalid tier %d", key, tier)
	}
	if rationale != nil {
		entry.Rationale = *rationale
	}
	return &entry, nil
}

func (c *PGCache) Put(ctx context.Context, entry CacheEntry) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO park_data.classification_cache
		 (park_id, attraction_id, schema_version, tier, confidence, rationale, cached_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (park_id, attraction_id, schema_version)
		 DO UPDATE SET tier = EXCLUDED.tier, confidence = EXCLUDED.confidence,
		               rationale = EXCLUDED.rationale, cached_at = now()`,
		entry.Key.ParkID, entry.Key.AttractionID, entry.SchemaVersion,
		int(entry.Tier), entry.Confidence, entry.Rationale,
	)
	if err != nil {
		return eris.Wrapf(err, "classify: cache put for %s", entry.Key)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (c *PGCache) Close() error { return nil }
