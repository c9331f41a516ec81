package classify

import (
	"context"
	"time"

	"github.com/parkpulse/parkpulse/internal/model"
)

// CacheEntry is one promoted classification result. Entries carry the schema
// version they were written under; lookups filter on the current version so
// a format change invalidates stale entries without deleting them.
type CacheEntry struct {
	Key           Key
	SchemaVersion int
	Tier          model.Tier
	Confidence    float64
	Rationale     string
	CachedAt      time.Time
}

// Cache is the durable key-value store behind the cached-exact-match tier.
// Implementations: Postgres (shared deployments) and SQLite (local runs).
type Cache interface {
	// Get returns the entry for key at the given schema version, or nil.
	Get(ctx context.Context, key Key, schemaVersion int) (*CacheEntry, error)
	// Put stores or overwrites the entry for its key and schema version.
	Put(ctx context.Context, entry CacheEntry) error
	Close() error
}

// cacheResolver adapts a Cache into the resolver chain.
type cacheResolver struct {
	cache         Cache
	schemaVersion int
}

// NewCacheResolver creates the cached-exact-match resolver.
func NewCacheResolver(cache Cache, schemaVersion int) Resolver {
	return &cacheResolver{cache: cache, schemaVersion: schemaVersion}
}

func (r *cacheResolver) Name() string { return "cache" }

func (r *cacheResolver) Resolve(ctx context.Context, key Key, _ model.Attraction, _ string) (*model.ClassificationRecord, error) {
	entry, err := r.cache.Get(ctx, key, r.schemaVersion)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	return &model.ClassificationRecord{
		ParkID:        key.ParkID,
		AttractionID:  key.AttractionID,
		Tier:          entry.Tier,
		Confidence:    entry.Confidence,
		Source:        model.SourceCached,
		SchemaVersion: entry.SchemaVersion,
		Rationale:     entry.Rationale,
	}, nil
}
