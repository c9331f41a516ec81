package classify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/model"
)

var testClassifyCfg = config.ClassifyConfig{
	SchemaVersion:    2,
	PromoteThreshold: 0.85,
	ReviewThreshold:  0.5,
	Workers:          2,
}

// memCache is an in-memory Cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]CacheEntry)}
}

func (c *memCache) cacheKey(key Key, version int) string {
	return fmt.Sprintf("%s@%d", key, version)
}

func (c *memCache) Get(_ context.Context, key Key, schemaVersion int) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[c.cacheKey(key, schemaVersion)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *memCache) Put(_ context.Context, entry CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.cacheKey(entry.Key, entry.SchemaVersion)] = entry
	return nil
}

func (c *memCache) Close() error { return nil }

// memRecordStore is an in-memory RecordStore.
type memRecordStore struct {
	mu      sync.Mutex
	records map[Key]model.ClassificationRecord
	tiers   map[int64]model.Tier
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{
		records: make(map[Key]model.ClassificationRecord),
		tiers:   make(map[int64]model.Tier),
	}
}

func (s *memRecordStore) UpsertRecord(_ context.Context, rec model.ClassificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[Key{ParkID: rec.ParkID, AttractionID: rec.AttractionID}] = rec
	return nil
}

func (s *memRecordStore) SetAttractionTier(_ context.Context, attractionID int64, tier model.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[attractionID] = tier
	return nil
}

// stubAI is a scripted AI resolver that counts calls.
type stubAI struct {
	mu         sync.Mutex
	calls      int
	tier       model.Tier
	confidence float64
}

func (s *stubAI) Name() string { return "ai" }

func (s *stubAI) Resolve(_ context.Context, key Key, _ model.Attraction, _ string) (*model.ClassificationRecord, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &model.ClassificationRecord{
		ParkID:       key.ParkID,
		AttractionID: key.AttractionID,
		Tier:         s.tier,
		Confidence:   s.confidence,
		Source:       model.SourceAI,
		Rationale:    "stubbed",
	}, nil
}

// slowAI blocks every call until released, counting how many were made.
type slowAI struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (s *slowAI) Name() string { return "ai" }

func (s *slowAI) Resolve(_ context.Context, key Key, _ model.Attraction, _ string) (*model.ClassificationRecord, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-s.release
	return &model.ClassificationRecord{
		ParkID:       key.ParkID,
		AttractionID: key.AttractionID,
		Tier:         model.Tier2,
		Confidence:   0.9,
		Source:       model.SourceAI,
		Rationale:    "stubbed",
	}, nil
}

func testAttraction(id int64) model.Attraction {
	return model.Attraction{ID: id, ParkID: 1, Name: fmt.Sprintf("Attraction %d", id), Active: true}
}

func TestEngine_ManualWinsWithoutAICall(t *testing.T) {
	ai := &stubAI{tier: model.Tier2, confidence: 0.9}
	store := newMemRecordStore()

	manual := Resolver(resolverFunc{name: "manual", fn: func(key Key) *model.ClassificationRecord {
		return &model.ClassificationRecord{
			ParkID: key.ParkID, AttractionID: key.AttractionID,
			Tier: model.Tier1, Confidence: 1.0, Source: model.SourceManual,
		}
	}})

	e := NewEngine([]Resolver{manual}, ai, newMemCache(), store, testClassifyCfg)

	rec, err := e.Resolve(context.Background(), testAttraction(10), "Testland")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.SourceManual, rec.Source)
	assert.Equal(t, model.Tier1, rec.Tier)
	assert.Zero(t, ai.calls, "manual hit must not reach the AI tier")
	assert.Equal(t, model.Tier1, store.tiers[10])
}

// resolverFunc adapts a function into a Resolver for tests.
type resolverFunc struct {
	name string
	fn   func(key Key) *model.ClassificationRecord
}

func (r resolverFunc) Name() string { return r.name }

func (r resolverFunc) Resolve(_ context.Context, key Key, _ model.Attraction, _ string) (*model.ClassificationRecord, error) {
	return r.fn(key), nil
}

func TestEngine_ConfidentAIPromotedToCache(t *testing.T) {
	ai := &stubAI{tier: model.Tier2, confidence: 0.92}
	cache := newMemCache()
	store := newMemRecordStore()
	e := NewEngine([]Resolver{NewCacheResolver(cache, testClassifyCfg.SchemaVersion)}, ai, cache, store, testClassifyCfg)

	rec, err := e.Resolve(context.Background(), testAttraction(20), "Testland")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.SourceAI, rec.Source)
	assert.Equal(t, 1, ai.calls)
	assert.Equal(t, model.Tier2, store.tiers[20])

	// Second resolution hits the cache; the AI tier is not consulted again.
	rec2, err := e.Resolve(context.Background(), testAttraction(20), "Testland")
	require.NoError(t, err)
	require.NotNil(t, rec2)
	assert.Equal(t, model.SourceCached, rec2.Source)
	assert.Equal(t, model.Tier2, rec2.Tier)
	assert.Equal(t, 1, ai.calls)
}

func TestEngine_LowConfidenceFlaggedNotCachedNoTier(t *testing.T) {
	ai := &stubAI{tier: model.Tier3, confidence: 0.3}
	cache := newMemCache()
	store := newMemRecordStore()
	e := NewEngine([]Resolver{NewCacheResolver(cache, testClassifyCfg.SchemaVersion)}, ai, cache, store, testClassifyCfg)

	rec, err := e.Resolve(context.Background(), testAttraction(30), "Testland")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.NeedsReview)

	assert.Empty(t, cache.entries, "flagged results must never be cached")
	stored := store.records[Key{ParkID: 1, AttractionID: 30}]
	assert.True(t, stored.NeedsReview, "flagged result must land in the review queue")
	_, hasTier := store.tiers[30]
	assert.False(t, hasTier, "flagged result must not assign a tier")
}

func TestEngine_MidConfidenceAssignedButNotCached(t *testing.T) {
	ai := &stubAI{tier: model.Tier2, confidence: 0.7}
	cache := newMemCache()
	store := newMemRecordStore()
	e := NewEngine([]Resolver{NewCacheResolver(cache, testClassifyCfg.SchemaVersion)}, ai, cache, store, testClassifyCfg)

	rec, err := e.Resolve(context.Background(), testAttraction(40), "Testland")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.NeedsReview)
	assert.Equal(t, model.Tier2, store.tiers[40])
	assert.Empty(t, cache.entries, "below the promote threshold nothing is cached")
}

func TestEngine_SchemaVersionMissesStaleCache(t *testing.T) {
	ai := &stubAI{tier: model.Tier1, confidence: 0.95}
	cache := newMemCache()
	// Entry written under an older schema version must not satisfy lookups.
	_ = cache.Put(context.Background(), CacheEntry{
		Key: Key{ParkID: 1, AttractionID: 50}, SchemaVersion: 1,
		Tier: model.Tier3, Confidence: 0.9,
	})
	store := newMemRecordStore()
	e := NewEngine([]Resolver{NewCacheResolver(cache, testClassifyCfg.SchemaVersion)}, ai, cache, store, testClassifyCfg)

	rec, err := e.Resolve(context.Background(), testAttraction(50), "Testland")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.SourceAI, rec.Source, "stale schema version must fall through to AI")
	assert.Equal(t, 1, ai.calls)
}

func TestEngine_ResolveBatchCounts(t *testing.T) {
	ai := &stubAI{tier: model.Tier2, confidence: 0.9}
	cache := newMemCache()
	store := newMemRecordStore()
	e := NewEngine([]Resolver{NewPatternResolver()}, ai, cache, store, testClassifyCfg)

	items := []Unclassified{
		{Attraction: model.Attraction{ID: 1, ParkID: 1, Name: "Thunder Coaster", Active: true}, ParkName: "Testland"},
		{Attraction: model.Attraction{ID: 2, ParkID: 1, Name: "Haunted Mansion", Active: true}, ParkName: "Testland"},
		{Attraction: model.Attraction{ID: 3, ParkID: 1, Name: "Grand Carousel", Active: true}, ParkName: "Testland"},
	}

	result, err := e.ResolveBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Resolved)
	assert.Zero(t, result.Review)
	assert.Zero(t, result.Unresolved)
	assert.Zero(t, result.Failed)
	// Only the non-pattern name reaches the AI tier.
	assert.Equal(t, 1, ai.calls)

	assert.Equal(t, model.Tier1, store.tiers[1])
	assert.Equal(t, model.Tier2, store.tiers[2])
	assert.Equal(t, model.Tier3, store.tiers[3])
}

func TestEngine_ResolveBatchWithoutAILeavesUnresolved(t *testing.T) {
	store := newMemRecordStore()
	e := NewEngine([]Resolver{NewPatternResolver()}, nil, newMemCache(), store, testClassifyCfg)

	items := []Unclassified{
		{Attraction: model.Attraction{ID: 1, ParkID: 1, Name: "Haunted Mansion", Active: true}, ParkName: "Testland"},
	}

	result, err := e.ResolveBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unresolved)
	assert.Zero(t, result.Resolved)
}

func TestEngine_ConcurrentResolveSharesOneAICall(t *testing.T) {
	ai := &slowAI{release: make(chan struct{})}
	cache := newMemCache()
	store := newMemRecordStore()
	e := NewEngine([]Resolver{NewCacheResolver(cache, testClassifyCfg.SchemaVersion)}, ai, cache, store, testClassifyCfg)

	const callers = 8
	recs := make([]*model.ClassificationRecord, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs[i], errs[i] = e.Resolve(context.Background(), testAttraction(60), "Testland")
		}()
	}

	// Give every caller time to join the in-flight resolution, then let the
	// single call finish.
	time.Sleep(50 * time.Millisecond)
	close(ai.release)
	wg.Wait()

	ai.mu.Lock()
	calls := ai.calls
	ai.mu.Unlock()
	assert.Equal(t, 1, calls, "concurrent resolutions of one key must share one call")

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, recs[i])
		assert.Equal(t, model.Tier2, recs[i].Tier)
	}
	assert.Equal(t, model.Tier2, store.tiers[60])
}
