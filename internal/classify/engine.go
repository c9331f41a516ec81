package classify

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/parkpulse/parkpulse/internal/config"
	"github.com/parkpulse/parkpulse/internal/model"
)

// RecordStore is the persistence surface the engine writes through.
type RecordStore interface {
	UpsertRecord(ctx context.Context, rec model.ClassificationRecord) error
	SetAttractionTier(ctx context.Context, attractionID int64, tier model.Tier) error
}

// Engine resolves attraction tiers through the ordered resolver chain.
// Cheap tiers (manual, cache, pattern) run sequentially; the AI fallback is
// rate limited and deduplicated per key, so two concurrent resolutions of
// the same attraction share one call.
type Engine struct {
	cheap []Resolver
	ai    Resolver
	cache Cache
	store RecordStore
	cfg   config.ClassifyConfig
	group singleflight.Group
	log   *zap.Logger
}

// NewEngine assembles the engine. ai may be nil when no API key is
// configured; unresolved attractions then stay unclassified.
func NewEngine(cheap []Resolver, ai Resolver, cache Cache, store RecordStore, cfg config.ClassifyConfig) *Engine {
	return &Engine{
		cheap: cheap,
		ai:    ai,
		cache: cache,
		store: store,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "classify.engine")),
	}
}

// Resolve classifies one attraction and persists the outcome. Returns nil
// when no tier of authority had an answer. Concurrent calls for the same
// attraction key share a single resolution.
func (e *Engine) Resolve(ctx context.Context, attraction model.Attraction, parkName string) (*model.ClassificationRecord, error) {
	key := Key{ParkID: attraction.ParkID, AttractionID: attraction.ID}

	v, err, _ := e.group.Do(key.String(), func() (any, error) {
		return e.resolve(ctx, key, attraction, parkName)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*model.ClassificationRecord), nil
}

func (e *Engine) resolve(ctx context.Context, key Key, attraction model.Attraction, parkName string) (*model.ClassificationRecord, error) {
	rec, err := e.resolveChain(ctx, key, attraction, parkName)
	if err != nil || rec == nil {
		return rec, err
	}

	rec.SchemaVersion = e.cfg.SchemaVersion
	if rec.Source == model.SourceAI && rec.Confidence < e.cfg.ReviewThreshold {
		rec.NeedsReview = true
	}

	// Promote confident AI and pattern results so future lookups skip the
	// expensive tier. Reviewed results are never cached as authoritative.
	if e.cache != nil && !rec.NeedsReview &&
		(rec.Source == model.SourceAI || rec.Source == model.SourcePattern) &&
		rec.Confidence >= e.cfg.PromoteThreshold {
		entry := CacheEntry{
			Key:           key,
			SchemaVersion: e.cfg.SchemaVersion,
			Tier:          rec.Tier,
			Confidence:    rec.Confidence,
			Rationale:     rec.Rationale,
		}
		if err := e.cache.Put(ctx, entry); err != nil {
			e.log.Warn("cache promotion failed", zap.String("key", key.String()), zap.Error(err))
		}
	}

	if err := e.store.UpsertRecord(ctx, *rec); err != nil {
		return nil, err
	}
	// A flagged result is recorded for the review queue but does not assign
	// a tier; the attraction stays out of severity scoring until reviewed.
	if !rec.NeedsReview {
		if err := e.store.SetAttractionTier(ctx, key.AttractionID, rec.Tier); err != nil {
			return nil, err
		}
	}

	e.log.Info("classified attraction",
		zap.String("key", key.String()),
		zap.String("attraction", attraction.Name),
		zap.Int("tier", int(rec.Tier)),
		zap.Float64("confidence", rec.Confidence),
		zap.String("source", string(rec.Source)),
		zap.Bool("needs_review", rec.NeedsReview),
	)
	return rec, nil
}

func (e *Engine) resolveChain(ctx context.Context, key Key, attraction model.Attraction, parkName string) (*model.ClassificationRecord, error) {
	for _, r := range e.cheap {
		rec, err := r.Resolve(ctx, key, attraction, parkName)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
	if e.ai == nil {
		return nil, nil
	}
	return e.ai.Resolve(ctx, key, attraction, parkName)
}

// BatchResult summarizes one ResolveBatch run.
type BatchResult struct {
	Resolved   int
	Review     int
	Unresolved int
	Failed     int
}

// ResolveBatch classifies many attractions. Cheap tiers run sequentially;
// items that fall through to the AI tier are dispatched under a bounded
// worker pool. Individual failures are counted, not fatal.
func (e *Engine) ResolveBatch(ctx context.Context, items []Unclassified) (BatchResult, error) {
	var result BatchResult
	var needAI []Unclassified

	for _, item := range items {
		key := Key{ParkID: item.Attraction.ParkID, AttractionID: item.Attraction.ID}
		rec, err := e.resolveCheapOnly(ctx, key, item)
		if err != nil {
			e.log.Warn("cheap resolution failed", zap.String("key", key.String()), zap.Error(err))
			result.Failed++
			continue
		}
		if rec == nil {
			needAI = append(needAI, item)
			continue
		}
		result.Resolved++
	}

	if len(needAI) == 0 || e.ai == nil {
		result.Unresolved += len(needAI)
		return result, ctx.Err()
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	counts := make([]BatchResult, len(needAI))
	for i, item := range needAI {
		g.Go(func() error {
			rec, err := e.Resolve(gCtx, item.Attraction, item.ParkName)
			switch {
			case err != nil:
				e.log.Warn("ai resolution failed",
					zap.String("attraction", item.Attraction.Name),
					zap.Error(err),
				)
				counts[i].Failed++
			case rec == nil:
				counts[i].Unresolved++
			case rec.NeedsReview:
				counts[i].Review++
			default:
				counts[i].Resolved++
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range counts {
		result.Resolved += c.Resolved
		result.Review += c.Review
		result.Unresolved += c.Unresolved
		result.Failed += c.Failed
	}
	return result, ctx.Err()
}

// resolveCheapOnly runs the chain without the AI tier, persisting any hit.
func (e *Engine) resolveCheapOnly(ctx context.Context, key Key, item Unclassified) (*model.ClassificationRecord, error) {
	for _, r := range e.cheap {
		rec, err := r.Resolve(ctx, key, item.Attraction, item.ParkName)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}

		rec.SchemaVersion = e.cfg.SchemaVersion
		if e.cache != nil && rec.Source == model.SourcePattern && rec.Confidence >= e.cfg.PromoteThreshold {
			entry := CacheEntry{
				Key:           key,
				SchemaVersion: e.cfg.SchemaVersion,
				Tier:          rec.Tier,
				Confidence:    rec.Confidence,
				Rationale:     rec.Rationale,
			}
			if err := e.cache.Put(ctx, entry); err != nil {
				e.log.Warn("cache promotion failed", zap.String("key", key.String()), zap.Error(err))
			}
		}
		if err := e.store.UpsertRecord(ctx, *rec); err != nil {
			return nil, err
		}
		if err := e.store.SetAttractionTier(ctx, key.AttractionID, rec.Tier); err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, nil
}
