package collector

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/pkg/queuetimes"
)

// Syncer refreshes the park and attraction catalog from the upstream API.
type Syncer struct {
	qt      queuetimes.Client
	catalog *Catalog
	log     *zap.Logger
}

// NewSyncer creates a catalog syncer.
func NewSyncer(qt queuetimes.Client, catalog *Catalog) *Syncer {
	return &Syncer{
		qt:      qt,
		catalog: catalog,
		log:     zap.L().With(zap.String("component", "collector.sync")),
	}
}

// SyncSummary reports one catalog sync.
type SyncSummary struct {
	Parks       int
	Attractions int64
	Deactivated int64
}

// Sync upserts parks and their attractions. parkIDs restricts the sync to
// those upstream IDs; empty syncs every park the API lists.
func (s *Syncer) Sync(ctx context.Context, parkIDs []int64) (SyncSummary, error) {
	var sum SyncSummary

	groups, err := s.qt.Parks(ctx)
	if err != nil {
		return sum, err
	}

	want := make(map[int64]bool, len(parkIDs))
	for _, id := range parkIDs {
		want[id] = true
	}

	var parks []model.Park
	for _, g := range groups {
		for _, p := range g.Parks {
			if len(want) > 0 && !want[p.ID] {
				continue
			}
			park := model.Park{ID: p.ID, Name: p.Name, Timezone: p.Timezone, Active: true}
			if lat, lon, ok := p.Coords(); ok {
				park.Latitude = &lat
				park.Longitude = &lon
			}
			parks = append(parks, park)
		}
	}

	if _, err := s.catalog.UpsertParks(ctx, parks); err != nil {
		return sum, err
	}
	if err := s.catalog.SetParksActive(ctx, parkIDs); err != nil {
		return sum, err
	}
	sum.Parks = len(parks)

	var attractions, deactivated atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, park := range parks {
		g.Go(func() error {
			queue, err := s.qt.QueueTimes(gCtx, park.ID)
			if err != nil {
				return err
			}

			rides := queue.AllRides()
			items := make([]model.Attraction, 0, len(rides))
			seen := make([]int64, 0, len(rides))
			for _, ride := range rides {
				items = append(items, model.Attraction{ID: ride.ID, ParkID: park.ID, Name: ride.Name, Active: true})
				seen = append(seen, ride.ID)
			}

			n, err := s.catalog.UpsertAttractions(gCtx, items)
			if err != nil {
				return err
			}
			attractions.Add(n)

			gone, err := s.catalog.DeactivateMissingAttractions(gCtx, park.ID, seen)
			if err != nil {
				return err
			}
			deactivated.Add(gone)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	sum.Attractions = attractions.Load()
	sum.Deactivated = deactivated.Load()
	s.log.Info("catalog synced",
		zap.Int("parks", sum.Parks),
		zap.Int64("attractions", sum.Attractions),
		zap.Int64("deactivated", sum.Deactivated),
	)
	return sum, nil
}
