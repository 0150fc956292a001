package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmcloughlin/geohash"

	"realestate-ingest/geocode"
	"realestate-ingest/layout"
	"realestate-ingest/models"
	"realestate-ingest/utils"
)

// CoordinateStore is the persistence the backfill needs: the buildings still
// on fallback coordinates, and a way to write back an upgraded position.
type CoordinateStore interface {
	FetchFallbackBuildings(ctx context.Context) ([]*models.Building, error)
	UpdateCoordinates(ctx context.Context, b *models.Building) error
}

// BackfillResult summarizes one backfill pass.
type BackfillResult struct {
	Candidates int
	Addresses  int
	Resolved   int
	Updated    int
	Failed     int
}

// Backfiller re-geocodes buildings that were stored with fallback
// coordinates. Geocoder calls go through a single-worker pool, so they are
// serialized with a fixed minimum delay between them.
type Backfiller struct {
	store       CoordinateStore
	resolver    *geocode.Resolver
	walking     *WalkingEstimator
	pois        PointsOfInterest
	rateLimitMs int
	logger      *utils.Logger
}

// NewBackfiller wires a Backfiller. Walking times are recomputed from the
// registry's points of interest for every upgraded building.
func NewBackfiller(store CoordinateStore, resolver *geocode.Resolver, walking *WalkingEstimator, registry *layout.Registry, rateLimitMs int, logger *utils.Logger) *Backfiller {
	return &Backfiller{
		store:    store,
		resolver: resolver,
		walking:  walking,
		pois: PointsOfInterest{
			Schools:  registry.POIs(layout.POISchool),
			Stations: registry.POIs(layout.POIStation),
		},
		rateLimitMs: rateLimitMs,
		logger:      logger,
	}
}

// Run performs one pass. Each distinct address is geocoded once and every
// building at that address is updated.
func (b *Backfiller) Run(ctx context.Context) (BackfillResult, error) {
	var res BackfillResult

	candidates, err := b.store.FetchFallbackBuildings(ctx)
	if err != nil {
		return res, fmt.Errorf("backfill: %w", err)
	}
	res.Candidates = len(candidates)
	if !b.resolver.Enabled() {
		b.logger.Warn("[backfill] No geocoder configured, %d building(s) stay on fallback coordinates", len(candidates))
		return res, nil
	}

	byAddress := make(map[string][]*models.Building)
	var order []string
	for _, c := range candidates {
		if _, ok := byAddress[c.Key.Address]; !ok {
			order = append(order, c.Key.Address)
		}
		byAddress[c.Key.Address] = append(byAddress[c.Key.Address], c)
	}
	res.Addresses = len(order)
	b.logger.Info("[backfill] %d building(s) on fallback coordinates across %d address(es)", len(candidates), len(order))

	var (
		mu       sync.Mutex
		resolved = utils.NewKeySet()
		pool     = utils.NewWorkerPool(1, b.rateLimitMs)
	)
	for _, addr := range order {
		addr := addr
		pool.Submit(ctx, func(ctx context.Context) {
			coords, ok := b.resolver.Lookup(ctx, addr)
			if !ok {
				return
			}
			resolved.Add(addr)

			for _, bld := range byAddress[addr] {
				c := coords
				bld.Coordinates = &c
				bld.CoordinateSource = models.SourceGeocoder
				bld.Geohash = geohash.EncodeWithPrecision(c.Latitude, c.Longitude, GeohashPrecision)
				b.walking.Estimate(bld, b.pois)

				err := b.store.UpdateCoordinates(ctx, bld)
				mu.Lock()
				if err != nil {
					b.logger.Error("[backfill] %v", err)
					res.Failed++
				} else {
					res.Updated++
				}
				mu.Unlock()
			}
		})
	}
	pool.Wait()

	res.Resolved = resolved.Size()
	b.logger.Info("[backfill] Resolved %d/%d address(es), updated %d building(s), %d failed",
		res.Resolved, res.Addresses, res.Updated, res.Failed)

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("backfill cancelled: %w", err)
	}
	return res, nil
}
