package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"realestate-ingest/geocode"
	"realestate-ingest/models"
)

type fakeStore struct {
	mu        sync.Mutex
	buildings []*models.Building
	fetches   int
	updates   map[uuid.UUID]int
	failID    uuid.UUID
}

func (s *fakeStore) FetchFallbackBuildings(context.Context) ([]*models.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	var out []*models.Building
	for _, b := range s.buildings {
		if b.CoordinateSource == models.SourceFallback {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateCoordinates(_ context.Context, b *models.Building) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == s.failID {
		return errors.New("row locked")
	}
	if s.updates == nil {
		s.updates = make(map[uuid.UUID]int)
	}
	s.updates[b.ID]++
	return nil
}

type countingGeocoder struct {
	mu    sync.Mutex
	hits  map[string]models.Coordinates
	calls map[string]int
}

func (g *countingGeocoder) Name() string { return "counting" }

func (g *countingGeocoder) Geocode(_ context.Context, address string) (models.Coordinates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[address]++
	if c, ok := g.hits[address]; ok {
		return c, nil
	}
	return models.Coordinates{}, geocode.ErrNotFound
}

const (
	yeongtongAddr = "경기도 수원시 영통구 영통동 996-3"
	unknownAddr   = "경기도 수원시 어딘가 1"
)

func fallbackBuilding(name, address string) *models.Building {
	c := geocode.Fallback(address, geocode.DefaultDistricts)
	key := models.EntityKey{Name: name, Address: address}
	return &models.Building{
		ID:               BuildingID(DefaultNamespace, key),
		Key:              key,
		Type:             models.BuildingApartment,
		Coordinates:      &c,
		CoordinateSource: models.SourceFallback,
	}
}

func newBackfillFixture(t *testing.T) (*fakeStore, *countingGeocoder, *geocode.Resolver, *Backfiller) {
	t.Helper()
	store := &fakeStore{buildings: []*models.Building{
		fallbackBuilding("하이빌", yeongtongAddr),
		fallbackBuilding("하이빌 2차", yeongtongAddr),
		fallbackBuilding("어딘가빌", unknownAddr),
	}}
	g := &countingGeocoder{
		hits:  map[string]models.Coordinates{yeongtongAddr: {Latitude: 37.2519, Longitude: 127.0716}},
		calls: map[string]int{},
	}
	resolver := geocode.NewResolver(g, time.Second, newTestLogger())
	walking := NewWalkingEstimator(rand.New(rand.NewSource(1)))
	return store, g, resolver, NewBackfiller(store, resolver, walking, mustRegistry(t), 0, newTestLogger())
}

func TestBackfillUpgradesResolvedAddresses(t *testing.T) {
	store, g, _, bf := newBackfillFixture(t)

	res, err := bf.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := BackfillResult{Candidates: 3, Addresses: 2, Resolved: 1, Updated: 2}
	if res != want {
		t.Errorf("result = %+v; want %+v", res, want)
	}
	if g.calls[yeongtongAddr] != 1 {
		t.Errorf("shared address geocoded %d times; want once", g.calls[yeongtongAddr])
	}

	for _, b := range store.buildings[:2] {
		if b.CoordinateSource != models.SourceGeocoder || b.Coordinates.Latitude != 37.2519 {
			t.Errorf("%s not upgraded: %+v", b.Key.Name, b.Coordinates)
		}
		if len(b.Geohash) != GeohashPrecision || b.StationWalkingMinutes > 5 {
			t.Errorf("%s derived values stale: geohash=%q station=%d", b.Key.Name, b.Geohash, b.StationWalkingMinutes)
		}
		if store.updates[b.ID] != 1 {
			t.Errorf("%s updated %d times", b.Key.Name, store.updates[b.ID])
		}
	}
	if store.buildings[2].CoordinateSource != models.SourceFallback {
		t.Error("unresolved building must keep its fallback coordinates")
	}
}

func TestBackfillCountsUpdateFailures(t *testing.T) {
	store, _, _, bf := newBackfillFixture(t)
	store.failID = store.buildings[1].ID

	res, err := bf.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || res.Failed != 1 {
		t.Errorf("result = %+v; want 1 updated, 1 failed", res)
	}
}

func TestBackfillWithoutGeocoder(t *testing.T) {
	store := &fakeStore{buildings: []*models.Building{fallbackBuilding("하이빌", yeongtongAddr)}}
	resolver := geocode.NewResolver(nil, 0, newTestLogger())
	bf := NewBackfiller(store, resolver, NewWalkingEstimator(rand.New(rand.NewSource(1))), mustRegistry(t), 0, newTestLogger())

	res, err := bf.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Candidates != 1 || res.Updated != 0 || len(store.updates) != 0 {
		t.Errorf("result = %+v", res)
	}
}

type manualTicker struct{ ch chan time.Time }

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop() {}

type manualClock struct {
	ticker   *manualTicker
	interval time.Duration
}

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	c.interval = d
	return c.ticker
}

func TestRescannerRunsOnEveryTick(t *testing.T) {
	store, g, resolver, bf := newBackfillFixture(t)
	clock := &manualClock{ticker: &manualTicker{ch: make(chan time.Time)}}
	r := NewRescanner(bf, resolver, time.Hour, clock, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() { done <- r.Run(ctx) }()

	// The third send only returns once the second pass has finished.
	for i := 0; i < 3; i++ {
		clock.ticker.ch <- time.Now()
	}
	cancel()

	passes := <-done
	if passes != 3 {
		t.Errorf("passes = %d; want 3", passes)
	}
	if clock.interval != time.Hour {
		t.Errorf("ticker interval = %s", clock.interval)
	}

	store.mu.Lock()
	fetches := store.fetches
	store.mu.Unlock()
	if fetches != 3 {
		t.Errorf("fetches = %d; want 3", fetches)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls[unknownAddr] < 2 {
		t.Errorf("missed address retried %d times; the cache must be reset between passes", g.calls[unknownAddr])
	}
	if g.calls[yeongtongAddr] != 1 {
		t.Errorf("upgraded address geocoded %d times; want once", g.calls[yeongtongAddr])
	}
}

func TestRescannerStopsWithoutTicks(t *testing.T) {
	_, _, resolver, bf := newBackfillFixture(t)
	clock := &manualClock{ticker: &manualTicker{ch: make(chan time.Time)}}
	r := NewRescanner(bf, resolver, time.Minute, clock, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if passes := r.Run(ctx); passes != 0 {
		t.Errorf("passes = %d; want 0", passes)
	}
}
