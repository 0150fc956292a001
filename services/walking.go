package services

import (
	"math"
	"math/rand"
	"sync"

	"realestate-ingest/models"
	"realestate-ingest/proximity"
)

const (
	walkBaseMinutes  = 12
	walkJitter       = 3
	schoolMinMinutes = 3
	schoolMaxMinutes = 25
	stationOffset    = 3
	stationFloor     = 5
	walkMinMinutes   = 1
	walkMaxMinutes   = 60
	walkingSpeedKmh  = 4.0
)

var typeAdjust = map[models.BuildingType]int{
	models.BuildingOfficetel:       -3,
	models.BuildingApartment:       -1,
	models.BuildingSingleMultiHome: 3,
	models.BuildingOther:           1,
}

// PointsOfInterest are the fixed destinations for deterministic walking times.
type PointsOfInterest struct {
	Schools  []models.Coordinates
	Stations []models.Coordinates
}

// WalkingEstimator produces school and station walking times. The heuristic
// path is randomized; FromDistance is deterministic.
type WalkingEstimator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWalkingEstimator creates an estimator drawing jitter from rng.
func NewWalkingEstimator(rng *rand.Rand) *WalkingEstimator {
	return &WalkingEstimator{rng: rng}
}

// Heuristic estimates walking minutes from building type and floor area.
// School is clamped to [3,25] and station to [1,60] whatever the jitter.
func (w *WalkingEstimator) Heuristic(t models.BuildingType, area *float64) (school, station int) {
	minutes := walkBaseMinutes + typeAdjust[t]
	if area != nil {
		switch {
		case *area >= 135:
			minutes -= 3
		case *area >= 85:
			minutes -= 2
		}
	}

	w.mu.Lock()
	minutes += w.rng.Intn(2*walkJitter+1) - walkJitter
	w.mu.Unlock()

	school = clamp(minutes, schoolMinMinutes, schoolMaxMinutes)
	station = clamp(max(school+stationOffset, stationFloor), walkMinMinutes, walkMaxMinutes)
	return school, station
}

// FromDistance converts the great-circle distance into minutes at 4 km/h.
func (w *WalkingEstimator) FromDistance(from, to models.Coordinates) int {
	km := proximity.Haversine(from, to)
	minutes := int(math.Round(km / walkingSpeedKmh * 60))
	return clamp(minutes, walkMinMinutes, walkMaxMinutes)
}

// Estimate fills the walking times of b. Geocoded buildings use the nearest
// configured point of interest; anything else falls back to the heuristic.
func (w *WalkingEstimator) Estimate(b *models.Building, pois PointsOfInterest) {
	if b.Coordinates != nil && b.CoordinateSource == models.SourceGeocoder &&
		len(pois.Schools) > 0 && len(pois.Stations) > 0 {
		b.SchoolWalkingMinutes = w.nearest(*b.Coordinates, pois.Schools)
		b.StationWalkingMinutes = w.nearest(*b.Coordinates, pois.Stations)
		return
	}
	b.SchoolWalkingMinutes, b.StationWalkingMinutes = w.Heuristic(b.Type, b.Area)
}

func (w *WalkingEstimator) nearest(from models.Coordinates, targets []models.Coordinates) int {
	best := walkMaxMinutes
	for _, t := range targets {
		if m := w.FromDistance(from, t); m < best {
			best = m
		}
	}
	return best
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
