package services

import (
	"math/rand"
	"testing"

	"realestate-ingest/models"
)

func TestHeuristicRespectsClampBounds(t *testing.T) {
	w := NewWalkingEstimator(rand.New(rand.NewSource(1)))
	types := []models.BuildingType{
		models.BuildingApartment, models.BuildingOfficetel,
		models.BuildingSingleMultiHome, models.BuildingOther, "",
	}
	areas := []*float64{nil, floatPtr(0), floatPtr(59.9), floatPtr(85), floatPtr(135), floatPtr(1e6)}

	for i := 0; i < 500; i++ {
		for _, bt := range types {
			for _, a := range areas {
				school, station := w.Heuristic(bt, a)
				if school < 3 || school > 25 {
					t.Fatalf("school %d out of [3,25] for %s", school, bt)
				}
				if station < 1 || station > 60 {
					t.Fatalf("station %d out of [1,60] for %s", station, bt)
				}
				if station < school+3 && station < 60 {
					t.Fatalf("station %d should be at least school+3 (%d)", station, school)
				}
			}
		}
	}
}

func TestHeuristicRange(t *testing.T) {
	w := NewWalkingEstimator(rand.New(rand.NewSource(7)))
	// Officetel over 135 sqm: 12 - 3 - 3 = 6, jitter keeps it in [3, 9].
	for i := 0; i < 200; i++ {
		school, _ := w.Heuristic(models.BuildingOfficetel, floatPtr(140))
		if school < 3 || school > 9 {
			t.Fatalf("school = %d; want within [3,9]", school)
		}
	}
	// Single/multi household, no area: 12 + 3 = 15 → [12, 18].
	for i := 0; i < 200; i++ {
		school, station := w.Heuristic(models.BuildingSingleMultiHome, nil)
		if school < 12 || school > 18 {
			t.Fatalf("school = %d; want within [12,18]", school)
		}
		if station != school+3 {
			t.Fatalf("station = %d; want %d", station, school+3)
		}
	}
}

func TestFromDistance(t *testing.T) {
	w := NewWalkingEstimator(rand.New(rand.NewSource(1)))
	origin := models.Coordinates{Latitude: 37.26, Longitude: 127.03}

	if got := w.FromDistance(origin, origin); got != 1 {
		t.Errorf("same point = %d; want clamp to 1", got)
	}
	// ~1.42 km at 4 km/h is ~21 minutes.
	if got := w.FromDistance(origin, models.Coordinates{Latitude: 37.27, Longitude: 127.04}); got != 21 {
		t.Errorf("1.42 km = %d minutes; want 21", got)
	}
	if got := w.FromDistance(origin, models.Coordinates{Latitude: 35.18, Longitude: 129.08}); got != 60 {
		t.Errorf("long distance = %d; want clamp to 60", got)
	}
}

func TestEstimateUsesPointsOfInterestForGeocodedBuildings(t *testing.T) {
	w := NewWalkingEstimator(rand.New(rand.NewSource(1)))
	origin := models.Coordinates{Latitude: 37.26, Longitude: 127.03}
	pois := PointsOfInterest{
		Schools:  []models.Coordinates{{Latitude: 37.27, Longitude: 127.04}, {Latitude: 37.30, Longitude: 127.10}},
		Stations: []models.Coordinates{{Latitude: 37.26, Longitude: 127.03}},
	}

	b := &models.Building{Type: models.BuildingApartment, Coordinates: &origin, CoordinateSource: models.SourceGeocoder}
	w.Estimate(b, pois)
	if b.SchoolWalkingMinutes != 21 || b.StationWalkingMinutes != 1 {
		t.Errorf("got school=%d station=%d; want 21/1", b.SchoolWalkingMinutes, b.StationWalkingMinutes)
	}

	fallback := &models.Building{Type: models.BuildingApartment, Coordinates: &origin, CoordinateSource: models.SourceFallback}
	w.Estimate(fallback, pois)
	if fallback.SchoolWalkingMinutes < 3 || fallback.SchoolWalkingMinutes > 25 {
		t.Errorf("heuristic school = %d", fallback.SchoolWalkingMinutes)
	}
}
