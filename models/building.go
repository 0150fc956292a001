package models

import (
	"github.com/google/uuid"
)

// RawRecord holds one tokenized line of a source file before normalization.
// It is discarded once the normalizer has produced a canonical record.
type RawRecord struct {
	Source string
	Line   int
	Fields []string
}

// BuildingType is the canonical building classification.
type BuildingType string

const (
	BuildingApartment       BuildingType = "APARTMENT"
	BuildingOfficetel       BuildingType = "OFFICETEL"
	BuildingSingleMultiHome BuildingType = "SINGLE_MULTI_HOUSEHOLD"
	BuildingOther           BuildingType = "OTHER"
)

// ParseBuildingType maps a layout/config value onto a BuildingType, defaulting to OTHER.
func ParseBuildingType(s string) BuildingType {
	switch BuildingType(s) {
	case BuildingApartment, BuildingOfficetel, BuildingSingleMultiHome:
		return BuildingType(s)
	}
	return BuildingOther
}

// EntityKey is the deduplication identity of a building or facility.
type EntityKey struct {
	Name    string
	Address string
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// CoordinateSource records how a coordinate was obtained.
type CoordinateSource string

const (
	SourceGeocoder CoordinateSource = "geocoder"
	SourceFallback CoordinateSource = "fallback"
	SourceFile     CoordinateSource = "file"
)

// Building is the canonical, merged representation of a residential building.
type Building struct {
	ID   uuid.UUID
	Key  EntityKey
	Type BuildingType

	Area             *float64
	Floor            *int
	ConstructionYear *int
	RoadName         string

	// Prices are deposits in units of 10,000 won, in the order they were observed.
	Prices []int64

	Coordinates      *Coordinates
	CoordinateSource CoordinateSource
	Geohash          string

	SchoolWalkingMinutes  int
	StationWalkingMinutes int

	Sources  []string
	Nearby   map[FacilityCategory]int
	IsSample bool
}

// AvgPrice is the arithmetic mean of Prices, or 0 when no price was observed.
func (b *Building) AvgPrice() float64 {
	if len(b.Prices) == 0 {
		return 0
	}
	var total int64
	for _, p := range b.Prices {
		total += p
	}
	return float64(total) / float64(len(b.Prices))
}
