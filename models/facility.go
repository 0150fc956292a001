package models

import "github.com/google/uuid"

// FacilityCategory is the canonical amenity classification used by proximity queries.
type FacilityCategory string

const (
	CategoryConvenienceStore FacilityCategory = "CONVENIENCE_STORE"
	CategoryMart             FacilityCategory = "MART"
	CategoryHospital         FacilityCategory = "HOSPITAL"
	CategoryOther            FacilityCategory = "OTHER"
)

// Categories lists the categories reported by nearby-count enrichment.
var Categories = []FacilityCategory{
	CategoryConvenienceStore,
	CategoryMart,
	CategoryHospital,
}

// Normalized business status vocabulary.
const (
	StatusOperating = "operating"
	StatusSuspended = "suspended"
	StatusClosed    = "closed"
	StatusUnknown   = "unknown"
)

// Facility is the canonical representation of an amenity (store, mart, hospital).
type Facility struct {
	ID             uuid.UUID
	Key            EntityKey
	RoadAddress    string
	Category       FacilityCategory
	SubCategory    string
	BusinessStatus string

	// Coordinates is nil only while the record is still being merged; finalized
	// facilities without coordinates are dropped.
	Coordinates      *Coordinates
	CoordinateSource CoordinateSource
	Geohash          string

	Sources []string
}

// Operating reports whether the facility is currently open for business.
func (f *Facility) Operating() bool {
	return f.BusinessStatus == StatusOperating
}
