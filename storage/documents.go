package storage

import (
	"realestate-ingest/models"
)

// BuildingDocument is the JSON shape of a building on the wire.
type BuildingDocument struct {
	ID                    string                          `json:"id"`
	Name                  string                          `json:"name"`
	Address               string                          `json:"address"`
	Type                  models.BuildingType             `json:"type"`
	Area                  *float64                        `json:"area,omitempty"`
	Floor                 *int                            `json:"floor,omitempty"`
	ConstructionYear      *int                            `json:"construction_year,omitempty"`
	RoadName              string                          `json:"road_name,omitempty"`
	Prices                []int64                         `json:"prices"`
	AvgPrice              float64                         `json:"avg_price"`
	Location              *models.Coordinates             `json:"location,omitempty"`
	CoordinateSource      models.CoordinateSource         `json:"coordinate_source,omitempty"`
	Geohash               string                          `json:"geohash,omitempty"`
	SchoolWalkingMinutes  int                             `json:"school_walking_minutes"`
	StationWalkingMinutes int                             `json:"station_walking_minutes"`
	Nearby                map[models.FacilityCategory]int `json:"nearby,omitempty"`
	IsSample              bool                            `json:"is_sample"`
	Sources               []string                        `json:"sources"`
}

// FacilityDocument is the JSON shape of a facility. Location maps onto an
// Elasticsearch geo_point.
type FacilityDocument struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Address          string                  `json:"address"`
	RoadAddress      string                  `json:"road_address,omitempty"`
	Category         models.FacilityCategory `json:"category"`
	SubCategory      string                  `json:"sub_category,omitempty"`
	BusinessStatus   string                  `json:"business_status"`
	Location         *models.Coordinates     `json:"location,omitempty"`
	CoordinateSource models.CoordinateSource `json:"coordinate_source,omitempty"`
	Geohash          string                  `json:"geohash,omitempty"`
	Sources          []string                `json:"sources"`
}

func toBuildingDocument(b *models.Building) BuildingDocument {
	prices := b.Prices
	if prices == nil {
		prices = []int64{}
	}
	return BuildingDocument{
		ID:                    b.ID.String(),
		Name:                  b.Key.Name,
		Address:               b.Key.Address,
		Type:                  b.Type,
		Area:                  b.Area,
		Floor:                 b.Floor,
		ConstructionYear:      b.ConstructionYear,
		RoadName:              b.RoadName,
		Prices:                prices,
		AvgPrice:              b.AvgPrice(),
		Location:              b.Coordinates,
		CoordinateSource:      b.CoordinateSource,
		Geohash:               b.Geohash,
		SchoolWalkingMinutes:  b.SchoolWalkingMinutes,
		StationWalkingMinutes: b.StationWalkingMinutes,
		Nearby:                b.Nearby,
		IsSample:              b.IsSample,
		Sources:               b.Sources,
	}
}

func toFacilityDocument(f *models.Facility) FacilityDocument {
	return FacilityDocument{
		ID:               f.ID.String(),
		Name:             f.Key.Name,
		Address:          f.Key.Address,
		RoadAddress:      f.RoadAddress,
		Category:         f.Category,
		SubCategory:      f.SubCategory,
		BusinessStatus:   f.BusinessStatus,
		Location:         f.Coordinates,
		CoordinateSource: f.CoordinateSource,
		Geohash:          f.Geohash,
		Sources:          f.Sources,
	}
}
