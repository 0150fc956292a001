package services

import "realestate-ingest/models"

// MergeBuildings folds incoming into existing and returns existing.
//
// Prices are appended without deduplication. Optional scalars take the
// incoming value only while the existing one is unset (nil or zero). Key and
// type never change, so the first type seen for a key wins.
func MergeBuildings(existing, incoming *models.Building) *models.Building {
	existing.Prices = append(existing.Prices, incoming.Prices...)

	if isUnsetFloat(existing.Area) {
		existing.Area = incoming.Area
	}
	if isUnsetInt(existing.Floor) {
		existing.Floor = incoming.Floor
	}
	if isUnsetInt(existing.ConstructionYear) {
		existing.ConstructionYear = incoming.ConstructionYear
	}
	if existing.RoadName == "" {
		existing.RoadName = incoming.RoadName
	}
	if existing.Coordinates == nil && incoming.Coordinates != nil {
		existing.Coordinates = incoming.Coordinates
		existing.CoordinateSource = incoming.CoordinateSource
	}
	existing.IsSample = existing.IsSample && incoming.IsSample
	existing.Sources = unionSources(existing.Sources, incoming.Sources)
	return existing
}

// MergeFacilities folds incoming into existing with the same first-non-empty
// rule. An "unknown" status and the OTHER category count as unset, and
// coordinates never change once set.
func MergeFacilities(existing, incoming *models.Facility) *models.Facility {
	if existing.RoadAddress == "" {
		existing.RoadAddress = incoming.RoadAddress
	}
	if existing.SubCategory == "" {
		existing.SubCategory = incoming.SubCategory
	}
	if existing.BusinessStatus == "" || existing.BusinessStatus == models.StatusUnknown {
		if incoming.BusinessStatus != "" {
			existing.BusinessStatus = incoming.BusinessStatus
		}
	}
	if existing.Category == "" || existing.Category == models.CategoryOther {
		if incoming.Category != "" {
			existing.Category = incoming.Category
		}
	}
	if existing.Coordinates == nil && incoming.Coordinates != nil {
		existing.Coordinates = incoming.Coordinates
		existing.CoordinateSource = incoming.CoordinateSource
	}
	existing.Sources = unionSources(existing.Sources, incoming.Sources)
	return existing
}

func isUnsetFloat(v *float64) bool { return v == nil || *v == 0 }

func isUnsetInt(v *int) bool { return v == nil || *v == 0 }

func unionSources(a, b []string) []string {
	for _, s := range b {
		found := false
		for _, have := range a {
			if have == s {
				found = true
				break
			}
		}
		if !found {
			a = append(a, s)
		}
	}
	return a
}

// BuildingSet is the keyed accumulator of one ingestion run. It keeps
// first-insertion order so output is deterministic.
type BuildingSet struct {
	byKey map[models.EntityKey]*models.Building
	order []models.EntityKey
}

// NewBuildingSet creates an empty BuildingSet.
func NewBuildingSet() *BuildingSet {
	return &BuildingSet{byKey: make(map[models.EntityKey]*models.Building)}
}

// Add inserts b, or merges it into the building already held under its key.
// It reports whether a merge happened.
func (s *BuildingSet) Add(b *models.Building) bool {
	if existing, ok := s.byKey[b.Key]; ok {
		MergeBuildings(existing, b)
		return true
	}
	s.byKey[b.Key] = b
	s.order = append(s.order, b.Key)
	return false
}

// Get returns the building held under key.
func (s *BuildingSet) Get(key models.EntityKey) (*models.Building, bool) {
	b, ok := s.byKey[key]
	return b, ok
}

// Len returns the number of distinct buildings.
func (s *BuildingSet) Len() int { return len(s.order) }

// All returns the buildings in first-insertion order.
func (s *BuildingSet) All() []*models.Building {
	out := make([]*models.Building, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

// FacilitySet is the facility counterpart of BuildingSet.
type FacilitySet struct {
	byKey map[models.EntityKey]*models.Facility
	order []models.EntityKey
}

// NewFacilitySet creates an empty FacilitySet.
func NewFacilitySet() *FacilitySet {
	return &FacilitySet{byKey: make(map[models.EntityKey]*models.Facility)}
}

// Add inserts f or merges it into the facility already held under its key.
func (s *FacilitySet) Add(f *models.Facility) bool {
	if existing, ok := s.byKey[f.Key]; ok {
		MergeFacilities(existing, f)
		return true
	}
	s.byKey[f.Key] = f
	s.order = append(s.order, f.Key)
	return false
}

// Len returns the number of distinct facility keys.
func (s *FacilitySet) Len() int { return len(s.order) }

// All returns the facilities in first-insertion order.
func (s *FacilitySet) All() []*models.Facility {
	out := make([]*models.Facility, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}
