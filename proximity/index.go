package proximity

import (
	"math"
	"sort"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"realestate-ingest/models"
)

const (
	maxCoverCells = 16
	// Beyond a quarter of the circumference a covering buys nothing.
	scanRadiusKm = math.Pi * EarthRadiusKm / 2
)

// Query selects facilities around Center. An empty Category matches any.
type Query struct {
	Center        models.Coordinates
	RadiusKm      float64
	Category      models.FacilityCategory
	OperatingOnly bool
}

// Match is one facility inside the query radius.
type Match struct {
	Facility   *models.Facility
	DistanceKm float64
}

type cellEntry struct {
	cell s2.CellID
	pos  int
}

// Index is an immutable snapshot of facilities, safe for concurrent readers.
type Index struct {
	facilities []models.Facility
	cells      []cellEntry
	coverer    *s2.RegionCoverer
}

// NewIndex copies the located facilities into a new Index. Facilities
// without coordinates are left out.
func NewIndex(facilities []models.Facility) *Index {
	idx := &Index{
		facilities: make([]models.Facility, 0, len(facilities)),
		coverer:    &s2.RegionCoverer{MinLevel: 0, MaxLevel: 30, LevelMod: 1, MaxCells: maxCoverCells},
	}
	for _, f := range facilities {
		if f.Coordinates == nil {
			continue
		}
		idx.facilities = append(idx.facilities, f)
	}

	idx.cells = make([]cellEntry, len(idx.facilities))
	for i, f := range idx.facilities {
		ll := s2.LatLngFromDegrees(f.Coordinates.Latitude, f.Coordinates.Longitude)
		idx.cells[i] = cellEntry{cell: s2.CellIDFromLatLng(ll), pos: i}
	}
	sort.Slice(idx.cells, func(i, j int) bool {
		return idx.cells[i].cell < idx.cells[j].cell
	})
	return idx
}

// Len returns the number of indexed facilities.
func (idx *Index) Len() int { return len(idx.facilities) }

// List returns every facility within q.RadiusKm of q.Center, boundary
// included, in insertion order.
func (idx *Index) List(q Query) []Match {
	if !validQuery(q) {
		return nil
	}
	if q.RadiusKm >= scanRadiusKm {
		return idx.Scan(q)
	}

	var candidates []int
	for _, c := range idx.cover(q) {
		lo, hi := c.RangeMin(), c.RangeMax()
		i := sort.Search(len(idx.cells), func(i int) bool { return idx.cells[i].cell >= lo })
		for ; i < len(idx.cells) && idx.cells[i].cell <= hi; i++ {
			candidates = append(candidates, idx.cells[i].pos)
		}
	}
	sort.Ints(candidates)

	var out []Match
	for _, pos := range candidates {
		if m, ok := idx.match(pos, q); ok {
			out = append(out, m)
		}
	}
	return out
}

// Count returns len(List(q)).
func (idx *Index) Count(q Query) int {
	return len(idx.List(q))
}

// Scan answers q by checking every facility. List must always agree with it.
func (idx *Index) Scan(q Query) []Match {
	if !validQuery(q) {
		return nil
	}
	var out []Match
	for pos := range idx.facilities {
		if m, ok := idx.match(pos, q); ok {
			out = append(out, m)
		}
	}
	return out
}

// CountByCategory counts facilities of every reported category around center.
func (idx *Index) CountByCategory(center models.Coordinates, radiusKm float64, operatingOnly bool) map[models.FacilityCategory]int {
	counts := make(map[models.FacilityCategory]int, len(models.Categories))
	for _, c := range models.Categories {
		counts[c] = 0
	}
	for _, m := range idx.List(Query{Center: center, RadiusKm: radiusKm, OperatingOnly: operatingOnly}) {
		if _, reported := counts[m.Facility.Category]; reported {
			counts[m.Facility.Category]++
		}
	}
	return counts
}

// EnrichBuildings fills Building.Nearby with operating facility counts.
func EnrichBuildings(buildings []*models.Building, idx *Index, radiusKm float64) {
	for _, b := range buildings {
		if b.Coordinates == nil {
			continue
		}
		b.Nearby = idx.CountByCategory(*b.Coordinates, radiusKm, true)
	}
}

func (idx *Index) match(pos int, q Query) (Match, bool) {
	f := &idx.facilities[pos]
	if q.Category != "" && f.Category != q.Category {
		return Match{}, false
	}
	if q.OperatingOnly && !f.Operating() {
		return Match{}, false
	}
	d := Haversine(q.Center, *f.Coordinates)
	if !(d <= q.RadiusKm) {
		return Match{}, false
	}
	return Match{Facility: f, DistanceKm: d}, true
}

// cover returns the cells of a cap slightly larger than the query radius,
// so rounding never excludes a point that the exact predicate accepts.
func (idx *Index) cover(q Query) s2.CellUnion {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(q.Center.Latitude, q.Center.Longitude))
	angle := s1.Angle(q.RadiusKm/EarthRadiusKm)*(1+1e-6) + 1e-7
	return idx.coverer.Covering(s2.CapFromCenterAngle(center, angle))
}

// validQuery rejects negative or NaN radii and centres off the globe,
// NaN included.
func validQuery(q Query) bool {
	lat, lon := q.Center.Latitude, q.Center.Longitude
	return q.RadiusKm >= 0 && !math.IsNaN(q.RadiusKm) &&
		lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
