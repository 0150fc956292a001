package proximity

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	. "gopkg.in/check.v1"

	"realestate-ingest/models"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type ProximitySuite struct {
	idx *Index
}

var _ = Suite(&ProximitySuite{})

var reference = models.Coordinates{Latitude: 37.26, Longitude: 127.03}

func facility(name string, cat models.FacilityCategory, status string, lat, lon float64) models.Facility {
	return models.Facility{
		Key:            models.EntityKey{Name: name, Address: "경기도 수원시 " + name},
		Category:       cat,
		BusinessStatus: status,
		Coordinates:    &models.Coordinates{Latitude: lat, Longitude: lon},
	}
}

func (s *ProximitySuite) SetUpSuite(c *C) {
	s.idx = NewIndex([]models.Facility{
		facility("GS25 영통점", models.CategoryConvenienceStore, models.StatusOperating, 37.2601, 127.0301),
		facility("CU 매탄점", models.CategoryConvenienceStore, models.StatusClosed, 37.2605, 127.0305),
		facility("홈플러스 영통점", models.CategoryMart, models.StatusOperating, 37.2650, 127.0350),
		facility("아주대학교병원", models.CategoryHospital, models.StatusOperating, 37.2797, 127.0473),
		facility("null island", models.CategoryMart, models.StatusOperating, 0, 0),
		facility("부산 편의점", models.CategoryConvenienceStore, models.StatusOperating, 35.1796, 129.0756),
	})
}

func (s *ProximitySuite) TestHaversineIdentity(c *C) {
	c.Assert(Haversine(reference, reference), Equals, 0.0)
}

func (s *ProximitySuite) TestHaversineSymmetry(c *C) {
	other := models.Coordinates{Latitude: 35.1796, Longitude: 129.0756}
	c.Assert(Haversine(reference, other), Equals, Haversine(other, reference))
}

func (s *ProximitySuite) TestHaversineKnownOffset(c *C) {
	other := models.Coordinates{Latitude: reference.Latitude + 0.01, Longitude: reference.Longitude + 0.01}

	kmPerDegree := EarthRadiusKm * math.Pi / 180
	dy := 0.01 * kmPerDegree
	dx := 0.01 * kmPerDegree * math.Cos(reference.Latitude*math.Pi/180)
	expected := math.Hypot(dx, dy)

	d := Haversine(reference, other)
	c.Assert(math.Abs(d-expected)/expected < 0.02, Equals, true, Commentf("d=%f expected=%f", d, expected))
	c.Assert(math.Abs(d-1.41)/1.41 < 0.03, Equals, true, Commentf("d=%f", d))
}

func (s *ProximitySuite) TestCountEqualsListLength(c *C) {
	for _, r := range []float64{0, 0.05, 0.5, 1, 5, 50, 500} {
		for _, cat := range []models.FacilityCategory{"", models.CategoryConvenienceStore, models.CategoryMart} {
			for _, op := range []bool{false, true} {
				q := Query{Center: reference, RadiusKm: r, Category: cat, OperatingOnly: op}
				c.Assert(s.idx.Count(q), Equals, len(s.idx.List(q)), Commentf("%+v", q))
			}
		}
	}
}

func (s *ProximitySuite) TestFilters(c *C) {
	q := Query{Center: reference, RadiusKm: 1}
	c.Assert(s.idx.Count(q), Equals, 3)

	q.OperatingOnly = true
	c.Assert(s.idx.Count(q), Equals, 2)

	q.Category = models.CategoryConvenienceStore
	list := s.idx.List(q)
	c.Assert(list, HasLen, 1)
	c.Assert(list[0].Facility.Key.Name, Equals, "GS25 영통점")
}

func (s *ProximitySuite) TestUnlocatedFacilitiesAreSkipped(c *C) {
	idx := NewIndex([]models.Facility{{Key: models.EntityKey{Name: "x", Address: "y"}}})
	c.Assert(idx.Len(), Equals, 0)
	c.Assert(idx.List(Query{Center: reference, RadiusKm: 100}), HasLen, 0)
}

func (s *ProximitySuite) TestRadiusMonotonicity(c *C) {
	prev := 0
	for _, r := range []float64{0, 0.1, 0.5, 1, 2, 5, 10, 100, 1000} {
		n := s.idx.Count(Query{Center: reference, RadiusKm: r})
		c.Assert(n >= prev, Equals, true, Commentf("radius %v: %d < %d", r, n, prev))
		prev = n
	}
}

func (s *ProximitySuite) TestBoundaryIsInclusive(c *C) {
	target := s.idx.facilities[0]
	d := Haversine(reference, *target.Coordinates)
	c.Assert(s.idx.Count(Query{Center: reference, RadiusKm: d, Category: models.CategoryConvenienceStore, OperatingOnly: true}), Equals, 1)
}

func (s *ProximitySuite) TestInvalidRadius(c *C) {
	c.Assert(s.idx.List(Query{Center: reference, RadiusKm: -1}), HasLen, 0)
	c.Assert(s.idx.List(Query{Center: reference, RadiusKm: math.NaN()}), HasLen, 0)
	c.Assert(s.idx.Count(Query{Center: reference, RadiusKm: math.Inf(1)}), Equals, s.idx.Len())
}

func (s *ProximitySuite) TestInvalidCenter(c *C) {
	for _, center := range []models.Coordinates{
		{Latitude: math.NaN(), Longitude: 127.03},
		{Latitude: 37.26, Longitude: math.NaN()},
		{Latitude: 91, Longitude: 127.03},
		{Latitude: 37.26, Longitude: -181},
	} {
		q := Query{Center: center, RadiusKm: 5}
		c.Assert(s.idx.List(q), HasLen, 0, Commentf("center %+v", center))
		c.Assert(s.idx.Scan(q), HasLen, 0, Commentf("center %+v", center))
	}
}

func (s *ProximitySuite) TestIndexMatchesScanOnRandomData(c *C) {
	rng := rand.New(rand.NewSource(42))
	cats := []models.FacilityCategory{models.CategoryConvenienceStore, models.CategoryMart, models.CategoryHospital, models.CategoryOther}
	statuses := []string{models.StatusOperating, models.StatusClosed, models.StatusUnknown}

	facilities := make([]models.Facility, 2000)
	for i := range facilities {
		facilities[i] = facility(
			fmt.Sprintf("f%d", i),
			cats[rng.Intn(len(cats))],
			statuses[rng.Intn(len(statuses))],
			37.2+rng.Float64()*0.15,
			126.95+rng.Float64()*0.15,
		)
	}
	idx := NewIndex(facilities)

	for i := 0; i < 200; i++ {
		q := Query{
			Center:        models.Coordinates{Latitude: 37.2 + rng.Float64()*0.15, Longitude: 126.95 + rng.Float64()*0.15},
			RadiusKm:      rng.Float64() * 5,
			OperatingOnly: rng.Intn(2) == 0,
		}
		if rng.Intn(2) == 0 {
			q.Category = cats[rng.Intn(len(cats))]
		}
		got, want := idx.List(q), idx.Scan(q)
		c.Assert(len(got), Equals, len(want), Commentf("%+v", q))
		for j := range want {
			c.Assert(got[j].Facility, Equals, want[j].Facility)
			c.Assert(got[j].DistanceKm, Equals, want[j].DistanceKm)
		}
	}
}

func (s *ProximitySuite) TestConcurrentReaders(c *C) {
	q := Query{Center: reference, RadiusKm: 1}
	want := s.idx.Count(q)

	var wg sync.WaitGroup
	errs := make(chan int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n := s.idx.Count(q); n != want {
				errs <- n
			}
		}()
	}
	wg.Wait()
	close(errs)
	for n := range errs {
		c.Errorf("concurrent count %d != %d", n, want)
	}
}

func (s *ProximitySuite) TestCountByCategoryAndEnrich(c *C) {
	counts := s.idx.CountByCategory(reference, 1, true)
	c.Assert(counts[models.CategoryConvenienceStore], Equals, 1)
	c.Assert(counts[models.CategoryMart], Equals, 1)
	c.Assert(counts[models.CategoryHospital], Equals, 0)

	b := &models.Building{Coordinates: &reference}
	noCoords := &models.Building{}
	EnrichBuildings([]*models.Building{b, noCoords}, s.idx, 5)
	c.Assert(b.Nearby[models.CategoryHospital], Equals, 1)
	c.Assert(noCoords.Nearby, IsNil)
}
