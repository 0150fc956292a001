package services

import (
	"reflect"
	"testing"

	"realestate-ingest/models"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

var haibil = models.EntityKey{Name: "하이빌", Address: "경기도 수원시 영통구 영통동 996-3"}

func TestMergeBuildingsPricesGrow(t *testing.T) {
	a := &models.Building{Key: haibil, Prices: []int64{23000, 25000, 25000}}
	b := &models.Building{Key: haibil, Prices: []int64{23000, 25000, 25000}}

	got := MergeBuildings(a, b)
	if len(got.Prices) != 6 {
		t.Errorf("merging A with itself: %d prices; want 6", len(got.Prices))
	}
	want := []int64{23000, 25000, 25000, 23000, 25000, 25000}
	if !reflect.DeepEqual(got.Prices, want) {
		t.Errorf("prices = %v; want %v", got.Prices, want)
	}
}

func TestMergeBuildingsFirstWriterWins(t *testing.T) {
	set := func() *models.Building {
		return &models.Building{Key: haibil, Type: models.BuildingApartment, Area: floatPtr(84.97), Floor: intPtr(7), RoadName: "영통로 100"}
	}
	unset := func() *models.Building {
		return &models.Building{Key: haibil, Type: models.BuildingOfficetel}
	}

	got := MergeBuildings(set(), unset())
	if *got.Area != 84.97 || *got.Floor != 7 || got.RoadName != "영통로 100" {
		t.Errorf("set then unset lost values: %+v", got)
	}

	got = MergeBuildings(unset(), set())
	if got.Area == nil || *got.Area != 84.97 || got.Floor == nil || *got.Floor != 7 || got.RoadName != "영통로 100" {
		t.Errorf("unset then set did not adopt values: %+v", got)
	}
	if got.Type != models.BuildingOfficetel {
		t.Errorf("type changed on merge: %s", got.Type)
	}

	other := set()
	other.Area = floatPtr(59.9)
	got = MergeBuildings(set(), other)
	if *got.Area != 84.97 {
		t.Errorf("existing area overwritten: %v", *got.Area)
	}
}

func TestMergeBuildingsZeroCountsAsUnset(t *testing.T) {
	a := &models.Building{Key: haibil, Floor: intPtr(0)}
	b := &models.Building{Key: haibil, Floor: intPtr(3)}
	if got := MergeBuildings(a, b); *got.Floor != 3 {
		t.Errorf("floor = %d; want 3", *got.Floor)
	}
}

func TestMergeBuildingsSourcesUnion(t *testing.T) {
	a := &models.Building{Key: haibil, Sources: []string{"a.csv"}}
	b := &models.Building{Key: haibil, Sources: []string{"a.csv", "b.csv"}}
	got := MergeBuildings(a, b)
	if !reflect.DeepEqual(got.Sources, []string{"a.csv", "b.csv"}) {
		t.Errorf("sources = %v", got.Sources)
	}
}

func TestMergeFacilities(t *testing.T) {
	key := models.EntityKey{Name: "GS25 영통점", Address: "경기도 수원시 영통구 영통동 1000"}
	first := &models.Coordinates{Latitude: 37.25, Longitude: 127.07}
	second := &models.Coordinates{Latitude: 37.30, Longitude: 127.00}

	existing := &models.Facility{Key: key, Category: models.CategoryOther, BusinessStatus: models.StatusUnknown, Coordinates: first}
	incoming := &models.Facility{Key: key, Category: models.CategoryConvenienceStore, BusinessStatus: models.StatusClosed, SubCategory: "GS25", Coordinates: second}

	got := MergeFacilities(existing, incoming)
	if got.Category != models.CategoryConvenienceStore {
		t.Errorf("OTHER should be replaced, got %s", got.Category)
	}
	if got.BusinessStatus != models.StatusClosed {
		t.Errorf("unknown status should be replaced, got %s", got.BusinessStatus)
	}
	if got.SubCategory != "GS25" {
		t.Errorf("subcategory = %q", got.SubCategory)
	}
	if got.Coordinates != first {
		t.Error("coordinates must not change once set")
	}

	again := &models.Facility{Key: key, Category: models.CategoryMart, BusinessStatus: models.StatusOperating}
	got = MergeFacilities(got, again)
	if got.Category != models.CategoryConvenienceStore || got.BusinessStatus != models.StatusClosed {
		t.Errorf("set values overwritten: %s / %s", got.Category, got.BusinessStatus)
	}
}

func TestBuildingSetKeepsInsertionOrder(t *testing.T) {
	s := NewBuildingSet()
	keys := []models.EntityKey{
		{Name: "C", Address: "3"},
		{Name: "A", Address: "1"},
		{Name: "B", Address: "2"},
	}
	for _, k := range keys {
		s.Add(&models.Building{Key: k, Prices: []int64{1}})
	}
	if !s.Add(&models.Building{Key: keys[1], Prices: []int64{2}}) {
		t.Error("second Add of a key should report a merge")
	}

	all := s.All()
	if len(all) != 3 || s.Len() != 3 {
		t.Fatalf("len = %d", len(all))
	}
	for i, b := range all {
		if b.Key != keys[i] {
			t.Errorf("position %d: %v; want %v", i, b.Key, keys[i])
		}
	}
	if b, _ := s.Get(keys[1]); len(b.Prices) != 2 {
		t.Errorf("merged prices = %v", b.Prices)
	}
}
