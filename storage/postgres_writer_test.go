package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"realestate-ingest/models"
	"realestate-ingest/utils"
)

func openTestPostgres(t *testing.T) *PostgresWriter {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pw, err := NewPostgresWriter(dsn, utils.NewLogger())
	if err != nil {
		t.Fatalf("NewPostgresWriter: %v", err)
	}
	t.Cleanup(func() { _ = pw.Close() })
	return pw
}

func TestPostgresUpsertIsIdempotent(t *testing.T) {
	pw := openTestPostgres(t)
	ctx := context.Background()

	b := sampleBuilding()
	b.ID = uuid.New()
	b.Nearby = map[models.FacilityCategory]int{models.CategoryMart: 2}
	t.Cleanup(func() { _, _ = pw.db.Exec("DELETE FROM buildings WHERE id = $1", b.ID) })

	for i := 0; i < 2; i++ {
		res, err := pw.WriteBuildings(ctx, []*models.Building{b})
		if err != nil || res.Written != 1 || res.Failed != 0 {
			t.Fatalf("write %d: %+v, %v", i, res, err)
		}
	}

	all, err := pw.FetchFallbackBuildings(ctx)
	if err != nil {
		t.Fatalf("FetchFallbackBuildings: %v", err)
	}
	var got *models.Building
	for _, x := range all {
		if x.ID == b.ID {
			if got != nil {
				t.Fatal("building stored twice")
			}
			got = x
		}
	}
	if got == nil {
		t.Fatal("building not found after upsert")
	}
	if len(got.Prices) != 2 || got.Prices[1] != 25000 || got.Nearby[models.CategoryMart] != 2 {
		t.Errorf("round trip lost data: %+v", got)
	}
	if got.Area == nil || *got.Area != 84.97 || got.ConstructionYear != nil {
		t.Errorf("nullable columns: area=%v year=%v", got.Area, got.ConstructionYear)
	}

	got.Coordinates = &models.Coordinates{Latitude: 37.2519, Longitude: 127.0716}
	got.CoordinateSource = models.SourceGeocoder
	if err := pw.UpdateCoordinates(ctx, got); err != nil {
		t.Fatalf("UpdateCoordinates: %v", err)
	}
	remaining, err := pw.FetchFallbackBuildings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range remaining {
		if x.ID == b.ID {
			t.Error("geocoded building still listed as fallback")
		}
	}
}

func TestPostgresUpdateUnknownBuilding(t *testing.T) {
	pw := openTestPostgres(t)
	b := sampleBuilding()
	b.ID = uuid.New()
	if err := pw.UpdateCoordinates(context.Background(), b); err == nil {
		t.Error("expected an error for a missing row")
	}
}
