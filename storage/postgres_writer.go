package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"realestate-ingest/models"
	"realestate-ingest/utils"
)

const batchSize = 50

var buildingColumns = []string{
	"id", "name", "address", "building_type", "area", "floor", "construction_year", "road_name",
	"prices", "avg_price", "lat", "lon", "coordinate_source", "geohash",
	"school_walking_minutes", "station_walking_minutes", "nearby", "is_sample", "sources",
}

var facilityColumns = []string{
	"id", "name", "address", "road_address", "category", "sub_category", "business_status",
	"lat", "lon", "coordinate_source", "geohash", "sources",
}

// PostgresWriter persists canonical buildings and facilities to PostgreSQL.
// Rows are upserted by their deterministic id, so re-ingesting the same
// sources is idempotent.
type PostgresWriter struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string, logger *utils.Logger) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db, logger: logger}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS buildings (
			id                      UUID             PRIMARY KEY,
			name                    TEXT             NOT NULL,
			address                 TEXT             NOT NULL,
			building_type           VARCHAR(32)      NOT NULL,
			area                    DOUBLE PRECISION,
			floor                   INTEGER,
			construction_year       INTEGER,
			road_name               TEXT             NOT NULL DEFAULT '',
			prices                  BIGINT[]         NOT NULL DEFAULT '{}',
			avg_price               NUMERIC(14,2)    NOT NULL DEFAULT 0,
			lat                     DOUBLE PRECISION,
			lon                     DOUBLE PRECISION,
			coordinate_source       VARCHAR(16)      NOT NULL DEFAULT '',
			geohash                 VARCHAR(12)      NOT NULL DEFAULT '',
			school_walking_minutes  INTEGER          NOT NULL DEFAULT 0,
			station_walking_minutes INTEGER          NOT NULL DEFAULT 0,
			nearby                  JSONB            NOT NULL DEFAULT '{}',
			is_sample               BOOLEAN          NOT NULL DEFAULT FALSE,
			sources                 TEXT[]           NOT NULL DEFAULT '{}',
			updated_at              TIMESTAMPTZ      NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_buildings_name_address ON buildings(name, address);
		CREATE INDEX IF NOT EXISTS idx_buildings_type         ON buildings(building_type);
		CREATE INDEX IF NOT EXISTS idx_buildings_geohash      ON buildings(geohash);
		CREATE INDEX IF NOT EXISTS idx_buildings_coord_source ON buildings(coordinate_source);

		CREATE TABLE IF NOT EXISTS facilities (
			id                UUID             PRIMARY KEY,
			name              TEXT             NOT NULL,
			address           TEXT             NOT NULL,
			road_address      TEXT             NOT NULL DEFAULT '',
			category          VARCHAR(32)      NOT NULL,
			sub_category      TEXT             NOT NULL DEFAULT '',
			business_status   VARCHAR(16)      NOT NULL DEFAULT 'unknown',
			lat               DOUBLE PRECISION NOT NULL,
			lon               DOUBLE PRECISION NOT NULL,
			coordinate_source VARCHAR(16)      NOT NULL DEFAULT '',
			geohash           VARCHAR(12)      NOT NULL DEFAULT '',
			sources           TEXT[]           NOT NULL DEFAULT '{}',
			updated_at        TIMESTAMPTZ      NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_facilities_category ON facilities(category);
		CREATE INDEX IF NOT EXISTS idx_facilities_geohash  ON facilities(geohash);
	`)
	return err
}

// ClearNonSample deletes every building not loaded from a sample file, and
// all facilities, ahead of a full reload.
func (pw *PostgresWriter) ClearNonSample(ctx context.Context) error {
	if _, err := pw.db.ExecContext(ctx, "DELETE FROM buildings WHERE is_sample = FALSE"); err != nil {
		return fmt.Errorf("postgres: clear buildings: %w", err)
	}
	if _, err := pw.db.ExecContext(ctx, "DELETE FROM facilities"); err != nil {
		return fmt.Errorf("postgres: clear facilities: %w", err)
	}
	return nil
}

// WriteBuildings upserts buildings in batches.
func (pw *PostgresWriter) WriteBuildings(ctx context.Context, buildings []*models.Building) (WriteResult, error) {
	rows := make([][]interface{}, 0, len(buildings))
	labels := make([]string, 0, len(buildings))
	for _, b := range buildings {
		row, err := buildingValues(b)
		if err != nil {
			return WriteResult{}, err
		}
		rows = append(rows, row)
		labels = append(labels, b.Key.Name+" / "+b.Key.Address)
	}
	return pw.upsert(ctx, "buildings", buildingColumns, rows, labels), ctx.Err()
}

// WriteFacilities upserts facilities in batches.
func (pw *PostgresWriter) WriteFacilities(ctx context.Context, facilities []*models.Facility) (WriteResult, error) {
	rows := make([][]interface{}, 0, len(facilities))
	labels := make([]string, 0, len(facilities))
	for _, f := range facilities {
		if f.Coordinates == nil {
			continue
		}
		rows = append(rows, []interface{}{
			f.ID, f.Key.Name, f.Key.Address, f.RoadAddress, string(f.Category), f.SubCategory,
			f.BusinessStatus, f.Coordinates.Latitude, f.Coordinates.Longitude,
			string(f.CoordinateSource), f.Geohash, pq.Array(nonNilStrings(f.Sources)),
		})
		labels = append(labels, f.Key.Name+" / "+f.Key.Address)
	}
	return pw.upsert(ctx, "facilities", facilityColumns, rows, labels), ctx.Err()
}

func buildingValues(b *models.Building) ([]interface{}, error) {
	nearby := b.Nearby
	if nearby == nil {
		nearby = map[models.FacilityCategory]int{}
	}
	nearbyJSON, err := json.Marshal(nearby)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode nearby counts: %w", err)
	}

	var lat, lon *float64
	if b.Coordinates != nil {
		lat, lon = &b.Coordinates.Latitude, &b.Coordinates.Longitude
	}
	prices := b.Prices
	if prices == nil {
		prices = []int64{}
	}

	return []interface{}{
		b.ID, b.Key.Name, b.Key.Address, string(b.Type), b.Area, b.Floor, b.ConstructionYear, b.RoadName,
		pq.Array(prices), b.AvgPrice(), lat, lon, string(b.CoordinateSource), b.Geohash,
		b.SchoolWalkingMinutes, b.StationWalkingMinutes, string(nearbyJSON), b.IsSample, pq.Array(nonNilStrings(b.Sources)),
	}, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// upsert writes rows batchSize at a time. A failed batch is retried row by
// row so one bad record only costs itself.
func (pw *PostgresWriter) upsert(ctx context.Context, table string, columns []string, rows [][]interface{}, labels []string) WriteResult {
	var res WriteResult
	for i := 0; i < len(rows); i += batchSize {
		if ctx.Err() != nil {
			res.Failed += len(rows) - i
			break
		}
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		err := pw.insertBatch(ctx, table, columns, rows[i:end])
		if err == nil {
			res.Written += end - i
			continue
		}
		pw.logger.Warn("[postgres] Batch insert into %s failed, retrying row by row: %v", table, err)

		for j := i; j < end; j++ {
			if err := pw.insertBatch(ctx, table, columns, rows[j:j+1]); err != nil {
				pw.logger.Error("[postgres] Failed to write %s: %v", labels[j], err)
				res.Failed++
				continue
			}
			res.Written++
		}
	}
	return res
}

func (pw *PostgresWriter) insertBatch(ctx context.Context, table string, columns []string, batch [][]interface{}) error {
	n := len(columns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*n)

	for idx, row := range batch {
		placeholders := make([]string, n)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", idx*n+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs, row...)
	}

	updates := make([]string, 0, n)
	for _, c := range columns[1:] {
		updates = append(updates, c+" = EXCLUDED."+c)
	}
	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET %s
	`, table, strings.Join(columns, ", "), strings.Join(valueStrings, ","), strings.Join(updates, ", "))

	_, err := pw.db.ExecContext(ctx, query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchBuildings retrieves all stored buildings, used by the report command.
func (pw *PostgresWriter) FetchBuildings(ctx context.Context) ([]*models.Building, error) {
	return pw.queryBuildings(ctx, "")
}

// FetchFallbackBuildings retrieves buildings whose coordinates came from the
// deterministic fallback and are candidates for re-geocoding.
func (pw *PostgresWriter) FetchFallbackBuildings(ctx context.Context) ([]*models.Building, error) {
	return pw.queryBuildings(ctx, "WHERE coordinate_source = '"+string(models.SourceFallback)+"'")
}

func (pw *PostgresWriter) queryBuildings(ctx context.Context, where string) ([]*models.Building, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT `+strings.Join(buildingColumns, ", ")+`
		FROM buildings
		`+where+`
		ORDER BY name, address
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch buildings: %w", err)
	}
	defer rows.Close()

	var buildings []*models.Building
	for rows.Next() {
		b := &models.Building{}
		var (
			btype, source  string
			area, lat, lon sql.NullFloat64
			floor, year    sql.NullInt64
			avg            float64
			nearby         []byte
		)
		if err := rows.Scan(
			&b.ID, &b.Key.Name, &b.Key.Address, &btype, &area, &floor, &year, &b.RoadName,
			pq.Array(&b.Prices), &avg, &lat, &lon, &source, &b.Geohash,
			&b.SchoolWalkingMinutes, &b.StationWalkingMinutes, &nearby, &b.IsSample, pq.Array(&b.Sources),
		); err != nil {
			return nil, fmt.Errorf("postgres: scan building: %w", err)
		}

		b.Type = models.ParseBuildingType(btype)
		b.CoordinateSource = models.CoordinateSource(source)
		if area.Valid {
			b.Area = &area.Float64
		}
		if floor.Valid {
			v := int(floor.Int64)
			b.Floor = &v
		}
		if year.Valid {
			v := int(year.Int64)
			b.ConstructionYear = &v
		}
		if lat.Valid && lon.Valid {
			b.Coordinates = &models.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		if len(nearby) > 0 {
			if err := json.Unmarshal(nearby, &b.Nearby); err != nil {
				return nil, fmt.Errorf("postgres: decode nearby counts for %s: %w", b.ID, err)
			}
		}
		buildings = append(buildings, b)
	}
	return buildings, rows.Err()
}

// FetchFacilities retrieves all stored facilities, used to build the
// proximity index for nearby queries.
func (pw *PostgresWriter) FetchFacilities(ctx context.Context) ([]*models.Facility, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT `+strings.Join(facilityColumns, ", ")+`
		FROM facilities
		ORDER BY name, address
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch facilities: %w", err)
	}
	defer rows.Close()

	var facilities []*models.Facility
	for rows.Next() {
		f := &models.Facility{}
		var (
			category, source string
			coords           models.Coordinates
		)
		if err := rows.Scan(
			&f.ID, &f.Key.Name, &f.Key.Address, &f.RoadAddress, &category, &f.SubCategory,
			&f.BusinessStatus, &coords.Latitude, &coords.Longitude, &source, &f.Geohash, pq.Array(&f.Sources),
		); err != nil {
			return nil, fmt.Errorf("postgres: scan facility: %w", err)
		}
		f.Category = models.FacilityCategory(category)
		f.CoordinateSource = models.CoordinateSource(source)
		f.Coordinates = &coords
		facilities = append(facilities, f)
	}
	return facilities, rows.Err()
}

// UpdateCoordinates stores a re-geocoded position and the values derived from it.
func (pw *PostgresWriter) UpdateCoordinates(ctx context.Context, b *models.Building) error {
	if b.Coordinates == nil {
		return fmt.Errorf("postgres: update coordinates for %s: no coordinates", b.ID)
	}
	res, err := pw.db.ExecContext(ctx, `
		UPDATE buildings
		SET lat = $2, lon = $3, coordinate_source = $4, geohash = $5,
		    school_walking_minutes = $6, station_walking_minutes = $7, updated_at = NOW()
		WHERE id = $1
	`, b.ID, b.Coordinates.Latitude, b.Coordinates.Longitude, string(b.CoordinateSource), b.Geohash,
		b.SchoolWalkingMinutes, b.StationWalkingMinutes)
	if err != nil {
		return fmt.Errorf("postgres: update coordinates for %s: %w", b.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("postgres: update coordinates: building %s not found", b.ID)
	}
	return nil
}
