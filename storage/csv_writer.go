package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"realestate-ingest/models"
)

var csvHeader = []string{
	"id", "name", "address", "type", "area", "floor", "construction_year", "road_name",
	"prices", "avg_price", "lat", "lon", "coordinate_source", "geohash",
	"school_walking_minutes", "station_walking_minutes", "is_sample", "sources",
}

// CSVWriter exports canonical buildings to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteBuildings appends one row per building. Prices are joined with ';'.
func (c *CSVWriter) WriteBuildings(_ context.Context, buildings []*models.Building) (WriteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res WriteResult
	for _, b := range buildings {
		if err := c.writer.Write(buildingRow(b)); err != nil {
			return res, fmt.Errorf("csv: write row: %w", err)
		}
		res.Written++
	}

	c.writer.Flush()
	return res, c.writer.Error()
}

func buildingRow(b *models.Building) []string {
	prices := make([]string, len(b.Prices))
	for i, p := range b.Prices {
		prices[i] = strconv.FormatInt(p, 10)
	}
	lat, lon := "", ""
	if b.Coordinates != nil {
		lat = strconv.FormatFloat(b.Coordinates.Latitude, 'f', -1, 64)
		lon = strconv.FormatFloat(b.Coordinates.Longitude, 'f', -1, 64)
	}
	return []string{
		b.ID.String(),
		b.Key.Name,
		b.Key.Address,
		string(b.Type),
		optFloat(b.Area),
		optInt(b.Floor),
		optInt(b.ConstructionYear),
		b.RoadName,
		strings.Join(prices, ";"),
		strconv.FormatFloat(b.AvgPrice(), 'f', 2, 64),
		lat,
		lon,
		string(b.CoordinateSource),
		b.Geohash,
		strconv.Itoa(b.SchoolWalkingMinutes),
		strconv.Itoa(b.StationWalkingMinutes),
		strconv.FormatBool(b.IsSample),
		strings.Join(b.Sources, ";"),
	}
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
