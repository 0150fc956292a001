package models

import "time"

// IngestReport holds the statistics computed over one ingestion run.
type IngestReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	SourcesRead   []string
	FailedSources map[string]string

	LinesRead   int
	RecordsKept int
	Merged      int
	Skipped     map[string]int

	TotalBuildings  int
	TotalFacilities int

	AveragePrice  float64
	MinPrice      int64
	MaxPrice      int64
	MostExpensive *Building

	BuildingsByType      map[BuildingType]int
	BuildingsByCell      map[string]int
	FacilitiesByCategory map[FacilityCategory]int
	CoordinateSources    map[CoordinateSource]int
}

// SkippedTotal returns the number of dropped records across all reasons.
func (r *IngestReport) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}
