package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"realestate-ingest/models"
	"realestate-ingest/utils"
)

const reportCellPrecision = 5

// InsightService builds and prints the ingestion report.
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates an InsightService.
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// NewReport returns an empty report with every map allocated.
func NewReport(runID string) *models.IngestReport {
	return &models.IngestReport{
		RunID:                runID,
		FailedSources:        make(map[string]string),
		Skipped:              make(map[string]int),
		BuildingsByType:      make(map[models.BuildingType]int),
		BuildingsByCell:      make(map[string]int),
		FacilitiesByCategory: make(map[models.FacilityCategory]int),
		CoordinateSources:    make(map[models.CoordinateSource]int),
	}
}

// Generate fills the entity statistics of r from the finalized records.
// Ingestion counters (lines, skips, merges) are left as the pipeline set them.
func (s *InsightService) Generate(r *models.IngestReport, buildings []*models.Building, facilities []*models.Facility) *models.IngestReport {
	if r == nil {
		r = NewReport("")
	}
	r.TotalBuildings = len(buildings)
	r.TotalFacilities = len(facilities)

	var (
		total    int64
		observed int
		bestAvg  float64
	)
	for _, b := range buildings {
		r.BuildingsByType[b.Type]++
		if b.CoordinateSource != "" {
			r.CoordinateSources[b.CoordinateSource]++
		}
		if len(b.Geohash) >= reportCellPrecision {
			r.BuildingsByCell[b.Geohash[:reportCellPrecision]]++
		}

		for _, p := range b.Prices {
			if observed == 0 || p < r.MinPrice {
				r.MinPrice = p
			}
			if observed == 0 || p > r.MaxPrice {
				r.MaxPrice = p
			}
			total += p
			observed++
		}
		if avg := b.AvgPrice(); len(b.Prices) > 0 && (r.MostExpensive == nil || avg > bestAvg) {
			r.MostExpensive = b
			bestAvg = avg
		}
	}
	if observed > 0 {
		r.AveragePrice = round2(float64(total) / float64(observed))
	}

	for _, f := range facilities {
		r.FacilitiesByCategory[f.Category]++
	}
	return r
}

func (s *InsightService) Print(r *models.IngestReport) {
	s.Fprint(os.Stdout, r)
}

func (s *InsightService) Fprint(w io.Writer, r *models.IngestReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 INGESTION REPORT  %s\033[0m\n", r.RunID)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Sources read      : \033[1m%d\033[0m\n", len(r.SourcesRead))
	fmt.Fprintf(w, "  Lines read        : \033[1m%d\033[0m\n", r.LinesRead)
	fmt.Fprintf(w, "  Records kept      : \033[1m%d\033[0m\n", r.RecordsKept)
	fmt.Fprintf(w, "  Records merged    : \033[1m%d\033[0m\n", r.Merged)
	fmt.Fprintf(w, "  Records skipped   : \033[1m%d\033[0m\n", r.SkippedTotal())
	fmt.Fprintf(w, "  Buildings         : \033[1m%d\033[0m\n", r.TotalBuildings)
	fmt.Fprintf(w, "  Facilities        : \033[1m%d\033[0m\n", r.TotalFacilities)
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  Duration          : %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Deposit Statistics (만원)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average deposit : \033[1;32m%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum deposit : \033[1;32m%d\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum deposit : \033[1;32m%d\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Building\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Key.Name, 50))
		fmt.Fprintf(w, "  Address : %s\n", r.MostExpensive.Key.Address)
		fmt.Fprintf(w, "  Average : \033[1;31m%.2f\033[0m over %d transactions\n",
			r.MostExpensive.AvgPrice(), len(r.MostExpensive.Prices))
		fmt.Fprintln(w)
	}

	printCounts(w, thin, "Buildings by Type", stringKeys(r.BuildingsByType))
	printCounts(w, thin, "Buildings by Area Cell", r.BuildingsByCell)
	printCounts(w, thin, "Facilities by Category", stringKeys(r.FacilitiesByCategory))
	printCounts(w, thin, "Coordinate Sources", stringKeys(r.CoordinateSources))
	printCounts(w, thin, "Skipped Records", r.Skipped)

	if len(r.FailedSources) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Failed Sources\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		files := make([]string, 0, len(r.FailedSources))
		for f := range r.FailedSources {
			files = append(files, f)
		}
		sort.Strings(files)
		for _, f := range files {
			fmt.Fprintf(w, "  \033[31m%s\033[0m: %s\n", truncate(f, 40), r.FailedSources[f])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

func printCounts(w io.Writer, thin, title string, counts map[string]int) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}

	// Sort by count descending, then key, so the output is stable
	type keyCount struct {
		key   string
		count int
	}
	var rows []keyCount
	for k, c := range counts {
		rows = append(rows, keyCount{k, c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	for _, kc := range rows {
		bar := strings.Repeat("█", min(kc.count, 30))
		fmt.Fprintf(w, "  %-24s %s (%d)\n", truncate(kc.key, 22), bar, kc.count)
	}
	fmt.Fprintln(w)
}

func stringKeys[K ~string](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
