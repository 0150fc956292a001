package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"

	"realestate-ingest/geocode"
	"realestate-ingest/layout"
	"realestate-ingest/models"
	"realestate-ingest/proximity"
	"realestate-ingest/utils"
)

// GeohashPrecision is the geohash length stored on every entity.
const GeohashPrecision = 7

// Result is the canonical output of one ingestion run.
type Result struct {
	Buildings  []*models.Building
	Facilities []*models.Facility
	Report     *models.IngestReport
}

// PipelineOptions tunes a Pipeline. Zero values pick the defaults.
type PipelineOptions struct {
	Namespace uuid.UUID
	// NearbyRadiusKm enables nearby facility counts on buildings when > 0.
	NearbyRadiusKm float64
	// GeocodeIntervalMs is the fixed minimum delay between live geocoder
	// calls. Addresses already in the resolver memo are not delayed.
	GeocodeIntervalMs int
	Now               func() time.Time
}

// Pipeline reads raw sources and produces deduplicated, located entities.
// A Pipeline may be reused; each Run owns its own keyed sets.
type Pipeline struct {
	registry   *layout.Registry
	reader     *SourceReader
	normalizer *Normalizer
	resolver   *geocode.Resolver
	walking    *WalkingEstimator
	insights   *InsightService
	logger     *utils.Logger
	pois       PointsOfInterest
	opts       PipelineOptions
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(registry *layout.Registry, resolver *geocode.Resolver, walking *WalkingEstimator, logger *utils.Logger, opts PipelineOptions) *Pipeline {
	if opts.Namespace == uuid.Nil {
		opts.Namespace = DefaultNamespace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		registry:   registry,
		reader:     NewSourceReader(logger),
		normalizer: NewNormalizer(registry, logger),
		resolver:   resolver,
		walking:    walking,
		insights:   NewInsightService(logger),
		logger:     logger,
		pois: PointsOfInterest{
			Schools:  registry.POIs(layout.POISchool),
			Stations: registry.POIs(layout.POIStation),
		},
		opts: opts,
	}
}

// DiscoverSources lists the .csv and .txt files directly under dir, sorted by name.
func DiscoverSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list data dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv", ".txt":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// RunDir ingests every source file found in dir.
func (p *Pipeline) RunDir(ctx context.Context, dir string) (*Result, error) {
	files, err := DiscoverSources(dir)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, files)
}

// Run ingests files in order. Unreadable or unrecognised files are reported
// and skipped; only cancellation of ctx aborts the run.
func (p *Pipeline) Run(ctx context.Context, files []string) (*Result, error) {
	report := NewReport(uuid.NewString())
	report.StartedAt = p.opts.Now()

	buildings := NewBuildingSet()
	facilities := NewFacilitySet()

	p.logger.Info("[pipeline] Run %s: %d source file(s)", report.RunID, len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingestion cancelled: %w", err)
		}

		src, ok := p.registry.Match(file)
		if !ok {
			p.logger.Warn("[pipeline] No layout matches %s, skipping", file)
			report.FailedSources[file] = "no matching layout"
			continue
		}

		kept := 0
		lines, err := p.reader.Read(src, func(rec models.RawRecord) {
			n, err := p.normalizer.Normalize(rec, src)
			if err != nil {
				p.recordSkip(report, err)
				return
			}
			kept++
			switch {
			case n.Building != nil:
				if buildings.Add(n.Building) {
					report.Merged++
				}
			case n.Facility != nil:
				if facilities.Add(n.Facility) {
					report.Merged++
				}
			}
		})
		report.LinesRead += lines
		report.RecordsKept += kept
		if err != nil {
			// Rows read before the failure stay in the run.
			p.logger.Error("[pipeline] %v", err)
			report.FailedSources[file] = err.Error()
			continue
		}
		report.SourcesRead = append(report.SourcesRead, file)
		p.logger.Info("[pipeline] %s (%s): %d lines, %d records kept", filepath.Base(file), src.Layout.Name, lines, kept)
	}

	gate := &geocodeGate{resolver: p.resolver, pool: utils.NewWorkerPool(1, p.opts.GeocodeIntervalMs)}
	outBuildings := p.finalizeBuildings(ctx, gate, buildings.All())
	outFacilities := p.finalizeFacilities(ctx, gate, facilities.All(), report)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingestion cancelled: %w", err)
	}

	if p.opts.NearbyRadiusKm > 0 && len(outFacilities) > 0 {
		proximity.EnrichBuildings(outBuildings, NewFacilityIndex(outFacilities), p.opts.NearbyRadiusKm)
	}

	p.insights.Generate(report, outBuildings, outFacilities)
	report.FinishedAt = p.opts.Now()

	p.logger.Info("[pipeline] Run %s complete: %d buildings, %d facilities, %d skipped",
		report.RunID, len(outBuildings), len(outFacilities), report.SkippedTotal())

	return &Result{Buildings: outBuildings, Facilities: outFacilities, Report: report}, nil
}

func (p *Pipeline) recordSkip(report *models.IngestReport, err error) {
	var skip *SkipError
	if errors.As(err, &skip) {
		report.Skipped[string(skip.Reason)]++
		p.logger.Debug("[pipeline] %v", skip)
		return
	}
	report.Skipped["error"]++
	p.logger.Warn("[pipeline] unexpected normalize error: %v", err)
}

// finalizeBuildings gives every building an id, a coordinate, a geohash and walking times.
func (p *Pipeline) finalizeBuildings(ctx context.Context, gate *geocodeGate, all []*models.Building) []*models.Building {
	for _, b := range all {
		b.ID = BuildingID(p.opts.Namespace, b.Key)
		if b.Coordinates == nil {
			coords, src := p.resolver.Fallback(b.Key.Address), models.SourceFallback
			gate.do(ctx, b.Key.Address, func(ctx context.Context) {
				coords, src = p.resolver.Resolve(ctx, b.Key.Address)
			})
			b.Coordinates = &coords
			b.CoordinateSource = src
		}
		b.Geohash = geohash.EncodeWithPrecision(b.Coordinates.Latitude, b.Coordinates.Longitude, GeohashPrecision)
		p.walking.Estimate(b, p.pois)
	}
	return all
}

// finalizeFacilities geocodes facilities that arrived without coordinates and
// drops the ones that still have none.
func (p *Pipeline) finalizeFacilities(ctx context.Context, gate *geocodeGate, all []*models.Facility, report *models.IngestReport) []*models.Facility {
	lookup := func(address string) (coords models.Coordinates, ok bool) {
		gate.do(ctx, address, func(ctx context.Context) {
			coords, ok = p.resolver.Lookup(ctx, address)
		})
		return coords, ok
	}

	out := make([]*models.Facility, 0, len(all))
	for _, f := range all {
		if f.Coordinates == nil {
			coords, ok := lookup(f.Key.Address)
			if !ok && f.RoadAddress != "" {
				coords, ok = lookup(f.RoadAddress)
			}
			if !ok {
				p.recordSkip(report, &SkipError{
					Reason: SkipUnresolvedCoordinates,
					Source: strings.Join(f.Sources, ","),
					Detail: f.Key.Name,
				})
				continue
			}
			f.Coordinates = &coords
			f.CoordinateSource = models.SourceGeocoder
		}
		f.ID = FacilityID(p.opts.Namespace, f.Key)
		f.Geohash = geohash.EncodeWithPrecision(f.Coordinates.Latitude, f.Coordinates.Longitude, GeohashPrecision)
		out = append(out, f)
	}
	return out
}

// geocodeGate sends live geocoder calls through a single-worker pool so
// consecutive calls are spaced by the pool interval. Memo hits and disabled
// resolvers run inline.
type geocodeGate struct {
	resolver *geocode.Resolver
	pool     *utils.WorkerPool
}

// do runs fn and returns once it has finished. fn is skipped when ctx is
// cancelled while waiting for its slot.
func (g *geocodeGate) do(ctx context.Context, address string, fn func(ctx context.Context)) {
	if !g.resolver.Enabled() || g.resolver.Cached(address) {
		fn(ctx)
		return
	}
	g.pool.Submit(ctx, fn)
	g.pool.Wait()
}

// NewFacilityIndex snapshots located facilities into a proximity index.
func NewFacilityIndex(facilities []*models.Facility) *proximity.Index {
	snapshot := make([]models.Facility, 0, len(facilities))
	for _, f := range facilities {
		snapshot = append(snapshot, *f)
	}
	return proximity.NewIndex(snapshot)
}
