package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"realestate-ingest/config"
	"realestate-ingest/geocode"
	"realestate-ingest/layout"
	"realestate-ingest/models"
	"realestate-ingest/proximity"
	"realestate-ingest/services"
	"realestate-ingest/storage"
	"realestate-ingest/utils"
)

func runIngest(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	dir := fs.String("dir", cfg.DataDir, "directory holding the raw .csv/.txt files")
	layouts := fs.String("layouts", cfg.LayoutFile, "layout registry YAML (default: built-in)")
	clearFirst := fs.Bool("clear", false, "delete non-sample rows before loading")
	noDB := fs.Bool("no-db", false, "skip PostgreSQL")
	csvPath := fs.String("csv", cfg.CSVOutputPath, "also export buildings to this CSV file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger.Info("=== Real estate ingestion starting ===")
	logger.Info("Config: dir %s | geocoder %s | nearby radius %.2f km | rate %dms",
		*dir, cfg.Geocoder, cfg.NearbyRadiusKm, cfg.RateLimitMs)

	registry, err := layout.Load(*layouts)
	if err != nil {
		return err
	}

	g, closeGeocoder, err := buildGeocoder(cfg, logger)
	if err != nil {
		return err
	}
	defer closeGeocoder()

	resolver := geocode.NewResolver(g, cfg.GeocodeTimeout(), logger)
	pipeline := services.NewPipeline(registry, resolver, newWalkingEstimator(cfg), logger, services.PipelineOptions{
		Namespace:         services.NamespaceFor(cfg.IDNamespace),
		NearbyRadiusKm:    cfg.NearbyRadiusKm,
		GeocodeIntervalMs: cfg.RateLimitMs,
	})

	result, err := pipeline.RunDir(ctx, *dir)
	if err != nil {
		return err
	}
	if len(result.Buildings) == 0 && len(result.Facilities) == 0 {
		return errors.New("no records survived normalization")
	}

	sinks := storage.NewMultiWriter(logger)
	defer sinks.Close()

	if !*noDB {
		pg, err := storage.NewPostgresWriter(cfg.DSN(), logger)
		if err != nil {
			logger.Error("Make sure Docker is running: docker compose up -d")
			return err
		}
		if *clearFirst {
			if err := pg.ClearNonSample(ctx); err != nil {
				_ = pg.Close()
				return err
			}
			logger.Info("Cleared non-sample rows")
		}
		sinks.Add("postgres", pg)
	}
	if *csvPath != "" {
		w, err := storage.NewCSVWriter(*csvPath)
		if err != nil {
			return err
		}
		sinks.Add("csv", w)
	}
	if cfg.AMQPURL != "" {
		retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: time.Second, Logger: logger}
		p, err := storage.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, result.Report.RunID, retry, logger)
		if err != nil {
			logger.Warn("[main] Event publishing disabled: %v", err)
		} else {
			sinks.Add("amqp", p)
		}
	}
	if cfg.ElasticsearchURL != "" {
		es, err := storage.NewElasticWriter(cfg.ElasticsearchURL, cfg.ElasticIndex, logger)
		if err != nil {
			logger.Warn("[main] Elasticsearch indexing disabled: %v", err)
		} else {
			sinks.Add("elasticsearch", es)
		}
	}

	if sinks.Len() > 0 {
		if _, err := sinks.Write(ctx, result.Buildings, result.Facilities); err != nil {
			logger.Error("Some sinks failed: %v", err)
		}
	}

	services.NewInsightService(logger).Print(result.Report)
	if *csvPath != "" {
		fmt.Printf("  Done. Buildings CSV → %s\n\n", *csvPath)
	}
	return nil
}

func runBackfill(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	layouts := fs.String("layouts", cfg.LayoutFile, "layout registry YAML (default: built-in)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bf, cleanup, err := newBackfiller(cfg, logger, *layouts)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := bf.backfiller.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n  Backfill: %d candidate(s), %d/%d address(es) resolved, %d updated, %d failed\n\n",
		res.Candidates, res.Resolved, res.Addresses, res.Updated, res.Failed)
	return nil
}

func runRescan(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("rescan", flag.ExitOnError)
	layouts := fs.String("layouts", cfg.LayoutFile, "layout registry YAML (default: built-in)")
	interval := fs.Duration("interval", cfg.RescanInterval, "time between passes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("rescan interval must be positive, got %s", *interval)
	}

	bf, cleanup, err := newBackfiller(cfg, logger, *layouts)
	if err != nil {
		return err
	}
	defer cleanup()

	services.NewRescanner(bf.backfiller, bf.resolver, *interval, services.SystemClock, logger).Run(ctx)
	return nil
}

func runNearby(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("nearby", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "latitude of the query centre")
	lon := fs.Float64("lon", 0, "longitude of the query centre")
	radius := fs.Float64("radius", cfg.NearbyRadiusKm, "radius in kilometres")
	category := fs.String("category", "", "CONVENIENCE_STORE, MART, HOSPITAL or OTHER (default: any)")
	operating := fs.Bool("operating", false, "only facilities currently in business")
	list := fs.Bool("list", false, "print every match, not just the count")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pg, err := storage.NewPostgresWriter(cfg.DSN(), logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	facilities, err := pg.FetchFacilities(ctx)
	if err != nil {
		return err
	}
	idx := services.NewFacilityIndex(facilities)

	q := proximity.Query{
		Center:        models.Coordinates{Latitude: *lat, Longitude: *lon},
		RadiusKm:      *radius,
		Category:      models.FacilityCategory(*category),
		OperatingOnly: *operating,
	}
	matches := idx.List(q)
	fmt.Printf("\n  %d facilit(ies) within %.2f km of (%.5f, %.5f)\n", len(matches), *radius, *lat, *lon)
	if *list {
		for _, m := range matches {
			fmt.Printf("  %7.3f km  %-18s %s (%s)\n", m.DistanceKm, m.Facility.Category, m.Facility.Key.Name, m.Facility.Key.Address)
		}
	}
	fmt.Println()
	return nil
}

func runReport(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	pg, err := storage.NewPostgresWriter(cfg.DSN(), logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	buildings, err := pg.FetchBuildings(ctx)
	if err != nil {
		return err
	}
	facilities, err := pg.FetchFacilities(ctx)
	if err != nil {
		return err
	}

	insights := services.NewInsightService(logger)
	report := insights.Generate(services.NewReport("stored"), buildings, facilities)
	insights.Print(report)
	return nil
}

type backfillDeps struct {
	backfiller *services.Backfiller
	resolver   *geocode.Resolver
}

func newBackfiller(cfg *config.Config, logger *utils.Logger, layoutFile string) (*backfillDeps, func(), error) {
	registry, err := layout.Load(layoutFile)
	if err != nil {
		return nil, nil, err
	}
	g, closeGeocoder, err := buildGeocoder(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		closeGeocoder()
		return nil, nil, errors.New("backfill needs a geocoder: set GEOCODER to kakao, browser or chain")
	}

	pg, err := storage.NewPostgresWriter(cfg.DSN(), logger)
	if err != nil {
		closeGeocoder()
		return nil, nil, err
	}

	resolver := geocode.NewResolver(g, cfg.GeocodeTimeout(), logger)
	bf := services.NewBackfiller(pg, resolver, newWalkingEstimator(cfg), registry, cfg.RateLimitMs, logger)
	cleanup := func() {
		_ = pg.Close()
		closeGeocoder()
	}
	return &backfillDeps{backfiller: bf, resolver: resolver}, cleanup, nil
}

// buildGeocoder returns nil when live geocoding is disabled. The returned
// func releases the browser, if one was configured.
func buildGeocoder(cfg *config.Config, logger *utils.Logger) (geocode.Geocoder, func(), error) {
	noop := func() {}
	kakao := func() (geocode.Geocoder, error) {
		c := geocode.NewKakaoClient(cfg.KakaoAPIKey)
		if c == nil {
			return nil, errors.New("GEOCODER=kakao requires KAKAO_REST_API_KEY")
		}
		return c, nil
	}

	switch cfg.Geocoder {
	case "", config.GeocoderNone:
		logger.Info("[main] Live geocoding disabled, using fallback coordinates")
		return nil, noop, nil
	case config.GeocoderKakao:
		g, err := kakao()
		return g, noop, err
	case config.GeocoderBrowser:
		b := geocode.NewBrowserGeocoder(cfg.ChromeBin, cfg.MaxRetries, logger)
		return b, b.Close, nil
	case config.GeocoderChain:
		b := geocode.NewBrowserGeocoder(cfg.ChromeBin, cfg.MaxRetries, logger)
		chain := geocode.Chain{}
		if k, err := kakao(); err == nil {
			chain = append(chain, k)
		} else {
			logger.Warn("[main] Kakao skipped in chain: %v", err)
		}
		chain = append(chain, b)
		return chain, b.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown GEOCODER %q", cfg.Geocoder)
}

func newWalkingEstimator(cfg *config.Config) *services.WalkingEstimator {
	seed := cfg.WalkingSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return services.NewWalkingEstimator(rand.New(rand.NewSource(seed)))
}
