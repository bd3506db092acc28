// Command evaluate runs one full site evaluation and writes the results to a
// GeoJSON file, without starting the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
	"github.com/phenosat/sitefinder/internal/domain/ndvi"
	"github.com/phenosat/sitefinder/internal/infra/config"
	"github.com/phenosat/sitefinder/internal/infra/export"
	"github.com/phenosat/sitefinder/internal/infra/indexsource"
	"github.com/phenosat/sitefinder/internal/infra/phenocam"
	"github.com/phenosat/sitefinder/internal/infra/querycache"
	"github.com/phenosat/sitefinder/internal/infra/resultrepo"
	"github.com/phenosat/sitefinder/internal/infra/stac"
	"github.com/phenosat/sitefinder/pkg/geo"
	"github.com/phenosat/sitefinder/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "config file path (overrides CONFIG_PATH)")
	maxSites := flag.Int("max-sites", 0, "limit the number of sites to evaluate (0 = all)")
	output := flag.String("output", "", "output GeoJSON path (defaults to the configured path)")
	longOutput := flag.Bool("long", false, "include per-date detail in the output")
	upload := flag.Bool("upload", false, "also upload the snapshot to the configured object store")
	clearCache := flag.Bool("clear-cache", false, "drop all cached query responses before running")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("CONFIG_PATH", *configPath)
	}

	if err := run(*maxSites, *output, *longOutput, *upload, *clearCache); err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
}

func run(maxSites int, output string, longOutput, upload, clearCache bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if longOutput {
		cfg.Evaluation.LongOutput = true
	}
	if output == "" {
		output = cfg.Export.OutputPath
	}

	slogLogger := logger.New()

	store, err := querycache.NewFileStore(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("open cache directory: %w", err)
	}
	cache := querycache.New(store, cfg.Cache.CoordinatePrecision, slogLogger)

	if clearCache {
		removed, err := cache.Clear(ctx)
		if err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintf(os.Stderr, "cleared %d cached entries\n", removed)
	}

	bounds := geo.Bounds{
		LatMin: cfg.Directory.LatMin,
		LatMax: cfg.Directory.LatMax,
		LonMin: cfg.Directory.LonMin,
		LonMax: cfg.Directory.LonMax,
	}
	siteSource := phenocam.NewClient(cfg.Directory.URL, bounds, cache, cfg.Cache.DirectoryTTL, cfg.Directory.Timeout, slogLogger)

	svc := evaluation.NewService(
		evaluationConfig(cfg),
		siteSource,
		&sourceFactory{cfg: cfg, cache: cache, logger: slogLogger},
		resultrepo.NewMemoryRepository(),
		slogLogger,
	)

	started := time.Now()
	results, err := svc.EvaluateAll(ctx, maxSites)
	if err != nil {
		return err
	}

	if err := export.WriteFile(output, results); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	if upload && cfg.Export.Object.Enabled {
		objectStore, err := export.NewObjectStore(
			cfg.Export.Object.Endpoint,
			cfg.Export.Object.AccessKey,
			cfg.Export.Object.SecretKey,
			cfg.Export.Object.Bucket,
			cfg.Export.Object.Region,
			slogLogger,
		)
		if err != nil {
			return err
		}
		key, err := objectStore.Upload(ctx, results, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "snapshot uploaded as %s\n", key)
	}

	printSummary(results, output, time.Since(started), cache.Stats())
	return nil
}

func printSummary(results []evaluation.SeasonResult, output string, elapsed time.Duration, stats querycache.Stats) {
	scored := make([]evaluation.SeasonResult, 0, len(results))
	failed := 0
	for _, result := range results {
		if result.Failed() {
			failed++
			continue
		}
		if result.Score != nil {
			scored = append(scored, result)
		}
	}
	sort.Slice(scored, func(i, j int) bool { return *scored[i].Score > *scored[j].Score })

	fmt.Printf("evaluated %d site-seasons in %s (%d failed)\n", len(results), elapsed.Round(time.Second), failed)
	fmt.Printf("cache: %d hits / %d misses (%.1f%% hit rate)\n", stats.Hits, stats.Misses, stats.HitRatePercent)
	fmt.Printf("results written to %s\n\n", output)

	top := scored
	if len(top) > 10 {
		top = top[:10]
	}
	if len(top) == 0 {
		return
	}
	fmt.Println("top sites:")
	for _, result := range top {
		label := result.SiteID
		if result.VegetationType != "" {
			label += " (" + result.VegetationType + ")"
		}
		fmt.Printf("  %-40s %d  score %.2f\n", label, result.Year, *result.Score)
	}
}

func evaluationConfig(cfg *config.Config) evaluation.Config {
	return evaluation.Config{
		GrowingSeasonMonths:  cfg.Evaluation.GrowingSeasonMonths,
		GapCountThreshold:    cfg.Evaluation.GapCountThreshold,
		SceneGapThreshold:    cfg.Evaluation.SceneGapThreshold,
		NDVIGapThreshold:     cfg.NDVI.GapThreshold,
		WeightedGapTau:       cfg.Evaluation.WeightedGapTau,
		Workers:              cfg.Evaluation.Workers,
		OverlapToleranceDays: cfg.Evaluation.OverlapToleranceDay,
		SceneLimit:           cfg.STAC.SceneLimit,
		Sentinel2Collection:  cfg.STAC.Sentinel2Collection,
		Sentinel3Collection:  cfg.STAC.Sentinel3Collection,
		LongOutput:           cfg.Evaluation.LongOutput,
		Detector: ndvi.DetectorConfig{
			WindowDays:       cfg.NDVI.EnvelopeWindowDays,
			Percentile:       cfg.NDVI.EnvelopePercentile,
			ThresholdBelow:   cfg.NDVI.EnvelopeThresholdBelow,
			ImplausibleFloor: cfg.NDVI.ImplausibleFloor,
		},
	}
}

// sourceFactory builds fresh remote clients so each evaluation worker owns
// its own connections.
type sourceFactory struct {
	cfg    *config.Config
	cache  *querycache.Cache
	logger *slog.Logger
}

func (f *sourceFactory) SceneSource() evaluation.SceneSource {
	return stac.NewClient(
		f.cfg.STAC.URL,
		f.cfg.STAC.BufferKm,
		f.cfg.STAC.MaxCloudCover,
		f.cache,
		f.cfg.Cache.ImageryTTL,
		f.cfg.STAC.Timeout,
		f.logger,
	)
}

func (f *sourceFactory) IndexSource() evaluation.IndexSource {
	if strings.TrimSpace(f.cfg.Index.URL) == "" {
		return nil
	}
	return indexsource.NewClient(f.cfg.Index.URL, f.cache, f.cfg.Cache.ImageryTTL, f.cfg.Index.Timeout, f.logger)
}
