package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
	"github.com/phenosat/sitefinder/internal/domain/ndvi"
	"github.com/phenosat/sitefinder/internal/infra/config"
	"github.com/phenosat/sitefinder/internal/infra/indexsource"
	"github.com/phenosat/sitefinder/internal/infra/phenocam"
	"github.com/phenosat/sitefinder/internal/infra/querycache"
	"github.com/phenosat/sitefinder/internal/infra/resultrepo"
	"github.com/phenosat/sitefinder/internal/infra/stac"
	"github.com/phenosat/sitefinder/pkg/geo"
)

func provideCacheStore(cfg *config.Config, logger *slog.Logger) querycache.Store {
	if cfg.Cache.Valkey.Enabled {
		opt, err := buildValkeyOptions(cfg)
		if err != nil {
			logger.Error("invalid valkey configuration, falling back to file store", "error", err)
		} else if client, err := valkey.NewClient(opt); err != nil {
			logger.Error("failed to create valkey client, falling back to file store", "error", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
				logger.Error("valkey ping failed, falling back to file store", "error", err)
			} else {
				logger.Info("valkey cache store enabled", "addr", cfg.Cache.Valkey.Addr)
				return querycache.NewValkeyStore(client, "sitefinder:cache", cfg.Cache.ImageryTTL)
			}
		}
	}

	store, err := querycache.NewFileStore(cfg.Cache.Dir)
	if err != nil {
		logger.Error("cache directory unavailable, using memory store", "dir", cfg.Cache.Dir, "error", err)
		return querycache.NewMemoryStore()
	}
	return store
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(cfg.Cache.Valkey.Addr, "://") {
		opt, err = valkey.ParseURL(cfg.Cache.Valkey.Addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{cfg.Cache.Valkey.Addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}

func provideCache(store querycache.Store, cfg *config.Config, logger *slog.Logger) *querycache.Cache {
	return querycache.New(store, cfg.Cache.CoordinatePrecision, logger)
}

func provideSiteSource(cfg *config.Config, cache *querycache.Cache, logger *slog.Logger) evaluation.SiteSource {
	bounds := geo.Bounds{
		LatMin: cfg.Directory.LatMin,
		LatMax: cfg.Directory.LatMax,
		LonMin: cfg.Directory.LonMin,
		LonMax: cfg.Directory.LonMax,
	}
	return phenocam.NewClient(cfg.Directory.URL, bounds, cache, cfg.Cache.DirectoryTTL, cfg.Directory.Timeout, logger)
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

func provideSourceFactory(cfg *config.Config, cache *querycache.Cache, logger *slog.Logger) evaluation.SourceFactory {
	return &sourceFactory{cfg: cfg, cache: cache, logger: logger}
}

func provideResultRepository(cfg *config.Config, logger *slog.Logger) evaluation.ResultRepository {
	fallback := resultrepo.NewMemoryRepository()
	dsn := strings.TrimSpace(cfg.Results.Postgres.DSN)
	if dsn == "" {
		logger.Info("results postgres dsn not set, using memory repository")
		return fallback
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repository", "error", err)
		return fallback
	}
	if cfg.Results.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Results.Postgres.MaxConns
	}
	if cfg.Results.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Results.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repository", "error", err)
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repository", "error", err)
		pool.Close()
		return fallback
	}
	repo := resultrepo.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("results schema migration failed, using memory repository", "error", err)
		pool.Close()
		return fallback
	}
	logger.Info("results postgres repository enabled")
	return repo
}

func provideEvaluationConfig(cfg *config.Config) evaluation.Config {
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
