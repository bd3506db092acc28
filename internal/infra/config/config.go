package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	NDVI       NDVIConfig       `yaml:"ndvi"`
	Cache      CacheConfig      `yaml:"cache"`
	STAC       STACConfig       `yaml:"stac"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Index      IndexConfig      `yaml:"index"`
	Results    ResultsConfig    `yaml:"results"`
	Export     ExportConfig     `yaml:"export"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string        `yaml:"address"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

// EvaluationConfig holds every tunable of the seasonal evaluation engine.
type EvaluationConfig struct {
	GrowingSeasonMonths []int   `yaml:"growingSeasonMonths"`
	GapCountThreshold   int     `yaml:"gapCountThreshold"`
	SceneGapThreshold   int     `yaml:"sceneGapThreshold"`
	WeightedGapTau      float64 `yaml:"weightedGapTau"`
	Workers             int     `yaml:"workers"`
	OverlapToleranceDay int     `yaml:"overlapToleranceDays"`
	MaxSites            int     `yaml:"maxSites"`
	LongOutput          bool    `yaml:"longOutput"`
}

// NDVIConfig drives the vegetation index outlier detector and its gap stats.
type NDVIConfig struct {
	EnvelopeWindowDays     int     `yaml:"envelopeWindowDays"`
	EnvelopePercentile     float64 `yaml:"envelopePercentile"`
	EnvelopeThresholdBelow float64 `yaml:"envelopeThresholdBelow"`
	ImplausibleFloor       float64 `yaml:"implausibleFloor"`
	GapThreshold           int     `yaml:"gapThreshold"`
}

// CacheConfig controls the keyed TTL query cache.
type CacheConfig struct {
	Dir                 string        `yaml:"dir"`
	DirectoryTTL        time.Duration `yaml:"directoryTtl"`
	ImageryTTL          time.Duration `yaml:"imageryTtl"`
	CoordinatePrecision int           `yaml:"coordinatePrecision"`
	Valkey              ValkeyConfig  `yaml:"valkey"`
}

// ValkeyConfig selects the optional Valkey-backed cache store.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// STACConfig points at the imagery search endpoint.
type STACConfig struct {
	URL                 string        `yaml:"url"`
	Sentinel2Collection string        `yaml:"sentinel2Collection"`
	Sentinel3Collection string        `yaml:"sentinel3Collection"`
	BufferKm            float64       `yaml:"bufferKm"`
	MaxCloudCover       float64       `yaml:"maxCloudCover"`
	SceneLimit          int           `yaml:"sceneLimit"`
	Timeout             time.Duration `yaml:"timeout"`
}

// DirectoryConfig points at the camera-network directory API.
type DirectoryConfig struct {
	URL     string        `yaml:"url"`
	LatMin  float64       `yaml:"latMin"`
	LatMax  float64       `yaml:"latMax"`
	LonMin  float64       `yaml:"lonMin"`
	LonMax  float64       `yaml:"lonMax"`
	Timeout time.Duration `yaml:"timeout"`
}

// IndexConfig points at the vegetation index processing backend.
type IndexConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ResultsConfig contains DSN and pooling settings for result persistence.
type ResultsConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// ExportConfig controls GeoJSON output and optional object-store upload.
type ExportConfig struct {
	OutputPath string            `yaml:"outputPath"`
	Object     ObjectStoreConfig `yaml:"object"`
}

// ObjectStoreConfig holds S3-compatible upload settings.
type ObjectStoreConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("EVAL_WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Evaluation.Workers = parsed
		}
	}
	if v := os.Getenv("EVAL_MAX_SITES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Evaluation.MaxSites = parsed
		}
	}
	if v := os.Getenv("EVAL_LONG_OUTPUT"); v != "" {
		cfg.Evaluation.LongOutput = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("CACHE_DIRECTORY_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DirectoryTTL = parsed
		}
	}
	if v := os.Getenv("CACHE_IMAGERY_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ImageryTTL = parsed
		}
	}
	if v := os.Getenv("CACHE_VALKEY_ENABLED"); v != "" {
		cfg.Cache.Valkey.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("CACHE_VALKEY_ADDR"); v != "" {
		cfg.Cache.Valkey.Addr = v
	}
	if v := os.Getenv("STAC_URL"); v != "" {
		cfg.STAC.URL = v
	}
	if v := os.Getenv("DIRECTORY_URL"); v != "" {
		cfg.Directory.URL = v
	}
	if v := os.Getenv("INDEX_URL"); v != "" {
		cfg.Index.URL = v
	}
	if v := os.Getenv("RESULTS_POSTGRES_DSN"); v != "" {
		cfg.Results.Postgres.DSN = v
	}
	if v := os.Getenv("EXPORT_OUTPUT_PATH"); v != "" {
		cfg.Export.OutputPath = v
	}
	if v := os.Getenv("EXPORT_OBJECT_ENABLED"); v != "" {
		cfg.Export.Object.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("EXPORT_OBJECT_ENDPOINT"); v != "" {
		cfg.Export.Object.Endpoint = v
	}
	if v := os.Getenv("EXPORT_OBJECT_ACCESS_KEY"); v != "" {
		cfg.Export.Object.AccessKey = v
	}
	if v := os.Getenv("EXPORT_OBJECT_SECRET_KEY"); v != "" {
		cfg.Export.Object.SecretKey = v
	}
	if v := os.Getenv("EXPORT_OBJECT_BUCKET"); v != "" {
		cfg.Export.Object.Bucket = v
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Evaluation: EvaluationConfig{
			GrowingSeasonMonths: []int{4, 5, 6, 7, 8, 9, 10},
			GapCountThreshold:   4,
			SceneGapThreshold:   5,
			WeightedGapTau:      20,
			Workers:             5,
			OverlapToleranceDay: 3,
			LongOutput:          false,
		},
		NDVI: NDVIConfig{
			EnvelopeWindowDays:     30,
			EnvelopePercentile:     80,
			EnvelopeThresholdBelow: 0.15,
			ImplausibleFloor:       0.1,
			GapThreshold:           3,
		},
		Cache: CacheConfig{
			Dir:                 ".sitefinder_cache",
			DirectoryTTL:        24 * time.Hour,
			ImageryTTL:          7 * 24 * time.Hour,
			CoordinatePrecision: 4,
		},
		STAC: STACConfig{
			URL:                 "https://stac.dataspace.copernicus.eu/v1/search",
			Sentinel2Collection: "sentinel-2-l2a",
			Sentinel3Collection: "sentinel-3-olci-2-lfr-ntc",
			BufferKm:            5,
			MaxCloudCover:       30,
			SceneLimit:          1000,
			Timeout:             30 * time.Second,
		},
		Directory: DirectoryConfig{
			URL:     "https://phenocam.nau.edu/api/cameras/",
			LatMin:  35.0,
			LatMax:  71.0,
			LonMin:  -10.0,
			LonMax:  40.0,
			Timeout: 30 * time.Second,
		},
		Index: IndexConfig{
			Timeout: 60 * time.Second,
		},
		Export: ExportConfig{
			OutputPath: "site_evaluation_results.geojson",
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if len(c.Evaluation.GrowingSeasonMonths) == 0 {
		return errors.New("evaluation.growingSeasonMonths cannot be empty")
	}
	for _, m := range c.Evaluation.GrowingSeasonMonths {
		if m < 1 || m > 12 {
			return fmt.Errorf("evaluation.growingSeasonMonths contains invalid month %d", m)
		}
	}
	if c.Evaluation.GapCountThreshold < 0 {
		return errors.New("evaluation.gapCountThreshold cannot be negative")
	}
	if c.Evaluation.SceneGapThreshold < 0 {
		return errors.New("evaluation.sceneGapThreshold cannot be negative")
	}
	if c.Evaluation.WeightedGapTau <= 0 {
		return errors.New("evaluation.weightedGapTau must be positive")
	}
	if c.Evaluation.Workers <= 0 {
		return errors.New("evaluation.workers must be positive")
	}
	if c.Evaluation.OverlapToleranceDay < 0 {
		return errors.New("evaluation.overlapToleranceDays cannot be negative")
	}
	if c.NDVI.EnvelopeWindowDays <= 0 {
		return errors.New("ndvi.envelopeWindowDays must be positive")
	}
	if c.NDVI.EnvelopePercentile <= 0 || c.NDVI.EnvelopePercentile > 100 {
		return errors.New("ndvi.envelopePercentile must be in (0, 100]")
	}
	if c.NDVI.EnvelopeThresholdBelow <= 0 {
		return errors.New("ndvi.envelopeThresholdBelow must be positive")
	}
	if c.NDVI.GapThreshold < 0 {
		return errors.New("ndvi.gapThreshold cannot be negative")
	}
	if c.Cache.DirectoryTTL <= 0 {
		return errors.New("cache.directoryTtl must be positive")
	}
	if c.Cache.ImageryTTL <= 0 {
		return errors.New("cache.imageryTtl must be positive")
	}
	if c.Cache.CoordinatePrecision < 0 {
		return errors.New("cache.coordinatePrecision cannot be negative")
	}
	if c.Cache.Valkey.Enabled && strings.TrimSpace(c.Cache.Valkey.Addr) == "" {
		return errors.New("cache.valkey.addr cannot be empty when valkey store is enabled")
	}
	if c.STAC.URL == "" {
		return errors.New("stac.url cannot be empty")
	}
	if c.STAC.Sentinel2Collection == "" || c.STAC.Sentinel3Collection == "" {
		return errors.New("stac collection identifiers cannot be empty")
	}
	if c.STAC.SceneLimit <= 0 {
		return errors.New("stac.sceneLimit must be positive")
	}
	if c.Directory.URL == "" {
		return errors.New("directory.url cannot be empty")
	}
	if c.Directory.LatMin >= c.Directory.LatMax || c.Directory.LonMin >= c.Directory.LonMax {
		return errors.New("directory bounds are inverted")
	}
	if c.Export.Object.Enabled {
		if c.Export.Object.Endpoint == "" {
			return errors.New("export.object.endpoint cannot be empty when upload is enabled")
		}
		if c.Export.Object.Bucket == "" {
			return errors.New("export.object.bucket cannot be empty when upload is enabled")
		}
	}
	return nil
}
