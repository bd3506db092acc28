package evaluation

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/phenosat/sitefinder/internal/domain/gaps"
	"github.com/phenosat/sitefinder/internal/domain/ndvi"
	"github.com/phenosat/sitefinder/internal/domain/suitability"
	apperrors "github.com/phenosat/sitefinder/pkg/errors"
)

const dateLayout = "2006-01-02"

// missingSensorGap stands in for the max gap of a sensor without any
// in-season data when picking the gap fed to the scorer.
const missingSensorGap = 999

// SiteSource lists candidate locations from the camera-network directory.
type SiteSource interface {
	Sites(ctx context.Context) ([]Site, error)
}

// SceneSource queries satellite acquisition records for a location.
type SceneSource interface {
	Scenes(ctx context.Context, lat, lon float64, collection string, start, end time.Time, limit int) ([]Scene, error)
}

// IndexSource queries a per-day vegetation index series for a location.
type IndexSource interface {
	Series(ctx context.Context, lat, lon float64, start, end time.Time) ([]ndvi.Observation, error)
}

// SourceFactory hands each worker its own query client instances so workers
// never contend on connection state.
type SourceFactory interface {
	SceneSource() SceneSource
	// IndexSource may return nil when no index backend is configured; the
	// evaluation then skips NDVI statistics.
	IndexSource() IndexSource
}

// ResultRepository persists season results.
type ResultRepository interface {
	SaveAll(ctx context.Context, results []SeasonResult) error
	List(ctx context.Context) ([]SeasonResult, error)
}

// Config wires runtime tunables for the evaluation engine.
type Config struct {
	GrowingSeasonMonths  []int
	GapCountThreshold    int
	SceneGapThreshold    int
	NDVIGapThreshold     int
	WeightedGapTau       float64
	Workers              int
	OverlapToleranceDays int
	SceneLimit           int
	Sentinel2Collection  string
	Sentinel3Collection  string
	LongOutput           bool
	Detector             ndvi.DetectorConfig
}

// Service drives per-site, per-season suitability evaluation.
type Service struct {
	cfg        Config
	siteSource SiteSource
	sources    SourceFactory
	repo       ResultRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires up the evaluation domain.
func NewService(cfg Config, siteSource SiteSource, sources SourceFactory, repo ResultRepository, logger *slog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		siteSource: siteSource,
		sources:    sources,
		repo:       repo,
		logger:     logger.With("component", "evaluation.service"),
		now:        time.Now,
	}
}

// Sites exposes the candidate site directory.
func (s *Service) Sites(ctx context.Context) ([]Site, error) {
	sites, err := s.siteSource.Sites(ctx)
	if err != nil {
		return nil, apperrors.Wrap("site_source_error", "failed to list candidate sites", err)
	}
	return sites, nil
}

// Results returns the persisted season results.
func (s *Service) Results(ctx context.Context) ([]SeasonResult, error) {
	results, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap("repo_error", "failed to load results", err)
	}
	return results, nil
}

// EvaluateAll evaluates every candidate site across its growing seasons.
// Only a failure to acquire the site list aborts the run; individual season
// failures are isolated into their result records.
func (s *Service) EvaluateAll(ctx context.Context, maxSites int) ([]SeasonResult, error) {
	return s.evaluateAll(ctx, maxSites, nil)
}

type task struct {
	site Site
	year int
}

func (s *Service) evaluateAll(ctx context.Context, maxSites int, onProgress func(completed, total int)) ([]SeasonResult, error) {
	sites, err := s.Sites(ctx)
	if err != nil {
		return nil, err
	}
	if maxSites > 0 && len(sites) > maxSites {
		sites = sites[:maxSites]
	}

	var tasks []task
	for _, site := range sites {
		for _, year := range CandidateYears(site, s.now()) {
			tasks = append(tasks, task{site: site, year: year})
		}
	}
	s.logger.Info("starting seasonal evaluation", "sites", len(sites), "seasons", len(tasks), "workers", s.cfg.Workers)

	jobs := make(chan task)
	out := make(chan SeasonResult)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sceneSrc := s.sources.SceneSource()
			indexSrc := s.sources.IndexSource()
			for tk := range jobs {
				out <- s.evaluateSeason(ctx, sceneSrc, indexSrc, tk.site, tk.year)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, tk := range tasks {
			select {
			case jobs <- tk:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]SeasonResult, 0, len(tasks))
	for result := range out {
		results = append(results, result)
		if onProgress != nil {
			onProgress(len(results), len(tasks))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].SiteID == results[j].SiteID {
			return results[i].Year < results[j].Year
		}
		return results[i].SiteID < results[j].SiteID
	})

	if err := s.repo.SaveAll(ctx, results); err != nil {
		// The evaluation itself succeeded; losing persistence is not worth
		// discarding the computed results.
		s.logger.Error("failed to persist results", "error", err)
	}

	return results, nil
}

func (s *Service) evaluateSeason(ctx context.Context, sceneSrc SceneSource, indexSrc IndexSource, site Site, year int) SeasonResult {
	window := NewSeasonWindow(year, s.cfg.GrowingSeasonMonths)
	result := SeasonResult{
		SiteID:           site.ID,
		Lat:              site.Lat,
		Lon:              site.Lon,
		VegetationType:   site.VegetationType,
		Description:      site.Description,
		Year:             year,
		SeasonStart:      window.Start.Format(dateLayout),
		SeasonEnd:        window.End.Format(dateLayout),
		SeasonLengthDays: window.LengthDays(),
	}

	s2Scenes, err := sceneSrc.Scenes(ctx, site.Lat, site.Lon, s.cfg.Sentinel2Collection, window.Start, window.End, s.cfg.SceneLimit)
	if err != nil {
		s.logger.Warn("sentinel-2 query failed", "site", site.ID, "year", year, "error", err)
		result.Error = err.Error()
		return result
	}
	s3Scenes, err := sceneSrc.Scenes(ctx, site.Lat, site.Lon, s.cfg.Sentinel3Collection, window.Start, window.End, s.cfg.SceneLimit)
	if err != nil {
		s.logger.Warn("sentinel-3 query failed", "site", site.ID, "year", year, "error", err)
		result.Error = err.Error()
		return result
	}

	s2In := window.FilterInSeason(s2Scenes)
	s3In := window.FilterInSeason(s3Scenes)
	if len(s2In) == 0 && len(s3In) == 0 {
		result.Score = scorePtr(0.0)
		result.NoDataReason = "no satellite data available for this season"
		return result
	}

	s2Days := gaps.UniqueDays(sceneTimes(s2In))
	s3Days := gaps.UniqueDays(sceneTimes(s3In))

	result.Sentinel2 = s.sensorMetrics(s2In, s2Days, window)
	result.Sentinel3 = s.sensorMetrics(s3In, s3Days, window)

	s2Overlap, s3Overlap := overlapDays(s2Days, s3Days, s.cfg.OverlapToleranceDays)
	result.OverlapCount = len(s2Overlap)
	if s.cfg.LongOutput {
		result.Sentinel2.OverlapDates = formatDays(s2Overlap)
		result.Sentinel3.OverlapDates = formatDays(s3Overlap)
	}

	if indexSrc != nil {
		result.NDVI = s.indexSummary(ctx, indexSrc, site, window)
	}

	result.Score = scorePtr(round2(suitability.Score(suitability.Inputs{
		S2Density:     result.Sentinel2.ScenesPerMonth,
		S3Density:     result.Sentinel3.ScenesPerMonth,
		CloudMean:     result.Sentinel2.CloudCoverMean,
		MaxGapDays:    scoringMaxGap(result.Sentinel2.MaxGapDays, result.Sentinel3.MaxGapDays),
		OverlapCount:  result.OverlapCount,
		S2WeightedGap: result.Sentinel2.WeightedGapScore,
		S3WeightedGap: result.Sentinel3.WeightedGapScore,
		GapCount:      result.Sentinel2.GapCount,
	})))
	return result
}

// sensorMetrics computes per-sensor statistics from its own scene list. Gap
// statistics are derived strictly per sensor; sharing them across sensors
// would corrupt the result.
func (s *Service) sensorMetrics(scenes []Scene, days []time.Time, window SeasonWindow) SensorMetrics {
	metrics := SensorMetrics{Scenes: len(scenes)}

	if seasonDays := window.LengthDays(); seasonDays > 0 {
		metrics.ScenesPerMonth = round2(float64(len(scenes)) / float64(seasonDays) * 30)
	}

	var clouds []float64
	for _, scene := range scenes {
		if scene.CloudCover != nil {
			clouds = append(clouds, *scene.CloudCover)
		}
	}
	metrics.CloudCoverMean = round1(mean(clouds))
	metrics.CloudCoverStd = round1(stddev(clouds))

	if len(days) == 0 {
		return metrics
	}

	sceneStats := gaps.SceneStats(sceneTimes(scenes), s.cfg.SceneGapThreshold)
	metrics.SceneMaxGapDays = sceneStats.MaxGapDays
	metrics.SceneGapCount = sceneStats.GapCount
	metrics.SceneGapScore = round3(sceneStats.WeightedScore)

	gapList := gaps.Between(days)
	maxGap := gaps.Max(gapList)
	metrics.MaxGapDays = &maxGap
	metrics.GapCount = gaps.CountOver(gapList, s.cfg.GapCountThreshold)
	metrics.WeightedGapScore = round3(gaps.WeightedScore(gapList, window.LengthDays(), s.cfg.WeightedGapTau, s.cfg.GapCountThreshold))

	if s.cfg.LongOutput {
		metrics.FirstDate = days[0].Format(dateLayout)
		metrics.LastDate = days[len(days)-1].Format(dateLayout)
	}

	return metrics
}

func (s *Service) indexSummary(ctx context.Context, indexSrc IndexSource, site Site, window SeasonWindow) *NDVISummary {
	series, err := indexSrc.Series(ctx, site.Lat, site.Lon, window.Start, window.End)
	if err != nil {
		s.logger.Warn("index series query failed", "site", site.ID, "year", window.Year, "error", err)
		return nil
	}
	if len(series) == 0 {
		return nil
	}

	analysis := ndvi.Analyze(series, s.cfg.Detector, s.cfg.NDVIGapThreshold)

	summary := &NDVISummary{
		Observations:     analysis.Observations,
		Mean:             analysis.Mean,
		Min:              analysis.Min,
		Max:              analysis.Max,
		Range:            analysis.Range,
		MaxGapDays:       analysis.Gaps.MaxGapDays,
		GapCount:         analysis.Gaps.GapCount,
		WeightedGapScore: round2(analysis.Gaps.WeightedScore),
	}
	if s.cfg.LongOutput {
		summary.TimeSeries = make([]SeriesPoint, 0, len(series))
		for i, obs := range series {
			summary.TimeSeries = append(summary.TimeSeries, SeriesPoint{
				Date:    obs.Date.Format(dateLayout),
				Value:   obs.Value,
				Outlier: analysis.Flags[i],
			})
		}
	}
	return summary
}

// overlapDays matches each day of one sensor against days of the other
// within the tolerance, in both directions.
func overlapDays(aDays, bDays []time.Time, toleranceDays int) (aOverlap, bOverlap []time.Time) {
	if len(aDays) == 0 || len(bDays) == 0 {
		return nil, nil
	}
	tolerance := time.Duration(toleranceDays) * 24 * time.Hour

	for _, a := range aDays {
		for _, b := range bDays {
			if absDuration(a.Sub(b)) <= tolerance {
				aOverlap = append(aOverlap, a)
				break
			}
		}
	}
	for _, b := range bDays {
		for _, a := range aDays {
			if absDuration(b.Sub(a)) <= tolerance {
				bOverlap = append(bOverlap, b)
				break
			}
		}
	}
	return aOverlap, bOverlap
}

func scoringMaxGap(s2, s3 *int) int {
	a, b := missingSensorGap, missingSensorGap
	if s2 != nil {
		a = *s2
	}
	if s3 != nil {
		b = *s3
	}
	if a < b {
		return a
	}
	return b
}

func sceneTimes(scenes []Scene) []time.Time {
	out := make([]time.Time, 0, len(scenes))
	for _, scene := range scenes {
		out = append(out, scene.Time)
	}
	return out
}

func formatDays(days []time.Time) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Format(dateLayout))
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
