package evaluation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phenosat/sitefinder/internal/domain/ndvi"
)

func testLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubSiteSource struct {
	sites []Site
	err   error
}

func (s *stubSiteSource) Sites(_ context.Context) ([]Site, error) {
	return s.sites, s.err
}

type stubSceneSource struct {
	mu           sync.Mutex
	byCollection map[string][]Scene
	errFor       map[string]error
	calls        int
}

func (s *stubSceneSource) Scenes(_ context.Context, _, _ float64, collection string, _, _ time.Time, _ int) ([]Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errFor[collection]; ok {
		return nil, err
	}
	return s.byCollection[collection], nil
}

type stubIndexSource struct {
	series []ndvi.Observation
	err    error
}

func (s *stubIndexSource) Series(_ context.Context, _, _ float64, _, _ time.Time) ([]ndvi.Observation, error) {
	return s.series, s.err
}

type stubFactory struct {
	scenes SceneSource
	index  IndexSource
}

func (f stubFactory) SceneSource() SceneSource { return f.scenes }
func (f stubFactory) IndexSource() IndexSource { return f.index }

type stubRepo struct {
	mu    sync.Mutex
	saved []SeasonResult
}

func (r *stubRepo) SaveAll(_ context.Context, results []SeasonResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append([]SeasonResult(nil), results...)
	return nil
}

func (r *stubRepo) List(_ context.Context) ([]SeasonResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved, nil
}

func testConfig() Config {
	return Config{
		GrowingSeasonMonths:  []int{4, 5, 6, 7, 8, 9, 10},
		GapCountThreshold:    4,
		SceneGapThreshold:    5,
		NDVIGapThreshold:     3,
		WeightedGapTau:       20,
		Workers:              2,
		OverlapToleranceDays: 3,
		SceneLimit:           1000,
		Sentinel2Collection:  "sentinel-2-l2a",
		Sentinel3Collection:  "sentinel-3-olci-2-lfr-ntc",
		Detector: ndvi.DetectorConfig{
			WindowDays:       30,
			Percentile:       80,
			ThresholdBelow:   0.15,
			ImplausibleFloor: 0.1,
		},
	}
}

func newTestService(factory SourceFactory, sites []Site, repo ResultRepository) *Service {
	svc := NewService(testConfig(), &stubSiteSource{sites: sites}, factory, repo, testLogger())
	svc.now = func() time.Time { return time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func singleYearSite(id string) []Site {
	first := time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC)
	last := time.Date(2021, 12, 20, 0, 0, 0, 0, time.UTC)
	return []Site{{ID: id, Lat: 48.5, Lon: 11.2, VegetationType: "grassland", FirstObservation: &first, LastObservation: &last}}
}

// monthlyScenes puts one acquisition on the 15th of every season month.
func monthlyScenes(year int, cloud float64) []Scene {
	var scenes []Scene
	for month := 3; month <= 11; month++ {
		cc := cloud
		scenes = append(scenes, Scene{
			Time:       time.Date(year, time.Month(month), 15, 10, 30, 0, 0, time.UTC),
			CloudCover: &cc,
		})
	}
	return scenes
}

func TestEvaluateAllGoodCoverageScoresAboveFloor(t *testing.T) {
	scenes := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            monthlyScenes(2021, 18),
		"sentinel-3-olci-2-lfr-ntc": monthlyScenes(2021, 18),
	}}
	repo := &stubRepo{}
	svc := newTestService(stubFactory{scenes: scenes}, singleYearSite("DE-Gra"), repo)

	results, err := svc.EvaluateAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.NotNil(t, r.Score)
	require.Greater(t, *r.Score, 0.4)
	require.Equal(t, "2021-03-01", r.SeasonStart)
	require.Equal(t, "2021-11-28", r.SeasonEnd)
	require.Equal(t, 272, r.SeasonLengthDays)
	require.Equal(t, 9, r.Sentinel2.Scenes)
	require.InDelta(t, 0.99, r.Sentinel2.ScenesPerMonth, 0.001)
	require.InDelta(t, 18.0, r.Sentinel2.CloudCoverMean, 0.001)
	require.NotNil(t, r.Sentinel2.MaxGapDays)
	require.Equal(t, 31, *r.Sentinel2.MaxGapDays)
	require.Equal(t, 8, r.Sentinel2.GapCount)
	require.Equal(t, 9, r.OverlapCount)
	require.Len(t, repo.saved, 1)
}

func TestEvaluateAllCloudyCoverageScoresLower(t *testing.T) {
	clear := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            monthlyScenes(2021, 18),
		"sentinel-3-olci-2-lfr-ntc": monthlyScenes(2021, 18),
	}}
	cloudy := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            monthlyScenes(2021, 90),
		"sentinel-3-olci-2-lfr-ntc": monthlyScenes(2021, 90),
	}}

	clearResults, err := newTestService(stubFactory{scenes: clear}, singleYearSite("DE-Gra"), &stubRepo{}).EvaluateAll(context.Background(), 0)
	require.NoError(t, err)
	cloudyResults, err := newTestService(stubFactory{scenes: cloudy}, singleYearSite("DE-Gra"), &stubRepo{}).EvaluateAll(context.Background(), 0)
	require.NoError(t, err)

	require.Less(t, *cloudyResults[0].Score, *clearResults[0].Score)
	require.Less(t, *cloudyResults[0].Score, 0.5)
}

func TestEvaluateAllSparseCoverageScoresLow(t *testing.T) {
	cc := 20.0
	sparse := []Scene{
		{Time: time.Date(2021, 5, 1, 10, 0, 0, 0, time.UTC), CloudCover: &cc},
		{Time: time.Date(2021, 6, 30, 10, 0, 0, 0, time.UTC), CloudCover: &cc},
	}
	scenes := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            sparse,
		"sentinel-3-olci-2-lfr-ntc": sparse,
	}}
	svc := newTestService(stubFactory{scenes: scenes}, singleYearSite("SE-Spa"), &stubRepo{})

	results, err := svc.EvaluateAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.NotNil(t, r.Score)
	require.Less(t, *r.Score, 0.4)
	require.Equal(t, 60, *r.Sentinel2.MaxGapDays)
	require.Equal(t, 1, r.Sentinel2.GapCount)
}

func TestEvaluateSeasonGapStatsArePerSensor(t *testing.T) {
	cc := 10.0
	var weekly []Scene
	for day := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC); day.Month() <= 8; day = day.AddDate(0, 0, 7) {
		weekly = append(weekly, Scene{Time: day, CloudCover: &cc})
	}
	holey := []Scene{
		{Time: time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)},
		{Time: time.Date(2021, 6, 10, 0, 0, 0, 0, time.UTC)},
	}
	scenes := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            weekly,
		"sentinel-3-olci-2-lfr-ntc": holey,
	}}
	svc := newTestService(stubFactory{scenes: scenes}, singleYearSite("FI-Mix"), &stubRepo{})

	results, err := svc.EvaluateAll(context.Background(), 0)
	require.NoError(t, err)

	r := results[0]
	require.Equal(t, 7, *r.Sentinel2.MaxGapDays)
	require.Equal(t, 40, *r.Sentinel3.MaxGapDays)
	require.NotEqual(t, r.Sentinel2.GapCount, r.Sentinel3.GapCount)
}

func TestEvaluateSeasonNoDataShortCircuits(t *testing.T) {
	scenes := &stubSceneSource{byCollection: map[string][]Scene{}}
	svc := newTestService(stubFactory{scenes: scenes}, singleYearSite("NO-Emp"), &stubRepo{})

	results, err := svc.EvaluateAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.NotNil(t, r.Score)
	require.Equal(t, 0.0, *r.Score)
	require.NotEmpty(t, r.NoDataReason)
	require.False(t, r.Failed())
}

func TestEvaluateSeasonQueryErrorIsIsolated(t *testing.T) {
	scenes := &stubSceneSource{
		byCollection: map[string][]Scene{"sentinel-3-olci-2-lfr-ntc": monthlyScenes(2021, 15)},
		errFor:       map[string]error{"sentinel-2-l2a": errors.New("stac backend unavailable")},
	}
	first := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC)
	sites := []Site{{ID: "IT-Err", Lat: 42.0, Lon: 12.5, FirstObservation: &first, LastObservation: &last}}
	svc := newTestService(stubFactory{scenes: scenes}, sites, &stubRepo{})

	results, err := svc.EvaluateAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		require.Nil(t, r.Score)
		require.True(t, r.Failed())
		require.Contains(t, r.Error, "stac backend unavailable")
	}
}

func TestEvaluateAllSiteSourceFailureAborts(t *testing.T) {
	svc := NewService(testConfig(), &stubSiteSource{err: errors.New("directory down")}, stubFactory{scenes: &stubSceneSource{}}, &stubRepo{}, testLogger())

	_, err := svc.EvaluateAll(context.Background(), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "directory down")
}

func TestEvaluateAllHonorsMaxSites(t *testing.T) {
	scenes := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            monthlyScenes(2021, 10),
		"sentinel-3-olci-2-lfr-ntc": monthlyScenes(2021, 10),
	}}
	sites := append(singleYearSite("AA-One"), singleYearSite("BB-Two")...)
	svc := newTestService(stubFactory{scenes: scenes}, sites, &stubRepo{})

	results, err := svc.EvaluateAll(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "AA-One", results[0].SiteID)
}

func TestEvaluateSeasonAttachesIndexSummary(t *testing.T) {
	scenes := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            monthlyScenes(2021, 15),
		"sentinel-3-olci-2-lfr-ntc": monthlyScenes(2021, 15),
	}}
	var series []ndvi.Observation
	for month := 4; month <= 9; month++ {
		series = append(series, ndvi.Observation{
			Date:  time.Date(2021, time.Month(month), 10, 0, 0, 0, 0, time.UTC),
			Value: floatPtr(0.6),
		})
	}
	index := &stubIndexSource{series: series}
	svc := newTestService(stubFactory{scenes: scenes, index: index}, singleYearSite("DE-Ndv"), &stubRepo{})

	results, err := svc.EvaluateAll(context.Background(), 0)
	require.NoError(t, err)

	r := results[0]
	require.NotNil(t, r.NDVI)
	require.Equal(t, 6, r.NDVI.Observations)
	require.InDelta(t, 0.6, r.NDVI.Mean, 0.001)
}

func TestEvaluateSeasonIndexFailureDoesNotFailSeason(t *testing.T) {
	scenes := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            monthlyScenes(2021, 15),
		"sentinel-3-olci-2-lfr-ntc": monthlyScenes(2021, 15),
	}}
	index := &stubIndexSource{err: errors.New("index backend timeout")}
	svc := newTestService(stubFactory{scenes: scenes, index: index}, singleYearSite("DE-Ndv"), &stubRepo{})

	results, err := svc.EvaluateAll(context.Background(), 0)
	require.NoError(t, err)
	require.Nil(t, results[0].NDVI)
	require.NotNil(t, results[0].Score)
	require.Empty(t, results[0].Error)
}

func TestCandidateYearsFallsBackToCurrentYear(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	years := CandidateYears(Site{ID: "XX-New"}, now)
	require.Equal(t, []int{2024}, years)
}

func TestCandidateYearsSpansObservationRange(t *testing.T) {
	first := time.Date(2019, 11, 2, 0, 0, 0, 0, time.UTC)
	last := time.Date(2022, 2, 14, 0, 0, 0, 0, time.UTC)
	years := CandidateYears(Site{FirstObservation: &first, LastObservation: &last}, time.Now())
	require.Equal(t, []int{2019, 2020, 2021, 2022}, years)
}

func TestSeasonWindowAddsBufferMonths(t *testing.T) {
	w := NewSeasonWindow(2021, []int{4, 5, 6, 7, 8, 9, 10})
	require.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), w.Start)
	require.Equal(t, time.Date(2021, 11, 28, 0, 0, 0, 0, time.UTC), w.End)
	require.True(t, w.ContainsMonth(time.March))
	require.True(t, w.ContainsMonth(time.November))
	require.False(t, w.ContainsMonth(time.December))
}

func TestSeasonWindowFiltersOtherYears(t *testing.T) {
	w := NewSeasonWindow(2021, []int{4, 5, 6, 7, 8, 9, 10})
	scenes := []Scene{
		{Time: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Time: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Time: time.Date(2021, 12, 5, 0, 0, 0, 0, time.UTC)},
	}
	kept := w.FilterInSeason(scenes)
	require.Len(t, kept, 1)
	require.Equal(t, 2021, kept[0].Time.Year())
}

func TestRunnerTracksLifecycle(t *testing.T) {
	scenes := &stubSceneSource{byCollection: map[string][]Scene{
		"sentinel-2-l2a":            monthlyScenes(2021, 15),
		"sentinel-3-olci-2-lfr-ntc": monthlyScenes(2021, 15),
	}}
	svc := newTestService(stubFactory{scenes: scenes}, singleYearSite("DE-Run"), &stubRepo{})
	runner := NewRunner(svc, testLogger())

	snapshot := runner.Start(0)
	require.NotEmpty(t, snapshot.ID)
	require.Equal(t, RunRunning, snapshot.Status)

	require.Eventually(t, func() bool {
		current, err := runner.Get(snapshot.ID)
		return err == nil && current.Status == RunCompleted
	}, 2*time.Second, 10*time.Millisecond)

	results, err := runner.Results(snapshot.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = runner.Get("missing")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "run_not_found") || strings.Contains(err.Error(), "no run"))
}

func floatPtr(v float64) *float64 { return &v }
