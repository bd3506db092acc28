package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
	"github.com/phenosat/sitefinder/internal/domain/ndvi"
	"github.com/phenosat/sitefinder/internal/infra/config"
	"github.com/phenosat/sitefinder/internal/infra/querycache"
	"github.com/phenosat/sitefinder/internal/infra/resultrepo"
)

type stubSiteSource struct {
	sites []evaluation.Site
	err   error
}

func (s *stubSiteSource) Sites(context.Context) ([]evaluation.Site, error) {
	return s.sites, s.err
}

type stubSceneSource struct {
	scenes []evaluation.Scene
}

func (s *stubSceneSource) Scenes(context.Context, float64, float64, string, time.Time, time.Time, int) ([]evaluation.Scene, error) {
	return s.scenes, nil
}

type stubFactory struct {
	scenes evaluation.SceneSource
}

func (f stubFactory) SceneSource() evaluation.SceneSource { return f.scenes }
func (f stubFactory) IndexSource() evaluation.IndexSource { return nil }

type fixture struct {
	server *http.Server
	repo   *resultrepo.MemoryRepository
}

func newFixture(t *testing.T, siteSource evaluation.SiteSource) *fixture {
	t.Helper()

	cloud := 15.0
	var scenes []evaluation.Scene
	for month := 4; month <= 9; month++ {
		scenes = append(scenes, evaluation.Scene{
			Time:       time.Date(2021, time.Month(month), 12, 10, 0, 0, 0, time.UTC),
			CloudCover: &cloud,
		})
	}

	repo := resultrepo.NewMemoryRepository()
	evalCfg := evaluation.Config{
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
		Detector:             ndvi.DetectorConfig{WindowDays: 30, Percentile: 80, ThresholdBelow: 0.15, ImplausibleFloor: 0.1},
	}
	svc := evaluation.NewService(evalCfg, siteSource, stubFactory{scenes: &stubSceneSource{scenes: scenes}}, repo, newTestLogger())
	runner := evaluation.NewRunner(svc, newTestLogger())
	cache := querycache.New(querycache.NewMemoryStore(), 4, newTestLogger())

	handler := NewHandler(svc, runner, cache, newTestLogger())
	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
	}
	return &fixture{server: NewRouter(cfg, handler, newTestLogger()), repo: repo}
}

func defaultSites() *stubSiteSource {
	first := time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2021, 10, 1, 0, 0, 0, 0, time.UTC)
	return &stubSiteSource{sites: []evaluation.Site{
		{ID: "alpsgrass", Lat: 47.2, Lon: 11.4, FirstObservation: &first, LastObservation: &last},
	}}
}

func performRequest(server *http.Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

func TestRouter_Healthz(t *testing.T) {
	fix := newFixture(t, defaultSites())
	rec := performRequest(fix.server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ListSites(t *testing.T) {
	fix := newFixture(t, defaultSites())
	rec := performRequest(fix.server, http.MethodGet, "/api/v1/sites", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sites []evaluation.Site `json:"sites"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "alpsgrass", body.Sites[0].ID)
}

func TestRouter_ListSitesUpstreamFailure(t *testing.T) {
	fix := newFixture(t, &stubSiteSource{err: errors.New("directory down")})
	rec := performRequest(fix.server, http.MethodGet, "/api/v1/sites", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	errBody := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, "site_source_error", errBody["error"]["code"])
	require.Contains(t, errBody["error"]["message"], "directory down")
}

func TestRouter_EvaluationLifecycle(t *testing.T) {
	fix := newFixture(t, defaultSites())

	rec := performRequest(fix.server, http.MethodPost, "/api/v1/evaluations", `{"maxSites":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var snapshot evaluation.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.NotEmpty(t, snapshot.ID)
	require.Equal(t, evaluation.RunRunning, snapshot.Status)

	require.Eventually(t, func() bool {
		status := performRequest(fix.server, http.MethodGet, "/api/v1/evaluations/"+snapshot.ID, "")
		if status.Code != http.StatusOK {
			return false
		}
		var current evaluation.RunSnapshot
		if err := json.Unmarshal(status.Body.Bytes(), &current); err != nil {
			return false
		}
		return current.Status == evaluation.RunCompleted
	}, 2*time.Second, 10*time.Millisecond)

	results := performRequest(fix.server, http.MethodGet, "/api/v1/evaluations/"+snapshot.ID+"/results", "")
	require.Equal(t, http.StatusOK, results.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(results.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)

	list := performRequest(fix.server, http.MethodGet, "/api/v1/evaluations", "")
	require.Equal(t, http.StatusOK, list.Code)

	persisted := performRequest(fix.server, http.MethodGet, "/api/v1/results", "")
	require.Equal(t, http.StatusOK, persisted.Code)

	geojson := performRequest(fix.server, http.MethodGet, "/api/v1/results/geojson", "")
	require.Equal(t, http.StatusOK, geojson.Code)
	var fc struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(geojson.Body.Bytes(), &fc))
	require.Equal(t, "FeatureCollection", fc.Type)
}

func TestRouter_UnknownRun(t *testing.T) {
	fix := newFixture(t, defaultSites())

	rec := performRequest(fix.server, http.MethodGet, "/api/v1/evaluations/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = performRequest(fix.server, http.MethodGet, "/api/v1/evaluations/nope/results", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_StartEvaluationRejectsNegativeMaxSites(t *testing.T) {
	fix := newFixture(t, defaultSites())
	rec := performRequest(fix.server, http.MethodPost, "/api/v1/evaluations", `{"maxSites":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errBody := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, "invalid_request", errBody["error"]["code"])
}

func TestRouter_CacheEndpoints(t *testing.T) {
	fix := newFixture(t, defaultSites())

	stats := performRequest(fix.server, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, stats.Code)

	var body querycache.Stats
	require.NoError(t, json.Unmarshal(stats.Body.Bytes(), &body))
	require.Zero(t, body.Hits)

	clearRec := performRequest(fix.server, http.MethodDelete, "/api/v1/cache", "")
	require.Equal(t, http.StatusOK, clearRec.Code)

	var cleared struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(clearRec.Body.Bytes(), &cleared))
	require.Zero(t, cleared.Removed)
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
