// Package phenocam lists candidate camera sites from the PhenoCam network
// directory.
package phenocam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
	"github.com/phenosat/sitefinder/internal/infra/querycache"
	"github.com/phenosat/sitefinder/pkg/geo"
)

const defaultTimeout = 30 * time.Second

// Client pages through the camera directory and keeps only active sites
// inside the configured bounds. Responses go through the query cache because
// the directory changes on the order of days, not minutes.
type Client struct {
	baseURL    string
	bounds     geo.Bounds
	cache      *querycache.Cache
	ttl        time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, bounds geo.Bounds, cache *querycache.Cache, ttl time.Duration, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		bounds:     bounds,
		cache:      cache,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "phenocam.client"),
	}
}

// Sites returns the active cameras inside the bounds, cached for the
// directory TTL.
func (c *Client) Sites(ctx context.Context) ([]evaluation.Site, error) {
	params := map[string]any{
		"api":    c.baseURL,
		"latMin": c.bounds.LatMin,
		"latMax": c.bounds.LatMax,
		"lonMin": c.bounds.LonMin,
		"lonMax": c.bounds.LonMax,
	}

	payload, err := c.cache.GetOrFetch(ctx, params, c.ttl, func(ctx context.Context) ([]byte, error) {
		sites, err := c.fetchAll(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(sites)
	})
	if err != nil {
		return nil, err
	}

	var sites []evaluation.Site
	if err := json.Unmarshal(payload, &sites); err != nil {
		return nil, fmt.Errorf("decode cached site list: %w", err)
	}
	return sites, nil
}

func (c *Client) fetchAll(ctx context.Context) ([]evaluation.Site, error) {
	var cameras []camera
	url := c.baseURL

	for url != "" {
		page, err := c.fetchPage(ctx, url)
		if err != nil {
			return nil, err
		}
		cameras = append(cameras, page.Results...)
		url = page.Next
	}

	sites := make([]evaluation.Site, 0, len(cameras))
	for _, cam := range cameras {
		if !cam.Active || !c.bounds.Contains(cam.Lat, cam.Lon) {
			continue
		}
		sites = append(sites, evaluation.Site{
			ID:               cam.Sitename,
			Lat:              cam.Lat,
			Lon:              cam.Lon,
			Description:      cam.Metadata.SiteDescription,
			VegetationType:   cam.Metadata.PrimaryVegType,
			FirstObservation: parseDate(cam.DateFirst),
			LastObservation:  parseDate(cam.DateLast),
		})
	}
	c.logger.Debug("directory fetched", "cameras", len(cameras), "inBounds", len(sites))
	return sites, nil
}

func (c *Client) fetchPage(ctx context.Context, url string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("directory request error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out page
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	return &out, nil
}

type page struct {
	Count   int      `json:"count"`
	Next    string   `json:"next"`
	Results []camera `json:"results"`
}

type camera struct {
	Sitename  string   `json:"Sitename"`
	Lat       float64  `json:"Lat"`
	Lon       float64  `json:"Lon"`
	Active    bool     `json:"active"`
	DateFirst string   `json:"date_first"`
	DateLast  string   `json:"date_last"`
	Metadata  metadata `json:"sitemetadata"`
}

type metadata struct {
	SiteDescription string `json:"site_description"`
	PrimaryVegType  string `json:"primary_veg_type"`
}

func parseDate(value string) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil
	}
	return &ts
}

var _ evaluation.SiteSource = (*Client)(nil)
