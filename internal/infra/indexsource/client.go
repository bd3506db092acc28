// Package indexsource fetches per-day vegetation index series from an index
// processing backend.
package indexsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
	"github.com/phenosat/sitefinder/internal/domain/ndvi"
	"github.com/phenosat/sitefinder/internal/infra/querycache"
)

const defaultTimeout = 60 * time.Second

const dateLayout = "2006-01-02"

// Client queries the NDVI endpoint of the index backend. Several readings on
// the same day collapse into their mean so downstream gap statistics see at
// most one observation per day.
type Client struct {
	baseURL    string
	cache      *querycache.Cache
	ttl        time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, cache *querycache.Cache, ttl time.Duration, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		cache:      cache,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "indexsource.client"),
	}
}

// Series returns the daily NDVI sequence for a point and range, cached for
// the imagery TTL.
func (c *Client) Series(ctx context.Context, lat, lon float64, start, end time.Time) ([]ndvi.Observation, error) {
	params := map[string]any{
		"api":   c.baseURL,
		"lat":   c.cache.RoundCoord(lat),
		"lon":   c.cache.RoundCoord(lon),
		"start": start.UTC().Format(dateLayout),
		"end":   end.UTC().Format(dateLayout),
	}

	payload, err := c.cache.GetOrFetch(ctx, params, c.ttl, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, lat, lon, start, end)
	})
	if err != nil {
		return nil, err
	}

	var response seriesResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("decode index series: %w", err)
	}
	return collapseDaily(response.Series), nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]byte, error) {
	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%.6f", lat))
	query.Set("lon", fmt.Sprintf("%.6f", lon))
	query.Set("start", start.UTC().Format(dateLayout))
	query.Set("end", end.UTC().Format(dateLayout))
	endpoint := c.baseURL + "/ndvi?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("index request error: status=%d body=%s", resp.StatusCode, string(body))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read index response: %w", err)
	}
	return payload, nil
}

// collapseDaily averages readings sharing a calendar day. Days where every
// reading is null stay in the series as null observations.
func collapseDaily(entries []seriesEntry) []ndvi.Observation {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0, len(entries))

	for _, entry := range entries {
		if _, ok := buckets[entry.Date]; !ok {
			buckets[entry.Date] = &bucket{}
			order = append(order, entry.Date)
		}
		if entry.NDVI != nil {
			buckets[entry.Date].sum += *entry.NDVI
			buckets[entry.Date].count++
		}
	}
	sort.Strings(order)

	out := make([]ndvi.Observation, 0, len(order))
	for _, day := range order {
		ts, err := time.Parse(dateLayout, day)
		if err != nil {
			continue
		}
		obs := ndvi.Observation{Date: ts}
		if b := buckets[day]; b.count > 0 {
			mean := b.sum / float64(b.count)
			obs.Value = &mean
		}
		out = append(out, obs)
	}
	return out
}

type seriesResponse struct {
	Series []seriesEntry `json:"series"`
}

type seriesEntry struct {
	Date string   `json:"date"`
	NDVI *float64 `json:"ndvi"`
}

var _ evaluation.IndexSource = (*Client)(nil)
