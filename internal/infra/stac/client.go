// Package stac queries a SpatioTemporal Asset Catalog search endpoint for
// satellite acquisition records.
package stac

import (
	"bytes"
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

const defaultTimeout = 60 * time.Second

// Client posts search requests to a STAC API and shapes features into scene
// records. Historical imagery listings rarely change, so responses go
// through the query cache with a long TTL.
type Client struct {
	searchURL     string
	bufferKm      float64
	maxCloudCover float64
	cache         *querycache.Cache
	ttl           time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewClient(searchURL string, bufferKm, maxCloudCover float64, cache *querycache.Cache, ttl time.Duration, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		searchURL:     searchURL,
		bufferKm:      bufferKm,
		maxCloudCover: maxCloudCover,
		cache:         cache,
		ttl:           ttl,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger.With("component", "stac.client"),
	}
}

// Scenes searches one collection around a point for a time range. Optical
// collections are filtered server side by cloud cover.
func (c *Client) Scenes(ctx context.Context, lat, lon float64, collection string, start, end time.Time, limit int) ([]evaluation.Scene, error) {
	params := map[string]any{
		"lat":        c.cache.RoundCoord(lat),
		"lon":        c.cache.RoundCoord(lon),
		"start":      start.UTC().Format(time.RFC3339),
		"end":        end.UTC().Format(time.RFC3339),
		"collection": collection,
		"limit":      limit,
		"cloud":      c.maxCloudCover,
	}

	payload, err := c.cache.GetOrFetch(ctx, params, c.ttl, func(ctx context.Context) ([]byte, error) {
		return c.search(ctx, lat, lon, collection, start, end, limit)
	})
	if err != nil {
		return nil, err
	}

	var fc featureCollection
	if err := json.Unmarshal(payload, &fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	scenes := make([]evaluation.Scene, 0, len(fc.Features))
	for _, feat := range fc.Features {
		ts, err := time.Parse(time.RFC3339, feat.Properties.Datetime)
		if err != nil {
			c.logger.Warn("skipping feature with unparseable datetime", "collection", collection, "datetime", feat.Properties.Datetime)
			continue
		}
		scenes = append(scenes, evaluation.Scene{Time: ts, CloudCover: feat.Properties.CloudCover})
	}
	return scenes, nil
}

func (c *Client) search(ctx context.Context, lat, lon float64, collection string, start, end time.Time, limit int) ([]byte, error) {
	request := searchRequest{
		Collections: []string{collection},
		Datetime:    start.UTC().Format(time.RFC3339) + "/" + end.UTC().Format(time.RFC3339),
		Bbox:        geo.BufferBBox(lat, lon, c.bufferKm),
		Limit:       limit,
	}
	if c.maxCloudCover > 0 && isOptical(collection) {
		request.Filter = &cql2Comparison{
			Op: "<",
			Args: []any{
				map[string]string{"property": "eo:cloud_cover"},
				c.maxCloudCover,
			},
		}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("search request error: status=%d body=%s", resp.StatusCode, string(payload))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	c.logger.Debug("catalog searched", "collection", collection, "bytes", len(payload))
	return payload, nil
}

func isOptical(collection string) bool {
	return strings.Contains(collection, "sentinel-2") || strings.Contains(collection, "sentinel-3")
}

type searchRequest struct {
	Collections []string        `json:"collections"`
	Datetime    string          `json:"datetime"`
	Bbox        [4]float64      `json:"bbox"`
	Limit       int             `json:"limit"`
	Filter      *cql2Comparison `json:"filter,omitempty"`
}

// cql2Comparison is a single CQL2 JSON binary comparison.
type cql2Comparison struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties featureProperties `json:"properties"`
}

type featureProperties struct {
	Datetime   string   `json:"datetime"`
	CloudCover *float64 `json:"eo:cloud_cover"`
}

var _ evaluation.SceneSource = (*Client)(nil)
