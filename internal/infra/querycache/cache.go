// Package querycache caches responses of expensive remote queries under
// deterministic keys, with freshness decided per call.
package querycache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Store is the persistence backend of the cache. Implementations hold opaque
// envelope bytes; freshness is decided above them.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) (int, error)
}

// FetchFunc produces the payload on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	HitRatePercent float64 `json:"hitRatePercent"`
}

type envelope struct {
	CachedAt time.Time       `json:"cachedAt"`
	Payload  json.RawMessage `json:"payload"`
}

// Cache is a read-through cache over a Store. It is safe for concurrent use.
type Cache struct {
	store     Store
	logger    *slog.Logger
	precision int
	now       func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

func New(store Store, precision int, logger *slog.Logger) *Cache {
	return &Cache{
		store:     store,
		logger:    logger.With("component", "querycache"),
		precision: precision,
		now:       time.Now,
	}
}

// Key derives a deterministic cache key from query parameters. Parameter
// order never affects the key because JSON object keys marshal sorted.
// md5 is not used for security here, keys only need to be stable and short.
func Key(params map[string]any) string {
	raw, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// RoundCoord normalizes a coordinate for keying so that near-identical
// positions share cache entries.
func (c *Cache) RoundCoord(v float64) float64 {
	factor := math.Pow(10, float64(c.precision))
	return math.Round(v*factor) / factor
}

// GetOrFetch returns the cached payload for params when one exists and is
// younger than ttl, otherwise invokes fetch and caches its result. A failed
// cache write never fails the query that produced the data.
func (c *Cache) GetOrFetch(ctx context.Context, params map[string]any, ttl time.Duration, fetch FetchFunc) ([]byte, error) {
	key := Key(params)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		ok = false
	}
	if ok {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.CachedAt.IsZero() {
			// corrupted entries are removed so they cannot shadow fresh data
			if delErr := c.store.Delete(ctx, key); delErr != nil {
				c.logger.Warn("failed to drop corrupted cache entry", "key", key, "error", delErr)
			}
		} else if c.now().Sub(env.CachedAt) < ttl {
			c.hits.Add(1)
			return env.Payload, nil
		}
	}
	c.misses.Add(1)

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(envelope{CachedAt: c.now(), Payload: payload})
	if err == nil {
		err = c.store.Set(ctx, key, encoded)
	}
	if err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return payload, nil
}

// Stats reports hit and miss counters since process start.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := Stats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.HitRatePercent = math.Round(float64(hits)/float64(total)*1000) / 10
	}
	return stats
}

// Clear removes all cached entries and returns how many were dropped.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	return c.store.Clear(ctx)
}
