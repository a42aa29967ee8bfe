package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"meddir-workers/internal/catalog"
	"meddir-workers/internal/common/logger"
	"meddir-workers/internal/common/metrics"
)

const (
	cacheKeyPrefix  = "catalog:"
	DefaultCacheTTL = 5 * time.Minute
)

// Cached is a read-through cache in front of another store. Redis failures
// are logged and the call falls through to the wrapped store.
type Cached struct {
	next   catalog.Store
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCached(next catalog.Store, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "catalog-cache"}),
	}
}

type cachedPage struct {
	Records []catalog.RawRecord `json:"records"`
	Total   int                 `json:"total"`
}

// CacheKey is the Redis key a query's result is stored under.
func CacheKey(q catalog.Query) string {
	sum := sha256.Sum256([]byte(q.Key()))
	return cacheKeyPrefix + q.Catalog.Name + ":" + hex.EncodeToString(sum[:])
}

func (c *Cached) Find(ctx context.Context, q catalog.Query) ([]catalog.RawRecord, int, error) {
	key := CacheKey(q)

	if page, ok := c.get(ctx, q.Catalog.Name, key); ok {
		return page.Records, page.Total, nil
	}

	records, total, err := c.next.Find(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	c.set(ctx, key, cachedPage{Records: records, Total: total})
	return records, total, nil
}

func (c *Cached) get(ctx context.Context, catalogName, key string) (cachedPage, bool) {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CatalogCacheRequests.WithLabelValues(catalogName, "miss").Inc()
		return cachedPage{}, false
	}
	if err != nil {
		metrics.CatalogCacheRequests.WithLabelValues(catalogName, "error").Inc()
		c.logger.Warn("cache read failed, querying store", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		return cachedPage{}, false
	}

	// UseNumber keeps ids above 2^53 exact, as the stores return them.
	var page cachedPage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		metrics.CatalogCacheRequests.WithLabelValues(catalogName, "error").Inc()
		c.logger.Warn("cache entry undecodable, querying store", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		return cachedPage{}, false
	}

	metrics.CatalogCacheRequests.WithLabelValues(catalogName, "hit").Inc()
	return page, true
}

func (c *Cached) set(ctx context.Context, key string, page cachedPage) {
	data, err := json.Marshal(page)
	if err != nil {
		c.logger.Warn("cache entry not encodable", map[string]interface{}{"key": key, "error": err})
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err})
	}
}
