package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meddir-workers/internal/catalog"
	"meddir-workers/internal/common/logger"
	"meddir-workers/internal/common/metrics"
)

// ==========================
// Test Helper Functions
// ==========================

type countingStore struct {
	calls   int
	records []catalog.RawRecord
	total   int
	err     error
}

func (c *countingStore) Find(context.Context, catalog.Query) ([]catalog.RawRecord, int, error) {
	c.calls++
	return c.records, c.total, c.err
}

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func placesQuery(t *testing.T, search string) catalog.Query {
	t.Helper()
	q, err := catalog.BuildQuery(catalog.Places, catalog.Params{Search: search})
	require.NoError(t, err)
	return q
}

// ==========================
// Core Functionality Tests
// ==========================

func TestCached_ReadThrough(t *testing.T) {
	mr, client := setupMiniredis(t)
	next := &countingStore{
		records: []catalog.RawRecord{{"id": 1, "slug": "alpha", "metrics": `{"tuition": 1}`}},
		total:   9,
	}
	cached := NewCached(next, client, time.Minute, logger.NewTestLogger(t))
	q := placesQuery(t, "alpha")
	ctx := context.Background()

	hitsBefore := testutil.ToFloat64(metrics.CatalogCacheRequests.WithLabelValues("places", "hit"))

	records, total, err := cached.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 9, total)
	assert.Equal(t, 1, next.calls)
	assert.True(t, mr.Exists(CacheKey(q)))
	assert.Equal(t, time.Minute, mr.TTL(CacheKey(q)))

	records2, total2, err := cached.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls, "second call is served from redis")
	assert.Equal(t, total, total2)
	assert.Equal(t, catalog.Normalize(records[0]), catalog.Normalize(records2[0]))
	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(metrics.CatalogCacheRequests.WithLabelValues("places", "hit")))

	// a different query is a different key
	_, _, err = cached.Find(ctx, placesQuery(t, "beta"))
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCached_HitKeepsLargeIDsExact(t *testing.T) {
	_, client := setupMiniredis(t)
	const bigID = int64(9007199254740993) // 2^53 + 1
	next := &countingStore{records: []catalog.RawRecord{{"id": bigID, "slug": "big"}}, total: 1}
	cached := NewCached(next, client, time.Minute, logger.NewTestLogger(t))
	q := placesQuery(t, "big")

	miss, _, err := cached.Find(context.Background(), q)
	require.NoError(t, err)
	hit, _, err := cached.Find(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, 1, next.calls)

	assert.Equal(t, json.Number("9007199254740993"), hit[0]["id"])
	assert.Equal(t, catalog.Normalize(miss[0]).ID, catalog.Normalize(hit[0]).ID)
	assert.Equal(t, bigID, catalog.Normalize(hit[0]).ID)
}

func TestCached_Expiry(t *testing.T) {
	mr, client := setupMiniredis(t)
	next := &countingStore{total: 0}
	cached := NewCached(next, client, 30*time.Second, logger.NewTestLogger(t))
	q := placesQuery(t, "x")

	_, _, err := cached.Find(context.Background(), q)
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	_, _, err = cached.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCached_StoreErrorsAreNotCached(t *testing.T) {
	mr, client := setupMiniredis(t)
	storeErr := errors.New("db down")
	next := &countingStore{err: storeErr}
	cached := NewCached(next, client, 0, logger.NewTestLogger(t))
	q := placesQuery(t, "x")

	_, _, err := cached.Find(context.Background(), q)
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, mr.Exists(CacheKey(q)))
}

func TestCached_CorruptEntryFallsThrough(t *testing.T) {
	mr, client := setupMiniredis(t)
	next := &countingStore{records: []catalog.RawRecord{{"id": 1}}, total: 1}
	cached := NewCached(next, client, time.Minute, logger.NewTestLogger(t))
	q := placesQuery(t, "x")

	require.NoError(t, mr.Set(CacheKey(q), "not json"))

	_, total, err := cached.Find(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, next.calls)
}

// ==========================
// Error Handling Tests
// ==========================

func TestCached_RedisUnavailable(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingStore{records: []catalog.RawRecord{{"id": 1}}, total: 1}
	cached := NewCached(next, db, time.Minute, logger.NewTestLogger(t))
	q := placesQuery(t, "x")
	key := CacheKey(q)

	errorsBefore := testutil.ToFloat64(metrics.CatalogCacheRequests.WithLabelValues("places", "error"))

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.Regexp().ExpectSet(key, `.*`, time.Minute).SetErr(errors.New("connection refused"))

	records, total, err := cached.Find(context.Background(), q)
	require.NoError(t, err, "redis failures never fail the read")
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, errorsBefore+1, testutil.ToFloat64(metrics.CatalogCacheRequests.WithLabelValues("places", "error")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKey(t *testing.T) {
	a := CacheKey(placesQuery(t, "a"))
	assert.Equal(t, a, CacheKey(placesQuery(t, "a")))
	assert.NotEqual(t, a, CacheKey(placesQuery(t, "b")))
	assert.Regexp(t, `^catalog:places:[0-9a-f]{64}$`, a)
}
