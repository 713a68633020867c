package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
	"github.com/couchcryptid/era5-humidity-service/internal/observability"
)

// --- mock for cache tests ---

type countingSource struct {
	queryCalls int
	countCalls int
	series     domain.RasterSeries
	err        error
}

func (m *countingSource) Query(_ context.Context, _ domain.TimeWindow, _ domain.Region) (domain.RasterSeries, error) {
	m.queryCalls++
	return m.series, m.err
}

func (m *countingSource) Count(_ context.Context, _ domain.TimeWindow, _ domain.Region) (int, error) {
	m.countCalls++
	return len(m.series), m.err
}

func testWindow(t *testing.T) domain.TimeWindow {
	t.Helper()
	w, err := domain.NewTimeWindow(time.Date(2023, time.July, 19, 0, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	return w
}

var eastUS = domain.Region{West: -100, South: 24, East: -66, North: 50}

// --- CachedSource tests ---

func TestCachedSource_QueryCacheHit(t *testing.T) {
	inner := &countingSource{series: domain.RasterSeries{{Timestamp: time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC)}}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedSource(inner, 10, metrics)

	s1, err := cached.Query(context.Background(), testWindow(t), eastUS)
	require.NoError(t, err)
	assert.Len(t, s1, 1)

	s2, err := cached.Query(context.Background(), testWindow(t), eastUS)
	require.NoError(t, err)
	assert.Len(t, s2, 1)

	assert.Equal(t, 1, inner.queryCalls, "should only call inner once")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.SourceCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.SourceCache.WithLabelValues("miss")), 0)
}

func TestCachedSource_QueryPopulatesCount(t *testing.T) {
	inner := &countingSource{series: make(domain.RasterSeries, 3)}
	cached := NewCachedSource(inner, 10, nil)

	_, err := cached.Query(context.Background(), testWindow(t), eastUS)
	require.NoError(t, err)

	n, err := cached.Count(context.Background(), testWindow(t), eastUS)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, inner.countCalls)
}

func TestCachedSource_EmptyResultNotCached(t *testing.T) {
	inner := &countingSource{}
	cached := NewCachedSource(inner, 10, nil)

	_, _ = cached.Query(context.Background(), testWindow(t), eastUS)
	_, _ = cached.Query(context.Background(), testWindow(t), eastUS)
	_, _ = cached.Count(context.Background(), testWindow(t), eastUS)
	_, _ = cached.Count(context.Background(), testWindow(t), eastUS)

	assert.Equal(t, 2, inner.queryCalls)
	assert.Equal(t, 2, inner.countCalls)
}

func TestCachedSource_DifferentRegionsMiss(t *testing.T) {
	inner := &countingSource{series: make(domain.RasterSeries, 1)}
	cached := NewCachedSource(inner, 10, nil)

	_, _ = cached.Query(context.Background(), testWindow(t), eastUS)
	_, _ = cached.Query(context.Background(), testWindow(t), domain.Region{West: 5, South: 45, East: 15, North: 55})

	assert.Equal(t, 2, inner.queryCalls)
}

func TestCachedSource_ErrorsPassThrough(t *testing.T) {
	boom := domain.SourceError("query", errors.New("connection refused"))
	inner := &countingSource{err: boom}
	cached := NewCachedSource(inner, 10, nil)

	_, err := cached.Query(context.Background(), testWindow(t), eastUS)
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)

	_, err = cached.Query(context.Background(), testWindow(t), eastUS)
	require.Error(t, err)
	assert.Equal(t, 2, inner.queryCalls)
}

func TestCachedSource_ZeroSizeDisablesCache(t *testing.T) {
	inner := &countingSource{series: make(domain.RasterSeries, 1)}
	cached := NewCachedSource(inner, 0, nil)

	_, _ = cached.Query(context.Background(), testWindow(t), eastUS)
	_, _ = cached.Query(context.Background(), testWindow(t), eastUS)

	assert.Equal(t, 2, inner.queryCalls)
	assert.Equal(t, 0, cached.series.size())
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache[int](3)

	c.put("a", 1)
	c.put("b", 2)

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.put("c", "C") // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	v, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", v)

	v, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", v)
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")

	// Access "a" to promote it
	c.get("a")

	// Insert "c", which evicts "b" (LRU) rather than "a"
	c.put("c", "C")

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A1")
	c.put("a", "A2")

	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", v)
}
