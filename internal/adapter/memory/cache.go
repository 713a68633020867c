package memory

import (
	"context"
	"sync"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
	"github.com/couchcryptid/era5-humidity-service/internal/observability"
)

// CachedSource wraps a GridSource with an in-memory LRU cache keyed by
// window and region. Cached series are shared between callers and must be
// treated as read-only, which the pipeline already guarantees.
type CachedSource struct {
	inner   domain.GridSource
	series  *lruCache[domain.RasterSeries]
	counts  *lruCache[int]
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a grid source. metrics may be nil.
func NewCachedSource(inner domain.GridSource, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		series:  newLRUCache[domain.RasterSeries](maxEntries),
		counts:  newLRUCache[int](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedSource) Query(ctx context.Context, window domain.TimeWindow, region domain.Region) (domain.RasterSeries, error) {
	key := cacheKey(window, region)
	if series, ok := c.series.get(key); ok {
		c.observe("hit")
		return series, nil
	}
	c.observe("miss")

	series, err := c.inner.Query(ctx, window, region)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so a window whose data has not landed yet
	// is asked again on the next run.
	if len(series) > 0 {
		c.series.put(key, series)
		c.counts.put(key, len(series))
	}
	return series, nil
}

func (c *CachedSource) Count(ctx context.Context, window domain.TimeWindow, region domain.Region) (int, error) {
	key := cacheKey(window, region)
	if n, ok := c.counts.get(key); ok {
		c.observe("hit")
		return n, nil
	}
	c.observe("miss")

	n, err := c.inner.Count(ctx, window, region)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.counts.put(key, n)
	}
	return n, nil
}

func (c *CachedSource) observe(result string) {
	if c.metrics != nil {
		c.metrics.SourceCache.WithLabelValues(result).Inc()
	}
}

func cacheKey(window domain.TimeWindow, region domain.Region) string {
	return window.String() + "|" + region.String()
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	if c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
