// Package memory provides an in-process GridSource backed by a spatial index
// and an LRU caching decorator for any GridSource.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

const (
	dimensions  = 2 // lon, lat
	minChildren = 25
	maxChildren = 50

	// tolerance widens every rect so edges that merely touch, and extents of
	// a single row or column, still intersect in the tree. Exact filtering
	// happens afterwards with domain.Region.Intersects.
	tolerance = 1e-9
)

// catalogItem wraps a grid for R-tree indexing by its extent.
type catalogItem struct {
	grid domain.RasterGrid
	rect *rtreego.Rect
}

func (ci *catalogItem) Bounds() *rtreego.Rect {
	return ci.rect
}

// Catalog is a thread-safe GridSource holding grids in memory, indexed by
// extent so region filters do not scan every grid.
type Catalog struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
	size int
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tree: rtreego.NewTree(dimensions, minChildren, maxChildren)}
}

// Add indexes grids by extent. Extents one cell wide (west == east or
// south == north) are accepted; inverted or out-of-range ones are rejected.
func (c *Catalog) Add(grids ...domain.RasterGrid) error {
	items := make([]*catalogItem, 0, len(grids))
	for _, g := range grids {
		rect, err := extentRect(g.Extent)
		if err != nil {
			return fmt.Errorf("index grid %s: %w", g.Timestamp, err)
		}
		items = append(items, &catalogItem{grid: g, rect: rect})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range items {
		c.tree.Insert(it)
	}
	c.size += len(items)
	return nil
}

// Len returns the number of indexed grids.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

func (c *Catalog) Query(ctx context.Context, window domain.TimeWindow, region domain.Region) (domain.RasterSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.SourceError("catalog query", err)
	}
	items, err := c.search(window, region)
	if err != nil {
		return nil, err
	}
	series := make(domain.RasterSeries, len(items))
	for i, it := range items {
		series[i] = it.grid
	}
	series.SortByTime()
	return series, nil
}

func (c *Catalog) Count(ctx context.Context, window domain.TimeWindow, region domain.Region) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.SourceError("catalog count", err)
	}
	items, err := c.search(window, region)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (c *Catalog) search(window domain.TimeWindow, region domain.Region) ([]*catalogItem, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	bounds, err := paddedRect(region)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := c.tree.SearchIntersect(bounds)
	items := make([]*catalogItem, 0, len(results))
	for _, r := range results {
		it, ok := r.(*catalogItem)
		if !ok {
			continue
		}
		if window.Contains(it.grid.Timestamp) && it.grid.Extent.Intersects(region) {
			items = append(items, it)
		}
	}
	return items, nil
}

func extentRect(r domain.Region) (*rtreego.Rect, error) {
	if err := r.ValidateExtent(); err != nil {
		return nil, err
	}
	return paddedRect(r)
}

func paddedRect(r domain.Region) (*rtreego.Rect, error) {
	return rtreego.NewRectFromPoints(
		rtreego.Point{r.West - tolerance, r.South - tolerance},
		rtreego.Point{r.East + tolerance, r.North + tolerance},
	)
}
