package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

// Preload copies everything src returns for window and region into a new
// catalog.
func Preload(ctx context.Context, src domain.GridSource, window domain.TimeWindow, region domain.Region) (*Catalog, error) {
	series, err := src.Query(ctx, window, region)
	if err != nil {
		return nil, fmt.Errorf("preload %s: %w", window, err)
	}
	c := NewCatalog()
	if err := c.Add(series...); err != nil {
		return nil, fmt.Errorf("preload %s: %w", window, err)
	}
	return c, nil
}

// PreloadedSource answers queries inside its preloaded scope from memory and
// sends everything else to the inner source, so a query never sees only the
// part of a window that happened to be preloaded.
//
// The scope is one region and a time window. A query for the same region
// with a window outside the scope reloads the scope from the inner source,
// which is what a scheduler with a rolling end date produces. Other regions
// pass straight through.
type PreloadedSource struct {
	inner  domain.GridSource
	logger *slog.Logger

	mu      sync.RWMutex
	catalog *Catalog
	window  domain.TimeWindow
	region  domain.Region
}

// NewPreloadedSource preloads window and region from inner.
func NewPreloadedSource(ctx context.Context, inner domain.GridSource, window domain.TimeWindow, region domain.Region, logger *slog.Logger) (*PreloadedSource, error) {
	c, err := Preload(ctx, inner, window, region)
	if err != nil {
		return nil, err
	}
	logger.Info("grid source preloaded", "window", window.String(), "region", region.String(), "grids", c.Len())
	return &PreloadedSource{inner: inner, logger: logger, catalog: c, window: window, region: region}, nil
}

// Len returns the number of grids currently held in memory.
func (p *PreloadedSource) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.catalog.Len()
}

func (p *PreloadedSource) Query(ctx context.Context, window domain.TimeWindow, region domain.Region) (domain.RasterSeries, error) {
	if c, ok := p.covering(window, region); ok {
		return c.Query(ctx, window, region)
	}
	if region != p.scopeRegion() {
		return p.inner.Query(ctx, window, region)
	}

	c, err := Preload(ctx, p.inner, window, region)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.catalog, p.window = c, window
	p.mu.Unlock()
	p.logger.Info("grid source reloaded", "window", window.String(), "region", region.String(), "grids", c.Len())
	return c.Query(ctx, window, region)
}

func (p *PreloadedSource) Count(ctx context.Context, window domain.TimeWindow, region domain.Region) (int, error) {
	if c, ok := p.covering(window, region); ok {
		return c.Count(ctx, window, region)
	}
	return p.inner.Count(ctx, window, region)
}

// covering returns the catalog when it holds every grid the query selects.
// Grids are cropped to the preloaded region, so only that exact region is
// served from memory.
func (p *PreloadedSource) covering(window domain.TimeWindow, region domain.Region) (*Catalog, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if region != p.region {
		return nil, false
	}
	if window.Start.Before(p.window.Start) || window.End.After(p.window.End) {
		return nil, false
	}
	return p.catalog, true
}

func (p *PreloadedSource) scopeRegion() domain.Region {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.region
}
