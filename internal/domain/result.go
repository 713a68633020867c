package domain

import "time"

// HumidityMap is the output of one run: the mean humidity raster over the
// window, its classification and the legend to render it with.
type HumidityMap struct {
	ID         string          `json:"id"`
	ComputedAt time.Time       `json:"computed_at"`
	Window     TimeWindow      `json:"window"`
	Region     Region          `json:"region"`
	GridCount  int             `json:"grid_count"`
	Aggregate  AggregateRaster `json:"aggregate"`
	Colors     ColorGrid       `json:"colors"`
	Legend     Legend          `json:"legend"`
	Summary    Summary         `json:"summary"`
}

// Empty reports whether no grids fell inside the window. An empty map has
// no aggregate, colors or summary.
func (m HumidityMap) Empty() bool {
	return m.GridCount == 0
}

// Legend is the titled, ordered legend for a ColorRamp.
type Legend struct {
	Title   string        `json:"title"`
	Entries []LegendEntry `json:"entries"`
}

// NewLegend builds the humidity legend for a ramp.
func NewLegend(r ColorRamp) Legend {
	return Legend{Title: LegendTitle, Entries: r.Legend()}
}
