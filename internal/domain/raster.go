package domain

import (
	"fmt"
	"slices"
	"time"
)

// Band names used throughout the pipeline.
const (
	BandTemperature      = "temperature_2m"
	BandDewpoint         = "dewpoint_temperature_2m"
	BandRelativeHumidity = "relative_humidity"
)

// Band is one named 2-D scalar field, stored row-major.
type Band struct {
	Name   string    `json:"name"`
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Values []float64 `json:"values"`
}

// NewBand allocates a band of the given shape filled with zeros.
func NewBand(name string, rows, cols int) Band {
	return Band{Name: name, Rows: rows, Cols: cols, Values: make([]float64, rows*cols)}
}

// At returns the value at (row, col).
func (b Band) At(row, col int) float64 {
	return b.Values[row*b.Cols+col]
}

// SameShape reports whether both bands have identical rows and columns.
func (b Band) SameShape(o Band) bool {
	return b.Rows == o.Rows && b.Cols == o.Cols
}

// Clone returns a deep copy of the band.
func (b Band) Clone() Band {
	b.Values = slices.Clone(b.Values)
	return b
}

func (b Band) validate() error {
	if b.Rows <= 0 || b.Cols <= 0 {
		return fmt.Errorf("band %q has invalid shape %dx%d", b.Name, b.Rows, b.Cols)
	}
	if len(b.Values) != b.Rows*b.Cols {
		return fmt.Errorf("%w: band %q has %d values for shape %dx%d",
			ErrShapeMismatch, b.Name, len(b.Values), b.Rows, b.Cols)
	}
	return nil
}

// RasterGrid is a single timestep: a set of equally shaped bands over an extent.
type RasterGrid struct {
	Timestamp time.Time `json:"timestamp"`
	Extent    Region    `json:"extent"`
	Bands     []Band    `json:"bands"`
}

// NewRasterGrid builds a grid and checks that every band shares one shape.
func NewRasterGrid(ts time.Time, extent Region, bands ...Band) (RasterGrid, error) {
	g := RasterGrid{Timestamp: ts.UTC(), Extent: extent}
	for _, b := range bands {
		var err error
		if g, err = g.AddBand(b); err != nil {
			return RasterGrid{}, err
		}
	}
	return g, nil
}

// Band looks up a band by name.
func (g RasterGrid) Band(name string) (Band, bool) {
	for _, b := range g.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

// Shape returns rows and columns shared by the grid's bands, or zeros when
// the grid has none.
func (g RasterGrid) Shape() (rows, cols int) {
	if len(g.Bands) == 0 {
		return 0, 0
	}
	return g.Bands[0].Rows, g.Bands[0].Cols
}

// AddBand returns a copy of the grid with b appended, replacing any band of
// the same name in the copy. The receiver's band slice is left untouched.
func (g RasterGrid) AddBand(b Band) (RasterGrid, error) {
	if err := b.validate(); err != nil {
		return RasterGrid{}, err
	}
	if rows, cols := g.Shape(); len(g.Bands) > 0 && (rows != b.Rows || cols != b.Cols) {
		return RasterGrid{}, fmt.Errorf("%w: band %q is %dx%d, grid is %dx%d",
			ErrShapeMismatch, b.Name, b.Rows, b.Cols, rows, cols)
	}

	bands := make([]Band, 0, len(g.Bands)+1)
	for _, existing := range g.Bands {
		if existing.Name != b.Name {
			bands = append(bands, existing)
		}
	}
	g.Bands = append(bands, b)
	return g, nil
}

// Select returns a copy of the grid holding only the named bands.
func (g RasterGrid) Select(names ...string) (RasterGrid, error) {
	out := RasterGrid{Timestamp: g.Timestamp, Extent: g.Extent, Bands: make([]Band, 0, len(names))}
	for _, name := range names {
		b, ok := g.Band(name)
		if !ok {
			return RasterGrid{}, fmt.Errorf("%w: %q at %s", ErrMissingBand, name, g.Timestamp.Format(time.RFC3339))
		}
		out.Bands = append(out.Bands, b)
	}
	return out, nil
}

// RasterSeries is a time-ordered sequence of grids.
type RasterSeries []RasterGrid

// SortByTime orders the series by timestamp in place. Equal timestamps keep
// their relative order.
func (s RasterSeries) SortByTime() {
	slices.SortStableFunc(s, func(a, b RasterGrid) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Filter keeps grids that fall inside the window and intersect the region.
func (s RasterSeries) Filter(window TimeWindow, region Region) RasterSeries {
	out := make(RasterSeries, 0, len(s))
	for _, g := range s {
		if window.Contains(g.Timestamp) && g.Extent.Intersects(region) {
			out = append(out, g)
		}
	}
	return out
}

// Timestamps lists the timestamps of the series in order.
func (s RasterSeries) Timestamps() []time.Time {
	ts := make([]time.Time, len(s))
	for i, g := range s {
		ts[i] = g.Timestamp
	}
	return ts
}

// DerivedRasterSeries is a RasterSeries whose elements carry a derived band.
type DerivedRasterSeries = RasterSeries

// AggregateRaster is the reduction of a series to one band. It has no
// timestamp; it represents the whole window.
type AggregateRaster struct {
	Extent Region `json:"extent"`
	Band   Band   `json:"band"`
	Count  int    `json:"count"`
}
