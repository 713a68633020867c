package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Aggregate reduces the named band across the series to its per-pixel mean.
// NaN pixels are skipped; a pixel that is NaN in every grid stays NaN.
func Aggregate(series DerivedRasterSeries, bandName string) (AggregateRaster, error) {
	if len(series) == 0 {
		return AggregateRaster{}, fmt.Errorf("aggregate %q: %w", bandName, ErrEmptySeries)
	}

	first, ok := series[0].Band(bandName)
	if !ok {
		return AggregateRaster{}, fmt.Errorf("aggregate: %w: %q in grid 0", ErrMissingBand, bandName)
	}

	n := len(first.Values)
	sum := make([]float64, n)
	counts := make([]float64, n)

	for i, g := range series {
		b, ok := g.Band(bandName)
		if !ok {
			return AggregateRaster{}, fmt.Errorf("aggregate: %w: %q in grid %d", ErrMissingBand, bandName, i)
		}
		if !b.SameShape(first) || len(b.Values) != n {
			return AggregateRaster{}, fmt.Errorf("aggregate: %w: grid %d is %dx%d, grid 0 is %dx%d",
				ErrShapeMismatch, i, b.Rows, b.Cols, first.Rows, first.Cols)
		}
		for j, v := range b.Values {
			if math.IsNaN(v) {
				continue
			}
			sum[j] += v
			counts[j]++
		}
	}

	// 0/0 leaves never-defined pixels as NaN.
	mean := NewBand(bandName, first.Rows, first.Cols)
	floats.DivTo(mean.Values, sum, counts)

	return AggregateRaster{
		Extent: series[0].Extent,
		Band:   mean,
		Count:  len(series),
	}, nil
}

// Summary describes the defined pixels of a band.
type Summary struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	Defined int     `json:"defined"`
	Missing int     `json:"missing"`
}

// Summarize computes min, max and mean over the band's non-NaN pixels.
// Min, max and mean are zero when no pixel is defined.
func Summarize(b Band) Summary {
	defined := make([]float64, 0, len(b.Values))
	for _, v := range b.Values {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	s := Summary{Defined: len(defined), Missing: len(b.Values) - len(defined)}
	if len(defined) == 0 {
		return s
	}
	s.Min = floats.Min(defined)
	s.Max = floats.Max(defined)
	s.Mean = stat.Mean(defined, nil)
	return s
}
