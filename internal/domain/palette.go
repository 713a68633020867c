package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// LegendTitle is the caption rendered above the humidity legend.
const LegendTitle = "Relative Humidity (%)"

var (
	// DefaultPalette is the color sequence for the five humidity buckets,
	// dry to wet.
	DefaultPalette = []string{"red", "orange", "yellow", "green", "blue"}

	// DefaultBucketLabels names the five equal-width buckets over [0, 100].
	DefaultBucketLabels = []string{"0-20", "20-40", "40-60", "60-80", "80-100"}
)

// namedColors resolves the CSS color keywords accepted in palettes.
var namedColors = map[string]string{
	"black":   "#000000",
	"white":   "#ffffff",
	"gray":    "#808080",
	"red":     "#ff0000",
	"orange":  "#ffa500",
	"yellow":  "#ffff00",
	"green":   "#008000",
	"lime":    "#00ff00",
	"cyan":    "#00ffff",
	"blue":    "#0000ff",
	"navy":    "#000080",
	"purple":  "#800080",
	"magenta": "#ff00ff",
	"brown":   "#a52a2a",
}

// Color is a palette entry: the identifier it was configured with and its
// normalized hex value. The zero Color means "no data".
type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// IsZero reports whether c is the no-data color.
func (c Color) IsZero() bool { return c == Color{} }

// ParseColor accepts a CSS keyword from namedColors or a "#rrggbb" hex string.
func ParseColor(s string) (Color, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	hex := name
	if v, ok := namedColors[name]; ok {
		hex = v
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return Color{}, fmt.Errorf("%w: color %q: %v", ErrInvalidConfiguration, s, err)
	}
	return Color{Name: name, Hex: c.Hex()}, nil
}

// Bucket is one equal-width slice of the ramp's value range.
type Bucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Color Color   `json:"color"`
	Label string  `json:"label"`
}

// ColorRamp partitions [Min, Max] into equal-width buckets, ascending.
type ColorRamp struct {
	min, max float64
	buckets  []Bucket
}

// NewColorRamp builds one bucket per color. labels must be empty, in which
// case bounds are used as labels, or match colors one to one.
func NewColorRamp(lo, hi float64, colors, labels []string) (ColorRamp, error) {
	if !(lo < hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return ColorRamp{}, fmt.Errorf("%w: ramp range [%g, %g]", ErrInvalidConfiguration, lo, hi)
	}
	if len(colors) == 0 {
		return ColorRamp{}, fmt.Errorf("%w: palette is empty", ErrInvalidConfiguration)
	}
	if len(labels) != 0 && len(labels) != len(colors) {
		return ColorRamp{}, fmt.Errorf("%w: %d palette colors but %d bucket labels",
			ErrInvalidConfiguration, len(colors), len(labels))
	}

	n := len(colors)
	buckets := make([]Bucket, n)
	for i, raw := range colors {
		c, err := ParseColor(raw)
		if err != nil {
			return ColorRamp{}, err
		}
		lower := lo + (hi-lo)*float64(i)/float64(n)
		upper := lo + (hi-lo)*float64(i+1)/float64(n)
		label := fmt.Sprintf("%g-%g", lower, upper)
		if len(labels) != 0 {
			label = labels[i]
		}
		buckets[i] = Bucket{Lower: lower, Upper: upper, Color: c, Label: label}
	}
	return ColorRamp{min: lo, max: hi, buckets: buckets}, nil
}

// DefaultColorRamp is the [0, 100] ramp over DefaultPalette.
func DefaultColorRamp() ColorRamp {
	r, err := NewColorRamp(0, 100, DefaultPalette, DefaultBucketLabels)
	if err != nil {
		panic(err)
	}
	return r
}

// Min returns the lower bound of the ramp.
func (r ColorRamp) Min() float64 { return r.min }

// Max returns the upper bound of the ramp.
func (r ColorRamp) Max() float64 { return r.max }

// Buckets returns a copy of the ramp's buckets in ascending order.
func (r ColorRamp) Buckets() []Bucket {
	return append([]Bucket(nil), r.buckets...)
}

// BucketIndex returns the bucket holding v. Values outside the range clamp
// to the first or last bucket; NaN returns -1.
func (r ColorRamp) BucketIndex(v float64) int {
	if math.IsNaN(v) || len(r.buckets) == 0 {
		return -1
	}
	n := len(r.buckets)
	switch {
	case v <= r.min:
		return 0
	case v >= r.max:
		return n - 1
	}
	i := int(math.Floor((v - r.min) / (r.max - r.min) * float64(n)))
	return max(0, min(i, n-1))
}

// Classify maps a value to its bucket color. NaN maps to the zero Color.
func (r ColorRamp) Classify(v float64) Color {
	i := r.BucketIndex(v)
	if i < 0 {
		return Color{}
	}
	return r.buckets[i].Color
}

// ColorGrid is a classified raster: per-pixel bucket indices into Palette,
// -1 for no data.
type ColorGrid struct {
	Rows    int     `json:"rows"`
	Cols    int     `json:"cols"`
	Palette []Color `json:"palette"`
	Index   []int   `json:"index"`
}

// At returns the color of (row, col).
func (g ColorGrid) At(row, col int) Color {
	i := g.Index[row*g.Cols+col]
	if i < 0 {
		return Color{}
	}
	return g.Palette[i]
}

// MapRaster classifies every pixel of b independently.
func (r ColorRamp) MapRaster(b Band) ColorGrid {
	palette := make([]Color, len(r.buckets))
	for i, bk := range r.buckets {
		palette[i] = bk.Color
	}
	idx := make([]int, len(b.Values))
	for i, v := range b.Values {
		idx[i] = r.BucketIndex(v)
	}
	return ColorGrid{Rows: b.Rows, Cols: b.Cols, Palette: palette, Index: idx}
}

// LegendEntry is one row of the rendered legend.
type LegendEntry struct {
	Color Color   `json:"color"`
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Legend returns one entry per bucket, ascending by value.
func (r ColorRamp) Legend() []LegendEntry {
	entries := make([]LegendEntry, len(r.buckets))
	for i, b := range r.buckets {
		entries[i] = LegendEntry{Color: b.Color, Label: b.Label, Lower: b.Lower, Upper: b.Upper}
	}
	return entries
}
