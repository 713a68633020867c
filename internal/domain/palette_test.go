package domain

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want Color
	}{
		{"red", Color{Name: "red", Hex: "#ff0000"}},
		{" Orange ", Color{Name: "orange", Hex: "#ffa500"}},
		{"#1E90FF", Color{Name: "#1e90ff", Hex: "#1e90ff"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseColor("chartreuse-ish")
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewColorRamp_Validation(t *testing.T) {
	_, err := NewColorRamp(0, 100, DefaultPalette, []string{"low", "high"})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewColorRamp(100, 0, DefaultPalette, nil)
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewColorRamp(0, 100, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestColorRamp_Legend(t *testing.T) {
	ramp := DefaultColorRamp()

	want := []LegendEntry{
		{Color: Color{Name: "red", Hex: "#ff0000"}, Label: "0-20", Lower: 0, Upper: 20},
		{Color: Color{Name: "orange", Hex: "#ffa500"}, Label: "20-40", Lower: 20, Upper: 40},
		{Color: Color{Name: "yellow", Hex: "#ffff00"}, Label: "40-60", Lower: 40, Upper: 60},
		{Color: Color{Name: "green", Hex: "#008000"}, Label: "60-80", Lower: 60, Upper: 80},
		{Color: Color{Name: "blue", Hex: "#0000ff"}, Label: "80-100", Lower: 80, Upper: 100},
	}
	if diff := cmp.Diff(want, ramp.Legend()); diff != "" {
		t.Fatalf("legend mismatch (-want +got):\n%s", diff)
	}
}

func TestColorRamp_GeneratedLabels(t *testing.T) {
	ramp, err := NewColorRamp(0, 100, []string{"red", "blue"}, nil)
	require.NoError(t, err)

	legend := ramp.Legend()
	require.Len(t, legend, 2)
	assert.Equal(t, "0-50", legend[0].Label)
	assert.Equal(t, "50-100", legend[1].Label)
}

func TestColorRamp_BucketIndex(t *testing.T) {
	ramp := DefaultColorRamp()

	tests := []struct {
		value float64
		want  int
	}{
		{-15, 0},
		{0, 0},
		{19.999, 0},
		{20, 1},
		{52.5, 2},
		{79.9, 3},
		{80, 4},
		{100, 4},
		{137, 4},
		{math.Inf(1), 4},
		{math.Inf(-1), 0},
		{math.NaN(), -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ramp.BucketIndex(tt.value), "value %g", tt.value)
	}
}

func TestColorRamp_ClassifyIsMonotonic(t *testing.T) {
	ramp := DefaultColorRamp()
	prev := ramp.BucketIndex(0)
	for v := 0.0; v <= 100; v += 0.25 {
		i := ramp.BucketIndex(v)
		assert.GreaterOrEqual(t, i, prev, "value %g", v)
		prev = i
	}
}

func TestColorRamp_Classify(t *testing.T) {
	ramp := DefaultColorRamp()
	assert.Equal(t, "red", ramp.Classify(-3).Name)
	assert.Equal(t, "yellow", ramp.Classify(52.5).Name)
	assert.Equal(t, "blue", ramp.Classify(104).Name)
	assert.True(t, ramp.Classify(math.NaN()).IsZero())
}

func TestColorRamp_MapRaster(t *testing.T) {
	ramp := DefaultColorRamp()
	band := Band{Name: BandRelativeHumidity, Rows: 2, Cols: 2, Values: []float64{5, 45, math.NaN(), 95}}

	grid := ramp.MapRaster(band)

	assert.Equal(t, 2, grid.Rows)
	assert.Equal(t, 2, grid.Cols)
	assert.Equal(t, []int{0, 2, -1, 4}, grid.Index)
	assert.Equal(t, "red", grid.At(0, 0).Name)
	assert.Equal(t, "yellow", grid.At(0, 1).Name)
	assert.True(t, grid.At(1, 0).IsZero())
	assert.Equal(t, "blue", grid.At(1, 1).Name)
}

func TestNewLegend(t *testing.T) {
	legend := NewLegend(DefaultColorRamp())
	assert.Equal(t, "Relative Humidity (%)", legend.Title)
	require.Len(t, legend.Entries, 5)
	assert.Equal(t, "red", legend.Entries[0].Color.Name)
	assert.Equal(t, "80-100", legend.Entries[4].Label)
}
