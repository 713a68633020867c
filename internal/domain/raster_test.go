package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterGrid_AddBandCopies(t *testing.T) {
	ts := time.Date(2023, time.July, 1, 12, 0, 0, 0, time.UTC)
	temp := Band{Name: BandTemperature, Rows: 1, Cols: 2, Values: []float64{290, 291}}

	g, err := NewRasterGrid(ts, testRegion(), temp)
	require.NoError(t, err)

	g2, err := g.AddBand(Band{Name: BandDewpoint, Rows: 1, Cols: 2, Values: []float64{280, 281}})
	require.NoError(t, err)

	assert.Len(t, g.Bands, 1)
	assert.Len(t, g2.Bands, 2)

	// Replacing a band in the copy leaves the original alone.
	g3, err := g2.AddBand(Band{Name: BandTemperature, Rows: 1, Cols: 2, Values: []float64{300, 301}})
	require.NoError(t, err)
	orig, _ := g2.Band(BandTemperature)
	repl, _ := g3.Band(BandTemperature)
	assert.Equal(t, []float64{290, 291}, orig.Values)
	assert.Equal(t, []float64{300, 301}, repl.Values)
	assert.Len(t, g3.Bands, 2)
}

func TestRasterGrid_AddBandShapeMismatch(t *testing.T) {
	g, err := NewRasterGrid(time.Now(), testRegion(), Band{Name: BandTemperature, Rows: 2, Cols: 2, Values: make([]float64, 4)})
	require.NoError(t, err)

	_, err = g.AddBand(Band{Name: BandDewpoint, Rows: 1, Cols: 4, Values: make([]float64, 4)})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = g.AddBand(Band{Name: BandDewpoint, Rows: 2, Cols: 2, Values: make([]float64, 3)})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRasterGrid_Select(t *testing.T) {
	g := gridWith(t, time.Now(), 1, 1, map[string][]float64{
		BandTemperature: {290},
		BandDewpoint:    {280},
	})

	sel, err := g.Select(BandDewpoint)
	require.NoError(t, err)
	require.Len(t, sel.Bands, 1)
	assert.Equal(t, BandDewpoint, sel.Bands[0].Name)

	_, err = g.Select(BandRelativeHumidity)
	require.ErrorIs(t, err, ErrMissingBand)
}

func TestRasterSeries_FilterAndSort(t *testing.T) {
	end := time.Date(2023, time.July, 19, 0, 0, 0, 0, time.UTC)
	window, err := NewTimeWindow(end, 30)
	require.NoError(t, err)

	europe := Region{West: -10, South: 35, East: 30, North: 70}
	mk := func(ts time.Time, extent Region) RasterGrid {
		return RasterGrid{Timestamp: ts, Extent: extent}
	}

	series := RasterSeries{
		mk(end.AddDate(0, 0, -1), testRegion()),
		mk(end, testRegion()),                    // end is exclusive
		mk(window.Start, testRegion()),           // start is inclusive
		mk(end.AddDate(0, 0, -2), europe),        // wrong place
		mk(end.AddDate(0, 0, -40), testRegion()), // too old
	}

	got := series.Filter(window, testRegion())
	got.SortByTime()

	assert.Equal(t, []time.Time{window.Start, end.AddDate(0, 0, -1)}, got.Timestamps())
}

func TestBand_JSONMissingPixels(t *testing.T) {
	b := Band{Name: BandRelativeHumidity, Rows: 1, Cols: 3, Values: []float64{12.5, math.NaN(), 99}}

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"relative_humidity","rows":1,"cols":3,"values":[12.5,null,99]}`, string(data))

	var decoded Band
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 12.5, decoded.Values[0])
	assert.True(t, math.IsNaN(decoded.Values[1]))
	assert.Equal(t, 99.0, decoded.Values[2])
}

func TestToday_UsesClock(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2023, time.July, 19, 17, 45, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, time.Date(2023, time.July, 19, 0, 0, 0, 0, time.UTC), Today())
}
