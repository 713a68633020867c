package domain

import (
	"fmt"
	"math"
	"time"
)

// Magnus coefficients (Tetens form as used by Murray, 1967).
const (
	magnusA         = 17.27
	magnusB         = 237.7 // °C
	magnusE0        = 611.0 // Pa
	kelvinToCelsius = 273.15
)

// Deriver computes one new band from a grid's existing bands.
type Deriver func(RasterGrid) (Band, error)

// SaturationVaporPressure returns the saturation vapour pressure in pascals
// for a temperature in kelvin.
func SaturationVaporPressure(kelvin float64) float64 {
	c := kelvin - kelvinToCelsius
	return magnusE0 * math.Exp(magnusA*c/(magnusB+c))
}

// RelativeHumidity returns 100 * es(dewpoint) / es(temperature), both in
// kelvin. The result is not clamped to [0, 100].
func RelativeHumidity(temperature, dewpoint float64) float64 {
	return 100 * SaturationVaporPressure(dewpoint) / SaturationVaporPressure(temperature)
}

// DeriveHumidity computes the relative_humidity band from the grid's
// temperature_2m and dewpoint_temperature_2m bands.
func DeriveHumidity(g RasterGrid) (Band, error) {
	temp, ok := g.Band(BandTemperature)
	if !ok {
		return Band{}, fmt.Errorf("derive humidity: %w: %q", ErrMissingBand, BandTemperature)
	}
	dew, ok := g.Band(BandDewpoint)
	if !ok {
		return Band{}, fmt.Errorf("derive humidity: %w: %q", ErrMissingBand, BandDewpoint)
	}
	if !temp.SameShape(dew) || len(temp.Values) != len(dew.Values) {
		return Band{}, fmt.Errorf("derive humidity: %w: %s is %dx%d, %s is %dx%d",
			ErrShapeMismatch, BandTemperature, temp.Rows, temp.Cols, BandDewpoint, dew.Rows, dew.Cols)
	}

	rh := NewBand(BandRelativeHumidity, temp.Rows, temp.Cols)
	for i := range rh.Values {
		rh.Values[i] = RelativeHumidity(temp.Values[i], dew.Values[i])
	}
	return rh, nil
}

// TransformSeries applies the deriver to every grid and appends the result
// to a copy of that grid. Order and length are preserved.
func TransformSeries(series RasterSeries, derive Deriver) (DerivedRasterSeries, error) {
	out := make(DerivedRasterSeries, 0, len(series))
	for i, g := range series {
		band, err := derive(g)
		if err != nil {
			return nil, fmt.Errorf("transform grid %d (%s): %w", i, g.Timestamp.Format(time.RFC3339), err)
		}
		derived, err := g.AddBand(band)
		if err != nil {
			return nil, fmt.Errorf("transform grid %d (%s): %w", i, g.Timestamp.Format(time.RFC3339), err)
		}
		out = append(out, derived)
	}
	return out, nil
}
