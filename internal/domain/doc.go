// Package domain models gridded reanalysis data and the relative humidity
// derivation performed on it.
//
// # Data Source
//
// Grids come from ECMWF ERA5-Land (daily raw) or a compatible reanalysis
// product. Each grid is one timestep over a regular latitude/longitude
// lattice and carries, among others:
//
//	temperature_2m            air temperature 2 m above ground, kelvin
//	dewpoint_temperature_2m   dewpoint temperature 2 m above ground, kelvin
//
// In ERA5 NetCDF exports these variables are named "t2m" and "d2m". Adapters
// rename them to the band names above before grids reach this package.
//
// # Grid Conventions
//
// Band values are stored row-major: index = row*cols + col. Row 0 is the
// northern edge, column 0 the western edge, matching ERA5's descending
// latitude axis. NaN marks a missing pixel (ocean cells in ERA5-Land, fill
// values in packed files).
//
// # Relative Humidity
//
// Saturation vapour pressure uses the Magnus form with the Tetens/Murray
// constants a=17.27, b=237.7 °C:
//
//	es(T) = 611.0 * exp(a*(T-273.15) / (b+(T-273.15)))   [Pa]
//	RH    = 100 * es(Td) / es(T)                          [%]
//
// The result is not clamped. A dewpoint above the air temperature (which
// happens in reanalysis output around fog and inversions) yields RH > 100.
// Clamping happens only at the visualization stage, see [ColorRamp.Classify].
//
// # Temporal Aggregation
//
// The mean over a window skips NaN pixels, so a cell missing on some days is
// averaged over the days it is defined. A cell missing on every day stays NaN.
package domain
