package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultLookbackDays is the window length used when none is configured.
const DefaultLookbackDays = 30

// Region is an axis-aligned rectangle in WGS-84 degrees.
type Region struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// NewRegion validates bounds and returns the region they describe.
func NewRegion(west, south, east, north float64) (Region, error) {
	r := Region{West: west, South: south, East: east, North: north}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

// ParseRegion reads a "west,south,east,north" bounding box.
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("%w: region %q must have 4 comma-separated bounds", ErrInvalidConfiguration, s)
	}
	var bounds [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Region{}, fmt.Errorf("%w: region bound %q: %v", ErrInvalidConfiguration, p, err)
		}
		bounds[i] = v
	}
	return NewRegion(bounds[0], bounds[1], bounds[2], bounds[3])
}

// Validate checks ordering and the geographic range of the bounds.
func (r Region) Validate() error {
	if err := r.checkRanges(); err != nil {
		return err
	}
	if !(r.West < r.East) {
		return fmt.Errorf("%w: west %g must be less than east %g", ErrInvalidConfiguration, r.West, r.East)
	}
	if !(r.South < r.North) {
		return fmt.Errorf("%w: south %g must be less than north %g", ErrInvalidConfiguration, r.South, r.North)
	}
	return nil
}

// ValidateExtent checks r as the footprint of a grid. Unlike Validate it
// accepts a single row or column of cell centres (west == east or
// south == north).
func (r Region) ValidateExtent() error {
	if err := r.checkRanges(); err != nil {
		return err
	}
	if !(r.West <= r.East) || !(r.South <= r.North) {
		return fmt.Errorf("%w: extent %s is inverted", ErrInvalidConfiguration, r)
	}
	return nil
}

func (r Region) checkRanges() error {
	if r.West < -180 || r.East > 180 {
		return fmt.Errorf("%w: longitude bounds [%g, %g] outside [-180, 180]", ErrInvalidConfiguration, r.West, r.East)
	}
	if r.South < -90 || r.North > 90 {
		return fmt.Errorf("%w: latitude bounds [%g, %g] outside [-90, 90]", ErrInvalidConfiguration, r.South, r.North)
	}
	return nil
}

// Intersects reports whether the two rectangles share any point, edges included.
func (r Region) Intersects(o Region) bool {
	return r.West <= o.East && o.West <= r.East &&
		r.South <= o.North && o.South <= r.North
}

// Contains reports whether the point lies inside the rectangle, edges included.
func (r Region) Contains(lat, lon float64) bool {
	return lon >= r.West && lon <= r.East && lat >= r.South && lat <= r.North
}

func (r Region) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.West, r.South, r.East, r.North)
}

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow builds the window ending at end and reaching back
// lookbackDays calendar days.
func NewTimeWindow(end time.Time, lookbackDays int) (TimeWindow, error) {
	if lookbackDays <= 0 {
		return TimeWindow{}, fmt.Errorf("%w: lookback days must be positive, got %d", ErrInvalidConfiguration, lookbackDays)
	}
	if end.IsZero() {
		return TimeWindow{}, fmt.Errorf("%w: end date is required", ErrInvalidConfiguration)
	}
	end = end.UTC()
	return TimeWindow{Start: end.AddDate(0, 0, -lookbackDays), End: end}, nil
}

// Contains reports whether t falls in [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) String() string {
	return w.Start.Format(time.DateOnly) + "/" + w.End.Format(time.DateOnly)
}
