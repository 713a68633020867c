package domain

import (
	"context"
	"fmt"
	"time"
)

// GridSource is a time-indexed collection of multi-band grids.
//
// Implementations return an empty series, not an error, when nothing
// matches. Failures to reach the backing store, including an expired
// context deadline, wrap ErrSourceUnavailable.
type GridSource interface {
	// Query returns the grids whose timestamp falls in window and whose
	// extent intersects region, ordered by time.
	Query(ctx context.Context, window TimeWindow, region Region) (RasterSeries, error)

	// Count returns how many grids Query would return without loading band data.
	Count(ctx context.Context, window TimeWindow, region Region) (int, error)
}

// Params are the caller-supplied inputs of one humidity run.
type Params struct {
	EndDate      time.Time
	LookbackDays int
	Region       Region
	Ramp         ColorRamp
}

// Window validates the params and returns the time window they describe.
func (p Params) Window() (TimeWindow, error) {
	if err := p.Region.Validate(); err != nil {
		return TimeWindow{}, err
	}
	if len(p.Ramp.buckets) == 0 {
		return TimeWindow{}, fmt.Errorf("%w: color ramp has no buckets", ErrInvalidConfiguration)
	}
	return NewTimeWindow(p.EndDate, p.LookbackDays)
}

// SourceError wraps a backend failure so callers can match it with
// errors.Is(err, ErrSourceUnavailable) while keeping the cause.
func SourceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSourceUnavailable, err)
}
