package domain

import "errors"

var (
	// ErrMissingBand is returned when a grid lacks a band an operation needs.
	ErrMissingBand = errors.New("missing band")

	// ErrShapeMismatch is returned when bands or grids that must align differ
	// in rows or columns.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrEmptySeries is returned when aggregating a series with no elements.
	ErrEmptySeries = errors.New("empty series")

	// ErrSourceUnavailable is returned when a GridSource cannot answer, either
	// because the caller's deadline expired or the backend failed.
	ErrSourceUnavailable = errors.New("grid source unavailable")

	// ErrInvalidConfiguration is returned for malformed regions, windows or
	// color ramps.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
