package netcdf

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// packing describes how a variable's stored integers map to physical values.
type packing struct {
	scale   float64
	offset  float64
	fill    float64
	hasFill bool
	missing float64
	hasMiss bool
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if attrs == nil {
		return p
	}
	if v, ok := attrFloat(attrs, "scale_factor"); ok {
		p.scale = v
	}
	if v, ok := attrFloat(attrs, "add_offset"); ok {
		p.offset = v
	}
	p.fill, p.hasFill = attrFloat(attrs, "_FillValue")
	p.missing, p.hasMiss = attrFloat(attrs, "missing_value")
	return p
}

// unpack converts a raw stored value; fill and missing markers become NaN.
func (p packing) unpack(raw float64) float64 {
	if (p.hasFill && raw == p.fill) || (p.hasMiss && raw == p.missing) || math.IsNaN(raw) {
		return math.NaN()
	}
	return raw*p.scale + p.offset
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	return scalarFloat(v)
}

func attrString(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	v, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func scalarFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		vals, err := toFloat64s(v)
		if err != nil || len(vals) != 1 {
			return 0, false
		}
		return vals[0], true
	}
}

// toFloat64s converts a 1-D variable or attribute value to float64.
func toFloat64s(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return slices.Clone(x), nil
	case []float32:
		return convert(x), nil
	case []int8:
		return convert(x), nil
	case []int16:
		return convert(x), nil
	case []int32:
		return convert(x), nil
	case []int64:
		return convert(x), nil
	case []uint8:
		return convert(x), nil
	case []uint16:
		return convert(x), nil
	case []uint32:
		return convert(x), nil
	case []uint64:
		return convert(x), nil
	default:
		return nil, fmt.Errorf("unsupported 1-D value type %T", v)
	}
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func convert[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// plane flattens the first timestep of a (time, lat, lon) slab row-major.
func plane(v any) ([]float64, int, int, error) {
	switch x := v.(type) {
	case [][][]float64:
		return flatten(x)
	case [][][]float32:
		return flatten(x)
	case [][][]int16:
		return flatten(x)
	case [][][]int32:
		return flatten(x)
	case [][][]int8:
		return flatten(x)
	case [][][]uint8:
		return flatten(x)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported slab type %T", v)
	}
}

func flatten[T number](slab [][][]T) ([]float64, int, int, error) {
	if len(slab) == 0 || len(slab[0]) == 0 {
		return nil, 0, 0, fmt.Errorf("empty slab")
	}
	rows, cols := len(slab[0]), len(slab[0][0])
	out := make([]float64, 0, rows*cols)
	for _, row := range slab[0] {
		if len(row) != cols {
			return nil, 0, 0, fmt.Errorf("ragged slab row of %d values, want %d", len(row), cols)
		}
		for _, v := range row {
			out = append(out, float64(v))
		}
	}
	return out, rows, cols, nil
}

// parseTimeUnits parses CF units of the form "<unit> since <reference>".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: want \"<unit> since <date>\"", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "s":
		step = time.Second
	case "minutes", "minute", "mins":
		step = time.Minute
	case "hours", "hour", "hrs", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", units, unit)
	}

	ref = strings.TrimSpace(ref)
	for _, layout := range []string{
		"2006-01-02 15:04:05.0",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, ref); err == nil {
			return step, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: unparseable reference %q", units, ref)
}

func decodeTimes(offsets []float64, step time.Duration, epoch time.Time) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, o := range offsets {
		out[i] = epoch.Add(time.Duration(o * float64(step)))
	}
	return out
}

// axisRange returns the half-open index range of axis values inside [lo, hi].
// The axis must be monotonic in either direction.
func axisRange(axis []float64, lo, hi float64) (int, int) {
	start, end := -1, -1
	for i, v := range axis {
		if v >= lo && v <= hi {
			if start < 0 {
				start = i
			}
			end = i + 1
		}
	}
	if start < 0 {
		return 0, 0
	}
	return start, end
}

func bounds(axis []float64) (float64, float64) {
	return slices.Min(axis), slices.Max(axis)
}
