// Package netcdf reads ERA5 single-level reanalysis files as a GridSource.
package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

// Vars names the variables read from the file.
type Vars struct {
	Temperature string
	Dewpoint    string
	Time        string
}

// DefaultVars matches files downloaded from the Copernicus Climate Data Store.
var DefaultVars = Vars{Temperature: "t2m", Dewpoint: "d2m", Time: "time"}

var (
	latitudeNames  = []string{"latitude", "lat"}
	longitudeNames = []string{"longitude", "lon"}
)

// Source serves grids from a single NetCDF file. The file is opened per call
// so a Source is safe for concurrent use and picks up replaced files.
type Source struct {
	path   string
	vars   Vars
	logger *slog.Logger
	open   func(string) (api.Group, error)
}

// NewSource creates a source over the file at path.
func NewSource(path string, vars Vars, logger *slog.Logger) *Source {
	return &Source{path: path, vars: vars, logger: logger, open: netcdf.Open}
}

// dataset is an open file with its coordinate axes decoded.
type dataset struct {
	group     api.Group
	lat       []float64
	lon       []float64
	times     []time.Time
	extent    domain.Region
	northward bool // latitude ascends, so rows must be flipped
}

func (s *Source) Query(ctx context.Context, window domain.TimeWindow, region domain.Region) (domain.RasterSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.SourceError("netcdf query", err)
	}
	ds, err := s.openDataset()
	if err != nil {
		return nil, domain.SourceError("netcdf query", err)
	}
	defer ds.group.Close()

	steps := ds.stepsIn(window)
	r0, r1, c0, c1, ok := ds.crop(region)
	if len(steps) == 0 || !ok {
		return domain.RasterSeries{}, nil
	}
	extent := cellExtent(ds.lat[r0:r1], ds.lon[c0:c1], spacing(ds.lat), spacing(ds.lon))

	temp, err := s.variable(ds.group, s.vars.Temperature)
	if err != nil {
		return nil, domain.SourceError("netcdf query", err)
	}
	dew, err := s.variable(ds.group, s.vars.Dewpoint)
	if err != nil {
		return nil, domain.SourceError("netcdf query", err)
	}

	series := make(domain.RasterSeries, 0, len(steps))
	for _, i := range steps {
		if err := ctx.Err(); err != nil {
			return nil, domain.SourceError("netcdf query", err)
		}
		bands := make([]domain.Band, 0, 2)
		for _, v := range []variable{temp, dew} {
			band, err := v.read(int64(i), r0, r1, c0, c1, ds.northward)
			if err != nil {
				return nil, domain.SourceError("netcdf query", fmt.Errorf("step %d: %w", i, err))
			}
			bands = append(bands, band)
		}
		g, err := domain.NewRasterGrid(ds.times[i], extent, bands...)
		if err != nil {
			return nil, fmt.Errorf("netcdf step %d: %w", i, err)
		}
		series = append(series, g)
	}

	s.logger.Debug("netcdf query",
		"path", s.path,
		"window", window.String(),
		"grids", len(series),
		"rows", r1-r0,
		"cols", c1-c0,
	)
	return series, nil
}

// Count reads only the coordinate axes.
func (s *Source) Count(ctx context.Context, window domain.TimeWindow, region domain.Region) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.SourceError("netcdf count", err)
	}
	ds, err := s.openDataset()
	if err != nil {
		return 0, domain.SourceError("netcdf count", err)
	}
	defer ds.group.Close()

	if _, _, _, _, ok := ds.crop(region); !ok {
		return 0, nil
	}
	return len(ds.stepsIn(window)), nil
}

func (s *Source) openDataset() (*dataset, error) {
	group, err := s.open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	ds, err := s.readAxes(group)
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return ds, nil
}

func (s *Source) readAxes(group api.Group) (*dataset, error) {
	lat, err := axisValues(group, latitudeNames...)
	if err != nil {
		return nil, err
	}
	lon, err := axisValues(group, longitudeNames...)
	if err != nil {
		return nil, err
	}

	tv, err := group.GetVarGetter(s.vars.Time)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", s.vars.Time, err)
	}
	raw, err := tv.Values()
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", s.vars.Time, err)
	}
	offsets, err := toFloat64s(raw)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", s.vars.Time, err)
	}
	step, epoch, err := parseTimeUnits(attrString(tv.Attributes(), "units"))
	if err != nil {
		return nil, err
	}

	south, north := bounds(lat)
	west, east := bounds(lon)
	return &dataset{
		group:     group,
		lat:       lat,
		lon:       lon,
		times:     decodeTimes(offsets, step, epoch),
		extent:    domain.Region{West: west, South: south, East: east, North: north},
		northward: len(lat) > 1 && lat[0] < lat[len(lat)-1],
	}, nil
}

// crop returns the row and column ranges of the cell centres inside region.
// ok is false when no centre falls inside, including a region that lies
// between grid points.
func (ds *dataset) crop(region domain.Region) (r0, r1, c0, c1 int, ok bool) {
	if !ds.extent.Intersects(region) {
		return 0, 0, 0, 0, false
	}
	r0, r1 = axisRange(ds.lat, region.South, region.North)
	c0, c1 = axisRange(ds.lon, region.West, region.East)
	return r0, r1, c0, c1, r0 < r1 && c0 < c1
}

func (ds *dataset) stepsIn(window domain.TimeWindow) []int {
	var steps []int
	for i, t := range ds.times {
		if window.Contains(t) {
			steps = append(steps, i)
		}
	}
	slices.SortStableFunc(steps, func(a, b int) int { return ds.times[a].Compare(ds.times[b]) })
	return steps
}

func axisValues(group api.Group, names ...string) ([]float64, error) {
	for _, name := range names {
		vg, err := group.GetVarGetter(name)
		if err != nil {
			continue
		}
		raw, err := vg.Values()
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}
		vals, err := toFloat64s(raw)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("axis %q is empty", name)
		}
		return vals, nil
	}
	return nil, fmt.Errorf("no coordinate variable among %v", names)
}

// variable is a data variable bound to its band name and packing.
type variable struct {
	band   string
	getter api.VarGetter
	pack   packing
}

func (s *Source) variable(group api.Group, name string) (variable, error) {
	vg, err := group.GetVarGetter(name)
	if err != nil {
		return variable{}, fmt.Errorf("variable %q: %w", name, err)
	}
	band := domain.BandTemperature
	if name == s.vars.Dewpoint {
		band = domain.BandDewpoint
	}
	return variable{band: band, getter: vg, pack: packingOf(vg.Attributes())}, nil
}

func (v variable) read(step int64, r0, r1, c0, c1 int, flip bool) (domain.Band, error) {
	slab, err := v.getter.GetSlice(step, step+1)
	if err != nil {
		return domain.Band{}, fmt.Errorf("read %s: %w", v.band, err)
	}
	raw, rows, cols, err := plane(slab)
	if err != nil {
		return domain.Band{}, fmt.Errorf("read %s: %w", v.band, err)
	}
	if r1 > rows || c1 > cols {
		return domain.Band{}, fmt.Errorf("read %s: %w: plane is %dx%d, axes need %dx%d",
			v.band, domain.ErrShapeMismatch, rows, cols, r1, c1)
	}

	band := domain.Band{Name: v.band, Rows: r1 - r0, Cols: c1 - c0}
	band.Values = cropPlane(raw, cols, r0, r1, c0, c1, flip, v.pack)
	return band, nil
}

// cropPlane extracts rows [r0,r1) and columns [c0,c1) of a row-major plane,
// unpacking each value. With flip set, the output rows run north to south
// from a south-to-north input.
func cropPlane(raw []float64, cols, r0, r1, c0, c1 int, flip bool, pack packing) []float64 {
	w := c1 - c0
	out := make([]float64, (r1-r0)*w)
	for r := r0; r < r1; r++ {
		dst := r - r0
		if flip {
			dst = r1 - 1 - r
		}
		for c := c0; c < c1; c++ {
			out[dst*w+(c-c0)] = pack.unpack(raw[r*cols+c])
		}
	}
	return out
}

// cellExtent bounds the cells centred on the cropped axis values: the
// outermost centres are padded by half the axis spacing, so a single row or
// column still covers its cell.
func cellExtent(lat, lon []float64, latStep, lonStep float64) domain.Region {
	south, north := bounds(lat)
	west, east := bounds(lon)
	return domain.Region{
		West:  max(west-lonStep/2, -180),
		South: max(south-latStep/2, -90),
		East:  min(east+lonStep/2, 180),
		North: min(north+latStep/2, 90),
	}
}

// spacing is the distance between neighbouring axis values, 0 for a single
// value. ERA5 axes are regular.
func spacing(axis []float64) float64 {
	if len(axis) < 2 {
		return 0
	}
	return math.Abs(axis[1] - axis[0])
}
