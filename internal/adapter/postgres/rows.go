package postgres

import (
	"fmt"
	"time"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

// gridRow is one band of one grid as stored.
type gridRow struct {
	ts     time.Time
	band   string
	extent domain.Region
	rows   int
	cols   int
	vals   []float64
}

func filterArgs(window domain.TimeWindow, region domain.Region) []any {
	return []any{window.Start, window.End, region.East, region.West, region.North, region.South}
}

func toRows(grids []domain.RasterGrid) []gridRow {
	var out []gridRow
	for _, g := range grids {
		for _, b := range g.Bands {
			out = append(out, gridRow{
				ts:     g.Timestamp.UTC(),
				band:   b.Name,
				extent: g.Extent,
				rows:   b.Rows,
				cols:   b.Cols,
				vals:   b.Values,
			})
		}
	}
	return out
}

// assemble groups band rows ordered by timestamp into grids.
func assemble(rows []gridRow) (domain.RasterSeries, error) {
	series := domain.RasterSeries{}
	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j].ts.Equal(rows[i].ts) {
			j++
		}
		bands := make([]domain.Band, 0, j-i)
		for _, r := range rows[i:j] {
			bands = append(bands, domain.Band{Name: r.band, Rows: r.rows, Cols: r.cols, Values: r.vals})
		}
		g, err := domain.NewRasterGrid(rows[i].ts, rows[i].extent, bands...)
		if err != nil {
			return nil, fmt.Errorf("grid %s: %w", rows[i].ts.Format(time.RFC3339), err)
		}
		series = append(series, g)
		i = j
	}
	series.SortByTime()
	return series, nil
}
