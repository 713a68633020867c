package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/era5-humidity-service/internal/adapter/memory"
	"github.com/couchcryptid/era5-humidity-service/internal/domain"
	"github.com/couchcryptid/era5-humidity-service/internal/observability"
	"github.com/couchcryptid/era5-humidity-service/internal/pipeline"
)

// --- mocks ---

type mockPublisher struct {
	published []domain.HumidityMap
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, hm domain.HumidityMap) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, hm)
	return nil
}

// blockingSource never answers; it returns the bare context error once the
// caller gives up.
type blockingSource struct{}

func (blockingSource) Query(ctx context.Context, _ domain.TimeWindow, _ domain.Region) (domain.RasterSeries, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingSource) Count(ctx context.Context, _ domain.TimeWindow, _ domain.Region) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

type failingSource struct{ err error }

func (f failingSource) Query(context.Context, domain.TimeWindow, domain.Region) (domain.RasterSeries, error) {
	return nil, f.err
}

func (f failingSource) Count(context.Context, domain.TimeWindow, domain.Region) (int, error) {
	return 0, f.err
}

// --- helpers ---

var (
	eastUS  = domain.Region{West: -100, South: 24, East: -66, North: 50}
	endDate = time.Date(2023, time.July, 19, 0, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() domain.Params {
	return domain.Params{
		EndDate:      endDate,
		LookbackDays: 30,
		Region:       eastUS,
		Ramp:         domain.DefaultColorRamp(),
	}
}

// freezeClock pins domain.Now and returns the frozen instant.
func freezeClock(t *testing.T) time.Time {
	t.Helper()
	now := time.Date(2023, time.July, 19, 6, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })
	return now
}

func makeGrid(t *testing.T, ts time.Time, temp, dew []float64) domain.RasterGrid {
	t.Helper()
	g, err := domain.NewRasterGrid(ts, eastUS,
		domain.Band{Name: domain.BandTemperature, Rows: 2, Cols: 2, Values: temp},
		domain.Band{Name: domain.BandDewpoint, Rows: 2, Cols: 2, Values: dew},
	)
	require.NoError(t, err)
	return g
}

func catalogWith(t *testing.T, grids ...domain.RasterGrid) *memory.Catalog {
	t.Helper()
	c := memory.NewCatalog()
	require.NoError(t, c.Add(grids...))
	return c
}

// --- tests ---

func TestPipeline_Execute_HappyPath(t *testing.T) {
	now := freezeClock(t)
	temp := []float64{293.15, 293.15, 293.15, 293.15}
	dew := []float64{283.15, 283.15, 293.15, 263.15}
	source := catalogWith(t,
		makeGrid(t, endDate.AddDate(0, 0, -1), temp, dew),
		makeGrid(t, endDate.AddDate(0, 0, -10), temp, dew),
		makeGrid(t, endDate.AddDate(0, 0, -30), temp, dew),
		makeGrid(t, endDate, temp, dew), // end is exclusive
	)
	pub := &mockPublisher{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(source, pub, discardLogger(), metrics, time.Second)

	m, err := p.Execute(context.Background(), testParams())
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, now, m.ComputedAt)
	assert.Equal(t, time.Date(2023, time.June, 19, 0, 0, 0, 0, time.UTC), m.Window.Start)
	assert.Equal(t, endDate, m.Window.End)
	assert.Equal(t, 3, m.GridCount)
	assert.False(t, m.Empty())

	rh := m.Aggregate.Band
	assert.Equal(t, domain.BandRelativeHumidity, rh.Name)
	assert.Equal(t, 3, m.Aggregate.Count)
	assert.InDelta(t, 52.57, rh.Values[0], 0.01)
	assert.InDelta(t, 52.57, rh.Values[1], 0.01)
	assert.InDelta(t, 100.0, rh.Values[2], 1e-9)
	assert.InDelta(t, 12.26, rh.Values[3], 0.01)

	assert.Equal(t, []int{2, 2, 4, 0}, m.Colors.Index)
	assert.Equal(t, "yellow", m.Colors.At(0, 0).Name)

	wantLegend := domain.NewLegend(domain.DefaultColorRamp())
	if diff := cmp.Diff(wantLegend, m.Legend); diff != "" {
		t.Fatalf("legend mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, m.Summary.Defined)
	assert.InDelta(t, 100.0, m.Summary.Max, 1e-9)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, m.ID, latest.ID)
	require.NoError(t, p.CheckReadiness(context.Background()))

	require.Len(t, pub.published, 1)
	assert.Equal(t, m.ID, pub.published[0].ID)

	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.GridsProcessed), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.LastRunGrids), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ResultsPublished), 0)
}

func TestPipeline_Execute_MissingPixelsAreSkipped(t *testing.T) {
	freezeClock(t)
	nan := math.NaN()
	source := catalogWith(t,
		makeGrid(t, endDate.AddDate(0, 0, -1), []float64{293.15, nan, nan, 293.15}, []float64{293.15, 283.15, nan, 293.15}),
		makeGrid(t, endDate.AddDate(0, 0, -2), []float64{293.15, 293.15, nan, 293.15}, []float64{293.15, 293.15, nan, 293.15}),
	)
	p := pipeline.New(source, nil, discardLogger(), observability.NewMetricsForTesting(), time.Second)

	m, err := p.Execute(context.Background(), testParams())
	require.NoError(t, err)

	rh := m.Aggregate.Band.Values
	assert.InDelta(t, 100.0, rh[0], 1e-9)
	assert.InDelta(t, 100.0, rh[1], 1e-9, "pixel defined in one grid only")
	assert.True(t, math.IsNaN(rh[2]), "pixel undefined everywhere stays missing")
	assert.Equal(t, -1, m.Colors.Index[2])
	assert.Equal(t, 3, m.Summary.Defined)
	assert.Equal(t, 1, m.Summary.Missing)
}

func TestPipeline_Execute_EmptyWindow(t *testing.T) {
	freezeClock(t)
	source := catalogWith(t,
		makeGrid(t, time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
			[]float64{290, 290, 290, 290}, []float64{280, 280, 280, 280}),
	)
	pub := &mockPublisher{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(source, pub, discardLogger(), metrics, time.Second)

	m, err := p.Execute(context.Background(), testParams())
	require.NoError(t, err, "an empty window is a normal outcome")

	assert.True(t, m.Empty())
	assert.Zero(t, m.GridCount)
	assert.Empty(t, m.Aggregate.Band.Values)
	assert.Len(t, m.Legend.Entries, 5)
	assert.Equal(t, domain.LegendTitle, m.Legend.Title)
	require.NoError(t, p.CheckReadiness(context.Background()))
	require.Len(t, pub.published, 1)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("empty")), 0)
}

func TestPipeline_Execute_SourceTimeout(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(blockingSource{}, nil, discardLogger(), metrics, 20*time.Millisecond)

	start := time.Now()
	_, err := p.Execute(context.Background(), testParams())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, ok := p.Latest()
	assert.False(t, ok)
	require.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("error")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.SourceErrors.WithLabelValues("query")), 0)
}

func TestPipeline_Execute_SourceErrorPropagates(t *testing.T) {
	boom := domain.SourceError("dataset", errors.New("connection refused"))
	p := pipeline.New(failingSource{err: boom}, nil, discardLogger(), observability.NewMetricsForTesting(), time.Second)

	_, err := p.Execute(context.Background(), testParams())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPipeline_Execute_InvalidParams(t *testing.T) {
	p := pipeline.New(memory.NewCatalog(), nil, discardLogger(), observability.NewMetricsForTesting(), time.Second)

	tests := []struct {
		name   string
		mutate func(*domain.Params)
	}{
		{"inverted region", func(p *domain.Params) { p.Region = domain.Region{West: -66, South: 24, East: -100, North: 50} }},
		{"zero lookback", func(p *domain.Params) { p.LookbackDays = 0 }},
		{"missing end date", func(p *domain.Params) { p.EndDate = time.Time{} }},
		{"no ramp", func(p *domain.Params) { p.Ramp = domain.ColorRamp{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams()
			tt.mutate(&params)
			_, err := p.Execute(context.Background(), params)
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestPipeline_Execute_MissingBand(t *testing.T) {
	g, err := domain.NewRasterGrid(endDate.AddDate(0, 0, -1), eastUS,
		domain.Band{Name: domain.BandTemperature, Rows: 1, Cols: 1, Values: []float64{290}})
	require.NoError(t, err)
	p := pipeline.New(catalogWith(t, g), nil, discardLogger(), observability.NewMetricsForTesting(), time.Second)

	_, err = p.Execute(context.Background(), testParams())
	require.ErrorIs(t, err, domain.ErrMissingBand)
}

func TestPipeline_Execute_PublishFailureKeepsLatest(t *testing.T) {
	freezeClock(t)
	source := catalogWith(t, makeGrid(t, endDate.AddDate(0, 0, -1),
		[]float64{290, 290, 290, 290}, []float64{280, 280, 280, 280}))
	pub := &mockPublisher{err: errors.New("broker down")}
	p := pipeline.New(source, pub, discardLogger(), observability.NewMetricsForTesting(), time.Second)

	m, err := p.Execute(context.Background(), testParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, 1, m.GridCount)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, m.ID, latest.ID)
}

func TestPipeline_Count(t *testing.T) {
	source := catalogWith(t,
		makeGrid(t, endDate.AddDate(0, 0, -1), []float64{1, 1, 1, 1}, []float64{1, 1, 1, 1}),
		makeGrid(t, endDate.AddDate(0, 0, -2), []float64{1, 1, 1, 1}, []float64{1, 1, 1, 1}),
		makeGrid(t, endDate.AddDate(0, 0, -45), []float64{1, 1, 1, 1}, []float64{1, 1, 1, 1}),
	)
	p := pipeline.New(source, nil, discardLogger(), observability.NewMetricsForTesting(), time.Second)

	window, n, err := p.Count(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "2023-06-19/2023-07-19", window.String())
}

func TestPipeline_Count_Timeout(t *testing.T) {
	p := pipeline.New(blockingSource{}, nil, discardLogger(), observability.NewMetricsForTesting(), 20*time.Millisecond)

	_, _, err := p.Count(context.Background(), testParams())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
}
