package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
	"github.com/couchcryptid/era5-humidity-service/internal/observability"
)

// Publisher hands a finished humidity map to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, m domain.HumidityMap) error
}

// Pipeline runs query, derive, aggregate and classify for one set of
// parameters and keeps the latest map for readers.
type Pipeline struct {
	source        domain.GridSource
	publisher     Publisher
	logger        *slog.Logger
	metrics       *observability.Metrics
	sourceTimeout time.Duration
	ready         atomic.Bool
	latest        atomic.Pointer[domain.HumidityMap]
}

// DefaultSourceTimeout bounds each source call when New is given no timeout.
const DefaultSourceTimeout = 30 * time.Second

// New creates a Pipeline. publisher may be nil to skip publishing.
func New(source domain.GridSource, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, sourceTimeout time.Duration) *Pipeline {
	if sourceTimeout <= 0 {
		sourceTimeout = DefaultSourceTimeout
	}
	return &Pipeline{
		source:        source,
		publisher:     publisher,
		logger:        logger,
		metrics:       metrics,
		sourceTimeout: sourceTimeout,
	}
}

// CheckReadiness returns nil once a run has completed, or an error describing
// why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no humidity map has been computed yet")
	}
	return nil
}

// Latest returns the map of the last completed run.
func (p *Pipeline) Latest() (domain.HumidityMap, bool) {
	m := p.latest.Load()
	if m == nil {
		return domain.HumidityMap{}, false
	}
	return *m, true
}

// Execute computes the humidity map for params. A window without grids is
// not an error: the returned map is Empty and carries only the legend.
//
// The map becomes Latest before it is published, so a publish failure is
// returned together with a valid map.
func (p *Pipeline) Execute(ctx context.Context, params domain.Params) (domain.HumidityMap, error) {
	start := time.Now()
	m, err := p.execute(ctx, params)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
		p.logger.Error("humidity run failed", "error", err, "region", params.Region.String())
		return domain.HumidityMap{}, err
	case m.Empty():
		p.metrics.RunsTotal.WithLabelValues("empty").Inc()
	default:
		p.metrics.RunsTotal.WithLabelValues("success").Inc()
	}

	p.metrics.LastRunGrids.Set(float64(m.GridCount))
	p.latest.Store(&m)
	p.ready.Store(true)

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, m); err != nil {
			p.logger.Error("publish humidity map failed", "error", err, "id", m.ID)
			return m, fmt.Errorf("publish: %w", err)
		}
		p.metrics.ResultsPublished.Inc()
	}
	return m, nil
}

func (p *Pipeline) execute(ctx context.Context, params domain.Params) (domain.HumidityMap, error) {
	window, err := params.Window()
	if err != nil {
		return domain.HumidityMap{}, fmt.Errorf("invalid parameters: %w", err)
	}

	series, err := p.query(ctx, window, params.Region)
	if err != nil {
		return domain.HumidityMap{}, err
	}

	m := domain.HumidityMap{
		ID:         uuid.NewString(),
		ComputedAt: domain.Now(),
		Window:     window,
		Region:     params.Region,
		GridCount:  len(series),
		Legend:     domain.NewLegend(params.Ramp),
	}
	p.logger.Info("grids selected",
		"start", window.Start.Format(time.DateOnly),
		"end", window.End.Format(time.DateOnly),
		"region", params.Region.String(),
		"grids", len(series),
	)
	if len(series) == 0 {
		p.logger.Warn("no grids found in window", "window", window.String(), "region", params.Region.String())
		return m, nil
	}

	derived, err := domain.TransformSeries(series, domain.DeriveHumidity)
	if err != nil {
		return domain.HumidityMap{}, err
	}
	agg, err := domain.Aggregate(derived, domain.BandRelativeHumidity)
	if err != nil {
		return domain.HumidityMap{}, err
	}
	p.metrics.GridsProcessed.Add(float64(len(derived)))

	m.Aggregate = agg
	m.Colors = params.Ramp.MapRaster(agg.Band)
	m.Summary = domain.Summarize(agg.Band)

	p.logger.Info("humidity map computed",
		"id", m.ID,
		"grids", m.GridCount,
		"rows", agg.Band.Rows,
		"cols", agg.Band.Cols,
		"mean", m.Summary.Mean,
		"missing", m.Summary.Missing,
	)
	return m, nil
}

// Count returns the window for params and the number of grids it holds,
// without loading band data.
func (p *Pipeline) Count(ctx context.Context, params domain.Params) (domain.TimeWindow, int, error) {
	window, err := params.Window()
	if err != nil {
		return domain.TimeWindow{}, 0, fmt.Errorf("invalid parameters: %w", err)
	}

	qctx, cancel := context.WithTimeout(ctx, p.sourceTimeout)
	defer cancel()

	start := time.Now()
	n, err := p.source.Count(qctx, window, params.Region)
	p.metrics.SourceDuration.WithLabelValues("count").Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.SourceErrors.WithLabelValues("count").Inc()
		return window, 0, sourceFailure(qctx, "count grids", err)
	}
	return window, n, nil
}

func (p *Pipeline) query(ctx context.Context, window domain.TimeWindow, region domain.Region) (domain.RasterSeries, error) {
	qctx, cancel := context.WithTimeout(ctx, p.sourceTimeout)
	defer cancel()

	start := time.Now()
	series, err := p.source.Query(qctx, window, region)
	p.metrics.SourceDuration.WithLabelValues("query").Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.SourceErrors.WithLabelValues("query").Inc()
		return nil, sourceFailure(qctx, "query grids", err)
	}
	return series, nil
}

// sourceFailure makes sure a source call cut short by the timeout reports
// ErrSourceUnavailable even when the source returned a bare context error.
func sourceFailure(ctx context.Context, op string, err error) error {
	if errors.Is(err, domain.ErrSourceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ctx.Err() != nil {
		return domain.SourceError(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
