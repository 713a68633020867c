package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/era5-humidity-service/internal/adapter/kafka"
	"github.com/couchcryptid/era5-humidity-service/internal/adapter/memory"
	"github.com/couchcryptid/era5-humidity-service/internal/adapter/netcdf"
	"github.com/couchcryptid/era5-humidity-service/internal/adapter/postgres"
	"github.com/couchcryptid/era5-humidity-service/internal/adapter/remote"
	"github.com/couchcryptid/era5-humidity-service/internal/config"
	"github.com/couchcryptid/era5-humidity-service/internal/domain"
	"github.com/couchcryptid/era5-humidity-service/internal/observability"
	"github.com/couchcryptid/era5-humidity-service/internal/pipeline"
)

// app holds the wired pipeline and the resources to release afterwards.
type app struct {
	pipeline *pipeline.Pipeline
	closers  []func() error
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	a := &app{logger: logger}

	source, err := a.buildSource(ctx, cfg, logger, metrics)
	if err != nil {
		a.close()
		return nil, err
	}

	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		w := kafka.NewWriter(cfg, logger)
		a.closers = append(a.closers, w.Close)
		publisher = w
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	}

	a.pipeline = pipeline.New(source, publisher, logger, metrics, cfg.SourceTimeout)
	return a, nil
}

func (a *app) buildSource(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (domain.GridSource, error) {
	var source domain.GridSource
	switch cfg.SourceKind {
	case config.SourceNetCDF:
		source = netcdf.NewSource(cfg.NetCDFPath, netcdfVars(cfg), logger)
	case config.SourcePostgres:
		openCtx, cancel := context.WithTimeout(ctx, cfg.SourceTimeout)
		defer cancel()
		store, err := postgres.Open(openCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		source = store
	case config.SourceRemote:
		source = remote.NewClient(cfg.RemoteURL, cfg.SourceTimeout, logger)
	default:
		return nil, fmt.Errorf("%w: unknown SOURCE_KIND %q", domain.ErrInvalidConfiguration, cfg.SourceKind)
	}
	logger.Info("grid source configured", "kind", cfg.SourceKind)

	if cfg.SourcePreload {
		params, err := cfg.Params(domain.Now())
		if err != nil {
			return nil, err
		}
		window, err := params.Window()
		if err != nil {
			return nil, err
		}
		preloadCtx, cancel := context.WithTimeout(ctx, cfg.SourceTimeout)
		defer cancel()
		preloaded, err := memory.NewPreloadedSource(preloadCtx, source, window, params.Region, logger)
		if err != nil {
			return nil, err
		}
		source = preloaded
	}

	if cfg.SourceCacheSize > 0 {
		source = memory.NewCachedSource(source, cfg.SourceCacheSize, metrics)
	}
	return source, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("close error", "error", err)
		}
	}
}

func netcdfVars(cfg *config.Config) netcdf.Vars {
	return netcdf.Vars{
		Temperature: cfg.NetCDFTemperatureVar,
		Dewpoint:    cfg.NetCDFDewpointVar,
		Time:        cfg.NetCDFTimeVar,
	}
}
