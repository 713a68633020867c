package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/era5-humidity-service/internal/adapter/http"
	"github.com/couchcryptid/era5-humidity-service/internal/adapter/netcdf"
	"github.com/couchcryptid/era5-humidity-service/internal/adapter/postgres"
	"github.com/couchcryptid/era5-humidity-service/internal/config"
	"github.com/couchcryptid/era5-humidity-service/internal/domain"
	"github.com/couchcryptid/era5-humidity-service/internal/observability"
	"github.com/couchcryptid/era5-humidity-service/internal/scheduler"
)

var (
	jsonOutput bool
	ingestPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute the humidity map once and print it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := observability.NewLogger(cfg)
		app, err := newApp(cmd.Context(), cfg, logger, observability.NewMetrics())
		if err != nil {
			return err
		}
		defer app.close()

		params, err := cfg.Params(domain.Now())
		if err != nil {
			return err
		}
		m, err := app.pipeline.Execute(cmd.Context(), params)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		}
		printReport(out, m)
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the grids inside the window without loading them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := observability.NewLogger(cfg)
		app, err := newApp(cmd.Context(), cfg, logger, observability.NewMetrics())
		if err != nil {
			return err
		}
		defer app.close()

		params, err := cfg.Params(domain.Now())
		if err != nil {
			return err
		}
		window, n, err := app.pipeline.Count(cmd.Context(), params)
		if err != nil {
			return err
		}
		printCount(cmd.OutOrStdout(), window, params.Region, n)
		return nil
	},
}

var legendCmd = &cobra.Command{
	Use:   "legend",
	Short: "Print the configured color ramp legend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ramp, err := cfg.ColorRamp()
		if err != nil {
			return err
		}
		printLegend(cmd.OutOrStdout(), domain.NewLegend(ramp))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve humidity maps over HTTP, recomputing on SCHEDULE_INTERVAL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Copy the window's grids from a NetCDF file into PostgreSQL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return ingest(cmd, cfg)
	},
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer app.close()

	srv := httpadapter.NewServer(cfg.HTTPAddr, app.pipeline, paramsFunc(cfg), logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start periodic recomputation.
	var sched *scheduler.Scheduler
	if cfg.ScheduleInterval > 0 {
		sched = scheduler.New(app.pipeline, paramsFunc(cfg), cfg.ScheduleInterval, logger, metrics)
		if err := sched.Start(ctx); err != nil {
			return err
		}
	} else {
		logger.Info("scheduler disabled, maps are computed on POST /humidity/run")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ingest(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("%w: ingest requires POSTGRES_DSN", domain.ErrInvalidConfiguration)
	}
	path := ingestPath
	if path == "" {
		path = cfg.NetCDFPath
	}
	if path == "" {
		return fmt.Errorf("%w: ingest requires --netcdf or NETCDF_PATH", domain.ErrInvalidConfiguration)
	}

	ctx := cmd.Context()
	logger := observability.NewLogger(cfg)

	params, err := cfg.Params(domain.Now())
	if err != nil {
		return err
	}
	window, err := params.Window()
	if err != nil {
		return err
	}

	src := netcdf.NewSource(path, netcdfVars(cfg), logger)
	series, err := src.Query(ctx, window, params.Region)
	if err != nil {
		return err
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}
	if err := store.Insert(ctx, series...); err != nil {
		return err
	}

	logger.Info("grids ingested", "path", path, "window", window.String(), "grids", len(series))
	printCount(cmd.OutOrStdout(), window, params.Region, len(series))
	return nil
}
