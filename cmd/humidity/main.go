package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/era5-humidity-service/internal/config"
	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

var (
	endDate      string
	lookbackDays int
	region       string
)

var rootCmd = &cobra.Command{
	Use:   "humidity",
	Short: "Mean relative humidity maps from ERA5 reanalysis",
	Long: `Derives relative humidity from ERA5 2 m temperature and dewpoint grids,
averages it over a trailing window for a region, and classifies the result
into a five-color ramp with a legend.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endDate, "end", "", "window end date YYYY-MM-DD, exclusive (default END_DATE or today)")
	rootCmd.PersistentFlags().IntVar(&lookbackDays, "lookback", 0, "window length in days (default LOOKBACK_DAYS)")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "west,south,east,north in degrees (default REGION)")

	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full humidity map as JSON")
	ingestCmd.Flags().StringVar(&ingestPath, "netcdf", "", "ERA5 NetCDF file to copy into PostgreSQL (default NETCDF_PATH)")

	rootCmd.AddCommand(runCmd, countCmd, legendCmd, serveCmd, ingestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("end") {
		end, err := time.Parse(time.DateOnly, endDate)
		if err != nil {
			return fmt.Errorf("%w: --end %q must be YYYY-MM-DD", domain.ErrInvalidConfiguration, endDate)
		}
		cfg.EndDate = end
	}
	if flags.Changed("lookback") {
		cfg.LookbackDays = lookbackDays
	}
	if flags.Changed("region") {
		r, err := domain.ParseRegion(region)
		if err != nil {
			return fmt.Errorf("--region: %w", err)
		}
		cfg.Region = r
	}
	return cfg.Validate()
}

// paramsFunc evaluates the run parameters at call time so a rolling end
// date tracks the clock.
func paramsFunc(cfg *config.Config) func() (domain.Params, error) {
	return func() (domain.Params, error) {
		return cfg.Params(domain.Now())
	}
}
