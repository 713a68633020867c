package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

// Source kinds accepted by SOURCE_KIND.
const (
	SourceNetCDF   = "netcdf"
	SourcePostgres = "postgres"
	SourceRemote   = "remote"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	// Grid source configuration.
	SourceKind           string        `env:"SOURCE_KIND" validate:"oneof=netcdf postgres remote"`
	NetCDFPath           string        `env:"NETCDF_PATH" validate:"required_if=SourceKind netcdf"`
	NetCDFTemperatureVar string        `env:"NETCDF_TEMPERATURE_VAR" validate:"required"`
	NetCDFDewpointVar    string        `env:"NETCDF_DEWPOINT_VAR" validate:"required"`
	NetCDFTimeVar        string        `env:"NETCDF_TIME_VAR" validate:"required"`
	PostgresDSN          string        `env:"POSTGRES_DSN" validate:"required_if=SourceKind postgres"`
	RemoteURL            string        `env:"REMOTE_URL" validate:"required_if=SourceKind remote"`
	SourceTimeout        time.Duration `env:"SOURCE_TIMEOUT" validate:"gt=0"`
	SourceCacheSize      int           `env:"SOURCE_CACHE_SIZE" validate:"gte=0"`
	SourcePreload        bool          `env:"SOURCE_PRELOAD"`

	// Run parameters. A zero EndDate means "today" at the time of each run.
	EndDate      time.Time     `env:"END_DATE"`
	LookbackDays int           `env:"LOOKBACK_DAYS" validate:"gt=0"`
	Region       domain.Region `env:"REGION"`
	RampMin      float64       `yaml:"min"`
	RampMax      float64       `yaml:"max" validate:"gtfield=RampMin"`
	Palette      []string      `env:"PALETTE" validate:"len=5,dive,required"`
	BucketLabels []string      `env:"BUCKET_LABELS" validate:"len=5,dive,required"`

	// Result publishing.
	KafkaEnabled   bool     `env:"KAFKA_ENABLED"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS"`
	KafkaSinkTopic string   `env:"KAFKA_SINK_TOPIC" validate:"required_if=KafkaEnabled true"`
	// A full-resolution map is several MB of JSON. KafkaBatchBytes bounds one
	// uncompressed message; the broker's message.max.bytes (1 MB by default)
	// bounds the compressed batch.
	KafkaBatchBytes  int64  `env:"KAFKA_BATCH_BYTES" validate:"gt=0"`
	KafkaCompression string `env:"KAFKA_COMPRESSION" validate:"oneof=none gzip snappy lz4 zstd"`

	// ScheduleInterval enables periodic recomputation in serve mode; 0 disables it.
	ScheduleInterval time.Duration `env:"SCHEDULE_INTERVAL" validate:"gte=0"`
}

// paletteFile is the YAML layout accepted by PALETTE_FILE.
type paletteFile struct {
	Min    *float64 `yaml:"min"`
	Max    *float64 `yaml:"max"`
	Colors []string `yaml:"colors"`
	Labels []string `yaml:"labels"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		// Ramp bounds only come from the palette file.
		if key := f.Tag.Get("yaml"); key != "" {
			return "PALETTE_FILE " + key
		}
		return f.Name
	})
	return v
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	sourceTimeout, err := parseDuration("SOURCE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	scheduleInterval, err := parseDuration("SCHEDULE_INTERVAL", "0s")
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("SOURCE_CACHE_SIZE", 16)
	if err != nil {
		return nil, err
	}
	batchBytes, err := parseInt("KAFKA_BATCH_BYTES", 16<<20)
	if err != nil {
		return nil, err
	}
	lookback, err := parseInt("LOOKBACK_DAYS", domain.DefaultLookbackDays)
	if err != nil {
		return nil, err
	}

	endDate, err := parseEndDate(os.Getenv("END_DATE"))
	if err != nil {
		return nil, err
	}

	region, err := domain.ParseRegion(sharedcfg.EnvOrDefault("REGION", "-100,24,-66,50"))
	if err != nil {
		return nil, fmt.Errorf("invalid REGION: %w", err)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SourceKind:           sharedcfg.EnvOrDefault("SOURCE_KIND", SourceNetCDF),
		NetCDFPath:           os.Getenv("NETCDF_PATH"),
		NetCDFTemperatureVar: sharedcfg.EnvOrDefault("NETCDF_TEMPERATURE_VAR", "t2m"),
		NetCDFDewpointVar:    sharedcfg.EnvOrDefault("NETCDF_DEWPOINT_VAR", "d2m"),
		NetCDFTimeVar:        sharedcfg.EnvOrDefault("NETCDF_TIME_VAR", "time"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RemoteURL:            os.Getenv("REMOTE_URL"),
		SourceTimeout:        sourceTimeout,
		SourceCacheSize:      cacheSize,
		SourcePreload:        os.Getenv("SOURCE_PRELOAD") == "true",

		EndDate:      endDate,
		LookbackDays: lookback,
		Region:       region,
		RampMin:      0,
		RampMax:      100,
		Palette:      splitList(sharedcfg.EnvOrDefault("PALETTE", strings.Join(domain.DefaultPalette, ","))),
		BucketLabels: splitList(sharedcfg.EnvOrDefault("BUCKET_LABELS", strings.Join(domain.DefaultBucketLabels, ","))),

		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "humidity-results"),
		KafkaBatchBytes:  int64(batchBytes),
		KafkaCompression: sharedcfg.EnvOrDefault("KAFKA_COMPRESSION", "zstd"),

		ScheduleInterval: scheduleInterval,
	}

	if path := os.Getenv("PALETTE_FILE"); path != "" {
		if err := cfg.loadPaletteFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, strings.Join(msgs, "; "))
		}
		return err
	}
	if c.SourceKind == SourceRemote {
		if u, err := url.Parse(c.RemoteURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: REMOTE_URL %q is not an absolute URL", domain.ErrInvalidConfiguration, c.RemoteURL)
		}
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("%w: KAFKA_ENABLED is true but KAFKA_BROKERS is empty", domain.ErrInvalidConfiguration)
	}
	if _, err := c.ColorRamp(); err != nil {
		return fmt.Errorf("invalid PALETTE: %w", err)
	}
	return nil
}

// ColorRamp builds the configured ramp.
func (c *Config) ColorRamp() (domain.ColorRamp, error) {
	return domain.NewColorRamp(c.RampMin, c.RampMax, c.Palette, c.BucketLabels)
}

// Params returns the run parameters for the given moment. When END_DATE is
// unset the window ends at midnight UTC of now.
func (c *Config) Params(now time.Time) (domain.Params, error) {
	ramp, err := c.ColorRamp()
	if err != nil {
		return domain.Params{}, err
	}
	end := c.EndDate
	if end.IsZero() {
		end = now.UTC().Truncate(24 * time.Hour)
	}
	return domain.Params{
		EndDate:      end,
		LookbackDays: c.LookbackDays,
		Region:       c.Region,
		Ramp:         ramp,
	}, nil
}

func (c *Config) loadPaletteFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read PALETTE_FILE: %w", err)
	}
	var pf paletteFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("%w: parse PALETTE_FILE: %v", domain.ErrInvalidConfiguration, err)
	}
	// Keys left out of the file keep their defaults.
	if pf.Min != nil {
		c.RampMin = *pf.Min
	}
	if pf.Max != nil {
		c.RampMax = *pf.Max
	}
	if len(pf.Colors) > 0 {
		c.Palette = pf.Colors
	}
	if len(pf.Labels) > 0 {
		c.BucketLabels = pf.Labels
	}
	return nil
}

func parseEndDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: END_DATE %q must be YYYY-MM-DD", domain.ErrInvalidConfiguration, s)
	}
	return t, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrInvalidConfiguration, key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrInvalidConfiguration, key)
	}
	return n, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
