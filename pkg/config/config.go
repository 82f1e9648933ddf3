package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/unklstewy/ads-bfuel/pkg/adsb"
	"github.com/unklstewy/ads-bfuel/pkg/emissions"
	"github.com/unklstewy/ads-bfuel/pkg/fuel"
	"github.com/unklstewy/ads-bfuel/pkg/legs"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ADS_BFUEL_"

// Config represents the complete application configuration.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Source       SourceConfig       `json:"source"`
	Segmentation SegmentationConfig `json:"segmentation"`
	Fuel         FuelConfig         `json:"fuel"`
	Emissions    EmissionsConfig    `json:"emissions"`
	Aircraft     AircraftConfig     `json:"aircraft"`
	Logging      logger.Config      `json:"logging"`
	Pipeline     PipelineConfig     `json:"pipeline"`
	Archive      ArchiveConfig      `json:"archive"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// AllowedOrigins for CORS (default: ["*"])
	AllowedOrigins []string `json:"allowed_origins"`

	// RequestTimeoutSeconds bounds a single analysis request (default: 120)
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Enabled turns on persistence of leg summaries
	Enabled bool `json:"enabled"`

	// Driver is the database driver (postgres, sqlite)
	Driver string `json:"driver"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name, or the file path for sqlite
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`

	// RetentionDays removes older runs when positive (web server only)
	RetentionDays int `json:"retention_days,omitempty"`
}

// SourceConfig selects the trace provider.
type SourceConfig struct {
	// Type is the provider layout: "adsb_exchange" or "bjets"
	Type string `json:"type"`

	// BaseURL is the directory holding trace_full_<icao>.json files
	BaseURL string `json:"base_url"`

	// TimeoutSeconds per HTTP request (default: 30)
	TimeoutSeconds int `json:"timeout_seconds"`

	// RequestsPerSecond limits the request rate (default: 1)
	RequestsPerSecond float64 `json:"requests_per_second"`

	// CacheTTLSeconds keeps fetched traces in memory; 0 disables the cache
	CacheTTLSeconds int `json:"cache_ttl_seconds"`

	// MaxRetries for failed requests (default: 3)
	MaxRetries int `json:"max_retries"`

	// UserAgent sent with each request
	UserAgent string `json:"user_agent,omitempty"`
}

// ClientConfig converts the section into trace client settings.
func (s SourceConfig) ClientConfig() adsb.ClientConfig {
	retry := adsb.DefaultRetryConfig()
	retry.MaxRetries = s.MaxRetries
	return adsb.ClientConfig{
		Source:            s.Type,
		BaseURL:           s.BaseURL,
		Timeout:           time.Duration(s.TimeoutSeconds) * time.Second,
		RequestsPerSecond: s.RequestsPerSecond,
		CacheTTL:          time.Duration(s.CacheTTLSeconds) * time.Second,
		Retry:             retry,
		UserAgent:         s.UserAgent,
	}
}

// SegmentationConfig controls leg identification.
type SegmentationConfig struct {
	// Strategy is "flags" (alias "adsb_exchange") or "custom"
	Strategy string `json:"strategy"`

	// MinDurationMinutes drops shorter legs (custom strategy, default: 5)
	MinDurationMinutes float64 `json:"min_duration_minutes"`

	// MinDistanceKm drops legs covering less ground (custom strategy, default: 3)
	MinDistanceKm float64 `json:"min_distance_km"`
}

// FilterOptions converts the section into short-leg filter settings.
func (s SegmentationConfig) FilterOptions() legs.FilterOptions {
	return legs.FilterOptions{
		MinDuration:   time.Duration(s.MinDurationMinutes * float64(time.Minute)),
		MinDistanceKm: s.MinDistanceKm,
	}
}

// FuelConfig controls fuel integration.
type FuelConfig struct {
	// Mode is "vectorised" or "sequential" (default: vectorised)
	Mode string `json:"mode"`

	// InitialMass in kg, or a fraction of MTOW when <= 1 (default: 0.85)
	InitialMass float64 `json:"initial_mass"`

	// RetryWithMTOW repeats an infeasible integration once at MTOW (default: true)
	RetryWithMTOW bool `json:"retry_with_mtow"`
}

// Options converts the section into integrator options. Mode must be valid.
func (f FuelConfig) Options() (fuel.Options, error) {
	mode, err := fuel.ParseMode(f.Mode)
	if err != nil {
		return fuel.Options{}, err
	}
	return fuel.Options{Mode: mode, RetryWithMTOW: f.RetryWithMTOW}, nil
}

// EmissionsConfig controls emission calculation.
type EmissionsConfig struct {
	// Enabled adds CO2, H2O and NOx flows to each leg (default: true)
	Enabled bool `json:"enabled"`

	// NOxMethod is "dlr" or "boeing" (default: boeing)
	NOxMethod string `json:"nox_method"`
}

// AircraftConfig points at performance data.
type AircraftConfig struct {
	// AircraftFile and EnginesFile replace the embedded database when both are set
	AircraftFile string `json:"aircraft_file,omitempty"`
	EnginesFile  string `json:"engines_file,omitempty"`

	// DefaultType is used when a trace carries no type designator
	DefaultType string `json:"default_type,omitempty"`

	// EngineOverrides maps a type designator to an engine id
	EngineOverrides map[string]string `json:"engine_overrides,omitempty"`
}

// PipelineConfig controls analysis concurrency.
type PipelineConfig struct {
	// Workers is the number of legs integrated concurrently (default: 4)
	Workers int `json:"workers"`

	// ModelCacheSize is the number of fuel-flow models kept (default: 32)
	ModelCacheSize int `json:"model_cache_size"`

	// ModelCacheTTLMinutes expires cached models (default: 60)
	ModelCacheTTLMinutes int `json:"model_cache_ttl_minutes"`
}

// ArchiveConfig controls the on-disk archive of analysed flights.
type ArchiveConfig struct {
	// Enabled writes every analysed series to Dir
	Enabled bool `json:"enabled"`

	// Dir is the archive directory
	Dir string `json:"dir"`

	// Level is the zstd level: fastest, default, better, best
	Level string `json:"level"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                  "8080",
			Host:                  "0.0.0.0",
			AllowedOrigins:        []string{"*"},
			RequestTimeoutSeconds: 120,
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Database:     "adsbfuel",
			Username:     "adsbfuel",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Source: SourceConfig{
			Type:              adsb.SourceADSBExchange,
			BaseURL:           "https://globe.adsbexchange.com/data/traces/",
			TimeoutSeconds:    30,
			RequestsPerSecond: 1.0,
			CacheTTLSeconds:   300,
			MaxRetries:        3,
		},
		Segmentation: SegmentationConfig{
			Strategy:           "custom",
			MinDurationMinutes: 5,
			MinDistanceKm:      3.0,
		},
		Fuel: FuelConfig{
			Mode:          "vectorised",
			InitialMass:   0.85,
			RetryWithMTOW: true,
		},
		Emissions: EmissionsConfig{
			Enabled:   true,
			NOxMethod: "boeing",
		},
		Logging: logger.DefaultConfig(),
		Pipeline: PipelineConfig{
			Workers:              4,
			ModelCacheSize:       32,
			ModelCacheTTLMinutes: 60,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Dir:     "archive",
			Level:   "default",
		},
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var err error

	if c.Server.Port == "" {
		err = multierr.Append(err, errors.New("server.port is required"))
	}
	if c.Database.RetentionDays < 0 {
		err = multierr.Append(err, errors.New("database.retention_days must not be negative"))
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "sqlite":
		default:
			err = multierr.Append(err, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
		}
	}
	if e := adsb.ValidateSource(c.Source.Type); e != nil {
		err = multierr.Append(err, fmt.Errorf("source.type: %w", e))
	}
	if c.Source.BaseURL == "" {
		err = multierr.Append(err, errors.New("source.base_url is required"))
	}
	if _, e := legs.ParseStrategy(c.Segmentation.Strategy); e != nil {
		err = multierr.Append(err, fmt.Errorf("segmentation.strategy: %w", e))
	}
	if c.Segmentation.MinDurationMinutes < 0 || c.Segmentation.MinDistanceKm < 0 {
		err = multierr.Append(err, errors.New("segmentation thresholds must not be negative"))
	}
	if _, e := fuel.ParseMode(c.Fuel.Mode); e != nil {
		err = multierr.Append(err, fmt.Errorf("fuel.mode: %w", e))
	}
	if c.Fuel.InitialMass <= 0 {
		err = multierr.Append(err, errors.New("fuel.initial_mass must be positive"))
	}
	if _, e := emissions.ParseMethod(c.Emissions.NOxMethod); e != nil {
		err = multierr.Append(err, fmt.Errorf("emissions.nox_method: %w", e))
	}
	if (c.Aircraft.AircraftFile == "") != (c.Aircraft.EnginesFile == "") {
		err = multierr.Append(err, errors.New("aircraft.aircraft_file and aircraft.engines_file must be set together"))
	}
	if _, e := logger.ParseLevel(c.Logging.Level); e != nil {
		err = multierr.Append(err, fmt.Errorf("logging.level: %w", e))
	}
	if c.Pipeline.Workers < 1 {
		err = multierr.Append(err, errors.New("pipeline.workers must be at least 1"))
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		err = multierr.Append(err, errors.New("archive.dir is required when the archive is enabled"))
	}

	return err
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv(EnvPrefix + "PORT"); port != "" {
		c.Server.Port = port
	}
	if dbPassword := os.Getenv(EnvPrefix + "DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if dbHost := os.Getenv(EnvPrefix + "DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if sourceURL := os.Getenv(EnvPrefix + "SOURCE_URL"); sourceURL != "" {
		c.Source.BaseURL = sourceURL
	}
	if sourceType := os.Getenv(EnvPrefix + "SOURCE_TYPE"); sourceType != "" {
		c.Source.Type = sourceType
	}
	if level := os.Getenv(EnvPrefix + "LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if workers := os.Getenv(EnvPrefix + "WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			c.Pipeline.Workers = n
		}
	}
	if dir := os.Getenv(EnvPrefix + "ARCHIVE_DIR"); dir != "" {
		c.Archive.Dir = dir
		c.Archive.Enabled = true
	}
}
