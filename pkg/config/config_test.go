package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/unklstewy/ads-bfuel/pkg/fuel"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Expected address 0.0.0.0:8080, got %s", cfg.Server.Addr())
	}
	if cfg.Database.Enabled {
		t.Error("Expected database disabled by default")
	}
	if cfg.Source.Type != "adsb_exchange" {
		t.Errorf("Expected adsb_exchange source, got %s", cfg.Source.Type)
	}
	if cfg.Segmentation.Strategy != "custom" {
		t.Errorf("Expected custom strategy, got %s", cfg.Segmentation.Strategy)
	}
	if cfg.Fuel.InitialMass != 0.85 || !cfg.Fuel.RetryWithMTOW {
		t.Errorf("Unexpected fuel defaults: %+v", cfg.Fuel)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
}

// TestLoadNonExistentFile tests that Load returns default config when file doesn't exist.
func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port, got %s", cfg.Server.Port)
	}
}

// TestLoadPartialConfig tests that values absent from the file keep defaults.
func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"source": {"type": "bjets", "base_url": "https://bjets.example/traces/"},
		"fuel": {"mode": "sequential", "initial_mass": 62000, "retry_with_mtow": false},
		"pipeline": {"workers": 2}
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Source.Type != "bjets" || cfg.Source.TimeoutSeconds != 30 {
		t.Errorf("Unexpected source section: %+v", cfg.Source)
	}
	if cfg.Fuel.RetryWithMTOW {
		t.Error("Expected retry disabled from file")
	}
	if cfg.Segmentation.MinDistanceKm != 3.0 {
		t.Errorf("Expected default min distance, got %f", cfg.Segmentation.MinDistanceKm)
	}

	opts, err := cfg.Fuel.Options()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if opts.Mode != fuel.ModeSequential || opts.RetryWithMTOW {
		t.Errorf("Unexpected options: %+v", opts)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", cfg.Pipeline.Workers)
	}
}

// TestLoadInvalidJSON tests parse errors.
func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{ invalid json }"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

// TestSaveConfig tests saving and reloading configuration.
func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")

	cfg := DefaultConfig()
	cfg.Emissions.NOxMethod = "dlr"
	cfg.Aircraft.EngineOverrides = map[string]string{"A320": "CFM56-5B4"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Emissions.NOxMethod != "dlr" {
		t.Errorf("Expected dlr, got %s", loaded.Emissions.NOxMethod)
	}
	if loaded.Aircraft.EngineOverrides["A320"] != "CFM56-5B4" {
		t.Errorf("Expected engine override, got %v", loaded.Aircraft.EngineOverrides)
	}

	var raw map[string]any
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Saved file is not JSON: %v", err)
	}
	for _, section := range []string{"server", "database", "source", "segmentation", "fuel", "emissions", "aircraft", "logging", "pipeline", "archive"} {
		if _, ok := raw[section]; !ok {
			t.Errorf("Expected section %s in saved file", section)
		}
	}
}

// TestEnvironmentOverrides tests environment variable overrides.
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ADS_BFUEL_PORT", "7777")
	t.Setenv("ADS_BFUEL_DB_HOST", "env-db-host")
	t.Setenv("ADS_BFUEL_DB_PASSWORD", "env-password")
	t.Setenv("ADS_BFUEL_SOURCE_URL", "http://env-traces/")
	t.Setenv("ADS_BFUEL_LOG_LEVEL", "debug")
	t.Setenv("ADS_BFUEL_WORKERS", "8")
	t.Setenv("ADS_BFUEL_ARCHIVE_DIR", "/var/lib/ads-bfuel")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != "7777" {
		t.Errorf("Expected port 7777 from env, got %s", cfg.Server.Port)
	}
	if cfg.Database.Host != "env-db-host" || cfg.Database.Password != "env-password" {
		t.Errorf("Unexpected database section: %+v", cfg.Database)
	}
	if cfg.Source.BaseURL != "http://env-traces/" {
		t.Errorf("Expected source URL from env, got %s", cfg.Source.BaseURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", cfg.Pipeline.Workers)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Dir != "/var/lib/ads-bfuel" {
		t.Errorf("Expected archive enabled from env, got %+v", cfg.Archive)
	}
}

// TestValidate tests that every invalid section is reported.
func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.Type = "opensky"
	cfg.Segmentation.Strategy = "bogus"
	cfg.Fuel.Mode = "euler"
	cfg.Emissions.NOxMethod = "ffm"
	cfg.Pipeline.Workers = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"source.type", "segmentation.strategy", "fuel.mode", "emissions.nox_method", "pipeline.workers"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in error, got: %v", want, err)
		}
	}
}

// TestConversions tests the section helpers.
func TestConversions(t *testing.T) {
	cfg := DefaultConfig()

	cc := cfg.Source.ClientConfig()
	if cc.Timeout != 30*time.Second || cc.CacheTTL != 5*time.Minute || cc.Retry.MaxRetries != 3 {
		t.Errorf("Unexpected client config: %+v", cc)
	}

	fo := cfg.Segmentation.FilterOptions()
	if fo.MinDuration != 5*time.Minute || fo.MinDistanceKm != 3.0 {
		t.Errorf("Unexpected filter options: %+v", fo)
	}
}
