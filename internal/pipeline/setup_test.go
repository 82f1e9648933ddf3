package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/unklstewy/ads-bfuel/pkg/config"
)

// TestSetup tests building a runtime from configuration.
func TestSetup(t *testing.T) {
	t.Run("Minimal", func(t *testing.T) {
		rt, err := Setup(context.Background(), config.DefaultConfig(), nil, nil)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer rt.Close()

		if rt.Analyser == nil || rt.Client == nil || rt.Metrics == nil {
			t.Fatal("Expected analyser, client and metrics")
		}
		if rt.DB != nil || rt.Archive != nil {
			t.Error("Expected database and archive to be disabled")
		}
	})

	t.Run("With database and archive", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Database.Enabled = true
		cfg.Database.Driver = "sqlite"
		cfg.Database.Database = ":memory:"
		cfg.Archive.Enabled = true
		cfg.Archive.Dir = filepath.Join(t.TempDir(), "archive")

		rt, err := Setup(context.Background(), cfg, nil, nil)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer rt.Close()

		report, err := rt.Analyser.Analyse(context.Background(), twoFlights())
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if _, err := rt.Legs.GetRun(context.Background(), report.RunID); err != nil {
			t.Errorf("Expected run to be stored, got: %v", err)
		}
		if report.ArchivePath == "" {
			t.Error("Expected run to be archived")
		}
	})

	t.Run("Invalid configuration", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Fuel.Mode = "euler"
		if _, err := Setup(context.Background(), cfg, nil, nil); err == nil {
			t.Error("Expected error for invalid configuration")
		}
	})
}
