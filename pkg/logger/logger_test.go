package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestParseLevel tests level names.
func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", ""} {
		if _, err := ParseLevel(name); err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

// TestJSONOutput tests structured output and field helpers.
func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(Config{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	log.Named("pipeline").WithAircraft("3c6444").Info("leg integrated", Int("leg", 2))
	log.Debug("hidden")
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if entry["logger"] != "pipeline" || entry["icao24"] != "3c6444" || entry["leg"] != float64(2) {
		t.Errorf("Unexpected entry: %v", entry)
	}
}

// TestFileOutput tests the rotated file sink.
func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ads-bfuel.log")

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.File = path
	log, err := newLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	log.Warn("rate limited")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"rate limited"`) {
		t.Errorf("Expected JSON entry in file, got %q", string(data))
	}
	if !strings.Contains(buf.String(), "rate limited") {
		t.Errorf("Expected console entry, got %q", buf.String())
	}
}

// TestUnsupportedFormat tests configuration errors.
func TestUnsupportedFormat(t *testing.T) {
	if _, err := New(Config{Level: "info", Format: "xml"}); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
