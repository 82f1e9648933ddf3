package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unklstewy/ads-bfuel/internal/pipeline"
	"github.com/unklstewy/ads-bfuel/pkg/config"
)

// sampleTrace is a short A320 hop: taxi, climb, cruise, descent, landing.
func sampleTrace() map[string]any {
	var rows [][]any
	dtime, lat := 0.0, 50.0
	row := func(alt any, gs, vr float64) {
		rows = append(rows, []any{dtime, lat, 8.5, alt, gs, 0.0, 0, vr, nil, "adsb_icao", nil, nil, nil, nil})
		dtime += 60
	}
	for i := 0; i < 3; i++ {
		row("ground", 10, 0)
	}
	for i := 1; i <= 10; i++ {
		lat += 0.06
		row(float64(i)*3000, 280, 3000)
	}
	for i := 0; i < 15; i++ {
		lat += 0.12
		row(30000.0, 450, 0)
	}
	for i := 9; i >= 0; i-- {
		lat += 0.07
		row(float64(i)*3000+500, 300, -3000)
	}
	for i := 0; i < 3; i++ {
		row("ground", 10, 0)
	}
	return map[string]any{
		"icao":      "3c6444",
		"r":         "D-AIZZ",
		"t":         "A320",
		"timestamp": 1714543200.0,
		"trace":     rows,
	}
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/44/trace_full_3c6444.json"):
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sampleTrace())
		case strings.HasSuffix(r.URL.Path, "trace_full_abcdef.json"):
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

func newTestServer(t *testing.T, withDB bool) *httptest.Server {
	t.Helper()
	upstream := newUpstream(t)

	cfg := config.DefaultConfig()
	cfg.Source.BaseURL = upstream.URL
	cfg.Source.RequestsPerSecond = 1000
	cfg.Source.MaxRetries = 0
	cfg.Source.CacheTTLSeconds = 0
	if withDB {
		cfg.Database.Enabled = true
		cfg.Database.Driver = "sqlite"
		cfg.Database.Database = ":memory:"
	}

	rt, err := pipeline.Setup(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Failed to set up runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })

	server := httptest.NewServer(NewServer(cfg, rt, nil))
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, body string) (int, http.Header, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("Invalid JSON response %q: %v", data, err)
		}
	}
	return resp.StatusCode, resp.Header, out
}

// TestHealth tests the health endpoint with and without a database.
func TestHealth(t *testing.T) {
	t.Run("Database disabled", func(t *testing.T) {
		server := newTestServer(t, false)
		code, _, body := do(t, "GET", server.URL+"/health", "")
		if code != http.StatusOK || body["database"] != "disabled" {
			t.Errorf("Expected 200 with database disabled, got %d %v", code, body)
		}
	})

	t.Run("Database enabled", func(t *testing.T) {
		server := newTestServer(t, true)
		code, _, body := do(t, "GET", server.URL+"/health", "")
		if code != http.StatusOK || body["database"] != "ok" {
			t.Errorf("Expected 200 with database ok, got %d %v", code, body)
		}
	})
}

// TestAnalyseEndpoint tests analysing an aircraft and reading the stored result.
func TestAnalyseEndpoint(t *testing.T) {
	server := newTestServer(t, true)
	api := server.URL + "/api/v1"

	code, _, report := do(t, "POST", api+"/aircraft/3C6444/analyse", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %v", code, report)
	}
	runID, _ := report["run_id"].(string)
	if runID == "" || report["icao24"] != "3c6444" || report["type_code"] != "A320" {
		t.Errorf("Unexpected report: %v", report)
	}
	if report["input_samples"] != float64(41) {
		t.Errorf("Expected 41 input samples, got %v", report["input_samples"])
	}
	// Three trailing ground samples form a short leg that is dropped
	if report["samples"] != float64(38) {
		t.Errorf("Expected 38 samples, got %v", report["samples"])
	}

	code, _, stored := do(t, "GET", api+"/aircraft/3c6444/legs", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %v", code, stored)
	}
	run, _ := stored["run"].(map[string]any)
	if run["run_id"] != runID {
		t.Errorf("Expected run %s, got %v", runID, run["run_id"])
	}
	if _, ok := stored["legs"].([]any); !ok {
		t.Errorf("Expected legs array, got %v", stored["legs"])
	}

	code, _, byID := do(t, "GET", api+"/runs/"+runID, "")
	if code != http.StatusOK {
		t.Errorf("Expected 200 for run lookup, got %d %v", code, byID)
	}

	code, _, all := do(t, "GET", api+"/aircraft/3c6444/legs?all=true&limit=10", "")
	if code != http.StatusOK || all["icao24"] != "3c6444" {
		t.Errorf("Expected 200 listing legs, got %d %v", code, all)
	}

	code, _, stats := do(t, "GET", api+"/stats", "")
	if code != http.StatusOK || stats["runs"] != float64(1) {
		t.Errorf("Expected 1 stored run, got %d %v", code, stats)
	}

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	metrics, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(metrics), `adsbfuel_analyses_total{result="ok"} 1`) {
		t.Error("Expected analysis counter in metrics")
	}
}

// TestAnalyseErrors tests error status codes.
func TestAnalyseErrors(t *testing.T) {
	server := newTestServer(t, true)
	api := server.URL + "/api/v1"

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"Invalid address", "POST", "/aircraft/xyz/analyse", "", http.StatusBadRequest},
		{"Unknown aircraft", "POST", "/aircraft/a1b2c3/analyse", "", http.StatusNotFound},
		{"Rate limited", "POST", "/aircraft/abcdef/analyse", "", http.StatusServiceUnavailable},
		{"No stored run", "GET", "/aircraft/a1b2c3/legs", "", http.StatusNotFound},
		{"Unknown run", "GET", "/runs/missing", "", http.StatusNotFound},
		{"Malformed upload", "POST", "/analyse", "{not json", http.StatusBadRequest},
		{"Upload without metadata", "POST", "/analyse", `{"trace": []}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, header, body := do(t, tt.method, api+tt.path, tt.body)
			if code != tt.want {
				t.Errorf("Expected %d, got %d %v", tt.want, code, body)
			}
			if body["error"] == nil {
				t.Error("Expected error message")
			}
			if tt.want == http.StatusServiceUnavailable && header.Get("Retry-After") != "7" {
				t.Errorf("Expected Retry-After 7, got %q", header.Get("Retry-After"))
			}
		})
	}
}

// TestUpload tests analysing a posted trace file.
func TestUpload(t *testing.T) {
	server := newTestServer(t, false)

	data, _ := json.Marshal(sampleTrace())
	code, _, report := do(t, "POST", server.URL+"/api/v1/analyse", string(data))
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d %v", code, report)
	}
	if report["registration"] != "D-AIZZ" {
		t.Errorf("Expected D-AIZZ, got %v", report["registration"])
	}

	code, _, body := do(t, "GET", server.URL+"/api/v1/aircraft/3c6444/legs", "")
	if code != http.StatusNotImplemented {
		t.Errorf("Expected 501 without database, got %d %v", code, body)
	}

	code, _, types := do(t, "GET", server.URL+"/api/v1/types", "")
	if code != http.StatusOK || !strings.Contains(jsonString(t, types["types"]), "A320") {
		t.Errorf("Expected type list with A320, got %d %v", code, types)
	}
}

func jsonString(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
