package adsb

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

const sampleTrace = `{
	"icao": "3c6444",
	"r": "D-AIBA",
	"t": "a319",
	"timestamp": 1700000000,
	"trace": [
		[0, 51.0, 359.5, "ground", 5.0, 90.0, 2, 0, null, "adsb_icao", null, null, null, null],
		[60, 51.02, 0.1, 3000, 180.0, 91.0, 0, 1800, null, "adsb_icao", 3100, 1800, 170, 0],
		[30, 51.01, -0.2, 1200, 150.0, 90.5, 0, 1500, {"flight": "DLH4AB"}, "adsb_icao", 1300, 1500, 140, 0],
		[90, 51.03, 0.2, null, 200.0, 91.0, 0, 1600, null, "adsb_icao", null, null, null, null]
	]
}`

func testClient(t *testing.T, source, baseURL string) *Client {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.Source = source
	cfg.BaseURL = baseURL
	cfg.RequestsPerSecond = 1000
	cfg.Retry = fastRetry(2)
	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return c
}

// TestNewClient tests client construction.
func TestNewClient(t *testing.T) {
	t.Run("Unknown source", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.Source = "opensky"
		_, err := NewClient(cfg, nil)
		var use *UnsupportedSourceError
		if !errors.As(err, &use) {
			t.Fatalf("Expected UnsupportedSourceError, got: %v", err)
		}
		if use.Source != "opensky" {
			t.Errorf("Expected source opensky, got %s", use.Source)
		}
	})

	t.Run("Missing base URL", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.BaseURL = ""
		if _, err := NewClient(cfg, nil); err == nil {
			t.Error("Expected error for empty base URL")
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		c := testClient(t, SourceBJets, "http://example.test")
		if c.httpClient.Timeout != DefaultTimeout {
			t.Errorf("Expected timeout %v, got %v", DefaultTimeout, c.httpClient.Timeout)
		}
		if c.cache == nil {
			t.Error("Expected trace cache to be enabled")
		}
	})
}

// TestTraceURL tests per-source URL layouts.
func TestTraceURL(t *testing.T) {
	tests := []struct {
		source string
		base   string
		want   string
	}{
		{SourceADSBExchange, "https://globe.example/data/traces/", "https://globe.example/data/traces/44/trace_full_3c6444.json"},
		{SourceADSBExchange, "https://globe.example/data/traces", "https://globe.example/data/traces/44/trace_full_3c6444.json"},
		{SourceBJets, "https://bjets.example/traces/", "https://bjets.example/traces/trace_full_3c6444.json"},
	}
	for _, tt := range tests {
		c := testClient(t, tt.source, tt.base)
		if got := c.TraceURL("3c6444"); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.source, tt.want, got)
		}
	}
}

// TestNormaliseICAO tests address validation.
func TestNormaliseICAO(t *testing.T) {
	valid := map[string]string{"3C6444": "3c6444", " a1b2c3 ": "a1b2c3", "~abcdef": "abcdef"}
	for in, want := range valid {
		got, err := NormaliseICAO(in)
		if err != nil || got != want {
			t.Errorf("NormaliseICAO(%q): expected %s, got %s (%v)", in, want, got, err)
		}
	}
	for _, in := range []string{"", "3c644", "3c64444", "zzzzzz"} {
		if _, err := NormaliseICAO(in); err == nil {
			t.Errorf("NormaliseICAO(%q): expected error", in)
		}
	}
}

// TestFetchTrace tests fetching over HTTP.
func TestFetchTrace(t *testing.T) {
	t.Run("Successful request is cached", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			if r.URL.Path != "/44/trace_full_3c6444.json" {
				t.Errorf("Expected path /44/trace_full_3c6444.json, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(sampleTrace))
		}))
		defer server.Close()

		c := testClient(t, SourceADSBExchange, server.URL)
		raw, err := c.FetchTrace(context.Background(), "3C6444")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(raw.Rows) != 4 {
			t.Errorf("Expected 4 rows, got %d", len(raw.Rows))
		}
		if raw.Metadata["r"] != "D-AIBA" {
			t.Errorf("Expected registration D-AIBA, got %v", raw.Metadata["r"])
		}
		if _, ok := raw.Metadata["trace"]; ok {
			t.Error("Expected trace to be split from metadata")
		}

		if _, err := c.FetchTrace(context.Background(), "3c6444"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if n := requests.Load(); n != 1 {
			t.Errorf("Expected 1 request with cache, got %d", n)
		}

		c.Invalidate("3C6444")
		if _, err := c.FetchTrace(context.Background(), "3c6444"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if n := requests.Load(); n != 2 {
			t.Errorf("Expected 2 requests after invalidation, got %d", n)
		}
	})

	t.Run("Not found is not retried", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			http.NotFound(w, r)
		}))
		defer server.Close()

		c := testClient(t, SourceBJets, server.URL)
		_, err := c.FetchTrace(context.Background(), "abcdef")
		if !errors.Is(err, ErrTraceNotFound) {
			t.Errorf("Expected ErrTraceNotFound, got: %v", err)
		}
		if n := requests.Load(); n != 1 {
			t.Errorf("Expected 1 request, got %d", n)
		}
	})

	t.Run("Rate limit then success", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				w.Header().Set("X-Rate-Limit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(sampleTrace))
		}))
		defer server.Close()

		c := testClient(t, SourceBJets, server.URL)
		if _, err := c.FetchTrace(context.Background(), "3c6444"); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if n := requests.Load(); n != 2 {
			t.Errorf("Expected 2 requests, got %d", n)
		}
	})

	t.Run("Persistent rate limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := testClient(t, SourceBJets, server.URL)
		_, err := c.FetchTrace(context.Background(), "3c6444")
		if _, ok := IsRateLimitError(err); !ok {
			t.Errorf("Expected rate limit error, got: %v", err)
		}
	})

	t.Run("Invalid address makes no request", func(t *testing.T) {
		c := testClient(t, SourceBJets, "http://127.0.0.1:1")
		if _, err := c.FetchTrace(context.Background(), "not-hex"); err == nil {
			t.Error("Expected error for invalid address")
		}
	})
}

// TestParseRawTrace tests decoding a trace file without a trace array.
func TestParseRawTrace(t *testing.T) {
	raw, err := ParseRawTrace([]byte(`{"icao":"3c6444","timestamp":1}`))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if raw.Rows != nil {
		t.Errorf("Expected nil rows, got %v", raw.Rows)
	}
	if _, err := Normalise(raw, SourceADSBExchange); err == nil {
		t.Error("Expected error for missing trace array")
	}
	if _, err := ParseRawTrace([]byte(`[1,2]`)); err == nil {
		t.Error("Expected error for non-object file")
	}
}

// TestNormalise tests conversion into a Series.
func TestNormalise(t *testing.T) {
	raw, err := ParseRawTrace([]byte(sampleTrace))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	s, err := Normalise(raw, SourceADSBExchange)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if s.ICAO24 != "3c6444" || s.Registration != "D-AIBA" || s.TypeCode != "A319" {
		t.Errorf("Unexpected metadata: %s %s %s", s.ICAO24, s.Registration, s.TypeCode)
	}
	if !s.Has(trace.ColKinematics | trace.ColFlags) {
		t.Errorf("Expected kinematic columns and flags, got %s", s.Cols)
	}
	if s.Len() != 3 {
		t.Fatalf("Expected 3 samples after dropping null altitude, got %d", s.Len())
	}
	if !s.Sorted() {
		t.Error("Expected samples sorted by timestamp")
	}

	base := time.Unix(1700000000, 0).UTC()
	for i, offset := range []time.Duration{0, 30 * time.Second, 60 * time.Second} {
		if got := s.Samples[i].Timestamp; !got.Equal(base.Add(offset)) {
			t.Errorf("Sample %d: expected %v, got %v", i, base.Add(offset), got)
		}
	}

	first := s.Samples[0]
	if first.Altitude != 0 {
		t.Errorf("Expected ground altitude 0, got %f", first.Altitude)
	}
	if math.Abs(first.Longitude-(-0.5)) > 1e-9 {
		t.Errorf("Expected longitude -0.5, got %f", first.Longitude)
	}
	if first.Flags != 2 {
		t.Errorf("Expected flags 2, got %d", first.Flags)
	}
	if s.Samples[1].VerticalRate != 1500 || s.Samples[1].GroundSpeed != 150 {
		t.Errorf("Unexpected second sample: %+v", s.Samples[1])
	}
}

// TestNormaliseErrors tests input validation.
func TestNormaliseErrors(t *testing.T) {
	t.Run("Missing metadata", func(t *testing.T) {
		raw := &RawTrace{
			Metadata: map[string]any{"icao": "3c6444", "timestamp": 1.0},
			Rows:     [][]any{},
		}
		_, err := Normalise(raw, SourceADSBExchange)
		var mme *MissingMetadataError
		if !errors.As(err, &mme) {
			t.Fatalf("Expected MissingMetadataError, got: %v", err)
		}
		if len(mme.Missing) != 2 || mme.Missing[0] != "r" || mme.Missing[1] != "t" {
			t.Errorf("Expected missing [r t], got %v", mme.Missing)
		}
	})

	t.Run("Short row", func(t *testing.T) {
		raw := &RawTrace{
			Metadata: map[string]any{"icao": "3c6444", "r": "D-AIBA", "t": "A319", "timestamp": 1.0},
			Rows:     [][]any{{0.0, 51.0, 0.0, 1000.0, 150.0, 90.0, 0.0, 0.0}},
		}
		_, err := Normalise(raw, SourceADSBExchange)
		var rwe *RowWidthError
		if !errors.As(err, &rwe) {
			t.Fatalf("Expected RowWidthError, got: %v", err)
		}
		if rwe.Got != 8 || rwe.Expected != MinTraceColumns {
			t.Errorf("Expected 8 of %d columns, got %+v", MinTraceColumns, rwe)
		}
	})

	t.Run("Unknown source", func(t *testing.T) {
		raw, _ := ParseRawTrace([]byte(sampleTrace))
		if _, err := Normalise(raw, "opensky"); err == nil {
			t.Error("Expected error for unknown source")
		}
	})

	t.Run("Empty trace", func(t *testing.T) {
		raw := &RawTrace{
			Metadata: map[string]any{"icao": "3c6444", "r": "D-AIBA", "t": "A319", "timestamp": 1.0},
			Rows:     [][]any{},
		}
		s, err := Normalise(raw, SourceBJets)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if s.Len() != 0 {
			t.Errorf("Expected empty series, got %d samples", s.Len())
		}
	})
}

// TestFillTrack tests deriving missing tracks from neighbouring positions.
func TestFillTrack(t *testing.T) {
	nan := math.NaN()
	samples := []trace.Sample{
		{Latitude: 50.0, Longitude: 8.0, Track: nan},
		{Latitude: 50.1, Longitude: 8.0, Track: nan},
		{Latitude: 50.1, Longitude: 8.2, Track: 45},
		{Latitude: 50.1, Longitude: 8.2, Track: nan},
	}
	fillTrack(samples)

	if math.Abs(samples[0].Track) > 1e-6 {
		t.Errorf("Expected first track north (0), got %f", samples[0].Track)
	}
	if math.Abs(samples[1].Track) > 1e-6 {
		t.Errorf("Expected second track north (0), got %f", samples[1].Track)
	}
	if samples[2].Track != 45 {
		t.Errorf("Expected reported track kept, got %f", samples[2].Track)
	}
	if !math.IsNaN(samples[3].Track) {
		t.Errorf("Expected stationary sample to keep NaN, got %f", samples[3].Track)
	}
}
