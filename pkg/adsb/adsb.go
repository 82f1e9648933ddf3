// Package adsb fetches full-day aircraft traces from ADS-B Exchange style
// providers and normalises them into trace.Series.
package adsb

import (
	"context"
	"encoding/json"
	"fmt"
)

// Supported trace providers.
const (
	// SourceADSBExchange serves traces sharded by the last two hex digits of the address
	SourceADSBExchange = "adsb_exchange"

	// SourceBJets serves the same trace layout from a flat directory
	SourceBJets = "bjets"
)

// TraceSource is implemented by anything that can return the raw trace of
// one aircraft.
type TraceSource interface {
	// FetchTrace returns the raw trace for a 24-bit ICAO address (hex, e.g. "3c6444").
	FetchTrace(ctx context.Context, icao string) (*RawTrace, error)
}

// RawTrace is a provider trace file: metadata plus trace rows.
//
// ADS-B Exchange rows are arrays of at least 14 values:
// [dtime, lat, lon, alt|"ground", gs, track, flags, vrate, details, source,
// geom_alt, geom_rate, ias, roll].
type RawTrace struct {
	// Metadata holds every top-level key except "trace" (icao, r, t, timestamp, ...)
	Metadata map[string]any

	// Rows is nil when the file has no "trace" key
	Rows [][]any
}

// UnmarshalJSON splits the trace array from the metadata keys.
func (r *RawTrace) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return err
	}

	r.Metadata = make(map[string]any, len(top))
	r.Rows = nil
	for k, v := range top {
		if k == "trace" {
			if err := json.Unmarshal(v, &r.Rows); err != nil {
				return fmt.Errorf("failed to parse trace rows: %w", err)
			}
			if r.Rows == nil {
				r.Rows = [][]any{}
			}
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("failed to parse metadata key %q: %w", k, err)
		}
		r.Metadata[k] = val
	}
	return nil
}

// MarshalJSON writes the trace back in provider layout.
func (r RawTrace) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		out[k] = v
	}
	if r.Rows != nil {
		out["trace"] = r.Rows
	}
	return json.Marshal(out)
}

// ParseRawTrace decodes a provider trace file.
func ParseRawTrace(data []byte) (*RawTrace, error) {
	var raw RawTrace
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse trace file: %w", err)
	}
	return &raw, nil
}

// UnsupportedSourceError is returned for an unknown provider name.
type UnsupportedSourceError struct {
	Source string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported ADS-B source: %q", e.Source)
}

// ValidateSource checks a provider name.
func ValidateSource(source string) error {
	switch source {
	case SourceADSBExchange, SourceBJets:
		return nil
	}
	return &UnsupportedSourceError{Source: source}
}
