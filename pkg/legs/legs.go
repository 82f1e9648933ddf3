// Package legs splits a per-aircraft telemetry series into flight legs.
//
// Two strategies are available. The flag-bit strategy trusts the provider's
// leg marker (ADS-B Exchange sets bit value 2 on the first position of a new
// leg). The custom strategy looks for ground contact and for signal gaps that
// are too long to belong to the same flight, then drops legs that are too
// short to be real flights.
//
// The two strategies number legs differently and callers may depend on either:
// flag-bit ids count flagged samples (samples before the first flag are leg 0,
// the first flagged sample opens leg 1), custom ids start at 0.
package legs

import (
	"fmt"
	"time"

	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// Strategy selects how leg boundaries are detected.
type Strategy int

const (
	// StrategyFlags uses the provider's leg flag bit
	StrategyFlags Strategy = iota + 1

	// StrategyCustom uses ground contact and signal-gap heuristics
	StrategyCustom
)

func (s Strategy) String() string {
	switch s {
	case StrategyFlags:
		return "flags"
	case StrategyCustom:
		return "custom"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration name to a Strategy.
// "adsb_exchange" is accepted as an alias for the flag-bit strategy since that
// provider is the one emitting the flag.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "flags", "adsb_exchange":
		return StrategyFlags, nil
	case "custom":
		return StrategyCustom, nil
	}
	return 0, &ConfigError{Value: name}
}

// ConfigError is returned for an unknown segmentation strategy.
type ConfigError struct {
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("no leg detection logic implemented for strategy: %q", e.Value)
}

// LegFlagBit is the provider flag bit marking the first sample of a new leg.
const LegFlagBit = 2

// Custom heuristic thresholds.
const (
	// LowAltitudeCeilingFt separates low-altitude and high-altitude gap rules
	LowAltitudeCeilingFt = 10000.0

	// LowAltitudeMaxGap is the longest signal loss tolerated below the ceiling
	LowAltitudeMaxGap = 5 * time.Minute

	// HighAltitudeMaxGap is the longest signal loss tolerated at or above the ceiling
	HighAltitudeMaxGap = 10 * time.Hour
)

// FilterOptions configures the short-leg filter.
type FilterOptions struct {
	// MinDuration is the shortest leg kept (default: 5 minutes)
	MinDuration time.Duration

	// MinDistanceKm is the shortest first-to-last great-circle span kept (default: 3 km)
	MinDistanceKm float64
}

// DefaultFilterOptions returns the standard short-leg thresholds.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		MinDuration:   5 * time.Minute,
		MinDistanceKm: 3.0,
	}
}

// Stats summarises one segmentation run.
type Stats struct {
	Candidates      int
	Kept            int
	DroppedTooFew   int
	DroppedDuration int
	DroppedDistance int
}

// Dropped returns the total number of discarded legs.
func (st Stats) Dropped() int {
	return st.DroppedTooFew + st.DroppedDuration + st.DroppedDistance
}

// Identify assigns the leg column using the given strategy. The custom strategy
// also removes short legs; leg ids are not renumbered afterwards.
// The input series is not modified.
func Identify(s trace.Series, strategy Strategy, opts FilterOptions) (trace.Series, error) {
	out, _, err := IdentifyWithStats(s, strategy, opts)
	return out, err
}

// IdentifyWithStats is Identify plus a summary of candidate and dropped legs.
func IdentifyWithStats(s trace.Series, strategy Strategy, opts FilterOptions) (trace.Series, Stats, error) {
	switch strategy {
	case StrategyFlags:
		out, err := ByFlags(s)
		if err != nil {
			return trace.Series{}, Stats{}, err
		}
		runs, err := out.LegRuns()
		if err != nil {
			return trace.Series{}, Stats{}, err
		}
		return out, Stats{Candidates: len(runs), Kept: len(runs)}, nil

	case StrategyCustom:
		out, err := ByHeuristics(s)
		if err != nil {
			return trace.Series{}, Stats{}, err
		}
		return FilterShortLegs(out, opts)
	}
	return trace.Series{}, Stats{}, &ConfigError{Value: strategy.String()}
}

// ByFlags assigns legs from the provider flag bit: the leg id of a sample is the
// number of flagged samples up to and including it.
func ByFlags(s trace.Series) (trace.Series, error) {
	if err := s.Require(trace.ColFlags); err != nil {
		return trace.Series{}, err
	}

	out := s.Clone()
	leg := 0
	for i := range out.Samples {
		if out.Samples[i].Flags&LegFlagBit != 0 {
			leg++
		}
		out.Samples[i].Leg = leg
	}
	out.Mark(trace.ColLeg)
	return out, nil
}

// ByHeuristics assigns legs using the custom boundary rules. A boundary is
// declared at sample i when any of the following holds:
//  1. the aircraft touches down (previous phase not GROUND, current GROUND)
//  2. either sample is between 0 and 10,000 ft and the gap exceeds 5 minutes
//  3. either sample is at or above 10,000 ft and the gap exceeds 10 hours
//
// The first sample always opens leg 0.
func ByHeuristics(s trace.Series) (trace.Series, error) {
	if err := s.Require(trace.ColTimestamp | trace.ColAltitude | trace.ColPhase); err != nil {
		return trace.Series{}, err
	}

	out := s.Clone()
	leg := -1
	for i := range out.Samples {
		if i == 0 || isBoundary(out.Samples[i-1], out.Samples[i]) {
			leg++
		}
		out.Samples[i].Leg = leg
	}
	out.Mark(trace.ColLeg)
	return out, nil
}

func isBoundary(prev, cur trace.Sample) bool {
	// Ground contact
	if prev.Phase != trace.PhaseGround && cur.Phase == trace.PhaseGround {
		return true
	}

	gap := cur.Timestamp.Sub(prev.Timestamp)

	// Signal lost at low altitude
	if (isLowAltitude(cur.Altitude) || isLowAltitude(prev.Altitude)) && gap > LowAltitudeMaxGap {
		return true
	}

	// Signal lost at high altitude
	high := cur.Altitude >= LowAltitudeCeilingFt || prev.Altitude >= LowAltitudeCeilingFt
	return high && gap > HighAltitudeMaxGap
}

func isLowAltitude(alt float64) bool {
	return alt > 0 && alt < LowAltitudeCeilingFt
}

// FilterShortLegs removes legs with fewer than two samples, a duration below
// opts.MinDuration, or a first-to-last great-circle span below opts.MinDistanceKm.
// Surviving legs keep their ids and relative order.
func FilterShortLegs(s trace.Series, opts FilterOptions) (trace.Series, Stats, error) {
	if err := s.Require(trace.ColLeg | trace.ColTimestamp | trace.ColLatitude | trace.ColLongitude); err != nil {
		return trace.Series{}, Stats{}, err
	}

	runs, err := s.LegRuns()
	if err != nil {
		return trace.Series{}, Stats{}, err
	}

	stats := Stats{Candidates: len(runs)}
	kept := make([]trace.Sample, 0, len(s.Samples))
	for _, r := range runs {
		leg := s.Extract(r)
		switch {
		case leg.Len() < 2:
			stats.DroppedTooFew++
		case leg.Duration() < opts.MinDuration:
			stats.DroppedDuration++
		case leg.Span() < opts.MinDistanceKm:
			stats.DroppedDistance++
		default:
			stats.Kept++
			kept = append(kept, leg.Samples...)
		}
	}

	return s.WithSamples(kept), stats, nil
}
