// Package trace defines the per-aircraft telemetry time series shared by the
// segmentation, fuel and emission stages.
//
// A Series is an ordered slice of Samples plus the set of named columns that
// are actually populated. Go structs always carry every field, so column
// presence is tracked explicitly and validated by each stage before use.
package trace

import (
	"sort"
	"time"
)

// Sample is one row of a per-aircraft time series.
type Sample struct {
	// Timestamp of the position report (UTC)
	Timestamp time.Time `msgpack:"ts"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `msgpack:"lat"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `msgpack:"lon"`

	// Altitude in feet. "ground" reports are stored as 0.0
	Altitude float64 `msgpack:"alt"`

	// GroundSpeed in knots
	GroundSpeed float64 `msgpack:"gs"`

	// VerticalRate in feet per minute (positive = climbing)
	VerticalRate float64 `msgpack:"vr"`

	// Track is the ground track in degrees (0-360)
	Track float64 `msgpack:"trk"`

	// Flags carries provider-defined bits (bit value 2 marks a new leg)
	Flags int `msgpack:"flags"`

	// Phase is the flight regime label
	Phase Phase `msgpack:"phase"`

	// Leg groups contiguous samples into one flight segment
	Leg int `msgpack:"leg"`

	// Distance flown since the previous sample in kilometers
	Distance float64 `msgpack:"dist"`

	// FuelFlow in kg/s
	FuelFlow float64 `msgpack:"ff"`

	// Fuel burned in the interval ending at this sample in kg
	Fuel float64 `msgpack:"fuel"`

	// Dt is the elapsed seconds since the previous sample
	Dt float64 `msgpack:"dt"`

	// Emission flows in kg/s
	CO2Flow float64 `msgpack:"co2"`
	H2OFlow float64 `msgpack:"h2o"`
	NOxFlow float64 `msgpack:"nox"`
}

// Series is an ordered time series of samples for one aircraft.
type Series struct {
	// ICAO24 is the 24-bit ICAO aircraft address (e.g., "3c6444")
	ICAO24 string `msgpack:"icao24"`

	// Registration is the aircraft registration (e.g., "D-AIBA")
	Registration string `msgpack:"registration"`

	// TypeCode is the ICAO aircraft type designator (e.g., "A320")
	TypeCode string `msgpack:"type"`

	// Samples ordered by timestamp ascending
	Samples []Sample `msgpack:"samples"`

	// Cols is the set of populated columns
	Cols Column `msgpack:"cols"`
}

// NewSeries creates a series with the given samples and populated columns.
func NewSeries(icao24 string, samples []Sample, cols Column) Series {
	return Series{
		ICAO24:  icao24,
		Samples: samples,
		Cols:    cols,
	}
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Samples) }

// Has reports whether every column in cols is populated.
func (s Series) Has(cols Column) bool { return s.Cols&cols == cols }

// Mark flags columns as populated.
func (s *Series) Mark(cols Column) { s.Cols |= cols }

// Require returns a *MissingColumnsError naming every column of cols that is not populated.
func (s Series) Require(cols Column) error {
	missing := cols &^ s.Cols
	if missing == 0 {
		return nil
	}
	return &MissingColumnsError{Missing: missing.Names()}
}

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	out := s
	out.Samples = make([]Sample, len(s.Samples))
	copy(out.Samples, s.Samples)
	return out
}

// WithSamples returns a copy of the series metadata holding the given samples.
func (s Series) WithSamples(samples []Sample) Series {
	out := s
	out.Samples = samples
	return out
}

// Start returns the first timestamp.
func (s Series) Start() time.Time { return s.Samples[0].Timestamp }

// End returns the last timestamp.
func (s Series) End() time.Time { return s.Samples[len(s.Samples)-1].Timestamp }

// Duration returns the time span between the first and last sample.
func (s Series) Duration() time.Duration {
	if len(s.Samples) == 0 {
		return 0
	}
	return s.End().Sub(s.Start())
}

// Sorted reports whether samples are in non-decreasing timestamp order.
func (s Series) Sorted() bool {
	return sort.SliceIsSorted(s.Samples, func(i, j int) bool {
		return s.Samples[i].Timestamp.Before(s.Samples[j].Timestamp)
	})
}

// SortByTimestamp orders the samples by timestamp ascending, keeping the
// relative order of equal timestamps.
func (s *Series) SortByTimestamp() {
	sort.SliceStable(s.Samples, func(i, j int) bool {
		return s.Samples[i].Timestamp.Before(s.Samples[j].Timestamp)
	})
}

// Deltas returns the elapsed seconds since the previous sample for every sample.
// The undefined first value is back-filled from the second (dt[0] == dt[1]).
// A single-sample series yields [0].
func (s Series) Deltas() []float64 {
	n := len(s.Samples)
	dt := make([]float64, n)
	for i := 1; i < n; i++ {
		dt[i] = s.Samples[i].Timestamp.Sub(s.Samples[i-1].Timestamp).Seconds()
	}
	if n > 1 {
		dt[0] = dt[1]
	}
	return dt
}
