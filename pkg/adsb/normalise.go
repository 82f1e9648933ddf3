package adsb

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/unklstewy/ads-bfuel/pkg/coordinates"
	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// MinTraceColumns is the row width of the ADS-B Exchange trace layout.
const MinTraceColumns = 14

// Trace row column indices.
const (
	colDtime = iota
	colLat
	colLon
	colAlt
	colGS
	colTrack
	colFlags
	colVRate
)

// requiredMetadata are the top-level keys a trace file must carry.
var requiredMetadata = []string{"timestamp", "icao", "r", "t"}

// MissingMetadataError lists required metadata keys absent from a trace file.
type MissingMetadataError struct {
	Missing []string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("missing required metadata keys: [%s]", strings.Join(e.Missing, ", "))
}

// RowWidthError is returned when trace rows are narrower than the provider layout.
type RowWidthError struct {
	Row      int
	Expected int
	Got      int
}

func (e *RowWidthError) Error() string {
	return fmt.Sprintf("trace row %d: expected %d columns, got %d", e.Row, e.Expected, e.Got)
}

// Normalise converts a provider trace into a Series with the standard
// kinematic columns plus flags.
//
// Rows lacking altitude, ground speed, vertical rate or position are dropped.
// A "ground" altitude becomes 0 ft. Timestamps are the metadata timestamp plus
// each row's offset in seconds.
func Normalise(raw *RawTrace, source string) (trace.Series, error) {
	if err := ValidateSource(source); err != nil {
		return trace.Series{}, err
	}
	if raw == nil || raw.Rows == nil {
		return trace.Series{}, fmt.Errorf("invalid trace: no 'trace' array")
	}

	var missing []string
	for _, k := range requiredMetadata {
		if _, ok := raw.Metadata[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return trace.Series{}, &MissingMetadataError{Missing: missing}
	}

	base, ok := number(raw.Metadata["timestamp"])
	if !ok {
		return trace.Series{}, fmt.Errorf("invalid metadata timestamp: %v", raw.Metadata["timestamp"])
	}

	samples := make([]trace.Sample, 0, len(raw.Rows))
	for i, row := range raw.Rows {
		if len(row) < MinTraceColumns {
			return trace.Series{}, &RowWidthError{Row: i, Expected: MinTraceColumns, Got: len(row)}
		}
		sample, ok := parseRow(row, base)
		if !ok {
			continue
		}
		samples = append(samples, sample)
	}

	s := trace.NewSeries(strings.ToLower(text(raw.Metadata["icao"])), samples, trace.ColKinematics|trace.ColFlags)
	s.Registration = text(raw.Metadata["r"])
	s.TypeCode = strings.ToUpper(text(raw.Metadata["t"]))
	s.SortByTimestamp()
	fillTrack(s.Samples)
	return s, nil
}

// fillTrack replaces missing tracks with the bearing from the previous
// position, or towards the next one for the first sample. Samples that did
// not move keep NaN.
func fillTrack(samples []trace.Sample) {
	pos := func(s trace.Sample) coordinates.Geographic {
		return coordinates.Geographic{Latitude: s.Latitude, Longitude: s.Longitude}
	}
	for i := range samples {
		if !math.IsNaN(samples[i].Track) {
			continue
		}
		from, to := i-1, i
		if i == 0 {
			from, to = 0, 1
		}
		if from < 0 || to >= len(samples) {
			continue
		}
		a, b := samples[from], samples[to]
		if a.Latitude == b.Latitude && a.Longitude == b.Longitude {
			continue
		}
		samples[i].Track = coordinates.Bearing(pos(a), pos(b))
	}
}

func parseRow(row []any, base float64) (trace.Sample, bool) {
	dtime, ok := number(row[colDtime])
	if !ok {
		return trace.Sample{}, false
	}
	lat, okLat := number(row[colLat])
	lon, okLon := number(row[colLon])
	alt, okAlt := parseAltitude(row[colAlt])
	gs, okGS := number(row[colGS])
	vr, okVR := number(row[colVRate])
	if !okLat || !okLon || !okAlt || !okGS || !okVR {
		return trace.Sample{}, false
	}

	track, ok := number(row[colTrack])
	if !ok {
		track = math.NaN()
	}
	flags, _ := number(row[colFlags])

	return trace.Sample{
		Timestamp:    unixSeconds(base + dtime),
		Latitude:     lat,
		Longitude:    coordinates.NormalizeLongitude(lon),
		Altitude:     alt,
		GroundSpeed:  gs,
		VerticalRate: vr,
		Track:        track,
		Flags:        int(flags),
	}, true
}

// parseAltitude handles the barometric altitude field, which is either a
// number in feet or the string "ground".
func parseAltitude(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		if strings.EqualFold(s, "ground") {
			return 0, true
		}
		return 0, false
	}
	return number(v)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func unixSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
