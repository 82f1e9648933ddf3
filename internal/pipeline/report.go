package pipeline

import (
	"time"

	"github.com/unklstewy/ads-bfuel/internal/archive"
	"github.com/unklstewy/ads-bfuel/internal/db"
	"github.com/unklstewy/ads-bfuel/pkg/emissions"
	"github.com/unklstewy/ads-bfuel/pkg/legs"
	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// Report is the outcome of one analysis.
type Report struct {
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	ICAO24       string    `json:"icao24"`
	Registration string    `json:"registration,omitempty"`
	TypeCode     string    `json:"type_code"`
	EngineID     string    `json:"engine_id"`
	InputSamples int       `json:"input_samples"`
	Samples      int       `json:"samples"`

	Strategy  string `json:"strategy"`
	FuelMode  string `json:"fuel_mode"`
	NOxMethod string `json:"nox_method,omitempty"`

	Segmentation legs.Stats `json:"segmentation"`
	Legs         []LegReport `json:"legs"`
	Skipped      int         `json:"skipped"`

	// Totals sums the integrated legs only
	Totals     emissions.Totals `json:"totals"`
	DistanceKm float64          `json:"distance_km"`

	ArchivePath string   `json:"archive_path,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`

	// Trace is the segmented input series
	Trace trace.Series `json:"-"`
}

// LegReport is the outcome of one leg.
type LegReport struct {
	Leg        int       `json:"leg"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Samples    int       `json:"samples"`
	DistanceKm float64   `json:"distance_km"`

	InitialMassKg float64          `json:"initial_mass_kg"`
	FinalMassKg   float64          `json:"final_mass_kg"`
	Retried       bool             `json:"retried"`
	Sanitized     int              `json:"sanitized"`
	Totals        emissions.Totals `json:"totals"`

	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`

	// Series carries the fuel and emission columns; empty when Err is set
	Series trace.Series `json:"-"`

	startLat, startLon, endLat, endLon float64
}

func newLegReport(s trace.Series) LegReport {
	first, last := s.Samples[0], s.Samples[len(s.Samples)-1]
	return LegReport{
		Leg:        first.Leg,
		Start:      first.Timestamp,
		End:        last.Timestamp,
		Samples:    s.Len(),
		DistanceKm: s.TotalDistance(),
		startLat:   first.Latitude,
		startLon:   first.Longitude,
		endLat:     last.Latitude,
		endLon:     last.Longitude,
	}
}

func (l *LegReport) setError(err error) {
	l.Err = err
	l.Error = err.Error()
}

// Integrated reports whether the leg produced a fuel result.
func (l LegReport) Integrated() bool { return l.Err == nil && l.Error == "" }

// Duration returns the elapsed time of the leg.
func (l LegReport) Duration() time.Duration { return l.End.Sub(l.Start) }

// Records converts the report into database rows.
func (r *Report) Records() (db.Run, []db.LegSummary) {
	run := db.Run{
		RunID:         r.RunID,
		ICAO24:        r.ICAO24,
		Registration:  r.Registration,
		TypeCode:      r.TypeCode,
		EngineID:      r.EngineID,
		Strategy:      r.Strategy,
		FuelMode:      r.FuelMode,
		NOxMethod:     r.NOxMethod,
		Samples:       r.Samples,
		LegsCandidate: r.Segmentation.Candidates,
		LegsKept:      len(r.Legs),
		LegsSkipped:   r.Skipped,
		CreatedAt:     r.CreatedAt.Unix(),
	}

	summaries := make([]db.LegSummary, len(r.Legs))
	for i, l := range r.Legs {
		summaries[i] = db.LegSummary{
			RunID:           r.RunID,
			ICAO24:          r.ICAO24,
			Leg:             l.Leg,
			Samples:         l.Samples,
			StartTime:       l.Start.Unix(),
			EndTime:         l.End.Unix(),
			DurationSeconds: int64(l.Duration().Seconds()),
			StartLat:        l.startLat,
			StartLon:        l.startLon,
			EndLat:          l.endLat,
			EndLon:          l.endLon,
			DistanceKm:      l.DistanceKm,
			InitialMassKg:   l.InitialMassKg,
			FinalMassKg:     l.FinalMassKg,
			FuelKg:          l.Totals.Fuel,
			CO2Kg:           l.Totals.CO2,
			H2OKg:           l.Totals.H2O,
			NOxKg:           l.Totals.NOx,
			Retried:         l.Retried,
			Sanitized:       l.Sanitized,
			Error:           l.Error,
		}
	}
	return run, summaries
}

// ArchiveRecord converts the report into an archive record holding the
// segmented trace and every integrated leg.
func (r *Report) ArchiveRecord() *archive.Record {
	rec := &archive.Record{
		RunID:     r.RunID,
		CreatedAt: r.CreatedAt,
		EngineID:  r.EngineID,
		Trace:     r.Trace,
	}
	for _, l := range r.Legs {
		if l.Integrated() {
			rec.Legs = append(rec.Legs, l.Series)
		}
	}
	return rec
}
