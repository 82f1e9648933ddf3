package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Run is one analysis of one aircraft trace.
type Run struct {
	RunID         string `db:"run_id" json:"run_id"`
	ICAO24        string `db:"icao24" json:"icao24"`
	Registration  string `db:"registration" json:"registration"`
	TypeCode      string `db:"type_code" json:"type_code"`
	EngineID      string `db:"engine_id" json:"engine_id"`
	Strategy      string `db:"strategy" json:"strategy"`
	FuelMode      string `db:"fuel_mode" json:"fuel_mode"`
	NOxMethod     string `db:"nox_method" json:"nox_method"`
	Samples       int    `db:"samples" json:"samples"`
	LegsCandidate int    `db:"legs_candidate" json:"legs_candidate"`
	LegsKept      int    `db:"legs_kept" json:"legs_kept"`
	LegsSkipped   int    `db:"legs_skipped" json:"legs_skipped"`
	CreatedAt     int64  `db:"created_at" json:"created_at"` // Unix timestamp
}

// LegSummary is the stored outcome of one leg.
type LegSummary struct {
	RunID  string `db:"run_id" json:"run_id"`
	ICAO24 string `db:"icao24" json:"icao24"`
	Leg    int    `db:"leg" json:"leg"`

	Samples         int   `db:"samples" json:"samples"`
	StartTime       int64 `db:"start_time" json:"start_time"` // Unix timestamp
	EndTime         int64 `db:"end_time" json:"end_time"`     // Unix timestamp
	DurationSeconds int64 `db:"duration_seconds" json:"duration_seconds"`

	StartLat   float64 `db:"start_lat" json:"start_lat"`
	StartLon   float64 `db:"start_lon" json:"start_lon"`
	EndLat     float64 `db:"end_lat" json:"end_lat"`
	EndLon     float64 `db:"end_lon" json:"end_lon"`
	DistanceKm float64 `db:"distance_km" json:"distance_km"`

	InitialMassKg float64 `db:"initial_mass_kg" json:"initial_mass_kg"`
	FinalMassKg   float64 `db:"final_mass_kg" json:"final_mass_kg"`
	FuelKg        float64 `db:"fuel_kg" json:"fuel_kg"`
	CO2Kg         float64 `db:"co2_kg" json:"co2_kg"`
	H2OKg         float64 `db:"h2o_kg" json:"h2o_kg"`
	NOxKg         float64 `db:"nox_kg" json:"nox_kg"`
	Retried       bool    `db:"retried" json:"retried"`
	Sanitized     int     `db:"sanitized" json:"sanitized"`

	// Error is set when the leg could not be integrated
	Error string `db:"error" json:"error,omitempty"`
}

// Start returns StartTime as a time.Time.
func (l LegSummary) Start() time.Time { return time.Unix(l.StartTime, 0).UTC() }

// LegRepository handles database operations for analysis runs.
type LegRepository struct {
	db *DB
}

// NewLegRepository creates a new leg repository.
func NewLegRepository(db *DB) *LegRepository {
	return &LegRepository{db: db}
}

const insertRun = `
	INSERT INTO analysis_runs (
		run_id, icao24, registration, type_code, engine_id, strategy, fuel_mode,
		nox_method, samples, legs_candidate, legs_kept, legs_skipped, created_at
	) VALUES (
		:run_id, :icao24, :registration, :type_code, :engine_id, :strategy, :fuel_mode,
		:nox_method, :samples, :legs_candidate, :legs_kept, :legs_skipped, :created_at
	)`

const insertLeg = `
	INSERT INTO leg_summaries (
		run_id, icao24, leg, samples, start_time, end_time, duration_seconds,
		start_lat, start_lon, end_lat, end_lon, distance_km,
		initial_mass_kg, final_mass_kg, fuel_kg, co2_kg, h2o_kg, nox_kg,
		retried, sanitized, error
	) VALUES (
		:run_id, :icao24, :leg, :samples, :start_time, :end_time, :duration_seconds,
		:start_lat, :start_lon, :end_lat, :end_lon, :distance_km,
		:initial_mass_kg, :final_mass_kg, :fuel_kg, :co2_kg, :h2o_kg, :nox_kg,
		:retried, :sanitized, :error
	)`

// SaveRun stores a run and its legs in one transaction. Connection failures
// are retried.
func (r *LegRepository) SaveRun(ctx context.Context, run Run, legs []LegSummary) error {
	return WithRetry(func() error {
		return r.saveRun(ctx, run, legs)
	}, 2)
}

func (r *LegRepository) saveRun(ctx context.Context, run Run, legs []LegSummary) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertRun, run); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	for _, leg := range legs {
		leg.RunID = run.RunID
		if leg.ICAO24 == "" {
			leg.ICAO24 = run.ICAO24
		}
		if _, err := tx.NamedExecContext(ctx, insertLeg, leg); err != nil {
			return fmt.Errorf("failed to insert leg %d: %w", leg.Leg, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun returns a run by id.
func (r *LegRepository) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := r.db.GetContext(ctx, &run, r.db.Rebind(`SELECT * FROM analysis_runs WHERE run_id = ?`), runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

// LatestRun returns the most recent run of an aircraft.
func (r *LegRepository) LatestRun(ctx context.Context, icao24 string) (*Run, error) {
	var run Run
	err := r.db.GetContext(ctx, &run, r.db.Rebind(
		`SELECT * FROM analysis_runs WHERE icao24 = ? ORDER BY created_at DESC, run_id DESC LIMIT 1`), icao24)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return &run, nil
}

// RunLegs returns the legs of a run ordered by leg id.
func (r *LegRepository) RunLegs(ctx context.Context, runID string) ([]LegSummary, error) {
	legs := []LegSummary{}
	err := r.db.SelectContext(ctx, &legs, r.db.Rebind(
		`SELECT * FROM leg_summaries WHERE run_id = ? ORDER BY leg`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query legs: %w", err)
	}
	return legs, nil
}

// ListLegs returns stored legs of an aircraft, newest first.
// A non-positive limit means 100.
func (r *LegRepository) ListLegs(ctx context.Context, icao24 string, limit int) ([]LegSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	legs := []LegSummary{}
	err := r.db.SelectContext(ctx, &legs, r.db.Rebind(
		`SELECT * FROM leg_summaries WHERE icao24 = ? ORDER BY start_time DESC, leg DESC LIMIT ?`),
		icao24, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query legs: %w", err)
	}
	return legs, nil
}
