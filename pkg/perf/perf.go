// Package perf provides aircraft and engine performance data and a reference
// parametric fuel-flow model.
//
// The embedded tables carry representative values for common airliners. They
// are adequate for relative comparisons between flights, not for certified
// fuel planning. A different database can be loaded from disk with LoadFiles.
package perf

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/unklstewy/ads-bfuel/pkg/emissions"
	"github.com/unklstewy/ads-bfuel/pkg/fuel"
)

//go:embed data/*.json
var dataFS embed.FS

// ErrNotFound is returned when an aircraft type or engine is not in the database.
var ErrNotFound = errors.New("not found in performance database")

// EngineInfo describes the installed engines of a type.
type EngineInfo struct {
	// Default is the engine identifier used when none is configured
	Default string `json:"default"`

	// Number of installed engines
	Number int `json:"number"`

	// Options lists other certified engine identifiers
	Options []string `json:"options,omitempty"`
}

// Aircraft holds the performance envelope of one aircraft type.
type Aircraft struct {
	// Type is the ICAO type designator (e.g., "A320")
	Type string `json:"type"`

	Name string `json:"name"`

	// MTOW is the maximum take-off mass in kg
	MTOW float64 `json:"mtow"`

	// OEW is the operating empty weight in kg
	OEW float64 `json:"oew"`

	Engine EngineInfo `json:"engine"`
}

// Envelope returns the mass envelope used by the fuel integrator.
func (a Aircraft) Envelope() fuel.Envelope {
	return fuel.Envelope{MTOW: a.MTOW, OEW: a.OEW, Engines: a.Engine.Number}
}

// DB is an in-memory aircraft and engine database. It is read-only after
// construction and safe for concurrent use.
type DB struct {
	aircraft map[string]Aircraft
	engines  map[string]emissions.Engine
}

// Load returns the embedded database.
func Load() (*DB, error) {
	ac, err := dataFS.ReadFile("data/aircraft.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded aircraft data: %w", err)
	}
	eng, err := dataFS.ReadFile("data/engines.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded engine data: %w", err)
	}
	return Parse(ac, eng)
}

// LoadFiles reads the database from JSON files on disk.
func LoadFiles(aircraftPath, enginesPath string) (*DB, error) {
	ac, err := os.ReadFile(aircraftPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read aircraft file: %w", err)
	}
	eng, err := os.ReadFile(enginesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read engines file: %w", err)
	}
	return Parse(ac, eng)
}

// Parse builds a database from aircraft and engine JSON arrays. Every aircraft
// must have a valid envelope and reference a known default engine.
func Parse(aircraftJSON, enginesJSON []byte) (*DB, error) {
	var acList []Aircraft
	if err := json.Unmarshal(aircraftJSON, &acList); err != nil {
		return nil, fmt.Errorf("failed to parse aircraft data: %w", err)
	}
	var engList []emissions.Engine
	if err := json.Unmarshal(enginesJSON, &engList); err != nil {
		return nil, fmt.Errorf("failed to parse engine data: %w", err)
	}

	db := &DB{
		aircraft: make(map[string]Aircraft, len(acList)),
		engines:  make(map[string]emissions.Engine, len(engList)),
	}
	for _, e := range engList {
		db.engines[normalise(e.ID)] = e
	}
	for _, a := range acList {
		if err := a.Envelope().Validate(); err != nil {
			return nil, fmt.Errorf("aircraft %s: %w", a.Type, err)
		}
		if a.Engine.Number <= 0 {
			return nil, fmt.Errorf("aircraft %s: engine number must be positive", a.Type)
		}
		if _, ok := db.engines[normalise(a.Engine.Default)]; !ok {
			return nil, fmt.Errorf("aircraft %s: default engine %s: %w", a.Type, a.Engine.Default, ErrNotFound)
		}
		db.aircraft[normalise(a.Type)] = a
	}
	return db, nil
}

func normalise(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Aircraft looks up a type designator (case-insensitive).
func (db *DB) Aircraft(typeCode string) (Aircraft, error) {
	a, ok := db.aircraft[normalise(typeCode)]
	if !ok {
		return Aircraft{}, fmt.Errorf("aircraft type %q: %w", typeCode, ErrNotFound)
	}
	return a, nil
}

// Engine looks up an engine identifier (case-insensitive).
func (db *DB) Engine(id string) (emissions.Engine, error) {
	e, ok := db.engines[normalise(id)]
	if !ok {
		return emissions.Engine{}, fmt.Errorf("engine %q: %w", id, ErrNotFound)
	}
	return e, nil
}

// Envelope returns the mass envelope of a type.
func (db *DB) Envelope(typeCode string) (fuel.Envelope, error) {
	a, err := db.Aircraft(typeCode)
	if err != nil {
		return fuel.Envelope{}, err
	}
	return a.Envelope(), nil
}

// Types returns all known type designators, sorted.
func (db *DB) Types() []string {
	types := make([]string, 0, len(db.aircraft))
	for _, a := range db.aircraft {
		types = append(types, a.Type)
	}
	sort.Strings(types)
	return types
}
