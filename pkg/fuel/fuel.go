// Package fuel integrates fuel burn along a phase-annotated telemetry series.
//
// The fuel-flow model is supplied by the caller through FlowModel. Integrate
// walks the series either sample by sample with a running mass (sequential
// mode) or in two batched passes per phase (vectorised mode), then checks the
// terminal mass against the operating empty weight.
package fuel

import (
	"fmt"
	"math"

	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// FlowModel computes fuel flow (kg/s) for batches of aircraft states.
// All slices have the same length: mass in kg, true airspeed in knots,
// altitude in feet, vertical speed in ft/min. Results may contain NaN,
// infinite or negative values for out-of-envelope inputs.
type FlowModel interface {
	Nominal(mass, tas, alt, vs []float64) []float64
	Idle(mass, tas, alt, vs []float64) []float64
	Enroute(mass, tas, alt, vs []float64) []float64
}

// Envelope holds the aircraft mass limits.
type Envelope struct {
	// MTOW is the maximum take-off mass in kg
	MTOW float64

	// OEW is the operating empty weight in kg
	OEW float64

	// Engines is the number of installed engines
	Engines int
}

// Validate checks that both masses are positive and OEW < MTOW.
func (e Envelope) Validate() error {
	switch {
	case e.MTOW <= 0 || math.IsNaN(e.MTOW):
		return &EnvelopeError{MTOW: e.MTOW, OEW: e.OEW, Reason: "MTOW must be positive"}
	case e.OEW <= 0 || math.IsNaN(e.OEW):
		return &EnvelopeError{MTOW: e.MTOW, OEW: e.OEW, Reason: "OEW must be positive"}
	case e.OEW >= e.MTOW:
		return &EnvelopeError{MTOW: e.MTOW, OEW: e.OEW, Reason: "OEW must be below MTOW"}
	}
	return nil
}

// Mode selects the integration algorithm.
type Mode int

const (
	// ModeVectorised evaluates each phase in one batched call, in two passes
	ModeVectorised Mode = iota
	// ModeSequential updates the mass after every sample
	ModeSequential
)

func (m Mode) String() string {
	switch m {
	case ModeVectorised:
		return "vectorised"
	case ModeSequential:
		return "sequential"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "vectorised", "vectorized":
		return ModeVectorised, nil
	case "sequential", "iterative":
		return ModeSequential, nil
	}
	return 0, &ConfigError{Value: name}
}

// Options configures Integrate.
type Options struct {
	// Mode is the integration algorithm (default: vectorised)
	Mode Mode

	// RetryWithMTOW re-runs an infeasible integration once from MTOW (default: true)
	RetryWithMTOW bool
}

// DefaultOptions returns vectorised integration with the MTOW retry enabled.
func DefaultOptions() Options {
	return Options{
		Mode:          ModeVectorised,
		RetryWithMTOW: true,
	}
}

// Diagnostics describes one Integrate call.
type Diagnostics struct {
	// InitialMass is the absolute starting mass actually used (after fraction scaling or retry)
	InitialMass float64

	// FinalMass is InitialMass minus the total fuel burned
	FinalMass float64

	// Retried is true when the first attempt was infeasible and MTOW was used
	Retried bool

	// Sanitized counts flow values coerced to zero (NaN, infinite or negative).
	// In vectorised mode only the second pass is counted.
	Sanitized int

	// Mode is the integration mode that produced the result
	Mode Mode
}

// RequiredColumns lists the columns Integrate reads.
const RequiredColumns = trace.ColTimestamp | trace.ColPhase | trace.ColGroundSpeed | trace.ColAltitude | trace.ColVerticalRate

type flowFunc func(mass, tas, alt, vs []float64) []float64

// phaseTable maps each phase to its flow function. A nil entry burns no fuel.
type phaseTable [trace.NumPhases]flowFunc

func (t *phaseTable) lookup(p trace.Phase) flowFunc {
	if int(p) >= len(t) {
		return nil
	}
	return t[p]
}

func dispatch(model FlowModel) *phaseTable {
	var table phaseTable
	table[trace.PhaseGround] = nil
	table[trace.PhaseClimb] = model.Nominal
	table[trace.PhaseDescent] = model.Idle
	table[trace.PhaseLevel] = model.Enroute
	table[trace.PhaseCruise] = model.Enroute
	table[trace.PhaseNA] = nil
	return &table
}

// ResolveMass converts a caller-supplied initial mass into kg. Values up to 1
// are fractions of MTOW.
func ResolveMass(initialMass, mtow float64) (float64, error) {
	if initialMass <= 0 || math.IsNaN(initialMass) {
		return 0, &MassRangeError{Mass: initialMass, MTOW: mtow}
	}
	if initialMass > mtow {
		return 0, &MassRangeError{Mass: initialMass, MTOW: mtow}
	}
	if initialMass <= 1 {
		return initialMass * mtow, nil
	}
	return initialMass, nil
}

// Integrate adds the fuelflow (kg/s), fuel (kg per interval) and dt (s)
// columns to s. The input series is not modified.
//
// If the terminal mass ends below env.OEW the whole integration is re-run once
// from env.MTOW when opts.RetryWithMTOW is set; otherwise, or if the retry is
// also infeasible, a *FeasibilityError is returned.
func Integrate(s trace.Series, model FlowModel, initialMass float64, env Envelope, opts Options) (trace.Series, Diagnostics, error) {
	diag := Diagnostics{Mode: opts.Mode}

	if err := env.Validate(); err != nil {
		return trace.Series{}, diag, err
	}
	m0, err := ResolveMass(initialMass, env.MTOW)
	if err != nil {
		return trace.Series{}, diag, err
	}
	if err := s.Require(RequiredColumns); err != nil {
		return trace.Series{}, diag, err
	}
	if s.Len() == 0 {
		return trace.Series{}, diag, &trace.EmptySeriesError{Op: "fuel integration"}
	}

	var run func(trace.Series, *phaseTable, []float64, float64) result
	switch opts.Mode {
	case ModeVectorised:
		run = vectorised
	case ModeSequential:
		run = sequential
	default:
		return trace.Series{}, diag, &ConfigError{Value: opts.Mode.String()}
	}

	table := dispatch(model)
	dt := s.Deltas()

	res := run(s, table, dt, m0)
	if res.finalMass < env.OEW {
		if !opts.RetryWithMTOW {
			return trace.Series{}, diag, &FeasibilityError{FinalMass: res.finalMass, OEW: env.OEW}
		}
		m0 = env.MTOW
		diag.Retried = true
		res = run(s, table, dt, m0)
		if res.finalMass < env.OEW {
			return trace.Series{}, diag, &FeasibilityError{FinalMass: res.finalMass, OEW: env.OEW, Retried: true}
		}
	}

	out := s.Clone()
	for i := range out.Samples {
		out.Samples[i].FuelFlow = res.flow[i]
		out.Samples[i].Fuel = res.fuel[i]
		out.Samples[i].Dt = dt[i]
	}
	out.Mark(trace.ColFuelFlow | trace.ColFuel | trace.ColDt)

	diag.InitialMass = m0
	diag.FinalMass = res.finalMass
	diag.Sanitized = res.sanitized
	return out, diag, nil
}

type result struct {
	flow      []float64
	fuel      []float64
	finalMass float64
	sanitized int
}

// sequential integrates sample by sample with a running mass.
func sequential(s trace.Series, table *phaseTable, dt []float64, m0 float64) result {
	n := s.Len()
	res := result{flow: make([]float64, n), fuel: make([]float64, n)}

	mass := m0
	one := make([]float64, 4)
	for i, smp := range s.Samples {
		fn := table.lookup(smp.Phase)
		if dt[i] == 0 || fn == nil {
			continue
		}
		one[0], one[1], one[2], one[3] = mass, smp.GroundSpeed, smp.Altitude, smp.VerticalRate
		ff := fn(one[0:1], one[1:2], one[2:3], one[3:4])

		var v float64
		if len(ff) > 0 {
			v = ff[0]
		}
		v, ok := sanitize(v)
		if !ok {
			res.sanitized++
		}

		res.flow[i] = v
		res.fuel[i] = v * dt[i]
		mass -= res.fuel[i]
	}

	res.finalMass = mass
	return res
}

// vectorised runs pass 1 at constant initial mass, derives the mass
// trajectory from its cumulative burn, then runs pass 2 on that trajectory.
func vectorised(s trace.Series, table *phaseTable, dt []float64, m0 float64) result {
	n := s.Len()

	mass := make([]float64, n)
	for i := range mass {
		mass[i] = m0
	}
	ff1, _ := phasePass(s, table, mass)

	burned := 0.0
	for i := range mass {
		burned += ff1[i] * dt[i]
		mass[i] = m0 - burned
	}

	ff2, sanitized := phasePass(s, table, mass)

	res := result{flow: ff2, fuel: make([]float64, n), sanitized: sanitized}
	total := 0.0
	for i := range ff2 {
		res.fuel[i] = ff2[i] * dt[i]
		total += res.fuel[i]
	}
	res.finalMass = m0 - total
	return res
}

// phasePass evaluates the flow function of every phase with one batched call
// over that phase's samples.
func phasePass(s trace.Series, table *phaseTable, mass []float64) ([]float64, int) {
	n := s.Len()
	ff := make([]float64, n)

	var idx [trace.NumPhases][]int
	for i, smp := range s.Samples {
		if table.lookup(smp.Phase) != nil {
			idx[smp.Phase] = append(idx[smp.Phase], i)
		}
	}

	sanitized := 0
	for p, rows := range idx {
		if len(rows) == 0 {
			continue
		}
		m := make([]float64, len(rows))
		tas := make([]float64, len(rows))
		alt := make([]float64, len(rows))
		vs := make([]float64, len(rows))
		for k, i := range rows {
			smp := s.Samples[i]
			m[k], tas[k], alt[k], vs[k] = mass[i], smp.GroundSpeed, smp.Altitude, smp.VerticalRate
		}

		out := table[p](m, tas, alt, vs)
		for k, i := range rows {
			var v float64
			if k < len(out) {
				v = out[k]
			}
			v, ok := sanitize(v)
			if !ok {
				sanitized++
			}
			ff[i] = v
		}
	}
	return ff, sanitized
}

// sanitize coerces NaN, infinite and negative flows to zero.
func sanitize(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
