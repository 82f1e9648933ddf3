package perf

import (
	"fmt"
	"math"

	"github.com/unklstewy/ads-bfuel/pkg/aero"
	"github.com/unklstewy/ads-bfuel/pkg/emissions"
)

// Thrust settings of the four ICAO certification points.
var thrustPoints = [4]float64{0.07, 0.30, 0.85, 1.0}

// Model is a deterministic parametric fuel-flow model. The thrust setting is
// estimated from the flight regime, mass and kinematics, and fuel flow is
// interpolated over the engine's certification points then lapsed with air
// density.
type Model struct {
	ac      Aircraft
	eng     emissions.Engine
	engines float64
}

// NewModel returns the fuel-flow model for an aircraft fitted with eng.
func NewModel(ac Aircraft, eng emissions.Engine) (*Model, error) {
	if err := ac.Envelope().Validate(); err != nil {
		return nil, err
	}
	if ac.Engine.Number <= 0 {
		return nil, fmt.Errorf("aircraft %s: engine number must be positive", ac.Type)
	}
	ffs := eng.FuelFlows()
	for i := 1; i < len(ffs); i++ {
		if ffs[i] <= ffs[i-1] || ffs[0] <= 0 {
			return nil, fmt.Errorf("engine %s: reference fuel flows must be positive and increasing", eng.ID)
		}
	}
	return &Model{ac: ac, eng: eng, engines: float64(ac.Engine.Number)}, nil
}

// Aircraft returns the modelled aircraft.
func (m *Model) Aircraft() Aircraft { return m.ac }

// Engine returns the modelled engine.
func (m *Model) Engine() emissions.Engine { return m.eng }

// Nominal returns climb fuel flow (kg/s).
func (m *Model) Nominal(mass, tas, alt, vs []float64) []float64 {
	return m.eval(mass, alt, func(i int, frac float64) float64 {
		return 0.85 + 0.15*frac
	}, m.lapse)
}

// Idle returns flight-idle fuel flow (kg/s), used for descent.
func (m *Model) Idle(mass, tas, alt, vs []float64) []float64 {
	return m.eval(mass, alt, func(int, float64) float64 {
		return thrustPoints[0]
	}, func(sigma float64) float64 {
		return 0.6 + 0.4*sigma
	})
}

// Enroute returns cruise and level flight fuel flow (kg/s).
func (m *Model) Enroute(mass, tas, alt, vs []float64) []float64 {
	return m.eval(mass, alt, func(i int, frac float64) float64 {
		climb := clamp(vs[i]/1500*0.15, -0.3, 0.3)
		drag := 0.1 * (tas[i] / 450) * (tas[i] / 450)
		return 0.45 + 0.25*frac + climb + drag
	}, m.lapse)
}

func (m *Model) lapse(sigma float64) float64 {
	return 0.35 + 0.65*sigma
}

func (m *Model) eval(mass, alt []float64, thrust func(i int, frac float64) float64, lapse func(sigma float64) float64) []float64 {
	out := make([]float64, len(mass))
	for i, mi := range mass {
		if mi <= 0 || math.IsNaN(mi) {
			out[i] = math.NaN()
			continue
		}
		frac := clamp((mi-m.ac.OEW)/(m.ac.MTOW-m.ac.OEW), 0, 1)
		r := clamp(thrust(i, frac), thrustPoints[0], thrustPoints[3])
		sigma := aero.DensityRatio(alt[i] * aero.Ft)
		out[i] = m.engines * m.perEngine(r) * lapse(sigma)
	}
	return out
}

// perEngine interpolates the certification fuel flows at thrust setting r.
func (m *Model) perEngine(r float64) float64 {
	ffs := m.eng.FuelFlows()
	for i := 1; i < len(thrustPoints); i++ {
		if r <= thrustPoints[i] {
			f := (r - thrustPoints[i-1]) / (thrustPoints[i] - thrustPoints[i-1])
			return ffs[i-1] + f*(ffs[i]-ffs[i-1])
		}
	}
	return ffs[len(ffs)-1]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ModelFor resolves a type designator and an optional engine override into a
// model. An empty engine id selects the type's default engine.
func (db *DB) ModelFor(typeCode, engineID string) (*Model, error) {
	ac, err := db.Aircraft(typeCode)
	if err != nil {
		return nil, err
	}
	if engineID == "" {
		engineID = ac.Engine.Default
	}
	eng, err := db.Engine(engineID)
	if err != nil {
		return nil, err
	}
	return NewModel(ac, eng)
}
