// Package emissions derives exhaust emission flows from integrated fuel flow.
//
// CO2 and H2O scale linearly with fuel flow (Lee et al., 2010). NOx uses an
// emission index from either the DLR or the Boeing fuel-flow method, both of
// which correct the engine's ICAO certification points to flight conditions.
package emissions

import (
	"fmt"
	"math"

	"github.com/unklstewy/ads-bfuel/pkg/aero"
	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// Emission indices in kg per kg of fuel.
const (
	EICO2 = 3.16
	EIH2O = 1.24
)

// Method selects the NOx emission index correlation.
type Method int

const (
	MethodDLR Method = iota
	MethodBoeing
)

func (m Method) String() string {
	switch m {
	case MethodDLR:
		return "dlr"
	case MethodBoeing:
		return "boeing"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a configuration name to a Method.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "dlr":
		return MethodDLR, nil
	case "boeing":
		return MethodBoeing, nil
	}
	return 0, &ConfigError{Value: name}
}

// ConfigError is returned for an unknown NOx method.
type ConfigError struct {
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unknown NOx method: %q", e.Value)
}

// Engine holds the ICAO emission databank reference points of one engine.
// Fuel flows are per engine in kg/s, EINOx in g/kg.
type Engine struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	FFIdle     float64 `json:"ff_idl"`
	FFApproach float64 `json:"ff_app"`
	FFClimbOut float64 `json:"ff_co"`
	FFTakeOff  float64 `json:"ff_to"`

	EINOxIdle     float64 `json:"ei_nox_idl"`
	EINOxApproach float64 `json:"ei_nox_app"`
	EINOxClimbOut float64 `json:"ei_nox_co"`
	EINOxTakeOff  float64 `json:"ei_nox_to"`
}

// FuelFlows returns the four reference fuel flows from idle to take-off.
func (e Engine) FuelFlows() [4]float64 {
	return [4]float64{e.FFIdle, e.FFApproach, e.FFClimbOut, e.FFTakeOff}
}

// NOxIndices returns the four reference EINOx values from idle to take-off.
func (e Engine) NOxIndices() [4]float64 {
	return [4]float64{e.EINOxIdle, e.EINOxApproach, e.EINOxClimbOut, e.EINOxTakeOff}
}

// EngineLookup resolves an engine identifier.
type EngineLookup interface {
	Engine(id string) (Engine, error)
}

// Compute adds the co2flow, h2oflow and noxflow columns (kg/s) from the
// fuelflow column. Fuel flow is total aircraft flow; NOx is evaluated per engine.
func Compute(s trace.Series, eng Engine, engines int, method Method) (trace.Series, error) {
	if err := s.Require(trace.ColFuelFlow | trace.ColGroundSpeed | trace.ColAltitude); err != nil {
		return trace.Series{}, err
	}
	if engines <= 0 {
		return trace.Series{}, fmt.Errorf("engine count must be positive, got %d", engines)
	}

	var einox func(ffPerEng, tas, alt float64) float64
	switch method {
	case MethodDLR:
		coeffs, err := quadraticFit(eng.FuelFlows(), eng.NOxIndices())
		if err != nil {
			return trace.Series{}, fmt.Errorf("failed to fit EINOx curve for %s: %w", eng.ID, err)
		}
		einox = func(ff, tas, alt float64) float64 { return dlr(ff, tas, alt, coeffs) }
	case MethodBoeing:
		einox = func(ff, tas, alt float64) float64 { return boeing(ff, tas, alt, eng) }
	default:
		return trace.Series{}, &ConfigError{Value: method.String()}
	}

	for i, smp := range s.Samples {
		if smp.FuelFlow < 0 || math.IsNaN(smp.FuelFlow) {
			return trace.Series{}, fmt.Errorf("sample %d: fuel flow must be non-negative, got %f", i, smp.FuelFlow)
		}
	}

	out := s.Clone()
	for i := range out.Samples {
		smp := &out.Samples[i]
		smp.CO2Flow = smp.FuelFlow * EICO2
		smp.H2OFlow = smp.FuelFlow * EIH2O
		if smp.FuelFlow == 0 {
			smp.NOxFlow = 0
			continue
		}
		ei := einox(smp.FuelFlow/float64(engines), smp.GroundSpeed, smp.Altitude)
		if math.IsNaN(ei) || math.IsInf(ei, 0) {
			ei = 0
		}
		smp.NOxFlow = smp.FuelFlow * ei
	}
	out.Mark(trace.ColCO2Flow | trace.ColH2OFlow | trace.ColNOxFlow)
	return out, nil
}

// ambient returns Mach number, static pressure (Pa) and temperature (K).
func ambient(tasKts, altFt float64) (mach, p, t float64) {
	h := altFt * aero.Ft
	return aero.TASToMach(tasKts*aero.Kts, h), aero.Pressure(h), aero.Temperature(h)
}

// humidityFactor is the exponential humidity correction exp(-19 (omega - 0.00634)).
func humidityFactor(omega float64) float64 {
	return math.Exp(-19.0 * (omega - 0.00634))
}

// dlr returns EINOx (kg/kg) from the DLR fuel-flow method.
func dlr(ffPerEng, tasKts, altFt float64, coeffs [3]float64) float64 {
	mach, p, t := ambient(tasKts, altFt)

	// total pressure and temperature ratios
	delta := p * math.Pow(1+0.2*mach*mach, 3.5) / aero.P0
	theta := t * (1 + 0.2*mach*mach) / aero.T0

	wRef := ffPerEng / (delta * math.Sqrt(theta))
	einoxRef := coeffs[0]*wRef*wRef + coeffs[1]*wRef + coeffs[2]

	omega := 1e-3 * math.Exp(-0.0001426*(altFt-12900.0))
	einox := einoxRef * math.Pow(delta, 0.4) * math.Pow(theta, 3) * humidityFactor(omega)
	return einox * 1e-3
}

// Installation correction applied to the reference fuel flows.
var boeingInstallation = [4]float64{1.100, 1.020, 1.013, 1.010}

// boeing returns EINOx (kg/kg) from the Boeing fuel-flow method 2 assuming ISA
// with zero relative humidity.
func boeing(ffPerEng, tasKts, altFt float64, eng Engine) float64 {
	mach, p, t := ambient(tasKts, altFt)

	// ambient, not total, ratios
	delta := p / aero.P0
	theta := t / aero.T0

	wff := ffPerEng / delta * math.Pow(theta, 3.8) * math.Exp(0.2*mach*mach)

	var logFF, logEI [4]float64
	ffs, eis := eng.FuelFlows(), eng.NOxIndices()
	for i := range ffs {
		logFF[i] = math.Log(ffs[i] * boeingInstallation[i])
		logEI[i] = math.Log(math.Max(eis[i], 1e-6))
	}
	einoxRef := math.Exp(interp(math.Log(wff), logFF[:], logEI[:]))

	phi := 0.0
	tau := 373.16 / t
	beta := 7.90298*(1-tau) + 3.00571 + 5.02808*math.Log(tau) +
		1.3816e-7*(1-math.Pow(10, 11.344*(1-1/tau))) +
		8.1328e-3*(math.Pow(10, 3.49149*(1-tau))-1)
	pv := 0.014504 * math.Pow(10, beta)
	omega := (0.62197058 * phi * pv) / (p - phi*pv)

	einox := einoxRef * math.Sqrt(math.Pow(delta, 1.02)/math.Pow(theta, 3.3)) * humidityFactor(omega)
	return einox * 1e-3
}

// interp linearly interpolates y(x) over ascending xs, clamping outside the range.
func interp(x float64, xs, ys []float64) float64 {
	n := len(xs)
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	for i := 1; i < n; i++ {
		if x <= xs[i] {
			f := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + f*(ys[i]-ys[i-1])
		}
	}
	return ys[n-1]
}

// quadraticFit returns least-squares coefficients (a, b, c) of y = a x^2 + b x + c.
func quadraticFit(xs, ys [4]float64) ([3]float64, error) {
	// normal equations
	var s [5]float64
	var r [3]float64
	for i := range xs {
		p := 1.0
		for k := 0; k < 5; k++ {
			s[k] += p
			if k < 3 {
				r[k] += p * ys[i]
			}
			p *= xs[i]
		}
	}
	// rows for unknowns (c, b, a)
	m := [3][4]float64{
		{s[0], s[1], s[2], r[0]},
		{s[1], s[2], s[3], r[1]},
		{s[2], s[3], s[4], r[2]},
	}

	for col := 0; col < 3; col++ {
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-15 {
			return [3]float64{}, fmt.Errorf("singular system: reference fuel flows are not distinct")
		}
		m[col], m[pivot] = m[pivot], m[col]
		for row := 0; row < 3; row++ {
			if row == col {
				continue
			}
			f := m[row][col] / m[col][col]
			for k := col; k < 4; k++ {
				m[row][k] -= f * m[col][k]
			}
		}
	}

	c := m[0][3] / m[0][0]
	b := m[1][3] / m[1][1]
	a := m[2][3] / m[2][2]
	return [3]float64{a, b, c}, nil
}

// Totals holds integrated emission masses in kg.
type Totals struct {
	Fuel float64 `json:"fuel_kg"`
	CO2  float64 `json:"co2_kg"`
	H2O  float64 `json:"h2o_kg"`
	NOx  float64 `json:"nox_kg"`
}

// Sum integrates the flow columns over dt. Emission columns that are not
// present contribute zero.
func Sum(s trace.Series) (Totals, error) {
	if err := s.Require(trace.ColDt | trace.ColFuel); err != nil {
		return Totals{}, err
	}
	hasEmissions := s.Has(trace.ColCO2Flow | trace.ColH2OFlow | trace.ColNOxFlow)

	var t Totals
	for _, smp := range s.Samples {
		t.Fuel += smp.Fuel
		if hasEmissions {
			t.CO2 += smp.CO2Flow * smp.Dt
			t.H2O += smp.H2OFlow * smp.Dt
			t.NOx += smp.NOxFlow * smp.Dt
		}
	}
	return t, nil
}

// Add returns the element-wise sum of two totals.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Fuel: t.Fuel + o.Fuel,
		CO2:  t.CO2 + o.CO2,
		H2O:  t.H2O + o.H2O,
		NOx:  t.NOx + o.NOx,
	}
}
