// Package aero provides the International Standard Atmosphere and the unit
// conversions used by the performance and emission models.
package aero

import "math"

// Unit conversions
const (
	Kts = 0.514444 // knot to m/s
	Ft  = 0.3048   // ft to m
	FPM = 0.00508  // ft/min to m/s
)

// ISA constants
const (
	R     = 287.05287 // specific gas constant of air, J/(kg K)
	Gamma = 1.40      // heat capacity ratio of air
	G0    = 9.80665   // standard gravity, m/s^2

	T0   = 288.15   // sea level temperature, K
	P0   = 101325.0 // sea level pressure, Pa
	Rho0 = 1.225    // sea level density, kg/m^3

	TropopauseM    = 11000.0
	TropopauseTemp = 216.65

	lapseRate = 0.0065
)

// Temperature returns the ISA temperature (K) at altitude h (m).
func Temperature(h float64) float64 {
	return math.Max(T0-lapseRate*h, TropopauseTemp)
}

// Density returns the ISA air density (kg/m^3) at altitude h (m).
func Density(h float64) float64 {
	t := Temperature(h)
	rho := Rho0 * math.Pow(t/T0, 4.256848)
	return rho * math.Exp(-math.Max(0, h-TropopauseM)/6341.552161)
}

// Pressure returns the ISA static pressure (Pa) at altitude h (m).
func Pressure(h float64) float64 {
	return Density(h) * R * Temperature(h)
}

// SpeedOfSound returns the ISA speed of sound (m/s) at altitude h (m).
func SpeedOfSound(h float64) float64 {
	return math.Sqrt(Gamma * R * Temperature(h))
}

// TASToMach converts true airspeed (m/s) to Mach number at altitude h (m).
func TASToMach(tas, h float64) float64 {
	return tas / SpeedOfSound(h)
}

// DensityRatio returns rho/rho0 at altitude h (m).
func DensityRatio(h float64) float64 {
	return Density(h) / Rho0
}
