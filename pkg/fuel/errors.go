package fuel

import "fmt"

// MassRangeError is returned when the initial mass is non-positive or above MTOW.
type MassRangeError struct {
	Mass float64
	MTOW float64
}

func (e *MassRangeError) Error() string {
	if !(e.Mass > 0) {
		return fmt.Sprintf("initial mass must be positive (got %.1f kg)", e.Mass)
	}
	return fmt.Sprintf("initial mass exceeds MTOW (%.1f kg > %.1f kg)", e.Mass, e.MTOW)
}

// FeasibilityError is returned when the terminal mass ends below OEW.
type FeasibilityError struct {
	FinalMass float64
	OEW       float64

	// Retried is true when the failure happened on the MTOW retry
	Retried bool
}

func (e *FeasibilityError) Error() string {
	if e.Retried {
		return fmt.Sprintf("final mass %.1f kg is below OEW %.1f kg even after retrying with MTOW", e.FinalMass, e.OEW)
	}
	return fmt.Sprintf("final mass %.1f kg is below OEW %.1f kg", e.FinalMass, e.OEW)
}

// EnvelopeError reports an invalid aircraft performance envelope.
type EnvelopeError struct {
	MTOW   float64
	OEW    float64
	Reason string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("invalid envelope (MTOW %.1f kg, OEW %.1f kg): %s", e.MTOW, e.OEW, e.Reason)
}

// ConfigError is returned for an unknown integration mode name.
type ConfigError struct {
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unknown fuel integration mode: %q", e.Value)
}
