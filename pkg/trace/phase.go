package trace

import "fmt"

// Phase is a categorical flight-regime label.
type Phase uint8

const (
	// PhaseNA marks samples no classifier rule matched
	PhaseNA Phase = iota
	PhaseGround
	PhaseClimb
	PhaseCruise
	PhaseLevel
	PhaseDescent
)

// NumPhases is the number of defined phases.
const NumPhases = int(PhaseDescent) + 1

// Phases lists every phase in declaration order.
var Phases = []Phase{PhaseNA, PhaseGround, PhaseClimb, PhaseCruise, PhaseLevel, PhaseDescent}

func (p Phase) String() string {
	switch p {
	case PhaseGround:
		return "GROUND"
	case PhaseClimb:
		return "CLIMB"
	case PhaseCruise:
		return "CRUISE"
	case PhaseLevel:
		return "LEVEL"
	case PhaseDescent:
		return "DESCENT"
	default:
		return "NA"
	}
}

// ParsePhase converts a phase label into a Phase.
func ParsePhase(label string) (Phase, error) {
	switch label {
	case "GROUND", "GND":
		return PhaseGround, nil
	case "CLIMB", "CL":
		return PhaseClimb, nil
	case "CRUISE", "CR":
		return PhaseCruise, nil
	case "LEVEL", "LVL":
		return PhaseLevel, nil
	case "DESCENT", "DE":
		return PhaseDescent, nil
	case "NA", "":
		return PhaseNA, nil
	}
	return PhaseNA, fmt.Errorf("unknown phase label: %q", label)
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
