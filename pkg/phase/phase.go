// Package phase labels telemetry samples with a flight phase using fuzzy
// membership rules on altitude, rate of climb and ground speed.
package phase

import (
	"math"
	"time"

	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// MinStrength is the rule activation below which a sample is labelled NA.
const MinStrength = 0.1

// SmoothingWindow is the length of the majority-vote window.
const SmoothingWindow = 60 * time.Second

// RequiredColumns lists the columns Classify reads.
const RequiredColumns = trace.ColTimestamp | trace.ColAltitude | trace.ColGroundSpeed | trace.ColVerticalRate

// Classify fills the phase column. The input series is not modified.
func Classify(s trace.Series) (trace.Series, error) {
	if err := s.Require(RequiredColumns); err != nil {
		return trace.Series{}, err
	}

	out := s.Clone()
	for i := range out.Samples {
		smp := &out.Samples[i]
		smp.Phase = Label(smp.Altitude, smp.VerticalRate, smp.GroundSpeed)
	}
	Smooth(out.Samples, SmoothingWindow)
	out.Mark(trace.ColPhase)
	return out, nil
}

// Label returns the phase of a single state: altitude in ft, rate of climb
// in ft/min and ground speed in kt.
func Label(alt, roc, spd float64) trace.Phase {
	altGnd := zmf(alt, 0, 200)
	altLo := gauss(alt, 10000, 10000)
	altHi := gauss(alt, 35000, 20000)

	rocZero := gauss(roc, 0, 100)
	rocPlus := smf(roc, 10, 1000)
	rocMinus := zmf(roc, -1000, -10)

	spdHi := gauss(spd, 600, 100)
	spdMd := gauss(spd, 300, 100)
	spdLo := gauss(spd, 0, 50)

	rules := [...]struct {
		phase    trace.Phase
		strength float64
	}{
		{trace.PhaseGround, min3(altGnd, rocZero, spdLo)},
		{trace.PhaseClimb, min3(altLo, rocPlus, spdMd)},
		{trace.PhaseDescent, min3(altLo, rocMinus, spdMd)},
		{trace.PhaseCruise, min3(altHi, rocZero, spdHi)},
		{trace.PhaseLevel, min3(altLo, rocZero, spdMd)},
	}

	best := trace.PhaseNA
	strength := 0.0
	for _, r := range rules {
		if r.strength > strength {
			best, strength = r.phase, r.strength
		}
	}
	if strength < MinStrength {
		return trace.PhaseNA
	}
	return best
}

// Smooth replaces each label with the most frequent label of its time
// window. Windows start at the first sample and are window long. Ties go to
// the label that reached the winning count first.
func Smooth(samples []trace.Sample, window time.Duration) {
	if len(samples) == 0 || window <= 0 {
		return
	}

	t0 := samples[0].Timestamp
	start := 0
	for start < len(samples) {
		bucket := samples[start].Timestamp.Sub(t0) / window
		end := start + 1
		for end < len(samples) && samples[end].Timestamp.Sub(t0)/window == bucket {
			end++
		}

		var counts [trace.NumPhases]int
		best := trace.PhaseNA
		seen := false
		for i := start; i < end; i++ {
			p := samples[i].Phase
			if int(p) >= trace.NumPhases {
				continue
			}
			counts[p]++
			if !seen || counts[p] > counts[best] {
				best, seen = p, true
			}
		}
		for i := start; i < end; i++ {
			samples[i].Phase = best
		}
		start = end
	}
}

func gauss(x, mean, sigma float64) float64 {
	d := x - mean
	return math.Exp(-d * d / (2 * sigma * sigma))
}

// zmf is the Z-shaped membership function falling from 1 at a to 0 at b.
func zmf(x, a, b float64) float64 {
	switch {
	case x <= a:
		return 1
	case x >= b:
		return 0
	case x <= (a+b)/2:
		r := (x - a) / (b - a)
		return 1 - 2*r*r
	default:
		r := (x - b) / (b - a)
		return 2 * r * r
	}
}

// smf is the S-shaped membership function rising from 0 at a to 1 at b.
func smf(x, a, b float64) float64 {
	return 1 - zmf(x, a, b)
}

func min3(a, b, c float64) float64 {
	return math.Min(a, math.Min(b, c))
}
