package trace

// Run is a contiguous range of samples sharing one leg id.
// End is exclusive.
type Run struct {
	Leg   int
	Start int
	End   int
}

// Len returns the number of samples in the run.
func (r Run) Len() int { return r.End - r.Start }

// LegRuns returns the contiguous leg runs of the series in order.
// Requires the leg column.
func (s Series) LegRuns() ([]Run, error) {
	if err := s.Require(ColLeg); err != nil {
		return nil, err
	}
	var runs []Run
	for i, smp := range s.Samples {
		if len(runs) == 0 || runs[len(runs)-1].Leg != smp.Leg {
			runs = append(runs, Run{Leg: smp.Leg, Start: i, End: i + 1})
			continue
		}
		runs[len(runs)-1].End = i + 1
	}
	return runs, nil
}

// Extract returns a copy of the samples in r as an independent series.
func (s Series) Extract(r Run) Series {
	samples := make([]Sample, r.Len())
	copy(samples, s.Samples[r.Start:r.End])
	return s.WithSamples(samples)
}
