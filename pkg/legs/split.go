package legs

import (
	"sort"

	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// Split groups the samples of a leg-labelled series by leg id and returns one
// independent series per leg, ordered by leg id. Legs with fewer than two
// samples are skipped since nothing can be integrated over them.
func Split(s trace.Series) ([]trace.Series, error) {
	if err := s.Require(trace.ColLeg); err != nil {
		return nil, err
	}

	groups := make(map[int][]trace.Sample)
	var ids []int
	for _, smp := range s.Samples {
		if _, ok := groups[smp.Leg]; !ok {
			ids = append(ids, smp.Leg)
		}
		groups[smp.Leg] = append(groups[smp.Leg], smp)
	}
	sort.Ints(ids)

	out := make([]trace.Series, 0, len(ids))
	for _, id := range ids {
		if len(groups[id]) < 2 {
			continue
		}
		out = append(out, s.WithSamples(groups[id]))
	}
	return out, nil
}

// SplitCondition reports whether two consecutive chunks of a series belong to
// different legs: the last leg id of a differs from the first leg id of b.
func SplitCondition(a, b trace.Series) (bool, error) {
	if err := a.Require(trace.ColLeg); err != nil {
		return false, err
	}
	if err := b.Require(trace.ColLeg); err != nil {
		return false, err
	}
	if a.Len() == 0 || b.Len() == 0 {
		return false, &trace.EmptySeriesError{Op: "split condition"}
	}
	return a.Samples[a.Len()-1].Leg != b.Samples[0].Leg, nil
}
