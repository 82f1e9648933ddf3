package trace

import (
	"github.com/unklstewy/ads-bfuel/pkg/coordinates"
)

// AddDistance returns a copy of the series with the distance column filled:
// the great-circle distance in kilometers from the previous sample, evaluated
// at the current sample's altitude. The first sample gets 0.
func AddDistance(s Series) (Series, error) {
	if err := s.Require(ColTimestamp | ColLatitude | ColLongitude | ColAltitude); err != nil {
		return Series{}, err
	}

	out := s.Clone()
	for i := range out.Samples {
		if i == 0 {
			out.Samples[i].Distance = 0
			continue
		}
		prev := out.Samples[i-1]
		cur := out.Samples[i]
		out.Samples[i].Distance = coordinates.DistanceKmAtHeight(
			coordinates.Geographic{Latitude: prev.Latitude, Longitude: prev.Longitude},
			coordinates.Geographic{Latitude: cur.Latitude, Longitude: cur.Longitude},
			cur.Altitude*coordinates.FeetToMeters,
		)
	}
	out.Mark(ColDistance)
	return out, nil
}

// TotalDistance returns the summed distance column in kilometers.
func (s Series) TotalDistance() float64 {
	var total float64
	for _, smp := range s.Samples {
		total += smp.Distance
	}
	return total
}

// Span returns the great-circle distance in kilometers between the first and
// last sample positions.
func (s Series) Span() float64 {
	if len(s.Samples) < 2 {
		return 0
	}
	first := s.Samples[0]
	last := s.Samples[len(s.Samples)-1]
	return coordinates.DistanceKm(
		coordinates.Geographic{Latitude: first.Latitude, Longitude: first.Longitude},
		coordinates.Geographic{Latitude: last.Latitude, Longitude: last.Longitude},
	)
}
