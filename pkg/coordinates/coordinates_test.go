package coordinates

import (
	"math"
	"testing"
)

// TestDistanceKm tests great-circle distances against known values.
func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name      string
		from      Geographic
		to        Geographic
		want      float64
		tolerance float64
	}{
		{
			name:      "Same point",
			from:      Geographic{Latitude: 48.35, Longitude: 11.78},
			to:        Geographic{Latitude: 48.35, Longitude: 11.78},
			want:      0.0,
			tolerance: 1e-9,
		},
		{
			name:      "One degree of latitude",
			from:      Geographic{Latitude: 0.0, Longitude: 0.0},
			to:        Geographic{Latitude: 1.0, Longitude: 0.0},
			want:      111.195,
			tolerance: 0.01,
		},
		{
			name:      "One degree of longitude at equator",
			from:      Geographic{Latitude: 0.0, Longitude: 10.0},
			to:        Geographic{Latitude: 0.0, Longitude: 11.0},
			want:      111.195,
			tolerance: 0.01,
		},
		{
			name:      "Munich to Frankfurt",
			from:      Geographic{Latitude: 48.3538, Longitude: 11.7861},
			to:        Geographic{Latitude: 50.0333, Longitude: 8.5706},
			want:      298.0,
			tolerance: 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.from, tt.to)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f ± %f", got, tt.want, tt.tolerance)
			}
		})
	}
}

// TestDistanceKmAtHeight tests that flight height stretches the distance.
func TestDistanceKmAtHeight(t *testing.T) {
	from := Geographic{Latitude: 0.0, Longitude: 0.0}
	to := Geographic{Latitude: 1.0, Longitude: 0.0}

	surface := DistanceKm(from, to)
	atZero := DistanceKmAtHeight(from, to, 0)
	if math.Abs(surface-atZero) > 1e-9 {
		t.Errorf("Expected zero height to equal surface distance, got %f vs %f", atZero, surface)
	}

	atCruise := DistanceKmAtHeight(from, to, 11000)
	ratio := atCruise / surface
	want := (EarthRadiusKm + 11.0) / EarthRadiusKm
	if math.Abs(ratio-want) > 1e-9 {
		t.Errorf("Expected ratio %f, got %f", want, ratio)
	}
}

// TestBearing tests initial bearing for the four cardinal directions.
func TestBearing(t *testing.T) {
	origin := Geographic{Latitude: 40.0, Longitude: -74.0}
	tests := []struct {
		name string
		to   Geographic
		want float64
	}{
		{"North", Geographic{Latitude: 41.0, Longitude: -74.0}, 0.0},
		{"East", Geographic{Latitude: 40.0, Longitude: -73.0}, 89.7},
		{"South", Geographic{Latitude: 39.0, Longitude: -74.0}, 180.0},
		{"West", Geographic{Latitude: 40.0, Longitude: -75.0}, 270.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if math.Abs(got-tt.want) > 0.5 {
				t.Errorf("Bearing() = %f, want ~%f", got, tt.want)
			}
		})
	}
}

// TestNormalizeLongitude tests wrapping of provider longitudes.
func TestNormalizeLongitude(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.0, 0.0},
		{179.5, 179.5},
		{180.0, -180.0},
		{270.0, -90.0},
		{359.0, -1.0},
		{-190.0, 170.0},
	}

	for _, tt := range tests {
		got := NormalizeLongitude(tt.in)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeLongitude(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

// TestNormalizeAzimuth tests azimuth wrapping.
func TestNormalizeAzimuth(t *testing.T) {
	if got := NormalizeAzimuth(-10); math.Abs(got-350) > 1e-9 {
		t.Errorf("Expected 350, got %f", got)
	}
	if got := NormalizeAzimuth(725); math.Abs(got-5) > 1e-9 {
		t.Errorf("Expected 5, got %f", got)
	}
}
