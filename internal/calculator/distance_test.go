package calculator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lon1      float64
		lat2      float64
		lon2      float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "Same location",
			lat1:      42.1875,
			lon1:      -8.708333,
			lat2:      42.1875,
			lon2:      -8.708333,
			expected:  0.0,
			tolerance: 0.001,
		},
		{
			name:      "New York to Boston (~306 km)",
			lat1:      40.7128,
			lon1:      -74.0060,
			lat2:      42.3601,
			lon2:      -71.0589,
			expected:  306.0,
			tolerance: 5.0,
		},
		{
			name:      "IN52PE to FN31 (~5194 km)",
			lat1:      42.1875,
			lon1:      -8.708333,
			lat2:      41.5,
			lon2:      -73.0,
			expected:  5193.7,
			tolerance: 1.0,
		},
		{
			name:      "Quarter of the equator",
			lat1:      0.0,
			lon1:      0.0,
			lat2:      0.0,
			lon2:      90.0,
			expected:  10007.5,
			tolerance: 1.0,
		},
		{
			name:      "Equator crossing",
			lat1:      1.0,
			lon1:      0.0,
			lat2:      -1.0,
			lon2:      0.0,
			expected:  222.4,
			tolerance: 1.0,
		},
		{
			name:      "Antipodal points",
			lat1:      0.0,
			lon1:      0.0,
			lat2:      0.0,
			lon2:      180.0,
			expected:  math.Pi * EarthRadiusKM,
			tolerance: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("Haversine() = %.2f km, expected %.2f km (±%.2f km)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{42.1875, -8.708333, 41.5, -73.0},
		{-33.86, 151.21, 51.51, -0.13},
		{89.9, 10, -89.9, -170},
		{0, 179.9, 0, -179.9},
		{12.5, -45.25, 12.5, -45.25},
	}

	for _, p := range pairs {
		ab := Haversine(p[0], p[1], p[2], p[3])
		ba := Haversine(p[2], p[3], p[0], p[1])
		if ab == 0 {
			assert.Zero(t, ba)
			continue
		}
		assert.InEpsilon(t, ab, ba, 1e-6, "distance should be symmetric for %v", p)
	}
}

func TestHaversine_NearHome(t *testing.T) {
	homeLat := 42.1875
	homeLon := -8.708333

	tests := []struct {
		name      string
		lat       float64
		lon       float64
		threshold float64
	}{
		{
			name:      "At home",
			lat:       42.1875,
			lon:       -8.708333,
			threshold: 0.001,
		},
		{
			name:      "Same subsquare",
			lat:       42.19,
			lon:       -8.71,
			threshold: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			distance := Haversine(homeLat, homeLon, tt.lat, tt.lon)
			if distance > tt.threshold {
				t.Errorf("Haversine() = %.4f km, expected < %.4f km", distance, tt.threshold)
			}
		})
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name     string
		lat1     float64
		lon1     float64
		lat2     float64
		lon2     float64
		expected float64
	}{
		{"due north", 0, 0, 10, 0, 0},
		{"due east", 0, 0, 0, 90, 90},
		{"due south", 0, 0, -10, 0, 180},
		{"due west", 0, 0, 0, -10, 270},
		{"IN52PE to FN31", 42.1875, -8.708333, 41.5, -73.0, 292.01},
		{"FN31 to IN52PE", 41.5, -73.0, 42.1875, -8.708333, 66.52},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Bearing(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, result, 0.01)
			assert.GreaterOrEqual(t, result, 0.0)
			assert.Less(t, result, 360.0)
		})
	}
}

func TestBearing_NotSimpleNegation(t *testing.T) {
	forward := Bearing(42.1875, -8.708333, 41.5, -73.0)
	back := Bearing(41.5, -73.0, 42.1875, -8.708333)

	// On a sphere the back azimuth differs from forward ± 180 away from the equator
	assert.Greater(t, math.Abs(math.Mod(forward+180, 360)-back), 1.0)
}

func TestBearing_CoincidentPoints(t *testing.T) {
	assert.Equal(t, 0.0, Bearing(10, 20, 10, 20))
}

func TestBearingBucket(t *testing.T) {
	tests := []struct {
		bearing  float64
		expected int
	}{
		{0, 0},
		{9.999, 0},
		{10, 10},
		{287, 280},
		{292.01, 290},
		{359.9, 350},
		{360, 0},
		{-5, 350},
	}

	for _, tt := range tests {
		if got := BearingBucket(tt.bearing); got != tt.expected {
			t.Errorf("BearingBucket(%.3f) = %d, expected %d", tt.bearing, got, tt.expected)
		}
	}
}

func TestDistance_Models(t *testing.T) {
	home := Location{Latitude: 42.1875, Longitude: -8.708333}
	contact := Location{Latitude: 41.5, Longitude: -73.0}

	spherical := Distance(Spherical, home, contact)
	ellipsoidal := Distance(Ellipsoidal, home, contact)

	assert.InDelta(t, 5193.7, spherical, 1.0)
	// WGS-84 and the mean sphere agree within half a percent at this range
	assert.InEpsilon(t, spherical, ellipsoidal, 0.005)
	assert.Zero(t, Distance(Ellipsoidal, home, home))
}

func TestParseDistanceModel(t *testing.T) {
	model, err := ParseDistanceModel("")
	require.NoError(t, err)
	assert.Equal(t, Spherical, model)

	model, err = ParseDistanceModel(" Ellipsoidal ")
	require.NoError(t, err)
	assert.Equal(t, Ellipsoidal, model)

	_, err = ParseDistanceModel("flat")
	assert.Error(t, err)
}

func TestLocation_Valid(t *testing.T) {
	assert.True(t, Location{Latitude: 90, Longitude: 180}.Valid())
	assert.True(t, Location{Latitude: -90, Longitude: -180}.Valid())
	assert.False(t, Location{Latitude: 90.1, Longitude: 0}.Valid())
	assert.False(t, Location{Latitude: 0, Longitude: math.NaN()}.Valid())
	assert.False(t, Location{Latitude: math.Inf(1), Longitude: 0}.Valid())
}

func TestCalculateMetrics(t *testing.T) {
	t.Run("empty distances", func(t *testing.T) {
		metrics := CalculateMetrics(nil)
		if metrics.TotalLocations != 0 {
			t.Errorf("expected TotalLocations 0, got %d", metrics.TotalLocations)
		}
		if metrics.MinDistanceKM != 0 {
			t.Errorf("expected MinDistanceKM 0, got %.2f", metrics.MinDistanceKM)
		}
	})

	t.Run("multiple distances", func(t *testing.T) {
		metrics := CalculateMetrics([]float64{100, 5000, 900})
		assert.Equal(t, 3, metrics.TotalLocations)
		assert.Equal(t, 6000.0, metrics.TotalDistanceKM)
		assert.Equal(t, 5000.0, metrics.MaxDistanceKM)
		assert.Equal(t, 100.0, metrics.MinDistanceKM)
		assert.Equal(t, 2000.0, metrics.AvgDistanceKM)
	})
}

func TestDegreesToRadians(t *testing.T) {
	tests := []struct {
		degrees  float64
		expected float64
	}{
		{0, 0},
		{90, math.Pi / 2},
		{180, math.Pi},
		{360, 2 * math.Pi},
		{-90, -math.Pi / 2},
	}

	for _, tt := range tests {
		result := degreesToRadians(tt.degrees)
		if math.Abs(result-tt.expected) > 0.0001 {
			t.Errorf("degreesToRadians(%.2f) = %.4f, expected %.4f", tt.degrees, result, tt.expected)
		}
		if back := radiansToDegrees(result); math.Abs(back-tt.degrees) > 1e-9 {
			t.Errorf("radiansToDegrees(%.4f) = %.4f, expected %.2f", result, back, tt.degrees)
		}
	}
}

func BenchmarkHaversine(b *testing.B) {
	lat1, lon1 := 42.1875, -8.708333
	lat2, lon2 := 41.5, -73.0

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Haversine(lat1, lon1, lat2, lon2)
	}
}

func BenchmarkBearing(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Bearing(42.1875, -8.708333, 41.5, -73.0)
	}
}
