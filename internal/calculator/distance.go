// Package calculator provides the great-circle geometry used to place contacts
// relative to a home station: haversine and ellipsoidal distances, initial
// bearings, bearing buckets and sampled great-circle paths.
package calculator

import (
	"fmt"
	"math"
	"strings"

	"github.com/jftuga/geodist"
)

const (
	// EarthRadiusKM is the Earth's mean radius in kilometers
	EarthRadiusKM = 6371.0

	// BearingBucketWidth is the width in degrees of a bearing histogram bin
	BearingBucketWidth = 10
)

// Location represents a coordinate in signed decimal degrees
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether the location is finite and inside the lat/lon ranges
func (l Location) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) ||
		math.IsInf(l.Latitude, 0) || math.IsInf(l.Longitude, 0) {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// String formats the location as "lat,lon" with six decimals
func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Latitude, l.Longitude)
}

// DistanceModel selects the earth model used for distances
type DistanceModel string

// Supported distance models
const (
	Spherical   DistanceModel = "spherical"
	Ellipsoidal DistanceModel = "ellipsoidal"
)

// ParseDistanceModel converts a configuration value into a DistanceModel.
// An empty value selects the spherical model.
func ParseDistanceModel(value string) (DistanceModel, error) {
	switch DistanceModel(strings.ToLower(strings.TrimSpace(value))) {
	case "", Spherical:
		return Spherical, nil
	case Ellipsoidal:
		return Ellipsoidal, nil
	default:
		return "", fmt.Errorf("unknown distance model %q (want %s or %s)", value, Spherical, Ellipsoidal)
	}
}

// Distance returns the distance in kilometers between two locations using the
// given model. The ellipsoidal model falls back to haversine when Vincenty's
// iteration does not converge (nearly antipodal points).
func Distance(model DistanceModel, from, to Location) float64 {
	if model == Ellipsoidal {
		if km, err := Vincenty(from, to); err == nil {
			return km
		}
	}
	return Haversine(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
}

// Vincenty calculates the distance in kilometers on the WGS-84 ellipsoid
func Vincenty(from, to Location) (float64, error) {
	if from == to {
		return 0, nil
	}
	_, km, err := geodist.VincentyDistance(
		geodist.Coord{Lat: from.Latitude, Lon: from.Longitude},
		geodist.Coord{Lat: to.Latitude, Lon: to.Longitude},
	)
	if err != nil {
		return 0, fmt.Errorf("vincenty distance %s -> %s: %w", from, to, err)
	}
	return km, nil
}

// Haversine calculates the great-circle distance between two points
// on the Earth's surface given their latitudes and longitudes in decimal degrees
//
// Formula:
// a = sin²(Δφ/2) + cos φ1 ⋅ cos φ2 ⋅ sin²(Δλ/2)
// c = 2 ⋅ atan2( √a, √(1−a) )
// d = R ⋅ c
//
// where:
// φ is latitude, λ is longitude, R is earth's radius (6371 km)
// Δφ is the difference in latitude, Δλ is the difference in longitude
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return EarthRadiusKM * centralAngle(lat1, lon1, lat2, lon2)
}

// centralAngle returns the angle in radians subtended at the Earth's center
// by two points, using the haversine form
func centralAngle(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := degreesToRadians(lat1)
	lon1Rad := degreesToRadians(lon1)
	lat2Rad := degreesToRadians(lat2)
	lon2Rad := degreesToRadians(lon2)

	deltaLat := lat2Rad - lat1Rad
	deltaLon := lon2Rad - lon1Rad

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	// Rounding can push a slightly above 1 for antipodal points
	a = math.Min(1, math.Max(0, a))

	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Bearing returns the initial bearing (forward azimuth) in degrees from point 1
// to point 2, clockwise from true north and normalized into [0, 360).
//
// Formula:
// θ = atan2( sin Δλ ⋅ cos φ2 , cos φ1 ⋅ sin φ2 − sin φ1 ⋅ cos φ2 ⋅ cos Δλ )
//
// The result is not meaningful when both points coincide; 0 is returned then.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := degreesToRadians(lat1)
	lat2Rad := degreesToRadians(lat2)
	deltaLon := degreesToRadians(lon2 - lon1)

	x := math.Sin(deltaLon) * math.Cos(lat2Rad)
	y := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon)

	return normalizeBearing(radiansToDegrees(math.Atan2(x, y)))
}

// BearingFromHome calculates the initial bearing from the home coordinates
// towards a location
func BearingFromHome(homeLat, homeLon, lat, lon float64) float64 {
	return Bearing(homeLat, homeLon, lat, lon)
}

// BearingBucket returns the lower edge of the 10° histogram bin holding the
// bearing: floor(bearing / 10) * 10.
func BearingBucket(bearing float64) int {
	return int(math.Floor(normalizeBearing(bearing)/BearingBucketWidth)) * BearingBucketWidth
}

func normalizeBearing(deg float64) float64 {
	deg = math.Mod(deg+360, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// degreesToRadians converts degrees to radians
func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// radiansToDegrees converts radians to degrees
func radiansToDegrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

// DistanceMetrics holds calculated distance statistics
type DistanceMetrics struct {
	TotalDistanceKM float64 `json:"total_distance_km"`
	MaxDistanceKM   float64 `json:"max_distance_km"`
	MinDistanceKM   float64 `json:"min_distance_km"`
	TotalLocations  int     `json:"total_locations"`
	AvgDistanceKM   float64 `json:"avg_distance_km"`
}

// CalculateMetrics computes distance metrics from a slice of already computed
// distances in kilometers
func CalculateMetrics(distances []float64) DistanceMetrics {
	if len(distances) == 0 {
		return DistanceMetrics{}
	}

	metrics := DistanceMetrics{
		TotalLocations: len(distances),
		MinDistanceKM:  math.MaxFloat64,
	}

	var totalDistance float64

	for _, distance := range distances {
		totalDistance += distance

		if distance > metrics.MaxDistanceKM {
			metrics.MaxDistanceKM = distance
		}
		if distance < metrics.MinDistanceKM {
			metrics.MinDistanceKM = distance
		}
	}

	metrics.TotalDistanceKM = totalDistance
	metrics.AvgDistanceKM = totalDistance / float64(len(distances))

	return metrics
}
