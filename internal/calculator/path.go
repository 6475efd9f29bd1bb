package calculator

import (
	"errors"
	"fmt"
	"math"
)

const (
	// coincidentAngle is the central angle (radians) under which two points are
	// treated as the same point
	coincidentAngle = 1e-12

	// antipodalAngle is how close (radians) to π the central angle must be for the
	// endpoints to be treated as antipodal; haversine loses about 1e-8 there
	antipodalAngle = 1e-6
)

// MaxSampleCount is the largest number of path segments GreatCirclePath samples
const MaxSampleCount = 1000

var (
	// ErrInvalidSampleCount is returned when the segment count is outside
	// [1, MaxSampleCount]
	ErrInvalidSampleCount = fmt.Errorf("sample count must be between 1 and %d", MaxSampleCount)

	// ErrDegeneratePath is returned when no great circle can be formed through the
	// endpoints (non-finite or out of range coordinates)
	ErrDegeneratePath = errors.New("degenerate great-circle path")
)

// vec3 is a point on the unit sphere in earth-centered cartesian coordinates
type vec3 struct {
	x, y, z float64
}

func (v vec3) add(o vec3) vec3 {
	return vec3{v.x + o.x, v.y + o.y, v.z + o.z}
}

func (v vec3) scale(k float64) vec3 {
	return vec3{v.x * k, v.y * k, v.z * k}
}

func (v vec3) dot(o vec3) float64 {
	return v.x*o.x + v.y*o.y + v.z*o.z
}

func (v vec3) norm() float64 {
	return math.Sqrt(v.dot(v))
}

func toVector(loc Location) vec3 {
	lat := degreesToRadians(loc.Latitude)
	lon := degreesToRadians(loc.Longitude)
	return vec3{
		x: math.Cos(lat) * math.Cos(lon),
		y: math.Cos(lat) * math.Sin(lon),
		z: math.Sin(lat),
	}
}

func (v vec3) location() Location {
	lat := math.Atan2(v.z, math.Sqrt(v.x*v.x+v.y*v.y))
	lon := math.Atan2(v.y, v.x)
	return Location{
		Latitude:  radiansToDegrees(lat),
		Longitude: NormalizeLongitude(radiansToDegrees(lon)),
	}
}

// NormalizeLongitude wraps a longitude into (-180, 180] using
// ((lon + 540) mod 360) - 180, mapping -180 onto 180.
func NormalizeLongitude(lon float64) float64 {
	wrapped := math.Mod(lon+540, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	wrapped -= 180
	if wrapped <= -180 {
		wrapped += 360
	}
	return wrapped
}

// GreatCirclePath samples the shortest great-circle arc between two locations
// into n+1 points, from and to inclusive, using spherical linear interpolation:
//
// A = sin((1−f)⋅d) / sin d, B = sin(f⋅d) / sin d, P(f) = A⋅P1 + B⋅P2
//
// where d is the central angle and f runs over {0, 1/n, ..., 1}. Longitudes are
// normalized so that polylines crossing the antimeridian do not jump.
//
// Coincident endpoints yield the point repeated n+1 times. For antipodal
// endpoints every great circle is shortest; the one through the start point's
// meridian (heading north) is used.
func GreatCirclePath(from, to Location, n int) ([]Location, error) {
	if n < 1 || n > MaxSampleCount {
		return nil, ErrInvalidSampleCount
	}
	if !from.Valid() || !to.Valid() {
		return nil, ErrDegeneratePath
	}

	start := Location{Latitude: from.Latitude, Longitude: NormalizeLongitude(from.Longitude)}
	end := Location{Latitude: to.Latitude, Longitude: NormalizeLongitude(to.Longitude)}

	d := centralAngle(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	points := make([]Location, n+1)

	switch {
	case d < coincidentAngle:
		for i := range points {
			points[i] = start
		}
		return points, nil

	case math.Pi-d < antipodalAngle:
		p1 := toVector(from)
		w := perpendicular(p1)
		for i := range points {
			f := float64(i) / float64(n)
			points[i] = p1.scale(math.Cos(f * math.Pi)).add(w.scale(math.Sin(f * math.Pi))).location()
		}

	default:
		p1 := toVector(from)
		p2 := toVector(to)
		sinD := math.Sin(d)
		for i := range points {
			f := float64(i) / float64(n)
			a := math.Sin((1-f)*d) / sinD
			b := math.Sin(f*d) / sinD
			points[i] = p1.scale(a).add(p2.scale(b)).location()
		}
	}

	// Pin the endpoints so rounding never moves them
	points[0] = start
	points[n] = end

	return points, nil
}

// perpendicular returns a unit vector orthogonal to p pointing towards the
// north pole, or along the prime meridian plane when p is a pole.
func perpendicular(p vec3) vec3 {
	north := vec3{0, 0, 1}
	w := north.add(p.scale(-north.dot(p)))
	if w.norm() < antipodalAngle {
		w = vec3{1, 0, 0}.add(p.scale(-p.x))
	}
	return w.scale(1 / w.norm())
}
