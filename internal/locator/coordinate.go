package locator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedCoordinate is returned for latitude/longitude strings that do not
// follow the ADIF "<hemisphere><degrees> <minutes>" grammar
var ErrMalformedCoordinate = errors.New("malformed ADIF coordinate")

// Axis selects which hemisphere letters and degree range apply to a coordinate
type Axis int

const (
	// Latitude accepts N/S and degrees up to 90
	Latitude Axis = iota
	// Longitude accepts E/W and degrees up to 180
	Longitude
)

func (a Axis) String() string {
	if a == Longitude {
		return "longitude"
	}
	return "latitude"
}

func (a Axis) maxDegrees() float64 {
	if a == Longitude {
		return 180
	}
	return 90
}

// hemisphereSign returns the sign of a hemisphere letter valid for the axis
func (a Axis) hemisphereSign(h byte) (float64, bool) {
	switch {
	case a == Latitude && h == 'N', a == Longitude && h == 'E':
		return 1, true
	case a == Latitude && h == 'S', a == Longitude && h == 'W':
		return -1, true
	}
	return 0, false
}

// ParseCoordinate converts an ADIF location such as "N42 52.560" or
// "W008 32.700" to signed decimal degrees: degrees + minutes/60, negated for
// S and W. The hemisphere letter is optional; without it the value is positive.
func ParseCoordinate(value string, axis Axis) (float64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("%w: empty %s", ErrMalformedCoordinate, axis)
	}

	sign := 1.0
	if c := s[0] &^ 0x20; c >= 'A' && c <= 'Z' {
		hemiSign, ok := axis.hemisphereSign(c)
		if !ok {
			return 0, fmt.Errorf("%w: %q has invalid %s hemisphere %q", ErrMalformedCoordinate, value, axis, s[0])
		}
		sign = hemiSign
		s = s[1:]
	}

	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q needs degrees and minutes", ErrMalformedCoordinate, value)
	}

	degrees, err := parseUnsigned(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q degrees: %v", ErrMalformedCoordinate, value, err)
	}
	minutes, err := parseUnsigned(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q minutes: %v", ErrMalformedCoordinate, value, err)
	}
	if minutes >= 60 {
		return 0, fmt.Errorf("%w: %q minutes %.3f out of range", ErrMalformedCoordinate, value, minutes)
	}

	decimal := degrees + minutes/60
	if decimal > axis.maxDegrees() {
		return 0, fmt.Errorf("%w: %q exceeds %.0f degrees %s", ErrMalformedCoordinate, value, axis.maxDegrees(), axis)
	}

	return sign * decimal, nil
}

// parseUnsigned accepts plain decimal numbers without sign, exponent or NaN/Inf
func parseUnsigned(s string) (float64, error) {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) && s[i] != '.' {
			return 0, fmt.Errorf("unexpected character %q", s[i])
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %q out of range", s)
	}
	return v, nil
}

// FormatCoordinate renders decimal degrees in the ADIF XDDD MM.MMM form, e.g.
// FormatCoordinate(-8.545, Longitude) == "W008 32.700"
func FormatCoordinate(decimal float64, axis Axis) string {
	hemi := byte('N')
	if axis == Longitude {
		hemi = 'E'
	}
	if decimal < 0 {
		hemi = 'S'
		if axis == Longitude {
			hemi = 'W'
		}
		decimal = -decimal
	}

	degrees := math.Floor(decimal)
	minutes := math.Round((decimal-degrees)*60*1000) / 1000
	// Rounding to three decimals may carry into the next degree
	if minutes >= 60 {
		degrees++
		minutes = 0
	}
	return fmt.Sprintf("%c%03d %06.3f", hemi, int(degrees), minutes)
}
