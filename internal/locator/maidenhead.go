// Package locator turns the location fields of a logged contact into a
// coordinate: Maidenhead grid locators and ADIF "N42 52.560" style
// latitude/longitude strings.
package locator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/stuartshay/qso-mapper/internal/calculator"
)

// ErrMalformedLocator is returned for strings that are not a Maidenhead locator
var ErrMalformedLocator = errors.New("malformed maidenhead locator")

// Sizes in degrees of each locator pair: field, square, subsquare, extended square.
var (
	pairLonSize = [4]float64{20, 2, 2.0 / 24, 2.0 / 240}
	pairLatSize = [4]float64{10, 1, 1.0 / 24, 1.0 / 240}
)

// Cell is the rectangle covered by a locator, in decimal degrees
type Cell struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Center returns the midpoint of the cell, the point a locator decodes to
func (c Cell) Center() calculator.Location {
	return calculator.Location{
		Latitude:  (c.South + c.North) / 2,
		Longitude: (c.West + c.East) / 2,
	}
}

// Contains reports whether loc lies inside the cell, edges included
func (c Cell) Contains(loc calculator.Location) bool {
	return loc.Latitude >= c.South && loc.Latitude <= c.North &&
		loc.Longitude >= c.West && loc.Longitude <= c.East
}

// Bounds returns the cell of a 2, 4, 6 or 8 character locator. Letters are
// case-insensitive and surrounding whitespace is ignored.
func Bounds(locator string) (Cell, error) {
	loc := strings.ToUpper(strings.TrimSpace(locator))
	if len(loc) < 2 || len(loc) > 8 || len(loc)%2 != 0 {
		return Cell{}, fmt.Errorf("%w: %q has length %d (want 2, 4, 6 or 8)", ErrMalformedLocator, locator, len(loc))
	}

	west, south := -180.0, -90.0
	for pair := 0; pair < len(loc)/2; pair++ {
		lonIdx, latIdx, ok := pairIndex(pair, loc[2*pair], loc[2*pair+1])
		if !ok {
			return Cell{}, fmt.Errorf("%w: %q has invalid characters at position %d", ErrMalformedLocator, locator, 2*pair+1)
		}
		west += float64(lonIdx) * pairLonSize[pair]
		south += float64(latIdx) * pairLatSize[pair]
	}

	last := len(loc)/2 - 1
	return Cell{
		South: south,
		West:  west,
		North: south + pairLatSize[last],
		East:  west + pairLonSize[last],
	}, nil
}

// pairIndex validates one character pair and returns its lon/lat indices.
// Fields use A-R, squares and extended squares 0-9, subsquares A-X.
func pairIndex(pair int, lonChar, latChar byte) (int, int, bool) {
	switch pair {
	case 0:
		return letterIndex(lonChar, 'R'), letterIndex(latChar, 'R'), inLetters(lonChar, 'R') && inLetters(latChar, 'R')
	case 2:
		return letterIndex(lonChar, 'X'), letterIndex(latChar, 'X'), inLetters(lonChar, 'X') && inLetters(latChar, 'X')
	default:
		return int(lonChar - '0'), int(latChar - '0'), isDigit(lonChar) && isDigit(latChar)
	}
}

func inLetters(c, last byte) bool { return c >= 'A' && c <= last }

func letterIndex(c, last byte) int {
	if !inLetters(c, last) {
		return 0
	}
	return int(c - 'A')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Decode returns the center of the locator's cell
func Decode(locator string) (calculator.Location, error) {
	cell, err := Bounds(locator)
	if err != nil {
		return calculator.Location{}, err
	}
	return cell.Center(), nil
}

// Valid reports whether the string is a syntactically valid locator
func Valid(locator string) bool {
	_, err := Bounds(locator)
	return err == nil
}

// Encode returns the locator of the given precision (2, 4, 6 or 8 characters)
// containing loc. Subsquare letters are lower case, as usually written.
func Encode(loc calculator.Location, precision int) (string, error) {
	if precision < 2 || precision > 8 || precision%2 != 0 {
		return "", fmt.Errorf("%w: precision %d (want 2, 4, 6 or 8)", ErrMalformedLocator, precision)
	}
	if !loc.Valid() {
		return "", fmt.Errorf("%w: location %s out of range", ErrMalformedLocator, loc)
	}

	// Shift into [0, 360) x [0, 180), keeping the north/east edges inside the last cell
	lon := math.Min(loc.Longitude+180, math.Nextafter(360, 0))
	lat := math.Min(loc.Latitude+90, math.Nextafter(180, 0))

	var b strings.Builder
	for pair := 0; pair < precision/2; pair++ {
		lonIdx := int(lon / pairLonSize[pair])
		latIdx := int(lat / pairLatSize[pair])
		lon -= float64(lonIdx) * pairLonSize[pair]
		lat -= float64(latIdx) * pairLatSize[pair]

		switch pair {
		case 0:
			b.WriteByte(byte('A' + lonIdx))
			b.WriteByte(byte('A' + latIdx))
		case 2:
			b.WriteByte(byte('a' + min(lonIdx, 23)))
			b.WriteByte(byte('a' + min(latIdx, 23)))
		default:
			b.WriteByte(byte('0' + min(lonIdx, 9)))
			b.WriteByte(byte('0' + min(latIdx, 9)))
		}
	}
	return b.String(), nil
}
