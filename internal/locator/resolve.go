package locator

import (
	"errors"
	"fmt"

	"github.com/stuartshay/qso-mapper/internal/calculator"
)

// ADIF field names read by Resolve
const (
	FieldGrid      = "GRIDSQUARE"
	FieldLatitude  = "LAT"
	FieldLongitude = "LON"
)

// ErrUnresolvableCoordinate is returned when neither the grid locator nor the
// latitude/longitude pair of a record yields a coordinate
var ErrUnresolvableCoordinate = errors.New("unresolvable coordinate")

// Source records which fields a position was resolved from
type Source string

// Resolution sources
const (
	SourceNone   Source = ""
	SourceGrid   Source = "grid"
	SourceLatLon Source = "latlon"
)

// Fields gives read access to a record's named fields. Missing fields are
// reported as the empty string.
type Fields interface {
	Get(name string) string
}

// Resolve derives a contact's position. The grid locator wins when it is
// valid; otherwise both LAT and LON must parse. Malformed values never
// abort resolution, they only move on to the next source. The returned error
// wraps ErrUnresolvableCoordinate and describes why each source failed.
func Resolve(fields Fields) (calculator.Location, Source, error) {
	var gridErr error
	if grid := fields.Get(FieldGrid); grid != "" {
		loc, err := Decode(grid)
		if err == nil {
			return loc, SourceGrid, nil
		}
		gridErr = err
	}

	latStr := fields.Get(FieldLatitude)
	lonStr := fields.Get(FieldLongitude)
	if latStr == "" || lonStr == "" {
		if gridErr != nil {
			return calculator.Location{}, SourceNone, fmt.Errorf("%w: %v", ErrUnresolvableCoordinate, gridErr)
		}
		return calculator.Location{}, SourceNone, fmt.Errorf("%w: no location fields", ErrUnresolvableCoordinate)
	}

	lat, latErr := ParseCoordinate(latStr, Latitude)
	lon, lonErr := ParseCoordinate(lonStr, Longitude)
	if err := errors.Join(gridErr, latErr, lonErr); latErr != nil || lonErr != nil {
		return calculator.Location{}, SourceNone, fmt.Errorf("%w: %v", ErrUnresolvableCoordinate, err)
	}

	return calculator.Location{Latitude: lat, Longitude: lon}, SourceLatLon, nil
}

// FieldMap adapts a plain map to Fields
type FieldMap map[string]string

// Get returns the named field or ""
func (m FieldMap) Get(name string) string {
	return m[name]
}
