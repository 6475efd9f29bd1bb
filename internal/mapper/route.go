package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stuartshay/qso-mapper/internal/calculator"
	"github.com/stuartshay/qso-mapper/internal/locator"
)

// Route is the geometry between two arbitrary points
type Route struct {
	From          calculator.Location   `json:"from"`
	To            calculator.Location   `json:"to"`
	DistanceKM    float64               `json:"distance_km"`
	BearingDeg    float64               `json:"bearing_deg"`
	BearingBucket int                   `json:"bearing_bucket"`
	Points        []calculator.Location `json:"points,omitempty"`
	Polyline      string                `json:"polyline,omitempty"`
}

// ParseEndpoint accepts a maidenhead locator ("IN52PE") or a decimal
// "lat,lon" pair
func ParseEndpoint(value string) (calculator.Location, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return calculator.Location{}, fmt.Errorf("empty endpoint")
	}

	lat, lon, found := strings.Cut(value, ",")
	if !found {
		return locator.Decode(value)
	}

	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return calculator.Location{}, fmt.Errorf("invalid latitude %q", lat)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return calculator.Location{}, fmt.Errorf("invalid longitude %q", lon)
	}
	loc := calculator.Location{Latitude: la, Longitude: lo}
	if !loc.Valid() {
		return calculator.Location{}, fmt.Errorf("coordinate %s out of range", loc)
	}
	return loc, nil
}

// ComputeRoute measures to from from and samples the path between them
func ComputeRoute(from, to calculator.Location, opts Options) (*Route, error) {
	if opts.Model == "" {
		opts.Model = calculator.Spherical
	}
	geo, err := Measure(from, to, opts)
	if err != nil {
		return nil, err
	}
	return &Route{
		From:          from,
		To:            to,
		DistanceKM:    geo.DistanceKM,
		BearingDeg:    geo.BearingDeg,
		BearingBucket: geo.BearingBucket,
		Points:        geo.Path,
		Polyline:      geo.Polyline,
	}, nil
}
