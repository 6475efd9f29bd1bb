// Package export renders an enriched batch as CSV or KML for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/stuartshay/qso-mapper/internal/locator"
	"github.com/stuartshay/qso-mapper/internal/mapper"
)

// Format is a download format
type Format string

// Supported formats
const (
	FormatCSV  Format = "csv"
	FormatKML  Format = "kml"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatCSV, FormatKML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, kml or json)", value)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	default:
		return "application/json"
	}
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename builds "qso_map_<call>_<YYYYMMDD>.<ext>"
func Filename(callsign string, at time.Time, f Format) string {
	call := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(callsign), "-"), "-")
	if call == "" {
		return fmt.Sprintf("qso_map_%s.%s", at.UTC().Format("20060102"), f)
	}
	return fmt.Sprintf("qso_map_%s_%s.%s", call, at.UTC().Format("20060102"), f)
}

// CSVHeader is the column layout of WriteCSV
var CSVHeader = []string{
	"callsign", "qso_date", "time_on", "band", "frequency_mhz", "mode", "grid",
	"latitude", "longitude", "source", "distance_km", "bearing_deg", "bearing_bucket",
	"lat", "lon",
}

// WriteCSV writes one row per contact followed by a summary footer. The lat
// and lon columns repeat the position in ADIF notation. Contacts without a
// position keep empty geometry columns.
func WriteCSV(w io.Writer, batch *mapper.Batch) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, c := range batch.Contacts {
		row := []string{c.Callsign, c.QSODate, c.TimeOn, c.Band, c.Frequency, c.Mode, c.Grid}
		if c.Resolved() {
			row = append(row,
				fmt.Sprintf("%.6f", c.Geo.Position.Latitude),
				fmt.Sprintf("%.6f", c.Geo.Position.Longitude),
				string(c.Geo.Source),
				fmt.Sprintf("%.2f", c.Geo.DistanceKM),
				fmt.Sprintf("%.2f", c.Geo.BearingDeg),
				fmt.Sprintf("%d", c.Geo.BearingBucket),
				locator.FormatCoordinate(c.Geo.Position.Latitude, locator.Latitude),
				locator.FormatCoordinate(c.Geo.Position.Longitude, locator.Longitude),
			)
		} else {
			row = append(row, "", "", "", "", "", "", "", "")
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	metrics := batch.Metrics
	footer := [][]string{
		{},
		{"Summary"},
		{"Home", batch.Home.Callsign, batch.Home.Grid},
		{"Total Contacts", fmt.Sprintf("%d", batch.Total)},
		{"Plotted Contacts", fmt.Sprintf("%d", batch.Resolved)},
		{"Total Distance (km)", fmt.Sprintf("%.2f", metrics.TotalDistanceKM)},
		{"Max Distance (km)", fmt.Sprintf("%.2f", metrics.MaxDistanceKM)},
		{"Min Distance (km)", fmt.Sprintf("%.2f", metrics.MinDistanceKM)},
		{"Average Distance (km)", fmt.Sprintf("%.2f", metrics.AvgDistanceKM)},
	}
	if err := writer.WriteAll(footer); err != nil {
		return fmt.Errorf("failed to write CSV summary: %w", err)
	}

	return writer.Error()
}
