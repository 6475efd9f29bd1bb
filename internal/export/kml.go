package export

import (
	"fmt"
	"image/color"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/twpayne/go-kml"

	"github.com/stuartshay/qso-mapper/internal/calculator"
	"github.com/stuartshay/qso-mapper/internal/mapper"
)

// namedColors covers the CSS names used by the band palette
var namedColors = map[string]color.RGBA{
	"black":      {0x00, 0x00, 0x00, 0xff},
	"blue":       {0x00, 0x00, 0xff, 0xff},
	"darkblue":   {0x00, 0x00, 0x8b, 0xff},
	"darkgreen":  {0x00, 0x64, 0x00, 0xff},
	"darkorange": {0xff, 0x8c, 0x00, 0xff},
	"darkred":    {0x8b, 0x00, 0x00, 0xff},
	"gold":       {0xff, 0xd7, 0x00, 0xff},
	"gray":       {0x80, 0x80, 0x80, 0xff},
	"green":      {0x00, 0x80, 0x00, 0xff},
	"lime":       {0x00, 0xff, 0x00, 0xff},
	"magenta":    {0xff, 0x00, 0xff, 0xff},
	"orange":     {0xff, 0xa5, 0x00, 0xff},
	"purple":     {0x80, 0x00, 0x80, 0xff},
	"red":        {0xff, 0x00, 0x00, 0xff},
	"white":      {0xff, 0xff, 0xff, 0xff},
}

// ParseColor accepts a CSS colour name from the palette or "#rrggbb".
// Unknown names are black.
func ParseColor(name string) color.RGBA {
	name = strings.ToLower(strings.TrimSpace(name))
	if c, ok := namedColors[name]; ok {
		return c
	}
	if len(name) == 7 && name[0] == '#' {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
		}
	}
	return namedColors["black"]
}

func styleID(band string) string {
	if band == "" {
		return "band-unknown"
	}
	return "band-" + strings.ToLower(band)
}

func coordinates(points ...calculator.Location) []kml.Coordinate {
	out := make([]kml.Coordinate, len(points))
	for i, p := range points {
		out[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}
	return out
}

// WriteKML writes a document with the home station, one placemark per
// plotted contact and, when withPaths is set, the great-circle path to each
// contact styled by band colour.
func WriteKML(w io.Writer, batch *mapper.Batch, palette mapper.Palette, withPaths bool) error {
	plottable := batch.Plottable()

	// One shared line style per band present
	styles := make(map[string]*kml.SharedElement)
	var bands []string
	for _, c := range plottable {
		if _, ok := styles[c.Band]; ok {
			continue
		}
		styles[c.Band] = kml.SharedStyle(styleID(c.Band),
			kml.LineStyle(
				kml.Color(ParseColor(palette.ColorFor(c.Band))),
				kml.Width(2),
			),
			kml.IconStyle(
				kml.Color(ParseColor(palette.ColorFor(c.Band))),
				kml.Scale(0.8),
			),
		)
		bands = append(bands, c.Band)
	}
	sort.Strings(bands)

	homeStyle := kml.SharedStyle("home",
		kml.IconStyle(kml.Color(namedColors["red"]), kml.Scale(1.2)),
	)

	doc := kml.Document(
		kml.Name(fmt.Sprintf("QSO map %s (%s)", batch.Home.Callsign, batch.Home.Grid)),
		kml.Open(true),
		homeStyle,
	)
	for _, band := range bands {
		doc.Add(styles[band])
	}

	doc.Add(kml.Placemark(
		kml.Name(fmt.Sprintf("My QTH: %s (%s)", batch.Home.Callsign, batch.Home.Grid)),
		kml.StyleURL(homeStyle.URL()),
		kml.Point(kml.Coordinates(coordinates(batch.Home.Location)...)),
	))

	contacts := kml.Folder(kml.Name("Contacts"))
	paths := kml.Folder(kml.Name("Paths"))
	for _, c := range plottable {
		style := styles[c.Band].URL()

		contacts.Add(kml.Placemark(
			kml.Name(c.Callsign),
			kml.Description(contactDescription(c)),
			kml.StyleURL(style),
			kml.Point(kml.Coordinates(coordinates(c.Geo.Position)...)),
		))

		if withPaths && len(c.Geo.Path) > 1 {
			paths.Add(kml.Placemark(
				kml.Name(fmt.Sprintf("%s to %s", batch.Home.Callsign, c.Callsign)),
				kml.StyleURL(style),
				kml.LineString(
					kml.Tessellate(true),
					kml.Coordinates(coordinates(c.Geo.Path...)...),
				),
			))
		}
	}
	doc.Add(contacts)
	if withPaths {
		doc.Add(paths)
	}

	if err := kml.KML(doc).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func contactDescription(c mapper.Contact) string {
	return fmt.Sprintf("Band: %s\nFreq: %s MHz\nMode: %s\nGrid: %s\nDistance: %.2f km\nBearing: %.1f°",
		c.Band, c.Frequency, c.Mode, c.Grid, c.Geo.DistanceKM, c.Geo.BearingDeg)
}
