package mapper

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownBandColor is used for bands missing from the palette
const UnknownBandColor = "black"

// Palette maps an upper-case band name to a CSS colour name
type Palette map[string]string

// defaultBands lists the legend order, longest wavelength first
var defaultBands = []string{"160M", "80M", "60M", "40M", "30M", "20M", "17M", "15M", "12M", "10M", "6M", "2M"}

// DefaultPalette returns a fresh copy of the standard band colours
func DefaultPalette() Palette {
	return Palette{
		"160M": "darkred",
		"80M":  "red",
		"60M":  "orange",
		"40M":  "darkorange",
		"30M":  "gold",
		"20M":  "green",
		"17M":  "darkgreen",
		"15M":  "blue",
		"12M":  "darkblue",
		"10M":  "purple",
		"6M":   "magenta",
		"2M":   "gray",
	}
}

// ParsePalette reads overrides like "20M=lime,40M=#ff8800" on top of the
// default palette
func ParsePalette(spec string) (Palette, error) {
	p := DefaultPalette()
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		band, color, ok := strings.Cut(entry, "=")
		band = strings.ToUpper(strings.TrimSpace(band))
		color = strings.TrimSpace(color)
		if !ok || band == "" || color == "" {
			return nil, fmt.Errorf("invalid band colour %q (want BAND=colour)", entry)
		}
		p[band] = color
	}
	return p, nil
}

// ColorFor returns the colour of a band; unknown or empty bands are black
func (p Palette) ColorFor(band string) string {
	if color, ok := p[strings.ToUpper(strings.TrimSpace(band))]; ok {
		return color
	}
	return UnknownBandColor
}

// LegendEntry is one band/colour pair in display order
type LegendEntry struct {
	Band  string `json:"band"`
	Color string `json:"color"`
}

// Legend lists the palette with the standard bands first, then any extra
// bands alphabetically
func (p Palette) Legend() []LegendEntry {
	out := make([]LegendEntry, 0, len(p))
	seen := make(map[string]bool, len(p))
	for _, band := range defaultBands {
		if color, ok := p[band]; ok {
			out = append(out, LegendEntry{Band: band, Color: color})
			seen[band] = true
		}
	}

	var extra []string
	for band := range p {
		if !seen[band] {
			extra = append(extra, band)
		}
	}
	sort.Strings(extra)
	for _, band := range extra {
		out = append(out, LegendEntry{Band: band, Color: p[band]})
	}
	return out
}
