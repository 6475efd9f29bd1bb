package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/stuartshay/qso-mapper/internal/mapper"
)

// Document is the JSON export layout
type Document struct {
	Home     mapper.Home          `json:"home"`
	Stats    mapper.Stats         `json:"stats"`
	Legend   []mapper.LegendEntry `json:"legend"`
	Contacts []mapper.Contact     `json:"contacts"`
}

// WriteJSON writes the batch with its stats and band legend
func WriteJSON(w io.Writer, batch *mapper.Batch, palette mapper.Palette) error {
	doc := Document{
		Home:     batch.Home,
		Stats:    batch.Stats(),
		Legend:   palette.Legend(),
		Contacts: batch.Contacts,
	}
	if doc.Contacts == nil {
		doc.Contacts = []mapper.Contact{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

// Write renders batch in format f
func Write(w io.Writer, f Format, batch *mapper.Batch, palette mapper.Palette, withPaths bool) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, batch)
	case FormatKML:
		return WriteKML(w, batch, palette, withPaths)
	case FormatJSON:
		return WriteJSON(w, batch, palette)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}
