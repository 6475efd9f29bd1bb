// Package mapper enriches parsed ADIF records against a home station: each
// contact gets a position, distance, bearing, bearing bucket and optionally a
// sampled great-circle path from home.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/stuartshay/qso-mapper/internal/adif"
	"github.com/stuartshay/qso-mapper/internal/calculator"
	"github.com/stuartshay/qso-mapper/internal/locator"
)

// DefaultPathPoints is the number of path segments drawn on the map
const DefaultPathPoints = 60

// ErrInvalidHome is returned when the home grid locator does not decode
var ErrInvalidHome = errors.New("invalid home station")

var tracer = otel.Tracer("github.com/stuartshay/qso-mapper/internal/mapper")

// Home is the operator's station. Every contact is measured from here.
type Home struct {
	Callsign string              `json:"callsign"`
	Grid     string              `json:"grid"`
	Location calculator.Location `json:"location"`
}

// NewHome decodes the home grid locator
func NewHome(callsign, grid string) (Home, error) {
	loc, err := locator.Decode(grid)
	if err != nil {
		return Home{}, fmt.Errorf("%w: %w", ErrInvalidHome, err)
	}
	return Home{
		Callsign: strings.ToUpper(strings.TrimSpace(callsign)),
		Grid:     strings.TrimSpace(grid),
		Location: loc,
	}, nil
}

// Options controls enrichment
type Options struct {
	// PathPoints is the number of path segments per contact; 0 disables paths
	PathPoints int
	// Model selects the distance model; empty means spherical
	Model calculator.DistanceModel
	// Workers bounds parallel enrichment; <= 0 uses GOMAXPROCS
	Workers int
}

// DefaultOptions returns the options used by the map view
func DefaultOptions() Options {
	return Options{
		PathPoints: DefaultPathPoints,
		Model:      calculator.Spherical,
	}
}

// Geometry is the position of a contact relative to home
type Geometry struct {
	Position      calculator.Location   `json:"position"`
	Source        locator.Source        `json:"source"`
	DistanceKM    float64               `json:"distance_km"`
	BearingDeg    float64               `json:"bearing_deg"`
	BearingBucket int                   `json:"bearing_bucket"`
	Path          []calculator.Location `json:"-"`
	Polyline      string                `json:"polyline,omitempty"`
}

// Contact is one ADIF record prepared for display
type Contact struct {
	Index     int       `json:"index"`
	Callsign  string    `json:"callsign"`
	Grid      string    `json:"grid,omitempty"`
	Band      string    `json:"band,omitempty"`
	Frequency string    `json:"frequency,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	QSODate   string    `json:"qso_date,omitempty"`
	TimeOn    string    `json:"time_on,omitempty"`
	Geo       *Geometry `json:"geo,omitempty"`
	Reason    string    `json:"unresolved_reason,omitempty"`
}

// Resolved reports whether the contact has a position
func (c Contact) Resolved() bool {
	return c.Geo != nil
}

// Batch is the result of enriching one log
type Batch struct {
	Home     Home                       `json:"home"`
	Contacts []Contact                  `json:"contacts"`
	Total    int                        `json:"total"`
	Resolved int                        `json:"resolved"`
	Metrics  calculator.DistanceMetrics `json:"metrics"`
}

// Plottable returns the contacts that have a position, in input order
func (b *Batch) Plottable() []Contact {
	out := make([]Contact, 0, b.Resolved)
	for _, c := range b.Contacts {
		if c.Resolved() {
			out = append(out, c)
		}
	}
	return out
}

// Unresolved is the number of contacts dropped from the map
func (b *Batch) Unresolved() int {
	return b.Total - b.Resolved
}

// Empty reports whether nothing in the batch can be plotted
func (b *Batch) Empty() bool {
	return b.Resolved == 0
}

// Enrich resolves and measures every record against home. A record that
// cannot be located is kept without geometry and never fails the batch; the
// only error is cancellation of ctx. Contacts keep the input order.
func Enrich(ctx context.Context, home Home, records []adif.Record, opts Options) (*Batch, error) {
	ctx, span := tracer.Start(ctx, "mapper.Enrich")
	defer span.End()

	if opts.Model == "" {
		opts.Model = calculator.Spherical
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	contacts := make([]Contact, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range records {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			contacts[i] = enrichRecord(home, i, rec, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("enrichment cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("enrichment cancelled: %w", err)
	}

	batch := &Batch{
		Home:     home,
		Contacts: contacts,
		Total:    len(contacts),
	}

	distances := make([]float64, 0, len(contacts))
	for _, c := range contacts {
		if c.Resolved() {
			batch.Resolved++
			distances = append(distances, c.Geo.DistanceKM)
		}
	}
	batch.Metrics = calculator.CalculateMetrics(distances)

	span.SetAttributes(
		attribute.Int("batch.total", batch.Total),
		attribute.Int("batch.resolved", batch.Resolved),
		attribute.String("batch.home_grid", home.Grid),
	)

	log.Debug().
		Str("home", home.Grid).
		Int("total", batch.Total).
		Int("resolved", batch.Resolved).
		Msg("Batch enriched")

	return batch, nil
}

func enrichRecord(home Home, index int, rec adif.Record, opts Options) Contact {
	contact := Contact{
		Index:     index,
		Callsign:  rec.Call(),
		Grid:      rec.Grid(),
		Band:      rec.Band(),
		Frequency: displayFrequency(rec.Freq()),
		Mode:      rec.Mode(),
		QSODate:   rec.QSODate(),
		TimeOn:    rec.TimeOn(),
	}

	pos, source, err := locator.Resolve(rec)
	if err != nil {
		contact.Reason = err.Error()
		return contact
	}

	geo, err := Measure(home.Location, pos, opts)
	if err != nil {
		contact.Reason = err.Error()
		return contact
	}
	geo.Source = source

	// Contacts located by lat/lon still get a grid for display
	if source == locator.SourceLatLon && contact.Grid == "" {
		if grid, err := locator.Encode(pos, 6); err == nil {
			contact.Grid = grid
		}
	}

	contact.Geo = geo
	return contact
}

// Measure computes the geometry of pos as seen from home
func Measure(home, pos calculator.Location, opts Options) (*Geometry, error) {
	bearing := calculator.BearingFromHome(home.Latitude, home.Longitude, pos.Latitude, pos.Longitude)
	geo := &Geometry{
		Position:      pos,
		DistanceKM:    calculator.Distance(opts.Model, home, pos),
		BearingDeg:    bearing,
		BearingBucket: calculator.BearingBucket(bearing),
	}

	if opts.PathPoints > 0 {
		path, err := calculator.GreatCirclePath(home, pos, opts.PathPoints)
		if err != nil {
			return nil, err
		}
		geo.Path = path
		geo.Polyline = calculator.EncodePolyline(path)
	}

	return geo, nil
}

// displayFrequency trims trailing zeros, e.g. "14.07400" -> "14.074"
func displayFrequency(freq string) string {
	if !strings.Contains(freq, ".") {
		return freq
	}
	freq = strings.TrimRight(freq, "0")
	return strings.TrimSuffix(freq, ".")
}
