// Command qsomap maps an ADIF log offline: every contact is located,
// measured from the home grid and written as CSV, KML or JSON.
//
// Usage:
//
//	go run ./cmd/qsomap -in log.adi -grid IN52PE -call EA1RFI -format kml -out map.kml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/qso-mapper/internal/adif"
	"github.com/stuartshay/qso-mapper/internal/calculator"
	"github.com/stuartshay/qso-mapper/internal/export"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/processor"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	in        string
	out       string
	grid      string
	call      string
	format    export.Format
	points    int
	model     calculator.DistanceModel
	charset   adif.Charset
	palette   mapper.Palette
	withPaths bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("qsomap", flag.ContinueOnError)
	fs.SetOutput(stderr)

	in := fs.String("in", "", "ADIF log to map (- for stdin)")
	out := fs.String("out", "", "output file; stdout when empty")
	grid := fs.String("grid", "", "home maidenhead locator")
	call := fs.String("call", "", "home callsign")
	format := fs.String("format", "csv", "output format: csv, kml or json")
	points := fs.Int("points", mapper.DefaultPathPoints, "great-circle path segments per contact; 0 disables paths")
	model := fs.String("model", "spherical", "distance model: spherical or ellipsoidal")
	charset := fs.String("charset", "iso-8859-15", "ADIF file encoding: iso-8859-15 or utf-8")
	colors := fs.String("colors", "", "band colours, e.g. 20M=lime,40M=navy")
	noPaths := fs.Bool("no-paths", false, "omit path lines from KML")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *in == "" || *grid == "" {
		fs.Usage()
		return nil, errors.New("-in and -grid are required")
	}
	if *points < 0 {
		return nil, errors.New("-points must not be negative")
	}

	opts := &options{
		in:        *in,
		out:       *out,
		grid:      *grid,
		call:      *call,
		points:    *points,
		withPaths: !*noPaths,
		palette:   mapper.DefaultPalette(),
	}

	var err error
	if opts.format, err = export.ParseFormat(*format); err != nil {
		return nil, err
	}
	if opts.model, err = calculator.ParseDistanceModel(*model); err != nil {
		return nil, err
	}
	if opts.charset, err = adif.ParseCharset(*charset); err != nil {
		return nil, err
	}
	if *colors != "" {
		if opts.palette, err = mapper.ParsePalette(*colors); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		log.Error().Err(err).Msg("Invalid arguments")
		return 2
	}

	if err := mapLog(opts, stdout); err != nil {
		log.Error().Err(err).Msg("Failed to map log")
		return 1
	}
	return 0
}

func mapLog(opts *options, stdout io.Writer) error {
	data, err := readInput(opts.in)
	if err != nil {
		return err
	}

	home, err := mapper.NewHome(opts.call, opts.grid)
	if err != nil {
		return err
	}

	proc := processor.New(home, mapper.Options{
		PathPoints: opts.points,
		Model:      opts.model,
	}, opts.charset)

	batch, warning, err := proc.Map(context.Background(), home, data)
	if err != nil {
		return err
	}
	if warning != "" {
		log.Warn().Msg(warning)
	}

	w := stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close output file")
			}
		}()
		w = f
	}

	if err := export.Write(w, opts.format, batch, opts.palette, opts.withPaths); err != nil {
		return err
	}

	log.Info().
		Str("home", home.Grid).
		Int("total", batch.Total).
		Int("plotted", batch.Resolved).
		Int("unresolved", batch.Unresolved()).
		Float64("max_distance_km", batch.Metrics.MaxDistanceKM).
		Str("format", string(opts.format)).
		Msg("Log mapped")
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return data, nil
}
