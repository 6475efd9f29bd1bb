// Package processor turns an uploaded ADIF log into an enriched batch. It is
// the queue's ProcessFunc and records each upload in the usage log and the
// contact sink when those are configured.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stuartshay/qso-mapper/internal/adif"
	"github.com/stuartshay/qso-mapper/internal/database"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/observability"
	"github.com/stuartshay/qso-mapper/internal/queue"
	"github.com/stuartshay/qso-mapper/internal/sink"
)

// NoCoordinatesWarning is attached to a job when nothing in the log can be plotted
const NoCoordinatesWarning = "No valid coordinates were found"

var tracer = otel.Tracer("github.com/stuartshay/qso-mapper/internal/processor")

// UsageRecorder stores one row per processed upload
type UsageRecorder interface {
	RecordUpload(ctx context.Context, u database.Upload) error
}

// Processor enriches queued logs
type Processor struct {
	home      mapper.Home
	opts      mapper.Options
	charset   adif.Charset
	metrics   *observability.Metrics
	usage     UsageRecorder
	publisher sink.Publisher
	clock     clockwork.Clock
}

// Option configures a Processor
type Option func(*Processor)

// WithMetrics records batch metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithUsageLog records every processed upload
func WithUsageLog(u UsageRecorder) Option {
	return func(p *Processor) { p.usage = u }
}

// WithPublisher sends plottable contacts downstream
func WithPublisher(pub sink.Publisher) Option {
	return func(p *Processor) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithClock replaces the wall clock
func WithClock(c clockwork.Clock) Option {
	return func(p *Processor) { p.clock = c }
}

// New creates a processor. home is used when a request carries no grid of
// its own.
func New(home mapper.Home, opts mapper.Options, charset adif.Charset, options ...Option) *Processor {
	p := &Processor{
		home:      home,
		opts:      opts,
		charset:   charset,
		publisher: sink.Nop{},
		clock:     clockwork.NewRealClock(),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Options returns the enrichment options
func (p *Processor) Options() mapper.Options {
	return p.opts
}

// DefaultHome returns the configured home station
func (p *Processor) DefaultHome() mapper.Home {
	return p.home
}

// HomeFor builds the home station for a request. An empty grid falls back
// to the configured home; an empty callsign keeps the configured one.
func (p *Processor) HomeFor(callsign, grid string) (mapper.Home, error) {
	callsign = strings.TrimSpace(callsign)
	grid = strings.TrimSpace(grid)
	if grid == "" {
		home := p.home
		if callsign != "" {
			home.Callsign = strings.ToUpper(callsign)
		}
		return home, nil
	}
	if callsign == "" {
		callsign = p.home.Callsign
	}
	return mapper.NewHome(callsign, grid)
}

// Process implements queue.ProcessFunc
func (p *Processor) Process(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
	ctx, span := tracer.Start(ctx, "processor.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.filename", job.Request.Filename),
	)

	log.Info().
		Str("job_id", job.ID).
		Str("callsign", job.Request.Callsign).
		Str("grid", job.Request.Grid).
		Str("filename", job.Request.Filename).
		Int("bytes", len(job.Request.Data)).
		Msg("Processing log")

	start := p.clock.Now()
	home, err := p.HomeFor(job.Request.Callsign, job.Request.Grid)
	if err != nil {
		return nil, err
	}

	batch, warning, err := p.Map(ctx, home, job.Request.Data)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to map log")
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID).
		Int("total", batch.Total).
		Int("resolved", batch.Resolved).
		Float64("max_distance_km", batch.Metrics.MaxDistanceKM).
		Msg("Log mapped")

	p.recordUsage(ctx, job.ID, job.Request.Filename, batch, p.clock.Since(start))
	p.publish(ctx, job.ID, batch)

	return &queue.JobResult{Batch: batch, Warning: warning}, nil
}

// Map parses and enriches one log. The warning is set when no contact has a
// position.
func (p *Processor) Map(ctx context.Context, home mapper.Home, data []byte) (*mapper.Batch, string, error) {
	start := p.clock.Now()

	parsed, err := adif.Parse(data, p.charset)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse ADIF: %w", err)
	}

	batch, err := mapper.Enrich(ctx, home, parsed.Records, p.opts)
	if err != nil {
		return nil, "", err
	}

	if p.metrics != nil {
		p.metrics.ObserveBatch(batch, p.clock.Since(start))
	}

	var warning string
	if batch.Empty() {
		warning = NoCoordinatesWarning
	}
	return batch, warning, nil
}

// recordUsage never fails the job; the usage log is best effort
func (p *Processor) recordUsage(ctx context.Context, jobID, filename string, batch *mapper.Batch, elapsed time.Duration) {
	if p.usage == nil {
		return
	}
	err := p.usage.RecordUpload(ctx, database.Upload{
		JobID:            jobID,
		Callsign:         batch.Home.Callsign,
		Grid:             batch.Home.Grid,
		Filename:         filename,
		TotalContacts:    batch.Total,
		ResolvedContacts: batch.Resolved,
		ProcessingTimeMS: elapsed.Milliseconds(),
		ProcessedAt:      p.clock.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record upload")
	}
}

func (p *Processor) publish(ctx context.Context, jobID string, batch *mapper.Batch) {
	if batch.Empty() {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	n, err := p.publisher.Publish(sendCtx, jobID, batch)
	if p.metrics != nil {
		p.metrics.ObserveSink(n, err)
	}
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish contacts")
		return
	}
	if n > 0 {
		log.Debug().Str("job_id", jobID).Int("messages", n).Msg("Contacts published")
	}
}
