// Package observability holds the Prometheus metrics of the mapper service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stuartshay/qso-mapper/internal/locator"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/queue"
)

const namespace = "qso_mapper"

// Contact outcomes used as the "outcome" label
const (
	OutcomeGrid       = "grid"
	OutcomeLatLon     = "latlon"
	OutcomeUnresolved = "unresolved"
)

// Upload rejection reasons used as the "reason" label
const (
	RejectTooLarge    = "too_large"
	RejectMalformed   = "malformed"
	RejectInvalidHome = "invalid_home"
	RejectQueueFull   = "queue_full"
)

// Metrics holds the Prometheus counters, histograms, and gauges for log processing.
type Metrics struct {
	Contacts       *prometheus.CounterVec // labels: outcome={grid,latlon,unresolved}
	BatchSize      prometheus.Histogram
	BatchDuration  prometheus.Histogram
	Jobs           *prometheus.CounterVec // labels: status={completed,failed}
	JobDuration    prometheus.Histogram
	UploadBytes    prometheus.Histogram
	UploadRejected *prometheus.CounterVec // labels: reason
	SinkMessages   *prometheus.CounterVec // labels: outcome={success,error}

	registerer prometheus.Registerer
}

// NewMetrics creates the metrics and registers them with reg. Tests pass a
// fresh prometheus.NewRegistry() to avoid "already registered" panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Contacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_total",
			Help:      "Contacts processed by how their position was resolved.",
		}, []string{"outcome"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of records per uploaded log.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_enrichment_duration_seconds",
			Help:      "Duration of enriching one log against the home station.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by final status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of a job from start of processing to completion.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		UploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of accepted ADIF uploads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		UploadRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_rejected_total",
			Help:      "Uploads refused before queueing, by reason.",
		}, []string{"reason"}),
		SinkMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_messages_total",
			Help:      "Enriched contacts published to the sink by outcome.",
		}, []string{"outcome"}),
		registerer: reg,
	}

	reg.MustRegister(
		m.Contacts,
		m.BatchSize,
		m.BatchDuration,
		m.Jobs,
		m.JobDuration,
		m.UploadBytes,
		m.UploadRejected,
		m.SinkMessages,
	)

	return m
}

// ObserveBatch records the outcome of one enriched log
func (m *Metrics) ObserveBatch(batch *mapper.Batch, duration time.Duration) {
	m.BatchSize.Observe(float64(batch.Total))
	m.BatchDuration.Observe(duration.Seconds())

	for _, c := range batch.Contacts {
		switch {
		case !c.Resolved():
			m.Contacts.WithLabelValues(OutcomeUnresolved).Inc()
		case c.Geo.Source == locator.SourceLatLon:
			m.Contacts.WithLabelValues(OutcomeLatLon).Inc()
		default:
			m.Contacts.WithLabelValues(OutcomeGrid).Inc()
		}
	}
}

// JobFinished implements queue.Observer
func (m *Metrics) JobFinished(status queue.JobStatus, duration time.Duration) {
	m.Jobs.WithLabelValues(string(status)).Inc()
	m.JobDuration.Observe(duration.Seconds())
}

// ObserveUpload records the size of an accepted upload
func (m *Metrics) ObserveUpload(size int) {
	m.UploadBytes.Observe(float64(size))
}

// RejectUpload counts an upload refused before queueing
func (m *Metrics) RejectUpload(reason string) {
	m.UploadRejected.WithLabelValues(reason).Inc()
}

// ObserveSink counts published and failed sink messages
func (m *Metrics) ObserveSink(published int, err error) {
	if err != nil {
		m.SinkMessages.WithLabelValues("error").Add(float64(published))
		return
	}
	m.SinkMessages.WithLabelValues("success").Add(float64(published))
}

// RegisterQueue exposes the queue depth and job counts as gauges
func (m *Metrics) RegisterQueue(q *queue.Queue) {
	m.registerer.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}, func() float64 { return float64(q.Depth()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_retained",
			Help:      "Jobs currently held in memory.",
		}, func() float64 { return float64(q.GetStats()["total"]) }),
	)
}
