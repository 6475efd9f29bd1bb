package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/qso-mapper/internal/adif"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/queue"
)

func TestObserveBatch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	home, err := mapper.NewHome("EA1RFI", "IN52PE")
	require.NoError(t, err)
	batch, err := mapper.Enrich(context.Background(), home, []adif.Record{
		{"GRIDSQUARE": "FN31"},
		{"LAT": "N42 52.560", "LON": "W008 32.700"},
		{"GRIDSQUARE": "JO01"},
		{},
	}, mapper.Options{})
	require.NoError(t, err)

	m.ObserveBatch(batch, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Contacts.WithLabelValues(OutcomeGrid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Contacts.WithLabelValues(OutcomeLatLon)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Contacts.WithLabelValues(OutcomeUnresolved)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchSize))
}

func TestJobFinished(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.JobFinished(queue.StatusCompleted, time.Second)
	m.JobFinished(queue.StatusCompleted, time.Second)
	m.JobFinished(queue.StatusFailed, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Jobs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues("failed")))
}

func TestObserveSink(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveSink(5, nil)
	m.ObserveSink(3, errors.New("broker down"))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.SinkMessages.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SinkMessages.WithLabelValues("error")))
}

func TestRegisterQueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	q := queue.NewQueue(1, func(_ context.Context, _ *queue.Job) (*queue.JobResult, error) {
		return &queue.JobResult{}, nil
	})
	defer func() { _ = q.Shutdown(time.Second) }()

	m.RegisterQueue(q)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["qso_mapper_queue_depth"])
	assert.True(t, names["qso_mapper_jobs_retained"])
}

func TestUploads(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveUpload(2048)
	m.RejectUpload(RejectTooLarge)
	m.RejectUpload(RejectTooLarge)
	m.RejectUpload(RejectQueueFull)

	assert.Equal(t, 1, testutil.CollectAndCount(m.UploadBytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UploadRejected.WithLabelValues(RejectTooLarge)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadRejected.WithLabelValues(RejectQueueFull)))
}
