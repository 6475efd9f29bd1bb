package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/qso-mapper/internal/adif"
	"github.com/stuartshay/qso-mapper/internal/database"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/observability"
	"github.com/stuartshay/qso-mapper/internal/queue"
)

const sampleLog = `Exported by a logger
<ADIF_VER:5>3.1.4 <EOH>
<CALL:5>K1ABC <GRIDSQUARE:4>FN31 <BAND:3>20m <MODE:3>FT8 <EOR>
<CALL:6>DL1XYZ <BAND:3>40M <EOR>
<CALL:5>N0CAL <LAT:11>N041 30.000 <LON:11>W072 45.000 <EOR>
`

type fakeUsage struct {
	mu      sync.Mutex
	uploads []database.Upload
	err     error
}

func (f *fakeUsage) RecordUpload(_ context.Context, u database.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, u)
	return f.err
}

type fakePublisher struct {
	jobs []string
	n    int
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, jobID string, batch *mapper.Batch) (int, error) {
	f.jobs = append(f.jobs, jobID)
	f.n = len(batch.Plottable())
	return f.n, f.err
}

func (f *fakePublisher) Close() error { return nil }

func newTestProcessor(t *testing.T, options ...Option) *Processor {
	t.Helper()
	home, err := mapper.NewHome("EA1RFI", "IN52PE")
	require.NoError(t, err)
	return New(home, mapper.Options{PathPoints: 10}, adif.ISO885915, options...)
}

func TestProcess(t *testing.T) {
	usage := &fakeUsage{}
	pub := &fakePublisher{}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC))

	p := newTestProcessor(t, WithUsageLog(usage), WithPublisher(pub), WithMetrics(metrics), WithClock(clock))

	job := &queue.Job{ID: "job-1", Request: queue.Request{Filename: "log.adi", Data: []byte(sampleLog)}}
	result, err := p.Process(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, result.Batch)

	assert.Empty(t, result.Warning)
	assert.Equal(t, 3, result.Batch.Total)
	assert.Equal(t, 2, result.Batch.Resolved)
	assert.Equal(t, "EA1RFI", result.Batch.Home.Callsign)
	assert.Equal(t, "20M", result.Batch.Contacts[0].Band)
	assert.Len(t, result.Batch.Contacts[0].Geo.Path, 11)

	require.Len(t, usage.uploads, 1)
	assert.Equal(t, "job-1", usage.uploads[0].JobID)
	assert.Equal(t, "log.adi", usage.uploads[0].Filename)
	assert.Equal(t, 3, usage.uploads[0].TotalContacts)
	assert.Equal(t, 2, usage.uploads[0].ResolvedContacts)
	assert.Equal(t, clock.Now(), usage.uploads[0].ProcessedAt)

	assert.Equal(t, []string{"job-1"}, pub.jobs)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SinkMessages.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Contacts.WithLabelValues(observability.OutcomeUnresolved)))
}

func TestProcess_NothingPlottable(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProcessor(t, WithPublisher(pub))

	job := &queue.Job{ID: "job-2", Request: queue.Request{Data: []byte("<CALL:4>W1AW<EOR>")}}
	result, err := p.Process(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, NoCoordinatesWarning, result.Warning)
	assert.True(t, result.Batch.Empty())
	assert.Empty(t, pub.jobs, "empty batches are not published")
}

func TestProcess_RequestHome(t *testing.T) {
	p := newTestProcessor(t)

	job := &queue.Job{ID: "job-3", Request: queue.Request{
		Callsign: "k1abc",
		Grid:     "FN31pr",
		Data:     []byte("<CALL:5>EA1RF<GRIDSQUARE:6>IN52pe<EOR>"),
	}}
	result, err := p.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "K1ABC", result.Batch.Home.Callsign)
	assert.Equal(t, "FN31pr", result.Batch.Home.Grid)
	assert.Equal(t, 1, result.Batch.Resolved)
}

func TestProcess_InvalidHome(t *testing.T) {
	p := newTestProcessor(t)

	job := &queue.Job{ID: "job-4", Request: queue.Request{Grid: "ZZ99", Data: []byte(sampleLog)}}
	_, err := p.Process(context.Background(), job)
	assert.ErrorIs(t, err, mapper.ErrInvalidHome)
}

func TestProcess_SideEffectFailuresDoNotFailJob(t *testing.T) {
	usage := &fakeUsage{err: errors.New("db down")}
	pub := &fakePublisher{err: errors.New("broker down")}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	p := newTestProcessor(t, WithUsageLog(usage), WithPublisher(pub), WithMetrics(metrics))

	job := &queue.Job{ID: "job-5", Request: queue.Request{Data: []byte(sampleLog)}}
	result, err := p.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Batch.Resolved)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SinkMessages.WithLabelValues("error")))
}

func TestHomeFor(t *testing.T) {
	p := newTestProcessor(t)

	home, err := p.HomeFor("", "")
	require.NoError(t, err)
	assert.Equal(t, p.DefaultHome(), home)

	home, err = p.HomeFor("w1aw", "")
	require.NoError(t, err)
	assert.Equal(t, "W1AW", home.Callsign)
	assert.Equal(t, "IN52PE", home.Grid)

	home, err = p.HomeFor("", "JO62")
	require.NoError(t, err)
	assert.Equal(t, "EA1RFI", home.Callsign)
	assert.InDelta(t, 52.5, home.Location.Latitude, 1e-9)
}

func TestThroughQueue(t *testing.T) {
	p := newTestProcessor(t)
	q := queue.NewQueue(1, p.Process)
	defer func() { _ = q.Shutdown(time.Second) }()

	id, err := q.Enqueue(queue.Request{Filename: "log.adi", Data: []byte(sampleLog)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := q.GetJob(id)
		return err == nil && job.Status == queue.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	job, err := q.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Result.Batch.Resolved)
}
