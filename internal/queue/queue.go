// Package queue provides an in-memory job queue system with worker pool
// for concurrent processing of uploaded ADIF logs. Finished jobs expire after
// a retention period; nothing outlives the process.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/qso-mapper/internal/mapper"
)

// JobStatus represents the state of a log processing job
type JobStatus string

// Job status constants define the lifecycle states
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ParseStatus validates a status filter; "" means any status
func ParseStatus(value string) (JobStatus, error) {
	switch s := JobStatus(value); s {
	case "", StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown job status %q", value)
	}
}

// Queue errors
var (
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("queue is full")
	ErrClosed    = errors.New("queue is shut down")
)

const (
	defaultCapacity  = 100
	defaultRetention = time.Hour
)

// Request is an uploaded log waiting to be mapped
type Request struct {
	Callsign string
	Grid     string
	Filename string
	Data     []byte
}

// Job represents a log processing job
type Job struct {
	ID           string
	Request      Request
	Status       JobStatus
	QueuedAt     time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Result       *JobResult

	seq uint64
}

// JobResult contains the output of a completed job
type JobResult struct {
	Batch            *mapper.Batch
	Warning          string
	ProcessingTimeMS int64
}

// ProcessFunc is a function that processes a job
type ProcessFunc func(ctx context.Context, job *Job) (*JobResult, error)

// Observer is notified when a job reaches a final status
type Observer interface {
	JobFinished(status JobStatus, duration time.Duration)
}

// Option configures a Queue
type Option func(*Queue)

// WithClock replaces the wall clock, mainly for tests
func WithClock(clock clockwork.Clock) Option {
	return func(q *Queue) { q.clock = clock }
}

// WithRetention sets how long finished jobs are kept
func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// WithCapacity sets how many jobs may wait for a worker
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithObserver registers a job outcome observer
func WithObserver(o Observer) Option {
	return func(q *Queue) { q.observer = o }
}

// Queue manages log processing jobs with a worker pool
type Queue struct {
	mu           sync.RWMutex
	jobs         map[string]*Job
	pendingQueue chan *Job
	workers      int
	capacity     int
	retention    time.Duration
	processor    ProcessFunc
	clock        clockwork.Clock
	observer     Observer
	seq          uint64
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewQueue creates a new job queue with the specified number of workers
// and starts the retention janitor
func NewQueue(workers int, processor ProcessFunc, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:      make(map[string]*Job),
		workers:   workers,
		capacity:  defaultCapacity,
		retention: defaultRetention,
		processor: processor,
		clock:     clockwork.NewRealClock(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.pendingQueue = make(chan *Job, q.capacity)

	// Start worker pool
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	q.wg.Add(1)
	go q.janitor()

	return q
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(req Request) (string, error) {
	if q.ctx.Err() != nil {
		return "", ErrClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Generate unique job ID
	jobID := uuid.New().String()

	q.seq++
	job := &Job{
		ID:       jobID,
		Request:  req,
		Status:   StatusQueued,
		QueuedAt: q.clock.Now().UTC(),
		seq:      q.seq,
	}

	// Add to pending queue (non-blocking)
	select {
	case q.pendingQueue <- job:
		q.jobs[jobID] = job
		return jobID, nil
	default:
		return "", ErrQueueFull
	}
}

// GetJob retrieves a copy of a job by ID
func (q *Queue) GetJob(jobID string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	return copyJob(job), nil
}

// copyJob returns a copy safe to hand out; the uploaded bytes stay private
func copyJob(job *Job) *Job {
	jobCopy := *job
	jobCopy.Request.Data = nil
	if job.StartedAt != nil {
		startedCopy := *job.StartedAt
		jobCopy.StartedAt = &startedCopy
	}
	if job.CompletedAt != nil {
		completedCopy := *job.CompletedAt
		jobCopy.CompletedAt = &completedCopy
	}
	if job.Result != nil {
		resultCopy := *job.Result
		jobCopy.Result = &resultCopy
	}
	return &jobCopy
}

// ListJobs returns jobs filtered by status, newest first, along with the
// number of jobs matching the filter before pagination
func (q *Queue) ListJobs(status JobStatus, limit, offset int) ([]*Job, int) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var filtered []*Job
	for _, job := range q.jobs {
		if status == "" || job.Status == status {
			filtered = append(filtered, copyJob(job))
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].QueuedAt.Equal(filtered[j].QueuedAt) {
			return filtered[i].QueuedAt.After(filtered[j].QueuedAt)
		}
		return filtered[i].seq > filtered[j].seq
	})

	total := len(filtered)

	// Apply pagination
	start := offset
	if start < 0 {
		start = 0
	}
	if start > total {
		return []*Job{}, total
	}

	end := start + limit
	if limit <= 0 || end > total {
		end = total
	}

	return filtered[start:end], total
}

// GetStats returns queue statistics
func (q *Queue) GetStats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := map[string]int{
		"total":      len(q.jobs),
		"queued":     0,
		"processing": 0,
		"completed":  0,
		"failed":     0,
	}

	for _, job := range q.jobs {
		switch job.Status {
		case StatusQueued:
			stats["queued"]++
		case StatusProcessing:
			stats["processing"]++
		case StatusCompleted:
			stats["completed"]++
		case StatusFailed:
			stats["failed"]++
		}
	}

	return stats
}

// Depth is the number of jobs waiting for a worker
func (q *Queue) Depth() int {
	return len(q.pendingQueue)
}

// Sweep drops finished jobs older than the retention period and returns how
// many were removed
func (q *Queue) Sweep() int {
	cutoff := q.clock.Now().Add(-q.retention)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, job := range q.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}

// janitor sweeps expired jobs until shutdown
func (q *Queue) janitor() {
	defer q.wg.Done()

	interval := q.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := q.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.Chan():
			if n := q.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("Expired jobs removed")
			}
		}
	}
}

// worker processes jobs from the queue
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pendingQueue:
			q.processJob(job)
		}
	}
}

// processJob executes a single job
func (q *Queue) processJob(job *Job) {
	startTime := q.clock.Now()

	// Update status to processing
	q.mu.Lock()
	job.Status = StatusProcessing
	now := startTime.UTC()
	job.StartedAt = &now
	q.mu.Unlock()

	// Process the job
	result, err := q.processor(q.ctx, job)
	elapsed := q.clock.Since(startTime)

	// Update job with result
	q.mu.Lock()
	completedAt := q.clock.Now().UTC()
	job.CompletedAt = &completedAt
	job.Request.Data = nil

	if err != nil {
		job.Status = StatusFailed
		job.ErrorMessage = err.Error()
	} else {
		job.Status = StatusCompleted
		job.Result = result
		if result != nil {
			result.ProcessingTimeMS = elapsed.Milliseconds()
		}
	}
	status := job.Status
	q.mu.Unlock()

	if q.observer != nil {
		q.observer.JobFinished(status, elapsed)
	}
}

// Shutdown gracefully shuts down the queue
func (q *Queue) Shutdown(timeout time.Duration) error {
	// Stop accepting new jobs
	q.cancel()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
