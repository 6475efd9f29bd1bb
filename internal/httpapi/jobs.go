package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/stuartshay/qso-mapper/internal/calculator"
	"github.com/stuartshay/qso-mapper/internal/export"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/observability"
	"github.com/stuartshay/qso-mapper/internal/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxQRSize        = 1024

	defaultUsageLimit = 20
	maxUsageLimit     = 100

	// multipartOverhead allows for the form framing around the log itself
	multipartOverhead = 64 << 10
)

func (s *Server) reject(w http.ResponseWriter, status int, reason, message string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RejectUpload(reason)
	}
	writeError(w, status, message)
}

// handleSubmit accepts a multipart upload with the log in "file" and
// optional "callsign" and "grid" fields
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, observability.RejectTooLarge,
				fmt.Sprintf("log exceeds %d bytes", s.deps.MaxUploadBytes))
			return
		}
		s.reject(w, http.StatusBadRequest, observability.RejectMalformed, "expected a multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.reject(w, http.StatusBadRequest, observability.RejectMalformed, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, s.deps.MaxUploadBytes+1))
	if err != nil {
		s.reject(w, http.StatusBadRequest, observability.RejectMalformed, "failed to read upload")
		return
	}
	if int64(len(data)) > s.deps.MaxUploadBytes {
		s.reject(w, http.StatusRequestEntityTooLarge, observability.RejectTooLarge,
			fmt.Sprintf("log exceeds %d bytes", s.deps.MaxUploadBytes))
		return
	}

	callsign := r.FormValue("callsign")
	grid := r.FormValue("grid")
	home, err := s.deps.Processor.HomeFor(callsign, grid)
	if err != nil {
		s.reject(w, http.StatusBadRequest, observability.RejectInvalidHome, err.Error())
		return
	}

	jobID, err := s.deps.Queue.Enqueue(queue.Request{
		Callsign: home.Callsign,
		Grid:     grid,
		Filename: header.Filename,
		Data:     data,
	})
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		w.Header().Set("Retry-After", "5")
		s.reject(w, http.StatusServiceUnavailable, observability.RejectQueueFull, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveUpload(len(data))
	}
	log.Info().
		Str("job_id", jobID).
		Str("callsign", home.Callsign).
		Str("filename", header.Filename).
		Int("bytes", len(data)).
		Msg("Log queued")

	job, err := s.deps.Queue.GetJob(jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+jobID)
	writeJSON(w, http.StatusAccepted, job.View(false))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := queue.ParseStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := queryInt(q.Get("limit"), defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := queryInt(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	jobs, total := s.deps.Queue.ListJobs(status, limit, offset)
	views := make([]queue.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.View(false))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":        views,
		"total_count": total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*queue.Job, bool) {
	job, err := s.deps.Queue.GetJob(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return job, true
}

// finished returns the batch of a completed job; 409 while it is still running
func (s *Server) finished(w http.ResponseWriter, r *http.Request) (*queue.Job, *mapper.Batch, bool) {
	job, ok := s.lookup(w, r)
	if !ok {
		return nil, nil, false
	}
	switch {
	case job.Status == queue.StatusFailed:
		writeError(w, http.StatusUnprocessableEntity, job.ErrorMessage)
		return nil, nil, false
	case job.Status != queue.StatusCompleted || job.Result == nil || job.Result.Batch == nil:
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return nil, nil, false
	}
	return job, job.Result.Batch, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job.View(false))
}

// handleContacts returns every contact; ?resolved=true keeps only plottable ones
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	job, batch, ok := s.finished(w, r)
	if !ok {
		return
	}

	contacts := batch.Contacts
	if only, _ := strconv.ParseBool(r.URL.Query().Get("resolved")); only {
		contacts = batch.Plottable()
	}
	if contacts == nil {
		contacts = []mapper.Contact{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   job.ID,
		"home":     batch.Home,
		"warning":  job.Result.Warning,
		"contacts": contacts,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	_, batch, ok := s.finished(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, batch.Stats())
}

// handleExport streams the batch as a download; ?paths=false drops the
// great-circle lines from KML
func (s *Server) handleExport(format string) http.HandlerFunc {
	f, err := export.ParseFormat(format)
	if err != nil {
		panic(err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		job, batch, ok := s.finished(w, r)
		if !ok {
			return
		}

		withPaths := true
		if v := r.URL.Query().Get("paths"); v != "" {
			withPaths, _ = strconv.ParseBool(v)
		}

		var buf bytes.Buffer
		if err := export.Write(&buf, f, batch, s.deps.Palette, withPaths); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("Export failed")
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}

		at := time.Now()
		if job.CompletedAt != nil {
			at = *job.CompletedAt
		}
		w.Header().Set("Content-Type", f.ContentType())
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, export.Filename(batch.Home.Callsign, at, f)))
		_, _ = buf.WriteTo(w)
	}
}

// handleQR renders a QR code linking to the job's map view
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, r)
	if !ok {
		return
	}

	size := queryInt(r.URL.Query().Get("size"), 256)
	if size < 64 || size > maxQRSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("size must be between 64 and %d", maxQRSize))
		return
	}

	png, err := qrcode.Encode(s.shareURL(job.ID), qrcode.Medium, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) shareURL(jobID string) string {
	return s.deps.PublicURL + "/?job=" + jobID
}

// handlePath measures ?from= to ?to= (locators or "lat,lon") with ?points=
// path segments
func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := mapper.ParseEndpoint(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := mapper.ParseEndpoint(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}

	opts := s.deps.Processor.Options()
	if v := q.Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > calculator.MaxSampleCount {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("points must be an integer between 0 and %d", calculator.MaxSampleCount))
			return
		}
		opts.PathPoints = n
	}

	route, err := mapper.ComputeRoute(from, to, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handlePalette(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"legend":  s.deps.Palette.Legend(),
		"unknown": mapper.UnknownBandColor,
	})
}

// handleUsage reports the usage log; 404 when it is disabled
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Usage == nil {
		writeError(w, http.StatusNotFound, "usage log is disabled")
		return
	}

	stats, err := s.deps.Usage.GetUsageStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read usage stats")
		writeError(w, http.StatusInternalServerError, "usage log unavailable")
		return
	}
	limit := queryInt(r.URL.Query().Get("limit"), defaultUsageLimit)
	if limit <= 0 {
		limit = defaultUsageLimit
	}
	if limit > maxUsageLimit {
		limit = maxUsageLimit
	}
	recent, err := s.deps.Usage.RecentUploads(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read recent uploads")
		writeError(w, http.StatusInternalServerError, "usage log unavailable")
		return
	}

	type upload struct {
		Callsign         string    `json:"callsign"`
		Grid             string    `json:"grid"`
		Filename         string    `json:"filename,omitempty"`
		TotalContacts    int       `json:"total_contacts"`
		ResolvedContacts int       `json:"resolved_contacts"`
		ProcessingTimeMS int64     `json:"processing_time_ms"`
		ProcessedAt      time.Time `json:"processed_at"`
	}
	uploads := make([]upload, 0, len(recent))
	for _, u := range recent {
		uploads = append(uploads, upload{
			Callsign:         u.Callsign,
			Grid:             u.Grid,
			Filename:         u.Filename,
			TotalContacts:    u.TotalContacts,
			ResolvedContacts: u.ResolvedContacts,
			ProcessingTimeMS: u.ProcessingTimeMS,
			ProcessedAt:      u.ProcessedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":  stats,
		"recent": uploads,
	})
}

func queryInt(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}
