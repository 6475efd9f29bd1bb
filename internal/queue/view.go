package queue

import (
	"time"

	"github.com/stuartshay/qso-mapper/internal/mapper"
)

// JobView is the public representation of a job
type JobView struct {
	ID               string      `json:"job_id"`
	Status           JobStatus   `json:"status"`
	Callsign         string      `json:"callsign,omitempty"`
	Grid             string      `json:"grid,omitempty"`
	Filename         string      `json:"filename,omitempty"`
	QueuedAt         time.Time   `json:"queued_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	Warning          string      `json:"warning,omitempty"`
	ProcessingTimeMS int64       `json:"processing_time_ms,omitempty"`
	Result           *ResultView `json:"result,omitempty"`
}

// ResultView summarizes a finished batch
type ResultView struct {
	Home     mapper.Home      `json:"home"`
	Stats    mapper.Stats     `json:"stats"`
	Contacts []mapper.Contact `json:"contacts,omitempty"`
}

// View builds the public representation; contacts are only included when
// asked for
func (j *Job) View(withContacts bool) JobView {
	v := JobView{
		ID:           j.ID,
		Status:       j.Status,
		Callsign:     j.Request.Callsign,
		Grid:         j.Request.Grid,
		Filename:     j.Request.Filename,
		QueuedAt:     j.QueuedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		ErrorMessage: j.ErrorMessage,
	}

	if j.Result == nil {
		return v
	}
	v.Warning = j.Result.Warning
	v.ProcessingTimeMS = j.Result.ProcessingTimeMS
	if b := j.Result.Batch; b != nil {
		v.Result = &ResultView{Home: b.Home, Stats: b.Stats()}
		if withContacts {
			v.Result.Contacts = b.Contacts
		}
	}
	return v
}
