// Package sink publishes enriched contacts to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/stuartshay/qso-mapper/internal/mapper"
)

// Publisher receives the plottable contacts of a finished job
type Publisher interface {
	Publish(ctx context.Context, jobID string, batch *mapper.Batch) (int, error)
	Close() error
}

// Nop discards everything; used when no brokers are configured
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, string, *mapper.Batch) (int, error) { return 0, nil }

// Close implements Publisher
func (Nop) Close() error { return nil }

// ContactEvent is the JSON value of each Kafka message
type ContactEvent struct {
	JobID         string    `json:"job_id"`
	HomeCallsign  string    `json:"home_callsign"`
	HomeGrid      string    `json:"home_grid"`
	Callsign      string    `json:"callsign"`
	Band          string    `json:"band,omitempty"`
	Frequency     string    `json:"frequency,omitempty"`
	Mode          string    `json:"mode,omitempty"`
	QSODate       string    `json:"qso_date,omitempty"`
	TimeOn        string    `json:"time_on,omitempty"`
	Grid          string    `json:"grid,omitempty"`
	Latitude      float64   `json:"lat"`
	Longitude     float64   `json:"lon"`
	Source        string    `json:"source"`
	DistanceKM    float64   `json:"distance_km"`
	BearingDeg    float64   `json:"bearing_deg"`
	BearingBucket int       `json:"bearing_bucket"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// Kafka produces one message per plottable contact
type Kafka struct {
	writer *kafkago.Writer
	now    func() time.Time
}

// NewKafka creates a Kafka producer for the given topic
func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Kafka{writer: w, now: time.Now}
}

// Publish serializes the plottable contacts and writes them in a single
// WriteMessages call. It returns the number of messages attempted.
func (k *Kafka) Publish(ctx context.Context, jobID string, batch *mapper.Batch) (int, error) {
	msgs, err := buildMessages(jobID, batch, k.now().UTC())
	if err != nil || len(msgs) == 0 {
		return 0, err
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return len(msgs), fmt.Errorf("publish %d contacts: %w", len(msgs), err)
	}
	return len(msgs), nil
}

// Close flushes and closes the producer
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func buildMessages(jobID string, batch *mapper.Batch, processedAt time.Time) ([]kafkago.Message, error) {
	plottable := batch.Plottable()
	msgs := make([]kafkago.Message, 0, len(plottable))
	for _, c := range plottable {
		msg, err := serializeToMessage(jobID, batch.Home, c, processedAt)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// serializeToMessage marshals a contact into a Kafka message keyed by callsign
func serializeToMessage(jobID string, home mapper.Home, c mapper.Contact, processedAt time.Time) (kafkago.Message, error) {
	event := ContactEvent{
		JobID:         jobID,
		HomeCallsign:  home.Callsign,
		HomeGrid:      home.Grid,
		Callsign:      c.Callsign,
		Band:          c.Band,
		Frequency:     c.Frequency,
		Mode:          c.Mode,
		QSODate:       c.QSODate,
		TimeOn:        c.TimeOn,
		Grid:          c.Grid,
		Latitude:      c.Geo.Position.Latitude,
		Longitude:     c.Geo.Position.Longitude,
		Source:        string(c.Geo.Source),
		DistanceKM:    c.Geo.DistanceKM,
		BearingDeg:    c.Geo.BearingDeg,
		BearingBucket: c.Geo.BearingBucket,
		ProcessedAt:   processedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize contact event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(c.Callsign),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "job_id", Value: []byte(jobID)},
			{Key: "band", Value: []byte(c.Band)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
