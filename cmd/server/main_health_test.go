// Package main provides tests for the server wiring helpers
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stuartshay/qso-mapper/internal/config"
	"github.com/stuartshay/qso-mapper/internal/database"
	"github.com/stuartshay/qso-mapper/internal/sink"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json")
	logger.Info().Str("job_id", "abc").Msg("Log queued")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["job_id"] != "abc" || entry["message"] != "Log queued" {
		t.Errorf("unexpected log entry %v", entry)
	}

	buf.Reset()
	logger = newLogger(&buf, "console")
	logger.Info().Msg("Log queued")
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected console output, got %q", buf.String())
	}
}

func TestSetLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}
	for level, want := range tests {
		setLogLevel(level)
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("setLogLevel(%q): expected %s, got %s", level, want, got)
		}
	}
}

func TestReadiness(t *testing.T) {
	if err := readiness(nil).CheckReadiness(context.Background()); err != nil {
		t.Errorf("expected ready without usage log, got %v", err)
	}

	db, err := database.NewClient(database.DriverSQLite, filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	if err := readiness(db).CheckReadiness(context.Background()); err != nil {
		t.Errorf("expected ready with open usage log, got %v", err)
	}

	_ = db.Close()
	if err := readiness(db).CheckReadiness(context.Background()); err == nil {
		t.Error("expected not ready after the usage log closed")
	}
}

func TestOpenUsageLog(t *testing.T) {
	cfg := &config.Config{
		UsageDBDriver: database.DriverSQLite,
		UsageDBDSN:    filepath.Join(t.TempDir(), "usage.db"),
	}

	client, err := openUsageLog(cfg)
	if err != nil {
		t.Fatalf("openUsageLog() failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	stats, err := client.GetUsageStats(context.Background())
	if err != nil {
		t.Fatalf("expected migrated table, got %v", err)
	}
	if stats.Uploads != 0 {
		t.Errorf("expected empty usage log, got %d uploads", stats.Uploads)
	}
}

func TestNewPublisher(t *testing.T) {
	if _, ok := newPublisher(&config.Config{}).(sink.Nop); !ok {
		t.Error("expected Nop publisher without brokers")
	}

	p := newPublisher(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"})
	if _, ok := p.(*sink.Kafka); !ok {
		t.Errorf("expected Kafka publisher, got %T", p)
	}
	_ = p.Close()
}
