// Package config provides application configuration management,
// loading settings from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/stuartshay/qso-mapper/internal/adif"
	"github.com/stuartshay/qso-mapper/internal/calculator"
	"github.com/stuartshay/qso-mapper/internal/database"
	"github.com/stuartshay/qso-mapper/internal/locator"
)

// Config holds all configuration for the application
type Config struct {
	// Service configuration
	ServiceName string
	Environment string
	GRPCPort    string
	HTTPPort    string
	PublicURL   string

	// Home station
	HomeCallsign string
	HomeGrid     string

	// Enrichment
	PathPoints    int
	DistanceModel calculator.DistanceModel
	BandColors    string
	BatchWorkers  int
	ADIFCharset   adif.Charset

	// Job queue
	QueueWorkers   int
	MaxUploadBytes int64
	JobRetention   time.Duration

	// Usage log; an empty driver disables it
	UsageDBDriver    string
	UsageDBDSN       string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	// Kafka sink; no brokers disables it
	KafkaBrokers []string
	KafkaTopic   string

	// OpenTelemetry configuration
	TracingEnabled  bool
	TracingExporter string
	OTELEndpoint    string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "qso-mapper"),
		Environment: getEnv("ENVIRONMENT", "development"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),

		HomeCallsign: strings.ToUpper(getEnv("HOME_CALLSIGN", "EA1RFI")),
		HomeGrid:     getEnv("HOME_GRID", "IN52PE"),
		BandColors:   getEnv("BAND_COLORS", ""),

		UsageDBDriver:    strings.ToLower(getEnv("USAGE_DB_DRIVER", "")),
		UsageDBDSN:       getEnv("USAGE_DB_DSN", ""),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "qsomapper"),
		PostgresUser:     getEnv("POSTGRES_USER", "development"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "development"),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "qso.contacts.enriched"),

		TracingExporter: strings.ToLower(getEnv("TRACING_EXPORTER", "otlp")),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}

	if !locator.Valid(cfg.HomeGrid) {
		return nil, fmt.Errorf("invalid HOME_GRID: %q is not a maidenhead locator", cfg.HomeGrid)
	}

	var err error
	if cfg.PathPoints, err = parseInt("PATH_POINTS", "60"); err != nil {
		return nil, fmt.Errorf("invalid PATH_POINTS: %w", err)
	}
	if cfg.PathPoints < 0 || cfg.PathPoints > calculator.MaxSampleCount {
		return nil, fmt.Errorf("invalid PATH_POINTS: %d must be between 0 and %d", cfg.PathPoints, calculator.MaxSampleCount)
	}

	if cfg.DistanceModel, err = calculator.ParseDistanceModel(getEnv("DISTANCE_MODEL", "spherical")); err != nil {
		return nil, fmt.Errorf("invalid DISTANCE_MODEL: %w", err)
	}

	if cfg.ADIFCharset, err = adif.ParseCharset(getEnv("ADIF_CHARSET", "iso-8859-15")); err != nil {
		return nil, fmt.Errorf("invalid ADIF_CHARSET: %w", err)
	}

	if cfg.BatchWorkers, err = parseInt("BATCH_WORKERS", "0"); err != nil {
		return nil, fmt.Errorf("invalid BATCH_WORKERS: %w", err)
	}

	if cfg.QueueWorkers, err = parseInt("QUEUE_WORKERS", "5"); err != nil {
		return nil, fmt.Errorf("invalid QUEUE_WORKERS: %w", err)
	}
	if cfg.QueueWorkers < 1 {
		return nil, fmt.Errorf("invalid QUEUE_WORKERS: %d must be at least 1", cfg.QueueWorkers)
	}

	maxUpload, err := parseInt("MAX_UPLOAD_BYTES", strconv.Itoa(10<<20))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %d must be positive", maxUpload)
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if cfg.JobRetention, err = parseDuration("JOB_RETENTION", "1h"); err != nil {
		return nil, fmt.Errorf("invalid JOB_RETENTION: %w", err)
	}

	if cfg.TracingEnabled, err = parseBool("TRACING_ENABLED", "false"); err != nil {
		return nil, fmt.Errorf("invalid TRACING_ENABLED: %w", err)
	}
	switch cfg.TracingExporter {
	case "otlp", "stdout":
	default:
		return nil, fmt.Errorf("invalid TRACING_EXPORTER: %q (want otlp or stdout)", cfg.TracingExporter)
	}

	switch cfg.UsageDBDriver {
	case "", database.DriverPostgres, database.DriverPgx, database.DriverSQLite:
	default:
		return nil, fmt.Errorf("invalid USAGE_DB_DRIVER: %q (want postgres, pgx or sqlite)", cfg.UsageDBDriver)
	}

	return cfg, nil
}

// UsageLogEnabled reports whether processed uploads are recorded
func (c *Config) UsageLogEnabled() bool {
	return c.UsageDBDriver != ""
}

// DatabaseDSN returns the usage log connection string. Without USAGE_DB_DSN
// the PostgreSQL drivers build one from the POSTGRES_* settings and SQLite
// uses a local file.
func (c *Config) DatabaseDSN() string {
	if c.UsageDBDSN != "" {
		return c.UsageDBDSN
	}
	if c.UsageDBDriver == database.DriverSQLite {
		return "file:qso-usage.db"
	}
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresUser,
		c.PostgresPassword,
	)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses an int from an environment variable or default value
func parseInt(key, defaultValue string) (int, error) {
	return strconv.Atoi(getEnv(key, defaultValue))
}

// parseBool parses a bool from an environment variable or default value
func parseBool(key, defaultValue string) (bool, error) {
	return strconv.ParseBool(getEnv(key, defaultValue))
}

// parseDuration parses a time.Duration from an environment variable or default value
func parseDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %s must be positive", d)
	}
	return d, nil
}

// splitList splits a comma separated value, dropping empty items
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
