package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/stuartshay/qso-mapper/internal/config"
	"github.com/stuartshay/qso-mapper/internal/database"
	grpcserver "github.com/stuartshay/qso-mapper/internal/grpc"
	"github.com/stuartshay/qso-mapper/internal/httpapi"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/observability"
	"github.com/stuartshay/qso-mapper/internal/processor"
	"github.com/stuartshay/qso-mapper/internal/queue"
	"github.com/stuartshay/qso-mapper/internal/sink"
	"github.com/stuartshay/qso-mapper/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Initialize structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = newLogger(os.Stdout, os.Getenv("LOG_FORMAT"))

	log.Info().Str("version", version).Msg("Starting qso-mapper service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Logger = newLogger(os.Stdout, cfg.LogFormat)
	setLogLevel(cfg.LogLevel)

	log.Info().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("grpc_port", cfg.GRPCPort).
		Str("http_port", cfg.HTTPPort).
		Str("home_callsign", cfg.HomeCallsign).
		Str("home_grid", cfg.HomeGrid).
		Str("distance_model", string(cfg.DistanceModel)).
		Int("path_points", cfg.PathPoints).
		Bool("usage_log", cfg.UsageLogEnabled()).
		Strs("kafka_brokers", cfg.KafkaBrokers).
		Msg("Configuration loaded")

	// Tracing
	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:      cfg.ServiceName,
		ServiceNamespace: "qso",
		ServiceVersion:   version,
		Environment:      cfg.Environment,
		Exporter:         cfg.TracingExporter,
		OTLPEndpoint:     cfg.OTELEndpoint,
		Enabled:          cfg.TracingEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	home, err := mapper.NewHome(cfg.HomeCallsign, cfg.HomeGrid)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid home station")
	}

	palette := mapper.DefaultPalette()
	if cfg.BandColors != "" {
		if palette, err = mapper.ParsePalette(cfg.BandColors); err != nil {
			log.Fatal().Err(err).Msg("Invalid BAND_COLORS")
		}
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	// Optional usage log
	var dbClient *database.Client
	if cfg.UsageLogEnabled() {
		dbClient, err = openUsageLog(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize usage log")
		}
		defer func() { _ = dbClient.Close() }()
		log.Info().Str("driver", dbClient.Driver()).Msg("Usage log ready")
	}

	publisher := newPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close contact sink")
		}
	}()

	procOpts := []processor.Option{
		processor.WithMetrics(metrics),
		processor.WithPublisher(publisher),
	}
	if dbClient != nil {
		procOpts = append(procOpts, processor.WithUsageLog(dbClient))
	}
	proc := processor.New(home, mapper.Options{
		PathPoints: cfg.PathPoints,
		Model:      cfg.DistanceModel,
		Workers:    cfg.BatchWorkers,
	}, cfg.ADIFCharset, procOpts...)

	jobQueue := queue.NewQueue(cfg.QueueWorkers, proc.Process,
		queue.WithRetention(cfg.JobRetention),
		queue.WithObserver(metrics),
	)
	metrics.RegisterQueue(jobQueue)

	// Initialize gRPC server
	grpcServer, healthServer := grpcserver.NewGRPCServer(
		grpcserver.NewServer(jobQueue, proc, cfg.MaxUploadBytes),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(int(cfg.MaxUploadBytes)+(1<<20)),
	)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create TCP listener")
	}

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Initialize HTTP server
	var usage httpapi.UsageReader
	if dbClient != nil {
		usage = dbClient
	}
	httpServer := httpapi.NewServer(":"+cfg.HTTPPort, httpapi.Deps{
		Queue:          jobQueue,
		Processor:      proc,
		Palette:        palette,
		Metrics:        metrics,
		Ready:          readiness(dbClient),
		Usage:          usage,
		ServiceName:    cfg.ServiceName,
		PublicURL:      cfg.PublicURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutdown signal received, gracefully stopping...")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown HTTP server")
	}

	// Stop gRPC server
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	case <-stopped:
		log.Info().Msg("gRPC server stopped")
	}

	// Shutdown queue workers
	if err := jobQueue.Shutdown(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown job queue")
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Service shutdown complete")
}

// newLogger returns a JSON logger, or a console logger unless format is "json"
func newLogger(out io.Writer, format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// setLogLevel configures the global log level
func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Str("level", level).Msg("Log level set")
}

// openUsageLog connects to the usage log database and creates its table
func openUsageLog(cfg *config.Config) (*database.Client, error) {
	client, err := database.NewClient(cfg.UsageDBDriver, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// newPublisher returns the Kafka sink when brokers are configured
func newPublisher(cfg *config.Config) sink.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return sink.Nop{}
	}
	log.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Msg("Publishing enriched contacts to Kafka")
	return sink.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
}

// readiness checks the usage log when it is enabled
func readiness(db *database.Client) httpapi.ReadinessChecker {
	return httpapi.ReadinessFunc(func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("usage log: %w", err)
		}
		return nil
	})
}
