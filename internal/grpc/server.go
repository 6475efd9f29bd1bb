// Package grpc exposes the QSO mapper job queue and path calculator over
// gRPC as qsomap.v1.QSOMapService.
package grpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stuartshay/qso-mapper/internal/calculator"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/processor"
	"github.com/stuartshay/qso-mapper/internal/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Server implements QSOMapServiceServer
type Server struct {
	queue          *queue.Queue
	processor      *processor.Processor
	maxUploadBytes int64
}

// NewServer creates a new gRPC service over a running queue
func NewServer(q *queue.Queue, p *processor.Processor, maxUploadBytes int64) *Server {
	return &Server{queue: q, processor: p, maxUploadBytes: maxUploadBytes}
}

// NewGRPCServer builds a grpc.Server with the service, health checks and
// reflection registered. Handler panics are returned as codes.Internal.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(recoverUnary)}, opts...)
	s := grpc.NewServer(opts...)
	RegisterQSOMapServiceServer(s, srv)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(s)
	return s, healthServer
}

// recoverUnary turns a handler panic into an Internal error
func recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("method", info.FullMethod).
				Interface("panic", r).
				Msg("Recovered from handler panic")
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

// SubmitLog queues an ADIF log. The log is sent as text in "adif" or as raw
// bytes in "adif_base64"; "callsign" and "grid" override the home station.
func (s *Server) SubmitLog(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	callsign := stringField(req, "callsign")
	grid := stringField(req, "grid")
	filename := stringField(req, "filename")

	log.Info().
		Str("callsign", callsign).
		Str("grid", grid).
		Str("filename", filename).
		Msg("Received log submission")

	var data []byte
	switch {
	case stringField(req, "adif_base64") != "":
		decoded, err := base64.StdEncoding.DecodeString(stringField(req, "adif_base64"))
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "adif_base64 is not valid base64: %v", err)
		}
		data = decoded
	case stringField(req, "adif") != "":
		data = []byte(stringField(req, "adif"))
	default:
		return nil, status.Error(codes.InvalidArgument, "adif or adif_base64 is required")
	}

	if s.maxUploadBytes > 0 && int64(len(data)) > s.maxUploadBytes {
		return nil, status.Errorf(codes.InvalidArgument, "log exceeds %d bytes", s.maxUploadBytes)
	}

	// Reject a bad home grid now rather than failing the job later
	if _, err := s.processor.HomeFor(callsign, grid); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	jobID, err := s.queue.Enqueue(queue.Request{
		Callsign: strings.ToUpper(callsign),
		Grid:     grid,
		Filename: filename,
		Data:     data,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to enqueue job")
		return nil, toStatus(err)
	}

	job, err := s.queue.GetJob(jobID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(job.View(false))
}

// GetJobStatus returns a job by "job_id"; "include_contacts" adds every
// enriched contact to the result
func (s *Server) GetJobStatus(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	jobID := stringField(req, "job_id")
	if jobID == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id is required")
	}

	job, err := s.queue.GetJob(jobID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(job.View(boolField(req, "include_contacts")))
}

// ListJobs returns jobs newest first, filtered by "status" and paged by
// "limit" and "offset"
func (s *Server) ListJobs(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	st, err := queue.ParseStatus(stringField(req, "status"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	limit := int(numberField(req, "limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := int(numberField(req, "offset"))
	if offset < 0 {
		offset = 0
	}

	jobs, total := s.queue.ListJobs(st, limit, offset)
	views := make([]queue.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.View(false))
	}

	return toStruct(map[string]any{
		"jobs":        views,
		"total_count": total,
		"limit":       limit,
		"offset":      offset,
	})
}

// ComputePath measures "from" to "to" (locators or "lat,lon") and samples
// "points" path segments
func (s *Server) ComputePath(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	from, err := mapper.ParseEndpoint(stringField(req, "from"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "from: %v", err)
	}
	to, err := mapper.ParseEndpoint(stringField(req, "to"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "to: %v", err)
	}

	opts := s.processor.Options()
	if v, ok := req.GetFields()["points"]; ok {
		n, err := pointsField(v)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		opts.PathPoints = n
	}

	route, err := mapper.ComputeRoute(from, to, opts)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return toStruct(route)
}

// pointsField accepts whole numbers in [0, calculator.MaxSampleCount]
func pointsField(v *structpb.Value) (int, error) {
	f := v.GetNumberValue()
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok ||
		math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) ||
		f < 0 || f > calculator.MaxSampleCount {
		return 0, fmt.Errorf("points must be an integer between 0 and %d", calculator.MaxSampleCount)
	}
	return int(f), nil
}

// toStatus maps queue errors onto gRPC codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, queue.ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, queue.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// toStruct converts a JSON-tagged value into a Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func stringField(s *structpb.Struct, key string) string {
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}
