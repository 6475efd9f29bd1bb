package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "qsomap.v1.QSOMapService"

// QSOMapServiceServer is the server API. Requests and responses are
// google.protobuf.Struct documents.
type QSOMapServiceServer interface {
	SubmitLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJobStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ComputePath(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(QSOMapServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(QSOMapServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(QSOMapServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes QSOMapService for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QSOMapServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("SubmitLog", QSOMapServiceServer.SubmitLog),
		unaryMethod("GetJobStatus", QSOMapServiceServer.GetJobStatus),
		unaryMethod("ListJobs", QSOMapServiceServer.ListJobs),
		unaryMethod("ComputePath", QSOMapServiceServer.ComputePath),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qsomap/v1/qsomap.proto",
}

// RegisterQSOMapServiceServer registers srv on s
func RegisterQSOMapServiceServer(s grpc.ServiceRegistrar, srv QSOMapServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls QSOMapService over a client connection
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitLog queues an ADIF log for mapping
func (c *Client) SubmitLog(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "SubmitLog", in, opts...)
}

// GetJobStatus returns one job
func (c *Client) GetJobStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetJobStatus", in, opts...)
}

// ListJobs pages through jobs
func (c *Client) ListJobs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListJobs", in, opts...)
}

// ComputePath measures and samples the path between two points
func (c *Client) ComputePath(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ComputePath", in, opts...)
}
