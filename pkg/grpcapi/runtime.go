package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// RuntimeServer is the server API for the slotstrike.v1.Runtime service.
// Payloads are well-known protobuf types, so no generated code is needed.
type RuntimeServer interface {
	GetTelemetry(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

const (
	methodGetTelemetry = "/" + ServiceName + "/GetTelemetry"
	methodGetStatus    = "/" + ServiceName + "/GetStatus"
)

var runtimeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuntimeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTelemetry", Handler: unaryHandler(methodGetTelemetry, RuntimeServer.GetTelemetry)},
		{MethodName: "GetStatus", Handler: unaryHandler(methodGetStatus, RuntimeServer.GetStatus)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotstrike/v1/runtime.proto",
}

type runtimeMethod func(RuntimeServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func unaryHandler(fullMethod string, m runtimeMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(RuntimeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(RuntimeServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RuntimeClient calls the Runtime service over an existing connection.
type RuntimeClient struct {
	cc grpc.ClientConnInterface
}

// NewRuntimeClient wraps cc.
func NewRuntimeClient(cc grpc.ClientConnInterface) *RuntimeClient {
	return &RuntimeClient{cc: cc}
}

// GetTelemetry fetches hop latency stats.
func (c *RuntimeClient) GetTelemetry(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetTelemetry, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStatus fetches the runtime summary.
func (c *RuntimeClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetStatus, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
